// Package cmd implements the pve command line tool: it values the holdings
// of a user, summarizes the portfolio and tracks savings goals.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/valuation"
	"github.com/etnz/valuation/config"
	"github.com/etnz/valuation/notify"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// commands lists the subcommands by group.
func commands() map[string][]subcommands.Command {
	return map[string][]subcommands.Command{
		"reports": {&holdingsCmd{}, &summaryCmd{}, &goalsCmd{}},
		"goals":   {&checkCmd{}, &goalCmd{}},
		"ledger":  {&addCmd{}, &deleteCmd{}, &assetCmd{}, &fetchCmd{}, &exportCmd{}, &importCmd{}},
		"help":    {&topicCmd{}},
	}
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for group, cmds := range commands() {
		for _, cmd := range cmds {
			c.Register(cmd, group)
		}
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	configFile = flag.String("config", envOr("PVE_CONFIG", "pve.toml"), "Path to the TOML configuration file")
	userFlag   = flag.String("user", "", "User whose ledger is used. Overrides the configuration.")
	plainFlag  = flag.Bool("plain", false, "Print raw markdown instead of rendering it for the terminal")
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// app is the environment shared by all commands: configuration, logger and
// the opened backend.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	backend Backend
}

// openApp loads the configuration and opens the backend. The caller must call
// close.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	if *userFlag != "" {
		cfg.User = *userFlag
	}
	logger := cfg.Logger(os.Stderr)
	backend, err := OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s storage %q: %w", cfg.Storage.Backend, cfg.Storage.File(), err)
	}
	logger.Debug().Str("backend", cfg.Storage.Backend).Str("path", cfg.Storage.File()).Msg("storage opened")
	return &app{cfg: cfg, logger: logger, backend: backend}, nil
}

func (a *app) close() error { return a.backend.Close() }

// engine creates the valuation engine over the backend. Alerts are logged and
// printed to stderr.
func (a *app) engine(currency string) (*valuation.Engine, error) {
	if currency == "" {
		currency = a.cfg.ReportingCurrency
	}
	return valuation.NewEngine(a.backend, a.backend, a.backend, a.backend,
		valuation.WithLogger(a.logger),
		valuation.WithReportingCurrency(currency),
		valuation.WithGoalStore(a.backend),
		valuation.WithNotifier(notify.Multi{notify.NewLog(a.logger), notify.NewWriter(os.Stderr)}),
	)
}

// run opens the app, runs f and closes the app, reporting errors on stderr.
func run(ctx context.Context, f func(a *app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	err = f(a)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printMarkdown renders md for the terminal, or prints it as is with -plain.
func printMarkdown(md string) {
	if *plainFlag {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
