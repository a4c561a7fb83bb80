package cmd

import (
	"context"
	"flag"
	"strings"

	"github.com/etnz/valuation/renderer"
	"github.com/google/subcommands"
)

// summaryCmd holds the flags for the 'summary' subcommand.
type summaryCmd struct {
	currency string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display a portfolio summary" }
func (*summaryCmd) Usage() string {
	return `pve summary [-c <currency>]

  Displays the portfolio totals in the reporting currency, the breakdown by
  asset type and the holdings. Holdings without an exchange rate are listed
  apart and make the value totals unknown.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Reporting currency. Defaults to the configured one.")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		e, err := a.engine(strings.ToUpper(c.currency))
		if err != nil {
			return err
		}
		s, err := e.Summary(ctx, a.cfg.User)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderSummary(&s))
		return nil
	})
}
