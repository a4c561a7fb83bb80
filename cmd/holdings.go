package cmd

import (
	"context"
	"flag"

	"github.com/etnz/valuation/renderer"
	"github.com/google/subcommands"
)

type holdingsCmd struct{}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display the holdings of the user" }
func (*holdingsCmd) Usage() string {
	return `pve holdings

  Displays one line per asset with a position: quantity, average cost, invested
  amount, realized and unrealized gains, in the asset currency.
`
}

func (*holdingsCmd) SetFlags(*flag.FlagSet) {}

func (*holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		e, err := a.engine("")
		if err != nil {
			return err
		}
		holdings, err := e.Holdings(ctx, a.cfg.User)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderHoldings(holdings))
		return nil
	})
}
