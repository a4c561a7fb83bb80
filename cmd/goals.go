package cmd

import (
	"context"
	"flag"

	"github.com/etnz/valuation/renderer"
	"github.com/google/subcommands"
)

type goalsCmd struct{}

func (*goalsCmd) Name() string     { return "goals" }
func (*goalsCmd) Synopsis() string { return "display the progress of the user's goals" }
func (*goalsCmd) Usage() string {
	return `pve goals

  Displays every goal with its current amount, progress and remaining amount.
  No alert is sent, see 'pve check'.
`
}

func (*goalsCmd) SetFlags(*flag.FlagSet) {}

func (*goalsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		e, err := a.engine("")
		if err != nil {
			return err
		}
		progress, err := e.Goals(ctx, a.cfg.User)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderGoals(progress, nil))
		return nil
	})
}

type checkCmd struct{}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "evaluate the goals and send the alerts they raise" }
func (*checkCmd) Usage() string {
	return `pve check

  Evaluates every goal and sends the 80% and 100% alerts that are enabled and
  newly reached. Each alert is sent once; editing the goal target re-arms it.
`
}

func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (*checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		e, err := a.engine("")
		if err != nil {
			return err
		}
		progress, alerts, err := e.CheckGoals(ctx, a.cfg.User)
		printMarkdown(renderer.RenderGoals(progress, alerts))
		return err
	})
}
