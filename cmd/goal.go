package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/date"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// goalCmd holds the flags for the 'goal' subcommand.
type goalCmd struct {
	id         string
	name       string
	scope      string
	asset      string
	target     string
	currency   string
	targetDate string
	alert80    bool
	alert100   bool
}

func (*goalCmd) Name() string     { return "goal" }
func (*goalCmd) Synopsis() string { return "add, edit or delete a goal" }
func (*goalCmd) Usage() string {
	return `pve goal add -name <name> -target <amount> [-scope PORTFOLIO|ASSET] [-a <asset>] [-c <currency>] [-date <date>] [-alert80] [-alert100]
pve goal edit -id <id> [flags to change]
pve goal delete -id <id>

  Manages the user's savings goals. A portfolio goal tracks the whole
  portfolio value, an asset goal a single asset. Changing the target, the
  scope or the asset re-arms the alerts. Use -date none to clear the target
  date.
`
}

func (c *goalCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Goal id. Generated on add when empty.")
	f.StringVar(&c.name, "name", "", "Goal name")
	f.StringVar(&c.scope, "scope", string(valuation.ScopePortfolio), "PORTFOLIO or ASSET")
	f.StringVar(&c.asset, "a", "", "Asset id of an ASSET goal")
	f.StringVar(&c.target, "target", "", "Target amount")
	f.StringVar(&c.currency, "c", "", "Currency of the target. Defaults to the reporting currency.")
	f.StringVar(&c.targetDate, "date", "", "Target date (YYYY-MM-DD)")
	f.BoolVar(&c.alert80, "alert80", false, "Alert when 80% of the target is reached")
	f.BoolVar(&c.alert100, "alert100", false, "Alert when the target is reached")
}

// edit returns the edit made of the flags explicitly set in f.
func (c *goalCmd) edit(f *flag.FlagSet, defaultCurrency string) (valuation.GoalEdit, error) {
	var e valuation.GoalEdit
	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "name":
			e.Name = &c.name
		case "scope":
			var scope valuation.GoalScope
			scope, err = valuation.ParseGoalScope(c.scope)
			e.Scope = &scope
		case "a":
			e.AssetID = &c.asset
			if c.asset != "" {
				// visited before "scope", which wins when set.
				scope := valuation.ScopeAsset
				e.Scope = &scope
			}
		case "target", "c":
			if e.TargetAmount != nil {
				return
			}
			var amount decimal.Decimal
			if amount, err = parseDecimal("target", c.target); err != nil {
				return
			}
			if c.target == "" {
				err = fmt.Errorf("%w: -c requires -target", valuation.ErrInvalidGoal)
				return
			}
			currency := strings.ToUpper(c.currency)
			if currency == "" {
				currency = defaultCurrency
			}
			target := valuation.M(amount, currency)
			e.TargetAmount = &target
		case "date":
			if strings.EqualFold(c.targetDate, "none") {
				e.ClearTargetDate = true
				return
			}
			var d date.Date
			d, err = date.Parse(c.targetDate)
			e.TargetDate = &d
		case "alert80":
			e.AlertAt80 = &c.alert80
		case "alert100":
			e.AlertAt100 = &c.alert100
		}
	})
	return e, err
}

func (c *goalCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	action := f.Arg(0)
	// flags follow the action.
	if err := f.Parse(f.Args()[min(1, f.NArg()):]); err != nil {
		return subcommands.ExitUsageError
	}
	switch action {
	case "add":
		if c.target == "" {
			fmt.Println(c.Usage())
			return subcommands.ExitUsageError
		}
	case "edit", "delete":
		if c.id == "" {
			fmt.Println(c.Usage())
			return subcommands.ExitUsageError
		}
	default:
		fmt.Println(c.Usage())
		return subcommands.ExitUsageError
	}

	return run(ctx, func(a *app) error {
		e, err := a.engine("")
		if err != nil {
			return err
		}
		switch action {
		case "add":
			edit, err := c.edit(f, e.ReportingCurrency())
			if err != nil {
				return err
			}
			g := valuation.Goal{ID: c.id, UserID: a.cfg.User, Scope: valuation.ScopePortfolio}.Apply(edit)
			if err := e.ValidateGoal(ctx, g); err != nil {
				return err
			}
			if g, err = a.backend.AddGoal(ctx, g); err != nil {
				return err
			}
			fmt.Printf("Added goal %q (id %s)\n", g.Name, g.ID)

		case "edit":
			edit, err := c.edit(f, e.ReportingCurrency())
			if err != nil {
				return err
			}
			if err := c.validateEdit(ctx, a, e, edit); err != nil {
				return err
			}
			g, err := a.backend.EditGoal(ctx, c.id, edit)
			if err != nil {
				return err
			}
			fmt.Printf("Edited goal %q (id %s)\n", g.Name, g.ID)

		case "delete":
			if err := a.backend.DeleteGoal(ctx, c.id); err != nil {
				return err
			}
			fmt.Printf("Deleted goal %s\n", c.id)
		}
		return nil
	})
}

// validateEdit checks the goal that results from the edit.
func (c *goalCmd) validateEdit(ctx context.Context, a *app, e *valuation.Engine, edit valuation.GoalEdit) error {
	goals, err := a.backend.ListGoals(ctx, a.cfg.User)
	if err != nil {
		return err
	}
	for _, g := range goals {
		if g.ID == c.id {
			return e.ValidateGoal(ctx, g.Apply(edit))
		}
	}
	return fmt.Errorf("goal %q: %w", c.id, valuation.ErrNotFound)
}
