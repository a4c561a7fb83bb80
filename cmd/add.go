package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/date"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// parseDay parses a day, or returns today at midnight UTC when s is empty.
func parseDay(s string) (time.Time, error) {
	d := date.Today()
	if s != "" {
		var err error
		if d, err = date.Parse(s); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
}

// parseDecimal parses an optional decimal flag, empty is zero.
func parseDecimal(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid -%s %q: %w", name, s, err)
	}
	return d, nil
}

// addCmd holds the flags for the 'add' subcommand.
type addCmd struct {
	typ      string
	asset    string
	quantity string
	price    string
	fees     string
	currency string
	date     string
	id       string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "append an operation to the ledger" }
func (*addCmd) Usage() string {
	return `pve add -t <type> -a <asset> [-q <quantity>] [-p <price>] [-fees <fees>] [-c <currency>] [-d <date>]

  Appends an operation to the user's ledger. Types are BUY, SELL, DIVIDEND,
  FEE and SPLIT. For a DIVIDEND -p is the total amount received, for a SPLIT
  -q is the ratio (2 for a 2-for-1 split). Amounts default to the asset
  currency. A sell exceeding the quantity held at its date is rejected.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "t", "", "Operation type: BUY, SELL, DIVIDEND, FEE or SPLIT")
	f.StringVar(&c.asset, "a", "", "Asset id")
	f.StringVar(&c.quantity, "q", "", "Quantity, or split ratio")
	f.StringVar(&c.price, "p", "", "Price per unit, or total amount for a dividend or a fee")
	f.StringVar(&c.fees, "fees", "", "Fees paid on the operation")
	f.StringVar(&c.currency, "c", "", "Currency of the amounts. Defaults to the asset currency.")
	f.StringVar(&c.date, "d", "", "Date of the operation (YYYY-MM-DD). Defaults to today.")
	f.StringVar(&c.id, "id", "", "Operation id. Generated when empty.")
}

// operation builds the operation described by the flags.
func (c *addCmd) operation(ctx context.Context, a *app) (valuation.Operation, error) {
	typ, err := valuation.ParseOperationType(c.typ)
	if err != nil {
		return valuation.Operation{}, err
	}
	on, err := parseDay(c.date)
	if err != nil {
		return valuation.Operation{}, err
	}
	var errs []error
	quantity, err := parseDecimal("q", c.quantity)
	errs = append(errs, err)
	price, err := parseDecimal("p", c.price)
	errs = append(errs, err)
	fees, err := parseDecimal("fees", c.fees)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return valuation.Operation{}, err
	}
	currency := strings.ToUpper(c.currency)
	if currency == "" {
		asset, err := a.backend.GetAsset(ctx, c.asset)
		if err != nil {
			return valuation.Operation{}, fmt.Errorf("%w %q", valuation.ErrUnknownAsset, c.asset)
		}
		currency = asset.Currency
	}
	op := valuation.NewOperation(a.cfg.User, c.asset, typ, valuation.Q(quantity), valuation.M(price, currency), fees, on)
	op.ID = c.id
	return op, nil
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.typ == "" || c.asset == "" {
		fmt.Println(c.Usage())
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app) error {
		op, err := c.operation(ctx, a)
		if err != nil {
			return err
		}
		e, err := a.engine("")
		if err != nil {
			return err
		}
		if err := e.ValidateOperation(ctx, op); err != nil {
			return err
		}
		op, err = a.backend.AppendOperation(ctx, op)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s %s %s on %s: %s (id %s)\n", op.Type, op.Quantity, op.AssetID, op.OccurredAt.Format(time.DateOnly), op.TotalAmount, op.ID)
		return nil
	})
}

type deleteCmd struct {
	id string
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "cancel an operation of the ledger" }
func (*deleteCmd) Usage() string {
	return `pve delete -id <operation id>

  Cancels an operation: it is kept in the ledger but no longer counts.
  Cancelling a purchase that later sales depend on is refused.
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Operation id")
}

func (c *deleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		fmt.Println(c.Usage())
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app) error {
		e, err := a.engine("")
		if err != nil {
			return err
		}
		if err := e.ValidateDelete(ctx, a.cfg.User, c.id); err != nil {
			return err
		}
		if err := a.backend.DeleteOperation(ctx, c.id); err != nil {
			return err
		}
		fmt.Printf("Deleted operation %s\n", c.id)
		return nil
	})
}
