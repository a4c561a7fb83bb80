package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/etnz/valuation"
	"github.com/google/subcommands"
)

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the ledger of the user in JSONL format" }
func (*exportCmd) Usage() string {
	return `pve export [-o <file>]

  Writes the assets, their latest quotes and exchange rates, the goals and the
  operations of the user in the JSONL ledger format, in a canonical order. The
  output can be read back by 'pve import', with any storage backend.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file. Defaults to stdout.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		ledger, err := exportLedger(ctx, a)
		if err != nil {
			return err
		}
		if c.output == "" {
			return valuation.EncodeLedger(os.Stdout, ledger)
		}
		f, err := os.Create(c.output)
		if err != nil {
			return err
		}
		if err := valuation.EncodeLedger(f, ledger); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// exportLedger reads the content of the backend for the configured user.
// Rates are those from the asset currencies to the reporting currency.
func exportLedger(ctx context.Context, a *app) (*valuation.Ledger, error) {
	ledger := valuation.NewLedger()
	assets, err := a.backend.Assets(ctx)
	if err != nil {
		return nil, err
	}
	ledger.Assets = assets
	reporting := a.cfg.ReportingCurrency
	currencies := make(map[string]bool)
	for _, asset := range assets {
		q, err := a.backend.LatestPrice(ctx, asset.ID)
		if err != nil {
			return nil, err
		}
		if q != nil {
			ledger.Quotes = append(ledger.Quotes, valuation.AssetQuote{AssetID: asset.ID, Quote: *q})
		}
		if asset.Currency != reporting && !currencies[asset.Currency] {
			currencies[asset.Currency] = true
			r, err := a.backend.Rate(ctx, asset.Currency, reporting)
			if err != nil {
				return nil, err
			}
			if r != nil {
				ledger.Rates = append(ledger.Rates, valuation.ExchangeRate{From: asset.Currency, To: reporting, Rate: *r, AsOf: time.Now().UTC()})
			}
		}
	}
	if ledger.Goals, err = a.backend.ListGoals(ctx, a.cfg.User); err != nil {
		return nil, err
	}
	if ledger.Operations, err = a.backend.ListOperations(ctx, a.cfg.User, ""); err != nil {
		return nil, err
	}
	return ledger, nil
}

type importCmd struct {
	input string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "read a JSONL ledger into the storage" }
func (*importCmd) Usage() string {
	return `pve import -i <file>

  Reads a JSONL ledger, as written by 'pve export', and records its content for
  the configured user. Assets, quotes and rates are replaced. Goals and
  operations are added, keeping their ids; cancelled operations are skipped.
  Imported goals have their alerts re-armed.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.input, "i", "", "Input file, - for stdin")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.input == "" {
		fmt.Println(c.Usage())
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app) error {
		var r io.Reader = os.Stdin
		if c.input != "-" {
			f, err := os.Open(c.input)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		ledger, err := valuation.DecodeLedger(r)
		if err != nil {
			return fmt.Errorf("cannot decode %q: %w", c.input, err)
		}
		return importLedger(ctx, a, ledger)
	})
}

// importLedger records the content of ledger in the backend. Goals keep their
// alert flags. Every error is reported, the import goes on with the next
// record.
func importLedger(ctx context.Context, a *app, ledger *valuation.Ledger) error {
	var errs []error
	for _, asset := range ledger.Assets {
		errs = append(errs, a.backend.PutAsset(ctx, asset))
	}
	for _, q := range ledger.Quotes {
		errs = append(errs, a.backend.PutQuote(ctx, q.AssetID, q.Quote))
	}
	for _, r := range ledger.Rates {
		errs = append(errs, a.backend.PutRate(ctx, r.From, r.To, r.Rate, r.AsOf))
	}
	goals := 0
	for _, g := range ledger.Goals {
		g.UserID = a.cfg.User
		if err := a.backend.RestoreGoal(ctx, g); err != nil {
			errs = append(errs, fmt.Errorf("goal %q: %w", g.ID, err))
			continue
		}
		goals++
	}
	ops := 0
	for _, op := range ledger.Operations {
		if op.Deleted {
			continue
		}
		op.UserID = a.cfg.User
		if _, err := a.backend.AppendOperation(ctx, op); err != nil {
			errs = append(errs, fmt.Errorf("operation %q: %w", op.ID, err))
			continue
		}
		ops++
	}
	fmt.Printf("Imported %d assets, %d goals and %d operations\n", len(ledger.Assets), goals, ops)
	return errors.Join(errs...)
}
