package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/etnz/valuation"
	"github.com/google/subcommands"
)

// assetCmd holds the flags for the 'asset' subcommand.
type assetCmd struct {
	id       string
	symbol   string
	name     string
	typ      string
	currency string
}

func (*assetCmd) Name() string     { return "asset" }
func (*assetCmd) Synopsis() string { return "declare an asset, or list them" }
func (*assetCmd) Usage() string {
	return `pve asset -id <id> -c <currency> [-s <ticker>] [-n <name>] [-t <type>]
pve asset

  Declares or replaces an asset. The ticker is the EODHD one (e.g. AAPL.US,
  VOD.LSE) used by 'pve fetch'. Without flags, lists the declared assets.
`
}

func (c *assetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Asset id")
	f.StringVar(&c.symbol, "s", "", "Ticker. Defaults to the id.")
	f.StringVar(&c.name, "n", "", "Asset name")
	f.StringVar(&c.typ, "t", "STOCK", "Asset type, e.g. STOCK, ETF, BOND")
	f.StringVar(&c.currency, "c", "", "Home currency of the asset")
}

func (c *assetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		if c.id == "" {
			assets, err := a.backend.Assets(ctx)
			if err != nil {
				return err
			}
			var b strings.Builder
			fmt.Fprintln(&b, "# Assets")
			fmt.Fprintln(&b)
			fmt.Fprintln(&b, "| ID | Ticker | Name | Type | Currency |")
			fmt.Fprintln(&b, "|:---|:---|:---|:---|:---|")
			for _, asset := range assets {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", asset.ID, asset.Symbol, asset.Name, asset.Type, asset.Currency)
			}
			printMarkdown(b.String())
			return nil
		}
		asset := valuation.Asset{
			ID:       c.id,
			Symbol:   c.symbol,
			Name:     c.name,
			Type:     valuation.AssetType(strings.ToUpper(c.typ)),
			Currency: strings.ToUpper(c.currency),
		}
		if asset.Symbol == "" {
			asset.Symbol = asset.ID
		}
		if err := a.backend.PutAsset(ctx, asset); err != nil {
			return err
		}
		fmt.Printf("Declared %s (%s) in %s\n", asset.ID, asset.Symbol, asset.Currency)
		return nil
	})
}
