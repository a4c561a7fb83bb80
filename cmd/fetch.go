package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/eodhd"
	"github.com/google/subcommands"
)

type fetchCmd struct {
	cacheTTL time.Duration
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "fetch the latest quotes and exchange rates from EODHD" }
func (*fetchCmd) Usage() string {
	return `pve fetch [-ttl <duration>]

  Fetches the latest quote of every declared asset, and the exchange rates
  from their currencies to the reporting currency, and records them in the
  storage. Requires eodhd.api_key in the configuration or PVE_EODHD_API_KEY.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.cacheTTL, "ttl", 15*time.Minute, "How long EODHD responses are cached on disk when the cache is enabled")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		cfg := a.cfg.EODHD
		if cfg.APIKey == "" {
			return errors.New("no EODHD api key configured")
		}
		opts := []eodhd.ClientOption{
			eodhd.WithBaseURL(cfg.BaseURL),
			eodhd.WithLogger(a.logger),
			eodhd.WithRateLimit(cfg.RateLimit),
			eodhd.WithTimeout(cfg.GetTimeout()),
		}
		if cfg.Cache {
			opts = append(opts, eodhd.WithDiskCache("", c.cacheTTL))
		}
		client := eodhd.NewClient(cfg.APIKey, a.backend, opts...)
		return fetch(ctx, a, client, client)
	})
}

// fetch records the latest quotes and rates given by the providers. Missing
// data is logged and skipped.
func fetch(ctx context.Context, a *app, prices valuation.PriceProvider, rates valuation.RateProvider) error {
	assets, err := a.backend.Assets(ctx)
	if err != nil {
		return err
	}
	reporting := a.cfg.ReportingCurrency
	currencies := make(map[string]bool)
	quotes := 0
	for _, asset := range assets {
		log := a.logger.With().Str("asset", asset.ID).Logger()
		q, err := prices.LatestPrice(ctx, asset.ID)
		if err != nil {
			log.Warn().Err(err).Msg("quote not fetched")
			continue
		}
		if q == nil {
			log.Warn().Msg("no quote available")
			continue
		}
		if q.FetchedAt.IsZero() {
			q.FetchedAt = time.Now().UTC()
		}
		if err := a.backend.PutQuote(ctx, asset.ID, *q); err != nil {
			return err
		}
		quotes++
		if cur := valuation.NormalizePrice(q.Price).Currency(); cur != reporting {
			currencies[cur] = true
		}
		if asset.Currency != reporting {
			currencies[asset.Currency] = true
		}
	}

	fetched := 0
	for cur := range currencies {
		r, err := rates.Rate(ctx, cur, reporting)
		if err != nil || r == nil {
			a.logger.Warn().Err(err).Str("currency", cur).Msg("rate not fetched")
			continue
		}
		if err := a.backend.PutRate(ctx, cur, reporting, *r, time.Now().UTC()); err != nil {
			return err
		}
		fetched++
	}
	fmt.Printf("Fetched %d quotes and %d exchange rates\n", quotes, fetched)
	return nil
}
