package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/config"
	"github.com/etnz/valuation/sqlstore"
	"github.com/etnz/valuation/store"
	"github.com/shopspring/decimal"
)

// Backend is a storage usable by every pve command.
type Backend interface {
	valuation.LedgerSource
	valuation.AssetRepository
	valuation.PriceProvider
	valuation.RateProvider
	valuation.GoalStore

	PutAsset(ctx context.Context, a valuation.Asset) error
	Assets(ctx context.Context) ([]valuation.Asset, error)
	PutQuote(ctx context.Context, assetID string, q valuation.Quote) error
	PutRate(ctx context.Context, from, to string, rate decimal.Decimal, asOf time.Time) error

	AppendOperation(ctx context.Context, op valuation.Operation) (valuation.Operation, error)
	DeleteOperation(ctx context.Context, id string) error

	AddGoal(ctx context.Context, g valuation.Goal) (valuation.Goal, error)
	RestoreGoal(ctx context.Context, g valuation.Goal) error
	EditGoal(ctx context.Context, id string, e valuation.GoalEdit) (valuation.Goal, error)
	DeleteGoal(ctx context.Context, id string) error

	Close() error
}

// OpenBackend opens the configured storage, creating its directory if needed.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlstore.Open(ctx, cfg.File())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendJSONL:
		s, err := store.Open(cfg.File())
		if err != nil {
			return nil, err
		}
		return &jsonlBackend{Store: s, path: cfg.File()}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// jsonlBackend is an in-memory store loaded from a JSONL ledger, and saved
// back on Close when modified.
type jsonlBackend struct {
	*store.Store
	path  string
	dirty bool
}

func (b *jsonlBackend) PutAsset(_ context.Context, a valuation.Asset) error {
	if err := b.Store.PutAsset(a); err != nil {
		return err
	}
	b.dirty = true
	return nil
}

func (b *jsonlBackend) Assets(context.Context) ([]valuation.Asset, error) { return b.Store.Assets(), nil }

func (b *jsonlBackend) PutQuote(_ context.Context, assetID string, q valuation.Quote) error {
	b.Store.PutQuote(assetID, q)
	b.dirty = true
	return nil
}

func (b *jsonlBackend) PutRate(_ context.Context, from, to string, rate decimal.Decimal, asOf time.Time) error {
	if err := b.Store.PutRate(from, to, rate, asOf); err != nil {
		return err
	}
	b.dirty = true
	return nil
}

func (b *jsonlBackend) AppendOperation(_ context.Context, op valuation.Operation) (valuation.Operation, error) {
	op, err := b.Store.AppendOperation(op)
	if err == nil {
		b.dirty = true
	}
	return op, err
}

func (b *jsonlBackend) DeleteOperation(_ context.Context, id string) error {
	if err := b.Store.DeleteOperation(id); err != nil {
		return err
	}
	b.dirty = true
	return nil
}

func (b *jsonlBackend) AddGoal(_ context.Context, g valuation.Goal) (valuation.Goal, error) {
	g, err := b.Store.AddGoal(g)
	if err == nil {
		b.dirty = true
	}
	return g, err
}

func (b *jsonlBackend) RestoreGoal(_ context.Context, g valuation.Goal) error {
	err := b.Store.RestoreGoal(g)
	if err == nil {
		b.dirty = true
	}
	return err
}

func (b *jsonlBackend) EditGoal(_ context.Context, id string, e valuation.GoalEdit) (valuation.Goal, error) {
	g, err := b.Store.EditGoal(id, e)
	if err == nil {
		b.dirty = true
	}
	return g, err
}

func (b *jsonlBackend) DeleteGoal(_ context.Context, id string) error {
	if err := b.Store.DeleteGoal(id); err != nil {
		return err
	}
	b.dirty = true
	return nil
}

func (b *jsonlBackend) UpdateGoalFlags(ctx context.Context, goalID string, update valuation.FlagUpdate) (valuation.FlagUpdate, error) {
	applied, err := b.Store.UpdateGoalFlags(ctx, goalID, update)
	if err == nil && !applied.IsEmpty() {
		b.dirty = true
	}
	return applied, err
}

// Close saves the ledger if it was modified.
func (b *jsonlBackend) Close() error {
	if !b.dirty {
		return nil
	}
	return b.Store.Save(b.path)
}

var (
	_ Backend = (*jsonlBackend)(nil)
	_ Backend = (*sqlstore.Store)(nil)
)
