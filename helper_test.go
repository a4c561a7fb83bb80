package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EUR is a helper for test to create euro money from const
func EUR(v float64) Money { return M(v, "EUR") }

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// GBP is a helper for test to create pound money from const
func GBP(v float64) Money { return M(v, "GBP") }

// day returns midnight UTC of the given day.
func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// op creates an operation of user "u1".
func op(typ OperationType, asset string, q float64, price Money, fees float64, on time.Time) Operation {
	return NewOperation("u1", asset, typ, Q(q), price, decimal.NewFromFloat(fees), on)
}

// seq numbers operations in slice order, as a store would.
func seq(ops ...Operation) []Operation {
	for i := range ops {
		ops[i].Seq = int64(i + 1)
		ops[i].ID = string(rune('a' + i))
	}
	return ops
}

// moneyPtr returns a pointer to m.
func moneyPtr(m Money) *Money { return &m }

type fakeLedger []Operation

func (f fakeLedger) ListOperations(_ context.Context, userID, assetID string) ([]Operation, error) {
	var res []Operation
	for _, op := range f {
		if op.UserID != userID || op.Deleted {
			continue
		}
		if assetID != "" && op.AssetID != assetID {
			continue
		}
		res = append(res, op)
	}
	return res, nil
}

type fakeAssets map[string]Asset

func (f fakeAssets) GetAsset(_ context.Context, id string) (Asset, error) {
	a, ok := f[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return a, nil
}

type fakePrices map[string]Money

func (f fakePrices) LatestPrice(_ context.Context, id string) (*Quote, error) {
	p, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &Quote{Price: p, FetchedAt: day(2025, time.June, 30)}, nil
}

// fakeRates holds rates by "FROMTO" pair. Inverse rates are derived.
type fakeRates map[string]float64

func (f fakeRates) Rate(_ context.Context, from, to string) (*decimal.Decimal, error) {
	if r, ok := f[from+to]; ok {
		d := decimal.NewFromFloat(r)
		return &d, nil
	}
	if r, ok := f[to+from]; ok {
		d := decimal.NewFromInt(1).Div(decimal.NewFromFloat(r))
		return &d, nil
	}
	return nil, nil
}

type fakeGoals struct {
	mu    sync.Mutex
	goals []Goal
}

func (f *fakeGoals) ListGoals(_ context.Context, userID string) ([]Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []Goal
	for _, g := range f.goals {
		if g.UserID == userID {
			res = append(res, g)
		}
	}
	return res, nil
}

func (f *fakeGoals) UpdateGoalFlags(_ context.Context, goalID string, u FlagUpdate) (FlagUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, g := range f.goals {
		if g.ID == goalID {
			var applied FlagUpdate
			f.goals[i], applied = ApplyFlags(g, u)
			return applied, nil
		}
	}
	return FlagUpdate{}, ErrNotFound
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}
