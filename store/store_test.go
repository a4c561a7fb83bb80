package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/etnz/valuation"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func day(d int) time.Time { return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC) }

func usd(v float64) valuation.Money { return valuation.M(v, "USD") }

func buy(asset string, q float64, price float64, on time.Time) valuation.Operation {
	return valuation.NewOperation("u1", asset, valuation.Buy, valuation.Q(q), usd(price), decimal.Zero, on)
}

func TestStore_Operations(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.AppendOperation(buy("AAPL", 10, 100, day(2)))
	if err != nil {
		t.Fatalf("AppendOperation() error = %v", err)
	}
	second, err := s.AppendOperation(buy("MSFT", 1, 300, day(1)))
	if err != nil {
		t.Fatalf("AppendOperation() error = %v", err)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("ids = %q, %q, want distinct generated ids", first.ID, second.ID)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if _, err := s.AppendOperation(first); err == nil {
		t.Errorf("AppendOperation(duplicate) error = nil, want an error")
	}
	if _, err := s.AppendOperation(buy("AAPL", 0, 100, day(2))); !errors.Is(err, valuation.ErrInvalidOperation) {
		t.Errorf("AppendOperation(zero) error = %v, want ErrInvalidOperation", err)
	}

	ops, _ := s.ListOperations(ctx, "u1", "AAPL")
	if len(ops) != 1 || ops[0].ID != first.ID {
		t.Errorf("ListOperations(AAPL) = %v, want the AAPL buy", ops)
	}

	if err := s.DeleteOperation(first.ID); err != nil {
		t.Fatalf("DeleteOperation() error = %v", err)
	}
	if err := s.DeleteOperation(first.ID); !errors.Is(err, valuation.ErrNotFound) {
		t.Errorf("DeleteOperation() twice error = %v, want ErrNotFound", err)
	}
	ops, _ = s.ListOperations(ctx, "u1", "")
	if len(ops) != 1 || ops[0].ID != second.ID {
		t.Errorf("ListOperations() = %v, want only the MSFT buy", ops)
	}
	if ops, _ := s.ListOperations(ctx, "u2", ""); len(ops) != 0 {
		t.Errorf("ListOperations(u2) = %v, want none", ops)
	}
}

func TestStore_Rates(t *testing.T) {
	s := New()
	if err := s.PutRate("USD", "EUR", decimal.RequireFromString("0.8"), day(1)); err != nil {
		t.Fatalf("PutRate() error = %v", err)
	}
	if err := s.PutRate("USD", "JPY", decimal.Zero, day(1)); err == nil {
		t.Errorf("PutRate(0) error = nil, want an error")
	}
	tests := []struct {
		from, to string
		want     string
	}{
		{"USD", "EUR", "0.8"},
		{"EUR", "USD", "1.25"},
		{"USD", "CHF", ""},
	}
	for _, tt := range tests {
		r, err := s.Rate(context.Background(), tt.from, tt.to)
		if err != nil {
			t.Fatalf("Rate() error = %v", err)
		}
		switch {
		case tt.want == "" && r != nil:
			t.Errorf("Rate(%s, %s) = %v, want nil", tt.from, tt.to, r)
		case tt.want != "" && (r == nil || !r.Equal(decimal.RequireFromString(tt.want))):
			t.Errorf("Rate(%s, %s) = %v, want %s", tt.from, tt.to, r, tt.want)
		}
	}
}

func TestStore_Goals(t *testing.T) {
	s := New()
	ctx := context.Background()
	sent := day(1)
	g, err := s.AddGoal(valuation.Goal{
		UserID: "u1", Name: "house", Scope: valuation.ScopePortfolio, TargetAmount: usd(1000),
		AlertAt80: true, Alert80Sent: true, AchievedAt: &sent,
	})
	if err != nil {
		t.Fatalf("AddGoal() error = %v", err)
	}
	if g.ID == "" || g.Alert80Sent || g.AchievedAt != nil {
		t.Errorf("AddGoal() = %+v, want an armed goal with an id", g)
	}

	applied, err := s.UpdateGoalFlags(ctx, g.ID, valuation.FlagUpdate{Alert80Sent: true})
	if err != nil || !applied.Alert80Sent {
		t.Fatalf("UpdateGoalFlags() = %+v, %v, want the 80%% flag applied", applied, err)
	}

	name := "bigger house"
	edited, err := s.EditGoal(g.ID, valuation.GoalEdit{Name: &name})
	if err != nil {
		t.Fatalf("EditGoal() error = %v", err)
	}
	if !edited.Alert80Sent {
		t.Errorf("EditGoal(name) = %+v, want the flag kept", edited)
	}
	target := usd(2000)
	if edited, _ = s.EditGoal(g.ID, valuation.GoalEdit{TargetAmount: &target}); edited.Alert80Sent {
		t.Errorf("EditGoal(target) = %+v, want the flag re-armed", edited)
	}
	asset := ""
	scope := valuation.ScopeAsset
	if _, err := s.EditGoal(g.ID, valuation.GoalEdit{Scope: &scope, AssetID: &asset}); !errors.Is(err, valuation.ErrInvalidGoal) {
		t.Errorf("EditGoal(invalid) error = %v, want ErrInvalidGoal", err)
	}

	goals, _ := s.ListGoals(ctx, "u1")
	if len(goals) != 1 || goals[0].Name != name || !goals[0].TargetAmount.Equal(target) {
		t.Errorf("ListGoals() = %+v", goals)
	}
	if err := s.DeleteGoal(g.ID); err != nil {
		t.Fatalf("DeleteGoal() error = %v", err)
	}
	if _, err := s.UpdateGoalFlags(ctx, g.ID, valuation.FlagUpdate{Alert80Sent: true}); !errors.Is(err, valuation.ErrNotFound) {
		t.Errorf("UpdateGoalFlags(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestStore_RestoreGoal(t *testing.T) {
	s := New()
	ctx := context.Background()
	reached := day(10)
	want := valuation.Goal{
		ID: "g1", UserID: "u1", Name: "house", Scope: valuation.ScopePortfolio, TargetAmount: usd(1000),
		AlertAt80: true, Alert80Sent: true, AchievedAt: &reached, Revision: 2,
	}
	if err := s.RestoreGoal(want); err != nil {
		t.Fatalf("RestoreGoal() error = %v", err)
	}
	goals, _ := s.ListGoals(ctx, "u1")
	if len(goals) != 1 || !goals[0].Alert80Sent || goals[0].AchievedAt == nil || goals[0].Revision != 2 {
		t.Errorf("ListGoals() = %+v, want the flags kept", goals)
	}
	if err := s.RestoreGoal(want); err == nil {
		t.Errorf("RestoreGoal(existing) error = nil, want an error")
	}

	// a stale update is dropped, the current one applies
	if applied, _ := s.UpdateGoalFlags(ctx, "g1", valuation.FlagUpdate{Alert100Sent: true, Revision: 1}); !applied.IsEmpty() {
		t.Errorf("UpdateGoalFlags(revision 1) = %+v, want nothing applied", applied)
	}
	if applied, _ := s.UpdateGoalFlags(ctx, "g1", valuation.FlagUpdate{Alert100Sent: true, Revision: 2}); !applied.Alert100Sent {
		t.Errorf("UpdateGoalFlags(revision 2) = %+v, want the 100%% flag applied", applied)
	}
}

func TestStore_UpdateGoalFlagsConcurrent(t *testing.T) {
	s := New()
	g, err := s.AddGoal(valuation.Goal{UserID: "u1", Scope: valuation.ScopePortfolio, TargetAmount: usd(1000), AlertAt80: true})
	if err != nil {
		t.Fatalf("AddGoal() error = %v", err)
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := s.UpdateGoalFlags(context.Background(), g.ID, valuation.FlagUpdate{Alert80Sent: true})
			if err == nil && applied.Alert80Sent {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("flag applied %d times, want exactly once", wins)
	}
}

func TestStore_SaveOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	empty, err := Open(path)
	if err != nil {
		t.Fatalf("Open(missing) error = %v", err)
	}
	if len(empty.Assets()) != 0 {
		t.Errorf("Open(missing) has assets")
	}

	s := New()
	if err := s.PutAsset(valuation.Asset{ID: "AAPL", Symbol: "AAPL.US", Name: "Apple", Type: "STOCK", Currency: "USD"}); err != nil {
		t.Fatalf("PutAsset() error = %v", err)
	}
	if err := s.PutAsset(valuation.Asset{ID: "BAD", Currency: "XYZ"}); err == nil {
		t.Errorf("PutAsset(XYZ) error = nil, want an error")
	}
	s.PutQuote("AAPL", valuation.Quote{Price: usd(150), FetchedAt: day(3)})
	s.PutRate("USD", "EUR", decimal.RequireFromString("0.9"), day(3))
	s.AppendOperation(buy("AAPL", 10, 100, day(2)))
	s.AppendOperation(buy("AAPL", 5, 110, day(4)))
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	back, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	want, got := s.Ledger(), back.Ledger()
	if diff := cmp.Diff(len(want.Operations), len(got.Operations)); diff != "" {
		t.Errorf("operations count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Assets, got.Assets); diff != "" {
		t.Errorf("assets mismatch (-want +got):\n%s", diff)
	}
	if q, _ := back.LatestPrice(context.Background(), "AAPL"); q == nil || !q.Price.Equal(usd(150)) {
		t.Errorf("LatestPrice() = %v, want 150 USD", q)
	}

	// sequence numbers continue after a reload
	op, err := back.AppendOperation(buy("AAPL", 1, 120, day(5)))
	if err != nil {
		t.Fatalf("AppendOperation() error = %v", err)
	}
	if op.Seq != 3 {
		t.Errorf("Seq = %d, want 3", op.Seq)
	}
}
