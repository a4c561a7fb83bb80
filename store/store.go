// Package store is an in-memory implementation of the valuation
// collaborators, persisted as a JSONL ledger file.
package store

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/etnz/valuation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store holds assets, quotes, exchange rates, goals and operations in memory.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	assets     map[string]valuation.Asset
	quotes     map[string]valuation.Quote
	rates      map[string]valuation.ExchangeRate
	goals      []valuation.Goal
	operations []valuation.Operation
	seq        int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		assets: make(map[string]valuation.Asset),
		quotes: make(map[string]valuation.Quote),
		rates:  make(map[string]valuation.ExchangeRate),
	}
}

// FromLedger creates a Store holding the content of l.
func FromLedger(l *valuation.Ledger) *Store {
	s := New()
	for _, a := range l.Assets {
		s.assets[a.ID] = a
	}
	for _, q := range l.Quotes {
		s.quotes[q.AssetID] = q.Quote
	}
	for _, r := range l.Rates {
		s.rates[pair(r.From, r.To)] = r
	}
	s.goals = slices.Clone(l.Goals)
	s.operations = slices.Clone(l.Operations)
	for _, op := range s.operations {
		s.seq = max(s.seq, op.Seq)
	}
	return s
}

// Ledger returns a snapshot of the store content.
func (s *Store) Ledger() *valuation.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := valuation.NewLedger()
	for _, id := range sortedKeys(s.assets) {
		l.Assets = append(l.Assets, s.assets[id])
	}
	for _, id := range sortedKeys(s.quotes) {
		l.Quotes = append(l.Quotes, valuation.AssetQuote{AssetID: id, Quote: s.quotes[id]})
	}
	for _, k := range sortedKeys(s.rates) {
		l.Rates = append(l.Rates, s.rates[k])
	}
	l.Goals = slices.Clone(s.goals)
	l.Operations = slices.Clone(s.operations)
	return l
}

// Open loads a Store from a JSONL ledger file. A missing file is an empty
// store.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	l, err := valuation.DecodeLedger(f)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q: %w", path, err)
	}
	return FromLedger(l), nil
}

// Save writes the store to a JSONL ledger file, replacing it atomically.
func (s *Store) Save(path string) error {
	var buf bytes.Buffer
	if err := valuation.EncodeLedger(&buf, s.Ledger()); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// PutAsset adds or replaces an asset.
func (s *Store) PutAsset(a valuation.Asset) error {
	if a.ID == "" {
		return errors.New("asset id is required")
	}
	if err := valuation.ValidateCurrency(a.Currency); err != nil {
		return fmt.Errorf("asset %q: %w", a.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a
	return nil
}

// GetAsset implements valuation.AssetRepository.
func (s *Store) GetAsset(_ context.Context, assetID string) (valuation.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[assetID]
	if !ok {
		return valuation.Asset{}, fmt.Errorf("asset %q: %w", assetID, valuation.ErrNotFound)
	}
	return a, nil
}

// Assets returns all assets sorted by id.
func (s *Store) Assets() []valuation.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []valuation.Asset
	for _, id := range sortedKeys(s.assets) {
		res = append(res, s.assets[id])
	}
	return res
}

// PutQuote records the latest quote of an asset.
func (s *Store) PutQuote(assetID string, q valuation.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[assetID] = q
}

// LatestPrice implements valuation.PriceProvider.
func (s *Store) LatestPrice(_ context.Context, assetID string) (*valuation.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[assetID]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

// PutRate records an exchange rate: one from is worth rate to.
func (s *Store) PutRate(from, to string, rate decimal.Decimal, asOf time.Time) error {
	if !rate.IsPositive() {
		return fmt.Errorf("rate %s/%s must be positive", from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pair(from, to)] = valuation.ExchangeRate{From: from, To: to, Rate: rate, AsOf: asOf}
	return nil
}

// Rate implements valuation.RateProvider. The inverse of a known rate is
// used when the direct one is missing.
func (s *Store) Rate(_ context.Context, from, to string) (*decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rates[pair(from, to)]; ok {
		return &r.Rate, nil
	}
	if r, ok := s.rates[pair(to, from)]; ok {
		inv := decimal.NewFromInt(1).Div(r.Rate)
		return &inv, nil
	}
	return nil, nil
}

// AppendOperation records a new operation. It assigns its id, when empty,
// and its sequence number.
func (s *Store) AppendOperation(op valuation.Operation) (valuation.Operation, error) {
	if err := op.Check(); err != nil {
		return valuation.Operation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if slices.ContainsFunc(s.operations, func(o valuation.Operation) bool { return o.ID == op.ID }) {
		return valuation.Operation{}, fmt.Errorf("operation %q already exists", op.ID)
	}
	s.seq++
	op.Seq = s.seq
	op.Deleted = false
	s.operations = append(s.operations, op)
	return op, nil
}

// DeleteOperation soft-deletes an operation: it is kept but excluded from
// replay.
func (s *Store) DeleteOperation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.operations, func(o valuation.Operation) bool { return o.ID == id })
	if i < 0 || s.operations[i].Deleted {
		return fmt.Errorf("operation %q: %w", id, valuation.ErrNotFound)
	}
	s.operations[i].Deleted = true
	return nil
}

// ListOperations implements valuation.LedgerSource.
func (s *Store) ListOperations(_ context.Context, userID, assetID string) ([]valuation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []valuation.Operation
	for _, op := range s.operations {
		if op.Deleted || op.UserID != userID {
			continue
		}
		if assetID != "" && op.AssetID != assetID {
			continue
		}
		res = append(res, op)
	}
	return res, nil
}

// AddGoal records a new goal with its alerts armed.
func (s *Store) AddGoal(g valuation.Goal) (valuation.Goal, error) {
	g = g.Armed()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if err := s.RestoreGoal(g); err != nil {
		return valuation.Goal{}, err
	}
	return g, nil
}

// RestoreGoal records a goal as is, engine owned fields included.
func (s *Store) RestoreGoal(g valuation.Goal) error {
	if g.ID == "" {
		return fmt.Errorf("%w: missing id", valuation.ErrInvalidGoal)
	}
	if err := g.Check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goalIndex(g.ID) >= 0 {
		return fmt.Errorf("goal %q already exists", g.ID)
	}
	s.goals = append(s.goals, g)
	return nil
}

// EditGoal applies a user edit to a goal. Edits to the target re-arm its
// alerts.
func (s *Store) EditGoal(id string, e valuation.GoalEdit) (valuation.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(id)
	if i < 0 {
		return valuation.Goal{}, fmt.Errorf("goal %q: %w", id, valuation.ErrNotFound)
	}
	g := s.goals[i].Apply(e)
	if err := g.Check(); err != nil {
		return valuation.Goal{}, err
	}
	s.goals[i] = g
	return g, nil
}

// DeleteGoal removes a goal.
func (s *Store) DeleteGoal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(id)
	if i < 0 {
		return fmt.Errorf("goal %q: %w", id, valuation.ErrNotFound)
	}
	s.goals = slices.Delete(s.goals, i, i+1)
	return nil
}

// ListGoals implements valuation.GoalStore.
func (s *Store) ListGoals(_ context.Context, userID string) ([]valuation.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []valuation.Goal
	for _, g := range s.goals {
		if g.UserID == userID {
			res = append(res, g)
		}
	}
	return res, nil
}

// UpdateGoalFlags implements valuation.GoalStore. The check and the write
// happen under the store lock.
func (s *Store) UpdateGoalFlags(_ context.Context, goalID string, update valuation.FlagUpdate) (valuation.FlagUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(goalID)
	if i < 0 {
		return valuation.FlagUpdate{}, fmt.Errorf("goal %q: %w", goalID, valuation.ErrNotFound)
	}
	var applied valuation.FlagUpdate
	s.goals[i], applied = valuation.ApplyFlags(s.goals[i], update)
	return applied, nil
}

func pair(from, to string) string { return from + "/" + to }

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

func (s *Store) goalIndex(id string) int {
	return slices.IndexFunc(s.goals, func(g valuation.Goal) bool { return g.ID == id })
}

var (
	_ valuation.LedgerSource    = (*Store)(nil)
	_ valuation.AssetRepository = (*Store)(nil)
	_ valuation.PriceProvider   = (*Store)(nil)
	_ valuation.RateProvider    = (*Store)(nil)
	_ valuation.GoalStore       = (*Store)(nil)
)
