package valuation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/etnz/valuation/date"
	"github.com/rs/zerolog"
)

// DefaultReportingCurrency is the currency of portfolio summaries unless
// WithReportingCurrency says otherwise.
const DefaultReportingCurrency = "EUR"

// Engine derives holdings, portfolio summaries and goal progress from a user's
// ledger. It keeps no state between calls: every call replays the ledger.
//
// An Engine is safe for concurrent use as long as its collaborators are.
type Engine struct {
	ledger   LedgerSource
	assets   AssetRepository
	prices   PriceProvider
	goals    GoalStore
	notifier Notifier
	conv     Converter
	logger   zerolog.Logger
	now      func() time.Time
	currency string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report data gaps.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock sets the function returning the current time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithReportingCurrency sets the currency of portfolio summaries.
func WithReportingCurrency(currency string) Option {
	return func(e *Engine) { e.currency = currency }
}

// WithGoalStore enables goal evaluation.
func WithGoalStore(goals GoalStore) Option {
	return func(e *Engine) { e.goals = goals }
}

// WithNotifier sets the sink receiving goal alerts.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// NewEngine creates an Engine. prices and rates may be nil, in which case
// current values, and conversions between distinct currencies, are unknown.
func NewEngine(ledger LedgerSource, assets AssetRepository, prices PriceProvider, rates RateProvider, opts ...Option) (*Engine, error) {
	if ledger == nil {
		return nil, errors.New("engine requires a ledger source")
	}
	if assets == nil {
		return nil, errors.New("engine requires an asset repository")
	}
	e := &Engine{
		ledger:   ledger,
		assets:   assets,
		prices:   prices,
		logger:   zerolog.Nop(),
		now:      time.Now,
		currency: DefaultReportingCurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := ValidateCurrency(e.currency); err != nil {
		return nil, fmt.Errorf("invalid reporting currency: %w", err)
	}
	e.conv = Converter{Rates: rates, Logger: e.logger}
	return e, nil
}

// ReportingCurrency returns the currency of portfolio summaries.
func (e *Engine) ReportingCurrency() string { return e.currency }

// asset resolves an asset id. Unknown assets are reported with their id as
// symbol, in the currency of their operations.
func (e *Engine) asset(ctx context.Context, assetID string) (Asset, error) {
	a, err := e.assets.GetAsset(ctx, assetID)
	if errors.Is(err, ErrNotFound) {
		e.logger.Warn().Str("asset", assetID).Msg("asset missing from repository")
		return Asset{ID: assetID, Symbol: assetID}, nil
	}
	if err != nil {
		return Asset{}, fmt.Errorf("cannot get asset %q: %w", assetID, err)
	}
	return a, nil
}

// price returns the latest price of an asset in currency, nil when it is
// unknown or cannot be converted.
func (e *Engine) price(ctx context.Context, assetID, currency string) (*Money, *time.Time) {
	if e.prices == nil {
		return nil, nil
	}
	log := e.logger.With().Str("asset", assetID).Logger()
	q, err := e.prices.LatestPrice(ctx, assetID)
	if err != nil {
		log.Warn().Err(err).Msg("price lookup failed")
		return nil, nil
	}
	if q == nil {
		log.Debug().Msg("no price available")
		return nil, nil
	}
	price, ok := e.conv.Value(ctx, q.Price, currency)
	if !ok {
		log.Warn().Str("currency", q.Price.Currency()).Str("to", currency).Msg("price cannot be converted to the asset currency")
		return nil, nil
	}
	at := q.FetchedAt
	return &price, &at
}

// Holdings returns one HoldingSummary per asset the user holds, or has closed
// with a non zero realized P&L, in the asset home currency and sorted by
// descending value.
func (e *Engine) Holdings(ctx context.Context, userID string) ([]HoldingSummary, error) {
	ops, err := e.ledger.ListOperations(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("cannot list operations of %q: %w", userID, err)
	}
	ids, groups := groupByAsset(ops)

	holdings := make([]HoldingSummary, 0, len(ids))
	for _, id := range ids {
		asset, err := e.asset(ctx, id)
		if err != nil {
			return nil, err
		}
		log := e.logger.With().Str("user", userID).Str("asset", id).Logger()

		r := ReplayOperations(asset.Currency, groups[id])
		for _, op := range r.Skipped {
			if !op.Deleted {
				log.Warn().Str("operation", op.ID).Str("currency", op.Currency()).Msg("operation not in the asset currency ignored")
			}
		}
		if r.Oversold.IsPositive() {
			log.Warn().Stringer("quantity", r.Oversold).Msg("ledger sells more than held")
		}
		if !r.Reportable() {
			continue
		}
		if asset.Currency == "" {
			asset.Currency = r.Currency
		}

		var price *Money
		var asOf *time.Time
		if !r.Closed() {
			price, asOf = e.price(ctx, id, r.Currency)
		}
		holdings = append(holdings, NewHoldingSummary(asset, r, price, asOf))
	}
	SortHoldings(holdings)
	return holdings, nil
}

// Summary returns the user's portfolio summary in the reporting currency.
func (e *Engine) Summary(ctx context.Context, userID string) (PortfolioSummary, error) {
	holdings, err := e.Holdings(ctx, userID)
	if err != nil {
		return PortfolioSummary{}, err
	}
	return e.summarize(ctx, holdings), nil
}

// summarize converts holdings into the reporting currency and sums them.
func (e *Engine) summarize(ctx context.Context, holdings []HoldingSummary) PortfolioSummary {
	converted := make([]HoldingSummary, 0, len(holdings))
	var excluded []HoldingSummary
	for _, h := range holdings {
		one, ok := e.conv.Value(ctx, M(1, h.Currency), e.currency)
		if !ok {
			e.logger.Warn().Str("asset", h.AssetID).Str("currency", h.Currency).Msg("holding excluded from summary")
			excluded = append(excluded, h)
			continue
		}
		converted = append(converted, h.scaled(one.Decimal(), e.currency))
	}
	s := Summarize(e.currency, converted)
	s.exclude(excluded...)
	return s
}

// Goals evaluates every valid goal of the user. Invalid goals are logged and
// skipped.
func (e *Engine) Goals(ctx context.Context, userID string) ([]GoalProgress, error) {
	if e.goals == nil {
		return nil, errors.New("no goal store configured")
	}
	goals, err := e.goals.ListGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cannot list goals of %q: %w", userID, err)
	}
	holdings, err := e.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.EvaluateGoals(ctx, goals, holdings), nil
}

// EvaluateGoals evaluates goals against holdings. Invalid goals are logged and
// skipped.
func (e *Engine) EvaluateGoals(ctx context.Context, goals []Goal, holdings []HoldingSummary) []GoalProgress {
	today := date.FromTime(e.now())
	res := make([]GoalProgress, 0, len(goals))
	for _, g := range goals {
		p, err := EvaluateGoal(ctx, e.conv, g, holdings, today)
		if err != nil {
			e.logger.Warn().Err(err).Str("goal", g.ID).Msg("goal skipped")
			continue
		}
		res = append(res, p)
	}
	return res
}

// ApplyAlerts records the threshold transitions of evaluated goals and notifies
// userID of every alert it newly raised. The goals in evaluated are updated in
// place with the flags actually written.
//
// A flag is written with a conditional update before its alert is sent, so
// concurrent evaluations send each alert at most once. Store failures do not
// stop the other goals and are returned joined. Notification failures are
// only logged.
func (e *Engine) ApplyAlerts(ctx context.Context, userID string, evaluated []GoalProgress) ([]Alert, error) {
	if e.goals == nil {
		return nil, errors.New("no goal store configured")
	}
	var sent []Alert
	var errs []error
	now := e.now()
	for i, p := range evaluated {
		update := Transition(p, now)
		if update.IsEmpty() {
			continue
		}
		applied, err := e.goals.UpdateGoalFlags(ctx, p.Goal.ID, update)
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot update goal %q: %w", p.Goal.ID, err))
			continue
		}
		evaluated[i].Goal, _ = ApplyFlags(p.Goal, applied)
		for _, a := range alerts(p, applied) {
			sent = append(sent, a)
			if e.notifier == nil {
				continue
			}
			if err := e.notifier.Notify(ctx, userID, a); err != nil {
				e.logger.Warn().Err(err).Str("goal", a.GoalID).Str("kind", string(a.Kind)).Msg("alert not delivered")
			}
		}
	}
	return sent, errors.Join(errs...)
}

// CheckGoals evaluates the user's goals and applies their alerts.
func (e *Engine) CheckGoals(ctx context.Context, userID string) ([]GoalProgress, []Alert, error) {
	evaluated, err := e.Goals(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	sent, err := e.ApplyAlerts(ctx, userID, evaluated)
	return evaluated, sent, err
}

// ValidateOperation checks that op can be appended to the user's ledger: it
// must be well formed, reference a known asset in its currency, and a sell
// must not exceed the quantity held at its date.
func (e *Engine) ValidateOperation(ctx context.Context, op Operation) error {
	if err := op.Check(); err != nil {
		return err
	}
	asset, err := e.assets.GetAsset(ctx, op.AssetID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w %q", ErrUnknownAsset, op.AssetID)
	}
	if err != nil {
		return fmt.Errorf("cannot get asset %q: %w", op.AssetID, err)
	}
	if asset.Currency != "" && asset.Currency != op.Currency() {
		return fmt.Errorf("%w: %s operation on %s, which is traded in %s", ErrInvalidOperation, op.Currency(), op.AssetID, asset.Currency)
	}
	if op.Type != Sell && op.Type != Split {
		return nil
	}
	existing, err := e.ledger.ListOperations(ctx, op.UserID, op.AssetID)
	if err != nil {
		return fmt.Errorf("cannot list operations of %q: %w", op.UserID, err)
	}
	return CheckOversell(op.Currency(), existing, op)
}

// CheckOversell returns ErrOversell if appending op to existing makes any sell
// exceed the quantity held at its date.
func CheckOversell(currency string, existing []Operation, op Operation) error {
	if op.Seq == 0 {
		// op is not recorded yet: it comes after the operations of its day.
		for _, o := range existing {
			op.Seq = max(op.Seq, o.Seq)
		}
		op.Seq++
	}
	before := ReplayOperations(currency, existing)
	after := ReplayOperations(currency, append(existing[:len(existing):len(existing)], op))
	if after.Oversold.GreaterThan(before.Oversold) {
		return fmt.Errorf("%w: selling %s %s, %s too many", ErrOversell, op.Quantity, op.AssetID, after.Oversold.Sub(before.Oversold))
	}
	return nil
}

// ValidateDelete checks that the operation id of the user can be cancelled:
// no sell of the same asset may exceed the quantity held once it is gone.
func (e *Engine) ValidateDelete(ctx context.Context, userID, id string) error {
	ops, err := e.ledger.ListOperations(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("cannot list operations of %q: %w", userID, err)
	}
	i := slices.IndexFunc(ops, func(o Operation) bool { return o.ID == id })
	if i < 0 {
		return fmt.Errorf("operation %q: %w", id, ErrNotFound)
	}
	target := ops[i]
	var with, without []Operation
	for _, o := range ops {
		if o.AssetID != target.AssetID {
			continue
		}
		with = append(with, o)
		if o.ID != id {
			without = append(without, o)
		}
	}
	before := ReplayOperations(target.Currency(), with)
	after := ReplayOperations(target.Currency(), without)
	if after.Oversold.GreaterThan(before.Oversold) {
		return fmt.Errorf("%w: cancelling %s leaves %s %s sold but not held", ErrOversell, id, after.Oversold.Sub(before.Oversold), target.AssetID)
	}
	return nil
}

// ValidateGoal checks that g can be saved: well formed and, for an asset goal,
// referencing a known asset.
func (e *Engine) ValidateGoal(ctx context.Context, g Goal) error {
	if err := g.Check(); err != nil {
		return err
	}
	if g.Scope != ScopeAsset {
		return nil
	}
	_, err := e.assets.GetAsset(ctx, g.AssetID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w %q: %w", ErrInvalidGoal, g.Name, fmt.Errorf("%w %q", ErrUnknownAsset, g.AssetID))
	}
	if err != nil {
		return fmt.Errorf("cannot get asset %q: %w", g.AssetID, err)
	}
	return nil
}
