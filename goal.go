package valuation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/valuation/date"
	"github.com/shopspring/decimal"
)

// GoalScope tells what a goal measures.
type GoalScope string

const (
	// ScopePortfolio goals track the whole portfolio.
	ScopePortfolio GoalScope = "PORTFOLIO"
	// ScopeAsset goals track a single asset.
	ScopeAsset GoalScope = "ASSET"
)

// ParseGoalScope parses a case insensitive goal scope.
func ParseGoalScope(s string) (GoalScope, error) {
	scope := GoalScope(strings.ToUpper(strings.TrimSpace(s)))
	switch scope {
	case ScopePortfolio, ScopeAsset:
		return scope, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidGoal, s)
	}
}

// Goal is a user defined savings target.
//
// Alert80Sent, Alert100Sent and AchievedAt are written by the engine only.
// Revision counts the times the alerts were re-armed.
type Goal struct {
	ID           string
	UserID       string
	Name         string
	Scope        GoalScope
	AssetID      string // required iff Scope is ScopeAsset
	TargetAmount Money  // its currency is the goal currency
	TargetDate   *date.Date

	AlertAt80    bool
	AlertAt100   bool
	Alert80Sent  bool
	Alert100Sent bool
	AchievedAt   *time.Time
	Revision     int64
}

// Currency returns the currency the goal is measured in.
func (g Goal) Currency() string { return g.TargetAmount.Currency() }

// Check validates the goal fields that do not need a repository lookup.
func (g Goal) Check() error {
	var errs []string
	switch g.Scope {
	case ScopePortfolio:
		if g.AssetID != "" {
			errs = append(errs, "portfolio goal must not reference an asset")
		}
	case ScopeAsset:
		if g.AssetID == "" {
			errs = append(errs, "asset goal requires an asset")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown scope %q", g.Scope))
	}
	if g.TargetAmount.IsNegative() {
		errs = append(errs, "target amount must not be negative")
	}
	if err := ValidateCurrency(g.Currency()); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidGoal, g.Name, strings.Join(errs, "; "))
	}
	return nil
}

// GoalEdit holds the user editable fields of a goal. Nil fields are unchanged.
type GoalEdit struct {
	Name            *string
	Scope           *GoalScope
	AssetID         *string
	TargetAmount    *Money
	TargetDate      *date.Date
	ClearTargetDate bool
	AlertAt80       *bool
	AlertAt100      *bool
}

// Apply returns a copy of g with the edit applied. Changing the target amount,
// scope, asset or currency re-arms the alerts and clears AchievedAt.
func (g Goal) Apply(e GoalEdit) Goal {
	rearm := false
	if e.Name != nil {
		g.Name = *e.Name
	}
	if e.Scope != nil && *e.Scope != g.Scope {
		g.Scope = *e.Scope
		rearm = true
	}
	if e.AssetID != nil && *e.AssetID != g.AssetID {
		g.AssetID = *e.AssetID
		rearm = true
	}
	if e.TargetAmount != nil && !e.TargetAmount.Equal(g.TargetAmount) {
		// Equal compares both the amount and the currency.
		g.TargetAmount = *e.TargetAmount
		rearm = true
	}
	if e.ClearTargetDate {
		g.TargetDate = nil
	} else if e.TargetDate != nil {
		d := *e.TargetDate
		g.TargetDate = &d
	}
	if e.AlertAt80 != nil {
		g.AlertAt80 = *e.AlertAt80
	}
	if e.AlertAt100 != nil {
		g.AlertAt100 = *e.AlertAt100
	}
	if rearm {
		g.Rearm()
	}
	return g
}

// Rearm resets the one-shot alert flags and the achievement date, and bumps
// the revision so that flag updates computed before are dropped.
func (g *Goal) Rearm() {
	g.Alert80Sent = false
	g.Alert100Sent = false
	g.AchievedAt = nil
	g.Revision++
}

// Armed returns a copy of g as a new goal: alerts armed, not achieved, at
// revision 0.
func (g Goal) Armed() Goal {
	g.Alert80Sent = false
	g.Alert100Sent = false
	g.AchievedAt = nil
	g.Revision = 0
	return g
}

// GoalProgress is the evaluation of a goal against the current holdings.
// Nil values are unknown.
type GoalProgress struct {
	Goal            Goal
	CurrentAmount   *Money
	ProgressPercent *Percent
	Remaining       *Money // amount left to reach the target, zero once reached
	DaysLeft        *int   // days until the target date, negative when past
}

var maxProgress = decimal.NewFromInt(1000)

// progress returns min(current/target*100, 1000), nil when it cannot be computed.
func progress(current *Money, target Money) *Percent {
	if current == nil || !target.IsPositive() {
		return nil
	}
	p := percentOf(*current, target)
	if p.value.GreaterThan(maxProgress) {
		p.value = maxProgress
	}
	return &p
}

// holdingAmount is the amount a holding contributes to a goal: its current value,
// or what was invested in it when the value is unknown.
func holdingAmount(h HoldingSummary) Money {
	if h.CurrentValue != nil {
		return *h.CurrentValue
	}
	return h.TotalInvested
}

// EvaluateGoal computes a goal's current amount in the goal currency, and the
// derived progress.
//
// Holdings are expected in their home currency. today is used for DaysLeft.
func EvaluateGoal(ctx context.Context, conv Converter, goal Goal, holdings []HoldingSummary, today date.Date) (GoalProgress, error) {
	if err := goal.Check(); err != nil {
		return GoalProgress{Goal: goal}, err
	}
	p := GoalProgress{Goal: goal}

	switch goal.Scope {
	case ScopePortfolio:
		total := M(0, goal.Currency())
		known := true
		for _, h := range holdings {
			amount := holdingAmount(h)
			if amount.IsZero() {
				continue // zero in any currency
			}
			converted, ok := conv.Value(ctx, amount, goal.Currency())
			if !ok {
				known = false
				break
			}
			total = total.Add(converted)
		}
		if known {
			p.CurrentAmount = &total
		}

	case ScopeAsset:
		for _, h := range holdings {
			if h.AssetID != goal.AssetID || !h.Quantity.IsPositive() {
				continue
			}
			if converted, ok := conv.Value(ctx, holdingAmount(h), goal.Currency()); ok {
				p.CurrentAmount = &converted
			}
			break
		}
	}

	p.ProgressPercent = progress(p.CurrentAmount, goal.TargetAmount)
	if p.CurrentAmount != nil {
		remaining := goal.TargetAmount.Sub(*p.CurrentAmount)
		if remaining.IsNegative() {
			remaining = M(0, goal.Currency())
		}
		p.Remaining = &remaining
	}
	if goal.TargetDate != nil {
		days := today.DaysUntil(*goal.TargetDate)
		p.DaysLeft = &days
	}
	return p, nil
}
