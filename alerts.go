package valuation

import "time"

// AlertKind identifies a goal threshold notification.
type AlertKind string

const (
	AlertGoal80  AlertKind = "GOAL_80_PERCENT"
	AlertGoal100 AlertKind = "GOAL_100_PERCENT"
)

var (
	threshold80  = P(80)
	threshold100 = P(100)
)

// Alert is the payload of a goal threshold notification.
type Alert struct {
	Kind          AlertKind
	GoalID        string
	GoalName      string
	Progress      Percent
	CurrentAmount Money
	TargetAmount  Money
}

// FlagUpdate is a set of false→true transitions on a goal's engine owned
// fields. Unset fields mean "leave as is".
//
// Revision is the revision of the evaluated goal: the update is dropped if the
// goal has been re-armed since.
type FlagUpdate struct {
	Alert80Sent  bool
	Alert100Sent bool
	AchievedAt   *time.Time
	Revision     int64
}

// IsEmpty reports whether the update changes nothing.
func (u FlagUpdate) IsEmpty() bool {
	return !u.Alert80Sent && !u.Alert100Sent && u.AchievedAt == nil
}

// Transition returns the transitions a goal evaluation triggers: an alert flag
// is raised when its alert is enabled, not yet sent, and the threshold is
// reached; AchievedAt is set at now the first time the goal reaches 100%.
// Unknown progress triggers nothing.
func Transition(p GoalProgress, now time.Time) FlagUpdate {
	g := p.Goal
	u := FlagUpdate{Revision: g.Revision}
	if p.ProgressPercent == nil {
		return u
	}
	pct := *p.ProgressPercent
	if g.AlertAt80 && !g.Alert80Sent && pct.GreaterThanOrEqual(threshold80) {
		u.Alert80Sent = true
	}
	if g.AlertAt100 && !g.Alert100Sent && pct.GreaterThanOrEqual(threshold100) {
		u.Alert100Sent = true
	}
	if g.AchievedAt == nil && pct.GreaterThanOrEqual(threshold100) {
		at := now
		u.AchievedAt = &at
	}
	return u
}

// ApplyFlags applies a conditional update to g: flags are only raised, and
// AchievedAt is only set when it is nil. Nothing is applied if u was computed
// for another revision of g. It returns the updated goal and the part of u
// that actually changed it.
func ApplyFlags(g Goal, u FlagUpdate) (Goal, FlagUpdate) {
	applied := FlagUpdate{Revision: g.Revision}
	if u.Revision != g.Revision {
		return g, applied
	}
	if u.Alert80Sent && !g.Alert80Sent {
		g.Alert80Sent = true
		applied.Alert80Sent = true
	}
	if u.Alert100Sent && !g.Alert100Sent {
		g.Alert100Sent = true
		applied.Alert100Sent = true
	}
	if u.AchievedAt != nil && g.AchievedAt == nil {
		at := *u.AchievedAt
		g.AchievedAt = &at
		applied.AchievedAt = &at
	}
	return g, applied
}

// alerts returns the notifications matching the applied transitions.
func alerts(p GoalProgress, applied FlagUpdate) []Alert {
	var res []Alert
	mk := func(kind AlertKind) Alert {
		a := Alert{
			Kind:         kind,
			GoalID:       p.Goal.ID,
			GoalName:     p.Goal.Name,
			TargetAmount: p.Goal.TargetAmount,
		}
		if p.ProgressPercent != nil {
			a.Progress = *p.ProgressPercent
		}
		if p.CurrentAmount != nil {
			a.CurrentAmount = *p.CurrentAmount
		}
		return a
	}
	if applied.Alert80Sent {
		res = append(res, mk(AlertGoal80))
	}
	if applied.Alert100Sent {
		res = append(res, mk(AlertGoal100))
	}
	return res
}
