// Package notify provides valuation.Notifier implementations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/etnz/valuation"
	"github.com/rs/zerolog"
)

// Log writes alerts to a structured logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a sink logging alerts at info level.
func NewLog(logger zerolog.Logger) *Log { return &Log{logger: logger} }

// Notify implements valuation.Notifier.
func (l *Log) Notify(_ context.Context, userID string, alert valuation.Alert) error {
	l.logger.Info().
		Str("user", userID).
		Str("kind", string(alert.Kind)).
		Str("goal", alert.GoalID).
		Str("name", alert.GoalName).
		Str("progress", alert.Progress.String()).
		Str("current", alert.CurrentAmount.String()).
		Str("target", alert.TargetAmount.String()).
		Msg("goal alert")
	return nil
}

// Writer prints one human readable line per alert.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a sink printing to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Notify implements valuation.Notifier.
func (w *Writer) Notify(_ context.Context, _ string, alert valuation.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.w, Message(alert))
	return err
}

// Message formats an alert for humans.
func Message(alert valuation.Alert) string {
	name := alert.GoalName
	if name == "" {
		name = alert.GoalID
	}
	switch alert.Kind {
	case valuation.AlertGoal100:
		return fmt.Sprintf("Goal %q reached: %s of %s (%s)", name, alert.CurrentAmount, alert.TargetAmount, alert.Progress)
	case valuation.AlertGoal80:
		return fmt.Sprintf("Goal %q is at %s: %s of %s", name, alert.Progress, alert.CurrentAmount, alert.TargetAmount)
	default:
		return fmt.Sprintf("Goal %q: %s", name, alert.Kind)
	}
}

// Delivery is an alert received by a Recorder.
type Delivery struct {
	UserID string
	Alert  valuation.Alert
}

// Recorder keeps every alert in memory. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// Notify implements valuation.Notifier.
func (r *Recorder) Notify(_ context.Context, userID string, alert valuation.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{UserID: userID, Alert: alert})
	return nil
}

// Deliveries returns a copy of the recorded alerts, in delivery order.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Multi delivers every alert to all its sinks, even when some fail.
type Multi []valuation.Notifier

// Notify implements valuation.Notifier. It returns the joined sink errors.
func (m Multi) Notify(ctx context.Context, userID string, alert valuation.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ valuation.Notifier = (*Log)(nil)
	_ valuation.Notifier = (*Writer)(nil)
	_ valuation.Notifier = (*Recorder)(nil)
	_ valuation.Notifier = Multi(nil)
)
