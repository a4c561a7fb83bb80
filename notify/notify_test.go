package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/etnz/valuation"
	"github.com/rs/zerolog"
)

var alert = valuation.Alert{
	Kind:          valuation.AlertGoal80,
	GoalID:        "g1",
	GoalName:      "house",
	Progress:      valuation.P(85),
	CurrentAmount: valuation.M(850, "EUR"),
	TargetAmount:  valuation.M(1000, "EUR"),
}

type failing struct{}

func (failing) Notify(context.Context, string, valuation.Alert) error { return errors.New("boom") }

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLog(zerolog.New(&buf))
	if err := sink.Notify(context.Background(), "u1", alert); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"user":"u1"`, `"kind":"GOAL_80_PERCENT"`, `"goal":"g1"`, `"progress":"85.00%"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Notify() logged %s, want it to contain %s", out, want)
		}
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name  string
		alert valuation.Alert
		want  []string
	}{
		{"80", alert, []string{`"house"`, "85.00%"}},
		{"100", valuation.Alert{Kind: valuation.AlertGoal100, GoalID: "g2", Progress: valuation.P(100)}, []string{`"g2"`, "reached"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Message(tt.alert)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Message() = %q, want it to contain %q", got, w)
				}
			}
		})
	}
}

func TestMulti(t *testing.T) {
	var rec Recorder
	var buf bytes.Buffer
	m := Multi{failing{}, &rec, NewWriter(&buf)}
	err := m.Notify(context.Background(), "u1", alert)
	if err == nil || err.Error() != "boom" {
		t.Errorf("Notify() error = %v, want boom", err)
	}
	got := rec.Deliveries()
	if len(got) != 1 || got[0].UserID != "u1" || got[0].Alert.GoalID != "g1" {
		t.Errorf("Deliveries() = %+v, want the alert despite the failing sink", got)
	}
	if !strings.HasSuffix(buf.String(), "\n") || !strings.Contains(buf.String(), "house") {
		t.Errorf("Writer printed %q", buf.String())
	}
}
