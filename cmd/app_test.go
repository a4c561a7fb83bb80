package cmd

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/config"
	"github.com/etnz/valuation/store"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// setup points the global flags to a fresh configuration using the given
// backend, and returns the storage configuration.
func setup(t *testing.T, backend string) config.StorageConfig {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf("reporting_currency = \"EUR\"\nuser = \"u1\"\n[storage]\nbackend = %q\npath = %q\n[logging]\nlevel = \"error\"\n", backend, dir)
	path := filepath.Join(dir, "pve.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	oldConfig, oldPlain := *configFile, *plainFlag
	*configFile, *plainFlag = path, true
	t.Cleanup(func() { *configFile, *plainFlag = oldConfig, oldPlain })
	return config.StorageConfig{Backend: backend, Path: dir}
}

// execute runs c with args, as the commander would.
func execute(t *testing.T, c subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("%s %v: %v", c.Name(), args, err)
	}
	return c.Execute(context.Background(), f)
}

type fakePrices map[string]valuation.Quote

func (p fakePrices) LatestPrice(_ context.Context, id string) (*valuation.Quote, error) {
	q, ok := p[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

type fakeRates map[string]string

func (r fakeRates) Rate(_ context.Context, from, to string) (*decimal.Decimal, error) {
	v, ok := r[from+to]
	if !ok {
		return nil, nil
	}
	d := decimal.RequireFromString(v)
	return &d, nil
}

func TestCommands(t *testing.T) {
	for _, backend := range []string{config.BackendJSONL, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			storage := setup(t, backend)
			ctx := context.Background()

			steps := []struct {
				cmd  subcommands.Command
				args []string
				want subcommands.ExitStatus
			}{
				{&assetCmd{}, []string{"-id", "AAPL", "-s", "AAPL.US", "-c", "usd"}, subcommands.ExitSuccess},
				{&assetCmd{}, []string{"-id", "BAD", "-c", "XYZ"}, subcommands.ExitFailure},
				{&addCmd{}, []string{"-t", "buy", "-a", "AAPL", "-q", "10", "-p", "100", "-d", "2025-01-02"}, subcommands.ExitSuccess},
				{&addCmd{}, []string{"-t", "sell", "-a", "AAPL", "-q", "20", "-p", "120", "-d", "2025-02-02"}, subcommands.ExitFailure},
				{&addCmd{}, []string{"-t", "buy", "-a", "MSFT", "-q", "1", "-p", "300"}, subcommands.ExitFailure},
				{&addCmd{}, []string{"-a", "AAPL"}, subcommands.ExitUsageError},
				{&goalCmd{}, []string{"add", "-name", "house", "-target", "1000", "-alert80"}, subcommands.ExitSuccess},
				{&goalCmd{}, []string{"add", "-name", "bad", "-target", "1000", "-a", "MSFT"}, subcommands.ExitFailure},
				{&goalCmd{}, []string{"rename"}, subcommands.ExitUsageError},
			}
			for _, s := range steps {
				if got := execute(t, s.cmd, s.args...); got != s.want {
					t.Errorf("%s %v = %v, want %v", s.cmd.Name(), s.args, got, s.want)
				}
			}

			a, err := openApp(ctx)
			if err != nil {
				t.Fatalf("openApp() error = %v", err)
			}
			prices := fakePrices{"AAPL": {Price: valuation.M(120, "USD")}}
			if err := fetch(ctx, a, prices, fakeRates{"USDEUR": "0.9"}); err != nil {
				t.Fatalf("fetch() error = %v", err)
			}
			if err := a.close(); err != nil {
				t.Fatalf("close() error = %v", err)
			}

			for _, c := range []subcommands.Command{&holdingsCmd{}, &summaryCmd{}, &goalsCmd{}, &checkCmd{}} {
				if got := execute(t, c); got != subcommands.ExitSuccess {
					t.Errorf("%s = %v, want success", c.Name(), got)
				}
			}

			a, err = openApp(ctx)
			if err != nil {
				t.Fatalf("openApp() error = %v", err)
			}
			defer a.close()
			ops, _ := a.backend.ListOperations(ctx, "u1", "")
			if len(ops) != 1 || !ops[0].TotalAmount.Equal(valuation.M(1000, "USD")) {
				t.Errorf("operations = %+v, want the AAPL buy", ops)
			}
			goals, _ := a.backend.ListGoals(ctx, "u1")
			if len(goals) != 1 {
				t.Fatalf("goals = %+v, want one goal", goals)
			}
			// 10 AAPL at 120 USD = 1080 EUR: reached.
			if g := goals[0]; !g.AlertAt80 || !g.Alert80Sent || g.AchievedAt == nil || !g.TargetAmount.Equal(valuation.M(1000, "EUR")) {
				t.Errorf("goal = %+v, want the 80%% alert sent and the goal achieved", g)
			}

			name := "bigger house"
			if got := execute(t, &goalCmd{}, "edit", "-id", goals[0].ID, "-name", name, "-target", "5000"); got != subcommands.ExitSuccess {
				t.Fatalf("goal edit = %v, want success", got)
			}
			if got := execute(t, &deleteCmd{}, "-id", ops[0].ID); got != subcommands.ExitSuccess {
				t.Errorf("delete = %v, want success", got)
			}
			if backend == config.BackendJSONL {
				// reload the saved ledger.
				s, err := store.Open(storage.File())
				if err != nil {
					t.Fatalf("store.Open() error = %v", err)
				}
				a.backend = &jsonlBackend{Store: s, path: storage.File()}
			}
			goals, _ = a.backend.ListGoals(ctx, "u1")
			if len(goals) != 1 || goals[0].Name != name || goals[0].Alert80Sent {
				t.Errorf("goal after edit = %+v, want renamed and re-armed", goals)
			}
			if ops, _ := a.backend.ListOperations(ctx, "u1", ""); len(ops) != 0 {
				t.Errorf("operations after delete = %+v, want none", ops)
			}
		})
	}
}

func TestGoalCmd_Edit(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
		check   func(t *testing.T, e valuation.GoalEdit)
	}{
		{[]string{"-name", "car"}, false, func(t *testing.T, e valuation.GoalEdit) {
			if e.Name == nil || *e.Name != "car" || e.TargetAmount != nil || e.Scope != nil {
				t.Errorf("edit = %+v, want only the name", e)
			}
		}},
		{[]string{"-target", "10", "-c", "usd"}, false, func(t *testing.T, e valuation.GoalEdit) {
			if e.TargetAmount == nil || !e.TargetAmount.Equal(valuation.M(10, "USD")) {
				t.Errorf("TargetAmount = %v, want 10 USD", e.TargetAmount)
			}
		}},
		{[]string{"-target", "10"}, false, func(t *testing.T, e valuation.GoalEdit) {
			if e.TargetAmount == nil || e.TargetAmount.Currency() != "EUR" {
				t.Errorf("TargetAmount = %v, want EUR", e.TargetAmount)
			}
		}},
		{[]string{"-a", "AAPL"}, false, func(t *testing.T, e valuation.GoalEdit) {
			if e.Scope == nil || *e.Scope != valuation.ScopeAsset || *e.AssetID != "AAPL" {
				t.Errorf("edit = %+v, want an asset goal on AAPL", e)
			}
		}},
		{[]string{"-date", "none", "-alert100=false"}, false, func(t *testing.T, e valuation.GoalEdit) {
			if !e.ClearTargetDate || e.AlertAt100 == nil || *e.AlertAt100 {
				t.Errorf("edit = %+v, want the date cleared and the 100%% alert off", e)
			}
		}},
		{[]string{"-c", "USD"}, true, nil},
		{[]string{"-target", "ten"}, true, nil},
		{[]string{"-scope", "world"}, true, nil},
		{[]string{"-date", "tomorrow"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			c := &goalCmd{}
			f := flag.NewFlagSet("goal", flag.ContinueOnError)
			c.SetFlags(f)
			if err := f.Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			e, err := c.edit(f, "EUR")
			if (err != nil) != tt.wantErr {
				t.Fatalf("edit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, e)
			}
		})
	}
}

func TestCompletion(t *testing.T) {
	c := Completion()
	got := strings.Join(slices.Sorted(maps.Keys(c.Sub)), " ")
	if want := "add asset check delete export fetch goal goals holdings import summary topic"; got != want {
		t.Errorf("subcommands = %q, want %q", got, want)
	}
	if _, ok := c.Sub["add"].Flags["fees"]; !ok {
		t.Errorf("add flags = %v, want -fees", c.Sub["add"].Flags)
	}
	if _, ok := c.Flags["config"]; !ok {
		t.Errorf("global flags = %v, want -config", c.Flags)
	}
}

func TestExportImport(t *testing.T) {
	source := setup(t, config.BackendJSONL)
	ctx := context.Background()
	for _, args := range [][]string{
		{"-id", "CW8", "-c", "EUR", "-t", "ETF"},
		{"-id", "AAPL", "-c", "USD"},
	} {
		if got := execute(t, &assetCmd{}, args...); got != subcommands.ExitSuccess {
			t.Fatalf("asset %v = %v", args, got)
		}
	}
	for _, args := range [][]string{
		{"-id", "b1", "-t", "buy", "-a", "CW8", "-q", "10", "-p", "100", "-fees", "5", "-d", "2025-01-02"},
		{"-t", "sell", "-a", "CW8", "-q", "4", "-p", "120", "-fees", "2", "-d", "2025-02-02"},
		{"-t", "buy", "-a", "AAPL", "-q", "1", "-p", "200", "-d", "2025-03-02"},
	} {
		if got := execute(t, &addCmd{}, args...); got != subcommands.ExitSuccess {
			t.Fatalf("add %v = %v", args, got)
		}
	}
	// the sell depends on the first buy
	if got := execute(t, &deleteCmd{}, "-id", "b1"); got != subcommands.ExitFailure {
		t.Fatalf("delete b1 = %v, want failure", got)
	}
	if got := execute(t, &goalCmd{}, "add", "-id", "house", "-name", "house", "-target", "1000"); got != subcommands.ExitSuccess {
		t.Fatalf("goal add = %v", got)
	}
	reached := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	src, err := OpenBackend(ctx, source)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.UpdateGoalFlags(ctx, "house", valuation.FlagUpdate{Alert80Sent: true, AchievedAt: &reached}); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "export.jsonl")
	if got := execute(t, &exportCmd{}, "-o", out); got != subcommands.ExitSuccess {
		t.Fatalf("export = %v", got)
	}

	storage := setup(t, config.BackendSQLite)
	if got := execute(t, &importCmd{}, "-i", out); got != subcommands.ExitSuccess {
		t.Fatalf("import = %v", got)
	}
	b, err := OpenBackend(ctx, storage)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	e, err := valuation.NewEngine(b, b, b, b, valuation.WithReportingCurrency("EUR"))
	if err != nil {
		t.Fatal(err)
	}
	holdings, err := e.Holdings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 2 {
		t.Fatalf("holdings = %+v, want CW8 and AAPL", holdings)
	}
	for _, h := range holdings {
		if h.AssetID == "CW8" && (!h.Quantity.Equal(valuation.Q(6)) || !h.RealizedPnL.Equal(valuation.M(76, "EUR"))) {
			t.Errorf("CW8 = %+v, want 6 units and 76 EUR realized", h)
		}
	}
	goals, _ := b.ListGoals(ctx, "u1")
	if len(goals) != 1 || goals[0].ID != "house" {
		t.Fatalf("goals = %+v, want the house goal", goals)
	}
	if g := goals[0]; !g.Alert80Sent || g.Alert100Sent || g.AchievedAt == nil || !g.AchievedAt.Equal(reached) {
		t.Errorf("house = %+v, want the alert flags and achievement date kept", g)
	}

	// importing twice fails on the existing ids.
	if got := execute(t, &importCmd{}, "-i", out); got != subcommands.ExitFailure {
		t.Errorf("second import = %v, want failure", got)
	}
}
