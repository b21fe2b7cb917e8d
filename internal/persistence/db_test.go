package persistence

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/talgya/climate-chain/internal/climate"
	"github.com/talgya/climate-chain/internal/economy"
	"github.com/talgya/climate-chain/internal/engine"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "chain.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(round int) engine.RoundRecord {
	return engine.RoundRecord{
		Round: round,
		Stats: engine.SimStats{
			Round: round, Agents: 10, TotalMoney: 620, TotalDebt: 3.5,
			Trades: 9, TradeVolume: 55, TradeValue: 70, Produced: 80,
			Consumed: 5, DebtIssued: 3.5, Overhead: 4, AvgUtility: 0.8,
			Underfed: 1, Stressed: 2,
		},
		Events: []engine.Event{
			{Round: round, Description: "household-003 borrowed 1.00 buying bread", Category: "debt"},
		},
		Climate: []climate.Event{
			{Round: round, Rule: "drought", Agent: 3, AgentName: "farm-001",
				Continent: "Asia", Productivity: 0.55, Overhead: 1, Injected: true},
		},
	}
}

func TestRunLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.BeginRun("run-1", "baseline", 42, 50); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].Seed != 42 {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].FinishedAt != nil {
		t.Fatalf("unfinished run has finished_at %q", *runs[0].FinishedAt)
	}

	if err := db.FinishRun("run-1"); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	runs, _ = db.ListRuns()
	if runs[0].FinishedAt == nil {
		t.Fatalf("finished run missing finished_at")
	}
}

func TestSaveRoundRoundTrip(t *testing.T) {
	db := testDB(t)
	if err := db.BeginRun("run-1", "baseline", 42, 50); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	for round := 1; round <= 3; round++ {
		if err := db.SaveRound("run-1", testRecord(round)); err != nil {
			t.Fatalf("save round %d: %v", round, err)
		}
	}

	hist, err := db.StatsHistory("run-1")
	if err != nil {
		t.Fatalf("stats history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("got %d stat rows, want 3", len(hist))
	}
	if hist[0].Round != 1 || hist[2].Round != 3 {
		t.Fatalf("history out of order: %d..%d", hist[0].Round, hist[2].Round)
	}
	if math.Abs(hist[0].TotalDebt-3.5) > 1e-9 || hist[0].Underfed != 1 {
		t.Fatalf("stats did not survive the roundtrip: %+v", hist[0])
	}

	clim, err := db.ClimateHistory("run-1")
	if err != nil {
		t.Fatalf("climate history: %v", err)
	}
	if len(clim) != 3 {
		t.Fatalf("got %d climate events, want 3", len(clim))
	}
	ev := clim[0]
	if ev.Rule != "drought" || ev.Agent != 3 || !ev.Injected || ev.Continent != "Asia" {
		t.Fatalf("climate event did not survive the roundtrip: %+v", ev)
	}

	events, err := db.RecentEvents("run-1", 2)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 || events[0].Round != 3 {
		t.Fatalf("recent events = %+v, want newest first", events)
	}
}

func TestSaveRoundIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.BeginRun("run-1", "baseline", 42, 50); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	// A manual snapshot can land on a round the autosave already wrote.
	for i := 0; i < 2; i++ {
		if err := db.SaveRound("run-1", testRecord(4)); err != nil {
			t.Fatalf("save round attempt %d: %v", i+1, err)
		}
	}

	hist, err := db.StatsHistory("run-1")
	if err != nil {
		t.Fatalf("stats history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("got %d stat rows after double save, want 1", len(hist))
	}
	events, err := db.RecentEvents("run-1", 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after double save, want 1", len(events))
	}
	clim, err := db.ClimateHistory("run-1")
	if err != nil {
		t.Fatalf("climate history: %v", err)
	}
	if len(clim) != 1 {
		t.Fatalf("got %d climate events after double save, want 1", len(clim))
	}
}

func TestSaveAgentsReplaces(t *testing.T) {
	db := testDB(t)
	if err := db.BeginRun("run-1", "baseline", 42, 50); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	recs := []engine.AgentRecord{{
		Agent: 1, Name: "farm-001", Type: "farm", Role: "producer",
		Continent: "Asia", Money: 40,
		Inventory: map[economy.Good]float64{"grain": 2},
	}}
	if err := db.SaveAgents("run-1", recs); err != nil {
		t.Fatalf("save agents: %v", err)
	}

	recs[0].Money = 55
	if err := db.SaveAgents("run-1", recs); err != nil {
		t.Fatalf("save agents again: %v", err)
	}

	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM agents WHERE run_id = ?", "run-1"); err != nil {
		t.Fatalf("count agents: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d agent rows after replace, want 1", n)
	}
	var money float64
	if err := db.conn.Get(&money, "SELECT money FROM agents WHERE run_id = ? AND id = 1", "run-1"); err != nil {
		t.Fatalf("read agent: %v", err)
	}
	if money != 55 {
		t.Fatalf("agent money = %v, want the replaced 55", money)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := testDB(t)
	if err := db.SaveMeta("run-1", "last_round", "7"); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if err := db.SaveMeta("run-1", "last_round", "8"); err != nil {
		t.Fatalf("overwrite meta: %v", err)
	}
	got, err := db.GetMeta("run-1", "last_round")
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if got != "8" {
		t.Fatalf("meta = %q, want 8", got)
	}
}

func TestSaveRunState(t *testing.T) {
	db := testDB(t)
	if err := db.BeginRun("run-1", "baseline", 42, 50); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	rec := testRecord(1)
	agentRecs := []engine.AgentRecord{{Agent: 1, Name: "farm-001", Type: "farm", Role: "producer", Continent: "Asia"}}
	if err := db.SaveRunState("run-1", rec, agentRecs); err != nil {
		t.Fatalf("save run state: %v", err)
	}

	if got, _ := db.GetMeta("run-1", "last_round"); got != "1" {
		t.Fatalf("last_round = %q, want 1", got)
	}
	hist, _ := db.StatsHistory("run-1")
	if len(hist) != 1 {
		t.Fatalf("got %d stat rows, want 1", len(hist))
	}
}
