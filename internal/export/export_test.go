package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"path/filepath"
	"testing"

	"github.com/talgya/climate-chain/internal/climate"
	"github.com/talgya/climate-chain/internal/engine"
)

func testRecord(round int) engine.RoundRecord {
	return engine.RoundRecord{
		Round: round,
		Agents: []engine.AgentRecord{
			{Agent: 1, Name: "farm-001", Type: "farm", Role: "producer", Money: 40},
		},
		Climate: []climate.Event{
			{Round: round, Rule: "drought", Agent: 1, AgentName: "farm-001",
				Continent: "Asia", Productivity: 0.55, Overhead: 1},
		},
		Events: []engine.Event{
			{Round: round, Description: "farm-001 produced nothing", Category: "production"},
		},
		Stats: engine.SimStats{Round: round, Agents: 10, TotalMoney: 620.25, Underfed: round},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rounds.jsonl.zst")

	a, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for round := 1; round <= 3; round++ {
		if err := a.Write(testRecord(round)); err != nil {
			t.Fatalf("write round %d: %v", round, err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	got := recs[1]
	if got.Round != 2 || got.Stats.Underfed != 2 {
		t.Fatalf("record 2 did not survive the roundtrip: %+v", got)
	}
	if math.Abs(got.Stats.TotalMoney-620.25) > 1e-9 {
		t.Fatalf("total money = %v, want 620.25", got.Stats.TotalMoney)
	}
	if len(got.Agents) != 1 || got.Agents[0].Name != "farm-001" {
		t.Fatalf("agents did not survive the roundtrip: %+v", got.Agents)
	}
	if len(got.Climate) != 1 || got.Climate[0].Rule != "drought" {
		t.Fatalf("climate events did not survive the roundtrip: %+v", got.Climate)
	}
}

func TestArchiveAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rounds.jsonl.zst")

	a, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if err := a.Write(testRecord(1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	a, err = OpenArchive(path)
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}
	if err := a.Write(testRecord(2)); err != nil {
		t.Fatalf("write after reopen: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(recs) != 2 || recs[0].Round != 1 || recs[1].Round != 2 {
		t.Fatalf("got %d records %+v, want rounds 1 and 2", len(recs), recs)
	}
}

func TestWriteStatsCSV(t *testing.T) {
	hist := []engine.SimStats{
		{Round: 1, Agents: 10, TotalMoney: 620, Trades: 9, Underfed: 1},
		{Round: 2, Agents: 10, TotalMoney: 620, Trades: 11, Underfed: 0},
	}

	var buf bytes.Buffer
	if err := WriteStatsCSV(&buf, hist); err != nil {
		t.Fatalf("write stats csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "round" || rows[0][len(rows[0])-1] != "stressed" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][4] != "9" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][2] != "620.000000" {
		t.Fatalf("total_money cell = %q", rows[2][2])
	}
}

func TestWriteEventsCSV(t *testing.T) {
	events := []engine.Event{
		{Round: 1, Description: `household-003 consumed 0.50 of the 0.80 survival minimum`, Category: "consumption"},
		{Round: 2, Description: "farm-001 borrowed 1.25 buying labor", Category: "debt"},
	}

	var buf bytes.Buffer
	if err := WriteEventsCSV(&buf, events); err != nil {
		t.Fatalf("write events csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[2][1] != "debt" || rows[2][0] != "2" {
		t.Fatalf("row 2 = %v", rows[2])
	}
}

func TestWriteClimateCSV(t *testing.T) {
	events := []climate.Event{
		{Round: 3, Rule: "flood", Agent: 7, AgentName: "mill-002",
			Continent: "Europe", Productivity: 0.7, Overhead: 1.4, Injected: true},
	}

	var buf bytes.Buffer
	if err := WriteClimateCSV(&buf, events); err != nil {
		t.Fatalf("write climate csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	row := rows[1]
	if row[0] != "3" || row[1] != "flood" || row[2] != "7" || row[7] != "true" {
		t.Fatalf("climate row = %v", row)
	}
}
