// Package persistence provides SQLite-based run storage: one row per run,
// per-round statistics and climate events appended as the run progresses,
// and a full-replace snapshot of the latest agent state.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/climate"
	"github.com/talgya/climate-chain/internal/engine"
	"github.com/talgya/climate-chain/internal/geo"
)

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE TABLE IF NOT EXISTS round_stats (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		total_money REAL NOT NULL,
		total_debt REAL NOT NULL,
		trades INTEGER NOT NULL,
		trade_volume REAL NOT NULL,
		trade_value REAL NOT NULL,
		produced REAL NOT NULL,
		consumed REAL NOT NULL,
		debt_issued REAL NOT NULL,
		overhead REAL NOT NULL,
		avg_utility REAL NOT NULL,
		underfed INTEGER NOT NULL,
		stressed INTEGER NOT NULL,
		PRIMARY KEY (run_id, round)
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		role TEXT NOT NULL,
		continent TEXT NOT NULL,
		money REAL NOT NULL,
		debt REAL NOT NULL,
		produced REAL NOT NULL,
		price REAL NOT NULL,
		input_cost REAL NOT NULL,
		min_target REAL NOT NULL,
		consumed REAL NOT NULL,
		utility REAL NOT NULL,
		productivity REAL NOT NULL,
		overhead REAL NOT NULL,
		phase TEXT NOT NULL,
		inventory_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS climate_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		rule TEXT NOT NULL,
		agent INTEGER NOT NULL,
		agent_name TEXT NOT NULL,
		continent TEXT NOT NULL,
		productivity REAL NOT NULL,
		overhead REAL NOT NULL,
		injected INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_round_stats_run ON round_stats(run_id, round);
	CREATE INDEX IF NOT EXISTS idx_events_run_round ON events(run_id, round);
	CREATE INDEX IF NOT EXISTS idx_climate_run_round ON climate_events(run_id, round);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID         string  `db:"id" json:"id"`
	Scenario   string  `db:"scenario" json:"scenario"`
	Seed       int64   `db:"seed" json:"seed"`
	Rounds     int     `db:"rounds" json:"rounds"`
	StartedAt  string  `db:"started_at" json:"started_at"`
	FinishedAt *string `db:"finished_at" json:"finished_at,omitempty"`
}

// BeginRun registers a new run.
func (db *DB) BeginRun(id, scenario string, seed int64, rounds int) error {
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, scenario, seed, rounds, started_at) VALUES (?, ?, ?, ?, ?)",
		id, scenario, seed, rounds, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stamps a run as completed.
func (db *DB) FinishRun(id string) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// SaveRound appends one round's statistics, events, and climate events.
// Saving the same round again replaces it, so a manual snapshot landing on
// an autosaved round is harmless.
func (db *DB) SaveRound(runID string, rec engine.RoundRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	st := rec.Stats
	_, err = tx.Exec(`INSERT OR REPLACE INTO round_stats
		(run_id, round, total_money, total_debt, trades, trade_volume, trade_value,
		 produced, consumed, debt_issued, overhead, avg_utility, underfed, stressed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Round, st.TotalMoney, st.TotalDebt, st.Trades, st.TradeVolume,
		st.TradeValue, st.Produced, st.Consumed, st.DebtIssued, st.Overhead,
		st.AvgUtility, st.Underfed, st.Stressed,
	)
	if err != nil {
		return fmt.Errorf("insert round %d: %w", rec.Round, err)
	}

	if _, err := tx.Exec("DELETE FROM events WHERE run_id = ? AND round = ?", runID, rec.Round); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM climate_events WHERE run_id = ? AND round = ?", runID, rec.Round); err != nil {
		return err
	}

	for _, e := range rec.Events {
		_, err := tx.Exec(
			"INSERT INTO events (run_id, round, description, category) VALUES (?, ?, ?, ?)",
			runID, e.Round, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	for _, ev := range rec.Climate {
		injected := 0
		if ev.Injected {
			injected = 1
		}
		_, err := tx.Exec(`INSERT INTO climate_events
			(run_id, round, rule, agent, agent_name, continent, productivity, overhead, injected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, ev.Round, ev.Rule, ev.Agent, ev.AgentName, ev.Continent,
			ev.Productivity, ev.Overhead, injected,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveAgents writes the latest agent snapshots for a run (full replace).
func (db *DB) SaveAgents(runID string, recs []engine.AgentRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(run_id, id, name, type, role, continent, money, debt, produced, price,
		 input_cost, min_target, consumed, utility, productivity, overhead, phase,
		 inventory_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		invJSON, _ := json.Marshal(r.Inventory)
		_, err := stmt.Exec(
			runID, r.Agent, r.Name, r.Type, r.Role, r.Continent,
			r.Money, r.Debt, r.Produced, r.Price, r.InputCost, r.MinTarget,
			r.Consumed, r.Utility, r.Productivity, r.Overhead, r.Phase,
			string(invJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", r.Agent, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair scoped to a run.
func (db *DB) SaveMeta(runID, key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		runID, key, value,
	)
	return err
}

// GetMeta retrieves a metadata value for a run.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value,
		"SELECT value FROM run_meta WHERE run_id = ? AND key = ?", runID, key)
	return value, err
}

// SaveRunState persists one completed round: stats and events appended,
// the agent snapshot replaced, and the round cursor updated.
func (db *DB) SaveRunState(runID string, rec engine.RoundRecord, agentRecs []engine.AgentRecord) error {
	if err := db.SaveRound(runID, rec); err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	if err := db.SaveAgents(runID, agentRecs); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveMeta(runID, "last_round", fmt.Sprintf("%d", rec.Round)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	slog.Debug("run state saved", "run", runID, "round", rec.Round)
	return nil
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]RunInfo, error) {
	var runs []RunInfo
	err := db.conn.Select(&runs,
		"SELECT id, scenario, seed, rounds, started_at, finished_at FROM runs ORDER BY started_at DESC")
	return runs, err
}

// statsRow mirrors round_stats for sqlx scanning.
type statsRow struct {
	Round       int     `db:"round"`
	TotalMoney  float64 `db:"total_money"`
	TotalDebt   float64 `db:"total_debt"`
	Trades      int     `db:"trades"`
	TradeVolume float64 `db:"trade_volume"`
	TradeValue  float64 `db:"trade_value"`
	Produced    float64 `db:"produced"`
	Consumed    float64 `db:"consumed"`
	DebtIssued  float64 `db:"debt_issued"`
	Overhead    float64 `db:"overhead"`
	AvgUtility  float64 `db:"avg_utility"`
	Underfed    int     `db:"underfed"`
	Stressed    int     `db:"stressed"`
}

// StatsHistory returns every round's statistics for a run, in order.
func (db *DB) StatsHistory(runID string) ([]engine.SimStats, error) {
	var rows []statsRow
	err := db.conn.Select(&rows, `SELECT round, total_money, total_debt, trades,
		trade_volume, trade_value, produced, consumed, debt_issued, overhead,
		avg_utility, underfed, stressed
		FROM round_stats WHERE run_id = ? ORDER BY round`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]engine.SimStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, engine.SimStats{
			Round:       r.Round,
			TotalMoney:  r.TotalMoney,
			TotalDebt:   r.TotalDebt,
			Trades:      r.Trades,
			TradeVolume: r.TradeVolume,
			TradeValue:  r.TradeValue,
			Produced:    r.Produced,
			Consumed:    r.Consumed,
			DebtIssued:  r.DebtIssued,
			Overhead:    r.Overhead,
			AvgUtility:  r.AvgUtility,
			Underfed:    r.Underfed,
			Stressed:    r.Stressed,
		})
	}
	return out, nil
}

// climateRow mirrors climate_events for sqlx scanning.
type climateRow struct {
	Round        int     `db:"round"`
	Rule         string  `db:"rule"`
	Agent        uint64  `db:"agent"`
	AgentName    string  `db:"agent_name"`
	Continent    string  `db:"continent"`
	Productivity float64 `db:"productivity"`
	Overhead     float64 `db:"overhead"`
	Injected     int     `db:"injected"`
}

// ClimateHistory returns every climate event recorded for a run, in order.
func (db *DB) ClimateHistory(runID string) ([]climate.Event, error) {
	var rows []climateRow
	err := db.conn.Select(&rows, `SELECT round, rule, agent, agent_name,
		continent, productivity, overhead, injected
		FROM climate_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]climate.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, climate.Event{
			Round:        r.Round,
			Rule:         r.Rule,
			Agent:        agents.AgentID(r.Agent),
			AgentName:    r.AgentName,
			Continent:    geo.Continent(r.Continent),
			Productivity: r.Productivity,
			Overhead:     r.Overhead,
			Injected:     r.Injected != 0,
		})
	}
	return out, nil
}

// RecentEvents returns the most recent N events for a run.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT round, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}
