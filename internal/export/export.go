// Package export writes run data to analyst-friendly formats: CSV tables
// for stats and events, and a zstd-compressed JSONL archive of full round
// records that can be decoded back for replay or inspection.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/climate-chain/internal/climate"
	"github.com/talgya/climate-chain/internal/engine"
)

// Archive appends round records to a zstd-compressed JSONL file, one
// JSON object per line. Safe for concurrent writers.
type Archive struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// OpenArchive creates or appends to the archive at path. Appending adds
// a fresh zstd frame; ReadArchive decodes concatenated frames.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Archive{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

// Write appends one round record and flushes it through the encoder so
// a crash loses at most the record being written.
func (a *Archive) Write(rec engine.RoundRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal round %d: %w", rec.Round, err)
	}
	if _, err := a.w.Write(b); err != nil {
		return err
	}
	if err := a.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.enc.Flush()
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.w != nil {
		err = a.w.Flush()
		a.w = nil
	}
	if a.enc != nil {
		if cerr := a.enc.Close(); err == nil {
			err = cerr
		}
		a.enc = nil
	}
	if a.f != nil {
		if cerr := a.f.Close(); err == nil {
			err = cerr
		}
		a.f = nil
	}
	return err
}

// ReadArchive decodes every round record in the archive at path.
func ReadArchive(path string) ([]engine.RoundRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var recs []engine.RoundRecord
	for sc.Scan() {
		var rec engine.RoundRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s: decode record %d: %w", filepath.Base(path), len(recs)+1, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	return recs, nil
}

// WriteStatsCSV writes one row per round of aggregate stats.
func WriteStatsCSV(w io.Writer, hist []engine.SimStats) error {
	cw := csv.NewWriter(w)
	header := []string{
		"round", "agents", "total_money", "total_debt", "trades",
		"trade_volume", "trade_value", "produced", "consumed",
		"debt_issued", "overhead", "avg_utility", "underfed", "stressed",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range hist {
		row := []string{
			strconv.Itoa(s.Round),
			strconv.Itoa(s.Agents),
			ffmt(s.TotalMoney),
			ffmt(s.TotalDebt),
			strconv.Itoa(s.Trades),
			ffmt(s.TradeVolume),
			ffmt(s.TradeValue),
			ffmt(s.Produced),
			ffmt(s.Consumed),
			ffmt(s.DebtIssued),
			ffmt(s.Overhead),
			ffmt(s.AvgUtility),
			strconv.Itoa(s.Underfed),
			strconv.Itoa(s.Stressed),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write round %d: %w", s.Round, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEventsCSV writes narrative events, one per row.
func WriteEventsCSV(w io.Writer, events []engine.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"round", "category", "description"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		row := []string{strconv.Itoa(ev.Round), ev.Category, ev.Description}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteClimateCSV writes climate strikes and recoveries, one per row.
func WriteClimateCSV(w io.Writer, events []climate.Event) error {
	cw := csv.NewWriter(w)
	header := []string{
		"round", "rule", "agent", "agent_name", "continent",
		"productivity", "overhead", "injected",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			strconv.Itoa(ev.Round),
			ev.Rule,
			strconv.FormatUint(uint64(ev.Agent), 10),
			ev.AgentName,
			string(ev.Continent),
			ffmt(ev.Productivity),
			ffmt(ev.Overhead),
			strconv.FormatBool(ev.Injected),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write climate event: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ffmt(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
