// Command chainsim runs a layered supply-chain economy under climate
// stress: scenario in, rounds of trading and production out, everything
// recorded for later inspection.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/climate-chain/internal/api"
	"github.com/talgya/climate-chain/internal/config"
	"github.com/talgya/climate-chain/internal/engine"
	"github.com/talgya/climate-chain/internal/export"
	"github.com/talgya/climate-chain/internal/persistence"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global runtime settings, resolved before any subcommand runs.
var settings *config.Settings

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainsim",
	Short: "chainsim — supply-chain economy simulation under climate stress",
	Long: `chainsim simulates a multi-layer supply chain — producers,
intermediaries, final-goods firms, and households — trading on
per-round markets while chronic and acute climate stress erodes
productivity and inflates overhead. Runs are deterministic per seed
and persisted to SQLite with CSV and JSONL/zstd export.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settingsFile, _ := cmd.Flags().GetString("settings")
		var err error
		settings, err = config.LoadSettings(settingsFile)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			settings.LogLevel = lvl
		}
		setupLogging(settings)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("settings", "", "settings file path (default: ./settings.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(exportCmd)
}

func setupLogging(s *config.Settings) {
	var level slog.Level
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(s.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chainsim %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run [scenario.yaml]",
	Short: "Run a simulation",
	Long: `Run a simulation from a scenario file (or the built-in defaults when
omitted). State is saved to SQLite as the run progresses, round records
are archived as compressed JSONL, and the HTTP API serves live state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarioPath := ""
		if len(args) == 1 {
			scenarioPath = args[0]
		}

		scenario, err := config.Load(scenarioPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("rounds") {
			scenario.Simulation.Rounds, _ = cmd.Flags().GetInt("rounds")
		}
		if cmd.Flags().Changed("seed") {
			scenario.Simulation.Seed, _ = cmd.Flags().GetInt64("seed")
		}

		return runSimulation(scenario)
	},
}

func init() {
	runCmd.Flags().Int("rounds", 0, "override scenario round count")
	runCmd.Flags().Int64("seed", 0, "override scenario seed")
}

func runSimulation(scenario *config.Scenario) error {
	slog.Info("chainsim starting",
		"scenario", scenario.Simulation.Name,
		"rounds", scenario.Simulation.Rounds,
		"seed", scenario.Simulation.Seed,
	)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(settings.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(settings.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", settings.DBPath)

	runID := uuid.NewString()
	if err := db.BeginRun(runID, scenario.Simulation.Name, scenario.Simulation.Seed, scenario.Simulation.Rounds); err != nil {
		return fmt.Errorf("registering run: %w", err)
	}

	// ── Archive ───────────────────────────────────────────────────────
	archivePath := filepath.Join(settings.ExportDir, runID+".jsonl.zst")
	archive, err := export.OpenArchive(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(scenario)
	runner := engine.NewRunner(sim, scenario.Simulation.Rounds, settings.RoundInterval)

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if settings.APIEnabled {
		if settings.AdminKey == "" {
			slog.Warn("CHAINSIM_ADMIN_KEY not set — admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:      sim,
			Runner:   runner,
			DB:       db,
			RunID:    runID,
			Port:     settings.APIPort,
			AdminKey: settings.AdminKey,
		}
		apiServer.Start()
	}

	// Wire round callbacks — archive every round, persist on cadence.
	runner.OnRound = func(rec engine.RoundRecord) {
		if err := archive.Write(rec); err != nil {
			slog.Error("archive write failed", "round", rec.Round, "error", err)
		}
		if apiServer != nil {
			apiServer.BroadcastRound(rec)
		}
		if rec.Round%settings.AutosaveEvery == 0 {
			if err := db.SaveRunState(runID, rec, sim.AgentRecords()); err != nil {
				slog.Error("autosave failed", "round", rec.Round, "error", err)
			}
		}
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		runner.Stop()
	}()

	fmt.Printf("\nRun %s: %d agents, %d goods, %d rounds ahead.\n",
		runID, len(sim.Agents), len(sim.Goods), scenario.Simulation.Rounds)
	if apiServer != nil {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", settings.APIPort)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runner.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	if rec, ok := sim.LastRecord(); ok {
		if err := db.SaveRunState(runID, rec, sim.AgentRecords()); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}
	if err := db.FinishRun(runID); err != nil {
		slog.Error("finishing run failed", "error", err)
	}

	stats := sim.StatsSnapshot()
	fmt.Printf("\nSimulation stopped after round %d.\n", stats.Round)
	fmt.Printf("  money:        %s (net %s, started %s)\n",
		humanize.Commaf(stats.TotalMoney), humanize.Commaf(sim.NetBalance()), humanize.Commaf(sim.InitialNet))
	fmt.Printf("  total debt:   %s\n", humanize.Commaf(stats.TotalDebt))
	fmt.Printf("  last round:   %s units traded across %d trades\n", humanize.Commaf(stats.TradeVolume), stats.Trades)
	fmt.Printf("  underfed:     %d of %d households short of survival\n", stats.Underfed, countHouseholds(sim))
	fmt.Printf("  archive:      %s\n", archivePath)
	fmt.Printf("  export:       chainsim export --run %s\n", runID)
	return nil
}

func countHouseholds(sim *engine.Simulation) int {
	n := 0
	for _, a := range sim.Agents {
		if a.Consumption != nil {
			n++
		}
	}
	return n
}

// --- Validate Command ---

var validateCmd = &cobra.Command{
	Use:   "validate [scenario.yaml]",
	Short: "Check a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenario, err := config.Load(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s: valid\n", args[0])
		fmt.Printf("  name:    %s\n", scenario.Simulation.Name)
		fmt.Printf("  rounds:  %d\n", scenario.Simulation.Rounds)
		fmt.Printf("  seed:    %d\n", scenario.Simulation.Seed)
		fmt.Printf("  agents:\n")
		for _, a := range scenario.Agents {
			line := fmt.Sprintf("    %-14s x%-4d role=%s", a.Name, a.Count, a.Role)
			if a.Production != nil {
				line += fmt.Sprintf(" produces=%s", a.Production.Output)
			}
			if a.Consumption != nil {
				line += fmt.Sprintf(" consumes=%s", a.Consumption.Good)
			}
			fmt.Println(line)
		}
		fmt.Printf("  climate: enabled=%v chronic=%d shocks=%d\n",
			scenario.Climate.Enabled,
			len(scenario.Climate.ChronicRules),
			len(scenario.Climate.ShockRules),
		)
		return nil
	},
}

// --- Export Command ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a recorded run to CSV",
	Long: `Export a run's stats, events, and climate history from the database
to CSV files. Defaults to the most recent run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = settings.ExportDir
		}

		db, err := persistence.Open(settings.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if runID == "" {
			runs, err := db.ListRuns()
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			if len(runs) == 0 {
				return fmt.Errorf("no runs recorded in %s", settings.DBPath)
			}
			runID = runs[0].ID
			slog.Info("exporting most recent run", "run", runID)
		}

		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("creating export dir: %w", err)
		}

		written, err := exportRun(db, runID, outDir)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Println(path)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("run", "", "run ID to export (default: most recent)")
	exportCmd.Flags().String("out", "", "output directory (default: settings export_dir)")
}

func exportRun(db *persistence.DB, runID, outDir string) ([]string, error) {
	var written []string

	stats, err := db.StatsHistory(runID)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	path := filepath.Join(outDir, runID+"-stats.csv")
	if err := writeCSV(path, func(f *os.File) error {
		return export.WriteStatsCSV(f, stats)
	}); err != nil {
		return nil, err
	}
	written = append(written, path)

	events, err := db.RecentEvents(runID, 100000)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	// RecentEvents returns newest first; the CSV reads chronologically.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	path = filepath.Join(outDir, runID+"-events.csv")
	if err := writeCSV(path, func(f *os.File) error {
		return export.WriteEventsCSV(f, events)
	}); err != nil {
		return nil, err
	}
	written = append(written, path)

	climateEvents, err := db.ClimateHistory(runID)
	if err != nil {
		return nil, fmt.Errorf("reading climate history: %w", err)
	}
	path = filepath.Join(outDir, runID+"-climate.csv")
	if err := writeCSV(path, func(f *os.File) error {
		return export.WriteClimateCSV(f, climateEvents)
	}); err != nil {
		return nil, err
	}
	written = append(written, path)

	return written, nil
}

func writeCSV(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
