package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"grain_sim/internal/config"
	"grain_sim/internal/domain"
	"grain_sim/internal/ecology"
	"grain_sim/internal/recorder"
	"grain_sim/internal/simulation"
	sqlitestore "grain_sim/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config (default: built-in defaults)")
	outFlag := flag.String("out", "", "tsv output path override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	noDB := flag.Bool("no-db", false, "do not record the run in sqlite")
	horizonFlag := flag.Int("horizon", 0, "horizon year override")
	seedFlag := flag.Int64("seed", 0, "random seed override (0 keeps the config value)")
	verbose := flag.Bool("verbose", false, "debug logging")
	trace := flag.Bool("trace", false, "log every barrier wait and release")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Output.TSVPath = firstNonEmpty(*outFlag, cfg.Output.TSVPath)
	cfg.Output.DBPath = firstNonEmpty(*dbPathFlag, cfg.Output.DBPath)
	if *noDB {
		cfg.Output.DBPath = ""
	}
	if *horizonFlag > 0 {
		cfg.Simulation.HorizonYear = *horizonFlag
	}
	if *seedFlag != 0 {
		cfg.Simulation.Seed = *seedFlag
	}
	if *trace {
		cfg.Log.TracePhases = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Every sink is opened before any agent starts; failing here aborts the run.
	tsv, err := recorder.OpenTSV(cfg.Output.TSVPath)
	if err != nil {
		return fmt.Errorf("open tsv recorder: %w", err)
	}
	defer func() {
		if err := tsv.Close(); err != nil {
			logger.Warn("close tsv recorder", zap.Error(err))
		}
	}()
	sinks := []recorder.Sink{tsv}

	var store *sqlitestore.Store
	runID := uuid.NewString()
	if cfg.Output.DBPath != "" {
		dbPath := filepath.Clean(cfg.Output.DBPath)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		store, err = sqlitestore.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() {
			_ = store.Close()
		}()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		if err := store.CreateRun(ctx, domain.Run{
			ID:          runID,
			StartYear:   cfg.Simulation.StartYear,
			HorizonYear: cfg.Simulation.HorizonYear,
			Seed:        seed,
			Config:      mustJSON(cfg.Simulation),
		}); err != nil {
			return err
		}
		logEvent(ctx, store, logger, runID, "run_started", "simulation started", map[string]any{
			"tsv_path": cfg.Output.TSVPath,
		})
		sinks = append(sinks, store.Recorder(runID))
	}

	logger = logger.With(zap.String("run_id", runID))
	logger.Info("recorders ready",
		zap.String("tsv", cfg.Output.TSVPath),
		zap.String("db", cfg.Output.DBPath),
		zap.Int64("seed", seed),
	)

	world := domain.NewWorld(cfg.WorldSeed())
	res, simErr := simulation.Run(ctx, world, recorder.Tee(sinks...), simulation.Options{
		HorizonYear: cfg.Simulation.HorizonYear,
		Producer:    ecology.NewWeather(seed).Next,
		Logger:      logger,
		TracePhases: cfg.Log.TracePhases,
	})

	if store != nil {
		status, lastError := domain.RunStatusDone, ""
		if simErr != nil {
			status, lastError = domain.RunStatusFailed, simErr.Error()
		}
		if err := store.FinishRun(ctx, runID, status, lastError); err != nil {
			logger.Warn("finish run", zap.Error(err))
		}
		logEvent(ctx, store, logger, runID, "run_finished", "simulation reached horizon", map[string]any{
			"rounds": res.Rounds,
			"final":  res.Final,
		})
	}
	if simErr != nil {
		return simErr
	}

	logger.Info("run complete",
		zap.Int("rounds", res.Rounds[domain.AgentObserver]),
		zap.Int("grazers", res.Final.GrazerCount),
		zap.Int("pests", res.Final.PestCount),
		zap.Float64("crop_height", res.Final.CropHeight),
	)
	return nil
}

func newLogger(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	if verbose || cfg.TracePhases {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func logEvent(ctx context.Context, store *sqlitestore.Store, logger *zap.Logger, runID, action, reason string, payload map[string]any) {
	if err := store.LogRunEvent(ctx, domain.RunEvent{
		RunID:   runID,
		Actor:   "simulator",
		Action:  action,
		Reason:  reason,
		Payload: mustJSON(payload),
	}); err != nil {
		logger.Warn("log run event", zap.String("action", action), zap.Error(err))
	}
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
