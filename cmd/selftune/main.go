// Package main runs one self-tuning cycle: baseline backtest, regime
// detection, candidate search and persistence of the adopted parameters.
// The -micro flag instead applies the rule-based micro adjustments to the
// current parameters without a candidate search.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stocknotify/strategy-backend/internal/backtester"
	"github.com/stocknotify/strategy-backend/internal/config"
	"github.com/stocknotify/strategy-backend/internal/data"
	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/internal/tuning"
	"github.com/stocknotify/strategy-backend/pkg/types"
)

func main() {
	days := flag.Int("days", 0, "Backtest window in trading days (0 = config default)")
	iterations := flag.Int("iterations", 0, "Candidate search iterations (0 = config default)")
	minImprovement := flag.Float64("min-improvement", 0, "Percent improvement required to adopt (0 = config default)")
	pool := flag.String("pool", "", "Ticker pool (empty = config default)")
	dryRun := flag.Bool("dry-run", false, "Evaluate without persisting state")
	micro := flag.Bool("micro", false, "Apply rule-based micro adjustments instead of a candidate search")
	configDir := flag.String("config", "", "Config directory (empty = search defaults)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *pool == "" {
		*pool = cfg.Pool
	}
	if *days <= 0 {
		*days = cfg.TuningDays
	}
	if *iterations <= 0 {
		*iterations = cfg.Iterations
	}
	if *minImprovement <= 0 {
		*minImprovement = cfg.MinImprovement
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := data.NewStore(logger, cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize data store", zap.Error(err))
	}
	pools := data.NewFilePool(logger, cfg.ConfigDir)
	tuningStore := tuning.NewStore(logger, cfg.ConfigDir, cfg.DataDir)

	if *micro {
		if err := runMicro(ctx, logger, store, pools, tuningStore, *pool, *days, *dryRun); err != nil {
			logger.Fatal("Micro tuning failed", zap.Error(err))
		}
		return
	}

	tuner := tuning.NewSelfTuner(logger, store, pools, tuningStore, tuning.SelfTunerOptions{
		Pool:           *pool,
		BacktestDays:   *days,
		Iterations:     *iterations,
		MinImprovement: *minImprovement,
		DryRun:         *dryRun,
	})

	report, err := tuner.Run(ctx)
	if err != nil {
		logger.Fatal("Self-tuning cycle failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode report", zap.Error(err))
	}
	os.Stdout.Write(append(out, '\n'))
}

// runMicro backtests the current parameters once and nudges them with the
// deterministic adjustment rules, skipping the random candidate search.
func runMicro(ctx context.Context, logger *zap.Logger, history data.HistoryProvider, pools data.PoolProvider, tuningStore *tuning.Store, pool string, days int, dryRun bool) error {
	state, err := tuningStore.LoadState()
	if err != nil {
		return err
	}
	weights, err := tuningStore.LoadWeights()
	if err != nil {
		return err
	}
	currentParams := state.CurrentParams.Sanitize()

	cache := backtester.NewCache()
	engine := backtester.NewEngine(logger, history, pools, technical.NewAnalyzer(weights), cache)

	btCfg := currentParams.Apply(types.DefaultBacktestConfig())
	btCfg.Pool = pool
	btCfg.BacktestDays = days

	result, err := engine.Run(ctx, btCfg)
	if err != nil {
		return err
	}

	detector := tuning.NewRegimeDetector(logger)
	regime, confidence := detector.Detect(result)
	if prices := cache.Prices(); prices != nil {
		if priceRegime, _ := detector.DetectFromPrices(prices); priceRegime == regime {
			confidence = min(0.95, confidence+0.15)
		}
	}

	tuner := tuning.NewTuner(logger, currentParams, nil)
	newParams, changes, skipped := tuner.Tune(result, regime, confidence)
	if skipped {
		logger.Warn("Too few trades for micro tuning",
			zap.Int("trades", result.Summary.TotalTrades),
		)
		return nil
	}

	logger.Info("Micro adjustments computed",
		zap.String("regime", string(regime)),
		zap.Float64("confidence", confidence),
		zap.Int("changedParams", len(changes)),
	)
	for name, ch := range changes {
		logger.Info("Parameter adjusted",
			zap.String("param", name),
			zap.Float64("old", ch.Old),
			zap.Float64("new", ch.New),
		)
	}

	if dryRun {
		logger.Info("Dry run, skipping persistence")
		return nil
	}

	now := time.Now().UTC()
	entry := tuning.HistoryEntry{
		Timestamp:    now,
		Regime:       regime,
		Params:       newParams,
		Summary:      result.Summary,
		ParamChanges: changes,
	}
	state.CurrentParams = newParams
	state.CurrentRegime = regime
	state.RegimeConfidence = confidence
	state.LastTunedAt = now
	state.TuningHistory = append(state.TuningHistory, entry)

	if err := tuningStore.SaveState(state); err != nil {
		return err
	}
	return tuningStore.AppendHistory(entry)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
