// Package main runs historical backtests of the swing entry strategy and,
// optionally, an exhaustive parameter grid search.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

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
	topN := flag.Int("top", 0, "Entries considered per day (0 = current params)")
	minScore := flag.Float64("min-score", -1, "Minimum technical score (-1 = current params)")
	holdDays := flag.Int("hold", 0, "Maximum hold days (0 = current params)")
	slMult := flag.Float64("sl-mult", 0, "ATR stop-loss multiple (0 = current params)")
	tpMult := flag.Float64("tp-mult", 0, "ATR take-profit multiple (0 = current params)")
	pool := flag.String("pool", "", "Ticker pool (empty = config default)")
	optimize := flag.Bool("optimize", false, "Run the parameter grid search instead of a single backtest")
	quick := flag.Bool("quick", false, "Use the reduced grid with -optimize")
	export := flag.Bool("export", false, "Export result JSON and trades CSV")
	configDir := flag.String("config", "", "Config directory (empty = search defaults)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := data.NewStore(logger, cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize data store", zap.Error(err))
	}
	pools := data.NewFilePool(logger, cfg.ConfigDir)

	// Backtests run with the current tuned parameters and signal weights so
	// results reflect what the live strategy would actually do.
	tuningStore := tuning.NewStore(logger, cfg.ConfigDir, cfg.DataDir)
	state, err := tuningStore.LoadState()
	if err != nil {
		logger.Fatal("Failed to load strategy state", zap.Error(err))
	}
	weights, err := tuningStore.LoadWeights()
	if err != nil {
		logger.Fatal("Failed to load signal weights", zap.Error(err))
	}

	btCfg := state.CurrentParams.Sanitize().Apply(types.DefaultBacktestConfig())
	btCfg.Pool = cfg.Pool
	btCfg.BacktestDays = cfg.BacktestDays
	if *pool != "" {
		btCfg.Pool = *pool
	}
	if *days > 0 {
		btCfg.BacktestDays = *days
	}
	if *topN > 0 {
		btCfg.TopN = *topN
	}
	if *minScore >= 0 {
		btCfg.MinTechScore = *minScore
	}
	if *holdDays > 0 {
		btCfg.MaxHoldDays = *holdDays
	}
	if *slMult > 0 {
		btCfg.ATRStopMult = *slMult
	}
	if *tpMult > 0 {
		btCfg.ATRTargetMult = *tpMult
	}

	analyzer := technical.NewAnalyzer(weights)
	cache := backtester.NewCache()
	engine := backtester.NewEngine(logger, store, pools, analyzer, cache)

	if *optimize {
		grid := tuning.DefaultGrid()
		if *quick {
			grid = tuning.QuickGrid()
		}
		optimizer := tuning.NewGridOptimizer(logger, engine)
		results, err := optimizer.Run(ctx, btCfg, grid)
		if err != nil {
			logger.Fatal("Grid search failed", zap.Error(err))
		}
		tuning.WriteTop(os.Stdout, results, 10)
		return
	}

	result, err := engine.Run(ctx, btCfg)
	if err != nil {
		logger.Fatal("Backtest failed", zap.Error(err))
	}

	backtester.WriteReport(os.Stdout, result)

	if *export {
		jsonPath, csvPath, err := backtester.ExportResult(result, cfg.ExportDir)
		if err != nil {
			logger.Fatal("Export failed", zap.Error(err))
		}
		logger.Info("Result exported",
			zap.String("json", jsonPath),
			zap.String("csv", csvPath),
		)
	}
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
