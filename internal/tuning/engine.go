package tuning

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/backtester"
	"github.com/stocknotify/strategy-backend/internal/data"
	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

// Report statuses.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

// Rebalancer is invoked after a completed cycle with the adopted position
// limit. Position management itself lives outside this module.
type Rebalancer interface {
	Rebalance(ctx context.Context, maxPositions int) error
}

// SearchIteration is one entry of the candidate search log.
type SearchIteration struct {
	Iter           int     `json:"iter"`
	Score          float64 `json:"score,omitempty"`
	ImprovementPct float64 `json:"improvement_pct,omitempty"`
	WinRate        float64 `json:"win_rate,omitempty"`
	ProfitFactor   float64 `json:"profit_factor,omitempty"`
	Best           bool    `json:"is_best,omitempty"`
	Skipped        string  `json:"skipped,omitempty"`
}

// TuningReport is the structured outcome of one self-tuning cycle.
type TuningReport struct {
	Timestamp      time.Time `json:"timestamp"`
	Pool           string    `json:"pool"`
	BacktestDays   int       `json:"backtest_days"`
	Iterations     int       `json:"iterations"`
	MinImprovement float64   `json:"min_improvement"`

	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`

	Regime           Regime  `json:"regime,omitempty"`
	RegimeConfidence float64 `json:"regime_confidence,omitempty"`
	PriceRegime      Regime  `json:"price_regime,omitempty"`
	Safe             bool    `json:"safe"`
	SafetyMessage    string  `json:"safety_message,omitempty"`

	BaselineSummary types.Summary     `json:"baseline_summary"`
	BaselineScore   float64           `json:"baseline_score"`
	BestScore       float64           `json:"best_score"`
	ImprovementPct  float64           `json:"improvement_pct"`
	Adopted         bool              `json:"adopted"`
	SearchLog       []SearchIteration `json:"search_log,omitempty"`

	FinalParams   ParamSet                `json:"final_params,omitempty"`
	ParamChanges  map[string]ParamChange  `json:"param_changes,omitempty"`
	WeightChanges map[string]WeightChange `json:"weight_changes,omitempty"`
}

// SelfTunerOptions configures one tuning cycle.
type SelfTunerOptions struct {
	Pool           string
	BacktestDays   int
	Iterations     int
	MinImprovement float64
	DryRun         bool

	// Rand seeds candidate generation. Nil means time-seeded.
	Rand *rand.Rand
	// Rebalancer is optional; nil skips the post-tuning rebalance.
	Rebalancer Rebalancer
}

// SelfTuner runs the full self-tuning pipeline: baseline backtest, regime
// detection, safety check, iterative candidate search, adoption decision,
// weight optimization and persistence.
type SelfTuner struct {
	logger  *zap.Logger
	history data.HistoryProvider
	pools   data.PoolProvider
	store   *Store
	opts    SelfTunerOptions
}

func NewSelfTuner(logger *zap.Logger, history data.HistoryProvider, pools data.PoolProvider, store *Store, opts SelfTunerOptions) *SelfTuner {
	if opts.Pool == "" {
		opts.Pool = "nasdaq100"
	}
	if opts.BacktestDays <= 0 {
		opts.BacktestDays = 504
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 10
	}
	if opts.MinImprovement <= 0 {
		opts.MinImprovement = 5.0
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SelfTuner{
		logger:  logger.Named("self-tuner"),
		history: history,
		pools:   pools,
		store:   store,
		opts:    opts,
	}
}

// Run executes one complete tuning cycle and returns its report. A cycle
// with too few baseline trades reports status "skipped" without touching
// persisted state.
func (t *SelfTuner) Run(ctx context.Context) (*TuningReport, error) {
	report := &TuningReport{
		Timestamp:      time.Now().UTC(),
		Pool:           t.opts.Pool,
		BacktestDays:   t.opts.BacktestDays,
		Iterations:     t.opts.Iterations,
		MinImprovement: t.opts.MinImprovement,
	}

	state, err := t.store.LoadState()
	if err != nil {
		return nil, err
	}
	weights, err := t.store.LoadWeights()
	if err != nil {
		return nil, err
	}
	currentParams := state.CurrentParams.Sanitize()

	t.logger.Info("Self-tuning cycle starting",
		zap.String("pool", t.opts.Pool),
		zap.Int("backtestDays", t.opts.BacktestDays),
		zap.Int("iterations", t.opts.Iterations),
		zap.Float64("minImprovementPct", t.opts.MinImprovement),
	)

	// One shared cache: every candidate reuses the baseline's price
	// download and per-day technical snapshots.
	cache := backtester.NewCache()
	analyzer := technical.NewAnalyzer(weights)
	engine := backtester.NewEngine(t.logger, t.history, t.pools, analyzer, cache)

	baseCfg := currentParams.Apply(types.DefaultBacktestConfig())
	baseCfg.Pool = t.opts.Pool
	baseCfg.BacktestDays = t.opts.BacktestDays

	baseline, err := engine.Run(ctx, baseCfg)
	if err != nil {
		return nil, fmt.Errorf("baseline backtest: %w", err)
	}
	report.BaselineSummary = finiteSummary(baseline.Summary)

	if baseline.Summary.TotalTrades < 10 {
		t.logger.Warn("Baseline produced too few trades, skipping cycle",
			zap.Int("trades", baseline.Summary.TotalTrades),
		)
		report.Status = StatusSkipped
		report.Reason = "insufficient_trades"
		return report, nil
	}

	baselineScore := PerformanceScore(baseline.Summary)
	report.BaselineScore = baselineScore
	t.logger.Info("Baseline established",
		zap.Float64("score", baselineScore),
		zap.Float64("winRate", baseline.Summary.WinRate),
		zap.Float64("profitFactor", finiteSummary(baseline.Summary).ProfitFactor),
		zap.Float64("maxDrawdownPct", baseline.Summary.PortfolioMaxDDPct),
	)

	detector := NewRegimeDetector(t.logger)
	regime, confidence := detector.Detect(baseline)
	if prices := cache.Prices(); prices != nil {
		priceRegime, _ := detector.DetectFromPrices(prices)
		report.PriceRegime = priceRegime
		if priceRegime == regime {
			confidence = min(0.95, confidence+0.15)
		}
	}
	report.Regime = regime
	report.RegimeConfidence = utils.RoundTo(confidence, 2)

	guard := NewGuard(t.logger)
	safe, safetyMsg := guard.Check(baseline.Summary)
	report.Safe = safe
	report.SafetyMessage = safetyMsg

	searchBase := currentParams.Clone()
	if !safe {
		// Degraded performance: search from the conservative bundle
		// and blend toward it too.
		searchBase = ConservativeParams()
		regime = RegimeConservative
	}

	tuner := NewTuner(t.logger, currentParams, t.opts.Rand)
	bestScore := baselineScore
	bestParams := currentParams.Clone()
	bestResult := baseline

	for i := 1; i <= t.opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := tuner.GenerateCandidate(searchBase, regime, confidence)
		result, err := engine.Run(ctx, candidate.Apply(baseCfg))
		if err != nil {
			t.logger.Warn("Candidate backtest failed",
				zap.Int("iteration", i),
				zap.Error(err),
			)
			report.SearchLog = append(report.SearchLog, SearchIteration{Iter: i, Skipped: err.Error()})
			continue
		}
		if result.Summary.TotalTrades < 10 {
			report.SearchLog = append(report.SearchLog, SearchIteration{Iter: i, Skipped: "no_trades"})
			continue
		}

		score := PerformanceScore(result.Summary)
		improvement := improvementPct(score, baselineScore)
		isBest := score > bestScore
		if isBest {
			bestScore = score
			bestParams = candidate
			bestResult = result
		}

		t.logger.Info("Search iteration",
			zap.Int("iteration", i),
			zap.Int("total", t.opts.Iterations),
			zap.Float64("score", score),
			zap.Float64("vsBaselinePct", improvement),
			zap.Float64("winRate", result.Summary.WinRate),
			zap.Bool("newBest", isBest),
		)
		report.SearchLog = append(report.SearchLog, SearchIteration{
			Iter:           i,
			Score:          score,
			ImprovementPct: utils.RoundTo(improvement, 2),
			WinRate:        result.Summary.WinRate,
			ProfitFactor:   finiteSummary(result.Summary).ProfitFactor,
			Best:           isBest,
		})
	}

	totalImprovement := improvementPct(bestScore, baselineScore)
	adopted := totalImprovement >= t.opts.MinImprovement
	report.BestScore = bestScore
	report.ImprovementPct = utils.RoundTo(totalImprovement, 2)
	report.Adopted = adopted

	newParams := currentParams
	chosen := baseline
	paramChanges := map[string]ParamChange{}
	if adopted {
		newParams = bestParams
		chosen = bestResult
		for key, newVal := range newParams {
			if oldVal, ok := currentParams[key]; ok && math.Abs(newVal-oldVal) > 0.001 {
				paramChanges[key] = ParamChange{Old: oldVal, New: newVal}
			}
		}
		t.logger.Info("Adopting best candidate",
			zap.Float64("improvementPct", totalImprovement),
			zap.Int("changedParams", len(paramChanges)),
		)
	} else {
		t.logger.Info("Keeping current parameters",
			zap.Float64("improvementPct", totalImprovement),
			zap.Float64("requiredPct", t.opts.MinImprovement),
		)
	}
	report.FinalParams = newParams.Clone()
	report.ParamChanges = paramChanges

	optimizer := NewWeightOptimizer(t.logger, weights)
	newWeights, weightChanges := optimizer.Optimize(chosen)
	report.WeightChanges = weightChanges

	if t.opts.DryRun {
		t.logger.Info("Dry run, skipping persistence")
		report.Status = StatusCompleted
		return report, nil
	}

	entry := HistoryEntry{
		Timestamp:     report.Timestamp,
		Regime:        regime,
		Params:        newParams,
		Summary:       chosen.Summary,
		ParamChanges:  paramChanges,
		WeightChanges: weightChanges,
	}
	state.CurrentParams = newParams
	state.CurrentRegime = regime
	state.RegimeConfidence = utils.RoundTo(confidence, 2)
	state.LastTunedAt = report.Timestamp
	state.TuningHistory = append(state.TuningHistory, entry)

	if err := t.store.SaveState(state); err != nil {
		return nil, err
	}
	if err := t.store.SaveWeights(newWeights); err != nil {
		return nil, err
	}
	if err := t.store.AppendHistory(entry); err != nil {
		return nil, err
	}

	if t.opts.Rebalancer != nil {
		maxPositions := int(newParams["max_positions"])
		if err := t.opts.Rebalancer.Rebalance(ctx, maxPositions); err != nil {
			// Rebalancing problems must not undo a completed cycle.
			t.logger.Warn("Post-tuning rebalance failed", zap.Error(err))
		}
	}

	report.Status = StatusCompleted
	return report, nil
}

func improvementPct(score, baseline float64) float64 {
	return (score - baseline) / math.Max(math.Abs(baseline), 0.001) * 100
}
