package tuning

import (
	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

const (
	// weightLearningRate caps a single pass at a 15% relative move.
	weightLearningRate = 0.15
	// weightMinSamples is how often a signal must appear before its
	// weight moves at all.
	weightMinSamples = 5

	weightFloor = 0.3
	weightCeil  = 2.5
)

// WeightChange records one signal weight moving during optimization.
type WeightChange struct {
	Old   float64 `json:"old"`
	New   float64 `json:"new"`
	Delta float64 `json:"delta"`
	Score float64 `json:"perf_score"`
}

// WeightOptimizer nudges signal weights toward whatever the backtest says
// is working: profitable, frequent signals gain weight, losing ones lose
// it, always gradually and always within [0.3, 2.5].
type WeightOptimizer struct {
	logger  *zap.Logger
	weights technical.WeightTable
}

// NewWeightOptimizer starts from the given table, or the neutral defaults
// when nil.
func NewWeightOptimizer(logger *zap.Logger, current technical.WeightTable) *WeightOptimizer {
	if current == nil {
		current = technical.DefaultWeights()
	}
	return &WeightOptimizer{logger: logger, weights: current.Clone()}
}

// Weights returns the optimizer's current table.
func (o *WeightOptimizer) Weights() technical.WeightTable {
	return o.weights.Clone()
}

// Optimize adjusts weights from the backtest's per-signal performance.
// Signal labels sharing a weight key (the pullback variants, for instance)
// have their scores averaged before the nudge is applied.
func (o *WeightOptimizer) Optimize(result *types.BacktestResult) (technical.WeightTable, map[string]WeightChange) {
	perf := result.SignalPerformance
	if len(perf) == 0 {
		o.logger.Info("No signal performance data, keeping weights")
		return o.weights.Clone(), nil
	}

	weights := technical.DefaultWeights()
	for key := range weights {
		if w, ok := o.weights[key]; ok {
			weights[key] = w
		}
	}

	scores := make(map[string][]float64)
	for _, sp := range perf {
		if sp.Count < weightMinSamples {
			continue
		}
		key := technical.WeightKeyFor(sp.Signal)
		if key == "" {
			continue
		}

		// Win-rate deviation from coin-flip, plus a stepped average
		// P&L bonus, scaled by sample confidence.
		perfScore := (sp.WinRate - 50) / 50
		switch {
		case sp.AvgPnL > 1.0:
			perfScore += 0.5
		case sp.AvgPnL > 0:
			perfScore += 0.2
		case sp.AvgPnL < -1.0:
			perfScore -= 0.5
		case sp.AvgPnL < 0:
			perfScore -= 0.2
		}
		confidence := min(1.0, float64(sp.Count)/30)
		scores[key] = append(scores[key], perfScore*confidence)
	}

	changes := make(map[string]WeightChange)
	for key, list := range scores {
		avgScore := utils.Mean(list)
		current := weights.Weight(key)

		delta := avgScore * weightLearningRate
		next := utils.Clamp(current*(1+delta), weightFloor, weightCeil)

		if diff := next - current; diff > 0.01 || diff < -0.01 {
			next = utils.RoundTo(next, 3)
			changes[key] = WeightChange{
				Old:   utils.RoundTo(current, 3),
				New:   next,
				Delta: utils.RoundTo(delta, 4),
				Score: utils.RoundTo(avgScore, 3),
			}
			weights[key] = next
		}
	}

	if len(changes) > 0 {
		for key, ch := range changes {
			o.logger.Info("Signal weight adjusted",
				zap.String("signal", key),
				zap.Float64("old", ch.Old),
				zap.Float64("new", ch.New),
				zap.Float64("perfScore", ch.Score),
			)
		}
	} else {
		o.logger.Info("No signal weight changes")
	}

	o.weights = weights
	return weights.Clone(), changes
}
