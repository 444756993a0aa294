package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
)

func perfResult(perf ...types.SignalPerf) *types.BacktestResult {
	return &types.BacktestResult{SignalPerformance: perf}
}

func TestOptimizeRewardsWinningSignal(t *testing.T) {
	opt := NewWeightOptimizer(zap.NewNop(), nil)

	// 30+ samples, 70% wins, strong average: score (0.4+0.5)*1.0 = 0.9
	weights, changes := opt.Optimize(perfResult(
		types.SignalPerf{Signal: "golden_cross", Count: 30, AvgPnL: 1.5, WinRate: 70},
	))

	require.Contains(t, changes, technical.WeightGoldenCross)
	// 1.0 * (1 + 0.9*0.15) = 1.135
	assert.InDelta(t, 1.135, weights[technical.WeightGoldenCross], 1e-9)
	assert.Greater(t, weights[technical.WeightGoldenCross], 1.0)
}

func TestOptimizePenalizesLosingSignal(t *testing.T) {
	opt := NewWeightOptimizer(zap.NewNop(), nil)

	weights, changes := opt.Optimize(perfResult(
		types.SignalPerf{Signal: "macd_cross_up", Count: 30, AvgPnL: -2.0, WinRate: 30},
	))

	require.Contains(t, changes, technical.WeightMACDCrossUp)
	assert.Less(t, weights[technical.WeightMACDCrossUp], 1.0)
}

func TestOptimizeSampleGuard(t *testing.T) {
	opt := NewWeightOptimizer(zap.NewNop(), nil)

	weights, changes := opt.Optimize(perfResult(
		types.SignalPerf{Signal: "golden_cross", Count: 4, AvgPnL: 5.0, WinRate: 100},
	))

	assert.Empty(t, changes)
	assert.Equal(t, 1.0, weights[technical.WeightGoldenCross])
}

func TestOptimizeAveragesSharedKeyScores(t *testing.T) {
	opt := NewWeightOptimizer(zap.NewNop(), nil)

	// Both pullback variants feed pullback_score: one strongly positive,
	// one equally negative -> scores cancel, weight stays put.
	_, changes := opt.Optimize(perfResult(
		types.SignalPerf{Signal: "ma20_pullback", Count: 30, AvgPnL: 1.5, WinRate: 70},
		types.SignalPerf{Signal: "ma50_pullback", Count: 30, AvgPnL: -1.5, WinRate: 30},
	))

	assert.NotContains(t, changes, technical.WeightPullback)
}

func TestOptimizeWeightsStayBounded(t *testing.T) {
	start := technical.DefaultWeights()
	start[technical.WeightGoldenCross] = 2.45
	start[technical.WeightMACDCrossUp] = 0.32
	opt := NewWeightOptimizer(zap.NewNop(), start)

	var weights technical.WeightTable
	for i := 0; i < 50; i++ {
		weights, _ = opt.Optimize(perfResult(
			types.SignalPerf{Signal: "golden_cross", Count: 40, AvgPnL: 3.0, WinRate: 90},
			types.SignalPerf{Signal: "macd_cross_up", Count: 40, AvgPnL: -3.0, WinRate: 10},
		))
	}

	for key, w := range weights {
		assert.GreaterOrEqualf(t, w, 0.3, "weight %s below floor", key)
		assert.LessOrEqualf(t, w, 2.5, "weight %s above ceiling", key)
	}
	assert.InDelta(t, 2.5, weights[technical.WeightGoldenCross], 1e-9)
	assert.InDelta(t, 0.3, weights[technical.WeightMACDCrossUp], 1e-9)
}

func TestOptimizeNoPerformanceData(t *testing.T) {
	opt := NewWeightOptimizer(zap.NewNop(), nil)
	weights, changes := opt.Optimize(&types.BacktestResult{})

	assert.Empty(t, changes)
	assert.Equal(t, technical.DefaultWeights(), weights)
}

func TestOptimizeIgnoresUnmappedLabels(t *testing.T) {
	opt := NewWeightOptimizer(zap.NewNop(), nil)
	_, changes := opt.Optimize(perfResult(
		types.SignalPerf{Signal: "mystery_signal", Count: 50, AvgPnL: 5.0, WinRate: 90},
	))
	assert.Empty(t, changes)
}
