package tuning

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/pkg/types"
)

func resultWith(summary types.Summary, eb types.ExitBreakdown) *types.BacktestResult {
	return &types.BacktestResult{Summary: summary, ExitBreakdown: eb}
}

func TestPerformanceScoreBounds(t *testing.T) {
	// perfect summary: every positive component maxed, no drawdown
	best := PerformanceScore(types.Summary{
		WinRate:           100,
		ProfitFactor:      10,
		SharpeRatio:       5,
		ExpectedValuePct:  10,
		PortfolioMaxDDPct: 0,
	})
	assert.InDelta(t, 0.90, best, 1e-9)

	// worst summary: nothing positive, max drawdown penalty
	worst := PerformanceScore(types.Summary{
		WinRate:           0,
		ProfitFactor:      0,
		SharpeRatio:       -3,
		ExpectedValuePct:  -10,
		PortfolioMaxDDPct: 90,
	})
	assert.InDelta(t, -0.10, worst, 1e-9)
}

func TestPerformanceScoreInfiniteProfitFactorCaps(t *testing.T) {
	s := types.Summary{WinRate: 50, ProfitFactor: math.Inf(1)}
	score := PerformanceScore(s)
	assert.False(t, math.IsInf(score, 0))
	// 0.15 win rate + 0.25 capped PF + 0.05 EV-at-zero
	assert.InDelta(t, 0.45, score, 1e-6)
}

func TestTuneSkipsOnTooFewTrades(t *testing.T) {
	tuner := NewTuner(zap.NewNop(), nil, rand.New(rand.NewSource(1)))
	before := tuner.Params()

	params, changes, skipped := tuner.Tune(resultWith(types.Summary{TotalTrades: 12}, types.ExitBreakdown{}), RegimeSideways, 0.5)

	assert.True(t, skipped)
	assert.Empty(t, changes)
	assert.Equal(t, before, params)
}

// Heavy stop-outs with a weak win rate must tighten selection and widen the
// stop.
func TestTuneReactsToStopOutsAndLowWinRate(t *testing.T) {
	tuner := NewTuner(zap.NewNop(), nil, rand.New(rand.NewSource(1)))

	summary := types.Summary{
		TotalTrades:       100,
		WinRate:           40,
		ProfitFactor:      1.0,
		PortfolioMaxDDPct: 10,
	}
	eb := types.ExitBreakdown{SLRate: 50, TPRate: 20, ExpRate: 30}

	// zero confidence disables the regime blend, isolating the rules
	params, changes, skipped := tuner.Tune(resultWith(summary, eb), RegimeSideways, 0)

	require.False(t, skipped)
	assert.Equal(t, 2.25, params["atr_stop_mult"], "stop widens when half the exits are stop-outs")
	assert.Equal(t, 4.5, params["min_tech_score"], "low win rate raises the entry bar")
	assert.Equal(t, 3.5, params["atr_tp_mult"], "scarce take-profits pull the target in")
	assert.Equal(t, 4.0, params["top_n"])
	assert.Contains(t, changes, "atr_stop_mult")
	assert.Contains(t, changes, "min_tech_score")
	assertOnGrid(t, params)
}

func TestTuneBlendsTowardRegimePreset(t *testing.T) {
	tuner := NewTuner(zap.NewNop(), nil, rand.New(rand.NewSource(1)))

	// neutral summary: no micro-adjustment rule fires
	summary := types.Summary{
		TotalTrades:       100,
		WinRate:           50,
		ProfitFactor:      1.2,
		PortfolioMaxDDPct: 5,
	}
	eb := types.ExitBreakdown{SLRate: 30, TPRate: 30, ExpRate: 30, SellRate: 10}

	params, _, skipped := tuner.Tune(resultWith(summary, eb), RegimeBullish, 1.0)

	require.False(t, skipped)
	// min_tech_score: 4.0*(1-0.4) + 3.5*0.4 = 3.8 -> quantized to 3.75
	assert.Equal(t, 3.75, params["min_tech_score"])
	// atr_tp_mult: 4.0*0.6 + 4.5*0.4 = 4.2 -> 4.25
	assert.Equal(t, 4.25, params["atr_tp_mult"])
	assertOnGrid(t, params)
}

func TestGenerateCandidateStaysOnGrid(t *testing.T) {
	tuner := NewTuner(zap.NewNop(), nil, rand.New(rand.NewSource(42)))
	base := DefaultParams()

	for i := 0; i < 500; i++ {
		regime := []Regime{RegimeBullish, RegimeBearish, RegimeSideways, RegimeConservative}[i%4]
		candidate := tuner.GenerateCandidate(base, regime, float64(i%11)/10)
		assertOnGrid(t, candidate)
	}
}

func TestGenerateCandidateIsSeedDeterministic(t *testing.T) {
	a := NewTuner(zap.NewNop(), nil, rand.New(rand.NewSource(7)))
	b := NewTuner(zap.NewNop(), nil, rand.New(rand.NewSource(7)))
	base := DefaultParams()

	for i := 0; i < 20; i++ {
		assert.Equal(t,
			a.GenerateCandidate(base, RegimeSideways, 0.5),
			b.GenerateCandidate(base, RegimeSideways, 0.5),
		)
	}
}

func TestImprovementPctRejectsEqualScores(t *testing.T) {
	assert.Zero(t, improvementPct(0.42, 0.42))
	assert.Less(t, improvementPct(0.42, 0.42), 5.0)
	// negative baselines still read correctly
	assert.Greater(t, improvementPct(-0.1, -0.2), 0.0)
}
