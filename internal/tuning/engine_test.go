package tuning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/data"
	"github.com/stocknotify/strategy-backend/pkg/types"
)

type tuneHistory struct {
	set *data.SeriesSet
}

func (f *tuneHistory) GetHistory(context.Context, []string, int) (*data.SeriesSet, error) {
	return f.set, nil
}

type tunePool struct {
	tickers []string
}

func (f *tunePool) GetPool(context.Context, string) ([]string, error) {
	return f.tickers, nil
}

type tuneRebalancer struct {
	calls        int
	maxPositions int
	err          error
}

func (f *tuneRebalancer) Rebalance(_ context.Context, maxPositions int) error {
	f.calls++
	f.maxPositions = maxPositions
	return f.err
}

// breakoutSeries rises in a gentle sawtooth with steadily growing volume, so
// every third close is a volume-confirmed 20-day high. That keeps scores above
// the entry threshold on those days without tripping the overheat filter.
func breakoutSeries(base float64, days int) []types.Bar {
	bars := make([]types.Bar, 0, days)
	px := base
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		switch i % 3 {
		case 0, 1:
			px += base * 0.008
		default:
			px -= base * 0.012
		}
		bars = append(bars, types.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   decimal.NewFromFloat(px * 0.998),
			High:   decimal.NewFromFloat(px * 1.002),
			Low:    decimal.NewFromFloat(px * 0.994),
			Close:  decimal.NewFromFloat(px),
			Volume: decimal.NewFromFloat(1_000_000 * math.Pow(1.1, float64(i))),
		})
	}
	return bars
}

func tuneUniverse(tickers, days int) (*data.SeriesSet, []string) {
	byTicker := make(map[string][]types.Bar, tickers)
	names := make([]string, 0, tickers)
	for i := 0; i < tickers; i++ {
		name := fmt.Sprintf("TK%02d", i)
		names = append(names, name)
		byTicker[name] = breakoutSeries(60+float64(i)*4, days)
	}
	return data.NewSeriesSet(byTicker), names
}

func newTestSelfTuner(t *testing.T, days int, opts SelfTunerOptions) (*SelfTuner, *Store) {
	t.Helper()
	set, names := tuneUniverse(24, days)
	store := newTestStore(t)

	// A permissive entry threshold keeps the synthetic universe trading.
	state, err := store.LoadState()
	require.NoError(t, err)
	state.CurrentParams["min_tech_score"] = 3.0
	require.NoError(t, store.SaveState(state))

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(11))
	}
	if opts.Pool == "" {
		opts.Pool = "testpool"
	}
	if opts.BacktestDays == 0 {
		opts.BacktestDays = 40
	}
	if opts.Iterations == 0 {
		opts.Iterations = 3
	}
	return NewSelfTuner(zap.NewNop(), &tuneHistory{set: set}, &tunePool{tickers: names}, store, opts), store
}

func TestSelfTunerRunCompletes(t *testing.T) {
	rebalancer := &tuneRebalancer{}
	tuner, store := newTestSelfTuner(t, 110, SelfTunerOptions{Rebalancer: rebalancer})

	report, err := tuner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.GreaterOrEqual(t, report.BaselineSummary.TotalTrades, 10)
	assert.NotEmpty(t, report.Regime)
	assert.Len(t, report.SearchLog, 3)
	require.NotEmpty(t, report.FinalParams)
	assertOnGrid(t, report.FinalParams)

	// Adopted or not, the cycle persists state, weights and history.
	state, err := store.LoadState()
	require.NoError(t, err)
	assert.Equal(t, report.FinalParams, state.CurrentParams)
	assert.False(t, state.LastTunedAt.IsZero())
	require.Len(t, state.TuningHistory, 1)
	assert.Equal(t, report.Regime, state.TuningHistory[0].Regime)

	assert.FileExists(t, filepath.Join(store.configDir, weightsFile))
	assert.FileExists(t, filepath.Join(store.dataDir, historyFile))

	assert.Equal(t, 1, rebalancer.calls)
	assert.Equal(t, int(report.FinalParams["max_positions"]), rebalancer.maxPositions)
}

func TestSelfTunerAdoptionRequiresImprovement(t *testing.T) {
	tuner, _ := newTestSelfTuner(t, 110, SelfTunerOptions{MinImprovement: 1e9})

	report, err := tuner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.False(t, report.Adopted)
	assert.Empty(t, report.ParamChanges)
	assert.Equal(t, 3.0, report.FinalParams["min_tech_score"])
}

func TestSelfTunerSkipsThinBaseline(t *testing.T) {
	// too little history for even one backtest day
	tuner, store := newTestSelfTuner(t, 40, SelfTunerOptions{})

	report, err := tuner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, report.Status)
	assert.Equal(t, "insufficient_trades", report.Reason)

	// A skipped cycle leaves no trace beyond the pre-seeded state.
	state, err := store.LoadState()
	require.NoError(t, err)
	assert.True(t, state.LastTunedAt.IsZero())
	assert.Empty(t, state.TuningHistory)
	assert.NoFileExists(t, filepath.Join(store.dataDir, historyFile))
}

func TestSelfTunerDryRunSkipsPersistence(t *testing.T) {
	rebalancer := &tuneRebalancer{}
	tuner, store := newTestSelfTuner(t, 110, SelfTunerOptions{DryRun: true, Rebalancer: rebalancer})

	report, err := tuner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.NoFileExists(t, filepath.Join(store.configDir, weightsFile))
	assert.NoFileExists(t, filepath.Join(store.dataDir, historyFile))
	assert.Zero(t, rebalancer.calls)

	state, err := store.LoadState()
	require.NoError(t, err)
	assert.Empty(t, state.TuningHistory)
}

func TestSelfTunerToleratesRebalanceFailure(t *testing.T) {
	rebalancer := &tuneRebalancer{err: errors.New("broker unavailable")}
	tuner, _ := newTestSelfTuner(t, 110, SelfTunerOptions{Rebalancer: rebalancer})

	report, err := tuner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, 1, rebalancer.calls)
}

func TestSelfTunerHonorsCancellation(t *testing.T) {
	tuner, _ := newTestSelfTuner(t, 110, SelfTunerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tuner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelfTunerOptionDefaults(t *testing.T) {
	tuner := NewSelfTuner(zap.NewNop(), &tuneHistory{}, &tunePool{}, NewStore(zap.NewNop(), os.TempDir(), os.TempDir()), SelfTunerOptions{})

	assert.Equal(t, "nasdaq100", tuner.opts.Pool)
	assert.Equal(t, 504, tuner.opts.BacktestDays)
	assert.Equal(t, 10, tuner.opts.Iterations)
	assert.Equal(t, 5.0, tuner.opts.MinImprovement)
	assert.NotNil(t, tuner.opts.Rand)
}
