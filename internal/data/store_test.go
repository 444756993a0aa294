package data

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func bar(t *testing.T, date string, close float64) types.Bar {
	t.Helper()
	c := decimal.NewFromFloat(close)
	return types.Bar{
		Date:   day(t, date),
		Open:   c,
		High:   c.Mul(decimal.NewFromFloat(1.01)),
		Low:    c.Mul(decimal.NewFromFloat(0.99)),
		Close:  c,
		Volume: decimal.NewFromInt(1_000_000),
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	bars := []types.Bar{
		bar(t, "2026-01-05", 100),
		bar(t, "2026-01-06", 102),
		bar(t, "2026-01-07", 101),
	}
	require.NoError(t, store.SaveBars("AAPL", bars))

	// force a reload from disk
	store.cache = make(map[string][]types.Bar)

	set, err := store.GetHistory(context.Background(), []string{"AAPL"}, 36500)
	require.NoError(t, err)
	series := set.Series("AAPL")
	require.Len(t, series, 3)
	assert.True(t, series[1].Close.Equal(decimal.NewFromInt(102)))
}

func TestStoreGeneratesDeterministicSampleData(t *testing.T) {
	store, err := NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	first, err := store.GetHistory(ctx, []string{"MSFT"}, 120)
	require.NoError(t, err)

	store.cache = make(map[string][]types.Bar)
	second, err := store.GetHistory(ctx, []string{"MSFT"}, 120)
	require.NoError(t, err)

	a, b := first.Series("MSFT"), second.Series("MSFT")
	require.NotEmpty(t, a)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Close.Equal(b[i].Close), "bar %d differs", i)
	}
	// weekdays only
	for _, bar := range a {
		wd := bar.Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
}

func TestSeriesSetWindows(t *testing.T) {
	set := NewSeriesSet(map[string][]types.Bar{
		"AAPL": {
			bar(t, "2026-01-07", 101), // out of order on purpose
			bar(t, "2026-01-05", 100),
			bar(t, "2026-01-06", 102),
			bar(t, "2026-01-08", 103),
		},
	})

	upto := set.Upto("AAPL", day(t, "2026-01-06"), 5)
	require.Len(t, upto, 2)
	assert.Equal(t, day(t, "2026-01-06"), upto[1].Date)

	upto = set.Upto("AAPL", day(t, "2026-01-08"), 2)
	require.Len(t, upto, 2)
	assert.Equal(t, day(t, "2026-01-07"), upto[0].Date)

	after := set.After("AAPL", day(t, "2026-01-06"), 10)
	require.Len(t, after, 2)
	assert.Equal(t, day(t, "2026-01-07"), after[0].Date)

	assert.Empty(t, set.After("AAPL", day(t, "2026-01-08"), 10))
	assert.Empty(t, set.Series("TSLA"))
}

func TestSeriesSetValidDates(t *testing.T) {
	set := NewSeriesSet(map[string][]types.Bar{
		"AAPL": {bar(t, "2026-01-05", 100), bar(t, "2026-01-06", 101)},
		"MSFT": {bar(t, "2026-01-05", 200)},
	})

	dates := set.ValidDates(2)
	require.Len(t, dates, 1)
	assert.Equal(t, day(t, "2026-01-05"), dates[0])

	assert.Len(t, set.ValidDates(1), 2)
}

func TestFilePoolFallsBackToBuiltin(t *testing.T) {
	pool := NewFilePool(zap.NewNop(), t.TempDir())
	tickers, err := pool.GetPool(context.Background(), "nasdaq100")
	require.NoError(t, err)
	assert.Contains(t, tickers, "AAPL")
	assert.GreaterOrEqual(t, len(tickers), 20)
}
