package backtester

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
)

func simDay(n int) time.Time {
	return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func simBar(day int, low, high, close float64) types.Bar {
	return types.Bar{
		Date:   simDay(day),
		Open:   decimal.NewFromFloat(close),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(close),
		Volume: decimal.NewFromInt(1_000_000),
	}
}

func simConfig() types.BacktestConfig {
	cfg := types.DefaultBacktestConfig()
	cfg.SellThreshold = 99 // disable signal exits unless a test opts in
	cfg.CommissionPct = 0
	cfg.SlippagePct = 0.05
	return cfg
}

func newTestSimulator() *Simulator {
	return NewSimulator(zap.NewNop(), technical.NewAnalyzer(nil))
}

func TestSimulateNoData(t *testing.T) {
	sim := newTestSimulator()
	pending := PendingTrade{Ticker: "AAPL", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 95, TakeProfit: 110}

	trade := sim.Simulate(pending, nil, nil, simConfig())

	assert.Equal(t, types.ExitNoData, trade.Status)
	assert.True(t, trade.ExitDate.IsZero())
	assert.True(t, trade.ExitPrice.Equal(trade.EntryPrice))
	assert.Zero(t, trade.PnLPct)
}

func TestSimulateStopLoss(t *testing.T) {
	sim := newTestSimulator()
	pending := PendingTrade{Ticker: "MSFT", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	future := []types.Bar{simBar(1, 94, 104, 96)}

	trade := sim.Simulate(pending, nil, future, simConfig())

	assert.Equal(t, types.ExitStopLoss, trade.Status)
	assert.True(t, trade.ExitPrice.Equal(decimal.NewFromInt(95)), "exit at the stop, not the bar low")
	assert.Equal(t, 1, trade.HoldDays)
	assert.InDelta(t, -5.05, trade.PnLPct, 1e-9)
	assert.InDelta(t, -6.0, trade.MaxDrawdownPct, 1e-9)
}

// A bar that pierces both the stop and the target resolves through the stop
// path without ever booking the partial close.
func TestSimulateStopBeatsTargetOnSameBar(t *testing.T) {
	sim := newTestSimulator()
	pending := PendingTrade{Ticker: "NVDA", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	future := []types.Bar{simBar(1, 94, 111, 100)}

	trade := sim.Simulate(pending, nil, future, simConfig())

	// The high also arms the trailing stop before the rules run, so the
	// exit lands at the trailing level rather than the original stop.
	assert.Equal(t, types.ExitTrailingStop, trade.Status)
	assert.False(t, trade.PartialClosed)
	assert.Equal(t, 1, trade.HoldDays)
	exit := trade.ExitPrice.InexactFloat64()
	assert.InDelta(t, 107.25, exit, 1e-9) // 111 - max(2.5*1.5, 111*0.03)
}

func TestSimulatePartialCloseBlendsPnL(t *testing.T) {
	sim := newTestSimulator()
	cfg := simConfig()
	cfg.ATRStopMult = 1.0 // wide back-derived ATR keeps the trail below day-2's low
	pending := PendingTrade{Ticker: "AAPL", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	future := []types.Bar{
		simBar(1, 99, 103, 102),
		simBar(2, 104, 111, 108),
	}

	trade := sim.Simulate(pending, nil, future, cfg)

	require.True(t, trade.PartialClosed)
	assert.Equal(t, types.ExitTrailingStop, trade.Status)
	assert.Equal(t, 2, trade.HoldDays)
	// Half booked at the target (+10%), half force-closed at 108 (+8%),
	// minus slippage. A naive full close at the target would read 9.95.
	assert.InDelta(t, 8.95, trade.PnLPct, 1e-9)
	assert.InDelta(t, 11.0, trade.MaxFavorablePct, 1e-9)
	assert.InDelta(t, -1.0, trade.MaxDrawdownPct, 1e-9)
}

func TestSimulateExpiry(t *testing.T) {
	sim := newTestSimulator()
	cfg := simConfig()
	cfg.MaxHoldDays = 7
	pending := PendingTrade{Ticker: "GOOGL", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 95, TakeProfit: 120}
	closes := []float64{100, 101, 99, 100, 102, 98, 101, 103, 104}
	future := make([]types.Bar, 0, len(closes))
	for i, c := range closes {
		future = append(future, simBar(i+1, 98, 102, c))
	}

	trade := sim.Simulate(pending, nil, future, cfg)

	assert.Equal(t, types.ExitExpired, trade.Status)
	assert.Equal(t, 7, trade.HoldDays)
	assert.True(t, trade.ExitPrice.Equal(decimal.NewFromInt(101)), "expiry exits at the day-7 close, not the last bar")
	assert.InDelta(t, 0.95, trade.PnLPct, 1e-9)
}

// Once armed, the trailing stop only ratchets upward; later bars with lower
// highs must not loosen it.
func TestSimulateTrailingStopNeverLoosens(t *testing.T) {
	sim := newTestSimulator()
	pending := PendingTrade{Ticker: "AMD", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 90, TakeProfit: 110}
	future := []types.Bar{
		simBar(1, 100, 106, 105), // arms trailing: 106 - 7.5 = 98.5
		simBar(2, 101, 108, 107), // ratchets to 108 - 7.5 = 100.5
		simBar(3, 101, 104, 103), // lower high, stop holds at 100.5
		simBar(4, 100, 103, 102), // low touches 100.5
	}

	trade := sim.Simulate(pending, nil, future, simConfig())

	assert.Equal(t, types.ExitTrailingStop, trade.Status)
	assert.Equal(t, 4, trade.HoldDays)
	assert.InDelta(t, 100.5, trade.ExitPrice.InexactFloat64(), 1e-9)
}

func TestSimulatePartialCloseExemptFromExpiry(t *testing.T) {
	sim := newTestSimulator()
	cfg := simConfig()
	cfg.MaxHoldDays = 3
	pending := PendingTrade{Ticker: "META", EntryDate: simDay(0), EntryPrice: 100, StopLoss: 95, TakeProfit: 105}
	future := []types.Bar{
		simBar(1, 103, 106, 104),  // partial close at 105, trailing stop 102.25
		simBar(2, 103, 104, 103.5),
		simBar(3, 103, 104, 104),  // day 3 would expire an unclosed trade
		simBar(4, 103, 105, 104.5),
	}

	trade := sim.Simulate(pending, nil, future, cfg)

	require.True(t, trade.PartialClosed)
	assert.NotEqual(t, types.ExitExpired, trade.Status)
	assert.Equal(t, types.ExitTrailingStop, trade.Status)
	assert.Equal(t, 4, trade.HoldDays)
	assert.InDelta(t, 104.5, trade.ExitPrice.InexactFloat64(), 1e-9)
}

func TestSimulateSellSignalExit(t *testing.T) {
	sim := newTestSimulator()
	cfg := simConfig()
	cfg.SellThreshold = 1.0
	cfg.MaxHoldDays = 7

	// A monotone rally pins RSI at the ceiling, so the overbought sell
	// condition fires as soon as the rule becomes eligible on day 2.
	hist := make([]types.Bar, 0, 40)
	px := 100.0
	for i := 0; i < 40; i++ {
		px += 0.5
		hist = append(hist, simBar(i-40, px-0.3, px+0.3, px))
	}
	entry := px
	pending := PendingTrade{
		Ticker: "TSLA", EntryDate: simDay(0),
		EntryPrice: entry, StopLoss: entry * 0.5, TakeProfit: entry * 3,
	}
	future := []types.Bar{
		simBar(1, entry+0.2, entry+0.8, entry+0.5),
		simBar(2, entry+0.7, entry+1.3, entry+1.0),
		simBar(3, entry+1.2, entry+1.8, entry+1.5),
	}

	trade := sim.Simulate(pending, hist, future, cfg)

	assert.Equal(t, types.ExitSellSignal, trade.Status)
	assert.Equal(t, 2, trade.HoldDays)
	assert.GreaterOrEqual(t, trade.SellScore, 1.0)
	assert.Contains(t, trade.SellSignals, "rsi_overbought")
	assert.InDelta(t, entry+1.0, trade.ExitPrice.InexactFloat64(), 1e-6)
}

func TestSimulateSellSignalDisabledByThreshold(t *testing.T) {
	sim := newTestSimulator()
	cfg := simConfig()
	cfg.SellThreshold = 99
	cfg.MaxHoldDays = 2

	hist := make([]types.Bar, 0, 40)
	px := 100.0
	for i := 0; i < 40; i++ {
		px += 0.5
		hist = append(hist, simBar(i-40, px-0.3, px+0.3, px))
	}
	pending := PendingTrade{
		Ticker: "TSLA", EntryDate: simDay(0),
		EntryPrice: px, StopLoss: px * 0.5, TakeProfit: px * 3,
	}
	future := []types.Bar{
		simBar(1, px+0.2, px+0.8, px+0.5),
		simBar(2, px+0.7, px+1.3, px+1.0),
	}

	trade := sim.Simulate(pending, hist, future, cfg)

	assert.Equal(t, types.ExitExpired, trade.Status)
}
