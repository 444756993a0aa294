package backtester

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"go.uber.org/zap"
)

// PendingTrade is the mutable entry-side half of a trade. The simulator
// consumes it and returns an immutable resolved types.Trade.
type PendingTrade struct {
	Ticker     string
	EntryDate  time.Time
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	TechScore  float64
	Signals    []string
}

// exitEvent is the outcome of one exit rule firing on one bar.
type exitEvent struct {
	status      types.ExitStatus
	price       float64
	date        time.Time
	holdDays    int
	sellSignals []string
	sellScore   float64
}

// simState carries the per-bar evolving state of a simulated position.
type simState struct {
	cfg     types.BacktestConfig
	entry   float64
	stop    float64
	target  float64
	atr     float64
	halfway float64

	highest        float64
	trailingActive bool
	trailingStop   float64
	partialClosed  bool
	partialPnL     float64

	maxDD  float64
	maxFav float64

	hist   []types.Bar
	future []types.Bar
}

func (st *simState) effectiveStop() float64 {
	if st.trailingActive {
		return st.trailingStop
	}
	return st.stop
}

// exitRule inspects the bar at index i (day number i+1) and either returns
// an exit, nil to let the next rule run, or skipBar to finish the bar
// without exiting.
type exitRule func(st *simState, bar types.Bar, i int) *exitEvent

// skipBar tells the rule loop to stop evaluating the current bar while
// keeping the position open.
var skipBar = &exitEvent{}

// Simulator resolves pending trades against future bars. Exit rules run in
// strict priority order per bar: hard/trailing stop, partial take-profit,
// sell signal, expiry.
type Simulator struct {
	logger   *zap.Logger
	analyzer *technical.Analyzer
	rules    []exitRule
}

// NewSimulator creates a trade simulator using the analyzer for sell-signal
// evaluation.
func NewSimulator(logger *zap.Logger, analyzer *technical.Analyzer) *Simulator {
	s := &Simulator{logger: logger, analyzer: analyzer}
	s.rules = []exitRule{
		stopRule,
		partialTargetRule,
		s.sellSignalRule,
		expiryRule,
	}
	return s
}

// Simulate walks a pending trade forward through future bars and returns the
// resolved trade. hist holds bars up to and including the entry date and is
// only used for sell-signal recomputation.
func (s *Simulator) Simulate(pending PendingTrade, hist, future []types.Bar, cfg types.BacktestConfig) types.Trade {
	trade := types.Trade{
		Ticker:     pending.Ticker,
		EntryDate:  pending.EntryDate,
		EntryPrice: decimal.NewFromFloat(pending.EntryPrice).Round(4),
		StopLoss:   decimal.NewFromFloat(pending.StopLoss).Round(4),
		TakeProfit: decimal.NewFromFloat(pending.TakeProfit).Round(4),
		TechScore:  pending.TechScore,
		Signals:    pending.Signals,
	}

	if len(future) == 0 {
		s.logger.Debug("No bars after entry, voiding trade",
			zap.String("ticker", pending.Ticker),
			zap.Time("entryDate", pending.EntryDate),
		)
		trade.Status = types.ExitNoData
		trade.ExitPrice = trade.EntryPrice
		trade.PnLPct = 0
		return trade
	}

	st := &simState{
		cfg:     cfg,
		entry:   pending.EntryPrice,
		stop:    pending.StopLoss,
		target:  pending.TakeProfit,
		highest: pending.EntryPrice,
		hist:    hist,
		future:  future,
	}
	st.trailingStop = st.stop
	st.halfway = st.entry + (st.target-st.entry)*0.5

	// Back-derive ATR from the stop distance; positions created from a
	// degenerate stop fall back to 2% of entry.
	if st.entry > st.stop && cfg.ATRStopMult > 0 {
		st.atr = (st.entry - st.stop) / cfg.ATRStopMult
	} else {
		st.atr = st.entry * 0.02
	}

	var exit *exitEvent
bars:
	for i, bar := range future {
		low := bar.Low.InexactFloat64()
		high := bar.High.InexactFloat64()

		if st.entry > 0 {
			ddPct := (low - st.entry) / st.entry * 100
			favPct := (high - st.entry) / st.entry * 100
			if ddPct < st.maxDD {
				st.maxDD = ddPct
			}
			if favPct > st.maxFav {
				st.maxFav = favPct
			}
		}

		if high > st.highest {
			st.highest = high
		}
		if !st.trailingActive && st.highest >= st.halfway {
			st.trailingActive = true
		}
		if st.trailingActive && st.atr > 0 {
			dist := max(st.atr*cfg.TrailingATRMult, st.highest*cfg.TrailingMinPct/100)
			if newStop := st.highest - dist; newStop > st.trailingStop {
				st.trailingStop = newStop
			}
		}

		for _, rule := range s.rules {
			ev := rule(st, bar, i)
			if ev == nil {
				continue
			}
			if ev == skipBar {
				break
			}
			exit = ev
			break bars
		}
	}

	if exit == nil {
		// Window exhausted without a triggered exit: force-close at the
		// last available close.
		lastBar := future[len(future)-1]
		status := types.ExitExpired
		if st.trailingActive {
			status = types.ExitTrailingStop
		}
		exit = &exitEvent{
			status:   status,
			price:    lastBar.Close.InexactFloat64(),
			date:     lastBar.Date,
			holdDays: len(future),
		}
	}

	trade.Status = exit.status
	trade.ExitDate = exit.date
	trade.ExitPrice = decimal.NewFromFloat(exit.price).Round(4)
	trade.HoldDays = exit.holdDays
	trade.SellSignals = exit.sellSignals
	trade.SellScore = exit.sellScore
	trade.MaxDrawdownPct = st.maxDD
	trade.MaxFavorablePct = st.maxFav
	trade.PartialClosed = st.partialClosed

	if st.entry > 0 {
		remaining := (exit.price - st.entry) / st.entry * 100
		if st.partialClosed {
			// Half the position left at the target, half rode the trail.
			trade.PnLPct = (st.partialPnL*0.5 + remaining*0.5) - cfg.CommissionPct - cfg.SlippagePct
		} else {
			trade.PnLPct = remaining - cfg.CommissionPct - cfg.SlippagePct
		}
	}

	return trade
}

// stopRule closes the full position when the bar's low touches the
// effective stop. A trailing stop that was activated reports as
// trailing_stop, the initial hard stop as stop_loss.
func stopRule(st *simState, bar types.Bar, i int) *exitEvent {
	low := bar.Low.InexactFloat64()
	if low > st.effectiveStop() {
		return nil
	}
	status := types.ExitStopLoss
	if st.trailingActive {
		status = types.ExitTrailingStop
	}
	return &exitEvent{
		status:   status,
		price:    st.effectiveStop(),
		date:     bar.Date,
		holdDays: i + 1,
	}
}

// partialTargetRule books half the position at the target the first time
// the high reaches it, activates trailing for the rest, and finishes the
// bar without exiting. A partially closed position is exempt from expiry.
func partialTargetRule(st *simState, bar types.Bar, _ int) *exitEvent {
	if st.partialClosed || bar.High.InexactFloat64() < st.target {
		return nil
	}
	st.partialClosed = true
	if st.entry > 0 {
		st.partialPnL = (st.target - st.entry) / st.entry * 100
	}
	st.trailingActive = true
	return skipBar
}

// sellSignalRule recomputes the technical snapshot from entry history plus
// the bars seen so far and exits at the close when the sell score reaches
// the configured threshold. It only runs from the second bar onward, and a
// threshold of 99+ disables it entirely.
func (s *Simulator) sellSignalRule(st *simState, bar types.Bar, i int) *exitEvent {
	if i+1 < 2 || st.cfg.SellThreshold >= 99 || len(st.hist) < 30 {
		return nil
	}
	combined := make([]types.Bar, 0, len(st.hist)+i+1)
	combined = append(combined, st.hist...)
	combined = append(combined, st.future[:i+1]...)
	if len(combined) < 30 {
		return nil
	}
	snap := s.analyzer.Analyze(combined)
	if snap == nil {
		return nil
	}
	score, labels := s.analyzer.SellScore(snap)
	if score < st.cfg.SellThreshold {
		return nil
	}
	return &exitEvent{
		status:      types.ExitSellSignal,
		price:       bar.Close.InexactFloat64(),
		date:        bar.Date,
		holdDays:    i + 1,
		sellSignals: labels,
		sellScore:   score,
	}
}

// expiryRule closes at the bar's close once the maximum hold is reached.
// Positions that already booked a partial close are exempt and keep
// trailing instead.
func expiryRule(st *simState, bar types.Bar, i int) *exitEvent {
	if i+1 < st.cfg.MaxHoldDays || st.partialClosed {
		return nil
	}
	return &exitEvent{
		status:   types.ExitExpired,
		price:    bar.Close.InexactFloat64(),
		date:     bar.Date,
		holdDays: i + 1,
	}
}
