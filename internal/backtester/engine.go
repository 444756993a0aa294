package backtester

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stocknotify/strategy-backend/internal/data"
	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"go.uber.org/zap"
)

const (
	// lookbackBars is how many bars feed each day's technical analysis.
	lookbackBars = 60
	// minTickersPerDay filters out holidays and thin feed days.
	minTickersPerDay = 20
)

// Engine runs one backtest: a day-by-day walk over valid trading dates that
// admits the top-scoring candidates and simulates each to resolution.
type Engine struct {
	logger   *zap.Logger
	history  data.HistoryProvider
	pools    data.PoolProvider
	analyzer *technical.Analyzer
	cache    *Cache
	sim      *Simulator
}

// candidate is one ticker eligible for entry on a given day.
type candidate struct {
	ticker  string
	close   float64
	dayRet  float64
	score   float64
	atr     float64
	signals []string
}

// NewEngine creates a backtest engine. The cache is shared across engines
// within one tuning session; pass a fresh one for standalone runs.
func NewEngine(logger *zap.Logger, history data.HistoryProvider, pools data.PoolProvider, analyzer *technical.Analyzer, cache *Cache) *Engine {
	if cache == nil {
		cache = NewCache()
	}
	return &Engine{
		logger:   logger.Named("backtest"),
		history:  history,
		pools:    pools,
		analyzer: analyzer,
		cache:    cache,
		sim:      NewSimulator(logger, analyzer),
	}
}

// Run executes a backtest with the given configuration.
func (e *Engine) Run(ctx context.Context, cfg types.BacktestConfig) (*types.BacktestResult, error) {
	startedAt := time.Now()
	id := uuid.NewString()

	tickers, err := e.pools.GetPool(ctx, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("resolve pool %q: %w", cfg.Pool, err)
	}

	e.logger.Info("Starting backtest",
		zap.String("id", id),
		zap.String("pool", cfg.Pool),
		zap.Int("tickers", len(tickers)),
		zap.Int("days", cfg.BacktestDays),
	)

	prices := e.cache.Prices()
	if prices == nil {
		totalDays := lookbackBars + cfg.BacktestDays + cfg.MaxHoldDays + 30
		prices, err = e.history.GetHistory(ctx, tickers, totalDays)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		e.cache.SetPrices(prices)
	}

	validDates := prices.ValidDates(minTickersPerDay)
	if len(validDates) < lookbackBars+10 {
		e.logger.Warn("Not enough valid trading days",
			zap.Int("validDates", len(validDates)),
		)
		return computeResults(id, cfg, nil, startedAt), nil
	}

	btDates := validDates[lookbackBars:]
	if len(btDates) > cfg.BacktestDays {
		btDates = btDates[len(btDates)-cfg.BacktestDays:]
	}
	e.logger.Info("Backtest window",
		zap.Time("start", btDates[0]),
		zap.Time("end", btDates[len(btDates)-1]),
		zap.Int("tradingDays", len(btDates)),
	)

	var trades []types.Trade
	active := make(map[string]time.Time) // ticker -> exit date

	for _, date := range btDates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Release positions whose exit is on or before today. An unset
		// exit date (no_data) keeps the slot occupied for the rest of
		// the walk.
		for ticker, exit := range active {
			if !exit.IsZero() && !exit.After(date) {
				delete(active, ticker)
			}
		}

		candidates := e.analyzeDay(prices, date, active, tickers, cfg)
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		slots := min(cfg.TopN, cfg.MaxDailyEntries, max(0, cfg.MaxPositions-len(active)))
		if slots > len(candidates) {
			slots = len(candidates)
		}
		selected := candidates[:slots]

		for _, c := range selected {
			stop := c.close * 0.95
			target := c.close * 1.10
			if c.atr > 0 {
				stop = c.close - cfg.ATRStopMult*c.atr
				target = c.close + cfg.ATRTargetMult*c.atr
			}

			pending := PendingTrade{
				Ticker:     c.ticker,
				EntryDate:  date,
				EntryPrice: c.close,
				StopLoss:   stop,
				TakeProfit: target,
				TechScore:  c.score,
				Signals:    c.signals,
			}
			future := prices.After(c.ticker, date, cfg.MaxHoldDays+2)
			hist := prices.Upto(c.ticker, date, lookbackBars)

			trade := e.sim.Simulate(pending, hist, future, cfg)
			trades = append(trades, trade)
			active[c.ticker] = trade.ExitDate
		}

		e.logger.Debug("Simulated day",
			zap.Time("date", date),
			zap.Int("candidates", len(candidates)),
			zap.Int("selected", len(selected)),
			zap.Int("activePositions", len(active)),
		)
	}

	result := computeResults(id, cfg, trades, startedAt)
	e.logger.Info("Backtest complete",
		zap.String("id", id),
		zap.Int("trades", result.Summary.TotalTrades),
		zap.Float64("winRate", result.Summary.WinRate),
		zap.Float64("totalPnLPct", result.Summary.TotalPnLPct),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	return result, nil
}

// analyzeDay scores every inactive ticker using only data up to the given
// date and returns those passing the overheat and minimum-score filters.
func (e *Engine) analyzeDay(prices *data.SeriesSet, date time.Time, active map[string]time.Time, tickers []string, cfg types.BacktestConfig) []candidate {
	var candidates []candidate

	for _, ticker := range tickers {
		if _, busy := active[ticker]; busy {
			continue
		}
		bars := prices.Upto(ticker, date, lookbackBars)
		if len(bars) < 30 {
			continue
		}

		last := bars[len(bars)-1]
		prevBar := bars[len(bars)-2]
		close := last.Close.InexactFloat64()
		if close <= 0 {
			continue
		}
		dayRet := 0.0
		if p := prevBar.Close.InexactFloat64(); p > 0 {
			dayRet = (close/p - 1) * 100
		}

		snap, ok := e.cache.Snapshot(ticker, date)
		if !ok {
			snap = e.analyzer.Analyze(bars)
			if snap != nil {
				e.cache.PutSnapshot(ticker, date, snap)
			}
		}
		if snap == nil {
			continue
		}

		score := e.analyzer.Score(snap)
		if overheated(snap, dayRet) {
			continue
		}
		if score < cfg.MinTechScore {
			continue
		}

		candidates = append(candidates, candidate{
			ticker:  ticker,
			close:   close,
			dayRet:  dayRet,
			score:   score,
			atr:     snap.ATR,
			signals: technical.ExtractSignals(snap),
		})
	}
	return candidates
}

// overheated rejects chase entries: two or more signs of an extended move.
func overheated(s *technical.Snapshot, dayRet float64) bool {
	reasons := 0
	if s.RSI > 75 {
		reasons++
	}
	if s.ConsecutiveUp >= 5 {
		reasons++
	}
	if s.BBPosition > 0.95 {
		reasons++
	}
	if s.MA5Deviation > 12 {
		reasons++
	}
	if dayRet > 5 && s.VolumeRatio > 3 {
		reasons++
	}
	if s.Divergence.Bearish {
		reasons++
	}
	return reasons >= 2
}
