package tuning

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/data"
	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

// Regime labels the prevailing market state used for parameter blending.
type Regime string

const (
	RegimeBullish      Regime = "bullish"
	RegimeBearish      Regime = "bearish"
	RegimeSideways     Regime = "sideways"
	RegimeConservative Regime = "conservative"
)

// RegimeDetector infers the market regime, either indirectly from backtest
// performance or directly from an index price series.
type RegimeDetector struct {
	logger *zap.Logger
}

func NewRegimeDetector(logger *zap.Logger) *RegimeDetector {
	return &RegimeDetector{logger: logger}
}

// Detect estimates the regime from a backtest's monthly performance: recent
// P&L level and direction, win-rate level and realized drawdown each vote
// bullish or bearish, and a clear majority decides.
func (d *RegimeDetector) Detect(result *types.BacktestResult) (Regime, float64) {
	monthly := result.MonthlyReturns
	if len(monthly) < 2 {
		return RegimeSideways, 0.3
	}

	recent := monthly
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	pnls := make([]float64, len(recent))
	winRates := make([]float64, len(recent))
	for i, m := range recent {
		pnls[i] = m.TotalPnLPct
		winRates[i] = m.WinRate
	}

	avgPnL := utils.Mean(pnls)
	avgWR := utils.Mean(winRates)
	pnlTrend := 0.0
	if len(pnls) >= 2 {
		pnlTrend = pnls[len(pnls)-1] - pnls[0]
	}

	bullish, bearish := 0.0, 0.0
	switch {
	case avgPnL > 5:
		bullish += 2
	case avgPnL > 2:
		bullish++
	case avgPnL < -5:
		bearish += 2
	case avgPnL < -2:
		bearish++
	}
	if avgWR > 55 {
		bullish += 1.5
	} else if avgWR < 45 {
		bearish += 1.5
	}
	if pnlTrend > 3 {
		bullish++
	} else if pnlTrend < -3 {
		bearish++
	}
	maxDD := result.Summary.PortfolioMaxDDPct
	if maxDD > 15 {
		bearish += 1.5
	} else if maxDD > 10 {
		bearish += 0.5
	}

	total := bullish + bearish
	regime := RegimeSideways
	confidence := 0.5
	switch {
	case total == 0:
		confidence = 0.3
	case bullish > bearish*1.5:
		regime = RegimeBullish
		confidence = min(0.9, bullish/(total+1))
	case bearish > bullish*1.5:
		regime = RegimeBearish
		confidence = min(0.9, bearish/(total+1))
	}

	d.logger.Info("Detected market regime",
		zap.String("regime", string(regime)),
		zap.Float64("confidence", confidence),
		zap.Float64("avgPnLPct", avgPnL),
		zap.Float64("avgWinRate", avgWR),
		zap.Float64("maxDrawdownPct", maxDD),
	)
	return regime, confidence
}

// DetectFromPrices reads the regime straight off the index price series:
// the slope of the 20-day average and the close's position relative to the
// 20/50-day averages. Uses SPY when the set carries it, otherwise the
// equal-weight mean close across all tickers.
func (d *RegimeDetector) DetectFromPrices(set *data.SeriesSet) (Regime, float64) {
	if set == nil {
		return RegimeSideways, 0.3
	}
	closes := indexCloses(set)
	if len(closes) < 50 {
		return RegimeSideways, 0.3
	}

	sma20 := technical.Sma(closes, 20)
	sma50 := technical.Sma(closes, 50)
	if len(sma20) < 5 || len(sma50) == 0 {
		return RegimeSideways, 0.3
	}

	cur20 := sma20[len(sma20)-1]
	back20 := sma20[len(sma20)-5]
	slope20 := 0.0
	if back20 > 0 {
		slope20 = (cur20 - back20) / back20 * 100
	}

	lastClose := closes[len(closes)-1]
	aboveSMA20 := lastClose > cur20
	aboveSMA50 := lastClose > sma50[len(sma50)-1]

	switch {
	case slope20 > 0.5 && aboveSMA20 && aboveSMA50:
		return RegimeBullish, 0.8
	case slope20 < -0.5 && !aboveSMA20 && !aboveSMA50:
		return RegimeBearish, 0.8
	case slope20 > 0.2 && aboveSMA20:
		return RegimeBullish, 0.6
	case slope20 < -0.2 && !aboveSMA20:
		return RegimeBearish, 0.6
	default:
		return RegimeSideways, 0.5
	}
}

func indexCloses(set *data.SeriesSet) []float64 {
	if bars := set.Series("SPY"); len(bars) > 0 {
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close.InexactFloat64()
		}
		return closes
	}

	type acc struct {
		sum   float64
		count int
	}
	byDate := make(map[time.Time]*acc)
	for _, ticker := range set.Tickers() {
		for _, b := range set.Series(ticker) {
			a := byDate[b.Date]
			if a == nil {
				a = &acc{}
				byDate[b.Date] = a
			}
			a.sum += b.Close.InexactFloat64()
			a.count++
		}
	}

	dates := make([]time.Time, 0, len(byDate))
	for dt := range byDate {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	closes := make([]float64, len(dates))
	for i, dt := range dates {
		a := byDate[dt]
		closes[i] = a.sum / float64(a.count)
	}
	return closes
}
