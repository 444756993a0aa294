package backtester

import (
	"math"
	"sort"
	"time"

	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

// scoreBrackets are the fixed technical-score buckets reported per run.
var scoreBrackets = []struct {
	lo, hi float64
	label  string
}{
	{4.0, 5.0, "4.0~5.0"},
	{5.0, 6.0, "5.0~6.0"},
	{6.0, 7.0, "6.0~7.0"},
	{7.0, 8.0, "7.0~8.0"},
	{8.0, 10.1, "8.0+"},
}

// computeResults aggregates resolved trades into a BacktestResult.
func computeResults(id string, cfg types.BacktestConfig, trades []types.Trade, startedAt time.Time) *types.BacktestResult {
	result := &types.BacktestResult{
		ID:        id,
		Config:    cfg,
		Trades:    trades,
		StartedAt: startedAt,
	}
	if len(trades) == 0 {
		result.CompletedAt = time.Now()
		return result
	}

	pnls := make([]float64, len(trades))
	var wins, losses []float64
	for i, t := range trades {
		pnls[i] = t.PnLPct
		if t.Win() {
			wins = append(wins, t.PnLPct)
		} else {
			losses = append(losses, t.PnLPct)
		}
	}

	total := len(trades)
	winRate := float64(len(wins)) / float64(total) * 100
	avgWin := utils.Mean(wins)
	avgLoss := utils.Mean(losses)

	grossProfit := 0.0
	for _, w := range wins {
		grossProfit += w
	}
	grossLoss := 0.0
	for _, l := range losses {
		grossLoss += math.Abs(l)
	}
	profitFactor := math.Inf(1)
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}

	stdPnL := 0.0
	if len(pnls) > 1 {
		stdPnL = utils.StdDev(pnls)
	}
	avgPnL := utils.Mean(pnls)
	sharpe := 0.0
	if stdPnL > 0 {
		sharpe = avgPnL / stdPnL * math.Sqrt(252)
	}

	ev := winRate/100*avgWin + (100-winRate)/100*avgLoss

	maxWins, maxLosses := maxConsecutive(trades)

	holdSum := 0.0
	totalPnL := 0.0
	for _, t := range trades {
		holdSum += float64(t.HoldDays)
		totalPnL += t.PnLPct
	}

	result.Summary = types.Summary{
		TotalTrades:          total,
		WinRate:              utils.RoundTo(winRate, 2),
		AvgPnLPct:            utils.RoundTo(avgPnL, 4),
		MedianPnLPct:         utils.RoundTo(utils.Median(pnls), 4),
		TotalPnLPct:          utils.RoundTo(totalPnL, 4),
		StdPnLPct:            utils.RoundTo(stdPnL, 4),
		AvgWinPct:            utils.RoundTo(avgWin, 4),
		AvgLossPct:           utils.RoundTo(avgLoss, 4),
		ProfitFactor:         roundFinite(profitFactor, 4),
		ExpectedValuePct:     utils.RoundTo(ev, 4),
		SharpeRatio:          utils.RoundTo(sharpe, 4),
		MaxConsecutiveWins:   maxWins,
		MaxConsecutiveLosses: maxLosses,
		AvgHoldDays:          utils.RoundTo(holdSum/float64(total), 2),
		PortfolioMaxDDPct:    utils.RoundTo(portfolioDrawdown(trades), 4),
	}

	result.ExitBreakdown = exitBreakdown(trades)
	result.MonthlyReturns = monthlyReturns(trades)
	result.TopTraded, result.BestTickers, result.WorstTickers = tickerStats(trades)
	result.SignalPerformance = signalPerformance(trades)
	result.ScoreBrackets = scoreBracketPerformance(trades)
	result.CompletedAt = time.Now()
	return result
}

func roundFinite(v float64, places int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return utils.RoundTo(v, places)
}

// maxConsecutive walks trades in generation (admission) order.
func maxConsecutive(trades []types.Trade) (maxWins, maxLosses int) {
	curW, curL := 0, 0
	for _, t := range trades {
		if t.Win() {
			curW++
			curL = 0
		} else {
			curL++
			curW = 0
		}
		maxWins = max(maxWins, curW)
		maxLosses = max(maxLosses, curL)
	}
	return maxWins, maxLosses
}

// portfolioDrawdown computes the peak-to-trough drop of the cumulative P&L
// curve with trades ordered by exit date (entry date when the exit date is
// unset).
func portfolioDrawdown(trades []types.Trade) float64 {
	sorted := make([]types.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return orderDate(sorted[i]).Before(orderDate(sorted[j]))
	})

	cumulative, peak, maxDD := 0.0, 0.0, 0.0
	for _, t := range sorted {
		cumulative += t.PnLPct
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func orderDate(t types.Trade) time.Time {
	if t.ExitDate.IsZero() {
		return t.EntryDate
	}
	return t.ExitDate
}

func exitBreakdown(trades []types.Trade) types.ExitBreakdown {
	var eb types.ExitBreakdown
	for _, t := range trades {
		switch t.Status {
		case types.ExitTakeProfit:
			eb.TakeProfit++
		case types.ExitStopLoss:
			eb.StopLoss++
		case types.ExitTrailingStop:
			eb.TrailingStop++
		case types.ExitSellSignal:
			eb.SellSignal++
		case types.ExitExpired:
			eb.Expired++
		case types.ExitNoData:
			eb.NoData++
		}
		if t.PartialClosed {
			eb.PartialClosed++
		}
	}
	total := float64(len(trades))
	if total > 0 {
		eb.TPRate = utils.RoundTo(float64(eb.TakeProfit)/total*100, 2)
		eb.SLRate = utils.RoundTo(float64(eb.StopLoss)/total*100, 2)
		eb.TrailRate = utils.RoundTo(float64(eb.TrailingStop)/total*100, 2)
		eb.SellRate = utils.RoundTo(float64(eb.SellSignal)/total*100, 2)
		eb.ExpRate = utils.RoundTo(float64(eb.Expired)/total*100, 2)
	}
	return eb
}

func monthlyReturns(trades []types.Trade) []types.MonthlyReturn {
	type bucket struct {
		trades int
		pnl    float64
		wins   int
	}
	months := make(map[string]*bucket)
	for _, t := range trades {
		if t.ExitDate.IsZero() {
			continue
		}
		key := t.ExitDate.Format("2006-01")
		b := months[key]
		if b == nil {
			b = &bucket{}
			months[key] = b
		}
		b.trades++
		b.pnl += t.PnLPct
		if t.Win() {
			b.wins++
		}
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.MonthlyReturn, 0, len(keys))
	for _, k := range keys {
		b := months[k]
		out = append(out, types.MonthlyReturn{
			Month:       k,
			Trades:      b.trades,
			TotalPnLPct: utils.RoundTo(b.pnl, 2),
			AvgPnLPct:   utils.RoundTo(b.pnl/float64(b.trades), 2),
			WinRate:     utils.RoundTo(float64(b.wins)/float64(b.trades)*100, 1),
		})
	}
	return out
}

func tickerStats(trades []types.Trade) (top []types.TickerCount, best, worst []types.TickerPerf) {
	freq := make(map[string]int)
	pnls := make(map[string][]float64)
	for _, t := range trades {
		freq[t.Ticker]++
		pnls[t.Ticker] = append(pnls[t.Ticker], t.PnLPct)
	}

	for ticker, n := range freq {
		top = append(top, types.TickerCount{Ticker: ticker, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Ticker < top[j].Ticker
	})
	if len(top) > 10 {
		top = top[:10]
	}

	var perf []types.TickerPerf
	for ticker, list := range pnls {
		if len(list) < 2 {
			continue
		}
		winCount := 0
		for _, p := range list {
			if p > 0 {
				winCount++
			}
		}
		perf = append(perf, types.TickerPerf{
			Ticker:    ticker,
			Trades:    len(list),
			AvgPnLPct: utils.RoundTo(utils.Mean(list), 2),
			WinRate:   utils.RoundTo(float64(winCount)/float64(len(list))*100, 1),
		})
	}
	sort.Slice(perf, func(i, j int) bool {
		if perf[i].AvgPnLPct != perf[j].AvgPnLPct {
			return perf[i].AvgPnLPct > perf[j].AvgPnLPct
		}
		return perf[i].Ticker < perf[j].Ticker
	})
	if len(perf) > 5 {
		best = append(best, perf[:5]...)
	} else {
		best = append(best, perf...)
	}
	for i := len(perf) - 1; i >= 0 && len(worst) < 5; i-- {
		worst = append(worst, perf[i])
	}
	return top, best, worst
}

func signalPerformance(trades []types.Trade) []types.SignalPerf {
	type bucket struct {
		count int
		pnls  []float64
	}
	stats := make(map[string]*bucket)
	for _, t := range trades {
		for _, sig := range t.Signals {
			b := stats[sig]
			if b == nil {
				b = &bucket{}
				stats[sig] = b
			}
			b.count++
			b.pnls = append(b.pnls, t.PnLPct)
		}
	}

	out := make([]types.SignalPerf, 0, len(stats))
	for sig, b := range stats {
		winCount := 0
		for _, p := range b.pnls {
			if p > 0 {
				winCount++
			}
		}
		out = append(out, types.SignalPerf{
			Signal:  sig,
			Count:   b.count,
			AvgPnL:  utils.RoundTo(utils.Mean(b.pnls), 2),
			WinRate: utils.RoundTo(float64(winCount)/float64(len(b.pnls))*100, 1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Signal < out[j].Signal
	})
	return out
}

func scoreBracketPerformance(trades []types.Trade) []types.ScoreBracketPerf {
	var out []types.ScoreBracketPerf
	for _, br := range scoreBrackets {
		var pnls []float64
		for _, t := range trades {
			if t.TechScore >= br.lo && t.TechScore < br.hi {
				pnls = append(pnls, t.PnLPct)
			}
		}
		if len(pnls) == 0 {
			continue
		}
		winCount := 0
		for _, p := range pnls {
			if p > 0 {
				winCount++
			}
		}
		out = append(out, types.ScoreBracketPerf{
			Bracket: br.label,
			Trades:  len(pnls),
			AvgPnL:  utils.RoundTo(utils.Mean(pnls), 2),
			WinRate: utils.RoundTo(float64(winCount)/float64(len(pnls))*100, 1),
		})
	}
	return out
}
