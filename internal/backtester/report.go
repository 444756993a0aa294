package backtester

import (
	"fmt"
	"io"
	"math"

	"github.com/stocknotify/strategy-backend/pkg/types"
)

// WriteReport renders a plain-text summary of a backtest result.
func WriteReport(w io.Writer, result *types.BacktestResult) {
	s := result.Summary
	cfg := result.Config

	fmt.Fprintln(w, "==============================================================")
	fmt.Fprintln(w, " Backtest Report")
	fmt.Fprintln(w, "==============================================================")
	fmt.Fprintf(w, " Pool: %s | Days: %d | Top-N: %d | Min score: %.1f\n",
		cfg.Pool, cfg.BacktestDays, cfg.TopN, cfg.MinTechScore)
	fmt.Fprintf(w, " Stop: ATRx%.2f | Target: ATRx%.2f | Max hold: %dd | Sell threshold: %.1f\n",
		cfg.ATRStopMult, cfg.ATRTargetMult, cfg.MaxHoldDays, cfg.SellThreshold)

	if s.TotalTrades == 0 {
		fmt.Fprintln(w, "\n No trades generated.")
		return
	}

	pf := fmt.Sprintf("%.2f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}

	fmt.Fprintf(w, "\n Trades:          %d\n", s.TotalTrades)
	fmt.Fprintf(w, " Win rate:        %.1f%%\n", s.WinRate)
	fmt.Fprintf(w, " Avg P&L:         %+.2f%% (median %+.2f%%)\n", s.AvgPnLPct, s.MedianPnLPct)
	fmt.Fprintf(w, " Total P&L:       %+.2f%%\n", s.TotalPnLPct)
	fmt.Fprintf(w, " Avg win / loss:  %+.2f%% / %+.2f%%\n", s.AvgWinPct, s.AvgLossPct)
	fmt.Fprintf(w, " Profit factor:   %s\n", pf)
	fmt.Fprintf(w, " Expected value:  %+.2f%%/trade\n", s.ExpectedValuePct)
	fmt.Fprintf(w, " Sharpe ratio:    %.2f\n", s.SharpeRatio)
	fmt.Fprintf(w, " Max streaks:     %d wins / %d losses\n", s.MaxConsecutiveWins, s.MaxConsecutiveLosses)
	fmt.Fprintf(w, " Avg hold:        %.1f days\n", s.AvgHoldDays)
	fmt.Fprintf(w, " Max drawdown:    %.2f%%\n", s.PortfolioMaxDDPct)

	eb := result.ExitBreakdown
	fmt.Fprintln(w, "\n Exits:")
	fmt.Fprintf(w, "   stop_loss:     %d (%.1f%%)\n", eb.StopLoss, eb.SLRate)
	fmt.Fprintf(w, "   trailing_stop: %d (%.1f%%)\n", eb.TrailingStop, eb.TrailRate)
	fmt.Fprintf(w, "   sell_signal:   %d (%.1f%%)\n", eb.SellSignal, eb.SellRate)
	fmt.Fprintf(w, "   expired:       %d (%.1f%%)\n", eb.Expired, eb.ExpRate)
	fmt.Fprintf(w, "   partial close: %d\n", eb.PartialClosed)

	if len(result.MonthlyReturns) > 0 {
		fmt.Fprintln(w, "\n Monthly returns:")
		for _, m := range result.MonthlyReturns {
			fmt.Fprintf(w, "   %s: %+.2f%% (%d trades, %.0f%% wins)\n",
				m.Month, m.TotalPnLPct, m.Trades, m.WinRate)
		}
	}

	if len(result.SignalPerformance) > 0 {
		fmt.Fprintln(w, "\n Entry signals (by frequency):")
		limit := len(result.SignalPerformance)
		if limit > 8 {
			limit = 8
		}
		for _, sp := range result.SignalPerformance[:limit] {
			fmt.Fprintf(w, "   %-22s %4d trades | avg %+.2f%% | %.0f%% wins\n",
				sp.Signal, sp.Count, sp.AvgPnL, sp.WinRate)
		}
	}

	if len(result.ScoreBrackets) > 0 {
		fmt.Fprintln(w, "\n Score brackets:")
		for _, br := range result.ScoreBrackets {
			fmt.Fprintf(w, "   %-8s %4d trades | avg %+.2f%% | %.0f%% wins\n",
				br.Bracket, br.Trades, br.AvgPnL, br.WinRate)
		}
	}
	fmt.Fprintln(w, "==============================================================")
}
