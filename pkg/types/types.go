// Package types provides shared type definitions for the strategy backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExitStatus classifies how a simulated trade was closed.
type ExitStatus string

const (
	ExitStopLoss     ExitStatus = "stop_loss"
	ExitTakeProfit   ExitStatus = "take_profit"
	ExitTrailingStop ExitStatus = "trailing_stop"
	ExitSellSignal   ExitStatus = "sell_signal"
	ExitExpired      ExitStatus = "expired"
	ExitNoData       ExitStatus = "no_data"
)

// Bar represents a single daily OHLCV candle.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Trade is a fully resolved simulated trade. Instances are built once by the
// trade simulator and never mutated afterwards.
type Trade struct {
	Ticker          string          `json:"ticker"`
	EntryDate       time.Time       `json:"entry_date"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	TechScore       float64         `json:"tech_score"`
	Signals         []string        `json:"signals"`
	ExitDate        time.Time       `json:"exit_date"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	PnLPct          float64         `json:"pnl_pct"`
	Status          ExitStatus      `json:"status"`
	HoldDays        int             `json:"hold_days"`
	MaxDrawdownPct  float64         `json:"max_drawdown_pct"`
	MaxFavorablePct float64         `json:"max_favorable_pct"`
	PartialClosed   bool            `json:"partial_closed"`
	SellSignals     []string        `json:"sell_signals,omitempty"`
	SellScore       float64         `json:"sell_score,omitempty"`
}

// Win reports whether the trade closed with a positive P&L.
func (t Trade) Win() bool {
	return t.PnLPct > 0
}

// Summary holds the aggregate statistics of one backtest run.
type Summary struct {
	TotalTrades          int     `json:"total_trades"`
	WinRate              float64 `json:"win_rate"`
	AvgPnLPct            float64 `json:"avg_pnl_pct"`
	MedianPnLPct         float64 `json:"median_pnl_pct"`
	TotalPnLPct          float64 `json:"total_pnl_pct"`
	StdPnLPct            float64 `json:"std_pnl_pct"`
	AvgWinPct            float64 `json:"avg_win_pct"`
	AvgLossPct           float64 `json:"avg_loss_pct"`
	ProfitFactor         float64 `json:"profit_factor"`
	ExpectedValuePct     float64 `json:"expected_value_pct"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AvgHoldDays          float64 `json:"avg_hold_days"`
	PortfolioMaxDDPct    float64 `json:"portfolio_max_drawdown_pct"`
}

// ExitBreakdown counts trades per exit status plus the derived rates.
type ExitBreakdown struct {
	TakeProfit   int     `json:"take_profit"`
	StopLoss     int     `json:"stop_loss"`
	TrailingStop int     `json:"trailing_stop"`
	SellSignal   int     `json:"sell_signal"`
	Expired      int     `json:"expired"`
	NoData       int     `json:"no_data"`
	PartialClosed int    `json:"partial_closed"`
	TPRate       float64 `json:"tp_rate"`
	SLRate       float64 `json:"sl_rate"`
	TrailRate    float64 `json:"trail_rate"`
	SellRate     float64 `json:"sell_rate"`
	ExpRate      float64 `json:"exp_rate"`
}

// MonthlyReturn aggregates trade P&L by exit month (YYYY-MM).
type MonthlyReturn struct {
	Month       string  `json:"month"`
	Trades      int     `json:"trades"`
	TotalPnLPct float64 `json:"total_pnl_pct"`
	AvgPnLPct   float64 `json:"avg_pnl_pct"`
	WinRate     float64 `json:"win_rate"`
}

// TickerCount pairs a ticker with its trade count.
type TickerCount struct {
	Ticker string `json:"ticker"`
	Count  int    `json:"count"`
}

// TickerPerf aggregates per-ticker performance.
type TickerPerf struct {
	Ticker    string  `json:"ticker"`
	Trades    int     `json:"trades"`
	AvgPnLPct float64 `json:"avg_pnl_pct"`
	WinRate   float64 `json:"win_rate"`
}

// SignalPerf aggregates performance per entry-signal label.
type SignalPerf struct {
	Signal  string  `json:"signal"`
	Count   int     `json:"count"`
	AvgPnL  float64 `json:"avg_pnl"`
	WinRate float64 `json:"win_rate"`
}

// ScoreBracketPerf aggregates performance per technical-score bracket.
type ScoreBracketPerf struct {
	Bracket string  `json:"bracket"`
	Trades  int     `json:"trades"`
	AvgPnL  float64 `json:"avg_pnl"`
	WinRate float64 `json:"win_rate"`
}

// BacktestResult is the immutable aggregate output of one backtest run.
type BacktestResult struct {
	ID                string             `json:"id"`
	Config            BacktestConfig     `json:"config"`
	Summary           Summary            `json:"summary"`
	ExitBreakdown     ExitBreakdown      `json:"exit_breakdown"`
	MonthlyReturns    []MonthlyReturn    `json:"monthly_returns"`
	TopTraded         []TickerCount      `json:"top_traded"`
	BestTickers       []TickerPerf       `json:"best_tickers"`
	WorstTickers      []TickerPerf       `json:"worst_tickers"`
	SignalPerformance []SignalPerf       `json:"signal_performance"`
	ScoreBrackets     []ScoreBracketPerf `json:"score_brackets"`
	Trades            []Trade            `json:"trades"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       time.Time          `json:"completed_at"`
}
