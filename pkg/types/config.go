// Package types provides configuration types for the strategy backend.
package types

// BacktestConfig represents the parameter bundle for one backtest run.
// A config is owned by a single engine instance for the duration of the run
// and is never mutated after the run starts.
type BacktestConfig struct {
	Pool            string  `json:"pool"`
	BacktestDays    int     `json:"backtest_days"`
	TopN            int     `json:"top_n"`
	MinTechScore    float64 `json:"min_tech_score"`
	MaxHoldDays     int     `json:"max_hold_days"`
	ATRStopMult     float64 `json:"atr_stop_mult"`
	ATRTargetMult   float64 `json:"atr_tp_mult"`
	SellThreshold   float64 `json:"sell_threshold"`
	MaxPositions    int     `json:"max_positions"`
	MaxDailyEntries int     `json:"max_daily_entries"`
	TrailingATRMult float64 `json:"trailing_atr_mult"`
	TrailingMinPct  float64 `json:"trailing_min_pct"`
	CommissionPct   float64 `json:"commission_pct"`
	SlippagePct     float64 `json:"slippage_pct"`
}

// DefaultBacktestConfig returns the baseline backtest configuration.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		Pool:            "nasdaq100",
		BacktestDays:    90,
		TopN:            5,
		MinTechScore:    4.0,
		MaxHoldDays:     7,
		ATRStopMult:     2.0,
		ATRTargetMult:   4.0,
		SellThreshold:   4.0,
		MaxPositions:    10,
		MaxDailyEntries: 3,
		TrailingATRMult: 1.5,
		TrailingMinPct:  3.0,
		CommissionPct:   0.0,
		SlippagePct:     0.05,
	}
}
