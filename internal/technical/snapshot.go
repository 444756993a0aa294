package technical

import "fmt"

// PullbackInfo flags shallow-retracement entry setups within an uptrend.
type PullbackInfo struct {
	ToMA20    bool `json:"pullback_to_ma20"`
	ToMA50    bool `json:"pullback_to_ma50"`
	ToBBLower bool `json:"pullback_to_bb_lower"`
}

// BreakoutInfo describes a resistance breakout.
type BreakoutInfo struct {
	Detected        bool   `json:"breakout_detected"`
	Type            string `json:"breakout_type,omitempty"`
	VolumeConfirmed bool   `json:"volume_confirmed"`
}

// DivergenceInfo flags price/RSI divergences.
type DivergenceInfo struct {
	Bullish bool `json:"bullish_divergence"`
	Bearish bool `json:"bearish_divergence"`
}

// RiskRewardInfo estimates the reward-to-risk ratio from nearby
// support/resistance levels.
type RiskRewardInfo struct {
	Ratio     float64 `json:"ratio"`
	Favorable bool    `json:"favorable"`
}

// Snapshot is the immutable technical state of one ticker at one date.
// It is produced once by Analyzer.Analyze and never mutated.
type Snapshot struct {
	CurrentPrice   float64 `json:"current_price"`
	PrevPrice      float64 `json:"prev_price"`
	PriceChangePct float64 `json:"price_change_pct"`

	SMA5           float64 `json:"sma5"`
	SMA10          float64 `json:"sma10"`
	SMA20          float64 `json:"sma20"`
	SMA50          float64 `json:"sma50,omitempty"`
	HasSMA50       bool    `json:"has_sma50"`
	MA5Deviation   float64 `json:"ma5_deviation"`
	MA20Deviation  float64 `json:"ma20_deviation"`

	GoldenCross bool `json:"golden_cross"`
	DeadCross   bool `json:"dead_cross"`
	MAAlignment bool `json:"ma_alignment"`

	RSI              float64 `json:"rsi"`
	RSIOversold      bool    `json:"rsi_oversold"`
	RSIOverbought    bool    `json:"rsi_overbought"`
	RSIOversoldBounce bool   `json:"rsi_oversold_bounce"`

	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	MACDCrossUp   bool    `json:"macd_cross_up"`
	MACDCrossDown bool    `json:"macd_cross_down"`

	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	BBPosition float64 `json:"bb_position"`
	BBSqueeze  bool    `json:"bb_squeeze"`

	ATR         float64 `json:"atr"`
	ATRPercent  float64 `json:"atr_percent"`
	ADX         float64 `json:"adx"`
	StrongTrend bool    `json:"strong_trend"`

	Volume        float64 `json:"volume"`
	VolumeRatio   float64 `json:"volume_ratio"`
	BullishVolume bool    `json:"bullish_volume"`
	OBVRising     bool    `json:"obv_rising"`

	StochK          float64 `json:"stoch_k"`
	StochD          float64 `json:"stoch_d"`
	StochCrossUp    bool    `json:"stoch_cross_up"`
	StochOverbought bool    `json:"stoch_overbought"`

	ConsecutiveUp int `json:"consecutive_up"`

	Pullback   PullbackInfo   `json:"pullback"`
	Breakout   BreakoutInfo   `json:"breakout"`
	Divergence DivergenceInfo `json:"divergence"`
	RiskReward RiskRewardInfo `json:"risk_reward"`
}

// ExtractSignals returns the entry-signal labels active in the snapshot.
func ExtractSignals(s *Snapshot) []string {
	if s == nil {
		return nil
	}
	var signals []string

	if s.Pullback.ToMA20 {
		signals = append(signals, "ma20_pullback")
	}
	if s.Pullback.ToMA50 {
		signals = append(signals, "ma50_pullback")
	}
	if s.Pullback.ToBBLower {
		signals = append(signals, "bb_lower_bounce")
	}
	if s.Breakout.Detected {
		signals = append(signals, fmt.Sprintf("breakout_%s", s.Breakout.Type))
	}
	if s.Divergence.Bullish {
		signals = append(signals, "bullish_divergence")
	}
	if s.GoldenCross {
		signals = append(signals, "golden_cross")
	}
	if s.MACDCrossUp {
		signals = append(signals, "macd_cross_up")
	}
	if s.MAAlignment {
		signals = append(signals, "ma_alignment")
	}
	if s.BullishVolume {
		signals = append(signals, fmt.Sprintf("volume_%.1fx", s.VolumeRatio))
	}
	if s.StochCrossUp {
		signals = append(signals, "stoch_cross")
	}
	if s.BBSqueeze && s.Breakout.Detected {
		signals = append(signals, "squeeze_breakout")
	}

	return signals
}
