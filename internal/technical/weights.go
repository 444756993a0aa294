package technical

import "strings"

// WeightTable maps signal weight keys to their multipliers. A key absent
// from the table behaves as weight 1.0.
type WeightTable map[string]float64

// Entry-signal weight keys.
const (
	WeightPullback         = "pullback_score"
	WeightBreakout         = "breakout_score"
	WeightDivergence       = "divergence_score"
	WeightStochCross       = "stoch_cross_up"
	WeightGoldenCross      = "golden_cross"
	WeightMAAlignment      = "ma_alignment"
	WeightMACDCrossUp      = "macd_cross_up"
	WeightBullishVolume    = "bullish_volume"
	WeightOBVRising        = "obv_rising"
	WeightRSIBounce        = "rsi_oversold_bounce"
	WeightSqueezeBreakout  = "bb_squeeze_breakout"
	WeightStrongTrend      = "strong_trend"
	WeightRRBonus          = "rr_bonus"
)

// Sell-signal weight keys.
const (
	WeightSellDeadCross   = "sell_dead_cross"
	WeightSellMACDDown    = "sell_macd_down"
	WeightSellBearishDiv  = "sell_bearish_divergence"
	WeightSellRSIHot      = "sell_rsi_overbought"
	WeightSellStochHot    = "sell_stoch_overbought"
	WeightSellBBReject    = "sell_bb_reject"
)

// DefaultWeights returns the neutral weight table, all keys at 1.0.
func DefaultWeights() WeightTable {
	return WeightTable{
		WeightPullback:        1.0,
		WeightBreakout:        1.0,
		WeightDivergence:      1.0,
		WeightStochCross:      1.0,
		WeightGoldenCross:     1.0,
		WeightMAAlignment:     1.0,
		WeightMACDCrossUp:     1.0,
		WeightBullishVolume:   1.0,
		WeightOBVRising:       1.0,
		WeightRSIBounce:       1.0,
		WeightSqueezeBreakout: 1.0,
		WeightStrongTrend:     1.0,
		WeightRRBonus:         1.0,

		WeightSellDeadCross:  1.0,
		WeightSellMACDDown:   1.0,
		WeightSellBearishDiv: 1.0,
		WeightSellRSIHot:     1.0,
		WeightSellStochHot:   1.0,
		WeightSellBBReject:   1.0,
	}
}

// Clone returns a deep copy of the table.
func (w WeightTable) Clone() WeightTable {
	out := make(WeightTable, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Weight returns the multiplier for a key, 1.0 when unset.
func (w WeightTable) Weight(key string) float64 {
	if v, ok := w[key]; ok {
		return v
	}
	return 1.0
}

// signalNameMap maps exact entry-signal labels to their weight key.
var signalNameMap = map[string]string{
	"ma20_pullback":      WeightPullback,
	"ma50_pullback":      WeightPullback,
	"bb_lower_bounce":    WeightPullback,
	"golden_cross":       WeightGoldenCross,
	"macd_cross_up":      WeightMACDCrossUp,
	"ma_alignment":       WeightMAAlignment,
	"stoch_cross":        WeightStochCross,
	"bullish_divergence": WeightDivergence,
	"squeeze_breakout":   WeightSqueezeBreakout,
}

// WeightKeyFor maps a raw entry-signal label to the weight key it feeds.
// Returns "" when the label has no weighted counterpart. Several labels can
// share one key (all pullback variants feed pullback_score).
func WeightKeyFor(label string) string {
	for part, key := range signalNameMap {
		if strings.Contains(label, part) {
			return key
		}
	}
	if strings.Contains(label, "breakout") {
		return WeightBreakout
	}
	if strings.HasPrefix(label, "volume_") {
		return WeightBullishVolume
	}
	return ""
}
