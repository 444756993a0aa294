// Package tuning implements the self-adjusting strategy loop: a composite
// performance score over backtest results, a regime-aware parameter search,
// signal-weight learning, and a safety fallback that reverts to a
// conservative parameter bundle when live performance degrades.
package tuning

import (
	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

// ParamSet is one bundle of tunable strategy parameter values keyed by
// parameter name.
type ParamSet map[string]float64

// Parameter declares the safe search range for one tunable parameter.
type Parameter struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Integer bool    `json:"integer"`
}

// Bounds lists every tunable parameter and its hard search limits. The
// tuner never writes a value outside these ranges.
var Bounds = []Parameter{
	{Name: "top_n", Min: 2, Max: 10, Step: 1, Integer: true},
	{Name: "min_tech_score", Min: 3.0, Max: 6.0, Step: 0.25},
	{Name: "atr_stop_mult", Min: 1.0, Max: 3.5, Step: 0.25},
	{Name: "atr_tp_mult", Min: 2.0, Max: 6.0, Step: 0.25},
	{Name: "max_hold_days", Min: 3, Max: 14, Step: 1, Integer: true},
	{Name: "sell_threshold", Min: 2.0, Max: 8.0, Step: 0.5},
	{Name: "max_positions", Min: 3, Max: 15, Step: 1, Integer: true},
	{Name: "max_daily_entries", Min: 1, Max: 5, Step: 1, Integer: true},
	{Name: "trailing_atr_mult", Min: 1.0, Max: 3.0, Step: 0.25},
	{Name: "trailing_min_pct", Min: 2.0, Max: 5.0, Step: 0.5},
}

func boundFor(name string) (Parameter, bool) {
	for _, b := range Bounds {
		if b.Name == name {
			return b, true
		}
	}
	return Parameter{}, false
}

// DefaultParams mirrors the stock backtest configuration.
func DefaultParams() ParamSet {
	cfg := types.DefaultBacktestConfig()
	return ParamSet{
		"top_n":             float64(cfg.TopN),
		"min_tech_score":    cfg.MinTechScore,
		"atr_stop_mult":     cfg.ATRStopMult,
		"atr_tp_mult":       cfg.ATRTargetMult,
		"max_hold_days":     float64(cfg.MaxHoldDays),
		"sell_threshold":    cfg.SellThreshold,
		"max_positions":     float64(cfg.MaxPositions),
		"max_daily_entries": float64(cfg.MaxDailyEntries),
		"trailing_atr_mult": cfg.TrailingATRMult,
		"trailing_min_pct":  cfg.TrailingMinPct,
	}
}

// Clone returns a deep copy.
func (p ParamSet) Clone() ParamSet {
	out := make(ParamSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Sanitize clamps every known parameter to its bounds and rounds it to its
// declared step, filling in defaults for missing keys. Unknown keys are
// dropped.
func (p ParamSet) Sanitize() ParamSet {
	out := DefaultParams()
	for k, v := range p {
		b, ok := boundFor(k)
		if !ok {
			continue
		}
		out[k] = quantize(b, v)
	}
	return out
}

func quantize(b Parameter, v float64) float64 {
	v = utils.Clamp(v, b.Min, b.Max)
	if b.Integer {
		return float64(int(v + 0.5))
	}
	if b.Step > 0 {
		return utils.RoundToStep(v, b.Step)
	}
	return utils.RoundTo(v, 2)
}

// Apply materializes the parameter set onto a backtest configuration,
// leaving non-tunable fields (pool, window, costs) untouched.
func (p ParamSet) Apply(base types.BacktestConfig) types.BacktestConfig {
	cfg := base
	if v, ok := p["top_n"]; ok {
		cfg.TopN = int(v)
	}
	if v, ok := p["min_tech_score"]; ok {
		cfg.MinTechScore = v
	}
	if v, ok := p["atr_stop_mult"]; ok {
		cfg.ATRStopMult = v
	}
	if v, ok := p["atr_tp_mult"]; ok {
		cfg.ATRTargetMult = v
	}
	if v, ok := p["max_hold_days"]; ok {
		cfg.MaxHoldDays = int(v)
	}
	if v, ok := p["sell_threshold"]; ok {
		cfg.SellThreshold = v
	}
	if v, ok := p["max_positions"]; ok {
		cfg.MaxPositions = int(v)
	}
	if v, ok := p["max_daily_entries"]; ok {
		cfg.MaxDailyEntries = int(v)
	}
	if v, ok := p["trailing_atr_mult"]; ok {
		cfg.TrailingATRMult = v
	}
	if v, ok := p["trailing_min_pct"]; ok {
		cfg.TrailingMinPct = v
	}
	return cfg
}

// regimePresets are the target parameter bundles each market regime blends
// toward.
var regimePresets = map[Regime]ParamSet{
	RegimeBullish: {
		"min_tech_score":    3.5,
		"atr_stop_mult":     2.0,
		"atr_tp_mult":       4.5,
		"max_hold_days":     7,
		"top_n":             5,
		"sell_threshold":    5.0,
		"max_positions":     10,
		"max_daily_entries": 3,
		"trailing_atr_mult": 1.5,
		"trailing_min_pct":  3.0,
	},
	RegimeBearish: {
		"min_tech_score":    5.5,
		"atr_stop_mult":     1.5,
		"atr_tp_mult":       3.0,
		"max_hold_days":     5,
		"top_n":             3,
		"sell_threshold":    3.0,
		"max_positions":     5,
		"max_daily_entries": 2,
		"trailing_atr_mult": 1.0,
		"trailing_min_pct":  2.0,
	},
	RegimeSideways: {
		"min_tech_score":    4.5,
		"atr_stop_mult":     2.0,
		"atr_tp_mult":       3.5,
		"max_hold_days":     5,
		"top_n":             4,
		"sell_threshold":    4.0,
		"max_positions":     8,
		"max_daily_entries": 3,
		"trailing_atr_mult": 1.5,
		"trailing_min_pct":  3.0,
	},
	RegimeConservative: {
		"min_tech_score":    5.0,
		"atr_stop_mult":     1.5,
		"atr_tp_mult":       3.0,
		"max_hold_days":     5,
		"top_n":             3,
		"sell_threshold":    3.5,
		"max_positions":     6,
		"max_daily_entries": 2,
		"trailing_atr_mult": 1.0,
		"trailing_min_pct":  2.5,
	},
}

// PresetFor returns the regime's target bundle; unknown regimes fall back
// to the sideways preset.
func PresetFor(regime Regime) ParamSet {
	if p, ok := regimePresets[regime]; ok {
		return p.Clone()
	}
	return regimePresets[RegimeSideways].Clone()
}

// ConservativeParams is the defensive bundle the safety guard reverts to:
// tight stops, a high entry bar and few positions.
func ConservativeParams() ParamSet {
	return ParamSet{
		"top_n":             3,
		"min_tech_score":    5.5,
		"atr_stop_mult":     1.5,
		"atr_tp_mult":       3.0,
		"max_hold_days":     5,
		"sell_threshold":    3.0,
		"max_positions":     5,
		"max_daily_entries": 2,
		"trailing_atr_mult": 1.0,
		"trailing_min_pct":  2.5,
	}
}
