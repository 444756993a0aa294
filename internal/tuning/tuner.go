package tuning

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

// minTradesForTuning is the sample floor below which parameter adjustment
// is skipped outright.
const minTradesForTuning = 20

// PerformanceScore condenses a backtest summary into one comparable number:
// 30% win rate, 25% profit factor (full marks at 3), 20% Sharpe (full marks
// at 2), 15% expected value, minus a 10% drawdown penalty (maxed at 30%
// drawdown). Every component is normalized to [0,1] before weighting.
func PerformanceScore(s types.Summary) float64 {
	pf := math.Max(0, s.ProfitFactor)
	wr := math.Max(0, s.WinRate)
	maxDD := math.Abs(s.PortfolioMaxDDPct)

	wrScore := wr / 100
	pfScore := math.Min(pf/3, 1)
	sharpeScore := utils.Clamp(s.SharpeRatio/2, 0, 1)
	evScore := utils.Clamp((s.ExpectedValuePct+2)/6, 0, 1)
	ddPenalty := math.Min(maxDD/30, 1)

	score := wrScore*0.30 + pfScore*0.25 + sharpeScore*0.20 + evScore*0.15 - ddPenalty*0.10
	return utils.RoundTo(score, 6)
}

// ParamChange records one parameter moving during a tuning pass.
type ParamChange struct {
	Old          float64 `json:"old"`
	New          float64 `json:"new"`
	RegimeTarget float64 `json:"regime_target,omitempty"`
}

// Tuner adjusts strategy parameters from backtest evidence. Candidate
// generation draws from the injected random source so searches can be
// reproduced.
type Tuner struct {
	logger *zap.Logger
	params ParamSet
	rng    *rand.Rand
}

// NewTuner creates a tuner starting from the given parameters (defaults
// when nil). A nil rng gets a time-seeded source.
func NewTuner(logger *zap.Logger, params ParamSet, rng *rand.Rand) *Tuner {
	if params == nil {
		params = DefaultParams()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Tuner{logger: logger, params: params.Sanitize(), rng: rng}
}

// Params returns the tuner's current parameter set.
func (t *Tuner) Params() ParamSet {
	return t.params.Clone()
}

// Tune runs one rule-based adjustment pass: blend toward the regime preset
// in proportion to detection confidence, nudge individual parameters from
// exit-rate evidence, then clamp and quantize. Returns the new set, the
// changes made, and whether the pass was skipped for lack of trades.
func (t *Tuner) Tune(result *types.BacktestResult, regime Regime, confidence float64) (ParamSet, map[string]ParamChange, bool) {
	summary := result.Summary
	if summary.TotalTrades < minTradesForTuning {
		t.logger.Warn("Too few trades for parameter tuning",
			zap.Int("trades", summary.TotalTrades),
			zap.Int("required", minTradesForTuning),
		)
		return t.params.Clone(), nil, true
	}

	t.logger.Info("Tuning parameters",
		zap.Float64("performanceScore", PerformanceScore(summary)),
		zap.String("regime", string(regime)),
	)

	preset := PresetFor(regime)
	blendRatio := confidence * 0.4 // regime influence tops out at 40%

	blended := make(ParamSet, len(t.params))
	for key, cur := range t.params {
		target, ok := preset[key]
		if !ok {
			target = cur
		}
		blended[key] = cur*(1-blendRatio) + target*blendRatio
	}

	adjusted := t.microAdjust(blended, result)
	final := adjusted.Sanitize()

	changes := make(map[string]ParamChange)
	for key, val := range final {
		old, ok := t.params[key]
		if !ok {
			old = val
		}
		if math.Abs(val-old) > 0.001 {
			changes[key] = ParamChange{Old: old, New: val, RegimeTarget: preset[key]}
		}
	}
	if len(changes) > 0 {
		for key, ch := range changes {
			t.logger.Info("Parameter adjusted",
				zap.String("param", key),
				zap.Float64("old", ch.Old),
				zap.Float64("new", ch.New),
				zap.Float64("regimeTarget", ch.RegimeTarget),
			)
		}
	} else {
		t.logger.Info("No parameter changes")
	}

	t.params = final
	return final.Clone(), changes, false
}

// microAdjust applies the exit-rate and win-rate heuristics on top of the
// regime blend.
func (t *Tuner) microAdjust(params ParamSet, result *types.BacktestResult) ParamSet {
	adjusted := params.Clone()
	s := result.Summary
	eb := result.ExitBreakdown

	// Frequent stop-outs mean the stop is too tight for realized
	// volatility.
	if eb.SLRate > 40 {
		adjusted["atr_stop_mult"] = params["atr_stop_mult"] + 0.25
	}

	// Too many expiries: the target is out of reach within the window.
	if eb.ExpRate > 45 {
		adjusted["atr_tp_mult"] = params["atr_tp_mult"] - 0.25
		adjusted["max_hold_days"] = params["max_hold_days"] + 1
	}
	if eb.TPRate < 25 {
		adjusted["atr_tp_mult"] = params["atr_tp_mult"] - 0.5
	}

	if s.WinRate > 60 && s.ProfitFactor > 1.5 {
		adjusted["min_tech_score"] = params["min_tech_score"] - 0.25
		adjusted["top_n"] = params["top_n"] + 1
	} else if s.WinRate < 45 {
		adjusted["min_tech_score"] = params["min_tech_score"] + 0.5
		adjusted["top_n"] = math.Max(2, params["top_n"]-1)
	}

	if s.PortfolioMaxDDPct > 20 {
		adjusted["atr_stop_mult"] = params["atr_stop_mult"] - 0.25
		adjusted["top_n"] = math.Max(2, params["top_n"]-1)
		adjusted["max_positions"] = math.Max(3, params["max_positions"]-2)
		adjusted["max_daily_entries"] = math.Max(1, params["max_daily_entries"]-1)
	}

	if eb.SellRate > 30 {
		adjusted["sell_threshold"] = params["sell_threshold"] + 0.5
	} else if eb.SellRate < 5 && eb.ExpRate > 40 {
		adjusted["sell_threshold"] = params["sell_threshold"] - 0.5
	}

	return adjusted
}

// GenerateCandidate produces one search candidate: blend the base toward
// the regime preset by a random fraction of the detection confidence, then
// mutate most parameters by a couple of steps. The result is always within
// bounds and on the step grid.
func (t *Tuner) GenerateCandidate(base ParamSet, regime Regime, confidence float64) ParamSet {
	candidate := base.Clone()
	preset := PresetFor(regime)

	blend := (0.1 + t.rng.Float64()*0.4) * confidence
	for key, cur := range candidate {
		if target, ok := preset[key]; ok {
			candidate[key] = cur*(1-blend) + target*blend
		}
	}

	// Mutating every parameter every time overfits to one backtest, so
	// each one only moves 70% of the time.
	for _, b := range Bounds {
		cur, ok := candidate[b.Name]
		if !ok {
			continue
		}
		if t.rng.Float64() < 0.7 {
			steps := float64(t.rng.Intn(5) - 2) // -2..2
			candidate[b.Name] = utils.Clamp(cur+steps*b.Step, b.Min, b.Max)
		}
	}

	return candidate.Sanitize()
}
