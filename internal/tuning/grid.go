package tuning

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

// BacktestRunner runs one backtest for a configuration. Satisfied by
// backtester.Engine.
type BacktestRunner interface {
	Run(ctx context.Context, cfg types.BacktestConfig) (*types.BacktestResult, error)
}

// Grid maps parameter names to the candidate values to sweep.
type Grid map[string][]float64

// DefaultGrid is the full 243-combination sweep over the five core
// parameters.
func DefaultGrid() Grid {
	return Grid{
		"top_n":          {3, 5, 7},
		"min_tech_score": {3.5, 4.0, 5.0},
		"atr_stop_mult":  {1.5, 2.0, 2.5},
		"atr_tp_mult":    {3.0, 4.0, 5.0},
		"max_hold_days":  {5, 7, 10},
	}
}

// QuickGrid cuts each dimension to two values (32 combinations) for fast
// exploratory runs.
func QuickGrid() Grid {
	return Grid{
		"top_n":          {3, 5},
		"min_tech_score": {4.0, 5.0},
		"atr_stop_mult":  {1.5, 2.0},
		"atr_tp_mult":    {3.0, 4.0},
		"max_hold_days":  {5, 7},
	}
}

// GridResult is one evaluated combination.
type GridResult struct {
	Params       ParamSet `json:"params"`
	Score        float64  `json:"score"`
	TotalTrades  int      `json:"total_trades"`
	WinRate      float64  `json:"win_rate"`
	AvgPnLPct    float64  `json:"avg_pnl"`
	ProfitFactor float64  `json:"profit_factor"`
	Sharpe       float64  `json:"sharpe"`
	EV           float64  `json:"ev"`
	MaxDDPct     float64  `json:"max_dd"`
}

// GridOptimizer exhaustively sweeps a parameter grid, scoring each
// combination with a composite of profit factor, win rate, expected value
// and Sharpe.
type GridOptimizer struct {
	logger *zap.Logger
	runner BacktestRunner
}

func NewGridOptimizer(logger *zap.Logger, runner BacktestRunner) *GridOptimizer {
	return &GridOptimizer{logger: logger.Named("grid-search"), runner: runner}
}

// Run sweeps every combination of the grid applied on top of base and
// returns results sorted best-first. Individual combination failures are
// logged and skipped.
func (g *GridOptimizer) Run(ctx context.Context, base types.BacktestConfig, grid Grid) ([]GridResult, error) {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := enumerate(grid, keys)
	g.logger.Info("Grid search",
		zap.Int("combinations", len(combos)),
		zap.Strings("params", keys),
	)

	results := make([]GridResult, 0, len(combos))
	for i, combo := range combos {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cfg := combo.Apply(base)
		result, err := g.runner.Run(ctx, cfg)
		if err != nil {
			g.logger.Warn("Grid combination failed",
				zap.Int("combo", i+1),
				zap.Error(err),
			)
			continue
		}

		s := result.Summary
		results = append(results, GridResult{
			Params:       combo,
			Score:        utils.RoundTo(scoreCombination(s), 4),
			TotalTrades:  s.TotalTrades,
			WinRate:      s.WinRate,
			AvgPnLPct:    s.AvgPnLPct,
			ProfitFactor: s.ProfitFactor,
			Sharpe:       s.SharpeRatio,
			EV:           s.ExpectedValuePct,
			MaxDDPct:     s.PortfolioMaxDDPct,
		})
		g.logger.Debug("Grid combination done",
			zap.Int("combo", i+1),
			zap.Int("total", len(combos)),
			zap.Int("trades", s.TotalTrades),
		)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// scoreCombination ranks one summary: PF x win rate plus expected value
// plus half the Sharpe. Too few trades disqualifies the combination.
func scoreCombination(s types.Summary) float64 {
	if s.TotalTrades < 10 {
		return -999
	}
	pf := s.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = 9999
	}
	return pf*(s.WinRate/100) + s.ExpectedValuePct + s.SharpeRatio*0.5
}

func enumerate(grid Grid, keys []string) []ParamSet {
	combos := []ParamSet{{}}
	for _, key := range keys {
		var next []ParamSet
		for _, combo := range combos {
			for _, val := range grid[key] {
				c := combo.Clone()
				c[key] = val
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

// WriteTop renders the best n combinations as a plain-text table.
func WriteTop(w io.Writer, results []GridResult, n int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No grid results.")
		return
	}
	if n > len(results) {
		n = len(results)
	}

	fmt.Fprintln(w, "   #   score  win%  trades    PF  params")
	fmt.Fprintln(w, "  ------------------------------------------------------------")
	for i, r := range results[:n] {
		fmt.Fprintf(w, "  %2d %7.2f %5.1f %7d %5.2f  top=%g min_s=%g sl=%g tp=%g hold=%g\n",
			i+1, r.Score, r.WinRate, r.TotalTrades, r.ProfitFactor,
			r.Params["top_n"], r.Params["min_tech_score"],
			r.Params["atr_stop_mult"], r.Params["atr_tp_mult"],
			r.Params["max_hold_days"],
		)
	}
}
