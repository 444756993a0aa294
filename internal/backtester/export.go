package backtester

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stocknotify/strategy-backend/pkg/types"
)

// ExportResult writes the full result as JSON and the trade list as CSV
// into dir, returning the two paths. Filenames carry a UTC timestamp so
// repeated runs never clobber each other.
func ExportResult(result *types.BacktestResult, dir string) (jsonPath, csvPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create export directory: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102_150405")

	jsonPath = filepath.Join(dir, fmt.Sprintf("backtest_%s.json", stamp))
	if err := writeResultJSON(result, jsonPath); err != nil {
		return "", "", err
	}

	csvPath = filepath.Join(dir, fmt.Sprintf("trades_%s.csv", stamp))
	if err := writeTradesCSV(result.Trades, csvPath); err != nil {
		return "", "", err
	}
	return jsonPath, csvPath, nil
}

func writeResultJSON(result *types.BacktestResult, path string) error {
	// encoding/json rejects IEEE infinities, so cap an infinite profit
	// factor before marshalling.
	sanitized := *result
	if math.IsInf(sanitized.Summary.ProfitFactor, 1) {
		sanitized.Summary.ProfitFactor = 9999
	}

	raw, err := json.MarshalIndent(&sanitized, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func writeTradesCSV(trades []types.Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"ticker", "entry_date", "entry_price", "stop_loss", "take_profit",
		"tech_score", "signals", "exit_date", "exit_price", "pnl_pct",
		"status", "hold_days", "max_drawdown_pct", "max_favorable_pct",
		"partial_closed", "sell_signals", "sell_score",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, t := range trades {
		exitDate := ""
		if !t.ExitDate.IsZero() {
			exitDate = t.ExitDate.Format("2006-01-02")
		}
		row := []string{
			t.Ticker,
			t.EntryDate.Format("2006-01-02"),
			t.EntryPrice.String(),
			t.StopLoss.String(),
			t.TakeProfit.String(),
			fmt.Sprintf("%.2f", t.TechScore),
			strings.Join(t.Signals, ", "),
			exitDate,
			t.ExitPrice.String(),
			fmt.Sprintf("%.4f", t.PnLPct),
			string(t.Status),
			fmt.Sprintf("%d", t.HoldDays),
			fmt.Sprintf("%.4f", t.MaxDrawdownPct),
			fmt.Sprintf("%.4f", t.MaxFavorablePct),
			fmt.Sprintf("%t", t.PartialClosed),
			strings.Join(t.SellSignals, ", "),
			fmt.Sprintf("%.2f", t.SellScore),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
