package data

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// defaultPool is the built-in large-cap list used when no pool file exists.
var defaultPool = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "META", "GOOGL", "TSLA",
	"BRK-B", "AVGO", "JPM", "UNH", "V", "MA", "HD", "PG",
	"COST", "JNJ", "ABBV", "CRM", "AMD", "NFLX", "LIN",
	"MRK", "ADBE", "TXN", "QCOM", "ISRG", "INTU", "AMAT",
}

// FilePool resolves ticker pools from plain-text files, one symbol per line,
// falling back to the built-in list when no file is found.
type FilePool struct {
	logger  *zap.Logger
	poolDir string
}

// NewFilePool creates a pool provider reading from poolDir.
func NewFilePool(logger *zap.Logger, poolDir string) *FilePool {
	return &FilePool{logger: logger, poolDir: poolDir}
}

// GetPool implements PoolProvider.
func (p *FilePool) GetPool(ctx context.Context, name string) ([]string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "nasdaq100"
	}

	tickers, err := p.readPoolFile(name)
	if err == nil && len(tickers) > 0 {
		p.logger.Debug("Loaded pool file", zap.String("pool", name), zap.Int("tickers", len(tickers)))
		return tickers, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read pool %q: %w", name, err)
	}

	p.logger.Info("Pool file missing, using built-in list",
		zap.String("pool", name),
		zap.Int("tickers", len(defaultPool)),
	)
	out := make([]string, len(defaultPool))
	copy(out, defaultPool)
	return out, nil
}

func (p *FilePool) readPoolFile(name string) ([]string, error) {
	f, err := os.Open(filepath.Join(p.poolDir, name+".txt"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var tickers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		sym := cleanSymbol(scanner.Text())
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		tickers = append(tickers, sym)
	}
	return tickers, scanner.Err()
}

func cleanSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ".", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
