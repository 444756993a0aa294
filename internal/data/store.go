package data

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocknotify/strategy-backend/pkg/types"
	"go.uber.org/zap"
)

// Store provides access to historical daily bars, one JSON file per ticker.
// Missing tickers get deterministic sample data so backtests can run offline.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]types.Bar
}

// NewStore creates a new bar store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{
		logger:  logger.Named("data-store"),
		dataDir: dataDir,
		cache:   make(map[string][]types.Bar),
	}, nil
}

// GetHistory implements HistoryProvider. It returns the last `days` calendar
// days of bars for each ticker, generating sample data where no file exists.
func (s *Store) GetHistory(ctx context.Context, tickers []string, days int) (*SeriesSet, error) {
	since := time.Now().AddDate(0, 0, -days)
	bars := make(map[string][]types.Bar, len(tickers))

	for _, ticker := range tickers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		series, err := s.loadBars(ticker, since)
		if err != nil {
			s.logger.Warn("Skipping ticker", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		if len(series) > 0 {
			bars[ticker] = series
		}
	}

	set := NewSeriesSet(bars)
	s.logger.Info("Loaded price history",
		zap.Int("tickers", len(bars)),
		zap.Int("bars", set.Len()),
		zap.Int("days", days),
	)
	return set, nil
}

// SaveBars writes a ticker's bar series to disk and refreshes the cache.
func (s *Store) SaveBars(ticker string, bars []types.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bars: %w", err)
	}
	filename := filepath.Join(s.dataDir, ticker+".json")
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("write bars: %w", err)
	}
	s.cache[ticker] = bars
	return nil
}

func (s *Store) loadBars(ticker string, since time.Time) ([]types.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[ticker]; ok {
		return clipSince(cached, since), nil
	}

	filename := filepath.Join(s.dataDir, ticker+".json")
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("Generating sample data", zap.String("ticker", ticker))
			sample := generateSampleBars(ticker, since, time.Now())
			s.cache[ticker] = sample
			return sample, nil
		}
		return nil, fmt.Errorf("read bars: %w", err)
	}

	var bars []types.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("parse bars: %w", err)
	}
	s.cache[ticker] = bars
	return clipSince(bars, since), nil
}

func clipSince(bars []types.Bar, since time.Time) []types.Bar {
	var out []types.Bar
	for _, bar := range bars {
		if !bar.Date.Before(since) {
			out = append(out, bar)
		}
	}
	return out
}

// generateSampleBars produces a deterministic random walk of daily bars for
// weekdays between start and end. The same ticker always yields the same walk.
func generateSampleBars(ticker string, start, end time.Time) []types.Bar {
	h := fnv.New64a()
	h.Write([]byte(ticker))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 50.0 + rng.Float64()*200.0
	drift := (rng.Float64() - 0.45) * 0.002

	var bars []types.Bar
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		change := drift + (rng.Float64()-0.5)*0.03
		open := price
		price *= 1 + change
		high := max(open, price) * (1 + rng.Float64()*0.01)
		low := min(open, price) * (1 - rng.Float64()*0.01)
		volume := 1e6 + rng.Float64()*9e6

		bars = append(bars, types.Bar{
			Date:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:   decimal.NewFromFloat(open).Round(2),
			High:   decimal.NewFromFloat(high).Round(2),
			Low:    decimal.NewFromFloat(low).Round(2),
			Close:  decimal.NewFromFloat(price).Round(2),
			Volume: decimal.NewFromFloat(volume).Round(0),
		})
	}
	return bars
}
