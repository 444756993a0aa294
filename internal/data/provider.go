// Package data provides historical price storage and ticker pool access.
package data

import "context"

// HistoryProvider supplies daily OHLCV history for a set of tickers.
type HistoryProvider interface {
	// GetHistory returns bars covering roughly the last `days` calendar days
	// for every ticker it has data for. Tickers without data are omitted.
	GetHistory(ctx context.Context, tickers []string, days int) (*SeriesSet, error)
}

// PoolProvider resolves a pool identifier to its ticker list.
type PoolProvider interface {
	GetPool(ctx context.Context, name string) ([]string, error)
}
