// Package backtester simulates the swing strategy over historical daily bars.
package backtester

import (
	"fmt"
	"sync"
	"time"

	"github.com/stocknotify/strategy-backend/internal/data"
	"github.com/stocknotify/strategy-backend/internal/technical"
)

// Cache shares downloaded history and computed snapshots between successive
// engine runs in one tuning session. Construct one per session and hand the
// same instance to every engine.
type Cache struct {
	mu        sync.RWMutex
	prices    *data.SeriesSet
	snapshots map[string]*technical.Snapshot
}

// NewCache creates an empty shared cache.
func NewCache() *Cache {
	return &Cache{snapshots: make(map[string]*technical.Snapshot)}
}

// Prices returns the cached series set, nil when nothing is cached yet.
func (c *Cache) Prices() *data.SeriesSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices
}

// SetPrices stores the downloaded series set for reuse by later runs.
func (c *Cache) SetPrices(set *data.SeriesSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = set
}

// Snapshot returns the cached snapshot for a ticker/date, if present.
// Snapshots depend only on price history, not on signal weights, so they
// stay valid across runs with different weight tables.
func (c *Cache) Snapshot(ticker string, date time.Time) (*technical.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[snapKey(ticker, date)]
	return snap, ok
}

// PutSnapshot stores a computed snapshot.
func (c *Cache) PutSnapshot(ticker string, date time.Time, snap *technical.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapKey(ticker, date)] = snap
}

func snapKey(ticker string, date time.Time) string {
	return fmt.Sprintf("%s|%s", ticker, date.Format("2006-01-02"))
}
