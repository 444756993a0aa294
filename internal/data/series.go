package data

import (
	"sort"
	"time"

	"github.com/stocknotify/strategy-backend/pkg/types"
)

// SeriesSet holds daily bars for many tickers, each series sorted by date.
// It is built once per backtest and treated as read-only afterwards.
type SeriesSet struct {
	byTicker map[string][]types.Bar
}

// NewSeriesSet builds a SeriesSet from per-ticker bar slices. Each series is
// sorted by date; empty series are dropped.
func NewSeriesSet(bars map[string][]types.Bar) *SeriesSet {
	set := &SeriesSet{byTicker: make(map[string][]types.Bar, len(bars))}
	for ticker, series := range bars {
		if len(series) == 0 {
			continue
		}
		sorted := make([]types.Bar, len(series))
		copy(sorted, series)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Date.Before(sorted[j].Date)
		})
		set.byTicker[ticker] = sorted
	}
	return set
}

// Tickers returns the tickers present in the set, sorted.
func (s *SeriesSet) Tickers() []string {
	tickers := make([]string, 0, len(s.byTicker))
	for t := range s.byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Len returns the total number of bars across all tickers.
func (s *SeriesSet) Len() int {
	total := 0
	for _, series := range s.byTicker {
		total += len(series)
	}
	return total
}

// Series returns the full bar series for one ticker, nil if absent.
func (s *SeriesSet) Series(ticker string) []types.Bar {
	return s.byTicker[ticker]
}

// ValidDates returns the sorted trading dates on which at least minTickers
// tickers have a bar. Days with fewer are treated as holidays or bad feeds.
func (s *SeriesSet) ValidDates(minTickers int) []time.Time {
	counts := make(map[time.Time]int)
	for _, series := range s.byTicker {
		for _, bar := range series {
			counts[bar.Date] = counts[bar.Date] + 1
		}
	}
	dates := make([]time.Time, 0, len(counts))
	for date, n := range counts {
		if n >= minTickers {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Upto returns at most n bars of the ticker up to and including date.
func (s *SeriesSet) Upto(ticker string, date time.Time, n int) []types.Bar {
	series := s.byTicker[ticker]
	end := sort.Search(len(series), func(i int) bool {
		return series[i].Date.After(date)
	})
	start := end - n
	if start < 0 {
		start = 0
	}
	return series[start:end]
}

// After returns at most n bars of the ticker strictly after date.
func (s *SeriesSet) After(ticker string, date time.Time, n int) []types.Bar {
	series := s.byTicker[ticker]
	start := sort.Search(len(series), func(i int) bool {
		return series[i].Date.After(date)
	})
	end := start + n
	if end > len(series) {
		end = len(series)
	}
	return series[start:end]
}
