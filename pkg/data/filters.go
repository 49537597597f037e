package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/quantloop/stratlab/pkg/types"
)

// Filter narrows and repairs bar series before they reach a simulation.
type Filter struct{}

// NewFilter returns a stateless filter.
func NewFilter() *Filter {
	return &Filter{}
}

// LastPeriod keeps the bars within period of the newest bar. A non-positive
// period keeps everything.
func (f *Filter) LastPeriod(data []types.OHLCV, period time.Duration) []types.OHLCV {
	if period <= 0 || len(data) == 0 {
		return data
	}

	cutoff := data[len(data)-1].Timestamp.Add(-period)
	start := sort.Search(len(data), func(i int) bool {
		return !data[i].Timestamp.Before(cutoff)
	})
	return data[start:]
}

// Between keeps bars with start <= timestamp <= end.
func (f *Filter) Between(data []types.OHLCV, start, end time.Time) []types.OHLCV {
	var out []types.OHLCV
	for _, bar := range data {
		if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// SortByTime returns a copy ordered oldest first. Equal timestamps keep
// their relative order for Dedupe to resolve.
func (f *Filter) SortByTime(data []types.OHLCV) []types.OHLCV {
	sorted := make([]types.OHLCV, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Dedupe removes bars sharing a timestamp, keeping the first occurrence.
func (f *Filter) Dedupe(data []types.OHLCV) []types.OHLCV {
	if len(data) <= 1 {
		return data
	}

	out := make([]types.OHLCV, 0, len(data))
	seen := make(map[int64]bool, len(data))
	for _, bar := range data {
		key := bar.Timestamp.UnixMilli()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, bar)
	}
	return out
}

// EnsureChronology errors on the first out-of-order or duplicated timestamp.
func (f *Filter) EnsureChronology(data []types.OHLCV) error {
	for i := 1; i < len(data); i++ {
		prev, cur := data[i-1].Timestamp, data[i].Timestamp
		if cur.Before(prev) {
			return fmt.Errorf("bar %d out of order: %s before %s", i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		if cur.Equal(prev) {
			return fmt.Errorf("bar %d duplicates timestamp %s", i, cur.Format(time.RFC3339))
		}
	}
	return nil
}
