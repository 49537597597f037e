// Package data loads, validates and narrows historical bar series. Providers
// read from a source, the cache memoizes repeated loads and the filter trims
// series to the window a simulation asked for.
package data

import (
	"strconv"
	"strings"
	"time"

	"github.com/quantloop/stratlab/pkg/types"
)

// Provider loads historical bar series from some source.
type Provider interface {
	// Name identifies the provider in logs and reports.
	Name() string

	// Load reads the series addressed by source, oldest bar first.
	Load(source string) ([]types.OHLCV, error)

	// Validate rejects series the simulator cannot trust.
	Validate(data []types.OHLCV) error
}

// Cache memoizes loaded series by source key.
type Cache interface {
	Get(key string) ([]types.OHLCV, bool)
	Set(key string, data []types.OHLCV)
	Clear()
	Size() int
}

// Manager bundles the usual wiring: a cached CSV provider, the filter and
// the file locator, so commands resolve and load series through one value.
type Manager struct {
	provider Provider
	filter   *Filter
	locator  *FileLocator
}

// NewManager returns a manager backed by a cached CSV provider.
func NewManager() *Manager {
	return NewManagerWithProvider(NewCachedProvider(NewCSVProvider()))
}

// NewManagerWithProvider returns a manager reading through provider.
func NewManagerWithProvider(provider Provider) *Manager {
	return &Manager{
		provider: provider,
		filter:   NewFilter(),
		locator:  NewFileLocator(),
	}
}

// Load reads and validates the series at source.
func (m *Manager) Load(source string) ([]types.OHLCV, error) {
	data, err := m.provider.Load(source)
	if err != nil {
		return nil, err
	}
	if err := m.provider.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Resolve locates a series file under root for the symbol and interval.
func (m *Manager) Resolve(root, exchange, symbol, interval string) string {
	return m.locator.Find(root, exchange, symbol, interval)
}

// Provider exposes the underlying provider.
func (m *Manager) Provider() Provider { return m.provider }

// Filter exposes the series filter.
func (m *Manager) Filter() *Filter { return m.filter }

// Locator exposes the file locator.
func (m *Manager) Locator() *FileLocator { return m.locator }

// ParseTrailingPeriod reads lookback strings like "30d", "8w" or "12h" into
// a duration. Anything time.ParseDuration accepts works too.
func ParseTrailingPeriod(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if strings.HasSuffix(s, "days") {
		s = strings.TrimSuffix(s, "days") + "d"
	}

	unit := s[len(s)-1:]
	if unit == "d" || unit == "w" {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, false
		}
		day := 24 * time.Hour
		if unit == "w" {
			return time.Duration(n) * 7 * day, true
		}
		return time.Duration(n) * day, true
	}

	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}
