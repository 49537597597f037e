package data

import (
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantloop/stratlab/pkg/types"
)

// MemoryCache keeps loaded series in memory, keyed by source. Reads and
// writes copy the slice so cached bars cannot be mutated from outside.
type MemoryCache struct {
	mu    sync.RWMutex
	cache map[string][]types.OHLCV
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{cache: make(map[string][]types.OHLCV)}
}

// Get retrieves a cached series if present.
func (c *MemoryCache) Get(key string) ([]types.OHLCV, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	out := make([]types.OHLCV, len(data))
	copy(out, data)
	return out, true
}

// Set stores a copy of the series under key.
func (c *MemoryCache) Set(key string, data []types.OHLCV) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]types.OHLCV, len(data))
	copy(stored, data)
	c.cache[key] = stored
}

// Clear drops every cached entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string][]types.OHLCV)
}

// Size returns the number of cached series.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// CachedProvider memoizes another provider so repeated loads of the same
// source, common when a portfolio backtests many strategies over one file,
// hit the disk once.
type CachedProvider struct {
	provider Provider
	cache    Cache
	logger   zerolog.Logger
}

// NewCachedProvider wraps provider with an in-memory cache.
func NewCachedProvider(provider Provider) *CachedProvider {
	return NewCachedProviderWithCache(provider, NewMemoryCache())
}

// NewCachedProviderWithCache wraps provider with a caller-supplied cache.
func NewCachedProviderWithCache(provider Provider, cache Cache) *CachedProvider {
	return &CachedProvider{provider: provider, cache: cache, logger: zerolog.Nop()}
}

// SetLogger attaches a logger; the default discards everything.
func (p *CachedProvider) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// Name identifies the provider in logs and reports.
func (p *CachedProvider) Name() string {
	return "cached " + p.provider.Name()
}

// Load returns the cached series for source or loads and caches it.
func (p *CachedProvider) Load(source string) ([]types.OHLCV, error) {
	if cached, ok := p.cache.Get(source); ok {
		return cached, nil
	}

	data, err := p.provider.Load(source)
	if err != nil {
		return nil, err
	}
	p.cache.Set(source, data)
	p.logger.Debug().Str("file", filepath.Base(source)).Int("bars", len(data)).Msg("cached series")
	return data, nil
}

// Validate delegates to the wrapped provider.
func (p *CachedProvider) Validate(data []types.OHLCV) error {
	return p.provider.Validate(data)
}

// ClearCache drops every cached series.
func (p *CachedProvider) ClearCache() {
	p.cache.Clear()
}

// CacheSize returns the number of cached series.
func (p *CachedProvider) CacheSize() int {
	return p.cache.Size()
}
