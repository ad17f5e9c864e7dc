// Package pricefeed provides market data access for the scanner and the
// strategy: a Source interface with one implementation per exchange, plus an
// optional push-based price feed with a freshness-checked cache.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
)

// requestTimeout bounds every outbound REST fetch so a hung exchange endpoint
// degrades into one skipped candidate instead of stalling the trading loop.
var requestTimeout = 30 * time.Second

// Source is the read-only market data interface the core consumes.
// Implementations must tolerate moderate call frequency; rate limiting and
// backoff are their concern, not the caller's.
type Source interface {
	// GetCurrentPrice returns the last traded price of the product.
	GetCurrentPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	// GetCandles returns up to limit candles at the given granularity,
	// ordered newest-first.
	GetCandles(ctx context.Context, productID string, granularity time.Duration, limit int) ([]domain.Candle, error)
	// GetProductStats returns the 24h statistics snapshot for the product.
	GetProductStats(ctx context.Context, productID string) (domain.ProductStats, error)
	// GetProducts lists all markets on the exchange.
	GetProducts(ctx context.Context) ([]domain.Product, error)
}

// CallCounter tracks outbound API calls per method. It is owned by the
// source instance it is injected into, not hidden in package state, so
// callers that need call accounting hold a reference to it.
type CallCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCallCounter creates an empty counter.
func NewCallCounter() *CallCounter {
	return &CallCounter{counts: make(map[string]int)}
}

// Inc records one call of the named method. Nil-safe.
func (c *CallCounter) Inc(method string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[method]++
}

// Total returns the total number of recorded calls.
func (c *CallCounter) Total() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Counts returns a copy of the per-method call counts.
func (c *CallCounter) Counts() map[string]int {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// CandleCache is a small TTL cache for candle windows, keyed by product and
// granularity. It cuts duplicate kline fetches within one scan cycle.
type CandleCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]candleCacheEntry
}

type candleCacheEntry struct {
	candles []domain.Candle
	at      time.Time
}

// NewCandleCache creates a cache with the given entry TTL.
func NewCandleCache(ttl time.Duration) *CandleCache {
	return &CandleCache{ttl: ttl, entries: make(map[string]candleCacheEntry)}
}

func candleCacheKey(productID string, granularity time.Duration, limit int) string {
	return fmt.Sprintf("%s/%s/%d", productID, granularity, limit)
}

// Get returns a cached window if present and fresh. Nil-safe.
func (c *CandleCache) Get(productID string, granularity time.Duration, limit int) ([]domain.Candle, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[candleCacheKey(productID, granularity, limit)]
	if !ok || time.Since(entry.at) > c.ttl {
		return nil, false
	}
	return entry.candles, true
}

// Put stores a candle window. Nil-safe.
func (c *CandleCache) Put(productID string, granularity time.Duration, limit int, candles []domain.Candle) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[candleCacheKey(productID, granularity, limit)] = candleCacheEntry{candles: candles, at: time.Now()}
}
