package exchange

import (
	"context"
	"log"
	"sync"
	"time"

	"crypto-signals/internal/model"
)

// DefaultPriceMaxAge is how long a streamed price is served without a REST call.
const DefaultPriceMaxAge = 10 * time.Second

// MemoryPriceCache is an in-process model.PriceCache.
type MemoryPriceCache struct {
	mu     sync.RWMutex
	prices map[string]model.PriceQuote
}

func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{prices: make(map[string]model.PriceQuote)}
}

func (m *MemoryPriceCache) SetPrice(_ context.Context, symbol string, q model.PriceQuote) error {
	m.mu.Lock()
	m.prices[symbol] = q
	m.mu.Unlock()
	return nil
}

func (m *MemoryPriceCache) GetPrice(_ context.Context, symbol string) (model.PriceQuote, bool, error) {
	m.mu.RLock()
	q, ok := m.prices[symbol]
	m.mu.RUnlock()
	return q, ok, nil
}

// CachedMarket serves Price from a cache while it is fresh and falls back to
// the wrapped MarketData otherwise. Klines always pass through.
type CachedMarket struct {
	md     model.MarketData
	cache  model.PriceCache
	maxAge time.Duration
	now    func() time.Time
}

// NewCachedMarket wraps md. maxAge <= 0 uses DefaultPriceMaxAge.
func NewCachedMarket(md model.MarketData, cache model.PriceCache, maxAge time.Duration) *CachedMarket {
	if maxAge <= 0 {
		maxAge = DefaultPriceMaxAge
	}
	return &CachedMarket{md: md, cache: cache, maxAge: maxAge, now: time.Now}
}

func (c *CachedMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	return c.md.Klines(ctx, symbol, interval, limit)
}

func (c *CachedMarket) Price(ctx context.Context, symbol string) (float64, error) {
	q, ok, err := c.cache.GetPrice(ctx, symbol)
	if err != nil {
		log.Printf("[market] cache read %s: %v", symbol, err)
	}
	if ok && q.Price > 0 && c.now().Sub(q.At) < c.maxAge {
		return q.Price, nil
	}

	p, err := c.md.Price(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if err := c.cache.SetPrice(ctx, symbol, model.PriceQuote{Price: p, At: c.now()}); err != nil {
		log.Printf("[market] cache write %s: %v", symbol, err)
	}
	return p, nil
}
