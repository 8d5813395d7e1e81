package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"crypto-signals/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultPriceTTL = time.Minute

// PriceCache stores the latest streamed price of each symbol under
// "price:<SYMBOL>" with a short TTL.
type PriceCache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
}

func NewPriceCache(client *goredis.Client, cb *CircuitBreaker) *PriceCache {
	return &PriceCache{client: client, cb: cb, ttl: defaultPriceTTL}
}

func priceKey(symbol string) string { return "price:" + symbol }

func (c *PriceCache) SetPrice(ctx context.Context, symbol string, q model.PriceQuote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		return c.client.Set(ctx, priceKey(symbol), data, c.ttl).Err()
	})
}

func (c *PriceCache) GetPrice(ctx context.Context, symbol string) (model.PriceQuote, bool, error) {
	var (
		q   model.PriceQuote
		raw []byte
	)
	err := c.cb.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, priceKey(symbol)).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return q, false, nil
	}
	if err != nil {
		return q, false, err
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return q, false, err
	}
	return q, true, nil
}
