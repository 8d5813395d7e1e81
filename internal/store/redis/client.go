// Package redis holds the Redis-backed signal buffer and price cache, both
// guarded by a circuit breaker.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// NewBreaker returns a breaker that ignores cache misses.
func NewBreaker() *CircuitBreaker {
	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.IsFailure = func(err error) bool { return !errors.Is(err, goredis.Nil) }
	return cb
}
