package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"crypto-signals/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	DefaultSignalKey      = "telegram:signals"
	DefaultSignalCapacity = 1000
)

// SignalBuffer keeps the most recent parsed signals in a Redis list, newest
// at the head. Appends made while the breaker is open are held locally and
// pushed once it closes.
type SignalBuffer struct {
	client   *goredis.Client
	cb       *CircuitBreaker
	key      string
	capacity int

	mu      sync.Mutex
	pending [][]byte // oldest first
}

// NewSignalBuffer creates a buffer on key with the given capacity.
func NewSignalBuffer(client *goredis.Client, cb *CircuitBreaker, key string, capacity int) *SignalBuffer {
	if key == "" {
		key = DefaultSignalKey
	}
	if capacity <= 0 {
		capacity = DefaultSignalCapacity
	}
	b := &SignalBuffer{client: client, cb: cb, key: key, capacity: capacity}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go b.flush(context.Background())
		}
	}
	return b
}

// Append pushes sig and trims the list to capacity.
func (b *SignalBuffer) Append(ctx context.Context, sig model.TelegramSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	err = b.cb.Execute(func() error { return b.push(ctx, data) })
	if errors.Is(err, ErrCircuitOpen) {
		b.hold(data)
		return nil
	}
	return err
}

func (b *SignalBuffer) push(ctx context.Context, items ...[]byte) error {
	if len(items) == 0 {
		return nil
	}
	vals := make([]interface{}, len(items))
	for i, it := range items {
		vals[i] = it
	}
	_, err := b.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LPush(ctx, b.key, vals...)
		p.LTrim(ctx, b.key, 0, int64(b.capacity-1))
		return nil
	})
	return err
}

func (b *SignalBuffer) hold(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, data)
	if len(b.pending) > b.capacity {
		b.pending = b.pending[len(b.pending)-b.capacity:]
	}
	log.Printf("[redis] circuit open, holding signal (pending=%d)", len(b.pending))
}

func (b *SignalBuffer) flush(ctx context.Context) {
	b.mu.Lock()
	items := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(items) == 0 {
		return
	}
	if err := b.cb.Execute(func() error { return b.push(ctx, items...) }); err != nil {
		log.Printf("[redis] flush %d held signals failed: %v", len(items), err)
		b.mu.Lock()
		b.pending = append(items, b.pending...)
		b.mu.Unlock()
		return
	}
	log.Printf("[redis] flushed %d held signals", len(items))
}

// Recent returns up to n signals, newest first.
func (b *SignalBuffer) Recent(ctx context.Context, n int) ([]model.TelegramSignal, error) {
	if n <= 0 {
		return nil, nil
	}
	var raw []string
	err := b.cb.Execute(func() error {
		var err error
		raw, err = b.client.LRange(ctx, b.key, 0, int64(n-1)).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	out := make([]model.TelegramSignal, 0, len(raw))
	for _, r := range raw {
		var sig model.TelegramSignal
		if err := json.Unmarshal([]byte(r), &sig); err != nil {
			log.Printf("[redis] skip malformed signal: %v", err)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// Clear removes every stored and held signal.
func (b *SignalBuffer) Clear(ctx context.Context) error {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
	return b.cb.Execute(func() error { return b.client.Del(ctx, b.key).Err() })
}

// Len returns the number of stored signals.
func (b *SignalBuffer) Len(ctx context.Context) (int, error) {
	var n int64
	err := b.cb.Execute(func() error {
		var err error
		n, err = b.client.LLen(ctx, b.key).Result()
		return err
	})
	return int(n), err
}
