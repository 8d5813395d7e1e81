// Package signals parses, validates and buffers trade signals relayed from
// Telegram channels.
package signals

import (
	"context"
	"sync"

	"crypto-signals/internal/model"
)

// Capacity is the number of signals kept; older ones are evicted.
const Capacity = 1000

// Buffer stores the most recent signals.
type Buffer interface {
	Append(ctx context.Context, sig model.TelegramSignal) error
	// Recent returns up to n signals, newest first.
	Recent(ctx context.Context, n int) ([]model.TelegramSignal, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// MemoryBuffer is a fixed-size ring of signals. Safe for concurrent use.
type MemoryBuffer struct {
	mu   sync.RWMutex
	buf  []model.TelegramSignal
	cap  int
	pos  int // next write position
	full bool
}

// NewMemoryBuffer creates a ring with the given capacity (Capacity if <= 0).
func NewMemoryBuffer(capacity int) *MemoryBuffer {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &MemoryBuffer{
		buf: make([]model.TelegramSignal, capacity),
		cap: capacity,
	}
}

// Append stores sig, overwriting the oldest entry when full.
func (b *MemoryBuffer) Append(_ context.Context, sig model.TelegramSignal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sig.Targets = append([]float64(nil), sig.Targets...)
	b.buf[b.pos] = sig
	b.pos = (b.pos + 1) % b.cap
	if b.pos == 0 && !b.full {
		b.full = true
	}
	return nil
}

func (b *MemoryBuffer) Recent(_ context.Context, n int) ([]model.TelegramSignal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.len()
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]model.TelegramSignal, 0, n)
	for i := count - 1; i >= count-n; i-- {
		out = append(out, b.buf[b.index(i)])
	}
	return out, nil
}

func (b *MemoryBuffer) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = make([]model.TelegramSignal, b.cap)
	b.pos = 0
	b.full = false
	return nil
}

func (b *MemoryBuffer) Len(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.len(), nil
}

func (b *MemoryBuffer) len() int {
	if b.full {
		return b.cap
	}
	return b.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (b *MemoryBuffer) index(logical int) int {
	if b.full {
		return (b.pos + logical) % b.cap
	}
	return logical
}
