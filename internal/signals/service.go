package signals

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"crypto-signals/internal/model"
)

// DefaultListLimit is the number of signals returned when no limit is given.
const DefaultListLimit = 50

// ErrUnparseable is returned when a raw message carries no usable signal.
var ErrUnparseable = errors.New("message does not contain a signal")

// Publisher receives every accepted signal, e.g. a websocket hub.
type Publisher interface {
	Publish(sig model.TelegramSignal)
}

// Service ingests signals into a Buffer and fans them out to a Publisher.
type Service struct {
	buf Buffer
	pub Publisher
	now func() time.Time

	// OnIngest is called after a signal is stored (for metrics).
	OnIngest func(size int)
}

// NewService creates a service. pub may be nil.
func NewService(buf Buffer, pub Publisher) *Service {
	return &Service{buf: buf, pub: pub, now: time.Now}
}

// Ingest stores sig. A signal carrying only RawMessage is parsed first.
func (s *Service) Ingest(ctx context.Context, sig model.TelegramSignal) (model.TelegramSignal, error) {
	if sig.Symbol == "" && sig.RawMessage != "" {
		parsed, ok := ParseMessage(sig.RawMessage, s.now())
		if !ok {
			return sig, ErrUnparseable
		}
		sig = parsed
	}
	sig.Symbol = strings.ToUpper(strings.TrimSpace(sig.Symbol))
	if sig.Timestamp.IsZero() {
		sig.Timestamp = s.now().UTC()
	}
	if err := Validate(sig); err != nil {
		return sig, err
	}
	if err := s.buf.Append(ctx, sig); err != nil {
		return sig, err
	}

	log.Printf("[signals] received %s %s entry=%g targets=%v", sig.Symbol, sig.Direction, sig.Entry, sig.Targets)
	if s.pub != nil {
		s.pub.Publish(sig)
	}
	if s.OnIngest != nil {
		if n, err := s.buf.Len(ctx); err == nil {
			s.OnIngest(n)
		}
	}
	return sig, nil
}

// List returns up to limit of the most recent signals in arrival order,
// plus the number stored.
func (s *Service) List(ctx context.Context, limit int) ([]model.TelegramSignal, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	recent, err := s.buf.Recent(ctx, limit)
	if err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	n, err := s.buf.Len(ctx)
	if err != nil {
		return nil, 0, err
	}
	return recent, n, nil
}

// Clear drops every stored signal.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.buf.Clear(ctx); err != nil {
		return err
	}
	if s.OnIngest != nil {
		s.OnIngest(0)
	}
	return nil
}
