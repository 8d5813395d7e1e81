package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"crypto-signals/internal/model"

	binance "github.com/binance/binance-connector-go"
)

// TickerStream subscribes to the combined 24h ticker stream for a set of
// symbols and writes every last price into a PriceCache.
type TickerStream struct {
	symbols []string
	cache   model.PriceCache

	mu     sync.Mutex
	client *binance.WebsocketStreamClient
	stopCh chan struct{}

	// Optional hooks for health reporting.
	OnConnected func(connected bool)
	OnPrice     func(at time.Time)
}

func NewTickerStream(symbols []string, cache model.PriceCache) *TickerStream {
	return &TickerStream{symbols: symbols, cache: cache}
}

// Run connects and blocks until ctx is cancelled, reconnecting with backoff
// whenever the stream drops.
func (t *TickerStream) Run(ctx context.Context) error {
	if len(t.symbols) == 0 {
		return fmt.Errorf("ticker stream: no symbols")
	}
	backoff := time.Second
	for {
		doneCh, err := t.connect()
		if err != nil {
			log.Printf("[binance] connect failed: %v (retry in %s)", err, backoff)
		} else {
			backoff = time.Second
			log.Printf("[binance] ticker stream connected symbols=%v", t.symbols)
			t.connected(true)
			select {
			case <-ctx.Done():
				t.stop()
				t.connected(false)
				return ctx.Err()
			case <-doneCh:
				t.connected(false)
				log.Printf("[binance] ticker stream closed, reconnecting")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (t *TickerStream) connect() (chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.client = binance.NewWebsocketStreamClient(true)
	doneCh, stopCh, err := t.client.WsCombinedMarketTickersStatServe(t.symbols, t.handler(), t.errHandler())
	if err != nil {
		return nil, err
	}
	t.stopCh = stopCh
	return doneCh, nil
}

// stopTimeout bounds how long stop waits for the websocket goroutine to
// take the stop signal.
const stopTimeout = 2 * time.Second

func (t *TickerStream) stop() {
	t.mu.Lock()
	stopCh := t.stopCh
	t.stopCh = nil
	t.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case stopCh <- struct{}{}:
	case <-time.After(stopTimeout):
		log.Printf("[binance] stop signal not taken within %s", stopTimeout)
	}
}

func (t *TickerStream) handler() binance.WsMarketTickersStatHandler {
	return func(event *binance.WsMarketTickerStatEvent) {
		t.onTicker(event.Symbol, event.LastPrice, time.Now())
	}
}

func (t *TickerStream) errHandler() binance.ErrHandler {
	return func(err error) {
		log.Printf("[binance] websocket error: %v", err)
	}
}

func (t *TickerStream) onTicker(symbol, lastPrice string, at time.Time) {
	p, err := parseAmount(lastPrice)
	if err != nil || p <= 0 {
		return
	}
	if err := t.cache.SetPrice(context.Background(), symbol, model.PriceQuote{Price: p, At: at}); err != nil {
		log.Printf("[binance] cache %s: %v", symbol, err)
		return
	}
	if t.OnPrice != nil {
		t.OnPrice(at)
	}
}

func (t *TickerStream) connected(v bool) {
	if t.OnConnected != nil {
		t.OnConnected(v)
	}
}
