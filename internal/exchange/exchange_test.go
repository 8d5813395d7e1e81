package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-signals/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────
// REST client
// ──────────────────────────────────────────────────────────────

func TestClient_Klines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700003599999,"0",10,"0","0","0"],
			[1700003600000,"105.0","112.0","101.0","bad","3.0",1700007199999,"0",5,"0","0","0"],
			[1700007200000,"105.0","108.0","104.0","107.5","4.0",1700010799999,"0",5,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	candles, err := c.Klines(context.Background(), "BTCUSDT", "1h", 5000)
	require.NoError(t, err)
	require.Len(t, candles, 2, "malformed rows are skipped")
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].Time)
	assert.Equal(t, 110.0, candles[0].High)
	assert.Equal(t, 107.5, candles[1].Close)
}

func TestClient_PriceErrorIsMarketDataError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "").Price(context.Background(), "NOPE")
	var mde *model.MarketDataError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, "NOPE", mde.Symbol)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, -1121, apiErr.Code)
}

func TestClient_SignedMarketBuy(t *testing.T) {
	const secret = "s3cret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))

		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		if !assert.Greater(t, idx, 0) {
			return
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(raw[:idx]))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[idx+len("&signature="):])

		q := r.URL.Query()
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "25.5", q.Get("quoteOrderQty"))
		assert.Equal(t, "DCA-3-1700000000000", q.Get("newClientOrderId"))

		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"DCA-3-1700000000000",
			"transactTime":1700000000123,"status":"FILLED","executedQty":"0.0005","cummulativeQuoteQty":"25.5",
			"fills":[{"price":"51000","qty":"0.0005","commission":"0.0000005","commissionAsset":"BTC"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", secret)
	res, err := c.MarketBuyByQuote(context.Background(), "BTCUSDT", 25.5, "DCA-3-1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "42", res.OrderID)
	assert.Equal(t, 0.0005, res.ExecutedQty)
	assert.Equal(t, 25.5, res.CummulativeQuoteQty)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, 51000.0, res.Fills[0].Price)
}

func TestClient_SignedWithoutKeys(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "", "").MarketSellByQty(context.Background(), "BTCUSDT", 1, "")
	var exe *model.ExecutionError
	require.True(t, errors.As(err, &exe))
	assert.Equal(t, model.SideSell, exe.Side)
}

func TestClient_MarketOrderAmountsAreDecimal(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if v := q.Get("quantity"); v != "" {
			got = append(got, "quantity="+v)
		}
		if v := q.Get("quoteOrderQty"); v != "" {
			got = append(got, "quoteOrderQty="+v)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":7,"status":"FILLED",
			"executedQty":"0.30000000","cummulativeQuoteQty":"15000.12345678"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	res, err := c.MarketSellByQty(context.Background(), "BTCUSDT", 0.1+0.2, "")
	require.NoError(t, err)
	assert.Equal(t, 0.3, res.ExecutedQty)
	assert.Equal(t, 15000.12345678, res.CummulativeQuoteQty)

	_, err = c.MarketSellByQty(context.Background(), "BTCUSDT", 0.123456789, "")
	require.NoError(t, err)
	_, err = c.MarketBuyByQuote(context.Background(), "BTCUSDT", 1e-7+0.00000002, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"quantity=0.3",
		"quantity=0.12345678",
		"quoteOrderQty=0.00000012",
	}, got)
}

func TestClient_DustAmountIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", "secret").MarketSellByQty(context.Background(), "BTCUSDT", 0.000000001, "")
	var exe *model.ExecutionError
	require.True(t, errors.As(err, &exe))
	assert.ErrorIs(t, err, errZeroAmount)
}

func TestFormatAmount(t *testing.T) {
	s, err := formatAmount(1.0000000099)
	require.NoError(t, err)
	assert.Equal(t, "1", s)

	s, err = formatAmount(43000.5)
	require.NoError(t, err)
	assert.Equal(t, "43000.5", s)

	_, err = formatAmount(0)
	assert.ErrorIs(t, err, errZeroAmount)
}

// ──────────────────────────────────────────────────────────────
// Price cache
// ──────────────────────────────────────────────────────────────

type countingMarket struct {
	price float64
	calls int
}

func (m *countingMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	return nil, nil
}

func (m *countingMarket) Price(ctx context.Context, symbol string) (float64, error) {
	m.calls++
	return m.price, nil
}

func TestCachedMarket_Freshness(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	md := &countingMarket{price: 200}
	cache := NewMemoryPriceCache()
	cm := NewCachedMarket(md, cache, 10*time.Second)
	cm.now = func() time.Time { return now }

	require.NoError(t, cache.SetPrice(context.Background(), "ETHUSDT", model.PriceQuote{Price: 190, At: now.Add(-5 * time.Second)}))
	p, err := cm.Price(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 190.0, p)
	assert.Equal(t, 0, md.calls)

	now = now.Add(6 * time.Second)
	p, err = cm.Price(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 200.0, p, "stale price falls back to REST")
	assert.Equal(t, 1, md.calls)

	q, ok, _ := cache.GetPrice(context.Background(), "ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 200.0, q.Price)
}

func TestTickerStream_OnTicker(t *testing.T) {
	cache := NewMemoryPriceCache()
	ts := NewTickerStream([]string{"BTCUSDT"}, cache)
	at := time.Now()

	ts.onTicker("BTCUSDT", "43000.5", at)
	ts.onTicker("SOLUSDT", "garbage", at)

	q, ok, _ := cache.GetPrice(context.Background(), "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 43000.5, q.Price)
	_, ok, _ = cache.GetPrice(context.Background(), "SOLUSDT")
	assert.False(t, ok)
}

func TestTickerStream_StopReachesLateReceiver(t *testing.T) {
	ts := NewTickerStream([]string{"BTCUSDT"}, NewMemoryPriceCache())
	stopCh := make(chan struct{})
	ts.stopCh = stopCh

	got := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		<-stopCh
		close(got)
	}()

	ts.stop()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("stop signal was dropped")
	}
	assert.Nil(t, ts.stopCh)

	// second stop is a no-op
	ts.stop()
}
