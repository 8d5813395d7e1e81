package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Send(ctx context.Context, alert Alert) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_TriesAllAndJoinsErrors(t *testing.T) {
	a, b := &failingNotifier{}, &failingNotifier{}
	err := Multi{a, NewLogNotifier(), b}.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, Multi{NewLogNotifier()}.Send(context.Background(), Alert{Title: "ok"}))
}

func TestWebhookNotifier_PostsAlertJSON(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{
		Level: AlertWarning, Kind: KindAlarm, Title: "F4 BUY", Symbol: "BTCUSDT",
		Fields: map[string]any{"price": 42000.0},
	})
	require.NoError(t, err)
	assert.Equal(t, KindAlarm, got.Kind)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, 42000.0, got.Fields["price"])
	assert.False(t, got.Time.IsZero())
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	assert.Error(t, NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}))
	assert.Equal(t, 1, calls)
}

func TestWebhookNotifier_RetriesServerErrorOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "ORDER", r.Header.Get("X-Alert-Kind"))
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.backoff = time.Millisecond
	require.NoError(t, n.Send(context.Background(), Alert{Kind: KindOrder, Title: "DCA buy"}))
	assert.Equal(t, 2, calls)
}

func TestTelegramNotifier_EscapesMarkdown(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertCritical, Title: "Panic sell", Message: "sold 3 assets (1.5 BTC)"}))

	assert.Equal(t, "42", payload["chat_id"])
	text, _ := payload["text"].(string)
	assert.True(t, strings.Contains(text, `\(1\.5 BTC\)`), text)
	assert.True(t, strings.HasPrefix(text, "🚨"))
}

func TestTelegramNotifier_ReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramText(t *testing.T) {
	text := telegramText(Alert{
		Kind: KindAlarm, Title: "F4 BUY", Symbol: "BTCUSDT",
		Fields: map[string]any{"score": 80, "price": 42000.5},
	})
	assert.True(t, strings.HasPrefix(text, "🔔 *F4 BUY* `BTCUSDT`"), text)
	assert.Contains(t, text, "\n\n• price: 42000\\.5\n• score: 80")
}

func TestFormatFields(t *testing.T) {
	assert.Equal(t, "", formatFields(nil))
	assert.Equal(t, " a=1 b=x", formatFields(map[string]any{"b": "x", "a": 1}))
}
