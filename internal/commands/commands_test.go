package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signals/internal/app"
	"crypto-signals/internal/model"
)

type stubMarket struct {
	candles []model.Candle
	err     error
}

func (s stubMarket) Klines(_ context.Context, _, _ string, limit int) ([]model.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.candles) > limit {
		return s.candles[len(s.candles)-limit:], nil
	}
	return s.candles, nil
}

func (s stubMarket) Price(context.Context, string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.candles[len(s.candles)-1].Close, nil
}

func linear(n int, from, to float64) []model.Candle {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	step := (to - from) / float64(n-1)
	for i := range out {
		c := from + step*float64(i)
		out[i] = model.Candle{Time: start.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func execute(t *testing.T, md model.MarketData, args ...string) (string, error) {
	t.Helper()
	prevMarket, prevApp := newMarket, newApp
	t.Cleanup(func() { newMarket, newApp = prevMarket, prevApp })
	newMarket = func() model.MarketData { return md }
	newApp = func() (*app.App, error) { return nil, errors.New("app unavailable in tests") }

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// ──────────────────────────────────────────────────────────────
// Indicator commands
// ──────────────────────────────────────────────────────────────

func TestF4Command(t *testing.T) {
	out, err := execute(t, stubMarket{candles: linear(200, 100, 300)}, "f4", "btcusdt")
	require.NoError(t, err)

	var got struct {
		Symbol string          `json:"symbol"`
		F4     json.RawMessage `json:"f4"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.NotEmpty(t, got.F4)
}

func TestF4Command_MarketError(t *testing.T) {
	_, err := execute(t, stubMarket{err: errors.New("boom")}, "f4", "BTCUSDT")
	var mde *model.MarketDataError
	assert.ErrorAs(t, err, &mde)
}

func TestPredictCommand(t *testing.T) {
	out, err := execute(t, stubMarket{candles: linear(50, 100, 149)}, "predict", "ETHUSDT")
	require.NoError(t, err)
	assert.Contains(t, out, `"symbol": "ETHUSDT"`)
	assert.Contains(t, out, `"prediction"`)
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := execute(t, stubMarket{candles: linear(200, 100, 300)}, "analyze", "RSI", "BTCUSDT")
	require.NoError(t, err)
	assert.Contains(t, out, `"signal"`)
}

func TestAnalyzeCommand_UnknownType(t *testing.T) {
	_, err := execute(t, stubMarket{candles: linear(200, 100, 300)}, "analyze", "bollinger", "BTCUSDT")
	assert.Error(t, err)
}

// ──────────────────────────────────────────────────────────────
// Cycle commands
// ──────────────────────────────────────────────────────────────

func TestRunCommand_RejectsUnknownEngine(t *testing.T) {
	_, err := execute(t, stubMarket{}, "run", "portfolio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestRunCommand_PropagatesWiringError(t *testing.T) {
	_, err := execute(t, stubMarket{}, "run", "all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app unavailable")
}
