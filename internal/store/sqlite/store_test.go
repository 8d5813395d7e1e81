package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crypto-signals/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// ──────────────────────────────────────────────────────────────
// Alarms
// ──────────────────────────────────────────────────────────────

func TestAlarms_CRUDAndToggle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAlarm(ctx, model.Alarm{
		UserID: "u1", Symbol: "BTCUSDT", Condition: model.ConditionF4BuySignal,
		Action: model.ActionNotify, IsActive: true,
	})
	require.NoError(t, err)
	_, err = s.CreateAlarm(ctx, model.Alarm{
		UserID: "u1", Symbol: "ETHUSDT", Condition: model.ConditionPriceAbove,
		Action: model.ActionTrade, Threshold: 2500, IsActive: false,
	})
	require.NoError(t, err)

	active, err := s.ActiveAlarms(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.ConditionF4BuySignal, active[0].Condition)
	assert.Nil(t, active[0].LastTriggeredAt)

	on, err := s.ToggleAlarm(ctx, id)
	require.NoError(t, err)
	assert.False(t, on)
	active, err = s.ActiveAlarms(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkAlarmTriggered(ctx, id, at))
	a, err := s.GetAlarm(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, a.LastTriggeredAt)
	assert.True(t, a.LastTriggeredAt.Equal(at))

	all, err := s.ListAlarms(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteAlarm(ctx, id))
	_, err = s.GetAlarm(ctx, id)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteAlarm(ctx, id), model.ErrNotFound))
}

func TestAlarmLogsAndAutoTradeSignals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAlarm(ctx, model.Alarm{UserID: "u1", Symbol: "BTCUSDT", Condition: model.ConditionBuySignal, Action: model.ActionTrade, IsActive: true})
	require.NoError(t, err)

	_, err = s.InsertAlarmLog(ctx, model.AlarmLog{AlarmID: id, SignalValue: 42000, ActionResult: json.RawMessage(`{"ok":true}`), Success: true})
	require.NoError(t, err)
	logs, err := s.AlarmLogs(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.JSONEq(t, `{"ok":true}`, string(logs[0].ActionResult))

	_, err = s.InsertAutoTradeSignal(ctx, model.AutoTradeSignal{AlarmID: id, UserID: "u1", Symbol: "BTCUSDT", Side: model.SideBuy, Price: 42000, Reason: "F4 BUY"})
	require.NoError(t, err)
	sigs, err := s.AutoTradeSignals(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, model.SideBuy, sigs[0].Side)
}

// ──────────────────────────────────────────────────────────────
// Bots and stops
// ──────────────────────────────────────────────────────────────

func TestDcaBots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tp := 15.0
	id, err := s.CreateDcaBot(ctx, model.DcaBot{UserID: "u1", Symbol: "BTCUSDT", Amount: 100, IntervalHours: 24, TakeProfitPercent: &tp})
	require.NoError(t, err)

	bots, err := s.DcaBotsByStatus(ctx, model.DcaActive)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	b := bots[0]
	require.NotNil(t, b.TakeProfitPercent)
	assert.Equal(t, 15.0, *b.TakeProfitPercent)
	assert.Nil(t, b.LastRunAt)

	run := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	b.TotalInvested, b.TotalBoughtQty, b.AveragePrice, b.LastRunAt = 100, 2, 50, &run
	require.NoError(t, s.RecordDcaBuy(ctx, b))

	got, err := s.GetDcaBot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.AveragePrice)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(run))

	require.NoError(t, s.SetDcaStatus(ctx, id, model.DcaPaused))
	bots, err = s.DcaBotsByStatus(ctx, model.DcaActive)
	require.NoError(t, err)
	assert.Empty(t, bots)

	require.NoError(t, s.DeleteDcaBot(ctx, id))
	assert.True(t, errors.Is(s.RecordDcaBuy(ctx, got), model.ErrNotActive))
	assert.True(t, errors.Is(s.SetDcaStatus(ctx, id, model.DcaActive), model.ErrNotFound))
}

func TestDcaBots_WriteBackNeverOverridesUserStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateDcaBot(ctx, model.DcaBot{UserID: "u1", Symbol: "ETHUSDT", Amount: 50, IntervalHours: 12})
	require.NoError(t, err)
	loaded, err := s.GetDcaBot(ctx, id)
	require.NoError(t, err)

	// The user cancels after the engine loaded the bot.
	require.NoError(t, s.SetDcaStatus(ctx, id, model.DcaCancelled))

	run := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	loaded.TotalInvested, loaded.TotalBoughtQty, loaded.AveragePrice, loaded.LastRunAt = 50, 1, 50, &run
	assert.True(t, errors.Is(s.RecordDcaBuy(ctx, loaded), model.ErrNotActive))
	assert.True(t, errors.Is(s.CompleteDcaBot(ctx, id), model.ErrNotActive))

	got, err := s.GetDcaBot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.DcaCancelled, got.Status)
	assert.Zero(t, got.TotalInvested)
	assert.Nil(t, got.LastRunAt)

	// A paused bot cannot be completed either; resuming makes it writable again.
	require.NoError(t, s.SetDcaStatus(ctx, id, model.DcaPaused))
	assert.True(t, errors.Is(s.CompleteDcaBot(ctx, id), model.ErrNotActive))
	require.NoError(t, s.SetDcaStatus(ctx, id, model.DcaActive))
	require.NoError(t, s.RecordDcaBuy(ctx, loaded))
	require.NoError(t, s.CompleteDcaBot(ctx, id))

	got, err = s.GetDcaBot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.DcaCompleted, got.Status)
	assert.InDelta(t, 50, got.TotalInvested, 1e-9)
}

func TestTrailingStops_RatchetNeverDecreases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateTrailingStop(ctx, model.TrailingStop{UserID: "u1", Symbol: "ETHUSDT", Quantity: 1, EntryPrice: 100, CallbackRate: 5})
	require.NoError(t, err)

	st, err := s.GetTrailingStop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.HighestPrice, "highest starts at entry")
	assert.Equal(t, model.TrailingActive, st.Status)

	for _, p := range []float64{110, 105, 120, 90} {
		require.NoError(t, s.UpdateHighestPrice(ctx, id, p))
	}
	st, err = s.GetTrailingStop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 120.0, st.HighestPrice)

	require.NoError(t, s.SetTrailingStatus(ctx, id, model.TrailingExecuted))
	require.NoError(t, s.UpdateHighestPrice(ctx, id, 200))
	st, err = s.GetTrailingStop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 120.0, st.HighestPrice, "executed stops are frozen")

	active, err := s.TrailingStopsByStatus(ctx, model.TrailingActive)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// ──────────────────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────────────────

func TestOrdersTradesAndPerformance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertOrder(ctx, model.Order{UserID: "u1", ExchangeID: "SIM1000", ClientOrderID: "DCA-1-1", Symbol: "BTCUSDT",
		Side: model.SideBuy, Type: model.OrderTypeDCABuy, Quantity: 2, QuoteQty: 100, Price: 50, Status: "FILLED",
		Meta: json.RawMessage(`{"botId":1}`)})
	require.NoError(t, err)
	orders, err := s.ListOrders(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "DCA-1-1", orders[0].ClientOrderID)
	assert.JSONEq(t, `{"botId":1}`, string(orders[0].Meta))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []model.Trade{
		{Side: model.SideBuy, QuoteQty: 100, Commission: 0.1},
		{Side: model.SideSell, QuoteQty: 120, Commission: 0.12, ProfitLoss: 20},
		{Side: model.SideSell, QuoteQty: 80, Commission: 0.08, ProfitLoss: -5},
		{Side: model.SideSell, QuoteQty: 50, ProfitLoss: 7},
	}
	for i, tr := range trades {
		tr.UserID, tr.Symbol, tr.Type = "u1", "BTCUSDT", model.TradeTypeDCA
		tr.ExecutedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := s.InsertTrade(ctx, tr)
		require.NoError(t, err)
	}

	list, err := s.ListTrades(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 7.0, list[0].ProfitLoss, "newest first")

	p, err := s.PerformanceSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Trades)
	assert.Equal(t, 3, p.ClosedTrades)
	assert.Equal(t, 2, p.Wins)
	assert.Equal(t, 1, p.Losses)
	assert.InDelta(t, 22.0, p.RealizedPnL, 1e-9)
	assert.InDelta(t, 200.0/3, p.WinRate, 1e-9)
	assert.InDelta(t, 350.0, p.Volume, 1e-9)
	assert.Equal(t, 20.0, p.BestTradePnL)
	assert.Equal(t, -5.0, p.WorstTradePnL)

	empty, err := s.PerformanceSummary(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Trades)
	assert.Equal(t, 0.0, empty.WinRate)
}

func TestPanicSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LatestPanicSnapshot(ctx, "u1")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.InsertPanicSnapshot(ctx, model.PanicSnapshot{UserID: "u1", TotalUSDTValue: 10, CreatedAt: first,
		Items: []model.SnapshotItem{{Asset: "BTC", Quantity: 0.1, Symbol: "BTCUSDT", USDTValue: 10, OrderID: "1"}}})
	require.NoError(t, err)
	_, err = s.InsertPanicSnapshot(ctx, model.PanicSnapshot{UserID: "u1", TotalUSDTValue: 30, CreatedAt: first.Add(time.Hour),
		Items: []model.SnapshotItem{
			{Asset: "ETH", Quantity: 1, Symbol: "ETHUSDT", USDTValue: 20, OrderID: "2"},
			{Asset: "SOL", Quantity: 1, Symbol: "SOLUSDT", USDTValue: 10, OrderID: "3"},
		}})
	require.NoError(t, err)

	snap, err := s.LatestPanicSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, snap.TotalUSDTValue)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "ETHUSDT", snap.Items[0].Symbol)
}

func TestF4Signals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, sig := range []string{"BUY", "NEUTRAL"} {
		_, err := s.InsertF4Signal(ctx, model.F4SignalRecord{Symbol: "BTCUSDT", Timeframe: "1h", Signal: sig,
			SMCStructure: "BULLISH", WTStatus: "NEUTRAL", ConfluenceScore: 70, ActionRecommendation: "LONG",
			Price: 100 + float64(i), CreatedAt: time.Unix(int64(1000+i), 0)})
		require.NoError(t, err)
	}
	recs, err := s.F4Signals(ctx, "BTCUSDT", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "NEUTRAL", recs[0].Signal)
	assert.Equal(t, 70, recs[1].ConfluenceScore)
}
