package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crypto-signals/internal/metrics"
	"crypto-signals/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestDca_TakeProfitCompletesWithoutBuying(t *testing.T) {
	md := newFakeMarket()
	md.setPrice("BTCUSDT", 115)
	bot := model.DcaBot{
		ID: 1, UserID: "u1", Symbol: "BTCUSDT", Amount: 100, IntervalHours: 24,
		TakeProfitPercent: ptr(10), TotalInvested: 1000, TotalBoughtQty: 10, AveragePrice: 100,
		Status: model.DcaActive,
	}

	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return([]model.DcaBot{bot}, nil)
	store.On("CompleteDcaBot", mock.Anything, int64(1)).Return(nil).Once()

	exec := new(mockExecutor)
	exec.On("MarketSellByQty", mock.Anything, "BTCUSDT", 10.0, mock.AnythingOfType("string")).
		Return(model.OrderResult{OrderID: "SIM1000", ExecutedQty: 10, CummulativeQuoteQty: 1150}, nil).Once()

	orders := &fakeOrders{}
	reg := prometheus.NewRegistry()
	deps := testDeps(md, exec, orders, nil)
	deps.Metrics = metrics.NewMetrics(reg)

	rep, err := NewDcaEngine(store, deps).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Triggered)
	assert.Empty(t, rep.Errors)

	exec.AssertNotCalled(t, "MarketBuyByQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "RecordDcaBuy", mock.Anything, mock.Anything)
	store.AssertExpectations(t)

	require.Len(t, orders.orders, 1)
	assert.Equal(t, model.OrderTypeDCATakeProfit, orders.orders[0].Type)
	assert.Equal(t, fmt.Sprintf("DCA-1-%d", testNow.UnixMilli()), orders.orders[0].ClientOrderID)
	require.Len(t, orders.trades, 1)
	assert.Equal(t, model.TradeTypeDCATP, orders.trades[0].Type)
	assert.InDelta(t, 150, orders.trades[0].ProfitLoss, 1e-9)
	assert.InDelta(t, 15, orders.trades[0].ProfitLossPercentage, 1e-9)

	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.OrdersPlaced.WithLabelValues("dca", "SELL", "test")))
}

func TestDca_BuyUpdatesAccumulators(t *testing.T) {
	md := newFakeMarket()
	md.setPrice("ETHUSDT", 125)
	bot := model.DcaBot{
		ID: 2, Symbol: "ETHUSDT", Amount: 100, IntervalHours: 1,
		TakeProfitPercent: ptr(50), TotalInvested: 1000, TotalBoughtQty: 10, AveragePrice: 100,
		Status: model.DcaActive,
	}

	var saved model.DcaBot
	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return([]model.DcaBot{bot}, nil)
	store.On("RecordDcaBuy", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.DcaBot)
	}).Return(nil)

	exec := new(mockExecutor)
	exec.On("MarketBuyByQuote", mock.Anything, "ETHUSDT", 100.0, mock.Anything).
		Return(model.OrderResult{OrderID: "SIM1001", ExecutedQty: 0.8, CummulativeQuoteQty: 100}, nil)

	orders := &fakeOrders{}
	rep, err := NewDcaEngine(store, testDeps(md, exec, orders, nil)).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Triggered)

	assert.InDelta(t, 1100, saved.TotalInvested, 1e-9)
	assert.InDelta(t, 10.8, saved.TotalBoughtQty, 1e-9)
	assert.InDelta(t, saved.TotalInvested/saved.TotalBoughtQty, saved.AveragePrice, 1e-12)
	require.NotNil(t, saved.LastRunAt)
	assert.True(t, saved.LastRunAt.Equal(testNow))
	assert.Equal(t, model.DcaActive, saved.Status)

	require.Len(t, orders.orders, 1)
	assert.Equal(t, model.OrderTypeDCABuy, orders.orders[0].Type)
	assert.Equal(t, model.TradeTypeDCA, orders.trades[0].Type)
}

func TestDca_FillFallsBackToPriceEstimate(t *testing.T) {
	md := newFakeMarket()
	md.setPrice("SOLUSDT", 50)
	bot := model.DcaBot{ID: 3, Symbol: "SOLUSDT", Amount: 100, IntervalHours: 1, Status: model.DcaActive}

	var saved model.DcaBot
	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return([]model.DcaBot{bot}, nil)
	store.On("RecordDcaBuy", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(model.DcaBot)
	}).Return(nil)

	exec := new(mockExecutor)
	exec.On("MarketBuyByQuote", mock.Anything, "SOLUSDT", 100.0, mock.Anything).
		Return(model.OrderResult{OrderID: "X1"}, nil)

	_, err := NewDcaEngine(store, testDeps(md, exec, nil, nil)).RunCycle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2, saved.TotalBoughtQty, 1e-9)
	assert.InDelta(t, 50, saved.AveragePrice, 1e-9)
}

func TestDca_NotDueIsSkipped(t *testing.T) {
	md := newFakeMarket()
	md.setPrice("BTCUSDT", 100)
	last := testNow.Add(-time.Hour)
	bot := model.DcaBot{ID: 4, Symbol: "BTCUSDT", Amount: 10, IntervalHours: 24, LastRunAt: &last, Status: model.DcaActive}

	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return([]model.DcaBot{bot}, nil)
	exec := new(mockExecutor)

	rep, err := NewDcaEngine(store, testDeps(md, exec, nil, nil)).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, md.priceCalls["BTCUSDT"])
	exec.AssertNotCalled(t, "MarketBuyByQuote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDca_ExecutionFailureLeavesBotUntouched(t *testing.T) {
	md := newFakeMarket()
	md.setPrice("BTCUSDT", 100)
	md.setPrice("ETHUSDT", 10)
	bots := []model.DcaBot{
		{ID: 5, Symbol: "BTCUSDT", Amount: 10, IntervalHours: 1, Status: model.DcaActive},
		{ID: 6, Symbol: "ETHUSDT", Amount: 10, IntervalHours: 1, Status: model.DcaActive},
	}

	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return(bots, nil)
	store.On("RecordDcaBuy", mock.Anything, mock.MatchedBy(func(b model.DcaBot) bool { return b.ID == 6 })).Return(nil).Once()

	exec := new(mockExecutor)
	exec.On("MarketBuyByQuote", mock.Anything, "BTCUSDT", 10.0, mock.Anything).
		Return(model.OrderResult{}, errors.New("rejected"))
	exec.On("MarketBuyByQuote", mock.Anything, "ETHUSDT", 10.0, mock.Anything).
		Return(model.OrderResult{ExecutedQty: 1, CummulativeQuoteQty: 10}, nil)

	rep, err := NewDcaEngine(store, testDeps(md, exec, nil, nil)).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Triggered)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "bot 5")
	store.AssertExpectations(t)
}

func TestDca_MissingPriceSkipsBot(t *testing.T) {
	md := newFakeMarket()
	bot := model.DcaBot{ID: 7, Symbol: "NOPEUSDT", Amount: 10, IntervalHours: 1, Status: model.DcaActive}

	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return([]model.DcaBot{bot}, nil)
	exec := new(mockExecutor)

	rep, err := NewDcaEngine(store, testDeps(md, exec, nil, nil)).RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Errors, 1)
	store.AssertNotCalled(t, "RecordDcaBuy", mock.Anything, mock.Anything)
}

func TestDca_LoadFailureAbortsCycle(t *testing.T) {
	store := new(mockDcaStore)
	store.On("DcaBotsByStatus", mock.Anything, model.DcaActive).Return([]model.DcaBot(nil), errors.New("db locked"))

	_, err := NewDcaEngine(store, testDeps(newFakeMarket(), new(mockExecutor), nil, nil)).RunCycle(context.Background())
	require.Error(t, err)
	var pe *model.PersistenceError
	assert.ErrorAs(t, err, &pe)
}
