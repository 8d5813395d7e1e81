package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crypto-signals/internal/model"
)

func runTrailing(t *testing.T, e *TrailingEngine) CycleReport {
	t.Helper()
	rep, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	return rep
}

func TestTrailing_SellsWhenPriceFallsThroughStop(t *testing.T) {
	store := newFakeTrailingStore(model.TrailingStop{
		ID: 7, UserID: "u1", Symbol: "BTCUSDT", Quantity: 2, EntryPrice: 90, HighestPrice: 100, CallbackRate: 5,
	})
	md := newFakeMarket()
	exec := new(mockExecutor)
	exec.On("MarketSellByQty", mock.Anything, "BTCUSDT", 2.0, mock.Anything).
		Return(model.OrderResult{OrderID: "SIM1000", ExecutedQty: 2, CummulativeQuoteQty: 188}, nil).Once()
	orders := &fakeOrders{}
	notifier := &recordingNotifier{}
	eng := NewTrailingEngine(store, testDeps(md, exec, orders, notifier))

	// 98 is below the high but above the 95 stop.
	md.setPrice("BTCUSDT", 98)
	rep := runTrailing(t, eng)
	assert.Zero(t, rep.Triggered)
	assert.Equal(t, model.TrailingActive, store.stops[7].Status)

	md.setPrice("BTCUSDT", 94)
	rep = runTrailing(t, eng)
	assert.Equal(t, 1, rep.Triggered)
	assert.Equal(t, model.TrailingExecuted, store.stops[7].Status)
	exec.AssertExpectations(t)

	require.Len(t, orders.orders, 1)
	o := orders.orders[0]
	assert.Equal(t, model.OrderTypeTrailingStop, o.Type)
	assert.True(t, strings.Contains(string(o.Meta), `"stopPrice":95`), string(o.Meta))
	assert.True(t, strings.Contains(string(o.Meta), `"highestPrice":100`), string(o.Meta))
	assert.True(t, strings.Contains(string(o.Meta), `"callbackRate":5`), string(o.Meta))

	require.Len(t, orders.trades, 1)
	assert.InDelta(t, 8, orders.trades[0].ProfitLoss, 1e-9)
	assert.InDelta(t, 8.0/180*100, orders.trades[0].ProfitLossPercentage, 1e-9)
	assert.Len(t, notifier.alerts, 1)

	// EXECUTED stops are not evaluated again.
	rep = runTrailing(t, eng)
	assert.Zero(t, rep.Checked)
}

func TestTrailing_HighestPriceIsMonotonic(t *testing.T) {
	store := newFakeTrailingStore(model.TrailingStop{
		ID: 1, Symbol: "ETHUSDT", Quantity: 1, EntryPrice: 100, HighestPrice: 100, CallbackRate: 5,
	})
	md := newFakeMarket()
	exec := new(mockExecutor)
	eng := NewTrailingEngine(store, testDeps(md, exec, nil, nil))

	highest := []float64{}
	for _, p := range []float64{105, 103, 110, 108, 106} {
		md.setPrice("ETHUSDT", p)
		runTrailing(t, eng)
		highest = append(highest, store.stops[1].HighestPrice)
	}
	assert.Equal(t, []float64{105, 105, 110, 110, 110}, highest)
	assert.Equal(t, []float64{105, 110}, store.highestWrites)
	exec.AssertNotCalled(t, "MarketSellByQty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// 110 * 0.95 = 104.5
	exec.On("MarketSellByQty", mock.Anything, "ETHUSDT", 1.0, mock.Anything).
		Return(model.OrderResult{ExecutedQty: 1, CummulativeQuoteQty: 104}, nil).Once()
	md.setPrice("ETHUSDT", 104)
	rep := runTrailing(t, eng)
	assert.Equal(t, 1, rep.Triggered)
	assert.Equal(t, model.TrailingExecuted, store.stops[1].Status)
}

func TestTrailing_ActivationPriceGatesSell(t *testing.T) {
	act := 120.0
	store := newFakeTrailingStore(model.TrailingStop{
		ID: 2, Symbol: "SOLUSDT", Quantity: 3, EntryPrice: 100, HighestPrice: 100, CallbackRate: 5, ActivationPrice: &act,
	})
	md := newFakeMarket()
	md.setPrice("SOLUSDT", 90)
	exec := new(mockExecutor)

	rep := runTrailing(t, NewTrailingEngine(store, testDeps(md, exec, nil, nil)))
	assert.Zero(t, rep.Triggered)
	assert.Equal(t, model.TrailingActive, store.stops[2].Status)
	exec.AssertNotCalled(t, "MarketSellByQty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTrailing_PricesFetchedOncePerSymbol(t *testing.T) {
	store := newFakeTrailingStore(
		model.TrailingStop{ID: 1, Symbol: "BTCUSDT", Quantity: 1, HighestPrice: 100, CallbackRate: 5},
		model.TrailingStop{ID: 2, Symbol: "BTCUSDT", Quantity: 1, HighestPrice: 100, CallbackRate: 10},
		model.TrailingStop{ID: 3, Symbol: "ETHUSDT", Quantity: 1, HighestPrice: 50, CallbackRate: 5},
	)
	md := newFakeMarket()
	md.setPrice("BTCUSDT", 99)
	md.setPrice("ETHUSDT", 49)

	rep := runTrailing(t, NewTrailingEngine(store, testDeps(md, new(mockExecutor), nil, nil)))
	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 1, md.priceCalls["BTCUSDT"])
	assert.Equal(t, 1, md.priceCalls["ETHUSDT"])
}

func TestTrailing_ExecutionFailureKeepsStopActive(t *testing.T) {
	store := newFakeTrailingStore(model.TrailingStop{
		ID: 9, Symbol: "BTCUSDT", Quantity: 1, EntryPrice: 90, HighestPrice: 100, CallbackRate: 5,
	})
	md := newFakeMarket()
	md.setPrice("BTCUSDT", 90)
	exec := new(mockExecutor)
	exec.On("MarketSellByQty", mock.Anything, "BTCUSDT", 1.0, mock.Anything).
		Return(model.OrderResult{}, errors.New("exchange down"))
	orders := &fakeOrders{}
	eng := NewTrailingEngine(store, testDeps(md, exec, orders, nil))

	rep := runTrailing(t, eng)
	assert.Zero(t, rep.Triggered)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, model.TrailingActive, store.stops[9].Status)
	assert.Empty(t, orders.orders)

	// Retried next cycle.
	runTrailing(t, eng)
	exec.AssertNumberOfCalls(t, "MarketSellByQty", 2)
}

func TestTrailing_StatusWriteFailureStillJournalsOrder(t *testing.T) {
	store := newFakeTrailingStore(model.TrailingStop{
		ID: 4, Symbol: "BTCUSDT", Quantity: 1, EntryPrice: 90, HighestPrice: 100, CallbackRate: 5,
	})
	store.statusErr = errors.New("db locked")
	md := newFakeMarket()
	md.setPrice("BTCUSDT", 94)
	exec := new(mockExecutor)
	exec.On("MarketSellByQty", mock.Anything, "BTCUSDT", 1.0, mock.Anything).
		Return(model.OrderResult{OrderID: "1", ExecutedQty: 1, CummulativeQuoteQty: 94}, nil)
	orders := &fakeOrders{}

	rep := runTrailing(t, NewTrailingEngine(store, testDeps(md, exec, orders, nil)))
	assert.Equal(t, 1, rep.Triggered)
	require.Len(t, rep.Errors, 1)
	assert.Len(t, orders.orders, 1)
	assert.NotEmpty(t, orders.orders[0].ClientOrderID)
}
