package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"crypto-signals/internal/execution"
	"crypto-signals/internal/model"
	"crypto-signals/internal/notification"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// ────────────────────────────────────────────────────────────
// Market data
// ────────────────────────────────────────────────────────────

type fakeMarket struct {
	mu         sync.Mutex
	prices     map[string]float64
	candles    map[string][]model.Candle
	priceCalls map[string]int
	klineCalls map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices:     map[string]float64{},
		candles:    map[string][]model.Candle{},
		priceCalls: map[string]int{},
		klineCalls: map[string]int{},
	}
}

func (f *fakeMarket) setPrice(symbol string, p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = p
}

func (f *fakeMarket) Price(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls[symbol]++
	p, ok := f.prices[symbol]
	if !ok {
		return 0, &model.MarketDataError{Symbol: symbol, Err: errors.New("unknown symbol")}
	}
	return p, nil
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.klineCalls[symbol]++
	c, ok := f.candles[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return c, nil
}

// ramp builds n hourly candles with closes moving linearly from a to b.
func ramp(n int, a, b float64) []model.Candle {
	out := make([]model.Candle, n)
	start := testNow.Add(-time.Duration(n) * time.Hour)
	for i := range out {
		c := a + (b-a)*float64(i)/float64(n-1)
		out[i] = model.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Executor
// ────────────────────────────────────────────────────────────

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) MarketBuyByQuote(ctx context.Context, symbol string, quote float64, cid string) (model.OrderResult, error) {
	args := m.Called(ctx, symbol, quote, cid)
	return args.Get(0).(model.OrderResult), args.Error(1)
}

func (m *mockExecutor) MarketSellByQty(ctx context.Context, symbol string, qty float64, cid string) (model.OrderResult, error) {
	args := m.Called(ctx, symbol, qty, cid)
	return args.Get(0).(model.OrderResult), args.Error(1)
}

func (m *mockExecutor) Balances(ctx context.Context) ([]model.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Balance), args.Error(1)
}

func (m *mockExecutor) Mode() string { return "test" }

// ────────────────────────────────────────────────────────────
// Stores
// ────────────────────────────────────────────────────────────

type mockDcaStore struct {
	mock.Mock
}

func (m *mockDcaStore) DcaBotsByStatus(ctx context.Context, status model.DcaStatus) ([]model.DcaBot, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]model.DcaBot), args.Error(1)
}

func (m *mockDcaStore) RecordDcaBuy(ctx context.Context, bot model.DcaBot) error {
	return m.Called(ctx, bot).Error(0)
}

func (m *mockDcaStore) CompleteDcaBot(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// fakeTrailingStore mirrors the SQL store: the highest price only moves up.
type fakeTrailingStore struct {
	stops         map[int64]*model.TrailingStop
	order         []int64
	highestWrites []float64
	statusErr     error
}

func newFakeTrailingStore(stops ...model.TrailingStop) *fakeTrailingStore {
	f := &fakeTrailingStore{stops: map[int64]*model.TrailingStop{}}
	for i := range stops {
		s := stops[i]
		if s.Status == "" {
			s.Status = model.TrailingActive
		}
		f.stops[s.ID] = &s
		f.order = append(f.order, s.ID)
	}
	return f
}

func (f *fakeTrailingStore) TrailingStopsByStatus(ctx context.Context, status model.TrailingStatus) ([]model.TrailingStop, error) {
	var out []model.TrailingStop
	for _, id := range f.order {
		if s := f.stops[id]; s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeTrailingStore) UpdateHighestPrice(ctx context.Context, id int64, highest float64) error {
	s, ok := f.stops[id]
	if !ok {
		return model.ErrNotFound
	}
	f.highestWrites = append(f.highestWrites, highest)
	if s.Status == model.TrailingActive && highest > s.HighestPrice {
		s.HighestPrice = highest
	}
	return nil
}

func (f *fakeTrailingStore) SetTrailingStatus(ctx context.Context, id int64, status model.TrailingStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	s, ok := f.stops[id]
	if !ok {
		return model.ErrNotFound
	}
	s.Status = status
	return nil
}

type fakeOrders struct {
	orders []model.Order
	trades []model.Trade
}

func (f *fakeOrders) InsertOrder(ctx context.Context, o model.Order) (int64, error) {
	f.orders = append(f.orders, o)
	return int64(len(f.orders)), nil
}

func (f *fakeOrders) InsertTrade(ctx context.Context, t model.Trade) (int64, error) {
	f.trades = append(f.trades, t)
	return int64(len(f.trades)), nil
}

type fakeAlarmStore struct {
	alarms  []model.Alarm
	loadErr error
	logs    []model.AlarmLog
	marked  map[int64]time.Time
	auto    []model.AutoTradeSignal
}

func (f *fakeAlarmStore) ActiveAlarms(ctx context.Context) ([]model.Alarm, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []model.Alarm
	for _, a := range f.alarms {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlarmStore) MarkAlarmTriggered(ctx context.Context, id int64, at time.Time) error {
	if f.marked == nil {
		f.marked = map[int64]time.Time{}
	}
	f.marked[id] = at
	return nil
}

func (f *fakeAlarmStore) InsertAlarmLog(ctx context.Context, l model.AlarmLog) (int64, error) {
	f.logs = append(f.logs, l)
	return int64(len(f.logs)), nil
}

func (f *fakeAlarmStore) InsertAutoTradeSignal(ctx context.Context, s model.AutoTradeSignal) (int64, error) {
	f.auto = append(f.auto, s)
	return int64(len(f.auto)), nil
}

type fakeF4Store struct {
	records []model.F4SignalRecord
}

func (f *fakeF4Store) InsertF4Signal(ctx context.Context, r model.F4SignalRecord) (int64, error) {
	f.records = append(f.records, r)
	return int64(len(f.records)), nil
}

type fakePanicStore struct {
	snapshots []model.PanicSnapshot
	insertErr error
}

func (f *fakePanicStore) InsertPanicSnapshot(ctx context.Context, s model.PanicSnapshot) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.snapshots = append(f.snapshots, s)
	return int64(len(f.snapshots)), nil
}

func (f *fakePanicStore) LatestPanicSnapshot(ctx context.Context, userID string) (model.PanicSnapshot, error) {
	for i := len(f.snapshots) - 1; i >= 0; i-- {
		if f.snapshots[i].UserID == userID {
			return f.snapshots[i], nil
		}
	}
	return model.PanicSnapshot{}, model.ErrNotFound
}

// ────────────────────────────────────────────────────────────
// Notifier
// ────────────────────────────────────────────────────────────

type recordingNotifier struct {
	alerts []notification.Alert
	err    error
}

func (r *recordingNotifier) Send(ctx context.Context, a notification.Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func testDeps(md model.MarketData, exec model.Executor, orders *fakeOrders, n notification.Notifier) Deps {
	d := Deps{Market: md, Executor: exec, Notifier: n, Now: fixedNow}
	if orders != nil {
		d.Journal = execution.NewJournal(orders)
	}
	return d
}
