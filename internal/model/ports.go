package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// Engines depend on these; the exchange client, the simulator and the
// SQLite store satisfy them.

// MarketData provides candles and spot prices.
type MarketData interface {
	// Klines returns up to limit candles of the given interval, oldest first.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// Price returns the latest traded price of symbol.
	Price(ctx context.Context, symbol string) (float64, error)
}

// Executor places market orders. Live and simulated implementations
// return the same OrderResult shape.
type Executor interface {
	// MarketBuyByQuote spends quoteAmount of the quote asset on symbol.
	MarketBuyByQuote(ctx context.Context, symbol string, quoteAmount float64, clientOrderID string) (OrderResult, error)

	// MarketSellByQty sells qty of the base asset of symbol.
	MarketSellByQty(ctx context.Context, symbol string, qty float64, clientOrderID string) (OrderResult, error)

	// Balances returns all account balances.
	Balances(ctx context.Context) ([]Balance, error)

	// Mode returns "test" or "production".
	Mode() string
}

// AlarmStore persists alarms and their trigger logs.
type AlarmStore interface {
	ActiveAlarms(ctx context.Context) ([]Alarm, error)
	MarkAlarmTriggered(ctx context.Context, id int64, at time.Time) error
	InsertAlarmLog(ctx context.Context, log AlarmLog) (int64, error)
	InsertAutoTradeSignal(ctx context.Context, sig AutoTradeSignal) (int64, error)
}

// DcaStore persists DCA bots.
type DcaStore interface {
	DcaBotsByStatus(ctx context.Context, status DcaStatus) ([]DcaBot, error)
	// RecordDcaBuy stores the accumulators and last run of an ACTIVE bot.
	// Status is never written; a bot that is no longer ACTIVE yields ErrNotActive.
	RecordDcaBuy(ctx context.Context, bot DcaBot) error
	// CompleteDcaBot moves an ACTIVE bot to COMPLETED, else ErrNotActive.
	CompleteDcaBot(ctx context.Context, id int64) error
}

// TrailingStore persists trailing stops.
type TrailingStore interface {
	TrailingStopsByStatus(ctx context.Context, status TrailingStatus) ([]TrailingStop, error)
	UpdateHighestPrice(ctx context.Context, id int64, highest float64) error
	SetTrailingStatus(ctx context.Context, id int64, status TrailingStatus) error
}

// OrderStore records order and trade history.
type OrderStore interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertTrade(ctx context.Context, t Trade) (int64, error)
}

// PanicStore persists liquidation snapshots.
type PanicStore interface {
	InsertPanicSnapshot(ctx context.Context, s PanicSnapshot) (int64, error)
	LatestPanicSnapshot(ctx context.Context, userID string) (PanicSnapshot, error)
}

// F4SignalStore persists F4 evaluations.
type F4SignalStore interface {
	InsertF4Signal(ctx context.Context, rec F4SignalRecord) (int64, error)
}

// PriceQuote is a cached price with the time it was observed.
type PriceQuote struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// PriceCache stores the latest price per symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, q PriceQuote) error
	// GetPrice reports ok=false when no price is cached for symbol.
	GetPrice(ctx context.Context, symbol string) (q PriceQuote, ok bool, err error)
}
