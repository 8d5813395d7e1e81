package model

import (
	"encoding/json"
	"time"
)

// Side is an order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order types recorded in order history. They identify which component
// placed the order.
const (
	OrderTypeMarket        = "MARKET"
	OrderTypeDCABuy        = "DCA_BUY"
	OrderTypeDCATakeProfit = "DCA_TAKE_PROFIT"
	OrderTypeTrailingStop  = "TRAILING_STOP"
	OrderTypePanicSell     = "PANIC_SELL"
	OrderTypePanicBuyBack  = "PANIC_BUY_BACK"
)

// Trade types recorded in trade history.
const (
	TradeTypeDCA          = "DCA"
	TradeTypeDCATP        = "DCA_TP"
	TradeTypeTrailingStop = "TRAILING_STOP"
	TradeTypePanic        = "PANIC"
)

// Fill is a single partial execution reported by the exchange.
type Fill struct {
	Price      float64 `json:"price"`
	Qty        float64 `json:"qty"`
	Commission float64 `json:"commission"`
}

// OrderResult is the execution report returned by both the live exchange
// client and the simulator. Engines never need to know which one ran.
type OrderResult struct {
	OrderID             string    `json:"orderId"`
	ClientOrderID       string    `json:"clientOrderId,omitempty"`
	Symbol              string    `json:"symbol"`
	Side                Side      `json:"side"`
	Status              string    `json:"status"`
	ExecutedQty         float64   `json:"executedQty"`
	CummulativeQuoteQty float64   `json:"cummulativeQuoteQty"`
	Fills               []Fill    `json:"fills,omitempty"`
	TransactTime        time.Time `json:"transactTime"`
}

// Commission sums the commission of all fills.
func (r OrderResult) Commission() float64 {
	var c float64
	for _, f := range r.Fills {
		c += f.Commission
	}
	return c
}

// Order is a row of order history.
type Order struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"userId"`
	ExchangeID    string          `json:"exchangeOrderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Type          string          `json:"type"`
	Quantity      float64         `json:"quantity"`
	QuoteQty      float64         `json:"quoteQty"`
	Price         float64         `json:"price"`
	Status        string          `json:"status"`
	Meta          json.RawMessage `json:"meta,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Trade is a row of trade history. ProfitLoss fields are zero for opening trades.
type Trade struct {
	ID                   int64     `json:"id"`
	UserID               string    `json:"userId"`
	OrderID              string    `json:"orderId"`
	Symbol               string    `json:"symbol"`
	Side                 Side      `json:"side"`
	Type                 string    `json:"type"`
	Quantity             float64   `json:"quantity"`
	Price                float64   `json:"price"`
	QuoteQty             float64   `json:"quoteQty"`
	Commission           float64   `json:"commission"`
	ProfitLoss           float64   `json:"profitLoss"`
	ProfitLossPercentage float64   `json:"profitLossPercentage"`
	ExecutedAt           time.Time `json:"executedAt"`
}

// Balance is one asset balance of an account.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Total returns free + locked.
func (b Balance) Total() float64 { return b.Free + b.Locked }
