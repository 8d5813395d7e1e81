package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-signals/internal/model"
)

// Entry describes one executed order to be written to order and trade history.
type Entry struct {
	UserID     string
	Symbol     string
	Side       model.Side
	OrderType  string // orders.type, e.g. DCA_BUY
	TradeType  string // trade_history.type, e.g. DCA
	Result     model.OrderResult
	Qty        float64
	Quote      float64
	ProfitLoss float64
	PnLPercent float64
	Meta       map[string]any
	At         time.Time
}

// Journal persists executed orders to order and trade history.
type Journal struct {
	store model.OrderStore
}

// NewJournal creates a journal writing to store.
func NewJournal(store model.OrderStore) *Journal {
	return &Journal{store: store}
}

// Record writes the order row, then the trade row. The order is written
// first so an execution is visible even if the trade insert fails.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	price := 0.0
	if e.Qty > 0 {
		price = e.Quote / e.Qty
	}
	var meta json.RawMessage
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("journal: marshal meta: %w", err)
		}
		meta = b
	}

	if _, err := j.store.InsertOrder(ctx, model.Order{
		UserID:        e.UserID,
		ExchangeID:    e.Result.OrderID,
		ClientOrderID: e.Result.ClientOrderID,
		Symbol:        e.Symbol,
		Side:          e.Side,
		Type:          e.OrderType,
		Quantity:      e.Qty,
		QuoteQty:      e.Quote,
		Price:         price,
		Status:        "FILLED",
		Meta:          meta,
		CreatedAt:     e.At,
	}); err != nil {
		return &model.PersistenceError{Op: "insert order", Err: err}
	}

	if _, err := j.store.InsertTrade(ctx, model.Trade{
		UserID:               e.UserID,
		OrderID:              e.Result.OrderID,
		Symbol:               e.Symbol,
		Side:                 e.Side,
		Type:                 e.TradeType,
		Quantity:             e.Qty,
		Price:                price,
		QuoteQty:             e.Quote,
		Commission:           e.Result.Commission(),
		ProfitLoss:           e.ProfitLoss,
		ProfitLossPercentage: e.PnLPercent,
		ExecutedAt:           e.At,
	}); err != nil {
		return &model.PersistenceError{Op: "insert trade", Err: err}
	}
	return nil
}
