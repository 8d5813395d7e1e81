// Package execution places market orders either against the live exchange
// or against an in-memory simulator, behind one model.Executor.
package execution

import (
	"context"
	"fmt"
	"strings"

	"crypto-signals/internal/model"
)

// Mode is the trading mode.
type Mode string

const (
	ModeTest       Mode = "test"
	ModeProduction Mode = "production"
)

// ParseMode parses a TRADING_MODE value. Anything but "production" is test.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeProduction)) {
		return ModeProduction
	}
	return ModeTest
}

// Router dispatches orders to the simulator in test mode and to the live
// executor in production mode. Both return identical OrderResult shapes.
type Router struct {
	mode Mode
	sim  model.Executor
	live model.Executor
}

// NewRouter creates a Router. live may be nil in test mode.
func NewRouter(mode Mode, sim, live model.Executor) (*Router, error) {
	if mode == ModeProduction && live == nil {
		return nil, fmt.Errorf("execution: production mode requires a live executor")
	}
	return &Router{mode: mode, sim: sim, live: live}, nil
}

func (r *Router) active() model.Executor {
	if r.mode == ModeProduction {
		return r.live
	}
	return r.sim
}

func (r *Router) Mode() string { return string(r.mode) }

func (r *Router) MarketBuyByQuote(ctx context.Context, symbol string, quoteAmount float64, clientOrderID string) (model.OrderResult, error) {
	res, err := r.active().MarketBuyByQuote(ctx, symbol, quoteAmount, clientOrderID)
	if err != nil {
		return res, wrapExecution(symbol, model.SideBuy, err)
	}
	return res, nil
}

func (r *Router) MarketSellByQty(ctx context.Context, symbol string, qty float64, clientOrderID string) (model.OrderResult, error) {
	res, err := r.active().MarketSellByQty(ctx, symbol, qty, clientOrderID)
	if err != nil {
		return res, wrapExecution(symbol, model.SideSell, err)
	}
	return res, nil
}

func (r *Router) Balances(ctx context.Context) ([]model.Balance, error) {
	return r.active().Balances(ctx)
}

func wrapExecution(symbol string, side model.Side, err error) error {
	if _, ok := err.(*model.ExecutionError); ok {
		return err
	}
	return &model.ExecutionError{Symbol: symbol, Side: side, Err: err}
}

// DeriveFill extracts filled quantity and quote from an execution report:
// explicit totals first, then the sum of fills, then an estimate from the
// requested quote and the reference price.
func DeriveFill(res model.OrderResult, requestedQuote, refPrice float64) (qty, quote float64) {
	if res.ExecutedQty > 0 && res.CummulativeQuoteQty > 0 {
		return res.ExecutedQty, res.CummulativeQuoteQty
	}
	for _, f := range res.Fills {
		qty += f.Qty
		quote += f.Price * f.Qty
	}
	if qty > 0 && quote > 0 {
		return qty, quote
	}
	if refPrice > 0 {
		return requestedQuote / refPrice, requestedQuote
	}
	return 0, requestedQuote
}

// ClientOrderID builds the id attached to engine orders: SOURCE-entity-unixMillis.
func ClientOrderID(source string, entityID int64, atMillis int64) string {
	return fmt.Sprintf("%s-%d-%d", source, entityID, atMillis)
}
