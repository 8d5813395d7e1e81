package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crypto-signals/internal/execution"
	"crypto-signals/internal/logger"
	"crypto-signals/internal/model"
	"crypto-signals/internal/notification"
)

// TrailingEngine ratchets the highest price of each ACTIVE stop and sells
// once price falls through the stop.
type TrailingEngine struct {
	store model.TrailingStore
	deps  Deps
}

// NewTrailingEngine creates a trailing-stop engine.
func NewTrailingEngine(store model.TrailingStore, deps Deps) *TrailingEngine {
	return &TrailingEngine{store: store, deps: deps}
}

// RunCycle evaluates every ACTIVE stop against one price per distinct symbol.
func (e *TrailingEngine) RunCycle(ctx context.Context) (CycleReport, error) {
	now := e.deps.now()
	c := beginCycle(ctx, NameTrailing, e.deps.Metrics, now)

	stops, err := e.store.TrailingStopsByStatus(c.ctx, model.TrailingActive)
	if err != nil {
		return c.finish(fmt.Errorf("trailing: load stops: %w", persistErr("load trailing stops", err)))
	}

	symbols := distinctSymbols(stops, func(s model.TrailingStop) string { return s.Symbol })
	prices, priceErrs := fetchEach(c.ctx, symbols, e.deps.Market.Price)

	for _, stop := range stops {
		entity := fmt.Sprintf("stop %d %s", stop.ID, stop.Symbol)
		price, ok := prices[stop.Symbol]
		if !ok {
			c.fail(entity, marketErr(stop.Symbol, priceErrs[stop.Symbol]))
			continue
		}
		c.checked()
		fired, err := e.evaluate(c.ctx, stop, price)
		if fired {
			c.report.Triggered++
		}
		if err != nil {
			c.fail(entity, err)
		}
	}
	return c.finish(nil)
}

// evaluate applies one price to one stop. fired reports whether a sell
// was placed.
func (e *TrailingEngine) evaluate(ctx context.Context, stop model.TrailingStop, price float64) (fired bool, err error) {
	if price > stop.HighestPrice {
		if err := e.store.UpdateHighestPrice(ctx, stop.ID, price); err != nil {
			return false, persistErr("update highest price", err)
		}
		slog.Debug("trailing stop ratcheted", append(logger.Attrs(ctx),
			"stop_id", stop.ID, "from", stop.HighestPrice, "to", price)...)
		return false, nil
	}

	stopPrice := stop.StopPrice()
	if price > stopPrice {
		return false, nil
	}
	if !stop.Armed() {
		slog.Debug("trailing stop not armed", append(logger.Attrs(ctx),
			"stop_id", stop.ID, "highest", stop.HighestPrice, "activation", *stop.ActivationPrice)...)
		return false, nil
	}
	if err := e.execute(ctx, stop, price, stopPrice); err != nil {
		var exe *model.ExecutionError
		return !errors.As(err, &exe), err
	}
	return true, nil
}

// execute sells the full quantity. An order failure leaves the stop
// ACTIVE for the next cycle. The order row is written before the status.
func (e *TrailingEngine) execute(ctx context.Context, stop model.TrailingStop, price, stopPrice float64) error {
	now := e.deps.now()
	cid := execution.ClientOrderID("TRAIL", stop.ID, now.UnixMilli())
	res, err := e.deps.Executor.MarketSellByQty(ctx, stop.Symbol, stop.Quantity, cid)
	if err != nil {
		return execErr(stop.Symbol, model.SideSell, err)
	}
	if res.ClientOrderID == "" {
		res.ClientOrderID = cid
	}
	qty, quote := execution.DeriveFill(res, stop.Quantity*price, price)
	entryValue := qty * stop.EntryPrice
	pnl := quote - entryValue
	var pnlPct float64
	if entryValue > 0 {
		pnlPct = pnl / entryValue * 100
	}

	jerr := e.deps.record(ctx, execution.Entry{
		UserID:     stop.UserID,
		Symbol:     stop.Symbol,
		Side:       model.SideSell,
		OrderType:  model.OrderTypeTrailingStop,
		TradeType:  model.TradeTypeTrailingStop,
		Result:     res,
		Qty:        qty,
		Quote:      quote,
		ProfitLoss: pnl,
		PnLPercent: pnlPct,
		Meta: map[string]any{
			"stopPrice":    stopPrice,
			"highestPrice": stop.HighestPrice,
			"callbackRate": stop.CallbackRate,
		},
		At: now,
	})
	e.deps.Metrics.OrderPlaced(NameTrailing, string(model.SideSell), e.deps.mode())
	serr := persistErr("set trailing status", e.store.SetTrailingStatus(ctx, stop.ID, model.TrailingExecuted))

	slog.Info("trailing stop executed", append(logger.Attrs(ctx),
		"stop_id", stop.ID, "symbol", stop.Symbol, "price", price, "stop_price", stopPrice, "pnl", pnl)...)
	nerr := e.deps.notify(ctx, notification.Alert{
		Level:   notification.AlertWarning,
		Kind:    notification.KindOrder,
		Title:   "Trailing stop executed",
		Message: fmt.Sprintf("sold %g %s at %.8g (stop %.8g), P&L %.2f (%.2f%%)", qty, stop.Symbol, price, stopPrice, pnl, pnlPct),
		Symbol:  stop.Symbol,
		Fields:  map[string]any{"stopId": stop.ID, "pnl": pnl},
	})
	if nerr != nil {
		slog.Warn("trailing notify failed", append(logger.Attrs(ctx), "error", nerr)...)
	}
	return errors.Join(jerr, serr)
}
