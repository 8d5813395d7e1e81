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

// DcaEngine buys a fixed quote amount per due bot and closes the position
// once the optional take-profit is reached.
type DcaEngine struct {
	store model.DcaStore
	deps  Deps
}

// NewDcaEngine creates a DCA engine.
func NewDcaEngine(store model.DcaStore, deps Deps) *DcaEngine {
	return &DcaEngine{store: store, deps: deps}
}

// RunCycle processes every ACTIVE bot whose interval has elapsed. Only a
// failure to load the bots aborts the cycle.
func (e *DcaEngine) RunCycle(ctx context.Context) (CycleReport, error) {
	now := e.deps.now()
	c := beginCycle(ctx, NameDCA, e.deps.Metrics, now)

	bots, err := e.store.DcaBotsByStatus(c.ctx, model.DcaActive)
	if err != nil {
		return c.finish(fmt.Errorf("dca: load bots: %w", persistErr("load dca bots", err)))
	}

	due := make([]model.DcaBot, 0, len(bots))
	for _, b := range bots {
		if !b.Due(now) {
			c.report.Skipped++
			continue
		}
		due = append(due, b)
	}

	symbols := distinctSymbols(due, func(b model.DcaBot) string { return b.Symbol })
	prices, priceErrs := fetchEach(c.ctx, symbols, e.deps.Market.Price)

	for _, bot := range due {
		entity := fmt.Sprintf("bot %d %s", bot.ID, bot.Symbol)
		price, ok := prices[bot.Symbol]
		if !ok {
			c.fail(entity, marketErr(bot.Symbol, priceErrs[bot.Symbol]))
			continue
		}
		c.checked()
		if err := e.process(c.ctx, bot, price); err != nil {
			c.fail(entity, err)
			continue
		}
		c.report.Triggered++
	}
	return c.finish(nil)
}

func (e *DcaEngine) process(ctx context.Context, bot model.DcaBot, price float64) error {
	if bot.TakeProfitPercent != nil && bot.TotalBoughtQty > 0 && bot.TotalInvested > 0 {
		profitPct := (bot.TotalBoughtQty*price - bot.TotalInvested) / bot.TotalInvested * 100
		if profitPct >= *bot.TakeProfitPercent {
			return e.takeProfit(ctx, bot, price, profitPct)
		}
	}
	return e.buy(ctx, bot, price)
}

// takeProfit sells the whole position and completes the bot. No buy
// happens in the same cycle.
func (e *DcaEngine) takeProfit(ctx context.Context, bot model.DcaBot, price, profitPct float64) error {
	now := e.deps.now()
	cid := execution.ClientOrderID("DCA", bot.ID, now.UnixMilli())
	res, err := e.deps.Executor.MarketSellByQty(ctx, bot.Symbol, bot.TotalBoughtQty, cid)
	if err != nil {
		return execErr(bot.Symbol, model.SideSell, err)
	}
	if res.ClientOrderID == "" {
		res.ClientOrderID = cid
	}
	qty, quote := execution.DeriveFill(res, bot.TotalBoughtQty*price, price)
	pnl := quote - bot.TotalInvested
	pnlPct := pnl / bot.TotalInvested * 100

	jerr := e.deps.record(ctx, execution.Entry{
		UserID:     bot.UserID,
		Symbol:     bot.Symbol,
		Side:       model.SideSell,
		OrderType:  model.OrderTypeDCATakeProfit,
		TradeType:  model.TradeTypeDCATP,
		Result:     res,
		Qty:        qty,
		Quote:      quote,
		ProfitLoss: pnl,
		PnLPercent: pnlPct,
		Meta: map[string]any{
			"botId":             bot.ID,
			"profitPercent":     profitPct,
			"takeProfitPercent": *bot.TakeProfitPercent,
		},
		At: now,
	})
	e.deps.Metrics.OrderPlaced(NameDCA, string(model.SideSell), e.deps.mode())

	uerr := e.writeBack(ctx, bot, "complete dca bot", e.store.CompleteDcaBot(ctx, bot.ID))

	slog.Info("dca take-profit executed", append(logger.Attrs(ctx),
		"bot_id", bot.ID, "symbol", bot.Symbol, "qty", qty, "pnl", pnl, "pnl_pct", pnlPct)...)
	nerr := e.deps.notify(ctx, notification.Alert{
		Level:   notification.AlertInfo,
		Kind:    notification.KindOrder,
		Title:   "DCA take-profit",
		Message: fmt.Sprintf("bot %d sold %g %s, P&L %.2f (%.2f%%)", bot.ID, qty, bot.Symbol, pnl, pnlPct),
		Symbol:  bot.Symbol,
		Fields:  map[string]any{"botId": bot.ID, "pnl": pnl},
	})
	if nerr != nil {
		slog.Warn("dca notify failed", append(logger.Attrs(ctx), "error", nerr)...)
	}
	return errors.Join(jerr, uerr)
}

// buy spends Amount on the symbol and folds the fill into the bot's
// accumulators.
func (e *DcaEngine) buy(ctx context.Context, bot model.DcaBot, price float64) error {
	now := e.deps.now()
	cid := execution.ClientOrderID("DCA", bot.ID, now.UnixMilli())
	res, err := e.deps.Executor.MarketBuyByQuote(ctx, bot.Symbol, bot.Amount, cid)
	if err != nil {
		return execErr(bot.Symbol, model.SideBuy, err)
	}
	if res.ClientOrderID == "" {
		res.ClientOrderID = cid
	}
	qty, quote := execution.DeriveFill(res, bot.Amount, price)
	if qty <= 0 {
		return &model.ExecutionError{Symbol: bot.Symbol, Side: model.SideBuy, Err: errors.New("order filled no quantity")}
	}

	jerr := e.deps.record(ctx, execution.Entry{
		UserID:    bot.UserID,
		Symbol:    bot.Symbol,
		Side:      model.SideBuy,
		OrderType: model.OrderTypeDCABuy,
		TradeType: model.TradeTypeDCA,
		Result:    res,
		Qty:       qty,
		Quote:     quote,
		Meta:      map[string]any{"botId": bot.ID},
		At:        now,
	})
	e.deps.Metrics.OrderPlaced(NameDCA, string(model.SideBuy), e.deps.mode())

	bot.TotalInvested += quote
	bot.TotalBoughtQty += qty
	bot.AveragePrice = bot.TotalInvested / bot.TotalBoughtQty
	bot.LastRunAt = &now
	bot.UpdatedAt = now
	uerr := e.writeBack(ctx, bot, "record dca buy", e.store.RecordDcaBuy(ctx, bot))

	slog.Info("dca buy executed", append(logger.Attrs(ctx),
		"bot_id", bot.ID, "symbol", bot.Symbol, "qty", qty, "quote", quote, "avg_price", bot.AveragePrice)...)
	return errors.Join(jerr, uerr)
}

// writeBack classifies a guarded write-back result. A bot paused or
// cancelled while its order was in flight keeps the user's status; the
// order itself is already journaled.
func (e *DcaEngine) writeBack(ctx context.Context, bot model.DcaBot, op string, err error) error {
	if errors.Is(err, model.ErrNotActive) {
		slog.Warn("dca bot left ACTIVE during cycle, status kept", append(logger.Attrs(ctx),
			"bot_id", bot.ID, "symbol", bot.Symbol, "op", op)...)
		return nil
	}
	return persistErr(op, err)
}
