package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crypto-signals/internal/execution"
	"crypto-signals/internal/logger"
	"crypto-signals/internal/model"
	"crypto-signals/internal/notification"
)

// Quote assets a panic sell keeps.
var stableAssets = map[string]bool{"USDT": true, "USDC": true}

// PanicItemResult is the outcome for one asset of a liquidation or buy-back.
type PanicItemResult struct {
	Asset     string  `json:"asset"`
	Symbol    string  `json:"symbol"`
	Success   bool    `json:"success"`
	Quantity  float64 `json:"quantity,omitempty"`
	USDTValue float64 `json:"usdtValue,omitempty"`
	OrderID   string  `json:"orderId,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// PanicResult is returned by SellAll.
type PanicResult struct {
	Success        bool              `json:"success"`
	Message        string            `json:"message,omitempty"`
	TotalUSDTValue float64           `json:"totalUsdtValue"`
	Results        []PanicItemResult `json:"results"`
	SoldCount      int               `json:"soldCount"`
	Mode           string            `json:"mode"`
}

// BuyBackResult is returned by BuyBack.
type BuyBackResult struct {
	TotalSpent   float64           `json:"totalSpent"`
	Results      []PanicItemResult `json:"results"`
	SnapshotTime time.Time         `json:"snapshotTime"`
	Mode         string            `json:"mode"`
}

// PanicService liquidates every non-stable asset into USDT and can buy
// the liquidated set back from the last snapshot.
type PanicService struct {
	store model.PanicStore
	deps  Deps
}

// NewPanicService creates a panic service.
func NewPanicService(store model.PanicStore, deps Deps) *PanicService {
	return &PanicService{store: store, deps: deps}
}

// SellAll market-sells the free balance of every asset except USDT and
// USDC on its USDT pair. A failed asset is reported and the rest continue.
// A snapshot of what was sold is saved; failing to save it is logged only.
func (p *PanicService) SellAll(ctx context.Context, userID string) (PanicResult, error) {
	now := p.deps.now()
	mode := p.deps.mode()
	slog.Info("panic sell-all started", append(logger.Attrs(ctx), "user_id", userID, "mode", strings.ToUpper(mode))...)

	balances, err := p.deps.Executor.Balances(ctx)
	if err != nil {
		return PanicResult{}, fmt.Errorf("panic: load balances: %w", err)
	}

	var held []model.Balance
	for _, b := range balances {
		if b.Total() > 0 && !stableAssets[b.Asset] {
			held = append(held, b)
		}
	}
	if len(held) == 0 {
		slog.Info("panic sell-all found no assets", logger.Attrs(ctx)...)
		return PanicResult{Success: false, Message: "No assets to sell", Results: []PanicItemResult{}, Mode: mode}, nil
	}

	out := PanicResult{Success: true, Mode: mode, Results: make([]PanicItemResult, 0, len(held))}
	var items []model.SnapshotItem
	for i, b := range held {
		if b.Free <= 0 {
			continue
		}
		symbol := b.Asset + "USDT"
		cid := execution.ClientOrderID("PANIC", int64(i), now.UnixMilli())
		res, err := p.deps.Executor.MarketSellByQty(ctx, symbol, b.Free, cid)
		if err != nil {
			slog.Warn("panic sell failed", append(logger.Attrs(ctx), "asset", b.Asset, "error", err)...)
			p.deps.Metrics.EntityError(NamePanic, model.ErrorKind(execErr(symbol, model.SideSell, err)))
			out.Results = append(out.Results, PanicItemResult{Asset: b.Asset, Symbol: symbol, Error: err.Error()})
			continue
		}
		if res.ClientOrderID == "" {
			res.ClientOrderID = cid
		}
		qty, usdt := execution.DeriveFill(res, 0, 0)
		if qty == 0 {
			qty = b.Free
		}
		out.TotalUSDTValue += usdt
		out.SoldCount++
		slog.Info("panic sold asset", append(logger.Attrs(ctx), "asset", b.Asset, "usdt", usdt)...)

		items = append(items, model.SnapshotItem{
			Asset: b.Asset, Quantity: qty, Symbol: symbol, USDTValue: usdt, OrderID: res.OrderID,
		})
		out.Results = append(out.Results, PanicItemResult{
			Asset: b.Asset, Symbol: symbol, Success: true, Quantity: qty, USDTValue: usdt, OrderID: res.OrderID,
		})
		p.deps.Metrics.OrderPlaced(NamePanic, string(model.SideSell), mode)
		if err := p.deps.record(ctx, execution.Entry{
			UserID:    userID,
			Symbol:    symbol,
			Side:      model.SideSell,
			OrderType: model.OrderTypePanicSell,
			TradeType: model.TradeTypePanic,
			Result:    res,
			Qty:       qty,
			Quote:     usdt,
			At:        now,
		}); err != nil {
			slog.Warn("panic journal failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
		}
	}

	if _, err := p.store.InsertPanicSnapshot(ctx, model.PanicSnapshot{
		UserID:         userID,
		Items:          items,
		TotalUSDTValue: out.TotalUSDTValue,
		CreatedAt:      now,
	}); err != nil {
		slog.Error("panic snapshot not saved", append(logger.Attrs(ctx), "error", err)...)
	}

	if nerr := p.deps.notify(ctx, notification.Alert{
		Level:   notification.AlertCritical,
		Kind:    notification.KindPanic,
		Title:   "Panic sell executed",
		Message: fmt.Sprintf("sold %d of %d assets for %.2f USDT (%s mode)", out.SoldCount, len(held), out.TotalUSDTValue, mode),
		Fields:  map[string]any{"userId": userID},
	}); nerr != nil {
		slog.Warn("panic notify failed", append(logger.Attrs(ctx), "error", nerr)...)
	}
	return out, nil
}

// BuyBack re-buys each asset of the latest snapshot with the USDT it
// fetched. It returns model.ErrNotFound when no snapshot exists.
func (p *PanicService) BuyBack(ctx context.Context, userID string) (BuyBackResult, error) {
	snap, err := p.store.LatestPanicSnapshot(ctx, userID)
	if err != nil {
		return BuyBackResult{}, fmt.Errorf("panic: latest snapshot: %w", err)
	}
	now := p.deps.now()
	mode := p.deps.mode()
	out := BuyBackResult{SnapshotTime: snap.CreatedAt, Mode: mode, Results: make([]PanicItemResult, 0, len(snap.Items))}

	for i, it := range snap.Items {
		if it.USDTValue <= 0 {
			continue
		}
		cid := execution.ClientOrderID("BUYBACK", int64(i), now.UnixMilli())
		res, err := p.deps.Executor.MarketBuyByQuote(ctx, it.Symbol, it.USDTValue, cid)
		if err != nil {
			slog.Warn("buy-back failed", append(logger.Attrs(ctx), "asset", it.Asset, "error", err)...)
			out.Results = append(out.Results, PanicItemResult{Asset: it.Asset, Symbol: it.Symbol, Error: err.Error()})
			continue
		}
		if res.ClientOrderID == "" {
			res.ClientOrderID = cid
		}
		qty, spent := execution.DeriveFill(res, it.USDTValue, 0)
		out.TotalSpent += spent
		out.Results = append(out.Results, PanicItemResult{
			Asset: it.Asset, Symbol: it.Symbol, Success: true, Quantity: qty, USDTValue: spent, OrderID: res.OrderID,
		})
		p.deps.Metrics.OrderPlaced(NamePanic, string(model.SideBuy), mode)
		if err := p.deps.record(ctx, execution.Entry{
			UserID:    userID,
			Symbol:    it.Symbol,
			Side:      model.SideBuy,
			OrderType: model.OrderTypePanicBuyBack,
			TradeType: model.TradeTypePanic,
			Result:    res,
			Qty:       qty,
			Quote:     spent,
			At:        now,
		}); err != nil {
			slog.Warn("buy-back journal failed", append(logger.Attrs(ctx), "symbol", it.Symbol, "error", err)...)
		}
	}
	slog.Info("buy-back finished", append(logger.Attrs(ctx), "user_id", userID, "spent_usdt", out.TotalSpent)...)
	return out, nil
}
