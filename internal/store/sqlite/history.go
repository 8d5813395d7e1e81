package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"crypto-signals/internal/model"
)

func (s *Store) InsertOrder(ctx context.Context, o model.Order) (int64, error) {
	var meta sql.NullString
	if len(o.Meta) > 0 {
		meta = sql.NullString{String: string(o.Meta), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (user_id, exchange_order_id, client_order_id, symbol, side, type, quantity,
			quote_qty, price, status, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.UserID, o.ExchangeID, o.ClientOrderID, o.Symbol, o.Side, o.Type, o.Quantity,
		o.QuoteQty, o.Price, o.Status, meta, toMillis(s.stamp(o.CreatedAt)))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert order: %w", err)
	}
	return res.LastInsertId()
}

// ListOrders returns the most recent orders of a user.
func (s *Store) ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, exchange_order_id, client_order_id, symbol, side, type, quantity,
			quote_qty, price, status, meta, created_at
		FROM orders WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var (
			o                  model.Order
			exchangeID, client sql.NullString
			meta               sql.NullString
			created            int64
		)
		if err := rows.Scan(&o.ID, &o.UserID, &exchangeID, &client, &o.Symbol, &o.Side, &o.Type, &o.Quantity,
			&o.QuoteQty, &o.Price, &o.Status, &meta, &created); err != nil {
			return nil, fmt.Errorf("sqlite scan order: %w", err)
		}
		o.ExchangeID = exchangeID.String
		o.ClientOrderID = client.String
		if meta.Valid {
			o.Meta = json.RawMessage(meta.String)
		}
		o.CreatedAt = fromMillis(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) InsertTrade(ctx context.Context, t model.Trade) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_history (user_id, order_id, symbol, side, type, quantity, price, quote_qty,
			commission, profit_loss, profit_loss_percentage, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.UserID, t.OrderID, t.Symbol, t.Side, t.Type, t.Quantity, t.Price, t.QuoteQty,
		t.Commission, t.ProfitLoss, t.ProfitLossPercentage, toMillis(s.stamp(t.ExecutedAt)))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert trade: %w", err)
	}
	return res.LastInsertId()
}

// ListTrades returns the most recent trades of a user.
func (s *Store) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, order_id, symbol, side, type, quantity, price, quote_qty,
			commission, profit_loss, profit_loss_percentage, executed_at
		FROM trade_history WHERE user_id = ?
		ORDER BY executed_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t        model.Trade
			orderID  sql.NullString
			executed int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &orderID, &t.Symbol, &t.Side, &t.Type, &t.Quantity, &t.Price, &t.QuoteQty,
			&t.Commission, &t.ProfitLoss, &t.ProfitLossPercentage, &executed); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.OrderID = orderID.String
		t.ExecutedAt = fromMillis(executed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Performance aggregates realized results from trade history.
type Performance struct {
	Trades        int     `json:"trades"`
	ClosedTrades  int     `json:"closedTrades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"winRate"` // percent of closed trades
	RealizedPnL   float64 `json:"realizedPnl"`
	Volume        float64 `json:"volume"`
	TotalFees     float64 `json:"totalFees"`
	BestTradePnL  float64 `json:"bestTradePnl"`
	WorstTradePnL float64 `json:"worstTradePnl"`
}

// PerformanceSummary aggregates trade history of a user. Closed trades are
// sells; buys only contribute to volume and fees.
func (s *Store) PerformanceSummary(ctx context.Context, userID string) (Performance, error) {
	var (
		p           Performance
		best, worst sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN side = 'SELL' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN side = 'SELL' AND profit_loss > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN side = 'SELL' AND profit_loss < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN side = 'SELL' THEN profit_loss ELSE 0 END), 0),
			COALESCE(SUM(quote_qty), 0),
			COALESCE(SUM(commission), 0),
			MAX(CASE WHEN side = 'SELL' THEN profit_loss END),
			MIN(CASE WHEN side = 'SELL' THEN profit_loss END)
		FROM trade_history WHERE user_id = ?
	`, userID).Scan(&p.Trades, &p.ClosedTrades, &p.Wins, &p.Losses, &p.RealizedPnL, &p.Volume, &p.TotalFees, &best, &worst)
	if err != nil {
		return p, fmt.Errorf("sqlite performance summary: %w", err)
	}
	p.BestTradePnL = best.Float64
	p.WorstTradePnL = worst.Float64
	if p.ClosedTrades > 0 {
		p.WinRate = float64(p.Wins) / float64(p.ClosedTrades) * 100
	}
	return p, nil
}

// ── Panic snapshots ──

func (s *Store) InsertPanicSnapshot(ctx context.Context, snap model.PanicSnapshot) (int64, error) {
	data, err := json.Marshal(snap.Items)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO panic_snapshots (user_id, snapshot_data, total_usdt_value, created_at)
		VALUES (?, ?, ?, ?)
	`, snap.UserID, string(data), snap.TotalUSDTValue, toMillis(s.stamp(snap.CreatedAt)))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert panic snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestPanicSnapshot returns the newest snapshot of a user or model.ErrNotFound.
func (s *Store) LatestPanicSnapshot(ctx context.Context, userID string) (model.PanicSnapshot, error) {
	var (
		snap    model.PanicSnapshot
		data    string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, snapshot_data, total_usdt_value, created_at
		FROM panic_snapshots WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, userID).Scan(&snap.ID, &snap.UserID, &data, &snap.TotalUSDTValue, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, model.ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("sqlite read panic snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &snap.Items); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	snap.CreatedAt = fromMillis(created)
	return snap, nil
}

// ── F4 signals ──

func (s *Store) InsertF4Signal(ctx context.Context, r model.F4SignalRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO f4_signals (symbol, timeframe, signal, smc_structure, wt_status, confluence_score,
			action_recommendation, price, f4, f4_fibo, wt1, wt2, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Symbol, r.Timeframe, r.Signal, r.SMCStructure, r.WTStatus, r.ConfluenceScore,
		r.ActionRecommendation, r.Price, r.F4, r.F4Fibo, r.WT1, r.WT2, toMillis(s.stamp(r.CreatedAt)))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert f4 signal: %w", err)
	}
	return res.LastInsertId()
}

// F4Signals returns the most recent F4 evaluations of a symbol.
func (s *Store) F4Signals(ctx context.Context, symbol string, limit int) ([]model.F4SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, timeframe, signal, smc_structure, wt_status, confluence_score,
			action_recommendation, price, f4, f4_fibo, wt1, wt2, created_at
		FROM f4_signals WHERE symbol = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query f4 signals: %w", err)
	}
	defer rows.Close()

	var out []model.F4SignalRecord
	for rows.Next() {
		var (
			r       model.F4SignalRecord
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Timeframe, &r.Signal, &r.SMCStructure, &r.WTStatus, &r.ConfluenceScore,
			&r.ActionRecommendation, &r.Price, &r.F4, &r.F4Fibo, &r.WT1, &r.WT2, &created); err != nil {
			return nil, fmt.Errorf("sqlite scan f4 signal: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
