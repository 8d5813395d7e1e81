package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crypto-signals/internal/model"
)

// ── DCA bots ──

const dcaColumns = `id, user_id, symbol, amount, interval_hours, take_profit_percent, total_invested,
	total_bought_qty, average_price, status, last_run_at, created_at, updated_at`

func scanDcaBot(row interface{ Scan(...any) error }) (model.DcaBot, error) {
	var (
		b                model.DcaBot
		tp               sql.NullFloat64
		lastRun          sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Symbol, &b.Amount, &b.IntervalHours, &tp, &b.TotalInvested,
		&b.TotalBoughtQty, &b.AveragePrice, &b.Status, &lastRun, &created, &updated)
	if err != nil {
		return b, err
	}
	b.TakeProfitPercent = floatPtr(tp)
	b.LastRunAt = timePtr(lastRun)
	b.CreatedAt = fromMillis(created)
	b.UpdatedAt = fromMillis(updated)
	return b, nil
}

func (s *Store) queryDcaBots(ctx context.Context, query string, args ...any) ([]model.DcaBot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query dca bots: %w", err)
	}
	defer rows.Close()

	var out []model.DcaBot
	for rows.Next() {
		b, err := scanDcaBot(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan dca bot: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) DcaBotsByStatus(ctx context.Context, status model.DcaStatus) ([]model.DcaBot, error) {
	return s.queryDcaBots(ctx, `SELECT `+dcaColumns+` FROM dca_bots WHERE status = ? ORDER BY id`, status)
}

func (s *Store) ListDcaBots(ctx context.Context, userID string) ([]model.DcaBot, error) {
	return s.queryDcaBots(ctx, `SELECT `+dcaColumns+` FROM dca_bots WHERE user_id = ? ORDER BY id DESC`, userID)
}

func (s *Store) GetDcaBot(ctx context.Context, id int64) (model.DcaBot, error) {
	b, err := scanDcaBot(s.db.QueryRowContext(ctx, `SELECT `+dcaColumns+` FROM dca_bots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, model.ErrNotFound
	}
	return b, err
}

// CreateDcaBot inserts a bot with zeroed accumulators. An empty status is ACTIVE.
func (s *Store) CreateDcaBot(ctx context.Context, b model.DcaBot) (int64, error) {
	if b.Status == "" {
		b.Status = model.DcaActive
	}
	now := toMillis(s.stamp(b.CreatedAt))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dca_bots (user_id, symbol, amount, interval_hours, take_profit_percent, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, b.UserID, b.Symbol, b.Amount, b.IntervalHours, nullFloat(b.TakeProfitPercent), b.Status, now, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite insert dca bot: %w", err)
	}
	return res.LastInsertId()
}

// RecordDcaBuy writes the accumulators and last run of b while it is
// still ACTIVE. Status is left alone so a concurrent pause or cancel wins.
func (s *Store) RecordDcaBuy(ctx context.Context, b model.DcaBot) error {
	return affectActive(s.db.ExecContext(ctx, `
		UPDATE dca_bots
		SET total_invested = ?, total_bought_qty = ?, average_price = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, b.TotalInvested, b.TotalBoughtQty, b.AveragePrice, nullMillis(b.LastRunAt), toMillis(s.now()), b.ID, model.DcaActive))
}

// CompleteDcaBot closes an ACTIVE bot after its take-profit sell.
func (s *Store) CompleteDcaBot(ctx context.Context, id int64) error {
	return affectActive(s.db.ExecContext(ctx,
		`UPDATE dca_bots SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.DcaCompleted, toMillis(s.now()), id, model.DcaActive))
}

func (s *Store) SetDcaStatus(ctx context.Context, id int64, status model.DcaStatus) error {
	return affectOne(s.db.ExecContext(ctx,
		`UPDATE dca_bots SET status = ?, updated_at = ? WHERE id = ?`, status, toMillis(s.now()), id))
}

func (s *Store) DeleteDcaBot(ctx context.Context, id int64) error {
	return affectOne(s.db.ExecContext(ctx, `DELETE FROM dca_bots WHERE id = ?`, id))
}

// ── Trailing stops ──

const trailingColumns = `id, user_id, symbol, quantity, entry_price, highest_price, callback_rate,
	activation_price, status, created_at, updated_at`

func scanTrailingStop(row interface{ Scan(...any) error }) (model.TrailingStop, error) {
	var (
		t                model.TrailingStop
		activation       sql.NullFloat64
		created, updated int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Quantity, &t.EntryPrice, &t.HighestPrice, &t.CallbackRate,
		&activation, &t.Status, &created, &updated)
	if err != nil {
		return t, err
	}
	t.ActivationPrice = floatPtr(activation)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

func (s *Store) queryTrailingStops(ctx context.Context, query string, args ...any) ([]model.TrailingStop, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trailing stops: %w", err)
	}
	defer rows.Close()

	var out []model.TrailingStop
	for rows.Next() {
		t, err := scanTrailingStop(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan trailing stop: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) TrailingStopsByStatus(ctx context.Context, status model.TrailingStatus) ([]model.TrailingStop, error) {
	return s.queryTrailingStops(ctx, `SELECT `+trailingColumns+` FROM trailing_stops WHERE status = ? ORDER BY id`, status)
}

func (s *Store) ListTrailingStops(ctx context.Context, userID string) ([]model.TrailingStop, error) {
	return s.queryTrailingStops(ctx, `SELECT `+trailingColumns+` FROM trailing_stops WHERE user_id = ? ORDER BY id DESC`, userID)
}

func (s *Store) GetTrailingStop(ctx context.Context, id int64) (model.TrailingStop, error) {
	t, err := scanTrailingStop(s.db.QueryRowContext(ctx, `SELECT `+trailingColumns+` FROM trailing_stops WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, model.ErrNotFound
	}
	return t, err
}

// CreateTrailingStop inserts t. HighestPrice starts at EntryPrice when unset.
func (s *Store) CreateTrailingStop(ctx context.Context, t model.TrailingStop) (int64, error) {
	if t.HighestPrice < t.EntryPrice {
		t.HighestPrice = t.EntryPrice
	}
	if t.Status == "" {
		t.Status = model.TrailingActive
	}
	now := toMillis(s.stamp(t.CreatedAt))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trailing_stops (user_id, symbol, quantity, entry_price, highest_price, callback_rate,
			activation_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.UserID, t.Symbol, t.Quantity, t.EntryPrice, t.HighestPrice, t.CallbackRate,
		nullFloat(t.ActivationPrice), t.Status, now, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite insert trailing stop: %w", err)
	}
	return res.LastInsertId()
}

// UpdateHighestPrice raises highest_price of an ACTIVE stop. A lower value
// leaves the row unchanged, so the ratchet never moves down.
func (s *Store) UpdateHighestPrice(ctx context.Context, id int64, highest float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE trailing_stops SET highest_price = ?, updated_at = ?
		WHERE id = ? AND status = 'ACTIVE' AND highest_price < ?
	`, highest, toMillis(s.now()), id, highest)
	if err != nil {
		return fmt.Errorf("sqlite update highest price: %w", err)
	}
	return nil
}

func (s *Store) SetTrailingStatus(ctx context.Context, id int64, status model.TrailingStatus) error {
	return affectOne(s.db.ExecContext(ctx,
		`UPDATE trailing_stops SET status = ?, updated_at = ? WHERE id = ?`, status, toMillis(s.now()), id))
}
