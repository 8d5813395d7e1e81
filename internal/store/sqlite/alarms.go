package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crypto-signals/internal/model"
)

const alarmColumns = `id, user_id, symbol, condition_type, action_type, threshold, is_active, created_at, last_triggered_at`

func scanAlarm(row interface{ Scan(...any) error }) (model.Alarm, error) {
	var (
		a         model.Alarm
		active    int
		created   int64
		triggered sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &a.Condition, &a.Action, &a.Threshold, &active, &created, &triggered); err != nil {
		return a, err
	}
	a.IsActive = active == 1
	a.CreatedAt = fromMillis(created)
	a.LastTriggeredAt = timePtr(triggered)
	return a, nil
}

func (s *Store) queryAlarms(ctx context.Context, query string, args ...any) ([]model.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alarms: %w", err)
	}
	defer rows.Close()

	var out []model.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan alarm: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActiveAlarms returns every alarm with is_active set, ordered by symbol.
func (s *Store) ActiveAlarms(ctx context.Context) ([]model.Alarm, error) {
	return s.queryAlarms(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE is_active = 1 ORDER BY symbol, id`)
}

// ListAlarms returns the alarms of a user, newest first.
func (s *Store) ListAlarms(ctx context.Context, userID string) ([]model.Alarm, error) {
	return s.queryAlarms(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE user_id = ? ORDER BY id DESC`, userID)
}

func (s *Store) GetAlarm(ctx context.Context, id int64) (model.Alarm, error) {
	a, err := scanAlarm(s.db.QueryRowContext(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, model.ErrNotFound
	}
	return a, err
}

// CreateAlarm inserts a and returns its id.
func (s *Store) CreateAlarm(ctx context.Context, a model.Alarm) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms (user_id, symbol, condition_type, action_type, threshold, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.UserID, a.Symbol, a.Condition, a.Action, a.Threshold, boolInt(a.IsActive), toMillis(s.stamp(a.CreatedAt)))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert alarm: %w", err)
	}
	return res.LastInsertId()
}

// ToggleAlarm flips is_active and returns the new value.
func (s *Store) ToggleAlarm(ctx context.Context, id int64) (bool, error) {
	if err := affectOne(s.db.ExecContext(ctx, `UPDATE alarms SET is_active = 1 - is_active WHERE id = ?`, id)); err != nil {
		return false, err
	}
	var active int
	if err := s.db.QueryRowContext(ctx, `SELECT is_active FROM alarms WHERE id = ?`, id).Scan(&active); err != nil {
		return false, err
	}
	return active == 1, nil
}

func (s *Store) DeleteAlarm(ctx context.Context, id int64) error {
	return affectOne(s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id))
}

func (s *Store) MarkAlarmTriggered(ctx context.Context, id int64, at time.Time) error {
	return affectOne(s.db.ExecContext(ctx, `UPDATE alarms SET last_triggered_at = ? WHERE id = ?`, toMillis(at), id))
}

func (s *Store) InsertAlarmLog(ctx context.Context, l model.AlarmLog) (int64, error) {
	var result sql.NullString
	if len(l.ActionResult) > 0 {
		result = sql.NullString{String: string(l.ActionResult), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alarm_logs (alarm_id, triggered_at, signal_value, action_result, success)
		VALUES (?, ?, ?, ?, ?)
	`, l.AlarmID, toMillis(s.stamp(l.TriggeredAt)), l.SignalValue, result, boolInt(l.Success))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert alarm log: %w", err)
	}
	return res.LastInsertId()
}

// AlarmLogs returns the most recent logs of an alarm.
func (s *Store) AlarmLogs(ctx context.Context, alarmID int64, limit int) ([]model.AlarmLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alarm_id, triggered_at, signal_value, action_result, success
		FROM alarm_logs WHERE alarm_id = ?
		ORDER BY id DESC LIMIT ?
	`, alarmID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alarm logs: %w", err)
	}
	defer rows.Close()

	var out []model.AlarmLog
	for rows.Next() {
		var (
			l       model.AlarmLog
			at      int64
			result  sql.NullString
			success int
		)
		if err := rows.Scan(&l.ID, &l.AlarmID, &at, &l.SignalValue, &result, &success); err != nil {
			return nil, fmt.Errorf("sqlite scan alarm log: %w", err)
		}
		l.TriggeredAt = fromMillis(at)
		if result.Valid {
			l.ActionResult = []byte(result.String)
		}
		l.Success = success == 1
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) InsertAutoTradeSignal(ctx context.Context, sig model.AutoTradeSignal) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_trade_signals (alarm_id, user_id, symbol, side, price, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sig.AlarmID, sig.UserID, sig.Symbol, sig.Side, sig.Price, sig.Reason, toMillis(s.stamp(sig.CreatedAt)))
	if err != nil {
		return 0, fmt.Errorf("sqlite insert auto trade signal: %w", err)
	}
	return res.LastInsertId()
}

// AutoTradeSignals returns the most recent auto-trade signals of a user.
func (s *Store) AutoTradeSignals(ctx context.Context, userID string, limit int) ([]model.AutoTradeSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alarm_id, user_id, symbol, side, price, reason, created_at
		FROM auto_trade_signals WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query auto trade signals: %w", err)
	}
	defer rows.Close()

	var out []model.AutoTradeSignal
	for rows.Next() {
		var (
			sig     model.AutoTradeSignal
			reason  sql.NullString
			created int64
		)
		if err := rows.Scan(&sig.ID, &sig.AlarmID, &sig.UserID, &sig.Symbol, &sig.Side, &sig.Price, &reason, &created); err != nil {
			return nil, fmt.Errorf("sqlite scan auto trade signal: %w", err)
		}
		sig.Reason = reason.String
		sig.CreatedAt = fromMillis(created)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
