// Package sqlite persists alarms, bots, trailing stops, order and trade
// history, panic snapshots and F4 evaluations in a single SQLite file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"crypto-signals/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Store implements the engine persistence ports on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alarms (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           TEXT    NOT NULL,
			symbol            TEXT    NOT NULL,
			condition_type    TEXT    NOT NULL,
			action_type       TEXT    NOT NULL,
			threshold         REAL    NOT NULL DEFAULT 0,
			is_active         INTEGER NOT NULL DEFAULT 1,
			created_at        INTEGER NOT NULL,
			last_triggered_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_alarms_active ON alarms (is_active, symbol);

		CREATE TABLE IF NOT EXISTS alarm_logs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			alarm_id      INTEGER NOT NULL REFERENCES alarms(id) ON DELETE CASCADE,
			triggered_at  INTEGER NOT NULL,
			signal_value  REAL    NOT NULL,
			action_result TEXT,
			success       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS auto_trade_signals (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			alarm_id   INTEGER NOT NULL,
			user_id    TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			side       TEXT    NOT NULL,
			price      REAL    NOT NULL,
			reason     TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS dca_bots (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id             TEXT    NOT NULL,
			symbol              TEXT    NOT NULL,
			amount              REAL    NOT NULL,
			interval_hours      REAL    NOT NULL,
			take_profit_percent REAL,
			total_invested      REAL    NOT NULL DEFAULT 0,
			total_bought_qty    REAL    NOT NULL DEFAULT 0,
			average_price       REAL    NOT NULL DEFAULT 0,
			status              TEXT    NOT NULL,
			last_run_at         INTEGER,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dca_status ON dca_bots (status);

		CREATE TABLE IF NOT EXISTS trailing_stops (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          TEXT    NOT NULL,
			symbol           TEXT    NOT NULL,
			quantity         REAL    NOT NULL,
			entry_price      REAL    NOT NULL,
			highest_price    REAL    NOT NULL,
			callback_rate    REAL    NOT NULL,
			activation_price REAL,
			status           TEXT    NOT NULL,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trailing_status ON trailing_stops (status);

		CREATE TABLE IF NOT EXISTS orders (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           TEXT    NOT NULL,
			exchange_order_id TEXT,
			client_order_id   TEXT,
			symbol            TEXT    NOT NULL,
			side              TEXT    NOT NULL,
			type              TEXT    NOT NULL,
			quantity          REAL    NOT NULL,
			quote_qty         REAL    NOT NULL,
			price             REAL    NOT NULL,
			status            TEXT    NOT NULL,
			meta              TEXT,
			created_at        INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_client ON orders (client_order_id);

		CREATE TABLE IF NOT EXISTS trade_history (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id                TEXT    NOT NULL,
			order_id               TEXT,
			symbol                 TEXT    NOT NULL,
			side                   TEXT    NOT NULL,
			type                   TEXT    NOT NULL,
			quantity               REAL    NOT NULL,
			price                  REAL    NOT NULL,
			quote_qty              REAL    NOT NULL,
			commission             REAL    NOT NULL DEFAULT 0,
			profit_loss            REAL    NOT NULL DEFAULT 0,
			profit_loss_percentage REAL    NOT NULL DEFAULT 0,
			executed_at            INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_user ON trade_history (user_id, executed_at);

		CREATE TABLE IF NOT EXISTS panic_snapshots (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          TEXT    NOT NULL,
			snapshot_data    TEXT    NOT NULL,
			total_usdt_value REAL    NOT NULL,
			created_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS f4_signals (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol                TEXT    NOT NULL,
			timeframe             TEXT    NOT NULL,
			signal                TEXT    NOT NULL,
			smc_structure         TEXT    NOT NULL,
			wt_status             TEXT    NOT NULL,
			confluence_score      INTEGER NOT NULL,
			action_recommendation TEXT    NOT NULL,
			price                 REAL    NOT NULL,
			f4                    REAL    NOT NULL,
			f4_fibo               REAL    NOT NULL,
			wt1                   REAL    NOT NULL,
			wt2                   REAL    NOT NULL,
			created_at            INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_f4_symbol ON f4_signals (symbol, created_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ── column helpers ──

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// stamp returns t, or the store clock when t is zero.
func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

// affectActive maps a zero-row guarded update to model.ErrNotActive.
func affectActive(res sql.Result, err error) error {
	if err := affectOne(res, err); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNotActive
		}
		return err
	}
	return nil
}

// affectOne maps a zero-row update to model.ErrNotFound.
func affectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
