// Package api serves the REST endpoints and the signal websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"crypto-signals/internal/engine"
	"crypto-signals/internal/metrics"
	"crypto-signals/internal/model"
	"crypto-signals/internal/signals"
	"crypto-signals/internal/store/sqlite"
)

// DefaultUserID owns requests without an X-User-ID header.
const DefaultUserID = "default"

// Store is the persistence the API reads and edits.
type Store interface {
	ListAlarms(ctx context.Context, userID string) ([]model.Alarm, error)
	GetAlarm(ctx context.Context, id int64) (model.Alarm, error)
	CreateAlarm(ctx context.Context, a model.Alarm) (int64, error)
	ToggleAlarm(ctx context.Context, id int64) (bool, error)
	DeleteAlarm(ctx context.Context, id int64) error
	AlarmLogs(ctx context.Context, alarmID int64, limit int) ([]model.AlarmLog, error)
	AutoTradeSignals(ctx context.Context, userID string, limit int) ([]model.AutoTradeSignal, error)

	ListDcaBots(ctx context.Context, userID string) ([]model.DcaBot, error)
	GetDcaBot(ctx context.Context, id int64) (model.DcaBot, error)
	CreateDcaBot(ctx context.Context, b model.DcaBot) (int64, error)
	SetDcaStatus(ctx context.Context, id int64, status model.DcaStatus) error

	ListTrailingStops(ctx context.Context, userID string) ([]model.TrailingStop, error)
	GetTrailingStop(ctx context.Context, id int64) (model.TrailingStop, error)
	CreateTrailingStop(ctx context.Context, t model.TrailingStop) (int64, error)
	SetTrailingStatus(ctx context.Context, id int64, status model.TrailingStatus) error

	ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error)
	ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error)
	PerformanceSummary(ctx context.Context, userID string) (sqlite.Performance, error)
	F4Signals(ctx context.Context, symbol string, limit int) ([]model.F4SignalRecord, error)
}

// CycleRunner runs one engine cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (engine.CycleReport, error)
}

// Liquidator is the panic sell and buy-back service.
type Liquidator interface {
	SellAll(ctx context.Context, userID string) (engine.PanicResult, error)
	BuyBack(ctx context.Context, userID string) (engine.BuyBackResult, error)
}

// Options wires the API to its collaborators. Hub, Engines, Panic and
// Health may be nil or empty; the matching routes then answer 503.
type Options struct {
	Store   Store
	Signals *signals.Service
	Hub     *Hub
	Market  model.MarketData
	Engines map[string]CycleRunner
	Panic   Liquidator
	Health  *metrics.HealthStatus

	CronSecret      string
	PanicTOTPSecret string

	KlineInterval string
	KlineLimit    int

	Now func() time.Time
}

// Server is the HTTP API server.
type Server struct {
	opts     Options
	validate *validator.Validate
	srv      *http.Server
}

// NewServer creates the API server listening on addr.
func NewServer(addr string, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KlineInterval == "" {
		opts.KlineInterval = "1h"
	}
	if opts.KlineLimit <= 0 {
		opts.KlineLimit = 200
	}
	s := &Server{opts: opts, validate: validator.New()}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/signals", s.handleWS)
	mux.HandleFunc("/api/signals/telegram", s.handleTelegramSignals)

	mux.HandleFunc("/api/indicators/f4", s.handleF4)
	mux.HandleFunc("/api/indicators/f3", s.handleF3)
	mux.HandleFunc("/api/indicators/f4/history", s.handleF4History)
	mux.HandleFunc("/api/strategies", s.handleStrategies)
	mux.HandleFunc("/api/strategies/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/strategies/autopilot", s.handleAutopilot)
	mux.HandleFunc("/api/predict", s.handlePredict)
	mux.HandleFunc("/api/sentiment", s.handleSentiment)

	mux.HandleFunc("/api/cron/", s.handleCron)
	mux.HandleFunc("/api/panic/sell-all", s.handlePanicSell)
	mux.HandleFunc("/api/panic/buy-back", s.handleBuyBack)

	mux.HandleFunc("/api/alarms", s.handleAlarms)
	mux.HandleFunc("/api/alarms/toggle", s.handleAlarmToggle)
	mux.HandleFunc("/api/alarms/logs", s.handleAlarmLogs)
	mux.HandleFunc("/api/alarms/auto-trades", s.handleAutoTrades)
	mux.HandleFunc("/api/dca", s.handleDca)
	mux.HandleFunc("/api/dca/toggle", s.handleDcaToggle)
	mux.HandleFunc("/api/trailing-stops", s.handleTrailingStops)

	mux.HandleFunc("/api/analytics/performance", s.handlePerformance)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/trades", s.handleTrades)

	if s.opts.Health != nil {
		mux.HandleFunc("/api/health", s.opts.Health.ServeHTTP)
	}

	return withCORS(mux)
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Printf("[api] server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Stop disconnects websocket clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.srv.Shutdown(ctx)
}

// withCORS sets CORS headers and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-OTP, X-User-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ── helpers ──

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var (
		ide *model.InsufficientDataError
		mde *model.MarketDataError
		exe *model.ExecutionError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, signals.ErrInvalidSignal), errors.Is(err, signals.ErrUnparseable),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.As(err, &ide):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &mde), errors.As(err, &exe):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
	}
	writeError(w, status, err.Error())
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// decode reads a JSON body into v and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := readJSON(w, r, v); err != nil {
		return err
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return badRequest("%s", strings.Join(msgs, "; "))
		}
		return badRequest("%v", err)
	}
	return nil
}

func userID(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-User-ID")); u != "" {
		return u
	}
	return DefaultUserID
}

func idParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, badRequest("missing id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

func symbolParam(r *http.Request) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if sym == "" {
		return "", badRequest("missing symbol")
	}
	return sym, nil
}

func limitParam(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
