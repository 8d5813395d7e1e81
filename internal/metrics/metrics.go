// Package metrics exposes Prometheus metrics for the polling engines and
// signal ingest, plus a /healthz endpoint.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	// Engine cycles
	CyclesTotal       *prometheus.CounterVec   // labels: engine, result=ok|failed
	CycleDuration     *prometheus.HistogramVec // labels: engine
	EntitiesProcessed *prometheus.CounterVec   // labels: engine
	EntityErrors      *prometheus.CounterVec   // labels: engine, kind

	// Actions
	AlarmsTriggered *prometheus.CounterVec // labels: condition, action
	OrdersPlaced    *prometheus.CounterVec // labels: source, side, mode

	// Signals
	SignalsIngested  prometheus.Counter
	SignalBufferSize prometheus.Gauge

	// Circuit breaker
	RedisCircuitState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitTrips prometheus.Counter

	// Websocket fan-out
	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Engine cycles run, by result",
		}, []string{"engine", "result"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Wall time of one engine cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"engine"}),
		EntitiesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_entities_processed_total",
			Help: "Alarms, bots or stops evaluated",
		}, []string{"engine"}),
		EntityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_entity_errors_total",
			Help: "Per-entity failures caught inside a cycle, by error kind",
		}, []string{"engine", "kind"}),

		AlarmsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarms_triggered_total",
			Help: "Alarms whose condition matched",
		}, []string{"condition", "action"}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Market orders placed by engines",
		}, []string{"source", "side", "mode"}),

		SignalsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_ingested_total",
			Help: "Telegram signals accepted",
		}),
		SignalBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_buffer_size",
			Help: "Signals currently held in the buffer",
		}),

		RedisCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_circuit_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_circuit_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Connected websocket signal subscribers",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_dropped_messages_total",
			Help: "Messages dropped for slow websocket clients",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.EntitiesProcessed,
		m.EntityErrors,
		m.AlarmsTriggered,
		m.OrdersPlaced,
		m.SignalsIngested,
		m.SignalBufferSize,
		m.RedisCircuitState,
		m.RedisCircuitTrips,
		m.WSClients,
		m.WSDrops,
	)

	return m
}

// ObserveCycle records the outcome and duration of one engine cycle.
func (m *Metrics) ObserveCycle(engine string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.CyclesTotal.WithLabelValues(engine, result).Inc()
	m.CycleDuration.WithLabelValues(engine).Observe(time.Since(started).Seconds())
}

// EntityProcessed counts one evaluated entity.
func (m *Metrics) EntityProcessed(engine string) {
	if m == nil {
		return
	}
	m.EntitiesProcessed.WithLabelValues(engine).Inc()
}

// EntityError counts one caught per-entity failure.
func (m *Metrics) EntityError(engine, kind string) {
	if m == nil {
		return
	}
	m.EntityErrors.WithLabelValues(engine, kind).Inc()
}

// AlarmTriggered counts one matched alarm.
func (m *Metrics) AlarmTriggered(condition, action string) {
	if m == nil {
		return
	}
	m.AlarmsTriggered.WithLabelValues(condition, action).Inc()
}

// OrderPlaced counts one executed order.
func (m *Metrics) OrderPlaced(source, side, mode string) {
	if m == nil {
		return
	}
	m.OrdersPlaced.WithLabelValues(source, side, mode).Inc()
}

// CircuitStateChanged mirrors breaker transitions into the gauges.
func (m *Metrics) CircuitStateChanged(to int) {
	if m == nil {
		return
	}
	m.RedisCircuitState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitTrips.Inc()
	}
}

// SignalStored counts one ingested signal and records the buffer size.
// A size of zero after a clear only resets the gauge.
func (m *Metrics) SignalStored(size int, ingested bool) {
	if m == nil {
		return
	}
	if ingested {
		m.SignalsIngested.Inc()
	}
	m.SignalBufferSize.Set(float64(size))
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

func (m *Metrics) WSDropped() {
	if m == nil {
		return
	}
	m.WSDrops.Inc()
}

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastPriceTime   time.Time `json:"last_price_time"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	Mode            string    `json:"mode"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	LastCycles    map[string]time.Time // engine -> last completed cycle
	redisRequired bool
}

// NewHealthStatus returns a default health status. redisRequired marks
// Redis as a hard dependency.
func NewHealthStatus(mode string, redisRequired bool) *HealthStatus {
	return &HealthStatus{
		Mode:          mode,
		LastCycles:    make(map[string]time.Time),
		StartedAt:     time.Now(),
		redisRequired: redisRequired,
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPriceTime(t time.Time) {
	h.mu.Lock()
	h.LastPriceTime = t
	h.mu.Unlock()
}

// SetCycleDone records when an engine last completed a cycle.
func (h *HealthStatus) SetCycleDone(engine string, t time.Time) {
	h.mu.Lock()
	h.LastCycles[engine] = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(checkCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(checkCtx, sqlDB)
		}
	}
	check()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK || (h.redisRequired && !h.RedisConnected) {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.StreamConnected {
		overallStatus = "degraded"
	}

	priceAge := ""
	if !h.LastPriceTime.IsZero() {
		priceAge = time.Since(h.LastPriceTime).Round(time.Millisecond).String()
	}
	cycles := make(map[string]string, len(h.LastCycles))
	for engine, t := range h.LastCycles {
		cycles[engine] = t.Format(time.RFC3339)
	}

	status := struct {
		Status          string            `json:"status"`
		Mode            string            `json:"mode"`
		Uptime          string            `json:"uptime"`
		StreamConnected bool              `json:"stream_connected"`
		PriceAge        string            `json:"price_age"`
		RedisConnected  bool              `json:"redis_connected"`
		RedisLatencyMs  float64           `json:"redis_latency_ms"`
		SQLiteOK        bool              `json:"sqlite_ok"`
		SQLiteLatencyMs float64           `json:"sqlite_latency_ms"`
		LastCycles      map[string]string `json:"last_cycles"`
		LastCheckAt     string            `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Mode:            h.Mode,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		PriceAge:        priceAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCycles:      cycles,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
