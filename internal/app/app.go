// Package app builds the object graph shared by the server and the CLI:
// stores, market access, execution, notifiers, engines and the signal
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"crypto-signals/config"
	"crypto-signals/internal/api"
	"crypto-signals/internal/engine"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/execution"
	"crypto-signals/internal/metrics"
	"crypto-signals/internal/model"
	"crypto-signals/internal/notification"
	"crypto-signals/internal/signals"
	"crypto-signals/internal/store/redis"
	"crypto-signals/internal/store/sqlite"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config

	Store  *sqlite.Store
	Redis  *goredis.Client // nil when REDIS_ADDR is unset or unreachable
	Prices model.PriceCache
	Market model.MarketData

	Executor *execution.Router
	Journal  *execution.Journal
	Notifier notification.Notifier

	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus

	Hub     *api.Hub
	Signals *signals.Service

	Alarms   *engine.AlarmEngine
	DCA      *engine.DcaEngine
	Trailing *engine.TrailingEngine
	Panic    *engine.PanicService

	Stream *exchange.TickerStream // nil unless BINANCE_STREAM_ENABLED

	closers []func() error
}

// New wires the application from cfg. reg receives the metrics; nil uses
// the default registerer.
func New(cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}
	a.Metrics = metrics.NewMetrics(reg)

	// ── Persistence ──
	store, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	// ── Redis (optional unless it backs the signal buffer) ──
	var breaker *redis.CircuitBreaker
	if cfg.RedisAddr != "" {
		rdb, err := redis.Connect(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			if cfg.SignalStore == "redis" {
				a.Close()
				return nil, err
			}
			log.Printf("[app] redis unavailable, using in-memory cache: %v", err)
		} else {
			a.Redis = rdb
			a.closers = append(a.closers, rdb.Close)
			breaker = redis.NewBreaker()
			breaker.OnStateChange = func(from, to redis.State) {
				log.Printf("[redis] circuit %s -> %s", from, to)
				a.Metrics.CircuitStateChanged(int(to))
			}
		}
	}
	a.Health = metrics.NewHealthStatus(cfg.TradingMode, cfg.SignalStore == "redis")

	// ── Market data ──
	client := exchange.NewClient(cfg.BinanceAPIURL, cfg.BinanceAPIKey, cfg.BinanceSecretKey)
	if a.Redis != nil {
		a.Prices = redis.NewPriceCache(a.Redis, breaker)
	} else {
		a.Prices = exchange.NewMemoryPriceCache()
	}
	a.Market = exchange.NewCachedMarket(client, a.Prices, 0)
	if cfg.StreamEnabled {
		a.Stream = exchange.NewTickerStream(cfg.StreamSymbols, a.Prices)
		a.Stream.OnConnected = a.Health.SetStreamConnected
		a.Stream.OnPrice = a.Health.SetLastPriceTime
	}

	// ── Execution ──
	var live model.Executor
	if cfg.Production() {
		live = client
	}
	sim := execution.NewSimulator(a.Market, execution.DefaultSimulatorBalances())
	router, err := execution.NewRouter(execution.ParseMode(cfg.TradingMode), sim, live)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Executor = router
	a.Journal = execution.NewJournal(store)
	log.Printf("[app] trading mode %s", router.Mode())

	// ── Notification ──
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.AMQPURL != "" {
		amqpN, err := notification.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			log.Printf("[app] amqp notifier disabled: %v", err)
		} else {
			notifiers = append(notifiers, amqpN)
			a.closers = append(a.closers, amqpN.Close)
		}
	}
	a.Notifier = notifiers

	// ── Signals ──
	var buf signals.Buffer = signals.NewMemoryBuffer(signals.Capacity)
	if cfg.SignalStore == "redis" {
		buf = redis.NewSignalBuffer(a.Redis, breaker, redis.DefaultSignalKey, signals.Capacity)
	}
	a.Hub = api.NewHub(a.Metrics)
	a.Signals = signals.NewService(buf, a.Hub)
	a.Signals.OnIngest = func(size int) { a.Metrics.SignalStored(size, size > 0) }

	// ── Engines ──
	deps := engine.Deps{
		Market:   a.Market,
		Executor: a.Executor,
		Journal:  a.Journal,
		Notifier: a.Notifier,
		Metrics:  a.Metrics,
	}
	a.Panic = engine.NewPanicService(store, deps)
	a.Alarms = engine.NewAlarmEngine(store, store, a.Panic, deps, engine.AlarmOptions{
		Interval: cfg.KlineInterval,
		Limit:    cfg.KlineLimit,
	})
	a.DCA = engine.NewDcaEngine(store, deps)
	a.Trailing = engine.NewTrailingEngine(store, deps)

	return a, nil
}

// Engines returns the cycle runners by name.
func (a *App) Engines() map[string]api.CycleRunner {
	return map[string]api.CycleRunner{
		engine.NameAlarms:   a.Alarms,
		engine.NameDCA:      a.DCA,
		engine.NameTrailing: a.Trailing,
	}
}

// RunCycle runs the named engine once and records it in the health status.
func (a *App) RunCycle(ctx context.Context, name string) (engine.CycleReport, error) {
	runner, ok := a.Engines()[name]
	if !ok {
		return engine.CycleReport{}, fmt.Errorf("unknown engine %q", name)
	}
	rep, err := runner.RunCycle(ctx)
	if err == nil {
		a.Health.SetCycleDone(name, time.Now())
	}
	return rep, err
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
