// Package engine runs the polling engines (alarms, DCA bots, trailing
// stops) and the panic liquidation service they share. Every engine is a
// run-to-completion batch: one RunCycle call processes all eligible
// entities once and returns. Scheduling is external.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crypto-signals/internal/execution"
	"crypto-signals/internal/logger"
	"crypto-signals/internal/metrics"
	"crypto-signals/internal/model"
	"crypto-signals/internal/notification"
)

// Engine names used in cycle ids, logs and metric labels.
const (
	NameAlarms   = "alarms"
	NameDCA      = "dca"
	NameTrailing = "trailing"
	NamePanic    = "panic"
)

// maxParallelFetches bounds concurrent market-data requests within a cycle.
const maxParallelFetches = 8

// Deps are the collaborators shared by every engine. Journal, Notifier
// and Metrics are optional.
type Deps struct {
	Market   model.MarketData
	Executor model.Executor
	Journal  *execution.Journal
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) notify(ctx context.Context, alert notification.Alert) error {
	if d.Notifier == nil {
		return nil
	}
	if alert.Time.IsZero() {
		alert.Time = d.now()
	}
	return d.Notifier.Send(ctx, alert)
}

func (d Deps) record(ctx context.Context, e execution.Entry) error {
	if d.Journal == nil {
		return nil
	}
	return d.Journal.Record(ctx, e)
}

func (d Deps) mode() string {
	if d.Executor == nil {
		return ""
	}
	return d.Executor.Mode()
}

// CycleReport summarizes one engine run.
type CycleReport struct {
	Engine     string    `json:"engine"`
	CycleID    string    `json:"cycleId"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	Checked    int       `json:"checked"`
	Triggered  int       `json:"triggered"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors,omitempty"`
}

// cycle carries the per-run context (with its cycle id) and the report
// being built.
type cycle struct {
	ctx    context.Context
	m      *metrics.Metrics
	wall   time.Time
	report CycleReport
}

func beginCycle(ctx context.Context, engine string, m *metrics.Metrics, now time.Time) *cycle {
	id := logger.NewCycleID(engine, now)
	c := &cycle{
		ctx:  logger.WithCycleID(ctx, id),
		m:    m,
		wall: time.Now(),
		report: CycleReport{
			Engine:    engine,
			CycleID:   id,
			StartedAt: now,
		},
	}
	slog.Info(engine+" cycle started", logger.Attrs(c.ctx)...)
	return c
}

func (c *cycle) checked() {
	c.report.Checked++
	c.m.EntityProcessed(c.report.Engine)
}

// fail records a caught per-entity error. The cycle continues.
func (c *cycle) fail(entity string, err error) {
	kind := model.ErrorKind(err)
	c.report.Errors = append(c.report.Errors, fmt.Sprintf("%s: %v", entity, err))
	c.m.EntityError(c.report.Engine, kind)
	slog.Warn(c.report.Engine+" entity failed",
		append(logger.Attrs(c.ctx), "entity", entity, "kind", kind, "error", err)...)
}

func (c *cycle) finish(err error) (CycleReport, error) {
	c.report.DurationMs = time.Since(c.wall).Milliseconds()
	c.m.ObserveCycle(c.report.Engine, c.wall, err)
	attrs := append(logger.Attrs(c.ctx),
		"checked", c.report.Checked,
		"triggered", c.report.Triggered,
		"skipped", c.report.Skipped,
		"errors", len(c.report.Errors),
		"duration_ms", c.report.DurationMs,
	)
	if err != nil {
		slog.Error(c.report.Engine+" cycle aborted", append(attrs, "error", err)...)
		return c.report, err
	}
	slog.Info(c.report.Engine+" cycle finished", attrs...)
	return c.report, nil
}

// distinctSymbols returns the symbols of items in first-seen order.
func distinctSymbols[T any](items []T, symbol func(T) string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		s := symbol(it)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// fetchEach calls fetch once per key with bounded parallelism. A failed
// key never cancels the others.
func fetchEach[T any](ctx context.Context, keys []string, fetch func(context.Context, string) (T, error)) (map[string]T, map[string]error) {
	var (
		mu   sync.Mutex
		g    errgroup.Group
		vals = make(map[string]T, len(keys))
		errs = make(map[string]error)
	)
	g.SetLimit(maxParallelFetches)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			v, err := fetch(ctx, k)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[k] = err
				return nil
			}
			vals[k] = v
			return nil
		})
	}
	_ = g.Wait()
	return vals, errs
}

// marketErr makes sure err is classified as market data unavailable.
func marketErr(symbol string, err error) error {
	if err == nil {
		err = errors.New("no data")
	}
	var mde *model.MarketDataError
	if errors.As(err, &mde) {
		return err
	}
	return &model.MarketDataError{Symbol: symbol, Err: err}
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *model.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &model.PersistenceError{Op: op, Err: err}
}

func execErr(symbol string, side model.Side, err error) error {
	var exe *model.ExecutionError
	if errors.As(err, &exe) {
		return err
	}
	return &model.ExecutionError{Symbol: symbol, Side: side, Err: err}
}
