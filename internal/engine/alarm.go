package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto-signals/internal/indicator"
	"crypto-signals/internal/logger"
	"crypto-signals/internal/model"
	"crypto-signals/internal/notification"
)

// MinAlarmCandles is the history a symbol needs before its alarms are checked.
const MinAlarmCandles = 100

// AlarmOptions configures the candle fetch and the F4 parameters.
type AlarmOptions struct {
	Interval string // default 1h
	Limit    int    // default 200, never below MinAlarmCandles
	Params   indicator.F4Params
}

// AlarmEngine evaluates ACTIVE alarms against one F4 reading per symbol.
type AlarmEngine struct {
	store      model.AlarmStore
	signals    model.F4SignalStore
	liquidator *PanicService
	deps       Deps
	opts       AlarmOptions
}

// NewAlarmEngine creates an alarm engine. signals and liquidator may be nil:
// F4 readings are then not persisted and PANIC_SELL alarms fail.
func NewAlarmEngine(store model.AlarmStore, signals model.F4SignalStore, liquidator *PanicService, deps Deps, opts AlarmOptions) *AlarmEngine {
	if opts.Interval == "" {
		opts.Interval = "1h"
	}
	if opts.Limit == 0 {
		opts.Limit = 200
	}
	if opts.Limit < MinAlarmCandles {
		opts.Limit = MinAlarmCandles
	}
	if opts.Params == (indicator.F4Params{}) {
		opts.Params = indicator.DefaultF4Params()
	}
	return &AlarmEngine{store: store, signals: signals, liquidator: liquidator, deps: deps, opts: opts}
}

// RunCycle checks every ACTIVE alarm. Candles are fetched once per
// distinct symbol; a symbol that fails or lacks history skips its alarms.
func (e *AlarmEngine) RunCycle(ctx context.Context) (CycleReport, error) {
	now := e.deps.now()
	c := beginCycle(ctx, NameAlarms, e.deps.Metrics, now)

	alarms, err := e.store.ActiveAlarms(c.ctx)
	if err != nil {
		return c.finish(fmt.Errorf("alarms: load active: %w", persistErr("load alarms", err)))
	}
	if len(alarms) == 0 {
		return c.finish(nil)
	}

	bySymbol := make(map[string][]model.Alarm)
	for _, a := range alarms {
		bySymbol[a.Symbol] = append(bySymbol[a.Symbol], a)
	}
	symbols := distinctSymbols(alarms, func(a model.Alarm) string { return a.Symbol })
	candles, fetchErrs := fetchEach(c.ctx, symbols, func(ctx context.Context, symbol string) ([]model.Candle, error) {
		return e.deps.Market.Klines(ctx, symbol, e.opts.Interval, e.opts.Limit)
	})

	for _, symbol := range symbols {
		group := bySymbol[symbol]
		series, ok := candles[symbol]
		if !ok {
			c.report.Skipped += len(group)
			c.fail(symbol, marketErr(symbol, fetchErrs[symbol]))
			continue
		}
		if len(series) < MinAlarmCandles {
			c.report.Skipped += len(group)
			slog.Warn("alarms: insufficient candles", append(logger.Attrs(c.ctx),
				"symbol", symbol, "got", len(series), "need", MinAlarmCandles)...)
			continue
		}
		f4, err := indicator.CalculateF4(series, e.opts.Params)
		if err != nil {
			c.report.Skipped += len(group)
			c.fail(symbol, err)
			continue
		}
		slog.Info("alarms: symbol evaluated", append(logger.Attrs(c.ctx),
			"symbol", symbol, "price", f4.Price, "signal", f4.F4Signal, "confluence", f4.ConfluenceScore)...)
		if err := e.saveReading(c.ctx, symbol, f4, now); err != nil {
			c.fail(symbol, err)
		}

		for _, alarm := range group {
			c.checked()
			if !Matches(alarm, f4) {
				continue
			}
			c.report.Triggered++
			if err := e.trigger(c.ctx, alarm, f4); err != nil {
				c.fail(fmt.Sprintf("alarm %d", alarm.ID), err)
			}
		}
	}
	return c.finish(nil)
}

// Matches reports whether alarm's condition holds for the F4 reading.
// Price conditions compare the last close with the threshold.
func Matches(alarm model.Alarm, f4 indicator.F4Result) bool {
	switch alarm.Condition {
	case model.ConditionBuySignal, model.ConditionF4BuySignal:
		return f4.F4Signal == indicator.SignalBuy
	case model.ConditionSellSignal, model.ConditionF4SellSignal:
		return f4.F4Signal == indicator.SignalSell
	case model.ConditionPriceAbove:
		return alarm.Threshold > 0 && f4.Price > alarm.Threshold
	case model.ConditionPriceBelow:
		return alarm.Threshold > 0 && f4.Price < alarm.Threshold
	}
	return false
}

func (e *AlarmEngine) saveReading(ctx context.Context, symbol string, f4 indicator.F4Result, now time.Time) error {
	if e.signals == nil {
		return nil
	}
	_, err := e.signals.InsertF4Signal(ctx, model.F4SignalRecord{
		Symbol:               symbol,
		Timeframe:            e.opts.Interval,
		Signal:               f4.F4Signal,
		SMCStructure:         f4.SMCStructure,
		WTStatus:             f4.WTStatus,
		ConfluenceScore:      f4.ConfluenceScore,
		ActionRecommendation: f4.ActionRecommendation,
		Price:                f4.Price,
		F4:                   f4.F4,
		F4Fibo:               f4.F4Fibo,
		WT1:                  f4.WT1,
		WT2:                  f4.WT2,
		CreatedAt:            now,
	})
	return persistErr("insert f4 signal", err)
}

// trigger runs the alarm's action, then writes the log row and the
// trigger time. The log row's success flag is the action outcome.
func (e *AlarmEngine) trigger(ctx context.Context, alarm model.Alarm, f4 indicator.F4Result) error {
	now := e.deps.now()
	slog.Info("alarm triggered", append(logger.Attrs(ctx),
		"alarm_id", alarm.ID, "symbol", alarm.Symbol, "condition", alarm.Condition, "action", alarm.Action)...)
	e.deps.Metrics.AlarmTriggered(string(alarm.Condition), string(alarm.Action))

	result, actErr := e.act(ctx, alarm, f4)
	result["status"] = "triggered"
	if actErr != nil {
		result["error"] = actErr.Error()
	}
	raw, err := json.Marshal(result)
	if err != nil {
		raw = json.RawMessage(`{"status":"triggered"}`)
	}

	_, logErr := e.store.InsertAlarmLog(ctx, model.AlarmLog{
		AlarmID:      alarm.ID,
		TriggeredAt:  now,
		SignalValue:  f4.Price,
		ActionResult: raw,
		Success:      actErr == nil,
	})
	markErr := e.store.MarkAlarmTriggered(ctx, alarm.ID, now)
	return errors.Join(actErr, persistErr("insert alarm log", logErr), persistErr("mark alarm triggered", markErr))
}

func (e *AlarmEngine) act(ctx context.Context, alarm model.Alarm, f4 indicator.F4Result) (map[string]any, error) {
	result := map[string]any{"action": string(alarm.Action)}
	alert := notification.Alert{
		Level:   notification.AlertInfo,
		Kind:    notification.KindAlarm,
		Title:   fmt.Sprintf("Alarm %s %s", alarm.Symbol, alarm.Condition),
		Message: fmt.Sprintf("%s at %.8g (F4 %s, confluence %d)", alarm.Condition, f4.Price, f4.F4Signal, f4.ConfluenceScore),
		Symbol:  alarm.Symbol,
		Fields:  map[string]any{"alarmId": alarm.ID, "action": string(alarm.Action)},
	}

	switch alarm.Action {
	case model.ActionNotify:
		return result, e.deps.notify(ctx, alert)

	case model.ActionTrade:
		side := tradeSide(alarm.Condition)
		id, err := e.store.InsertAutoTradeSignal(ctx, model.AutoTradeSignal{
			AlarmID:   alarm.ID,
			UserID:    alarm.UserID,
			Symbol:    alarm.Symbol,
			Side:      side,
			Price:     f4.Price,
			Reason:    string(alarm.Condition),
			CreatedAt: e.deps.now(),
		})
		if err != nil {
			return result, persistErr("insert auto-trade signal", err)
		}
		result["autoTradeSignalId"] = id
		result["side"] = string(side)
		alert.Title = fmt.Sprintf("Auto-trade %s %s", side, alarm.Symbol)
		return result, e.deps.notify(ctx, alert)

	case model.ActionPanicSell:
		if e.liquidator == nil {
			return result, errors.New("panic sell not configured")
		}
		res, err := e.liquidator.SellAll(ctx, alarm.UserID)
		if err != nil {
			return result, err
		}
		result["soldCount"] = res.SoldCount
		result["totalUsdtValue"] = res.TotalUSDTValue
		result["mode"] = res.Mode
		return result, nil
	}
	return result, fmt.Errorf("unknown alarm action %q", alarm.Action)
}

// tradeSide maps a condition to the side of the auto-trade signal it emits.
// PRICE_ABOVE reads as a breakout, PRICE_BELOW as a breakdown.
func tradeSide(c model.AlarmCondition) model.Side {
	switch c {
	case model.ConditionSellSignal, model.ConditionF4SellSignal, model.ConditionPriceBelow:
		return model.SideSell
	}
	return model.SideBuy
}
