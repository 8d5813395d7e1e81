// Package strategy provides the classical signal strategies (RSI, MACD and
// moving-average crossover).
//
// The set of strategies is closed: New switches over Type and returns the
// matching variant. Every variant turns a close-price series into an
// Evaluation; Analyze wraps that with a market-data fetch.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"crypto-signals/internal/model"
)

// Type tags a strategy variant.
type Type string

const (
	TypeRSI         Type = "rsi"
	TypeMACD        Type = "macd"
	TypeMACrossover Type = "ma_crossover"
)

// Signal is a strategy decision. The empty signal means no action.
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// History settings used by Analyze.
const (
	HistoryInterval = "1h"
	HistoryLimit    = 200
)

// ErrUnknownStrategy is returned by New for an unrecognised Type.
var ErrUnknownStrategy = errors.New("unknown strategy type")

// Params is a generic numeric parameter bag for strategies.
type Params map[string]float64

// Evaluation is the pure outcome of a strategy over a price series.
type Evaluation struct {
	Signal     Signal             `json:"signal"`
	Reason     string             `json:"reason"`
	Indicators map[string]float64 `json:"indicators"`
}

// Analysis is an Evaluation stamped with its symbol and time.
type Analysis struct {
	Symbol     string             `json:"symbol"`
	Strategy   Type               `json:"strategy"`
	Signal     Signal             `json:"signal"`
	Reason     string             `json:"reason"`
	Indicators map[string]float64 `json:"indicators"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Strategy is implemented by each variant.
type Strategy interface {
	// Type returns the variant tag.
	Type() Type

	// Evaluate computes a decision from closes (oldest first).
	Evaluate(closes []float64) (Evaluation, error)
}

// New builds the strategy variant for t. Missing params take their
// defaults; params outside the published range are rejected.
func New(t Type, p Params) (Strategy, error) {
	info, ok := catalog[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, t)
	}
	vals, err := info.resolve(p)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", t, err)
	}

	switch t {
	case TypeRSI:
		s := &RSIStrategy{
			Period:     int(vals["rsiPeriod"]),
			Overbought: vals["overboughtLevel"],
			Oversold:   vals["oversoldLevel"],
		}
		if s.Oversold >= s.Overbought {
			return nil, fmt.Errorf("strategy %s: oversoldLevel must be below overboughtLevel", t)
		}
		return s, nil
	case TypeMACD:
		s := &MACDStrategy{
			Fast:   int(vals["fastPeriod"]),
			Slow:   int(vals["slowPeriod"]),
			Signal: int(vals["signalPeriod"]),
		}
		if s.Fast >= s.Slow {
			return nil, fmt.Errorf("strategy %s: fastPeriod must be below slowPeriod", t)
		}
		return s, nil
	default:
		s := &MACrossoverStrategy{
			Fast: int(vals["fastPeriod"]),
			Slow: int(vals["slowPeriod"]),
		}
		if s.Fast >= s.Slow {
			return nil, fmt.Errorf("strategy %s: fastPeriod must be below slowPeriod", t)
		}
		return s, nil
	}
}

// Analyze fetches HistoryLimit hourly candles of symbol and evaluates s.
func Analyze(ctx context.Context, md model.MarketData, symbol string, s Strategy, now time.Time) (Analysis, error) {
	candles, err := md.Klines(ctx, symbol, HistoryInterval, HistoryLimit)
	if err != nil {
		return Analysis{}, &model.MarketDataError{Symbol: symbol, Err: err}
	}
	ev, err := s.Evaluate(model.Closes(candles))
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		Symbol:     symbol,
		Strategy:   s.Type(),
		Signal:     ev.Signal,
		Reason:     ev.Reason,
		Indicators: ev.Indicators,
		Timestamp:  now,
	}, nil
}

// ParamSpec describes one tunable parameter.
type ParamSpec struct {
	Type    string  `json:"type"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Info describes a strategy variant for selection UIs.
type Info struct {
	Type        Type                 `json:"type"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
}

func (i Info) resolve(p Params) (Params, error) {
	out := make(Params, len(i.Parameters))
	for name, ps := range i.Parameters {
		v, ok := p[name]
		if !ok {
			out[name] = ps.Default
			continue
		}
		if v < ps.Min || v > ps.Max {
			return nil, fmt.Errorf("%s=%v outside [%v, %v]", name, v, ps.Min, ps.Max)
		}
		out[name] = v
	}
	return out, nil
}

func num(def, lo, hi float64) ParamSpec {
	return ParamSpec{Type: "number", Default: def, Min: lo, Max: hi}
}

var catalog = map[Type]Info{
	TypeRSI: {
		Type:        TypeRSI,
		Name:        "RSI Strategy",
		Description: "Generates signals based on RSI overbought/oversold levels",
		Parameters: map[string]ParamSpec{
			"rsiPeriod":       num(14, 2, 50),
			"overboughtLevel": num(70, 50, 90),
			"oversoldLevel":   num(30, 10, 50),
		},
	},
	TypeMACD: {
		Type:        TypeMACD,
		Name:        "MACD Strategy",
		Description: "Generates signals based on MACD histogram crossovers",
		Parameters: map[string]ParamSpec{
			"fastPeriod":   num(12, 5, 50),
			"slowPeriod":   num(26, 10, 100),
			"signalPeriod": num(9, 5, 50),
		},
	},
	TypeMACrossover: {
		Type:        TypeMACrossover,
		Name:        "MA Crossover Strategy",
		Description: "Generates signals based on moving average crossovers",
		Parameters: map[string]ParamSpec{
			"fastPeriod": num(20, 5, 100),
			"slowPeriod": num(50, 10, 200),
		},
	},
}

// Available lists all strategy variants ordered by type.
func Available() []Info {
	out := make([]Info, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
