package strategy

import (
	"fmt"

	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
)

// MACDStrategy trades histogram zero crossings.
type MACDStrategy struct {
	Fast   int
	Slow   int
	Signal int
}

func (s *MACDStrategy) Type() Type { return TypeMACD }

func (s *MACDStrategy) Evaluate(closes []float64) (Evaluation, error) {
	res := indicator.MACD(closes, s.Fast, s.Slow, s.Signal)
	if len(res.Histogram) < 2 {
		return Evaluation{}, &model.InsufficientDataError{Indicator: "MACD", Need: s.Slow + s.Signal, Got: len(closes)}
	}
	cur, _ := indicator.Last(res.Histogram, 0)
	prev, _ := indicator.Last(res.Histogram, 1)
	line, _ := indicator.Last(res.MACD, 0)
	sig, _ := indicator.Last(res.Signal, 0)

	ev := Evaluation{Indicators: map[string]float64{
		"macdLine":   line,
		"signalLine": sig,
		"histogram":  cur,
	}}
	switch {
	case prev <= 0 && cur > 0:
		ev.Signal = SignalBuy
		ev.Reason = fmt.Sprintf("MACD histogram crossed above zero (%.6f)", cur)
	case prev >= 0 && cur < 0:
		ev.Signal = SignalSell
		ev.Reason = fmt.Sprintf("MACD histogram crossed below zero (%.6f)", cur)
	}
	return ev, nil
}
