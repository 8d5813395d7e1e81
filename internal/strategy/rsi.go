package strategy

import (
	"fmt"

	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
)

// RSIStrategy buys when RSI crosses back above the oversold level and
// sells when it crosses back below the overbought level.
type RSIStrategy struct {
	Period     int
	Overbought float64
	Oversold   float64
}

func (s *RSIStrategy) Type() Type { return TypeRSI }

func (s *RSIStrategy) Evaluate(closes []float64) (Evaluation, error) {
	values := indicator.RSI(closes, s.Period)
	if len(values) < 2 {
		return Evaluation{}, &model.InsufficientDataError{Indicator: "RSI", Need: s.Period + 2, Got: len(closes)}
	}
	cur, _ := indicator.Last(values, 0)
	prev, _ := indicator.Last(values, 1)

	ev := Evaluation{Indicators: map[string]float64{"rsi": cur}}
	switch {
	case prev <= s.Oversold && cur > s.Oversold:
		ev.Signal = SignalBuy
		ev.Reason = fmt.Sprintf("RSI crossed above %g (%.2f)", s.Oversold, cur)
	case prev >= s.Overbought && cur < s.Overbought:
		ev.Signal = SignalSell
		ev.Reason = fmt.Sprintf("RSI crossed below %g (%.2f)", s.Overbought, cur)
	}
	return ev, nil
}
