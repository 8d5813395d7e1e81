package strategy

import (
	"fmt"

	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
)

// MACrossoverStrategy implements a simple SMA crossover strategy.
//
// Buy signal: fast SMA crosses above slow SMA (golden cross)
// Sell signal: fast SMA crosses below slow SMA (death cross)
type MACrossoverStrategy struct {
	Fast int
	Slow int
}

func (s *MACrossoverStrategy) Type() Type { return TypeMACrossover }

func (s *MACrossoverStrategy) Evaluate(closes []float64) (Evaluation, error) {
	fast := indicator.SMA(closes, s.Fast)
	slow := indicator.SMA(closes, s.Slow)
	if len(fast) < 2 || len(slow) < 2 {
		return Evaluation{}, &model.InsufficientDataError{Indicator: "SMA", Need: s.Slow + 1, Got: len(closes)}
	}
	curFast, _ := indicator.Last(fast, 0)
	prevFast, _ := indicator.Last(fast, 1)
	curSlow, _ := indicator.Last(slow, 0)
	prevSlow, _ := indicator.Last(slow, 1)

	ev := Evaluation{Indicators: map[string]float64{"fastMA": curFast, "slowMA": curSlow}}
	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		ev.Signal = SignalBuy
		ev.Reason = fmt.Sprintf("Fast MA (%d) crossed above Slow MA (%d)", s.Fast, s.Slow)
	case prevFast >= prevSlow && curFast < curSlow:
		ev.Signal = SignalSell
		ev.Reason = fmt.Sprintf("Fast MA (%d) crossed below Slow MA (%d)", s.Fast, s.Slow)
	}
	return ev, nil
}
