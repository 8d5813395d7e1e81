package indicator

import (
	"math"
	"time"

	"crypto-signals/internal/model"
)

// WaveTrend thresholds.
const (
	WTOverbought = 60.0
	WTOversold   = -60.0
)

// Market structure of the main filter.
const (
	StructureBullish = "BULLISH"
	StructureBearish = "BEARISH"
	StructureNeutral = "NEUTRAL"
)

// WaveTrend zones.
const (
	WTStatusOverbought  = "OVERBOUGHT"
	WTStatusOversold    = "OVERSOLD"
	WTStatusBullishZone = "BULLISH_ZONE"
	WTStatusBearishZone = "BEARISH_ZONE"
)

// Action recommendations.
const (
	ActionLong  = "LONG"
	ActionShort = "SHORT"
	ActionWait  = "WAIT"
)

// F4Params configures the F4 composite.
type F4Params struct {
	Length1     int     `json:"length1"`
	A1          float64 `json:"a1"`
	Length12    int     `json:"length12"`
	A12         float64 `json:"a12"`
	WTLength    int     `json:"wtLength"`
	WTAvgLength int     `json:"wtAvgLength"`
}

// DefaultF4Params returns the standard F4 settings.
func DefaultF4Params() F4Params {
	return F4Params{Length1: 7, A1: 3.7, Length12: 5, A12: 0.618, WTLength: 10, WTAvgLength: 21}
}

// F4Result is the latest F4 reading of a candle series.
type F4Result struct {
	F4                   float64   `json:"f4"`
	F4Fibo               float64   `json:"f4Fibo"`
	PrevF4               float64   `json:"prevF4"`
	PrevF4Fibo           float64   `json:"prevF4Fibo"`
	WT1                  float64   `json:"wt1"`
	WT2                  float64   `json:"wt2"`
	F4Signal             string    `json:"f4Signal"`
	SMCStructure         string    `json:"smcStructure"`
	WTStatus             string    `json:"wtStatus"`
	ConfluenceScore      int       `json:"confluenceScore"`
	ActionRecommendation string    `json:"actionRecommendation"`
	Price                float64   `json:"price"`
	Time                 time.Time `json:"time"`
}

// WaveTrend computes the oscillator lines:
//
//	ap  = (h+l+c)/3
//	esa = ema(ap, wtLength)
//	d   = ema(|ap-esa|, wtLength)
//	ci  = (ap-esa) / (0.015*d)
//	wt1 = ema(ci, wtAvgLength)
//	wt2 = sma(wt1, 4)
//
// Both lines are tail-aligned; wt1 is longer than wt2 by 3. A bar with zero
// deviation contributes ci = 0.
func WaveTrend(candles []model.Candle, wtLength, wtAvgLength int) (wt1, wt2 []float64) {
	ap := make([]float64, len(candles))
	for i, c := range candles {
		ap[i] = c.HLC3()
	}
	esa := EMA(ap, wtLength)
	if esa == nil {
		return nil, nil
	}
	apTail := ap[len(ap)-len(esa):]

	dev := make([]float64, len(esa))
	for i := range esa {
		dev[i] = math.Abs(apTail[i] - esa[i])
	}
	d := EMA(dev, wtLength)
	if d == nil {
		return nil, nil
	}

	off := len(esa) - len(d)
	ci := make([]float64, len(d))
	for i := range d {
		if d[i] == 0 {
			continue
		}
		ci[i] = (apTail[i+off] - esa[i+off]) / (0.015 * d[i])
	}

	wt1 = EMA(ci, wtAvgLength)
	wt2 = SMA(wt1, 4)
	return wt1, wt2
}

// CalculateF4 computes the F4 composite: the F3 cascade pair plus
// WaveTrend, a market-structure reading and a 0-100 confluence score.
func CalculateF4(candles []model.Candle, p F4Params) (F4Result, error) {
	need := MinCandlesF3
	if m := CascadeMinLength(max(p.Length1, p.Length12), 2); m > need {
		need = m
	}
	if m := 2*(p.WTLength-1) + (p.WTAvgLength - 1) + 4; m > need {
		need = m
	}
	if len(candles) < need {
		return F4Result{}, &model.InsufficientDataError{Indicator: "F4", Need: need, Got: len(candles)}
	}

	main, fibo := cascadePair(candles, p.Length1, p.A1, p.Length12, p.A12)
	wt1s, wt2s := WaveTrend(candles, p.WTLength, p.WTAvgLength)

	n := len(main)
	res := F4Result{
		F4:         main[n-1],
		F4Fibo:     fibo[n-1],
		PrevF4:     main[n-2],
		PrevF4Fibo: fibo[n-2],
	}
	res.WT1, _ = Last(wt1s, 0)
	res.WT2, _ = Last(wt2s, 0)

	res.F4Signal = signalFromFibo(res.F4Fibo, res.PrevF4Fibo)
	switch direction(res.F4, res.PrevF4) {
	case 1:
		res.SMCStructure = StructureBullish
	case -1:
		res.SMCStructure = StructureBearish
	default:
		res.SMCStructure = StructureNeutral
	}
	res.WTStatus = wtStatus(res.WT1, res.WT2)
	res.ConfluenceScore = confluenceScore(res.SMCStructure, res.F4Signal, res.WT1, res.WT2)
	res.ActionRecommendation = recommend(res.SMCStructure, res.F4Signal, res.WT1, res.WT2)

	last := candles[len(candles)-1]
	res.Price = last.Close
	res.Time = last.Time
	return res, nil
}

func wtStatus(wt1, wt2 float64) string {
	switch {
	case wt1 > WTOverbought:
		return WTStatusOverbought
	case wt1 < WTOversold:
		return WTStatusOversold
	case wt1 > wt2:
		return WTStatusBullishZone
	default:
		return WTStatusBearishZone
	}
}

func confluenceScore(structure, signal string, wt1, wt2 float64) int {
	score := 0
	bullish := structure == StructureBullish
	bearish := structure == StructureBearish

	if (bullish && signal == SignalBuy) || (bearish && signal == SignalSell) {
		score += 40
	}
	if (wt1 > wt2 && bullish) || (wt1 < wt2 && bearish) {
		score += 30
	}
	if (wt1 < WTOversold && signal == SignalBuy) || (wt1 > WTOverbought && signal == SignalSell) {
		score += 30
	}
	return min(score, 100)
}

func recommend(structure, signal string, wt1, wt2 float64) string {
	switch {
	case structure == StructureBullish && signal == SignalBuy && wt1 > wt2:
		return ActionLong
	case structure == StructureBearish && signal == SignalSell && wt1 < wt2:
		return ActionShort
	}
	return ActionWait
}
