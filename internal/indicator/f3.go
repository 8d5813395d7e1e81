package indicator

import (
	"time"

	"crypto-signals/internal/model"
)

// MinCandlesF3 is the minimum history F3 and F4 accept.
const MinCandlesF3 = 50

// Signal values shared by F3 and F4.
const (
	SignalBuy     = "BUY"
	SignalSell    = "SELL"
	SignalNeutral = "NEUTRAL"
)

// F3Params configures the main and fibonacci cascade filters.
type F3Params struct {
	Length  int     `json:"length"`
	A       float64 `json:"a"`
	FiboLen int     `json:"fiboLength"`
	FiboA   float64 `json:"fiboA"`
}

// DefaultF3Params returns length 7 / a 3.7 for the main line and 5 / 0.618
// for the fibonacci line.
func DefaultF3Params() F3Params {
	return F3Params{Length: 7, A: 3.7, FiboLen: 5, FiboA: 0.618}
}

// F3Point is one bar of the F3 chart series.
type F3Point struct {
	Time      time.Time `json:"time"`
	F3        float64   `json:"f3"`
	F3Fibo    float64   `json:"f3Fibo"`
	Signal    string    `json:"signal"`
	Color     string    `json:"color"`     // green rising, red falling, yellow flat
	FiboColor string    `json:"fiboColor"` // blue rising, purple falling, yellow flat
}

// F3Result is the latest F3 reading plus the bar series it came from.
type F3Result struct {
	F3         float64   `json:"f3"`
	F3Fibo     float64   `json:"f3Fibo"`
	PrevF3     float64   `json:"prevF3"`
	PrevF3Fibo float64   `json:"prevF3Fibo"`
	Signal     string    `json:"signal"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
	Series     []F3Point `json:"series"`
}

// cascadePair runs the main and fibonacci filters over hlcc4 and trims both
// to a common tail so index i refers to the same bar in each.
func cascadePair(candles []model.Candle, length int, a float64, fiboLen int, fiboA float64) (main, fibo []float64) {
	src := make([]float64, len(candles))
	for i, c := range candles {
		src[i] = c.HLCC4()
	}
	main = Cascade(src, length, a)
	fibo = Cascade(src, fiboLen, fiboA)
	n := len(main)
	if len(fibo) < n {
		n = len(fibo)
	}
	return main[len(main)-n:], fibo[len(fibo)-n:]
}

func signalFromFibo(cur, prev float64) string {
	switch direction(cur, prev) {
	case 1:
		return SignalBuy
	case -1:
		return SignalSell
	}
	return SignalNeutral
}

func lineColor(cur, prev float64, up, down string) string {
	switch direction(cur, prev) {
	case 1:
		return up
	case -1:
		return down
	}
	return "yellow"
}

// CalculateF3 computes the F3 lines. BUY when the fibonacci line rose
// against the previous bar, SELL when it fell, NEUTRAL otherwise.
func CalculateF3(candles []model.Candle, p F3Params) (F3Result, error) {
	need := MinCandlesF3
	if m := CascadeMinLength(max(p.Length, p.FiboLen), 2); m > need {
		need = m
	}
	if len(candles) < need {
		return F3Result{}, &model.InsufficientDataError{Indicator: "F3", Need: need, Got: len(candles)}
	}

	main, fibo := cascadePair(candles, p.Length, p.A, p.FiboLen, p.FiboA)
	n := len(main)
	offset := len(candles) - n

	series := make([]F3Point, 0, n-1)
	for i := 1; i < n; i++ {
		series = append(series, F3Point{
			Time:      candles[offset+i].Time,
			F3:        main[i],
			F3Fibo:    fibo[i],
			Signal:    signalFromFibo(fibo[i], fibo[i-1]),
			Color:     lineColor(main[i], main[i-1], "green", "red"),
			FiboColor: lineColor(fibo[i], fibo[i-1], "blue", "purple"),
		})
	}

	last := candles[len(candles)-1]
	return F3Result{
		F3:         main[n-1],
		F3Fibo:     fibo[n-1],
		PrevF3:     main[n-2],
		PrevF3Fibo: fibo[n-2],
		Signal:     signalFromFibo(fibo[n-1], fibo[n-2]),
		Price:      last.Close,
		Time:       last.Time,
		Series:     series,
	}, nil
}
