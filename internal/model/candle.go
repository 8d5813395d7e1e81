package model

import (
	"encoding/json"
	"time"
)

// Candle is one bar of a fixed interval. Slices of candles are always
// ordered oldest to newest; indicators rely on index order.
type Candle struct {
	Time   time.Time `json:"time"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HLCC4 returns (high + low + 2*close) / 4, the source price of the cascade filters.
func (c Candle) HLCC4() float64 {
	return (c.High + c.Low + 2*c.Close) / 4
}

// HLC3 returns the typical price (high + low + close) / 3.
func (c Candle) HLC3() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close prices of a candle series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
