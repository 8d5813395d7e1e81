// Package indicator provides technical indicator calculations over candle data.
//
// Two forms are offered. Streaming states (EMAState, SMAState, RSIState)
// consume one value at a time. Slice functions (EMA, SMA, RSI, Cascade, ...)
// are pure and return series aligned to the END of their input: the last
// element always corresponds to the most recent candle, and outputs may be
// shorter than inputs while an average warms up. Always index from the tail.
package indicator

// Streaming is implemented by the incremental indicator states.
type Streaming interface {
	// Update feeds the next value.
	Update(v float64)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Last returns the k-th value from the end of series (k=0 is the latest).
func Last(series []float64, k int) (float64, bool) {
	i := len(series) - 1 - k
	if k < 0 || i < 0 {
		return 0, false
	}
	return series[i], true
}

// direction compares cur with prev: 1 rising, -1 falling, 0 flat.
func direction(cur, prev float64) int {
	switch {
	case cur > prev:
		return 1
	case cur < prev:
		return -1
	}
	return 0
}
