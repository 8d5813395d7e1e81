package indicator

// MACDResult holds the three MACD series, tail-aligned. Histogram and
// Signal have equal length; MACD is longer by signal-1.
type MACDResult struct {
	MACD      []float64 `json:"macd"`
	Signal    []float64 `json:"signal"`
	Histogram []float64 `json:"histogram"`
}

// MACD computes EMA(fast) - EMA(slow) aligned to the shorter series, its
// EMA(signal) and the histogram. Empty result if closes are too short.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	if f == nil || s == nil {
		return MACDResult{}
	}
	n := min(len(f), len(s))
	f, s = f[len(f)-n:], s[len(s)-n:]

	line := make([]float64, n)
	for i := range line {
		line[i] = f[i] - s[i]
	}
	sig := EMA(line, signal)
	if sig == nil {
		return MACDResult{MACD: line}
	}
	tail := line[len(line)-len(sig):]
	hist := make([]float64, len(sig))
	for i := range sig {
		hist[i] = tail[i] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
