package indicator

// RSIState calculates the Relative Strength Index using Wilder's smoothing.
// Average gain/loss are seeded with the simple mean of the first period deltas.
type RSIState struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSIState creates an RSI with the given period (typically 14).
func NewRSIState(period int) *RSIState {
	return &RSIState{period: period}
}

func (r *RSIState) Update(price float64) {
	r.count++

	if r.count == 1 {
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFromAverages(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFromAverages(r.avgGain, r.avgLoss)
}

func (r *RSIState) Value() float64 { return r.current }
func (r *RSIState) Ready() bool    { return r.count > r.period }

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSI returns one value per close from index period onward
// (len(closes)-period values). Every value lies in [0, 100].
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	st := NewRSIState(period)
	out := make([]float64, 0, len(closes)-period)
	for _, c := range closes {
		st.Update(c)
		if st.Ready() {
			out = append(out, st.Value())
		}
	}
	return out
}
