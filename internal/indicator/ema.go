package indicator

// EMAState calculates an Exponential Moving Average incrementally.
// The first value is the simple mean of the first period inputs.
type EMAState struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMAState creates an EMA with the given period.
func NewEMAState(period int) *EMAState {
	return &EMAState{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMAState) Update(v float64) {
	e.count++

	if e.count <= e.period {
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (v-e.current)*e.multiplier + e.current
}

func (e *EMAState) Value() float64 { return e.current }
func (e *EMAState) Ready() bool    { return e.count >= e.period }

// EMA returns the seeded EMA of series: len(series)-period+1 values, the
// first being the mean of series[:period]. Returns nil when the series is
// shorter than period.
func EMA(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nil
	}
	st := NewEMAState(period)
	out := make([]float64, 0, len(series)-period+1)
	for _, v := range series {
		st.Update(v)
		if st.Ready() {
			out = append(out, st.Value())
		}
	}
	return out
}
