package indicator

// SMAState calculates a Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer.
type SMAState struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMAState creates an SMA with the given period.
func NewSMAState(period int) *SMAState {
	return &SMAState{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMAState) Update(v float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMAState) Value() float64 { return s.current }
func (s *SMAState) Ready() bool    { return s.count >= s.period }

// SMA returns the trailing-window mean of series from index period-1
// onward: len(series)-period+1 values, or nil if the series is too short.
func SMA(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nil
	}
	st := NewSMAState(period)
	out := make([]float64, 0, len(series)-period+1)
	for _, v := range series {
		st.Update(v)
		if st.Ready() {
			out = append(out, st.Value())
		}
	}
	return out
}
