package indicator

// CascadeCoefficients returns the blend weights for volume factor a:
//
//	c1 = -a³
//	c2 = 3a² + 3a³
//	c3 = -6a² - 3a - 3a³
//	c4 = 1 + 3a + a³ + 3a²
func CascadeCoefficients(a float64) (c1, c2, c3, c4 float64) {
	a2 := a * a
	a3 := a2 * a
	c1 = -a3
	c2 = 3*a2 + 3*a3
	c3 = -6*a2 - 3*a - 3*a3
	c4 = 1 + 3*a + a3 + 3*a2
	return
}

// Cascade applies EMA(length) six times in series and blends the last four
// stages as c1*e6 + c2*e5 + c3*e4 + c4*e3, aligned to the tail. The result
// has len(e6) values; nil if the series is too short for six stages.
func Cascade(series []float64, length int, a float64) []float64 {
	stages := make([][]float64, 6)
	src := series
	for i := range stages {
		src = EMA(src, length)
		if len(src) == 0 {
			return nil
		}
		stages[i] = src
	}
	e3, e4, e5, e6 := stages[2], stages[3], stages[4], stages[5]
	c1, c2, c3, c4 := CascadeCoefficients(a)

	n := len(e6)
	o3, o4, o5 := len(e3)-n, len(e4)-n, len(e5)-n
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = c1*e6[i] + c2*e5[i+o5] + c3*e4[i+o4] + c4*e3[i+o3]
	}
	return out
}

// CascadeMinLength is the shortest input for which Cascade returns n values.
func CascadeMinLength(length, n int) int {
	return 6*(length-1) + n
}
