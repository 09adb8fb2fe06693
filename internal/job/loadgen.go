package job

import "math"

// Burn is the synthetic load generator: it sums sqrt(i)*sin(i)*cos(i)*tan(i)
// over integers i in [0, n). Cost is linear in n and the call blocks the
// caller for its whole duration. Callers must keep the result observable.
func Burn(n float64) float64 {
	var acc float64
	for i := 0.0; i < n; i++ {
		acc += math.Sqrt(i) * math.Sin(i) * math.Cos(i) * math.Tan(i)
	}
	return acc
}
