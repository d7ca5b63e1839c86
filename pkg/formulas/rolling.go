package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingMean calculates the trailing simple moving average over length observations.
// The first length-1 entries are NaN.
func RollingMean(data []float64, length int) []float64 {
	out := nanSlice(len(data))
	if length <= 0 || len(data) < length {
		return out
	}

	sma := talib.Sma(data, length)
	copy(out[length-1:], sma[length-1:])
	return out
}

// RollingStdDev calculates the trailing sample standard deviation over length observations.
// go-talib returns the population variance, which is rescaled by length/(length-1).
// The first length-1 entries are NaN.
func RollingStdDev(data []float64, length int) []float64 {
	out := nanSlice(len(data))
	if length < 2 || len(data) < length {
		return out
	}

	variance := talib.Var(data, length)
	correction := float64(length) / float64(length-1)
	for i := length - 1; i < len(data); i++ {
		v := variance[i] * correction
		if v < 0 {
			// running-sum round-off on near-constant input
			v = 0
		}
		out[i] = math.Sqrt(v)
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
