package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (N-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// ColumnStdDevs returns the sample standard deviation of every column of rows.
func ColumnStdDevs(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows[0])
	out := make([]float64, n)
	col := make([]float64, len(rows))
	for j := 0; j < n; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		out[j] = StdDev(col)
	}
	return out
}

// Quantile returns the q-quantile of sorted data using linear interpolation
// between the closest ranks: position q*(n-1).
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// ExpandingQuantile returns, for every index i, the q-quantile of data[0..i] inclusive.
// Entries with fewer than minPeriods observations are NaN.
func ExpandingQuantile(data []float64, q float64, minPeriods int) []float64 {
	out := make([]float64, len(data))
	sorted := make([]float64, 0, len(data))
	for i, v := range data {
		// Keep the prefix sorted by inserting each value at its rank.
		k := sort.SearchFloat64s(sorted, v)
		sorted = append(sorted, 0)
		copy(sorted[k+1:], sorted[k:])
		sorted[k] = v

		if i+1 < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = Quantile(sorted, q)
	}
	return out
}
