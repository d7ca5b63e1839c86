package formulas

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SampleCovariance calculates the sample covariance matrix (N-1 denominator) of x,
// where each row of x is an observation and each column a variable.
func SampleCovariance(x mat.Matrix) *mat.SymDense {
	_, n := x.Dims()
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return cov
}

// CorrelationFromCovariance derives the correlation matrix and the marginal standard
// deviations from a covariance matrix.
//
// Formula: corr(i,j) = cov(i,j) / sqrt(cov(i,i) * cov(j,j)), clipped to [-1, 1]
func CorrelationFromCovariance(cov mat.Symmetric) (*mat.SymDense, []float64, error) {
	n := cov.SymmetricDim()
	if n == 0 {
		return nil, nil, fmt.Errorf("empty covariance matrix")
	}

	std := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("invalid variance on diagonal at %d: %v", i, v)
		}
		std[i] = math.Sqrt(v)
	}

	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			val := cov.At(i, j) / (std[i] * std[j])
			// Clamp to valid range.
			val = math.Max(-1.0, math.Min(1.0, val))
			corr.SetSym(i, j, val)
		}
	}

	return corr, std, nil
}

// CovarianceFromCorrelation rescales a correlation matrix by the given standard deviations.
func CovarianceFromCorrelation(corr mat.Symmetric, std []float64) (*mat.SymDense, error) {
	n := corr.SymmetricDim()
	if len(std) != n {
		return nil, fmt.Errorf("standard deviations length %d does not match matrix size %d", len(std), n)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, corr.At(i, j)*std[i]*std[j])
		}
	}
	return cov, nil
}

// IsSymmetric reports whether m equals its transpose within tol.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}
