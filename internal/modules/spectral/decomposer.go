// Package spectral provides eigen-decomposition of symmetric matrices with the
// spectrum ordered from the largest eigenvalue down.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Decomposition holds eigenvalues sorted descending and the matching eigenvectors
// as the columns of Vectors.
type Decomposition struct {
	Values  []float64
	Vectors *mat.Dense
}

// Decompose eigen-decomposes a symmetric matrix.
// Eigenvalues are returned in descending order; column i of Vectors is the
// unit eigenvector for Values[i].
func Decompose(a mat.Symmetric) (*Decomposition, error) {
	n := a.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite element at (%d,%d)", i, j)
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, fmt.Errorf("eigen-decomposition of %dx%d matrix failed", n, n)
	}

	// gonum returns ascending order; flip values and vector columns.
	asc := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	values := make([]float64, n)
	vectors := mat.NewDense(n, n, nil)
	for k := 0; k < n; k++ {
		src := n - 1 - k
		values[k] = asc[src]
		for i := 0; i < n; i++ {
			vectors.Set(i, k, vecs.At(i, src))
		}
	}

	return &Decomposition{Values: values, Vectors: vectors}, nil
}

// Reconstruct rebuilds V·diag(values)·Vᵗ using the decomposition's eigenvectors.
func (d *Decomposition) Reconstruct(values []float64) (*mat.SymDense, error) {
	n := len(d.Values)
	if len(values) != n {
		return nil, fmt.Errorf("got %d eigenvalues, expected %d", len(values), n)
	}

	scaled := mat.NewDense(n, n, nil)
	scaled.Apply(func(_, j int, v float64) float64 { return v * values[j] }, d.Vectors)

	var full mat.Dense
	full.Mul(scaled, d.Vectors.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// average the two halves to absorb round-off asymmetry
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out, nil
}

// Total returns the sum of all eigenvalues, with negative round-off clamped to zero.
func (d *Decomposition) Total() float64 {
	total := 0.0
	for _, v := range d.Values {
		total += math.Max(v, 0)
	}
	return total
}

// Top returns the sum of the k largest eigenvalues, with negative round-off clamped to zero.
func (d *Decomposition) Top(k int) float64 {
	if k > len(d.Values) {
		k = len(d.Values)
	}
	sum := 0.0
	for _, v := range d.Values[:k] {
		sum += math.Max(v, 0)
	}
	return sum
}
