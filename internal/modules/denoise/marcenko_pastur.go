package denoise

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Support returns the Marcenko–Pastur eigenvalue bounds for noise variance
// variance and dimension ratio q = T/N:
//
//	eMin = σ²(1 - √(1/q))², eMax = σ²(1 + √(1/q))²
func Support(variance, q float64) (eMin, eMax float64) {
	r := math.Sqrt(1.0 / q)
	return variance * (1 - r) * (1 - r), variance * (1 + r) * (1 + r)
}

// MaxNoiseEigenvalue returns the upper edge of the Marcenko–Pastur support.
func MaxNoiseEigenvalue(variance, q float64) float64 {
	_, eMax := Support(variance, q)
	return eMax
}

// MarcenkoPasturPDF evaluates the Marcenko–Pastur density on points evenly
// spaced over its support (both edges included).
//
//	pdf(λ) = q / (2πσ²λ) · √((eMax-λ)(λ-eMin))
func MarcenkoPasturPDF(variance, q float64, points int) (x, pdf []float64) {
	eMin, eMax := Support(variance, q)
	x = floats.Span(make([]float64, points), eMin, eMax)
	pdf = make([]float64, points)
	for i, e := range x {
		if e <= 0 {
			continue
		}
		prod := (eMax - e) * (e - eMin)
		if prod <= 0 {
			// edges evaluate to zero; round-off can make them slightly negative
			continue
		}
		pdf[i] = q / (2 * math.Pi * variance * e) * math.Sqrt(prod)
	}
	return x, pdf
}

// KernelDensity evaluates a Gaussian kernel density estimate of obs with the
// given bandwidth at every point of x.
func KernelDensity(obs []float64, bandwidth float64, x []float64) []float64 {
	kernels := make([]distuv.Normal, len(obs))
	for i, o := range obs {
		kernels[i] = distuv.Normal{Mu: o, Sigma: bandwidth}
	}

	out := make([]float64, len(x))
	if len(obs) == 0 {
		return out
	}
	for i, p := range x {
		sum := 0.0
		for _, k := range kernels {
			sum += k.Prob(p)
		}
		out[i] = sum / float64(len(obs))
	}
	return out
}

// FitError is the sum of squared differences between the Marcenko–Pastur
// density for variance and the kernel density of eigenvalues, both evaluated
// on the Marcenko–Pastur grid.
func FitError(variance float64, eigenvalues []float64, q, bandwidth float64, points int) float64 {
	x, theoretical := MarcenkoPasturPDF(variance, q, points)
	empirical := KernelDensity(eigenvalues, bandwidth, x)

	sse := 0.0
	for i := range x {
		d := empirical[i] - theoretical[i]
		sse += d * d
	}
	return sse
}
