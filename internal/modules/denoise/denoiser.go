// Package denoise removes sampling noise from covariance matrices using
// random matrix theory: eigenvalues of the correlation matrix that fall inside
// the fitted Marcenko–Pastur support are treated as noise and flattened.
package denoise

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/spectral"
	"github.com/aristath/systemicrisk/pkg/formulas"
)

// Defaults for the Marcenko–Pastur fit.
const (
	DefaultBandwidth       = 0.01
	DefaultPoints          = 1000
	DefaultLowerBound      = 1e-5
	DefaultUpperBound      = 1 - 1e-5
	DefaultInitialVariance = 0.5
	DefaultMaxIterations   = 1000

	// FallbackVariance is reported when the fit does not converge.
	FallbackVariance = 1.0
)

// Config controls the Marcenko–Pastur fit.
type Config struct {
	Bandwidth       float64 // KDE bandwidth, > 0
	Points          int     // grid size over the MP support
	LowerBound      float64 // σ² search interval (LowerBound, UpperBound)
	UpperBound      float64
	InitialVariance float64
	MaxIterations   int
}

// DefaultConfig returns the standard fit configuration.
func DefaultConfig() Config {
	return Config{
		Bandwidth:       DefaultBandwidth,
		Points:          DefaultPoints,
		LowerBound:      DefaultLowerBound,
		UpperBound:      DefaultUpperBound,
		InitialVariance: DefaultInitialVariance,
		MaxIterations:   DefaultMaxIterations,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Bandwidth == 0 {
		c.Bandwidth = d.Bandwidth
	}
	if c.Points == 0 {
		c.Points = d.Points
	}
	if c.LowerBound == 0 && c.UpperBound == 0 {
		c.LowerBound, c.UpperBound = d.LowerBound, d.UpperBound
	}
	if c.InitialVariance == 0 {
		c.InitialVariance = d.InitialVariance
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = d.MaxIterations
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.Bandwidth > 0) {
		return domain.NewConfigurationError("bandwidth", fmt.Sprintf("must be > 0, got %v", c.Bandwidth))
	}
	if c.Points < 2 {
		return domain.NewConfigurationError("points", fmt.Sprintf("must be >= 2, got %d", c.Points))
	}
	if !(c.LowerBound > 0 && c.LowerBound < c.UpperBound && c.UpperBound <= 1) {
		return domain.NewConfigurationError("bounds",
			fmt.Sprintf("need 0 < lower < upper <= 1, got (%v, %v)", c.LowerBound, c.UpperBound))
	}
	if !(c.InitialVariance > c.LowerBound && c.InitialVariance < c.UpperBound) {
		return domain.NewConfigurationError("initial_variance",
			fmt.Sprintf("%v is outside (%v, %v)", c.InitialVariance, c.LowerBound, c.UpperBound))
	}
	if c.MaxIterations < 1 {
		return domain.NewConfigurationError("max_iterations", "must be >= 1")
	}
	return nil
}

// Result is a denoised covariance together with the fit diagnostics.
type Result struct {
	Covariance          *mat.SymDense
	Correlation         *mat.SymDense
	Eigenvalues         []float64 // correlation spectrum, descending
	DenoisedEigenvalues []float64
	Variance            float64 // fitted noise variance σ²
	MaxNoiseEigenvalue  float64 // σ²(1+√(1/q))²
	SignalFactors       int     // eigenvalues at or above MaxNoiseEigenvalue
	Q                   float64
	Fallback            bool // the fit did not converge; output equals input
}

// Denoiser fits a Marcenko–Pastur distribution to a correlation spectrum and
// rebuilds the covariance with the noise eigenvalues averaged.
type Denoiser struct {
	cfg Config
	log zerolog.Logger
}

// NewDenoiser creates a Denoiser. Zero-valued config fields take their defaults.
func NewDenoiser(cfg Config, log zerolog.Logger) (*Denoiser, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Denoiser{
		cfg: cfg,
		log: log.With().Str("component", "rmt_denoiser").Logger(),
	}, nil
}

// Config returns the effective configuration.
func (d *Denoiser) Config() Config { return d.cfg }

// DenoiseReturns denoises the sample covariance of m with q = T/N.
func (d *Denoiser) DenoiseReturns(m *domain.ReturnMatrix) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	q := float64(m.Len()) / float64(m.Width())
	return d.Denoise(formulas.SampleCovariance(m.Dense()), q)
}

// Denoise returns the RMT-denoised version of cov, estimated from q = T/N
// observations per variable. q must exceed 1.
func (d *Denoiser) Denoise(cov mat.Symmetric, q float64) (*Result, error) {
	n := cov.SymmetricDim()
	if !(q > 1) || math.IsInf(q, 0) {
		return nil, domain.NewConfigurationError("q",
			fmt.Sprintf("observations per variable must exceed 1, got %v", q))
	}

	corr, std, err := formulas.CorrelationFromCovariance(cov)
	if err != nil {
		return nil, &domain.NumericalError{Op: "cov_to_corr", Index: -1, Rows: n, Cols: n, Err: err}
	}

	eig, err := spectral.Decompose(corr)
	if err != nil {
		return nil, &domain.NumericalError{Op: "eigen_decomposition", Index: -1, Rows: n, Cols: n, Err: err}
	}

	variance, converged := d.FitNoiseVariance(eig.Values, q)
	if !converged {
		d.log.Warn().
			Int("variables", n).
			Float64("q", q).
			Msg("Marcenko-Pastur fit did not converge, keeping covariance unchanged")

		original := mat.NewSymDense(n, nil)
		original.CopySym(cov)
		return &Result{
			Covariance:          original,
			Correlation:         corr,
			Eigenvalues:         eig.Values,
			DenoisedEigenvalues: append([]float64(nil), eig.Values...),
			Variance:            FallbackVariance,
			MaxNoiseEigenvalue:  MaxNoiseEigenvalue(FallbackVariance, q),
			SignalFactors:       n,
			Q:                   q,
			Fallback:            true,
		}, nil
	}

	eMax := MaxNoiseEigenvalue(variance, q)
	factors := signalFactors(eig.Values, eMax)
	denoised := flattenNoise(eig.Values, factors)

	rebuilt, err := eig.Reconstruct(denoised)
	if err != nil {
		return nil, &domain.NumericalError{Op: "reconstruct", Index: -1, Rows: n, Cols: n, Err: err}
	}
	corr1, _, err := formulas.CorrelationFromCovariance(rebuilt)
	if err != nil {
		return nil, &domain.NumericalError{Op: "renormalize", Index: -1, Rows: n, Cols: n, Err: err}
	}
	cov1, err := formulas.CovarianceFromCorrelation(corr1, std)
	if err != nil {
		return nil, &domain.NumericalError{Op: "corr_to_cov", Index: -1, Rows: n, Cols: n, Err: err}
	}

	d.log.Debug().
		Int("variables", n).
		Float64("q", q).
		Float64("variance", variance).
		Float64("e_max", eMax).
		Int("signal_factors", factors).
		Msg("Denoised covariance")

	return &Result{
		Covariance:          cov1,
		Correlation:         corr1,
		Eigenvalues:         eig.Values,
		DenoisedEigenvalues: denoised,
		Variance:            variance,
		MaxNoiseEigenvalue:  eMax,
		SignalFactors:       factors,
		Q:                   q,
	}, nil
}

// FitNoiseVariance finds σ² in (LowerBound, UpperBound) minimizing FitError.
// The bounded interval is mapped onto the real line with a logistic transform
// so an unconstrained Nelder–Mead search stays inside the bounds.
// converged is false when the optimizer stops early; variance is then FallbackVariance.
func (d *Denoiser) FitNoiseVariance(eigenvalues []float64, q float64) (variance float64, converged bool) {
	lo, hi := d.cfg.LowerBound, d.cfg.UpperBound
	toVariance := func(z float64) float64 {
		return lo + (hi-lo)/(1+math.Exp(-z))
	}
	p := (d.cfg.InitialVariance - lo) / (hi - lo)
	z0 := math.Log(p / (1 - p))

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sse := FitError(toVariance(x[0]), eigenvalues, q, d.cfg.Bandwidth, d.cfg.Points)
			if math.IsNaN(sse) || math.IsInf(sse, 0) {
				return math.MaxFloat64
			}
			return sse
		},
	}
	settings := &optimize.Settings{
		MajorIterations: d.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, []float64{z0}, settings, &optimize.NelderMead{})
	if err != nil || result == nil || result.Status.Early() {
		status := "nil"
		if result != nil {
			status = result.Status.String()
		}
		d.log.Debug().Err(err).Str("status", status).Msg("Noise variance fit stopped early")
		return FallbackVariance, false
	}
	return toVariance(result.X[0]), true
}

// signalFactors counts eigenvalues (descending) at or above eMax.
func signalFactors(values []float64, eMax float64) int {
	k := 0
	for _, v := range values {
		if v < eMax {
			break
		}
		k++
	}
	return k
}

// flattenNoise replaces values[factors:] with their mean, preserving the total.
func flattenNoise(values []float64, factors int) []float64 {
	out := append([]float64(nil), values...)
	if factors >= len(out) {
		return out
	}
	noise := out[factors:]
	mean := formulas.Mean(noise)
	for i := range noise {
		noise[i] = mean
	}
	return out
}
