// Package turbulence computes rolling financial turbulence, the squared
// Mahalanobis distance of each window's last observation from the window's
// own mean and covariance, and filters it into discrete events.
package turbulence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/rolling"
	"github.com/aristath/systemicrisk/pkg/formulas"
)

// Series names.
const (
	RawSeries       = "turbulence"
	ThresholdSeries = "turbulence_threshold"
	FilteredSeries  = "turbulence_filtered"
)

// Config holds turbulence parameters.
type Config struct {
	WindowSize int
	Quantile   float64 // event threshold quantile, 0 < q < 1
	MinPeriods int     // values required before the threshold is defined
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		WindowSize: 252,
		Quantile:   0.95,
		MinPeriods: 10,
	}
}

// Validate checks parameters that do not depend on the data.
func (c Config) Validate() error {
	if c.WindowSize < 2 {
		return domain.NewConfigurationError("window_size", fmt.Sprintf("must be >= 2, got %d", c.WindowSize))
	}
	if !(c.Quantile > 0 && c.Quantile < 1) {
		return domain.NewConfigurationError("quantile", fmt.Sprintf("must be in (0, 1), got %v", c.Quantile))
	}
	if c.MinPeriods < 1 {
		return domain.NewConfigurationError("min_periods", fmt.Sprintf("must be >= 1, got %d", c.MinPeriods))
	}
	return nil
}

// Result holds the turbulence outputs. Threshold starts at the first index
// where at least MinPeriods values exist; Raw and Filtered cover every window.
type Result struct {
	Raw       domain.Series
	Threshold domain.Series
	Filtered  domain.Series
	Events    int
}

// Estimator computes rolling turbulence.
type Estimator struct {
	cfg    Config
	runner *rolling.Runner
	log    zerolog.Logger
}

// NewEstimator creates a turbulence estimator.
func NewEstimator(cfg Config, runner *rolling.Runner, log zerolog.Logger) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = rolling.NewRunner(nil, log)
	}
	return &Estimator{
		cfg:    cfg,
		runner: runner,
		log:    log.With().Str("component", "turbulence").Logger(),
	}, nil
}

// Estimate computes raw and filtered turbulence for m.
func (e *Estimator) Estimate(ctx context.Context, m *domain.ReturnMatrix) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	raw, err := e.runner.Run(ctx, m, e.cfg.WindowSize, RawSeries, WindowTurbulence)
	if err != nil {
		return nil, err
	}

	threshold, filtered, events := Filter(raw, e.cfg.Quantile, e.cfg.MinPeriods)

	e.log.Info().
		Int("observations", m.Len()).
		Int("variables", m.Width()).
		Int("windows", raw.Len()).
		Int("events", events).
		Float64("quantile", e.cfg.Quantile).
		Dur("elapsed", time.Since(start)).
		Msg("Turbulence computed")

	return &Result{Raw: raw, Threshold: threshold, Filtered: filtered, Events: events}, nil
}

// WindowTurbulence returns (x - μ)ᵗ Σ⁻¹ (x - μ) where x is the window's last
// observation and μ, Σ are the sample mean and covariance of the whole window,
// x included.
func WindowTurbulence(w rolling.Window) (float64, error) {
	rows, n := w.Data.Dims()

	diff := mat.NewVecDense(n, w.Last())
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, w.Data)
		diff.SetVec(j, diff.AtVec(j)-stat.Mean(col, nil))
	}

	return MahalanobisSquared(formulas.SampleCovariance(w.Data), diff, rows)
}

// MahalanobisSquared returns dᵗ Σ⁻¹ d via a Cholesky solve. rows is only used
// for error context.
func MahalanobisSquared(cov mat.Symmetric, d mat.Vector, rows int) (float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		n := cov.SymmetricDim()
		return 0, &domain.NumericalError{
			Op:    "cholesky",
			Index: -1,
			Rows:  rows,
			Cols:  n,
			Err:   fmt.Errorf("covariance is not positive definite"),
		}
	}

	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, d); err != nil {
		return 0, fmt.Errorf("solve covariance system: %w", err)
	}
	dist := mat.Dot(d, &solved)
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0, fmt.Errorf("non-finite distance %v", dist)
	}
	// round-off can leave a tiny negative value at the mean
	return math.Max(dist, 0), nil
}

// Filter computes the expanding quantile threshold over raw and keeps values
// strictly above the threshold at the same index; everything else is zero,
// including indices where fewer than minPeriods values exist.
func Filter(raw domain.Series, q float64, minPeriods int) (threshold, filtered domain.Series, events int) {
	values := raw.Values()
	thresholds := formulas.ExpandingQuantile(values, q, minPeriods)

	threshold = domain.Series{Name: ThresholdSeries}
	filtered = domain.Series{Name: FilteredSeries, Points: make([]domain.Point, len(values))}
	for i, p := range raw.Points {
		filtered.Points[i] = domain.Point{Time: p.Time}
		if math.IsNaN(thresholds[i]) {
			continue
		}
		threshold.Points = append(threshold.Points, domain.Point{Time: p.Time, Value: thresholds[i]})
		if values[i] > thresholds[i] {
			filtered.Points[i].Value = values[i]
			events++
		}
	}
	return threshold, filtered, events
}
