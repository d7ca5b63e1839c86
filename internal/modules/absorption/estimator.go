// Package absorption computes the rolling absorption ratio: the share of total
// variance explained by the largest principal components of each window.
package absorption

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/denoise"
	"github.com/aristath/systemicrisk/internal/modules/rolling"
	"github.com/aristath/systemicrisk/internal/modules/spectral"
	"github.com/aristath/systemicrisk/pkg/formulas"
)

// Series names.
const (
	RawSeries          = "absorption_ratio"
	StandardizedSeries = "absorption_ratio_standardized"
)

// minDeviation is the long-horizon deviation below which a row is treated as flat.
const minDeviation = 1e-12

// Config holds absorption ratio parameters.
type Config struct {
	WindowSize        int
	ComponentFraction float64 // k = round(fraction·N), at least 1
	Components        int     // explicit k, overrides ComponentFraction when > 0
	ShortHorizon      int
	LongHorizon       int
	Denoise           bool // denoise each window covariance before decomposing
	DenoiseConfig     denoise.Config
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		WindowSize:        252,
		ComponentFraction: 0.2,
		ShortHorizon:      21,
		LongHorizon:       252,
		DenoiseConfig:     denoise.DefaultConfig(),
	}
}

// Validate checks parameters that do not depend on the data.
func (c Config) Validate() error {
	if c.WindowSize < 2 {
		return domain.NewConfigurationError("window_size", fmt.Sprintf("must be >= 2, got %d", c.WindowSize))
	}
	if c.Components < 0 {
		return domain.NewConfigurationError("components", fmt.Sprintf("must be >= 0, got %d", c.Components))
	}
	if c.Components == 0 && !(c.ComponentFraction > 0 && c.ComponentFraction <= 1) {
		return domain.NewConfigurationError("component_fraction",
			fmt.Sprintf("must be in (0, 1], got %v", c.ComponentFraction))
	}
	if c.ShortHorizon < 1 {
		return domain.NewConfigurationError("short_horizon", fmt.Sprintf("must be >= 1, got %d", c.ShortHorizon))
	}
	if c.LongHorizon < 2 {
		return domain.NewConfigurationError("long_horizon", fmt.Sprintf("must be >= 2, got %d", c.LongHorizon))
	}
	if c.ShortHorizon > c.LongHorizon {
		return domain.NewConfigurationError("short_horizon",
			fmt.Sprintf("short horizon %d exceeds long horizon %d", c.ShortHorizon, c.LongHorizon))
	}
	return nil
}

// ComponentCount returns k for n variables.
func (c Config) ComponentCount(n int) (int, error) {
	if c.Components > 0 {
		if c.Components > n {
			return 0, domain.NewConfigurationError("components",
				fmt.Sprintf("%d components requested for %d variables", c.Components, n))
		}
		return c.Components, nil
	}
	k := int(math.RoundToEven(c.ComponentFraction * float64(n)))
	if k < 1 {
		k = 1
	}
	return k, nil
}

// Result holds the absorption ratio outputs.
type Result struct {
	Raw             domain.Series
	Standardized    domain.Series
	Components      int
	FallbackWindows int // windows whose denoising fell back to the sample covariance
}

// Estimator computes rolling absorption ratios.
type Estimator struct {
	cfg      Config
	runner   *rolling.Runner
	denoiser *denoise.Denoiser
	log      zerolog.Logger
}

// NewEstimator creates an absorption ratio estimator.
func NewEstimator(cfg Config, runner *rolling.Runner, log zerolog.Logger) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Estimator{
		cfg:    cfg,
		runner: runner,
		log:    log.With().Str("component", "absorption_ratio").Logger(),
	}
	if runner == nil {
		e.runner = rolling.NewRunner(nil, log)
	}
	if cfg.Denoise {
		d, err := denoise.NewDenoiser(cfg.DenoiseConfig, log)
		if err != nil {
			return nil, err
		}
		e.denoiser = d
	}
	return e, nil
}

// Estimate computes the raw and standardized absorption ratio series for m.
func (e *Estimator) Estimate(ctx context.Context, m *domain.ReturnMatrix) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	n := m.Width()
	k, err := e.cfg.ComponentCount(n)
	if err != nil {
		return nil, err
	}

	var fallbacks atomic.Int64
	q := float64(e.cfg.WindowSize) / float64(n)
	start := time.Now()

	raw, err := e.runner.Run(ctx, m, e.cfg.WindowSize, RawSeries, func(w rolling.Window) (float64, error) {
		cov := formulas.SampleCovariance(w.Data)
		if e.denoiser != nil {
			res, err := e.denoiser.Denoise(cov, q)
			if err != nil {
				return 0, err
			}
			if res.Fallback {
				fallbacks.Add(1)
			}
			cov = res.Covariance
		}

		eig, err := spectral.Decompose(cov)
		if err != nil {
			return 0, err
		}
		total := eig.Total()
		if total <= 0 {
			return 0, fmt.Errorf("window has zero total variance")
		}
		ratio := eig.Top(k) / total
		return math.Min(ratio, 1), nil
	})
	if err != nil {
		return nil, err
	}

	standardized := Standardize(raw, e.cfg.ShortHorizon, e.cfg.LongHorizon)
	if standardized.Len() == 0 {
		e.log.Warn().
			Int("windows", raw.Len()).
			Int("long_horizon", e.cfg.LongHorizon).
			Msg("Not enough windows to standardize the absorption ratio")
	}

	e.log.Info().
		Int("observations", m.Len()).
		Int("variables", n).
		Int("components", k).
		Int("windows", raw.Len()).
		Int("standardized", standardized.Len()).
		Int64("denoise_fallbacks", fallbacks.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("Absorption ratio computed")

	return &Result{
		Raw:             raw,
		Standardized:    standardized,
		Components:      k,
		FallbackWindows: int(fallbacks.Load()),
	}, nil
}

// Standardize returns (mean_short - mean_long) / std_long over trailing windows
// of raw. Rows before the long horizon is filled, and rows with zero long-horizon
// deviation, are dropped.
func Standardize(raw domain.Series, short, long int) domain.Series {
	values := raw.Values()
	meanShort := formulas.RollingMean(values, short)
	meanLong := formulas.RollingMean(values, long)
	stdLong := formulas.RollingStdDev(values, long)

	out := domain.Series{Name: StandardizedSeries}
	for i, p := range raw.Points {
		if math.IsNaN(meanShort[i]) || math.IsNaN(meanLong[i]) || math.IsNaN(stdLong[i]) || stdLong[i] < minDeviation {
			continue
		}
		out.Points = append(out.Points, domain.Point{
			Time:  p.Time,
			Value: (meanShort[i] - meanLong[i]) / stdLong[i],
		})
	}
	return out
}
