package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/modules/absorption"
	"github.com/aristath/systemicrisk/internal/modules/attribution"
	"github.com/aristath/systemicrisk/internal/modules/denoise"
	"github.com/aristath/systemicrisk/internal/modules/turbulence"
	"github.com/aristath/systemicrisk/internal/tabular"
)

// returnsRequest carries an ad-hoc return matrix
type returnsRequest struct {
	Timestamps []time.Time `json:"timestamps"`
	Columns    []string    `json:"columns"`
	Rows       [][]float64 `json:"rows"`
}

func (req *returnsRequest) matrix() (*domain.ReturnMatrix, error) {
	return domain.NewReturnMatrix(req.Timestamps, req.Columns, req.Rows)
}

// AbsorptionRequest is the body of POST /api/compute/absorption. Omitted
// parameters take the estimator defaults; explicit values are validated.
type AbsorptionRequest struct {
	returnsRequest
	WindowSize        *int     `json:"window_size"`
	ComponentFraction *float64 `json:"component_fraction"`
	Components        int      `json:"components"`
	ShortHorizon      *int     `json:"short_horizon"`
	LongHorizon       *int     `json:"long_horizon"`
	Denoise           bool     `json:"denoise"`
	Bandwidth         *float64 `json:"bandwidth"`
}

// Bind implements render.Binder
func (req *AbsorptionRequest) Bind(r *http.Request) error { return nil }

func (req *AbsorptionRequest) config() (absorption.Config, error) {
	cfg := absorption.DefaultConfig()
	setInt(&cfg.WindowSize, req.WindowSize)
	setFloat(&cfg.ComponentFraction, req.ComponentFraction)
	cfg.Components = req.Components
	setInt(&cfg.ShortHorizon, req.ShortHorizon)
	setInt(&cfg.LongHorizon, req.LongHorizon)
	cfg.Denoise = req.Denoise
	if err := setBandwidth(&cfg.DenoiseConfig, req.Bandwidth); err != nil {
		return absorption.Config{}, err
	}
	return cfg, cfg.Validate()
}

// TurbulenceRequest is the body of POST /api/compute/turbulence
type TurbulenceRequest struct {
	returnsRequest
	WindowSize *int     `json:"window_size"`
	Quantile   *float64 `json:"quantile"`
	MinPeriods *int     `json:"min_periods"`
}

// Bind implements render.Binder
func (req *TurbulenceRequest) Bind(r *http.Request) error { return nil }

func (req *TurbulenceRequest) config() (turbulence.Config, error) {
	cfg := turbulence.DefaultConfig()
	setInt(&cfg.WindowSize, req.WindowSize)
	setFloat(&cfg.Quantile, req.Quantile)
	setInt(&cfg.MinPeriods, req.MinPeriods)
	return cfg, cfg.Validate()
}

// DenoiseRequest is the body of POST /api/compute/denoise
type DenoiseRequest struct {
	returnsRequest
	Bandwidth *float64 `json:"bandwidth"`
}

// Bind implements render.Binder
func (req *DenoiseRequest) Bind(r *http.Request) error { return nil }

func (req *DenoiseRequest) config() (denoise.Config, error) {
	cfg := denoise.DefaultConfig()
	if err := setBandwidth(&cfg, req.Bandwidth); err != nil {
		return denoise.Config{}, err
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// setBandwidth rejects explicit non-positive values. The denoiser would
// replace a zero with its default.
func setBandwidth(cfg *denoise.Config, v *float64) error {
	if v == nil {
		return nil
	}
	if !(*v > 0) {
		return domain.NewConfigurationError("bandwidth", fmt.Sprintf("must be > 0, got %v", *v))
	}
	cfg.Bandwidth = *v
	return nil
}

// DenoiseResponse is the JSON result of a denoising run
type DenoiseResponse struct {
	Covariance          tabular.Matrix `json:"covariance"`
	Correlation         tabular.Matrix `json:"correlation"`
	Eigenvalues         []float64      `json:"eigenvalues"`
	DenoisedEigenvalues []float64      `json:"denoised_eigenvalues"`
	Variance            float64        `json:"variance"`
	MaxNoiseEigenvalue  float64        `json:"max_noise_eigenvalue"`
	SignalFactors       int            `json:"signal_factors"`
	Q                   float64        `json:"q"`
	Fallback            bool           `json:"fallback"`
}

// AttributionRequest is the body of POST /api/compute/attribution
type AttributionRequest struct {
	Observations []attribution.Observation `json:"observations"`
	Variables    []string                  `json:"variables"`
	Regimes      []string                  `json:"regimes"`
}

// Bind implements render.Binder
func (req *AttributionRequest) Bind(r *http.Request) error { return nil }

// handleComputeAbsorption computes the absorption ratio of the posted returns
// POST /api/compute/absorption?format=
func (s *Server) handleComputeAbsorption(w http.ResponseWriter, r *http.Request) {
	format, ok := s.format(w, r)
	if !ok {
		return
	}
	var req AbsorptionRequest
	m, ok := s.bindReturns(w, r, &req, &req.returnsRequest)
	if !ok {
		return
	}
	cfg, err := req.config()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.service.ComputeAbsorption(r.Context(), m, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTable(w, format, domain.AlignTable(res.Raw, res.Standardized))
}

// handleComputeTurbulence computes turbulence of the posted returns
// POST /api/compute/turbulence?format=
func (s *Server) handleComputeTurbulence(w http.ResponseWriter, r *http.Request) {
	format, ok := s.format(w, r)
	if !ok {
		return
	}
	var req TurbulenceRequest
	m, ok := s.bindReturns(w, r, &req, &req.returnsRequest)
	if !ok {
		return
	}
	cfg, err := req.config()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.service.ComputeTurbulence(r.Context(), m, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTable(w, format, domain.AlignTable(res.Raw, res.Threshold, res.Filtered))
}

// handleComputeDenoise denoises the covariance of the posted returns
// POST /api/compute/denoise
func (s *Server) handleComputeDenoise(w http.ResponseWriter, r *http.Request) {
	var req DenoiseRequest
	m, ok := s.bindReturns(w, r, &req, &req.returnsRequest)
	if !ok {
		return
	}

	cfg, err := req.config()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.service.ComputeDenoise(m, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, DenoiseResponse{
		Covariance:          tabular.SymMatrix(m.Columns, res.Covariance),
		Correlation:         tabular.SymMatrix(m.Columns, res.Correlation),
		Eigenvalues:         res.Eigenvalues,
		DenoisedEigenvalues: res.DenoisedEigenvalues,
		Variance:            res.Variance,
		MaxNoiseEigenvalue:  res.MaxNoiseEigenvalue,
		SignalFactors:       res.SignalFactors,
		Q:                   res.Q,
		Fallback:            res.Fallback,
	})
}

// handleComputeAttribution attributes the posted observations
// POST /api/compute/attribution?table=probability&format=
func (s *Server) handleComputeAttribution(w http.ResponseWriter, r *http.Request) {
	format, ok := s.format(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("table")
	if name == "" {
		name = attribution.ProbabilityTable
	}

	var req AttributionRequest
	if err := render.Bind(r, &req); err != nil {
		s.writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_REQUEST", err.Error()))
		return
	}

	res, err := s.service.ComputeAttribution(r.Context(), req.Observations, attribution.Config{
		Variables: req.Variables,
		Regimes:   req.Regimes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	table, ok := res.Table(name)
	if !ok {
		s.writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", "unknown table "+name))
		return
	}
	s.writeTable(w, format, table)
}

func (s *Server) format(w http.ResponseWriter, r *http.Request) (tabular.Format, bool) {
	format, err := tabular.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error()))
		return "", false
	}
	return format, true
}

func (s *Server) bindReturns(w http.ResponseWriter, r *http.Request, binder render.Binder, req *returnsRequest) (*domain.ReturnMatrix, bool) {
	if err := render.Bind(r, binder); err != nil {
		s.writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_REQUEST", err.Error()))
		return nil, false
	}
	m, err := req.matrix()
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return m, true
}
