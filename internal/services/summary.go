package services

import (
	"math"
	"time"

	"github.com/aristath/systemicrisk/internal/domain"
)

// Summary is the JSON view of a snapshot served by the API.
type Summary struct {
	ID          string                    `json:"id"`
	CreatedAt   time.Time                 `json:"created_at"`
	DurationMs  int64                     `json:"duration_ms"`
	Datasets    map[string]DatasetSummary `json:"datasets"`
	Attribution *AttributionSummary       `json:"attribution,omitempty"`
	Errors      map[string]string         `json:"errors,omitempty"`
}

// DatasetSummary carries the latest indicator readings of one dataset.
type DatasetSummary struct {
	Variables        []string `json:"variables"`
	Observations     int      `json:"observations"`
	Components       int      `json:"components"`
	AbsorptionRatio  *Reading `json:"absorption_ratio,omitempty"`
	AbsorptionShift  *Reading `json:"absorption_ratio_standardized,omitempty"`
	Turbulence       *Reading `json:"turbulence,omitempty"`
	TurbulenceCutoff *Reading `json:"turbulence_threshold,omitempty"`
	TurbulentEvents  int      `json:"turbulent_events"`
	DenoiseFallbacks int      `json:"denoise_fallbacks"`
}

// AttributionSummary describes the attribution result and the latest record.
type AttributionSummary struct {
	Regimes       []string           `json:"regimes"`
	Variables     []string           `json:"variables"`
	Observations  int                `json:"observations"`
	Time          time.Time          `json:"time"`
	Probabilities map[string]float64 `json:"probabilities"`
	Importance    map[string]float64 `json:"importance"`
}

// Reading is the last point of a series.
type Reading struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Summary builds the API view of the snapshot.
func (snap *Snapshot) Summary() Summary {
	out := Summary{
		ID:         snap.ID.String(),
		CreatedAt:  snap.CreatedAt,
		DurationMs: snap.Duration.Milliseconds(),
		Datasets:   make(map[string]DatasetSummary, len(snap.Datasets)),
		Errors:     snap.Errors,
	}
	for name, set := range snap.Datasets {
		out.Datasets[name] = DatasetSummary{
			Variables:        set.Variables,
			Observations:     set.Observations,
			Components:       set.Absorption.Components,
			AbsorptionRatio:  last(set.Absorption.Raw),
			AbsorptionShift:  last(set.Absorption.Standardized),
			Turbulence:       last(set.Turbulence.Raw),
			TurbulenceCutoff: last(set.Turbulence.Threshold),
			TurbulentEvents:  set.Turbulence.Events,
			DenoiseFallbacks: set.Absorption.FallbackWindows,
		}
	}
	if res := snap.Attribution; res != nil && len(res.Records) > 0 {
		rec := res.Records[len(res.Records)-1]
		att := &AttributionSummary{
			Regimes:       res.Regimes,
			Variables:     res.Variables,
			Observations:  len(res.Records),
			Time:          rec.Time,
			Probabilities: make(map[string]float64, len(rec.Scores)),
			Importance:    make(map[string]float64, len(rec.Importance)),
		}
		for _, sc := range rec.Scores {
			att.Probabilities[sc.Regime] = sc.Probability
		}
		for j, v := range rec.Importance {
			att.Importance[res.Variables[j]] = v
		}
		out.Attribution = att
	}
	return out
}

func last(s domain.Series) *Reading {
	if s.Len() == 0 {
		return nil
	}
	p := s.Points[s.Len()-1]
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return nil
	}
	return &Reading{Time: p.Time, Value: p.Value}
}
