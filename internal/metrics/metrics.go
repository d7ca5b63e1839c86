// Package metrics exposes Prometheus metrics for the risk estimators.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the risk service
type Registry struct {
	registry *prometheus.Registry

	// Estimator runs
	EstimatorDuration *prometheus.HistogramVec
	WindowsEvaluated  *prometheus.CounterVec

	// Marcenko-Pastur fits that fell back to the sample covariance
	DenoiseFallbacks prometheus.Counter

	// Snapshots
	SnapshotsTotal   *prometheus.CounterVec
	LastSnapshotTime prometheus.Gauge
}

// NewRegistry creates a registry with the risk metrics and the Go runtime collectors
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		EstimatorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "systemicrisk_estimator_duration_seconds",
				Help:    "Duration of each estimator run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"estimator", "result"},
		),

		WindowsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "systemicrisk_windows_evaluated_total",
				Help: "Total number of rolling windows evaluated by estimator",
			},
			[]string{"estimator"},
		),

		DenoiseFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "systemicrisk_denoise_fallbacks_total",
				Help: "Total number of Marcenko-Pastur fits that did not converge",
			},
		),

		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "systemicrisk_snapshots_total",
				Help: "Total number of snapshot refreshes by result",
			},
			[]string{"result"},
		),

		LastSnapshotTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "systemicrisk_last_snapshot_timestamp_seconds",
				Help: "Unix time of the last successful snapshot",
			},
		),
	}

	r.registry.MustRegister(
		r.EstimatorDuration,
		r.WindowsEvaluated,
		r.DenoiseFallbacks,
		r.SnapshotsTotal,
		r.LastSnapshotTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// ObserveEstimator records the duration and outcome of an estimator run
func (r *Registry) ObserveEstimator(estimator string, elapsed time.Duration, err error) {
	r.EstimatorDuration.WithLabelValues(estimator, result(err)).Observe(elapsed.Seconds())
}

// AddWindows counts evaluated windows
func (r *Registry) AddWindows(estimator string, n int) {
	if n > 0 {
		r.WindowsEvaluated.WithLabelValues(estimator).Add(float64(n))
	}
}

// AddDenoiseFallbacks counts non-converged denoising fits
func (r *Registry) AddDenoiseFallbacks(n int) {
	if n > 0 {
		r.DenoiseFallbacks.Add(float64(n))
	}
}

// RecordSnapshot records a snapshot refresh
func (r *Registry) RecordSnapshot(at time.Time, err error) {
	r.SnapshotsTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		r.LastSnapshotTime.Set(float64(at.Unix()))
	}
}

// Handler returns the /metrics HTTP handler
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
