// Package services provides the risk service that turns configured datasets
// into indicator snapshots.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/systemicrisk/internal/config"
	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/events"
	"github.com/aristath/systemicrisk/internal/metrics"
	"github.com/aristath/systemicrisk/internal/modules/absorption"
	"github.com/aristath/systemicrisk/internal/modules/attribution"
	"github.com/aristath/systemicrisk/internal/modules/dataset"
	"github.com/aristath/systemicrisk/internal/modules/denoise"
	"github.com/aristath/systemicrisk/internal/modules/rolling"
	"github.com/aristath/systemicrisk/internal/modules/turbulence"
	"github.com/aristath/systemicrisk/internal/workers"
)

// Indicator names addressable through Table.
const (
	AbsorptionIndicator = "absorption"
	TurbulenceIndicator = "turbulence"

	// AttributionKey is the pseudo-dataset holding the attribution tables.
	AttributionKey = "attribution"

	moduleName = "risk"
)

var (
	// ErrNoSnapshot is returned before the first successful refresh
	ErrNoSnapshot = errors.New("no snapshot available")
	// ErrNotFound is returned for unknown datasets or indicators
	ErrNotFound = errors.New("not found")
)

// IndicatorSet holds the indicators computed for one return dataset.
type IndicatorSet struct {
	Variables    []string
	Observations int
	Absorption   *absorption.Result
	Turbulence   *turbulence.Result
}

// Snapshot is one complete refresh of every configured dataset.
type Snapshot struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Duration    time.Duration
	Datasets    map[string]*IndicatorSet
	Attribution *attribution.Result
	Errors      map[string]string // dataset name -> failure
}

// RiskService computes indicators for the configured datasets and keeps the
// latest snapshot in memory.
type RiskService struct {
	cfg     *config.Config
	pool    *workers.WorkerPool
	runner  *rolling.Runner
	metrics *metrics.Registry
	events  *events.Manager
	log     zerolog.Logger

	refreshMu sync.Mutex
	mu        sync.RWMutex
	latest    *Snapshot
}

// NewRiskService creates a risk service. metrics and eventManager may be nil.
func NewRiskService(
	cfg *config.Config,
	pool *workers.WorkerPool,
	metricsRegistry *metrics.Registry,
	eventManager *events.Manager,
	log zerolog.Logger,
) *RiskService {
	if pool == nil {
		pool = workers.NewWorkerPool(cfg.Workers)
	}
	return &RiskService{
		cfg:     cfg,
		pool:    pool,
		runner:  rolling.NewRunner(pool, log),
		metrics: metricsRegistry,
		events:  eventManager,
		log:     log.With().Str("service", "risk").Logger(),
	}
}

// Latest returns the most recent snapshot
func (s *RiskService) Latest() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNoSnapshot
	}
	return s.latest, nil
}

// Refresh recomputes every configured dataset. Per-dataset failures are kept
// in Snapshot.Errors; Refresh fails only when nothing could be computed or
// ctx is done. The previous snapshot stays current on failure.
func (s *RiskService) Refresh(ctx context.Context, trigger string) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	s.emit(&events.RefreshStartedData{Trigger: trigger})

	snap := &Snapshot{
		ID:       uuid.New(),
		Datasets: make(map[string]*IndicatorSet),
		Errors:   make(map[string]string),
	}

	for _, ds := range s.cfg.ReturnDatasets {
		set, err := s.computeDataset(ctx, ds)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.fail(start, fmt.Errorf("refresh cancelled: %w", ctxErr))
		}
		if err != nil {
			s.log.Error().Err(err).Str("dataset", ds.Name).Msg("Failed to compute dataset indicators")
			snap.Errors[ds.Name] = err.Error()
			continue
		}
		snap.Datasets[ds.Name] = set
	}

	if s.cfg.AttributionDataset != "" {
		res, err := s.computeAttribution(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.fail(start, fmt.Errorf("refresh cancelled: %w", ctxErr))
		}
		if err != nil {
			s.log.Error().Err(err).Str("dataset", s.cfg.AttributionDataset).Msg("Failed to compute regime attribution")
			snap.Errors[AttributionKey] = err.Error()
		} else {
			snap.Attribution = res
		}
	}

	if len(snap.Datasets) == 0 && snap.Attribution == nil && len(snap.Errors) > 0 {
		return nil, s.fail(start, fmt.Errorf("all %d datasets failed", len(snap.Errors)))
	}

	snap.CreatedAt = time.Now()
	snap.Duration = snap.CreatedAt.Sub(start)

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSnapshot(snap.CreatedAt, nil)
	}
	s.emit(&events.SnapshotCreatedData{
		SnapshotID: snap.ID.String(),
		Datasets:   snap.Names(),
		Failed:     sortedKeys(snap.Errors),
		DurationMs: snap.Duration.Milliseconds(),
	})

	s.log.Info().
		Str("snapshot_id", snap.ID.String()).
		Int("datasets", len(snap.Datasets)).
		Int("failed", len(snap.Errors)).
		Bool("attribution", snap.Attribution != nil).
		Dur("elapsed", snap.Duration).
		Msg("Snapshot refreshed")

	return snap, nil
}

func (s *RiskService) fail(start time.Time, err error) error {
	if s.metrics != nil {
		s.metrics.RecordSnapshot(time.Now(), err)
	}
	s.emit(&events.RefreshFailedData{Error: err.Error()})
	s.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Snapshot refresh failed")
	return err
}

func (s *RiskService) emit(data events.EventData) {
	if s.events != nil {
		s.events.Emit(moduleName, data)
	}
}

func (s *RiskService) computeDataset(ctx context.Context, ds config.Dataset) (*IndicatorSet, error) {
	m, err := s.LoadReturns(ds.File)
	if err != nil {
		return nil, err
	}

	ar, err := s.ComputeAbsorption(ctx, m, s.cfg.Absorption())
	if err != nil {
		return nil, fmt.Errorf("absorption ratio: %w", err)
	}
	turb, err := s.ComputeTurbulence(ctx, m, s.cfg.Turbulence())
	if err != nil {
		return nil, fmt.Errorf("turbulence: %w", err)
	}

	return &IndicatorSet{
		Variables:    m.Columns,
		Observations: m.Len(),
		Absorption:   ar,
		Turbulence:   turb,
	}, nil
}

func (s *RiskService) computeAttribution(ctx context.Context) (*attribution.Result, error) {
	raw, err := dataset.Load(s.cfg.DatasetPath(s.cfg.AttributionDataset), "")
	if err != nil {
		return nil, err
	}
	frame, err := s.cfg.AttributionPreparation().Apply(raw)
	if err != nil {
		return nil, fmt.Errorf("prepare attribution dataset: %w", err)
	}
	if frame.Len() < raw.Len() {
		s.log.Debug().
			Int("rows", raw.Len()).
			Int("kept", frame.Len()).
			Msg("Dropped incomplete attribution rows")
	}
	cfg := s.cfg.Attribution()
	obs, err := attribution.FromFrame(frame, cfg)
	if err != nil {
		return nil, err
	}
	return s.ComputeAttribution(ctx, obs, cfg)
}

// LoadReturns loads a dataset file under the data directory as a return matrix,
// converting prices to simple returns unless the inputs already are returns.
func (s *RiskService) LoadReturns(file string) (*domain.ReturnMatrix, error) {
	frame, err := dataset.Load(s.cfg.DatasetPath(file), "")
	if err != nil {
		return nil, err
	}
	if s.cfg.PricesAreReturns {
		return frame.DropIncomplete().ReturnMatrix()
	}
	return frame.Returns()
}

// ComputeAbsorption runs the absorption ratio estimator with cfg.
func (s *RiskService) ComputeAbsorption(ctx context.Context, m *domain.ReturnMatrix, cfg absorption.Config) (*absorption.Result, error) {
	start := time.Now()
	est, err := absorption.NewEstimator(cfg, s.runner, s.log)
	if err != nil {
		return nil, err
	}
	res, err := est.Estimate(ctx, m)
	s.observe(absorption.RawSeries, start, err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddWindows(absorption.RawSeries, res.Raw.Len())
		s.metrics.AddDenoiseFallbacks(res.FallbackWindows)
	}
	return res, nil
}

// ComputeTurbulence runs the turbulence estimator with cfg.
func (s *RiskService) ComputeTurbulence(ctx context.Context, m *domain.ReturnMatrix, cfg turbulence.Config) (*turbulence.Result, error) {
	start := time.Now()
	est, err := turbulence.NewEstimator(cfg, s.runner, s.log)
	if err != nil {
		return nil, err
	}
	res, err := est.Estimate(ctx, m)
	s.observe(turbulence.RawSeries, start, err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddWindows(turbulence.RawSeries, res.Raw.Len())
	}
	return res, nil
}

// ComputeDenoise denoises the sample covariance of m with cfg.
func (s *RiskService) ComputeDenoise(m *domain.ReturnMatrix, cfg denoise.Config) (*denoise.Result, error) {
	start := time.Now()
	d, err := denoise.NewDenoiser(cfg, s.log)
	if err != nil {
		return nil, err
	}
	res, err := d.DenoiseReturns(m)
	s.observe("rmt_denoiser", start, err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil && res.Fallback {
		s.metrics.AddDenoiseFallbacks(1)
	}
	return res, nil
}

// ComputeAttribution runs regime attribution over obs with cfg.
func (s *RiskService) ComputeAttribution(ctx context.Context, obs []attribution.Observation, cfg attribution.Config) (*attribution.Result, error) {
	start := time.Now()
	engine, err := attribution.NewEngine(cfg, s.pool, s.log)
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(ctx, obs)
	s.observe("regime_attribution", start, err)
	return res, err
}

func (s *RiskService) observe(estimator string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveEstimator(estimator, time.Since(start), err)
	}
}

// Table renders one indicator of the latest snapshot. For AttributionKey the
// indicator is one of attribution.TableNames.
func (s *RiskService) Table(datasetName, indicator string) (domain.Table, error) {
	snap, err := s.Latest()
	if err != nil {
		return domain.Table{}, err
	}
	return snap.Table(datasetName, indicator)
}

// Table renders one indicator of the snapshot.
func (snap *Snapshot) Table(datasetName, indicator string) (domain.Table, error) {
	if datasetName == AttributionKey {
		if snap.Attribution == nil {
			return domain.Table{}, fmt.Errorf("attribution: %w", ErrNotFound)
		}
		t, ok := snap.Attribution.Table(indicator)
		if !ok {
			return domain.Table{}, fmt.Errorf("attribution table %q: %w", indicator, ErrNotFound)
		}
		return t, nil
	}

	set, ok := snap.Datasets[datasetName]
	if !ok {
		return domain.Table{}, fmt.Errorf("dataset %q: %w", datasetName, ErrNotFound)
	}
	switch indicator {
	case AbsorptionIndicator:
		return domain.AlignTable(set.Absorption.Raw, set.Absorption.Standardized), nil
	case TurbulenceIndicator:
		return domain.AlignTable(set.Turbulence.Raw, set.Turbulence.Threshold, set.Turbulence.Filtered), nil
	}
	return domain.Table{}, fmt.Errorf("indicator %q: %w", indicator, ErrNotFound)
}

// Names returns the computed dataset names in sorted order.
func (snap *Snapshot) Names() []string {
	names := make([]string, 0, len(snap.Datasets))
	for name := range snap.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
