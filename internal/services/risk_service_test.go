package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/systemicrisk/internal/config"
	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/events"
	"github.com/aristath/systemicrisk/internal/metrics"
	"github.com/aristath/systemicrisk/internal/modules/absorption"
	"github.com/aristath/systemicrisk/internal/modules/attribution"
	"github.com/aristath/systemicrisk/internal/modules/dataset"
	"github.com/aristath/systemicrisk/internal/modules/denoise"
	"github.com/aristath/systemicrisk/internal/modules/turbulence"
	testingpkg "github.com/aristath/systemicrisk/internal/testing"
	"github.com/aristath/systemicrisk/internal/workers"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		DataDir:             dir,
		Port:                8001,
		WindowSize:          60,
		TurbulenceQuantile:  0.95,
		TurbulenceMinPeriod: 10,
		ShortHorizon:        5,
		LongHorizon:         20,
		ComponentFraction:   0.2,
		DenoiseBandwidth:    denoise.DefaultBandwidth,
		PricesAreReturns:    true,
		AttributionLabel:    "recession",
		AttributionVars:     []string{"x", "y"},
	}
}

// writeInputs writes a 300x6 return dataset and a two-regime attribution dataset.
func writeInputs(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, testingpkg.WriteReturnsCSV(filepath.Join(dir, "equities.csv"), testingpkg.FactorReturns(11, 300, 6)))

	columns, rows := testingpkg.RegimeRows(5, 60)
	times := testingpkg.Days(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), len(rows))
	require.NoError(t, testingpkg.WriteCSV(filepath.Join(dir, "macro.csv"), times, columns, rows))
}

// writeSparseMacro writes the two-regime attribution dataset with one missing y.
func writeSparseMacro(t *testing.T, dir string) {
	t.Helper()
	columns, rows := testingpkg.RegimeRows(5, 60)
	rows[7][1] = math.NaN()
	times := testingpkg.Days(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), len(rows))
	require.NoError(t, testingpkg.WriteCSV(filepath.Join(dir, "macro.csv"), times, columns, rows))
}

func TestRefresh_AttributionDropsIncompleteRows(t *testing.T) {
	dir := t.TempDir()
	writeSparseMacro(t, dir)

	cfg := testConfig(dir)
	cfg.AttributionDataset = "macro.csv"
	svc, _, _ := newTestService(t, cfg)

	snap, err := svc.Refresh(context.Background(), "test")
	require.NoError(t, err)
	require.NotNil(t, snap.Attribution)
	assert.Len(t, snap.Attribution.Records, 119)
	assert.Equal(t, []string{"0", "1"}, snap.Attribution.Regimes)
}

func TestRefresh_AttributionPreparation(t *testing.T) {
	dir := t.TempDir()
	writeSparseMacro(t, dir)

	cfg := testConfig(dir)
	cfg.AttributionDataset = "macro.csv"
	cfg.AttributionForwardFill = true
	cfg.AttributionSmooth = []dataset.ColumnStep{{Column: "x", Periods: 3}}
	svc, _, _ := newTestService(t, cfg)

	snap, err := svc.Refresh(context.Background(), "test")
	require.NoError(t, err)
	require.NotNil(t, snap.Attribution)
	// the gap is filled; the first two rows lack smoothing history
	assert.Len(t, snap.Attribution.Records, 118)

	cfg.AttributionSmooth = []dataset.ColumnStep{{Column: "gdp", Periods: 3}}
	_, err = svc.computeAttribution(context.Background())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) handle(e *events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestService(t *testing.T, cfg *config.Config) (*RiskService, *metrics.Registry, *recorder) {
	t.Helper()
	reg := metrics.NewRegistry()
	bus := events.NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	svc := NewRiskService(cfg, workers.NewWorkerPool(4), reg, events.NewManager(bus, zerolog.Nop()), zerolog.Nop())
	return svc, reg, rec
}

func TestRefresh_ComputesEveryDataset(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)

	cfg := testConfig(dir)
	cfg.ReturnDatasets = []config.Dataset{{Name: "equities", File: "equities.csv"}}
	cfg.AttributionDataset = "macro.csv"

	svc, reg, rec := newTestService(t, cfg)

	_, err := svc.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap, err := svc.Refresh(context.Background(), "test")
	require.NoError(t, err)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, []string{"equities"}, snap.Names())

	set := snap.Datasets["equities"]
	require.NotNil(t, set)
	assert.Equal(t, 300, set.Observations)
	assert.Equal(t, 241, set.Absorption.Raw.Len())
	assert.Equal(t, 1, set.Absorption.Components)
	assert.Equal(t, 241, set.Turbulence.Raw.Len())

	require.NotNil(t, snap.Attribution)
	assert.Equal(t, []string{"0", "1"}, snap.Attribution.Regimes)
	assert.Len(t, snap.Attribution.Records, 120)

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)

	assert.Equal(t, []events.EventType{events.RefreshStarted, events.SnapshotCreated}, rec.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SnapshotsTotal.WithLabelValues("success")))
	assert.Equal(t, 241.0, testutil.ToFloat64(reg.WindowsEvaluated.WithLabelValues(absorption.RawSeries)))
	assert.Equal(t, 241.0, testutil.ToFloat64(reg.WindowsEvaluated.WithLabelValues(turbulence.RawSeries)))
}

func TestRefresh_KeepsPartialResults(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)

	cfg := testConfig(dir)
	cfg.ReturnDatasets = []config.Dataset{
		{Name: "equities", File: "equities.csv"},
		{Name: "missing", File: "missing.csv"},
	}

	svc, _, _ := newTestService(t, cfg)
	snap, err := svc.Refresh(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, []string{"equities"}, snap.Names())
	assert.Contains(t, snap.Errors, "missing")
	assert.Nil(t, snap.Attribution)
}

func TestRefresh_AllFailed(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.ReturnDatasets = []config.Dataset{{Name: "missing", File: "missing.csv"}}

	svc, reg, rec := newTestService(t, cfg)
	_, err := svc.Refresh(context.Background(), "test")
	require.Error(t, err)

	_, err = svc.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Equal(t, []events.EventType{events.RefreshStarted, events.RefreshFailed}, rec.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SnapshotsTotal.WithLabelValues("error")))
}

func TestRefresh_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	cfg := testConfig(dir)
	cfg.ReturnDatasets = []config.Dataset{{Name: "equities", File: "equities.csv"}}

	svc, _, _ := newTestService(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Refresh(ctx, "test")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTable(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	cfg := testConfig(dir)
	cfg.ReturnDatasets = []config.Dataset{{Name: "equities", File: "equities.csv"}}
	cfg.AttributionDataset = "macro.csv"

	svc, _, _ := newTestService(t, cfg)
	_, err := svc.Table("equities", AbsorptionIndicator)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = svc.Refresh(context.Background(), "test")
	require.NoError(t, err)

	ar, err := svc.Table("equities", AbsorptionIndicator)
	require.NoError(t, err)
	assert.Equal(t, []string{absorption.RawSeries, absorption.StandardizedSeries}, ar.Columns)
	assert.Len(t, ar.Index, 241)
	// standardization needs LongHorizon raw values first
	assert.True(t, math.IsNaN(ar.Values[0][1]))

	turb, err := svc.Table("equities", TurbulenceIndicator)
	require.NoError(t, err)
	assert.Equal(t, []string{turbulence.RawSeries, turbulence.ThresholdSeries, turbulence.FilteredSeries}, turb.Columns)

	prob, err := svc.Table(AttributionKey, attribution.ProbabilityTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, prob.Columns)

	for _, tc := range [][2]string{{"bonds", AbsorptionIndicator}, {"equities", "volatility"}, {AttributionKey, "nope"}} {
		_, err := svc.Table(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrNotFound, tc)
	}
}

func TestSummary(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	cfg := testConfig(dir)
	cfg.ReturnDatasets = []config.Dataset{{Name: "equities", File: "equities.csv"}}
	cfg.AttributionDataset = "macro.csv"

	svc, _, _ := newTestService(t, cfg)
	snap, err := svc.Refresh(context.Background(), "test")
	require.NoError(t, err)

	sum := snap.Summary()
	assert.Equal(t, snap.ID.String(), sum.ID)

	eq := sum.Datasets["equities"]
	require.NotNil(t, eq.AbsorptionRatio)
	assert.True(t, eq.AbsorptionRatio.Value > 0 && eq.AbsorptionRatio.Value <= 1)
	require.NotNil(t, eq.Turbulence)
	assert.GreaterOrEqual(t, eq.Turbulence.Value, 0.0)

	require.NotNil(t, sum.Attribution)
	assert.InDelta(t, 1.0, sum.Attribution.Probabilities["0"]+sum.Attribution.Probabilities["1"], 1e-9)
	assert.Greater(t, sum.Attribution.Probabilities["1"], 0.99)
	var total float64
	for _, v := range sum.Attribution.Importance {
		total += math.Abs(v)
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestComputeMethods(t *testing.T) {
	svc, reg, _ := newTestService(t, testConfig(t.TempDir()))
	ctx := context.Background()
	m := testingpkg.FactorReturns(3, 150, 5)

	_, err := svc.ComputeAbsorption(ctx, m, absorption.Config{WindowSize: 5, ComponentFraction: 0.2, ShortHorizon: 5, LongHorizon: 20})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	ar, err := svc.ComputeAbsorption(ctx, m, absorption.Config{WindowSize: 50, ComponentFraction: 0.2, ShortHorizon: 5, LongHorizon: 20})
	require.NoError(t, err)
	assert.Equal(t, 101, ar.Raw.Len())

	turb, err := svc.ComputeTurbulence(ctx, m, turbulence.Config{WindowSize: 50, Quantile: 0.95, MinPeriods: 10})
	require.NoError(t, err)
	assert.Equal(t, 101, turb.Raw.Len())

	dn, err := svc.ComputeDenoise(m, denoise.DefaultConfig())
	require.NoError(t, err)
	r, _ := dn.Covariance.Dims()
	assert.Equal(t, 5, r)

	// absorption error and success, turbulence, denoise
	assert.Equal(t, 4, testutil.CollectAndCount(reg.EstimatorDuration))
}
