package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/systemicrisk/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:             t.TempDir(),
		Port:                8001,
		WindowSize:          252,
		TurbulenceQuantile:  0.95,
		TurbulenceMinPeriod: 10,
		ShortHorizon:        21,
		LongHorizon:         252,
		ComponentFraction:   0.2,
		RefreshSchedule:     "0 0 6 * * *",
	}
}

func TestWire(t *testing.T) {
	container, jobs, err := Wire(validConfig(t), zerolog.Nop())
	require.NoError(t, err)

	assert.NotNil(t, container.WorkerPool)
	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.RiskService)
	require.NotNil(t, container.Scheduler)
	require.NotNil(t, jobs.Refresh)
	assert.Equal(t, "refresh_snapshot", jobs.Refresh.Name())

	container.Scheduler.Start()
	defer container.Scheduler.Stop()
	entries := container.Scheduler.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "refresh_snapshot", entries[0].Job)
}

func TestWire_ManualOnly(t *testing.T) {
	cfg := validConfig(t)
	cfg.RefreshSchedule = ""

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, jobs.Refresh)

	container.Scheduler.Start()
	defer container.Scheduler.Stop()
	assert.Empty(t, container.Scheduler.Entries())
}

func TestWire_Errors(t *testing.T) {
	_, _, err := Wire(nil, zerolog.Nop())
	assert.Error(t, err)

	cfg := validConfig(t)
	cfg.TurbulenceQuantile = 2
	_, _, err = Wire(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg = validConfig(t)
	cfg.RefreshSchedule = "every tuesday"
	_, _, err = Wire(cfg, zerolog.Nop())
	assert.Error(t, err)

	_, err = RegisterJobs(&Container{})
	assert.Error(t, err)
}
