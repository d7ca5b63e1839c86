package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/systemicrisk/internal/config"
	"github.com/aristath/systemicrisk/internal/events"
	"github.com/aristath/systemicrisk/internal/metrics"
	"github.com/aristath/systemicrisk/internal/scheduler"
	"github.com/aristath/systemicrisk/internal/services"
	"github.com/aristath/systemicrisk/internal/workers"
)

// RefreshTimeout bounds a single snapshot refresh
const RefreshTimeout = 10 * time.Minute

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize infrastructure (worker pool, metrics, event bus)
// 2. Initialize services
// 3. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	container := InitializeInfrastructure(cfg, log)
	InitializeServices(container)

	jobs, err := RegisterJobs(container)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}

// InitializeInfrastructure creates the shared worker pool, metrics registry and event bus
func InitializeInfrastructure(cfg *config.Config, log zerolog.Logger) *Container {
	bus := events.NewBus()
	return &Container{
		Config:       cfg,
		Log:          log,
		WorkerPool:   workers.NewWorkerPool(cfg.Workers),
		Metrics:      metrics.NewRegistry(),
		EventBus:     bus,
		EventManager: events.NewManager(bus, log),
	}
}

// InitializeServices creates the risk service
func InitializeServices(container *Container) {
	container.RiskService = services.NewRiskService(
		container.Config,
		container.WorkerPool,
		container.Metrics,
		container.EventManager,
		container.Log,
	)
}

// RegisterJobs creates the scheduler and registers the refresh job on the
// configured schedule. An empty schedule leaves the job manual-only.
func RegisterJobs(container *Container) (*JobInstances, error) {
	if container == nil || container.RiskService == nil {
		return nil, fmt.Errorf("container must be initialized before registering jobs")
	}

	refresh := scheduler.NewRefreshJob(container.RiskService, RefreshTimeout)
	refresh.SetLogger(container.Log)

	container.Scheduler = scheduler.New(container.Log)
	if schedule := container.Config.RefreshSchedule; schedule != "" {
		if err := container.Scheduler.AddJob(schedule, refresh); err != nil {
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
		}
	}

	return &JobInstances{Refresh: refresh}, nil
}
