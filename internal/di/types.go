// Package di provides dependency injection type definitions.
package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/systemicrisk/internal/config"
	"github.com/aristath/systemicrisk/internal/events"
	"github.com/aristath/systemicrisk/internal/metrics"
	"github.com/aristath/systemicrisk/internal/scheduler"
	"github.com/aristath/systemicrisk/internal/services"
	"github.com/aristath/systemicrisk/internal/workers"
)

// Container holds all dependencies for the application.
// It is created by Wire and is the single source of truth for service instances.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	// Infrastructure
	WorkerPool   *workers.WorkerPool
	Metrics      *metrics.Registry
	EventBus     *events.Bus
	EventManager *events.Manager

	// Services
	RiskService *services.RiskService

	// Scheduling
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the job instances for manual triggering via API
type JobInstances struct {
	Refresh *scheduler.RefreshJob
}
