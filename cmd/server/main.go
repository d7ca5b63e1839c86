// Package main is the entry point for the systemic-risk indicator service.
// It loads the configured datasets, computes absorption ratio, turbulence and
// regime attribution snapshots on a schedule and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/systemicrisk/internal/config"
	"github.com/aristath/systemicrisk/internal/di"
	"github.com/aristath/systemicrisk/internal/server"
	"github.com/aristath/systemicrisk/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("datasets", len(cfg.ReturnDatasets)).
		Bool("attribution", cfg.AttributionDataset != "").
		Msg("Starting systemic risk service")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Service:    container.RiskService,
		Scheduler:  container.Scheduler,
		RefreshJob: jobs.Refresh.WithTrigger("api"),
		Metrics:    container.Metrics,
		EventBus:   container.EventBus,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Initial snapshot so the API has data before the first scheduled run
	go func() {
		if err := container.Scheduler.RunNow(jobs.Refresh.WithTrigger("startup")); err != nil {
			log.Error().Err(err).Msg("Initial snapshot refresh failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
