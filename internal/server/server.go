// Package server provides the HTTP server and routing for the risk service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/systemicrisk/internal/events"
	"github.com/aristath/systemicrisk/internal/metrics"
	"github.com/aristath/systemicrisk/internal/scheduler"
	"github.com/aristath/systemicrisk/internal/services"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	Service    *services.RiskService
	Scheduler  *scheduler.Scheduler // optional, reported by /api/system/status
	RefreshJob scheduler.Job        // run by POST /api/refresh
	Metrics    *metrics.Registry    // optional, serves /metrics
	EventBus   *events.Bus          // optional, feeds /api/stream
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	port       int
	service    *services.RiskService
	scheduler  *scheduler.Scheduler
	refreshJob scheduler.Job
	metrics    *metrics.Registry
	eventBus   *events.Bus
	startedAt  time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		port:       cfg.Port,
		service:    cfg.Service,
		scheduler:  cfg.Scheduler,
		refreshJob: cfg.RefreshJob,
		metrics:    cfg.Metrics,
		eventBus:   cfg.EventBus,
		startedAt:  time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// The stream is long-lived and must stay outside the request timeout
		if s.eventBus != nil {
			r.Get("/stream", NewEventsStreamHandler(s.eventBus, s.log).ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/system/status", s.handleSystemStatus)

			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/snapshot/{dataset}/{indicator}", s.handleSnapshotTable)
			r.Post("/refresh", s.handleRefresh)

			r.Route("/compute", func(r chi.Router) {
				r.Post("/absorption", s.handleComputeAbsorption)
				r.Post("/turbulence", s.handleComputeTurbulence)
				r.Post("/denoise", s.handleComputeDenoise)
				r.Post("/attribution", s.handleComputeAttribution)
			})
		})
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
