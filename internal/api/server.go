package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openbioscience/finch/internal/dispatch"
	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/enrich"
	"github.com/openbioscience/finch/internal/metrics"
	"github.com/openbioscience/finch/internal/registry"
	"github.com/openbioscience/finch/internal/resolver"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, reg *registry.Registry, executor dispatch.Executor, dispatcher *dispatch.Dispatcher, res *resolver.Resolver, engine *enrich.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(reg, executor, dispatcher, res, engine, repo, cache, bus, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and observability endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	// API routes
	router.Route("/v1", func(r chi.Router) {
		// Query execution
		r.Post("/query", handler.Query)
		r.Post("/batch", handler.Batch)

		// Identifier resolution
		r.Post("/resolve", handler.Resolve)

		// Enrichment analysis
		r.Post("/enrich", handler.Enrich)
		r.Post("/enrich/async", handler.EnrichAsync)

		// Persisted runs
		r.Get("/runs", handler.ListRuns)
		r.Get("/runs/{id}", handler.GetRun)

		// Registry listings
		r.Get("/databases", handler.ListDatabases)
		r.Get("/organisms", handler.ListOrganisms)

		// Service statistics
		r.Get("/stats", handler.Stats)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
