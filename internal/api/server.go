package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/segments"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *segments.Service, repo domain.Repository, cache domain.Cache, version string) *Server {
	handler := NewHandler(svc, repo, cache, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(MetricsMiddleware)      // Prometheus request metrics
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// Dataset loading
	router.Post("/datasets", handler.LoadDataset)
	router.Get("/customers/{id}", handler.GetCustomer)
	router.Get("/customers/{id}/events", handler.GetCustomerEvents)

	// Segmentation runs
	router.Post("/segmentation/refresh", handler.Refresh)
	router.Get("/snapshots", handler.ListSnapshots)
	router.Get("/snapshots/latest", handler.LatestSnapshot)
	router.Get("/snapshots/{id}", handler.GetSnapshot)

	// Feature vectors and persona assignments
	router.Get("/features", handler.ListFeatures)
	router.Get("/features/{id}", handler.GetFeatures)
	router.Get("/personas", handler.ListPersonas)
	router.Get("/personas/{id}", handler.GetPersona)

	// Segments
	router.Get("/segments", handler.ListSegments)
	router.Get("/segments/{slug}", handler.GetSegment)
	router.Post("/segments/preview", handler.PreviewSegment)

	// What-if simulator
	router.Post("/simulate", handler.Simulate)
	router.Post("/simulate/sweep", handler.Sweep)

	// Journey templates and briefs
	router.Get("/journeys", handler.ListJourneys)
	router.Get("/journeys/{slug}", handler.GetJourney)
	router.Get("/briefs/{slug}", handler.GetBrief)

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
