package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-utility/dipper/internal/domain"
	"github.com/opensource-utility/dipper/internal/highlight"
	"github.com/opensource-utility/dipper/internal/session"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, registry *session.Registry, newSource func(tenantID string) domain.AnomalySource, journal domain.Journal, cache domain.Cache, engine *highlight.Engine, version string) *Server {
	handler := NewHandler(registry, newSource, journal, cache, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Anomaly worklist
		r.Get("/anomalies", handler.ListAnomalies)
		r.Get("/anomalies/view", handler.AnomalyListView)

		// Review sessions
		r.Post("/sessions", handler.CreateSession)
		r.Get("/sessions/{id}", handler.GetSession)
		r.Delete("/sessions/{id}", handler.DeleteSession)
		r.Get("/sessions/{id}/view", handler.SessionView)

		// Session commands
		r.Post("/sessions/{id}/select", handler.SelectAnomaly)
		r.Post("/sessions/{id}/status", handler.SetStatus)
		r.Post("/sessions/{id}/remark", handler.SetRemark)
		r.Post("/sessions/{id}/submit", handler.Submit)
		r.Post("/sessions/{id}/clear", handler.Clear)

		// Audit trail
		r.Get("/audits", handler.ListAudits)
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
