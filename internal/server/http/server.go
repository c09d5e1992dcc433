// Package httpserver provides the HTTP REST API for the paper digest service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-digest-service/internal/database"
	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/repository"
	"github.com/helixir/paper-digest-service/internal/taskflow"
)

// TaskService is the orchestrator surface the API triggers run against.
// *taskflow.Orchestrator satisfies it.
type TaskService interface {
	RunCrawl(ctx context.Context, trigger domain.TriggerType, params taskflow.CrawlParams) (*domain.TaskRun, error)
	RunAnalyze(ctx context.Context, trigger domain.TriggerType, params taskflow.AnalyzeParams) (*domain.TaskRun, error)
}

// Compile-time interface verification.
var _ TaskService = (*taskflow.Orchestrator)(nil)

// HealthChecker reports database health for the readiness endpoint.
// *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	tasks      TaskService
	papers     repository.PaperRepository
	reports    repository.ReportRepository
	runs       repository.TaskRunRepository
	health     HealthChecker
	validate   *validator.Validate
	logger     zerolog.Logger
	apiKeys    []string
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// APIKeys is the accepted key set for X-API-Key auth. Empty disables
	// authentication.
	APIKeys []string
}

// NewServer creates an HTTP server with all dependencies.
func NewServer(
	cfg Config,
	tasks TaskService,
	papers repository.PaperRepository,
	reports repository.ReportRepository,
	runs repository.TaskRunRepository,
	health HealthChecker,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		tasks:    tasks,
		papers:   papers,
		reports:  reports,
		runs:     runs,
		health:   health,
		validate: validator.New(),
		logger:   logger.With().Str("component", "http-server").Logger(),
		apiKeys:  cfg.APIKeys,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints (no auth)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	// API routes behind API-key auth
	r.Route("/api/v1", func(r chi.Router) {
		if len(s.apiKeys) > 0 {
			r.Use(apiKeyMiddleware(s.apiKeys))
		}

		r.Post("/tasks/crawl", s.triggerCrawl)
		r.Post("/tasks/analyze", s.triggerAnalyze)

		r.Get("/papers", s.listPapers)
		r.Get("/papers/{paperID}", s.getPaper)
		r.Get("/papers/{paperID}/reports", s.listPaperReports)

		r.Get("/task-runs", s.listTaskRuns)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports readiness: the database must answer a ping.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
