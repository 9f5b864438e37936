package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelbrown/crucible/internal/artifact"
	"github.com/michaelbrown/crucible/internal/config"
	"github.com/michaelbrown/crucible/internal/sandbox"
	"github.com/michaelbrown/crucible/internal/storage"
	"github.com/michaelbrown/crucible/internal/worker"
)

// Server is the HTTP front end of the execution service.
type Server struct {
	cfg       *config.Config
	policy    sandbox.Policy
	pool      *worker.Pool
	store     storage.Store
	artifacts *artifact.Store
	limiter   *RateLimiter
	logger    *slog.Logger
	router    chi.Router
	http      *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, policy sandbox.Policy, pool *worker.Pool, store storage.Store, artifacts *artifact.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		policy:    policy,
		pool:      pool,
		store:     store,
		artifacts: artifacts,
		limiter: NewRateLimiter(
			cfg.RateLimit.GlobalRPS,
			cfg.RateLimit.PerIPRPS,
			cfg.RateLimit.PerIPBurst,
			cfg.RateLimit.MaxConcurrent,
		),
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		// Execution
		r.With(s.limiter.Middleware).Post("/runs", s.handleCreateRun)

		// History
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Delete("/runs/{id}", s.handleDeleteRun)
		r.Get("/runs/{id}/image", s.handleGetRunImage)

		// WebSocket (no JSON content-type)
		r.Get("/ws", s.handleWebSocket)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info("crucible server starting", slog.String("addr", addr))
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
