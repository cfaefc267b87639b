// Package server exposes run health, progress and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusServer serves /healthz, /readyz, /progress and /metrics while a run is active
type StatusServer struct {
	server   *http.Server
	router   *chi.Mux
	progress *Progress
	logger   *slog.Logger
}

// StatusServerConfig holds configuration for the status server
type StatusServerConfig struct {
	Addr     string // e.g. ":9100"
	Progress *Progress
	Gatherer prometheus.Gatherer // nil uses the default registry
	Logger   *slog.Logger
}

// NewStatusServer creates a new status server
func NewStatusServer(cfg StatusServerConfig) *StatusServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	progress := cfg.Progress
	if progress == nil {
		progress = NewProgress(0)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler(progress))
	router.Get("/progress", progressHandler(progress))
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &StatusServer{
		server:   server,
		router:   router,
		progress: progress,
		logger:   logger,
	}
}

// Handler returns the router
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// Start starts the status server and blocks until it stops
func (s *StatusServer) Start() error {
	s.logger.Info("starting status server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the status server
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown error: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

// requestLoggingMiddleware logs HTTP requests at debug level
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler reports ready while the run is processing examples
func readinessCheckHandler(p *Progress) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := p.Snapshot().State
		if state != StateRunning {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": state})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// progressHandler returns the current run snapshot
func progressHandler(p *Progress) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Snapshot())
	}
}
