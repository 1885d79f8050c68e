// Package api exposes a loopback debug/status HTTP server: health,
// Prometheus metrics and the registered service list.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/config"
	"github.com/marmos91/gobinder/pkg/metrics"
)

// ServiceLister supplies the service names reported by /v1/services.
//
// The binder transport is single-threaded, so implementations backed by a
// live client must serialize access themselves; static snapshots are fine
// for hosting processes.
type ServiceLister interface {
	ListServices(dumpPriority uint32) ([]string, error)
}

// StaticLister is a fixed-name ServiceLister for hosting processes that
// know what they registered.
type StaticLister []string

// ListServices returns the static name list.
func (l StaticLister) ListServices(uint32) ([]string, error) {
	return append([]string(nil), l...), nil
}

// Server is the debug/status HTTP server.
type Server struct {
	cfg    config.APIConfig
	lister ServiceLister
	srv    *http.Server
}

// New builds the server; it does not bind until Start.
func New(cfg config.APIConfig, lister ServiceLister) *Server {
	s := &Server{cfg: cfg, lister: lister}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// routes assembles the router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/services", s.handleServices)

	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("status api listening", "listen_addr", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reg := metrics.GetRegistry()
	if reg == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		http.Error(w, "service listing unavailable", http.StatusNotFound)
		return
	}
	names, err := s.lister.ListServices(0)
	if err != nil {
		logger.Error("list services failed", logger.Err(err))
		http.Error(w, "list services failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": names})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request with its duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyDurationMs, logger.Duration(start))
	})
}
