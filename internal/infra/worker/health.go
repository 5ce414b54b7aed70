package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compintel/internal/resilience/circuitbreaker"
)

// AdminServer serves the worker's operational endpoints:
//   - /health: liveness probe, always 200
//   - /health/ready: readiness probe, 200 once initialized, else 503
//   - /health/services: per-service circuit breaker state as JSON
//   - /metrics: Prometheus exposition
//
// The server shuts down gracefully when the context is cancelled.
type AdminServer struct {
	addr     string
	logger   *slog.Logger
	breakers *circuitbreaker.Registry
	isReady  *atomic.Bool
	server   *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewAdminServer creates an admin server that is not yet started and
// not yet ready. Pass nil for breakers if no registry exists; the
// services endpoint then reports an empty list.
func NewAdminServer(addr string, logger *slog.Logger, breakers *circuitbreaker.Registry) *AdminServer {
	isReady := &atomic.Bool{}
	return &AdminServer{
		addr:     addr,
		logger:   logger,
		breakers: breakers,
		isReady:  isReady,
	}
}

// Start runs the server until the context is cancelled or the listener
// fails. Graceful shutdown is bounded at 5 seconds. Returns
// http.ErrServerClosed on clean shutdown, matching ListenAndServe.
func (s *AdminServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)
	mux.HandleFunc("/health/services", s.handleServices)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("admin server starting", slog.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("admin server shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("admin server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if err != http.ErrServerClosed {
			s.logger.Error("admin server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady flips the readiness probe. Call with true after startup
// completes and false before shutdown.
func (s *AdminServer) SetReady(ready bool) {
	s.isReady.Store(ready)
	s.logger.Info("admin server readiness changed", slog.Bool("ready", ready))
}

func (s *AdminServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *AdminServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady.Load() {
		s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

// handleServices reports the circuit breaker state of every external
// service. An open breaker is visible here before it shows up in run
// records, which makes this the first place to look when a run
// degrades.
func (s *AdminServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.breakers == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.breakers.Health())
}

func (s *AdminServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
