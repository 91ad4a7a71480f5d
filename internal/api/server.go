// Package api wires the HTTP surfaces (data plane, control plane, status
// plane, and metrics) into one server with graceful shutdown, grounded on
// the teacher's listen/serve/drain lifecycle.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nickgerrer/stream-proxy/internal/control"
	"github.com/nickgerrer/stream-proxy/internal/metrics"
	"github.com/nickgerrer/stream-proxy/internal/session"
	"github.com/nickgerrer/stream-proxy/internal/status"
)

// Server owns the main HTTP listener and the standalone metrics listener.
type Server struct {
	logger zerolog.Logger

	main    *http.Server
	metrics *http.Server

	drainPeriod time.Duration
}

// Config configures Server construction.
type Config struct {
	Addr                string
	MetricsAddr         string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	ShutdownDrainPeriod time.Duration
}

// New builds a Server, wiring the data-plane session handler, the
// control-plane and status-plane handlers, and a separate metrics listener.
func New(cfg Config, sessionHandler *session.Handler, controlHandler *control.Handler, statusHandler *status.Handler, reg *metrics.Registry, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stream/{channel_id}", sessionHandler.ServeStream)

	mux.HandleFunc("PUT /control/v1/channels/{channel_id}", controlHandler.PutChannel)
	mux.HandleFunc("DELETE /control/v1/channels/{channel_id}", controlHandler.DeleteChannel)
	mux.HandleFunc("PUT /control/v1/accounts/{account_id}", controlHandler.PutAccount)
	mux.HandleFunc("POST /control/v1/sync", controlHandler.Sync)

	mux.HandleFunc("GET /status/v1/channels", statusHandler.ListChannels)
	mux.HandleFunc("GET /status/v1/channels/{channel_id}", statusHandler.GetChannel)
	mux.HandleFunc("GET /status/v1/health", statusHandler.Health)

	mainSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	metricsMux := http.NewServeMux()
	if reg != nil {
		metricsMux.Handle("GET /metrics", reg.Handler())
	}
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	drain := cfg.ShutdownDrainPeriod
	if drain <= 0 {
		drain = 30 * time.Second
	}

	return &Server{logger: logger, main: mainSrv, metrics: metricsSrv, drainPeriod: drain}
}

// Run starts both listeners and blocks until one of them fails to serve.
// A nil return only happens via Shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info().Str("addr", s.main.Addr).Msg("data/control/status plane listening")
		if err := s.main.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("main server: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		s.logger.Info().Str("addr", s.metrics.Addr).Msg("metrics plane listening")
		if err := s.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	return <-errCh
}

// Shutdown drains in-flight requests up to the configured drain period, then
// force-closes both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Dur("drain_period", s.drainPeriod).Msg("shutting down http servers")

	drainCtx, cancel := context.WithTimeout(ctx, s.drainPeriod)
	defer cancel()

	var firstErr error
	if err := s.main.Shutdown(drainCtx); err != nil {
		firstErr = fmt.Errorf("shutdown main server: %w", err)
		_ = s.main.Close()
	}
	if err := s.metrics.Shutdown(drainCtx); err != nil {
		_ = s.metrics.Close()
		if firstErr == nil {
			firstErr = fmt.Errorf("shutdown metrics server: %w", err)
		}
	}
	return firstErr
}
