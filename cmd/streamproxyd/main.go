// Command streamproxyd runs the live-media fan-out proxy: a single process
// serving data-plane client sessions, control-plane routing/quota mutation,
// and status-plane observability over a shared in-memory state store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/nickgerrer/stream-proxy/internal/api"
	"github.com/nickgerrer/stream-proxy/internal/config"
	"github.com/nickgerrer/stream-proxy/internal/control"
	"github.com/nickgerrer/stream-proxy/internal/logging"
	"github.com/nickgerrer/stream-proxy/internal/metrics"
	"github.com/nickgerrer/stream-proxy/internal/platform"
	"github.com/nickgerrer/stream-proxy/internal/session"
	"github.com/nickgerrer/stream-proxy/internal/status"
	"github.com/nickgerrer/stream-proxy/internal/store"
	"github.com/nickgerrer/stream-proxy/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	reg := metrics.NewRegistry()
	st := store.New()

	httpClient := &http.Client{}
	engine := upstream.NewEngine(st, httpClient, logger, reg, cfg.BroadcastBufferSize)
	engine.FailoverCap = cfg.FailoverCap
	engine.ChunkSize = upstream.ChunkSize

	sessionHandler := session.NewHandler(st, engine, logger, reg, cfg.KeepaliveInterval)
	controlHandler := control.NewHandler(st, logger)
	statusHandler := status.NewHandler(st)

	monitor, err := platform.NewMonitor(reg, logger, cfg.ResourceSampleInterval)
	if err != nil {
		logger.Warn().Err(err).Msg("resource monitor unavailable, continuing without it")
	}

	srv := api.New(api.Config{
		Addr:                cfg.Addr,
		MetricsAddr:         cfg.MetricsAddr,
		ReadTimeout:         cfg.HTTPReadTimeout,
		WriteTimeout:        cfg.HTTPWriteTimeout,
		IdleTimeout:         cfg.HTTPIdleTimeout,
		ShutdownDrainPeriod: cfg.ShutdownDrainPeriod,
	}, sessionHandler, controlHandler, statusHandler, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if monitor != nil {
		go monitor.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
		stop()
	}

	shutdownCtx := context.Background()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
		os.Exit(1)
	}

	logger.Info().Msg("shutdown complete")
}
