// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Command bedrockgate serves the Anthropic Messages API in front of AWS
// Bedrock: it authenticates and rate-limits callers, translates requests
// onto the Converse API, and streams responses back as SSE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/bedrockgate/bedrockgate/internal/bedrock"
	"github.com/bedrockgate/bedrockgate/internal/config"
	"github.com/bedrockgate/bedrockgate/internal/gateway"
	"github.com/bedrockgate/bedrockgate/internal/metrics"
	"github.com/bedrockgate/bedrockgate/internal/ratelimit"
	"github.com/bedrockgate/bedrockgate/internal/store"
	"github.com/bedrockgate/bedrockgate/internal/store/sqlite"
	"github.com/bedrockgate/bedrockgate/internal/tracing"
	"github.com/bedrockgate/bedrockgate/internal/usage"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("gateway exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := slog.New(newLogHandler(cfg))
	slog.SetDefault(logger)
	logger.Info("starting bedrockgate",
		slog.String("version", version),
		slog.String("addr", cfg.ListenAddr),
		slog.String("region", cfg.Region))

	var st store.Store
	if cfg.StorePath != "" {
		if st, err = sqlite.New(cfg.StorePath); err != nil {
			return fmt.Errorf("opening store at %s: %w", cfg.StorePath, err)
		}
		logger.Info("using sqlite store", slog.String("path", cfg.StorePath))
	} else {
		st = store.NewMemory()
		logger.Info("using in-memory store; keys, mappings and usage do not survive restarts")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("cannot close store", slog.String("error", err.Error()))
		}
	}()

	promExporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("building prometheus exporter: %w", err)
	}
	meter, shutdownMeter, err := metrics.NewMeterFromEnv(ctx, promExporter)
	if err != nil {
		return fmt.Errorf("building meter provider: %w", err)
	}
	defer shutdownTelemetry(logger, "meter provider", shutdownMeter)

	traces, err := tracing.NewTracingFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("building tracer provider: %w", err)
	}
	defer shutdownTelemetry(logger, "tracer provider", traces.Shutdown)

	bedrockClient, err := bedrock.NewClient(ctx, bedrock.Options{
		Region:         cfg.Region,
		Endpoint:       cfg.BedrockEndpoint,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("building bedrock client: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.BucketTTL)
		defer limiter.Close()
	}

	recorder := usage.NewRecorder(st, logger)
	// Closing flushes queued rows, so it must run before the store closes.
	defer recorder.Close()

	gw := gateway.New(gateway.Options{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Bedrock: bedrockClient,
		Limiter: limiter,
		Usage:   recorder,
		Metrics: metrics.NewFactory(meter),
		Tracing: traces,
		Version: version,
	})

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     gw.Handler(),
		ReadTimeout: 30 * time.Second,
		// Streaming responses run as long as the model generates; the
		// per-frame idle watchdog bounds them instead of a write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown did not drain all requests", slog.String("error", err.Error()))
	}
	return <-serveErr
}

func newLogHandler(cfg *config.Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == config.LogFormatText {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

func shutdownTelemetry(logger *slog.Logger, what string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("cannot shut down "+what, slog.String("error", err.Error()))
	}
}
