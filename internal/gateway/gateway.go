// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package gateway is the HTTP face of the proxy. It owns the route table
// and runs the Messages pipeline — decode, authenticate, rate-limit,
// resolve, translate, invoke, respond — rendering every escaping error as
// an Anthropic error body exactly once at this edge.
package gateway

import (
	"cmp"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/auth"
	"github.com/bedrockgate/bedrockgate/internal/bedrock"
	"github.com/bedrockgate/bedrockgate/internal/config"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
	"github.com/bedrockgate/bedrockgate/internal/metrics"
	"github.com/bedrockgate/bedrockgate/internal/modelmap"
	"github.com/bedrockgate/bedrockgate/internal/ratelimit"
	"github.com/bedrockgate/bedrockgate/internal/store"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
	"github.com/bedrockgate/bedrockgate/internal/usage"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

// loggerContextKey is the context key for the request-scoped logger.
const loggerContextKey contextKey = "logger"

// loggerFromContext extracts the request-scoped logger from the context,
// falling back to the given logger when none was attached.
func loggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

// Options carries the collaborators the server is built from. The server
// does not own their lifecycles; main closes them after draining HTTP.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	Store  store.Store
	// Bedrock invokes the backend.
	Bedrock *bedrock.Client
	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
	// Usage receives one accounting record per authenticated request.
	Usage *usage.Recorder
	// Metrics is the per-request instrument factory. Nil means no-op.
	Metrics metrics.Factory
	// Tracing produces the Messages span. Nil means no-op.
	Tracing tracingapi.Tracing
	// Version is reported by the health endpoints.
	Version string
}

// Server routes and serves the gateway's HTTP surface. Safe for concurrent
// use.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	bedrock  *bedrock.Client
	auth     *auth.Authenticator
	limiter  *ratelimit.Limiter
	resolver *modelmap.Resolver
	usage    *usage.Recorder
	metrics  metrics.Factory
	tracing  tracingapi.Tracing

	mux     *http.ServeMux
	start   time.Time
	version string

	// debugLogEnabled avoids redacting request bodies nobody will log.
	debugLogEnabled bool
}

// New wires the route table over the given collaborators.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := opts.Metrics
	if factory == nil {
		factory = metrics.NewFactory(noop.NewMeterProvider().Meter("bedrockgate"))
	}
	tracing := opts.Tracing
	if tracing == nil {
		tracing = tracingapi.NoopTracing{}
	}
	s := &Server{
		cfg:             opts.Config,
		logger:          logger,
		store:           opts.Store,
		bedrock:         opts.Bedrock,
		auth:            auth.NewAuthenticator(opts.Store, opts.Config.MasterAPIKey, opts.Config.RequireAPIKey),
		limiter:         opts.Limiter,
		resolver:        modelmap.NewResolver(opts.Store, logger),
		usage:           opts.Usage,
		metrics:         factory,
		tracing:         tracing,
		start:           time.Now(),
		version:         cmp.Or(opts.Version, "dev"),
		debugLogEnabled: logger.Enabled(context.Background(), slog.LevelDebug),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /liveness", s.handleLiveness)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleNotFound)
	s.mux = mux
	return s
}

// Handler returns the root handler: the route table behind a thin layer
// that fixes the request ID and echoes it on every response.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(internalapi.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(internalapi.RequestIDHeader, id)
		}
		w.Header().Set(internalapi.RequestIDHeader, id)
		s.mux.ServeHTTP(w, r)
	})
}

// modelsResponse is the GET /v1/models payload.
type modelsResponse struct {
	Data []modelmap.Model `json:"data"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, modelsResponse{Data: s.resolver.List(r.Context())})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(r.Context(), w, r.Header.Get(internalapi.RequestIDHeader),
		internalapi.Errorf(internalapi.ErrorTypeNotFound, "%s %s is not a gateway endpoint", r.Method, r.URL.Path))
}

// renderError writes the Anthropic error envelope for an already-classified
// error. requestID may be empty.
func (s *Server) renderError(ctx context.Context, w http.ResponseWriter, requestID string, gerr *internalapi.GatewayError) {
	resp := anthropic.ErrorResponse{
		Type:  anthropic.ErrorObjectType,
		Error: anthropic.ErrorDetail{Type: string(gerr.Type), Message: gerr.Message},
	}
	if requestID != "" {
		resp.RequestID = &requestID
	}
	s.writeJSON(ctx, w, gerr.Type.HTTPStatus(), resp)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		loggerFromContext(ctx, s.logger).ErrorContext(ctx, "cannot marshal response body",
			slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		loggerFromContext(ctx, s.logger).DebugContext(ctx, "cannot write response body",
			slog.String("error", err.Error()))
	}
}
