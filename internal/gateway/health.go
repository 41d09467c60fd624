// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// probeTimeout bounds the dependency probes so a hung backend cannot hang
// the health endpoints with it.
const probeTimeout = 2 * time.Second

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	serviceOK          = "ok"
	serviceUnavailable = "unavailable"
)

// healthStatus is the body served by /health, /ready and /liveness.
type healthStatus struct {
	Status        string            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Version       string            `json:"version"`
	Services      map[string]string `json:"services"`
}

// healthReport probes the store and the Bedrock endpoint and aggregates the
// result. Any failing probe degrades the overall status.
func (s *Server) healthReport(ctx context.Context) healthStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	services := make(map[string]string, 2)
	status := statusHealthy
	if err := s.store.Ping(ctx); err != nil {
		loggerFromContext(ctx, s.logger).WarnContext(ctx, "store probe failed", slog.String("error", err.Error()))
		services["store"] = serviceUnavailable
		status = statusDegraded
	} else {
		services["store"] = serviceOK
	}
	if err := s.bedrock.Ping(ctx); err != nil {
		loggerFromContext(ctx, s.logger).WarnContext(ctx, "bedrock probe failed", slog.String("error", err.Error()))
		services["bedrock"] = serviceUnavailable
		status = statusDegraded
	} else {
		services["bedrock"] = serviceOK
	}

	return healthStatus{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(s.start).Seconds(),
		Version:       s.version,
		Services:      services,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, s.healthReport(r.Context()))
}

// handleReady is the only health surface that changes status code: load
// balancers drain on the 503 while /health keeps answering 200 for
// observability.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.healthReport(r.Context())
	code := http.StatusOK
	if report.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(r.Context(), w, code, report)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, s.healthReport(r.Context()))
}
