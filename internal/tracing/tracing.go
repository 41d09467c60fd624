// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tracing starts OpenTelemetry spans for Messages requests and
// records them with OpenInference semantic conventions.
package tracing

import (
	"context"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
	oianthropic "github.com/bedrockgate/bedrockgate/internal/tracing/openinference/anthropic"
)

var _ tracingapi.Tracing = (*tracingImpl)(nil)

// tracingImpl owns the tracer provider backing the request tracer.
type tracingImpl struct {
	provider      *sdktrace.TracerProvider
	messageTracer tracingapi.MessageTracer
}

// MessageTracer implements tracingapi.Tracing.MessageTracer.
func (t *tracingImpl) MessageTracer() tracingapi.MessageTracer {
	return t.messageTracer
}

// Shutdown implements tracingapi.Tracing.Shutdown.
func (t *tracingImpl) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// NewTracingFromEnv builds the Tracing for the process, or a no-op when the
// environment does not ask for spans.
//
// Environment variables consulted:
//   - OTEL_SDK_DISABLED: "true" forces the no-op.
//   - OTEL_TRACES_EXPORTER: "none" forces the no-op, "console" or "otlp" is
//     delegated to autoexport.
//   - OTEL_EXPORTER_OTLP_ENDPOINT / OTEL_EXPORTER_OTLP_TRACES_ENDPOINT:
//     selects OTLP when OTEL_TRACES_EXPORTER is unset.
//   - OTEL_PROPAGATORS: context propagation formats, W3C trace context and
//     baggage by default.
//   - OPENINFERENCE_HIDE_*: span content redaction, see openinference.
func NewTracingFromEnv(ctx context.Context) (tracingapi.Tracing, error) {
	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		return tracingapi.NoopTracing{}, nil
	}
	exporter := os.Getenv("OTEL_TRACES_EXPORTER")
	hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != ""

	// Without this guard an unset exporter variable would stand up the
	// default OTLP exporter pointed at localhost.
	if exporter != "console" && (exporter == "none" || !hasOTLPEndpoint) {
		return tracingapi.NoopTracing{}, nil
	}

	res, err := buildResource(ctx)
	if err != nil {
		return nil, err
	}
	spanExporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)

	tracer := provider.Tracer("bedrockgate/bedrockgate")
	propagator := autoprop.NewTextMapPropagator()
	recorder := oianthropic.NewMessageRecorderFromEnv()
	// The request id lands on the span so spans and access logs correlate.
	headerAttributes := map[string]string{
		internalapi.RequestIDHeader: "http.request.header." + internalapi.RequestIDHeader,
	}

	return &tracingImpl{
		provider:      provider,
		messageTracer: newMessageTracer(tracer, propagator, recorder, headerAttributes),
	}, nil
}

// buildResource layers the default resource, a service-name fallback, and
// the environment overrides, in increasing precedence.
func buildResource(ctx context.Context) (*resource.Resource, error) {
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, err
	}
	// "service.name" is spelled out to avoid pinning a semconv version.
	fallback := resource.NewSchemaless(attribute.String("service.name", "bedrockgate"))
	res, err := resource.Merge(resource.Default(), fallback)
	if err != nil {
		return nil, err
	}
	return resource.Merge(res, envRes)
}
