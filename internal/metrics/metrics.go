// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics records the OpenTelemetry GenAI metrics for Messages
// requests: request duration, token usage by type, and the streaming
// latency pair (time-to-first-token, time-per-output-token).
package metrics

import (
	"context"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
)

// NewMeterFromEnv builds the MeterProvider serving both the always-on
// Prometheus reader and, when the environment asks for one, an additional
// OTel exporter. It returns the meter to instrument with and the provider's
// shutdown function.
//
// Environment variables consulted:
//   - OTEL_SDK_DISABLED: "true" suppresses every exporter except Prometheus.
//   - OTEL_METRICS_EXPORTER: "none", "prometheus", "console" or "otlp";
//     anything besides "none"/"prometheus" is delegated to autoexport.
//   - OTEL_EXPORTER_OTLP_ENDPOINT / OTEL_EXPORTER_OTLP_METRICS_ENDPOINT:
//     selects OTLP when OTEL_METRICS_EXPORTER is unset.
func NewMeterFromEnv(ctx context.Context, promReader sdkmetric.Reader) (metric.Meter, func(context.Context) error, error) {
	options := []sdkmetric.Option{sdkmetric.WithReader(promReader)}

	if os.Getenv("OTEL_SDK_DISABLED") != "true" {
		exporter := os.Getenv("OTEL_METRICS_EXPORTER")
		hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""

		// Without this guard an unset exporter variable would stand up the
		// default OTLP reader pointed at localhost.
		if exporter == "console" || (exporter != "none" && exporter != "prometheus" && hasOTLPEndpoint) {
			res, err := buildResource(ctx)
			if err != nil {
				return nil, nil, err
			}
			reader, err := autoexport.NewMetricReader(ctx)
			if err != nil {
				return nil, nil, err
			}
			options = append(options, sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		}
	}

	mp := sdkmetric.NewMeterProvider(options...)
	return mp.Meter("bedrockgate/bedrockgate"), mp.Shutdown, nil
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

// Metrics instruments a single Messages request. Instances are not safe for
// concurrent use; the pipeline drives one per request.
type Metrics interface {
	// StartRequest marks the beginning of request processing.
	StartRequest()
	// SetOriginalModel records the model named by the client, before alias
	// resolution. Example: claude-sonnet-latest.
	SetOriginalModel(model string)
	// SetRequestModel records the resolved model the backend is invoked
	// with. Example: us.anthropic.claude-sonnet-4-5-20250929-v1:0.
	SetRequestModel(model string)
	// SetResponseModel records the model that produced the response.
	SetResponseModel(model string)
	// RecordRequestCompletion records the request duration. A nil gatewayErr
	// means success; otherwise the error's type becomes the error.type
	// attribute.
	RecordRequestCompletion(ctx context.Context, gatewayErr *internalapi.GatewayError)
	// RecordTokenUsage records one token.usage data point per token type
	// present in usage.
	RecordTokenUsage(ctx context.Context, usage *anthropic.Usage)

	// Streaming-only methods.

	// RecordTokenLatency tracks streaming progress: the first call records
	// time-to-first-token, and the end-of-stream call derives the average
	// time per output token. tokens is the cumulative output token count.
	RecordTokenLatency(ctx context.Context, tokens int64, endOfStream bool)
	// GetTimeToFirstTokenMs reports the recorded time to first token, for
	// span attributes.
	GetTimeToFirstTokenMs() float64
	// GetInterTokenLatencyMs reports the recorded inter-token latency, for
	// span attributes.
	GetInterTokenLatencyMs() float64
}

// Factory creates one Metrics instance per request against a shared set of
// instruments.
type Factory interface {
	NewMetrics() Metrics
}

// NewFactory registers the GenAI instruments on meter and returns the
// per-request factory.
func NewFactory(meter metric.Meter) Factory {
	return &metricsFactory{metrics: newGenAI(meter)}
}
