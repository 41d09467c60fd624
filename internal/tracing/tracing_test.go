// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/bedrockgate/bedrockgate/internal/json"
	internaltesting "github.com/bedrockgate/bedrockgate/internal/testing"
	"github.com/bedrockgate/bedrockgate/internal/testing/testotel"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
)

func TestNewTracingFromEnv(t *testing.T) {
	ctx := context.Background()

	t.Run("noop by default", func(t *testing.T) {
		internaltesting.ClearTestEnv(t)
		tracing, err := NewTracingFromEnv(ctx)
		require.NoError(t, err)
		require.Equal(t, tracingapi.NoopTracing{}, tracing)
	})

	t.Run("sdk disabled ignores otlp endpoint", func(t *testing.T) {
		internaltesting.ClearTestEnv(t)
		t.Setenv("OTEL_SDK_DISABLED", "true")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")
		tracing, err := NewTracingFromEnv(ctx)
		require.NoError(t, err)
		require.Equal(t, tracingapi.NoopTracing{}, tracing)
	})

	t.Run("exporter none ignores otlp endpoint", func(t *testing.T) {
		internaltesting.ClearTestEnv(t)
		t.Setenv("OTEL_TRACES_EXPORTER", "none")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")
		tracing, err := NewTracingFromEnv(ctx)
		require.NoError(t, err)
		require.Equal(t, tracingapi.NoopTracing{}, tracing)
	})

	t.Run("console exporter", func(t *testing.T) {
		internaltesting.ClearTestEnv(t)
		t.Setenv("OTEL_TRACES_EXPORTER", "console")
		tracing, err := NewTracingFromEnv(ctx)
		require.NoError(t, err)
		require.IsType(t, &tracingImpl{}, tracing)
		require.IsType(t, (*messageTracer)(nil), tracing.MessageTracer())
		require.NoError(t, tracing.Shutdown(ctx))
	})

	t.Run("otlp traces endpoint", func(t *testing.T) {
		internaltesting.ClearTestEnv(t)
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://127.0.0.1:4318")
		tracing, err := NewTracingFromEnv(ctx)
		require.NoError(t, err)
		require.IsType(t, &tracingImpl{}, tracing)
		require.NoError(t, tracing.Shutdown(ctx))
	})
}

// TestNewTracingFromEnv_OTLPExport drives a span through the real SDK
// pipeline into an in-process OTLP collector.
func TestNewTracingFromEnv_OTLPExport(t *testing.T) {
	collector := testotel.StartOTLPCollector()
	t.Cleanup(collector.Close)

	internaltesting.ClearTestEnv(t)
	collector.SetEnv(t.Setenv)

	ctx := context.Background()
	tracing, err := NewTracingFromEnv(ctx)
	require.NoError(t, err)
	require.IsType(t, &tracingImpl{}, tracing)

	reqBody, err := json.Marshal(req)
	require.NoError(t, err)
	span := tracing.MessageTracer().StartSpanAndInjectHeaders(ctx,
		map[string]string{}, propagation.MapCarrier{}, req, reqBody)
	require.NotNil(t, span)
	span.EndSpan()

	// Shutdown flushes the batch processor.
	require.NoError(t, tracing.Shutdown(ctx))

	otlpSpan := collector.TakeSpan()
	require.NotNil(t, otlpSpan)
	require.Equal(t, "Message", otlpSpan.Name)
	require.Equal(t, tracev1.Span_SPAN_KIND_INTERNAL, otlpSpan.Kind)
}
