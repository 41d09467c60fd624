// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package testotel holds OpenTelemetry test doubles: an in-memory span
// recorder for asserting on exactly what the SDK captured, and an
// in-process OTLP collector for end-to-end exporter tests.
package testotel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// RecordNewSpan starts and immediately ends a span with the given name and
// options, returning what the SDK recorded.
func RecordNewSpan(t testing.TB, spanName string, opts ...trace.SpanStartOption) tracetest.SpanStub {
	return recordSpan(t, spanName, opts, func(trace.Span) bool { return false })
}

// RecordWithSpan starts a span, hands it to fn, and returns what the SDK
// recorded. fn reports whether it already ended the span.
func RecordWithSpan(t testing.TB, fn func(span trace.Span) bool) tracetest.SpanStub {
	return recordSpan(t, "test", nil, fn)
}

func recordSpan(t testing.TB, spanName string, opts []trace.SpanStartOption, fn func(trace.Span) bool) tracetest.SpanStub {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	_, span := provider.Tracer("test").Start(t.Context(), spanName, opts...)
	if ended := fn(span); !ended {
		span.End()
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}
