// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package api provides types for OpenTelemetry tracing support, notably to
// reduce chance of cyclic imports. No implementations besides no-op are here.
package api

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
)

type (
	// Tracing gives access to the request tracer for the Messages endpoint
	// and owns the underlying provider.
	Tracing interface {
		// MessageTracer creates spans for Messages requests.
		MessageTracer() MessageTracer
		// Shutdown shuts down the tracer, flushing any buffered spans.
		Shutdown(context.Context) error
	}

	// MessageTracer creates spans for Messages requests.
	MessageTracer interface {
		// StartSpanAndInjectHeaders starts a span and injects its context
		// into the carrier.
		//
		// Parameters:
		//   - ctx: might include a parent span context.
		//   - headers: incoming request headers, lower-cased names, used to
		//     extract the parent trace context.
		//   - carrier: the new span has its context written here unless the
		//     tracer is a no-op.
		//   - req: the typed request used to record request attributes.
		//   - body: the original raw request body.
		//
		// Returns nil unless the span is sampled.
		StartSpanAndInjectHeaders(ctx context.Context, headers map[string]string, carrier propagation.TextMapCarrier, req *anthropic.MessagesRequest, body []byte) MessageSpan
	}

	// MessageSpan is an in-flight span for one Messages request. It supports
	// both response surfaces: unary responses call RecordResponse, streaming
	// responses call RecordResponseChunk per event. Either way the span is
	// finished with exactly one EndSpan or EndSpanOnError call.
	MessageSpan interface {
		// RecordResponseChunk buffers one stream event for recording at
		// EndSpan.
		RecordResponseChunk(event *anthropic.StreamEvent)
		// RecordResponse records the unary response attributes to the span.
		RecordResponse(resp *anthropic.MessagesResponse)
		// EndSpanOnError finalizes and ends the span with an error status.
		EndSpanOnError(statusCode int, body []byte)
		// EndSpan finalizes and ends the span.
		EndSpan()
	}

	// MessageRecorder records attributes to a span according to a semantic
	// convention.
	MessageRecorder interface {
		// StartParams returns the name and options to start the span with.
		//
		// Note: Avoid expensive data conversions since the span might not be
		// sampled.
		StartParams(req *anthropic.MessagesRequest, body []byte) (spanName string, opts []trace.SpanStartOption)
		// RecordRequest records request attributes to the span.
		RecordRequest(span trace.Span, req *anthropic.MessagesRequest, body []byte)
		// RecordResponse records response attributes to the span.
		RecordResponse(span trace.Span, resp *anthropic.MessagesResponse)
		// RecordResponseOnError ends recording the span with an error status.
		RecordResponseOnError(span trace.Span, statusCode int, body []byte)
		// RecordResponseChunks records the accumulated stream events to the
		// span at end of stream.
		RecordResponseChunks(span trace.Span, events []*anthropic.StreamEvent)
	}
)

// NoopTracing is a Tracing that doesn't do anything.
type NoopTracing struct{}

// MessageTracer implements Tracing.MessageTracer.
func (NoopTracing) MessageTracer() MessageTracer {
	return NoopMessageTracer{}
}

// Shutdown implements Tracing.Shutdown.
func (NoopTracing) Shutdown(context.Context) error {
	return nil
}

// NoopMessageTracer implements MessageTracer without producing spans.
type NoopMessageTracer struct{}

// StartSpanAndInjectHeaders implements MessageTracer.StartSpanAndInjectHeaders.
func (NoopMessageTracer) StartSpanAndInjectHeaders(context.Context, map[string]string, propagation.TextMapCarrier, *anthropic.MessagesRequest, []byte) MessageSpan {
	return nil
}
