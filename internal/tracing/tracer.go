// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
)

var _ tracingapi.MessageTracer = (*messageTracer)(nil)

// messageTracer starts one span per Messages request and hands recording off
// to the configured semantic-convention recorder.
type messageTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	recorder   tracingapi.MessageRecorder
	// headerAttributes maps lower-cased request header names to the span
	// attribute recording their value.
	headerAttributes map[string]string
}

func newMessageTracer(tracer trace.Tracer, propagator propagation.TextMapPropagator, recorder tracingapi.MessageRecorder, headerAttributes map[string]string) tracingapi.MessageTracer {
	if _, ok := tracer.(noop.Tracer); ok {
		return tracingapi.NoopMessageTracer{}
	}
	return &messageTracer{
		tracer:           tracer,
		propagator:       propagator,
		recorder:         recorder,
		headerAttributes: headerAttributes,
	}
}

// StartSpanAndInjectHeaders implements tracingapi.MessageTracer.
func (t *messageTracer) StartSpanAndInjectHeaders(
	ctx context.Context,
	headers map[string]string,
	carrier propagation.TextMapCarrier,
	req *anthropic.MessagesRequest,
	body []byte,
) tracingapi.MessageSpan {
	parentCtx := t.propagator.Extract(ctx, propagation.MapCarrier(headers))
	spanName, opts := t.recorder.StartParams(req, body)
	newCtx, span := t.tracer.Start(parentCtx, spanName, opts...)

	t.propagator.Inject(newCtx, carrier)

	if !span.IsRecording() {
		return nil
	}

	t.recorder.RecordRequest(span, req, body)

	if len(t.headerAttributes) > 0 {
		attrs := make([]attribute.KeyValue, 0, len(t.headerAttributes))
		for headerName, attrName := range t.headerAttributes {
			if headerValue, ok := headers[headerName]; ok {
				attrs = append(attrs, attribute.String(attrName, headerValue))
			}
		}
		if len(attrs) > 0 {
			span.SetAttributes(attrs...)
		}
	}

	return &messageSpan{span: span, recorder: t.recorder}
}
