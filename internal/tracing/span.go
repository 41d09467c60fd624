// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
)

var _ tracingapi.MessageSpan = (*messageSpan)(nil)

// messageSpan buffers a request's stream events and finishes the span. A
// unary response skips the buffer and records directly.
type messageSpan struct {
	span     trace.Span
	recorder tracingapi.MessageRecorder
	events   []*anthropic.StreamEvent
}

// RecordResponseChunk implements tracingapi.MessageSpan.RecordResponseChunk.
func (s *messageSpan) RecordResponseChunk(event *anthropic.StreamEvent) {
	s.events = append(s.events, event)
}

// RecordResponse implements tracingapi.MessageSpan.RecordResponse.
func (s *messageSpan) RecordResponse(resp *anthropic.MessagesResponse) {
	s.recorder.RecordResponse(s.span, resp)
}

// EndSpan implements tracingapi.MessageSpan.EndSpan.
func (s *messageSpan) EndSpan() {
	if len(s.events) > 0 {
		s.recorder.RecordResponseChunks(s.span, s.events)
	}
	s.span.End()
}

// EndSpanOnError implements tracingapi.MessageSpan.EndSpanOnError.
func (s *messageSpan) EndSpanOnError(statusCode int, body []byte) {
	s.recorder.RecordResponseOnError(s.span, statusCode, body)
	s.span.End()
}
