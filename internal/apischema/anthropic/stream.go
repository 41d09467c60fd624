// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package anthropic

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/bedrockgate/bedrockgate/internal/json"
)

// SSE event types in the order a well-formed stream emits them.
// https://docs.claude.com/en/api/messages-streaming
const (
	StreamEventTypeMessageStart      = "message_start"
	StreamEventTypeContentBlockStart = "content_block_start"
	StreamEventTypeContentBlockDelta = "content_block_delta"
	StreamEventTypeContentBlockStop  = "content_block_stop"
	StreamEventTypeMessageDelta      = "message_delta"
	StreamEventTypeMessageStop       = "message_stop"
	StreamEventTypePing              = "ping"
	StreamEventTypeError             = "error"
)

// Content block delta types.
const (
	DeltaTypeText             = "text_delta"
	DeltaTypeInputJSON        = "input_json_delta"
	DeltaTypeThinking         = "thinking_delta"
	DeltaTypeSignature        = "signature_delta"
	DeltaTypeRedactedThinking = "redacted_thinking"
)

type (
	// MessageStartEvent opens a stream with the message envelope; content is
	// empty and stop_reason is null at this point.
	MessageStartEvent struct {
		Type    string           `json:"type"` // Always "message_start".
		Message MessagesResponse `json:"message"`
	}

	// ContentBlockStartEvent introduces the block at Index before any delta
	// for that index.
	ContentBlockStartEvent struct {
		Type         string       `json:"type"` // Always "content_block_start".
		Index        int          `json:"index"`
		ContentBlock ContentBlock `json:"content_block"`
	}

	// ContentBlockDeltaEvent carries an incremental piece of the block at
	// Index.
	ContentBlockDeltaEvent struct {
		Type  string            `json:"type"` // Always "content_block_delta".
		Index int               `json:"index"`
		Delta ContentBlockDelta `json:"delta"`
	}

	// ContentBlockDelta is the delta payload; which field is meaningful
	// depends on Type. PartialJSON is a pointer so an empty fragment still
	// serializes.
	ContentBlockDelta struct {
		Type        string  `json:"type"`
		Text        string  `json:"text,omitempty"`
		PartialJSON *string `json:"partial_json,omitempty"`
		Thinking    string  `json:"thinking,omitempty"`
		Signature   string  `json:"signature,omitempty"`
		// Data carries the base64 payload of a redacted_thinking delta.
		Data string `json:"data,omitempty"`
	}

	// ContentBlockStopEvent closes the block at Index.
	ContentBlockStopEvent struct {
		Type  string `json:"type"` // Always "content_block_stop".
		Index int    `json:"index"`
	}

	// MessageDeltaEvent carries the final stop reason and the output-side
	// token usage, after all content blocks are closed.
	MessageDeltaEvent struct {
		Type  string            `json:"type"` // Always "message_delta".
		Delta MessageDelta      `json:"delta"`
		Usage MessageDeltaUsage `json:"usage"`
	}

	// MessageDelta is the delta payload of a message_delta event.
	MessageDelta struct {
		StopReason   StopReason `json:"stop_reason"`
		StopSequence *string    `json:"stop_sequence"`
	}

	// MessageDeltaUsage is the cumulative output-side usage.
	MessageDeltaUsage struct {
		OutputTokens int64 `json:"output_tokens"`
	}

	// MessageStopEvent terminates a successful stream.
	MessageStopEvent struct {
		Type string `json:"type"` // Always "message_stop".
	}

	// PingEvent is a keepalive; clients ignore it.
	PingEvent struct {
		Type string `json:"type"` // Always "ping".
	}

	// ErrorEvent terminates a failed stream; no message_stop follows it.
	ErrorEvent struct {
		Type  string      `json:"type"` // Always "error".
		Error ErrorDetail `json:"error"`
	}
)

// StreamEvent is one SSE frame payload: exactly one variant pointer is set.
// The SSE `event:` line carries EventType and the `data:` line carries the
// minified JSON of the variant.
type StreamEvent struct {
	MessageStart      *MessageStartEvent
	ContentBlockStart *ContentBlockStartEvent
	ContentBlockDelta *ContentBlockDeltaEvent
	ContentBlockStop  *ContentBlockStopEvent
	MessageDelta      *MessageDeltaEvent
	MessageStop       *MessageStopEvent
	Ping              *PingEvent
	Error             *ErrorEvent
}

// EventType returns the SSE event name for the populated variant, or ""
// when no variant is set.
func (e *StreamEvent) EventType() string {
	switch {
	case e.MessageStart != nil:
		return StreamEventTypeMessageStart
	case e.ContentBlockStart != nil:
		return StreamEventTypeContentBlockStart
	case e.ContentBlockDelta != nil:
		return StreamEventTypeContentBlockDelta
	case e.ContentBlockStop != nil:
		return StreamEventTypeContentBlockStop
	case e.MessageDelta != nil:
		return StreamEventTypeMessageDelta
	case e.MessageStop != nil:
		return StreamEventTypeMessageStop
	case e.Ping != nil:
		return StreamEventTypePing
	case e.Error != nil:
		return StreamEventTypeError
	}
	return ""
}

func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("missing type field in stream event")
	}
	switch typ.String() {
	case StreamEventTypeMessageStart:
		var ev MessageStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal message_start: %w", err)
		}
		e.MessageStart = &ev
	case StreamEventTypeContentBlockStart:
		var ev ContentBlockStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal content_block_start: %w", err)
		}
		e.ContentBlockStart = &ev
	case StreamEventTypeContentBlockDelta:
		var ev ContentBlockDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal content_block_delta: %w", err)
		}
		e.ContentBlockDelta = &ev
	case StreamEventTypeContentBlockStop:
		var ev ContentBlockStopEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal content_block_stop: %w", err)
		}
		e.ContentBlockStop = &ev
	case StreamEventTypeMessageDelta:
		var ev MessageDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal message_delta: %w", err)
		}
		e.MessageDelta = &ev
	case StreamEventTypeMessageStop:
		e.MessageStop = &MessageStopEvent{Type: StreamEventTypeMessageStop}
	case StreamEventTypePing:
		e.Ping = &PingEvent{Type: StreamEventTypePing}
	case StreamEventTypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal error event: %w", err)
		}
		e.Error = &ev
	default:
		// Ignore unknown types for forward compatibility.
	}
	return nil
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch {
	case e.MessageStart != nil:
		return json.Marshal(e.MessageStart)
	case e.ContentBlockStart != nil:
		return json.Marshal(e.ContentBlockStart)
	case e.ContentBlockDelta != nil:
		return json.Marshal(e.ContentBlockDelta)
	case e.ContentBlockStop != nil:
		return json.Marshal(e.ContentBlockStop)
	case e.MessageDelta != nil:
		return json.Marshal(e.MessageDelta)
	case e.MessageStop != nil:
		return json.Marshal(e.MessageStop)
	case e.Ping != nil:
		return json.Marshal(e.Ping)
	case e.Error != nil:
		return json.Marshal(e.Error)
	}
	return nil, errors.New("stream event must have a defined type")
}
