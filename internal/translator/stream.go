// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
)

// SSE framing prefixes shared by the stream translator tests and the
// gateway's event writer.
var (
	sseEventPrefix = []byte("event: ")
	sseDataPrefix  = []byte("data: ")
)

// AppendSSE appends one stream event to dst in SSE wire framing: an
// `event:` line carrying the event type and a `data:` line carrying the
// minified JSON payload, terminated by a blank line.
func AppendSSE(dst []byte, event *anthropic.StreamEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return dst, fmt.Errorf("failed to marshal stream event: %w", err)
	}
	dst = append(dst, sseEventPrefix...)
	dst = append(dst, event.EventType()...)
	dst = append(dst, '\n')
	dst = append(dst, sseDataPrefix...)
	dst = append(dst, data...)
	dst = append(dst, '\n', '\n')
	return dst, nil
}

// blockState tracks one content block index through its
// start/delta/stop lifecycle. Presence in the translator's map means the
// content_block_start has been emitted.
type blockState struct {
	stopped bool
}

// StreamTranslator converts a decoded Bedrock ConverseStream into the
// Messages API event sequence. It synthesizes the events Bedrock omits —
// message_start when the stream opens with a delta, content_block_start
// from the first delta's shape, block stops and the terminal pair when the
// stream ends early — and folds messageStop plus metadata into a single
// message_delta. Indices may interleave; start synthesis is per index.
//
// A translator is created per streaming response and is not safe for
// concurrent use.
type StreamTranslator struct {
	requestModel string
	messageID    string

	started  bool
	finished bool
	errored  bool

	blocks map[int]*blockState

	// pendingStop holds the mapped stop reason between Bedrock's messageStop
	// frame and the metadata frame that completes the message_delta.
	pendingStop *anthropic.StopReason
	usage       anthropic.Usage
	usageSeen   bool
}

// NewStreamTranslator returns a translator for one streaming response.
// requestModel is echoed in the message_start envelope.
func NewStreamTranslator(requestModel string) *StreamTranslator {
	return &StreamTranslator{
		requestModel: requestModel,
		messageID:    NewMessageID(),
		blocks:       make(map[int]*blockState),
	}
}

// Usage reports the token accounting accumulated from metadata frames, for
// the usage recorder and metrics once the stream ends.
func (s *StreamTranslator) Usage() anthropic.Usage { return s.usage }

// Done reports whether a terminal event (message_stop or error) has been
// produced. Frames arriving after that are dropped.
func (s *StreamTranslator) Done() bool { return s.finished || s.errored }

// Translate converts one decoded Bedrock frame into zero or more Anthropic
// stream events in emission order. frameType is the value of the frame's
// :event-type header.
func (s *StreamTranslator) Translate(frameType string, event *awsbedrock.ConverseStreamEvent) []anthropic.StreamEvent {
	if s.Done() {
		return nil
	}
	var out []anthropic.StreamEvent
	switch frameType {
	case awsbedrock.StreamEventTypeMessageStart:
		out = s.ensureMessageStart(out)
	case awsbedrock.StreamEventTypeContentBlockStart:
		out = s.ensureMessageStart(out)
		out = s.startBlock(out, event.ContentBlockIndex, event.Start)
	case awsbedrock.StreamEventTypeContentBlockDelta:
		out = s.ensureMessageStart(out)
		out = s.translateDelta(out, event.ContentBlockIndex, event.Delta)
	case awsbedrock.StreamEventTypeContentBlockStop:
		out = s.stopBlock(out, event.ContentBlockIndex)
	case awsbedrock.StreamEventTypeMessageStop:
		out = s.ensureMessageStart(out)
		out = s.closeOpenBlocks(out)
		reason := anthropic.StopReasonEndTurn
		if event.StopReason != nil {
			reason = TranslateStopReason(*event.StopReason)
		}
		s.pendingStop = &reason
	case awsbedrock.StreamEventTypeMetadata:
		if event.Usage != nil {
			s.usage = translateUsage(event.Usage)
			s.usageSeen = true
		}
	}
	if s.pendingStop != nil && s.usageSeen {
		out = s.finishMessage(out, *s.pendingStop)
	}
	return out
}

// TranslateException converts a Bedrock exception frame into the terminal
// error event. Per the streaming contract no message_stop follows an error.
func (s *StreamTranslator) TranslateException(exceptionType, message string) anthropic.StreamEvent {
	s.errored = true
	var errType internalapi.ErrorType
	switch exceptionType {
	case awsbedrock.ExceptionTypeThrottling:
		errType = internalapi.ErrorTypeOverloaded
	case awsbedrock.ExceptionTypeValidation:
		errType = internalapi.ErrorTypeInvalidRequest
	default:
		// internalServerException, modelStreamErrorException and anything new.
		errType = internalapi.ErrorTypeAPI
	}
	return anthropic.StreamEvent{Error: &anthropic.ErrorEvent{
		Type:  anthropic.StreamEventTypeError,
		Error: anthropic.ErrorDetail{Type: string(errType), Message: message},
	}}
}

// Finish emits whatever a well-formed stream still owes once the backend
// stream ends: stops for open blocks, then message_delta and message_stop
// when Bedrock never delivered them. After an error nothing more is owed.
func (s *StreamTranslator) Finish() []anthropic.StreamEvent {
	if s.Done() {
		return nil
	}
	var out []anthropic.StreamEvent
	out = s.ensureMessageStart(out)
	out = s.closeOpenBlocks(out)
	reason := anthropic.StopReasonEndTurn
	if s.pendingStop != nil {
		reason = *s.pendingStop
	}
	return s.finishMessage(out, reason)
}

// ensureMessageStart emits the message_start envelope once, synthesizing it
// when Bedrock's messageStart frame never arrived. Content is empty and
// stop_reason null at this point; usage arrives with the trailing metadata.
func (s *StreamTranslator) ensureMessageStart(out []anthropic.StreamEvent) []anthropic.StreamEvent {
	if s.started {
		return out
	}
	s.started = true
	return append(out, anthropic.StreamEvent{MessageStart: &anthropic.MessageStartEvent{
		Type: anthropic.StreamEventTypeMessageStart,
		Message: anthropic.MessagesResponse{
			ID:      s.messageID,
			Type:    anthropic.MessageObjectType,
			Role:    anthropic.MessageRoleAssistant,
			Model:   s.requestModel,
			Content: []anthropic.ContentBlock{},
		},
	}})
}

// startBlock handles a real contentBlockStart frame. Bedrock only announces
// tool_use blocks this way; any other start opens an empty text block.
func (s *StreamTranslator) startBlock(out []anthropic.StreamEvent, index int, start *awsbedrock.ContentBlockStart) []anthropic.StreamEvent {
	if _, ok := s.blocks[index]; ok {
		return out
	}
	s.blocks[index] = &blockState{}
	var block anthropic.ContentBlock
	if start != nil && start.ToolUse != nil {
		block = anthropic.NewToolUseBlock(start.ToolUse.ToolUseID, start.ToolUse.Name, nil)
	} else {
		block = anthropic.NewTextBlock("")
	}
	return append(out, anthropic.StreamEvent{ContentBlockStart: &anthropic.ContentBlockStartEvent{
		Type:         anthropic.StreamEventTypeContentBlockStart,
		Index:        index,
		ContentBlock: block,
	}})
}

func (s *StreamTranslator) translateDelta(out []anthropic.StreamEvent, index int, delta *awsbedrock.ConverseStreamEventContentBlockDelta) []anthropic.StreamEvent {
	if delta == nil {
		return out
	}
	state, seen := s.blocks[index]
	if seen && state.stopped {
		// Late delta for a block already closed; there is nothing sane to
		// attach it to.
		return out
	}

	// Redacted reasoning arrives as a single delta and becomes a
	// self-contained block: start, delta, stop in one shot.
	if rc := delta.ReasoningContent; !seen && rc != nil && rc.RedactedContent != nil {
		s.blocks[index] = &blockState{stopped: true}
		out = append(out, anthropic.StreamEvent{ContentBlockStart: &anthropic.ContentBlockStartEvent{
			Type:         anthropic.StreamEventTypeContentBlockStart,
			Index:        index,
			ContentBlock: anthropic.NewRedactedThinkingBlock(""),
		}})
		out = append(out, anthropic.StreamEvent{ContentBlockDelta: &anthropic.ContentBlockDeltaEvent{
			Type:  anthropic.StreamEventTypeContentBlockDelta,
			Index: index,
			Delta: anthropic.ContentBlockDelta{
				Type: anthropic.DeltaTypeRedactedThinking,
				Data: base64.StdEncoding.EncodeToString(rc.RedactedContent),
			},
		}})
		return append(out, anthropic.StreamEvent{ContentBlockStop: &anthropic.ContentBlockStopEvent{
			Type:  anthropic.StreamEventTypeContentBlockStop,
			Index: index,
		}})
	}

	if !seen {
		out = s.synthesizeStart(out, index, delta)
	}
	converted, ok := convertDelta(delta)
	if !ok {
		return out
	}
	return append(out, anthropic.StreamEvent{ContentBlockDelta: &anthropic.ContentBlockDeltaEvent{
		Type:  anthropic.StreamEventTypeContentBlockDelta,
		Index: index,
		Delta: converted,
	}})
}

// synthesizeStart emits the content_block_start Bedrock omitted, inferring
// the block type from the first delta's shape.
func (s *StreamTranslator) synthesizeStart(out []anthropic.StreamEvent, index int, delta *awsbedrock.ConverseStreamEventContentBlockDelta) []anthropic.StreamEvent {
	s.blocks[index] = &blockState{}
	var block anthropic.ContentBlock
	switch {
	case delta.ReasoningContent != nil:
		block = anthropic.NewThinkingBlock("", "")
	case delta.ToolUse != nil:
		// No real start arrived, so the tool identity is unknown here.
		block = anthropic.NewToolUseBlock("", "", nil)
	default:
		block = anthropic.NewTextBlock("")
	}
	return append(out, anthropic.StreamEvent{ContentBlockStart: &anthropic.ContentBlockStartEvent{
		Type:         anthropic.StreamEventTypeContentBlockStart,
		Index:        index,
		ContentBlock: block,
	}})
}

// convertDelta maps one Bedrock block delta onto the Messages API delta
// vocabulary. The bool is false for delta shapes with no counterpart.
func convertDelta(delta *awsbedrock.ConverseStreamEventContentBlockDelta) (anthropic.ContentBlockDelta, bool) {
	switch {
	case delta.Text != nil:
		return anthropic.ContentBlockDelta{Type: anthropic.DeltaTypeText, Text: *delta.Text}, true
	case delta.ToolUse != nil:
		partial := delta.ToolUse.Input
		return anthropic.ContentBlockDelta{Type: anthropic.DeltaTypeInputJSON, PartialJSON: &partial}, true
	case delta.ReasoningContent != nil:
		rc := delta.ReasoningContent
		switch {
		case rc.Text != nil:
			return anthropic.ContentBlockDelta{Type: anthropic.DeltaTypeThinking, Thinking: *rc.Text}, true
		case rc.Signature != nil:
			return anthropic.ContentBlockDelta{Type: anthropic.DeltaTypeSignature, Signature: *rc.Signature}, true
		case rc.RedactedContent != nil:
			return anthropic.ContentBlockDelta{
				Type: anthropic.DeltaTypeRedactedThinking,
				Data: base64.StdEncoding.EncodeToString(rc.RedactedContent),
			}, true
		}
	}
	return anthropic.ContentBlockDelta{}, false
}

// stopBlock closes the block at index. Stops for indices that never opened
// are dropped.
func (s *StreamTranslator) stopBlock(out []anthropic.StreamEvent, index int) []anthropic.StreamEvent {
	state, ok := s.blocks[index]
	if !ok || state.stopped {
		return out
	}
	state.stopped = true
	return append(out, anthropic.StreamEvent{ContentBlockStop: &anthropic.ContentBlockStopEvent{
		Type:  anthropic.StreamEventTypeContentBlockStop,
		Index: index,
	}})
}

// closeOpenBlocks emits content_block_stop for every block Bedrock left
// open, in index order.
func (s *StreamTranslator) closeOpenBlocks(out []anthropic.StreamEvent) []anthropic.StreamEvent {
	var open []int
	for index, state := range s.blocks {
		if !state.stopped {
			open = append(open, index)
		}
	}
	slices.Sort(open)
	for _, index := range open {
		out = s.stopBlock(out, index)
	}
	return out
}

// finishMessage emits the terminal message_delta and message_stop pair.
func (s *StreamTranslator) finishMessage(out []anthropic.StreamEvent, reason anthropic.StopReason) []anthropic.StreamEvent {
	s.finished = true
	s.pendingStop = nil
	out = append(out, anthropic.StreamEvent{MessageDelta: &anthropic.MessageDeltaEvent{
		Type:  anthropic.StreamEventTypeMessageDelta,
		Delta: anthropic.MessageDelta{StopReason: reason},
		Usage: anthropic.MessageDeltaUsage{OutputTokens: s.usage.OutputTokens},
	}})
	return append(out, anthropic.StreamEvent{MessageStop: &anthropic.MessageStopEvent{
		Type: anthropic.StreamEventTypeMessageStop,
	}})
}
