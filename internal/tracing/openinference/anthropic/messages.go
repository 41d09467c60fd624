// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package anthropic records OpenInference attributes for Messages spans.
package anthropic

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/json"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
	"github.com/bedrockgate/bedrockgate/internal/tracing/openinference"
)

// MessageRecorder implements recorders for OpenInference Messages spans.
type MessageRecorder struct {
	traceConfig *openinference.TraceConfig
}

// NewMessageRecorderFromEnv creates a tracingapi.MessageRecorder configured
// from environment variables using the OpenInference configuration
// specification.
//
// See: https://github.com/Arize-ai/openinference/blob/main/spec/configuration.md
func NewMessageRecorderFromEnv() tracingapi.MessageRecorder {
	return NewMessageRecorder(nil)
}

// NewMessageRecorder creates a tracingapi.MessageRecorder with the given
// config. A nil config defaults to NewTraceConfigFromEnv.
func NewMessageRecorder(config *openinference.TraceConfig) tracingapi.MessageRecorder {
	if config == nil {
		config = openinference.NewTraceConfigFromEnv()
	}
	return &MessageRecorder{traceConfig: config}
}

// startOpts sets trace.SpanKindInternal as that's the span kind used in
// OpenInference.
var startOpts = []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}

// StartParams implements the same method as defined in tracingapi.MessageRecorder.
func (r *MessageRecorder) StartParams(*anthropic.MessagesRequest, []byte) (spanName string, opts []trace.SpanStartOption) {
	return "Message", startOpts
}

// RecordRequest implements the same method as defined in tracingapi.MessageRecorder.
func (r *MessageRecorder) RecordRequest(span trace.Span, req *anthropic.MessagesRequest, body []byte) {
	span.SetAttributes(buildRequestAttributes(req, string(body), r.traceConfig)...)
}

// RecordResponseChunks implements the same method as defined in tracingapi.MessageRecorder.
func (r *MessageRecorder) RecordResponseChunks(span trace.Span, events []*anthropic.StreamEvent) {
	if len(events) > 0 {
		span.AddEvent("First Token Stream Event")
	}
	r.RecordResponse(span, convertSSEToResponse(events))
}

// RecordResponseOnError implements the same method as defined in tracingapi.MessageRecorder.
func (r *MessageRecorder) RecordResponseOnError(span trace.Span, statusCode int, body []byte) {
	openinference.RecordResponseError(span, statusCode, string(body))
}

// RecordResponse implements the same method as defined in tracingapi.MessageRecorder.
func (r *MessageRecorder) RecordResponse(span trace.Span, resp *anthropic.MessagesResponse) {
	attrs := buildResponseAttributes(resp, r.traceConfig)

	bodyString := openinference.RedactedValue
	if !r.traceConfig.HideOutputs {
		if marshaled, err := json.Marshal(resp); err == nil {
			bodyString = string(marshaled)
		}
	}
	attrs = append(attrs, attribute.String(openinference.OutputValue, bodyString))
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// llmInvocationParameters is the representation of LLMInvocationParameters:
// every request field except the prompt content. Messages and tools have
// their own attributes; the system prompt is content and is excluded
// outright.
type llmInvocationParameters struct {
	anthropic.MessagesRequest
	Messages []anthropic.Message     `json:"messages,omitempty"`
	System   *anthropic.SystemPrompt `json:"system,omitempty"`
	Tools    []anthropic.Tool        `json:"tools,omitempty"`
}

// buildRequestAttributes builds OpenInference attributes from the request.
func buildRequestAttributes(req *anthropic.MessagesRequest, body string, config *openinference.TraceConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(openinference.SpanKind, openinference.SpanKindLLM),
		attribute.String(openinference.LLMSystem, openinference.LLMSystemAnthropic),
		attribute.String(openinference.LLMModelName, req.Model),
	}

	if config.HideInputs {
		attrs = append(attrs, attribute.String(openinference.InputValue, openinference.RedactedValue))
	} else {
		attrs = append(attrs,
			attribute.String(openinference.InputValue, body),
			attribute.String(openinference.InputMimeType, openinference.MimeTypeJSON),
		)
	}

	if !config.HideLLMInvocationParameters {
		if paramsJSON, err := json.Marshal(llmInvocationParameters{MessagesRequest: *req}); err == nil {
			attrs = append(attrs, attribute.String(openinference.LLMInvocationParameters, string(paramsJSON)))
		}
	}

	if !config.HideInputs && !config.HideInputMessages {
		for i, msg := range req.Messages {
			attrs = append(attrs, attribute.String(openinference.InputMessageAttribute(i, openinference.MessageRole), string(msg.Role)))
			switch content := msg.Content; {
			case content.Text != "":
				maybeRedacted := content.Text
				if config.HideInputText {
					maybeRedacted = openinference.RedactedValue
				}
				attrs = append(attrs, attribute.String(openinference.InputMessageAttribute(i, openinference.MessageContent), maybeRedacted))
			case content.Array != nil:
				for j, block := range content.Array {
					if block.Text == nil {
						// Only text blocks have an OpenInference content
						// mapping.
						continue
					}
					maybeRedacted := block.Text.Text
					if config.HideInputText {
						maybeRedacted = openinference.RedactedValue
					}
					attrs = append(attrs,
						attribute.String(openinference.InputMessageContentAttribute(i, j, "text"), maybeRedacted),
						attribute.String(openinference.InputMessageContentAttribute(i, j, "type"), "text"),
					)
				}
			}
		}
	}

	// Add indexed attributes for each tool.
	for i, tool := range req.Tools {
		if toolJSON, err := json.Marshal(tool); err == nil {
			attrs = append(attrs, attribute.String(openinference.InputToolsAttribute(i), string(toolJSON)))
		}
	}
	return attrs
}

func buildResponseAttributes(resp *anthropic.MessagesResponse, config *openinference.TraceConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(openinference.LLMModelName, resp.Model),
	}

	if !config.HideOutputs {
		attrs = append(attrs, attribute.String(openinference.OutputMimeType, openinference.MimeTypeJSON))
	}

	if !config.HideOutputs && !config.HideOutputMessages {
		for i, block := range resp.Content {
			attrs = append(attrs, attribute.String(openinference.OutputMessageAttribute(i, openinference.MessageRole), string(resp.Role)))

			switch {
			case block.Text != nil:
				txt := block.Text.Text
				if config.HideOutputText {
					txt = openinference.RedactedValue
				}
				attrs = append(attrs, attribute.String(openinference.OutputMessageAttribute(i, openinference.MessageContent), txt))
			case block.ToolUse != nil:
				tool := block.ToolUse
				attrs = append(attrs,
					attribute.String(openinference.OutputMessageToolCallAttribute(i, 0, openinference.ToolCallID), tool.ID),
					attribute.String(openinference.OutputMessageToolCallAttribute(i, 0, openinference.ToolCallFunctionName), tool.Name),
				)
				if inputJSON, err := json.Marshal(tool.Input); err == nil {
					attrs = append(attrs, attribute.String(openinference.OutputMessageToolCallAttribute(i, 0, openinference.ToolCallFunctionArguments), string(inputJSON)))
				}
			}
		}
	}

	// Token counts are considered metadata and are still included even when
	// output content is hidden. Cache writes only occur when the request
	// created cache entries, so that count is omitted at zero.
	u := resp.Usage
	attrs = append(attrs,
		attribute.Int(openinference.LLMTokenCountPrompt, int(u.InputTokens)),
		attribute.Int(openinference.LLMTokenCountPromptCacheHit, int(u.CacheReadInputTokens)),
	)
	if u.CacheCreationInputTokens > 0 {
		attrs = append(attrs, attribute.Int(openinference.LLMTokenCountPromptCacheWrite, int(u.CacheCreationInputTokens)))
	}
	attrs = append(attrs,
		attribute.Int(openinference.LLMTokenCountCompletion, int(u.OutputTokens)),
		attribute.Int(openinference.LLMTokenCountTotal, int(u.InputTokens+u.CacheReadInputTokens+u.CacheCreationInputTokens+u.OutputTokens)),
	)
	return attrs
}

// convertSSEToResponse folds a complete event stream back into the
// equivalent unary MessagesResponse so both response surfaces share the
// response attribute building.
func convertSSEToResponse(events []*anthropic.StreamEvent) *anthropic.MessagesResponse {
	var response anthropic.MessagesResponse
	toolInputs := make(map[int]string)

	for _, event := range events {
		switch {
		case event.MessageStart != nil:
			response = event.MessageStart.Message
			if response.Content == nil {
				response.Content = []anthropic.ContentBlock{}
			}

		case event.ContentBlockStart != nil:
			idx := event.ContentBlockStart.Index
			// Grow slice if needed.
			if idx >= len(response.Content) {
				newContent := make([]anthropic.ContentBlock, idx+1)
				copy(newContent, response.Content)
				response.Content = newContent
			}
			response.Content[idx] = event.ContentBlockStart.ContentBlock

		case event.ContentBlockDelta != nil:
			idx := event.ContentBlockDelta.Index
			if idx >= len(response.Content) {
				continue
			}
			block := &response.Content[idx]
			delta := event.ContentBlockDelta.Delta

			if block.Text != nil && delta.Text != "" {
				block.Text.Text += delta.Text
			}
			if block.ToolUse != nil && delta.PartialJSON != nil {
				toolInputs[idx] += *delta.PartialJSON
			}
			if block.Thinking != nil {
				if delta.Thinking != "" {
					block.Thinking.Thinking += delta.Thinking
				}
				if delta.Signature != "" {
					block.Thinking.Signature = delta.Signature
				}
			}

		case event.ContentBlockStop != nil:
			idx := event.ContentBlockStop.Index
			if jsonStr, ok := toolInputs[idx]; ok {
				if idx < len(response.Content) && response.Content[idx].ToolUse != nil {
					var input map[string]any
					if err := json.Unmarshal([]byte(jsonStr), &input); err == nil {
						response.Content[idx].ToolUse.Input = input
					}
				}
				delete(toolInputs, idx)
			}

		case event.MessageDelta != nil:
			// Output tokens are cumulative in message_delta; the input side
			// arrived with message_start.
			response.Usage.OutputTokens = event.MessageDelta.Usage.OutputTokens
			stopReason := event.MessageDelta.Delta.StopReason
			response.StopReason = &stopReason
			response.StopSequence = event.MessageDelta.Delta.StopSequence
		}
	}
	return &response
}
