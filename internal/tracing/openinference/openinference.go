// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openinference defines the OpenInference trace semantic conventions
// recorded on Messages spans, and the configuration that controls which of
// them carry payload content.
//
// See: https://github.com/Arize-ai/openinference/blob/main/spec/semantic_conventions.md
package openinference

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	// SpanKind is the OpenInference span kind, distinct from the OTel one.
	SpanKind = "openinference.span.kind"
	// LLMSystem is the AI product as identified by the client or server.
	LLMSystem = "llm.system"
	// LLMModelName is the name of the language model being utilized.
	LLMModelName = "llm.model_name"
	// LLMInvocationParameters is the object of invocation parameters, which
	// excludes the prompt content: messages, system and tools have their own
	// attributes.
	LLMInvocationParameters = "llm.invocation_parameters"
	// LLMTools prefixes the JSON schemas of the tools offered to the model.
	LLMTools = "llm.tools"
	// InputValue is the request body.
	InputValue = "input.value"
	// InputMimeType is the MIME type of InputValue.
	InputMimeType = "input.mime_type"
	// OutputValue is the response body.
	OutputValue = "output.value"
	// OutputMimeType is the MIME type of OutputValue.
	OutputMimeType = "output.mime_type"
	// MessageRole is the role of a message, relative to an input or output
	// message prefix.
	MessageRole = "message.role"
	// MessageContent is the text content of a message, relative to an input
	// or output message prefix.
	MessageContent = "message.content"
	// ToolCallID is the identifier of a tool call requested by the model.
	ToolCallID = "tool_call.id"
	// ToolCallFunctionName is the name of the function the model wants
	// invoked.
	ToolCallFunctionName = "tool_call.function.name"
	// ToolCallFunctionArguments is the JSON arguments of a tool call.
	ToolCallFunctionArguments = "tool_call.function.arguments"
	// LLMTokenCountPrompt counts the non-cached prompt tokens.
	LLMTokenCountPrompt = "llm.token_count.prompt"
	// LLMTokenCountPromptCacheHit counts the prompt tokens served from cache.
	LLMTokenCountPromptCacheHit = "llm.token_count.prompt_details.cache_read"
	// LLMTokenCountPromptCacheWrite counts the prompt tokens written to
	// cache.
	LLMTokenCountPromptCacheWrite = "llm.token_count.prompt_details.cache_write"
	// LLMTokenCountCompletion counts the output tokens.
	LLMTokenCountCompletion = "llm.token_count.completion"
	// LLMTokenCountTotal is the sum of prompt, cache and completion tokens.
	LLMTokenCountTotal = "llm.token_count.total"
)

// Attribute values.
const (
	// SpanKindLLM marks a span covering a language model invocation.
	SpanKindLLM = "LLM"
	// LLMSystemAnthropic is the LLMSystem value for the Messages API.
	LLMSystemAnthropic = "anthropic"
	// MimeTypeJSON is the MIME type of JSON-valued attributes.
	MimeTypeJSON = "application/json"
	// RedactedValue replaces content hidden by TraceConfig.
	RedactedValue = "__REDACTED__"
)

// InputMessageAttribute returns the attribute key for the i-th input
// message, e.g. "llm.input_messages.0.message.role".
func InputMessageAttribute(i int, attr string) string {
	return fmt.Sprintf("llm.input_messages.%d.%s", i, attr)
}

// OutputMessageAttribute returns the attribute key for the i-th output
// message, e.g. "llm.output_messages.0.message.content".
func OutputMessageAttribute(i int, attr string) string {
	return fmt.Sprintf("llm.output_messages.%d.%s", i, attr)
}

// InputMessageContentAttribute returns the attribute key for the j-th
// content block of the i-th input message, e.g.
// "llm.input_messages.0.message.contents.1.message_content.text".
func InputMessageContentAttribute(i, j int, attr string) string {
	return fmt.Sprintf("llm.input_messages.%d.message.contents.%d.message_content.%s", i, j, attr)
}

// OutputMessageToolCallAttribute returns the attribute key for the j-th tool
// call of the i-th output message, e.g.
// "llm.output_messages.0.message.tool_calls.0.tool_call.id".
func OutputMessageToolCallAttribute(i, j int, attr string) string {
	return fmt.Sprintf("llm.output_messages.%d.message.tool_calls.%d.%s", i, j, attr)
}

// InputToolsAttribute returns the attribute key holding the JSON schema of
// the i-th tool, e.g. "llm.tools.0.tool.json_schema".
func InputToolsAttribute(i int) string {
	return fmt.Sprintf("%s.%d.tool.json_schema", LLMTools, i)
}

// RecordResponseError records an upstream failure on the span: an exception
// event plus an error status carrying the status code and body.
func RecordResponseError(span trace.Span, statusCode int, body string) {
	errorMessage := fmt.Sprintf("Error code: %d - %s", statusCode, body)
	span.RecordError(errors.New(errorMessage))
	span.SetStatus(codes.Error, errorMessage)
}
