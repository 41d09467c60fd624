// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package awsbedrock defines the wire schema of the Bedrock Runtime
// Converse (https://docs.aws.amazon.com/bedrock/latest/APIReference/API_runtime_Converse.html)
// and ConverseStream (https://docs.aws.amazon.com/bedrock/latest/APIReference/API_runtime_ConverseStream.html)
// REST APIs, hand-rolled so the translator controls exactly which fields
// reach the wire. Field names follow the Bedrock JSON surface (camelCase);
// unions are structs with one pointer field per variant.
package awsbedrock

const (
	// StopReasonEndTurn is a StopReason enum value.
	StopReasonEndTurn = "end_turn"

	// StopReasonToolUse is a StopReason enum value.
	StopReasonToolUse = "tool_use"

	// StopReasonMaxTokens is a StopReason enum value.
	StopReasonMaxTokens = "max_tokens"

	// StopReasonStopSequence is a StopReason enum value.
	StopReasonStopSequence = "stop_sequence"

	// StopReasonGuardrailIntervened is a StopReason enum value.
	StopReasonGuardrailIntervened = "guardrail_intervened"

	// StopReasonContentFiltered is a StopReason enum value.
	StopReasonContentFiltered = "content_filtered"

	// ConversationRoleUser is a ConversationRole enum value.
	ConversationRoleUser = "user"

	// ConversationRoleAssistant is a ConversationRole enum value.
	ConversationRoleAssistant = "assistant"
)

// Service tiers accepted by the Converse serviceTier request field.
const (
	ServiceTierDefault  = "default"
	ServiceTierFlex     = "flex"
	ServiceTierPriority = "priority"
	ServiceTierReserved = "reserved"
)

const (
	// ToolResultStatusSuccess is a ToolResultStatus enum value.
	ToolResultStatusSuccess = "success"

	// ToolResultStatusError is a ToolResultStatus enum value.
	ToolResultStatusError = "error"
)

// CachePointTypeDefault is the only cache point type Bedrock accepts.
const CachePointTypeDefault = "default"

// ConverseInput is the request body POSTed to
// /model/{modelId}/converse and /model/{modelId}/converse-stream.
// The model identifier travels in the URL path, not the body.
type ConverseInput struct {
	// The messages of the conversation, in turn order.
	//
	// Messages is a required field.
	Messages []Message `json:"messages"`

	// A prompt that provides instructions or context to the model about how
	// it should behave. Interleave cachePoint blocks to mark cache boundaries.
	System []SystemContentBlock `json:"system,omitempty"`

	// Base inference parameters to pass to the model.
	InferenceConfig *InferenceConfiguration `json:"inferenceConfig,omitempty"`

	// Configuration of the tools the model may request to run.
	ToolConfig *ToolConfiguration `json:"toolConfig,omitempty"`

	// Model-specific parameters outside the base inference surface, passed
	// through to the model untouched (thinking budgets, top_k, and so on).
	AdditionalModelRequestFields map[string]any `json:"additionalModelRequestFields,omitempty"`

	// JSON pointers into the model response to surface under
	// additionalModelResponseFields.
	AdditionalModelResponseFieldPaths []string `json:"additionalModelResponseFieldPaths,omitempty"`

	// The processing tier for the request. Not every model supports every
	// tier; an unsupported tier fails with a ValidationException.
	ServiceTier string `json:"serviceTier,omitempty"`
}

// InferenceConfiguration holds base inference parameters common to all
// Converse models. Model-specific parameters ride
// additionalModelRequestFields instead.
type InferenceConfiguration struct {
	// The maximum number of tokens to allow in the generated response.
	MaxTokens *int64 `json:"maxTokens,omitempty"`

	// Sequences of characters that cause the model to stop generating.
	StopSequences []string `json:"stopSequences,omitempty"`

	// The likelihood of the model selecting higher-probability options while
	// generating a response.
	Temperature *float64 `json:"temperature,omitempty"`

	// The percentage of most-likely candidates that the model considers for
	// the next token.
	TopP *float64 `json:"topP,omitempty"`
}

// SystemContentBlock is one entry of the system prompt array: either a
// text segment or a cache point marking everything before it as cacheable.
type SystemContentBlock struct {
	Text       string           `json:"text,omitempty"`
	CachePoint *CachePointBlock `json:"cachePoint,omitempty"`
}

// CachePointBlock marks a prompt-cache boundary.
type CachePointBlock struct {
	// Type is a required field; the only accepted value is "default".
	Type string `json:"type"`
}

// NewCachePoint returns a cache point block of the default type.
func NewCachePoint() *CachePointBlock {
	return &CachePointBlock{Type: CachePointTypeDefault}
}

// Message is one conversation turn.
type Message struct {
	// Role is a required field. Valid values: user | assistant.
	Role string `json:"role"`

	// Content is a required field.
	Content []ContentBlock `json:"content"`
}

// ContentBlock is the Converse content union: exactly one field is set.
type ContentBlock struct {
	Text             *string                `json:"text,omitempty"`
	Image            *ImageBlock            `json:"image,omitempty"`
	Document         *DocumentBlock         `json:"document,omitempty"`
	ToolUse          *ToolUseBlock          `json:"toolUse,omitempty"`
	ToolResult       *ToolResultBlock       `json:"toolResult,omitempty"`
	ReasoningContent *ReasoningContentBlock `json:"reasoningContent,omitempty"`
	CachePoint       *CachePointBlock       `json:"cachePoint,omitempty"`
}

// ImageBlock is an image to include in the conversation.
type ImageBlock struct {
	// Format of the image. Valid values: png | jpeg | gif | webp.
	Format string `json:"format"`

	Source ImageSource `json:"source"`
}

// ImageSource carries the raw image bytes; JSON encoding base64s them.
type ImageSource struct {
	Bytes []byte `json:"bytes"`
}

// DocumentBlock is a document to include in the conversation.
type DocumentBlock struct {
	// Format of the document.
	// Valid values: pdf | csv | doc | docx | xls | xlsx | html | txt | md.
	Format string `json:"format"`

	// Name of the document; Bedrock rejects names with special characters.
	Name string `json:"name"`

	Source DocumentSource `json:"source"`
}

// DocumentSource carries the raw document bytes; JSON encoding base64s them.
type DocumentSource struct {
	Bytes []byte `json:"bytes"`
}

// ToolUseBlock is the model asking for a tool to be run.
type ToolUseBlock struct {
	// ToolUseID is a required field.
	ToolUseID string `json:"toolUseId"`

	// Name of the tool being requested.
	Name string `json:"name"`

	// Input to pass to the tool.
	Input any `json:"input"`
}

// ToolResultBlock carries the result of running a requested tool back to
// the model.
type ToolResultBlock struct {
	// ToolUseID of the request this result answers. Required.
	ToolUseID string `json:"toolUseId"`

	Content []ToolResultContentBlock `json:"content"`

	// Status of the tool invocation. Valid values: success | error.
	Status string `json:"status,omitempty"`
}

// ToolResultContentBlock is the tool result content union.
type ToolResultContentBlock struct {
	JSON     any            `json:"json,omitempty"`
	Text     *string        `json:"text,omitempty"`
	Image    *ImageBlock    `json:"image,omitempty"`
	Document *DocumentBlock `json:"document,omitempty"`
}

// ReasoningContentBlock is the model's chain of thought: either readable
// reasoning text or content the model encrypted to preserve its safety
// properties.
type ReasoningContentBlock struct {
	ReasoningText   *ReasoningTextBlock `json:"reasoningText,omitempty"`
	RedactedContent []byte              `json:"redactedContent,omitempty"`
}

// ReasoningTextBlock is readable reasoning plus the signature that lets
// the model verify the text on a later turn.
type ReasoningTextBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolConfiguration lists the tools available to the model and constrains
// how the model may pick one.
type ToolConfiguration struct {
	// Tools is a required field.
	Tools []Tool `json:"tools"`

	ToolChoice *ToolChoice `json:"toolChoice,omitempty"`
}

// Tool is one entry of the tool list: a specification or a cache point.
type Tool struct {
	ToolSpec   *ToolSpecification `json:"toolSpec,omitempty"`
	CachePoint *CachePointBlock   `json:"cachePoint,omitempty"`
}

// ToolSpecification describes a tool the model may request.
type ToolSpecification struct {
	// Name is a required field.
	Name string `json:"name"`

	Description *string `json:"description,omitempty"`

	// InputSchema is a required field.
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema wraps the JSON schema of a tool's input.
type ToolInputSchema struct {
	JSON any `json:"json"`
}

// ToolChoice constrains tool selection: exactly one field is set.
type ToolChoice struct {
	Auto *AutoToolChoice     `json:"auto,omitempty"`
	Any  *AnyToolChoice      `json:"any,omitempty"`
	Tool *SpecificToolChoice `json:"tool,omitempty"`
}

// AutoToolChoice lets the model decide whether to call a tool.
type AutoToolChoice struct{}

// AnyToolChoice forces the model to call some tool.
type AnyToolChoice struct{}

// SpecificToolChoice forces the model to call the named tool.
type SpecificToolChoice struct {
	// Name is a required field.
	Name string `json:"name"`
}

// ConverseResponse is the body of a successful unary Converse call.
type ConverseResponse struct {
	// Output is a required field.
	Output ConverseOutput `json:"output"`

	// StopReason is a required field.
	StopReason string `json:"stopReason"`

	// Usage is a required field.
	Usage *TokenUsage `json:"usage"`

	Metrics *ConverseMetrics `json:"metrics,omitempty"`
}

// ConverseOutput wraps the generated message.
type ConverseOutput struct {
	Message Message `json:"message"`
}

// ConverseMetrics reports backend-side latency.
type ConverseMetrics struct {
	LatencyMs int64 `json:"latencyMs"`
}

// TokenUsage reports the token consumption of a call. The cache fields are
// only present when the request carried cache points.
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`

	CacheReadInputTokens  *int64 `json:"cacheReadInputTokens,omitempty"`
	CacheWriteInputTokens *int64 `json:"cacheWriteInputTokens,omitempty"`
}

// ConverseStream event types, carried in the :event-type header of each
// eventstream frame.
const (
	StreamEventTypeMessageStart      = "messageStart"
	StreamEventTypeContentBlockStart = "contentBlockStart"
	StreamEventTypeContentBlockDelta = "contentBlockDelta"
	StreamEventTypeContentBlockStop  = "contentBlockStop"
	StreamEventTypeMessageStop       = "messageStop"
	StreamEventTypeMetadata          = "metadata"
)

// ConverseStream exception types, carried in the :exception-type header of
// frames whose :message-type is "exception".
const (
	ExceptionTypeInternalServer   = "internalServerException"
	ExceptionTypeModelStreamError = "modelStreamErrorException"
	ExceptionTypeThrottling       = "throttlingException"
	ExceptionTypeValidation       = "validationException"
)

// ConverseStreamEvent is the payload of one ConverseStream frame. Which
// fields are populated depends on the frame's event type, so the payloads
// of every event type decode into this one struct.
type ConverseStreamEvent struct {
	// Role opens the message on a messageStart frame.
	Role *string `json:"role,omitempty"`

	// ContentBlockIndex locates contentBlockStart/Delta/Stop frames.
	ContentBlockIndex int `json:"contentBlockIndex,omitempty"`

	// Start is present on contentBlockStart frames.
	Start *ContentBlockStart `json:"start,omitempty"`

	// Delta is present on contentBlockDelta frames.
	Delta *ConverseStreamEventContentBlockDelta `json:"delta,omitempty"`

	// StopReason is present on messageStop frames.
	StopReason *string `json:"stopReason,omitempty"`

	// Usage is present on metadata frames.
	Usage *TokenUsage `json:"usage,omitempty"`
}

// ContentBlockStart opens a content block mid-stream. Text blocks stream
// without a start frame; tool use always announces itself here.
type ContentBlockStart struct {
	ToolUse *ToolUseBlockStart `json:"toolUse,omitempty"`
}

// ToolUseBlockStart identifies the tool call a block streams arguments for.
type ToolUseBlockStart struct {
	// ToolUseID is a required field.
	ToolUseID string `json:"toolUseId"`

	// Name is a required field.
	Name string `json:"name"`
}

// ConverseStreamEventContentBlockDelta is the streamed increment of one
// content block: exactly one field is set.
type ConverseStreamEventContentBlockDelta struct {
	Text             *string                     `json:"text,omitempty"`
	ToolUse          *ToolUseBlockDelta          `json:"toolUse,omitempty"`
	ReasoningContent *ReasoningContentBlockDelta `json:"reasoningContent,omitempty"`
}

// ToolUseBlockDelta streams a fragment of the tool input JSON.
type ToolUseBlockDelta struct {
	Input string `json:"input"`
}

// ReasoningContentBlockDelta streams a fragment of a reasoning block:
// readable text, the closing signature, or redacted bytes.
type ReasoningContentBlockDelta struct {
	Text            *string `json:"text,omitempty"`
	Signature       *string `json:"signature,omitempty"`
	RedactedContent []byte  `json:"redactedContent,omitempty"`
}

// BedrockException is the error payload of unary error responses and of
// eventstream exception frames. The machine-readable kind travels in the
// x-amzn-errortype header (unary) or the :exception-type header (stream),
// not in the body.
type BedrockException struct {
	Message string `json:"message"`
}
