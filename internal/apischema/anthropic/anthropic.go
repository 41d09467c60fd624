// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package anthropic contains the inbound wire schema: the subset of the
// Anthropic Messages API this gateway serves, including the SSE stream
// event payloads. Content blocks are tagged unions with one pointer field
// per variant; UnmarshalJSON sniffs the `type` tag, MarshalJSON emits the
// first non-nil variant.
package anthropic

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/bedrockgate/bedrockgate/internal/json"
)

// MessageRole is the author of a message.
// https://docs.claude.com/en/api/messages#body-messages-role
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// MessagesRequest is the body of POST /v1/messages.
// https://docs.claude.com/en/api/messages
type MessagesRequest struct {
	// Model is the Anthropic-side model identifier; resolution to a backend
	// identifier happens outside this package.
	Model string `json:"model"`
	// MaxTokens must be a positive integer.
	// https://docs.claude.com/en/api/messages#body-max-tokens
	MaxTokens int64 `json:"max_tokens"`
	// Messages is the conversation so far, alternating user/assistant.
	Messages []Message `json:"messages"`
	// System is the system prompt: a plain string or a list of text blocks.
	// https://docs.claude.com/en/api/messages#body-system
	System *SystemPrompt `json:"system,omitempty"`
	// Metadata describes the request originator.
	Metadata *Metadata `json:"metadata,omitempty"`
	// StopSequences are custom sequences that end generation.
	StopSequences []string `json:"stop_sequences,omitempty"`
	// Stream selects the SSE response surface.
	Stream      bool     `json:"stream,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	// Thinking enables extended thinking with a token budget.
	// https://docs.claude.com/en/api/messages#body-thinking
	Thinking   *Thinking   `json:"thinking,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
	Tools      []Tool      `json:"tools,omitempty"`
	TopK       *int64      `json:"top_k,omitempty"`
	TopP       *float64    `json:"top_p,omitempty"`
	// AnthropicBeta lists opted-in beta features. Values sent via the
	// anthropic-beta request header are merged into this field upstream of
	// translation.
	AnthropicBeta []string `json:"anthropic_beta,omitempty"`
}

// Metadata is the request metadata object.
// https://docs.claude.com/en/api/messages#body-metadata
type Metadata struct {
	UserID *string `json:"user_id,omitempty"`
}

// Message is one turn of the conversation.
type Message struct {
	Role    MessageRole    `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a plain string or an array of content blocks.
// https://docs.claude.com/en/api/messages#body-messages-content
type MessageContent struct {
	Text  string         // Non-empty if this is not array content.
	Array []ContentBlock // Non-nil if this is array content.
}

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	// Try to unmarshal as string first.
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		m.Text = text
		return nil
	}
	var array []ContentBlock
	if err := json.Unmarshal(data, &array); err == nil {
		m.Array = array
		return nil
	}
	return errors.New("message content must be either a string or an array of blocks")
}

func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.Array != nil {
		return json.Marshal(m.Array)
	}
	return json.Marshal(m.Text)
}

// SystemPrompt is either a plain string or an array of text blocks.
type SystemPrompt struct {
	Text  string      // Non-empty if this is not array content.
	Array []TextBlock // Non-nil if this is array content.
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		s.Text = text
		return nil
	}
	var array []TextBlock
	if err := json.Unmarshal(data, &array); err == nil {
		s.Array = array
		return nil
	}
	return errors.New("system must be either a string or an array of text blocks")
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Array != nil {
		return json.Marshal(s.Array)
	}
	return json.Marshal(s.Text)
}

// CacheControl marks the preceding prompt prefix as cacheable.
// https://docs.claude.com/en/docs/build-with-claude/prompt-caching
type CacheControl struct {
	Type string `json:"type"` // Always "ephemeral".
}

// CacheControlTypeEphemeral is the only cache control type today.
const CacheControlTypeEphemeral = "ephemeral"

// Content block type tags.
const (
	contentBlockTypeText             = "text"
	contentBlockTypeImage            = "image"
	contentBlockTypeDocument         = "document"
	contentBlockTypeToolUse          = "tool_use"
	contentBlockTypeToolResult       = "tool_result"
	contentBlockTypeThinking         = "thinking"
	contentBlockTypeRedactedThinking = "redacted_thinking"
)

type (
	// ContentBlock is one element of a message content array. Exactly one
	// variant pointer is set. Blocks whose type tag is not recognized are
	// preserved verbatim in Unknown so the translator can reject them with
	// the offending tag intact.
	ContentBlock struct {
		Text             *TextBlock
		Image            *ImageBlock
		Document         *DocumentBlock
		ToolUse          *ToolUseBlock
		ToolResult       *ToolResultBlock
		Thinking         *ThinkingBlock
		RedactedThinking *RedactedThinkingBlock
		Unknown          json.RawMessage
	}

	// TextBlock is a text content block.
	// https://docs.claude.com/en/api/messages#text_block_param
	TextBlock struct {
		Type         string        `json:"type"` // Always "text".
		Text         string        `json:"text"`
		CacheControl *CacheControl `json:"cache_control,omitempty"`
	}

	// ImageBlock is a base64-encoded image.
	// https://docs.claude.com/en/api/messages#image_block_param
	ImageBlock struct {
		Type         string        `json:"type"` // Always "image".
		Source       ImageSource   `json:"source"`
		CacheControl *CacheControl `json:"cache_control,omitempty"`
	}

	// ImageSource carries the image payload.
	ImageSource struct {
		Type string `json:"type"` // Always "base64".
		// MediaType is e.g. "image/png".
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	}

	// DocumentBlock is a base64-encoded document.
	// https://docs.claude.com/en/api/messages#document_block_param
	DocumentBlock struct {
		Type         string         `json:"type"` // Always "document".
		Source       DocumentSource `json:"source"`
		Title        string         `json:"title,omitempty"`
		CacheControl *CacheControl  `json:"cache_control,omitempty"`
	}

	// DocumentSource carries the document payload.
	DocumentSource struct {
		Type string `json:"type"` // Always "base64".
		// MediaType is e.g. "application/pdf".
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	}

	// ToolUseBlock is the model asking for a tool invocation.
	// https://docs.claude.com/en/api/messages#tool_use_block_param
	ToolUseBlock struct {
		Type string `json:"type"` // Always "tool_use".
		ID   string `json:"id"`
		Name string `json:"name"`
		// Input is the tool call arguments, an arbitrary JSON object.
		Input any `json:"input"`
	}

	// ToolResultBlock is the client reporting a tool invocation outcome.
	// https://docs.claude.com/en/api/messages#tool_result_block_param
	ToolResultBlock struct {
		Type      string `json:"type"` // Always "tool_result".
		ToolUseID string `json:"tool_use_id"`
		// Content is a plain string or an array of blocks (text/image).
		Content ToolResultContent `json:"content"`
		IsError bool              `json:"is_error,omitempty"`
	}

	// ThinkingBlock is an extended thinking block.
	// https://docs.claude.com/en/api/messages#thinking_block_param
	ThinkingBlock struct {
		Type      string `json:"type"` // Always "thinking".
		Thinking  string `json:"thinking"`
		Signature string `json:"signature,omitempty"`
	}

	// RedactedThinkingBlock carries thinking content the model encrypted.
	RedactedThinkingBlock struct {
		Type string `json:"type"` // Always "redacted_thinking".
		Data string `json:"data"`
	}
)

// ToolResultContent is either a plain string or an array of content blocks.
type ToolResultContent struct {
	Text  string         // Non-empty if this is not array content.
	Array []ContentBlock // Non-nil if this is array content.
}

func (c *ToolResultContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		return nil
	}
	var array []ContentBlock
	if err := json.Unmarshal(data, &array); err == nil {
		c.Array = array
		return nil
	}
	return errors.New("tool result content must be either a string or an array of blocks")
}

func (c ToolResultContent) MarshalJSON() ([]byte, error) {
	if c.Array != nil {
		return json.Marshal(c.Array)
	}
	return json.Marshal(c.Text)
}

func (m *ContentBlock) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("missing type field in message content block")
	}
	switch typ.String() {
	case contentBlockTypeText:
		var block TextBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal text block: %w", err)
		}
		m.Text = &block
	case contentBlockTypeImage:
		var block ImageBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal image block: %w", err)
		}
		m.Image = &block
	case contentBlockTypeDocument:
		var block DocumentBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal document block: %w", err)
		}
		m.Document = &block
	case contentBlockTypeToolUse:
		var block ToolUseBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal tool use block: %w", err)
		}
		m.ToolUse = &block
	case contentBlockTypeToolResult:
		var block ToolResultBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal tool result block: %w", err)
		}
		m.ToolResult = &block
	case contentBlockTypeThinking:
		var block ThinkingBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal thinking block: %w", err)
		}
		m.Thinking = &block
	case contentBlockTypeRedactedThinking:
		var block RedactedThinkingBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal redacted thinking block: %w", err)
		}
		m.RedactedThinking = &block
	default:
		// Preserve the raw bytes so the translator can report the tag.
		m.Unknown = bytes.Clone(data)
	}
	return nil
}

func (m ContentBlock) MarshalJSON() ([]byte, error) {
	switch {
	case m.Text != nil:
		return json.Marshal(m.Text)
	case m.Image != nil:
		return json.Marshal(m.Image)
	case m.Document != nil:
		return json.Marshal(m.Document)
	case m.ToolUse != nil:
		return json.Marshal(m.ToolUse)
	case m.ToolResult != nil:
		return json.Marshal(m.ToolResult)
	case m.Thinking != nil:
		return json.Marshal(m.Thinking)
	case m.RedactedThinking != nil:
		return json.Marshal(m.RedactedThinking)
	case m.Unknown != nil:
		return m.Unknown, nil
	}
	return nil, errors.New("content block must have a defined type")
}

// UnknownType returns the type tag of an Unknown block, or "" when the
// block is a known variant.
func (m ContentBlock) UnknownType() string {
	if m.Unknown == nil {
		return ""
	}
	return gjson.GetBytes(m.Unknown, "type").String()
}

// NewTextBlock builds a text block with the type tag set.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Text: &TextBlock{Type: contentBlockTypeText, Text: text}}
}

// NewToolUseBlock builds a tool_use block with the type tag set.
func NewToolUseBlock(id, name string, input any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{ToolUse: &ToolUseBlock{Type: contentBlockTypeToolUse, ID: id, Name: name, Input: input}}
}

// NewThinkingBlock builds a thinking block with the type tag set.
func NewThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Thinking: &ThinkingBlock{Type: contentBlockTypeThinking, Thinking: thinking, Signature: signature}}
}

// NewRedactedThinkingBlock builds a redacted_thinking block with the type
// tag set. Data is already base64.
func NewRedactedThinkingBlock(data string) ContentBlock {
	return ContentBlock{RedactedThinking: &RedactedThinkingBlock{Type: contentBlockTypeRedactedThinking, Data: data}}
}

// Tool is a tool definition offered to the model.
// https://docs.claude.com/en/api/messages#body-tools
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// InputSchema is an opaque JSON schema; the gateway never interprets it.
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

// Tool choice type tags.
const (
	toolChoiceTypeAuto = "auto"
	toolChoiceTypeAny  = "any"
	toolChoiceTypeTool = "tool"
	toolChoiceTypeNone = "none"
)

type (
	// ToolChoice steers whether and which tool the model must call.
	// https://docs.claude.com/en/api/messages#body-tool-choice
	ToolChoice struct {
		Auto *ToolChoiceAuto
		Any  *ToolChoiceAny
		Tool *ToolChoiceTool
		None *ToolChoiceNone
	}

	// ToolChoiceAuto lets the model decide.
	ToolChoiceAuto struct {
		Type string `json:"type"` // Always "auto".
	}

	// ToolChoiceAny forces some tool call.
	ToolChoiceAny struct {
		Type string `json:"type"` // Always "any".
	}

	// ToolChoiceTool forces a call to the named tool.
	ToolChoiceTool struct {
		Type string `json:"type"` // Always "tool".
		Name string `json:"name"`
	}

	// ToolChoiceNone forbids tool calls.
	ToolChoiceNone struct {
		Type string `json:"type"` // Always "none".
	}
)

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("missing type field in tool_choice")
	}
	switch typ.String() {
	case toolChoiceTypeAuto:
		t.Auto = &ToolChoiceAuto{Type: toolChoiceTypeAuto}
	case toolChoiceTypeAny:
		t.Any = &ToolChoiceAny{Type: toolChoiceTypeAny}
	case toolChoiceTypeTool:
		var tc ToolChoiceTool
		if err := json.Unmarshal(data, &tc); err != nil {
			return fmt.Errorf("failed to unmarshal tool choice: %w", err)
		}
		t.Tool = &tc
	case toolChoiceTypeNone:
		t.None = &ToolChoiceNone{Type: toolChoiceTypeNone}
	default:
		// Ignore unknown types for forward compatibility.
	}
	return nil
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	switch {
	case t.Auto != nil:
		return json.Marshal(t.Auto)
	case t.Any != nil:
		return json.Marshal(t.Any)
	case t.Tool != nil:
		return json.Marshal(t.Tool)
	case t.None != nil:
		return json.Marshal(t.None)
	}
	return nil, errors.New("tool choice must have a defined type")
}

// Thinking type tags.
const (
	thinkingTypeEnabled  = "enabled"
	thinkingTypeDisabled = "disabled"
)

type (
	// Thinking is the extended thinking switch.
	// https://docs.claude.com/en/api/messages#body-thinking
	Thinking struct {
		Enabled  *ThinkingEnabled
		Disabled *ThinkingDisabled
	}

	// ThinkingEnabled turns extended thinking on with a token budget.
	ThinkingEnabled struct {
		Type         string `json:"type"` // Always "enabled".
		BudgetTokens int64  `json:"budget_tokens"`
	}

	// ThinkingDisabled turns extended thinking off.
	ThinkingDisabled struct {
		Type string `json:"type"` // Always "disabled".
	}
)

func (t *Thinking) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("missing type field in thinking")
	}
	switch typ.String() {
	case thinkingTypeEnabled:
		var enabled ThinkingEnabled
		if err := json.Unmarshal(data, &enabled); err != nil {
			return fmt.Errorf("failed to unmarshal thinking: %w", err)
		}
		t.Enabled = &enabled
	case thinkingTypeDisabled:
		t.Disabled = &ThinkingDisabled{Type: thinkingTypeDisabled}
	default:
		// Ignore unknown types for forward compatibility.
	}
	return nil
}

func (t Thinking) MarshalJSON() ([]byte, error) {
	switch {
	case t.Enabled != nil:
		return json.Marshal(t.Enabled)
	case t.Disabled != nil:
		return json.Marshal(t.Disabled)
	}
	return nil, errors.New("thinking must have a defined type")
}

// StopReason is why generation ended.
// https://docs.claude.com/en/api/messages#response-stop-reason
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonPauseTurn    StopReason = "pause_turn"
)

// Usage is the billed token accounting for a request.
// https://docs.claude.com/en/api/messages#response-usage
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// MessageObjectType is the constant `type` of a message response.
const MessageObjectType = "message"

// MessagesResponse is the body of a unary 200 response, and the `message`
// field of a message_start stream event.
// https://docs.claude.com/en/api/messages#response-content
type MessagesResponse struct {
	ID   string      `json:"id"`
	Type string      `json:"type"` // Always "message".
	Role MessageRole `json:"role"`
	// Model echoes the client-requested identifier, not the backend one.
	Model   string         `json:"model"`
	Content []ContentBlock `json:"content"`
	// StopReason is null inside message_start, set everywhere else.
	StopReason   *StopReason `json:"stop_reason"`
	StopSequence *string     `json:"stop_sequence"`
	Usage        Usage       `json:"usage"`
}

// ErrorObjectType is the constant `type` of an error response envelope.
const ErrorObjectType = "error"

// ErrorResponse is the Anthropic error body, unary and in-stream.
// https://docs.claude.com/en/api/errors
type ErrorResponse struct {
	Type  string      `json:"type"` // Always "error".
	Error ErrorDetail `json:"error"`
	// RequestID aids support correlation; optional on the wire.
	RequestID *string `json:"request_id,omitempty"`
}

// ErrorDetail is the inner error object.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
