// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"encoding/base64"

	"github.com/google/uuid"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
)

// TranslateResponse converts a unary Converse response into a Messages API
// response. requestModel is echoed back because Bedrock does not repeat the
// model in its body. The response ID is freshly minted; Bedrock's own
// request ID stays in headers and logs.
func TranslateResponse(resp *awsbedrock.ConverseResponse, requestModel string) *anthropic.MessagesResponse {
	out := &anthropic.MessagesResponse{
		ID:      NewMessageID(),
		Type:    anthropic.MessageObjectType,
		Role:    anthropic.MessageRoleAssistant,
		Model:   requestModel,
		Content: make([]anthropic.ContentBlock, 0, len(resp.Output.Message.Content)),
	}
	for i := range resp.Output.Message.Content {
		b := &resp.Output.Message.Content[i]
		switch {
		case b.Text != nil:
			out.Content = append(out.Content, anthropic.NewTextBlock(*b.Text))
		case b.ToolUse != nil:
			out.Content = append(out.Content, anthropic.NewToolUseBlock(b.ToolUse.ToolUseID, b.ToolUse.Name, b.ToolUse.Input))
		case b.ReasoningContent != nil:
			if rt := b.ReasoningContent.ReasoningText; rt != nil {
				out.Content = append(out.Content, anthropic.NewThinkingBlock(rt.Text, rt.Signature))
			} else if rc := b.ReasoningContent.RedactedContent; rc != nil {
				out.Content = append(out.Content, anthropic.NewRedactedThinkingBlock(base64.StdEncoding.EncodeToString(rc)))
			}
		}
		// Models do not produce image or document blocks through Converse;
		// anything unrecognized is skipped rather than failing the response.
	}
	stop := TranslateStopReason(resp.StopReason)
	out.StopReason = &stop
	if resp.Usage != nil {
		out.Usage = translateUsage(resp.Usage)
	}
	return out
}

// NewMessageID mints a response identifier in the Messages API shape.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// TranslateStopReason maps a Bedrock stop reason onto the Messages API
// vocabulary. Guardrail and content-filter stops surface as end_turn with
// the generated text preserved; flagging them is left to observability.
func TranslateStopReason(reason string) anthropic.StopReason {
	switch reason {
	case awsbedrock.StopReasonEndTurn:
		return anthropic.StopReasonEndTurn
	case awsbedrock.StopReasonStopSequence:
		return anthropic.StopReasonStopSequence
	case awsbedrock.StopReasonMaxTokens:
		return anthropic.StopReasonMaxTokens
	case awsbedrock.StopReasonToolUse:
		return anthropic.StopReasonToolUse
	default:
		// content_filtered, guardrail_intervened, and anything Bedrock adds.
		return anthropic.StopReasonEndTurn
	}
}

// translateUsage copies Bedrock token accounting; absent cache counters
// report as zero.
func translateUsage(u *awsbedrock.TokenUsage) anthropic.Usage {
	out := anthropic.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	if u.CacheReadInputTokens != nil {
		out.CacheReadInputTokens = *u.CacheReadInputTokens
	}
	if u.CacheWriteInputTokens != nil {
		out.CacheCreationInputTokens = *u.CacheWriteInputTokens
	}
	return out
}
