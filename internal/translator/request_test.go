// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
)

// mustRequest parses a Messages API request body the way the gateway does.
func mustRequest(t *testing.T, body string) *anthropic.MessagesRequest {
	t.Helper()
	var req anthropic.MessagesRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestTranslateRequest_Simple(t *testing.T) {
	req := mustRequest(t, `{"model":"claude-sonnet-4-5-20250929","max_tokens":16,"messages":[{"role":"user","content":"Hi"}]}`)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)

	got, err := json.MarshalForDeterministicTesting(out)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"messages":[{"role":"user","content":[{"text":"Hi"}]}],
		"inferenceConfig":{"maxTokens":16}
	}`, string(got))
}

func TestTranslateRequest_ToolRoundTripOrder(t *testing.T) {
	req := mustRequest(t, `{
		"model":"claude-sonnet-4-5-20250929",
		"max_tokens":128,
		"messages":[
			{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"x","input":{}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"ok"}]}
		]
	}`)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)

	got, err := json.MarshalForDeterministicTesting(out.Messages)
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"role":"assistant","content":[{"toolUse":{"toolUseId":"toolu_1","name":"x","input":{}}}]},
		{"role":"user","content":[{"toolResult":{"toolUseId":"toolu_1","content":[{"text":"ok"}],"status":"success"}}]}
	]`, string(got))
}

func TestTranslateRequest_InferenceConfig(t *testing.T) {
	req := mustRequest(t, `{
		"model":"claude-sonnet-4-5-20250929",
		"max_tokens":1024,
		"temperature":0.7,
		"top_p":0.9,
		"stop_sequences":["STOP","END"],
		"messages":[{"role":"user","content":"Hi"}]
	}`)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)

	cfg := out.InferenceConfig
	require.NotNil(t, cfg)
	require.Equal(t, int64(1024), *cfg.MaxTokens)
	require.Equal(t, 0.7, *cfg.Temperature)
	require.Equal(t, 0.9, *cfg.TopP)
	require.Equal(t, []string{"STOP", "END"}, cfg.StopSequences)
}

func TestTranslateRequest_Validation(t *testing.T) {
	tests := []struct {
		name             string
		body             string
		wantMsg          string
		wantUnknownBlock bool
	}{
		{
			name:    "max_tokens missing",
			body:    `{"model":"m","messages":[{"role":"user","content":"Hi"}]}`,
			wantMsg: "max_tokens must be a positive integer",
		},
		{
			name:    "max_tokens negative",
			body:    `{"model":"m","max_tokens":-1,"messages":[{"role":"user","content":"Hi"}]}`,
			wantMsg: "max_tokens must be a positive integer",
		},
		{
			name: "tool_result without prior tool_use",
			body: `{"model":"m","max_tokens":16,"messages":[
				{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_9","content":"ok"}]}
			]}`,
			wantMsg: `tool_result references unknown tool_use_id "toolu_9"`,
		},
		{
			name: "tool_use in a user turn is not referenceable",
			body: `{"model":"m","max_tokens":16,"messages":[
				{"role":"user","content":[{"type":"tool_use","id":"toolu_1","name":"x","input":{}}]},
				{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"ok"}]}
			]}`,
			wantMsg: `tool_result references unknown tool_use_id "toolu_1"`,
		},
		{
			name: "unrecognized image media type",
			body: `{"model":"m","max_tokens":16,"messages":[
				{"role":"user","content":[{"type":"image","source":{"type":"base64","media_type":"image/tiff","data":"aGk="}}]}
			]}`,
			wantMsg: `unrecognized image media_type "image/tiff"`,
		},
		{
			name: "unrecognized document media type",
			body: `{"model":"m","max_tokens":16,"messages":[
				{"role":"user","content":[{"type":"document","source":{"type":"base64","media_type":"application/zip","data":"aGk="}}]}
			]}`,
			wantMsg: `unrecognized document media_type "application/zip"`,
		},
		{
			name: "unknown content block type",
			body: `{"model":"m","max_tokens":16,"messages":[
				{"role":"user","content":[{"type":"banana","weight":3}]}
			]}`,
			wantMsg:          `unsupported content block type "banana"`,
			wantUnknownBlock: true,
		},
		{
			name: "tool_result content with nested tool_use",
			body: `{"model":"m","max_tokens":16,"messages":[
				{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"x","input":{}}]},
				{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":[{"type":"tool_use","id":"toolu_2","name":"y","input":{}}]}]}
			]}`,
			wantMsg: "tool_result content supports only text, image and document blocks",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := mustRequest(t, tc.body)
			_, err := TranslateRequest(claudeModel, req, allOptions())
			require.Error(t, err)

			var ge *internalapi.GatewayError
			require.ErrorAs(t, err, &ge)
			require.Equal(t, internalapi.ErrorTypeInvalidRequest, ge.Type)
			require.Equal(t, tc.wantMsg, ge.Message)
			if tc.wantUnknownBlock {
				require.True(t, errors.Is(err, internalapi.ErrUnknownContentBlock))
			}
		})
	}
}

func TestTranslateRequest_System(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"system":"be brief","messages":[{"role":"user","content":"Hi"}]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Equal(t, []awsbedrock.SystemContentBlock{{Text: "be brief"}}, out.System)
	})

	t.Run("blocks with cache_control", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"system":[
			{"type":"text","text":"one","cache_control":{"type":"ephemeral"}},
			{"type":"text","text":"two"}
		],"messages":[{"role":"user","content":"Hi"}]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Equal(t, []awsbedrock.SystemContentBlock{
			{Text: "one"},
			{CachePoint: awsbedrock.NewCachePoint()},
			{Text: "two"},
		}, out.System)
	})

	t.Run("cache points dropped for non-claude models", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"system":[
			{"type":"text","text":"one","cache_control":{"type":"ephemeral"}}
		],"messages":[{"role":"user","content":"Hi"}]}`)
		out, err := TranslateRequest(otherModel, req, allOptions())
		require.NoError(t, err)
		require.Equal(t, []awsbedrock.SystemContentBlock{{Text: "one"}}, out.System)
	})

	t.Run("cache points dropped when caching disabled", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"system":[
			{"type":"text","text":"one","cache_control":{"type":"ephemeral"}}
		],"messages":[{"role":"user","content":"Hi"}]}`)
		opts := allOptions()
		opts.EnablePromptCaching = false
		out, err := TranslateRequest(claudeModel, req, opts)
		require.NoError(t, err)
		require.Equal(t, []awsbedrock.SystemContentBlock{{Text: "one"}}, out.System)
	})
}

func TestTranslateRequest_MessageCachePoint(t *testing.T) {
	req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
		{"role":"user","content":[
			{"type":"text","text":"long context","cache_control":{"type":"ephemeral"}},
			{"type":"text","text":"question"}
		]}
	]}`)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)

	content := out.Messages[0].Content
	require.Len(t, content, 3)
	require.Equal(t, "long context", *content[0].Text)
	require.NotNil(t, content[1].CachePoint)
	require.Equal(t, "question", *content[2].Text)
}

func TestTranslateRequest_ImageAndDocument(t *testing.T) {
	// "aGk=" is base64 for "hi".
	req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
		{"role":"user","content":[
			{"type":"image","source":{"type":"base64","media_type":"image/png","data":"aGk="}},
			{"type":"document","source":{"type":"base64","media_type":"application/pdf","data":"aGk="},"title":"report"},
			{"type":"document","source":{"type":"base64","media_type":"text/plain","data":"aGk="}}
		]}
	]}`)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)

	content := out.Messages[0].Content
	require.Len(t, content, 3)
	require.Equal(t, "png", content[0].Image.Format)
	require.Equal(t, []byte("hi"), content[0].Image.Source.Bytes)
	require.Equal(t, "pdf", content[1].Document.Format)
	require.Equal(t, "report", content[1].Document.Name)
	require.Equal(t, "txt", content[2].Document.Format)
	require.Equal(t, "document", content[2].Document.Name)
}

func TestTranslateRequest_DocumentGateStripsBlocks(t *testing.T) {
	req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
		{"role":"user","content":[
			{"type":"text","text":"see attachment"},
			{"type":"document","source":{"type":"base64","media_type":"application/pdf","data":"aGk="}}
		]}
	]}`)
	opts := allOptions()
	opts.EnableDocumentSupport = false
	out, err := TranslateRequest(claudeModel, req, opts)
	require.NoError(t, err)

	content := out.Messages[0].Content
	require.Len(t, content, 1)
	require.Equal(t, "see attachment", *content[0].Text)
}

func TestTranslateRequest_ThinkingBlocks(t *testing.T) {
	// "c2VjcmV0" is base64 for "secret".
	req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
		{"role":"assistant","content":[
			{"type":"thinking","thinking":"pondering","signature":"sig1"},
			{"type":"redacted_thinking","data":"c2VjcmV0"}
		]}
	]}`)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)

	content := out.Messages[0].Content
	require.Len(t, content, 2)
	require.Equal(t, "pondering", content[0].ReasoningContent.ReasoningText.Text)
	require.Equal(t, "sig1", content[0].ReasoningContent.ReasoningText.Signature)
	require.Equal(t, []byte("secret"), content[1].ReasoningContent.RedactedContent)
}

func TestTranslateRequest_Thinking(t *testing.T) {
	const body = `{"model":"m","max_tokens":2048,"temperature":0.5,
		"thinking":{"type":"enabled","budget_tokens":%d},
		"messages":[{"role":"user","content":"Hi"}]}`

	t.Run("claude keeps inference config", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, 5000))
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Equal(t, map[string]any{
			"type":          "enabled",
			"budget_tokens": int64(5000),
		}, out.AdditionalModelRequestFields["thinking"])
		require.NotNil(t, out.InferenceConfig.MaxTokens)
		require.NotNil(t, out.InferenceConfig.Temperature)
	})

	t.Run("nova-2 medium at budget 5000 clears temperature and maxTokens", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, 5000))
		out, err := TranslateRequest(novaModel, req, allOptions())
		require.NoError(t, err)
		require.Equal(t, map[string]any{
			"type":               "enabled",
			"maxReasoningEffort": "medium",
		}, out.AdditionalModelRequestFields["reasoningConfig"])
		require.Nil(t, out.InferenceConfig.MaxTokens)
		require.Nil(t, out.InferenceConfig.Temperature)
	})

	t.Run("other families drop thinking", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, 5000))
		out, err := TranslateRequest(otherModel, req, allOptions())
		require.NoError(t, err)
		require.Nil(t, out.AdditionalModelRequestFields)
		require.NotNil(t, out.InferenceConfig.MaxTokens)
	})

	t.Run("gate off drops thinking for claude", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, 5000))
		opts := allOptions()
		opts.EnableExtendedThinking = false
		out, err := TranslateRequest(claudeModel, req, opts)
		require.NoError(t, err)
		require.Nil(t, out.AdditionalModelRequestFields)
	})

	t.Run("disabled thinking sends nothing", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"thinking":{"type":"disabled"},"messages":[{"role":"user","content":"Hi"}]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Nil(t, out.AdditionalModelRequestFields)
	})
}

func TestNovaReasoningEffort(t *testing.T) {
	tests := []struct {
		budget int64
		want   string
	}{
		{1, "low"},
		{999, "low"},
		{1000, "medium"},
		{5000, "medium"},
		{10000, "medium"},
		{10001, "high"},
		{100000, "high"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, novaReasoningEffort(tc.budget), "budget %d", tc.budget)
	}
}

func TestTranslateRequest_TopK(t *testing.T) {
	const body = `{"model":"m","max_tokens":16,"top_k":40,"messages":[{"role":"user","content":"Hi"}]}`

	req := mustRequest(t, body)
	out, err := TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)
	require.Equal(t, int64(40), out.AdditionalModelRequestFields["top_k"])

	req = mustRequest(t, body)
	out, err = TranslateRequest(otherModel, req, allOptions())
	require.NoError(t, err)
	require.Nil(t, out.AdditionalModelRequestFields)
}

func TestTranslateRequest_BetaValues(t *testing.T) {
	req := mustRequest(t, `{"model":"m","max_tokens":16,
		"anthropic_beta":["advanced-tool-use-2025-11-20","my-custom-beta"],
		"messages":[{"role":"user","content":"Hi"}]}`)
	opts := allOptions()
	opts.BetaHeaderMap = map[string]string{"advanced-tool-use-2025-11-20": "tool-examples-2025-10-29"}
	out, err := TranslateRequest(claudeModel, req, opts)
	require.NoError(t, err)
	require.Equal(t, []string{"tool-examples-2025-10-29", "my-custom-beta"},
		out.AdditionalModelRequestFields["anthropic_beta"])

	// Beta flags are an Anthropic feature; other families never see them.
	req = mustRequest(t, `{"model":"m","max_tokens":16,
		"anthropic_beta":["advanced-tool-use-2025-11-20"],
		"messages":[{"role":"user","content":"Hi"}]}`)
	out, err = TranslateRequest(otherModel, req, opts)
	require.NoError(t, err)
	require.Nil(t, out.AdditionalModelRequestFields)
}

func TestTranslateRequest_ToolConfig(t *testing.T) {
	const body = `{"model":"m","max_tokens":16,
		"tools":[{"name":"get_weather","description":"Look up weather.","input_schema":{"type":"object","properties":{"city":{"type":"string"}}}}],
		"tool_choice":{"type":%q%s},
		"messages":[{"role":"user","content":"Hi"}]}`

	t.Run("auto", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, "auto", ""))
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.NotNil(t, out.ToolConfig)
		require.NotNil(t, out.ToolConfig.ToolChoice.Auto)

		spec := out.ToolConfig.Tools[0].ToolSpec
		require.Equal(t, "get_weather", spec.Name)
		require.Equal(t, "Look up weather.", *spec.Description)
		schema, err := json.MarshalForDeterministicTesting(spec.InputSchema.JSON)
		require.NoError(t, err)
		require.JSONEq(t, `{"type":"object","properties":{"city":{"type":"string"}}}`, string(schema))
	})

	t.Run("any", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, "any", ""))
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.NotNil(t, out.ToolConfig.ToolChoice.Any)
	})

	t.Run("tool", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, "tool", `,"name":"get_weather"`))
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Equal(t, "get_weather", out.ToolConfig.ToolChoice.Tool.Name)
	})

	t.Run("none omits toolConfig", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, "none", ""))
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Nil(t, out.ToolConfig)
	})

	t.Run("gate off omits toolConfig", func(t *testing.T) {
		req := mustRequest(t, fmt.Sprintf(body, "auto", ""))
		opts := allOptions()
		opts.EnableToolUse = false
		out, err := TranslateRequest(claudeModel, req, opts)
		require.NoError(t, err)
		require.Nil(t, out.ToolConfig)
	})

	t.Run("no tool_choice leaves selection to the model", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,
			"tools":[{"name":"t","input_schema":{"type":"object"}}],
			"messages":[{"role":"user","content":"Hi"}]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.NotNil(t, out.ToolConfig)
		require.Nil(t, out.ToolConfig.ToolChoice)
	})

	t.Run("tool definition cache_control", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,
			"tools":[{"name":"t","input_schema":{"type":"object"},"cache_control":{"type":"ephemeral"}}],
			"messages":[{"role":"user","content":"Hi"}]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		require.Len(t, out.ToolConfig.Tools, 2)
		require.NotNil(t, out.ToolConfig.Tools[0].ToolSpec)
		require.NotNil(t, out.ToolConfig.Tools[1].CachePoint)
	})
}

func TestTranslateRequest_ToolResultVariants(t *testing.T) {
	t.Run("is_error maps to error status", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
			{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"x","input":{}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"boom","is_error":true}]}
		]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		result := out.Messages[1].Content[0].ToolResult
		require.Equal(t, awsbedrock.ToolResultStatusError, result.Status)
		require.Equal(t, "boom", *result.Content[0].Text)
	})

	t.Run("nested blocks", func(t *testing.T) {
		req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
			{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"x","input":{}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":[
				{"type":"text","text":"caption"},
				{"type":"image","source":{"type":"base64","media_type":"image/jpeg","data":"aGk="}}
			]}]}
		]}`)
		out, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
		result := out.Messages[1].Content[0].ToolResult
		require.Len(t, result.Content, 2)
		require.Equal(t, "caption", *result.Content[0].Text)
		require.Equal(t, "jpeg", result.Content[1].Image.Format)
	})

	t.Run("tool_use id visible within the same message", func(t *testing.T) {
		// A single user turn answering two calls issued earlier.
		req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[
			{"role":"assistant","content":[
				{"type":"tool_use","id":"toolu_1","name":"x","input":{}},
				{"type":"tool_use","id":"toolu_2","name":"y","input":{"q":1}}
			]},
			{"role":"user","content":[
				{"type":"tool_result","tool_use_id":"toolu_1","content":"a"},
				{"type":"tool_result","tool_use_id":"toolu_2","content":"b"}
			]}
		]}`)
		_, err := TranslateRequest(claudeModel, req, allOptions())
		require.NoError(t, err)
	})
}

func TestTranslateRequest_ServiceTier(t *testing.T) {
	req := mustRequest(t, `{"model":"m","max_tokens":16,"messages":[{"role":"user","content":"Hi"}]}`)
	opts := allOptions()
	opts.ServiceTier = awsbedrock.ServiceTierFlex
	out, err := TranslateRequest(claudeModel, req, opts)
	require.NoError(t, err)
	require.Equal(t, "flex", out.ServiceTier)

	req = mustRequest(t, `{"model":"m","max_tokens":16,"messages":[{"role":"user","content":"Hi"}]}`)
	out, err = TranslateRequest(claudeModel, req, allOptions())
	require.NoError(t, err)
	require.Empty(t, out.ServiceTier)
}

func TestTranslateRequest_ToolReferenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tool_result references resolve to earlier tool_use ids", prop.ForAll(
		func(pairs int, text string) bool {
			req := &anthropic.MessagesRequest{Model: "claude-sonnet-4-5", MaxTokens: 32}
			for i := 0; i < pairs; i++ {
				id := fmt.Sprintf("toolu_%d", i)
				req.Messages = append(req.Messages,
					anthropic.Message{Role: anthropic.MessageRoleAssistant, Content: anthropic.MessageContent{Array: []anthropic.ContentBlock{
						anthropic.NewTextBlock(text),
						anthropic.NewToolUseBlock(id, "tool", map[string]any{"i": i}),
					}}},
					anthropic.Message{Role: anthropic.MessageRoleUser, Content: anthropic.MessageContent{Array: []anthropic.ContentBlock{
						{ToolResult: &anthropic.ToolResultBlock{Type: "tool_result", ToolUseID: id, Content: anthropic.ToolResultContent{Text: "ok"}}},
					}}},
				)
			}
			out, err := TranslateRequest(claudeModel, req, allOptions())
			if err != nil {
				return false
			}
			seen := map[string]bool{}
			for _, msg := range out.Messages {
				for _, b := range msg.Content {
					if b.ToolUse != nil {
						seen[b.ToolUse.ToolUseID] = true
					}
					if b.ToolResult != nil && !seen[b.ToolResult.ToolUseID] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.AlphaString(),
	))

	properties.Property("forward references are rejected", prop.ForAll(
		func(id string) bool {
			req := &anthropic.MessagesRequest{
				Model:     "claude-sonnet-4-5",
				MaxTokens: 32,
				Messages: []anthropic.Message{
					{Role: anthropic.MessageRoleUser, Content: anthropic.MessageContent{Array: []anthropic.ContentBlock{
						{ToolResult: &anthropic.ToolResultBlock{Type: "tool_result", ToolUseID: id, Content: anthropic.ToolResultContent{Text: "ok"}}},
					}}},
					{Role: anthropic.MessageRoleAssistant, Content: anthropic.MessageContent{Array: []anthropic.ContentBlock{
						anthropic.NewToolUseBlock(id, "tool", nil),
					}}},
				},
			}
			_, err := TranslateRequest(claudeModel, req, allOptions())
			return err != nil && internalapi.Classify(err).Type == internalapi.ErrorTypeInvalidRequest
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
