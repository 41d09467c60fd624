// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"encoding/base64"
	"fmt"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
)

// Thinking budgets bucket into the Nova reasoning effort scale at these
// boundaries: below the ceiling is "low", above the floor is "high",
// everything between is "medium".
const (
	novaEffortLowCeiling = 1000
	novaEffortHighFloor  = 10000
)

// defaultDocumentName is used when the client omits the document title;
// Bedrock requires a name on every document block.
const defaultDocumentName = "document"

// TranslateRequest builds a Bedrock Converse request from a Messages API
// request. modelID is the resolved backend identifier; it determines the
// model family and travels in the URL path, never in the body. Translation
// is a single pass over the conversation that also validates the
// tool_use/tool_result reference invariant; all returned errors are
// invalid_request kind.
func TranslateRequest(modelID string, req *anthropic.MessagesRequest, opts RequestOptions) (*awsbedrock.ConverseInput, error) {
	if req.MaxTokens <= 0 {
		return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "max_tokens must be a positive integer")
	}
	family := DetectModelFamily(modelID)
	// Cache points are an Anthropic-on-Bedrock feature; other families
	// silently drop cache_control markers.
	cachable := family == ModelFamilyClaude && opts.EnablePromptCaching

	maxTokens := req.MaxTokens
	out := &awsbedrock.ConverseInput{
		Messages: make([]awsbedrock.Message, 0, len(req.Messages)),
		System:   translateSystem(req.System, cachable),
		InferenceConfig: &awsbedrock.InferenceConfiguration{
			MaxTokens:     &maxTokens,
			Temperature:   req.Temperature,
			TopP:          req.TopP,
			StopSequences: req.StopSequences,
		},
	}

	seenToolUseIDs := make(map[string]struct{})
	for i := range req.Messages {
		msg, err := translateMessage(&req.Messages[i], cachable, opts, seenToolUseIDs)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}

	fields := map[string]any{}
	if req.TopK != nil && family == ModelFamilyClaude {
		fields["top_k"] = *req.TopK
	}
	if t := req.Thinking; t != nil && t.Enabled != nil && opts.EnableExtendedThinking {
		switch family {
		case ModelFamilyClaude:
			fields["thinking"] = map[string]any{
				"type":          "enabled",
				"budget_tokens": t.Enabled.BudgetTokens,
			}
		case ModelFamilyNova2:
			fields["reasoningConfig"] = map[string]any{
				"type":               "enabled",
				"maxReasoningEffort": novaReasoningEffort(t.Enabled.BudgetTokens),
			}
			// Nova rejects these inference parameters when reasoning is on.
			out.InferenceConfig.Temperature = nil
			out.InferenceConfig.MaxTokens = nil
		}
	}
	if len(req.AnthropicBeta) > 0 && family == ModelFamilyClaude {
		mapped := make([]string, len(req.AnthropicBeta))
		for i, v := range req.AnthropicBeta {
			if bedrockValue, ok := opts.BetaHeaderMap[v]; ok {
				v = bedrockValue
			}
			mapped[i] = v
		}
		fields["anthropic_beta"] = mapped
	}
	if len(fields) > 0 {
		out.AdditionalModelRequestFields = fields
	}

	// tool_choice "none" is expressed by omitting toolConfig entirely;
	// Converse has no equivalent member.
	if len(req.Tools) > 0 && opts.EnableToolUse && (req.ToolChoice == nil || req.ToolChoice.None == nil) {
		out.ToolConfig = translateToolConfig(req.Tools, req.ToolChoice, cachable)
	}

	if opts.ServiceTier != "" {
		out.ServiceTier = opts.ServiceTier
	}
	return out, nil
}

// novaReasoningEffort buckets an Anthropic thinking token budget into the
// Nova reasoning effort scale.
func novaReasoningEffort(budgetTokens int64) string {
	switch {
	case budgetTokens < novaEffortLowCeiling:
		return "low"
	case budgetTokens > novaEffortHighFloor:
		return "high"
	default:
		return "medium"
	}
}

// translateSystem flattens the system prompt into Bedrock system blocks. A
// block carrying cache_control gets a cachePoint appended immediately after
// it when the model accepts cache points.
func translateSystem(sys *anthropic.SystemPrompt, cachable bool) []awsbedrock.SystemContentBlock {
	if sys == nil {
		return nil
	}
	if sys.Array == nil {
		if sys.Text == "" {
			return nil
		}
		return []awsbedrock.SystemContentBlock{{Text: sys.Text}}
	}
	blocks := make([]awsbedrock.SystemContentBlock, 0, len(sys.Array))
	for i := range sys.Array {
		b := &sys.Array[i]
		blocks = append(blocks, awsbedrock.SystemContentBlock{Text: b.Text})
		if b.CacheControl != nil && cachable {
			blocks = append(blocks, awsbedrock.SystemContentBlock{CachePoint: awsbedrock.NewCachePoint()})
		}
	}
	return blocks
}

// translateMessage converts one conversation turn, recording tool_use IDs
// and validating tool_result references as it goes. Only assistant turns
// issue tool calls, so only their tool_use IDs count as referenceable.
func translateMessage(msg *anthropic.Message, cachable bool, opts RequestOptions, seenToolUseIDs map[string]struct{}) (awsbedrock.Message, error) {
	out := awsbedrock.Message{Role: string(msg.Role)}
	if msg.Content.Array == nil {
		text := msg.Content.Text
		out.Content = []awsbedrock.ContentBlock{{Text: &text}}
		return out, nil
	}
	recordToolUse := msg.Role == anthropic.MessageRoleAssistant
	out.Content = make([]awsbedrock.ContentBlock, 0, len(msg.Content.Array))
	for i := range msg.Content.Array {
		block, hasCacheControl, err := translateContentBlock(&msg.Content.Array[i], opts, recordToolUse, seenToolUseIDs)
		if err != nil {
			return awsbedrock.Message{}, err
		}
		if block != nil {
			out.Content = append(out.Content, *block)
		}
		if hasCacheControl && cachable {
			out.Content = append(out.Content, awsbedrock.ContentBlock{CachePoint: awsbedrock.NewCachePoint()})
		}
	}
	return out, nil
}

// translateContentBlock converts one content block. A nil block with a nil
// error means the block was stripped by a feature gate. The bool reports
// whether the source block carried cache_control, so the caller can insert
// the cache point after it.
func translateContentBlock(b *anthropic.ContentBlock, opts RequestOptions, recordToolUse bool, seenToolUseIDs map[string]struct{}) (*awsbedrock.ContentBlock, bool, error) {
	switch {
	case b.Text != nil:
		text := b.Text.Text
		return &awsbedrock.ContentBlock{Text: &text}, b.Text.CacheControl != nil, nil
	case b.Image != nil:
		img, err := translateImage(&b.Image.Source)
		if err != nil {
			return nil, false, err
		}
		return &awsbedrock.ContentBlock{Image: img}, b.Image.CacheControl != nil, nil
	case b.Document != nil:
		if !opts.EnableDocumentSupport {
			return nil, false, nil
		}
		doc, err := translateDocument(b.Document)
		if err != nil {
			return nil, false, err
		}
		return &awsbedrock.ContentBlock{Document: doc}, b.Document.CacheControl != nil, nil
	case b.ToolUse != nil:
		if recordToolUse {
			seenToolUseIDs[b.ToolUse.ID] = struct{}{}
		}
		input := b.ToolUse.Input
		if input == nil {
			input = map[string]any{}
		}
		return &awsbedrock.ContentBlock{ToolUse: &awsbedrock.ToolUseBlock{
			ToolUseID: b.ToolUse.ID,
			Name:      b.ToolUse.Name,
			Input:     input,
		}}, false, nil
	case b.ToolResult != nil:
		result, err := translateToolResult(b.ToolResult, opts, seenToolUseIDs)
		if err != nil {
			return nil, false, err
		}
		return &awsbedrock.ContentBlock{ToolResult: result}, false, nil
	case b.Thinking != nil:
		return &awsbedrock.ContentBlock{ReasoningContent: &awsbedrock.ReasoningContentBlock{
			ReasoningText: &awsbedrock.ReasoningTextBlock{
				Text:      b.Thinking.Thinking,
				Signature: b.Thinking.Signature,
			},
		}}, false, nil
	case b.RedactedThinking != nil:
		data, err := base64.StdEncoding.DecodeString(b.RedactedThinking.Data)
		if err != nil {
			return nil, false, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "failed to decode redacted_thinking data: %v", err)
		}
		return &awsbedrock.ContentBlock{ReasoningContent: &awsbedrock.ReasoningContentBlock{
			RedactedContent: data,
		}}, false, nil
	default:
		cause := fmt.Errorf("%w: %q", internalapi.ErrUnknownContentBlock, b.UnknownType())
		return nil, false, internalapi.WrapError(internalapi.ErrorTypeInvalidRequest, cause, "unsupported content block type %q", b.UnknownType())
	}
}

func translateImage(src *anthropic.ImageSource) (*awsbedrock.ImageBlock, error) {
	format, ok := imageFormats[src.MediaType]
	if !ok {
		return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "unrecognized image media_type %q", src.MediaType)
	}
	data, err := base64.StdEncoding.DecodeString(src.Data)
	if err != nil {
		return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "failed to decode image data: %v", err)
	}
	return &awsbedrock.ImageBlock{Format: format, Source: awsbedrock.ImageSource{Bytes: data}}, nil
}

func translateDocument(doc *anthropic.DocumentBlock) (*awsbedrock.DocumentBlock, error) {
	format, ok := documentFormats[doc.Source.MediaType]
	if !ok {
		return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "unrecognized document media_type %q", doc.Source.MediaType)
	}
	data, err := base64.StdEncoding.DecodeString(doc.Source.Data)
	if err != nil {
		return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "failed to decode document data: %v", err)
	}
	name := doc.Title
	if name == "" {
		name = defaultDocumentName
	}
	return &awsbedrock.DocumentBlock{Format: format, Name: name, Source: awsbedrock.DocumentSource{Bytes: data}}, nil
}

// translateToolResult converts a tool_result block. The referenced
// tool_use_id must have appeared in an earlier assistant turn. Content is
// either a plain string or a nested block list restricted to what Bedrock
// accepts inside toolResult: text, image and document.
func translateToolResult(tr *anthropic.ToolResultBlock, opts RequestOptions, seenToolUseIDs map[string]struct{}) (*awsbedrock.ToolResultBlock, error) {
	if _, ok := seenToolUseIDs[tr.ToolUseID]; !ok {
		return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "tool_result references unknown tool_use_id %q", tr.ToolUseID)
	}
	out := &awsbedrock.ToolResultBlock{ToolUseID: tr.ToolUseID, Status: awsbedrock.ToolResultStatusSuccess}
	if tr.IsError {
		out.Status = awsbedrock.ToolResultStatusError
	}
	if tr.Content.Array == nil {
		text := tr.Content.Text
		out.Content = []awsbedrock.ToolResultContentBlock{{Text: &text}}
		return out, nil
	}
	out.Content = make([]awsbedrock.ToolResultContentBlock, 0, len(tr.Content.Array))
	for i := range tr.Content.Array {
		b := &tr.Content.Array[i]
		switch {
		case b.Text != nil:
			text := b.Text.Text
			out.Content = append(out.Content, awsbedrock.ToolResultContentBlock{Text: &text})
		case b.Image != nil:
			img, err := translateImage(&b.Image.Source)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, awsbedrock.ToolResultContentBlock{Image: img})
		case b.Document != nil:
			if !opts.EnableDocumentSupport {
				continue
			}
			doc, err := translateDocument(b.Document)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, awsbedrock.ToolResultContentBlock{Document: doc})
		default:
			return nil, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "tool_result content supports only text, image and document blocks")
		}
	}
	return out, nil
}

// translateToolConfig builds the Bedrock tool configuration. The caller has
// already established that tools are present, tool use is enabled and
// tool_choice is not "none".
func translateToolConfig(tools []anthropic.Tool, choice *anthropic.ToolChoice, cachable bool) *awsbedrock.ToolConfiguration {
	cfg := &awsbedrock.ToolConfiguration{Tools: make([]awsbedrock.Tool, 0, len(tools))}
	for i := range tools {
		t := &tools[i]
		spec := &awsbedrock.ToolSpecification{
			Name:        t.Name,
			InputSchema: awsbedrock.ToolInputSchema{JSON: t.InputSchema},
		}
		if t.Description != "" {
			description := t.Description
			spec.Description = &description
		}
		cfg.Tools = append(cfg.Tools, awsbedrock.Tool{ToolSpec: spec})
		if t.CacheControl != nil && cachable {
			cfg.Tools = append(cfg.Tools, awsbedrock.Tool{CachePoint: awsbedrock.NewCachePoint()})
		}
	}
	switch {
	case choice == nil:
	case choice.Auto != nil:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Auto: &awsbedrock.AutoToolChoice{}}
	case choice.Any != nil:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Any: &awsbedrock.AnyToolChoice{}}
	case choice.Tool != nil:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Tool: &awsbedrock.SpecificToolChoice{Name: choice.Tool.Name}}
	}
	return cfg
}
