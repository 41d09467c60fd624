// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package modelmap resolves inbound Anthropic model identifiers to Bedrock
// model identifiers: custom store mappings first, then the built-in table,
// then pass-through. Resolution never fails; an unknown ID goes to the
// backend unchanged and the backend decides whether it exists.
package modelmap

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/bedrockgate/bedrockgate/internal/store"
)

// MappingSource is the slice of the store the resolver consumes.
type MappingSource interface {
	GetModelMapping(ctx context.Context, anthropicID string) (string, error)
	ListModelMappings(ctx context.Context) ([]store.ModelMapping, error)
}

// Model is one catalog entry served by GET /v1/models.
type Model struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Provider           string   `json:"provider"`
	InputModalities    []string `json:"input_modalities"`
	OutputModalities   []string `json:"output_modalities"`
	StreamingSupported bool     `json:"streaming_supported"`
}

// defaultTable maps current Anthropic model IDs to their cross-region
// Bedrock inference profiles.
var defaultTable = map[string]string{
	"claude-opus-4-1-20250805":   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	"claude-opus-4-20250514":     "us.anthropic.claude-opus-4-20250514-v1:0",
	"claude-sonnet-4-5-20250929": "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-sonnet-4-20250514":   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	"claude-haiku-4-5-20251001":  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-3-7-sonnet-20250219": "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-3-5-sonnet-20241022": "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku-20241022":  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-haiku-20240307":    "us.anthropic.claude-3-haiku-20240307-v1:0",
}

var defaultNames = map[string]string{
	"claude-opus-4-1-20250805":   "Claude Opus 4.1",
	"claude-opus-4-20250514":     "Claude Opus 4",
	"claude-sonnet-4-5-20250929": "Claude Sonnet 4.5",
	"claude-sonnet-4-20250514":   "Claude Sonnet 4",
	"claude-haiku-4-5-20251001":  "Claude Haiku 4.5",
	"claude-3-7-sonnet-20250219": "Claude 3.7 Sonnet",
	"claude-3-5-sonnet-20241022": "Claude 3.5 Sonnet v2",
	"claude-3-5-haiku-20241022":  "Claude 3.5 Haiku",
	"claude-3-haiku-20240307":    "Claude 3 Haiku",
}

// Resolver answers model-ID lookups. Safe for concurrent use.
type Resolver struct {
	source MappingSource
	logger *slog.Logger
}

// NewResolver builds a resolver over source. A nil source skips the custom
// tier.
func NewResolver(source MappingSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve maps anthropicID to a Bedrock model ID. Store failures fall
// through to the built-in table, never to the caller.
func (r *Resolver) Resolve(ctx context.Context, anthropicID string) string {
	if r.source != nil {
		id, err := r.source.GetModelMapping(ctx, anthropicID)
		switch {
		case err == nil:
			return id
		case !errors.Is(err, store.ErrNotFound):
			r.logger.DebugContext(ctx, "model mapping lookup failed, using defaults",
				slog.String("model", anthropicID), slog.String("error", err.Error()))
		}
	}
	if id, ok := defaultTable[anthropicID]; ok {
		return id
	}
	return anthropicID
}

// List returns the model catalog: the built-in table merged with the custom
// mappings, sorted by ID. Custom entries shadow built-in ones.
func (r *Resolver) List(ctx context.Context) []Model {
	ids := make(map[string]struct{}, len(defaultTable))
	for id := range defaultTable {
		ids[id] = struct{}{}
	}
	if r.source != nil {
		custom, err := r.source.ListModelMappings(ctx)
		if err != nil {
			r.logger.DebugContext(ctx, "model mapping list failed, serving defaults",
				slog.String("error", err.Error()))
		}
		for _, m := range custom {
			ids[m.AnthropicID] = struct{}{}
		}
	}

	out := make([]Model, 0, len(ids))
	for id := range ids {
		name := defaultNames[id]
		if name == "" {
			name = id
		}
		out = append(out, Model{
			ID:                 id,
			Name:               name,
			Provider:           "anthropic",
			InputModalities:    []string{"text", "image", "document"},
			OutputModalities:   []string{"text"},
			StreamingSupported: true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
