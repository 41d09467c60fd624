// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package store defines the persistence contract of the gateway — API key
// records, append-only usage records, and custom model mappings — plus an
// in-memory implementation for development and tests. The sqlite
// subpackage provides the durable implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("record not found")

// APIKey is one provisioned client key.
type APIKey struct {
	// Key is the opaque secret presented by the client; primary key.
	Key    string
	UserID string
	Name   string
	// IsActive false means the key is provisioned but rejected at auth.
	IsActive bool
	// RateLimit overrides the process-wide bucket capacity when non-nil.
	RateLimit *int
	// ServiceTier overrides the default outbound service tier when non-nil.
	ServiceTier *string
	// Metadata is opaque to the gateway.
	Metadata  map[string]string
	CreatedAt time.Time
}

// UsageRecord is one append-only accounting row per served request.
type UsageRecord struct {
	APIKey           string
	Timestamp        time.Time
	RequestID        string
	Model            string
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	Success          bool
	// ErrorMessage is empty on success.
	ErrorMessage string
}

// ModelMapping overrides the built-in model-ID resolution table.
type ModelMapping struct {
	// AnthropicID is the inbound model identifier; primary key.
	AnthropicID string
	// BedrockID is the backend model identifier it resolves to.
	BedrockID string
}

// Store is the persistence surface the gateway depends on. Implementations
// must be safe for concurrent use.
type Store interface {
	// GetAPIKey returns the record for key, or ErrNotFound.
	GetAPIKey(ctx context.Context, key string) (*APIKey, error)
	// PutAPIKey inserts or replaces a key record.
	PutAPIKey(ctx context.Context, rec *APIKey) error

	// InsertUsage appends one usage record.
	InsertUsage(ctx context.Context, rec *UsageRecord) error

	// GetModelMapping returns the backend ID mapped to anthropicID, or
	// ErrNotFound.
	GetModelMapping(ctx context.Context, anthropicID string) (string, error)
	// ListModelMappings returns all custom mappings.
	ListModelMappings(ctx context.Context) ([]ModelMapping, error)
	// PutModelMapping inserts or replaces a mapping.
	PutModelMapping(ctx context.Context, m ModelMapping) error

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	Close() error
}
