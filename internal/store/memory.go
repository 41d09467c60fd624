// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package store

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// Memory is an in-process Store. Thread-safe; suitable for development and
// tests, selected when no store path is configured.
type Memory struct {
	mu       sync.RWMutex
	keys     map[string]APIKey
	usage    []UsageRecord
	mappings map[string]string
	closed   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		keys:     make(map[string]APIKey),
		mappings: make(map[string]string),
	}
}

func (m *Memory) GetAPIKey(_ context.Context, key string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.New("store is closed")
	}
	rec, ok := m.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers never alias the stored record.
	rec.Metadata = maps.Clone(rec.Metadata)
	return &rec, nil
}

func (m *Memory) PutAPIKey(_ context.Context, rec *APIKey) error {
	if rec == nil || rec.Key == "" {
		return errors.New("api key record must have a key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	stored := *rec
	stored.Metadata = maps.Clone(rec.Metadata)
	m.keys[rec.Key] = stored
	return nil
}

func (m *Memory) InsertUsage(_ context.Context, rec *UsageRecord) error {
	if rec == nil {
		return errors.New("usage record must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	m.usage = append(m.usage, *rec)
	return nil
}

// Usage returns a snapshot of all recorded usage, oldest first.
func (m *Memory) Usage() []UsageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UsageRecord, len(m.usage))
	copy(out, m.usage)
	return out
}

func (m *Memory) GetModelMapping(_ context.Context, anthropicID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", errors.New("store is closed")
	}
	id, ok := m.mappings[anthropicID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Memory) ListModelMappings(_ context.Context) ([]ModelMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.New("store is closed")
	}
	out := make([]ModelMapping, 0, len(m.mappings))
	for k, v := range m.mappings {
		out = append(out, ModelMapping{AnthropicID: k, BedrockID: v})
	}
	return out, nil
}

func (m *Memory) PutModelMapping(_ context.Context, mapping ModelMapping) error {
	if mapping.AnthropicID == "" {
		return errors.New("model mapping must have an anthropic id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	m.mappings[mapping.AnthropicID] = mapping.BedrockID
	return nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New("store is closed")
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
