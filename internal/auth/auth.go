// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package auth resolves the inbound API key header to an identity the rest
// of the pipeline trusts: an admin (master key), a provisioned key from the
// store, or the shared anonymous identity when keys are optional.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/store"
)

// AnonymousKey is the synthetic identity for keyless requests when
// REQUIRE_API_KEY is off. It still participates in rate limiting, so all
// anonymous traffic shares one bucket.
const AnonymousKey = "anonymous"

// KeyContext is the authenticated identity attached to an in-flight
// request.
type KeyContext struct {
	// Key is the raw key the limiter buckets on.
	Key    string
	UserID string
	// IsAdmin bypasses rate limiting.
	IsAdmin bool
	// RateLimit overrides the default bucket capacity when non-nil.
	RateLimit *int
	// ServiceTier overrides the default outbound tier when non-nil.
	ServiceTier *string
}

// KeySource is the slice of the store the authenticator consumes.
type KeySource interface {
	GetAPIKey(ctx context.Context, key string) (*store.APIKey, error)
}

// Authenticator validates raw keys. Safe for concurrent use.
type Authenticator struct {
	source    KeySource
	masterKey string
	required  bool
}

// NewAuthenticator builds an authenticator over source. masterKey may be
// empty to disable the admin path; required controls whether keyless
// requests are rejected.
func NewAuthenticator(source KeySource, masterKey string, required bool) *Authenticator {
	return &Authenticator{source: source, masterKey: masterKey, required: required}
}

// Authenticate resolves rawKey to a KeyContext. Auth failures carry the
// authentication_error kind with one-word reasons (missing, unknown,
// inactive); store outages propagate unclassified.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*KeyContext, error) {
	if rawKey == "" {
		if a.required {
			return nil, internalapi.Errorf(internalapi.ErrorTypeAuthentication, "missing")
		}
		return &KeyContext{Key: AnonymousKey}, nil
	}

	if a.masterKey != "" &&
		subtle.ConstantTimeCompare([]byte(rawKey), []byte(a.masterKey)) == 1 {
		return &KeyContext{Key: rawKey, UserID: "admin", IsAdmin: true}, nil
	}

	rec, err := a.source.GetAPIKey(ctx, rawKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, internalapi.Errorf(internalapi.ErrorTypeAuthentication, "unknown")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if !rec.IsActive {
		return nil, internalapi.Errorf(internalapi.ErrorTypeAuthentication, "inactive")
	}

	return &KeyContext{
		Key:         rec.Key,
		UserID:      rec.UserID,
		RateLimit:   rec.RateLimit,
		ServiceTier: rec.ServiceTier,
	}, nil
}
