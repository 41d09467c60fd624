// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package internalapi holds the small set of constants and error types
// shared across package boundaries: wire-level header names and the
// user-facing error taxonomy. Nothing here may import other internal
// packages.
package internalapi

const (
	// DefaultAPIKeyHeader is the inbound authentication header unless
	// API_KEY_HEADER overrides it.
	DefaultAPIKeyHeader = "x-api-key"

	// AnthropicBetaHeader carries comma-separated beta feature names.
	AnthropicBetaHeader = "anthropic-beta"

	// AnthropicVersionHeader is accepted and ignored; versioning is pinned
	// by the backend model, not the inbound API version.
	AnthropicVersionHeader = "anthropic-version"

	// RequestIDHeader is echoed on every response for correlation.
	RequestIDHeader = "x-request-id"

	// RetryAfterHeader accompanies rate-limit denials, in integer seconds.
	RetryAfterHeader = "retry-after"
)
