// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package translator converts between the Anthropic Messages API and the
// AWS Bedrock Converse API: request bodies outbound, unary responses and
// ConverseStream events inbound. Translation is pure; transport, signing
// and retries live in internal/bedrock.
package translator

import "strings"

// ModelFamily groups backend model identifiers by the request dialect they
// accept. Cache points, top_k, beta flags and the thinking configuration
// are only understood by some families.
type ModelFamily string

const (
	// ModelFamilyClaude covers the Anthropic models hosted on Bedrock.
	ModelFamilyClaude ModelFamily = "claude"
	// ModelFamilyNova2 covers second-generation Amazon Nova models, which
	// take a reasoningConfig instead of Anthropic's thinking object.
	ModelFamilyNova2 ModelFamily = "nova-2"
	// ModelFamilyOther covers everything else; family-specific fields are
	// dropped for it.
	ModelFamilyOther ModelFamily = "other"
)

// DetectModelFamily classifies a resolved backend model identifier. The
// identifier may carry a region routing prefix ("us.", "eu.") and a
// ":<version>" qualifier; both are ignored for classification.
func DetectModelFamily(modelID string) ModelFamily {
	if strings.Contains(modelID, "claude") {
		return ModelFamilyClaude
	}
	const novaPrefix = "amazon.nova-"
	if i := strings.Index(modelID, novaPrefix); i >= 0 {
		variant := modelID[i+len(novaPrefix):]
		if j := strings.IndexByte(variant, ':'); j >= 0 {
			variant = variant[:j]
		}
		if strings.HasSuffix(variant, "-2") {
			return ModelFamilyNova2
		}
	}
	return ModelFamilyOther
}

// RequestOptions carries the per-request knobs resolved outside the
// translator: feature gates from configuration, the beta value mapping
// table, and the service tier picked from the key record or the process
// default. A disabled gate silently strips the feature it covers rather
// than rejecting the request.
type RequestOptions struct {
	EnableToolUse          bool
	EnableExtendedThinking bool
	EnableDocumentSupport  bool
	EnablePromptCaching    bool
	// BetaHeaderMap rewrites anthropic_beta values to their Bedrock
	// equivalents; values missing from the table pass through unchanged.
	BetaHeaderMap map[string]string
	// ServiceTier is attached verbatim when non-empty.
	ServiceTier string
}

// imageFormats maps Anthropic image media types to Bedrock image formats.
// Media types outside this table are a validation error.
var imageFormats = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// documentFormats maps Anthropic document media types to Bedrock document
// formats. Media types outside this table are a validation error.
var documentFormats = map[string]string{
	"application/pdf":    "pdf",
	"text/csv":           "csv",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"text/html":     "html",
	"text/plain":    "txt",
	"text/markdown": "md",
}
