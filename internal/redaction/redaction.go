// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package redaction scrubs prompt and completion text out of Messages API
// payloads so they can be debug-logged. Text is replaced by length+hash
// placeholders while structure, roles, and tool wiring stay visible.
package redaction

import (
	"crypto/sha256"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ComputeContentHash returns the first 64 bits of the SHA-256 of s as a
// 16-character hex string. Identical content always hashes identically, so
// redacted logs can still be correlated for duplicate and cache-hit analysis
// without exposing the content itself.
func ComputeContentHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", hash)[:16]
}

// RedactString replaces s with a placeholder carrying its length and content
// hash, e.g. "[REDACTED LENGTH=5 HASH=2cf24dba5fb0a30e]". Empty strings stay
// empty.
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("[REDACTED LENGTH=%d HASH=%s]", len(s), ComputeContentHash(s))
}

// RedactMessageContent rewrites a Messages API request or response body,
// replacing prompt and completion text with RedactString placeholders. It
// covers string and block-array system prompts, message content in both
// string and block form, thinking and redacted-thinking payloads, and
// tool_result bodies. Tool names, tool_use inputs, and thinking signatures
// are left intact. Bodies that do not parse as JSON come back unchanged.
func RedactMessageContent(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	body = redactContentAt(body, "system", gjson.GetBytes(body, "system"))
	n := gjson.GetBytes(body, "messages.#").Int()
	for i := int64(0); i < n; i++ {
		path := fmt.Sprintf("messages.%d.content", i)
		body = redactContentAt(body, path, gjson.GetBytes(body, path))
	}
	// Non-streaming response bodies carry their blocks at the top level.
	if content := gjson.GetBytes(body, "content"); content.IsArray() {
		body = redactContentAt(body, "content", content)
	}
	return body
}

// redactContentAt handles one content value, which the Messages API allows
// to be either a plain string or an array of typed blocks.
func redactContentAt(body []byte, path string, content gjson.Result) []byte {
	switch {
	case content.Type == gjson.String:
		return redactStringAt(body, path, content.Str)
	case content.IsArray():
		n := content.Get("#").Int()
		for i := int64(0); i < n; i++ {
			body = redactBlock(body, fmt.Sprintf("%s.%d", path, i))
		}
	}
	return body
}

// redactBlock scrubs the text-bearing fields of a single content block.
// tool_result blocks nest another content value one level down.
func redactBlock(body []byte, path string) []byte {
	for _, field := range [...]string{"text", "thinking", "data"} {
		p := path + "." + field
		if v := gjson.GetBytes(body, p); v.Type == gjson.String {
			body = redactStringAt(body, p, v.Str)
		}
	}
	if nested := gjson.GetBytes(body, path+".content"); nested.Exists() {
		body = redactContentAt(body, path+".content", nested)
	}
	return body
}

func redactStringAt(body []byte, path, value string) []byte {
	out, err := sjson.SetBytes(body, path, RedactString(value))
	if err != nil {
		return body
	}
	return out
}
