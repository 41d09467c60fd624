// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package json routes all JSON encoding and decoding in this repository
// through sonic. Wire fidelity on the hot path matters more than field
// ordering, so the default (non-deterministic) configuration is used
// everywhere outside of tests.
package json // nolint: revive

import (
	"testing"

	sonicjson "github.com/bytedance/sonic" // nolint: depguard
)

var (
	// Unmarshal is equivalent to encoding/json.Unmarshal.
	Unmarshal = sonicjson.ConfigDefault.Unmarshal
	// Marshal is equivalent to encoding/json.Marshal. Output is minified,
	// which is what the SSE framing requires.
	Marshal = sonicjson.ConfigDefault.Marshal
	// NewEncoder is equivalent to encoding/json.NewEncoder.
	NewEncoder = sonicjson.ConfigDefault.NewEncoder
	// NewDecoder is equivalent to encoding/json.NewDecoder.
	NewDecoder = sonicjson.ConfigDefault.NewDecoder
	// MarshalForDeterministicTesting marshals with encoding/json-compatible
	// field and map-key ordering so tests can compare raw bytes.
	// It panics if called outside of tests.
	MarshalForDeterministicTesting = func(v interface{}) ([]byte, error) {
		if !testing.Testing() {
			panic("MarshalForDeterministicTesting can only be called from tests")
		}
		return sonicjson.ConfigStd.Marshal(v)
	}
)

type (
	// RawMessage is equivalent to encoding/json.RawMessage.
	RawMessage = sonicjson.NoCopyRawMessage
	// Marshaler is the function signature of encoding/json.Marshal.
	Marshaler = func(interface{}) ([]byte, error)
)
