// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openinference

import (
	"os"
	"strconv"
)

// TraceConfig controls which OpenInference attributes carry payload content.
// Hidden values are replaced with RedactedValue; token counts are metadata
// and are never hidden.
//
// See: https://github.com/Arize-ai/openinference/blob/main/spec/configuration.md
type TraceConfig struct {
	// HideInputs redacts InputValue and drops the input message attributes.
	HideInputs bool
	// HideOutputs redacts OutputValue and drops the output message
	// attributes.
	HideOutputs bool
	// HideInputMessages drops the per-message input attributes only.
	HideInputMessages bool
	// HideOutputMessages drops the per-message output attributes only.
	HideOutputMessages bool
	// HideInputText redacts the text content of input messages while keeping
	// their structure.
	HideInputText bool
	// HideOutputText redacts the text content of output messages while
	// keeping their structure.
	HideOutputText bool
	// HideLLMInvocationParameters drops LLMInvocationParameters.
	HideLLMInvocationParameters bool
}

// NewTraceConfig returns the default configuration: nothing hidden.
func NewTraceConfig() *TraceConfig {
	return &TraceConfig{}
}

// NewTraceConfigFromEnv builds a TraceConfig from the OPENINFERENCE_HIDE_*
// environment variables defined by the OpenInference configuration
// specification. Unset or unparseable values leave content visible.
func NewTraceConfigFromEnv() *TraceConfig {
	return &TraceConfig{
		HideInputs:                  envBool("OPENINFERENCE_HIDE_INPUTS"),
		HideOutputs:                 envBool("OPENINFERENCE_HIDE_OUTPUTS"),
		HideInputMessages:           envBool("OPENINFERENCE_HIDE_INPUT_MESSAGES"),
		HideOutputMessages:          envBool("OPENINFERENCE_HIDE_OUTPUT_MESSAGES"),
		HideInputText:               envBool("OPENINFERENCE_HIDE_INPUT_TEXT"),
		HideOutputText:              envBool("OPENINFERENCE_HIDE_OUTPUT_TEXT"),
		HideLLMInvocationParameters: envBool("OPENINFERENCE_HIDE_LLM_INVOCATION_PARAMETERS"),
	}
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
