// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package internaltesting holds helpers shared by the test suites.
package internaltesting

import "testing"

// ClearTestEnv clears every env var the gateway reads to avoid inheriting
// settings from the user's shell.
func ClearTestEnv(t testing.TB) {
	t.Helper()
	for _, env := range []string{
		"LISTEN_ADDR",
		"AWS_REGION",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
		"AWS_SESSION_TOKEN",
		"AWS_PROFILE",
		"BEDROCK_ENDPOINT",
		"REQUEST_TIMEOUT",
		"REQUIRE_API_KEY",
		"MASTER_API_KEY",
		"API_KEY_HEADER",
		"RATE_LIMIT_ENABLED",
		"RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_WINDOW",
		"BUCKET_TTL",
		"ENABLE_TOOL_USE",
		"ENABLE_EXTENDED_THINKING",
		"ENABLE_DOCUMENT_SUPPORT",
		"PROMPT_CACHING_ENABLED",
		"DEFAULT_SERVICE_TIER",
		"STREAMING_TIMEOUT",
		"STORE_PATH",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"BETA_HEADER_MAP",
		"OTEL_SDK_DISABLED",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
		"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
		"OTEL_EXPORTER_OTLP_PROTOCOL",
		"OTEL_EXPORTER_OTLP_HEADERS",
		"OTEL_METRICS_EXPORTER",
		"OTEL_TRACES_EXPORTER",
		"OTEL_PROPAGATORS",
		"OTEL_RESOURCE_ATTRIBUTES",
		"OTEL_SERVICE_NAME",
		"OTEL_BSP_SCHEDULE_DELAY",
		"OTEL_METRIC_EXPORT_INTERVAL",
		"OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE",
		"OPENINFERENCE_HIDE_INPUTS",
		"OPENINFERENCE_HIDE_OUTPUTS",
		"OPENINFERENCE_HIDE_INPUT_MESSAGES",
		"OPENINFERENCE_HIDE_OUTPUT_MESSAGES",
		"OPENINFERENCE_HIDE_INPUT_TEXT",
		"OPENINFERENCE_HIDE_OUTPUT_TEXT",
		"OPENINFERENCE_HIDE_LLM_INVOCATION_PARAMETERS",
	} {
		t.Setenv(env, "")
	}
}
