// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Metric names and attributes follow the OpenTelemetry GenAI semantic
// conventions: https://opentelemetry.io/docs/specs/semconv/gen-ai/
const (
	genaiMetricClientTokenUsage         = "gen_ai.client.token.usage"
	genaiMetricServerRequestDuration    = "gen_ai.server.request.duration"
	genaiMetricServerTimeToFirstToken   = "gen_ai.server.time_to_first_token"
	genaiMetricServerTimePerOutputToken = "gen_ai.server.time_per_output_token"

	genaiAttributeOperationName = "gen_ai.operation.name"
	genaiAttributeProviderName  = "gen_ai.provider.name"
	genaiAttributeOriginalModel = "gen_ai.original.model"
	genaiAttributeRequestModel  = "gen_ai.request.model"
	genaiAttributeResponseModel = "gen_ai.response.model"
	genaiAttributeErrorType     = "error.type"
	genaiAttributeTokenType     = "gen_ai.token.type"

	genaiOperationChat = "chat"

	// The gateway fronts exactly one backend.
	genaiProviderAWSBedrock = "aws.bedrock"

	genaiTokenTypeInput              = "input"
	genaiTokenTypeCachedInput        = "cached_input"
	genaiTokenTypeCacheCreationInput = "cache_creation_input"
	genaiTokenTypeOutput             = "output"
)

// genAI bundles the four GenAI instruments every request records into.
type genAI struct {
	// tokenUsage is the "gen_ai.client.token.usage" histogram, recorded once
	// per token type present in the response usage.
	tokenUsage metric.Float64Histogram
	// requestLatency is the "gen_ai.server.request.duration" histogram.
	requestLatency metric.Float64Histogram
	// firstTokenLatency is the "gen_ai.server.time_to_first_token" histogram,
	// streaming only.
	firstTokenLatency metric.Float64Histogram
	// outputTokenLatency is the "gen_ai.server.time_per_output_token"
	// histogram, streaming only.
	outputTokenLatency metric.Float64Histogram
}

func newGenAI(meter metric.Meter) *genAI {
	return &genAI{
		tokenUsage: mustRegisterHistogram(meter,
			genaiMetricClientTokenUsage,
			metric.WithDescription("Number of tokens processed."),
			metric.WithUnit("token")),
		requestLatency: mustRegisterHistogram(meter,
			genaiMetricServerRequestDuration,
			metric.WithDescription("Generative AI server request duration such as time-to-last byte or last output token."),
			metric.WithUnit("s")),
		firstTokenLatency: mustRegisterHistogram(meter,
			genaiMetricServerTimeToFirstToken,
			metric.WithDescription("Time to receive first token in streaming responses."),
			metric.WithUnit("s")),
		outputTokenLatency: mustRegisterHistogram(meter,
			genaiMetricServerTimePerOutputToken,
			metric.WithDescription("Time per output token generated after the first token for successful responses."),
			metric.WithUnit("s")),
	}
}

// mustRegisterHistogram panics on instrument registration failure, which can
// only happen for invalid names or units.
func mustRegisterHistogram(meter metric.Meter, name string, options ...metric.Float64HistogramOption) metric.Float64Histogram {
	histogram, err := meter.Float64Histogram(name, options...)
	if err != nil {
		panic(err)
	}
	return histogram
}
