// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewGenAI(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test.bedrockgate")

	g := newGenAI(meter)
	require.NotNil(t, g)
	require.NotNil(t, g.tokenUsage)
	require.NotNil(t, g.requestLatency)
	require.NotNil(t, g.firstTokenLatency)
	require.NotNil(t, g.outputTokenLatency)

	// Instruments only show up in Collect once they carry data.
	ctx := context.Background()
	g.tokenUsage.Record(ctx, 100)
	g.requestLatency.Record(ctx, 1.5)
	g.firstTokenLatency.Record(ctx, 0.5)
	g.outputTokenLatency.Record(ctx, 0.1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	require.NotEmpty(t, rm.ScopeMetrics)
	scopeMetrics := rm.ScopeMetrics[0]
	assert.Equal(t, "test.bedrockgate", scopeMetrics.Scope.Name)

	metricMap := make(map[string]metricdata.Metrics)
	for _, m := range scopeMetrics.Metrics {
		metricMap[m.Name] = m
	}

	tokenUsage, exists := metricMap[genaiMetricClientTokenUsage]
	require.True(t, exists, "Expected metric %s", genaiMetricClientTokenUsage)
	assert.Equal(t, "token", tokenUsage.Unit)
	assert.Equal(t, "Number of tokens processed.", tokenUsage.Description)
	histToken, ok := tokenUsage.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.NotEmpty(t, histToken.DataPoints)
	assert.Equal(t, float64(100), histToken.DataPoints[0].Sum)

	reqLatency, exists := metricMap[genaiMetricServerRequestDuration]
	require.True(t, exists, "Expected metric %s", genaiMetricServerRequestDuration)
	assert.Equal(t, "s", reqLatency.Unit)
	assert.Equal(t, "Generative AI server request duration such as time-to-last byte or last output token.", reqLatency.Description)

	firstToken, exists := metricMap[genaiMetricServerTimeToFirstToken]
	require.True(t, exists, "Expected metric %s", genaiMetricServerTimeToFirstToken)
	assert.Equal(t, "s", firstToken.Unit)
	assert.Equal(t, "Time to receive first token in streaming responses.", firstToken.Description)

	outputToken, exists := metricMap[genaiMetricServerTimePerOutputToken]
	require.True(t, exists, "Expected metric %s", genaiMetricServerTimePerOutputToken)
	assert.Equal(t, "s", outputToken.Unit)
	assert.Equal(t, "Time per output token generated after the first token for successful responses.", outputToken.Description)
}

func TestGenAIConstants(t *testing.T) {
	// Consistency check so nobody drifts from the standard semantic
	// conventions by accident.
	assert.Equal(t, "gen_ai.client.token.usage", genaiMetricClientTokenUsage)
	assert.Equal(t, "gen_ai.server.request.duration", genaiMetricServerRequestDuration)
	assert.Equal(t, "gen_ai.server.time_to_first_token", genaiMetricServerTimeToFirstToken)
	assert.Equal(t, "gen_ai.server.time_per_output_token", genaiMetricServerTimePerOutputToken)

	assert.Equal(t, "chat", genaiOperationChat)
	assert.Equal(t, "aws.bedrock", genaiProviderAWSBedrock)

	assert.Equal(t, "input", genaiTokenTypeInput)
	assert.Equal(t, "cached_input", genaiTokenTypeCachedInput)
	assert.Equal(t, "cache_creation_input", genaiTokenTypeCacheCreationInput)
	assert.Equal(t, "output", genaiTokenTypeOutput)
}
