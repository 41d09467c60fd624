// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
)

type metricsFactory struct {
	metrics *genAI
}

// NewMetrics implements [Factory.NewMetrics].
func (f *metricsFactory) NewMetrics() Metrics {
	return &metricsImpl{
		metrics:       f.metrics,
		originalModel: "unknown",
		requestModel:  "unknown",
		responseModel: "unknown",
	}
}

// metricsImpl implements Metrics for one request.
type metricsImpl struct {
	metrics      *genAI
	requestStart time.Time

	originalModel string
	requestModel  string
	responseModel string

	// Streaming latency state.

	firstTokenSent       bool
	timeToFirstToken     time.Duration
	interTokenLatencySec float64
	totalOutputTokens    int64
}

// StartRequest implements [Metrics.StartRequest].
func (m *metricsImpl) StartRequest() {
	m.requestStart = time.Now()
}

// SetOriginalModel implements [Metrics.SetOriginalModel].
func (m *metricsImpl) SetOriginalModel(model string) {
	m.originalModel = model
}

// SetRequestModel implements [Metrics.SetRequestModel].
func (m *metricsImpl) SetRequestModel(model string) {
	m.requestModel = model
}

// SetResponseModel implements [Metrics.SetResponseModel].
func (m *metricsImpl) SetResponseModel(model string) {
	m.responseModel = model
}

func (m *metricsImpl) buildBaseAttributes() attribute.Set {
	return attribute.NewSet(
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeProviderName).String(genaiProviderAWSBedrock),
		attribute.Key(genaiAttributeOriginalModel).String(m.originalModel),
		attribute.Key(genaiAttributeRequestModel).String(m.requestModel),
		attribute.Key(genaiAttributeResponseModel).String(m.responseModel),
	)
}

// RecordRequestCompletion implements [Metrics.RecordRequestCompletion].
// Successful operations must not carry the error.type attribute, per the
// GenAI semantic conventions.
func (m *metricsImpl) RecordRequestCompletion(ctx context.Context, gatewayErr *internalapi.GatewayError) {
	attrs := m.buildBaseAttributes()
	elapsed := time.Since(m.requestStart).Seconds()
	if gatewayErr == nil {
		m.metrics.requestLatency.Record(ctx, elapsed, metric.WithAttributeSet(attrs))
		return
	}
	m.metrics.requestLatency.Record(ctx, elapsed,
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeErrorType).String(string(gatewayErr.Type))),
	)
}

// RecordTokenUsage implements [Metrics.RecordTokenUsage]. Input and output
// counts are always recorded; the cache counts only when the request
// actually touched the prompt cache.
func (m *metricsImpl) RecordTokenUsage(ctx context.Context, usage *anthropic.Usage) {
	if usage == nil {
		return
	}
	attrs := m.buildBaseAttributes()
	record := func(tokenType string, count int64) {
		m.metrics.tokenUsage.Record(ctx, float64(count),
			metric.WithAttributeSet(attrs),
			metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(tokenType)),
		)
	}
	record(genaiTokenTypeInput, usage.InputTokens)
	record(genaiTokenTypeOutput, usage.OutputTokens)
	if usage.CacheReadInputTokens > 0 {
		record(genaiTokenTypeCachedInput, usage.CacheReadInputTokens)
	}
	if usage.CacheCreationInputTokens > 0 {
		record(genaiTokenTypeCacheCreationInput, usage.CacheCreationInputTokens)
	}
}

// GetTimeToFirstTokenMs implements [Metrics.GetTimeToFirstTokenMs].
func (m *metricsImpl) GetTimeToFirstTokenMs() float64 {
	return float64(m.timeToFirstToken.Milliseconds())
}

// GetInterTokenLatencyMs implements [Metrics.GetInterTokenLatencyMs].
func (m *metricsImpl) GetInterTokenLatencyMs() float64 {
	return m.interTokenLatencySec * 1000
}

// RecordTokenLatency implements [Metrics.RecordTokenLatency].
func (m *metricsImpl) RecordTokenLatency(ctx context.Context, tokens int64, endOfStream bool) {
	attrs := m.buildBaseAttributes()

	// The first event carries the first token even when usage counts only
	// arrive later in the stream.
	if !m.firstTokenSent {
		m.firstTokenSent = true
		m.timeToFirstToken = time.Since(m.requestStart)
		m.metrics.firstTokenLatency.Record(ctx, m.timeToFirstToken.Seconds(), metric.WithAttributeSet(attrs))
		return
	}

	if tokens > m.totalOutputTokens {
		m.totalOutputTokens = tokens
	}

	// time_per_output_token = (request_duration - time_to_first_token) /
	// (output_tokens - 1), recorded once at end of stream.
	if endOfStream && m.totalOutputTokens > 1 {
		sinceFirstToken := time.Since(m.requestStart) - m.timeToFirstToken
		m.interTokenLatencySec = sinceFirstToken.Seconds() / float64(m.totalOutputTokens-1)
		m.metrics.outputTokenLatency.Record(ctx, m.interTokenLatencySec, metric.WithAttributeSet(attrs))
	}
}
