// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/auth"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
	"github.com/bedrockgate/bedrockgate/internal/metrics"
	"github.com/bedrockgate/bedrockgate/internal/redaction"
	"github.com/bedrockgate/bedrockgate/internal/store"
	tracingapi "github.com/bedrockgate/bedrockgate/internal/tracing/api"
	"github.com/bedrockgate/bedrockgate/internal/translator"
)

const sensitiveHeaderRedactedValue = "[REDACTED]"

var sensitiveHeaderKeys = []string{"authorization", internalapi.DefaultAPIKeyHeader}

// messageState accumulates per-request facts as the pipeline advances, so
// the error path can account for exactly as much as actually happened. Only
// id and metrics are set from the start; the rest fill in phase by phase.
type messageState struct {
	id string
	// key is nil until authentication succeeds. Accounting and rate
	// limiting are keyed on it.
	key *auth.KeyContext
	// original is the model the client asked for; resolved is what the
	// backend is invoked with.
	original string
	resolved string
	metrics  metrics.Metrics
	// span is nil unless the request is sampled.
	span tracingapi.MessageSpan
}

// handleMessages implements POST /v1/messages: decode, authenticate, rate
// limit, resolve the model, translate, invoke Bedrock, and respond on the
// surface the client chose.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	st := &messageState{
		id:      r.Header.Get(internalapi.RequestIDHeader),
		metrics: s.metrics.NewMetrics(),
	}
	st.metrics.StartRequest()

	logger := s.logger.With(slog.String("request_id", st.id))
	ctx := context.WithValue(r.Context(), loggerContextKey, logger)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(ctx, w, st, internalapi.WrapError(internalapi.ErrorTypeInvalidRequest, err, "cannot read request body"))
		return
	}

	var req anthropic.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(ctx, w, st, internalapi.WrapError(internalapi.ErrorTypeInvalidRequest, err, "invalid request body"))
		return
	}
	if req.Model == "" {
		s.writeError(ctx, w, st, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(ctx, w, st, internalapi.Errorf(internalapi.ErrorTypeInvalidRequest, "messages must not be empty"))
		return
	}
	st.original = req.Model
	st.metrics.SetOriginalModel(req.Model)

	if s.debugLogEnabled {
		logger.DebugContext(ctx, "messages request",
			slog.String("model", req.Model),
			slog.Bool("stream", req.Stream),
			slog.Any("request_headers", filterSensitiveHeaders(r.Header, s.cfg.APIKeyHeader)),
			slog.String("body", string(redaction.RedactMessageContent(body))))
	}

	key, err := s.auth.Authenticate(ctx, r.Header.Get(s.cfg.APIKeyHeader))
	if err != nil {
		s.writeError(ctx, w, st, err)
		return
	}
	st.key = key

	if s.limiter != nil && !key.IsAdmin {
		if d := s.limiter.Consume(key.Key, key.RateLimit); !d.Allowed {
			w.Header().Set(internalapi.RetryAfterHeader, strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			s.writeError(ctx, w, st, internalapi.Errorf(internalapi.ErrorTypeRateLimit, "rate limit exceeded"))
			return
		}
	}

	st.resolved = s.resolver.Resolve(ctx, req.Model)
	st.metrics.SetRequestModel(st.resolved)

	// The carrier is the client-facing response: Bedrock requests are
	// SigV4-signed, so trace context propagates back to the caller instead.
	st.span = s.tracing.MessageTracer().StartSpanAndInjectHeaders(ctx,
		lowerHeaderMap(r.Header), propagation.HeaderCarrier(w.Header()), &req, body)

	req.AnthropicBeta = mergeBetaValues(req.AnthropicBeta, r.Header.Values(internalapi.AnthropicBetaHeader))

	in, err := translator.TranslateRequest(st.resolved, &req, s.requestOptions(key))
	if err != nil {
		s.writeError(ctx, w, st, err)
		return
	}
	payload, err := json.Marshal(in)
	if err != nil {
		s.writeError(ctx, w, st, internalapi.WrapError(internalapi.ErrorTypeInternal, err, "cannot marshal backend request"))
		return
	}

	if req.Stream {
		s.serveStream(ctx, w, st, payload)
		return
	}
	s.serveUnary(ctx, w, st, payload)
}

func (s *Server) serveUnary(ctx context.Context, w http.ResponseWriter, st *messageState, payload []byte) {
	resp, err := s.bedrock.Converse(ctx, st.resolved, payload)
	if err != nil {
		s.writeError(ctx, w, st, err)
		return
	}
	out := translator.TranslateResponse(resp, st.original)
	body, err := json.Marshal(out)
	if err != nil {
		s.writeError(ctx, w, st, internalapi.WrapError(internalapi.ErrorTypeInternal, err, "cannot marshal response"))
		return
	}

	st.metrics.SetResponseModel(out.Model)
	st.metrics.RecordTokenUsage(ctx, &out.Usage)
	st.metrics.RecordRequestCompletion(ctx, nil)
	s.recordUsage(st, out.Usage, true, "")
	if st.span != nil {
		st.span.RecordResponse(out)
		st.span.EndSpan()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		loggerFromContext(ctx, s.logger).DebugContext(ctx, "cannot write response body",
			slog.String("error", err.Error()))
	}
}

// writeError is the single exit for requests that fail before a response
// surface is committed: it classifies, logs, records metrics and usage, and
// renders the Anthropic error envelope. Streaming failures after the first
// byte never come here; they end the stream with an error event instead.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, st *messageState, err error) {
	gerr := internalapi.Classify(err)
	loggerFromContext(ctx, s.logger).ErrorContext(ctx, "request failed",
		slog.String("error_type", string(gerr.Type)),
		slog.String("error", err.Error()))

	st.metrics.RecordRequestCompletion(ctx, gerr)
	s.recordUsage(st, anthropic.Usage{}, false, err.Error())

	resp := anthropic.ErrorResponse{
		Type:  anthropic.ErrorObjectType,
		Error: anthropic.ErrorDetail{Type: string(gerr.Type), Message: gerr.Message},
	}
	if st.id != "" {
		resp.RequestID = &st.id
	}
	body, merr := json.Marshal(resp)
	if merr != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if st.span != nil {
		st.span.EndSpanOnError(gerr.Type.HTTPStatus(), body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gerr.Type.HTTPStatus())
	if _, werr := w.Write(body); werr != nil {
		loggerFromContext(ctx, s.logger).DebugContext(ctx, "cannot write error body",
			slog.String("error", werr.Error()))
	}
}

// recordUsage queues one accounting row. Nothing is recorded before
// authentication: rows are keyed by API key, and an unauthenticated caller
// has none.
func (s *Server) recordUsage(st *messageState, u anthropic.Usage, success bool, errMsg string) {
	if s.usage == nil || st.key == nil {
		return
	}
	s.usage.Record(store.UsageRecord{
		APIKey:           st.key.Key,
		Timestamp:        time.Now(),
		RequestID:        st.id,
		Model:            st.original,
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
		Success:          success,
		ErrorMessage:     errMsg,
	})
}

// requestOptions materializes the translation switches for one request:
// the feature gates come from configuration, the service tier from the key
// when it carries an override.
func (s *Server) requestOptions(key *auth.KeyContext) translator.RequestOptions {
	opts := translator.RequestOptions{
		EnableToolUse:          s.cfg.EnableToolUse,
		EnableExtendedThinking: s.cfg.EnableExtendedThinking,
		EnableDocumentSupport:  s.cfg.EnableDocumentSupport,
		EnablePromptCaching:    s.cfg.PromptCachingEnabled,
		BetaHeaderMap:          s.cfg.BetaHeaderMap,
		ServiceTier:            s.cfg.DefaultServiceTier,
	}
	if key.ServiceTier != nil {
		opts.ServiceTier = *key.ServiceTier
	}
	return opts
}

// mergeBetaValues folds anthropic-beta header values into the body-level
// list. Header values may themselves be comma-separated. Duplicates are
// dropped, body order wins.
func mergeBetaValues(existing, headerValues []string) []string {
	if len(headerValues) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	merged := existing
	for _, hv := range headerValues {
		for _, v := range strings.Split(hv, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	return merged
}

// filterSensitiveHeaders renders headers as log attributes with
// credential-bearing values redacted. The configured key header counts as
// sensitive whatever it was renamed to.
func filterSensitiveHeaders(h http.Header, apiKeyHeader string) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(h))
	for k, vals := range h {
		lower := strings.ToLower(k)
		if slices.Contains(sensitiveHeaderKeys, lower) || lower == strings.ToLower(apiKeyHeader) {
			attrs = append(attrs, slog.String(lower, sensitiveHeaderRedactedValue))
			continue
		}
		attrs = append(attrs, slog.String(lower, strings.Join(vals, ",")))
	}
	slices.SortFunc(attrs, func(a, b slog.Attr) int { return strings.Compare(a.Key, b.Key) })
	return attrs
}

// lowerHeaderMap flattens headers for trace-context extraction, which
// expects lower-cased names and single values.
func lowerHeaderMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			m[strings.ToLower(k)] = v[0]
		}
	}
	return m
}

// retryAfterSeconds renders a denial wait as whole seconds, rounded up so
// an honoring client never retries early. Zero waits still report one
// second.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
