// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/bedrockgate/bedrockgate/internal/bedrock"
	"github.com/bedrockgate/bedrockgate/internal/config"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/ratelimit"
	"github.com/bedrockgate/bedrockgate/internal/store"
	"github.com/bedrockgate/bedrockgate/internal/testing/testbedrock"
	"github.com/bedrockgate/bedrockgate/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testAlias     = "claude-sonnet-4-5-20250929"
	testBedrockID = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
)

// unaryResponse is a minimal Converse 200 body.
const unaryResponse = `{
	"output":{"message":{"role":"assistant","content":[{"text":"Hello."}]}},
	"stopReason":"end_turn",
	"usage":{"inputTokens":4,"outputTokens":2,"totalTokens":6}
}`

// testGateway bundles a served gateway with the collaborators tests assert
// against.
type testGateway struct {
	url      string
	client   *http.Client
	upstream *testbedrock.Server
	store    *store.Memory
	cfg      *config.Config
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()
	upstream := testbedrock.New(t)
	cfg := &config.Config{
		Region:                 "us-east-1",
		BedrockEndpoint:        upstream.URL(),
		RequestTimeout:         30 * time.Second,
		APIKeyHeader:           internalapi.DefaultAPIKeyHeader,
		RateLimitRequests:      60,
		RateLimitWindow:        time.Minute,
		BucketTTL:              time.Hour,
		EnableToolUse:          true,
		EnableExtendedThinking: true,
		EnableDocumentSupport:  true,
		StreamingTimeout:       5 * time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}

	mem := store.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	httpClient := &http.Client{}
	t.Cleanup(httpClient.CloseIdleConnections)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bedrock.NewClient(context.Background(), bedrock.Options{
		Region:         cfg.Region,
		Endpoint:       cfg.BedrockEndpoint,
		Credentials:    credentials.NewStaticCredentialsProvider("test-access", "test-secret", ""),
		HTTPClient:     httpClient,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	require.NoError(t, err)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.BucketTTL)
		t.Cleanup(limiter.Close)
	}
	recorder := usage.NewRecorder(mem, logger)
	t.Cleanup(recorder.Close)

	gw := New(Options{
		Config:  cfg,
		Logger:  logger,
		Store:   mem,
		Bedrock: client,
		Limiter: limiter,
		Usage:   recorder,
		Version: "test",
	})
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return &testGateway{url: srv.URL, client: httpClient, upstream: upstream, store: mem, cfg: cfg}
}

// do sends one request and returns the response with its body drained.
func (g *testGateway) do(t *testing.T, method, path string, headers map[string]string, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, g.url+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := g.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func TestRequestID(t *testing.T) {
	gw := newTestGateway(t, nil)

	t.Run("echoes inbound id", func(t *testing.T) {
		resp, _ := gw.do(t, http.MethodGet, "/health", map[string]string{internalapi.RequestIDHeader: "req-123"}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "req-123", resp.Header.Get(internalapi.RequestIDHeader))
	})

	t.Run("mints one when absent", func(t *testing.T) {
		resp, _ := gw.do(t, http.MethodGet, "/health", nil, "")
		require.NotEmpty(t, resp.Header.Get(internalapi.RequestIDHeader))
	})
}

func TestNotFound(t *testing.T) {
	gw := newTestGateway(t, nil)

	resp, body := gw.do(t, http.MethodGet, "/v2/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "error", gjson.GetBytes(body, "type").String())
	require.Equal(t, "not_found_error", gjson.GetBytes(body, "error.type").String())
	require.Contains(t, gjson.GetBytes(body, "error.message").String(), "/v2/does-not-exist")
}

func TestModels(t *testing.T) {
	gw := newTestGateway(t, nil)
	require.NoError(t, gw.store.PutModelMapping(context.Background(), store.ModelMapping{
		AnthropicID: "claude-custom",
		BedrockID:   "us.anthropic.claude-custom-v1:0",
	}))

	resp, body := gw.do(t, http.MethodGet, "/v1/models", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	data := gjson.GetBytes(body, "data")
	require.True(t, data.IsArray())
	ids := make(map[string]gjson.Result)
	for _, m := range data.Array() {
		ids[m.Get("id").String()] = m
	}
	require.Contains(t, ids, testAlias)
	require.Contains(t, ids, "claude-custom")

	entry := ids[testAlias]
	require.Equal(t, "Claude Sonnet 4.5", entry.Get("name").String())
	require.Equal(t, "anthropic", entry.Get("provider").String())
	require.True(t, entry.Get("streaming_supported").Bool())
	require.NotEmpty(t, entry.Get("input_modalities").Array())
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		gw := newTestGateway(t, nil)
		for _, path := range []string{"/health", "/ready", "/liveness"} {
			resp, body := gw.do(t, http.MethodGet, path, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode, path)
			require.Equal(t, "healthy", gjson.GetBytes(body, "status").String(), path)
			require.Equal(t, "ok", gjson.GetBytes(body, "services.store").String(), path)
			require.Equal(t, "ok", gjson.GetBytes(body, "services.bedrock").String(), path)
			require.Equal(t, "test", gjson.GetBytes(body, "version").String(), path)
			require.True(t, gjson.GetBytes(body, "uptime_seconds").Exists(), path)
			require.NotEmpty(t, gjson.GetBytes(body, "timestamp").String(), path)
		}
	})

	t.Run("degraded bedrock gates ready only", func(t *testing.T) {
		gw := newTestGateway(t, func(cfg *config.Config) {
			cfg.BedrockEndpoint = "http://127.0.0.1:1"
		})

		resp, body := gw.do(t, http.MethodGet, "/health", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "degraded", gjson.GetBytes(body, "status").String())
		require.Equal(t, "unavailable", gjson.GetBytes(body, "services.bedrock").String())
		require.Equal(t, "ok", gjson.GetBytes(body, "services.store").String())

		resp, body = gw.do(t, http.MethodGet, "/ready", nil, "")
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, "degraded", gjson.GetBytes(body, "status").String())

		resp, _ = gw.do(t, http.MethodGet, "/liveness", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	gw := newTestGateway(t, nil)

	resp, body := gw.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "# HELP")
}
