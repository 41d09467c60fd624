// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package config loads the gateway's runtime settings from the
// environment. Parsing is manual: every variable is trimmed, validated,
// and defaulted here so the rest of the process never touches os.Getenv.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
)

const (
	listenAddrEnv             = "LISTEN_ADDR"
	awsRegionEnv              = "AWS_REGION"
	bedrockEndpointEnv        = "BEDROCK_ENDPOINT"
	requestTimeoutEnv         = "REQUEST_TIMEOUT"
	requireAPIKeyEnv          = "REQUIRE_API_KEY"
	masterAPIKeyEnv           = "MASTER_API_KEY"
	apiKeyHeaderEnv           = "API_KEY_HEADER"
	rateLimitEnabledEnv       = "RATE_LIMIT_ENABLED"
	rateLimitRequestsEnv      = "RATE_LIMIT_REQUESTS"
	rateLimitWindowEnv        = "RATE_LIMIT_WINDOW"
	bucketTTLEnv              = "BUCKET_TTL"
	enableToolUseEnv          = "ENABLE_TOOL_USE"
	enableExtendedThinkingEnv = "ENABLE_EXTENDED_THINKING"
	enableDocumentSupportEnv  = "ENABLE_DOCUMENT_SUPPORT"
	promptCachingEnabledEnv   = "PROMPT_CACHING_ENABLED"
	defaultServiceTierEnv     = "DEFAULT_SERVICE_TIER"
	streamingTimeoutEnv       = "STREAMING_TIMEOUT"
	storePathEnv              = "STORE_PATH"
	logLevelEnv               = "LOG_LEVEL"
	logFormatEnv              = "LOG_FORMAT"
	betaHeaderMapEnv          = "BETA_HEADER_MAP"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Defaults for everything tunable above.
const (
	defaultListenAddr        = ":8000"
	defaultRequestTimeout    = 300 * time.Second
	defaultStreamingTimeout  = 60 * time.Second
	defaultRateLimitRequests = 60
	defaultRateLimitWindow   = time.Minute
	defaultBucketTTL         = time.Hour
)

// Config is the process-wide runtime configuration, loaded once at startup.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string

	// Region selects the Bedrock Runtime region. Empty defers to the AWS
	// default credential/region chain.
	Region string
	// BedrockEndpoint overrides the Bedrock Runtime base URL, used to point
	// the invoker at a fake upstream in tests.
	BedrockEndpoint string
	// RequestTimeout bounds a unary Converse call end to end.
	RequestTimeout time.Duration

	// RequireAPIKey rejects requests without a key when true; when false,
	// keyless requests proceed under an anonymous identity.
	RequireAPIKey bool
	// MasterAPIKey, when set and matched, grants an admin identity without
	// a store lookup.
	MasterAPIKey string
	// APIKeyHeader is the header carrying the client key.
	APIKeyHeader string

	RateLimitEnabled bool
	// RateLimitRequests is the default bucket capacity; per-key records may
	// override it.
	RateLimitRequests int
	// RateLimitWindow is the time over which a full bucket refills.
	RateLimitWindow time.Duration
	// BucketTTL is how long an idle bucket survives before the sweep
	// evicts it.
	BucketTTL time.Duration

	EnableToolUse          bool
	EnableExtendedThinking bool
	EnableDocumentSupport  bool
	PromptCachingEnabled   bool
	// DefaultServiceTier is attached to outbound requests when the key
	// record carries no override. Empty sends no tier.
	DefaultServiceTier string
	// StreamingTimeout is the per-frame idle timeout on streaming responses.
	StreamingTimeout time.Duration

	// StorePath is the sqlite database file. Empty selects the in-memory
	// store.
	StorePath string

	LogLevel slog.Level
	// LogFormat selects the slog handler: "json" or "text".
	LogFormat string

	// BetaHeaderMap rewrites inbound anthropic-beta values to the values the
	// backend understands. Unmapped values pass through unchanged.
	BetaHeaderMap map[string]string
}

// defaultBetaHeaderMap seeds BetaHeaderMap; BETA_HEADER_MAP entries are
// merged over it.
func defaultBetaHeaderMap() map[string]string {
	return map[string]string{
		"advanced-tool-use-2025-11-20":  "tool-examples-2025-10-29",
		"context-management-2025-06-27": "context-editing-2025-10-29",
	}
}

// Load reads and validates the full configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      envString(listenAddrEnv, defaultListenAddr),
		Region:          envString(awsRegionEnv, ""),
		BedrockEndpoint: envString(bedrockEndpointEnv, ""),
		MasterAPIKey:    os.Getenv(masterAPIKeyEnv),
		APIKeyHeader:    envString(apiKeyHeaderEnv, internalapi.DefaultAPIKeyHeader),
		StorePath:       envString(storePathEnv, ""),
		BetaHeaderMap:   defaultBetaHeaderMap(),
	}

	var err error
	if cfg.RequestTimeout, err = envSeconds(requestTimeoutEnv, defaultRequestTimeout); err != nil {
		return nil, err
	}
	if cfg.RequireAPIKey, err = envBool(requireAPIKeyEnv, false); err != nil {
		return nil, err
	}
	if cfg.RateLimitEnabled, err = envBool(rateLimitEnabledEnv, false); err != nil {
		return nil, err
	}
	if cfg.RateLimitRequests, err = envInt(rateLimitRequestsEnv, defaultRateLimitRequests); err != nil {
		return nil, err
	}
	if cfg.RateLimitRequests <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", rateLimitRequestsEnv, cfg.RateLimitRequests)
	}
	if cfg.RateLimitWindow, err = envSeconds(rateLimitWindowEnv, defaultRateLimitWindow); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("%s must be positive", rateLimitWindowEnv)
	}
	if cfg.BucketTTL, err = envSeconds(bucketTTLEnv, defaultBucketTTL); err != nil {
		return nil, err
	}
	if cfg.EnableToolUse, err = envBool(enableToolUseEnv, true); err != nil {
		return nil, err
	}
	if cfg.EnableExtendedThinking, err = envBool(enableExtendedThinkingEnv, true); err != nil {
		return nil, err
	}
	if cfg.EnableDocumentSupport, err = envBool(enableDocumentSupportEnv, true); err != nil {
		return nil, err
	}
	if cfg.PromptCachingEnabled, err = envBool(promptCachingEnabledEnv, true); err != nil {
		return nil, err
	}
	if cfg.StreamingTimeout, err = envSeconds(streamingTimeoutEnv, defaultStreamingTimeout); err != nil {
		return nil, err
	}

	cfg.DefaultServiceTier = strings.ToLower(envString(defaultServiceTierEnv, ""))
	switch cfg.DefaultServiceTier {
	case "", awsbedrock.ServiceTierDefault, awsbedrock.ServiceTierFlex,
		awsbedrock.ServiceTierPriority, awsbedrock.ServiceTierReserved:
	default:
		return nil, fmt.Errorf("unsupported %s value %q (allowed: default, flex, priority, reserved)",
			defaultServiceTierEnv, cfg.DefaultServiceTier)
	}

	if raw := strings.TrimSpace(os.Getenv(logLevelEnv)); raw != "" {
		if err = cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", logLevelEnv, raw, err)
		}
	}
	cfg.LogFormat = strings.ToLower(envString(logFormatEnv, LogFormatJSON))
	if cfg.LogFormat != LogFormatJSON && cfg.LogFormat != LogFormatText {
		return nil, fmt.Errorf("unsupported %s value %q (allowed: json, text)", logFormatEnv, cfg.LogFormat)
	}

	for k, v := range parseKeyValueList(os.Getenv(betaHeaderMapEnv)) {
		cfg.BetaHeaderMap[k] = v
	}
	return cfg, nil
}

func envString(name, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultValue
}

func envBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func envInt(name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

// envSeconds reads an integer number of seconds.
func envSeconds(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return time.Duration(v) * time.Second, nil
}

// parseKeyValueList parses "k1=v1,k2=v2" lists, skipping malformed entries.
func parseKeyValueList(value string) map[string]string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		val = strings.TrimSpace(val)
		if name == "" || val == "" {
			continue
		}
		out[name] = val
	}
	return out
}
