// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package bedrock invokes the Bedrock Runtime Converse API over raw signed
// HTTP. It owns SigV4 signing, the service-tier fallback retry, backend
// error classification, and eventstream frame decoding; request and
// response bodies are opaque JSON produced and consumed by
// internal/translator.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
)

const (
	// serviceName is the SigV4 signing name for Bedrock Runtime.
	serviceName = "bedrock"

	// errorTypeHeader carries the machine-readable exception name on error
	// responses. The value sometimes has a URI suffix after a colon.
	errorTypeHeader = "x-amzn-errortype"

	contentTypeJSON        = "application/json"
	contentTypeEventStream = "application/vnd.amazon.eventstream"

	defaultRequestTimeout = 300 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 1 << 20
)

// Options configures a Client. The zero value resolves everything from the
// AWS default chain.
type Options struct {
	// Region selects the Bedrock Runtime region. Empty falls back to the
	// default AWS config chain.
	Region string
	// Endpoint overrides the Bedrock Runtime base URL; tests point this at a
	// fake upstream.
	Endpoint string
	// Credentials overrides the default credential chain.
	Credentials aws.CredentialsProvider
	// HTTPClient overrides the pooled default transport.
	HTTPClient *http.Client
	// RequestTimeout bounds a unary Converse call end to end. Streaming
	// calls are bounded per frame by the caller instead.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Client is a Bedrock Runtime invoker. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	region         string
	creds          aws.CredentialsProvider
	signer         *v4.Signer
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewClient resolves credentials and region, preferring explicit Options
// over the AWS default chain. The chain is only consulted for what the
// options leave unset, so tests with static credentials never touch it.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	region := opts.Region
	creds := opts.Credentials
	if region == "" || creds == nil {
		var loadOpts []func(*config.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, config.WithRegion(region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if region == "" {
			region = awsCfg.Region
		}
		if creds == nil {
			creds = awsCfg.Credentials
		}
	}
	if region == "" {
		return nil, errors.New("AWS region is not configured")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:     httpClient,
		endpoint:       strings.TrimSuffix(endpoint, "/"),
		region:         region,
		creds:          creds,
		signer:         v4.NewSigner(),
		requestTimeout: requestTimeout,
		logger:         logger,
	}, nil
}

// Converse sends a unary Converse request. body is the marshaled
// ConverseInput; the model travels in the URL path, not the body.
func (c *Client) Converse(ctx context.Context, modelID string, body []byte) (*awsbedrock.ConverseResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	resp, err := c.invoke(ctx, c.operationURL(modelID, false), body, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out awsbedrock.ConverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, internalapi.WrapError(internalapi.ErrorTypeAPI, err, "failed to decode backend response")
	}
	return &out, nil
}

// ConverseStream opens a streaming Converse request. The returned Stream
// must be closed by the caller; ctx cancellation tears the stream down.
func (c *Client) ConverseStream(ctx context.Context, modelID string, body []byte) (*Stream, error) {
	resp, err := c.invoke(ctx, c.operationURL(modelID, true), body, contentTypeEventStream)
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

// Ping reports whether the Bedrock endpoint answers at all. Any HTTP
// response, error statuses included, counts as reachable; only transport
// failures do not.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bedrock endpoint unreachable: %w", err)
	}
	return resp.Body.Close()
}

func (c *Client) operationURL(modelID string, stream bool) string {
	op := "converse"
	if stream {
		op = "converse-stream"
	}
	return c.endpoint + "/model/" + url.PathEscape(modelID) + "/" + op
}

// invoke sends the signed request and applies the service-tier fallback:
// when the backend rejects the requested tier with a ValidationException,
// the call is retried exactly once with serviceTier forced to "default".
// Any other failure, including a failure of the retry itself, propagates.
func (c *Client) invoke(ctx context.Context, operationURL string, body []byte, accept string) (*http.Response, error) {
	resp, err := c.send(ctx, operationURL, body, accept)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	exception, message := drainError(resp)
	if tierFallbackApplies(exception, message) {
		c.logger.WarnContext(ctx, "service tier rejected by backend, retrying on default tier",
			slog.String("exception", exception),
			slog.String("message", message))
		fallback, serr := sjson.SetBytes(body, "serviceTier", awsbedrock.ServiceTierDefault)
		if serr == nil {
			resp, err = c.send(ctx, operationURL, fallback, accept)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusOK {
				return resp, nil
			}
			exception, message = drainError(resp)
		}
	}
	return nil, classifyException(resp.StatusCode, exception, message)
}

// send signs and performs one HTTP request. Transport-level failures are
// classified as api_error here; HTTP error statuses are left to the caller.
func (c *Client) send(ctx context.Context, operationURL string, body []byte, accept string) (*http.Response, error) {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return nil, internalapi.WrapError(internalapi.ErrorTypeAPI, err, "failed to retrieve AWS credentials")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, operationURL, bytes.NewReader(body))
	if err != nil {
		return nil, internalapi.WrapError(internalapi.ErrorTypeInternal, err, "failed to build backend request")
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)

	hash := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(hash[:]), serviceName, c.region, time.Now()); err != nil {
		return nil, internalapi.WrapError(internalapi.ErrorTypeAPI, err, "failed to sign backend request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, internalapi.WrapError(internalapi.ErrorTypeAPI, err, "backend request failed")
	}
	return resp, nil
}

// drainError consumes an error response, returning the exception name from
// x-amzn-errortype (URI suffix stripped) and the body's message.
func drainError(resp *http.Response) (exception, message string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()

	exception = resp.Header.Get(errorTypeHeader)
	if i := strings.IndexByte(exception, ':'); i >= 0 {
		exception = exception[:i]
	}
	if m := gjson.GetBytes(body, "message"); m.Exists() {
		message = m.String()
	} else if m := gjson.GetBytes(body, "Message"); m.Exists() {
		message = m.String()
	} else {
		message = strings.TrimSpace(string(body))
	}
	return exception, message
}

func tierFallbackApplies(exception, message string) bool {
	return exception == "ValidationException" &&
		strings.Contains(strings.ToLower(message), "service tier")
}

// classifyException maps a Bedrock error response onto the gateway's error
// taxonomy. Backend throttling maps to overloaded, not rate_limit: the
// client's own quota was fine, the backend was not.
func classifyException(status int, exception, message string) *internalapi.GatewayError {
	if message == "" {
		message = http.StatusText(status)
	}
	var t internalapi.ErrorType
	switch exception {
	case "ThrottlingException":
		t = internalapi.ErrorTypeOverloaded
	case "ValidationException":
		t = internalapi.ErrorTypeInvalidRequest
	case "ResourceNotFoundException":
		t = internalapi.ErrorTypeNotFound
	case "AccessDeniedException":
		t = internalapi.ErrorTypePermission
	default:
		switch {
		case status == http.StatusBadRequest:
			t = internalapi.ErrorTypeInvalidRequest
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			t = internalapi.ErrorTypePermission
		case status == http.StatusNotFound:
			t = internalapi.ErrorTypeNotFound
		case status == http.StatusTooManyRequests:
			t = internalapi.ErrorTypeOverloaded
		default:
			t = internalapi.ErrorTypeAPI
		}
	}
	return internalapi.Errorf(t, "%s", message)
}
