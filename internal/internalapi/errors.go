// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package internalapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the wire value of the `error.type` field in an Anthropic
// error body. Every error that escapes the pipeline is classified into
// exactly one of these at the HTTP edge.
type ErrorType string

const (
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypePermission     ErrorType = "permission_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeNotFound       ErrorType = "not_found_error"
	ErrorTypeOverloaded     ErrorType = "overloaded_error"
	ErrorTypeAPI            ErrorType = "api_error"
	// ErrorTypeStreamTimeout only ever appears inside an SSE error event;
	// by the time the stream is open the HTTP status is already written.
	ErrorTypeStreamTimeout ErrorType = "stream_timeout"
	ErrorTypeInternal      ErrorType = "internal_error"
)

// HTTPStatus returns the response status for the error type. Anthropic uses
// 529 rather than 503 for overload, matching the upstream API.
func (t ErrorType) HTTPStatus() int {
	switch t {
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeOverloaded:
		return 529
	case ErrorTypeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GatewayError carries a classified error kind and a message that is safe
// to show to the client. Components construct these where the condition is
// first detected; everything else travels as plain errors and falls into
// internal_error at the edge.
type GatewayError struct {
	Type    ErrorType
	Message string
	cause   error
}

func (e *GatewayError) Error() string {
	if e.cause != nil {
		return string(e.Type) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Type) + ": " + e.Message
}

// Unwrap exposes the cause so errors.Is/As keep working through the wrap.
func (e *GatewayError) Unwrap() error { return e.cause }

// Errorf builds a classified error with a client-visible message.
func Errorf(t ErrorType, format string, args ...any) *GatewayError {
	return &GatewayError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an existing error, keeping it as the cause. The
// client-visible message is the given one, not the cause's.
func WrapError(t ErrorType, cause error, format string, args ...any) *GatewayError {
	return &GatewayError{Type: t, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Sentinel errors for conditions callers match on with errors.Is.
// Use fmt.Errorf("%w: detail", ...) to add context.
var (
	// ErrUnknownContentBlock indicates a content block whose type tag is not
	// one this gateway can translate.
	ErrUnknownContentBlock = errors.New("unknown content block type")

	// ErrStreamIdleTimeout indicates no frame arrived from the backend
	// within the configured idle window.
	ErrStreamIdleTimeout = errors.New("stream idle timeout")
)

// Classify resolves any error to a GatewayError, exactly once, at the HTTP
// edge. Unclassified errors become internal_error with a generic message so
// internal details never reach the client.
func Classify(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, ErrStreamIdleTimeout) {
		return &GatewayError{Type: ErrorTypeStreamTimeout, Message: err.Error(), cause: err}
	}
	if errors.Is(err, ErrUnknownContentBlock) {
		return &GatewayError{Type: ErrorTypeInvalidRequest, Message: err.Error(), cause: err}
	}
	return &GatewayError{Type: ErrorTypeInternal, Message: "internal server error", cause: err}
}
