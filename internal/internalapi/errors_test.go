// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package internalapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorTypeHTTPStatus(t *testing.T) {
	tests := []struct {
		typ      ErrorType
		expected int
	}{
		{ErrorTypeAuthentication, http.StatusUnauthorized},
		{ErrorTypePermission, http.StatusForbidden},
		{ErrorTypeRateLimit, http.StatusTooManyRequests},
		{ErrorTypeInvalidRequest, http.StatusBadRequest},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeOverloaded, 529},
		{ErrorTypeAPI, http.StatusBadGateway},
		{ErrorTypeInternal, http.StatusInternalServerError},
		{ErrorTypeStreamTimeout, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			require.Equal(t, tt.expected, tt.typ.HTTPStatus())
		})
	}
}

func TestClassify_GatewayError(t *testing.T) {
	orig := Errorf(ErrorTypeAuthentication, "inactive")
	ge := Classify(orig)
	require.Same(t, orig, ge)
	require.Equal(t, ErrorTypeAuthentication, ge.Type)
	require.Equal(t, "inactive", ge.Message)
}

func TestClassify_WrappedGatewayError(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("invoking backend: %w", WrapError(ErrorTypeAPI, cause, "bedrock returned 500"))
	ge := Classify(wrapped)
	require.Equal(t, ErrorTypeAPI, ge.Type)
	require.Equal(t, "bedrock returned 500", ge.Message)
	require.ErrorIs(t, ge, cause)
}

func TestClassify_Sentinels(t *testing.T) {
	ge := Classify(fmt.Errorf("%w: %q", ErrUnknownContentBlock, "banana"))
	require.Equal(t, ErrorTypeInvalidRequest, ge.Type)

	ge = Classify(fmt.Errorf("%w after 60s", ErrStreamIdleTimeout))
	require.Equal(t, ErrorTypeStreamTimeout, ge.Type)
}

func TestClassify_UnknownErrorIsOpaque(t *testing.T) {
	ge := Classify(errors.New("pq: connection reset"))
	require.Equal(t, ErrorTypeInternal, ge.Type)
	// The secret-bearing detail stays out of the client message.
	require.Equal(t, "internal server error", ge.Message)
	require.Contains(t, ge.Error(), "connection reset")
}
