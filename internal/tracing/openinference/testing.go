// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openinference

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// RequireAttributesEqual asserts that two attribute sets are equal,
// ignoring order. Recorder tests use it because SetAttributes calls append
// in implementation-defined batches.
func RequireAttributesEqual(t testing.TB, want, have []attribute.KeyValue) {
	t.Helper()
	require.Equal(t, sortedAttributes(want), sortedAttributes(have))
}

// RequireEventsEqual asserts that two span event lists are equal, ignoring
// timestamps.
func RequireEventsEqual(t testing.TB, want, have []sdktrace.Event) {
	t.Helper()
	require.Equal(t, clearEventTimes(want), clearEventTimes(have))
}

func sortedAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	sorted := slices.Clone(attrs)
	slices.SortStableFunc(sorted, func(a, b attribute.KeyValue) int {
		return strings.Compare(string(a.Key), string(b.Key))
	})
	return sorted
}

func clearEventTimes(events []sdktrace.Event) []sdktrace.Event {
	if len(events) == 0 {
		return nil
	}
	cleared := slices.Clone(events)
	for i := range cleared {
		cleared[i].Time = time.Time{}
	}
	return cleared
}
