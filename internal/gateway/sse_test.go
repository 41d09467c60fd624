// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/config"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/testing/testbedrock"
)

// textStreamFrames is a complete Bedrock text response: one block, a stop
// reason, then the usage-bearing metadata frame.
func textStreamFrames() []testbedrock.StreamFrame {
	role := "assistant"
	text := "Hello"
	stop := "end_turn"
	return []testbedrock.StreamFrame{
		{EventType: awsbedrock.StreamEventTypeMessageStart, Payload: &awsbedrock.ConverseStreamEvent{Role: &role}},
		{EventType: awsbedrock.StreamEventTypeContentBlockDelta, Payload: &awsbedrock.ConverseStreamEvent{
			Delta: &awsbedrock.ConverseStreamEventContentBlockDelta{Text: &text},
		}},
		{EventType: awsbedrock.StreamEventTypeContentBlockStop, Payload: &awsbedrock.ConverseStreamEvent{}},
		{EventType: awsbedrock.StreamEventTypeMessageStop, Payload: &awsbedrock.ConverseStreamEvent{StopReason: &stop}},
		{EventType: awsbedrock.StreamEventTypeMetadata, Payload: &awsbedrock.ConverseStreamEvent{
			Usage: &awsbedrock.TokenUsage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6},
		}},
	}
}

type sseEvent struct {
	event string
	data  gjson.Result
}

// parseSSE splits a complete SSE body into events, asserting the exact
// framing: an event line, one minified data line, and a blank line.
func parseSSE(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	text := string(body)
	require.True(t, strings.HasSuffix(text, "\n\n"), "body must end with a blank line: %q", text)
	var out []sseEvent
	for _, chunk := range strings.Split(strings.TrimSuffix(text, "\n\n"), "\n\n") {
		lines := strings.Split(chunk, "\n")
		require.Len(t, lines, 2, "chunk %q", chunk)
		require.True(t, strings.HasPrefix(lines[0], "event: "), "chunk %q", chunk)
		require.True(t, strings.HasPrefix(lines[1], "data: "), "chunk %q", chunk)
		data := strings.TrimPrefix(lines[1], "data: ")
		require.True(t, gjson.Valid(data), "data %q", data)
		out = append(out, sseEvent{
			event: strings.TrimPrefix(lines[0], "event: "),
			data:  gjson.Parse(data),
		})
	}
	return out
}

func eventNames(events []sseEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.event
	}
	return names
}

func TestMessages_Stream(t *testing.T) {
	gw := newTestGateway(t, nil)
	gw.upstream.QueueStream(textStreamFrames()...)

	resp, body := gw.do(t, http.MethodPost, "/v1/messages",
		map[string]string{internalapi.RequestIDHeader: "req-stream"}, messagesBody(testAlias, true))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "req-stream", resp.Header.Get(internalapi.RequestIDHeader))

	events := parseSSE(t, body)
	require.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(events))

	start := events[0].data
	require.Equal(t, "message_start", start.Get("type").String())
	require.Equal(t, testAlias, start.Get("message.model").String())
	require.True(t, strings.HasPrefix(start.Get("message.id").String(), "msg_"))
	require.Equal(t, "assistant", start.Get("message.role").String())

	delta := events[2].data
	require.Equal(t, "text_delta", delta.Get("delta.type").String())
	require.Equal(t, "Hello", delta.Get("delta.text").String())

	finish := events[4].data
	require.Equal(t, "end_turn", finish.Get("delta.stop_reason").String())
	require.Equal(t, int64(2), finish.Get("usage.output_tokens").Int())

	reqs := gw.upstream.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "/model/"+testBedrockID+"/converse-stream", reqs[0].Path)

	rows := waitForUsage(t, gw, 1)
	require.True(t, rows[0].Success)
	require.Equal(t, int64(4), rows[0].InputTokens)
	require.Equal(t, int64(2), rows[0].OutputTokens)
}

func TestMessages_StreamException(t *testing.T) {
	text := "partial"
	gw := newTestGateway(t, nil)
	gw.upstream.QueueStream(
		testbedrock.StreamFrame{EventType: awsbedrock.StreamEventTypeContentBlockDelta, Payload: &awsbedrock.ConverseStreamEvent{
			Delta: &awsbedrock.ConverseStreamEventContentBlockDelta{Text: &text},
		}},
		testbedrock.StreamFrame{ExceptionType: awsbedrock.ExceptionTypeThrottling, Payload: &awsbedrock.BedrockException{
			Message: "slow down",
		}},
	)

	resp, body := gw.do(t, http.MethodPost, "/v1/messages", nil, messagesBody(testAlias, true))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := parseSSE(t, body)
	// The first delta synthesizes its envelope; the exception ends the
	// stream with an error event and no message_stop.
	require.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"error",
	}, eventNames(events))

	errEvent := events[3].data
	require.Equal(t, "error", errEvent.Get("type").String())
	require.Equal(t, "overloaded_error", errEvent.Get("error.type").String())
	require.Equal(t, "slow down", errEvent.Get("error.message").String())

	rows := waitForUsage(t, gw, 1)
	require.False(t, rows[0].Success)
	require.Contains(t, rows[0].ErrorMessage, "throttlingException")
}

func TestMessages_StreamEarlyEOF(t *testing.T) {
	role := "assistant"
	text := "Hi"
	gw := newTestGateway(t, nil)
	// The backend drops the stream after one delta: no stop, no metadata.
	gw.upstream.QueueStream(
		testbedrock.StreamFrame{EventType: awsbedrock.StreamEventTypeMessageStart, Payload: &awsbedrock.ConverseStreamEvent{Role: &role}},
		testbedrock.StreamFrame{EventType: awsbedrock.StreamEventTypeContentBlockDelta, Payload: &awsbedrock.ConverseStreamEvent{
			Delta: &awsbedrock.ConverseStreamEventContentBlockDelta{Text: &text},
		}},
	)

	resp, body := gw.do(t, http.MethodPost, "/v1/messages", nil, messagesBody(testAlias, true))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := parseSSE(t, body)
	// The gateway still owes the client a well-formed ending.
	require.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(events))
	require.Equal(t, "end_turn", events[4].data.Get("delta.stop_reason").String())

	rows := waitForUsage(t, gw, 1)
	require.True(t, rows[0].Success)
	require.Zero(t, rows[0].OutputTokens)
}

func TestMessages_StreamIdleTimeout(t *testing.T) {
	role := "assistant"
	text := "late"
	gw := newTestGateway(t, func(cfg *config.Config) {
		cfg.StreamingTimeout = 100 * time.Millisecond
	})
	gw.upstream.QueueStream(
		testbedrock.StreamFrame{EventType: awsbedrock.StreamEventTypeMessageStart, Payload: &awsbedrock.ConverseStreamEvent{Role: &role}},
		testbedrock.StreamFrame{Delay: 600 * time.Millisecond, EventType: awsbedrock.StreamEventTypeContentBlockDelta, Payload: &awsbedrock.ConverseStreamEvent{
			Delta: &awsbedrock.ConverseStreamEventContentBlockDelta{Text: &text},
		}},
	)

	resp, body := gw.do(t, http.MethodPost, "/v1/messages", nil, messagesBody(testAlias, true))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := parseSSE(t, body)
	require.Equal(t, []string{"message_start", "error"}, eventNames(events))
	errEvent := events[1].data
	require.Equal(t, "stream_timeout", errEvent.Get("error.type").String())
	require.Contains(t, errEvent.Get("error.message").String(), "100ms")

	rows := waitForUsage(t, gw, 1)
	require.False(t, rows[0].Success)
	require.Contains(t, rows[0].ErrorMessage, "stream idle timeout")
}

func TestMessages_StreamRejectedBeforeStart(t *testing.T) {
	gw := newTestGateway(t, nil)
	gw.upstream.QueueError(http.StatusTooManyRequests, "ThrottlingException", "Too many tokens")

	// A failure before the first frame is a plain JSON error, not SSE.
	resp, body := gw.do(t, http.MethodPost, "/v1/messages", nil, messagesBody(testAlias, true))
	require.Equal(t, 529, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, "overloaded_error", gjson.GetBytes(body, "error.type").String())
	require.Equal(t, "Too many tokens", gjson.GetBytes(body, "error.message").String())
}
