// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package bedrock

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
	"github.com/bedrockgate/bedrockgate/internal/testing/testbedrock"
)

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

// drain iterates the stream to io.EOF, copying each frame since the payload
// buffer is reused between Next calls.
func drain(t *testing.T, stream *Stream) []testbedrock.StreamFrame {
	t.Helper()
	var frames []testbedrock.StreamFrame
	for {
		frame, err := stream.Next()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		payload := make([]byte, len(frame.Payload))
		copy(payload, frame.Payload)
		frames = append(frames, testbedrock.StreamFrame{
			EventType:     frame.EventType,
			ExceptionType: frame.ExceptionType,
			Payload:       payload,
		})
	}
}

func TestConverseStream(t *testing.T) {
	client, upstream := newTestClient(t)
	upstream.QueueStream(textStreamFrames()...)

	stream, err := client.ConverseStream(context.Background(), testModel, []byte(`{"inferenceConfig":{"maxTokens":16}}`))
	require.NoError(t, err)
	defer stream.Close()

	frames := drain(t, stream)
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i] = f.EventType
	}
	require.Equal(t, []string{
		awsbedrock.StreamEventTypeMessageStart,
		awsbedrock.StreamEventTypeContentBlockDelta,
		awsbedrock.StreamEventTypeContentBlockStop,
		awsbedrock.StreamEventTypeMessageStop,
		awsbedrock.StreamEventTypeMetadata,
	}, types)

	var event awsbedrock.ConverseStreamEvent
	require.NoError(t, json.Unmarshal(frames[1].Payload.([]byte), &event))
	require.NotNil(t, event.Delta)
	require.Equal(t, "Hello", *event.Delta.Text)

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "/model/"+testModel+"/converse-stream", reqs[0].Path)
	require.Equal(t, "application/vnd.amazon.eventstream", reqs[0].Header.Get("Accept"))
	require.Contains(t, reqs[0].Header.Get("Authorization"), "AWS4-HMAC-SHA256")
}

func TestConverseStream_Exception(t *testing.T) {
	text := "partial"
	client, upstream := newTestClient(t)
	upstream.QueueStream(
		testbedrock.StreamFrame{EventType: awsbedrock.StreamEventTypeContentBlockDelta, Payload: &awsbedrock.ConverseStreamEvent{
			Delta: &awsbedrock.ConverseStreamEventContentBlockDelta{Text: &text},
		}},
		testbedrock.StreamFrame{ExceptionType: awsbedrock.ExceptionTypeThrottling, Payload: &awsbedrock.BedrockException{
			Message: "slow down",
		}},
	)

	stream, err := client.ConverseStream(context.Background(), testModel, []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	frames := drain(t, stream)
	require.Len(t, frames, 2)
	require.Empty(t, frames[0].ExceptionType)
	require.Equal(t, awsbedrock.ExceptionTypeThrottling, frames[1].ExceptionType)
	require.Equal(t, "slow down", gjson.GetBytes(frames[1].Payload.([]byte), "message").String())
}

func TestConverseStream_TierFallback(t *testing.T) {
	client, upstream := newTestClient(t)
	upstream.QueueError(http.StatusBadRequest, "ValidationException",
		"The model does not support the requested service tier")
	upstream.QueueStream(textStreamFrames()...)

	stream, err := client.ConverseStream(context.Background(), testModel, []byte(`{"serviceTier":"flex"}`))
	require.NoError(t, err)
	defer stream.Close()

	frames := drain(t, stream)
	require.Len(t, frames, 5)

	reqs := upstream.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "default", gjson.GetBytes(reqs[1].Body, "serviceTier").String())
}

func TestConverseStream_ErrorStatus(t *testing.T) {
	client, upstream := newTestClient(t)
	upstream.QueueError(http.StatusTooManyRequests, "ThrottlingException", "Too many tokens")

	_, err := client.ConverseStream(context.Background(), testModel, []byte(`{}`))
	require.Error(t, err)
	require.Equal(t, internalapi.ErrorTypeOverloaded, internalapi.Classify(err).Type)
}

func TestStream_EmptyBody(t *testing.T) {
	stream := newStream(io.NopCloser(strings.NewReader("")))
	defer stream.Close()
	_, err := stream.Next()
	require.Equal(t, io.EOF, err)
}
