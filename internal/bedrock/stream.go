// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package bedrock

import (
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// Eventstream header names. The colon prefix marks AWS system headers.
const (
	headerMessageType   = ":message-type"
	headerEventType     = ":event-type"
	headerExceptionType = ":exception-type"
)

// Frame is one decoded ConverseStream message. Event frames carry
// EventType; exception frames carry ExceptionType instead and terminate
// the stream. Payload is the frame's JSON body and is only valid until
// the next call to Next.
type Frame struct {
	EventType     string
	ExceptionType string
	Payload       []byte
}

// Stream reads eventstream frames off a ConverseStream response body.
// It is not safe for concurrent use.
type Stream struct {
	body io.ReadCloser
	dec  *eventstream.Decoder
	// buf is reused across Decode calls; frame payloads alias it.
	buf []byte
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{
		body: body,
		dec:  eventstream.NewDecoder(),
		buf:  make([]byte, 0, 1024*1024),
	}
}

// Next decodes the next frame. io.EOF means the backend finished the
// stream; any other error means the connection died mid-stream.
func (s *Stream) Next() (*Frame, error) {
	msg, err := s.dec.Decode(s.body, s.buf)
	if err != nil {
		return nil, err
	}
	frame := &Frame{
		EventType: headerString(msg.Headers, headerEventType),
		Payload:   msg.Payload,
	}
	if headerString(msg.Headers, headerMessageType) == "exception" {
		frame.ExceptionType = headerString(msg.Headers, headerExceptionType)
	}
	return frame, nil
}

// Close releases the underlying response body. Safe to call after EOF or
// mid-stream to abort.
func (s *Stream) Close() error {
	return s.body.Close()
}

func headerString(headers eventstream.Headers, name string) string {
	for _, h := range headers {
		if h.Name != name {
			continue
		}
		if v, ok := h.Value.(eventstream.StringValue); ok {
			return string(v)
		}
	}
	return ""
}
