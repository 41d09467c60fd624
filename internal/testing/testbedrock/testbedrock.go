// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package testbedrock runs a fake Bedrock Runtime endpoint for tests. It
// serves queued responses in FIFO order and records every request it
// receives, so tests can assert on the exact wire traffic: unary Converse
// JSON, error responses with x-amzn-errortype, and ConverseStream
// responses encoded as genuine AWS eventstream frames.
package testbedrock

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/json"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeEventStream = "application/vnd.amazon.eventstream"
	errorTypeHeader        = "x-amzn-errortype"
)

// StreamFrame describes one eventstream frame the fake emits. Payload is
// marshaled to JSON. A non-empty ExceptionType turns the frame into an
// exception frame and EventType is ignored.
type StreamFrame struct {
	EventType     string
	ExceptionType string
	Payload       any
	// Delay pauses before this frame is written, to exercise idle-timeout
	// handling. Keep it short: the handler sleeps through it even when the
	// client has gone away.
	Delay time.Duration
}

// RecordedRequest is one request the fake received.
type RecordedRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

type queuedResponse struct {
	status    int
	errorType string
	body      any
	frames    []StreamFrame
}

// Server is the fake upstream. All methods are safe for concurrent use.
type Server struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	queue    []queuedResponse
	requests []RecordedRequest
}

// New starts a fake Bedrock endpoint that shuts down with the test.
func New(t *testing.T) *Server {
	s := &Server{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the base endpoint to point the client at.
func (s *Server) URL() string { return s.srv.URL }

// QueueResponse queues a 200 JSON response. body is marshaled unless it is
// already []byte.
func (s *Server) QueueResponse(body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedResponse{status: http.StatusOK, body: body})
}

// QueueError queues an error response carrying the given exception name in
// the x-amzn-errortype header and {"message": ...} as the body.
func (s *Server) QueueError(status int, errorType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedResponse{
		status:    status,
		errorType: errorType,
		body:      awsbedrock.BedrockException{Message: message},
	})
}

// QueueStream queues a 200 eventstream response emitting the given frames
// in order, then closing the connection the way Bedrock ends a stream.
func (s *Server) QueueStream(frames ...StreamFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, queuedResponse{status: http.StatusOK, frames: append([]StreamFrame{}, frames...)})
}

// Requests returns a copy of everything received so far, in arrival order.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	// Reachability probes GET the bare endpoint; answer them without
	// consuming the queue or recording them as traffic under test.
	if r.Method == http.MethodGet && r.URL.Path == "/" {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.t.Errorf("testbedrock: failed to read request body: %v", err)
	}

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	var next queuedResponse
	ok := len(s.queue) > 0
	if ok {
		next = s.queue[0]
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	if !ok {
		s.t.Errorf("testbedrock: request to %s with no queued response", r.URL.Path)
		w.Header().Set(errorTypeHeader, "InternalServerException")
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"no queued response"}`))
		return
	}

	if next.frames != nil {
		s.serveStream(w, next.frames)
		return
	}

	payload, ok := next.body.([]byte)
	if !ok {
		if payload, err = json.Marshal(next.body); err != nil {
			s.t.Errorf("testbedrock: failed to marshal queued body: %v", err)
		}
	}
	if next.errorType != "" {
		w.Header().Set(errorTypeHeader, next.errorType)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(next.status)
	_, _ = w.Write(payload)
}

func (s *Server) serveStream(w http.ResponseWriter, frames []StreamFrame) {
	w.Header().Set("Content-Type", contentTypeEventStream)
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	e := eventstream.NewEncoder()
	for _, frame := range frames {
		if frame.Delay > 0 {
			time.Sleep(frame.Delay)
		}
		payload, err := json.Marshal(frame.Payload)
		if err != nil {
			s.t.Errorf("testbedrock: failed to marshal frame payload: %v", err)
			return
		}
		headers := eventstream.Headers{
			{Name: ":message-type", Value: eventstream.StringValue("event")},
			{Name: ":event-type", Value: eventstream.StringValue(frame.EventType)},
		}
		if frame.ExceptionType != "" {
			headers = eventstream.Headers{
				{Name: ":message-type", Value: eventstream.StringValue("exception")},
				{Name: ":exception-type", Value: eventstream.StringValue(frame.ExceptionType)},
			}
		}
		if err := e.Encode(w, eventstream.Message{Headers: headers, Payload: payload}); err != nil {
			s.t.Errorf("testbedrock: failed to encode frame: %v", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
