// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bedrockgate/bedrockgate/internal/apischema/anthropic"
	"github.com/bedrockgate/bedrockgate/internal/apischema/awsbedrock"
	"github.com/bedrockgate/bedrockgate/internal/bedrock"
	"github.com/bedrockgate/bedrockgate/internal/internalapi"
	"github.com/bedrockgate/bedrockgate/internal/json"
	"github.com/bedrockgate/bedrockgate/internal/translator"
)

// frameResult is one decoded backend frame handed from the pump goroutine
// to the response loop. Exactly one of event, exception or err is set.
type frameResult struct {
	eventType string
	event     *awsbedrock.ConverseStreamEvent
	// exception carries the frame's :exception-type header; message is the
	// decoded exception message.
	exception string
	message   string
	err       error
}

// serveStream runs the SSE half of the Messages pipeline. Once the stream
// opens, failures no longer change the HTTP status: they terminate the
// stream with an error event, matching the Anthropic streaming contract.
func (s *Server) serveStream(ctx context.Context, w http.ResponseWriter, st *messageState, payload []byte) {
	logger := loggerFromContext(ctx, s.logger)

	stream, err := s.bedrock.ConverseStream(ctx, st.resolved, payload)
	if err != nil {
		s.writeError(ctx, w, st, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		stream.Close()
		s.writeError(ctx, w, st, internalapi.Errorf(internalapi.ErrorTypeInternal, "response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	frames := make(chan frameResult)
	go pumpFrames(stream, frames)
	defer func() {
		// Closing the stream unblocks the pump; draining lets it exit.
		stream.Close()
		for range frames {
		}
	}()

	tr := translator.NewStreamTranslator(st.original)
	watchdog := time.NewTimer(s.cfg.StreamingTimeout)
	defer watchdog.Stop()

	var buf []byte
	eventsWritten := false
	// writeEvents renders one batch of events and flushes once. The events
	// slice must be freshly allocated per call: the span holds the pointers
	// until the stream ends.
	writeEvents := func(events []anthropic.StreamEvent) error {
		if len(events) == 0 {
			return nil
		}
		buf = buf[:0]
		for i := range events {
			ev := &events[i]
			if st.span != nil {
				st.span.RecordResponseChunk(ev)
			}
			var err error
			if buf, err = translator.AppendSSE(buf, ev); err != nil {
				return err
			}
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("writing stream events: %w", err)
		}
		flusher.Flush()
		eventsWritten = true
		return nil
	}

	var streamErr error
loop:
	for !tr.Done() {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			break loop
		case <-watchdog.C:
			ev := anthropic.StreamEvent{Error: &anthropic.ErrorEvent{
				Type: anthropic.StreamEventTypeError,
				Error: anthropic.ErrorDetail{
					Type:    string(internalapi.ErrorTypeStreamTimeout),
					Message: fmt.Sprintf("no backend activity for %s", s.cfg.StreamingTimeout),
				},
			}}
			if werr := writeEvents([]anthropic.StreamEvent{ev}); werr != nil {
				logger.DebugContext(ctx, "cannot write timeout event", slog.String("error", werr.Error()))
			}
			streamErr = fmt.Errorf("%w after %s", internalapi.ErrStreamIdleTimeout, s.cfg.StreamingTimeout)
			break loop
		case fr, open := <-frames:
			if !open {
				// Backend ended the stream early; emit whatever a complete
				// message still owes.
				if werr := writeEvents(tr.Finish()); werr != nil {
					streamErr = werr
				}
				break loop
			}
			watchdog.Reset(s.cfg.StreamingTimeout)
			switch {
			case fr.err != nil:
				if ctx.Err() != nil {
					// The transport error is our own cancellation.
					streamErr = ctx.Err()
					break loop
				}
				ev := tr.TranslateException("", "stream interrupted")
				if werr := writeEvents([]anthropic.StreamEvent{ev}); werr != nil {
					logger.DebugContext(ctx, "cannot write stream error event", slog.String("error", werr.Error()))
				}
				streamErr = internalapi.WrapError(internalapi.ErrorTypeAPI, fr.err, "stream interrupted")
			case fr.exception != "":
				ev := tr.TranslateException(fr.exception, fr.message)
				if werr := writeEvents([]anthropic.StreamEvent{ev}); werr != nil {
					logger.DebugContext(ctx, "cannot write exception event", slog.String("error", werr.Error()))
				}
				streamErr = internalapi.Errorf(internalapi.ErrorType(ev.Error.Error.Type),
					"backend exception %s: %s", fr.exception, fr.message)
			default:
				events := tr.Translate(fr.eventType, fr.event)
				if werr := writeEvents(events); werr != nil {
					streamErr = werr
					break loop
				}
				if len(events) > 0 {
					st.metrics.RecordTokenLatency(ctx, tr.Usage().OutputTokens, false)
				}
			}
		}
	}

	u := tr.Usage()
	if streamErr != nil {
		gerr := internalapi.Classify(streamErr)
		logger.ErrorContext(ctx, "stream failed",
			slog.String("error_type", string(gerr.Type)),
			slog.String("error", streamErr.Error()))
		st.metrics.RecordRequestCompletion(ctx, gerr)
		s.recordUsage(st, u, false, streamErr.Error())
	} else {
		st.metrics.SetResponseModel(st.original)
		st.metrics.RecordTokenUsage(ctx, &u)
		if eventsWritten {
			st.metrics.RecordTokenLatency(ctx, u.OutputTokens, true)
		}
		st.metrics.RecordRequestCompletion(ctx, nil)
		s.recordUsage(st, u, true, "")
	}
	if st.span != nil {
		// The 200 is long gone; the span carries whatever chunks were
		// recorded, error event included.
		st.span.EndSpan()
	}
}

// pumpFrames reads the backend stream to completion on its own goroutine,
// decoding each frame before the next Next call because the frame payload
// aliases the decoder's buffer. The channel is unbuffered so backend reads
// never outrun the client write side. Closing the stream aborts a blocked
// Next; the owner must drain the channel afterwards.
func pumpFrames(stream *bedrock.Stream, frames chan<- frameResult) {
	defer close(frames)
	for {
		frame, err := stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				frames <- frameResult{err: err}
			}
			return
		}
		fr := frameResult{eventType: frame.EventType, exception: frame.ExceptionType}
		if frame.ExceptionType != "" {
			var exc awsbedrock.BedrockException
			if err := json.Unmarshal(frame.Payload, &exc); err == nil {
				fr.message = exc.Message
			}
		} else {
			var ev awsbedrock.ConverseStreamEvent
			if err := json.Unmarshal(frame.Payload, &ev); err != nil {
				frames <- frameResult{err: fmt.Errorf("decoding %s frame: %w", frame.EventType, err)}
				return
			}
			fr.event = &ev
		}
		frames <- fr
	}
}
