// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package usage persists accounting records off the request path. Records
// are enqueued without blocking; a single worker writes them to the store.
// Failures are logged and dropped — usage accounting never surfaces an
// error to a client.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bedrockgate/bedrockgate/internal/store"
)

const (
	queueSize    = 1024
	insertWindow = 5 * time.Second
	drainWindow  = 10 * time.Second
)

// Sink is the slice of the store the recorder consumes.
type Sink interface {
	InsertUsage(ctx context.Context, rec *store.UsageRecord) error
}

// Recorder is an asynchronous, best-effort usage writer. Safe for
// concurrent use.
type Recorder struct {
	sink   Sink
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	records chan store.UsageRecord

	workerDone chan struct{}
}

// NewRecorder starts the write worker.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sink:       sink,
		logger:     logger,
		records:    make(chan store.UsageRecord, queueSize),
		workerDone: make(chan struct{}),
	}
	go r.worker()
	return r
}

// Record enqueues one usage record. It never blocks: when the queue is
// full or the recorder is closed the record is dropped with a log line.
func (r *Recorder) Record(rec store.UsageRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("usage recorder closed, dropping record",
			slog.String("request_id", rec.RequestID))
		return
	}
	select {
	case r.records <- rec:
	default:
		r.logger.Warn("usage queue full, dropping record",
			slog.String("request_id", rec.RequestID))
	}
}

func (r *Recorder) worker() {
	defer close(r.workerDone)
	for rec := range r.records {
		// Detached from any request: the caller may be long gone.
		ctx, cancel := context.WithTimeout(context.Background(), insertWindow)
		if err := r.sink.InsertUsage(ctx, &rec); err != nil {
			r.logger.Warn("failed to persist usage record",
				slog.String("request_id", rec.RequestID),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}

// Close stops intake and drains queued records, abandoning the drain after
// a deadline.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	select {
	case <-r.workerDone:
	case <-time.After(drainWindow):
		r.logger.Warn("usage recorder drain timed out")
	}
}
