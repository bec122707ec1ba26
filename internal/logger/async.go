package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a logging handler.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from I/O by queueing records onto a
// buffered channel consumed by background workers. When the queue is full
// records are dropped rather than blocking the caller.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan slog.Record
	wg      *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler creates an AsyncHandler with the given queue capacity and
// worker count.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan slog.Record, queueSize),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for i := 0; i < workers; i++ {
		h.wg.Add(1)
		go h.worker()
	}
	return h
}

func (h *AsyncHandler) worker() {
	defer h.wg.Done()
	for rec := range h.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing this queue but wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		queue:   h.queue,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// WithGroup returns a handler sharing this queue but wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		queue:   h.queue,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// DroppedCount returns the number of records dropped due to a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close closes the queue and waits for the workers to finish draining it.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.wg.Wait()
}
