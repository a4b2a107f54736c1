package audit

import (
	"context"
	"sync"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/auth"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/logging"
)

const (
	// defaultQueueSize bounds events waiting for asynchronous writers.
	defaultQueueSize = 256

	// writeTimeout caps each writer call. Writers run detached from the
	// request context so a client disconnect does not drop the audit entry.
	writeTimeout = 5 * time.Second
)

// Writer persists or forwards one session event.
type Writer interface {
	Write(ctx context.Context, event auth.Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, event auth.Event) error

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, event auth.Event) error { return f(ctx, event) }

type namedWriter struct {
	name string
	w    Writer
}

// Recorder implements auth.EventSink by fanning events out to writers.
//
// Synchronous writers (the audit table) run inside Record. Asynchronous
// writers (MQTT, InfluxDB) are fed from a bounded queue by one worker; when
// the queue is full the event is dropped for them and a warning logged.
// Writer failures are logged and never reach the caller.
//
// Thread Safety: Record is safe for concurrent use.
type Recorder struct {
	syncWriters  []namedWriter
	asyncWriters []namedWriter
	queueSize    int
	logger       *logging.Logger

	queue  chan auth.Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithWriter adds a writer that runs inside Record.
func WithWriter(name string, w Writer) RecorderOption {
	return func(r *Recorder) { r.syncWriters = append(r.syncWriters, namedWriter{name, w}) }
}

// WithAsyncWriter adds a writer fed from the background queue.
func WithAsyncWriter(name string, w Writer) RecorderOption {
	return func(r *Recorder) { r.asyncWriters = append(r.asyncWriters, namedWriter{name, w}) }
}

// WithQueueSize overrides the asynchronous queue capacity.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// NewRecorder builds a Recorder and starts its worker when any asynchronous
// writer is configured. Call Close to drain the queue.
func NewRecorder(logger *logging.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Recorder{queueSize: defaultQueueSize, logger: logger.With("component", "audit")}
	for _, opt := range opts {
		opt(r)
	}

	if len(r.asyncWriters) > 0 {
		r.queue = make(chan auth.Event, r.queueSize)
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Record implements auth.EventSink.
func (r *Recorder) Record(ctx context.Context, event auth.Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	detached := context.WithoutCancel(ctx)
	for _, nw := range r.syncWriters {
		r.write(detached, nw, event)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.queue == nil || r.closed {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.logger.Warn("audit queue full, event dropped for async writers", "event", event.Type)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for event := range r.queue {
		for _, nw := range r.asyncWriters {
			r.write(context.Background(), nw, event)
		}
	}
}

func (r *Recorder) write(ctx context.Context, nw namedWriter, event auth.Event) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := nw.w.Write(ctx, event); err != nil {
		r.logger.Warn("audit writer failed",
			"writer", nw.name,
			"event", event.Type,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}
