package manabi

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultMaxBatch   = 20
	defaultFlushDelay = 4 * time.Second
)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithMaxBatch sets the queue size that triggers an immediate flush.
func WithMaxBatch(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.maxBatch = n
		}
	}
}

// WithFlushDelay sets how long a non-empty queue may wait before flushing.
func WithFlushDelay(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.flushDelay = d
		}
	}
}

// WithRecorderLogger sets the logger for flush failures.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder buffers telemetry events client-side and transmits them in
// batches, so a chatty learning session does not turn into a request per
// click. A batch is sent when the queue reaches the batch size or when the
// oldest queued event has waited out the flush delay, whichever comes first.
//
// The recorder is session-scoped: events are only queued while a session
// token is set, and clearing the token (logout) discards anything still
// queued. Telemetry is best-effort: a failed transmission is logged and
// dropped, never retried, so a flaky network can't grow an unbounded backlog
// on the client.
//
// All methods are safe for concurrent use.
type Recorder struct {
	client     *Client
	maxBatch   int
	flushDelay time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	queue []EventInput
	timer *time.Timer
}

// NewRecorder creates a Recorder that transmits through client.
func NewRecorder(client *Client, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		client:     client,
		maxBatch:   defaultMaxBatch,
		flushDelay: defaultFlushDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record queues a single event. If no session token is set the event is
// dropped. When the queue reaches the batch size, the batch is handed to a
// background goroutine for transmission; otherwise the first queued event
// arms the flush timer. Record never waits on the network, so a slow or
// hung server cannot stall the recording caller.
func (r *Recorder) Record(event EventInput) {
	if r.client.SessionToken() == "" {
		return
	}

	r.mu.Lock()
	r.queue = append(r.queue, event)

	if len(r.queue) >= r.maxBatch {
		batch := r.takeQueueLocked()
		r.mu.Unlock()
		go r.send(batch)
		return
	}

	if r.timer == nil {
		r.timer = time.AfterFunc(r.flushDelay, r.flushTimer)
	}
	r.mu.Unlock()
}

// Flush sends any queued events immediately and blocks until transmission
// completes. Useful before the application exits or the page unloads, when
// a background send would be cut short.
func (r *Recorder) Flush() {
	r.mu.Lock()
	batch := r.takeQueueLocked()
	r.mu.Unlock()
	r.send(batch)
}

// SetSessionToken replaces the session token on the underlying client.
// Setting an empty token (logout) discards the queue and stops the flush
// timer: events recorded for one session are never sent under another.
func (r *Recorder) SetSessionToken(token string) {
	if token == "" {
		r.mu.Lock()
		r.queue = nil
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.mu.Unlock()
	}
	r.client.SetSessionToken(token)
}

// Pending returns how many events are currently queued.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// flushTimer is the timer callback; it drains whatever has accumulated.
func (r *Recorder) flushTimer() {
	r.mu.Lock()
	batch := r.takeQueueLocked()
	r.mu.Unlock()
	r.send(batch)
}

// takeQueueLocked swaps the queue out and disarms the timer. The caller
// must hold r.mu. Events are handed to the network outside the lock so a
// slow request never blocks Record.
func (r *Recorder) takeQueueLocked() []EventInput {
	batch := r.queue
	r.queue = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return batch
}

func (r *Recorder) send(batch []EventInput) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.client.IngestEvents(ctx, batch); err != nil {
		r.logger.Warn("manabi: telemetry batch dropped", "events", len(batch), "error", err)
	}
}
