package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/hark/internal/session"
)

const (
	defaultQueueSize = 256
	appendTimeout    = 5 * time.Second
)

// EventResults marks a final transcript that resolved a start call instead
// of being emitted to sinks.
const EventResults session.EventType = "results"

// Recorder is a session.EventSink that persists events on a single worker
// goroutine, preserving emission order.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	queue  chan session.Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return newRecorder(store, logger, defaultQueueSize)
}

func newRecorder(store *Store, logger *slog.Logger, size int) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Recorder{
		store:  store,
		logger: logger.With("component", "history"),
		queue:  make(chan session.Event, size),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Emit enqueues the event. A full queue drops the event.
func (r *Recorder) Emit(event session.Event) {
	r.enqueue(event)
}

// RecordResult queues the final matches of a non-partial session.
func (r *Recorder) RecordResult(sessionID string, matches session.ResultSet) {
	r.enqueue(session.Event{
		Type:      EventResults,
		SessionID: sessionID,
		Matches:   matches,
		At:        time.Now().UTC(),
	})
}

func (r *Recorder) enqueue(event session.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.logger.Warn("history queue full; dropping event", "type", event.Type, "session_id", event.SessionID)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := r.store.Append(ctx, event); err != nil {
			r.logger.Warn("history append failed", "type", event.Type, "error", err)
		}
		cancel()
	}
}
