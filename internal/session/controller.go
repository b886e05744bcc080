package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/rbright/hark/internal/fsm"
)

// Options wires a Controller to its collaborators.
type Options struct {
	Logger       *slog.Logger
	Factory      HandleFactory
	Availability Availability
	Authorizer   Authorizer
	Sink         EventSink
	Popup        PopupRecognizer
	Meter        metric.Meter
	Now          func() time.Time
}

// Controller owns one recognizer handle and turns its callbacks into an
// ordered, deduplicated event stream. All state below mu is guarded by it.
type Controller struct {
	logger       *slog.Logger
	factory      HandleFactory
	availability Availability
	authorizer   Authorizer
	sink         EventSink
	popup        PopupRecognizer
	metrics      instruments
	now          func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc

	listening atomic.Bool

	mu         sync.Mutex
	state      fsm.State
	handle     Handle
	generation uint64
	cache      ResultCache
	current    *activeSession
	closed     bool
}

type activeSession struct {
	id          string
	cfg         Config
	call        *Call
	stopped     bool
	cancelPopup context.CancelFunc
}

// Snapshot is a consistent view of controller state.
type Snapshot struct {
	State     fsm.State
	Listening bool
	SessionID string
	HandleUp  bool
}

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	availability := opts.Availability
	if availability == nil {
		availability = alwaysAvailable{}
	}
	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = alwaysGranted{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = MultiSink(nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Controller{
		logger:       logger.With("component", "session"),
		factory:      opts.Factory,
		availability: availability,
		authorizer:   authorizer,
		sink:         sink,
		popup:        opts.Popup,
		metrics:      newInstruments(opts.Meter),
		now:          now,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
		state:        fsm.StateIdle,
	}
}

// Available reports whether a recognition engine can be used right now.
func (c *Controller) Available(ctx context.Context) bool {
	return c.availability.Available(ctx)
}

// Authorization returns the current capture authorization state.
func (c *Controller) Authorization(ctx context.Context) AuthState {
	return c.authorizer.Status(ctx)
}

// RequestAuthorization asks the authorizer to prompt for capture access.
func (c *Controller) RequestAuthorization(ctx context.Context) (AuthState, error) {
	return c.authorizer.Request(ctx)
}

// IsListening is a lock-free snapshot of logical listening.
func (c *Controller) IsListening() bool {
	return c.listening.Load()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:     c.state,
		Listening: c.listening.Load(),
		HandleUp:  c.handle != nil,
	}
	if c.current != nil {
		snap.SessionID = c.current.id
	}
	return snap
}

// Start begins a recognition session. Precondition failures are returned
// without touching controller state. On success the returned Call settles
// with the final transcript, or immediately with an acknowledgement when
// partial results are enabled.
func (c *Controller) Start(ctx context.Context, cfg Config) (*Call, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !c.availability.Available(ctx) {
		return nil, ErrUnavailable
	}
	if c.authorizer.Status(ctx) != AuthGranted {
		return nil, ErrPermissionDenied
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	c.cache.Reset()
	if prev := c.current; prev != nil {
		prev.release()
		prev.call.fail(ErrSuperseded)
	}

	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	c.state = next

	id := uuid.NewString()
	sess := &activeSession{id: id, cfg: cfg, call: newCall(id)}
	c.current = sess

	if cfg.Popup {
		if c.popup != nil {
			c.startPopupLocked(sess)
			return sess.call, nil
		}
		c.logger.Warn("popup requested without popup transport; using inline recognizer")
	}

	if err := c.startEngineLocked(ctx, sess); err != nil {
		c.transitionLocked(fsm.EventFail)
		c.current = nil
		c.listening.Store(false)
		sess.call.fail(err)
		return nil, err
	}

	c.transitionLocked(fsm.EventStarted)
	c.listening.Store(true)
	c.metrics.sessionStarted(sessionMode(cfg))
	c.logger.Info("session started",
		"session_id", sess.id,
		"language", cfg.Language,
		"partial", cfg.PartialResults,
		"segmented", cfg.Segmented(),
	)

	if cfg.PartialResults {
		sess.call.resolve(Outcome{Acknowledged: true})
	}
	return sess.call, nil
}

// Stop cancels and stops the engine without destroying it. It is safe to
// call in any state and never emits events.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		if err := c.handle.Cancel(ctx); err != nil {
			c.logger.Debug("recognizer cancel ignored", "error", err)
		}
		if err := c.handle.Stop(ctx); err != nil {
			c.logger.Debug("recognizer stop ignored", "error", err)
		}
	}

	c.cache.Reset()
	c.listening.Store(false)
	if sess := c.current; sess != nil {
		sess.stopped = true
		sess.release()
		if sess.call.fail(ErrStopped) {
			c.logger.Info("session stopped", "session_id", sess.id)
		}
	}
	c.transitionLocked(fsm.EventStop)
	return nil
}

// Close tears the controller down. The handle is destroyed and any
// outstanding call fails with ErrClosed.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	if sess := c.current; sess != nil {
		sess.release()
		sess.call.fail(ErrClosed)
	}
	c.current = nil
	c.cache.Reset()
	c.listening.Store(false)
	err := c.destroyLocked(ctx)
	c.state = fsm.StateIdle
	c.mu.Unlock()

	c.cancelBase()
	return err
}

// Dispatch ingests one engine callback for the live handle.
func (c *Controller) Dispatch(event EngineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLocked(event)
}

func (c *Controller) deliver(generation uint64, event EngineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.Debug("dropping event from retired recognizer", "event", fmt.Sprintf("%T", event))
		return
	}
	c.dispatchLocked(event)
}

func (c *Controller) dispatchLocked(event EngineEvent) {
	sess := c.current

	switch ev := event.(type) {
	case Ready, Beginning:
		// Every readiness callback announces listening, including the
		// next segment after an end of speech. A stopped session stays quiet.
		if sess == nil || sess.stopped {
			c.logger.Debug("ignoring readiness outside a session", "state", c.state)
			return
		}
		c.listening.Store(true)
		c.emitLocked(Event{Type: EventListeningState, Status: ListeningStarted})

	case EndOfSpeech:
		c.listening.Store(false)
		c.transitionLocked(fsm.EventEnd)
		c.emitLocked(Event{Type: EventListeningState, Status: ListeningStopped})

	case EngineFailure:
		engineErr := Classify(ev.Code)
		c.metrics.engineError(engineErr.Kind)
		c.cache.Reset()
		c.listening.Store(false)
		c.transitionLocked(fsm.EventFail)
		if err := c.destroyLocked(context.Background()); err != nil {
			c.logger.Warn("recognizer destroy failed", "error", err)
		}
		c.current = nil

		if sess == nil || !sess.call.fail(engineErr) {
			c.logger.Debug("engine error with no pending call", "kind", engineErr.Kind, "code", ev.Code)
			return
		}
		c.logger.Warn("session failed", "session_id", sess.id, "kind", engineErr.Kind, "code", ev.Code)

	case Results:
		set := NewResultSet(ev.Matches)
		c.listening.Store(false)
		c.transitionLocked(fsm.EventResult)
		switch {
		case sess == nil:
			c.logger.Debug("results with no session", "matches", len(set))
		case sess.cfg.PartialResults:
			c.emitLocked(Event{Type: EventPartialResults, Matches: set})
		default:
			if sess.call.resolve(Outcome{Matches: set}) {
				c.logger.Info("session resolved", "session_id", sess.id, "matches", len(set))
			}
		}
		c.cache.Reset()

	case PartialResults:
		set := NewResultSet(ev.Matches)
		if !c.cache.ShouldEmit(set) {
			c.metrics.partialsSuppressed.Add(context.Background(), 1)
			return
		}
		c.emitLocked(Event{Type: EventPartialResults, Matches: set})
		c.cache.Commit(set)
		c.metrics.partialsEmitted.Add(context.Background(), 1)

	case SegmentResults:
		if ev.Matches == nil {
			return
		}
		c.emitLocked(Event{Type: EventSegmentResults, Matches: NewResultSet(ev.Matches)})

	case SegmentedSessionEnded:
		c.emitLocked(Event{Type: EventEndOfSegmentedSession})

	default:
		c.logger.Warn("unhandled engine event", "event", fmt.Sprintf("%T", event))
	}
}

func (c *Controller) startEngineLocked(ctx context.Context, sess *activeSession) error {
	handle, err := c.acquireLocked(ctx)
	if err != nil {
		return err
	}
	if err := handle.Start(ctx, sess.cfg); err != nil {
		if derr := c.destroyLocked(ctx); derr != nil {
			c.logger.Warn("recognizer destroy failed", "error", derr)
		}
		return fmt.Errorf("start recognizer: %w", err)
	}
	return nil
}

// acquireLocked reuses the live handle or creates a new one. A reused
// handle is cancelled first so stale work does not leak into the session.
func (c *Controller) acquireLocked(ctx context.Context) (Handle, error) {
	if c.handle != nil {
		if err := c.handle.Cancel(ctx); err != nil {
			c.logger.Debug("recognizer cancel ignored", "error", err)
		}
		return c.handle, nil
	}
	if c.factory == nil {
		return nil, errors.New("create recognizer: no recognizer factory configured")
	}

	c.generation++
	generation := c.generation
	handle, err := c.factory.Create(c.baseCtx, func(event EngineEvent) {
		c.deliver(generation, event)
	})
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	c.handle = handle
	c.metrics.handlesCreated.Add(context.Background(), 1)
	c.logger.Debug("recognizer created", "generation", generation)
	return handle, nil
}

// destroyLocked retires the live handle. Bumping the generation makes any
// callback the teardown provokes stale.
func (c *Controller) destroyLocked(ctx context.Context) error {
	if c.handle == nil {
		return nil
	}
	handle := c.handle
	c.handle = nil
	c.generation++

	if err := handle.Cancel(ctx); err != nil {
		c.logger.Debug("recognizer cancel ignored", "error", err)
	}
	c.metrics.handlesDestroyed.Add(context.Background(), 1)
	if err := handle.Destroy(); err != nil {
		return fmt.Errorf("destroy recognizer: %w", err)
	}
	return nil
}

func (c *Controller) startPopupLocked(sess *activeSession) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	sess.cancelPopup = cancel
	c.transitionLocked(fsm.EventStarted)
	c.listening.Store(true)
	c.metrics.sessionStarted(sessionMode(sess.cfg))
	c.logger.Info("popup session started", "session_id", sess.id, "language", sess.cfg.Language)

	go c.runPopup(ctx, sess)
}

func (c *Controller) runPopup(ctx context.Context, sess *activeSession) {
	matches, err := c.popup.Recognize(ctx, sess.cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	sess.release()
	if c.current != sess || sess.call.Settled() {
		return
	}

	c.listening.Store(false)
	if err != nil {
		c.transitionLocked(fsm.EventFail)
		sess.call.fail(fmt.Errorf("popup recognition: %w", err))
		return
	}
	c.transitionLocked(fsm.EventResult)
	sess.call.resolve(Outcome{Matches: NewResultSet(matches)})
}

func (c *Controller) transitionLocked(event fsm.Event) {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Debug("ignoring session transition", "error", err)
		return
	}
	c.state = next
}

func (c *Controller) emitLocked(event Event) {
	event.At = c.now().UTC()
	if c.current != nil {
		event.SessionID = c.current.id
	}
	c.sink.Emit(event)
}

func (s *activeSession) release() {
	if s.cancelPopup != nil {
		s.cancelPopup()
		s.cancelPopup = nil
	}
}

func sessionMode(cfg Config) string {
	switch {
	case cfg.Popup:
		return "popup"
	case cfg.Segmented():
		return "segmented"
	case cfg.PartialResults:
		return "partial"
	default:
		return "final"
	}
}
