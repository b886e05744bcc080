package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/hark/internal/session"
)

// Backend names accepted in configuration.
const (
	BackendExec      = "exec"
	BackendWebsocket = "websocket"
)

// ErrHandleClosed is returned by handle methods after Destroy.
var ErrHandleClosed = errors.New("recognizer handle destroyed")

// transport is one framed, bidirectional connection to an engine.
type transport interface {
	Send(ctx context.Context, req Request) error
	// Receive blocks for the next frame.
	Receive() ([]byte, error)
	Close() error
}

type dialFunc func(ctx context.Context) (transport, error)

// Engine creates recognizer handles over one backend. It implements
// session.HandleFactory and session.LanguageLister.
type Engine struct {
	backend string
	dial    dialFunc
	logger  *slog.Logger
}

// Options selects and configures an engine backend.
type Options struct {
	Backend     string
	Command     string
	Endpoint    string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// New builds an Engine for the configured backend.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		dial dialFunc
		err  error
	)
	switch opts.Backend {
	case "", BackendExec:
		dial, err = execDialer(opts.Command)
	case BackendWebsocket:
		dial, err = websocketDialer(opts.Endpoint, opts.DialTimeout)
	default:
		return nil, fmt.Errorf("unsupported engine backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendExec
	}
	return &Engine{
		backend: backend,
		dial:    dial,
		logger:  logger.With("component", "engine", "backend", backend),
	}, nil
}

// Backend returns the selected backend name.
func (e *Engine) Backend() string {
	return e.backend
}

// Create opens a new engine connection and starts its reader. deliver is
// invoked from the reader goroutine only.
func (e *Engine) Create(ctx context.Context, deliver func(session.EngineEvent)) (session.Handle, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	h := &handle{
		conn:    conn,
		deliver: deliver,
		logger:  e.logger,
		done:    make(chan struct{}),
	}
	go h.readLoop()
	return h, nil
}

// Languages asks a short-lived engine connection for its supported
// language tags.
func (e *Engine) Languages(ctx context.Context) ([]string, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(ctx, Request{Op: OpLanguages}); err != nil {
		return nil, fmt.Errorf("request languages: %w", err)
	}

	type reply struct {
		languages []string
		err       error
	}
	replies := make(chan reply, 1)
	go func() {
		for {
			data, err := conn.Receive()
			if err != nil {
				replies <- reply{err: fmt.Errorf("read languages: %w", err)}
				return
			}
			msg, err := ParseMessage(data)
			if err != nil {
				continue
			}
			switch msg.Event {
			case EventLanguages:
				replies <- reply{languages: msg.Languages}
				return
			case EventError:
				replies <- reply{err: session.Classify(session.ErrorCode(msg.Code))}
				return
			}
		}
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			return nil, r.err
		}
		if r.languages == nil {
			return []string{}, nil
		}
		return r.languages, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handle is one live engine connection.
type handle struct {
	conn    transport
	deliver func(session.EngineEvent)
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func (h *handle) Start(ctx context.Context, cfg session.Config) error {
	return h.send(ctx, startRequest(cfg))
}

func (h *handle) Cancel(ctx context.Context) error {
	return h.send(ctx, Request{Op: OpCancel})
}

func (h *handle) Stop(ctx context.Context) error {
	return h.send(ctx, Request{Op: OpStop})
}

// Destroy closes the connection. It does not wait for the reader, which may
// be blocked delivering into the controller.
func (h *handle) Destroy() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		err = h.conn.Close()
	})
	return err
}

func (h *handle) send(ctx context.Context, req Request) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	if err := h.conn.Send(ctx, req); err != nil {
		return fmt.Errorf("send %s: %w", req.Op, err)
	}
	return nil
}

func (h *handle) readLoop() {
	defer close(h.done)

	for {
		data, err := h.conn.Receive()
		if err != nil {
			if h.closed.Load() {
				return
			}
			h.logger.Warn("engine connection lost", "error", err)
			h.deliver(session.EngineFailure{Code: session.CodeServerDisconnected})
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			h.logger.Debug("skipping engine frame", "error", err)
			continue
		}
		if msg.Event == EventError && msg.Message != "" {
			h.logger.Debug("engine reported error", "code", msg.Code, "message", msg.Message)
		}
		event, ok := msg.ToEvent()
		if !ok {
			continue
		}
		h.deliver(event)
	}
}
