// Package cue plays short audible tones as listening starts and stops.
package cue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/session"
)

const (
	queueSize   = 4
	playTimeout = 4 * time.Second
)

// Kind selects one cue sound.
type Kind int

const (
	KindStart Kind = iota + 1
	KindStop
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	case KindComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// PlayFunc renders one cue.
type PlayFunc func(ctx context.Context, kind Kind) error

// Player is a session.EventSink that plays cues on a worker goroutine so
// emission never waits on the sound server.
type Player struct {
	logger *slog.Logger
	play   PlayFunc
	queue  chan Kind
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New returns a Player rendering cues through PulseAudio, or from the
// configured files when present.
func New(cfg config.CueConfig, logger *slog.Logger) *Player {
	return NewWithPlayFunc(func(ctx context.Context, kind Kind) error {
		return emitCue(ctx, kind, cfg)
	}, logger)
}

// NewWithPlayFunc returns a Player that renders cues with play.
func NewWithPlayFunc(play PlayFunc, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Player{
		logger: logger.With("component", "cue"),
		play:   play,
		queue:  make(chan Kind, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// KindFor maps a session event to its cue.
func KindFor(event session.Event) (Kind, bool) {
	switch event.Type {
	case session.EventListeningState:
		switch event.Status {
		case session.ListeningStarted:
			return KindStart, true
		case session.ListeningStopped:
			return KindStop, true
		}
	case session.EventEndOfSegmentedSession:
		return KindComplete, true
	}
	return 0, false
}

func (p *Player) Emit(event session.Event) {
	kind, ok := KindFor(event)
	if !ok {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- kind:
	default:
		p.logger.Debug("cue queue full; skipping", "cue", kind)
	}
}

// Close stops the worker after queued cues have played.
func (p *Player) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) run() {
	defer close(p.done)
	for kind := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		if err := p.play(ctx, kind); err != nil {
			p.logger.Debug("cue playback failed", "cue", kind, "error", err)
		}
		cancel()
	}
}
