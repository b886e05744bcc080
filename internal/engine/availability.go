package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/rbright/hark/internal/audio"
)

// AvailabilityOptions configures engine availability probing.
type AvailabilityOptions struct {
	Backend      string
	Command      string
	HealthTarget string
	DialTimeout  time.Duration
	RequireInput bool
	Input        string
	Logger       *slog.Logger

	// Overridable for tests.
	LookPath    func(string) (string, error)
	ListSources audio.Lister
}

// Availability decides whether a session can start on this host. It
// implements session.Availability.
type Availability struct {
	opts   AvailabilityOptions
	logger *slog.Logger
}

func NewAvailability(opts AvailabilityOptions) *Availability {
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.ListSources == nil {
		opts.ListSources = audio.ListSources
	}
	if opts.Backend == "" {
		opts.Backend = BackendExec
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Availability{opts: opts, logger: logger.With("component", "availability")}
}

func (a *Availability) Available(ctx context.Context) bool {
	if err := a.Check(ctx); err != nil {
		a.logger.Debug("engine unavailable", "error", err)
		return false
	}
	return true
}

// Check returns the first reason the engine cannot be used.
func (a *Availability) Check(ctx context.Context) error {
	switch a.opts.Backend {
	case BackendExec:
		argv, err := ParseCommand(a.opts.Command)
		if err != nil {
			return err
		}
		if _, err := a.opts.LookPath(argv[0]); err != nil {
			return fmt.Errorf("engine command %q not found: %w", argv[0], err)
		}
	case BackendWebsocket:
		if a.opts.HealthTarget != "" {
			if err := CheckHealth(ctx, a.opts.HealthTarget, "", a.opts.DialTimeout); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported engine backend %q", a.opts.Backend)
	}

	if !a.opts.RequireInput {
		return nil
	}
	sources, err := a.opts.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list input sources: %w", err)
	}
	if _, err := audio.Resolve(sources, a.opts.Input); err != nil {
		return errors.Join(errors.New("no usable input source"), err)
	}
	return nil
}
