package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/ipc"
)

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v on %s\n", err, socketPath)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	opts := r.Daemon
	opts.Config = cfg
	opts.Logger = logger
	daemon, err := NewDaemon(ctx, opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err)
		return 1
	}

	logger.Info("daemon listening", "socket", socketPath)
	if err := daemon.Run(ctx, listener); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon failed", "error", err)
		return 1
	}
	return 0
}
