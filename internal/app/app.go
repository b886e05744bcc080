// Package app dispatches hark commands: the daemon itself and the thin
// clients that talk to it over the runtime socket.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/hark/internal/cli"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/logging"
	"github.com/rbright/hark/internal/version"
)

const forwardTimeout = 2 * time.Second

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Daemon overrides collaborators for `serve`; tests use it to inject
	// fake recognizers.
	Daemon DaemonOptions
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("hark"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("hark"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logOpts := logging.Options{Level: cfgLoaded.Config.Log.Level}
	if parsed.Command == cli.CommandServe {
		logOpts.Console = r.Stderr
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		if cfgLoaded.Exists {
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded.Config, parsed.Start)
	case cli.CommandStop:
		return r.commandStop(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx, parsed.JSON)
	case cli.CommandLanguages:
		return r.commandLanguages(ctx, parsed.JSON)
	case cli.CommandPermissions:
		return r.commandPermissions(ctx, cfgLoaded.Config, parsed.Request)
	case cli.CommandDevices:
		return r.commandDevices(ctx, parsed.JSON)
	case cli.CommandHistory:
		return r.commandHistory(ctx, cfgLoaded.Config, parsed.Limit, parsed.JSON)
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, cfgLoaded)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// errNotRunning marks requests that found no daemon on the socket.
var errNotRunning = errors.New("hark daemon is not running (start it with `hark serve`)")

// forward sends one request to the daemon. A zero timeout waits on ctx only.
func forward(ctx context.Context, req ipc.Request, timeout time.Duration) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}

	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err != nil {
		if ipc.IsNotRunning(err) {
			return ipc.Response{}, errNotRunning
		}
		return ipc.Response{}, fmt.Errorf("forward command %q: %w", req.Command, err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
