// Package doctor runs readiness diagnostics for config, engine, audio input,
// permission, and the daemon socket.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/rbright/hark/internal/audio"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/engine"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/permission"
	"github.com/rbright/hark/internal/session"
)

const probeTimeout = 500 * time.Millisecond

// Check is one doctor assertion result.
type Check struct {
	Name    string `json:"name"`
	Pass    bool   `json:"pass"`
	Message string `json:"message"`
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check `json:"checks"`
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Options overrides host probes in tests.
type Options struct {
	LookPath    func(string) (string, error)
	ListSources audio.Lister
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, opts Options) Report {
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.ListSources == nil {
		opts.ListSources = audio.ListSources
	}
	cfg := loaded.Config

	checks := []Check{checkConfig(loaded)}
	checks = append(checks, checkEngine(ctx, cfg.Engine, opts.LookPath))
	if cfg.Popup.Command != "" {
		checks = append(checks, checkPopup(cfg.Popup, opts.LookPath))
	}
	checks = append(checks, checkInput(ctx, cfg.Availability, opts.ListSources))
	checks = append(checks, checkPermission(ctx, cfg))
	checks = append(checks, checkDaemon(ctx))

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	message := fmt.Sprintf("loaded %q (%s)", loaded.Path, loaded.Format)
	if n := len(loaded.Warnings); n > 0 {
		message += fmt.Sprintf(", %d warning(s)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkEngine validates the configured backend can be reached.
func checkEngine(ctx context.Context, cfg config.EngineConfig, lookPath func(string) (string, error)) Check {
	switch cfg.Backend {
	case engine.BackendExec:
		argv, err := engine.ParseCommand(cfg.Command)
		if err != nil {
			return Check{Name: "engine", Pass: false, Message: err.Error()}
		}
		path, err := lookPath(argv[0])
		if err != nil {
			return Check{Name: "engine", Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", argv[0])}
		}
		return Check{Name: "engine", Pass: true, Message: fmt.Sprintf("exec engine found at %s", path)}
	case engine.BackendWebsocket:
		if strings.TrimSpace(cfg.HealthGRPC) == "" {
			return Check{Name: "engine", Pass: true, Message: fmt.Sprintf("websocket engine at %s (no health endpoint configured)", cfg.Endpoint)}
		}
		if err := engine.CheckHealth(ctx, cfg.HealthGRPC, "", cfg.DialTimeout()); err != nil {
			return Check{Name: "engine", Pass: false, Message: err.Error()}
		}
		return Check{Name: "engine", Pass: true, Message: fmt.Sprintf("health SERVING at %s", cfg.HealthGRPC)}
	default:
		return Check{Name: "engine", Pass: false, Message: fmt.Sprintf("unsupported backend %q", cfg.Backend)}
	}
}

func checkPopup(cfg config.PopupConfig, lookPath func(string) (string, error)) Check {
	argv, err := shellwords.Parse(cfg.Command)
	if err != nil || len(argv) == 0 {
		return Check{Name: "popup", Pass: false, Message: fmt.Sprintf("invalid command %q", cfg.Command)}
	}
	path, err := lookPath(argv[0])
	if err != nil {
		return Check{Name: "popup", Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", argv[0])}
	}
	return Check{Name: "popup", Pass: true, Message: fmt.Sprintf("popup recognizer found at %s", path)}
}

// checkInput resolves the configured input source. Failures only fail the
// check when sessions require an input.
func checkInput(ctx context.Context, cfg config.AvailabilityConfig, list audio.Lister) Check {
	sources, err := list(ctx)
	if err == nil {
		var src audio.Source
		src, err = audio.Resolve(sources, cfg.Input)
		if err == nil {
			return Check{Name: "audio.input", Pass: true, Message: fmt.Sprintf("using %q", src.ID)}
		}
	}
	if cfg.RequireInput {
		return Check{Name: "audio.input", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.input", Pass: true, Message: fmt.Sprintf("not required (%v)", err)}
}

func checkPermission(ctx context.Context, cfg config.Config) Check {
	path, err := cfg.PermissionPath()
	if err != nil {
		return Check{Name: "permission", Pass: false, Message: err.Error()}
	}
	switch state := permission.NewStore(path).Status(ctx); state {
	case session.AuthGranted:
		return Check{Name: "permission", Pass: true, Message: "capture granted"}
	case session.AuthDenied:
		return Check{Name: "permission", Pass: false, Message: "capture denied; run `hark permissions --request`"}
	default:
		return Check{Name: "permission", Pass: false, Message: "not yet granted; run `hark permissions --request`"}
	}
}

func checkDaemon(ctx context.Context) Check {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: "daemon", Pass: false, Message: err.Error()}
	}
	alive, err := ipc.Probe(ctx, socketPath, probeTimeout)
	switch {
	case err != nil:
		return Check{Name: "daemon", Pass: false, Message: err.Error()}
	case !alive:
		if _, statErr := os.Stat(socketPath); statErr == nil {
			return Check{Name: "daemon", Pass: false, Message: fmt.Sprintf("stale socket at %s; run `hark serve`", socketPath)}
		}
		return Check{Name: "daemon", Pass: false, Message: "not running; run `hark serve`"}
	default:
		return Check{Name: "daemon", Pass: true, Message: fmt.Sprintf("listening on %s", socketPath)}
	}
}
