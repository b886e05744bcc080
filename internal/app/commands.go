package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/hark/internal/audio"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/doctor"
	"github.com/rbright/hark/internal/history"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/permission"
	"github.com/rbright/hark/internal/session"
)

func (r Runner) fail(err error) int {
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	return 1
}

func (r Runner) printJSON(v any) int {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return r.fail(err)
	}
	return 0
}

func (r Runner) commandStop(ctx context.Context) int {
	resp, err := forward(ctx, ipc.Request{Command: ipc.CommandStop}, forwardTimeout)
	if err != nil {
		return r.fail(err)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context, asJSON bool) int {
	resp, err := forward(ctx, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if errors.Is(err, errNotRunning) {
		resp = ipc.Response{OK: true, State: "idle"}
	} else if err != nil {
		return r.fail(err)
	}
	if resp.State == "" {
		resp.State = "idle"
	}

	if asJSON {
		return r.printJSON(resp)
	}
	if resp.SessionID != "" && resp.Listening {
		fmt.Fprintf(r.Stdout, "%s (session %s)\n", resp.State, resp.SessionID)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) commandLanguages(ctx context.Context, asJSON bool) int {
	resp, err := forward(ctx, ipc.Request{Command: ipc.CommandLanguages}, forwardTimeout)
	if err != nil {
		return r.fail(err)
	}
	if asJSON {
		languages := resp.Languages
		if languages == nil {
			languages = []string{}
		}
		return r.printJSON(languages)
	}
	for _, tag := range resp.Languages {
		fmt.Fprintln(r.Stdout, tag)
	}
	return 0
}

// commandPermissions reports or grants capture permission. Without a
// running daemon the grant file is read or written directly.
func (r Runner) commandPermissions(ctx context.Context, cfg config.Config, request bool) int {
	command := ipc.CommandPermissions
	if request {
		command = ipc.CommandRequestPermissions
	}

	resp, err := forward(ctx, ipc.Request{Command: command}, forwardTimeout)
	switch {
	case err == nil:
		fmt.Fprintln(r.Stdout, resp.Permission)
		return 0
	case !errors.Is(err, errNotRunning):
		return r.fail(err)
	}

	path, err := cfg.PermissionPath()
	if err != nil {
		return r.fail(err)
	}
	store := permission.NewStore(path)
	state := store.Status(ctx)
	if request {
		if state, err = store.Request(ctx); err != nil {
			return r.fail(err)
		}
	}
	fmt.Fprintln(r.Stdout, state)
	return 0
}

func (r Runner) commandDevices(ctx context.Context, asJSON bool) int {
	sources, err := audio.ListSources(ctx)
	if err != nil {
		return r.fail(err)
	}
	if asJSON {
		return r.printJSON(sources)
	}
	if len(sources) == 0 {
		fmt.Fprintln(r.Stdout, "no audio input sources found")
		return 1
	}

	for _, src := range sources {
		defaultMark := " "
		if src.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			src.ID,
			src.Description,
			src.State,
			yesNo(src.Available),
			yesNo(src.Muted),
		)
	}
	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.Config, limit int, asJSON bool) int {
	if !cfg.History.Enable {
		fmt.Fprintln(r.Stdout, "history is disabled (history.enable = false)")
		return 0
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return r.fail(err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if asJSON {
			return r.printJSON([]history.Summary{})
		}
		fmt.Fprintln(r.Stdout, "no sessions recorded")
		return 0
	}

	store, err := history.Open(ctx, path, nil)
	if err != nil {
		return r.fail(err)
	}
	defer store.Close()

	summaries, err := store.Recent(ctx, limit)
	if err != nil {
		return r.fail(err)
	}
	if asJSON {
		return r.printJSON(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(r.Stdout, "no sessions recorded")
		return 0
	}
	for _, sum := range summaries {
		fmt.Fprintf(r.Stdout, "%s  %s  events=%d  %q\n",
			sum.UpdatedAt.Local().Format(time.DateTime),
			sum.SessionID,
			sum.Events,
			sum.Transcript,
		)
	}
	return 0
}

func (r Runner) commandDoctor(ctx context.Context, loaded config.Loaded) int {
	report := doctor.Run(ctx, loaded, doctor.Options{})
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	return 1
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func bestMatch(matches session.ResultSet) string {
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[0])
}
