package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/history"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/session"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "hark")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte(`{"log": {"level": "loud"}}`), 0o600))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "log.level")
}

func TestRunnerStatusIdleWhenDaemonNotRunning(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerStopFailsWhenDaemonNotRunning(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "not running")
}

func TestRunnerForwardsCommandsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)
	commands := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "hark.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		commands <- req
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "listening", SessionID: "abc", Listening: true}
		case ipc.CommandStop:
			return ipc.Response{OK: true, Message: "stopped"}
		case ipc.CommandLanguages:
			return ipc.Response{OK: true, Languages: []string{"en-US", "de-DE"}}
		case ipc.CommandPermissions:
			return ipc.Response{OK: true, Permission: "prompt"}
		case ipc.CommandRequestPermissions:
			return ipc.Response{OK: true, Permission: "granted"}
		case ipc.CommandStart:
			return ipc.Response{OK: true, Matches: []string{"hello world", "hello word"}}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"status"}, want: "listening (session abc)\n"},
		{args: []string{"stop"}, want: "stopped\n"},
		{args: []string{"languages"}, want: "en-US\nde-DE\n"},
		{args: []string{"permissions"}, want: "prompt\n"},
		{args: []string{"permissions", "--request"}, want: "granted\n"},
		{args: []string{"start", "--language", "de-DE", "--max-results", "2"}, want: "hello world\nhello word\n"},
	}

	for _, tc := range tests {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner := Runner{Stdout: stdout, Stderr: stderr}

		args := append([]string{"--config", paths.configPath}, tc.args...)
		exitCode := runner.Execute(context.Background(), args)
		require.Equal(t, 0, exitCode, tc.args)
		require.Empty(t, stderr.String(), tc.args)
		require.Equal(t, tc.want, stdout.String(), tc.args)
	}

	var start ipc.Request
	for range tests {
		req := <-commands
		if req.Command == ipc.CommandStart {
			start = req
		}
	}
	require.NotNil(t, start.Start)
	require.Equal(t, "de-DE", start.Start.Language)
	require.Equal(t, 2, start.Start.MaxResults)
	require.False(t, start.Start.PartialResults)
}

func TestRunnerReportsDaemonErrors(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "hark.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Failure(session.ErrUnavailable)
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "start"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "Speech recognition service is not available.")
}

func TestRunnerStatusJSON(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "hark.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "starting"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status", "--json"})
	require.Equal(t, 0, exitCode)

	var resp ipc.Response
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	require.Equal(t, "starting", resp.State)
}

func TestRunnerPermissionsWithoutDaemonUsesStore(t *testing.T) {
	paths := setupRunnerEnv(t)
	runner := Runner{Stderr: &bytes.Buffer{}}

	stdout := &bytes.Buffer{}
	runner.Stdout = stdout
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "permissions"}))
	require.Equal(t, "prompt\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "permissions", "--request"}))
	require.Equal(t, "granted\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "permissions"}))
	require.Equal(t, "granted\n", stdout.String())

	_, err := os.Stat(filepath.Join(paths.stateDir, "hark", "permission.json"))
	require.NoError(t, err)
}

func TestRunnerHistory(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "history"}))
	require.Equal(t, "no sessions recorded\n", stdout.String())

	store, err := history.Open(context.Background(), filepath.Join(paths.stateDir, "hark", "history.db"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), session.Event{
		Type: session.EventPartialResults, SessionID: "s-1",
		Matches: session.ResultSet{"turn on the lights"}, At: time.Now(),
	}))
	require.NoError(t, store.Close())

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "history", "--limit", "5"}))
	require.Contains(t, stdout.String(), "s-1")
	require.Contains(t, stdout.String(), `"turn on the lights"`)

	stdout.Reset()
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "history", "--json"}))
	var summaries []history.Summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].Events)
}

func TestRunnerHistoryDisabled(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte(`{"history": {"enable": false}}`), 0o600))

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "history"}))
	require.Contains(t, stdout.String(), "history is disabled")
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte(`{"engine": {"command": "definitely-not-a-real-engine"}}`), 0o600))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "[FAIL] engine: binary not found")
	require.Contains(t, stdout.String(), "daemon: not running")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestDialEventsRequiresBind(t *testing.T) {
	_, err := dialEvents(context.Background(), "")
	require.ErrorContains(t, err, "http.bind")

	_, err = dialEvents(context.Background(), "not-a-host-port")
	require.ErrorContains(t, err, "parse http.bind")
}

type runnerPaths struct {
	configPath string
	runtimeDir string
	stateDir   string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	stateDir := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte("{}\n"), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir, stateDir: stateDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
