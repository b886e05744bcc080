package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseJSONCOverlaysDefaults(t *testing.T) {
	cfg, warnings, err := Parse(`
{
  "engine": {
    "backend": "WebSocket",
    "endpoint": "ws://127.0.0.1:8765/recognize",
    "health_grpc": "127.0.0.1:50051",
  },
  "session": { "language": "de-DE", "partial_results": true, "silence_timeout_ms": 1200 },
  "bus": { "enable": true, "servers": "nats://a:4222, nats://b:4222" },
  "log": { "level": "DEBUG" },
}
`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "websocket", cfg.Engine.Backend)
	require.Equal(t, "ws://127.0.0.1:8765/recognize", cfg.Engine.Endpoint)
	require.Equal(t, "127.0.0.1:50051", cfg.Engine.HealthGRPC)
	require.Equal(t, 3000, cfg.Engine.DialTimeoutMS)
	require.Equal(t, "de-DE", cfg.Session.Language)
	require.Equal(t, 5, cfg.Session.MaxResults)
	require.True(t, cfg.Session.PartialResults)
	require.Equal(t, 1200, cfg.Session.SilenceTimeoutMS)
	require.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Bus.Servers)
	require.Equal(t, "hark", cfg.Bus.SubjectPrefix)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.History.Enable)
}

func TestParseYAML(t *testing.T) {
	cfg, _, err := Parse(`
engine:
  backend: exec
  command: whisper-engine --model base.en
session:
  max_results: 3
history:
  enable: false
bus:
  enable: true
  servers:
    - nats://127.0.0.1:4222
  subject_prefix: studio.hark
grpc:
  bind: 127.0.0.1:7374
popup:
  command: hark-popup --theme dark
  timeout_ms: 15000
cues:
  enable: true
  stop_file: ~/sounds/stop.wav
`, Default())
	require.NoError(t, err)

	require.Equal(t, "whisper-engine --model base.en", cfg.Engine.Command)
	require.Equal(t, 3, cfg.Session.MaxResults)
	require.False(t, cfg.History.Enable)
	require.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.Bus.Servers)
	require.Equal(t, "studio.hark", cfg.Bus.SubjectPrefix)
	require.Equal(t, "127.0.0.1:7374", cfg.GRPC.Bind)
	require.Equal(t, "127.0.0.1:7373", cfg.HTTP.Bind)
	require.Equal(t, "hark-popup --theme dark", cfg.Popup.Command)
	require.Equal(t, 15*time.Second, cfg.Popup.Timeout())
	require.True(t, cfg.Cues.Enable)
	require.Equal(t, "~/sounds/stop.wav", cfg.Cues.StopFile)
	require.Empty(t, cfg.Cues.StartFile)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, _, err := Parse("  \n ", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cfg, _, err = Parse("# only a comment\n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, _, err := Parse(`{"engine": {"binary": "x"}}`, Default())
	require.ErrorContains(t, err, "unknown field")

	_, _, err = Parse("engine:\n  binary: x\n", Default())
	require.ErrorContains(t, err, "binary")
}

func TestParseReportsLineOfSyntaxError(t *testing.T) {
	_, _, err := Parse("{\n  \"session\": {\n    \"max_results\": \"five\"\n  }\n}", Default())
	require.ErrorContains(t, err, "line 3")
}

func TestParseRejectsMultipleValues(t *testing.T) {
	_, _, err := Parse(`{"log":{"level":"info"}} {"log":{"level":"debug"}}`, Default())
	require.ErrorContains(t, err, "multiple JSON values")
}

func TestParseValidatesResult(t *testing.T) {
	_, _, err := Parse(`{"session": {"max_results": 0}}`, Default())
	require.ErrorContains(t, err, "session.max_results")
}
