package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/hark.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/hark.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseStartFlags(t *testing.T) {
	parsed, err := Parse([]string{"start", "--language", "de-DE", "--max-results", "3", "--prompt", "Speak now", "--partial", "--silence-ms=1500"})
	require.NoError(t, err)
	require.Equal(t, CommandStart, parsed.Command)
	require.Equal(t, StartFlags{
		Language:       "de-DE",
		MaxResults:     3,
		Prompt:         "Speak now",
		PartialResults: true,
		SilenceMS:      1500,
	}, parsed.Start)
}

func TestParseHistoryDefaults(t *testing.T) {
	parsed, err := Parse([]string{"history"})
	require.NoError(t, err)
	require.Equal(t, 20, parsed.Limit)

	parsed, err = Parse([]string{"history", "--limit", "5", "--json"})
	require.NoError(t, err)
	require.Equal(t, 5, parsed.Limit)
	require.True(t, parsed.JSON)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantCmd:  CommandVersion,
			wantHelp: false,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "flag provided but not defined",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "start flag on stop",
			args:    []string{"stop", "--partial"},
			wantErr: "flag provided but not defined",
		},
		{
			name:    "negative max results",
			args:    []string{"start", "--max-results", "-1"},
			wantErr: "--max-results must be >= 0",
		},
		{
			name:    "negative silence",
			args:    []string{"start", "--silence-ms", "-5"},
			wantErr: "--silence-ms must be >= 0",
		},
		{
			name:    "non-numeric limit",
			args:    []string{"history", "--limit", "many"},
			wantErr: "invalid value",
		},
		{
			name:     "command help flag",
			args:     []string{"start", "-h"},
			wantCmd:  CommandStart,
			wantHelp: true,
		},
		{
			name:     "permissions request",
			args:     []string{"permissions", "--request"},
			wantCmd:  CommandPermissions,
			wantHelp: false,
		},
		{
			name:     "valid stop with config",
			args:     []string{"--config", "/tmp/cfg", "stop"},
			wantCmd:  CommandStop,
			wantHelp: false,
			wantPath: "/tmp/cfg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("hark")
	for _, want := range []string{"serve", "start", "stop", "languages", "permissions", "history", "doctor", "--silence-ms", "--config PATH"} {
		require.Contains(t, text, want)
	}
}
