package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "de_DE.UTF-8")

	cfg := Config{}.WithDefaults()
	require.Equal(t, "de-DE", cfg.Language)
	require.Equal(t, DefaultMaxResults, cfg.MaxResults)
	require.False(t, cfg.PartialResults)
	require.False(t, cfg.Popup)
	require.False(t, cfg.Segmented())
}

func TestConfigDefaultsKeepExplicitValues(t *testing.T) {
	cfg := Config{Language: "fr-FR", MaxResults: 2, SilenceTimeout: time.Second}.WithDefaults()
	require.Equal(t, "fr-FR", cfg.Language)
	require.Equal(t, 2, cfg.MaxResults)
	require.True(t, cfg.Segmented())
}

func TestSystemLanguageFallback(t *testing.T) {
	t.Setenv("LC_ALL", "C")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "POSIX")
	require.Equal(t, "en-US", SystemLanguage())

	t.Setenv("LC_ALL", "pt_BR@euro")
	require.Equal(t, "pt-BR", SystemLanguage())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{MaxResults: 1}.Validate())
	require.ErrorIs(t, Config{MaxResults: -3}.Validate(), ErrInvalidConfig)
	require.ErrorIs(t, Config{SilenceTimeout: -time.Millisecond}.Validate(), ErrInvalidConfig)
}
