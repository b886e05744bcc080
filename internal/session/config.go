package session

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultMaxResults is the number of alternatives requested when unset.
const DefaultMaxResults = 5

// Config is the immutable per-start request configuration.
type Config struct {
	Language       string
	MaxResults     int
	Prompt         string
	PartialResults bool
	Popup          bool
	// SilenceTimeout enables segmented sessions when positive.
	SilenceTimeout time.Duration
}

// Segmented reports whether silence splits the session into segments.
func (c Config) Segmented() bool {
	return c.SilenceTimeout > 0
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Language) == "" {
		c.Language = SystemLanguage()
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	return c
}

// Validate rejects values no engine can honor.
func (c Config) Validate() error {
	if c.MaxResults < 0 {
		return fmt.Errorf("%w: max results must be positive, got %d", ErrInvalidConfig, c.MaxResults)
	}
	if c.SilenceTimeout < 0 {
		return fmt.Errorf("%w: silence timeout must be >= 0, got %s", ErrInvalidConfig, c.SilenceTimeout)
	}
	return nil
}

// SystemLanguage derives a BCP 47 tag from the process locale, e.g.
// LANG=de_DE.UTF-8 yields "de-DE".
func SystemLanguage() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag := localeToTag(os.Getenv(key)); tag != "" {
			return tag
		}
	}
	return "en-US"
}

func localeToTag(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "C" || raw == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(raw, "_", "-")
}
