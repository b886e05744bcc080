package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "hark", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "hark", "config.jsonc"), nil
}

// StateDir returns $XDG_STATE_HOME/hark or ~/.local/state/hark.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "hark"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for state directory")
	}
	return filepath.Join(home, ".local", "state", "hark"), nil
}

// PermissionPath resolves the permission grant file.
func (c Config) PermissionPath() (string, error) {
	if p := strings.TrimSpace(c.Permission.Path); p != "" {
		return p, nil
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "permission.json"), nil
}

// HistoryPath resolves the history database file.
func (c Config) HistoryPath() (string, error) {
	if p := strings.TrimSpace(c.History.Path); p != "" {
		return p, nil
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
