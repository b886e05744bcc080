package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Format names the syntax a config file was read as.
type Format string

const (
	FormatDefaults Format = "defaults"
	FormatJSONC    Format = "jsonc"
	FormatYAML     Format = "yaml"
)

// Loaded captures the resolved path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	Format   Format
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Loaded{
			Path:   path,
			Config: Default(),
			Warnings: []Warning{{
				Message: fmt.Sprintf("config file %q not found; using defaults", path),
			}},
			Format: FormatDefaults,
		}, nil
	}
	if err != nil {
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	return Loaded{
		Path:     path,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
		Format:   detectFormat(string(content)),
	}, nil
}

func detectFormat(content string) Format {
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return FormatDefaults
	case strings.HasPrefix(trimmed, "{"):
		return FormatJSONC
	default:
		return FormatYAML
	}
}
