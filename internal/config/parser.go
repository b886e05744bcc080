package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse reads configuration content as JSONC or YAML and overlays it on base.
//
// JSONC is selected when the first non-whitespace character is `{`;
// anything else is decoded as YAML.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	var (
		payload fileConfig
		err     error
	)
	if strings.HasPrefix(trimmed, "{") {
		payload, err = decodeJSONC(content)
	} else {
		payload, err = decodeYAML(content)
	}
	if err != nil {
		return Config{}, nil, err
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func decodeJSONC(content string) (fileConfig, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return fileConfig{}, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return fileConfig{}, locateJSONError(normalized, err)
	}

	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
	case err == nil:
		return fileConfig{}, errors.New("multiple JSON values are not allowed")
	default:
		return fileConfig{}, locateJSONError(normalized, err)
	}
	return payload, nil
}

func decodeYAML(content string) (fileConfig, error) {
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	decoder.KnownFields(true)

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("decode yaml: %w", err)
	}
	return payload, nil
}

func locateJSONError(content string, err error) error {
	var offset int64 = -1

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	if offset < 0 {
		return err
	}

	line, col := lineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// lineCol converts a 1-based byte offset to a line and column.
func lineCol(content string, offset int64) (int, int) {
	if offset <= 1 {
		return 1, 1
	}
	prefix := content[:min(int(offset)-1, len(content))]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
