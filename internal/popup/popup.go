// Package popup runs an external one-shot recognizer for popup start requests.
//
// The command receives the request as one JSON object on stdin and prints
// alternatives on stdout, one per line, best first. A non-zero exit fails the
// recognition.
package popup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-shellwords"

	"github.com/rbright/hark/internal/session"
)

const stderrLimit = 512

// Recognizer is a session.PopupRecognizer backed by an external command.
type Recognizer struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

type request struct {
	Language   string `json:"language"`
	MaxResults int    `json:"max_results"`
	Prompt     string `json:"prompt,omitempty"`
}

// New parses command into argv. A zero timeout leaves recognition bounded
// only by the caller's context.
func New(command string, timeout time.Duration, logger *slog.Logger) (*Recognizer, error) {
	argv, err := shellwords.Parse(strings.TrimSpace(command))
	if err != nil {
		return nil, fmt.Errorf("parse popup command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("popup command is empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recognizer{argv: argv, timeout: timeout, logger: logger.With("component", "popup")}, nil
}

// Recognize runs the command once and returns its alternatives. Empty
// output is reported as a no-match engine error.
func (r *Recognizer) Recognize(ctx context.Context, cfg session.Config) (session.ResultSet, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	input, err := json.Marshal(request{Language: cfg.Language, MaxResults: cfg.MaxResults, Prompt: cfg.Prompt})
	if err != nil {
		return nil, fmt.Errorf("encode popup request: %w", err)
	}

	output, err := runCommandWithInput(ctx, r.argv, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	matches := parseMatches(output, cfg.MaxResults)
	if len(matches) == 0 {
		return nil, session.Classify(session.CodeNoMatch)
	}
	r.logger.Debug("popup recognized", "matches", len(matches))
	return matches, nil
}

func parseMatches(output []byte, limit int) session.ResultSet {
	matches := make([]string, 0, 1)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		matches = append(matches, line)
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return session.NewResultSet(matches)
}

// runCommandWithInput executes argv with input on stdin and returns stdout.
func runCommandWithInput(ctx context.Context, argv []string, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		detail = truncate(detail, stderrLimit)
		if detail != "" {
			return nil, fmt.Errorf("run %s: %w: %s", argv[0], err, detail)
		}
		return nil, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
