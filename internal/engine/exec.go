package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

const maxFrameBytes = 1 << 20

// ParseCommand splits an engine command line into argv.
func ParseCommand(command string) ([]string, error) {
	argv, err := shellwords.Parse(strings.TrimSpace(command))
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("engine command is empty")
	}
	return argv, nil
}

func execDialer(command string) (dialFunc, error) {
	argv, err := ParseCommand(command)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (transport, error) {
		return startProcess(ctx, argv)
	}, nil
}

// processTransport speaks the line protocol over a child's stdio.
type processTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines *bufio.Scanner

	writeMu sync.Mutex
	encoder *json.Encoder

	closeOnce sync.Once
}

func startProcess(ctx context.Context, argv []string) (*processTransport, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %q: %w", argv[0], err)
	}

	lines := bufio.NewScanner(stdout)
	lines.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	return &processTransport{
		cmd:     cmd,
		stdin:   stdin,
		lines:   lines,
		encoder: json.NewEncoder(stdin),
	}, nil
}

func (p *processTransport) Send(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.encoder.Encode(req)
}

func (p *processTransport) Receive() ([]byte, error) {
	for p.lines.Scan() {
		line := p.lines.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := p.lines.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close ends stdin and kills the child. The exit status is reaped in the
// background.
func (p *processTransport) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.writeMu.Lock()
		_ = p.stdin.Close()
		p.writeMu.Unlock()

		if p.cmd.Process != nil {
			if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = fmt.Errorf("kill engine: %w", kerr)
			}
		}
		go func() { _ = p.cmd.Wait() }()
	})
	return err
}
