package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/desertthunder/ytclip/internal/shared"
)

// CommandResult captures what an external program wrote and how it exited.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// LastStderrLine returns the last non-empty stderr line, for short failure reasons.
func (r CommandResult) LastStderrLine() string {
	lines := strings.Split(strings.TrimSpace(string(r.Stderr)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (CommandResult, error)
}

type commandExecutor struct{}

// Run executes binary with args. A non-zero exit yields the populated result and an error.
func (commandExecutor) Run(ctx context.Context, binary string, args []string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("%w: %s", shared.ErrMissingBinary, binary)
	}
	return res, fmt.Errorf("%s exited with status %d: %w", binary, res.ExitCode, err)
}

// Option configures a [YtDlp] or [Ffmpeg] client.
type Option func(*client)

type client struct {
	binary string
	exec   Executor
}

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(e Executor) Option {
	return func(c *client) {
		if e != nil {
			c.exec = e
		}
	}
}

// WithBinary overrides binary discovery.
func WithBinary(binary string) Option {
	return func(c *client) {
		if b := strings.TrimSpace(binary); b != "" {
			c.binary = b
		}
	}
}

func newClient(opts []Option) client {
	c := client{exec: commandExecutor{}}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LookupFirst returns the path of the first candidate found on PATH.
func LookupFirst(candidates ...string) (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s", shared.ErrMissingBinary, strings.Join(candidates, ", "))
}
