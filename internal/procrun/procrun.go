// SPDX-License-Identifier: MPL-2.0

package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrExternalCommand is the sentinel error wrapped by ExternalCommandError.
var ErrExternalCommand = errors.New("external command failed")

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Option configures a Runner.
	Option func(*Runner)

	// Runner spawns external processes and waits for them to exit.
	// It is safe to reuse across sequential invocations.
	Runner struct {
		execCommand ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
		env         []string
	}

	// Options controls a single invocation.
	Options struct {
		// Dir is the working directory of the child. Empty means the caller's.
		Dir string
		// Capture buffers stdout/stderr instead of streaming them to the
		// runner's writers.
		Capture bool
		// Input, when non-nil, is piped to the child's stdin.
		Input []byte
		// Env is appended to the inherited environment.
		Env map[string]string
	}

	// Result is the outcome of one external process invocation.
	Result struct {
		Argv     []string
		ExitCode int
		Stdout   string
		Stderr   string
		// Combined interleaves stdout and stderr in write order.
		Combined string
	}

	// ExternalCommandError is returned by CheckedRun when the child exits non-zero.
	ExternalCommandError struct {
		ExitCode int
		Argv     []string
		// Output is the captured combined output; empty when output was streamed.
		Output string
	}
)

// Error implements the error interface.
func (e *ExternalCommandError) Error() string {
	return fmt.Sprintf("command %s exited with status %d", e.CommandLine(), e.ExitCode)
}

// Unwrap returns ErrExternalCommand for errors.Is() compatibility.
func (e *ExternalCommandError) Unwrap() error { return ErrExternalCommand }

// CommandLine renders Argv as a shell-quoted command line.
func (e *ExternalCommandError) CommandLine() string {
	return QuoteArgv(e.Argv)
}

// QuoteArgv renders argv as a single shell-safe command line.
func QuoteArgv(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, arg := range argv {
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			// Only non-printable bytes fail to quote; fall back to Go syntax.
			q = fmt.Sprintf("%q", arg)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " ")
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(r *Runner) {
		r.execCommand = fn
	}
}

// WithOutput sets the writers that non-captured invocations stream to.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnv sets a base environment for every child, replacing os.Environ.
func WithEnv(env []string) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// New creates a Runner that streams to the host process's stdout/stderr.
func New(opts ...Option) *Runner {
	r := &Runner{
		execCommand: exec.CommandContext,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes argv and blocks until it exits. A non-zero exit is reported
// through Result.ExitCode, not as an error; the returned error is only set
// when the process could not be started or waited on.
//
// The child is not tied to ctx cancellation: once spawned it runs to
// completion even if the caller gives up.
func (r *Runner) Run(ctx context.Context, argv []string, opts Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := r.execCommand(context.WithoutCancel(ctx), argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 || r.env != nil {
		base := cmd.Env
		if base == nil {
			base = r.env
		}
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(append([]string(nil), base...), envPairs(opts.Env)...)
	}
	if opts.Input != nil {
		cmd.Stdin = bytes.NewReader(opts.Input)
	}

	var stdout, stderr, combined bytes.Buffer
	if opts.Capture {
		cmd.Stdout = io.MultiWriter(&stdout, &combined)
		cmd.Stderr = io.MultiWriter(&stderr, &combined)
	} else {
		cmd.Stdout = r.stdout
		cmd.Stderr = r.stderr
	}

	result := &Result{Argv: append([]string(nil), argv...)}
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Combined = combined.String()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("start %s: %w", QuoteArgv(argv), err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// CheckedRun is Run with a non-zero exit converted into *ExternalCommandError.
func (r *Runner) CheckedRun(ctx context.Context, argv []string, opts Options) (*Result, error) {
	result, err := r.Run(ctx, argv, opts)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, &ExternalCommandError{
			ExitCode: result.ExitCode,
			Argv:     result.Argv,
			Output:   result.Combined,
		}
	}
	return result, nil
}

// ProbeRun is Run for callers that inspect the exit code themselves.
// Output is always captured.
func (r *Runner) ProbeRun(ctx context.Context, argv []string, opts Options) (*Result, error) {
	opts.Capture = true
	return r.Run(ctx, argv, opts)
}

func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	return pairs
}
