// Package tools runs the external programs the analysis relies on:
// webcrack, js-beautify, the CodeQL CLI and trufflehog. Each wrapper takes a
// Runner so tests can substitute a fake.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single subprocess when no timeout is given.
const DefaultTimeout = 30 * time.Minute

// ErrToolNotFound is returned by LookPath when a binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found in PATH")

// Result is the outcome of one subprocess.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Options controls how a subprocess is started.
type Options struct {
	Timeout time.Duration
	Dir     string
	Env     []string
	Stdin   io.Reader
}

// RunOption configures Options.
type RunOption func(*Options)

// WithTimeout overrides the default timeout.
func WithTimeout(d time.Duration) RunOption {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithDir sets the working directory.
func WithDir(dir string) RunOption {
	return func(o *Options) {
		o.Dir = dir
	}
}

// WithEnv appends environment variables to the current environment.
func WithEnv(env ...string) RunOption {
	return func(o *Options) {
		o.Env = append(o.Env, env...)
	}
}

// Runner starts subprocesses.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts ...RunOption) *Result
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args []string, opts ...RunOption) *Result

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, name string, args []string, opts ...RunOption) *Result {
	return f(ctx, name, args, opts...)
}

// ExecRunner runs real processes through Run.
var ExecRunner Runner = RunnerFunc(Run)

// TimeoutRunner wraps r so every call is bounded by d unless the caller
// passes its own WithTimeout.
func TimeoutRunner(r Runner, d time.Duration) Runner {
	if r == nil {
		r = ExecRunner
	}
	return RunnerFunc(func(ctx context.Context, name string, args []string, opts ...RunOption) *Result {
		return r.Run(ctx, name, args, append([]RunOption{WithTimeout(d)}, opts...)...)
	})
}

// Run executes name with args, capturing stdout and stderr. It never returns
// nil; a start failure, a non-zero exit or a timeout is reported in Result.Err.
func Run(ctx context.Context, name string, args []string, opts ...RunOption) *Result {
	o := &Options{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binaries come from configuration
	if o.Dir != "" {
		cmd.Dir = o.Dir
	}
	if len(o.Env) > 0 {
		cmd.Env = append(os.Environ(), o.Env...)
	}
	if o.Stdin != nil {
		cmd.Stdin = o.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	r := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		r.Err = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.ExitCode = exitErr.ExitCode()
		} else {
			r.ExitCode = -1
		}
		if ctx.Err() != nil {
			r.Err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
	}
	return r
}

// CommandError describes a failed subprocess.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: exit code %d", e.Command, strings.Join(e.Args, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// commandError converts a failed Result into a *CommandError. It returns nil
// when the command succeeded.
func commandError(name string, args []string, r *Result) error {
	if r.Err == nil {
		return nil
	}
	return &CommandError{
		Command:  name,
		Args:     args,
		ExitCode: r.ExitCode,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		Err:      r.Err,
	}
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// LookPath reports whether a binary is available.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}
