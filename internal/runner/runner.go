// Package runner executes external tools (git, docker compose, yarn,
// database clients) and reports their outcome without interpreting it.
// A non-zero exit status is data, not an error: callers decide whether a
// given exit code is fatal for their operation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/cubeops/cubeops/internal/logging"
)

// ErrNotFound indicates the executable could not be located on PATH.
var ErrNotFound = errors.New("executable not found")

// SignalError indicates the child process was killed by a signal before
// it could exit on its own.
type SignalError struct {
	Cmd    string
	Signal syscall.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s killed by signal %s", e.Cmd, e.Signal)
}

// ExternalError is returned by Check when a caller treats a non-zero exit
// as fatal. It carries the exit code so the CLI can propagate it.
type ExternalError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *ExternalError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Cmd, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Command describes a single external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // KEY=VALUE pairs appended to the parent environment

	// Stream mirrors the child's output to the operator's terminal in
	// addition to capturing it.
	Stream bool
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs external commands. The interface exists so provisioning
// logic can be tested against a scripted fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands through os/exec. In dry-run mode it logs the
// would-be invocation, records it, and reports synthetic success.
type ExecRunner struct {
	DryRun bool

	mu       sync.Mutex
	recorded []Command
}

// New returns a Runner that actually executes commands.
func New() *ExecRunner {
	return &ExecRunner{}
}

// NewDryRun returns a Runner that records commands instead of running them.
func NewDryRun() *ExecRunner {
	return &ExecRunner{DryRun: true}
}

// Recorded returns the commands captured in dry-run mode.
func (r *ExecRunner) Recorded() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.recorded))
	copy(out, r.recorded)
	return out
}

// Run executes cmd and captures its output. It returns an error only for
// failures to run the process at all (missing executable, signal death,
// context cancellation); a non-zero exit status is reported via Result.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if r.DryRun {
		r.mu.Lock()
		r.recorded = append(r.recorded, cmd)
		r.mu.Unlock()
		logging.Info("dry-run", "cmd", cmd.String(), "dir", cmd.Dir)
		return &Result{ExitCode: 0}, nil
	}

	logging.Debug("exec", "cmd", cmd.String(), "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	if cmd.Stream {
		c.Stdout = io.MultiWriter(&stdout, os.Stdout)
		c.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	err := c.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return res, nil
	}

	// A cancelled context kills the child, which would otherwise look
	// like a signal death. Report the cancellation instead.
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s interrupted: %w", cmd.Name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return nil, &SignalError{Cmd: cmd.Name, Signal: status.Signal()}
		}
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cmd.Name)
	}

	return nil, fmt.Errorf("running %s: %w", cmd.Name, err)
}

// Check converts a non-zero exit into an ExternalError. Use it at call
// sites where the tool's failure is fatal for the surrounding operation.
func Check(res *Result, err error, cmd Command) error {
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &ExternalError{Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}
