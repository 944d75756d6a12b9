// Package command builds external tool invocations and runs them in one of
// three modes: executed, journaled-then-executed, or traced for a dry run.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/msageha/selfcal/internal/logging"
)

// Command is one external tool invocation. It is never passed through a
// shell; String renders it for journals and traces only.
type Command struct {
	Name string
	Args []string
}

// New returns a command for name with the given arguments.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: append([]string(nil), args...)}
}

// With returns a copy of c with args appended.
func (c Command) With(args ...string) Command {
	out := Command{Name: c.Name, Args: make([]string, 0, len(c.Args)+len(args))}
	out.Args = append(out.Args, c.Args...)
	out.Args = append(out.Args, args...)
	return out
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Runner runs commands.
type Runner interface {
	Run(ctx context.Context, c Command) error
	// DryRun reports whether commands are only recorded, not executed.
	DryRun() bool
}

// ToolError reports an external tool that failed to start or exited
// non-zero.
type ToolError struct {
	Command  Command
	ExitCode int // -1 when the process did not run to completion
	Err      error
}

func (e *ToolError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s exited with status %d", e.Command.Name, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Command.Name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

func (e *ToolError) FormatStderr() string {
	return fmt.Sprintf("error: %s\ncommand: %s\nthe command is recorded in the run journal; later stages were not run\n",
		e.Error(), e.Command.String())
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Env    []string // appended to the inherited environment
	Log    *logging.Logger
}

func (r *ExecRunner) DryRun() bool { return false }

func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	r.Log.Debugf("exec name=%s args=%d", c.Name, len(c.Args))
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		r.Log.Errorf("tool_failed name=%s code=%d error=%v", c.Name, code, err)
		return &ToolError{Command: c, ExitCode: code, Err: err}
	}
	return nil
}

// Journal is the subset of the run journal a JournalRunner needs.
type Journal interface {
	Record(command string)
	Persist() error
}

// JournalRunner records and persists every command before handing it to
// Next, so a crash during the tool run still leaves the attempt on disk.
type JournalRunner struct {
	Journal Journal
	Next    Runner

	mu sync.Mutex
}

func (r *JournalRunner) DryRun() bool { return r.Next.DryRun() }

func (r *JournalRunner) Run(ctx context.Context, c Command) error {
	r.mu.Lock()
	r.Journal.Record(c.String())
	err := r.Journal.Persist()
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist journal before %s: %w", c.Name, err)
	}
	return r.Next.Run(ctx, c)
}

// TraceRunner appends each command line to a trace file and runs nothing.
type TraceRunner struct {
	Path string

	mu sync.Mutex
}

func (r *TraceRunner) DryRun() bool { return true }

func (r *TraceRunner) Run(_ context.Context, c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.Path), 0755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	if _, err := fmt.Fprintln(f, c.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}
