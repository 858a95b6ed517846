package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/macup/macup/pkg/telemetry"
)

// DefaultShell runs shell commands.
const DefaultShell = "/bin/sh"

// Command describes one external tool invocation.
type Command struct {
	// Name is the program to run. With Shell set, Name is the shell script.
	Name string

	// Args are the program arguments.
	Args []string

	// Shell runs Name through `sh -c`.
	Shell bool

	// Sudo prefixes the command with sudo (NOPASSWD is assumed).
	Sudo bool

	// Env adds variables to the inherited environment.
	Env map[string]string

	// Dir is the working directory.
	Dir string
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	var parts []string
	if c.Sudo {
		parts = append(parts, "sudo")
	}
	if c.Shell {
		parts = append(parts, "sh", "-c", c.Name)
	} else {
		parts = append(parts, c.Name)
		parts = append(parts, c.Args...)
	}
	return strings.Join(parts, " ")
}

// Result is the completion of a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success returns true if the command exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Lines returns the non-empty, trimmed lines of stdout.
func (r *Result) Lines() []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(r.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ExitError is returned for commands that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed with exit code %d", e.Command, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Runner invokes external tools. Backends never call os/exec directly.
type Runner interface {
	// Run executes cmd. A non-zero exit is not an error; callers inspect the
	// result. The error is set only when the command could not be started.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath reports whether a program is on PATH.
	LookPath(name string) (string, error)
}

// Check runs cmd and converts a non-zero exit into an *ExitError.
func Check(ctx context.Context, r Runner, cmd Command) (*Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// ExecRunner runs commands as local processes.
type ExecRunner struct {
	shell  string
	logger *telemetry.Logger
}

// NewExecRunner creates a runner that logs invocations at debug level.
func NewExecRunner(logger *telemetry.Logger) *ExecRunner {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &ExecRunner{
		shell:  DefaultShell,
		logger: logger.NewComponentLogger("runner"),
	}
}

// Run executes a command and captures its output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("command is required")
	}

	program, args := c.Name, c.Args
	if c.Shell {
		program, args = r.shell, []string{"-c", c.Name}
	}
	if c.Sudo {
		args = append([]string{program}, args...)
		program = "sudo"
	}

	cmd := exec.CommandContext(ctx, program, args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debugf("Executing: %s", c.String())

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute %s: %w", c.Name, err)
		}
		result.ExitCode = exitErr.ExitCode()
		r.logger.Debugf("Command exited with code %d: %s", result.ExitCode, c.String())
	}

	return result, nil
}

// LookPath searches PATH for a program.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
