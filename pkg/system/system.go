// Package system applies system-setting commands such as macOS defaults
// writes after installation.
package system

import (
	"context"
	"time"

	"github.com/macup/macup/pkg/backends"
	"github.com/macup/macup/pkg/telemetry"
)

// CommandResult is the outcome of one system-setting command.
type CommandResult struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the command exited zero.
func (r CommandResult) Succeeded() bool {
	return r.Error == "" && r.ExitCode == 0
}

// Applier runs system-setting commands sequentially through the shell.
type Applier struct {
	runner backends.Runner
	logger *telemetry.Logger
}

// NewApplier creates an applier.
func NewApplier(runner backends.Runner, logger *telemetry.Logger) *Applier {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Applier{
		runner: runner,
		logger: logger.NewComponentLogger("system"),
	}
}

// Apply runs every command in order. A failing command is logged as a
// warning and does not stop the remaining ones; only a cancelled context
// does.
func (a *Applier) Apply(ctx context.Context, commands []string) ([]CommandResult, error) {
	results := make([]CommandResult, 0, len(commands))

	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		a.logger.Infof("Running: %s", cmd)
		res, err := a.runner.Run(ctx, backends.Command{Name: cmd, Shell: true})

		result := CommandResult{Command: cmd}
		switch {
		case err != nil:
			result.ExitCode = -1
			result.Error = err.Error()
			a.logger.WithError(err).Warnf("Command failed: %s", cmd)
		case !res.Success():
			result.ExitCode = res.ExitCode
			result.Duration = res.Duration
			a.logger.WithField("exit_code", res.ExitCode).Warnf("Command failed: %s", cmd)
		default:
			result.Duration = res.Duration
		}
		results = append(results, result)
	}

	return results, nil
}
