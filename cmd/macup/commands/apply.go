package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/macup/macup/pkg/engine"
	"github.com/macup/macup/pkg/system"
	"github.com/spf13/cobra"
)

// applyOptions are the flags of apply and watch.
type applyOptions struct {
	overrides
	dryRun             bool
	withSystemSettings bool
	metricsFile        string
}

func (o *applyOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "show what would be installed without installing")
	cmd.Flags().BoolVar(&o.withSystemSettings, "with-system-settings", false, "also run [system] commands")
	cmd.Flags().BoolVar(&o.failFast, "fail-fast", false, "stop on the first failure")
	cmd.Flags().IntVar(&o.maxParallel, "max-parallel", 0, "max concurrent installs per section (overrides config)")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "write run metrics in node-exporter textfile format")
}

// applyResult is the JSON output of apply.
type applyResult struct {
	Report *engine.RunReport      `json:"report,omitempty"`
	Diff   []engine.SectionDiff   `json:"diff,omitempty"`
	System []system.CommandResult `json:"system,omitempty"`
}

func newApplyCommand() *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply [section]",
		Short: "Install everything declared in the configuration",
		Long: `Install everything declared in the configuration.

This command:
  - Loads and validates the configuration
  - Orders sections by depends_on (cycles are rejected before anything runs)
  - Queries each package manager for what is already installed
  - Installs the missing items, up to max_parallel at a time per section
  - Optionally runs [system] commands afterwards`,
		Example: `  # Apply the whole configuration
  macup apply

  # Only the npm section
  macup apply npm

  # Show what would be installed
  macup apply --dry-run

  # Stop at the first failure, two installs at a time
  macup apply --fail-fast --max-parallel 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.close()

			ws, err := sess.loadWorkspace(configPath, opts.overrides)
			if err != nil {
				return err
			}

			var only []string
			if len(args) > 0 {
				only = args
			}

			if !jsonOutput && !opts.dryRun {
				subscribeProgress(sess.tel.Events, cmd.OutOrStdout())
			}
			return runApply(cmd.Context(), cmd.OutOrStdout(), sess, ws, only, opts)
		},
	}

	opts.bind(cmd)
	return cmd
}

// runApply executes one apply against a loaded workspace. Progress output is
// subscribed by the caller.
func runApply(ctx context.Context, w io.Writer, sess *session, ws *workspace, only []string, opts *applyOptions) error {
	if opts.dryRun {
		return runDiff(ctx, w, ws, only, true)
	}

	logger := sess.logger
	report, err := ws.engine.Run(ctx, ws.cfg.Sections(), engine.RunOptions{Only: only})
	if err != nil {
		return err
	}

	result := applyResult{Report: report}

	commands := ws.cfg.SystemCommands()
	switch {
	case len(commands) == 0 || len(only) > 0:
	case !opts.withSystemSettings:
		if !jsonOutput {
			fmt.Fprintln(w, "⊘ Skipping system settings (use --with-system-settings to apply)")
		}
	case report.Aborted():
		logger.Warn("Run aborted, skipping system settings")
	default:
		results, err := system.NewApplier(ws.runner, sess.tel.Logger).Apply(ctx, commands)
		if err != nil {
			logger.WithError(err).Warn("System settings interrupted")
		}
		result.System = results
		if !jsonOutput {
			printSystemResults(w, results)
		}
	}

	metricsFile := opts.metricsFile
	if metricsFile == "" {
		metricsFile = sess.tel.Config.Metrics.TextfilePath
	}
	if metricsFile != "" {
		if err := sess.tel.Metrics.WriteTextfile(metricsFile); err != nil {
			logger.WithError(err).Warnf("Failed to write metrics file %s", metricsFile)
		}
	}

	if jsonOutput {
		if err := writeJSON(w, result); err != nil {
			return err
		}
	} else {
		printReport(w, report)
	}

	if code := report.Status.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
