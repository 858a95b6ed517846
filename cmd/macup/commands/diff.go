package commands

import (
	"context"
	"io"

	"github.com/macup/macup/pkg/engine"
	"github.com/spf13/cobra"
)

func newDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [section]",
		Short: "Show declared items that are not installed",
		Long: `Show, per section, which declared items are already installed and which
are missing. Package managers are queried but nothing is installed.`,
		Example: `  # Diff the whole configuration
  macup diff

  # Machine-readable diff of the cargo section
  macup diff cargo --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.close()

			ws, err := sess.loadWorkspace(configPath, overrides{})
			if err != nil {
				return err
			}
			return runDiff(cmd.Context(), cmd.OutOrStdout(), ws, args, false)
		},
	}

	return cmd
}

// runDiff prints the diff of the planned sections. Query failures fail the
// command unless dryRun is set, where they are only reported.
func runDiff(ctx context.Context, w io.Writer, ws *workspace, only []string, dryRun bool) error {
	plan, err := ws.plan(only)
	if err != nil {
		return err
	}

	diffs, err := engine.NewDiffer(ws.registry).DiffAll(ctx, plan)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := writeJSON(w, applyResult{Diff: diffs}); err != nil {
			return err
		}
	} else {
		printDiffs(w, diffs)
	}

	if !dryRun {
		for _, d := range diffs {
			if d.Err != nil {
				return &ExitError{Code: 1}
			}
		}
	}
	return nil
}
