package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var dotFile string

	cmd := &cobra.Command{
		Use:   "plan [section]",
		Short: "Show the section execution order",
		Long: `Show the order sections would run in, without querying or invoking any
package manager.

Sections are ordered by depends_on; sections with no ordering constraint
between them keep their configuration order.`,
		Example: `  # Show execution order
  macup plan

  # Write the dependency graph for Graphviz
  macup plan --dot plan.dot`,
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

			plan, err := ws.plan(args)
			if err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(plan.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
				sess.logger.Infof("Wrote dependency graph to %s", dotFile)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "output DOT graph file (optional)")

	return cmd
}
