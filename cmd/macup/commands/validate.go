package commands

import (
	"fmt"

	"github.com/macup/macup/pkg/config"
	"github.com/macup/macup/pkg/engine"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file.

This command checks:
  - TOML/YAML syntax and unknown keys
  - Field constraints (required names, max_parallel, package managers)
  - depends_on references
  - Dependency cycles between sections`,
		Example: `  # Validate the discovered configuration
  macup validate

  # Validate a specific file
  macup validate ./macup.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			cfg, err := config.LoadAuto(path)
			if err != nil {
				return err
			}

			// No registry: only the graph and settings are checked.
			plan, err := engine.NewPlanner(nil).Plan(cfg.Sections(), cfg.EngineSettings(), engine.PlanOptions{})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"path":     cfg.Path,
					"valid":    true,
					"sections": plan.Order,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d sections, %d items)\n",
				cfg.Path, len(plan.Order), plan.TotalItems())
			return nil
		},
	}

	return cmd
}
