package commands

import (
	"fmt"
	"strings"

	"github.com/macup/macup/pkg/config"
	"github.com/spf13/cobra"
)

// addResult is the JSON output of add --no-install.
type addResult struct {
	Path    string   `json:"path"`
	List    string   `json:"list"`
	Section string   `json:"section"`
	Added   []string `json:"added"`
}

func newAddCommand() *cobra.Command {
	var noInstall bool

	cmd := &cobra.Command{
		Use:   "add <manager> <package>...",
		Short: "Add packages to the configuration and install them",
		Long: `Add packages to the configuration and install them.

The manager is one of: ` + strings.Join(config.AddTargetNames(), ", ") + `.
Packages already listed are left alone. After the file is updated the
manager's section is applied, exactly like "macup apply <section>".

YAML files keep their comments; TOML files are re-encoded.`,
		Example: `  # Add two formulae and install them
  macup add brew jq ripgrep

  # Only update the config
  macup add cask firefox --no-install`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.AddTarget(args[0])
			if err != nil {
				return err
			}

			path, err := config.Find(configPath)
			if err != nil {
				return err
			}

			added, err := config.AddItems(path, target, args[1:])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !jsonOutput {
				if len(added) == 0 {
					fmt.Fprintf(w, "Nothing to add: every package is already in %s\n", target)
				} else {
					fmt.Fprintf(w, "✓ Added %d package(s) to %s in %s\n", len(added), target, path)
				}
			}

			if noInstall {
				if jsonOutput {
					if added == nil {
						added = []string{}
					}
					return writeJSON(w, addResult{Path: path, List: target.String(), Section: target.Section, Added: added})
				}
				return nil
			}

			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.close()

			ws, err := sess.loadWorkspace(path, overrides{})
			if err != nil {
				return err
			}

			if !jsonOutput {
				subscribeProgress(sess.tel.Events, w)
			}
			return runApply(cmd.Context(), w, sess, ws, []string{target.Section}, &applyOptions{})
		},
	}

	cmd.Flags().BoolVar(&noInstall, "no-install", false, "only update the config file")
	return cmd
}
