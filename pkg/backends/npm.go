package backends

import (
	"context"
	"strings"

	"github.com/macup/macup/pkg/engine"
)

// Npm installs global npm packages. A package counts as installed when it is
// listed globally or when its executable is on PATH.
type Npm struct {
	tool
	binaries binaries
}

// NewNpm creates the npm backend. bins maps package names to executables.
func NewNpm(runner Runner, bins map[string]string) *Npm {
	return &Npm{tool: newTool(NameNpm, runner), binaries: binaries(bins)}
}

// InstallRuntime installs node through Homebrew.
func (n *Npm) InstallRuntime(ctx context.Context) error {
	return n.installWithBrew(ctx)
}

// ListInstalled lists global packages.
func (n *Npm) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	res, err := Check(ctx, n.runner, Command{
		Name: "npm",
		Args: []string{"list", "-g", "--depth=0", "--parseable"},
	})
	if err != nil {
		return nil, err
	}

	set := engine.NewItemSet()
	for _, line := range res.Lines() {
		if name := npmPackageFromPath(line); name != "" {
			set.Add(name)
		}
	}
	n.binaries.addPresent(set, n.runner)
	return set, nil
}

// IsInstalled checks one package.
func (n *Npm) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, n, item)
}

// Install installs one global package.
func (n *Npm) Install(ctx context.Context, item string) error {
	_, err := Check(ctx, n.runner, Command{Name: "npm", Args: []string{"install", "-g", item}})
	return err
}

// npmPackageFromPath extracts the package name, scope included, from a
// parseable listing line.
func npmPackageFromPath(path string) string {
	const marker = "node_modules/"
	idx := strings.LastIndex(path, marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSuffix(path[idx+len(marker):], "/")
}
