package backends

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/macup/macup/pkg/engine"
)

// Cargo installs crates with `cargo install`. A crate counts as installed
// when it is listed or when its executable is on PATH.
type Cargo struct {
	tool
	binaries binaries
}

// NewCargo creates the cargo backend. bins maps crate names to executables.
func NewCargo(runner Runner, bins map[string]string) *Cargo {
	return &Cargo{tool: newTool(NameCargo, runner), binaries: binaries(bins)}
}

// InstallRuntime installs the stable toolchain with rustup when present,
// otherwise rust through Homebrew.
func (c *Cargo) InstallRuntime(ctx context.Context) error {
	if _, err := c.runner.LookPath("rustup"); err == nil {
		_, err := Check(ctx, c.runner, Command{
			Name: "rustup",
			Args: []string{"toolchain", "install", "stable"},
		})
		if err != nil {
			return fmt.Errorf("rustup failed: %w", err)
		}
		return nil
	}
	return c.installWithBrew(ctx)
}

// ListInstalled lists installed crates. Crate lines are the unindented
// lines of `cargo install --list`, e.g. "ripgrep v14.1.0:".
func (c *Cargo) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	res, err := Check(ctx, c.runner, Command{Name: "cargo", Args: []string{"install", "--list"}})
	if err != nil {
		return nil, err
	}

	set := engine.NewItemSet()
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" || unicode.IsSpace(rune(line[0])) || !strings.Contains(line, " ") {
			continue
		}
		set.Add(strings.Fields(line)[0])
	}
	c.binaries.addPresent(set, c.runner)
	return set, nil
}

// IsInstalled checks one crate.
func (c *Cargo) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, c, item)
}

// Install installs one crate.
func (c *Cargo) Install(ctx context.Context, item string) error {
	_, err := Check(ctx, c.runner, Command{Name: "cargo", Args: []string{"install", item}})
	return err
}
