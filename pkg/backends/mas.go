package backends

import (
	"context"
	"strings"

	"github.com/macup/macup/pkg/engine"
)

// Mas installs Mac App Store apps by numeric id.
type Mas struct {
	tool
}

// NewMas creates the App Store backend.
func NewMas(runner Runner) *Mas {
	return &Mas{tool: newTool(NameMas, runner)}
}

// InstallRuntime installs mas-cli through Homebrew.
func (m *Mas) InstallRuntime(ctx context.Context) error {
	return m.installWithBrew(ctx)
}

// ListInstalled lists installed app ids. `mas list` prints "ID Name (version)".
func (m *Mas) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	res, err := Check(ctx, m.runner, Command{Name: "mas", Args: []string{"list"}})
	if err != nil {
		return nil, err
	}

	set := engine.NewItemSet()
	for _, line := range res.Lines() {
		set.Add(strings.Fields(line)[0])
	}
	return set, nil
}

// IsInstalled checks one app.
func (m *Mas) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, m, item)
}

// Install installs one app.
func (m *Mas) Install(ctx context.Context, item string) error {
	_, err := Check(ctx, m.runner, Command{Name: "mas", Args: []string{"install", item}})
	return err
}
