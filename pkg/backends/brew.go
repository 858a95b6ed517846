package backends

import (
	"context"
	"fmt"

	"github.com/macup/macup/pkg/engine"
)

// HomebrewInstallScript installs Homebrew non-interactively.
const HomebrewInstallScript = `/bin/bash -c "$(curl -fsSL https://raw.githubusercontent.com/Homebrew/install/HEAD/install.sh)"`

// brewCommand builds a brew invocation with auto-update disabled.
func brewCommand(args ...string) Command {
	return Command{
		Name: "brew",
		Args: args,
		Env:  map[string]string{"HOMEBREW_NO_AUTO_UPDATE": "1"},
	}
}

// brewTool is shared by the formula, cask and tap backends.
type brewTool struct {
	tool
}

// InstallRuntime installs Homebrew itself.
func (b brewTool) InstallRuntime(ctx context.Context) error {
	_, err := Check(ctx, b.runner, Command{
		Name:  HomebrewInstallScript,
		Shell: true,
		Env:   map[string]string{"NONINTERACTIVE": "1"},
	})
	if err != nil {
		return fmt.Errorf("failed to install Homebrew: %w", err)
	}
	return nil
}

// list runs a brew listing command and returns one item per line.
func (b brewTool) list(ctx context.Context, args ...string) (engine.ItemSet, error) {
	res, err := Check(ctx, b.runner, brewCommand(args...))
	if err != nil {
		return nil, err
	}
	return engine.NewItemSet(res.Lines()...), nil
}

// Brew installs Homebrew formulae.
type Brew struct {
	brewTool
}

// NewBrew creates the formula backend.
func NewBrew(runner Runner) *Brew {
	return &Brew{brewTool{newTool(NameBrew, runner)}}
}

// ListInstalled lists installed formulae.
func (b *Brew) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	return b.list(ctx, "list", "--formula")
}

// IsInstalled checks one formula.
func (b *Brew) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, b, item)
}

// Install installs one formula.
func (b *Brew) Install(ctx context.Context, item string) error {
	_, err := Check(ctx, b.runner, brewCommand("install", item))
	return err
}

// BrewCask installs Homebrew casks.
type BrewCask struct {
	brewTool
}

// NewBrewCask creates the cask backend.
func NewBrewCask(runner Runner) *BrewCask {
	return &BrewCask{brewTool{newTool(NameBrewCask, runner)}}
}

// ListInstalled lists installed casks.
func (b *BrewCask) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	return b.list(ctx, "list", "--cask")
}

// IsInstalled checks one cask.
func (b *BrewCask) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, b, item)
}

// Install installs one cask.
func (b *BrewCask) Install(ctx context.Context, item string) error {
	_, err := Check(ctx, b.runner, brewCommand("install", "--cask", item))
	return err
}

// BrewTap adds Homebrew taps. Taps should be added one at a time.
type BrewTap struct {
	brewTool
}

// NewBrewTap creates the tap backend.
func NewBrewTap(runner Runner) *BrewTap {
	return &BrewTap{brewTool{newTool(NameBrewTap, runner)}}
}

// ListInstalled lists added taps.
func (b *BrewTap) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	return b.list(ctx, "tap")
}

// IsInstalled checks one tap.
func (b *BrewTap) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, b, item)
}

// Install adds one tap.
func (b *BrewTap) Install(ctx context.Context, item string) error {
	_, err := Check(ctx, b.runner, brewCommand("tap", item))
	return err
}
