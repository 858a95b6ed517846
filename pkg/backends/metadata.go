package backends

import (
	"context"
	"fmt"
)

// Backend identifiers.
const (
	NameBrew     = "brew"
	NameBrewCask = "brew-cask"
	NameBrewTap  = "brew-tap"
	NameMas      = "mas"
	NameNpm      = "npm"
	NameCargo    = "cargo"
	NameScript   = "script"
	NameSysPkg   = "syspkg"
)

// Metadata describes a backend's tool and how its runtime is obtained.
type Metadata struct {
	// Name is the backend identifier.
	Name string

	// DisplayName is used in user-facing messages.
	DisplayName string

	// RuntimeCommand must be on PATH for the backend to work.
	RuntimeCommand string

	// RuntimeName is the human-readable runtime name.
	RuntimeName string

	// BrewFormula installs the runtime; empty if brew cannot provide it.
	BrewFormula string
}

var metadata = []Metadata{
	{Name: NameBrew, DisplayName: "Homebrew formulae", RuntimeCommand: "brew", RuntimeName: "homebrew"},
	{Name: NameBrewCask, DisplayName: "Homebrew casks", RuntimeCommand: "brew", RuntimeName: "homebrew"},
	{Name: NameBrewTap, DisplayName: "Homebrew taps", RuntimeCommand: "brew", RuntimeName: "homebrew"},
	{Name: NameMas, DisplayName: "Mac App Store apps", RuntimeCommand: "mas", RuntimeName: "mas-cli", BrewFormula: "mas"},
	{Name: NameNpm, DisplayName: "npm packages", RuntimeCommand: "npm", RuntimeName: "node", BrewFormula: "node"},
	{Name: NameCargo, DisplayName: "cargo packages", RuntimeCommand: "cargo", RuntimeName: "rust", BrewFormula: "rust"},
	{Name: NameScript, DisplayName: "install scripts", RuntimeCommand: "sh", RuntimeName: "sh"},
	{Name: NameSysPkg, DisplayName: "system packages"},
}

// Lookup returns the metadata of a backend.
func Lookup(name string) (Metadata, bool) {
	for _, m := range metadata {
		if m.Name == name {
			return m, true
		}
	}
	return Metadata{}, false
}

// All returns the metadata of every known backend.
func All() []Metadata {
	out := make([]Metadata, len(metadata))
	copy(out, metadata)
	return out
}

func mustLookup(name string) Metadata {
	m, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("backends: no metadata for %s", name))
	}
	return m
}

// tool is the shared runtime handling of a backend.
type tool struct {
	meta   Metadata
	runner Runner
}

func newTool(name string, runner Runner) tool {
	return tool{meta: mustLookup(name), runner: runner}
}

// Name returns the backend identifier.
func (t tool) Name() string {
	return t.meta.Name
}

// RuntimeAvailable reports whether the runtime command is on PATH.
func (t tool) RuntimeAvailable(ctx context.Context) bool {
	_, err := t.runner.LookPath(t.meta.RuntimeCommand)
	return err == nil
}

// RuntimeName returns the runtime installed as a prerequisite.
func (t tool) RuntimeName() string {
	return t.meta.RuntimeName
}

// installWithBrew installs the runtime formula through Homebrew.
func (t tool) installWithBrew(ctx context.Context) error {
	if t.meta.BrewFormula == "" {
		return fmt.Errorf("%s cannot be installed automatically", t.meta.RuntimeName)
	}
	if _, err := t.runner.LookPath("brew"); err != nil {
		return fmt.Errorf("%s requires Homebrew to install %s", t.meta.Name, t.meta.RuntimeName)
	}
	_, err := Check(ctx, t.runner, brewCommand("install", t.meta.BrewFormula))
	return err
}
