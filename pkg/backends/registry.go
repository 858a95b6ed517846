package backends

import (
	"github.com/macup/macup/pkg/engine"
)

// Options configure the default backends.
type Options struct {
	// Runner invokes external tools. Defaults to an ExecRunner.
	Runner Runner

	// NpmBinaries maps npm package names to their executables.
	NpmBinaries map[string]string

	// CargoBinaries maps crate names to their executables.
	CargoBinaries map[string]string

	// Scripts are the ad-hoc install scripts.
	Scripts []Script

	// Env is exported to install scripts.
	Env map[string]string

	// SysPkgManager forces the Linux package manager; empty detects it.
	SysPkgManager string

	// SysPkgSudo runs the Linux package manager through sudo.
	SysPkgSudo bool
}

// NewDefaultRegistry registers every built-in backend.
func NewDefaultRegistry(opts Options) *engine.Registry {
	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner(nil)
	}

	return engine.NewRegistry(
		NewBrew(runner),
		NewBrewCask(runner),
		NewBrewTap(runner),
		NewMas(runner),
		NewNpm(runner, opts.NpmBinaries),
		NewCargo(runner, opts.CargoBinaries),
		NewScriptRunner(runner, opts.Scripts, opts.Env),
		NewSysPkg(runner, opts.SysPkgManager, opts.SysPkgSudo),
	)
}
