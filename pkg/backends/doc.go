// Package backends implements the package-manager backends of macup.
//
// Every backend satisfies engine.Backend and reaches its tool only through a
// Runner, so tests substitute a fake runner for real processes.
//
//	runner := backends.NewExecRunner(logger)
//	registry := backends.NewDefaultRegistry(backends.Options{Runner: runner})
//	eng := engine.NewEngine(registry, settings)
//
// Backends that can install their own runtime (npm installs node, cargo
// installs rust, mas installs mas-cli, all through Homebrew) implement
// engine.RuntimeInstaller. SysPkg installs in one transaction and implements
// engine.BatchInstaller.
package backends
