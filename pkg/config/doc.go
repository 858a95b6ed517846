// Package config loads the macup configuration file and converts it into
// engine sections.
//
// # Overview
//
// A configuration declares what should be installed on the workstation,
// grouped by package manager. It is written in TOML (macup.toml) or YAML
// (macup.yaml, macup.yml):
//
//	[settings]
//	fail_fast = false
//	max_parallel = 4
//
//	[brew]
//	taps = ["homebrew/cask-fonts"]
//	formulae = ["git", "ripgrep"]
//	casks = ["firefox"]
//
//	[cargo]
//	depends_on = ["brew"]
//	packages = ["bat", "ripgrep:rg"]
//
//	[[install.scripts]]
//	name = "oh-my-zsh"
//	command = "sh install.sh"
//	check = "test -d ~/.oh-my-zsh"
//	required = false
//
// # Discovery
//
// Find looks for the file given with --config, then macup.{toml,yaml,yml} in
// the working directory, then in $XDG_CONFIG_HOME/macup (~/.config/macup
// when unset), and finally ~/.macup.toml.
//
// # Sections
//
// Config.Sections produces sections in the fixed order taps, brew, casks,
// packages, mas, npm, cargo, install. The [brew] table yields up to three
// sections; brew and casks depend on taps when taps are declared. npm and
// cargo entries of the form "package:binary" install package and treat it as
// present when binary is on PATH.
//
// Validation uses go-playground/validator struct tags and reports every
// problem as an engine ConfigValidationError.
package config
