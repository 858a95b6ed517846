package config

import (
	"strconv"

	"github.com/macup/macup/pkg/backends"
	"github.com/macup/macup/pkg/engine"
)

// Section ids produced from the configuration.
const (
	SectionTaps     = "taps"
	SectionBrew     = "brew"
	SectionCasks    = "casks"
	SectionPackages = "packages"
	SectionMas      = "mas"
	SectionNpm      = "npm"
	SectionCargo    = "cargo"
	SectionInstall  = "install"
)

// sectionBackends binds every section id to its backend.
var sectionBackends = map[string]string{
	SectionTaps:     backends.NameBrewTap,
	SectionBrew:     backends.NameBrew,
	SectionCasks:    backends.NameBrewCask,
	SectionPackages: backends.NameSysPkg,
	SectionMas:      backends.NameMas,
	SectionNpm:      backends.NameNpm,
	SectionCargo:    backends.NameCargo,
	SectionInstall:  backends.NameScript,
}

// Sections converts the configuration into engine sections, in the fixed
// order taps, brew, casks, packages, mas, npm, cargo, install. A section
// that is not declared but is named in some depends_on is emitted empty.
func (c *Config) Sections() []engine.Section {
	declared := map[string]engine.Section{}
	add := func(s engine.Section) {
		s.Backend = sectionBackends[s.ID]
		declared[s.ID] = s
	}

	if b := c.Brew; b != nil {
		var tapDep []string
		if len(b.Taps) > 0 {
			// taps are added one at a time
			add(engine.Section{ID: SectionTaps, Items: b.Taps, DependsOn: b.DependsOn, MaxParallel: 1})
			tapDep = []string{SectionTaps}
		}
		add(engine.Section{
			ID:          SectionBrew,
			Items:       b.Formulae,
			DependsOn:   join(b.DependsOn, tapDep),
			MaxParallel: b.MaxParallel,
		})
		if len(b.Casks) > 0 {
			add(engine.Section{
				ID:          SectionCasks,
				Items:       b.Casks,
				DependsOn:   join(b.DependsOn, tapDep),
				MaxParallel: b.MaxParallel,
			})
		}
	}

	if p := c.Packages; p != nil {
		add(engine.Section{ID: SectionPackages, Items: p.Names, DependsOn: p.DependsOn, MaxParallel: p.MaxParallel})
	}

	if m := c.Mas; m != nil {
		ids := make([]string, 0, len(m.Apps))
		for _, app := range m.Apps {
			ids = append(ids, strconv.FormatUint(app.ID, 10))
		}
		add(engine.Section{ID: SectionMas, Items: ids, DependsOn: m.DependsOn, MaxParallel: m.MaxParallel})
	}

	if n := c.Npm; n != nil {
		add(engine.Section{ID: SectionNpm, Items: packageNames(n.Global), DependsOn: n.DependsOn, MaxParallel: n.MaxParallel})
	}

	if cg := c.Cargo; cg != nil {
		add(engine.Section{ID: SectionCargo, Items: packageNames(cg.Packages), DependsOn: cg.DependsOn, MaxParallel: cg.MaxParallel})
	}

	if in := c.Install; in != nil {
		var names, optional []string
		for _, s := range in.Scripts {
			names = append(names, s.Name)
			if !s.IsRequired() {
				optional = append(optional, s.Name)
			}
		}
		add(engine.Section{
			ID:          SectionInstall,
			Items:       names,
			DependsOn:   in.DependsOn,
			MaxParallel: in.MaxParallel,
			Optional:    optional,
		})
	}

	referenced := map[string]bool{}
	for _, s := range declared {
		for _, dep := range s.DependsOn {
			referenced[dep] = true
		}
	}

	sections := make([]engine.Section, 0, len(sectionNames))
	for _, id := range sectionNames {
		if s, ok := declared[id]; ok {
			sections = append(sections, s)
		} else if referenced[id] {
			sections = append(sections, engine.Section{ID: id, Backend: sectionBackends[id]})
		}
	}
	return sections
}

// EngineSettings returns the engine settings. An unset max_parallel falls back to
// engine.DefaultMaxParallel.
func (c *Config) EngineSettings() engine.Settings {
	settings := engine.DefaultSettings()
	settings.FailFast = c.Settings.FailFast
	if c.Settings.MaxParallel != nil {
		settings.MaxParallel = *c.Settings.MaxParallel
	}
	return settings
}

// BackendOptions returns the backend options derived from the configuration.
// env is exported to install scripts.
func (c *Config) BackendOptions(env map[string]string) backends.Options {
	opts := backends.Options{Env: env}

	if c.Npm != nil {
		opts.NpmBinaries = binaryMap(c.Npm.Global)
	}
	if c.Cargo != nil {
		opts.CargoBinaries = binaryMap(c.Cargo.Packages)
	}
	if c.Install != nil {
		for _, s := range c.Install.Scripts {
			opts.Scripts = append(opts.Scripts, backends.Script{
				Name:     s.Name,
				Command:  s.Command,
				Check:    s.Check,
				Required: s.IsRequired(),
			})
		}
	}
	if c.Packages != nil {
		opts.SysPkgManager = c.Packages.Manager
		opts.SysPkgSudo = c.Packages.Sudo
	}
	return opts
}

// SystemCommands returns the system-setting commands, if any.
func (c *Config) SystemCommands() []string {
	if c.System == nil {
		return nil
	}
	return c.System.Commands
}

func packageNames(specs []string) []string {
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		pkg, _ := backends.SplitBinary(spec)
		names = append(names, pkg)
	}
	return names
}

func binaryMap(specs []string) map[string]string {
	bins := make(map[string]string, len(specs))
	for _, spec := range specs {
		pkg, bin := backends.SplitBinary(spec)
		bins[pkg] = bin
	}
	return bins
}

func join(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
