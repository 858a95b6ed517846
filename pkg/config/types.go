package config

// Config is the declarative workstation configuration.
type Config struct {
	// Settings are the global run settings.
	Settings Settings `toml:"settings" yaml:"settings" json:"settings"`

	// Brew declares Homebrew taps, formulae and casks.
	Brew *BrewConfig `toml:"brew,omitempty" yaml:"brew,omitempty" json:"brew,omitempty"`

	// Mas declares Mac App Store apps.
	Mas *MasConfig `toml:"mas,omitempty" yaml:"mas,omitempty" json:"mas,omitempty"`

	// Npm declares global npm packages.
	Npm *NpmConfig `toml:"npm,omitempty" yaml:"npm,omitempty" json:"npm,omitempty"`

	// Cargo declares crates installed with cargo install.
	Cargo *CargoConfig `toml:"cargo,omitempty" yaml:"cargo,omitempty" json:"cargo,omitempty"`

	// Install declares ad-hoc install scripts.
	Install *InstallConfig `toml:"install,omitempty" yaml:"install,omitempty" json:"install,omitempty"`

	// Packages declares Linux system packages.
	Packages *PackagesConfig `toml:"packages,omitempty" yaml:"packages,omitempty" json:"packages,omitempty"`

	// System declares system-setting commands.
	System *SystemConfig `toml:"system,omitempty" yaml:"system,omitempty" json:"system,omitempty"`

	// Path is the file the configuration was loaded from.
	Path string `toml:"-" yaml:"-" json:"-"`
}

// Settings are the global run settings.
type Settings struct {
	// FailFast halts the run on the first failure.
	FailFast bool `toml:"fail_fast" yaml:"fail_fast" json:"fail_fast"`

	// MaxParallel bounds concurrent installs within a section. Defaults to 4.
	MaxParallel *int `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"omitempty,gte=1"`

	// EnvFiles are dotenv files exported to install scripts, relative to the
	// configuration file.
	EnvFiles []string `toml:"env_files,omitempty" yaml:"env_files,omitempty" json:"env_files,omitempty" validate:"dive,required"`
}

// BrewConfig declares Homebrew items. The three lists become the taps, brew
// and casks sections.
type BrewConfig struct {
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	MaxParallel int      `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	Taps     []string `toml:"taps,omitempty" yaml:"taps,omitempty" json:"taps,omitempty" validate:"dive,required,contains=/"`
	Formulae []string `toml:"formulae,omitempty" yaml:"formulae,omitempty" json:"formulae,omitempty" validate:"dive,required"`
	Casks    []string `toml:"casks,omitempty" yaml:"casks,omitempty" json:"casks,omitempty" validate:"dive,required"`
}

// MasConfig declares App Store apps.
type MasConfig struct {
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	MaxParallel int      `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	Apps []MasApp `toml:"apps,omitempty" yaml:"apps,omitempty" json:"apps,omitempty" validate:"dive"`
}

// MasApp is one App Store app.
type MasApp struct {
	Name string `toml:"name" yaml:"name" json:"name" validate:"required"`
	ID   uint64 `toml:"id" yaml:"id" json:"id" validate:"required"`
}

// NpmConfig declares global npm packages as "package" or "package:binary".
type NpmConfig struct {
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	MaxParallel int      `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	Global []string `toml:"global,omitempty" yaml:"global,omitempty" json:"global,omitempty" validate:"dive,required"`
}

// CargoConfig declares crates as "crate" or "crate:binary".
type CargoConfig struct {
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	MaxParallel int      `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	Packages []string `toml:"packages,omitempty" yaml:"packages,omitempty" json:"packages,omitempty" validate:"dive,required"`
}

// InstallConfig declares ad-hoc install scripts.
type InstallConfig struct {
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	MaxParallel int      `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	Scripts []InstallScript `toml:"scripts,omitempty" yaml:"scripts,omitempty" json:"scripts,omitempty" validate:"dive"`
}

// InstallScript is one ad-hoc install command.
type InstallScript struct {
	Name    string `toml:"name" yaml:"name" json:"name" validate:"required"`
	Command string `toml:"command" yaml:"command" json:"command" validate:"required"`

	// Check exits zero when the tool is already installed.
	Check string `toml:"check,omitempty" yaml:"check,omitempty" json:"check,omitempty"`

	// Required defaults to true.
	Required *bool `toml:"required,omitempty" yaml:"required,omitempty" json:"required,omitempty"`
}

// IsRequired reports whether a failure of the script fails the run.
func (s InstallScript) IsRequired() bool {
	return s.Required == nil || *s.Required
}

// PackagesConfig declares Linux system packages.
type PackagesConfig struct {
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	MaxParallel int      `toml:"max_parallel,omitempty" yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	// Manager forces the package manager; empty detects it.
	Manager string `toml:"manager,omitempty" yaml:"manager,omitempty" json:"manager,omitempty" validate:"omitempty,oneof=apt dnf yum zypper"`

	// Sudo runs the package manager through sudo.
	Sudo bool `toml:"sudo,omitempty" yaml:"sudo,omitempty" json:"sudo,omitempty"`

	Names []string `toml:"names,omitempty" yaml:"names,omitempty" json:"names,omitempty" validate:"dive,required"`
}

// SystemConfig declares system-setting commands run after installation.
type SystemConfig struct {
	DependsOn []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`

	Commands []string `toml:"commands,omitempty" yaml:"commands,omitempty" json:"commands,omitempty" validate:"dive,required"`
}
