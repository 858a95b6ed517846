package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/macup/macup/pkg/engine"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report the key as written in the file.
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// sectionNames are the ids depends_on may reference.
var sectionNames = []string{
	SectionTaps, SectionBrew, SectionCasks, SectionPackages,
	SectionMas, SectionNpm, SectionCargo, SectionInstall,
}

// Validate checks field constraints and cross references. Every failure is
// an engine ConfigValidationError.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return engine.NewConfigValidationError(describe(verrs[0]), nil)
		}
		return engine.NewConfigValidationError("invalid configuration", err)
	}

	if mp := cfg.Settings.MaxParallel; mp != nil && *mp < 1 {
		return engine.NewConfigValidationError(
			fmt.Sprintf("settings.max_parallel must be >= 1, got %d", *mp), nil)
	}

	deps := map[string][]string{}
	if cfg.Brew != nil {
		deps["brew"] = cfg.Brew.DependsOn
	}
	if cfg.Mas != nil {
		deps["mas"] = cfg.Mas.DependsOn
	}
	if cfg.Npm != nil {
		deps["npm"] = cfg.Npm.DependsOn
	}
	if cfg.Cargo != nil {
		deps["cargo"] = cfg.Cargo.DependsOn
	}
	if cfg.Install != nil {
		deps["install"] = cfg.Install.DependsOn
	}
	if cfg.Packages != nil {
		deps["packages"] = cfg.Packages.DependsOn
	}
	if cfg.System != nil {
		deps["system"] = cfg.System.DependsOn
	}

	for _, table := range []string{"brew", "mas", "npm", "cargo", "install", "packages", "system"} {
		for _, dep := range deps[table] {
			if !isSectionName(dep) {
				return engine.NewConfigValidationError(
					fmt.Sprintf("[%s] depends_on references unknown section %q (known: %s)",
						table, dep, strings.Join(sectionNames, ", ")), nil)
			}
			if ownsSection(table, dep) {
				return engine.NewConfigValidationError(
					fmt.Sprintf("[%s] cannot depend on its own section %q", table, dep), nil)
			}
		}
	}

	if cfg.Install != nil {
		seen := make(map[string]bool, len(cfg.Install.Scripts))
		for _, s := range cfg.Install.Scripts {
			if seen[s.Name] {
				return engine.NewConfigValidationError(
					fmt.Sprintf("[install] duplicate script name %q", s.Name), nil).WithSection(SectionInstall)
			}
			seen[s.Name] = true
		}
	}

	if cfg.Mas != nil {
		seen := make(map[uint64]bool, len(cfg.Mas.Apps))
		for _, app := range cfg.Mas.Apps {
			if seen[app.ID] {
				return engine.NewConfigValidationError(
					fmt.Sprintf("[mas] duplicate app id %d", app.ID), nil).WithSection(SectionMas)
			}
			seen[app.ID] = true
		}
	}

	return nil
}

func isSectionName(name string) bool {
	for _, n := range sectionNames {
		if n == name {
			return true
		}
	}
	return false
}

// ownsSection reports whether the table produces the section. The brew table
// produces taps, brew and casks.
func ownsSection(table, section string) bool {
	if table == "brew" {
		return section == SectionTaps || section == SectionBrew || section == SectionCasks
	}
	return table == section
}

// describe renders a validator failure using the file's key names.
func describe(fe validator.FieldError) string {
	// Drop the root struct name: "Config.brew.taps[0]" -> "brew.taps[0]".
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "contains":
		return fmt.Sprintf("%s must contain %q, got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
