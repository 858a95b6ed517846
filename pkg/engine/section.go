package engine

import (
	"fmt"
)

// DefaultMaxParallel is the worker pool size used when none is configured.
const DefaultMaxParallel = 4

// Section is one configured unit of work: a named list of items bound to a
// single backend.
type Section struct {
	// ID is the unique identifier of the section (e.g., "brew", "npm").
	ID string `json:"id"`

	// Backend is the identifier of the backend that installs the items.
	Backend string `json:"backend"`

	// Items are the declared item names, in declaration order.
	Items []string `json:"items"`

	// DependsOn lists section identifiers that must run before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// MaxParallel overrides the global pool size for this section when > 0.
	MaxParallel int `json:"max_parallel,omitempty"`

	// Optional lists items whose failure is tolerated.
	Optional []string `json:"optional,omitempty"`
}

// IsOptional returns true if a failure of item is tolerated.
func (s *Section) IsOptional(item string) bool {
	for _, o := range s.Optional {
		if o == item {
			return true
		}
	}
	return false
}

// Settings are the global run settings.
type Settings struct {
	// FailFast halts further scheduling on the first failure.
	FailFast bool `json:"fail_fast"`

	// MaxParallel bounds the number of concurrent installs within a section.
	MaxParallel int `json:"max_parallel"`
}

// DefaultSettings returns the default settings: continue mode, 4 workers.
func DefaultSettings() Settings {
	return Settings{
		FailFast:    false,
		MaxParallel: DefaultMaxParallel,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.MaxParallel < 1 {
		return NewConfigValidationError(
			fmt.Sprintf("max_parallel must be >= 1, got %d", s.MaxParallel), nil)
	}
	return nil
}

// Policy returns the recovery policy name for the settings.
func (s Settings) Policy() string {
	if s.FailFast {
		return "fail_fast"
	}
	return "continue"
}

// InstallTask is one (section, item) pair awaiting installation.
type InstallTask struct {
	Section string
	Item    string

	// Prerequisite marks the runtime auto-installation task of a section.
	Prerequisite bool
}

// ValidateSections checks section invariants: ids unique and non-empty,
// backend present, depends_on entries exist and are not self references,
// per-section max_parallel is not negative.
func ValidateSections(sections []Section) error {
	ids := make(map[string]bool, len(sections))
	for i := range sections {
		s := &sections[i]
		if s.ID == "" {
			return NewConfigValidationError(fmt.Sprintf("section #%d has empty id", i), nil)
		}
		if ids[s.ID] {
			return NewConfigValidationError("duplicate section id", nil).WithSection(s.ID)
		}
		ids[s.ID] = true

		if s.Backend == "" {
			return NewConfigValidationError("section has no backend", nil).WithSection(s.ID)
		}
		if s.MaxParallel < 0 {
			return NewConfigValidationError(
				fmt.Sprintf("max_parallel must be >= 1, got %d", s.MaxParallel), nil).WithSection(s.ID)
		}
	}

	for i := range sections {
		s := &sections[i]
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return NewConfigValidationError("section depends on itself", nil).WithSection(s.ID)
			}
			if !ids[dep] {
				return NewConfigValidationError(
					fmt.Sprintf("depends on unknown section %q", dep), nil).WithSection(s.ID)
			}
		}
	}

	return nil
}
