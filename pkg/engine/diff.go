package engine

import (
	"context"
	"fmt"
)

// SectionDiff is the installed-versus-declared comparison of one section.
type SectionDiff struct {
	// Section is the section identifier.
	Section string `json:"section"`

	// Backend is the backend identifier.
	Backend string `json:"backend"`

	// Installed are declared items already present, in declaration order.
	Installed []string `json:"installed"`

	// Missing are declared items that would be installed, in declaration order.
	Missing []string `json:"missing"`

	// RuntimeMissing is set when the backend tool is not available, in which
	// case every item is reported missing.
	RuntimeMissing bool `json:"runtime_missing,omitempty"`

	// Err is the query error, if the installed set could not be read.
	Err error `json:"-"`
}

// Error returns the query error message, or an empty string.
func (d SectionDiff) Error() string {
	if d.Err == nil {
		return ""
	}
	return d.Err.Error()
}

// Differ computes installed-versus-declared sets without installing anything.
type Differ struct {
	registry *Registry
}

// NewDiffer creates a differ that resolves backends through registry.
func NewDiffer(registry *Registry) *Differ {
	return &Differ{registry: registry}
}

// Diff queries the section's backend once and splits the declared items into
// installed and missing.
func (d *Differ) Diff(ctx context.Context, section *Section) (SectionDiff, error) {
	result := SectionDiff{
		Section:   section.ID,
		Backend:   section.Backend,
		Installed: make([]string, 0),
		Missing:   make([]string, 0),
	}

	backend, err := d.registry.Get(section.Backend)
	if err != nil {
		return result, err
	}

	if !backend.RuntimeAvailable(ctx) {
		result.RuntimeMissing = true
		result.Missing = dedupe(section.Items)
		return result, nil
	}

	return d.query(ctx, section, backend)
}

// query reads the backend's installed set once and splits the section's
// declared items. The engine diffs through it before installing.
func (d *Differ) query(ctx context.Context, section *Section, backend Backend) (SectionDiff, error) {
	result := SectionDiff{Section: section.ID, Backend: section.Backend}

	installed, err := backend.ListInstalled(ctx)
	if err != nil {
		qerr := NewBackendQueryError(
			fmt.Sprintf("failed to list installed %s items", backend.Name()), err).WithSection(section.ID)
		result.Installed = make([]string, 0)
		result.Missing = make([]string, 0)
		result.Err = qerr
		return result, qerr
	}

	result.Installed, result.Missing = splitInstalled(section.Items, installed)
	return result, nil
}

// DiffAll diffs every section of the plan in execution order. Query errors are
// recorded on the section diff and do not stop the remaining sections.
func (d *Differ) DiffAll(ctx context.Context, plan *Plan) ([]SectionDiff, error) {
	out := make([]SectionDiff, 0, len(plan.Order))
	for _, section := range plan.Ordered() {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		diff, err := d.Diff(ctx, section)
		if err != nil && !IsBackendQuery(err) {
			return out, err
		}
		out = append(out, diff)
	}
	return out, nil
}

// splitInstalled computes declared minus installed by exact identifier match.
// Declaration order is kept and duplicates are collapsed.
func splitInstalled(declared []string, installed ItemSet) (present, missing []string) {
	present = make([]string, 0)
	missing = make([]string, 0)
	for _, item := range dedupe(declared) {
		if installed.Has(item) {
			present = append(present, item)
		} else {
			missing = append(missing, item)
		}
	}
	return present, missing
}

// dedupe drops repeated items, keeping the first occurrence.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
