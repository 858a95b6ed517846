package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlanOptions narrows what a plan covers.
type PlanOptions struct {
	// Only restricts the plan to the named sections. Dependencies on sections
	// outside the selection are treated as satisfied.
	Only []string
}

// Plan is the validated, ordered view of a set of sections.
type Plan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// Order is the section execution order.
	Order []string `json:"order"`

	// Sections maps section IDs to the planned sections.
	Sections map[string]*Section `json:"sections"`

	// Graph is the dependency graph the order was derived from.
	Graph *Graph `json:"graph"`

	// Settings are the run settings the plan was validated against.
	Settings Settings `json:"settings"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Ordered returns the planned sections in execution order.
func (p *Plan) Ordered() []*Section {
	out := make([]*Section, 0, len(p.Order))
	for _, id := range p.Order {
		out = append(out, p.Sections[id])
	}
	return out
}

// TotalItems returns the number of declared items across the plan.
func (p *Plan) TotalItems() int {
	total := 0
	for _, s := range p.Sections {
		total += len(s.Items)
	}
	return total
}

// MaxParallelFor returns the pool size for a section.
func (p *Plan) MaxParallelFor(s *Section) int {
	if s.MaxParallel > 0 {
		return s.MaxParallel
	}
	return p.Settings.MaxParallel
}

// ToDOT renders the plan's dependency graph in Graphviz DOT format.
func (p *Plan) ToDOT() string {
	return p.Graph.ToDOT(p.Sections)
}

// Planner validates sections and computes the execution order.
type Planner struct {
	// registry resolves backend identifiers
	registry *Registry
}

// NewPlanner creates a planner that resolves backends through registry.
// A nil registry skips backend resolution.
func NewPlanner(registry *Registry) *Planner {
	return &Planner{
		registry: registry,
	}
}

// Plan validates settings and sections, resolves every backend identifier,
// detects cycles, and returns the stable execution order. No backend is
// invoked.
func (p *Planner) Plan(sections []Section, settings Settings, opts PlanOptions) (*Plan, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if err := ValidateSections(sections); err != nil {
		return nil, err
	}

	selected, err := selectSections(sections, opts.Only)
	if err != nil {
		return nil, err
	}

	if p.registry != nil {
		for i := range selected {
			if _, err := p.registry.Get(selected[i].Backend); err != nil {
				var ee *EngineError
				if !errors.As(err, &ee) {
					ee = NewConfigValidationError(err.Error(), err)
				}
				return nil, ee.WithSection(selected[i].ID)
			}
		}
	}

	graph, err := NewDAGBuilder().BuildGraph(selected)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		Order:     graph.Order,
		Sections:  make(map[string]*Section, len(selected)),
		Graph:     graph,
		Settings:  settings,
		CreatedAt: time.Now(),
	}
	for i := range selected {
		plan.Sections[selected[i].ID] = &selected[i]
	}

	return plan, nil
}

// selectSections returns copies of the sections named in only, in declaration
// order, with dependencies on unselected sections dropped. An empty only
// selects everything.
func selectSections(sections []Section, only []string) ([]Section, error) {
	if len(only) == 0 {
		out := make([]Section, len(sections))
		copy(out, sections)
		return out, nil
	}

	known := make(map[string]bool, len(sections))
	for i := range sections {
		known[sections[i].ID] = true
	}

	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		if !known[id] {
			return nil, NewConfigValidationError(fmt.Sprintf("unknown section %q", id), nil)
		}
		wanted[id] = true
	}

	out := make([]Section, 0, len(only))
	for _, s := range sections {
		if !wanted[s.ID] {
			continue
		}
		deps := make([]string, 0, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			if wanted[dep] {
				deps = append(deps, dep)
			}
		}
		s.DependsOn = deps
		out = append(out, s)
	}

	return out, nil
}
