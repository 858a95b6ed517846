package engine

import (
	"fmt"
	"sort"
	"strings"
)

// nodeColor is the DFS visitation state used for cycle detection.
type nodeColor int

const (
	colorWhite nodeColor = iota // unvisited
	colorGrey                   // in progress
	colorBlack                  // done
)

// Graph is the dependency graph of a run. It is built fresh per run and is
// read-only once built.
type Graph struct {
	// Nodes maps section IDs to graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges are the depends_on relationships, from dependent to dependency.
	Edges []GraphEdge `json:"edges"`

	// Roots are the sections without dependencies, in declaration order.
	Roots []string `json:"roots"`

	// Order is the total execution order.
	Order []string `json:"order"`

	// Depth is the number of dependency levels.
	Depth int `json:"depth"`
}

// GraphNode is a section in the dependency graph.
type GraphNode struct {
	ID string `json:"id"`

	// Index is the declaration position of the section.
	Index int `json:"index"`

	// Level is the length of the longest dependency chain below this node.
	Level int `json:"level"`

	// Dependencies are the sections this one depends on.
	Dependencies []string `json:"dependencies"`

	// Dependents are the sections depending on this one.
	Dependents []string `json:"dependents"`
}

// GraphEdge is a depends_on relationship.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HasDependents returns true if some section depends on id.
func (g *Graph) HasDependents(id string) bool {
	n, ok := g.Nodes[id]
	return ok && len(n.Dependents) > 0
}

// DAGBuilder builds the dependency graph from sections and computes a stable
// topological order.
type DAGBuilder struct {
	// sections maps section IDs to their sections
	sections map[string]*Section

	// declared holds section IDs in declaration order
	declared []string

	// index maps section IDs to their declaration position
	index map[string]int

	// dependencies maps a section to the sections it depends on
	dependencies map[string][]string

	// dependents maps a section to the sections depending on it
	dependents map[string][]string

	// inDegree counts unresolved dependencies per section
	inDegree map[string]int

	// order is the computed execution order
	order []string

	// levels maps section IDs to their dependency level
	levels map[string]int
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		sections:     make(map[string]*Section),
		declared:     make([]string, 0),
		index:        make(map[string]int),
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
		inDegree:     make(map[string]int),
		levels:       make(map[string]int),
	}
}

// BuildGraph constructs the dependency graph. It validates references,
// detects cycles, and computes the execution order.
func (b *DAGBuilder) BuildGraph(sections []Section) (*Graph, error) {
	if len(sections) == 0 {
		return &Graph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Order: make([]string, 0),
		}, nil
	}

	if err := b.initialize(sections); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeOrder(); err != nil {
		return nil, err
	}

	return b.buildGraph(), nil
}

// initialize indexes sections and builds adjacency lists.
func (b *DAGBuilder) initialize(sections []Section) error {
	if err := ValidateSections(sections); err != nil {
		return err
	}

	for i := range sections {
		s := &sections[i]
		b.sections[s.ID] = s
		b.declared = append(b.declared, s.ID)
		b.index[s.ID] = i
		b.dependencies[s.ID] = make([]string, 0)
		b.dependents[s.ID] = make([]string, 0)
		b.inDegree[s.ID] = 0
	}

	for _, id := range b.declared {
		seen := make(map[string]bool)
		for _, dep := range b.sections[id].DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true

			b.dependencies[id] = append(b.dependencies[id], dep)
			b.dependents[dep] = append(b.dependents[dep], id)
			b.inDegree[id]++
		}
	}

	return nil
}

// detectCycles runs a three-color depth-first traversal along depends_on
// edges. Reaching a grey node closes a cycle.
func (b *DAGBuilder) detectCycles() error {
	colors := make(map[string]nodeColor, len(b.declared))
	path := make([]string, 0, len(b.declared))

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = colorGrey
		path = append(path, id)

		for _, dep := range b.dependencies[id] {
			switch colors[dep] {
			case colorGrey:
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle := append([]string{}, path[start:]...)
				return append(cycle, dep)
			case colorWhite:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		colors[id] = colorBlack
		return nil
	}

	for _, id := range b.declared {
		if colors[id] != colorWhite {
			continue
		}
		if cycle := visit(id); cycle != nil {
			return NewCyclicDependencyError(cycle)
		}
	}

	return nil
}

// computeOrder repeatedly removes the zero in-degree section that was
// declared first, so the order is stable for an unchanged input.
func (b *DAGBuilder) computeOrder() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	ready := make([]string, 0)
	for _, id := range b.declared {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	b.order = make([]string, 0, len(b.declared))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		b.order = append(b.order, id)

		level := 0
		for _, dep := range b.dependencies[id] {
			if b.levels[dep]+1 > level {
				level = b.levels[dep] + 1
			}
		}
		b.levels[id] = level

		for _, dependent := range b.dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = b.insertByIndex(ready, dependent)
			}
		}
	}

	if len(b.order) != len(b.declared) {
		return NewCyclicDependencyError(b.unordered())
	}

	return nil
}

// insertByIndex inserts id into ready keeping declaration order.
func (b *DAGBuilder) insertByIndex(ready []string, id string) []string {
	pos := sort.Search(len(ready), func(i int) bool {
		return b.index[ready[i]] > b.index[id]
	})
	ready = append(ready, "")
	copy(ready[pos+1:], ready[pos:])
	ready[pos] = id
	return ready
}

// unordered returns the sections left out of the order.
func (b *DAGBuilder) unordered() []string {
	done := make(map[string]bool, len(b.order))
	for _, id := range b.order {
		done[id] = true
	}
	out := make([]string, 0)
	for _, id := range b.declared {
		if !done[id] {
			out = append(out, id)
		}
	}
	return out
}

// buildGraph creates the final Graph structure.
func (b *DAGBuilder) buildGraph() *Graph {
	graph := &Graph{
		Nodes: make(map[string]*GraphNode, len(b.declared)),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Order: append([]string{}, b.order...),
	}

	for _, id := range b.declared {
		level := b.levels[id]
		graph.Nodes[id] = &GraphNode{
			ID:           id,
			Index:        b.index[id],
			Level:        level,
			Dependencies: b.dependencies[id],
			Dependents:   b.dependents[id],
		}
		if level+1 > graph.Depth {
			graph.Depth = level + 1
		}
		if len(b.dependencies[id]) == 0 {
			graph.Roots = append(graph.Roots, id)
		}
		for _, dep := range b.dependencies[id] {
			graph.Edges = append(graph.Edges, GraphEdge{From: id, To: dep})
		}
	}

	return graph
}

// ToDOT generates a DOT representation of the graph for visualization.
// The output can be rendered with Graphviz tools.
func (g *Graph) ToDOT(sections map[string]*Section) string {
	var sb strings.Builder

	sb.WriteString("digraph Sections {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	byLevel := make([][]string, g.Depth)
	for _, id := range g.Order {
		n := g.Nodes[id]
		byLevel[n.Level] = append(byLevel[n.Level], id)
	}

	for level, ids := range byLevel {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			label := id
			if s, ok := sections[id]; ok {
				label = fmt.Sprintf("%s\\n%s (%d)", id, s.Backend, len(s.Items))
			}
			fmt.Fprintf(&sb, "    %q [label=\"%s\"];\n", id, label)
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "  %q -> %q;\n", e.From, e.To)
	}

	sb.WriteString("}\n")
	return sb.String()
}
