package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Backend is the capability contract every package-manager backend implements.
// Every call is an independent external-process invocation; implementations
// hold no per-run state.
type Backend interface {
	// Name returns the backend identifier (e.g., "brew", "npm").
	Name() string

	// RuntimeAvailable reports whether the underlying tool is callable.
	RuntimeAvailable(ctx context.Context) bool

	// ListInstalled returns the currently installed item identifiers.
	ListInstalled(ctx context.Context) (ItemSet, error)

	// IsInstalled reports whether a single item is installed.
	// Use IsInstalledVia for the default ListInstalled-based implementation.
	IsInstalled(ctx context.Context, item string) (bool, error)

	// Install installs one item. It must be safe to call repeatedly.
	Install(ctx context.Context, item string) error
}

// BatchInstaller is implemented by backends whose tool installs many items in
// one invocation. If the batch fails the engine installs the items one at a
// time through Install, so each failure belongs to its item.
type BatchInstaller interface {
	InstallBatch(ctx context.Context, items []string) error
}

// RuntimeInstaller is implemented by backends that can install their own
// runtime (e.g., npm installs node through brew).
type RuntimeInstaller interface {
	// RuntimeName is the human-readable runtime name (e.g., "node").
	RuntimeName() string

	// InstallRuntime installs the runtime.
	InstallRuntime(ctx context.Context) error
}

// ItemSet is a set of item identifiers.
type ItemSet map[string]struct{}

// NewItemSet builds a set from the given items.
func NewItemSet(items ...string) ItemSet {
	s := make(ItemSet, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Add adds an item to the set.
func (s ItemSet) Add(item string) {
	s[item] = struct{}{}
}

// Has returns true if the item is in the set.
func (s ItemSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the set members in lexical order.
func (s ItemSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// IsInstalledVia is the default IsInstalled implementation: one ListInstalled
// call and a membership test.
func IsInstalledVia(ctx context.Context, b Backend, item string) (bool, error) {
	installed, err := b.ListInstalled(ctx)
	if err != nil {
		return false, err
	}
	return installed.Has(item), nil
}

// Registry maps backend identifiers to backend implementations.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates a registry holding the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{
		backends: make(map[string]Backend),
	}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, NewConfigValidationError(fmt.Sprintf("unknown backend %q", name), nil)
	}
	return b, nil
}

// Names returns the registered backend identifiers in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
