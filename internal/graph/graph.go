// Package graph tracks directed dependency edges between named components.
// It keeps the "depends on" and "is a dependent of" maps mutually consistent
// and answers cycle-safe reachability queries used for depends-on cycle
// detection and destruction ordering.
package graph

import (
	"sort"
	"sync"
)

// Registry holds the dependency edges for one container.
type Registry struct {
	mu sync.RWMutex

	// dependents[name] = components that depend on name
	dependents map[string]map[string]struct{}

	// dependencies[name] = components that name depends on
	dependencies map[string]map[string]struct{}

	// insertion order of dependents per name, for deterministic iteration
	dependentOrder map[string][]string
}

// New creates an empty edge registry.
func New() *Registry {
	return &Registry{
		dependents:     make(map[string]map[string]struct{}),
		dependencies:   make(map[string]map[string]struct{}),
		dependentOrder: make(map[string][]string),
	}
}

// Register records that dependent depends on name. Both directed maps are
// updated together; duplicate registrations are ignored.
func (r *Registry) Register(name, dependent string) {
	if name == dependent {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deps, ok := r.dependents[name]
	if !ok {
		deps = make(map[string]struct{})
		r.dependents[name] = deps
	}
	if _, exists := deps[dependent]; exists {
		return
	}
	deps[dependent] = struct{}{}
	r.dependentOrder[name] = append(r.dependentOrder[name], dependent)

	fwd, ok := r.dependencies[dependent]
	if !ok {
		fwd = make(map[string]struct{})
		r.dependencies[dependent] = fwd
	}
	fwd[name] = struct{}{}
}

// DependentsOf returns the components depending on name, in registration
// order.
func (r *Registry) DependentsOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := r.dependentOrder[name]
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// DependenciesOf returns the components name depends on, sorted for
// determinism.
func (r *Registry) DependenciesOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := r.dependencies[name]
	out := make([]string, 0, len(deps))
	for dep := range deps {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// HasDependents reports whether any component depends on name.
func (r *Registry) HasDependents(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dependents[name]) > 0
}

// IsDependent reports whether dependent transitively depends on name.
// The walk is depth-first and cycle-safe.
func (r *Registry) IsDependent(name, dependent string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isDependentLocked(name, dependent, make(map[string]struct{}))
}

func (r *Registry) isDependentLocked(name, dependent string, seen map[string]struct{}) bool {
	if _, visited := seen[name]; visited {
		return false
	}
	seen[name] = struct{}{}

	deps, ok := r.dependents[name]
	if !ok {
		return false
	}
	if _, direct := deps[dependent]; direct {
		return true
	}
	for transitive := range deps {
		if r.isDependentLocked(transitive, dependent, seen) {
			return true
		}
	}
	return false
}

// Path returns a dependency chain from name to dependent, if one exists,
// for cycle error reporting. The chain starts at name and ends at dependent.
func (r *Registry) Path(name, dependent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var walk func(current string, seen map[string]struct{}) []string
	walk = func(current string, seen map[string]struct{}) []string {
		if _, visited := seen[current]; visited {
			return nil
		}
		seen[current] = struct{}{}

		if current == dependent {
			return []string{current}
		}
		for next := range r.dependents[current] {
			if tail := walk(next, seen); tail != nil {
				return append([]string{current}, tail...)
			}
		}
		return nil
	}

	return walk(name, make(map[string]struct{}))
}

// Remove deletes every edge touching name from both maps.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for dependent := range r.dependents[name] {
		delete(r.dependencies[dependent], name)
	}
	delete(r.dependents, name)
	delete(r.dependentOrder, name)

	for dep := range r.dependencies[name] {
		delete(r.dependents[dep], name)
		order := r.dependentOrder[dep]
		for i, d := range order {
			if d == name {
				r.dependentOrder[dep] = append(order[:i], order[i+1:]...)
				break
			}
		}
	}
	delete(r.dependencies, name)
}

// Clear removes all edges.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dependents = make(map[string]map[string]struct{})
	r.dependencies = make(map[string]map[string]struct{})
	r.dependentOrder = make(map[string][]string)
}

// Size returns the number of components with at least one edge.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make(map[string]struct{}, len(r.dependents)+len(r.dependencies))
	for name := range r.dependents {
		names[name] = struct{}{}
	}
	for name := range r.dependencies {
		names[name] = struct{}{}
	}
	return len(names)
}
