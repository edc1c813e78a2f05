package kiln

import (
	"sync"
)

// DefinitionSource supplies raw component definitions. The container never
// parses configuration itself; it consumes definitions, parent links, and
// existence checks from a source.
type DefinitionSource interface {
	// Definition returns the raw definition registered under name.
	Definition(name string) (*Definition, error)

	// Contains reports whether a definition exists for name.
	Contains(name string) bool

	// Names returns all registered names in registration order.
	Names() []string
}

// DefinitionMap is the in-memory DefinitionSource. It is safe for concurrent
// use; definitions themselves stay mutable until creation starts for their
// name.
type DefinitionMap struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	order  []string
	frozen bool
}

// NewDefinitionMap creates an empty definition map.
func NewDefinitionMap() *DefinitionMap {
	return &DefinitionMap{
		defs: make(map[string]*Definition),
	}
}

// Register adds a definition under its name. Registering a duplicate name is
// a definition-store error.
func (m *DefinitionMap) Register(def *Definition) error {
	if def == nil {
		return DefinitionStoreError{Cause: ErrDefinitionNil}
	}
	if def.Name == "" {
		return DefinitionStoreError{Cause: ErrComponentNameEmpty}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return DefinitionStoreError{Name: def.Name, Cause: ErrSourceFrozen}
	}
	if _, exists := m.defs[def.Name]; exists {
		return DefinitionStoreError{
			Name:     def.Name,
			Resource: def.ResourceDescription,
			Cause:    ErrAlreadyRegistered,
		}
	}
	m.defs[def.Name] = def
	m.order = append(m.order, def.Name)
	return nil
}

// Replace registers a definition, overwriting any existing one of the same
// name. The caller is responsible for invalidating merged state.
func (m *DefinitionMap) Replace(def *Definition) error {
	if def == nil {
		return DefinitionStoreError{Cause: ErrDefinitionNil}
	}
	if def.Name == "" {
		return DefinitionStoreError{Cause: ErrComponentNameEmpty}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return DefinitionStoreError{Name: def.Name, Cause: ErrSourceFrozen}
	}
	if _, exists := m.defs[def.Name]; !exists {
		m.order = append(m.order, def.Name)
	}
	m.defs[def.Name] = def
	return nil
}

// Remove deletes the definition for name. Removal is a no-op on a frozen map.
func (m *DefinitionMap) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return
	}
	if _, exists := m.defs[name]; !exists {
		return
	}
	delete(m.defs, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Definition implements DefinitionSource.
func (m *DefinitionMap) Definition(name string) (*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.defs[name]
	if !ok {
		return nil, NoSuchComponentError{Name: name}
	}
	return def, nil
}

// Contains implements DefinitionSource.
func (m *DefinitionMap) Contains(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.defs[name]
	return ok
}

// Freeze makes the map read-only. Registration, replacement, and removal are
// rejected afterwards; the definitions themselves are not affected.
func (m *DefinitionMap) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Frozen reports whether the map has been frozen.
func (m *DefinitionMap) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Names implements DefinitionSource.
func (m *DefinitionMap) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
