package kiln

import "sync"

// Interception hooks are external callbacks invoked at defined pipeline
// points. A hook implements any subset of the capability interfaces below;
// the container indexes hooks per capability and invokes them in
// registration order.

// PreInstantiationHook may substitute the whole component before the
// standard pipeline runs. Returning a non-nil object short-circuits every
// later phase except the after-init hooks.
type PreInstantiationHook interface {
	BeforeInstantiation(name string, def *MergedDefinition) (any, error)
}

// PostInstantiationHook is invoked right after instantiation and may veto
// population by returning false.
type PostInstantiationHook interface {
	AfterInstantiation(name string, instance any) (bool, error)
}

// PropertiesHook intercepts the configured property values before they are
// applied. Returning nil leaves the values unchanged.
type PropertiesHook interface {
	Properties(name string, instance any, pvs *PropertyValues) (*PropertyValues, error)
}

// DefinitionHook annotates the merged definition once per component, before
// population.
type DefinitionHook interface {
	ProcessDefinition(name string, def *MergedDefinition) error
}

// EarlyReferenceHook may wrap the raw instance exposed to break a circular
// reference. Returning a different object makes the wrapper the canonical
// instance.
type EarlyReferenceHook interface {
	EarlyReference(name string, instance any) (any, error)
}

// InitHook wraps the initialization phase. BeforeInit runs before the named
// initializer methods, AfterInit runs after them. Returning a non-nil object
// replaces the instance.
type InitHook interface {
	BeforeInit(name string, instance any) (any, error)
	AfterInit(name string, instance any) (any, error)
}

// DestructionHook runs side effects before a singleton is destroyed.
// RequiresDestruction lets a hook force destruction registration for
// instances with no Disposable implementation or DestroyMethod.
type DestructionHook interface {
	BeforeDestruction(name string, instance any) error
	RequiresDestruction(instance any) bool
}

// hookIndex is the precomputed per-capability view of the hook list.
type hookIndex struct {
	preInstantiation  []PreInstantiationHook
	postInstantiation []PostInstantiationHook
	properties        []PropertiesHook
	definition        []DefinitionHook
	earlyReference    []EarlyReferenceHook
	init              []InitHook
	destruction       []DestructionHook
}

// hookSet holds the ordered hook list plus a per-capability index that is
// rebuilt lazily whenever the list changes. Published indexes are immutable
// snapshots; in-flight creations keep iterating the index they fetched.
type hookSet struct {
	mu    sync.RWMutex
	hooks []any
	dirty bool
	idx   *hookIndex
}

func newHookSet() *hookSet {
	return &hookSet{idx: &hookIndex{}}
}

// Add appends hooks and invalidates the capability index.
func (s *hookSet) Add(hooks ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hooks...)
	s.dirty = true
}

// Remove deletes a previously added hook and invalidates the index.
func (s *hookSet) Remove(hook any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.hooks {
		if h == hook {
			s.hooks = append(s.hooks[:i], s.hooks[i+1:]...)
			s.dirty = true
			return true
		}
	}
	return false
}

// Len returns the number of registered hooks.
func (s *hookSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hooks)
}

// index returns the per-capability snapshot, rebuilding it into a fresh index
// if the hook list changed since the last call. The returned index is never
// mutated afterwards, so callers may iterate it without holding the lock.
func (s *hookSet) index() *hookIndex {
	s.mu.RLock()
	if !s.dirty {
		idx := s.idx
		s.mu.RUnlock()
		return idx
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		idx := &hookIndex{}
		for _, h := range s.hooks {
			if hook, ok := h.(PreInstantiationHook); ok {
				idx.preInstantiation = append(idx.preInstantiation, hook)
			}
			if hook, ok := h.(PostInstantiationHook); ok {
				idx.postInstantiation = append(idx.postInstantiation, hook)
			}
			if hook, ok := h.(PropertiesHook); ok {
				idx.properties = append(idx.properties, hook)
			}
			if hook, ok := h.(DefinitionHook); ok {
				idx.definition = append(idx.definition, hook)
			}
			if hook, ok := h.(EarlyReferenceHook); ok {
				idx.earlyReference = append(idx.earlyReference, hook)
			}
			if hook, ok := h.(InitHook); ok {
				idx.init = append(idx.init, hook)
			}
			if hook, ok := h.(DestructionHook); ok {
				idx.destruction = append(idx.destruction, hook)
			}
		}
		s.idx = idx
		s.dirty = false
	}
	return s.idx
}
