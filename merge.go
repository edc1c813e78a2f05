package kiln

import (
	"reflect"
	"sync"

	"github.com/objectgraph/kiln/internal/signature"
)

// MergedDefinition is the fully-flattened view of a definition and its
// parent chain. It carries caches that are expensive to recompute: the
// resolved component type, the winning construction signature with its bound
// arguments, and the factory-method return type.
type MergedDefinition struct {
	*Definition

	mu    sync.Mutex
	stale bool

	resolvedType      reflect.Type
	factoryReturnType reflect.Type

	resolvedSignature *signature.Candidate
	resolvedArgs      []any

	// processed guards the one-time merged-definition hooks.
	processed bool

	// probedInstance holds a partial instance created while probing the
	// component's type, reused by the pipeline instead of constructing twice.
	probedInstance any
}

// Stale reports whether the merged definition must be re-merged.
func (md *MergedDefinition) Stale() bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.stale
}

func (md *MergedDefinition) markStale() {
	md.mu.Lock()
	md.stale = true
	md.mu.Unlock()
}

// ResolvedType returns the cached resolved component type, or nil.
func (md *MergedDefinition) ResolvedType() reflect.Type {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.resolvedType
}

// SetResolvedType caches the resolved component type.
func (md *MergedDefinition) SetResolvedType(t reflect.Type) {
	md.mu.Lock()
	md.resolvedType = t
	md.mu.Unlock()
}

// FactoryReturnType returns the cached factory-method return type, or nil.
func (md *MergedDefinition) FactoryReturnType() reflect.Type {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.factoryReturnType
}

// SetFactoryReturnType caches the factory-method return type.
func (md *MergedDefinition) SetFactoryReturnType(t reflect.Type) {
	md.mu.Lock()
	md.factoryReturnType = t
	md.mu.Unlock()
}

// CachedSignature returns the winning construction signature and its bound
// arguments, if previously resolved.
func (md *MergedDefinition) CachedSignature() (*signature.Candidate, []any) {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.resolvedSignature == nil {
		return nil, nil
	}
	args := make([]any, len(md.resolvedArgs))
	copy(args, md.resolvedArgs)
	return md.resolvedSignature, args
}

// CacheSignature stores the winning construction signature and arguments.
func (md *MergedDefinition) CacheSignature(c *signature.Candidate, args []any) {
	md.mu.Lock()
	md.resolvedSignature = c
	md.resolvedArgs = append([]any(nil), args...)
	md.mu.Unlock()
}

// markProcessedOnce returns true exactly once, guarding the one-time
// merged-definition hooks.
func (md *MergedDefinition) markProcessedOnce() bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.processed {
		return false
	}
	md.processed = true
	return true
}

func (md *MergedDefinition) takeProbedInstance() any {
	md.mu.Lock()
	defer md.mu.Unlock()
	v := md.probedInstance
	md.probedInstance = nil
	return v
}

func (md *MergedDefinition) setProbedInstance(v any) {
	md.mu.Lock()
	md.probedInstance = v
	md.mu.Unlock()
}

// typeIdentityUnchanged reports whether the fields that identify the
// component's type are the same in both flattened definitions, which makes
// the expensive type caches safe to forward across an invalidation.
func typeIdentityUnchanged(old, new *Definition) bool {
	return old.Type == new.Type &&
		old.TypeName == new.TypeName &&
		old.FactoryComponent == new.FactoryComponent &&
		old.FactoryMethod == new.FactoryMethod
}

// Merger flattens parent/child definition chains into cached merged
// definitions. Reads take the read lock; the cache is invalidated explicitly
// when a registered definition changes.
type Merger struct {
	source DefinitionSource

	mu              sync.RWMutex
	merged          map[string]*MergedDefinition
	creationStarted map[string]struct{}
}

// NewMerger creates a merger over a definition source.
func NewMerger(source DefinitionSource) *Merger {
	return &Merger{
		source:          source,
		merged:          make(map[string]*MergedDefinition),
		creationStarted: make(map[string]struct{}),
	}
}

// Merged returns the merged definition for name, building and caching it on
// first use or after invalidation.
func (m *Merger) Merged(name string) (*MergedDefinition, error) {
	m.mu.RLock()
	cached, ok := m.merged[name]
	m.mu.RUnlock()
	if ok && !cached.Stale() {
		return cached, nil
	}

	def, err := m.source.Definition(name)
	if err != nil {
		return nil, err
	}

	return m.mergeFor(name, def, nil)
}

// MergedFor flattens def under name. containing, when non-nil, is the merged
// definition of the component this definition is nested inside; a singleton
// nested inside a non-singleton container inherits the container's scope.
func (m *Merger) MergedFor(name string, def *Definition, containing *MergedDefinition) (*MergedDefinition, error) {
	return m.mergeFor(name, def, containing)
}

func (m *Merger) mergeFor(name string, def *Definition, containing *MergedDefinition) (*MergedDefinition, error) {
	if def == nil {
		return nil, DefinitionStoreError{Name: name, Cause: ErrDefinitionNil}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock; another goroutine may have re-merged.
	if cached, ok := m.merged[name]; ok && !cached.Stale() && containing == nil {
		return cached, nil
	}

	flattened, err := m.flattenLocked(name, def, make(map[string]struct{}))
	if err != nil {
		return nil, err
	}

	if flattened.Scope == "" {
		flattened.Scope = ScopeSingleton
	}
	if containing != nil && !containing.IsSingleton() && flattened.IsSingleton() {
		flattened.Scope = containing.Scope
	}

	md := &MergedDefinition{Definition: flattened}

	// Forward expensive type caches across an invalidation when the
	// type-identifying fields did not change.
	if old, ok := m.merged[name]; ok && old.Stale() && typeIdentityUnchanged(old.Definition, flattened) {
		old.mu.Lock()
		md.resolvedType = old.resolvedType
		md.factoryReturnType = old.factoryReturnType
		old.mu.Unlock()
	}

	if containing == nil {
		m.merged[name] = md
	}
	return md, nil
}

// flattenLocked resolves the parent chain recursively and overlays child
// fields on parent fields. visiting guards against parent cycles.
func (m *Merger) flattenLocked(name string, def *Definition, visiting map[string]struct{}) (*Definition, error) {
	if def.Parent == "" {
		return def.Clone(), nil
	}
	if def.Parent == name || def.Parent == def.Name {
		return nil, DefinitionStoreError{
			Name:     name,
			Resource: def.ResourceDescription,
			Cause:    ErrSelfParent,
		}
	}
	if _, cycling := visiting[name]; cycling {
		return nil, DefinitionStoreError{
			Name:     name,
			Resource: def.ResourceDescription,
			Cause:    ErrSelfParent,
		}
	}
	visiting[name] = struct{}{}

	parent, err := m.source.Definition(def.Parent)
	if err != nil {
		return nil, DefinitionStoreError{
			Name:     name,
			Resource: def.ResourceDescription,
			Cause:    err,
		}
	}

	flattened, err := m.flattenLocked(def.Parent, parent, visiting)
	if err != nil {
		return nil, err
	}

	flattened.overlayFrom(def)
	return flattened, nil
}

// Invalidate marks the merged definition for name stale, forcing a re-merge
// on next access. The resolved-type caches survive the invalidation when the
// new merge has the same type identity.
func (m *Merger) Invalidate(name string) {
	m.mu.RLock()
	md, ok := m.merged[name]
	m.mu.RUnlock()
	if ok {
		md.markStale()
	}
}

// MarkCreationStarted freezes the merge result for name: it will no longer
// be invalidated by ClearCache, only by an explicit Invalidate.
func (m *Merger) MarkCreationStarted(name string) {
	m.mu.Lock()
	m.creationStarted[name] = struct{}{}
	m.mu.Unlock()
}

// CreationStarted reports whether creation has begun for name.
func (m *Merger) CreationStarted(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.creationStarted[name]
	return ok
}

// ClearCache marks every merged definition stale except those whose
// component creation has already started.
func (m *Merger) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, md := range m.merged {
		if _, started := m.creationStarted[name]; !started {
			md.markStale()
		}
	}
}
