package kiln

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/objectgraph/kiln/internal/graph"
)

// SingletonRegistry is the tiered singleton cache: finished instances, early
// references exposed to break cycles, and one-shot accessors that realize an
// early reference on first observation. One exclusive lock guards slot-state
// transitions; finished instances are additionally mirrored in a lock-free
// map for the fast path.
//
// In strict mode (the default) the lock is held across the entire creation
// function, so concurrent GetOrCreate calls for any name serialize and each
// creator runs at most once. The lenient mode releases the lock around the
// creator, letting independent components build in parallel at the cost of a
// bounded duplicate-creation risk resolved first-registration-wins.
type SingletonRegistry struct {
	mu   sync.Mutex
	cond *sync.Cond

	fast sync.Map // name -> finished instance, lock-free reads

	singletons map[string]any
	early      map[string]any
	accessors  map[string]func() (any, error)

	inCreation map[string]struct{}

	// waitingOn[creatingName] = name that creation is blocked on (lenient
	// mode only); walked for transitive wait-cycle detection.
	waitingOn map[string]string

	callbacks map[string][]func(any)

	registrationOrder []string

	disposables   map[string]Disposable
	disposalOrder []string

	contained map[string][]string

	deps *graph.Registry

	lenient    bool
	destroying bool
	logger     zerolog.Logger

	created   atomic.Int64
	destroyed atomic.Int64
}

// NewSingletonRegistry creates an empty registry. lenient enables the
// reduced-contention creation path described on the type.
func NewSingletonRegistry(lenient bool, logger zerolog.Logger) *SingletonRegistry {
	r := &SingletonRegistry{
		singletons: make(map[string]any),
		early:      make(map[string]any),
		accessors:  make(map[string]func() (any, error)),
		inCreation: make(map[string]struct{}),
		waitingOn:  make(map[string]string),
		callbacks:  make(map[string][]func(any)),
		disposables: make(map[string]Disposable),
		contained:   make(map[string][]string),
		deps:        graph.New(),
		lenient:     lenient,
		logger:      logger,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// lock acquires the registry lock unless this context already holds it.
func (r *SingletonRegistry) lock(ctx *ResolveContext) {
	if ctx == nil {
		r.mu.Lock()
		return
	}
	if ctx.lockDepth == 0 {
		r.mu.Lock()
	}
	ctx.lockDepth++
}

// unlock releases the registry lock when the outermost frame exits.
func (r *SingletonRegistry) unlock(ctx *ResolveContext) {
	if ctx == nil {
		r.mu.Unlock()
		return
	}
	ctx.lockDepth--
	if ctx.lockDepth == 0 {
		r.mu.Unlock()
	}
}

// Get returns the instance for name from the tiered cache: finished, then
// early-exposed, then — when allowEarly is set — by realizing the one-shot
// early accessor under the lock.
func (r *SingletonRegistry) Get(ctx *ResolveContext, name string, allowEarly bool) (any, bool, error) {
	if v, ok := r.fast.Load(name); ok {
		return v, true, nil
	}

	r.lock(ctx)
	defer r.unlock(ctx)

	if v, ok := r.singletons[name]; ok {
		return v, true, nil
	}
	if v, ok := r.early[name]; ok {
		return v, true, nil
	}
	if !allowEarly {
		return nil, false, nil
	}
	accessor, ok := r.accessors[name]
	if !ok {
		return nil, false, nil
	}

	v, err := accessor()
	if err != nil {
		return nil, false, err
	}
	r.early[name] = v
	delete(r.accessors, name)
	return v, true, nil
}

// EarlyInstance returns the realized early reference for name, if any,
// without realizing the accessor.
func (r *SingletonRegistry) EarlyInstance(ctx *ResolveContext, name string) (any, bool) {
	r.lock(ctx)
	defer r.unlock(ctx)
	v, ok := r.early[name]
	return v, ok
}

// AddEarlyAccessor registers the one-shot accessor exposing a mid-population
// instance. Ignored once the singleton has finished.
func (r *SingletonRegistry) AddEarlyAccessor(ctx *ResolveContext, name string, accessor func() (any, error)) {
	r.lock(ctx)
	defer r.unlock(ctx)
	if _, done := r.singletons[name]; done {
		return
	}
	r.accessors[name] = accessor
}

// InCreation reports whether name is currently marked as creating.
func (r *SingletonRegistry) InCreation(ctx *ResolveContext, name string) bool {
	r.lock(ctx)
	defer r.unlock(ctx)
	_, ok := r.inCreation[name]
	return ok
}

// GetOrCreate returns the finished singleton for name, creating it with
// creator if absent. The creator is invoked at most once per name in strict
// mode; re-entrant same-name creation on one call path is reported as a
// CurrentlyInCreationError.
func (r *SingletonRegistry) GetOrCreate(ctx *ResolveContext, name string, creator func() (any, error)) (any, error) {
	if v, ok := r.fast.Load(name); ok {
		return v, nil
	}
	if ctx == nil {
		ctx = NewResolveContext()
	}

	r.lock(ctx)
	defer r.unlock(ctx)

	if v, ok := r.singletons[name]; ok {
		return v, nil
	}
	if r.destroying {
		return nil, CreationError{
			Name:  name,
			Phase: "singleton acquisition",
			Cause: ErrContainerClosed,
		}
	}
	if ctx.InChain(name) {
		return nil, CurrentlyInCreationError{Name: name, Path: ctx.Chain()}
	}

	if _, creating := r.inCreation[name]; creating {
		if !r.lenient {
			// The lock is held across creation in strict mode, so an
			// in-creation mark here means a re-entrant cycle through
			// collaborator code rather than another goroutine.
			return nil, CurrentlyInCreationError{Name: name, Path: ctx.Chain()}
		}
		if err := r.awaitCreationLocked(ctx, name); err != nil {
			return nil, err
		}
		if v, ok := r.singletons[name]; ok {
			return v, nil
		}
		// The other creation failed; fall through and try ourselves.
	}

	r.inCreation[name] = struct{}{}
	ctx.push(name)

	var instance any
	var err error
	if r.lenient {
		depth := ctx.lockDepth
		ctx.lockDepth = 0
		r.mu.Unlock()

		instance, err = creator()

		r.mu.Lock()
		ctx.lockDepth = depth
	} else {
		instance, err = creator()
	}

	ctx.pop()
	delete(r.inCreation, name)

	if err != nil {
		// Discard any partial early exposure.
		delete(r.early, name)
		delete(r.accessors, name)
		r.cond.Broadcast()
		return nil, err
	}

	if existing, ok := r.singletons[name]; ok {
		// Lenient duplicate creation: the first registration wins and the
		// later product is discarded.
		r.logger.Warn().Str("component", name).
			Msg("duplicate parallel creation resolved; discarding later instance")
		r.cond.Broadcast()
		return existing, nil
	}

	r.registerLocked(name, instance)
	r.cond.Broadcast()
	return instance, nil
}

// awaitCreationLocked blocks until another goroutine finishes creating name,
// failing fast when the wait would form a transitive cycle.
func (r *SingletonRegistry) awaitCreationLocked(ctx *ResolveContext, name string) error {
	waiter := ctx.top()
	if waiter != "" {
		seen := make(map[string]struct{})
		cur := name
		for {
			if _, visited := seen[cur]; visited {
				break
			}
			seen[cur] = struct{}{}
			next, ok := r.waitingOn[cur]
			if !ok {
				break
			}
			if ctx.InChain(next) {
				return CurrentlyInCreationError{Name: name, Path: append(ctx.Chain(), name)}
			}
			cur = next
		}
		r.waitingOn[waiter] = name
		defer delete(r.waitingOn, waiter)
	}

	for {
		if _, still := r.inCreation[name]; !still {
			return nil
		}
		r.cond.Wait()
	}
}

// registerLocked finishes a singleton: caches the instance, clears the early
// tier, and fires any one-shot post-registration callbacks.
func (r *SingletonRegistry) registerLocked(name string, instance any) {
	r.singletons[name] = instance
	r.fast.Store(name, instance)
	delete(r.early, name)
	delete(r.accessors, name)
	r.registrationOrder = append(r.registrationOrder, name)
	r.created.Add(1)

	if cbs, ok := r.callbacks[name]; ok {
		delete(r.callbacks, name)
		for _, cb := range cbs {
			cb(instance)
		}
	}
}

// RegisterSingleton registers an externally created instance under name.
func (r *SingletonRegistry) RegisterSingleton(name string, instance any) error {
	if name == "" {
		return ErrComponentNameEmpty
	}
	if instance == nil {
		return ErrComponentNil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.singletons[name]; exists {
		return DefinitionStoreError{Name: name, Cause: ErrAlreadyRegistered}
	}
	r.registerLocked(name, instance)
	return nil
}

// OnRegistered registers a one-shot callback fired when name finishes
// creation. An already-finished singleton fires the callback immediately.
func (r *SingletonRegistry) OnRegistered(name string, fn func(any)) {
	r.mu.Lock()
	if v, ok := r.singletons[name]; ok {
		r.mu.Unlock()
		fn(v)
		return
	}
	r.callbacks[name] = append(r.callbacks[name], fn)
	r.mu.Unlock()
}

// Contains reports whether a finished singleton exists for name.
func (r *SingletonRegistry) Contains(name string) bool {
	_, ok := r.fast.Load(name)
	return ok
}

// Names returns the finished singleton names in registration order. ctx is
// required when called from inside a creation function.
func (r *SingletonRegistry) Names(ctx *ResolveContext) []string {
	r.lock(ctx)
	defer r.unlock(ctx)
	out := make([]string, len(r.registrationOrder))
	copy(out, r.registrationOrder)
	return out
}

// RegisterDisposable captures the destruction behavior for a finished
// singleton. Registered only after successful creation.
func (r *SingletonRegistry) RegisterDisposable(ctx *ResolveContext, name string, d Disposable) {
	r.lock(ctx)
	defer r.unlock(ctx)
	if _, exists := r.disposables[name]; !exists {
		r.disposalOrder = append(r.disposalOrder, name)
	}
	r.disposables[name] = d
}

// RegisterContained records that contained lives inside containing and is
// destroyed right after it. ctx is required when called from inside a
// creation function.
func (r *SingletonRegistry) RegisterContained(ctx *ResolveContext, contained, containing string) {
	r.lock(ctx)
	defer r.unlock(ctx)
	r.contained[containing] = append(r.contained[containing], contained)
}

// RegisterDependent records that dependent depends on name, for depends-on
// cycle detection and destruction ordering.
func (r *SingletonRegistry) RegisterDependent(name, dependent string) {
	r.deps.Register(name, dependent)
}

// DependentsOf returns the registered dependents of name.
func (r *SingletonRegistry) DependentsOf(name string) []string {
	return r.deps.DependentsOf(name)
}

// DependenciesOf returns the registered dependencies of name.
func (r *SingletonRegistry) DependenciesOf(name string) []string {
	return r.deps.DependenciesOf(name)
}

// IsDependentOn reports whether dependent transitively depends on name.
func (r *SingletonRegistry) IsDependentOn(name, dependent string) bool {
	return r.deps.IsDependent(name, dependent)
}

// DestroySingleton destroys the named singleton: dependents first, then the
// instance, then contained components. Destruction errors are logged and
// swallowed. Safe to call for unknown names.
func (r *SingletonRegistry) DestroySingleton(name string) {
	r.mu.Lock()
	r.removeSingletonLocked(name)
	d := r.disposables[name]
	delete(r.disposables, name)
	containedNames := r.contained[name]
	delete(r.contained, name)
	r.mu.Unlock()

	// Dependents strictly before the instance itself.
	for _, dependent := range r.deps.DependentsOf(name) {
		r.DestroySingleton(dependent)
	}

	if d != nil {
		if err := d.Close(); err != nil {
			r.logger.Error().Err(err).Str("component", name).
				Msg("destruction failed; continuing")
		}
		r.destroyed.Add(1)
	}

	for _, contained := range containedNames {
		r.DestroySingleton(contained)
	}

	r.deps.Remove(name)
}

func (r *SingletonRegistry) removeSingletonLocked(name string) {
	delete(r.singletons, name)
	delete(r.early, name)
	delete(r.accessors, name)
	r.fast.Delete(name)
}

// DestroyAll destroys every registered singleton in reverse registration
// order. Idempotent; never returns an error — individual failures are
// logged. Each disposal runs outside the main lock so disposal logic may
// still look up other components.
func (r *SingletonRegistry) DestroyAll() {
	r.mu.Lock()
	if r.destroying {
		r.mu.Unlock()
		return
	}
	r.destroying = true
	order := make([]string, len(r.disposalOrder))
	copy(order, r.disposalOrder)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		r.DestroySingleton(order[i])
	}

	r.mu.Lock()
	r.singletons = make(map[string]any)
	r.early = make(map[string]any)
	r.accessors = make(map[string]func() (any, error))
	r.disposables = make(map[string]Disposable)
	r.disposalOrder = nil
	r.registrationOrder = nil
	r.contained = make(map[string][]string)
	r.callbacks = make(map[string][]func(any))
	r.destroying = false
	r.mu.Unlock()

	r.fast.Range(func(key, _ any) bool {
		r.fast.Delete(key)
		return true
	})
	r.deps.Clear()
}

// Stats is a point-in-time snapshot of registry counters.
type Stats struct {
	Created    int64
	Destroyed  int64
	InCreation int
	Registered int
}

// Statistics returns a snapshot of the registry counters.
func (r *SingletonRegistry) Statistics() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Created:    r.created.Load(),
		Destroyed:  r.destroyed.Load(),
		InCreation: len(r.inCreation),
		Registered: len(r.singletons),
	}
}
