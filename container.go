package kiln

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Container is the object-graph construction engine: it turns registered
// definitions into fully-initialized component instances, caching singletons
// and building prototypes per request.
//
// All methods are safe for concurrent use.
type Container struct {
	id     string
	source DefinitionSource

	merger     *Merger
	singletons *SingletonRegistry
	products   *productCache
	resolver   *ctorResolver
	pipeline   *pipeline
	hooks      *hookSet

	values   ValueResolver
	deps     DependencyResolver
	strategy InstantiationStrategy

	logger zerolog.Logger

	allowCircular     bool
	allowRawInjection bool
	lenient           bool
	strict            bool

	closed atomic.Bool
}

// New creates a container over a definition source.
func New(source DefinitionSource, opts ...Option) *Container {
	if source == nil {
		source = NewDefinitionMap()
	}

	c := &Container{
		id:            uuid.NewString(),
		source:        source,
		hooks:         newHookSet(),
		products:      newProductCache(),
		strategy:      reflectStrategy{},
		logger:        zerolog.Nop(),
		allowCircular: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.merger = NewMerger(source)
	c.singletons = NewSingletonRegistry(c.lenient, c.logger)
	c.resolver = &ctorResolver{c: c}
	c.pipeline = &pipeline{c: c}
	if c.values == nil {
		c.values = &defaultValueResolver{c: c}
	}
	if c.deps == nil {
		c.deps = &typeResolver{c: c}
	}
	return c
}

// ID returns the container's unique identifier.
func (c *Container) ID() string {
	return c.id
}

// Get returns the component registered under name, creating it if needed.
// Prefixing the name with "&" returns a factory component itself rather
// than the object it produces.
func (c *Container) Get(name string) (any, error) {
	if name == "" {
		return nil, ErrComponentNameEmpty
	}
	return c.get(NewResolveContext(), name, nil)
}

// GetWithArgs is Get with explicit positional constructor arguments. The
// arguments bypass both the configured constructor arguments and the cached
// signature; they cannot apply to a singleton that already exists.
func (c *Container) GetWithArgs(name string, args ...any) (any, error) {
	if name == "" {
		return nil, ErrComponentNameEmpty
	}
	if args == nil {
		args = []any{}
	}
	return c.get(NewResolveContext(), name, args)
}

// GetAs returns the component registered under name constrained to the
// required type. Factory components produce for the required type when they
// can; plain components are type-checked.
func (c *Container) GetAs(name string, required reflect.Type) (any, error) {
	if name == "" {
		return nil, ErrComponentNameEmpty
	}
	ctx := NewResolveContext()

	instance, md, canonical, deref, err := c.getRaw(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if !deref {
		if factory, ok := instance.(ObjectFactory); ok {
			instance, err = c.typedProductFor(ctx, canonical, factory, md, required)
			if err != nil {
				return nil, err
			}
			return instance, nil
		}
	}

	if required != nil && instance != nil {
		if t := reflect.TypeOf(instance); !assignableAs(t, required) {
			return nil, TypeMismatchError{Expected: required, Actual: t, Context: "required type"}
		}
	}
	return instance, nil
}

// get resolves a component on an existing resolve context. It is the
// re-entrant entry point used by collaborators during creation.
func (c *Container) get(ctx *ResolveContext, name string, explicit []any) (any, error) {
	instance, md, canonical, deref, err := c.getRaw(ctx, name, explicit)
	if err != nil {
		return nil, err
	}
	if deref {
		return instance, nil
	}
	if factory, ok := instance.(ObjectFactory); ok {
		return c.productFor(ctx, canonical, factory, md)
	}
	return instance, nil
}

// getRaw resolves the raw component instance: for factory components this is
// the factory itself, before product indirection is applied.
func (c *Container) getRaw(ctx *ResolveContext, name string, explicit []any) (instance any, md *MergedDefinition, canonical string, deref bool, err error) {
	canonical, deref = isFactoryDereference(name)

	if c.closed.Load() {
		return nil, nil, canonical, deref, CreationError{Name: canonical, Cause: ErrContainerClosed}
	}

	// Finished and early-exposed singletons short-circuit the pipeline.
	if explicit == nil {
		v, ok, gerr := c.singletons.Get(ctx, canonical, c.allowCircular)
		if gerr != nil {
			return nil, nil, canonical, deref, gerr
		}
		if ok {
			if deref {
				if _, isFactory := v.(ObjectFactory); !isFactory {
					return nil, nil, canonical, deref, NotAFactoryError{Name: canonical}
				}
				return v, nil, canonical, deref, nil
			}
			// The merged definition is only needed for factory product
			// caching decisions; absent for directly registered singletons.
			if _, isFactory := v.(ObjectFactory); isFactory && c.source.Contains(canonical) {
				md, _ = c.merger.Merged(canonical)
			}
			return v, md, canonical, deref, nil
		}
	}

	md, err = c.merger.Merged(canonical)
	if err != nil {
		return nil, nil, canonical, deref, err
	}
	if md.Abstract {
		return nil, nil, canonical, deref, IsAbstractError{Name: canonical, Resource: md.ResourceDescription}
	}

	if explicit != nil && md.IsSingleton() && c.singletons.Contains(canonical) {
		return nil, nil, canonical, deref, CreationError{
			Name:     canonical,
			Resource: md.ResourceDescription,
			Cause:    fmt.Errorf("explicit arguments cannot apply to an already-created singleton"),
		}
	}

	// Creation-order dependencies are created first; a mutual depends-on
	// pair is unresolvable.
	for _, dep := range md.DependsOn {
		if c.singletons.IsDependentOn(canonical, dep) {
			return nil, nil, canonical, deref, CreationError{
				Name:     canonical,
				Resource: md.ResourceDescription,
				Cause:    fmt.Errorf("circular depends-on relationship between %q and %q", canonical, dep),
			}
		}
		c.singletons.RegisterDependent(dep, canonical)
		if _, derr := c.get(ctx, dep, nil); derr != nil {
			return nil, nil, canonical, deref, CreationError{
				Name:     canonical,
				Resource: md.ResourceDescription,
				Cause:    fmt.Errorf("depends-on component %q failed: %w", dep, derr),
			}
		}
	}

	switch {
	case md.IsSingleton():
		c.merger.MarkCreationStarted(canonical)
		instance, err = c.singletons.GetOrCreate(ctx, canonical, func() (any, error) {
			return c.pipeline.create(ctx, canonical, md, explicit)
		})

	case md.IsPrototype():
		c.merger.MarkCreationStarted(canonical)
		if err = ctx.prototypeBegin(canonical); err != nil {
			break
		}
		instance, err = c.pipeline.create(ctx, canonical, md, explicit)
		ctx.prototypeEnd(canonical)

	default:
		err = CreationError{
			Name:     canonical,
			Resource: md.ResourceDescription,
			Cause:    fmt.Errorf("%w: %q", ErrUnsupportedScope, md.Scope),
		}
	}
	if err != nil {
		return nil, nil, canonical, deref, err
	}

	if deref {
		if _, isFactory := instance.(ObjectFactory); !isFactory {
			return nil, nil, canonical, deref, NotAFactoryError{Name: canonical}
		}
	}
	return instance, md, canonical, deref, nil
}

// Contains reports whether a component is known, by definition or as a
// directly registered singleton.
func (c *Container) Contains(name string) bool {
	canonical, _ := isFactoryDereference(name)
	return c.source.Contains(canonical) || c.singletons.Contains(canonical)
}

// TypeOf returns the type a component will expose, without fully creating
// it. For factory components this is the product type; the "&"-prefixed
// name reports the factory's own type. Returns nil when the type cannot be
// determined.
func (c *Container) TypeOf(name string) (reflect.Type, error) {
	canonical, deref := isFactoryDereference(name)
	ctx := NewResolveContext()

	if v, ok, _ := c.singletons.Get(ctx, canonical, false); ok {
		t := reflect.TypeOf(v)
		if factory, isFactory := v.(ObjectFactory); isFactory && !deref {
			return factory.ObjectType(), nil
		}
		return t, nil
	}

	md, err := c.merger.Merged(canonical)
	if err != nil {
		return nil, err
	}
	if deref {
		return c.rawType(ctx, canonical, md)
	}
	return c.predictType(ctx, canonical, md)
}

// TypeMatches reports whether the component registered under name would
// satisfy the required type.
func (c *Container) TypeMatches(name string, required reflect.Type) bool {
	t, err := c.TypeOf(name)
	if err != nil || t == nil {
		return false
	}
	return assignableAs(t, required)
}

// IsSingleton reports whether a component is singleton-scoped. Directly
// registered singletons always are.
func (c *Container) IsSingleton(name string) (bool, error) {
	canonical, _ := isFactoryDereference(name)
	if !c.source.Contains(canonical) {
		if c.singletons.Contains(canonical) {
			return true, nil
		}
		return false, NoSuchComponentError{Name: canonical}
	}
	md, err := c.merger.Merged(canonical)
	if err != nil {
		return false, err
	}
	return md.IsSingleton(), nil
}

// IsPrototype reports whether a component is prototype-scoped.
func (c *Container) IsPrototype(name string) (bool, error) {
	canonical, _ := isFactoryDereference(name)
	if !c.source.Contains(canonical) {
		if c.singletons.Contains(canonical) {
			return false, nil
		}
		return false, NoSuchComponentError{Name: canonical}
	}
	md, err := c.merger.Merged(canonical)
	if err != nil {
		return false, err
	}
	return md.IsPrototype(), nil
}

// rawType predicts the component's own type, before factory-product
// unwrapping.
func (c *Container) rawType(ctx *ResolveContext, name string, md *MergedDefinition) (reflect.Type, error) {
	if md.Type != nil {
		return md.Type, nil
	}
	if t := md.ResolvedType(); t != nil {
		return t, nil
	}
	if md.FactoryComponent != "" {
		if t := md.FactoryReturnType(); t != nil {
			return t, nil
		}
	}

	// Enumerate candidates without binding arguments: binding would resolve
	// autowired dependencies and could recurse back into type prediction.
	cands, err := c.resolver.candidates(ctx, name, md)
	if err != nil {
		return nil, err
	}
	t := cands[0].OutType()
	for _, cand := range cands[1:] {
		if cand.OutType() != t {
			return nil, nil
		}
	}
	return t, nil
}

// predictType predicts the type a component will expose. A component whose
// own type implements ObjectFactory exposes its product type; determining it
// may require instantiating the factory, in which case the instance is kept
// for reuse by the pipeline.
func (c *Container) predictType(ctx *ResolveContext, name string, md *MergedDefinition) (reflect.Type, error) {
	raw, err := c.rawType(ctx, name, md)
	if err != nil || raw == nil {
		return nil, err
	}
	if !raw.Implements(objectFactoryType) {
		return raw, nil
	}

	// Factory components must be instantiated to learn their product type.
	if v, ok, _ := c.singletons.Get(ctx, name, false); ok {
		if factory, isFactory := v.(ObjectFactory); isFactory {
			return factory.ObjectType(), nil
		}
	}

	sig, args, err := c.resolver.resolveSignature(ctx, name, md, nil)
	if err != nil {
		return nil, err
	}
	instance, err := c.strategy.Instantiate(name, md, sig, args)
	if err != nil {
		return nil, wrapCreation(name, md.ResourceDescription, "type prediction", err)
	}
	factory, ok := instance.(ObjectFactory)
	if !ok {
		return raw, nil
	}
	md.setProbedInstance(instance)
	return factory.ObjectType(), nil
}

var objectFactoryType = reflect.TypeOf((*ObjectFactory)(nil)).Elem()

// RegisterSingleton registers an existing instance as a finished singleton
// under name, outside the creation pipeline.
func (c *Container) RegisterSingleton(name string, instance any) error {
	if name == "" {
		return ErrComponentNameEmpty
	}
	if instance == nil {
		return ErrComponentNil
	}
	if c.closed.Load() {
		return ErrContainerClosed
	}
	return c.singletons.RegisterSingleton(name, instance)
}

// RegisterDependent records that dependent holds a reference to name, so
// destruction order can honor it.
func (c *Container) RegisterDependent(name, dependent string) {
	c.singletons.RegisterDependent(name, dependent)
}

// AddHook registers interception hooks. Hooks added after components were
// created only affect components created afterwards.
func (c *Container) AddHook(hooks ...any) {
	c.hooks.Add(hooks...)
}

// RemoveHook removes a previously added hook.
func (c *Container) RemoveHook(hook any) bool {
	return c.hooks.Remove(hook)
}

// InvalidateDefinition marks the merged view of name stale after its
// definition changed. Resolved-type caches survive when the new definition
// has the same type identity.
func (c *Container) InvalidateDefinition(name string) {
	c.merger.Invalidate(name)
}

// ClearMergedCache forces a re-merge of every definition whose component has
// not started creating.
func (c *Container) ClearMergedCache() {
	c.merger.ClearCache()
}

// freezable is implemented by definition sources that can become read-only.
type freezable interface {
	Freeze()
}

// WarmUp eagerly creates every non-lazy, non-abstract singleton definition,
// in registration order. The definition source is frozen first, when it
// supports freezing. Factory components are created as factories; their
// products are built on first request.
func (c *Container) WarmUp() error {
	if f, ok := c.source.(freezable); ok {
		f.Freeze()
	}
	for _, name := range c.source.Names() {
		md, err := c.merger.Merged(name)
		if err != nil {
			return err
		}
		if md.Abstract || md.Lazy || !md.IsSingleton() {
			continue
		}

		t, err := c.rawType(NewResolveContext(), name, md)
		if err != nil {
			return err
		}
		if t != nil && t.Implements(objectFactoryType) {
			if _, err := c.Get(factoryPrefix + name); err != nil {
				return err
			}
			continue
		}
		if _, err := c.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// DestroySingleton destroys the named singleton and, transitively, every
// singleton that depends on it. Disposal errors are logged, not returned.
func (c *Container) DestroySingleton(name string) {
	canonical, _ := isFactoryDereference(name)
	c.products.delete(canonical)
	c.singletons.DestroySingleton(canonical)
}

// Statistics returns creation counters for observability.
func (c *Container) Statistics() Stats {
	return c.singletons.Statistics()
}

// Close destroys all singletons in reverse registration order and marks the
// container closed. It is idempotent and never returns a disposal error;
// individual failures are logged.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Debug().Str("container", c.id).Msg("closing container")
	c.products.clear()
	c.singletons.DestroyAll()
	return nil
}

// Resolve returns the component registered under name as T.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	required := reflect.TypeOf((*T)(nil)).Elem()

	v, err := c.GetAs(name, required)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, TypeMismatchError{
			Expected: required,
			Actual:   reflect.TypeOf(v),
			Context:  "resolved component",
		}
	}
	return t, nil
}

// MustResolve is Resolve but panics on error. Intended for application
// startup where a missing component is unrecoverable.
func MustResolve[T any](c *Container, name string) T {
	v, err := Resolve[T](c, name)
	if err != nil {
		panic(fmt.Sprintf("kiln: must resolve %q: %v", name, err))
	}
	return v
}
