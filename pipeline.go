package kiln

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Initializer is the lifecycle interface a component implements to run
// initialization after its properties are populated.
type Initializer interface {
	Init() error
}

// pipeline orchestrates component creation: short-circuit, instantiation,
// definition hooks, early exposure, population, initialization, early
// reference reconciliation, and destruction registration.
type pipeline struct {
	c *Container
}

// create builds a fully-initialized instance for a merged definition.
// explicit, when non-nil, are caller-supplied positional constructor
// arguments.
func (p *pipeline) create(ctx *ResolveContext, name string, md *MergedDefinition, explicit []any) (any, error) {
	// Pre-instantiation hooks may substitute the whole component before the
	// standard pipeline runs, explicit arguments included.
	if obj, err := p.resolveBeforeInstantiation(name, md); err != nil {
		return nil, wrapCreation(name, md.ResourceDescription, "pre-instantiation", err)
	} else if obj != nil {
		return obj, nil
	}

	instance, err := p.instantiate(ctx, name, md, explicit)
	if err != nil {
		return nil, wrapCreation(name, md.ResourceDescription, "instantiation", err)
	}
	md.SetResolvedType(reflect.TypeOf(instance))

	// One-time definition hooks, guarded so concurrent prototype creations
	// run them exactly once per merged definition.
	if md.markProcessedOnce() {
		for _, h := range p.c.hooks.index().definition {
			if err := h.ProcessDefinition(name, md); err != nil {
				return nil, wrapCreation(name, md.ResourceDescription, "definition processing", err)
			}
		}
	}

	// Expose the raw instance early so collaborators created during
	// population can close a circular reference.
	earlyExposed := md.IsSingleton() && p.c.allowCircular && p.c.singletons.InCreation(ctx, name)
	if earlyExposed {
		p.c.singletons.AddEarlyAccessor(ctx, name, func() (any, error) {
			return p.earlyReference(name, instance)
		})
	}

	if err := p.populate(ctx, name, md, instance); err != nil {
		return nil, wrapCreation(name, md.ResourceDescription, "population", err)
	}

	exposed, err := p.initialize(name, md, instance)
	if err != nil {
		return nil, wrapCreation(name, md.ResourceDescription, "initialization", err)
	}

	if earlyExposed {
		exposed, err = p.reconcileEarlyReference(ctx, name, instance, exposed)
		if err != nil {
			return nil, err
		}
	}

	p.registerForDestruction(ctx, name, md, exposed)
	return exposed, nil
}

// resolveBeforeInstantiation runs the pre-instantiation hooks. A non-nil
// result short-circuits the pipeline; only the after-init hooks still apply.
func (p *pipeline) resolveBeforeInstantiation(name string, md *MergedDefinition) (any, error) {
	idx := p.c.hooks.index()
	if len(idx.preInstantiation) == 0 {
		return nil, nil
	}
	for _, h := range idx.preInstantiation {
		obj, err := h.BeforeInstantiation(name, md)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			return p.c.applyAfterInitHooks(name, obj)
		}
	}
	return nil, nil
}

// instantiate resolves the winning construction signature and invokes it.
// An instance left over from type prediction is reused instead of
// constructing twice.
func (p *pipeline) instantiate(ctx *ResolveContext, name string, md *MergedDefinition, explicit []any) (any, error) {
	if explicit == nil {
		if probed := md.takeProbedInstance(); probed != nil {
			return probed, nil
		}
	}

	sig, args, err := p.c.resolver.resolveSignature(ctx, name, md, explicit)
	if err != nil {
		return nil, err
	}
	return p.c.strategy.Instantiate(name, md, sig, args)
}

// populate applies autowiring and the configured property values to the
// fresh instance.
func (p *pipeline) populate(ctx *ResolveContext, name string, md *MergedDefinition, instance any) error {
	idx := p.c.hooks.index()
	for _, h := range idx.postInstantiation {
		cont, err := h.AfterInstantiation(name, instance)
		if err != nil {
			return err
		}
		if !cont {
			// A hook vetoed population; properties and autowiring are skipped.
			return nil
		}
	}

	var pvs *PropertyValues
	if md.Properties != nil {
		pvs = md.Properties.Clone()
	} else {
		pvs = NewPropertyValues()
	}

	switch md.Autowire {
	case AutowireByName:
		if err := p.autowireByName(name, instance, pvs); err != nil {
			return err
		}
	case AutowireByType:
		if err := p.autowireByType(ctx, name, instance, pvs); err != nil {
			return err
		}
	}

	for _, h := range idx.properties {
		replaced, err := h.Properties(name, instance, pvs)
		if err != nil {
			return err
		}
		if replaced != nil {
			pvs = replaced
		}
	}

	if pvs.Len() == 0 {
		return nil
	}
	return p.applyProperties(ctx, name, md, instance, pvs)
}

// autowireByName adds a reference for every unsatisfied settable field whose
// name matches a registered component.
func (p *pipeline) autowireByName(name string, instance any, pvs *PropertyValues) error {
	elem, ok := settableStruct(instance)
	if !ok {
		return nil
	}
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || pvs.Contains(field.Name) || simpleKind(field.Type) {
			continue
		}
		if !elem.Field(i).IsZero() {
			continue
		}
		for _, candidate := range []string{lowerFirst(field.Name), field.Name} {
			if p.c.Contains(candidate) {
				pvs.Add(&PropertyValue{Name: field.Name, Value: Ref{Name: candidate}})
				p.c.singletons.RegisterDependent(candidate, name)
				break
			}
		}
	}
	return nil
}

// autowireByType resolves every unsatisfied settable field by its type. Zero
// candidates leave the field alone; multiple candidates without a
// disambiguating name fail.
func (p *pipeline) autowireByType(ctx *ResolveContext, name string, instance any, pvs *PropertyValues) error {
	elem, ok := settableStruct(instance)
	if !ok {
		return nil
	}
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || pvs.Contains(field.Name) || simpleKind(field.Type) {
			continue
		}
		if !elem.Field(i).IsZero() {
			continue
		}
		v, err := p.c.deps.ResolveDependency(ctx, DependencyDescriptor{
			Type:     field.Type,
			Optional: true,
		}, name)
		if err != nil {
			return UnsatisfiedDependencyError{
				Name:           name,
				Property:       field.Name,
				Parameter:      -1,
				DependencyType: field.Type,
				Cause:          err,
			}
		}
		if v != nil {
			pvs.Add(&PropertyValue{Name: field.Name, Value: v})
		}
	}
	return nil
}

// applyProperties resolves each configured value and sets it on the matching
// struct field.
func (p *pipeline) applyProperties(ctx *ResolveContext, name string, md *MergedDefinition, instance any, pvs *PropertyValues) error {
	elem, ok := settableStruct(instance)
	if !ok {
		return fmt.Errorf("component %q has configured properties but is not a pointer to struct (%s)",
			name, formatType(reflect.TypeOf(instance)))
	}

	for _, pv := range pvs.All() {
		field := elem.FieldByName(pv.Name)
		if !field.IsValid() {
			field = elem.FieldByName(upperFirst(pv.Name))
		}
		if !field.IsValid() || !field.CanSet() {
			if pv.Optional {
				continue
			}
			return UnsatisfiedDependencyError{
				Name:      name,
				Property:  pv.Name,
				Parameter: -1,
				Cause:     fmt.Errorf("no settable field %q on %s", pv.Name, formatType(elem.Type())),
			}
		}

		resolved, err := p.c.values.Resolve(ctx, md, pv.Value)
		if err != nil {
			if pv.Optional {
				continue
			}
			return UnsatisfiedDependencyError{
				Name:           name,
				Property:       pv.Name,
				Parameter:      -1,
				DependencyType: field.Type(),
				Cause:          err,
			}
		}

		converted, ok := convertValue(resolved, field.Type())
		if !ok {
			return UnsatisfiedDependencyError{
				Name:           name,
				Property:       pv.Name,
				Parameter:      -1,
				DependencyType: field.Type(),
				Cause: fmt.Errorf("value of type %T is not assignable to field type %s",
					resolved, formatType(field.Type())),
			}
		}
		if converted == nil {
			field.Set(reflect.Zero(field.Type()))
		} else {
			field.Set(reflect.ValueOf(converted))
		}
	}
	return nil
}

// initialize runs the init hooks around the component's own initialization:
// the Initializer interface first, then the named init methods in order.
func (p *pipeline) initialize(name string, md *MergedDefinition, instance any) (any, error) {
	idx := p.c.hooks.index()

	current := instance
	for _, h := range idx.init {
		replaced, err := h.BeforeInit(name, current)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			current = replaced
		}
	}

	if init, ok := current.(Initializer); ok {
		if err := init.Init(); err != nil {
			return nil, fmt.Errorf("Init failed: %w", err)
		}
	}
	for _, method := range md.InitMethods {
		if err := callLifecycleMethod(current, method); err != nil {
			return nil, fmt.Errorf("init method %q failed: %w", method, err)
		}
	}

	for _, h := range idx.init {
		replaced, err := h.AfterInit(name, current)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			current = replaced
		}
	}
	return current, nil
}

// applyAfterInitHooks runs only the after-init hooks, used for objects that
// bypass the standard pipeline: pre-instantiation substitutes and factory
// products.
func (c *Container) applyAfterInitHooks(name string, instance any) (any, error) {
	current := instance
	for _, h := range c.hooks.index().init {
		replaced, err := h.AfterInit(name, current)
		if err != nil {
			return nil, wrapCreation(name, "", "initialization", err)
		}
		if replaced != nil {
			current = replaced
		}
	}
	return current, nil
}

// earlyReference applies the early-reference hooks to a raw instance exposed
// for circular resolution.
func (p *pipeline) earlyReference(name string, instance any) (any, error) {
	current := instance
	for _, h := range p.c.hooks.index().earlyReference {
		wrapped, err := h.EarlyReference(name, current)
		if err != nil {
			return nil, err
		}
		if wrapped != nil {
			current = wrapped
		}
	}
	return current, nil
}

// reconcileEarlyReference resolves the conflict between the finished instance
// and an early reference already handed to collaborators. If an init hook
// replaced the instance after the raw version leaked into a dependent, the
// graph is inconsistent and creation fails unless raw injection is allowed.
func (p *pipeline) reconcileEarlyReference(ctx *ResolveContext, name string, raw, exposed any) (any, error) {
	earlyRef, consumed := p.c.singletons.EarlyInstance(ctx, name)
	if !consumed {
		return exposed, nil
	}
	if exposed == raw {
		// Nothing replaced the instance; the possibly-wrapped early
		// reference is the canonical one.
		return earlyRef, nil
	}
	// The finished object differs from the one already handed to dependents.
	if !p.c.allowRawInjection {
		dependents := p.c.singletons.DependentsOf(name)
		if len(dependents) > 0 {
			var b strings.Builder
			b.WriteString(fmt.Sprintf(
				"component %q was injected in its raw form into other components [%s], "+
					"but was subsequently wrapped", name, strings.Join(dependents, ", ")))
			b.WriteString("\n\nThe injected references are stale. ")
			b.WriteString("Avoid wrapping hooks on components in a circular reference, or allow raw injection.")
			return nil, CreationError{Name: name, Phase: "early reference reconciliation", Cause: errors.New(b.String())}
		}
	}
	return exposed, nil
}

// registerForDestruction registers a disposal runner for singletons that have
// destruction work: a Disposable implementation, a configured destroy method,
// or a destruction hook that claims the instance.
func (p *pipeline) registerForDestruction(ctx *ResolveContext, name string, md *MergedDefinition, instance any) {
	if !md.IsSingleton() || instance == nil {
		return
	}
	if !p.requiresDestruction(md, instance) {
		return
	}
	p.c.singletons.RegisterDisposable(ctx, name, &disposalRunner{
		c:             p.c,
		name:          name,
		instance:      instance,
		destroyMethod: md.DestroyMethod,
	})
}

func (p *pipeline) requiresDestruction(md *MergedDefinition, instance any) bool {
	switch instance.(type) {
	case Disposable, DisposableWithContext:
		return true
	}
	if md.DestroyMethod != "" {
		return true
	}
	for _, h := range p.c.hooks.index().destruction {
		if h.RequiresDestruction(instance) {
			return true
		}
	}
	return false
}

// disposalRunner adapts a component's destruction work to the Disposable
// interface the singleton registry tracks: destruction hooks first, then the
// configured destroy method, then the component's own Close.
type disposalRunner struct {
	c             *Container
	name          string
	instance      any
	destroyMethod string
}

var _ Disposable = (*disposalRunner)(nil)

func (d *disposalRunner) Close() error {
	var errs []error

	for _, h := range d.c.hooks.index().destruction {
		if !h.RequiresDestruction(d.instance) {
			continue
		}
		if err := h.BeforeDestruction(d.name, d.instance); err != nil {
			errs = append(errs, err)
		}
	}

	if d.destroyMethod != "" {
		if err := callLifecycleMethod(d.instance, d.destroyMethod); err != nil {
			errs = append(errs, fmt.Errorf("destroy method %q: %w", d.destroyMethod, err))
		}
	}

	switch v := d.instance.(type) {
	case DisposableWithContext:
		if err := v.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	case Disposable:
		if err := v.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// callLifecycleMethod invokes a named no-argument lifecycle method, accepting
// func(), func() error, and func(context.Context) error shapes.
func callLifecycleMethod(instance any, name string) error {
	method := reflect.ValueOf(instance).MethodByName(name)
	if !method.IsValid() {
		return fmt.Errorf("method %q not found on %s", name, formatType(reflect.TypeOf(instance)))
	}

	mt := method.Type()
	var args []reflect.Value
	switch {
	case mt.NumIn() == 0:
	case mt.NumIn() == 1 && mt.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem():
		args = []reflect.Value{reflect.ValueOf(context.Background())}
	default:
		return fmt.Errorf("method %q has unsupported signature %s", name, mt)
	}

	out := method.Call(args)
	if len(out) > 0 {
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// settableStruct unwraps instance to an addressable struct value, if it is a
// pointer to struct.
func settableStruct(instance any) (reflect.Value, bool) {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, false
	}
	elem := v.Elem()
	if elem.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return elem, true
}

// simpleKind reports whether a field type is too primitive to autowire.
func simpleKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
