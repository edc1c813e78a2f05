package kiln

import (
	"reflect"
	"sync"
)

// Scope names understood by the container. Anything else is rejected with
// ErrUnsupportedScope; custom scopes are an external concern.
const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

// AutowireMode controls how unset dependencies are wired during population
// and whether constructor parameters may be resolved against the container.
type AutowireMode int

const (
	// AutowireNone disables autowiring; only declared values are applied.
	AutowireNone AutowireMode = iota

	// AutowireByName wires every unset, non-simple, writable property to a
	// component registered under the same name, if one exists.
	AutowireByName

	// AutowireByType wires every unset, non-simple, writable property by
	// type resolution. Exactly one candidate must match.
	AutowireByType
)

// String returns the string representation of the AutowireMode.
func (m AutowireMode) String() string {
	switch m {
	case AutowireNone:
		return "none"
	case AutowireByName:
		return "byName"
	case AutowireByType:
		return "byType"
	default:
		return "unknown"
	}
}

// Role classifies a definition for tooling and hooks. The container treats
// all roles identically; the role is carried through merging as metadata.
type Role int

const (
	// RoleApplication marks a definition that is part of the application.
	RoleApplication Role = iota

	// RoleSupport marks a definition supporting some larger configuration
	// construct.
	RoleSupport

	// RoleInfrastructure marks a definition registered by the container's
	// own machinery.
	RoleInfrastructure
)

// ArgumentValue is a single declared constructor argument. Name and TypeName
// are optional narrowing criteria used during signature binding.
type ArgumentValue struct {
	Value    any
	TypeName string
	Name     string

	converted   any
	isConverted bool
}

// clone returns a copy without the conversion cache.
func (a *ArgumentValue) clone() *ArgumentValue {
	return &ArgumentValue{Value: a.Value, TypeName: a.TypeName, Name: a.Name}
}

// ArgumentValues holds the declared constructor arguments of a definition:
// indexed values bound to an exact parameter position, and generic values
// matched by type and name.
type ArgumentValues struct {
	indexed map[int]*ArgumentValue
	generic []*ArgumentValue
}

// NewArgumentValues creates an empty argument value holder.
func NewArgumentValues() *ArgumentValues {
	return &ArgumentValues{indexed: make(map[int]*ArgumentValue)}
}

// AddIndexed declares an argument for an exact parameter position.
func (av *ArgumentValues) AddIndexed(index int, value *ArgumentValue) {
	if av.indexed == nil {
		av.indexed = make(map[int]*ArgumentValue)
	}
	av.indexed[index] = value
}

// AddGeneric declares an argument matched by type and name during binding.
func (av *ArgumentValues) AddGeneric(value *ArgumentValue) {
	av.generic = append(av.generic, value)
}

// Indexed returns the declared argument for a parameter position.
func (av *ArgumentValues) Indexed(index int) (*ArgumentValue, bool) {
	v, ok := av.indexed[index]
	return v, ok
}

// Generic returns the first unused generic argument whose declared type name
// and name are compatible with the parameter, or nil.
func (av *ArgumentValues) Generic(paramType reflect.Type, paramName string, used map[*ArgumentValue]struct{}) *ArgumentValue {
	for _, v := range av.generic {
		if _, taken := used[v]; taken {
			continue
		}
		if v.Name != "" && paramName != "" && v.Name != paramName {
			continue
		}
		if v.TypeName != "" && paramType != nil && v.TypeName != paramType.String() {
			continue
		}
		return v
	}
	return nil
}

// Count returns the number of declared arguments.
func (av *ArgumentValues) Count() int {
	return len(av.indexed) + len(av.generic)
}

// Empty reports whether no arguments are declared.
func (av *ArgumentValues) Empty() bool {
	return av.Count() == 0
}

// Clone deep-copies the declared arguments.
func (av *ArgumentValues) Clone() *ArgumentValues {
	c := NewArgumentValues()
	for i, v := range av.indexed {
		c.indexed[i] = v.clone()
	}
	for _, v := range av.generic {
		c.generic = append(c.generic, v.clone())
	}
	return c
}

// overlay applies child argument values on top of the receiver. Indexed
// values replace by position; generic values are appended.
func (av *ArgumentValues) overlay(child *ArgumentValues) {
	if child == nil {
		return
	}
	for i, v := range child.indexed {
		av.AddIndexed(i, v.clone())
	}
	for _, v := range child.generic {
		av.generic = append(av.generic, v.clone())
	}
}

// PropertyValue is one configured property of a component.
type PropertyValue struct {
	Name     string
	Value    any
	Optional bool

	converted   any
	isConverted bool
}

func (p *PropertyValue) clone() *PropertyValue {
	return &PropertyValue{Name: p.Name, Value: p.Value, Optional: p.Optional}
}

// PropertyValues is an ordered collection of property values, unique by name.
type PropertyValues struct {
	values []*PropertyValue
}

// NewPropertyValues creates an empty property value holder.
func NewPropertyValues() *PropertyValues {
	return &PropertyValues{}
}

// Add sets a property value, replacing any existing value of the same name.
func (pvs *PropertyValues) Add(pv *PropertyValue) {
	for i, existing := range pvs.values {
		if existing.Name == pv.Name {
			pvs.values[i] = pv
			return
		}
	}
	pvs.values = append(pvs.values, pv)
}

// Set is shorthand for Add with a plain value.
func (pvs *PropertyValues) Set(name string, value any) {
	pvs.Add(&PropertyValue{Name: name, Value: value})
}

// Get returns the property value for a name.
func (pvs *PropertyValues) Get(name string) (*PropertyValue, bool) {
	for _, pv := range pvs.values {
		if pv.Name == name {
			return pv, true
		}
	}
	return nil, false
}

// Contains reports whether a property is configured.
func (pvs *PropertyValues) Contains(name string) bool {
	_, ok := pvs.Get(name)
	return ok
}

// Len returns the number of configured properties.
func (pvs *PropertyValues) Len() int {
	return len(pvs.values)
}

// All returns the property values in declaration order.
func (pvs *PropertyValues) All() []*PropertyValue {
	return pvs.values
}

// Clone deep-copies the property values.
func (pvs *PropertyValues) Clone() *PropertyValues {
	c := NewPropertyValues()
	for _, pv := range pvs.values {
		c.values = append(c.values, pv.clone())
	}
	return c
}

// overlay applies child property values on top of the receiver, name by name.
func (pvs *PropertyValues) overlay(child *PropertyValues) {
	if child == nil {
		return
	}
	for _, pv := range child.values {
		pvs.Add(pv.clone())
	}
}

// Ref is a runtime reference to another component by name. The default value
// resolver replaces it with the referenced instance during population.
type Ref struct {
	Name string
}

// Definition is the declarative recipe for a component. Definitions are
// mutable until creation starts for their name; afterwards merge results are
// assumed cacheable unless explicitly invalidated.
type Definition struct {
	// Name is the component name this definition is registered under.
	Name string

	// Type is the component type, if statically known. May be nil; the
	// container then predicts the type from constructors or factory methods.
	Type reflect.Type

	// TypeName is an optional symbolic type name, used only for merge
	// invalidation bookkeeping when Type is nil.
	TypeName string

	// Scope is ScopeSingleton or ScopePrototype. Empty means singleton.
	Scope string

	// Abstract definitions act only as parents and cannot be instantiated.
	Abstract bool

	// Lazy singletons are not eagerly instantiated by WarmUp.
	Lazy bool

	// Autowire controls population-time wiring and constructor
	// type-resolution against the container.
	Autowire AutowireMode

	// Constructors are the candidate construction functions. With more than
	// one candidate the weighted signature algorithm picks deterministically.
	Constructors []any

	// ConstructorArgs are the declared arguments bound during signature
	// resolution.
	ConstructorArgs *ArgumentValues

	// Properties are applied to the instance during population.
	Properties *PropertyValues

	// FactoryComponent names another component whose FactoryMethod produces
	// this one.
	FactoryComponent string

	// FactoryMethod is the method invoked on the factory component.
	FactoryMethod string

	// InitMethods are invoked, in order, between the before-init and
	// after-init hooks.
	InitMethods []string

	// DestroyMethod is invoked when the singleton is destroyed.
	DestroyMethod string

	// DependsOn forces the named components to be created first.
	DependsOn []string

	// Parent names the definition this one inherits from.
	Parent string

	// Qualifiers narrow type-based dependency matches against this component.
	Qualifiers map[string]any

	// Role classifies the definition; purely informational.
	Role Role

	// ResourceDescription describes where the definition came from, for
	// error messages.
	ResourceDescription string

	attrs   map[string]any
	attrsMu sync.RWMutex
}

// NewDefinition creates a definition with empty argument and property holders.
func NewDefinition(name string) *Definition {
	return &Definition{
		Name:            name,
		ConstructorArgs: NewArgumentValues(),
		Properties:      NewPropertyValues(),
	}
}

// IsSingleton reports whether the definition declares singleton scope.
// An empty scope defaults to singleton.
func (d *Definition) IsSingleton() bool {
	return d.Scope == "" || d.Scope == ScopeSingleton
}

// IsPrototype reports whether the definition declares prototype scope.
func (d *Definition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// SetAttribute stores arbitrary metadata on the definition.
func (d *Definition) SetAttribute(name string, value any) {
	d.attrsMu.Lock()
	defer d.attrsMu.Unlock()
	if d.attrs == nil {
		d.attrs = make(map[string]any)
	}
	d.attrs[name] = value
}

// Attribute returns previously stored metadata.
func (d *Definition) Attribute(name string) (any, bool) {
	d.attrsMu.RLock()
	defer d.attrsMu.RUnlock()
	v, ok := d.attrs[name]
	return v, ok
}

// RemoveAttribute deletes metadata and returns the removed value.
func (d *Definition) RemoveAttribute(name string) (any, bool) {
	d.attrsMu.Lock()
	defer d.attrsMu.Unlock()
	v, ok := d.attrs[name]
	if ok {
		delete(d.attrs, name)
	}
	return v, ok
}

// AttributeNames returns the names of all stored attributes.
func (d *Definition) AttributeNames() []string {
	d.attrsMu.RLock()
	defer d.attrsMu.RUnlock()
	names := make([]string, 0, len(d.attrs))
	for name := range d.attrs {
		names = append(names, name)
	}
	return names
}

// Clone deep-copies the definition, including declared arguments, properties,
// qualifiers, and attributes.
func (d *Definition) Clone() *Definition {
	c := &Definition{
		Name:                d.Name,
		Type:                d.Type,
		TypeName:            d.TypeName,
		Scope:               d.Scope,
		Abstract:            d.Abstract,
		Lazy:                d.Lazy,
		Autowire:            d.Autowire,
		FactoryComponent:    d.FactoryComponent,
		FactoryMethod:       d.FactoryMethod,
		DestroyMethod:       d.DestroyMethod,
		Parent:              d.Parent,
		Role:                d.Role,
		ResourceDescription: d.ResourceDescription,
	}

	c.Constructors = append([]any(nil), d.Constructors...)
	c.InitMethods = append([]string(nil), d.InitMethods...)
	c.DependsOn = append([]string(nil), d.DependsOn...)

	if d.ConstructorArgs != nil {
		c.ConstructorArgs = d.ConstructorArgs.Clone()
	} else {
		c.ConstructorArgs = NewArgumentValues()
	}
	if d.Properties != nil {
		c.Properties = d.Properties.Clone()
	} else {
		c.Properties = NewPropertyValues()
	}

	if d.Qualifiers != nil {
		c.Qualifiers = make(map[string]any, len(d.Qualifiers))
		for k, v := range d.Qualifiers {
			c.Qualifiers[k] = v
		}
	}

	d.attrsMu.RLock()
	if d.attrs != nil {
		c.attrs = make(map[string]any, len(d.attrs))
		for k, v := range d.attrs {
			c.attrs[k] = v
		}
	}
	d.attrsMu.RUnlock()

	return c
}

// overlayFrom applies child fields on top of the receiver, field by field.
// Only fields the child actually sets override the inherited values;
// argument and property collections merge entry-wise rather than wholesale.
func (d *Definition) overlayFrom(child *Definition) {
	d.Name = child.Name
	d.Parent = child.Parent

	if child.Type != nil {
		d.Type = child.Type
	}
	if child.TypeName != "" {
		d.TypeName = child.TypeName
	}
	if child.Scope != "" {
		d.Scope = child.Scope
	}
	// Concrete children of abstract parents are instantiable.
	d.Abstract = child.Abstract
	if child.Lazy {
		d.Lazy = true
	}
	if child.Autowire != AutowireNone {
		d.Autowire = child.Autowire
	}
	if len(child.Constructors) > 0 {
		d.Constructors = append([]any(nil), child.Constructors...)
	}
	if child.FactoryComponent != "" {
		d.FactoryComponent = child.FactoryComponent
	}
	if child.FactoryMethod != "" {
		d.FactoryMethod = child.FactoryMethod
	}
	if len(child.InitMethods) > 0 {
		d.InitMethods = append([]string(nil), child.InitMethods...)
	}
	if child.DestroyMethod != "" {
		d.DestroyMethod = child.DestroyMethod
	}
	if len(child.DependsOn) > 0 {
		d.DependsOn = append([]string(nil), child.DependsOn...)
	}
	if child.ResourceDescription != "" {
		d.ResourceDescription = child.ResourceDescription
	}
	if child.Role != RoleApplication {
		d.Role = child.Role
	}

	if child.ConstructorArgs != nil {
		if d.ConstructorArgs == nil {
			d.ConstructorArgs = NewArgumentValues()
		}
		d.ConstructorArgs.overlay(child.ConstructorArgs)
	}
	if child.Properties != nil {
		if d.Properties == nil {
			d.Properties = NewPropertyValues()
		}
		d.Properties.overlay(child.Properties)
	}

	for k, v := range child.Qualifiers {
		if d.Qualifiers == nil {
			d.Qualifiers = make(map[string]any)
		}
		d.Qualifiers[k] = v
	}

	child.attrsMu.RLock()
	for k, v := range child.attrs {
		if d.attrs == nil {
			d.attrs = make(map[string]any)
		}
		d.attrs[k] = v
	}
	child.attrsMu.RUnlock()
}

// DependencyDescriptor describes a typed, optionally-qualified dependency
// lookup performed by the container or by collaborators mid-creation.
type DependencyDescriptor struct {
	// Type is the required dependency type.
	Type reflect.Type

	// Name is an optional preferred component name.
	Name string

	// Qualifiers narrow candidates to components carrying matching values.
	Qualifiers map[string]any

	// Optional dependencies resolve to nil instead of failing when absent.
	Optional bool
}
