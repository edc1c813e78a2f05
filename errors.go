package kiln

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that should be wrapped in typed errors when returned.
// Never return these directly to users - always wrap them with context.

var (
	// Lookup errors.
	ErrComponentNameEmpty = errors.New("component name cannot be empty")
	ErrComponentNil       = errors.New("component instance cannot be nil")

	// Lifecycle errors.
	ErrContainerClosed = errors.New("container has been closed")

	// Definition errors.
	ErrDefinitionNil     = errors.New("definition cannot be nil")
	ErrNoConstructor     = errors.New("definition declares no constructor, factory method, or type")
	ErrUnsupportedScope  = errors.New("unsupported scope")
	ErrSelfParent        = errors.New("definition cannot have itself as parent")
	ErrAlreadyRegistered = errors.New("definition already registered for name")
	ErrSourceFrozen      = errors.New("definition source is frozen")
)

var (
	_ error = NoSuchComponentError{}
	_ error = DefinitionStoreError{}
	_ error = IsAbstractError{}
	_ error = CreationError{}
	_ error = CurrentlyInCreationError{}
	_ error = UnsatisfiedDependencyError{}
	_ error = NoUniqueMatchError{}
	_ error = AmbiguousSignatureError{}
	_ error = SignatureResolutionError{}
	_ error = NotAFactoryError{}
	_ error = TypeMismatchError{}
	_ error = DisposalError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================
// Always use these typed errors instead of fmt.Errorf() or errors.New()
// for domain-specific errors. Wrap sentinel errors with these types.

// NoSuchComponentError indicates no definition or singleton exists for a name.
type NoSuchComponentError struct {
	Name string
}

func (e NoSuchComponentError) Error() string {
	return fmt.Sprintf("no component named %q is defined", e.Name)
}

// DefinitionStoreError indicates a malformed, unresolvable, or duplicate
// definition.
type DefinitionStoreError struct {
	Name     string
	Resource string
	Cause    error
}

func (e DefinitionStoreError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("invalid definition %q (%s): %v", e.Name, e.Resource, e.Cause)
	}
	return fmt.Sprintf("invalid definition %q: %v", e.Name, e.Cause)
}

func (e DefinitionStoreError) Unwrap() error {
	return e.Cause
}

// IsAbstractError indicates an attempt to instantiate an abstract definition.
// Abstract definitions exist only as parents for other definitions.
type IsAbstractError struct {
	Name     string
	Resource string
}

func (e IsAbstractError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("definition %q (%s) is abstract and cannot be instantiated", e.Name, e.Resource)
	}
	return fmt.Sprintf("definition %q is abstract and cannot be instantiated", e.Name)
}

// CreationError wraps any failure of the creation pipeline with the component
// name, its resource description, and the failing phase.
type CreationError struct {
	Name     string
	Resource string
	Phase    string
	Cause    error
}

func (e CreationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("error creating component %q", e.Name))
	if e.Resource != "" {
		b.WriteString(fmt.Sprintf(" defined in %s", e.Resource))
	}
	if e.Phase != "" {
		b.WriteString(fmt.Sprintf(" during %s", e.Phase))
	}
	b.WriteString(fmt.Sprintf(": %v", e.Cause))
	return b.String()
}

func (e CreationError) Unwrap() error {
	return e.Cause
}

// CurrentlyInCreationError indicates an unresolvable creation cycle: a
// prototype self-cycle, a depends-on cycle, or a transitive wait cycle
// between concurrently creating goroutines.
type CurrentlyInCreationError struct {
	Name string
	Path []string
}

func (e CurrentlyInCreationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("component %q is currently in creation: unresolvable circular reference\n\n", e.Name))

	if len(e.Path) > 0 {
		for _, name := range e.Path {
			b.WriteString(fmt.Sprintf("    %s\n", name))
			b.WriteString("      ↓\n")
		}
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Name))
		b.WriteString("\n")
	}

	b.WriteString("To resolve this:\n")
	b.WriteString("  • Allow circular references so singletons can be exposed early\n")
	b.WriteString("  • Inject a factory instead of the component itself\n")
	b.WriteString("  • Restructure to remove the circular relationship\n")

	return b.String()
}

// UnsatisfiedDependencyError indicates a required dependency had zero
// candidates, or a property/parameter could not be bound.
type UnsatisfiedDependencyError struct {
	Name           string // requesting component
	Property       string // property name, if property injection
	Parameter      int    // parameter index, if constructor injection (-1 otherwise)
	DependencyType reflect.Type
	Cause          error
}

func (e UnsatisfiedDependencyError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("unsatisfied dependency of component %q", e.Name))
	if e.Property != "" {
		b.WriteString(fmt.Sprintf(" for property %q", e.Property))
	} else if e.Parameter >= 0 {
		b.WriteString(fmt.Sprintf(" for constructor parameter %d", e.Parameter))
	}
	if e.DependencyType != nil {
		b.WriteString(fmt.Sprintf(" of type %s", formatType(e.DependencyType)))
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return b.String()
}

func (e UnsatisfiedDependencyError) Unwrap() error {
	return e.Cause
}

// NoUniqueMatchError indicates more than one component matched a required
// type and no qualifier narrowed the choice.
type NoUniqueMatchError struct {
	Type       reflect.Type
	Candidates []string
}

func (e NoUniqueMatchError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("expected a single component of type %s but found %d",
		formatType(e.Type), len(e.Candidates)))
	if len(e.Candidates) > 0 {
		b.WriteString(": " + strings.Join(e.Candidates, ", "))
	}
	b.WriteString("\n\nUse a qualifier or a named dependency to narrow the match.")
	return b.String()
}

// AmbiguousSignatureError indicates strict resolution found multiple
// equally-weighted construction signatures.
type AmbiguousSignatureError struct {
	Name       string
	Candidates []string
}

func (e AmbiguousSignatureError) Error() string {
	return fmt.Sprintf("ambiguous construction signatures for component %q: equally matched candidates [%s]",
		e.Name, strings.Join(e.Candidates, ", "))
}

// SignatureResolutionError aggregates the per-candidate binding failures that
// were swallowed while trying each construction signature. It is returned only
// when every candidate failed.
type SignatureResolutionError struct {
	Name     string
	Failures []error
}

func (e SignatureResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("no matching construction signature for component %q", e.Name))
	if len(e.Failures) > 0 {
		b.WriteString(fmt.Sprintf(" (%d candidates failed):", len(e.Failures)))
		for i, err := range e.Failures {
			b.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
		}
	}
	return b.String()
}

func (e SignatureResolutionError) Unwrap() error {
	return errors.Join(e.Failures...)
}

// NotAFactoryError indicates a factory dereference was requested for a
// component that is not an ObjectFactory.
type NotAFactoryError struct {
	Name string
	Type reflect.Type
}

func (e NotAFactoryError) Error() string {
	return fmt.Sprintf("component %q of type %s is not an object factory", e.Name, formatType(e.Type))
}

// TypeMismatchError indicates a type assertion or required-type check failed.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string // "required type", "type assertion", etc.
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// DisposalError aggregates destruction failures. Destruction never raises;
// this type exists for logging and for tests that inspect swallowed errors.
type DisposalError struct {
	Context string // "container", "singleton"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s disposal failed with %d errors:", e.Context, len(e.Errors)))
	for i, err := range e.Errors {
		b.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return b.String()
}

// wrapCreation wraps err as a CreationError for name unless it already is one
// for the same component, so nested failures keep the innermost phase.
func wrapCreation(name, resource, phase string, err error) error {
	var ce CreationError
	if errors.As(err, &ce) && ce.Name == name {
		return err
	}
	return CreationError{Name: name, Resource: resource, Phase: phase, Cause: err}
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
