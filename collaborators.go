package kiln

import (
	"fmt"
	"reflect"

	"github.com/objectgraph/kiln/internal/signature"
)

// Signature is a callable construction signature: ordered parameter types
// plus an invoker. Candidates are enumerated from constructor functions and
// factory methods; the weighted matching algorithm is agnostic of the origin.
type Signature = signature.Candidate

// ValueResolver resolves configured values — literals, runtime references,
// nested definitions — into concrete instances during population and
// argument binding. Conversion internals are an external concern; the
// default resolver handles Ref and nested *Definition values and passes
// everything else through.
type ValueResolver interface {
	Resolve(ctx *ResolveContext, requester *MergedDefinition, value any) (any, error)
}

// DependencyResolver performs typed, optionally-qualified lookups for
// autowiring. Implementations return UnsatisfiedDependencyError for zero
// required candidates and NoUniqueMatchError for more than one.
type DependencyResolver interface {
	ResolveDependency(ctx *ResolveContext, dep DependencyDescriptor, requester string) (any, error)
}

// InstantiationStrategy performs the actual construction call once a
// signature and its arguments are resolved.
type InstantiationStrategy interface {
	Instantiate(name string, def *MergedDefinition, sig *Signature, args []any) (any, error)
}

// reflectStrategy is the default InstantiationStrategy: it invokes the
// resolved signature directly.
type reflectStrategy struct{}

func (reflectStrategy) Instantiate(name string, def *MergedDefinition, sig *Signature, args []any) (any, error) {
	return sig.Invoke(args)
}

// defaultValueResolver resolves Ref values against the container and builds
// nested definitions as contained components.
type defaultValueResolver struct {
	c *Container
}

func (r *defaultValueResolver) Resolve(ctx *ResolveContext, requester *MergedDefinition, value any) (any, error) {
	switch v := value.(type) {
	case Ref:
		if requester != nil {
			r.c.singletons.RegisterDependent(v.Name, requester.Name)
		}
		return r.c.get(ctx, v.Name, nil)

	case *Definition:
		return r.resolveNested(ctx, requester, v)

	default:
		return value, nil
	}
}

// resolveNested builds a definition nested inside another component. A
// nested singleton inherits a non-singleton container's scope and is
// destroyed together with its containing component.
func (r *defaultValueResolver) resolveNested(ctx *ResolveContext, requester *MergedDefinition, def *Definition) (any, error) {
	innerName := def.Name
	if innerName == "" {
		innerName = "(inner)"
	}
	if requester != nil {
		innerName = requester.Name + "#" + innerName
	}

	md, err := r.c.merger.MergedFor(innerName, def, requester)
	if err != nil {
		return nil, err
	}

	instance, err := r.c.pipeline.create(ctx, innerName, md, nil)
	if err != nil {
		return nil, err
	}

	if requester != nil && md.IsSingleton() {
		r.c.singletons.RegisterContained(ctx, innerName, requester.Name)
	}
	return instance, nil
}

// typeResolver is the default DependencyResolver: a type-indexed lookup over
// the definition source and directly registered singletons, with qualifier
// and name narrowing.
type typeResolver struct {
	c *Container
}

func (r *typeResolver) ResolveDependency(ctx *ResolveContext, dep DependencyDescriptor, requester string) (any, error) {
	if dep.Type == nil {
		return nil, fmt.Errorf("dependency descriptor has no type")
	}

	candidates := r.candidatesFor(ctx, dep, requester)

	switch len(candidates) {
	case 0:
		if dep.Optional {
			return nil, nil
		}
		return nil, UnsatisfiedDependencyError{
			Name:           requester,
			Parameter:      -1,
			DependencyType: dep.Type,
			Cause:          NoSuchComponentError{Name: dep.Name},
		}
	case 1:
		return r.resolveCandidate(ctx, candidates[0], requester)
	default:
		// A matching name or qualifier narrows the set to one.
		if dep.Name != "" {
			for _, name := range candidates {
				if name == dep.Name {
					return r.resolveCandidate(ctx, name, requester)
				}
			}
		}
		return nil, NoUniqueMatchError{Type: dep.Type, Candidates: candidates}
	}
}

// candidatesFor collects the names of components assignable to the required
// type, filtered by qualifiers.
func (r *typeResolver) candidatesFor(ctx *ResolveContext, dep DependencyDescriptor, requester string) []string {
	var candidates []string

	for _, name := range r.c.source.Names() {
		if name == requester {
			continue
		}
		md, err := r.c.merger.Merged(name)
		if err != nil || md.Abstract {
			continue
		}
		t, err := r.c.predictType(ctx, name, md)
		if err != nil || t == nil {
			continue
		}
		if !assignableAs(t, dep.Type) {
			continue
		}
		if !qualifiersMatch(md.Qualifiers, dep.Qualifiers) {
			continue
		}
		candidates = append(candidates, name)
	}

	// Directly registered singletons without definitions participate too.
	for _, name := range r.c.singletons.Names(ctx) {
		if name == requester || r.c.source.Contains(name) {
			continue
		}
		instance, ok, _ := r.c.singletons.Get(ctx, name, false)
		if !ok || instance == nil {
			continue
		}
		if assignableAs(reflect.TypeOf(instance), dep.Type) && len(dep.Qualifiers) == 0 {
			candidates = append(candidates, name)
		}
	}

	return candidates
}

func (r *typeResolver) resolveCandidate(ctx *ResolveContext, name, requester string) (any, error) {
	if requester != "" {
		r.c.singletons.RegisterDependent(name, requester)
	}
	return r.c.get(ctx, name, nil)
}

// assignableAs reports whether a component of type t satisfies required,
// considering pointer and interface assignability.
func assignableAs(t, required reflect.Type) bool {
	if t == nil || required == nil {
		return false
	}
	if t.AssignableTo(required) {
		return true
	}
	if required.Kind() == reflect.Interface && t.Implements(required) {
		return true
	}
	return false
}

// qualifiersMatch reports whether the component's qualifiers carry every
// required qualifier with an equal value.
func qualifiersMatch(have, want map[string]any) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok || hv != v {
			return false
		}
	}
	return true
}
