package kiln

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/objectgraph/kiln/internal/signature"
)

// ctorResolver selects and caches the best-matching construction signature
// for a component from its candidate set: registered constructor functions,
// a factory method on another component, or a synthesized zero-value
// constructor for plain struct types.
type ctorResolver struct {
	c *Container
}

// resolveSignature picks the winning signature and its bound arguments.
// explicit, when non-nil, are positional arguments supplied by the caller
// and bypass both the cache and the declared arguments.
func (r *ctorResolver) resolveSignature(ctx *ResolveContext, name string, md *MergedDefinition, explicit []any) (*Signature, []any, error) {
	declared := md.ConstructorArgs
	if declared == nil {
		declared = NewArgumentValues()
	}

	if explicit == nil {
		if sig, args := md.CachedSignature(); sig != nil {
			return sig, args, nil
		}
	}

	cands, err := r.candidates(ctx, name, md)
	if err != nil {
		return nil, nil, err
	}

	// A single zero-argument candidate with nothing declared bypasses the
	// whole weighting algorithm.
	if len(cands) == 1 && len(cands[0].Params) == 0 && declared.Empty() && len(explicit) == 0 {
		if explicit == nil {
			md.CacheSignature(cands[0], nil)
		}
		return cands[0], nil, nil
	}

	minArgs := declared.Count()
	if explicit != nil {
		minArgs = len(explicit)
	}

	signature.Sort(cands)
	sole := len(cands) == 1

	var (
		bestSig       *Signature
		bestConverted []any
		bestWeight    = signature.Unassignable
		ambiguous     []string
		failures      []error
	)

	for _, cand := range cands {
		if len(cand.Params) < minArgs && !cand.Variadic {
			failures = append(failures, fmt.Errorf(
				"candidate %s: needs at least %d arguments, has %d parameters",
				cand, minArgs, len(cand.Params)))
			continue
		}

		converted, raw, params, bindErr := r.bind(ctx, name, md, cand, explicit, declared, sole)
		if bindErr != nil {
			// Per-candidate failures are swallowed and aggregated; they
			// surface only if every candidate fails.
			failures = append(failures, bindErr)
			continue
		}

		var w int
		if r.c.strict {
			w = signature.AssignabilityWeight(params, converted, raw)
		} else {
			w = signature.Weight(params, converted, raw)
		}
		if w == signature.Unassignable {
			failures = append(failures, fmt.Errorf("candidate %s: arguments not assignable", cand))
			continue
		}

		switch {
		case w < bestWeight:
			bestSig, bestConverted, bestWeight = cand, converted, w
			ambiguous = nil
		case r.c.strict && w == bestWeight && bestSig != nil:
			ambiguous = append(ambiguous, cand.String())
		}
	}

	if bestSig == nil {
		return nil, nil, SignatureResolutionError{Name: name, Failures: failures}
	}
	if r.c.strict && len(ambiguous) > 0 {
		return nil, nil, AmbiguousSignatureError{
			Name:       name,
			Candidates: append([]string{bestSig.String()}, ambiguous...),
		}
	}

	if explicit == nil {
		md.CacheSignature(bestSig, bestConverted)
	}
	return bestSig, bestConverted, nil
}

// bind attempts to produce an argument for every parameter of cand: from an
// explicit positional value, a declared indexed argument, a declared generic
// argument, or container type-resolution when autowiring is enabled.
func (r *ctorResolver) bind(
	ctx *ResolveContext,
	name string,
	md *MergedDefinition,
	cand *Signature,
	explicit []any,
	declared *ArgumentValues,
	sole bool,
) (converted, raw []any, params []reflect.Type, err error) {
	if explicit != nil {
		params = cand.EffectiveParams(len(explicit))
	} else {
		params = make([]reflect.Type, len(cand.Params))
		copy(params, cand.Params)
	}

	converted = make([]any, len(params))
	raw = make([]any, len(params))
	used := make(map[*ArgumentValue]struct{})

	for i, pt := range params {
		if explicit != nil {
			if i >= len(explicit) {
				return nil, nil, nil, fmt.Errorf(
					"candidate %s: no explicit argument for parameter %d", cand, i)
			}
			rawV := explicit[i]
			convV, ok := convertValue(rawV, pt)
			if !ok {
				return nil, nil, nil, fmt.Errorf(
					"candidate %s: explicit argument %d (%T) not assignable to %s",
					cand, i, rawV, pt)
			}
			raw[i], converted[i] = rawV, convV
			continue
		}

		if av, ok := declared.Indexed(i); ok {
			if av.TypeName != "" && av.TypeName != pt.String() {
				return nil, nil, nil, fmt.Errorf(
					"candidate %s: declared argument %d targets type %s, parameter is %s",
					cand, i, av.TypeName, pt)
			}
			resolved, rerr := r.c.values.Resolve(ctx, md, av.Value)
			if rerr != nil {
				return nil, nil, nil, rerr
			}
			convV, ok := convertValue(resolved, pt)
			if !ok {
				return nil, nil, nil, fmt.Errorf(
					"candidate %s: declared argument %d (%T) not assignable to %s",
					cand, i, resolved, pt)
			}
			raw[i], converted[i] = resolved, convV
			continue
		}

		if av := declared.Generic(pt, "", used); av != nil {
			resolved, rerr := r.c.values.Resolve(ctx, md, av.Value)
			if rerr != nil {
				return nil, nil, nil, rerr
			}
			if convV, ok := convertValue(resolved, pt); ok {
				used[av] = struct{}{}
				raw[i], converted[i] = resolved, convV
				continue
			}
			// Not a fit for this parameter; leave for another one and try
			// autowiring instead.
		}

		if md.Autowire != AutowireNone {
			v, derr := r.c.deps.ResolveDependency(ctx, DependencyDescriptor{Type: pt}, name)
			if derr == nil {
				raw[i], converted[i] = v, v
				continue
			}
			// Collections default to empty only when this is the sole
			// candidate, so a missing match cannot silently change which
			// signature wins.
			if sole && emptyDefaultable(pt) {
				empty := emptyValue(pt)
				raw[i], converted[i] = empty, empty
				continue
			}
			return nil, nil, nil, UnsatisfiedDependencyError{
				Name:           name,
				Parameter:      i,
				DependencyType: pt,
				Cause:          derr,
			}
		}

		return nil, nil, nil, UnsatisfiedDependencyError{
			Name:           name,
			Parameter:      i,
			DependencyType: pt,
		}
	}

	return converted, raw, params, nil
}

// candidates enumerates the construction signatures for a component.
func (r *ctorResolver) candidates(ctx *ResolveContext, name string, md *MergedDefinition) ([]*Signature, error) {
	if md.FactoryComponent != "" {
		return r.factoryCandidates(ctx, name, md)
	}

	if len(md.Constructors) > 0 {
		cands := make([]*Signature, 0, len(md.Constructors))
		for _, fn := range md.Constructors {
			cand, err := signature.FromFunc(funcName(fn), fn)
			if err != nil {
				return nil, DefinitionStoreError{
					Name:     name,
					Resource: md.ResourceDescription,
					Cause:    err,
				}
			}
			cands = append(cands, cand)
		}
		return cands, nil
	}

	if md.Type != nil {
		cand, err := zeroConstructor(md.Type)
		if err != nil {
			return nil, DefinitionStoreError{
				Name:     name,
				Resource: md.ResourceDescription,
				Cause:    err,
			}
		}
		return []*Signature{cand}, nil
	}

	return nil, DefinitionStoreError{
		Name:     name,
		Resource: md.ResourceDescription,
		Cause:    ErrNoConstructor,
	}
}

// factoryCandidates resolves the factory component and enumerates its
// factory method. The factory is a creation-order dependency of this
// component.
func (r *ctorResolver) factoryCandidates(ctx *ResolveContext, name string, md *MergedDefinition) ([]*Signature, error) {
	factory, err := r.c.get(ctx, md.FactoryComponent, nil)
	if err != nil {
		return nil, err
	}
	r.c.singletons.RegisterDependent(md.FactoryComponent, name)

	recv := reflect.ValueOf(factory)
	method, ok := recv.Type().MethodByName(md.FactoryMethod)
	if !ok {
		return nil, DefinitionStoreError{
			Name:     name,
			Resource: md.ResourceDescription,
			Cause: fmt.Errorf("factory method %q not found on %s",
				md.FactoryMethod, formatType(recv.Type())),
		}
	}

	cand, err := signature.FromMethod(recv, method)
	if err != nil {
		return nil, DefinitionStoreError{
			Name:     name,
			Resource: md.ResourceDescription,
			Cause:    err,
		}
	}

	md.SetFactoryReturnType(cand.OutType())
	return []*Signature{cand}, nil
}

// zeroConstructor synthesizes a no-argument candidate producing the zero
// value of a struct or pointer-to-struct type.
func zeroConstructor(t reflect.Type) (*Signature, error) {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot synthesize constructor for %s", t)
	}

	fnType := reflect.FuncOf(nil, []reflect.Type{t}, false)
	fn := reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
		if t.Kind() == reflect.Pointer {
			return []reflect.Value{reflect.New(t.Elem())}
		}
		return []reflect.Value{reflect.New(t).Elem()}
	})

	name := base.Name()
	if name == "" {
		name = "Zero"
	}
	return signature.FromFunc("New"+name, fn.Interface())
}

// funcName derives a readable candidate name from a function value.
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "constructor"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	if name == "" {
		return "constructor"
	}
	return name
}

// convertValue adapts a value to a parameter type, reporting whether the
// value can satisfy it at all.
func convertValue(v any, t reflect.Type) (any, bool) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map,
			reflect.Chan, reflect.Func:
			return nil, true
		default:
			return nil, false
		}
	}
	vt := reflect.TypeOf(v)
	if vt.AssignableTo(t) {
		return v, true
	}
	if signature.Convertible(vt, t) {
		return reflect.ValueOf(v).Convert(t).Interface(), true
	}
	return nil, false
}

// emptyDefaultable reports whether an unmatched autowired parameter of this
// type may default to an empty value.
func emptyDefaultable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return true
	default:
		return false
	}
}

// emptyValue builds the empty value for a defaultable parameter type.
func emptyValue(t reflect.Type) any {
	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface()
	case reflect.Map:
		return reflect.MakeMap(t).Interface()
	case reflect.Array:
		return reflect.New(t).Elem().Interface()
	default:
		return nil
	}
}
