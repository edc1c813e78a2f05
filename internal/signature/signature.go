// Package signature models candidate construction signatures as ordered
// parameter types plus an invoker, keeping the weighted matching algorithm
// agnostic of where a candidate came from (constructor function, factory
// method, or anything else callable).
package signature

import (
	"fmt"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Candidate is one callable construction signature.
type Candidate struct {
	// Name identifies the candidate in error messages and ambiguity sets.
	Name string

	// Params are the declared parameter types, in order. For methods the
	// receiver is excluded.
	Params []reflect.Type

	// Variadic reports whether the final parameter is variadic.
	Variadic bool

	// Exported reports whether the underlying function or method name is
	// exported. Exported candidates sort ahead of unexported ones.
	Exported bool

	fn           reflect.Value
	returnsError bool
	outType      reflect.Type
}

// FromFunc wraps a plain function as a candidate. The function must return
// a value, optionally followed by an error.
func FromFunc(name string, fn any) (*Candidate, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("candidate %q is not a function: %T", name, fn)
	}
	return fromValue(name, v)
}

// FromMethod wraps a method bound to a receiver as a candidate.
func FromMethod(recv reflect.Value, method reflect.Method) (*Candidate, error) {
	bound := recv.Method(method.Index)
	if !bound.IsValid() {
		return nil, fmt.Errorf("method %q not found on %s", method.Name, recv.Type())
	}
	return fromValue(method.Name, bound)
}

func fromValue(name string, v reflect.Value) (*Candidate, error) {
	t := v.Type()

	numOut := t.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("candidate %q must return (T) or (T, error), has %d returns", name, numOut)
	}
	if numOut == 2 && !t.Out(1).Implements(errType) {
		return nil, fmt.Errorf("candidate %q second return must be error, is %s", name, t.Out(1))
	}
	if t.Out(0).Implements(errType) && numOut == 1 && t.Out(0) == errType {
		return nil, fmt.Errorf("candidate %q must produce a value, returns only error", name)
	}

	params := make([]reflect.Type, t.NumIn())
	for i := range params {
		params[i] = t.In(i)
	}

	return &Candidate{
		Name:         name,
		Params:       params,
		Variadic:     t.IsVariadic(),
		Exported:     isExported(name),
		fn:           v,
		returnsError: numOut == 2,
		outType:      t.Out(0),
	}, nil
}

// OutType returns the type the candidate produces.
func (c *Candidate) OutType() reflect.Type {
	return c.outType
}

// Invoke calls the candidate with the bound arguments. A nil argument becomes
// the zero value of the parameter type. A trailing error return is unwrapped.
func (c *Candidate) Invoke(args []any) (any, error) {
	if !c.Variadic && len(args) != len(c.Params) {
		return nil, fmt.Errorf("candidate %q expects %d arguments, got %d", c.Name, len(c.Params), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		pt := c.paramAt(i)
		if arg == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(pt) {
			if Convertible(av.Type(), pt) {
				av = av.Convert(pt)
			} else {
				return nil, fmt.Errorf("candidate %q argument %d: cannot use %s as %s",
					c.Name, i, av.Type(), pt)
			}
		}
		in[i] = av
	}

	out := c.fn.Call(in)
	if c.returnsError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// paramAt returns the effective parameter type at position i, unrolling the
// variadic tail.
func (c *Candidate) paramAt(i int) reflect.Type {
	if c.Variadic && i >= len(c.Params)-1 {
		return c.Params[len(c.Params)-1].Elem()
	}
	return c.Params[i]
}

// EffectiveParams returns the parameter types an argument list of length n
// binds against, with the variadic tail unrolled.
func (c *Candidate) EffectiveParams(n int) []reflect.Type {
	if !c.Variadic {
		out := make([]reflect.Type, len(c.Params))
		copy(out, c.Params)
		return out
	}
	out := make([]reflect.Type, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.paramAt(i))
	}
	return out
}

// MinParams returns the minimum number of arguments the candidate accepts.
func (c *Candidate) MinParams() int {
	if c.Variadic {
		return len(c.Params) - 1
	}
	return len(c.Params)
}

// String returns a readable representation for error messages.
func (c *Candidate) String() string {
	return fmt.Sprintf("%s%s", c.Name, c.fn.Type())
}

// Sort orders candidates deterministically: exported before unexported,
// more parameters before fewer, then by name for stability.
func Sort(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Exported != b.Exported {
			return a.Exported
		}
		if len(a.Params) != len(b.Params) {
			return len(a.Params) > len(b.Params)
		}
		return a.Name < b.Name
	})
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return r != utf8.RuneError && unicode.IsUpper(r)
}
