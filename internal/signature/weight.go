package signature

import (
	"math"
	"reflect"
)

// RawBias is subtracted from the raw-argument weight so that a signature
// matching the unconverted values is preferred over one that only matches
// after conversion.
const RawBias = 1024

// Unassignable marks a binding that cannot satisfy a parameter at all.
const Unassignable = math.MaxInt

// Assignable reports whether value can satisfy a parameter of type param,
// directly or by conversion. nil satisfies any nilable parameter.
func Assignable(param reflect.Type, value any) bool {
	return distance(param, value) != Unassignable
}

// distance scores how closely a single value matches a declared parameter
// type. Lower is closer; Unassignable means no match.
func distance(param reflect.Type, value any) int {
	if value == nil {
		switch param.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map,
			reflect.Chan, reflect.Func:
			return 0
		default:
			return Unassignable
		}
	}

	vt := reflect.TypeOf(value)
	if vt == param {
		return 0
	}
	if param.Kind() == reflect.Interface && vt.Implements(param) {
		return 1
	}
	if vt.AssignableTo(param) {
		return 2
	}
	if Convertible(vt, param) {
		return 4
	}
	return Unassignable
}

// Convertible reports whether from converts to to in a value-preserving way.
// Go's integer-to-string conversion produces a rune string, never an intended
// argument value, so cross-kind conversions to string are excluded unless the
// source is a byte or rune slice.
func Convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if to.Kind() == reflect.String && from.Kind() != reflect.String && from.Kind() != reflect.Slice {
		return false
	}
	return true
}

// TypeDifferenceWeight sums the per-parameter distances between declared
// parameter types and argument values. Unassignable if any argument cannot
// satisfy its parameter.
func TypeDifferenceWeight(params []reflect.Type, args []any) int {
	if len(params) != len(args) {
		return Unassignable
	}
	total := 0
	for i, pt := range params {
		d := distance(pt, args[i])
		if d == Unassignable {
			return Unassignable
		}
		total += d
	}
	return total
}

// Weight scores a successful binding in lenient mode: the lesser of the
// converted-argument weight and the raw-argument weight discounted by
// RawBias.
func Weight(params []reflect.Type, converted, raw []any) int {
	cw := TypeDifferenceWeight(params, converted)
	rw := TypeDifferenceWeight(params, raw)
	if rw != Unassignable {
		rw -= RawBias
	}
	if rw < cw {
		return rw
	}
	return cw
}

// AssignabilityWeight scores a binding in strict mode with a coarse binary
// check, so ties surface as ambiguity instead of a silent preference:
// Unassignable if any converted argument does not fit, a near-maximal
// penalty if the raw values do not fit, and the minimum weight otherwise.
func AssignabilityWeight(params []reflect.Type, converted, raw []any) int {
	if len(params) != len(converted) || len(params) != len(raw) {
		return Unassignable
	}
	for i, pt := range params {
		if distance(pt, converted[i]) == Unassignable {
			return Unassignable
		}
	}
	for i, pt := range params {
		if distance(pt, raw[i]) == Unassignable {
			return Unassignable - RawBias
		}
	}
	return math.MinInt
}
