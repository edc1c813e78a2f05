package signature

import (
	"io"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestDistance(t *testing.T) {
	stringType := reflect.TypeOf("")
	readerType := reflect.TypeOf((*io.Reader)(nil)).Elem()

	tests := []struct {
		name  string
		param reflect.Type
		value any
		want  int
	}{
		{"exact", stringType, "s", 0},
		{"interface", readerType, strings.NewReader("s"), 1},
		{"convertible", reflect.TypeOf(int64(0)), int(1), 4},
		{"unassignable", stringType, 42, Unassignable},
		{"rune conversion excluded", stringType, rune('x'), Unassignable},
		{"byte slice to string", stringType, []byte("b"), 4},
		{"nil to pointer", reflect.TypeOf((*int)(nil)), nil, 0},
		{"nil to value", stringType, nil, Unassignable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := distance(tt.param, tt.value); got != tt.want {
				t.Errorf("distance = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTypeDifferenceWeight(t *testing.T) {
	params := []reflect.Type{reflect.TypeOf(""), reflect.TypeOf(int64(0))}

	t.Run("sums per-parameter distances", func(t *testing.T) {
		if got := TypeDifferenceWeight(params, []any{"s", int(1)}); got != 4 {
			t.Errorf("weight = %d, want 4", got)
		}
	})

	t.Run("unassignable dominates", func(t *testing.T) {
		if got := TypeDifferenceWeight(params, []any{"s", "not a number"}); got != Unassignable {
			t.Errorf("weight = %d, want Unassignable", got)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if got := TypeDifferenceWeight(params, []any{"s"}); got != Unassignable {
			t.Errorf("weight = %d, want Unassignable", got)
		}
	})
}

func TestWeight(t *testing.T) {
	params := []reflect.Type{reflect.TypeOf(int64(0))}

	t.Run("raw match wins via bias", func(t *testing.T) {
		// raw already fits exactly: raw weight 0 - RawBias beats converted 0
		got := Weight(params, []any{int64(1)}, []any{int64(1)})
		if got != -RawBias {
			t.Errorf("weight = %d, want %d", got, -RawBias)
		}
	})

	t.Run("converted only", func(t *testing.T) {
		// raw int needs conversion (distance 4), converted fits exactly;
		// 4-RawBias still beats 0
		got := Weight(params, []any{int64(1)}, []any{int(1)})
		if got != 4-RawBias {
			t.Errorf("weight = %d, want %d", got, 4-RawBias)
		}
	})

	t.Run("raw unassignable falls back to converted", func(t *testing.T) {
		got := Weight(params, []any{int64(1)}, []any{"s"})
		if got != 0 {
			t.Errorf("weight = %d, want 0", got)
		}
	})
}

func TestAssignabilityWeight(t *testing.T) {
	params := []reflect.Type{reflect.TypeOf("")}

	t.Run("full match is minimal", func(t *testing.T) {
		if got := AssignabilityWeight(params, []any{"s"}, []any{"s"}); got != math.MinInt {
			t.Errorf("weight = %d, want MinInt", got)
		}
	})

	t.Run("converted unfit", func(t *testing.T) {
		if got := AssignabilityWeight(params, []any{42}, []any{42}); got != Unassignable {
			t.Errorf("weight = %d, want Unassignable", got)
		}
	})

	t.Run("raw unfit penalized", func(t *testing.T) {
		if got := AssignabilityWeight(params, []any{"s"}, []any{42}); got != Unassignable-RawBias {
			t.Errorf("weight = %d, want Unassignable-RawBias", got)
		}
	})
}
