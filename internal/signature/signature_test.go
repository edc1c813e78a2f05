package signature

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type widget struct {
	size int
}

func newWidget(size int) *widget { return &widget{size: size} }

func newWidgetErr(size int) (*widget, error) {
	if size < 0 {
		return nil, errors.New("negative size")
	}
	return &widget{size: size}, nil
}

func TestFromFunc(t *testing.T) {
	t.Run("single return", func(t *testing.T) {
		c, err := FromFunc("newWidget", newWidget)
		if err != nil {
			t.Fatalf("FromFunc failed: %v", err)
		}
		if len(c.Params) != 1 || c.Params[0] != reflect.TypeOf(0) {
			t.Errorf("unexpected params: %v", c.Params)
		}
		if c.OutType() != reflect.TypeOf((*widget)(nil)) {
			t.Errorf("unexpected out type: %v", c.OutType())
		}
		if c.Exported {
			t.Error("lowercase name should not be exported")
		}
	})

	t.Run("value and error return", func(t *testing.T) {
		c, err := FromFunc("newWidgetErr", newWidgetErr)
		if err != nil {
			t.Fatalf("FromFunc failed: %v", err)
		}
		if !c.returnsError {
			t.Error("error return should be detected")
		}
	})

	t.Run("rejects non-functions", func(t *testing.T) {
		if _, err := FromFunc("notAFunc", 42); err == nil {
			t.Error("expected error for non-function")
		}
	})

	t.Run("rejects zero returns", func(t *testing.T) {
		if _, err := FromFunc("noReturn", func() {}); err == nil {
			t.Error("expected error for function with no returns")
		}
	})

	t.Run("rejects bad second return", func(t *testing.T) {
		if _, err := FromFunc("badSecond", func() (int, int) { return 0, 0 }); err == nil {
			t.Error("expected error for non-error second return")
		}
	})

	t.Run("rejects error-only return", func(t *testing.T) {
		if _, err := FromFunc("errOnly", func() error { return nil }); err == nil {
			t.Error("expected error for error-only return")
		}
	})
}

func TestFromMethod(t *testing.T) {
	recvType := reflect.TypeOf(&methodFactory{})
	m, ok := recvType.MethodByName("Make")
	if !ok {
		t.Fatal("Make method not found")
	}

	c, err := FromMethod(reflect.ValueOf(&methodFactory{prefix: "x"}), m)
	if err != nil {
		t.Fatalf("FromMethod failed: %v", err)
	}
	if len(c.Params) != 1 {
		t.Fatalf("receiver should be excluded from params, got %v", c.Params)
	}

	v, err := c.Invoke([]any{"y"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if v != "xy" {
		t.Errorf("Invoke = %v, want xy", v)
	}
}

type methodFactory struct {
	prefix string
}

func (f *methodFactory) Make(s string) string { return f.prefix + s }

func TestInvoke(t *testing.T) {
	t.Run("nil becomes zero value", func(t *testing.T) {
		c, _ := FromFunc("f", func(w *widget) bool { return w == nil })
		v, err := c.Invoke([]any{nil})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if v != true {
			t.Error("nil argument should become nil pointer")
		}
	})

	t.Run("converts compatible arguments", func(t *testing.T) {
		c, _ := FromFunc("f", func(n int64) int64 { return n * 2 })
		v, err := c.Invoke([]any{int(21)})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if v != int64(42) {
			t.Errorf("Invoke = %v, want 42", v)
		}
	})

	t.Run("unwraps trailing error", func(t *testing.T) {
		c, _ := FromFunc("newWidgetErr", newWidgetErr)
		if _, err := c.Invoke([]any{-1}); err == nil {
			t.Error("constructor error should propagate")
		}
	})

	t.Run("rejects argument count mismatch", func(t *testing.T) {
		c, _ := FromFunc("newWidget", newWidget)
		if _, err := c.Invoke(nil); err == nil {
			t.Error("expected error for missing arguments")
		}
	})

	t.Run("variadic tail", func(t *testing.T) {
		c, _ := FromFunc("join", func(sep string, parts ...string) string {
			return strings.Join(parts, sep)
		})
		v, err := c.Invoke([]any{"-", "a", "b", "c"})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if v != "a-b-c" {
			t.Errorf("Invoke = %v, want a-b-c", v)
		}
	})
}

func TestEffectiveParams(t *testing.T) {
	c, _ := FromFunc("join", func(sep string, parts ...string) string { return "" })

	got := c.EffectiveParams(3)
	if len(got) != 3 {
		t.Fatalf("EffectiveParams(3) has %d entries", len(got))
	}
	for i, pt := range got {
		if pt != reflect.TypeOf("") {
			t.Errorf("param %d = %v, want string", i, pt)
		}
	}
	if c.MinParams() != 1 {
		t.Errorf("MinParams = %d, want 1", c.MinParams())
	}
}

func TestSort(t *testing.T) {
	a, _ := FromFunc("alpha", func() int { return 0 })
	b, _ := FromFunc("Beta", func(int) int { return 0 })
	c, _ := FromFunc("Alpha", func(int, int) int { return 0 })

	cands := []*Candidate{a, b, c}
	Sort(cands)

	wantOrder := []string{"Alpha", "Beta", "alpha"}
	for i, want := range wantOrder {
		if cands[i].Name != want {
			t.Errorf("position %d: got %s, want %s", i, cands[i].Name, want)
		}
	}
}
