package graph

import (
	"reflect"
	"testing"
)

func TestRegister(t *testing.T) {
	t.Run("records both directions", func(t *testing.T) {
		r := New()
		r.Register("db", "repo")

		if got := r.DependentsOf("db"); !reflect.DeepEqual(got, []string{"repo"}) {
			t.Errorf("DependentsOf(db) = %v, want [repo]", got)
		}
		if got := r.DependenciesOf("repo"); !reflect.DeepEqual(got, []string{"db"}) {
			t.Errorf("DependenciesOf(repo) = %v, want [db]", got)
		}
	})

	t.Run("ignores duplicates", func(t *testing.T) {
		r := New()
		r.Register("db", "repo")
		r.Register("db", "repo")

		if got := r.DependentsOf("db"); len(got) != 1 {
			t.Errorf("expected 1 dependent after duplicate registration, got %v", got)
		}
	})

	t.Run("ignores self edges", func(t *testing.T) {
		r := New()
		r.Register("db", "db")

		if r.HasDependents("db") {
			t.Error("self edge should not be recorded")
		}
	})

	t.Run("preserves registration order", func(t *testing.T) {
		r := New()
		r.Register("db", "repo")
		r.Register("db", "cache")
		r.Register("db", "audit")

		want := []string{"repo", "cache", "audit"}
		if got := r.DependentsOf("db"); !reflect.DeepEqual(got, want) {
			t.Errorf("DependentsOf(db) = %v, want %v", got, want)
		}
	})
}

func TestIsDependent(t *testing.T) {
	r := New()
	r.Register("db", "repo")
	r.Register("repo", "service")
	r.Register("service", "handler")

	t.Run("direct", func(t *testing.T) {
		if !r.IsDependent("db", "repo") {
			t.Error("repo should be a direct dependent of db")
		}
	})

	t.Run("transitive", func(t *testing.T) {
		if !r.IsDependent("db", "handler") {
			t.Error("handler should be a transitive dependent of db")
		}
	})

	t.Run("reverse direction", func(t *testing.T) {
		if r.IsDependent("handler", "db") {
			t.Error("db is not a dependent of handler")
		}
	})

	t.Run("cycle safe", func(t *testing.T) {
		c := New()
		c.Register("a", "b")
		c.Register("b", "a")
		if c.IsDependent("a", "missing") {
			t.Error("walk over a cycle should terminate and report false")
		}
	})
}

func TestPath(t *testing.T) {
	r := New()
	r.Register("db", "repo")
	r.Register("repo", "service")

	got := r.Path("db", "service")
	want := []string{"db", "repo", "service"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Path(db, service) = %v, want %v", got, want)
	}

	if r.Path("service", "db") != nil {
		t.Error("no path should exist from service back to db")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Register("db", "repo")
	r.Register("repo", "service")
	r.Register("cache", "repo")

	r.Remove("repo")

	if r.HasDependents("repo") {
		t.Error("removed node should have no dependents")
	}
	if got := r.DependentsOf("db"); len(got) != 0 {
		t.Errorf("edges into removed node should be gone, got %v", got)
	}
	if got := r.DependentsOf("cache"); len(got) != 0 {
		t.Errorf("removed node should be dropped from dependent order, got %v", got)
	}
}

func TestClearAndSize(t *testing.T) {
	r := New()
	r.Register("db", "repo")
	r.Register("repo", "service")

	if got := r.Size(); got != 3 {
		t.Errorf("Size = %d, want 3", got)
	}

	r.Clear()
	if got := r.Size(); got != 0 {
		t.Errorf("Size after Clear = %d, want 0", got)
	}
}
