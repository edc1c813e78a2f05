package kiln

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergedFlattening(t *testing.T) {
	t.Run("child overrides scalar fields", func(t *testing.T) {
		defs := NewDefinitionMap()

		parent := NewDefinition("base")
		parent.Abstract = true
		parent.Scope = ScopePrototype
		parent.InitMethods = []string{"Warm"}
		parent.Properties.Set("Region", "us-east")
		require.NoError(t, defs.Register(parent))

		child := NewDefinition("store")
		child.Parent = "base"
		child.Scope = ScopeSingleton
		child.Properties.Set("Bucket", "assets")
		require.NoError(t, defs.Register(child))

		m := NewMerger(defs)
		md, err := m.Merged("store")
		require.NoError(t, err)

		assert.Equal(t, "store", md.Name)
		assert.Equal(t, ScopeSingleton, md.Scope)
		assert.False(t, md.Abstract, "concrete child of abstract parent must be instantiable")
		assert.Equal(t, []string{"Warm"}, md.InitMethods, "init methods inherit when child sets none")

		region, ok := md.Properties.Get("Region")
		require.True(t, ok)
		assert.Equal(t, "us-east", region.Value)
		bucket, ok := md.Properties.Get("Bucket")
		require.True(t, ok)
		assert.Equal(t, "assets", bucket.Value)
	})

	t.Run("grandparent chain", func(t *testing.T) {
		defs := NewDefinitionMap()

		top := NewDefinition("top")
		top.Properties.Set("A", 1)
		require.NoError(t, defs.Register(top))

		mid := NewDefinition("mid")
		mid.Parent = "top"
		mid.Properties.Set("B", 2)
		require.NoError(t, defs.Register(mid))

		leaf := NewDefinition("leaf")
		leaf.Parent = "mid"
		leaf.Properties.Set("B", 20)
		require.NoError(t, defs.Register(leaf))

		m := NewMerger(defs)
		md, err := m.Merged("leaf")
		require.NoError(t, err)

		a, _ := md.Properties.Get("A")
		assert.Equal(t, 1, a.Value)
		b, _ := md.Properties.Get("B")
		assert.Equal(t, 20, b.Value, "nearest definition wins per property")
	})

	t.Run("attributes inherit and override", func(t *testing.T) {
		defs := NewDefinitionMap()

		parent := NewDefinition("base")
		parent.SetAttribute("tier", "backend")
		parent.SetAttribute("owner", "platform")
		require.NoError(t, defs.Register(parent))

		child := NewDefinition("store")
		child.Parent = "base"
		child.SetAttribute("owner", "storage")
		require.NoError(t, defs.Register(child))

		m := NewMerger(defs)
		md, err := m.Merged("store")
		require.NoError(t, err)

		tier, ok := md.Attribute("tier")
		require.True(t, ok)
		assert.Equal(t, "backend", tier)
		owner, ok := md.Attribute("owner")
		require.True(t, ok)
		assert.Equal(t, "storage", owner)

		// Merged attributes are copies; mutating them leaves the source alone.
		md.SetAttribute("tier", "edge")
		tier, _ = parent.Attribute("tier")
		assert.Equal(t, "backend", tier)
	})

	t.Run("self parent fails", func(t *testing.T) {
		defs := NewDefinitionMap()
		def := NewDefinition("loop")
		def.Parent = "loop"
		require.NoError(t, defs.Register(def))

		m := NewMerger(defs)
		_, err := m.Merged("loop")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSelfParent)
	})

	t.Run("parent cycle fails", func(t *testing.T) {
		defs := NewDefinitionMap()
		a := NewDefinition("a")
		a.Parent = "b"
		b := NewDefinition("b")
		b.Parent = "a"
		require.NoError(t, defs.Register(a))
		require.NoError(t, defs.Register(b))

		m := NewMerger(defs)
		_, err := m.Merged("a")
		require.Error(t, err)
	})

	t.Run("missing parent fails", func(t *testing.T) {
		defs := NewDefinitionMap()
		def := NewDefinition("orphan")
		def.Parent = "ghost"
		require.NoError(t, defs.Register(def))

		m := NewMerger(defs)
		_, err := m.Merged("orphan")
		require.Error(t, err)

		var store DefinitionStoreError
		require.True(t, errors.As(err, &store))
		assert.Equal(t, "orphan", store.Name)
	})

	t.Run("empty scope defaults to singleton", func(t *testing.T) {
		defs := NewDefinitionMap()
		require.NoError(t, defs.Register(NewDefinition("plain")))

		m := NewMerger(defs)
		md, err := m.Merged("plain")
		require.NoError(t, err)
		assert.Equal(t, ScopeSingleton, md.Scope)
		assert.True(t, md.IsSingleton())
	})
}

func TestMergedScopeInheritance(t *testing.T) {
	// A singleton definition nested inside a prototype component cannot
	// outlive its container; it inherits the containing scope.
	defs := NewDefinitionMap()
	m := NewMerger(defs)

	outer := NewDefinition("outer")
	outer.Scope = ScopePrototype
	outerMD, err := m.MergedFor("outer", outer, nil)
	require.NoError(t, err)

	inner := NewDefinition("inner")
	inner.Scope = ScopeSingleton
	innerMD, err := m.MergedFor("outer#inner", inner, outerMD)
	require.NoError(t, err)

	assert.Equal(t, ScopePrototype, innerMD.Scope)
}

func TestMergedCache(t *testing.T) {
	t.Run("merge result is cached", func(t *testing.T) {
		defs := NewDefinitionMap()
		require.NoError(t, defs.Register(NewDefinition("svc")))

		m := NewMerger(defs)
		first, err := m.Merged("svc")
		require.NoError(t, err)
		second, err := m.Merged("svc")
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("invalidate forces re-merge", func(t *testing.T) {
		defs := NewDefinitionMap()
		def := NewDefinition("svc")
		require.NoError(t, defs.Register(def))

		m := NewMerger(defs)
		first, err := m.Merged("svc")
		require.NoError(t, err)

		def.Properties.Set("Tag", "v2")
		require.NoError(t, defs.Replace(def))
		m.Invalidate("svc")

		second, err := m.Merged("svc")
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		tag, ok := second.Properties.Get("Tag")
		require.True(t, ok)
		assert.Equal(t, "v2", tag.Value)
	})

	t.Run("type caches survive same-identity invalidation", func(t *testing.T) {
		defs := NewDefinitionMap()
		def := NewDefinition("svc")
		def.Type = reflect.TypeOf(&struct{ X int }{})
		require.NoError(t, defs.Register(def))

		m := NewMerger(defs)
		first, err := m.Merged("svc")
		require.NoError(t, err)
		first.SetResolvedType(def.Type)

		m.Invalidate("svc")
		second, err := m.Merged("svc")
		require.NoError(t, err)
		assert.Equal(t, def.Type, second.ResolvedType())
	})

	t.Run("type caches dropped when identity changes", func(t *testing.T) {
		defs := NewDefinitionMap()
		def := NewDefinition("svc")
		def.TypeName = "v1"
		require.NoError(t, defs.Register(def))

		m := NewMerger(defs)
		first, err := m.Merged("svc")
		require.NoError(t, err)
		first.SetResolvedType(reflect.TypeOf(0))

		def.TypeName = "v2"
		require.NoError(t, defs.Replace(def))
		m.Invalidate("svc")

		second, err := m.Merged("svc")
		require.NoError(t, err)
		assert.Nil(t, second.ResolvedType())
	})

	t.Run("clear cache skips creation-started components", func(t *testing.T) {
		defs := NewDefinitionMap()
		require.NoError(t, defs.Register(NewDefinition("frozen")))
		require.NoError(t, defs.Register(NewDefinition("volatile")))

		m := NewMerger(defs)
		frozen, err := m.Merged("frozen")
		require.NoError(t, err)
		volatile, err := m.Merged("volatile")
		require.NoError(t, err)

		m.MarkCreationStarted("frozen")
		m.ClearCache()

		assert.False(t, frozen.Stale())
		assert.True(t, volatile.Stale())

		again, err := m.Merged("frozen")
		require.NoError(t, err)
		assert.Same(t, frozen, again)
	})
}

func TestMergedDefinitionProcessedOnce(t *testing.T) {
	md := &MergedDefinition{Definition: NewDefinition("x")}
	assert.True(t, md.markProcessedOnce())
	assert.False(t, md.markProcessedOnce())
}
