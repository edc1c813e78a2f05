package kiln

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	events *[]string

	substituteFor string
	substitute    any
	vetoFor       string
	wrapInitFor   string
}

func (h *recordingHook) BeforeInstantiation(name string, def *MergedDefinition) (any, error) {
	*h.events = append(*h.events, "beforeInstantiation:"+name)
	if name == h.substituteFor {
		return h.substitute, nil
	}
	return nil, nil
}

func (h *recordingHook) AfterInstantiation(name string, instance any) (bool, error) {
	*h.events = append(*h.events, "afterInstantiation:"+name)
	return name != h.vetoFor, nil
}

func (h *recordingHook) Properties(name string, instance any, pvs *PropertyValues) (*PropertyValues, error) {
	*h.events = append(*h.events, "properties:"+name)
	return nil, nil
}

func (h *recordingHook) ProcessDefinition(name string, def *MergedDefinition) error {
	*h.events = append(*h.events, "processDefinition:"+name)
	return nil
}

func (h *recordingHook) BeforeInit(name string, instance any) (any, error) {
	*h.events = append(*h.events, "beforeInit:"+name)
	return nil, nil
}

func (h *recordingHook) AfterInit(name string, instance any) (any, error) {
	*h.events = append(*h.events, "afterInit:"+name)
	if name == h.wrapInitFor {
		return &wrapped{inner: instance}, nil
	}
	return nil, nil
}

type wrapped struct {
	inner any
}

func TestHookSetIndex(t *testing.T) {
	t.Run("index rebuilt after add and remove", func(t *testing.T) {
		s := newHookSet()
		var events []string
		h := &recordingHook{events: &events}

		s.Add(h)
		idx := s.index()
		assert.Len(t, idx.preInstantiation, 1)
		assert.Len(t, idx.init, 1)
		assert.Len(t, idx.destruction, 0)

		assert.True(t, s.Remove(h))
		idx = s.index()
		assert.Len(t, idx.preInstantiation, 0)
	})

	t.Run("remove unknown hook", func(t *testing.T) {
		s := newHookSet()
		assert.False(t, s.Remove(&recordingHook{}))
	})

	t.Run("registration order preserved", func(t *testing.T) {
		s := newHookSet()
		var events []string
		first := &recordingHook{events: &events}
		second := &recordingHook{events: &events}

		s.Add(first, second)
		idx := s.index()
		require.Len(t, idx.definition, 2)
		assert.Same(t, first, idx.definition[0].(*recordingHook))
		assert.Same(t, second, idx.definition[1].(*recordingHook))
	})

	t.Run("concurrent mutation and lookup", func(t *testing.T) {
		s := newHookSet()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					s.Add(&recordingHook{events: new([]string)})
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					for range s.index().init {
					}
				}
			}()
		}
		wg.Wait()

		assert.Len(t, s.index().init, 800)
	})
}

func TestHookPipelineOrder(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Type = reflect.TypeOf((*metricsSink)(nil))
	registerDef(t, defs, def)

	var events []string
	hook := &recordingHook{events: &events}
	c := New(defs, WithHooks(hook))
	defer c.Close()

	_, err := c.Get("svc")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"beforeInstantiation:svc",
		"processDefinition:svc",
		"afterInstantiation:svc",
		"properties:svc",
		"beforeInit:svc",
		"afterInit:svc",
	}, events)
}

func TestPreInstantiationShortCircuit(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Constructors = []any{func() *metricsSink {
		panic("constructor must not run when a hook substitutes the component")
	}}
	registerDef(t, defs, def)

	var events []string
	substitute := &metricsSink{Namespace: "substituted"}
	hook := &recordingHook{events: &events, substituteFor: "svc", substitute: substitute}

	c := New(defs, WithHooks(hook))
	defer c.Close()

	v, err := c.Get("svc")
	require.NoError(t, err)
	assert.Same(t, substitute, v)

	// Only the after-init hooks run for substituted components.
	assert.Equal(t, []string{"beforeInstantiation:svc", "afterInit:svc"}, events)
}

func TestPreInstantiationWithExplicitArguments(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Scope = ScopePrototype
	def.Constructors = []any{func(namespace string) *metricsSink {
		panic("constructor must not run when a hook substitutes the component")
	}}
	registerDef(t, defs, def)

	var events []string
	substitute := &metricsSink{Namespace: "substituted"}
	hook := &recordingHook{events: &events, substituteFor: "svc", substitute: substitute}

	c := New(defs, WithHooks(hook))
	defer c.Close()

	// Substitution applies to explicit-argument requests too.
	v, err := c.GetWithArgs("svc", "jobs")
	require.NoError(t, err)
	assert.Same(t, substitute, v)
}

func TestPopulationVeto(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Type = reflect.TypeOf((*metricsSink)(nil))
	def.Properties.Set("Namespace", "configured")
	registerDef(t, defs, def)

	var events []string
	hook := &recordingHook{events: &events, vetoFor: "svc"}
	c := New(defs, WithHooks(hook))
	defer c.Close()

	v, err := c.Get("svc")
	require.NoError(t, err)
	assert.Equal(t, "", v.(*metricsSink).Namespace, "vetoed components keep their zero properties")
}

func TestInitHookReplacement(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Type = reflect.TypeOf((*metricsSink)(nil))
	registerDef(t, defs, def)

	var events []string
	hook := &recordingHook{events: &events, wrapInitFor: "svc"}
	c := New(defs, WithHooks(hook))
	defer c.Close()

	v, err := c.Get("svc")
	require.NoError(t, err)
	w, ok := v.(*wrapped)
	require.True(t, ok, "after-init replacement becomes the canonical instance")
	assert.IsType(t, &metricsSink{}, w.inner)
}

func TestDefinitionHookRunsOnce(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("proto")
	def.Scope = ScopePrototype
	def.Type = reflect.TypeOf((*metricsSink)(nil))
	registerDef(t, defs, def)

	var events []string
	hook := &recordingHook{events: &events}
	c := New(defs, WithHooks(hook))
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Get("proto")
		require.NoError(t, err)
	}

	processed := 0
	for _, e := range events {
		if e == "processDefinition:proto" {
			processed++
		}
	}
	assert.Equal(t, 1, processed, "definition hooks run once per merged definition")
}

type propertyOverrideHook struct{}

func (propertyOverrideHook) Properties(name string, instance any, pvs *PropertyValues) (*PropertyValues, error) {
	replaced := NewPropertyValues()
	replaced.Set("Namespace", "overridden")
	return replaced, nil
}

func TestPropertiesHookOverride(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Type = reflect.TypeOf((*metricsSink)(nil))
	def.Properties.Set("Namespace", "configured")
	registerDef(t, defs, def)

	c := New(defs, WithHooks(propertyOverrideHook{}))
	defer c.Close()

	v, err := c.Get("svc")
	require.NoError(t, err)
	assert.Equal(t, "overridden", v.(*metricsSink).Namespace)
}

type earlyWrapHook struct {
	wrappedNames []string
}

func (h *earlyWrapHook) EarlyReference(name string, instance any) (any, error) {
	h.wrappedNames = append(h.wrappedNames, name)
	return instance, nil
}

func TestEarlyReferenceHook(t *testing.T) {
	defs := NewDefinitionMap()

	a := NewDefinition("a")
	a.Type = reflect.TypeOf((*cycleA)(nil))
	a.Properties.Set("B", Ref{Name: "b"})
	registerDef(t, defs, a)

	b := NewDefinition("b")
	b.Type = reflect.TypeOf((*cycleB)(nil))
	b.Properties.Set("A", Ref{Name: "a"})
	registerDef(t, defs, b)

	hook := &earlyWrapHook{}
	c := New(defs, WithHooks(hook))
	defer c.Close()

	_, err := c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, hook.wrappedNames,
		"only the component whose early reference was consumed runs the hook")
}

type destructionRecorder struct {
	destroyed []string
}

func (d *destructionRecorder) BeforeDestruction(name string, instance any) error {
	d.destroyed = append(d.destroyed, name)
	return nil
}

func (d *destructionRecorder) RequiresDestruction(instance any) bool {
	_, ok := instance.(*metricsSink)
	return ok
}

func TestDestructionHook(t *testing.T) {
	defs := NewDefinitionMap()

	sink := NewDefinition("sink")
	sink.Type = reflect.TypeOf((*metricsSink)(nil))
	registerDef(t, defs, sink)

	other := NewDefinition("other")
	other.Constructors = []any{func() string { return "plain" }}
	registerDef(t, defs, other)

	hook := &destructionRecorder{}
	c := New(defs, WithHooks(hook))

	_, err := c.Get("sink")
	require.NoError(t, err)
	_, err = c.Get("other")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"sink"}, hook.destroyed,
		"destruction hooks run only for instances they claim")
}

type failingDefinitionHook struct{}

func (failingDefinitionHook) ProcessDefinition(name string, def *MergedDefinition) error {
	return errors.New("rejected")
}

func TestDefinitionHookFailure(t *testing.T) {
	defs := NewDefinitionMap()
	def := NewDefinition("svc")
	def.Type = reflect.TypeOf((*metricsSink)(nil))
	registerDef(t, defs, def)

	c := New(defs, WithHooks(failingDefinitionHook{}))
	defer c.Close()

	_, err := c.Get("svc")
	require.Error(t, err)
	assert.False(t, c.singletons.Contains("svc"))
}
