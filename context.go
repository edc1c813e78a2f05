package kiln

// ResolveContext threads per-request creation state through the pipeline
// instead of hiding it in goroutine-local storage: the chain of singleton
// names being created on this logical call path, the prototypes currently in
// creation, and registry lock ownership for re-entrant collaborator calls.
//
// A context must stay on a single goroutine. Collaborators invoked
// mid-creation receive the context and must pass it back into any container
// call they make.
type ResolveContext struct {
	chain      []string
	prototypes map[string]struct{}
	lockDepth  int
}

// NewResolveContext creates an empty resolve context. The container creates
// one per top-level request; external callers only need this when driving
// the registry directly.
func NewResolveContext() *ResolveContext {
	return &ResolveContext{}
}

// InChain reports whether name is a singleton currently being created on
// this call path.
func (c *ResolveContext) InChain(name string) bool {
	for _, n := range c.chain {
		if n == name {
			return true
		}
	}
	return false
}

// Chain returns a copy of the singleton creation chain, outermost first.
func (c *ResolveContext) Chain() []string {
	out := make([]string, len(c.chain))
	copy(out, c.chain)
	return out
}

// top returns the singleton currently being created, or "".
func (c *ResolveContext) top() string {
	if len(c.chain) == 0 {
		return ""
	}
	return c.chain[len(c.chain)-1]
}

func (c *ResolveContext) push(name string) {
	c.chain = append(c.chain, name)
}

func (c *ResolveContext) pop() {
	if len(c.chain) > 0 {
		c.chain = c.chain[:len(c.chain)-1]
	}
}

// prototypeBegin marks a prototype as in creation on this call path. A
// prototype self-cycle fails fast instead of recursing indefinitely.
func (c *ResolveContext) prototypeBegin(name string) error {
	if c.prototypes == nil {
		c.prototypes = make(map[string]struct{})
	}
	if _, creating := c.prototypes[name]; creating {
		return CurrentlyInCreationError{Name: name, Path: c.Chain()}
	}
	c.prototypes[name] = struct{}{}
	return nil
}

func (c *ResolveContext) prototypeEnd(name string) {
	delete(c.prototypes, name)
}

// prototypeInCreation reports whether name is a prototype currently being
// created on this call path.
func (c *ResolveContext) prototypeInCreation(name string) bool {
	_, ok := c.prototypes[name]
	return ok
}
