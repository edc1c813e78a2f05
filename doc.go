// Package kiln provides the object-graph construction core of a name-keyed
// component container: definition merging with parent inheritance, a tiered
// singleton registry that resolves circular references, a multi-phase creation
// pipeline with pluggable interception hooks, and deterministic selection
// among candidate constructor and factory signatures.
//
// # Overview
//
// kiln builds components from declarative definitions. The library provides:
//   - Singleton and prototype scopes with at-most-one singleton creation
//     under concurrent access
//   - Recursive parent/child definition inheritance with field-level merging
//   - Circular singleton references resolved through early exposure
//   - Weighted, reproducible constructor/factory signature selection
//   - Capability-tagged interception hooks around every creation phase
//   - Deterministic reverse-dependency destruction ordering
//
// # Basic Usage
//
// Register definitions in a DefinitionMap, create a Container, and resolve
// components by name:
//
//	defs := kiln.NewDefinitionMap()
//	defs.Register(&kiln.Definition{
//	    Name:         "database",
//	    Constructors: []any{NewDatabase},
//	})
//	defs.Register(&kiln.Definition{
//	    Name:         "userService",
//	    Constructors: []any{NewUserService},
//	    Autowire:     kiln.AutowireByType,
//	})
//
//	c := kiln.New(defs)
//	defer c.Close()
//
//	svc, err := kiln.Resolve[*UserService](c, "userService")
//
// # Scopes
//
// kiln supports two scopes:
//
//   - Singleton: one instance per container, created on first request and
//     cached for the container's lifetime
//   - Prototype: a new instance for every request, never cached and never
//     destroyed by the container
//
// Declarative-config parsing, component scanning, proxy generation, and
// custom scopes are external collaborators and out of scope for this package.
package kiln
