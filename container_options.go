package kiln

import "github.com/rs/zerolog"

// Option configures a Container at construction time.
type Option func(*Container)

// WithLogger sets the structured logger. The default logger discards
// everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithValueResolver replaces the default configured-value resolver.
func WithValueResolver(r ValueResolver) Option {
	return func(c *Container) {
		if r != nil {
			c.values = r
		}
	}
}

// WithDependencyResolver replaces the default type-based dependency
// resolver used for autowiring.
func WithDependencyResolver(r DependencyResolver) Option {
	return func(c *Container) {
		if r != nil {
			c.deps = r
		}
	}
}

// WithInstantiationStrategy replaces the default reflective construction
// call, for instrumented or proxying instantiation.
func WithInstantiationStrategy(s InstantiationStrategy) Option {
	return func(c *Container) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithHooks registers interception hooks at construction time.
func WithHooks(hooks ...any) Option {
	return func(c *Container) {
		c.hooks.Add(hooks...)
	}
}

// WithAllowCircularReferences controls whether singletons may be exposed
// early to break circular references. Enabled by default; disable it to
// fail fast on any cycle.
func WithAllowCircularReferences(allow bool) Option {
	return func(c *Container) {
		c.allowCircular = allow
	}
}

// WithAllowRawInjectionDespiteWrapping tolerates the raw form of a
// circularly-referenced singleton remaining injected in collaborators even
// after an init hook wrapped the instance.
func WithAllowRawInjectionDespiteWrapping() Option {
	return func(c *Container) {
		c.allowRawInjection = true
	}
}

// WithLenientCreation releases the creation lock while a singleton's
// creator runs, letting unrelated singletons be created concurrently.
// Goroutines that race on one name block until the first creator finishes;
// a transitive wait cycle between goroutines is detected and reported.
func WithLenientCreation() Option {
	return func(c *Container) {
		c.lenient = true
	}
}

// WithStrictResolution makes constructor signature matching strict: only
// exact assignability counts, and equally-matched candidates are reported
// as ambiguous instead of resolved by declaration order.
func WithStrictResolution() Option {
	return func(c *Container) {
		c.strict = true
	}
}
