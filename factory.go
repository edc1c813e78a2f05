package kiln

import (
	"reflect"
	"strings"
)

// factoryPrefix dereferences a factory component: getting "&name" returns
// the ObjectFactory itself instead of the object it produces.
const factoryPrefix = "&"

// ObjectFactory is a component whose role is producing another object.
// Getting the factory's name from the container returns the product; the
// factory itself is reachable under the "&"-prefixed name.
type ObjectFactory interface {
	// Object produces the object this factory exposes.
	Object() (any, error)

	// ObjectType returns the type of object this factory produces, or nil
	// if not known in advance.
	ObjectType() reflect.Type

	// Singleton reports whether the product may be cached. A factory may
	// advertise non-singleton production even when its own definition is
	// singleton-scoped.
	Singleton() bool
}

// TypedObjectFactory is an ObjectFactory that can be asked for a product
// constrained to a required type.
type TypedObjectFactory interface {
	ObjectFactory

	// ObjectFor produces an object satisfying the required type.
	ObjectFor(required reflect.Type) (any, error)
}

// isFactoryDereference reports whether name requests the factory component
// itself, and returns the canonical component name.
func isFactoryDereference(name string) (string, bool) {
	if strings.HasPrefix(name, factoryPrefix) {
		return strings.TrimPrefix(name, factoryPrefix), true
	}
	return name, false
}

// productFor returns the object produced by factory, caching it only when
// the producing component is singleton-scoped and the factory advertises
// singleton production. A concurrently-materialized cache entry wins over a
// freshly-produced one. Freshly-produced objects run through the after-init
// hooks.
func (c *Container) productFor(ctx *ResolveContext, name string, factory ObjectFactory, md *MergedDefinition) (any, error) {
	cacheable := factory.Singleton() && (md == nil || md.IsSingleton())

	if cacheable {
		if product, attempted := c.products.get(name); attempted {
			return product, nil
		}
	}

	product, err := factory.Object()
	if err != nil {
		return nil, wrapCreation(name, resourceOf(md), "factory production", err)
	}

	if product != nil {
		product, err = c.applyAfterInitHooks(name, product)
		if err != nil {
			return nil, wrapCreation(name, resourceOf(md), "factory production", err)
		}
	}

	if cacheable {
		return c.products.setIfAbsent(name, product), nil
	}
	return product, nil
}

// typedProductFor is productFor constrained to a required type. Factories
// that implement TypedObjectFactory produce for the type directly; otherwise
// the unconstrained product is type-checked.
func (c *Container) typedProductFor(ctx *ResolveContext, name string, factory ObjectFactory, md *MergedDefinition, required reflect.Type) (any, error) {
	if typed, ok := factory.(TypedObjectFactory); ok {
		product, err := typed.ObjectFor(required)
		if err != nil {
			return nil, wrapCreation(name, resourceOf(md), "factory production", err)
		}
		return product, nil
	}

	product, err := c.productFor(ctx, name, factory, md)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}
	if pt := reflect.TypeOf(product); !pt.AssignableTo(required) {
		return nil, TypeMismatchError{
			Expected: required,
			Actual:   pt,
			Context:  "required type",
		}
	}
	return product, nil
}

func resourceOf(md *MergedDefinition) string {
	if md == nil {
		return ""
	}
	return md.ResourceDescription
}
