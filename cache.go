package kiln

import (
	"sync"
)

// nilProductMarker distinguishes "factory produced nil" from "not yet
// attempted" in the product cache.
type nilProductMarker struct{}

var nilProduct any = nilProductMarker{}

// productCache provides thread-safe caching for objects produced through
// factory indirection, keyed by the producing component's name.
type productCache struct {
	products map[string]any
	mu       sync.RWMutex
}

// newProductCache creates a new product cache.
func newProductCache() *productCache {
	return &productCache{
		products: make(map[string]any),
	}
}

// get retrieves a cached product. The boolean reports whether production was
// attempted; a nil product returns (nil, true).
func (c *productCache) get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, ok := c.products[name]
	if !ok {
		return nil, false
	}
	if product == nilProduct {
		return nil, true
	}
	return product, true
}

// setIfAbsent stores a product unless an entry already exists; a
// concurrently-materialized entry wins over a freshly-produced one. It
// returns the canonical product.
func (c *productCache) setIfAbsent(name string, product any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.products[name]; ok {
		if existing == nilProduct {
			return nil
		}
		return existing
	}

	stored := product
	if stored == nil {
		stored = nilProduct
	}
	c.products[name] = stored
	return product
}

// delete removes a product from the cache.
func (c *productCache) delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, name)
}

// clear removes all products from the cache.
func (c *productCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = make(map[string]any)
}
