package content

import "sync"

type cacheKey struct {
	kind     Kind
	name     string
	language string
}

// cache stores resolved items keyed by (kind, slug, language). Entries are
// only ever replaced whole or dropped wholesale, never mutated in place, so
// readers can use returned items without copying.
type cache struct {
	mu    sync.RWMutex
	items map[cacheKey]Item
}

func newCache() *cache {
	return &cache{items: make(map[cacheKey]Item)}
}

func (c *cache) get(key cacheKey) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	return item, ok
}

func (c *cache) set(key cacheKey, item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[cacheKey]Item)
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
