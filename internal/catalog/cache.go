package catalog

import (
	"sync"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

// Cache memoizes fetched model lists per provider for the lifetime of the
// process. It is never refreshed automatically; a credential change does not
// invalidate a cached list. Callers drop entries explicitly via Invalidate.
// Concurrent fetches for the same provider are not deduplicated; the last
// write wins.
type Cache struct {
	mu    sync.Mutex
	lists map[provider.Type][]ModelInfo
}

func NewCache() *Cache {
	return &Cache{lists: make(map[provider.Type][]ModelInfo)}
}

func (c *Cache) Get(p provider.Type) ([]ModelInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	models, ok := c.lists[p]
	return models, ok
}

func (c *Cache) Put(p provider.Type, models []ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[p] = models
}

// Invalidate drops the cached list for one provider.
func (c *Cache) Invalidate(p provider.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, p)
}

// InvalidateAll drops every cached list.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = make(map[provider.Type][]ModelInfo)
}
