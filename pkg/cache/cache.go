// Package cache is the per-session generation cache: an exact-match lookup
// from prompt text to a previously generated image reference.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/pario-ai/imagine/pkg/models"
)

// Cache maps prompts to image references. Entries never expire.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns the image reference cached for prompt.
func (c *Cache) Get(prompt string) (string, bool) {
	c.mu.RLock()
	url, ok := c.entries[prompt]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return url, true
}

// Put stores the image reference for prompt, replacing any previous one.
func (c *Cache) Put(prompt, imageURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[prompt] = imageURL
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return models.CacheStats{
		Entries: int64(n),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}
