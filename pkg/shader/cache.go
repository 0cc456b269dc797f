package shader

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// Stats reports cache activity.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache holds compiled permutations by key. Concurrent requests for one key
// share a single compile, and an entry is never replaced once stored.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*asset.Shader
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*asset.Shader)}
}

func (c *Cache) lookup(key string) (*asset.Shader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	return s, ok
}

// insert stores s unless key is present and returns the stored entry.
func (c *Cache) insert(key string, s *asset.Shader) *asset.Shader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[key]; ok {
		return prev
	}
	c.entries[key] = s
	return s
}

// Get returns the entry for key, running compile at most once per key
// across concurrent callers. Failed compiles are not stored.
func (c *Cache) Get(key string, compile func() (*asset.Shader, error)) (*asset.Shader, bool, error) {
	if s, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return s, true, nil
	}

	executed, hit := false, false
	v, err, _ := c.group.Do(key, func() (any, error) {
		executed = true
		if s, ok := c.lookup(key); ok {
			hit = true
			return s, nil
		}
		c.misses.Add(1)
		s, err := compile()
		if err != nil {
			return nil, err
		}
		return c.insert(key, s), nil
	})
	if err != nil {
		return nil, false, err
	}
	// Callers that waited on another's compile count as hits.
	if !executed || hit {
		c.hits.Add(1)
		return v.(*asset.Shader), true, nil
	}
	return v.(*asset.Shader), false, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}

// Len returns the number of stored permutations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
