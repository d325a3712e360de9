package vectorstore

import (
	"container/list"
	"sync"
)

// DefaultCacheCapacity is the vector cache size used when none is configured.
const DefaultCacheCapacity = 1000

// Cache is a bounded LRU cache from document id to decoded vector. It is
// purely advisory: the store row is the source of truth and a miss means the
// caller decodes from the row. Refreshing an entry after an upsert is the
// writer's job, not the cache's.
type Cache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	id     string
	vector []float32
}

// NewCache creates a cache holding at most capacity vectors.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached vector for id, marking it recently used.
func (c *Cache) Get(id string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[id]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).vector, true
	}
	return nil, false
}

// Put stores the vector for id, evicting the least-recently-used entry when
// inserting a new id at capacity.
func (c *Cache) Put(id string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[id]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).vector = vector
		return
	}
	if c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).id)
		}
	}
	c.entries[id] = c.lru.PushFront(&cacheEntry{id: id, vector: vector})
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
