// Package cache provides the cache manager consumed by the access layer:
// an LRU memoization of parsed SST metadata and the optional write-through
// local cache that uploads to the remote store.
package cache

import (
	"container/list"
	"expvar"
	"sync"
)

// cacheEntry holds the key and value for one cache item.
type cacheEntry struct {
	key   string
	value interface{}
}

// LRUCache is a generic fixed-size LRU cache. A capacity of zero or less
// disables it: Put becomes a no-op and Get always misses.
type LRUCache struct {
	mu         sync.Mutex
	capacity   int
	lruList    *list.List
	cacheItems map[string]*list.Element
	onEvicted  func(key string, value interface{})

	hits   *expvar.Int
	misses *expvar.Int
}

// NewLRUCache creates a new LRUCache with an optional eviction callback.
func NewLRUCache(capacity int, onEvicted func(key string, value interface{})) *LRUCache {
	return &LRUCache{
		capacity:   capacity,
		lruList:    list.New(),
		cacheItems: make(map[string]*list.Element),
		onEvicted:  onEvicted,
	}
}

// SetMetrics attaches hit/miss counters.
func (c *LRUCache) SetMetrics(hits, misses *expvar.Int) {
	c.hits = hits
	c.misses = misses
}

// Get retrieves a value from the cache.
func (c *LRUCache) Get(key string) (value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return nil, false
	}
	if elem, ok := c.cacheItems[key]; ok {
		if c.hits != nil {
			c.hits.Add(1)
		}
		c.lruList.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	if c.misses != nil {
		c.misses.Add(1)
	}
	return nil, false
}

// Put adds a value to the cache, evicting the least recently used item
// when at capacity.
func (c *LRUCache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}
	if elem, ok := c.cacheItems[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	if c.lruList.Len() >= c.capacity {
		c.evict()
	}
	newEntry := &cacheEntry{key: key, value: value}
	c.cacheItems[key] = c.lruList.PushFront(newEntry)
}

// Len returns the current number of items in the cache.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Clear empties the cache without invoking eviction callbacks.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lruList.Init()
	c.cacheItems = make(map[string]*list.Element)
}

// evict removes the least recently used item. Must be called with c.mu held.
func (c *LRUCache) evict() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	removed := c.lruList.Remove(elem).(*cacheEntry)
	delete(c.cacheItems, removed.key)
	if c.onEvicted != nil {
		c.onEvicted(removed.key, removed.value)
	}
}
