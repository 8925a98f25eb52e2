package cache

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry is one cached value plus its insertion timestamp. TTL is measured
// from insertion and checked lazily on access.
type lruEntry struct {
	key        string
	value      string
	insertedAt time.Time
}

// lruCache is the in-process level: fixed capacity, move-to-front on access
// or update, evict from the tail. It never holds the only copy of a value.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// get returns the value and promotes the entry. An entry past its TTL is
// treated as absent and removed.
func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*lruEntry)
	if c.ttl > 0 && time.Since(entry.insertedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.items, key)
		return "", false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// put inserts or updates an entry, evicting the least-recently-used one when
// over capacity. Updates reset the insertion timestamp.
func (c *lruCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.insertedAt = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&lruEntry{
		key:        key,
		value:      value,
		insertedAt: time.Now(),
	})

	for c.order.Len() > c.capacity {
		tail := c.order.Back()
		if tail == nil {
			break
		}
		c.order.Remove(tail)
		delete(c.items, tail.Value.(*lruEntry).key)
	}
}

func (c *lruCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}
