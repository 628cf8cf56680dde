package analyze

import (
	"container/list"
	"sync"
	"time"

	"token-sentinel/internal/domain"
)

// resultCache is a fixed-capacity TTL + LRU hybrid keyed by fingerprint.
// When capacity is exceeded, expired entries are evicted first, then the
// least-recently-used live entry.
type resultCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type cacheEntry struct {
	fingerprint string
	result      domain.ScoreResult
	expiresAt   time.Time
}

func newResultCache(capacity int, ttl time.Duration, now func() time.Time) *resultCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &resultCache{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns an unexpired cached result and marks it recently used.
func (c *resultCache) get(fingerprint string) (domain.ScoreResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return domain.ScoreResult{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(elem)
		return domain.ScoreResult{}, false
	}
	c.order.MoveToFront(elem)
	return entry.result, true
}

// put stores a result, evicting if over capacity.
func (c *resultCache) put(fingerprint string, result domain.ScoreResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.result = result
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		fingerprint: fingerprint,
		result:      result,
		expiresAt:   c.now().Add(c.ttl),
	})
	c.entries[fingerprint] = elem

	for len(c.entries) > c.capacity {
		c.evictLocked()
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes one entry: an expired one if any exists, otherwise
// the least-recently-used.
func (c *resultCache) evictLocked() {
	now := c.now()
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(elem)
			return
		}
	}
	if back := c.order.Back(); back != nil {
		c.removeLocked(back)
	}
}

func (c *resultCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.fingerprint)
	c.order.Remove(elem)
}
