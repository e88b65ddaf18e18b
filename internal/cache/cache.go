// Package cache provides the bounded in-memory cache shared by the tokenizer
// and the morphology normalizer. It is the only mutable state that outlives a
// request; entries key on (language, text, flags) and never carry request
// context.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTLCache is a size-bounded LRU cache with per-entry TTL and background
// eviction. Constructor-injected — components receive a *TTLCache[V], never
// reach for a package-level singleton. Safe for concurrent use.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once

	hits   uint64
	misses uint64
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most maxSize entries, each valid for ttl.
// Call Close to stop the background eviction goroutine.
func New[V any](maxSize int, ttl time.Duration) *TTLCache[V] {
	if maxSize <= 0 {
		maxSize = 1024
	}
	c := &TTLCache[V]{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the cached value and true if a live entry exists.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if time.Now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set stores a value with the configured TTL, evicting the least recently
// used entry when the cache is full.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	el := c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)})
	c.entries[key] = el
}

// Len returns the current number of entries, expired or not.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *TTLCache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close stops the background eviction goroutine. Idempotent.
func (c *TTLCache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *TTLCache[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	delete(c.entries, ent.key)
	c.order.Remove(el)
}

// evictLoop removes expired entries once a minute.
func (c *TTLCache[V]) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *TTLCache[V]) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[V]).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}
