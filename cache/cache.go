// Package cache implements Cache[K,V] from spec.md §4.9: a bounded
// associative cache with hit/miss/unused-entry counters and a pluggable
// eviction policy, backed by github.com/hashicorp/golang-lru for the
// default LRU behavior.
package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/simplelru"
)

// Policy decides which key to evict next and is notified of touches and
// insertions, so a caller can swap in something other than LRU without
// touching Cache itself.
type Policy[K comparable] interface {
	// Touch records that key was accessed (on both hit and fresh insert).
	Touch(key K)
	// Evict picks a key to remove to make room for a new entry, given the
	// set of currently-present keys. Returns ok=false if nothing can be
	// evicted (e.g. the set is empty).
	Evict(present []K) (key K, ok bool)
	// Remove notifies the policy that key was removed (evicted or
	// explicitly deleted), so it can drop any bookkeeping for it.
	Remove(key K)
}

// lruPolicy is the default Policy, delegating touch-ordering to
// hashicorp/golang-lru's internal simplelru.LRU so Cache only needs to ask
// it "what's oldest" rather than reimplement LRU bookkeeping twice.
type lruPolicy[K comparable] struct {
	mu  sync.Mutex
	lru *lru.LRU
}

func newLRUPolicy[K comparable](capacity int) *lruPolicy[K] {
	// capacity 0 would panic inside simplelru.NewLRU; the policy is only
	// ever consulted when Cache's own capacity is > 0 (see Evict below).
	size := capacity
	if size < 1 {
		size = 1
	}
	l, _ := lru.NewLRU(size, nil)
	return &lruPolicy[K]{lru: l}
}

func (p *lruPolicy[K]) Touch(key K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lru.Add(key, struct{}{})
}

func (p *lruPolicy[K]) Evict(present []K) (K, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, _, ok := p.lru.RemoveOldest()
	var zero K
	if !ok {
		return zero, false
	}
	key, ok := k.(K)
	if !ok {
		return zero, false
	}
	return key, true
}

func (p *lruPolicy[K]) Remove(key K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lru.Remove(key)
}

// Stats reports cache analytics (spec.md §4.9): hits, misses, the count of
// entries evicted having never been touched after insertion ("unused"),
// and the configured capacity.
type Stats struct {
	Hits     int64
	Misses   int64
	Unused   int64
	Capacity int
}

type entry[V any] struct {
	value    V
	accessed bool
}

// Cache is a bounded map K -> V with pluggable eviction (default: LRU) and
// hit/miss/unused-entry analytics. A capacity of 0 is valid: every insert
// is immediately a no-op and every Get misses (spec.md §9).
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	capacity int
	policy   Policy[K]
	entries  map[K]entry[V]

	hits   atomic.Int64
	misses atomic.Int64
	unused atomic.Int64
}

// New returns a Cache with the default LRU eviction policy and the given
// capacity (must be >= 0).
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return NewWithPolicy[K, V](capacity, newLRUPolicy[K](capacity))
}

// NewWithPolicy returns a Cache using a caller-supplied eviction Policy,
// the seam spec.md §4.9 calls "eviction policy is an abstract collaborator".
func NewWithPolicy[K comparable, V any](capacity int, policy Policy[K]) *Cache[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache[K, V]{
		capacity: capacity,
		policy:   policy,
		entries:  make(map[K]entry[V]),
	}
}

// Get returns the value for key and bumps its touch time on a hit.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	e.accessed = true
	c.entries[key] = e
	c.policy.Touch(key)
	return e.value, true
}

// Put inserts value for key, evicting the policy's chosen victim if the
// cache is full. Returns the evicted key and whether an eviction occurred.
// Inserting over an existing key counts as a touch, not a fresh entry.
func (c *Cache[K, V]) Put(key K, value V) (evictedKey K, evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		var zero K
		return zero, false
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry[V]{value: value, accessed: true}
		c.policy.Touch(key)
		return evictedKey, false
	}

	if len(c.entries) >= c.capacity {
		present := make([]K, 0, len(c.entries))
		for k := range c.entries {
			present = append(present, k)
		}
		if victim, ok := c.policy.Evict(present); ok {
			if old, ok := c.entries[victim]; ok && !old.accessed {
				c.unused.Add(1)
			}
			delete(c.entries, victim)
			evictedKey, evicted = victim, true
		}
	}

	c.entries[key] = entry[V]{value: value}
	c.policy.Touch(key)
	return evictedKey, evicted
}

// Contains reports whether key is present without affecting touch order or
// hit/miss counters.
func (c *Cache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Remove deletes key if present, notifying the eviction policy.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.policy.Remove(key)
}

// Purge removes every entry, notifying the eviction policy of each. (The
// BlockFetcher's own Purge, run when a persisted index is imported,
// replaces its cache with a fresh one instead of calling this.)
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		c.policy.Remove(k)
	}
	c.entries = make(map[K]entry[V])
}

// Len returns the current entry count.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache's analytics.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Unused:   c.unused.Load(),
		Capacity: c.capacity,
	}
}
