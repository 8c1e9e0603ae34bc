package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMissIncrementsMisses(t *testing.T) {
	c := New[string, int](2)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestPutThenGetHits(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestPutEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // touch a, so b becomes the LRU victim

	evicted, ok := c.Put("c", 3)
	assert.True(t, ok)
	assert.Equal(t, "b", evicted)
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestPutOverwriteDoesNotEvict(t *testing.T) {
	c := New[string, int](1)
	c.Put("a", 1)
	_, evicted := c.Put("a", 2)
	assert.False(t, evicted)
	v, _ := c.Get("a")
	assert.Equal(t, 2, v)
}

func TestZeroCapacityAlwaysMisses(t *testing.T) {
	c := New[string, int](0)
	_, evicted := c.Put("a", 1)
	assert.False(t, evicted)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestUnusedEntryCountedOnEviction(t *testing.T) {
	c := New[string, int](1)
	c.Put("a", 1) // never touched again before eviction
	c.Put("b", 2)
	assert.Equal(t, int64(1), c.Stats().Unused)
}

func TestPurgeClearsEntries(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestRemoveDeletesEntry(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Remove("a")
	assert.False(t, c.Contains("a"))
}

func TestContainsDoesNotAffectCounters(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	assert.True(t, c.Contains("a"))
	assert.Equal(t, int64(0), c.Stats().Hits)
	assert.Equal(t, int64(0), c.Stats().Misses)
}
