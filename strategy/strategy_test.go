package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefetchEmptyHistoryReturnsNothing(t *testing.T) {
	s := NewFetchNextSmart(4)
	assert.Empty(t, s.Prefetch(4))
}

func TestPrefetchStrictlyIncreasingPredictsNext(t *testing.T) {
	s := NewFetchNextSmart(3)
	s.Fetch(10)
	s.Fetch(11)
	s.Fetch(12)
	assert.Equal(t, []int{13, 14, 15}, s.Prefetch(3))
}

func TestPrefetchNonSequentialPredictsNothing(t *testing.T) {
	s := NewFetchNextSmart(3)
	s.Fetch(10)
	s.Fetch(3) // a seek backward
	assert.Empty(t, s.Prefetch(3))
}

func TestPrefetchNeverIncludesJustAccessedIndex(t *testing.T) {
	s := NewFetchNextSmart(3)
	s.Fetch(5)
	for _, v := range s.Prefetch(3) {
		assert.NotEqual(t, 5, v)
	}
}

func TestPrefetchRespectsSmallerMaxCount(t *testing.T) {
	s := NewFetchNextSmart(10)
	s.Fetch(1)
	s.Fetch(2)
	got := s.Prefetch(2)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{3, 4}, got)
}

func TestFetchTrimsHistoryToFiveEntries(t *testing.T) {
	s := NewFetchNextSmart(1)
	for i := 0; i < 10; i++ {
		s.Fetch(i)
	}
	assert.Len(t, s.history, historyLen)
	assert.Equal(t, []int{5, 6, 7, 8, 9}, s.history)
}

func TestDefaultMaxPrefetchCountIsPositive(t *testing.T) {
	s := NewFetchNextSmart(0)
	assert.Greater(t, s.maxPrefetchCount, 0)
}
