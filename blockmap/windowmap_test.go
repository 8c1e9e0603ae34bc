package blockmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowMapEmplaceAndGet(t *testing.T) {
	w := NewWindowMap()
	window := []byte("some 32KiB dictionary contents")
	require.NoError(t, w.Emplace(128, window))

	got, ok := w.Get(128)
	require.True(t, ok)
	assert.Equal(t, window, got)
	assert.Equal(t, 1, w.Size())
}

func TestWindowMapGetMissingOffset(t *testing.T) {
	w := NewWindowMap()
	_, ok := w.Get(1)
	assert.False(t, ok)
}

func TestWindowMapEmplaceIdempotentWhenEqual(t *testing.T) {
	w := NewWindowMap()
	window := []byte("abc")
	require.NoError(t, w.Emplace(0, window))
	assert.NoError(t, w.Emplace(0, append([]byte(nil), window...)))
	assert.Equal(t, 1, w.Size())
}

func TestWindowMapEmplaceConflictingWindowErrors(t *testing.T) {
	w := NewWindowMap()
	require.NoError(t, w.Emplace(0, []byte("abc")))
	err := w.Emplace(0, []byte("xyz"))
	assert.Error(t, err)
}
