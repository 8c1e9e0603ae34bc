package blockmap

import (
	"bytes"
	"sync"

	"github.com/randallfarmer/blockzip/blkerr"
)

// WindowMap maps a gzip block's encoded bit offset to the 32 KiB LZ77
// dictionary needed to resume decoding from that offset. Concurrent reads
// are safe, and returned slices remain valid for the map's lifetime since
// an insertion never mutates an existing entry.
type WindowMap struct {
	mu      sync.RWMutex
	windows map[int64][]byte
}

// NewWindowMap returns an empty WindowMap.
func NewWindowMap() *WindowMap {
	return &WindowMap{windows: make(map[int64][]byte)}
}

// Emplace records window for offset. It is idempotent if an identical
// window is already recorded there; replacing a different window is an
// error.
func (w *WindowMap) Emplace(offset int64, window []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.windows[offset]; ok {
		if !bytes.Equal(existing, window) {
			return blkerr.Wrap(blkerr.ErrInvalidArgument, "windowmap: conflicting window for an already-recorded offset")
		}
		return nil
	}
	w.windows[offset] = window
	return nil
}

// Get returns the window recorded for offset, if any.
func (w *WindowMap) Get(offset int64) ([]byte, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.windows[offset]
	return v, ok
}

// Size returns the number of recorded windows.
func (w *WindowMap) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.windows)
}
