// Package blockfinder implements BlockFinder from spec.md §4.6: a
// background worker that drains a blockfind.StreamFinder into a
// streamed.Results[int64] of confirmed bit offsets, paced by a
// prefetch-count watermark so it never races arbitrarily far ahead of
// what's actually being consumed.
package blockfinder

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/randallfarmer/blockzip/blkerr"
	"github.com/randallfarmer/blockzip/blockfind"
	"github.com/randallfarmer/blockzip/streamed"
)

// DefaultPrefetchCount returns 3x the detected parallelism, matching
// spec.md §4.6's "3 × hardware_concurrency" default.
func DefaultPrefetchCount() int {
	return 3 * runtime.GOMAXPROCS(0)
}

// Finder owns a blockfind.StreamFinder and asynchronously drains it into a
// confirmed, queryable sequence of offsets.
type Finder struct {
	mu   sync.Mutex
	cond *sync.Cond

	results *streamed.Results[int64]
	source  blockfind.StreamFinder

	highestRequested int
	prefetchCount    int
	cancelThread     bool
	started          bool
	wg               sync.WaitGroup
}

// New returns a Finder over source (not yet started; the background loop
// starts on the first Get call, or explicitly via StartThreads).
func New(source blockfind.StreamFinder, prefetchCount int) (*Finder, error) {
	if source == nil {
		return nil, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockfinder: nil bit string finder")
	}
	f := &Finder{
		results:       streamed.New[int64](),
		source:        source,
		prefetchCount: prefetchCount,
	}
	f.cond = sync.NewCond(&f.mu)
	return f, nil
}

// StartThreads launches the background scan loop if it isn't already
// running.
func (f *Finder) StartThreads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true
	f.wg.Add(1)
	go f.loop()
}

// StopThreads cancels and joins the background scan loop, if running.
func (f *Finder) StopThreads() {
	f.mu.Lock()
	f.cancelThread = true
	f.cond.Broadcast()
	started := f.started
	f.mu.Unlock()
	if started {
		f.wg.Wait()
	}
}

func (f *Finder) loop() {
	defer f.wg.Done()
	for {
		f.mu.Lock()
		for !f.cancelThread && f.results.Size() > f.highestRequested+f.prefetchCount {
			f.cond.Wait()
		}
		canceled := f.cancelThread
		f.mu.Unlock()
		if canceled {
			return
		}

		// The find itself runs unlocked: it can take a while and must stay
		// responsive to cancellation from other goroutines.
		offset, err := f.source.Find()
		if err != nil || offset == blockfind.NoneLeft {
			break
		}
		if err := f.results.Push(offset); err != nil {
			break
		}
	}
	f.results.Finalize()
}

// Size returns the number of confirmed offsets so far.
func (f *Finder) Size() int {
	return f.results.Size()
}

// Finalized reports whether the scan is complete (or offsets were
// imported via SetBlockOffsets).
func (f *Finder) Finalized() bool {
	return f.results.Finalized()
}

// Get returns the offset for blockNumber, starting the background scan if
// needed and advancing the watermark so the loop knows to look that far
// ahead. Blocks per streamed.Results.Get's contract.
func (f *Finder) Get(ctx context.Context, blockNumber int) (int64, streamed.Status, error) {
	if !f.results.Finalized() {
		f.StartThreads()
	}

	f.mu.Lock()
	if blockNumber > f.highestRequested {
		f.highestRequested = blockNumber
	}
	f.cond.Broadcast()
	f.mu.Unlock()

	return f.results.Get(ctx, blockNumber)
}

// Find returns the index of the block at encodedOffsetInBits via
// bisection over the confirmed offsets, or an error if no such block has
// been confirmed.
func (f *Finder) Find(encodedOffsetInBits int64) (int, error) {
	view := f.results.View()
	defer view.Close()
	vals := view.Values()
	idx := sort.Search(len(vals), func(i int) bool { return vals[i] >= encodedOffsetInBits })
	if idx >= len(vals) || vals[idx] != encodedOffsetInBits {
		return 0, blkerr.Wrap(blkerr.ErrFailure, "blockfinder: no block at the requested offset")
	}
	return idx, nil
}

// SetBlockOffsets cancels the background scan, discards the underlying
// finder, and installs offsets as the full, finalized result (importing a
// persisted index).
func (f *Finder) SetBlockOffsets(offsets []int64) {
	f.StopThreads()
	f.mu.Lock()
	f.source = nil
	f.mu.Unlock()
	f.results.SetResults(offsets)
}

// Finalize stops the background scan and finalizes with whatever has been
// found so far, optionally truncated to blockCount.
func (f *Finder) Finalize(blockCount int) error {
	f.StopThreads()
	f.mu.Lock()
	f.source = nil
	f.mu.Unlock()
	if blockCount >= 0 {
		return f.results.FinalizeAt(blockCount)
	}
	return f.results.Finalize()
}
