// Package streamed implements StreamedResults[T] from spec.md §4.5: an
// append-only, finalizable sequence used as the producer/consumer handoff
// between a background block finder and whatever is waiting on block
// offsets it hasn't found yet.
package streamed

import (
	"context"
	"sync"

	"github.com/randallfarmer/blockzip/blkerr"
)

// Status is the outcome of a Get call.
type Status int

const (
	// Success means the requested position was available.
	Success Status = iota
	// Timeout means the context expired (or was canceled) before the
	// position became available and the results are not yet finalized.
	Timeout
	// Failure means the results are finalized and the position will never
	// exist.
	Failure
)

// Results is an append-only sequence of T with a finalized flag, safe for
// concurrent push/get/finalize. One condition variable serves both push
// and finalize wakeups, per spec.md §4.5.
type Results[T any] struct {
	mu        sync.Mutex
	cond      *sync.Cond
	values    []T
	finalized bool
}

// New returns an empty, unfinalized Results.
func New[T any]() *Results[T] {
	r := &Results[T]{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Size returns the number of pushed values.
func (r *Results[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Finalized reports whether no further pushes will be accepted.
func (r *Results[T]) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Push appends a value. It fails if the results are already finalized.
func (r *Results[T]) Push(v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "streamed: push to finalized results")
	}
	r.values = append(r.values, v)
	r.cond.Broadcast()
	return nil
}

// Finalize marks the results complete: no further values may be pushed.
func (r *Results[T]) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = true
	r.cond.Broadcast()
	return nil
}

// FinalizeAt truncates to count values (count must not exceed the current
// size) and marks the results complete.
func (r *Results[T]) FinalizeAt(count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count < 0 || count > len(r.values) {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "streamed: finalize count exceeds current size")
	}
	r.values = r.values[:count]
	r.finalized = true
	r.cond.Broadcast()
	return nil
}

// SetResults bulk-replaces the values (e.g. importing a persisted index)
// and finalizes in one step.
func (r *Results[T]) SetResults(values []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = values
	r.finalized = true
	r.cond.Broadcast()
}

// Get returns the value at position, blocking until it is pushed or the
// results are finalized or ctx is done, whichever comes first. A
// background, never-expiring ctx blocks indefinitely; a canceled or
// already-expired ctx returns Timeout immediately if the value isn't
// already present.
func (r *Results[T]) Get(ctx context.Context, position int) (T, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		defer stop()
	}

	for position >= len(r.values) && !r.finalized {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				var zero T
				return zero, Timeout, nil
			}
		}
		r.cond.Wait()
	}

	if position >= 0 && position < len(r.values) {
		return r.values[position], Success, nil
	}
	var zero T
	return zero, Failure, nil
}

// View is a locked snapshot of the underlying values, mirroring the
// source's ResultsView RAII guard. Call Close when done.
type View[T any] struct {
	r *Results[T]
}

// Values returns the current backing slice. Valid only until Close.
func (v View[T]) Values() []T {
	return v.r.values
}

// Close releases the lock taken by Results.View.
func (v View[T]) Close() {
	v.r.mu.Unlock()
}

// View locks the results and returns a snapshot view; the caller must call
// Close on the returned View.
func (r *Results[T]) View() View[T] {
	r.mu.Lock()
	return View[T]{r: r}
}
