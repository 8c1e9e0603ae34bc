// Package workerpool implements ThreadPool from spec.md §4.11: a bounded
// pool of worker goroutines that submits callables and returns a
// future-like handle, distinguishing normal and high-priority submissions.
package workerpool

import (
	"context"
	"sync"

	"github.com/randallfarmer/blockzip/blkerr"
	"golang.org/x/sync/semaphore"
)

// Future is the handle returned by Submit, generalizing the teacher's
// per-slot `ready chan bool` into a reusable, generic result cell.
type Future[T any] struct {
	ready chan struct{}
	value T
	err   error
}

// Wait blocks until the task completes (or ctx is done) and returns its
// result.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, blkerr.Wrap(ctx.Err(), "workerpool: future wait canceled")
	}
}

// Ready reports whether the task has completed, without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

type task struct {
	run func()
}

// Pool runs submitted tasks across up to `parallelism` concurrent
// goroutines. High-priority tasks (the fetcher's marker-replacement
// continuations) jump the normal-submission queue: the dispatcher always
// drains the high queue before taking from the normal one.
type Pool struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	draining bool

	wg     sync.WaitGroup
	normal chan task
	high   chan task
	done   chan struct{}
}

// New returns a Pool allowing up to parallelism concurrent tasks.
func New(parallelism int) *Pool {
	if parallelism < 1 {
		parallelism = 1
	}
	p := &Pool{
		sem:    semaphore.NewWeighted(int64(parallelism)),
		normal: make(chan task, parallelism*4),
		high:   make(chan task, parallelism*4),
		done:   make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// dispatch pulls one task at a time, preferring the high-priority queue,
// and hands it to a worker goroutine bounded by the semaphore. It exits
// once both queues are closed and drained (Stop's shutdown sequence).
func (p *Pool) dispatch() {
	for {
		// Take a slot before dequeuing, so a high-priority task submitted
		// while every slot is busy still runs ahead of queued normal ones.
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			continue
		}
		t, ok := p.next()
		if !ok {
			p.sem.Release(1)
			return
		}
		p.wg.Add(1)
		go func(t task) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			t.run()
		}(t)
	}
}

func (p *Pool) next() (task, bool) {
	select {
	case t, ok := <-p.high:
		if ok {
			return t, true
		}
	default:
	}
	select {
	case t, ok := <-p.high:
		if ok {
			return t, true
		}
	case t, ok := <-p.normal:
		if ok {
			return t, true
		}
	case <-p.done:
	}
	// Both channels may still hold buffered tasks even after Stop closed
	// them; drain fully before reporting done.
	select {
	case t, ok := <-p.high:
		if ok {
			return t, true
		}
	case t, ok := <-p.normal:
		if ok {
			return t, true
		}
	default:
		return task{}, false
	}
	return task{}, false
}

// Submit runs fn on the pool and returns a Future for its result.
func Submit[T any](p *Pool, fn func() (T, error)) (*Future[T], error) {
	return submit(p, fn, false)
}

// SubmitHighPriority is Submit for tasks that should jump ahead of normal
// submissions, e.g. the fetcher's marker-replacement continuation decode.
func SubmitHighPriority[T any](p *Pool, fn func() (T, error)) (*Future[T], error) {
	return submit(p, fn, true)
}

func submit[T any](p *Pool, fn func() (T, error), priority bool) (*Future[T], error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, blkerr.Wrap(blkerr.ErrClosed, "workerpool: submit to draining pool")
	}
	p.mu.Unlock()

	fut := &Future[T]{ready: make(chan struct{})}
	t := task{run: func() {
		fut.value, fut.err = fn()
		close(fut.ready)
	}}

	ch := p.normal
	if priority {
		ch = p.high
	}
	select {
	case ch <- t:
		return fut, nil
	default:
		return nil, blkerr.Wrap(blkerr.ErrLogic, "workerpool: submission queue full")
	}
}

// Stop rejects new submissions and blocks until every in-flight and
// already-queued task has run to completion (spec.md §4.11's drain/stop).
// Safe to call once; a second call is a no-op.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.mu.Unlock()

	close(p.normal)
	close(p.high)
	<-p.doneOnce()
	p.wg.Wait()
}

// doneOnce closes p.done exactly once and returns it, letting Stop signal
// the dispatcher even if dispatch is currently blocked selecting on it.
func (p *Pool) doneOnce() <-chan struct{} {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return p.done
}
