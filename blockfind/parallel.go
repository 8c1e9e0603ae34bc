package blockfind

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/blkerr"
)

// ParallelFinder splits a cloneable source into fixed-size bit chunks and
// scans them concurrently, each chunk scan overlapping into the next by
// peeking past its own boundary so a pattern straddling a chunk boundary
// is still found exactly once, by the chunk it starts in (spec.md §4.4).
// Grounded on the pbzip2 scanner's chunked-scan-then-ordered-drain
// structure, adapted to Go's errgroup instead of hand-rolled worker
// threads, and on spec.md §4.4's "drain worker i fully before advancing to
// i+1" ordering guarantee, which Find implements via one result channel
// per chunk.
//
// ParallelFinder implements the same external contract as Finder: a
// sequential stream of Find() calls returning strictly increasing offsets,
// terminated by NoneLeft. The chunk scans run eagerly and concurrently in
// the background (bounded by parallelism); Find only blocks waiting for
// the chunk whose turn it is.
type ParallelFinder struct {
	pattern     uint64
	width       uint
	chunkBits   int64
	parallelism int

	once     sync.Once
	startErr error
	chunks   []chan chunkResult

	curChunk int
	curIdx   int
	curBuf   []int64
	done     bool
}

type chunkResult struct {
	offsets []int64
	err     error
}

// NewParallel returns a ParallelFinder and immediately starts scanning in
// the background. base's source must implement bitio.Cloner and Sizer.
// chunkBits is the nominal chunk size in bits (rounded up to cover the
// whole source); parallelism bounds concurrent chunk scans. Canceling ctx
// stops chunk scans that have not started yet; a subsequent Find reports
// the cancellation error once its chunk channel resolves.
func NewParallel(ctx context.Context, base *bitio.Reader, pattern uint64, width uint, chunkBits int64, parallelism int) (*ParallelFinder, error) {
	if chunkBits <= 0 {
		return nil, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockfind: chunkBits must be positive")
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	if width == 0 || width > MaxPatternWidth {
		return nil, blkerr.Wrapf(blkerr.ErrInvalidArgument, "blockfind: pattern width %d out of [1,%d]", width, MaxPatternWidth)
	}
	p := &ParallelFinder{pattern: pattern, width: width, chunkBits: chunkBits, parallelism: parallelism}
	p.start(ctx, base)
	return p, nil
}

func (p *ParallelFinder) start(ctx context.Context, base *bitio.Reader) {
	p.once.Do(func() {
		size, err := base.Size()
		if err != nil {
			p.startErr = blkerr.Wrap(err, "blockfind: parallel scan needs a sized source")
			return
		}
		if size == 0 {
			p.done = true
			return
		}
		nChunks := int((size + p.chunkBits - 1) / p.chunkBits)
		p.chunks = make([]chan chunkResult, nChunks)
		for i := range p.chunks {
			p.chunks[i] = make(chan chunkResult, 1)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.parallelism)
		go func() {
			for i := 0; i < nChunks; i++ {
				i := i
				g.Go(func() error {
					offsets, err := p.scanChunk(gctx, base, i, size)
					p.chunks[i] <- chunkResult{offsets: offsets, err: err}
					return err
				})
			}
		}()
	})
}

func (p *ParallelFinder) scanChunk(ctx context.Context, base *bitio.Reader, i int, size int64) ([]int64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	start := int64(i) * p.chunkBits
	chunkEnd := start + p.chunkBits
	if chunkEnd > size {
		chunkEnd = size
	}

	clone, err := base.Clone()
	if err != nil {
		return nil, blkerr.Wrap(err, "blockfind: clone for chunk scan")
	}
	defer clone.Close()
	if err := clone.Seek(start, bitio.SeekStart); err != nil {
		return nil, blkerr.Wrap(err, "blockfind: seek to chunk start")
	}

	finder, err := New(clone, p.pattern, p.width)
	if err != nil {
		return nil, err
	}

	var offsets []int64
	for clone.Tell() < chunkEnd {
		off, err := finder.Find()
		if err != nil {
			return nil, err
		}
		if off == NoneLeft || off >= chunkEnd {
			break
		}
		offsets = append(offsets, off)
	}
	// finder.Find() may peek past chunkEnd into the next chunk's territory
	// to resolve a pattern straddling the boundary; that's fine, since the
	// off >= chunkEnd check above rejects any match whose start isn't this
	// chunk's responsibility, so it's found instead by the chunk it starts
	// in, exactly once.
	return offsets, nil
}

// Find returns the next match offset, strictly increasing, or NoneLeft
// once every chunk has been drained.
func (p *ParallelFinder) Find() (int64, error) {
	if p.startErr != nil {
		return 0, p.startErr
	}
	for {
		if p.done {
			return NoneLeft, nil
		}
		if p.curIdx < len(p.curBuf) {
			off := p.curBuf[p.curIdx]
			p.curIdx++
			return off, nil
		}
		if p.curChunk >= len(p.chunks) {
			p.done = true
			return NoneLeft, nil
		}
		res := <-p.chunks[p.curChunk]
		p.curChunk++
		if res.err != nil {
			return 0, res.err
		}
		p.curBuf = res.offsets
		p.curIdx = 0
	}
}

// FindAll drains every offset at once.
func (p *ParallelFinder) FindAll(ctx context.Context) ([]int64, error) {
	var all []int64
	for {
		off, err := p.Find()
		if err != nil {
			return nil, err
		}
		if off == NoneLeft {
			return all, nil
		}
		all = append(all, off)
	}
}
