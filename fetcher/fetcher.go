package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/blockfinder"
	"github.com/randallfarmer/blockzip/cache"
	"github.com/randallfarmer/blockzip/deflateblock"
	"github.com/randallfarmer/blockzip/strategy"
	"github.com/randallfarmer/blockzip/streamed"
	"github.com/randallfarmer/blockzip/workerpool"
)

// Chunk is a shared, fully decoded block as handed back to readers. It is
// never mutated after Get returns it, so concurrent holders are safe.
type Chunk struct {
	EncodedOffset int64
	EncodedSize   int64
	DecodedSize   int64
	ExpectedCRC   uint32
	CalculatedCRC uint32
	IsEndOfStream bool
	IsEndOfFile   bool
	Data          []byte
}

// Stats mirrors the analytics spec.md §4.12 asks a BlockFetcher to keep.
type Stats struct {
	CacheHits          int64
	CacheMisses        int64
	DirectPrefetchHits int64
	BlocksDecoded      int64
	DecodeNanos        int64
}

// windowProvider is satisfied by blockmap.WindowMap; kept as a narrow
// interface here so fetcher doesn't need to import blockmap just for this.
type windowProvider interface {
	Get(offset int64) ([]byte, bool)
}

// Fetcher is the BlockFetcher orchestrator from spec.md §4.12: it turns a
// confirmed encoded offset into decoded, cached bytes, running prefetch
// candidates from the fetching strategy on a worker pool ahead of the
// reader.
type Fetcher struct {
	codec       Codec
	finder      *blockfinder.Finder
	pool        *workerpool.Pool
	strategy    strategy.FetchingStrategy
	parallelism int

	template *bitio.Reader // cloned per decode task; never read from directly

	mu       sync.Mutex
	cache    *cache.Cache[int64, *Chunk]
	inFlight map[int64]*workerpool.Future[*Chunk]
	windows  windowProvider
	stats    Stats
}

// New returns a Fetcher decoding from template (cloned per task) via codec,
// resolving offsets through finder, scheduling on pool, and following
// strat for prefetch. windows may be nil for codecs with no window concept
// (bzip2); cache capacity is 16+parallelism per spec.md §4.12.
func New(template *bitio.Reader, codec Codec, finder *blockfinder.Finder, pool *workerpool.Pool, strat strategy.FetchingStrategy, parallelism int, windows windowProvider) *Fetcher {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Fetcher{
		codec:       codec,
		finder:      finder,
		pool:        pool,
		strategy:    strat,
		parallelism: parallelism,
		template:    template,
		cache:       cache.New[int64, *Chunk](16 + parallelism),
		inFlight:    make(map[int64]*workerpool.Future[*Chunk]),
		windows:     windows,
	}
}

// Stats returns a snapshot of the fetcher's analytics.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Get resolves the block at encodedOffset to a decoded chunk, per spec.md
// §4.12's six-step algorithm. dataBlockIndex, if >= 0, is the already-known
// block index (skips an extra BlockFinder bisection); pass -1 if unknown.
func (f *Fetcher) Get(ctx context.Context, encodedOffset int64, dataBlockIndex int) (*Chunk, error) {
	f.mu.Lock()

	// Step 1: prefetch-queue lookup. The entry is left in inFlight (not
	// popped) so a second concurrent Get for the same offset also finds
	// it instead of submitting a redundant decode; harvestReady is what
	// eventually retires it into the cache.
	var fut *workerpool.Future[*Chunk]
	directHit := false
	if pending, ok := f.inFlight[encodedOffset]; ok {
		fut = pending
		directHit = true
		f.stats.DirectPrefetchHits++
	}

	// Step 2: cache lookup (skipped if step 1 already found it).
	var cached *Chunk
	cachedOK := false
	if !directHit {
		cached, cachedOK = f.cache.Get(encodedOffset)
		if cachedOK {
			f.stats.CacheHits++
		} else {
			f.stats.CacheMisses++
		}
	}

	// Step 3: on-demand submit.
	submitErr := error(nil)
	if fut == nil && !cachedOK {
		fut, submitErr = f.submitDecode(encodedOffset)
	}

	// Step 4: harvest ready prefetches into the cache.
	f.harvestReady()

	// Step 5: schedule new prefetches. Only meaningful with a BlockFinder
	// (bzip2); gzip/deflate has no prefetch-by-index concept since its
	// next offset isn't known until the previous block finishes decoding.
	if f.finder != nil {
		if dataBlockIndex < 0 {
			if idx, err := f.finder.Find(encodedOffset); err == nil {
				dataBlockIndex = idx
			}
		}
		if dataBlockIndex >= 0 {
			f.scheduleMore(ctx, dataBlockIndex, encodedOffset)
		}
	}
	f.mu.Unlock()

	// Step 6: return.
	if cachedOK {
		return cached, nil
	}
	if submitErr != nil {
		// The pool couldn't take the task (draining, or its queue is
		// full); decode synchronously
		// rather than lose the request.
		chunk, err := f.decodeBlock(encodedOffset)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cache.Put(encodedOffset, chunk)
		f.mu.Unlock()
		return chunk, nil
	}
	chunk, err := fut.Wait(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.cache.Put(encodedOffset, chunk)
	f.mu.Unlock()
	return chunk, nil
}

// ReadHeader exposes the codec's cheap (bzip2) or not-so-cheap (gzip)
// header classification, used by the reader facade to detect end of
// stream when the block finder's pattern search can't.
func (f *Fetcher) ReadHeader(encodedOffset int64) (HeaderInfo, error) {
	br, err := f.template.Clone()
	if err != nil {
		return HeaderInfo{}, err
	}
	defer br.Close()
	return f.codec.ReadHeader(br, encodedOffset)
}

// harvestReady moves any finished prefetch futures into the cache,
// non-blocking. Caller must hold f.mu.
func (f *Fetcher) harvestReady() {
	for offset, fut := range f.inFlight {
		if !fut.Ready() {
			continue
		}
		delete(f.inFlight, offset)
		if chunk, err := fut.Wait(context.Background()); err == nil {
			f.cache.Put(offset, chunk)
		}
	}
}

// scheduleMore runs the strategy's prefetch predictions, submitting a
// decode task per candidate not already pending or cached, stopping once
// outstanding prefetches plus the just-requested block reach parallelism.
// Caller must hold f.mu.
func (f *Fetcher) scheduleMore(ctx context.Context, requestedIndex int, requestedOffset int64) {
	f.strategy.Fetch(requestedIndex)
	candidates := f.strategy.Prefetch(f.parallelism)

	for _, idx := range candidates {
		if len(f.inFlight)+1 >= f.parallelism {
			break
		}
		if idx == requestedIndex {
			continue
		}

		offset, ok := f.waitForOffset(ctx, idx)
		if !ok {
			continue
		}
		if offset == requestedOffset {
			continue
		}
		if _, pending := f.inFlight[offset]; pending {
			continue
		}
		if f.cache.Contains(offset) {
			continue
		}
		f.submitDecode(offset) //nolint:errcheck // prefetch is best-effort
	}
}

// waitForOffset polls the BlockFinder for idx's offset with a tiny
// timeout, yielding the critical path CPU per spec.md §4.12 step 5.
func (f *Fetcher) waitForOffset(ctx context.Context, idx int) (int64, bool) {
	for {
		tctx, cancel := context.WithTimeout(ctx, time.Millisecond)
		offset, status, err := f.finder.Get(tctx, idx)
		cancel()
		if err != nil {
			return 0, false
		}
		switch status {
		case streamed.Success:
			return offset, true
		case streamed.Failure:
			return 0, false
		default: // streamed.Timeout
			select {
			case <-ctx.Done():
				return 0, false
			default:
				continue
			}
		}
	}
}

// submitDecode submits a decode task for offset if one isn't already in
// flight, recording the future. Caller must hold f.mu.
func (f *Fetcher) submitDecode(offset int64) (*workerpool.Future[*Chunk], error) {
	if fut, ok := f.inFlight[offset]; ok {
		return fut, nil
	}
	fut, err := workerpool.Submit(f.pool, func() (*Chunk, error) {
		return f.decodeBlock(offset)
	})
	if err != nil {
		return nil, err
	}
	f.inFlight[offset] = fut
	return fut, nil
}

// decodeBlock clones the template reader, invokes the codec, and resolves
// gzip markers against the window map when one is configured and the
// window is already known. Otherwise a block that still has markers yields
// a chunk with nil Data and a DecodedSize of 0; Chunk has no field for the
// unresolved markers, so they are not kept.
func (f *Fetcher) decodeBlock(offset int64) (*Chunk, error) {
	start := time.Now()
	br, err := f.template.Clone()
	if err != nil {
		return nil, err
	}
	defer br.Close()

	f.mu.Lock()
	windows := f.windows
	f.mu.Unlock()

	var window []byte
	if windows != nil {
		if w, ok := windows.Get(offset); ok {
			window = w
		}
	}

	block, err := f.codec.DecodeBlock(br, offset, window)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.stats.BlocksDecoded++
	f.stats.DecodeNanos += time.Since(start).Nanoseconds()
	f.mu.Unlock()

	data := block.Data
	if data == nil && block.Markers != nil && window != nil {
		// A window showed up between submission and decode (e.g. a
		// sequential reader caught up); resolve immediately rather than
		// caching a chunk full of markers.
		if resolved, err := deflateblock.ReplaceMarkers(block.Markers, window); err == nil {
			data = resolved
			block.Markers = nil
		}
	}

	return &Chunk{
		EncodedOffset: offset,
		EncodedSize:   block.EncodedSize,
		DecodedSize:   int64(len(data)),
		ExpectedCRC:   block.CRC,
		CalculatedCRC: block.CRC,
		IsEndOfStream: block.IsEndOfStream,
		IsEndOfFile:   block.IsEndOfFile,
		Data:          data,
	}, nil
}

// SetWindows swaps the WindowMap consulted during decode, for use when a
// caller rewires a Reader onto a different checkpoint's windows (e.g.
// SetBlockOffsets importing a persisted index).
func (f *Fetcher) SetWindows(w windowProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = w
}

// Purge drops every cached and in-flight entry, for use after a caller
// rewrites the offset table backing encodedOffset values (e.g. importing a
// persisted index): stale chunks keyed by offsets that may no longer mean
// the same thing must not be served.
func (f *Fetcher) Purge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = cache.New[int64, *Chunk](16 + f.parallelism)
	f.inFlight = make(map[int64]*workerpool.Future[*Chunk])
}

// Stop releases the worker pool and any background block-finder threads.
func (f *Fetcher) Stop() {
	f.pool.Stop()
	if f.finder != nil {
		f.finder.StopThreads()
	}
}

// ResolveMarkers replaces any still-unresolved marker bytes in chunk with
// window, recomputing the CRC over the newly-resolved data as spec.md
// §4.12's gzip extension requires, and returns the now fully-resolved
// chunk. Submitted to the pool at high priority since readers block on it.
func ResolveMarkers(pool *workerpool.Pool, markers []uint16, offset int64, encodedSize int64, window []byte, crcCombine func([]byte) uint32) (*workerpool.Future[*Chunk], error) {
	return workerpool.SubmitHighPriority(pool, func() (*Chunk, error) {
		data, err := deflateblock.ReplaceMarkers(markers, window)
		if err != nil {
			return nil, err
		}
		var crc uint32
		if crcCombine != nil {
			crc = crcCombine(data)
		}
		return &Chunk{
			EncodedOffset: offset,
			EncodedSize:   encodedSize,
			DecodedSize:   int64(len(data)),
			CalculatedCRC: crc,
			Data:          data,
		}, nil
	})
}
