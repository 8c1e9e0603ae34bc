package fetcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/blockfind"
	"github.com/randallfarmer/blockzip/blockfinder"
	"github.com/randallfarmer/blockzip/strategy"
	"github.com/randallfarmer/blockzip/workerpool"
	"github.com/stretchr/testify/require"
)

// stubStreamFinder never finds anything on its own; tests install offsets
// directly via Finder.SetBlockOffsets instead of scanning for real.
type stubStreamFinder struct{}

func (stubStreamFinder) Find() (int64, error) { return blockfind.NoneLeft, nil }

// noopStrategy never predicts a prefetch, isolating tests that only care
// about the on-demand path from scheduleMore's side effects.
type noopStrategy struct{}

func (noopStrategy) Fetch(int)          {}
func (noopStrategy) Prefetch(int) []int { return nil }

// countingCodec returns one deterministic byte per offset (its low byte)
// as the decoded payload, recording how many times DecodeBlock actually
// ran so tests can assert on dedup/caching behavior.
type countingCodec struct {
	decodes int32
}

func (c *countingCodec) WindowSize() int { return 0 }

func (c *countingCodec) ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error) {
	return HeaderInfo{EncodedOffset: encodedOffset}, nil
}

func (c *countingCodec) DecodeBlock(br *bitio.Reader, encodedOffset int64, window []byte) (DecodedBlock, error) {
	atomic.AddInt32(&c.decodes, 1)
	return DecodedBlock{
		Data:        []byte{byte(encodedOffset)},
		EncodedSize: 8,
	}, nil
}

// blockingCodec blocks every DecodeBlock call until release is closed,
// letting a test observe a task while it's still in flight.
type blockingCodec struct {
	release chan struct{}
	started chan int64
}

func (c *blockingCodec) WindowSize() int { return 0 }

func (c *blockingCodec) ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error) {
	return HeaderInfo{EncodedOffset: encodedOffset}, nil
}

func (c *blockingCodec) DecodeBlock(br *bitio.Reader, encodedOffset int64, window []byte) (DecodedBlock, error) {
	c.started <- encodedOffset
	<-c.release
	return DecodedBlock{Data: []byte{byte(encodedOffset)}, EncodedSize: 8}, nil
}

func newTestFinder(t *testing.T, offsets []int64) *blockfinder.Finder {
	t.Helper()
	f, err := blockfinder.New(stubStreamFinder{}, 8)
	require.NoError(t, err)
	f.SetBlockOffsets(offsets)
	return f
}

func newTestTemplate(t *testing.T) *bitio.Reader {
	t.Helper()
	return bitio.NewReader(&byteSource{data: make([]byte, 64)}, bitio.MSBFirst, 64)
}

// byteSource is a minimal bitio.Source/Seeker/Sizer/Cloner over an
// in-memory buffer; the fake codecs never actually read from it, so its
// contents don't matter.
type byteSource struct{ data []byte }

func (b *byteSource) Read(p []byte) (int, error) { return copy(p, b.data), nil }
func (b *byteSource) SeekBytes(pos int64) error  { return nil }
func (b *byteSource) SizeBytes() (int64, error)  { return int64(len(b.data)), nil }
func (b *byteSource) CloneSource() (bitio.Source, error) {
	return &byteSource{data: b.data}, nil
}

func TestGetCacheHitAvoidsRedecoding(t *testing.T) {
	codec := &countingCodec{}
	finder := newTestFinder(t, []int64{0, 64, 128})
	pool := workerpool.New(2)
	defer pool.Stop()

	f := New(newTestTemplate(t), codec, finder, pool, noopStrategy{}, 2, nil)

	ctx := context.Background()
	chunk1, err := f.Get(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, chunk1.Data)

	chunk2, err := f.Get(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, chunk1.Data, chunk2.Data)

	require.LessOrEqual(t, atomic.LoadInt32(&codec.decodes), int32(2))
}

func TestGetDedupsConcurrentRequestsForSameOffset(t *testing.T) {
	codec := &blockingCodec{release: make(chan struct{}), started: make(chan int64, 8)}
	finder := newTestFinder(t, []int64{0, 64, 128})
	pool := workerpool.New(4)
	defer pool.Stop()

	f := New(newTestTemplate(t), codec, finder, pool, noopStrategy{}, 4, nil)

	var wg sync.WaitGroup
	results := make([]*Chunk, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results[i], errs[i] = f.Get(ctx, 0, 0)
		}(i)
	}

	select {
	case <-codec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("decode never started")
	}
	// Give the other two Get calls a moment to reach the in-flight map
	// before releasing the decode.
	time.Sleep(20 * time.Millisecond)
	close(codec.release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, []byte{0}, results[i].Data)
	}

	select {
	case offset := <-codec.started:
		t.Fatalf("decode ran a second time for offset %d; want exactly one decode for three concurrent Gets of the same offset", offset)
	default:
	}
}

func TestGetSchedulesPrefetchForSequentialAccess(t *testing.T) {
	codec := &countingCodec{}
	finder := newTestFinder(t, []int64{0, 8, 16, 24, 32})
	pool := workerpool.New(4)
	defer pool.Stop()

	f := New(newTestTemplate(t), codec, finder, pool, strategy.NewFetchNextSmart(4), 4, nil)

	ctx := context.Background()
	for i := int64(0); i < 4; i++ {
		_, err := f.Get(ctx, i*8, int(i))
		require.NoError(t, err)
	}

	// Let any in-flight prefetch futures land.
	time.Sleep(50 * time.Millisecond)

	stats := f.Stats()
	require.Greater(t, stats.BlocksDecoded, int64(0))
}

func TestGetReturnsErrorFromFailedDecode(t *testing.T) {
	failing := failingCodecFunc(func(int64) error {
		return fmt.Errorf("boom")
	})
	finder := newTestFinder(t, []int64{0})
	pool := workerpool.New(2)
	defer pool.Stop()

	f := New(newTestTemplate(t), failing, finder, pool, noopStrategy{}, 2, nil)

	_, err := f.Get(context.Background(), 0, 0)
	require.Error(t, err)
}

// failingCodecFunc lets a test supply DecodeBlock's behavior inline.
type failingCodecFunc func(encodedOffset int64) error

func (f failingCodecFunc) WindowSize() int { return 0 }
func (f failingCodecFunc) ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error) {
	return HeaderInfo{}, nil
}
func (f failingCodecFunc) DecodeBlock(br *bitio.Reader, encodedOffset int64, window []byte) (DecodedBlock, error) {
	return DecodedBlock{}, f(encodedOffset)
}

func TestPurgeForcesRedecodeOfCachedOffset(t *testing.T) {
	codec := &countingCodec{}
	finder := newTestFinder(t, []int64{0, 64, 128})
	pool := workerpool.New(2)
	defer pool.Stop()

	f := New(newTestTemplate(t), codec, finder, pool, noopStrategy{}, 2, nil)

	ctx := context.Background()
	_, err := f.Get(ctx, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&codec.decodes))

	f.Purge()

	_, err = f.Get(ctx, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&codec.decodes))
}

func TestStopReleasesPoolAndFinder(t *testing.T) {
	codec := &countingCodec{}
	finder := newTestFinder(t, []int64{0})
	pool := workerpool.New(2)

	f := New(newTestTemplate(t), codec, finder, pool, noopStrategy{}, 2, nil)
	_, err := f.Get(context.Background(), 0, 0)
	require.NoError(t, err)

	f.Stop() // must not panic or deadlock with an already-used pool/finder
}

// fakeWindows hands back a fixed window for one known offset, so a test
// can tell whether decodeBlock actually consulted the windows a caller
// installed via SetWindows.
type fakeWindows struct {
	offset int64
	window []byte
}

func (w fakeWindows) Get(offset int64) ([]byte, bool) {
	if offset == w.offset {
		return w.window, true
	}
	return nil, false
}

func TestSetWindowsIsConsultedOnNextDecode(t *testing.T) {
	var gotWindow []byte
	codec := windowRecordingCodec(func(offset int64, window []byte) {
		gotWindow = window
	})
	finder := newTestFinder(t, []int64{0})
	pool := workerpool.New(2)
	defer pool.Stop()

	f := New(newTestTemplate(t), codec, finder, pool, noopStrategy{}, 2, nil)

	want := []byte("resumed-window")
	f.SetWindows(fakeWindows{offset: 0, window: want})

	_, err := f.Get(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, want, gotWindow)
}

// windowRecordingCodec calls back with whatever window DecodeBlock
// received, for asserting on Fetcher's window-lookup wiring.
type windowRecordingCodec func(offset int64, window []byte)

func (c windowRecordingCodec) WindowSize() int { return 32 * 1024 }
func (c windowRecordingCodec) ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error) {
	return HeaderInfo{EncodedOffset: encodedOffset}, nil
}
func (c windowRecordingCodec) DecodeBlock(br *bitio.Reader, encodedOffset int64, window []byte) (DecodedBlock, error) {
	c(encodedOffset, window)
	return DecodedBlock{Data: []byte{byte(encodedOffset)}, EncodedSize: 8}, nil
}
