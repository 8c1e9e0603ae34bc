package blockzip

import (
	"bytes"
	"context"
	"io"
	"math"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/blkerr"
	"github.com/randallfarmer/blockzip/blockfind"
	"github.com/randallfarmer/blockzip/blockfinder"
	"github.com/randallfarmer/blockzip/blockmap"
	"github.com/randallfarmer/blockzip/bzip2block"
	"github.com/randallfarmer/blockzip/deflateblock"
	"github.com/randallfarmer/blockzip/fetcher"
	"github.com/randallfarmer/blockzip/sharedreader"
	"github.com/randallfarmer/blockzip/strategy"
	"github.com/randallfarmer/blockzip/streamed"
	"github.com/randallfarmer/blockzip/workerpool"
	"github.com/sirupsen/logrus"
)

// Reader is the parallel reader facade from spec.md §4.14: read, seek,
// tell, size, eof, close, plus the index import/export surface from
// spec.md §6. Not safe for concurrent use by design (spec.md §5): exactly
// one goroutine may call its methods at a time.
type Reader struct {
	format Format
	log    *logrus.Entry
	policy TrailingDataPolicy

	source *sharedreader.Reader
	fetch  *fetcher.Fetcher
	finder *blockfinder.Finder // nil for gzip/zlib/raw deflate: no scannable block magic
	blocks *blockmap.Map
	wins   *blockmap.WindowMap // nil for bzip2

	position int64 // current decoded-byte read position
	eof      bool
	closed   bool

	// seqCursor is the next encoded bit offset to decode from when finder
	// is nil, advanced sequentially (and across gzip member boundaries) as
	// chunks decode; there is no bit pattern to scan for the way bzip2's
	// block magic lets the BlockFinder run ahead of the reader.
	seqCursor int64
}

// Open detects the stream's format and returns a Reader over it. size is
// the total byte length of ra, or -1 if unknown (required to be known
// eventually for Size(), which forces a full scan if so).
func Open(ra io.ReaderAt, size int64, opts Options) (*Reader, error) {
	format, err := detectFormat(ra)
	if err != nil {
		return nil, err
	}

	log := opts.logger().WithField("format", format.String())
	shared := sharedreader.New(ra, size)
	parallelism := opts.parallelism()
	pool := workerpool.New(parallelism)

	switch format {
	case Bzip2Format:
		return openBzip2(shared, pool, opts, log)
	case GzipFormat, ZlibFormat, RawDeflateFormat:
		return openDeflate(shared, format, pool, opts, log)
	default:
		pool.Stop()
		return nil, blkerr.Wrap(blkerr.ErrFormat, "blockzip: could not identify stream format")
	}
}

func openBzip2(shared *sharedreader.Reader, pool *workerpool.Pool, opts Options, log *logrus.Entry) (*Reader, error) {
	headerSrc, err := shared.CloneSource()
	if err != nil {
		pool.Stop()
		return nil, err
	}
	headerReader := bitio.NewReader(headerSrc, bitio.MSBFirst, 64)
	streamHeader, err := bzip2block.ReadStreamHeader(headerReader)
	if err != nil {
		pool.Stop()
		return nil, err
	}
	log.Debugf("bzip2 level %d", streamHeader.BlockSize100k)

	scanReader, err := headerReader.Clone() // positioned just past the "BZh"+level header
	if err != nil {
		pool.Stop()
		return nil, err
	}

	finderParallelism := int(math.Ceil(float64(opts.parallelism()) / 8))
	var streamFinder blockfind.StreamFinder
	if finderParallelism > 1 {
		streamFinder, err = blockfind.NewParallel(context.Background(), scanReader, bzip2block.BlockMagic, 48, 1<<20, finderParallelism)
	} else {
		streamFinder, err = blockfind.New(scanReader, bzip2block.BlockMagic, 48)
	}
	if err != nil {
		pool.Stop()
		return nil, err
	}

	prefetchCount := opts.PrefetchCount
	if prefetchCount <= 0 {
		prefetchCount = blockfinder.DefaultPrefetchCount()
	}
	finder, err := blockfinder.New(streamFinder, prefetchCount)
	if err != nil {
		pool.Stop()
		return nil, err
	}

	templateSrc, err := shared.CloneSource()
	if err != nil {
		pool.Stop()
		return nil, err
	}
	template := bitio.NewReader(templateSrc, bitio.MSBFirst, 64)

	codec := fetcher.Bzip2Codec{BlockSize100k: streamHeader.BlockSize100k}
	f := fetcher.New(template, codec, finder, pool, strategy.NewFetchNextSmart(0), opts.parallelism(), nil)

	return &Reader{
		format: Bzip2Format,
		log:    log,
		policy: opts.TrailingDataPolicy,
		source: shared,
		fetch:  f,
		finder: finder,
		blocks: blockmap.New(),
	}, nil
}

func openDeflate(shared *sharedreader.Reader, format Format, pool *workerpool.Pool, opts Options, log *logrus.Entry) (*Reader, error) {
	headerBits, err := deflateHeaderBits(shared, format)
	if err != nil {
		pool.Stop()
		return nil, err
	}

	templateSrc, err := shared.CloneSource()
	if err != nil {
		pool.Stop()
		return nil, err
	}
	template := bitio.NewReader(templateSrc, bitio.LSBFirst, 64)

	wins := blockmap.NewWindowMap()
	codec := fetcher.GzipCodec{}
	f := fetcher.New(template, codec, nil, pool, strategy.NewFetchNextSmart(0), opts.parallelism(), wins)

	return &Reader{
		format:    format,
		log:       log,
		policy:    opts.TrailingDataPolicy,
		source:    shared,
		fetch:     f,
		blocks:    blockmap.New(),
		wins:      wins,
		seqCursor: headerBits,
	}, nil
}

// deflateHeaderBits returns the bit offset of the first deflate block: past
// the gzip member header (RFC 1952 §2.3) or the 2-or-6-byte zlib header
// (RFC 1950 §2.2, the larger size when FDICT is set); 0 for raw deflate.
func deflateHeaderBits(shared *sharedreader.Reader, format Format) (int64, error) {
	if format == RawDeflateFormat {
		return 0, nil
	}
	src, err := shared.CloneSource()
	if err != nil {
		return 0, err
	}
	defer closeIfCloser(src)

	counting := &countingReader{r: src}
	if format == GzipFormat {
		if _, err := deflateblock.ReadGzipHeader(counting); err != nil {
			return 0, err
		}
		return counting.n * 8, nil
	}

	var hdr [2]byte
	if _, err := io.ReadFull(counting, hdr[:]); err != nil {
		return 0, err
	}
	if hdr[1]&0x20 != 0 { // FDICT
		var dictID [4]byte
		if _, err := io.ReadFull(counting, dictID[:]); err != nil {
			return 0, err
		}
	}
	return counting.n * 8, nil
}

func closeIfCloser(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Format reports the container this Reader was opened against.
func (r *Reader) Format() Format { return r.format }

// Read implements the spec.md §4.14 read() algorithm: grow the BlockMap on
// demand (resolving the next block's offset via the BlockFinder for bzip2,
// or sequentially for gzip/zlib/raw deflate, which has no scannable block
// magic), then copy from whichever block covers the current position.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, blkerr.ErrClosed
	}
	ctx := context.Background()
	produced := 0

	for produced < len(p) && !r.eof {
		info := r.blocks.FindDataOffset(r.position)
		if !info.Contains(r.position) {
			if r.blocks.Finalized() {
				r.eof = true
				break
			}

			off, ok, err := r.nextOffset(ctx)
			if err != nil {
				return produced, err
			}
			if !ok {
				r.blocks.Finalize()
				r.eof = true
				break
			}

			chunk, err := r.fetch.Get(ctx, off, r.blocks.DataBlockCount())
			if err != nil {
				return produced, err
			}
			if err := r.blocks.Push(chunk.EncodedOffset, chunk.EncodedSize, int64(len(chunk.Data))); err != nil {
				return produced, err
			}

			if r.finder != nil {
				if err := r.checkBzip2EOS(chunk); err != nil {
					return produced, err
				}
			} else {
				if r.wins != nil {
					r.rememberWindow(chunk)
				}
				done, err := r.advanceSequential(chunk)
				if err != nil {
					return produced, err
				}
				if done {
					r.blocks.Finalize()
				}
			}

			info = r.blocks.FindDataOffset(r.position)
			if !info.Contains(r.position) {
				continue
			}
		}

		chunk, err := r.fetch.Get(ctx, info.EncodedOffsetInBits, info.BlockIndex)
		if err != nil {
			return produced, err
		}
		start := r.position - info.DecodedOffsetInBytes
		n := copy(p[produced:], chunk.Data[start:])
		produced += n
		r.position += int64(n)
		if n == 0 {
			// info claimed to contain position but the decoded chunk came
			// up short (shouldn't happen); avoid spinning forever.
			r.eof = true
			break
		}
	}

	if produced == 0 && r.eof {
		return 0, io.EOF
	}
	return produced, nil
}

// nextOffset resolves the encoded offset of the block after the last one
// recorded in the BlockMap, or (false, nil) at end of stream. The
// Finalized() check at the top of Read's caller means this is only reached
// while more data is genuinely expected.
func (r *Reader) nextOffset(ctx context.Context) (int64, bool, error) {
	if r.finder != nil {
		idx := r.blocks.DataBlockCount()
		off, status, err := r.finder.Get(ctx, idx)
		if err != nil {
			return 0, false, err
		}
		if status != streamed.Success {
			return 0, false, nil
		}
		return off, true, nil
	}
	return r.seqCursor, true, nil
}

// checkBzip2EOS peeks for the EOS marker right after a just-decoded block
// and, if found, records it as a zero-size terminal block and checks
// whether a concatenated bzip2 stream (or unrelated trailing data) follows.
func (r *Reader) checkBzip2EOS(chunk *fetcher.Chunk) error {
	if chunk.IsEndOfFile {
		return nil
	}
	hdr, err := r.fetch.ReadHeader(chunk.EncodedOffset + chunk.EncodedSize)
	if err != nil || !hdr.IsEndOfStream {
		return nil
	}
	if err := r.blocks.Push(hdr.EncodedOffset, hdr.EncodedSize, 0); err != nil {
		return err
	}

	after := ceilBitsToBytes(hdr.EncodedOffset + hdr.EncodedSize)
	head, err := r.readBytesAt(after, 3)
	if err == nil && len(head) == 3 && head[0] == 'B' && head[1] == 'Z' && head[2] == 'h' {
		return nil // concatenated bzip2 stream; the running block scan keeps finding its blocks
	}
	return r.checkTrailingData(after)
}

// advanceSequential updates seqCursor past chunk, crossing a gzip/zlib
// trailer and into the next concatenated gzip member's deflate data when
// one follows (RFC 1952's multi-member streams). Reports done once no more
// data remains; on that path it also records a zero-size terminal block so
// Back().DecodedOffsetInBytes reflects the true total decoded size, the
// same way a bzip2 EOS marker does.
func (r *Reader) advanceSequential(chunk *fetcher.Chunk) (done bool, err error) {
	end := chunk.EncodedOffset + chunk.EncodedSize
	if !chunk.IsEndOfStream {
		r.seqCursor = end
		return false, nil
	}

	if r.format == RawDeflateFormat {
		r.seqCursor = end
		return true, r.finishSequential(end)
	}

	trailerBytes := int64(8) // gzip: CRC32 + ISIZE
	if r.format == ZlibFormat {
		trailerBytes = 4 // Adler-32
	}
	// The final deflate block's Huffman coding can end mid-byte; the
	// container format pads to the next byte boundary before the trailer.
	after := ceilBitsToBytes(end) + trailerBytes

	if r.format == GzipFormat {
		if headerLen, ok := r.probeGzipMember(after); ok {
			r.seqCursor = (after + headerLen) * 8
			return false, nil
		}
	}

	r.seqCursor = after * 8
	return true, r.finishSequential(after * 8)
}

// finishSequential records a zero-size terminal block at terminalBitOffset
// and applies the trailing-data policy to whatever follows it.
func (r *Reader) finishSequential(terminalBitOffset int64) error {
	if err := r.blocks.Push(terminalBitOffset, 0, 0); err != nil {
		return err
	}
	return r.checkTrailingData(ceilBitsToBytes(terminalBitOffset))
}

// ceilBitsToBytes rounds a bit offset up to the containing byte, the way a
// container format pads a partial final byte before anything byte-aligned
// (a trailer, a following member) can start.
func ceilBitsToBytes(bits int64) int64 {
	return (bits + 7) / 8
}

// probeGzipMember reports whether another gzip member begins at byteOffset,
// and if so, its header length in bytes.
func (r *Reader) probeGzipMember(byteOffset int64) (int64, bool) {
	size, err := r.source.SizeBytes()
	if err != nil || byteOffset+2 > size {
		return 0, false
	}
	head, err := r.readBytesAt(byteOffset, 2)
	if err != nil || len(head) < 2 || head[0] != 0x1f || head[1] != 0x8b {
		return 0, false
	}

	// Gzip member headers are small (10 bytes plus optional name/comment/
	// extra fields); 4 KiB comfortably covers any realistic header.
	buf, err := r.readBytesAt(byteOffset, 4096)
	if err != nil && len(buf) == 0 {
		return 0, false
	}
	counting := &countingReader{r: bytes.NewReader(buf)}
	if _, err := deflateblock.ReadGzipHeader(counting); err != nil {
		return 0, false
	}
	return counting.n, true
}

// checkTrailingData applies policy to whatever remains at byteOffset, if
// anything (spec.md §6's configurable invalid-trailing-data policy).
func (r *Reader) checkTrailingData(byteOffset int64) error {
	size, err := r.source.SizeBytes()
	if err != nil || byteOffset >= size {
		return nil
	}
	switch r.policy {
	case Ignore:
		return nil
	case Fail:
		return blkerr.Wrapf(blkerr.ErrFormat, "blockzip: trailing data at byte offset %d after end of stream", byteOffset)
	default:
		r.log.Warnf("trailing data at byte offset %d after end of stream", byteOffset)
		return nil
	}
}

// readBytesAt reads up to n bytes starting at byteOffset from an
// independent clone of the source, leaving the Reader's own cursors
// untouched.
func (r *Reader) readBytesAt(byteOffset int64, n int) ([]byte, error) {
	src, err := r.source.CloneSource()
	if err != nil {
		return nil, err
	}
	defer closeIfCloser(src)

	seeker, ok := src.(interface{ SeekBytes(int64) error })
	if !ok {
		return nil, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockzip: source not seekable")
	}
	if err := seeker.SeekBytes(byteOffset); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	rn, err := io.ReadFull(src, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:rn], nil
}

// rememberWindow records the trailing WindowSize bytes ending at this
// chunk's end as the dictionary future decodes starting there will need.
func (r *Reader) rememberWindow(chunk *fetcher.Chunk) {
	windowSize := fetcher.GzipCodec{}.WindowSize()
	if len(chunk.Data) == 0 {
		return
	}
	window := make([]byte, windowSize)
	if len(chunk.Data) >= windowSize {
		copy(window, chunk.Data[len(chunk.Data)-windowSize:])
	} else {
		// Shorter than one window: pad with what the previous window
		// already had at its tail, mirroring how a sequential decoder's
		// sliding dictionary would look at this point.
		if prev, ok := r.wins.Get(chunk.EncodedOffset); ok {
			copy(window, prev[len(chunk.Data):])
		}
		copy(window[windowSize-len(chunk.Data):], chunk.Data)
	}
	_ = r.wins.Emplace(chunk.EncodedOffset+chunk.EncodedSize, window)
}

// Seek repositions the read cursor, per spec.md §4.14: in-range and
// backward seeks just update position; forward seeks past the known end
// grow the BlockMap by reading until reached.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, blkerr.ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.position + offset
	case io.SeekEnd:
		size, err := r.Size()
		if err != nil {
			return 0, err
		}
		target = size + offset
	default:
		return 0, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockzip: invalid seek whence")
	}
	if target < 0 {
		return 0, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockzip: negative seek target")
	}

	info := r.blocks.FindDataOffset(target)
	if info.Contains(target) || (r.blocks.Finalized() && target >= info.DecodedOffsetInBytes+info.DecodedSizeInBytes) {
		r.position = target
		r.eof = r.blocks.Finalized() && target >= info.DecodedOffsetInBytes+info.DecodedSizeInBytes
		return r.position, nil
	}

	// Forward seek past the known end: read-until-reached to grow the map.
	r.eof = false
	r.position = target
	discard := make([]byte, 64*1024)
	for {
		info = r.blocks.FindDataOffset(r.position)
		if info.Contains(r.position) || r.blocks.Finalized() {
			break
		}
		saved := r.position
		r.position = info.DecodedOffsetInBytes + info.DecodedSizeInBytes
		if r.position < saved {
			r.position = saved
		}
		if _, err := r.Read(discard); err != nil && err != io.EOF {
			return 0, err
		}
		if r.eof {
			break
		}
	}
	r.position = target
	if r.blocks.Finalized() {
		if last, err := r.blocks.Back(); err == nil {
			r.eof = target >= last.DecodedOffsetInBytes
		}
	}
	return r.position, nil
}

// Tell returns the current decoded-byte read position.
func (r *Reader) Tell() int64 { return r.position }

// TellCompressed returns the encoded-bit offset of the block covering the
// current position, or 0 if nothing has been decoded yet.
func (r *Reader) TellCompressed() int64 {
	info := r.blocks.FindDataOffset(r.position)
	return info.EncodedOffsetInBits
}

// Eof reports whether the last Read reached the end of the stream.
func (r *Reader) Eof() bool { return r.eof }

// Size forces a full read to the end (if the BlockMap isn't already
// finalized) and returns the total decoded size in bytes.
func (r *Reader) Size() (int64, error) {
	if !r.blocks.Finalized() {
		savedPos, savedEOF := r.position, r.eof
		discard := make([]byte, 256*1024)
		for {
			_, err := r.Read(discard)
			if err == io.EOF || r.eof {
				break
			}
			if err != nil {
				return 0, err
			}
		}
		r.position, r.eof = savedPos, savedEOF
	}
	last, err := r.blocks.Back()
	if err != nil {
		return 0, nil
	}
	return last.DecodedOffsetInBytes, nil
}

// BlockOffsets forces a full read to the end of the stream (see Size) and
// returns the complete {encoded, decoded} pair sequence, suitable for
// persisting as a GZIDX index (blockmap.WriteIndex).
func (r *Reader) BlockOffsets() ([]blockmap.OffsetPair, error) {
	if _, err := r.Size(); err != nil {
		return nil, err
	}
	return r.blocks.BlockOffsets(), nil
}

// AvailableBlockOffsets returns whatever {encoded, decoded} pairs have been
// confirmed so far, without forcing the rest of the stream to decode.
func (r *Reader) AvailableBlockOffsets() []blockmap.OffsetPair {
	return r.blocks.BlockOffsets()
}

// Stats returns a snapshot of the underlying BlockFetcher's cache and
// decode analytics (spec.md §4.12), for the bench subcommand and similar
// diagnostics.
func (r *Reader) Stats() fetcher.Stats { return r.fetch.Stats() }

// Windows returns the WindowMap backing this Reader's gzip/zlib/raw-deflate
// decodes, or nil for bzip2 (which has no window concept). A block past the
// first needs its window to resume decoding there without replaying
// everything before it, so pass this alongside BlockOffsets when handing a
// checkpoint to another Reader's SetBlockOffsets.
func (r *Reader) Windows() *blockmap.WindowMap { return r.wins }

// SetBlockOffsets imports a persisted index (spec.md §4.14): finalizes the
// BlockMap, installs the non-EOS offsets as the finder's confirmed
// results, and clears the fetcher's cache so stale decodes aren't served
// against the new offset table.
func (r *Reader) SetBlockOffsets(pairs []blockmap.OffsetPair, windows *blockmap.WindowMap) error {
	if err := r.blocks.SetBlockOffsets(pairs); err != nil {
		return err
	}
	if r.finder != nil {
		// An entry is EOS when the next entry shares its decoded offset, and
		// the last entry is always implicitly EOS (see blockmap.Map); the
		// finder only ever needs to resolve data-block offsets.
		sorted := r.blocks.BlockOffsets()
		offsets := make([]int64, 0, len(sorted))
		for i := 0; i+1 < len(sorted); i++ {
			if sorted[i].DecodedOffsetInBytes != sorted[i+1].DecodedOffsetInBytes {
				offsets = append(offsets, sorted[i].EncodedOffsetInBits)
			}
		}
		r.finder.SetBlockOffsets(offsets)
	}
	if windows != nil {
		r.wins = windows
		r.fetch.SetWindows(windows)
	}
	r.fetch.Purge()
	r.position = 0
	r.eof = false
	return nil
}

// Close stops background workers and releases the underlying source.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.fetch.Stop()
	return r.source.Close()
}
