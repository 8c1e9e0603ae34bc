// Package fetcher implements BlockFetcher from spec.md §4.12: the
// orchestrator that turns a confirmed encoded offset into decoded bytes,
// pooling decode work across a worker pool, caching results, and running
// the fetching strategy's prefetch predictions ahead of the reader.
package fetcher

import "github.com/randallfarmer/blockzip/bitio"

// HeaderInfo is the lightweight record ReadHeader returns: enough to tell
// an ordinary block from the stream's end-of-stream marker without paying
// for a full block decode.
type HeaderInfo struct {
	EncodedOffset int64
	EncodedSize   int64
	ExpectedCRC   uint32
	IsEndOfStream bool
	IsEndOfFile   bool
}

// DecodedBlock is what DecodeBlock produces for one block.
type DecodedBlock struct {
	Data []byte // fully resolved bytes; nil while Markers is set

	// Markers holds raw gzip decode symbols (literal bytes and markers,
	// see deflateblock.IsMarker) when the codec needed a dictionary window
	// it didn't have. Nil for codecs that never need one (bzip2) or when
	// the window was available and Data is already fully resolved.
	Markers []uint16

	EncodedSize   int64 // bits consumed decoding this block
	CRC           uint32
	IsEndOfStream bool
	IsEndOfFile   bool
}

// Codec is the per-block decoder contract (C13) a Fetcher drives. bzip2
// and gzip/deflate each get their own implementation; Fetcher is written
// against the interface so it doesn't know which.
type Codec interface {
	// DecodeBlock decodes the block starting at encodedOffset (an absolute
	// bit offset already confirmed by the BlockFinder) from a private
	// clone of the source reader. window is the preceding dictionary if
	// the codec needs one and it is already known; nil/empty otherwise.
	DecodeBlock(br *bitio.Reader, encodedOffset int64, window []byte) (DecodedBlock, error)

	// ReadHeader parses just enough of the block at encodedOffset to
	// classify it, without decoding its data.
	ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error)

	// WindowSize returns the dictionary size the codec carries forward
	// between blocks, or 0 for codecs with no window concept.
	WindowSize() int
}
