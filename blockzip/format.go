// Package blockzip implements the parallel reader facade from spec.md
// §4.14: a standard FileReader surface (read/seek/tell/size/eof/close)
// over a bzip2 or gzip stream, backed by the rest of this module's
// components (sharedreader, blockfind/blockfinder, blockmap, cache,
// strategy, workerpool, fetcher).
package blockzip

import (
	"bytes"
	"io"

	"github.com/randallfarmer/blockzip/blkerr"
	"github.com/randallfarmer/blockzip/deflateblock"
)

// Format identifies the compressed container a Reader was opened against.
type Format int

const (
	UnknownFormat Format = iota
	Bzip2Format
	GzipFormat
	ZlibFormat
	RawDeflateFormat
)

func (f Format) String() string {
	switch f {
	case Bzip2Format:
		return "bzip2"
	case GzipFormat:
		return "gzip"
	case ZlibFormat:
		return "zlib"
	case RawDeflateFormat:
		return "raw deflate"
	default:
		return "unknown"
	}
}

// detectFormat classifies the stream at byte offset 0 of ra, per spec.md
// §6's "plain deflate and zlib may be detected by header probing": bzip2's
// "BZh" magic is checked first since it's unambiguous, falling back to
// deflateblock.ProbeFormat (over just the few header bytes, read via
// ReadAt so no clone's logical position is disturbed) for the gzip family.
func detectFormat(ra io.ReaderAt) (Format, error) {
	head := make([]byte, 4)
	n, err := ra.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return UnknownFormat, blkerr.Wrap(err, "blockzip: read stream header")
	}
	head = head[:n]
	if len(head) < 2 {
		return UnknownFormat, blkerr.Wrap(blkerr.ErrFormat, "blockzip: stream too short to identify")
	}
	if len(head) >= 3 && head[0] == 'B' && head[1] == 'Z' && head[2] == 'h' {
		return Bzip2Format, nil
	}

	deflateFmt, _, err := deflateblock.ProbeFormat(bytes.NewReader(head))
	if err != nil {
		return UnknownFormat, err
	}
	switch deflateFmt {
	case deflateblock.GzipFormat:
		return GzipFormat, nil
	case deflateblock.ZlibFormat:
		return ZlibFormat, nil
	default:
		return RawDeflateFormat, nil
	}
}
