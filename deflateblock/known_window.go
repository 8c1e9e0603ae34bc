package deflateblock

import "github.com/randallfarmer/blockzip/bitio"

// WindowSize is the fixed LZ77 dictionary size deflate/gzip back-references
// can reach into.
const WindowSize = 32 * 1024

// DecodeKnownWindow decodes a chunk of one or more deflate blocks starting
// at br's current bit position using window as the preceding 32 KiB
// dictionary (pass an empty window at the very start of a stream), stopping
// once maxSymbols symbols have been produced or a block with BFINAL=1
// completes (finalBlock is then true).
//
// This drives the same marker-emitting Decoder as the no-window fallback,
// so it still decodes block-by-block and leaves br positioned exactly on
// the next block's boundary; the only difference is that every marker gets
// resolved against window immediately instead of surviving into the
// returned chunk. An earlier version of this fast path ran
// flate.NewReaderDict over a stop-at-N-output-bytes io.ReadFull, which (a)
// could stop mid-block, leaving br.Tell() short of the real boundary, and
// (b) never derived BFINAL, so the sequential reader could never detect
// end of stream through this path.
func DecodeKnownWindow(br *bitio.Reader, window []byte, maxSymbols int) (data []byte, finalBlock bool, err error) {
	d := NewDecoder()
	symbols, final, err := d.Decode(br, maxSymbols)
	if err != nil {
		return nil, false, err
	}
	out, err := ReplaceMarkers(symbols, window)
	if err != nil {
		return nil, false, err
	}
	return out, final, nil
}
