package fetcher

import (
	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/deflateblock"
)

// GzipChunkSize is the decoded-byte count after which DecodeBlock stops
// taking further deflate blocks; the limit is checked only between whole
// blocks, so a chunk can end up somewhat larger. It plays the same role
// blockSize100k plays for bzip2
// (gzip/deflate has no analogous fixed block size, so this is a tuning
// knob rather than a format constant).
const GzipChunkSize = 1 << 20 // 1 MiB

// GzipCodec adapts deflateblock to the Codec interface. Unlike bzip2, it
// has a real dictionary window: DecodeBlock takes the fast
// (DecodeKnownWindow) path when window is already known and falls back to
// the marker-emitting decoder otherwise, per spec.md §4.12's gzip-specific
// extension. Both paths decode through the same block-by-block decoder, so
// both report exact consumed bits and BFINAL.
type GzipCodec struct{}

func (c GzipCodec) WindowSize() int { return deflateblock.WindowSize }

// ReadHeader classifies the bits at encodedOffset as either the start of
// another deflate block (IsEndOfStream=false) or the stream having
// already ended; gzip's own end-of-stream is the BFINAL bit of whichever
// block is last, not a magic number like bzip2's EOS marker, so unlike
// Bzip2Codec.ReadHeader there is no way to tell without actually decoding
// through to that block's end. This pays the same cost as DecodeBlock; it
// exists only so callers can share one Codec-shaped check for both
// formats.
func (c GzipCodec) ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error) {
	if err := br.Seek(encodedOffset, bitio.SeekStart); err != nil {
		return HeaderInfo{}, err
	}
	d := deflateblock.NewDecoder()
	_, final, err := d.Decode(br, GzipChunkSize)
	if err != nil {
		return HeaderInfo{}, err
	}
	return HeaderInfo{
		EncodedOffset: encodedOffset,
		EncodedSize:   br.Tell() - encodedOffset,
		IsEndOfStream: final,
	}, nil
}

// DecodeBlock decodes whole deflate blocks starting at encodedOffset until
// at least GzipChunkSize bytes have been produced or the final block ends.
// When window is non-nil the fast DecodeKnownWindow path resolves
// everything immediately; otherwise the marker-emitting fallback runs and
// DecodedBlock.Markers carries whatever couldn't be resolved, for a later
// pass once the window becomes available (see ReplaceMarkers).
func (c GzipCodec) DecodeBlock(br *bitio.Reader, encodedOffset int64, window []byte) (DecodedBlock, error) {
	if err := br.Seek(encodedOffset, bitio.SeekStart); err != nil {
		return DecodedBlock{}, err
	}

	if len(window) == deflateblock.WindowSize {
		data, final, err := deflateblock.DecodeKnownWindow(br, window, GzipChunkSize)
		if err != nil {
			return DecodedBlock{}, err
		}
		return DecodedBlock{
			Data:          data,
			EncodedSize:   br.Tell() - encodedOffset,
			IsEndOfStream: final,
		}, nil
	}

	d := deflateblock.NewDecoder()
	symbols, final, err := d.Decode(br, GzipChunkSize)
	if err != nil {
		return DecodedBlock{}, err
	}

	hasMarker := false
	for _, s := range symbols {
		if deflateblock.IsMarker(s) {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		data := make([]byte, len(symbols))
		for i, s := range symbols {
			data[i] = byte(s)
		}
		return DecodedBlock{
			Data:          data,
			EncodedSize:   br.Tell() - encodedOffset,
			IsEndOfStream: final,
		}, nil
	}

	return DecodedBlock{
		Markers:       symbols,
		EncodedSize:   br.Tell() - encodedOffset,
		IsEndOfStream: final,
	}, nil
}
