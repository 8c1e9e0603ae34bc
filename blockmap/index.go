package blockmap

import (
	"encoding/binary"
	"io"

	"github.com/randallfarmer/blockzip/blkerr"
)

// Persisted index format, spec.md §6: magic "GZIDX", version 1, compressed
// and uncompressed sizes, checkpoint spacing, window size (must be
// WindowSizeBytes), a count, then per-checkpoint records, followed by the
// concatenated window bytes for records with HasWindow set.
const (
	indexMagic   = "GZIDX"
	indexVersion = 1
	// WindowSizeBytes is the only window size the persisted format supports.
	WindowSizeBytes = 32 * 1024
)

// CheckpointRecord is one persisted checkpoint.
type CheckpointRecord struct {
	// CompressedOffsetBytes is ceil(bitOffset/8); the actual bit offset is
	// CompressedOffsetBytes*8 - SubBitCount.
	CompressedOffsetBytes int64
	UncompressedOffset    int64
	SubBitCount           uint8
	HasWindow             bool
	Window                []byte // len WindowSizeBytes if HasWindow
}

// IndexFile is the full persisted index.
type IndexFile struct {
	CompressedSize    int64
	UncompressedSize  int64
	CheckpointSpacing int64
	Records           []CheckpointRecord
}

// WriteIndex serializes idx in the GZIDX format.
func WriteIndex(w io.Writer, idx IndexFile) error {
	if _, err := io.WriteString(w, indexMagic); err != nil {
		return blkerr.Wrap(err, "blockmap: write index magic")
	}
	fields := []interface{}{
		uint32(indexVersion),
		idx.CompressedSize,
		idx.UncompressedSize,
		idx.CheckpointSpacing,
		uint32(WindowSizeBytes),
		uint64(len(idx.Records)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return blkerr.Wrap(err, "blockmap: write index header")
		}
	}
	for _, rec := range idx.Records {
		hasWindow := uint8(0)
		if rec.HasWindow {
			hasWindow = 1
		}
		recFields := []interface{}{rec.CompressedOffsetBytes, rec.UncompressedOffset, rec.SubBitCount, hasWindow}
		for _, f := range recFields {
			if err := binary.Write(w, binary.BigEndian, f); err != nil {
				return blkerr.Wrap(err, "blockmap: write index record")
			}
		}
	}
	for _, rec := range idx.Records {
		if !rec.HasWindow {
			continue
		}
		if len(rec.Window) != WindowSizeBytes {
			return blkerr.Wrapf(blkerr.ErrInvalidArgument, "blockmap: window must be %d bytes, got %d", WindowSizeBytes, len(rec.Window))
		}
		if _, err := w.Write(rec.Window); err != nil {
			return blkerr.Wrap(err, "blockmap: write window bytes")
		}
	}
	return nil
}

// ReadIndex parses a GZIDX file, validating version, window size, and
// per-record subBitCount range (spec.md §6).
func ReadIndex(r io.Reader) (IndexFile, error) {
	var idx IndexFile

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return idx, blkerr.Wrap(blkerr.ErrFormat, "blockmap: truncated index magic")
	}
	if string(magic) != indexMagic {
		return idx, blkerr.Wrap(blkerr.ErrFormat, "blockmap: bad index magic")
	}

	var version uint32
	var windowSize uint32
	var count uint64
	header := []interface{}{&version, &idx.CompressedSize, &idx.UncompressedSize, &idx.CheckpointSpacing, &windowSize, &count}
	for _, f := range header {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return idx, blkerr.Wrap(blkerr.ErrFormat, "blockmap: truncated index header")
		}
	}
	if version > indexVersion {
		return idx, blkerr.Wrapf(blkerr.ErrInvalidArgument, "blockmap: unsupported index version %d", version)
	}
	if windowSize != WindowSizeBytes {
		return idx, blkerr.Wrapf(blkerr.ErrInvalidArgument, "blockmap: window size must be %d, got %d", WindowSizeBytes, windowSize)
	}

	idx.Records = make([]CheckpointRecord, count)
	for i := range idx.Records {
		var hasWindow uint8
		rec := &idx.Records[i]
		fields := []interface{}{&rec.CompressedOffsetBytes, &rec.UncompressedOffset, &rec.SubBitCount, &hasWindow}
		for _, f := range fields {
			if err := binary.Read(r, binary.BigEndian, f); err != nil {
				return idx, blkerr.Wrap(blkerr.ErrFormat, "blockmap: truncated index record")
			}
		}
		if rec.SubBitCount >= 8 {
			return idx, blkerr.Wrapf(blkerr.ErrInvalidArgument, "blockmap: subBitCount %d out of [0,7]", rec.SubBitCount)
		}
		rec.HasWindow = hasWindow != 0
	}
	for i := range idx.Records {
		if !idx.Records[i].HasWindow {
			continue
		}
		window := make([]byte, WindowSizeBytes)
		if _, err := io.ReadFull(r, window); err != nil {
			return idx, blkerr.Wrap(blkerr.ErrFormat, "blockmap: truncated window bytes")
		}
		idx.Records[i].Window = window
	}
	return idx, nil
}

// ImportIndex validates idx against the actual opened file's sizes (the
// "index file CRC/consistency validation on import" supplemented feature)
// and converts its checkpoints into OffsetPairs for Map.SetBlockOffsets
// plus a populated WindowMap.
func ImportIndex(idx IndexFile, actualCompressedSize, actualUncompressedSize int64) ([]OffsetPair, *WindowMap, error) {
	if idx.CompressedSize != actualCompressedSize || idx.UncompressedSize != actualUncompressedSize {
		return nil, nil, blkerr.Wrap(blkerr.ErrIndexMismatch, "blockmap: persisted index sizes don't match the opened file")
	}

	pairs := make([]OffsetPair, 0, len(idx.Records))
	windows := NewWindowMap()
	for _, rec := range idx.Records {
		bitOffset := rec.CompressedOffsetBytes*8 - int64(rec.SubBitCount)
		if bitOffset < 0 {
			return nil, nil, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockmap: negative implied bit offset in index")
		}
		if rec.CompressedOffsetBytes > actualCompressedSize {
			return nil, nil, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockmap: index checkpoint past end of file")
		}
		pairs = append(pairs, OffsetPair{EncodedOffsetInBits: bitOffset, DecodedOffsetInBytes: rec.UncompressedOffset})
		if rec.HasWindow {
			if err := windows.Emplace(bitOffset, rec.Window); err != nil {
				return nil, nil, err
			}
		}
	}
	return pairs, windows, nil
}

// ExportIndex converts a confirmed BlockOffsets slice (plus the WindowMap
// backing it, nil for bzip2) into a persistable IndexFile. Every offset
// pair becomes a checkpoint; a pair carries a window when windows holds one
// for its exact bit offset (for gzip/zlib/raw-deflate, the facade's
// rememberWindow records one at the end offset of each decoded chunk, so a
// member's first block has none; never for bzip2).
func ExportIndex(pairs []OffsetPair, windows *WindowMap, compressedSize, uncompressedSize int64) IndexFile {
	idx := IndexFile{
		CompressedSize:   compressedSize,
		UncompressedSize: uncompressedSize,
		Records:          make([]CheckpointRecord, len(pairs)),
	}
	if len(pairs) > 1 {
		idx.CheckpointSpacing = pairs[1].DecodedOffsetInBytes - pairs[0].DecodedOffsetInBytes
	}
	for i, p := range pairs {
		rec := CheckpointRecord{
			CompressedOffsetBytes: (p.EncodedOffsetInBits + 7) / 8,
			UncompressedOffset:    p.DecodedOffsetInBytes,
			SubBitCount:           uint8(((p.EncodedOffsetInBits+7)/8)*8 - p.EncodedOffsetInBits),
		}
		if windows != nil {
			if w, ok := windows.Get(p.EncodedOffsetInBits); ok {
				rec.HasWindow = true
				rec.Window = w
			}
		}
		idx.Records[i] = rec
	}
	return idx
}
