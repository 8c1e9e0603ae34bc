// Package blockmap implements BlockMap and WindowMap from spec.md §4.7/§4.8:
// a thread-safe sorted sequence of encoded-bit-offset/decoded-byte-offset
// pairs, and a map from gzip block offset to the 32 KiB LZ77 window needed
// to resume decoding there. It also implements the GZIDX persisted index
// format from spec.md §6.
package blockmap

import (
	"sort"
	"sync"

	"github.com/randallfarmer/blockzip/blkerr"
)

// BlockInfo describes one confirmed block: its index, its encoded bit
// range, and its decoded byte range.
type BlockInfo struct {
	BlockIndex           int
	EncodedOffsetInBits  int64
	EncodedSizeInBits    int64
	DecodedOffsetInBytes int64
	DecodedSizeInBytes   int64
}

// Contains reports whether dataOffset falls within this block's decoded
// byte range.
func (b BlockInfo) Contains(dataOffset int64) bool {
	return b.DecodedOffsetInBytes <= dataOffset && dataOffset < b.DecodedOffsetInBytes+b.DecodedSizeInBytes
}

// OffsetPair is one {encoded, decoded} entry, used for bulk import/export
// (blockOffsets(), setBlockOffsets()).
type OffsetPair struct {
	EncodedOffsetInBits  int64
	DecodedOffsetInBytes int64
}

type pair struct {
	encoded int64
	decoded int64
}

// Map is a thread-safe, append-only (until finalized) sorted sequence of
// block boundaries.
type Map struct {
	mu sync.Mutex

	offsets   []pair
	eosBlocks []int64

	lastBlockEncodedSize int64
	lastBlockDecodedSize int64
	finalized            bool
}

// New returns an empty, unfinalized Map.
func New() *Map {
	return &Map{}
}

// Push records a block starting at encodedOffset (bits) with the given
// encoded size (bits) and decoded size (bytes; 0 for an EOS block).
// encodedOffset must be strictly increasing across calls, except that an
// exact duplicate of an already-recorded (non-last) offset with a matching
// implied decoded size is silently accepted.
func (m *Map) Push(encodedOffset, encodedSize, decodedSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalized {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "blockmap: push to finalized map")
	}

	var decodedOffset int64
	appending := false
	switch {
	case len(m.offsets) == 0:
		decodedOffset = 0
		appending = true
	case encodedOffset > m.offsets[len(m.offsets)-1].encoded:
		decodedOffset = m.offsets[len(m.offsets)-1].decoded + m.lastBlockDecodedSize
		appending = true
	}

	if appending {
		m.offsets = append(m.offsets, pair{encoded: encodedOffset, decoded: decodedOffset})
		if decodedSize == 0 {
			m.eosBlocks = append(m.eosBlocks, encodedOffset)
		}
		m.lastBlockDecodedSize = decodedSize
		m.lastBlockEncodedSize = encodedSize
		return nil
	}

	idx := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i].encoded >= encodedOffset })
	if idx == len(m.offsets) || m.offsets[idx].encoded != encodedOffset {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "blockmap: inserted block offsets must be strictly increasing")
	}
	if idx == len(m.offsets)-1 {
		return blkerr.Wrap(blkerr.ErrLogic, "blockmap: duplicate of the last offset should have been appended")
	}
	impliedDecodedSize := m.offsets[idx+1].decoded - m.offsets[idx].decoded
	if impliedDecodedSize != decodedSize {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "blockmap: duplicate block offset with inconsistent size")
	}
	return nil // quietly ignore a consistent duplicate
}

// FindDataOffset returns the block containing dataOffset, or the last
// recorded block if dataOffset falls past the end; callers should check
// BlockInfo.Contains. Returns the zero BlockInfo if the map is empty.
func (m *Map) FindDataOffset(dataOffset int64) BlockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.offsets) == 0 {
		return BlockInfo{}
	}
	idx := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i].decoded > dataOffset }) - 1
	if idx < 0 {
		idx = 0
	}

	info := BlockInfo{
		BlockIndex:           idx,
		EncodedOffsetInBits:  m.offsets[idx].encoded,
		DecodedOffsetInBytes: m.offsets[idx].decoded,
	}
	if idx == len(m.offsets)-1 {
		info.DecodedSizeInBytes = m.lastBlockDecodedSize
		info.EncodedSizeInBits = m.lastBlockEncodedSize
	} else {
		info.DecodedSizeInBytes = m.offsets[idx+1].decoded - m.offsets[idx].decoded
		info.EncodedSizeInBits = m.offsets[idx+1].encoded - m.offsets[idx].encoded
	}
	return info
}

// DataBlockCount returns the number of non-EOS blocks recorded.
func (m *Map) DataBlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offsets) - len(m.eosBlocks)
}

// Finalize marks the map complete; further Push calls fail.
func (m *Map) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
}

// Finalized reports whether the map is complete.
func (m *Map) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// SetBlockOffsets bulk-imports offsets (not required to be pre-sorted),
// deriving EOS blocks from consecutive equal decoded offsets (and the
// final entry, always treated as EOS), and finalizes. offsets must be
// non-empty.
func (m *Map) SetBlockOffsets(offsets []OffsetPair) error {
	if len(offsets) == 0 {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "blockmap: cannot set an empty block offset list")
	}

	sorted := make([]OffsetPair, len(offsets))
	copy(sorted, offsets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EncodedOffsetInBits < sorted[j].EncodedOffsetInBits })

	m.mu.Lock()
	defer m.mu.Unlock()

	m.offsets = make([]pair, len(sorted))
	for i, o := range sorted {
		m.offsets[i] = pair{encoded: o.EncodedOffsetInBits, decoded: o.DecodedOffsetInBytes}
	}
	m.lastBlockEncodedSize = 0
	m.lastBlockDecodedSize = 0

	m.eosBlocks = m.eosBlocks[:0]
	for i := 0; i+1 < len(m.offsets); i++ {
		if m.offsets[i].decoded == m.offsets[i+1].decoded {
			m.eosBlocks = append(m.eosBlocks, m.offsets[i].encoded)
		}
	}
	m.eosBlocks = append(m.eosBlocks, m.offsets[len(m.offsets)-1].encoded)
	m.finalized = true
	return nil
}

// BlockOffsets returns a copy of every recorded {encoded, decoded} pair.
func (m *Map) BlockOffsets() []OffsetPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OffsetPair, len(m.offsets))
	for i, p := range m.offsets {
		out[i] = OffsetPair{EncodedOffsetInBits: p.encoded, DecodedOffsetInBytes: p.decoded}
	}
	return out
}

// Back returns the last recorded pair, or an error if the map is empty.
func (m *Map) Back() (OffsetPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.offsets) == 0 {
		return OffsetPair{}, blkerr.Wrap(blkerr.ErrFailure, "blockmap: back of empty map")
	}
	last := m.offsets[len(m.offsets)-1]
	return OffsetPair{EncodedOffsetInBits: last.encoded, DecodedOffsetInBytes: last.decoded}, nil
}
