// Package blockfind implements BitStringFinder and ParallelBitStringFinder
// from spec.md §4.3/§4.4: scanning a byte stream for a fixed bit pattern
// (the bzip2 block/EOS magic, or any other pattern up to 56 bits) at
// arbitrary bit alignment, reporting strictly increasing absolute bit
// offsets.
package blockfind

import (
	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/blkerr"
)

// StreamFinder is satisfied by both Finder and ParallelFinder: a sequence
// of Find calls returning strictly increasing offsets, terminated by
// NoneLeft. blockfinder.Finder is built against this interface so it can
// drive either implementation interchangeably.
type StreamFinder interface {
	Find() (int64, error)
}

// MaxPatternWidth is the largest pattern width this finder supports, per
// spec.md §4.3: with a 64-bit sliding window, a width above 56 bits leaves
// no room for the LUT to cover even one full byte of alignments.
const MaxPatternWidth = 56

// lutEntry is one (shiftedValue, mask) pair of the shifted-pattern LUT
// described in spec.md §3: comparing a 64-bit window W against
// (W&mask)==shiftedValue tests one specific bit alignment.
type lutEntry struct {
	shifted uint64
	mask    uint64
}

func mask64(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// buildLUT returns the shifted-pattern LUT for a pattern of width w against
// a window of windowBits valid bits (windowBits in [w, 64]), one entry per
// alignment, ordered from the earliest (most significant) to the latest.
func buildLUT(pattern uint64, w uint, windowBits uint) []lutEntry {
	patMasked := pattern & mask64(w)
	nAlign := windowBits - w + 1
	entries := make([]lutEntry, nAlign)
	for a := uint(0); a < nAlign; a++ {
		// Alignment a's pattern occupies the w bits ending (windowBits-1-a)
		// bits from the bottom of the window, i.e. shifted left by
		// (windowBits - w - a).
		shift := windowBits - w - a
		entries[a] = lutEntry{shifted: patMasked << shift, mask: mask64(w) << shift}
	}
	return entries
}

// Finder scans for a single fixed pattern. Construct one per pattern; it is
// not safe for concurrent use.
type Finder struct {
	br      *bitio.Reader
	pattern uint64
	width   uint
	lut64   []lutEntry // cached LUT for the common 64-bit-window case
	atEOF   bool
}

// New returns a Finder scanning br for pattern's low width bits,
// 1 <= width <= MaxPatternWidth. br must use a 64-bit internal buffer
// (bitio.NewReader(..., 64)), since the LUT is built against a 64-bit window.
func New(br *bitio.Reader, pattern uint64, width uint) (*Finder, error) {
	if width == 0 || width > MaxPatternWidth {
		return nil, blkerr.Wrapf(blkerr.ErrInvalidArgument, "blockfind: pattern width %d out of [1,%d]", width, MaxPatternWidth)
	}
	if br.Width() != 64 {
		return nil, blkerr.Wrap(blkerr.ErrInvalidArgument, "blockfind: reader must have a 64-bit buffer")
	}
	return &Finder{
		br:      br,
		pattern: pattern & mask64(width),
		width:   width,
		lut64:   buildLUT(pattern, width, 64),
	}, nil
}

// NoneLeft is returned by Find when the source is exhausted.
const NoneLeft int64 = -1

// Find returns the absolute bit offset of the next occurrence of the
// pattern, MSB-first, at any bit alignment, or NoneLeft at end of stream.
// Results across successive calls are strictly increasing, and a match is
// reported at most once per offset (spec.md §4.3, §8).
func (f *Finder) Find() (int64, error) {
	if f.atEOF {
		return NoneLeft, nil
	}
	for {
		windowBits, v, err := f.peekWindow()
		if err != nil {
			return 0, err
		}
		if windowBits < f.width {
			f.atEOF = true
			return NoneLeft, nil
		}
		lut := f.lut64
		if windowBits != 64 {
			lut = buildLUT(f.pattern, f.width, windowBits)
		}
		base := f.br.Tell()
		matched := -1
		for a, e := range lut {
			if v&e.mask == e.shifted {
				matched = a
				break
			}
		}
		if matched >= 0 {
			offset := base + int64(matched)
			if err := f.br.SeekAfterPeek(uint(matched + 1)); err != nil {
				return 0, err
			}
			return offset, nil
		}
		// No match in this window: advance past every alignment tested so
		// the next window starts exactly where coverage left off.
		if err := f.br.SeekAfterPeek(uint(len(lut))); err != nil {
			return 0, err
		}
	}
}

// Eof reports whether the underlying source has been fully scanned.
func (f *Finder) Eof() bool {
	return f.atEOF
}

// peekWindow returns the widest window available (up to 64 bits, down to
// f.width), and its bit count.
func (f *Finder) peekWindow() (uint, uint64, error) {
	for n := uint(64); n >= f.width; n-- {
		v, err := f.br.Peek(n)
		if err == nil {
			return n, v, nil
		}
		if err != blkerr.ErrEOF {
			return 0, 0, err
		}
	}
	return 0, 0, nil
}
