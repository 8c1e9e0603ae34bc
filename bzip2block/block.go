// Package bzip2block implements the bzip2 per-block decoder from
// spec.md §4.13: readBlockHeader/readBlockData/prepare/decodeBlock as four
// separate, resumable stages so a caller (the fetcher) can interleave them
// with its own scheduling instead of decoding a whole block in one call.
package bzip2block

import (
	"github.com/randallfarmer/blockzip/bitio"
)

// BlockMagic is the 48-bit marker preceding an ordinary compressed block.
const BlockMagic = 0x314159265359

// EOSMagic is the 48-bit marker preceding the end-of-stream footer (a
// 32-bit combined stream CRC follows it).
const EOSMagic = 0x177245385090

// fileMagic is the 24-bit "BZh" signature every bzip2 stream
// starts with, immediately followed by an 8-bit block-size digit '1'..'9'.
const fileMagic = 0x425A68 // "BZh"

// StreamHeader is the parsed 4-byte bzip2 stream header.
type StreamHeader struct {
	BlockSize100k int // 1..9, block size in units of 100,000 bytes
}

// ReadStreamHeader reads and validates the "BZh" + level header that
// precedes the first block of a bzip2 stream.
func ReadStreamHeader(br *bitio.Reader) (StreamHeader, error) {
	magic, err := br.Read(24)
	if err != nil {
		return StreamHeader{}, err
	}
	if magic != fileMagic {
		return StreamHeader{}, formatErrorf("bad bzip2 stream magic %#x", magic)
	}
	level, err := br.Read8()
	if err != nil {
		return StreamHeader{}, err
	}
	if level < '1' || level > '9' {
		return StreamHeader{}, formatErrorf("invalid compression level byte %#x", level)
	}
	return StreamHeader{BlockSize100k: int(level - '0')}, nil
}

// Decoder decodes one bzip2 block across the four resumable stages spec.md
// §4.13 names. A Decoder is reusable across blocks within one stream (call
// ReadBlockHeader again to start the next).
type Decoder struct {
	blockSize int // in bytes (100k-units * 100000), sizes tt/c

	expectedCRC uint32
	blockCRC    uint32

	origPtr uint

	tt []uint32
	c  [256]uint

	// set by ReadBlockHeader, consumed by ReadBlockData
	huffmanTrees []huffmanTree
	treeIndexes  []uint8
	symbols      []byte
	numSymbols   int

	// decode-loop position, so ReadBlockData doesn't need to run to
	// completion in one call if a future resumable variant needs it;
	// today it always runs to completion since the Huffman/MTF pass has
	// no natural suspend point cheaper than finishing the block.
	bufIndex int

	// set by Prepare, consumed by DecodeBlock
	tPos uint32

	// DecodeBlock resumable state
	preRLE            []uint32
	preRLEUsed        int
	lastByte          int
	byteRepeats       uint
	symbolRepeatCount uint
}

// NewDecoder returns a Decoder sized for a stream with the given
// BlockSize100k (from ReadStreamHeader).
func NewDecoder(blockSize100k int) *Decoder {
	return &Decoder{blockSize: blockSize100k * 100000}
}

// ReadBlockHeader advances br past a block's header (the magic must
// already have been consumed by the caller, e.g. fetcher.Bzip2Codec)
// and populates the block's Huffman tables, BWT parameters, symbol map,
// and tree selectors.
func (d *Decoder) ReadBlockHeader(br *bitio.Reader) error {
	crc, err := br.Read32()
	if err != nil {
		return err
	}
	d.expectedCRC = crc

	randomized, err := br.ReadBit()
	if err != nil {
		return err
	}
	if randomized {
		return formatErrorf("deprecated randomized bzip2 blocks are not supported")
	}

	origPtr, err := br.Read(24)
	if err != nil {
		return err
	}
	d.origPtr = uint(origPtr)

	symbolRangeUsed, err := br.Read16()
	if err != nil {
		return err
	}
	symbolPresent := make([]bool, 256)
	numSymbols := 0
	for symRange := uint(0); symRange < 16; symRange++ {
		if symbolRangeUsed&(1<<(15-symRange)) == 0 {
			continue
		}
		bits, err := br.Read16()
		if err != nil {
			return err
		}
		for symbol := uint(0); symbol < 16; symbol++ {
			if bits&(1<<(15-symbol)) != 0 {
				symbolPresent[16*symRange+symbol] = true
				numSymbols++
			}
		}
	}
	if numSymbols == 0 {
		return formatErrorf("empty symbol map")
	}

	numHuffmanTreesRaw, err := br.Read(3)
	if err != nil {
		return err
	}
	numHuffmanTrees := int(numHuffmanTreesRaw)
	if numHuffmanTrees < 2 || numHuffmanTrees > 6 {
		return formatErrorf("invalid number of huffman trees %d", numHuffmanTrees)
	}

	numSelectorsRaw, err := br.Read(15)
	if err != nil {
		return err
	}
	treeIndexes := make([]uint8, numSelectorsRaw)
	selectorMTF := newMoveToFrontDecoderWithRange(numHuffmanTrees)
	for i := range treeIndexes {
		c := 0
		for {
			bit, err := br.ReadBit()
			if err != nil {
				return err
			}
			if !bit {
				break
			}
			c++
			if c >= numHuffmanTrees {
				return formatErrorf("tree selector index too large")
			}
		}
		treeIndexes[i] = selectorMTF.Decode(c)
	}

	symbols := make([]byte, numSymbols)
	next := 0
	for i := 0; i < 256; i++ {
		if symbolPresent[i] {
			symbols[next] = byte(i)
			next++
		}
	}

	numSymbols += 2 // RUNA, RUNB
	huffmanTrees := make([]huffmanTree, numHuffmanTrees)
	for i := 0; i < numHuffmanTrees; i++ {
		lengthRaw, err := br.Read(5)
		if err != nil {
			return err
		}
		length := int(lengthRaw)
		lengths := make([]uint8, numSymbols)
		for j := 0; j < numSymbols; j++ {
			for {
				more, err := br.ReadBit()
				if err != nil {
					return err
				}
				if !more {
					break
				}
				down, err := br.ReadBit()
				if err != nil {
					return err
				}
				if down {
					length--
				} else {
					length++
				}
			}
			if length < 1 || length > maxHuffmanBits {
				return formatErrorf("huffman code length %d out of range", length)
			}
			lengths[j] = uint8(length)
		}
		tree, err := newHuffmanTree(lengths)
		if err != nil {
			return err
		}
		huffmanTrees[i] = tree
	}

	d.huffmanTrees = huffmanTrees
	d.treeIndexes = treeIndexes
	d.symbols = symbols
	d.numSymbols = numSymbols
	if d.tt == nil || len(d.tt) != d.blockSize {
		d.tt = make([]uint32, d.blockSize)
	}
	for i := range d.c {
		d.c[i] = 0
	}
	d.bufIndex = 0
	return nil
}

// ReadBlockData performs the Huffman + move-to-front decode into the
// intermediate BWT buffer (dbuf), merging the run-length-2 (RUNA/RUNB)
// decode into the same pass, as bzip2's own decoder does.
func (d *Decoder) ReadBlockData(br *bitio.Reader) error {
	mtf := newMoveToFrontDecoder(d.symbols)

	selectorIndex := 1
	currentTree := &d.huffmanTrees[d.treeIndexes[0]]
	decoded := 0
	repeat := 0
	repeatPower := 0

	for {
		if decoded == 50 {
			if selectorIndex >= len(d.treeIndexes) {
				return formatErrorf("ran out of huffman tree selectors")
			}
			currentTree = &d.huffmanTrees[d.treeIndexes[selectorIndex]]
			selectorIndex++
			decoded = 0
		}

		v, err := currentTree.Decode(br)
		if err != nil {
			return err
		}
		decoded++

		if v < 2 {
			if repeat == 0 {
				repeatPower = 1
			}
			repeat += repeatPower << v
			repeatPower <<= 1
			if repeat > 2*1024*1024 {
				return formatErrorf("run-length-2 repeat count too large")
			}
			continue
		}

		if repeat > 0 {
			b := mtf.First()
			for i := 0; i < repeat; i++ {
				if d.bufIndex >= len(d.tt) {
					return formatErrorf("block data exceeds block size")
				}
				d.tt[d.bufIndex] = uint32(b)
				d.c[b]++
				d.bufIndex++
			}
			repeat = 0
		}

		if int(v) == d.numSymbols-1 {
			break // EOB symbol, always last in the MTF list
		}

		b := mtf.Decode(int(v - 1))
		if d.bufIndex >= len(d.tt) {
			return formatErrorf("block data exceeds block size")
		}
		d.tt[d.bufIndex] = uint32(b)
		d.c[b]++
		d.bufIndex++
	}

	if d.origPtr >= uint(d.bufIndex) {
		return formatErrorf("BWT origPtr out of bounds")
	}
	return nil
}

// Prepare completes the BWT setup (the inverse transform) once
// ReadBlockData has filled the intermediate buffer.
func (d *Decoder) Prepare() {
	d.preRLE = d.tt[:d.bufIndex]
	d.preRLEUsed = 0
	d.tPos = inverseBWT(d.preRLE, d.origPtr, d.c[:])
	d.lastByte = -1
	d.byteRepeats = 0
	d.symbolRepeatCount = 0
	d.blockCRC = initialBlockCRC
}

// DecodeBlock emits at most maxBytes decoded bytes into out (out must have
// at least that much room) by applying the final RLE4 expansion over the
// BWT output, updating the running block CRC as it goes. It is resumable:
// call it repeatedly until it reports done, each call picking up where the
// last left off. Completion is preRLEUsed == len(preRLE) &&
// symbolRepeatCount == 0, i.e. every BWT symbol has been consumed and no
// pending RLE4 repeat run remains.
func (d *Decoder) DecodeBlock(maxBytes int, out []byte) (n int, done bool, err error) {
	for (d.symbolRepeatCount > 0 || d.preRLEUsed < len(d.preRLE)) && n < maxBytes {
		if d.symbolRepeatCount > 0 {
			b := byte(d.lastByte)
			out[n] = b
			n++
			d.blockCRC = updateBlockCRC(d.blockCRC, b)
			d.symbolRepeatCount--
			if d.symbolRepeatCount == 0 {
				d.lastByte = -1
			}
			continue
		}

		d.tPos = d.preRLE[d.tPos]
		b := byte(d.tPos)
		d.tPos >>= 8
		d.preRLEUsed++

		if d.byteRepeats == 3 {
			d.symbolRepeatCount = uint(b)
			d.byteRepeats = 0
			continue
		}

		if d.lastByte == int(b) {
			d.byteRepeats++
		} else {
			d.byteRepeats = 0
		}
		d.lastByte = int(b)

		out[n] = b
		n++
		d.blockCRC = updateBlockCRC(d.blockCRC, b)
	}

	done = d.symbolRepeatCount == 0 && d.preRLEUsed >= len(d.preRLE)
	if done {
		if finalizeBlockCRC(d.blockCRC) != d.expectedCRC {
			return n, done, formatErrorf("bzip2 block CRC mismatch")
		}
	}
	return n, done, nil
}

// BlockCRC returns the block's finalized CRC; only meaningful after
// DecodeBlock reports done.
func (d *Decoder) BlockCRC() uint32 {
	return finalizeBlockCRC(d.blockCRC)
}
