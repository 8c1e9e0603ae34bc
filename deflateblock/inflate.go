package deflateblock

import "github.com/randallfarmer/blockzip/bitio"

// endOfBlock is the literal/length alphabet's block terminator symbol.
const endOfBlock = 256

// Decoder decodes a chunk of one or more deflate blocks without requiring
// the 32 KiB dictionary that precedes it, the hand-rolled fallback named in
// SPEC_FULL.md for when the fetcher runs ahead of the WindowMap. Every
// back-reference whose distance reaches past the start of the chunk is
// emitted as a marker symbol (see marker.go) instead of a resolved byte;
// ReplaceMarkers fixes them up once the real window is available.
type Decoder struct{}

// NewDecoder returns a marker-emitting deflate decoder. It carries no
// per-block state of its own (unlike bzip2block.Decoder): deflate blocks
// don't need a header/data/prepare split since a block's Huffman tables are
// consumed and discarded in one pass.
func NewDecoder() *Decoder { return &Decoder{} }

// Decode reads deflate blocks from br, appending decoded symbols (literal
// bytes and markers) until either maxSymbols is reached or a block with
// BFINAL=1 completes (finalBlock is then true, meaning the underlying
// deflate stream, and thus the gzip member, ended inside this chunk).
func (d *Decoder) Decode(br *bitio.Reader, maxSymbols int) (out []uint16, finalBlock bool, err error) {
	for len(out) < maxSymbols {
		bfinal, err := br.ReadBit()
		if err != nil {
			return out, finalBlock, err
		}
		btypeVal, err := br.Read(2)
		if err != nil {
			return out, finalBlock, err
		}

		switch btypeVal {
		case 0:
			out, err = decodeStoredBlock(br, out)
		case 1:
			out, err = decodeHuffmanBlock(br, &fixedLiteralTable, &fixedDistanceTable, out)
		case 2:
			out, err = decodeDynamicBlock(br, out)
		default:
			err = formatErrorf("reserved deflate block type 3")
		}
		if err != nil {
			return out, finalBlock, err
		}

		if bfinal {
			finalBlock = true
			break
		}
	}
	return out, finalBlock, nil
}

func decodeStoredBlock(br *bitio.Reader, out []uint16) ([]uint16, error) {
	skip := (8 - uint(br.Tell()%8)) % 8
	if skip > 0 {
		if _, err := br.Read(skip); err != nil {
			return out, err
		}
	}
	lenRaw, err := br.Read16()
	if err != nil {
		return out, err
	}
	nlenRaw, err := br.Read16()
	if err != nil {
		return out, err
	}
	if lenRaw != ^nlenRaw {
		return out, formatErrorf("stored block LEN/NLEN mismatch")
	}
	for i := uint16(0); i < lenRaw; i++ {
		b, err := br.Read8()
		if err != nil {
			return out, err
		}
		out = append(out, uint16(b))
	}
	return out, nil
}

func decodeHuffmanBlock(br *bitio.Reader, lit, dist *huffmanTable, out []uint16) ([]uint16, error) {
	for {
		sym, err := lit.decode(br)
		if err != nil {
			return out, err
		}
		if sym < 256 {
			out = append(out, uint16(sym))
			continue
		}
		if sym == endOfBlock {
			return out, nil
		}

		lengthIdx := sym - 257
		if lengthIdx < 0 || lengthIdx >= len(lengthBase) {
			return out, formatErrorf("invalid length code %d", sym)
		}
		length := lengthBase[lengthIdx]
		if bits := lengthExtraBits[lengthIdx]; bits > 0 {
			extra, err := br.Read(uint(bits))
			if err != nil {
				return out, err
			}
			length += int(extra)
		}

		distSym, err := dist.decode(br)
		if err != nil {
			return out, err
		}
		if distSym < 0 || distSym >= len(distBase) {
			return out, formatErrorf("invalid distance code %d", distSym)
		}
		distance := distBase[distSym]
		if bits := distExtraBits[distSym]; bits > 0 {
			extra, err := br.Read(uint(bits))
			if err != nil {
				return out, err
			}
			distance += int(extra)
		}
		if distance > WindowSize {
			return out, formatErrorf("back-reference distance %d exceeds window size", distance)
		}

		for i := 0; i < length; i++ {
			pos := len(out)
			src := pos - distance
			if src < 0 {
				out = append(out, newMarker(WindowSize+src))
			} else {
				out = append(out, out[src])
			}
		}
	}
}

func decodeDynamicBlock(br *bitio.Reader, out []uint16) ([]uint16, error) {
	hlitRaw, err := br.Read(5)
	if err != nil {
		return out, err
	}
	hdistRaw, err := br.Read(5)
	if err != nil {
		return out, err
	}
	hclenRaw, err := br.Read(4)
	if err != nil {
		return out, err
	}
	hlit := int(hlitRaw) + 257
	hdist := int(hdistRaw) + 1
	hclen := int(hclenRaw) + 4

	clLengths := make([]int, 19)
	for i := 0; i < hclen; i++ {
		v, err := br.Read(3)
		if err != nil {
			return out, err
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}
	clTable, err := newHuffmanTable(clLengths)
	if err != nil {
		return out, err
	}

	allLengths := make([]int, hlit+hdist)
	for i := 0; i < len(allLengths); {
		sym, err := clTable.decode(br)
		if err != nil {
			return out, err
		}
		switch {
		case sym < 16:
			allLengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return out, formatErrorf("repeat code 16 with no previous length")
			}
			extra, err := br.Read(2)
			if err != nil {
				return out, err
			}
			repeat := int(extra) + 3
			prev := allLengths[i-1]
			for j := 0; j < repeat && i < len(allLengths); j++ {
				allLengths[i] = prev
				i++
			}
		case sym == 17:
			extra, err := br.Read(3)
			if err != nil {
				return out, err
			}
			repeat := int(extra) + 3
			for j := 0; j < repeat && i < len(allLengths); j++ {
				allLengths[i] = 0
				i++
			}
		case sym == 18:
			extra, err := br.Read(7)
			if err != nil {
				return out, err
			}
			repeat := int(extra) + 11
			for j := 0; j < repeat && i < len(allLengths); j++ {
				allLengths[i] = 0
				i++
			}
		default:
			return out, formatErrorf("invalid code-length symbol %d", sym)
		}
	}

	litTable, err := newHuffmanTable(allLengths[:hlit])
	if err != nil {
		return out, err
	}
	distTable, err := newHuffmanTable(allLengths[hlit:])
	if err != nil {
		return out, err
	}
	return decodeHuffmanBlock(br, &litTable, &distTable, out)
}
