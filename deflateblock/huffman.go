package deflateblock

import "github.com/randallfarmer/blockzip/bitio"

// maxHuffmanBits is the longest code length RFC 1951 allows for any of
// deflate's three code alphabets.
const maxHuffmanBits = 15

// huffmanTable is a canonical Huffman decode table built the way the
// classic puff.c reference decoder does: per-length counts plus symbols
// sorted by (length, code), decoded by growing the candidate code one bit
// at a time and checking it against the range owned by each length. This
// is simpler than a link-table decoder and is shared by both the
// marker-emitting fallback and the known-window fast path: both need exact
// per-block bit consumption and BFINAL, which only decoding block-by-block
// through this table gives.
type huffmanTable struct {
	counts  [maxHuffmanBits + 1]int
	symbols []int
}

func newHuffmanTable(lengths []int) (huffmanTable, error) {
	var t huffmanTable
	for _, l := range lengths {
		if l < 0 || l > maxHuffmanBits {
			return t, formatErrorf("huffman code length %d out of range", l)
		}
		t.counts[l]++
	}
	t.counts[0] = 0

	var offsets [maxHuffmanBits + 2]int
	for l := 1; l <= maxHuffmanBits; l++ {
		offsets[l+1] = offsets[l] + t.counts[l]
	}

	t.symbols = make([]int, len(lengths))
	next := offsets
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		t.symbols[next[l]] = sym
		next[l]++
	}
	return t, nil
}

// decode reads bits MSB-first-within-the-code (the first bit read becomes
// the top bit of the candidate code) from br, which itself yields bits
// LSB-first from the byte stream per RFC 1951 §3.1.1, and returns the
// decoded symbol.
func (t *huffmanTable) decode(br *bitio.Reader) (int, error) {
	code, first, index := 0, 0, 0
	for length := 1; length <= maxHuffmanBits; length++ {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit {
			code |= 1
		}
		count := t.counts[length]
		if code-first < count {
			return t.symbols[index+code-first], nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, formatErrorf("invalid huffman code")
}
