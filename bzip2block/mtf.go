package bzip2block

// moveToFrontDecoder implements the move-to-front transform bzip2 applies
// before RLE2/Huffman coding: each decode promotes the referenced symbol to
// the front of the list, mirroring Go's compress/bzip2 move_to_front.go.
type moveToFrontDecoder struct {
	symbols []byte
}

func newMoveToFrontDecoder(symbols []byte) *moveToFrontDecoder {
	cp := make([]byte, len(symbols))
	copy(cp, symbols)
	return &moveToFrontDecoder{symbols: cp}
}

// newMoveToFrontDecoderWithRange builds a decoder over the first n byte
// values 0..n-1, used to decode the tree-selector list (spec.md §4.13's
// "selectors" are MTF-coded over the huffman-tree index range).
func newMoveToFrontDecoderWithRange(n int) *moveToFrontDecoder {
	symbols := make([]byte, n)
	for i := range symbols {
		symbols[i] = byte(i)
	}
	return &moveToFrontDecoder{symbols: symbols}
}

// First returns the symbol currently at the front of the list.
func (m *moveToFrontDecoder) First() byte {
	return m.symbols[0]
}

// Decode promotes the symbol at rank to the front and returns it.
func (m *moveToFrontDecoder) Decode(rank int) byte {
	v := m.symbols[rank]
	copy(m.symbols[1:rank+1], m.symbols[:rank])
	m.symbols[0] = v
	return v
}
