package bzip2block

import "github.com/randallfarmer/blockzip/bitio"

// huffmanNode is one node of a canonical Huffman decode trie. A child index
// of -1 means that branch is a leaf, in which case the corresponding
// leafValue holds the decoded symbol.
type huffmanNode struct {
	left, right         int32
	leftLeaf, rightLeaf int32
}

// huffmanTree decodes symbols bit by bit against a trie built from a
// canonical Huffman code length table, the structure bzip2 uses for its
// per-block entropy coding (lineage: Go's compress/bzip2 huffman.go, built
// the same way the standard DEFLATE/bzip2 canonical-code algorithm does).
type huffmanTree struct {
	nodes []huffmanNode
}

const maxHuffmanBits = 20

// newHuffmanTree builds a decode trie from per-symbol code lengths
// (1..maxHuffmanBits; bzip2 never uses a zero length).
func newHuffmanTree(lengths []uint8) (huffmanTree, error) {
	var maxLength uint8
	for _, l := range lengths {
		if l == 0 || l > maxHuffmanBits {
			return huffmanTree{}, formatErrorf("invalid huffman code length %d", l)
		}
		if l > maxLength {
			maxLength = l
		}
	}

	blCount := make([]int, maxLength+1)
	for _, l := range lengths {
		blCount[l]++
	}
	nextCode := make([]uint32, maxLength+1)
	code := uint32(0)
	for bits := uint8(1); bits <= maxLength; bits++ {
		code = (code + uint32(blCount[bits-1])) << 1
		nextCode[bits] = code
	}

	t := huffmanTree{nodes: []huffmanNode{{left: -1, right: -1}}}
	for sym, l := range lengths {
		c := nextCode[l]
		nextCode[l]++
		t.insert(c, l, int32(sym))
	}
	return t, nil
}

func (t *huffmanTree) insert(code uint32, length uint8, symbol int32) {
	node := int32(0)
	for bit := int(length) - 1; bit >= 0; bit-- {
		goRight := code&(1<<uint(bit)) != 0
		last := bit == 0
		if !goRight {
			if last {
				t.nodes[node].left = -1
				t.nodes[node].leftLeaf = symbol
				return
			}
			if !t.hasInternalChild(node, false) {
				t.nodes = append(t.nodes, huffmanNode{left: -1, right: -1})
				t.nodes[node].left = int32(len(t.nodes))
			}
			node = t.nodes[node].left - 1
		} else {
			if last {
				t.nodes[node].right = -1
				t.nodes[node].rightLeaf = symbol
				return
			}
			if !t.hasInternalChild(node, true) {
				t.nodes = append(t.nodes, huffmanNode{left: -1, right: -1})
				t.nodes[node].right = int32(len(t.nodes))
			}
			node = t.nodes[node].right - 1
		}
	}
}

// hasInternalChild reports whether node already has an internal (non-leaf)
// child on the given side. insert only ever visits a (node, side) pair
// once per root-to-leaf path per symbol, but a shared prefix between two
// symbols means the child may already have been allocated by an earlier
// symbol; a positive index (> 0) marks "already an internal node".
func (t *huffmanTree) hasInternalChild(node int32, right bool) bool {
	if right {
		return t.nodes[node].right > 0
	}
	return t.nodes[node].left > 0
}

// Decode reads bits from br until a leaf is reached and returns its symbol.
func (t *huffmanTree) Decode(br *bitio.Reader) (int32, error) {
	node := int32(0)
	for {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		n := &t.nodes[node]
		if !bit {
			if n.left <= 0 {
				return n.leftLeaf, nil
			}
			node = n.left - 1
		} else {
			if n.right <= 0 {
				return n.rightLeaf, nil
			}
			node = n.right - 1
		}
	}
}
