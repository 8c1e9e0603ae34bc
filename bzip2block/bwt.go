package bzip2block

// inverseBWT implements the "single array" inverse Burrows-Wheeler
// transform bzip2 uses: tt holds the BWT-transformed symbols in its low 8
// bits, and on return also carries, in its upper 24 bits, the index of
// each position's successor in original order. origPtr is the pointer
// bzip2 stores alongside the block (called `I` in the BWT literature); c
// is the per-symbol count array accumulated while decoding the block's
// Huffman/MTF/RLE2 stream. Returns the index of the first output byte.
func inverseBWT(tt []uint32, origPtr uint, c []uint) uint32 {
	sum := uint(0)
	for i := 0; i < 256; i++ {
		sum += c[i]
		c[i] = sum - c[i]
	}

	for i := range tt {
		b := tt[i] & 0xff
		tt[c[b]] |= uint32(i) << 8
		c[b]++
	}

	return tt[origPtr] >> 8
}
