package deflateblock

import (
	"testing"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuffmanTableDecodesCanonicalCodes(t *testing.T) {
	// Symbol 0 -> code "0", symbol 1 -> code "10", symbol 2 -> code "11",
	// same canonical assignment as bzip2block's equivalent test but decoded
	// with deflate's LSB-first-bytes/MSB-first-code convention.
	table, err := newHuffmanTable([]int{1, 2, 2})
	require.NoError(t, err)

	// Bit string "0","10","11" = 0,1,0,1,1 read in stream order; deflate's
	// bit reader is LSB-first, so packing those bits LSB-first into a byte
	// gives 0b11010.
	br := bitio.NewReader(bitio.NewMemSource([]byte{0b00011010}), bitio.LSBFirst, 64)

	sym, err := table.decode(br)
	require.NoError(t, err)
	assert.Equal(t, 0, sym)

	sym, err = table.decode(br)
	require.NoError(t, err)
	assert.Equal(t, 1, sym)

	sym, err = table.decode(br)
	require.NoError(t, err)
	assert.Equal(t, 2, sym)
}

func TestNewHuffmanTableRejectsOversizedLength(t *testing.T) {
	_, err := newHuffmanTable([]int{maxHuffmanBits + 1})
	assert.Error(t, err)
}

func TestFixedTablesDecodeFixedLiteralZero(t *testing.T) {
	// Symbol 0 has an 8-bit fixed code of 0b00110000 (binary 00110000,
	// per RFC 1951 §3.2.6: codes 0-143 are 00110000 through 10111111 in
	// order), sent MSB-first-within-code, LSB-first-within-byte.
	br := bitio.NewReader(bitio.NewMemSource([]byte{0b00001100}), bitio.LSBFirst, 64)
	sym, err := fixedLiteralTable.decode(br)
	require.NoError(t, err)
	assert.Equal(t, 0, sym)
}
