package bzip2block

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinalizeBlockCRCOfUntouchedCRCIsZero(t *testing.T) {
	assert.Equal(t, uint32(0), finalizeBlockCRC(initialBlockCRC))
}

func TestUpdateBlockCRCIsDeterministicAndOrderSensitive(t *testing.T) {
	crc1 := updateBlockCRC(initialBlockCRC, 'a')
	crc1 = updateBlockCRC(crc1, 'b')

	crc2 := updateBlockCRC(initialBlockCRC, 'b')
	crc2 = updateBlockCRC(crc2, 'a')

	assert.NotEqual(t, crc1, crc2, "CRC must depend on byte order")

	crc1Again := updateBlockCRC(initialBlockCRC, 'a')
	crc1Again = updateBlockCRC(crc1Again, 'b')
	assert.Equal(t, crc1, crc1Again, "CRC must be deterministic for the same input")
}

func TestCombineStreamCRCMatchesSpecFormula(t *testing.T) {
	streamCRC := uint32(0x12345678)
	blockCRC := uint32(0x9ABCDEF0)

	got := combineStreamCRC(streamCRC, blockCRC)
	want := ((streamCRC << 1) | (streamCRC >> 31)) ^ blockCRC
	assert.Equal(t, want, got)
}

func TestCombineStreamCRCOfZeroStreamIsBlockCRC(t *testing.T) {
	blockCRC := uint32(0xDEADBEEF)
	assert.Equal(t, blockCRC, combineStreamCRC(0, blockCRC))
}
