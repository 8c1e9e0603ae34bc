package bzip2block

import (
	"testing"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStreamHeaderParsesLevel(t *testing.T) {
	br := bitio.NewReader(bitio.NewMemSource([]byte{0x42, 0x5A, 0x68, '9'}), bitio.MSBFirst, 64)
	hdr, err := ReadStreamHeader(br)
	require.NoError(t, err)
	assert.Equal(t, 9, hdr.BlockSize100k)
}

func TestReadStreamHeaderRejectsBadMagic(t *testing.T) {
	br := bitio.NewReader(bitio.NewMemSource([]byte{0x00, 0x00, 0x00, '1'}), bitio.MSBFirst, 64)
	_, err := ReadStreamHeader(br)
	assert.Error(t, err)
}

func TestReadStreamHeaderRejectsBadLevelByte(t *testing.T) {
	br := bitio.NewReader(bitio.NewMemSource([]byte{0x42, 0x5A, 0x68, '0'}), bitio.MSBFirst, 64)
	_, err := ReadStreamHeader(br)
	assert.Error(t, err)
}

func TestNewDecoderSizesBlockFromLevel(t *testing.T) {
	d := NewDecoder(1)
	assert.Equal(t, 100000, d.blockSize)
}
