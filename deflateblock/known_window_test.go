package deflateblock

import (
	"bytes"
	"compress/flate"
	"testing"

	"github.com/randallfarmer/blockzip/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownWindowMatchesDictionaryCompressedStream(t *testing.T) {
	dict := []byte("the quick brown fox jumps over the lazy dog. ")
	const payload = "the quick brown fox is quick."

	var buf bytes.Buffer
	w, err := flate.NewWriterDict(&buf, flate.BestCompression, dict)
	require.NoError(t, err)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	window := make([]byte, WindowSize)
	copy(window[WindowSize-len(dict):], dict)

	br := bitio.NewReader(bitio.NewMemSource(buf.Bytes()), bitio.LSBFirst, 64)
	out, final, err := DecodeKnownWindow(br, window, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, string(out))
	assert.True(t, final, "a single flate.Writer stream's only block is BFINAL")
}
