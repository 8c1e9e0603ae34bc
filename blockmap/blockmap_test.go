package blockmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAppendsAndComputesSizes(t *testing.T) {
	m := New()
	require.NoError(t, m.Push(0, 100, 50))
	require.NoError(t, m.Push(100, 80, 30))
	require.NoError(t, m.Push(180, 0, 0)) // EOS block

	assert.Equal(t, 2, m.DataBlockCount())

	info := m.FindDataOffset(20)
	assert.Equal(t, int64(0), info.EncodedOffsetInBits)
	assert.Equal(t, int64(50), info.DecodedSizeInBytes)

	info = m.FindDataOffset(20 + 50)
	assert.Equal(t, int64(100), info.EncodedOffsetInBits)
	assert.Equal(t, int64(30), info.DecodedSizeInBytes)
}

func TestPushRejectsNonIncreasingNewOffset(t *testing.T) {
	m := New()
	require.NoError(t, m.Push(100, 50, 20))
	err := m.Push(50, 50, 20)
	assert.Error(t, err)
}

func TestPushAcceptsConsistentDuplicate(t *testing.T) {
	m := New()
	require.NoError(t, m.Push(0, 100, 50))
	require.NoError(t, m.Push(100, 80, 30))
	require.NoError(t, m.Push(180, 0, 0))

	// re-pushing the first offset with the same implied decoded size is fine
	assert.NoError(t, m.Push(0, 100, 50))
}

func TestPushRejectsInconsistentDuplicate(t *testing.T) {
	m := New()
	require.NoError(t, m.Push(0, 100, 50))
	require.NoError(t, m.Push(100, 80, 30))
	require.NoError(t, m.Push(180, 0, 0))

	err := m.Push(0, 100, 999)
	assert.Error(t, err)
}

func TestPushDuplicateOfLastIsLogicError(t *testing.T) {
	m := New()
	require.NoError(t, m.Push(0, 100, 50))
	err := m.Push(0, 100, 50)
	assert.Error(t, err)
}

func TestPushAfterFinalizeFails(t *testing.T) {
	m := New()
	require.NoError(t, m.Push(0, 100, 50))
	m.Finalize()
	assert.True(t, m.Finalized())
	assert.Error(t, m.Push(100, 50, 10))
}

func TestFindDataOffsetEmptyMap(t *testing.T) {
	m := New()
	info := m.FindDataOffset(0)
	assert.Equal(t, BlockInfo{}, info)
}

func TestSetBlockOffsetsDerivesEOSFromRepeatedDecodedOffset(t *testing.T) {
	m := New()
	err := m.SetBlockOffsets([]OffsetPair{
		{EncodedOffsetInBits: 200, DecodedOffsetInBytes: 50},
		{EncodedOffsetInBits: 0, DecodedOffsetInBytes: 0},
		{EncodedOffsetInBits: 100, DecodedOffsetInBytes: 50}, // EOS: same decoded offset as 200
	})
	require.NoError(t, err)
	assert.True(t, m.Finalized())
	// offset 0 is the only real data block; offset 100 shares its decoded
	// offset with offset 200 (EOS) so it's an EOS block too, and the final
	// entry (200) is always treated as the end-of-stream sentinel.
	assert.Equal(t, 1, m.DataBlockCount())

	back, err := m.Back()
	require.NoError(t, err)
	assert.Equal(t, int64(200), back.EncodedOffsetInBits)
}

func TestSetBlockOffsetsRejectsEmpty(t *testing.T) {
	m := New()
	assert.Error(t, m.SetBlockOffsets(nil))
}

func TestBlockInfoContains(t *testing.T) {
	b := BlockInfo{DecodedOffsetInBytes: 10, DecodedSizeInBytes: 5}
	assert.True(t, b.Contains(10))
	assert.True(t, b.Contains(14))
	assert.False(t, b.Contains(15))
	assert.False(t, b.Contains(9))
}

func TestBackOfEmptyMapFails(t *testing.T) {
	m := New()
	_, err := m.Back()
	assert.Error(t, err)
}
