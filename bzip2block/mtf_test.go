package bzip2block

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoveToFrontFirstIsFrontSymbol(t *testing.T) {
	m := newMoveToFrontDecoder([]byte{'a', 'b', 'c'})
	assert.Equal(t, byte('a'), m.First())
}

func TestMoveToFrontDecodePromotesToFront(t *testing.T) {
	m := newMoveToFrontDecoder([]byte{'a', 'b', 'c'})
	v := m.Decode(2) // 'c'
	assert.Equal(t, byte('c'), v)
	assert.Equal(t, byte('c'), m.First())
	assert.Equal(t, byte('a'), m.Decode(1))
}

func TestMoveToFrontDecoderWithRange(t *testing.T) {
	m := newMoveToFrontDecoderWithRange(4)
	assert.Equal(t, byte(0), m.First())
	assert.Equal(t, byte(3), m.Decode(3))
	assert.Equal(t, byte(3), m.First())
}
