package bzip2block

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forwardBWT computes the Burrows-Wheeler transform of s the textbook way
// (sort all cyclic rotations, take the last column), as an independent
// reference to check inverseBWT against.
func forwardBWT(s string) (l []byte, origPtr int) {
	n := len(s)
	rotations := make([]string, n)
	for i := range rotations {
		rotations[i] = s[i:] + s[:i]
	}
	sort.Strings(rotations)

	l = make([]byte, n)
	origPtr = -1
	for i, r := range rotations {
		l[i] = r[n-1]
		if r == s {
			origPtr = i
		}
	}
	return l, origPtr
}

func TestInverseBWTReconstructsOriginal(t *testing.T) {
	const s = "banana"
	l, origPtr := forwardBWT(s)
	require.GreaterOrEqual(t, origPtr, 0)

	tt := make([]uint32, len(l))
	var c [256]uint
	for i, b := range l {
		tt[i] = uint32(b)
		c[b]++
	}

	first := inverseBWT(tt, uint(origPtr), c[:])

	out := make([]byte, len(s))
	tPos := first
	for i := range out {
		tPos = tt[tPos]
		out[i] = byte(tPos)
		tPos >>= 8
	}
	assert.Equal(t, s, string(out))
}

func TestInverseBWTReconstructsUniformString(t *testing.T) {
	const s = "aaaa"
	l, origPtr := forwardBWT(s)

	tt := make([]uint32, len(l))
	var c [256]uint
	for i, b := range l {
		tt[i] = uint32(b)
		c[b]++
	}

	first := inverseBWT(tt, uint(origPtr), c[:])
	out := make([]byte, len(s))
	tPos := first
	for i := range out {
		tPos = tt[tPos]
		out[i] = byte(tPos)
		tPos >>= 8
	}
	assert.Equal(t, s, string(out))
}
