package bitio

import (
	"io"

	"github.com/randallfarmer/blockzip/blkerr"
)

// MemSource is an in-memory Source/Seeker/Sizer/Cloner over a byte slice,
// for tests and for small in-memory inputs that don't warrant a
// sharedreader.Reader.
type MemSource struct {
	data []byte
	pos  int64
}

// NewMemSource wraps b (not copied) as a Source.
func NewMemSource(b []byte) *MemSource {
	return &MemSource{data: b}
}

func (m *MemSource) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemSource) SeekBytes(pos int64) error {
	if pos < 0 {
		return blkerr.Wrap(blkerr.ErrInvalidArgument, "bitio: negative seek")
	}
	m.pos = pos
	return nil
}

func (m *MemSource) SizeBytes() (int64, error) {
	return int64(len(m.data)), nil
}

func (m *MemSource) CloneSource() (Source, error) {
	return &MemSource{data: m.data, pos: m.pos}, nil
}
