package deflateblock

import (
	"bufio"
	"io"
)

// Format identifies the container a deflate bitstream is wrapped in, the
// way original_source/src/pragzip/GzipAnalyzer.hpp sniffs a stream before
// picking a block finder.
type Format int

const (
	UnknownFormat Format = iota
	GzipFormat
	ZlibFormat
	RawDeflateFormat
)

func (f Format) String() string {
	switch f {
	case GzipFormat:
		return "gzip"
	case ZlibFormat:
		return "zlib"
	case RawDeflateFormat:
		return "raw deflate"
	default:
		return "unknown"
	}
}

// ProbeFormat peeks at the first bytes of r (without consuming them, if r is
// already a *bufio.Reader or is wrapped in one here) to classify the stream.
// gzip is identified by its two-byte magic, zlib by its header checksum
// property (CMF*256+FLG divisible by 31 with a deflate compression method),
// and anything else is assumed to be a raw deflate bitstream.
func ProbeFormat(r io.Reader) (Format, *bufio.Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	head, err := br.Peek(2)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return UnknownFormat, br, formatErrorf("stream too short to identify")
		}
		return UnknownFormat, br, err
	}

	if head[0] == gzipID1 && head[1] == gzipID2 {
		return GzipFormat, br, nil
	}

	if isZlibHeader(head[0], head[1]) {
		return ZlibFormat, br, nil
	}

	return RawDeflateFormat, br, nil
}

func isZlibHeader(cmf, flg byte) bool {
	if cmf&0x0f != 8 { // compression method must be "deflate"
		return false
	}
	if (cmf >> 4) > 7 { // window size nibble out of range
		return false
	}
	return (uint16(cmf)*256+uint16(flg))%31 == 0
}
