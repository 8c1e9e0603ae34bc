package fetcher

import (
	"github.com/randallfarmer/blockzip/bitio"
	"github.com/randallfarmer/blockzip/bzip2block"
)

// Bzip2Codec adapts bzip2block.Decoder to the Codec interface. bzip2 has
// no dictionary-window concept, so window is always ignored.
type Bzip2Codec struct {
	BlockSize100k int
}

func (c Bzip2Codec) WindowSize() int { return 0 }

// ReadHeader distinguishes an ordinary block from the end-of-stream
// marker by comparing the 48 bits at encodedOffset against the two magic
// values; it never runs the full header parse for an EOS block, since
// bzip2block.Decoder doesn't model EOS at all (the caller detects it
// before ever invoking the per-block decoder).
func (c Bzip2Codec) ReadHeader(br *bitio.Reader, encodedOffset int64) (HeaderInfo, error) {
	if err := br.Seek(encodedOffset, bitio.SeekStart); err != nil {
		return HeaderInfo{}, err
	}
	magic, err := br.Peek(48)
	if err != nil {
		return HeaderInfo{}, err
	}

	if magic == bzip2block.EOSMagic {
		if err := br.SeekAfterPeek(48); err != nil {
			return HeaderInfo{}, err
		}
		if _, err := br.Read32(); err != nil { // stream CRC
			return HeaderInfo{}, err
		}
		return HeaderInfo{
			EncodedOffset: encodedOffset,
			EncodedSize:   br.Tell() - encodedOffset,
			IsEndOfStream: true,
		}, nil
	}

	if err := br.SeekAfterPeek(48); err != nil {
		return HeaderInfo{}, err
	}
	d := bzip2block.NewDecoder(c.BlockSize100k)
	if err := d.ReadBlockHeader(br); err != nil {
		return HeaderInfo{}, err
	}
	return HeaderInfo{
		EncodedOffset: encodedOffset,
		EncodedSize:   br.Tell() - encodedOffset,
	}, nil
}

// DecodeBlock runs the full readBlockHeader/readBlockData/prepare/
// decodeBlock pipeline to completion, growing the output buffer
// geometrically the way spec.md §4.12 describes (start at
// blockSize100k*100_000+255, double thereafter).
func (c Bzip2Codec) DecodeBlock(br *bitio.Reader, encodedOffset int64, _ []byte) (DecodedBlock, error) {
	if err := br.Seek(encodedOffset, bitio.SeekStart); err != nil {
		return DecodedBlock{}, err
	}
	if _, err := br.Read(48); err != nil { // consume the block magic
		return DecodedBlock{}, err
	}

	d := bzip2block.NewDecoder(c.BlockSize100k)
	if err := d.ReadBlockHeader(br); err != nil {
		return DecodedBlock{}, err
	}
	if err := d.ReadBlockData(br); err != nil {
		return DecodedBlock{}, err
	}
	d.Prepare()

	out := make([]byte, 0, c.BlockSize100k*100000+255)
	for {
		buf := make([]byte, cap(out)-len(out))
		if len(buf) == 0 {
			grown := make([]byte, len(out), len(out)*2+255)
			copy(grown, out)
			out = grown
			buf = make([]byte, cap(out)-len(out))
		}
		n, done, err := d.DecodeBlock(len(buf), buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return DecodedBlock{}, err
		}
		if done {
			break
		}
	}

	return DecodedBlock{
		Data:        out,
		EncodedSize: br.Tell() - encodedOffset,
		CRC:         d.BlockCRC(),
	}, nil
}
