package blockzip

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/randallfarmer/blockzip/blkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func buildZlib(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func repeatedText(n int) []byte {
	phrase := "the quick brown fox jumps over the lazy dog; "
	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(phrase)
	}
	return buf.Bytes()[:n]
}

func readAll(t *testing.T, r *Reader) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	return out.Bytes()
}

func TestReaderGzipRoundTrip(t *testing.T) {
	want := []byte("hello, blockzip")
	raw := buildGzip(t, want)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	assert.Equal(t, want, got)
	assert.True(t, r.Eof())
	assert.Equal(t, GzipFormat, r.Format())

	size, err := r.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), size)
}

func TestReaderZlibRoundTrip(t *testing.T) {
	want := repeatedText(10_000)
	raw := buildZlib(t, want)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	assert.Equal(t, want, got)
	assert.Equal(t, ZlibFormat, r.Format())
}

func TestReaderGzipMultiBlockRoundTrip(t *testing.T) {
	// Bigger than GzipChunkSize (1 MiB) so DecodeBlock must split the
	// member across several Fetcher.Get calls and exercise the WindowMap.
	want := repeatedText(3 * 1024 * 1024)
	raw := buildGzip(t, want)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{Parallelism: 4})
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	assert.Equal(t, want, got)

	offsets, err := r.BlockOffsets()
	require.NoError(t, err)
	assert.Greater(t, len(offsets), 2, "expected more than one data block plus the terminal entry")
}

func TestReaderGzipMultiMemberConcatenation(t *testing.T) {
	first := []byte("first member ")
	second := []byte("second member")
	raw := append(buildGzip(t, first), buildGzip(t, second)...)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	assert.Equal(t, append(append([]byte{}, first...), second...), got)
}

func TestReaderSeek(t *testing.T) {
	want := repeatedText(50_000)
	raw := buildGzip(t, want)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 10)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, want[:n], buf[:n])

	pos, err := r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, want[:n], buf[:n])

	pos, err = r.Seek(40_000, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), pos)
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, want[40_000:40_000+n], buf[:n])

	end, err := r.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), end)
	_, err = r.Read(buf)
	assert.Equal(t, io.EOF, err)
	assert.True(t, r.Eof())
}

func TestReaderTrailingDataPolicyFail(t *testing.T) {
	raw := append(buildGzip(t, []byte("payload")), []byte("garbage")...)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{TrailingDataPolicy: Fail})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Size()
	require.Error(t, err)
	assert.True(t, errors.Is(err, blkerr.ErrFormat))
}

func TestReaderTrailingDataPolicyIgnore(t *testing.T) {
	want := []byte("payload")
	raw := append(buildGzip(t, want), []byte("garbage")...)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{TrailingDataPolicy: Ignore})
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	assert.Equal(t, want, got)
}

func TestReaderTrailingDataPolicyWarnIsDefault(t *testing.T) {
	want := []byte("payload")
	raw := append(buildGzip(t, want), []byte("garbage")...)

	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	assert.Equal(t, want, got)
}

func TestReaderSetBlockOffsetsRoundTrip(t *testing.T) {
	want := repeatedText(2 * 1024 * 1024)
	raw := buildGzip(t, want)

	first, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer first.Close()

	offsets, err := first.BlockOffsets()
	require.NoError(t, err)
	require.Greater(t, len(offsets), 1)

	second, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetBlockOffsets(offsets, first.Windows()))
	got := readAll(t, second)
	assert.Equal(t, want, got)
}

func TestReaderCloseRejectsFurtherReads(t *testing.T) {
	raw := buildGzip(t, []byte("x"))
	r, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close()) // idempotent

	_, err = r.Read(make([]byte, 1))
	assert.Equal(t, blkerr.ErrClosed, errors.Cause(err))
}

func TestReaderTooShortToIdentifyErrors(t *testing.T) {
	raw := []byte{0x00}
	_, err := Open(bytes.NewReader(raw), int64(len(raw)), Options{})
	assert.Error(t, err)
}
