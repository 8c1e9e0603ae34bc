// Package blkerr defines the error taxonomy shared across blockzip's
// components, per the error handling design in spec.md §7: format errors,
// boundary errors, usage errors, and logic errors. Components wrap one of
// the sentinels below with github.com/pkg/errors so callers can recover the
// class with errors.Cause/errors.Is while still getting a readable message.
package blkerr

import "github.com/pkg/errors"

var (
	// ErrFormat marks bzip2/gzip data that is syntactically invalid: bad
	// magic, CRC mismatch, invalid Huffman table, out-of-range
	// back-reference, non-zero padding. Fatal for the affected chunk.
	ErrFormat = errors.New("blockzip: format error")

	// ErrEOF marks a read that would cross the end of the underlying
	// source. Expected and swallowed in the block finder; fatal if it
	// interrupts a required decode.
	ErrEOF = errors.New("blockzip: end of file")

	// ErrInvalidArgument marks a usage error: a seek past the end of a
	// non-seekable source, a push to a finalized map, setting an empty
	// block-offset list, a negative or out-of-range offset.
	ErrInvalidArgument = errors.New("blockzip: invalid argument")

	// ErrClosed marks use of a reader or pool after Close.
	ErrClosed = errors.New("blockzip: use of closed resource")

	// ErrLogic marks an internal invariant violation: a watermark going
	// backwards, a colliding prefetch-map insert, a chunk too large for
	// the cache. These indicate a bug in blockzip itself.
	ErrLogic = errors.New("blockzip: internal invariant violation")

	// ErrTimeout is returned by operations with a bounded wait (e.g.
	// StreamedResults.Get, BlockFinder.Get) that did not complete in time.
	// Distinct from ErrFailure: the caller may retry.
	ErrTimeout = errors.New("blockzip: timed out")

	// ErrFailure is returned by a StreamedResults.Get (or similar) call
	// for an index that will never become available because the
	// collection was finalized first.
	ErrFailure = errors.New("blockzip: no such result, collection finalized")

	// ErrIndexMismatch marks a persisted index file whose recorded sizes
	// are inconsistent with the stream being opened.
	ErrIndexMismatch = errors.New("blockzip: index file does not match stream")
)

// Wrap attaches msg as context to err while preserving the sentinel for
// errors.Is/errors.Cause. A nil err returns nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
