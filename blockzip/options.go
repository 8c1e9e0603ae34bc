package blockzip

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// TrailingDataPolicy controls what happens when bytes remain after the
// last recognized stream's logical end (spec.md §6/§9, the "configurable
// invalid-trailing-data policy" supplemented feature).
type TrailingDataPolicy int

const (
	// Warn logs the trailing bytes and treats the stream as ended here
	// (today's upstream behavior; the default).
	Warn TrailingDataPolicy = iota
	// Ignore silently treats the stream as ended at the last recognized
	// block, the same as Warn minus the log line.
	Ignore
	// Fail returns an error instead of silently truncating.
	Fail
)

// Options configures a Reader. The zero value is valid and picks sensible
// defaults.
type Options struct {
	// Parallelism bounds concurrent block decodes; <=0 defaults to
	// runtime.GOMAXPROCS(0).
	Parallelism int

	// PrefetchCount bounds how far ahead the background block finder
	// scans (bzip2 only); <=0 defaults to blockfinder.DefaultPrefetchCount.
	PrefetchCount int

	// TrailingDataPolicy governs garbage after a stream's logical end.
	TrailingDataPolicy TrailingDataPolicy

	// Logger receives structured decision-point logs (format detection,
	// multi-stream concatenation, trailing-data warnings, index import).
	// A package-level logrus logger is used if nil.
	Logger *logrus.Logger
}

func (o Options) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}
