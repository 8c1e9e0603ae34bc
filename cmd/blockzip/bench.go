package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/randallfarmer/blockzip"
)

type bench struct {
	path string
}

// Run decodes path end to end, timing the whole pass and reporting the
// BlockFetcher's cache/decode analytics (spec.md §4.12), the Go analogue of
// original_source's benchmarkBitReader harness but measuring the facade
// rather than one isolated primitive.
func (b *bench) Run() error {
	f, err := os.Open(b.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	opts, err := cfg.options()
	if err != nil {
		return err
	}
	r, err := blockzip.Open(f, info.Size(), opts)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	stats := r.Stats()
	mib := float64(n) / (1024 * 1024)
	fmt.Printf("decoded %d bytes (%.2f MiB) in %s (%.2f MiB/s)\n", n, mib, elapsed, mib/elapsed.Seconds())
	fmt.Printf("blocks decoded: %d, decode time: %s\n", stats.BlocksDecoded, time.Duration(stats.DecodeNanos))
	fmt.Printf("cache hits: %d, misses: %d, direct prefetch hits: %d\n", stats.CacheHits, stats.CacheMisses, stats.DirectPrefetchHits)
	return nil
}

func newBenchCmd() *cobra.Command {
	b := &bench{}
	cmd := &cobra.Command{
		Use:   "bench FILE",
		Short: "Decode FILE end to end and report throughput and cache stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			b.path = args[0]
			return b.Run()
		},
	}
	return cmd
}
