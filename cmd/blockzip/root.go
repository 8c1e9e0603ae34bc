// Package main implements the blockzip CLI: cat, index, and bench
// subcommands over the blockzip parallel reader facade.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/randallfarmer/blockzip"
)

// Config holds the runtime tuning knobs shared by every subcommand, bound
// to persistent flags on the root command the way spec.md §5 describes
// parallelism as a top-level configuration concern rather than a
// per-subcommand one.
type Config struct {
	Parallelism   int
	PrefetchCount int
	TrailingData  string
	LogLevel      string
}

var cfg Config

func (c Config) trailingDataPolicy() (blockzip.TrailingDataPolicy, error) {
	switch c.TrailingData {
	case "", "warn":
		return blockzip.Warn, nil
	case "ignore":
		return blockzip.Ignore, nil
	case "fail":
		return blockzip.Fail, nil
	default:
		return 0, fmt.Errorf("blockzip: unknown --trailing-data %q (want warn, ignore, or fail)", c.TrailingData)
	}
}

func (c Config) logger() (*logrus.Logger, error) {
	log := logrus.New()
	if c.LogLevel == "" {
		log.SetLevel(logrus.WarnLevel)
		return log, nil
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("blockzip: %w", err)
	}
	log.SetLevel(level)
	return log, nil
}

// options builds a blockzip.Options from the bound flags, shared by every
// subcommand that opens a Reader.
func (c Config) options() (blockzip.Options, error) {
	policy, err := c.trailingDataPolicy()
	if err != nil {
		return blockzip.Options{}, err
	}
	log, err := c.logger()
	if err != nil {
		return blockzip.Options{}, err
	}
	return blockzip.Options{
		Parallelism:        c.Parallelism,
		PrefetchCount:      c.PrefetchCount,
		TrailingDataPolicy: policy,
		Logger:             log,
	}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "blockzip",
		Short:         "Parallel, seekable bzip2/gzip decompression",
		Long:          "blockzip decompresses bzip2 and gzip/zlib/raw-deflate streams in parallel, using a background block scan so reads and seeks don't have to replay the whole file from the start.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().IntVar(&cfg.Parallelism, "parallelism", runtime.GOMAXPROCS(0), "concurrent block decodes (default: GOMAXPROCS)")
	root.PersistentFlags().IntVar(&cfg.PrefetchCount, "prefetch", 0, "background block-finder lookahead, bzip2 only (default: package default)")
	root.PersistentFlags().StringVar(&cfg.TrailingData, "trailing-data", "warn", "policy for data after the recognized stream's end: warn, ignore, or fail")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "warn", "logrus level: debug, info, warn, error")

	root.AddCommand(newCatCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newBenchCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "blockzip:", err)
		os.Exit(1)
	}
}
