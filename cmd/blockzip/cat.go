package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randallfarmer/blockzip"
)

type cat struct {
	path  string
	start int64
	size  int64
}

func (c *cat) Run() error {
	f, err := os.Open(c.path)
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

	if c.start > 0 {
		if _, err := r.Seek(c.start, io.SeekStart); err != nil {
			return err
		}
	}

	out := io.Writer(os.Stdout)
	if c.size > 0 {
		out = &limitedWriter{w: os.Stdout, remaining: c.size}
	}
	_, err = io.Copy(out, r)
	return err
}

// limitedWriter stops accepting bytes once remaining reaches zero, so
// --size can bound a cat without the caller needing to know exactly when
// to stop reading from the underlying blockzip.Reader.
type limitedWriter struct {
	w         io.Writer
	remaining int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.remaining <= 0 {
		return len(p), nil
	}
	q := p
	if int64(len(q)) > l.remaining {
		q = q[:l.remaining]
	}
	n, err := l.w.Write(q)
	l.remaining -= int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}

func newCatCmd() *cobra.Command {
	c := &cat{}
	cmd := &cobra.Command{
		Use:   "cat FILE",
		Short: "Decompress FILE to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c.path = args[0]
			return c.Run()
		},
	}
	cmd.Flags().Int64Var(&c.start, "start", 0, "decoded byte offset to start from (uses Seek, not a linear scan)")
	cmd.Flags().Int64Var(&c.size, "size", 0, "number of decoded bytes to write; 0 means to the end")
	return cmd
}
