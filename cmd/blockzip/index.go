package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randallfarmer/blockzip"
	"github.com/randallfarmer/blockzip/blockmap"
)

type indexCmd struct {
	path   string
	write  string
	format string
}

// offsetRow is the JSON/text rendering of one blockmap.OffsetPair, named
// for readability rather than reusing the internal field names.
type offsetRow struct {
	BlockIndex    int   `json:"block"`
	EncodedBits   int64 `json:"encoded_bit_offset"`
	DecodedOffset int64 `json:"decoded_byte_offset"`
}

func (c *indexCmd) Run() error {
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

	offsets, err := r.BlockOffsets()
	if err != nil {
		return err
	}
	uncompressedSize, err := r.Size()
	if err != nil {
		return err
	}

	if c.write != "" {
		return c.writeIndex(offsets, r, info.Size(), uncompressedSize)
	}
	return c.printOffsets(offsets)
}

func (c *indexCmd) printOffsets(offsets []blockmap.OffsetPair) error {
	rows := make([]offsetRow, len(offsets))
	for i, o := range offsets {
		rows[i] = offsetRow{BlockIndex: i, EncodedBits: o.EncodedOffsetInBits, DecodedOffset: o.DecodedOffsetInBytes}
	}

	switch c.format {
	case "", "text":
		for _, row := range rows {
			fmt.Printf("%6d  bit=%-12d byte=%d\n", row.BlockIndex, row.EncodedBits, row.DecodedOffset)
		}
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		return fmt.Errorf("blockzip: unknown --format %q (want text or json)", c.format)
	}
}

func (c *indexCmd) writeIndex(offsets []blockmap.OffsetPair, r *blockzip.Reader, compressedSize, uncompressedSize int64) error {
	idx := blockmap.ExportIndex(offsets, r.Windows(), compressedSize, uncompressedSize)

	out, err := os.Create(c.write)
	if err != nil {
		return err
	}
	defer out.Close()
	return blockmap.WriteIndex(out, idx)
}

func newIndexCmd() *cobra.Command {
	c := &indexCmd{}
	cmd := &cobra.Command{
		Use:   "index FILE",
		Short: "Print or persist FILE's discovered block offsets",
		Long:  "index scans FILE for block boundaries (forcing a full decode pass) and either prints them or, with --write, persists them as a GZIDX file for a later blockzip.Reader to import via SetBlockOffsets.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c.path = args[0]
			return c.Run()
		},
	}
	cmd.Flags().StringVar(&c.write, "write", "", "write a GZIDX index file to this path instead of printing")
	cmd.Flags().StringVar(&c.format, "format", "text", "print format: text or json")
	return cmd
}
