package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bull/portfolio-rag/internal/chunker"
)

func newChunkCmd(opts *rootOptions) *cobra.Command {
	var size, overlap int

	cmd := &cobra.Command{
		Use:   "chunk <file|->",
		Short: "Split a document into chunks without embedding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			chunkOpts := cfg.ChunkerOptions()
			if cmd.Flags().Changed("size") {
				chunkOpts = append(chunkOpts, chunker.WithChunkSize(size))
			}
			if cmd.Flags().Changed("overlap") {
				chunkOpts = append(chunkOpts, chunker.WithOverlap(overlap))
			}

			chunks, err := chunker.Split(content, chunkOpts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range chunks {
				fmt.Fprintf(out, "--- chunk %d (%d chars, ~%d tokens)\n", c.Index, len([]rune(c.Content)), c.TokenCount)
				fmt.Fprintln(out, c.Content)
			}
			fmt.Fprintf(out, "%d chunks\n", len(chunks))
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", chunker.DefaultChunkSize, "maximum characters per chunk before overlap")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultChunkOverlap, "characters carried over from the previous chunk")
	return cmd
}
