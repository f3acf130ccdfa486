package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var documentID, ownerID string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "index --id <document> --owner <user> <file|->",
		Short: "Chunk, embed and store a document, replacing its previous chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if ownerID == "" {
				ownerID = cfg.Retrieval.OwnerID
			}
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, err := openStore(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			pipeline, err := newPipeline(cfg, embedder, store, logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Indexing document %s...\n", documentID)
			result, err := pipeline.Reindex(ctx, documentID, ownerID, content)
			if err != nil {
				return fmt.Errorf("index %s: %w", documentID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s: %d chunks, ~%d tokens in %s\n",
				result.DocumentID, result.Chunks, result.Tokens, result.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (required)")
	cmd.Flags().StringVar(&ownerID, "owner", "", "owning user id (default $PORTFOLIO_OWNER_ID)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "delete --id <document>",
		Short: "Remove every chunk of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteByDocument(ctx, documentID); err != nil {
				return fmt.Errorf("delete %s: %w", documentID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted chunks of %s\n", documentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
