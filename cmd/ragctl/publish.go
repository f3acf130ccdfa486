package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/bull/portfolio-rag/internal/events"
)

func newPublishCmd(opts *rootOptions) *cobra.Command {
	var documentID, ownerID string
	var deleteDoc bool

	cmd := &cobra.Command{
		Use:   "publish --id <document> --owner <user> [file|-]",
		Short: "Send a reindex request to a running indexer over NATS",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return errors.New("NATS_URL is not set")
			}
			if ownerID == "" {
				ownerID = cfg.Retrieval.OwnerID
			}

			req := events.ReindexRequest{DocumentID: documentID, OwnerID: ownerID, Delete: deleteDoc}
			if !deleteDoc {
				if len(args) == 0 {
					return errors.New("a file is required unless --delete is set")
				}
				if req.Content, err = readInput(cmd, args[0]); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to NATS at %s...\n", cfg.NATS.URL)
			nc, err := nats.Connect(cfg.NATS.URL, nats.Name("ragctl"), nats.Timeout(5*time.Second))
			if err != nil {
				return fmt.Errorf("connect to NATS: %w", err)
			}
			defer nc.Close()

			if err := events.NewPublisher(nc, cfg.NATS.Subject).PublishReindex(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published reindex request for %s\n", documentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (required)")
	cmd.Flags().StringVar(&ownerID, "owner", "", "owning user id (default $PORTFOLIO_OWNER_ID)")
	cmd.Flags().BoolVar(&deleteDoc, "delete", false, "request deletion instead of reindexing")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
