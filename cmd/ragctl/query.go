package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/portfolio-rag/internal/retriever"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		ownerID       string
		topK          int
		minSimilarity float64
		showMatches   bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve the knowledge context for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if ownerID == "" {
				ownerID = cfg.Retrieval.OwnerID
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}

			searchOpts := cfg.RetrieverOptions()
			if cmd.Flags().Changed("top-k") {
				searchOpts = append(searchOpts, retriever.WithTopK(topK))
			}
			if cmd.Flags().Changed("min-similarity") {
				searchOpts = append(searchOpts, retriever.WithMinSimilarity(minSimilarity))
			}
			r := retriever.New(embedder, store, ownerID, logger, searchOpts...)

			matches, err := r.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No relevant knowledge found.")
				return nil
			}
			if showMatches {
				for i, m := range matches {
					fmt.Fprintf(out, "%d. [%.3f] %s#%d %s\n", i+1, m.Similarity, m.DocumentID, m.ChunkIndex, preview(m.Content, 80))
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, retriever.FormatContext(matches))
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owner whose knowledge is searched (default $PORTFOLIO_OWNER_ID)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", retriever.DefaultTopK, "maximum number of chunks")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", retriever.DefaultMinSimilarity, "minimum cosine similarity")
	cmd.Flags().BoolVar(&showMatches, "matches", false, "list matches with their similarity before the context")
	return cmd
}
