// Package main provides ragctl, the command-line tool for chunking,
// indexing and querying portfolio knowledge documents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Portfolio knowledge indexing tool",
		Long: `CLI tool for managing the portfolio knowledge index.

Configuration is read from an optional TOML file (--config or RAG_CONFIG)
and overridden by environment variables:
  STORE_BACKEND       sqlite, qdrant or postgres (default: sqlite)
  SQLITE_PATH         SQLite database file (default: data/knowledge.db)
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  DATABASE_URL        Postgres connection string (postgres backend)
  OPENAI_API_KEY      Embeddings API key (required for index and query)
  EMBEDDING_BASE_URL  OpenAI-compatible endpoint (optional)
  PORTFOLIO_OWNER_ID  Owner whose knowledge is searched
  NATS_URL            NATS server for publish`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to TOML config file (default $RAG_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(
		newChunkCmd(opts),
		newIndexCmd(opts),
		newQueryCmd(opts),
		newDeleteCmd(opts),
		newPublishCmd(opts),
	)
	return cmd
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
