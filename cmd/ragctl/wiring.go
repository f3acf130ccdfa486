package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/portfolio-rag/internal/chunker"
	"github.com/bull/portfolio-rag/internal/config"
	"github.com/bull/portfolio-rag/internal/embedding"
	"github.com/bull/portfolio-rag/internal/indexer"
	"github.com/bull/portfolio-rag/internal/storage"
)

// load reads configuration and builds the logger.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cmd.ErrOrStderr(), o.logFormat, o.verbose), nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func newEmbedder(cfg *config.Config) (*embedding.Embedder, error) {
	client, err := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return embedding.NewEmbedder(client, cfg.EmbedderConfig()), nil
}

func openStore(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (storage.ChunkStore, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s store...\n", cfg.Store.Backend)
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return store, nil
}

// newPipeline wires the chunker, embedder and store into an indexing pipeline.
func newPipeline(cfg *config.Config, embedder indexer.DocumentEmbedder, store indexer.ChunkWriter, logger *slog.Logger) (*indexer.Pipeline, error) {
	c, err := chunker.New(cfg.ChunkerOptions()...)
	if err != nil {
		return nil, err
	}
	return indexer.NewPipeline(c, embedder, store, logger), nil
}

// readInput returns the content of path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// preview shortens text to one line for terminal output.
func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
