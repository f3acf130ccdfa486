// Package main provides the portfolio knowledge server: MCP tools for
// retrieval and indexing, the background indexing queue and an optional
// NATS consumer for reindex requests.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/bull/portfolio-rag/internal/chunker"
	"github.com/bull/portfolio-rag/internal/config"
	"github.com/bull/portfolio-rag/internal/embedding"
	"github.com/bull/portfolio-rag/internal/events"
	"github.com/bull/portfolio-rag/internal/indexer"
	mcpserver "github.com/bull/portfolio-rag/internal/mcp"
	"github.com/bull/portfolio-rag/internal/retriever"
	"github.com/bull/portfolio-rag/internal/storage"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	envErr := godotenv.Load()

	// Stdout carries the MCP protocol in stdio mode, so logs go to stderr.
	logger := newLogger()
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("server stopped", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	// Initialize storage
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Connected to chunk store", "backend", cfg.Store.Backend)

	// Initialize embedding client
	embeddingClient, err := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	if err != nil {
		return err
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.EmbedderConfig())

	c, err := chunker.New(cfg.ChunkerOptions()...)
	if err != nil {
		return err
	}
	pipeline := indexer.NewPipeline(c, embedder, store, logger.With("component", "pipeline"))
	queue := indexer.NewQueue(pipeline, cfg.QueueConfig(), logger.With("component", "queue"))
	defer queue.Close()

	if cfg.Retrieval.OwnerID == "" {
		logger.Warn("PORTFOLIO_OWNER_ID is not set; searches will fail until it is configured")
	}
	r := retriever.New(embedder, store, cfg.Retrieval.OwnerID, logger.With("component", "retriever"), cfg.RetrieverOptions()...)

	httpOpts := &mcpserver.HTTPHandlerOptions{}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("portfolio-rag-indexer"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return err
		}
		defer nc.Close()

		consumer := events.NewConsumer(nc, cfg.NATS.Subject, queue, logger.With("component", "events"))
		if err := consumer.Start(); err != nil {
			return err
		}
		// Runs before queue.Close; Stop returns once drained messages are queued.
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.Warn("failed to drain NATS subscription", "error", err)
			}
		}()
		httpOpts.Events = consumer
		logger.Info("Consuming reindex requests", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}

	// Create MCP server
	server := mcpserver.NewServer(&mcpserver.Config{
		Searcher:     r,
		Queue:        queue,
		Store:        store,
		ChunkOptions: cfg.ChunkerOptions(),
		Logger:       logger.With("component", "mcp"),
	})

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mcpserver.NewMux(server, store, httpOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server (MCP at /mcp, health at /health)", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients
	// Also start HTTP health endpoint in background for local testing
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health server error", "error", err)
		}
	}()

	logger.Info("Starting portfolio knowledge MCP server (stdio mode)...")
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("LOG_FORMAT") == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
