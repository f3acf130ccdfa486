package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/portfolio-rag/internal/chunker"
)

// Store is what the tools need from the chunk store.
type Store interface {
	ChunkCounter
	HealthChecker
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	logger *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Searcher Searcher
	Queue    JobSubmitter
	Store    Store
	// ChunkOptions are the chunker settings the indexer uses; chunk_preview
	// starts from them.
	ChunkOptions []chunker.Option
	Logger       *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "portfolio-knowledge-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the portfolio owner's knowledge base semantically. Returns ranked chunks and the formatted context block given to the chat assistant.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reindex_document",
		Description: "Rebuild the searchable chunks of a knowledge document after it was created or edited. Set wait to block until indexing finishes.",
	}, makeReindexHandler(cfg.Queue))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Remove every searchable chunk of a knowledge document.",
	}, makeDeleteHandler(cfg.Queue))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document_status",
		Description: "Report how many chunks are stored for a knowledge document.",
	}, makeStatusHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chunk_preview",
		Description: "Split text the way the indexer would, without embedding or storing it.",
	}, makeChunkPreviewHandler(cfg.ChunkOptions))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compose_prompt",
		Description: "Build the chat assistant's system prompt for a conversation, grounded with knowledge relevant to the latest user message.",
	}, makeComposePromptHandler(cfg.Searcher))

	return &Server{
		server: server,
		logger: logger,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
