package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/portfolio-rag/internal/chunker"
	"github.com/bull/portfolio-rag/internal/indexer"
	"github.com/bull/portfolio-rag/internal/prompt"
	"github.com/bull/portfolio-rag/internal/retriever"
	"github.com/bull/portfolio-rag/internal/storage"
)

// Searcher runs owner-scoped similarity searches. *retriever.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...retriever.Option) ([]storage.Match, error)
	Retrieve(ctx context.Context, query string, opts ...retriever.Option) string
}

// JobSubmitter queues reindex jobs. *indexer.Queue implements it.
type JobSubmitter interface {
	Submit(job indexer.Job) *indexer.Ticket
}

// ChunkCounter reports stored chunk counts.
type ChunkCounter interface {
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// makeSearchHandler creates the search_knowledge tool handler.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchKnowledgeInput,
) (*mcp.CallToolResult, SearchKnowledgeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchKnowledgeInput) (
		*mcp.CallToolResult, SearchKnowledgeOutput, error,
	) {
		var opts []retriever.Option
		if input.TopK > 0 {
			opts = append(opts, retriever.WithTopK(min(input.TopK, 20)))
		}
		if input.MinSimilarity != nil {
			opts = append(opts, retriever.WithMinSimilarity(*input.MinSimilarity))
		}

		matches, err := searcher.Search(ctx, input.Query, opts...)
		if err != nil {
			return nil, SearchKnowledgeOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, len(matches))
		for i, m := range matches {
			results[i] = SearchResult{
				DocumentID: m.DocumentID,
				ChunkIndex: m.ChunkIndex,
				Content:    m.Content,
				Similarity: m.Similarity,
			}
		}

		out := SearchKnowledgeOutput{
			Results: results,
			Context: retriever.FormatContext(matches),
		}
		if len(results) == 0 {
			out.Message = "No relevant knowledge found. Try rephrasing the question or lowering min_similarity."
		}
		return nil, out, nil
	}
}

// makeReindexHandler creates the reindex_document tool handler.
func makeReindexHandler(queue JobSubmitter) func(
	context.Context, *mcp.CallToolRequest, ReindexDocumentInput,
) (*mcp.CallToolResult, ReindexDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ReindexDocumentInput) (
		*mcp.CallToolResult, ReindexDocumentOutput, error,
	) {
		ticket := queue.Submit(indexer.Job{
			DocumentID: input.DocumentID,
			OwnerID:    input.OwnerID,
			Content:    input.Content,
		})
		return awaitTicket(ctx, ticket, input.Wait)
	}
}

// makeDeleteHandler creates the delete_document tool handler. Deletion goes
// through the queue so it is ordered with other jobs for the same document.
func makeDeleteHandler(queue JobSubmitter) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, ReindexDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, ReindexDocumentOutput, error,
	) {
		ticket := queue.Submit(indexer.Job{
			DocumentID: input.DocumentID,
			Delete:     true,
		})
		return awaitTicket(ctx, ticket, true)
	}
}

func awaitTicket(ctx context.Context, ticket *indexer.Ticket, wait bool) (*mcp.CallToolResult, ReindexDocumentOutput, error) {
	out := ReindexDocumentOutput{DocumentID: ticket.Job().DocumentID, Status: "queued"}

	if err := ticket.Err(); err != nil {
		return nil, ReindexDocumentOutput{}, fmt.Errorf("reindex rejected: %w", err)
	}
	if !wait {
		return nil, out, nil
	}

	result, err := ticket.Wait(ctx)
	if err != nil {
		return nil, ReindexDocumentOutput{}, fmt.Errorf("reindex failed: %w", err)
	}
	out.Status = "indexed"
	if ticket.Job().Delete {
		out.Status = "deleted"
	}
	out.Chunks = result.Chunks
	out.Tokens = result.Tokens
	return nil, out, nil
}

// makeStatusHandler creates the get_document_status tool handler.
func makeStatusHandler(store ChunkCounter) func(
	context.Context, *mcp.CallToolRequest, DocumentStatusInput,
) (*mcp.CallToolResult, DocumentStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DocumentStatusInput) (
		*mcp.CallToolResult, DocumentStatusOutput, error,
	) {
		count, err := store.CountByDocument(ctx, input.DocumentID)
		if err != nil {
			return nil, DocumentStatusOutput{}, fmt.Errorf("store_error: %w", err)
		}
		return nil, DocumentStatusOutput{
			DocumentID: input.DocumentID,
			Chunks:     count,
			Indexed:    count > 0,
		}, nil
	}
}

// makeChunkPreviewHandler creates the chunk_preview tool handler.
// It splits text exactly as the indexer would, without embedding or storing.
func makeChunkPreviewHandler(defaults []chunker.Option) func(
	context.Context, *mcp.CallToolRequest, ChunkPreviewInput,
) (*mcp.CallToolResult, ChunkPreviewOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ChunkPreviewInput) (
		*mcp.CallToolResult, ChunkPreviewOutput, error,
	) {
		opts := append([]chunker.Option(nil), defaults...)
		if input.ChunkSize > 0 {
			opts = append(opts, chunker.WithChunkSize(input.ChunkSize))
		}
		if input.ChunkOverlap != nil {
			opts = append(opts, chunker.WithOverlap(*input.ChunkOverlap))
		}

		chunks, err := chunker.Split(input.Content, opts...)
		if err != nil {
			return nil, ChunkPreviewOutput{}, err
		}

		previews := make([]ChunkPreview, len(chunks))
		for i, c := range chunks {
			previews[i] = ChunkPreview{Index: c.Index, Content: c.Content, TokenCount: c.TokenCount}
		}
		return nil, ChunkPreviewOutput{Chunks: previews, Count: len(previews)}, nil
	}
}

// makeComposePromptHandler creates the compose_prompt tool handler.
// The latest user message is used as the retrieval query; retrieval
// failures produce a prompt without a knowledge section.
func makeComposePromptHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, ComposePromptInput,
) (*mcp.CallToolResult, ComposePromptOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ComposePromptInput) (
		*mcp.CallToolResult, ComposePromptOutput, error,
	) {
		query := prompt.LatestUserText(input.Messages)

		var ragContext string
		if strings.TrimSpace(query) != "" {
			ragContext = searcher.Retrieve(ctx, query)
		}

		return nil, ComposePromptOutput{
			SystemPrompt: prompt.BuildSystemPrompt(input.Profile, input.Template, ragContext),
			Query:        query,
			Context:      ragContext,
		}, nil
	}
}
