// Package mcp exposes knowledge search, indexing and prompt assembly as
// MCP tools.
package mcp

import "github.com/bull/portfolio-rag/internal/prompt"

// SearchKnowledgeInput defines the input parameters for the search_knowledge tool.
type SearchKnowledgeInput struct {
	// Query is the natural-language question.
	Query string `json:"query" jsonschema:"The question to find relevant knowledge for"`
	// TopK is the maximum number of chunks to return.
	TopK int `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return (default 5)"`
	// MinSimilarity overrides the similarity threshold when set.
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"Minimum cosine similarity between -1 and 1 (default 0.3)"`
}

// SearchKnowledgeOutput contains the ranked matches and the formatted context.
type SearchKnowledgeOutput struct {
	Results []SearchResult `json:"results"`
	// Context is the "[Source N]" block a chat prompt would receive.
	Context string `json:"context"`
	// Message provides informational context (e.g., "No relevant knowledge found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single chunk match.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ReindexDocumentInput defines the input parameters for the reindex_document tool.
type ReindexDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the knowledge document"`
	OwnerID    string `json:"owner_id" jsonschema:"ID of the user who owns the document"`
	Content    string `json:"content" jsonschema:"Full plain-text content of the document; empty removes its chunks"`
	// Wait blocks until indexing finishes instead of returning once queued.
	Wait bool `json:"wait,omitempty" jsonschema:"Wait for indexing to finish"`
}

// ReindexDocumentOutput reports the queued or finished job.
type ReindexDocumentOutput struct {
	DocumentID string `json:"document_id"`
	// Status is "queued", "indexed" or "deleted".
	Status string `json:"status"`
	Chunks int    `json:"chunks,omitempty"`
	Tokens int    `json:"tokens,omitempty"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the knowledge document"`
}

// DocumentStatusInput defines the input parameters for the get_document_status tool.
type DocumentStatusInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the knowledge document"`
}

// DocumentStatusOutput reports how a document is currently indexed.
type DocumentStatusOutput struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Indexed    bool   `json:"indexed"`
}

// ChunkPreviewInput defines the input parameters for the chunk_preview tool.
type ChunkPreviewInput struct {
	Content      string `json:"content" jsonschema:"Text to split"`
	ChunkSize    int    `json:"chunk_size,omitempty" jsonschema:"Maximum characters per chunk before overlap (default 2000)"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty" jsonschema:"Characters carried over from the previous chunk (default 200)"`
}

// ChunkPreviewOutput lists the chunks the indexer would store.
type ChunkPreviewOutput struct {
	Chunks []ChunkPreview `json:"chunks"`
	Count  int            `json:"count"`
}

// ChunkPreview is one chunk without its embedding.
type ChunkPreview struct {
	Index      int    `json:"index"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

// ComposePromptInput defines the input parameters for the compose_prompt tool.
type ComposePromptInput struct {
	Messages []prompt.Message `json:"messages" jsonschema:"Chat history; the latest user message is used as the search query"`
	Template string           `json:"template,omitempty" jsonschema:"System prompt template with {name} {profession} {experience} {field} placeholders"`
	Profile  *prompt.Profile  `json:"profile,omitempty" jsonschema:"Portfolio owner profile"`
}

// ComposePromptOutput contains the grounded system prompt.
type ComposePromptOutput struct {
	SystemPrompt string `json:"system_prompt"`
	Query        string `json:"query"`
	Context      string `json:"context"`
}
