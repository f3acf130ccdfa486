// Package embedding turns chunk and query text into fixed-size vectors using
// an OpenAI-compatible embeddings API.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the embedding model requested when none is configured.
	DefaultModel = "gemini-embedding-001"

	// Dimension is the vector size requested from the model.
	// This matches storage.VectorDimension (1536).
	Dimension = 1536

	// DefaultBatchSize caps the number of texts per request.
	DefaultBatchSize = 500

	// DefaultTaskTypeField is the request body field carrying the intent.
	DefaultTaskTypeField = "task_type"
)

// ErrDimensionMismatch is returned when the model answers with vectors of
// an unexpected size or count.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Intent distinguishes how a text will be used. Retrieval models embed
// documents and queries into an asymmetric space, so the two must never be
// requested the same way.
type Intent int

const (
	IntentDocument Intent = iota
	IntentQuery
)

// TaskType returns the provider task type for the intent.
func (i Intent) TaskType() string {
	if i == IntentQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}

// Config tunes the Embedder. Zero values select defaults.
type Config struct {
	Model     string
	Dimension int
	BatchSize int

	// TaskTypeField names the JSON field that carries Intent.TaskType().
	TaskTypeField string

	// DocumentPrefix and QueryPrefix are prepended to inputs, for models
	// that encode intent in the text itself.
	DocumentPrefix string
	QueryPrefix    string

	// RequestsPerSecond throttles API calls when positive.
	RequestsPerSecond float64
}

// Embedder generates document and query embeddings.
// It performs no retries; errors reach the caller as returned by the API.
type Embedder struct {
	client  *Client
	cfg     Config
	limiter *rate.Limiter
}

// NewEmbedder creates an Embedder with the given client and configuration.
func NewEmbedder(client *Client, cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = Dimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	// Intents must differ on the wire.
	if cfg.TaskTypeField == "" && cfg.DocumentPrefix == cfg.QueryPrefix {
		cfg.TaskTypeField = DefaultTaskTypeField
	}

	e := &Embedder{client: client, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e
}

// EmbedBatch embeds document chunks. An empty input returns an empty result
// without calling the API.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.cfg.BatchSize {
		end := min(i+e.cfg.BatchSize, len(texts))

		vectors, err := e.embed(ctx, texts[i:end], IntentDocument)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, IntentQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embed issues one embeddings request for texts.
func (e *Embedder) embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	prefix := e.cfg.DocumentPrefix
	if intent == IntentQuery {
		prefix = e.cfg.QueryPrefix
	}
	inputs := texts
	if prefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = prefix + t
		}
	}

	var reqOpts []option.RequestOption
	if e.cfg.TaskTypeField != "" {
		reqOpts = append(reqOpts, option.WithJSONSet(e.cfg.TaskTypeField, intent.TaskType()))
	}

	resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
		Model:      openai.EmbeddingModel(e.cfg.Model),
		Dimensions: openai.Int(int64(e.cfg.Dimension)),
	}, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", intent, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs",
			ErrDimensionMismatch, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != e.cfg.Dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(d.Embedding), e.cfg.Dimension)
		}
		vectors[i] = toFloat32(d.Embedding)
	}
	return vectors, nil
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but storage uses float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
