package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("embedding API key not set")

// Client wraps an OpenAI-compatible client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a client for an OpenAI-compatible embeddings endpoint.
// baseURL may be empty to use the SDK default. SDK-level retries are
// disabled: retry policy belongs to callers.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}
