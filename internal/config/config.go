// Package config loads service settings from defaults, an optional TOML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bull/portfolio-rag/internal/chunker"
	"github.com/bull/portfolio-rag/internal/embedding"
	"github.com/bull/portfolio-rag/internal/indexer"
	"github.com/bull/portfolio-rag/internal/retriever"
	"github.com/bull/portfolio-rag/internal/storage"
)

// EnvConfigPath names the variable holding the TOML file path.
const EnvConfigPath = "RAG_CONFIG"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting of the service.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Indexing  IndexingConfig  `toml:"indexing"`
	NATS      NATSConfig      `toml:"nats"`
	Server    ServerConfig    `toml:"server"`
}

type StoreConfig struct {
	Backend          string `toml:"backend"`
	SQLitePath       string `toml:"sqlite_path"`
	QdrantHost       string `toml:"qdrant_host"`
	QdrantPort       int    `toml:"qdrant_port"`
	QdrantCollection string `toml:"qdrant_collection"`
	DatabaseURL      string `toml:"database_url"`
}

type EmbeddingConfig struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	TaskTypeField     string  `toml:"task_type_field"`
	DocumentPrefix    string  `toml:"document_prefix"`
	QueryPrefix       string  `toml:"query_prefix"`
	BatchSize         int     `toml:"batch_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type ChunkingConfig struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

type RetrievalConfig struct {
	OwnerID       string  `toml:"owner_id"`
	TopK          int     `toml:"top_k"`
	MinSimilarity float64 `toml:"min_similarity"`
}

type IndexingConfig struct {
	Workers           int `toml:"workers"`
	MaxAttempts       int `toml:"max_attempts"`
	JobTimeoutSeconds int `toml:"job_timeout_seconds"`
}

type NATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type ServerConfig struct {
	Port       string `toml:"port"`
	ServerMode bool   `toml:"server_mode"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:          storage.BackendSQLite,
			SQLitePath:       "data/knowledge.db",
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: storage.DefaultCollectionName,
		},
		Embedding: EmbeddingConfig{
			Model:         embedding.DefaultModel,
			TaskTypeField: embedding.DefaultTaskTypeField,
			BatchSize:     embedding.DefaultBatchSize,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    chunker.DefaultChunkSize,
			ChunkOverlap: chunker.DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:          retriever.DefaultTopK,
			MinSimilarity: retriever.DefaultMinSimilarity,
		},
		Indexing: IndexingConfig{
			Workers:           4,
			MaxAttempts:       1,
			JobTimeoutSeconds: 120,
		},
		NATS: NATSConfig{
			Subject: "knowledge.reindex",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// RAG_CONFIG is consulted; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables that are set.
func (c *Config) applyEnv() {
	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = getEnv("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.QdrantHost = getEnv("QDRANT_HOST", c.Store.QdrantHost)
	c.Store.QdrantPort = getEnvInt("QDRANT_PORT", c.Store.QdrantPort)
	c.Store.QdrantCollection = getEnv("QDRANT_COLLECTION", c.Store.QdrantCollection)
	c.Store.DatabaseURL = getEnv("DATABASE_URL", c.Store.DatabaseURL)

	c.Embedding.APIKey = getEnv("OPENAI_API_KEY", c.Embedding.APIKey)
	c.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.TaskTypeField = getEnv("EMBEDDING_TASK_TYPE_FIELD", c.Embedding.TaskTypeField)
	c.Embedding.RequestsPerSecond = getEnvFloat("EMBEDDING_RPS", c.Embedding.RequestsPerSecond)

	c.Chunking.ChunkSize = getEnvInt("CHUNK_SIZE", c.Chunking.ChunkSize)
	c.Chunking.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", c.Chunking.ChunkOverlap)

	c.Retrieval.OwnerID = getEnv("PORTFOLIO_OWNER_ID", c.Retrieval.OwnerID)
	c.Retrieval.TopK = getEnvInt("RETRIEVE_TOP_K", c.Retrieval.TopK)
	c.Retrieval.MinSimilarity = getEnvFloat("RETRIEVE_MIN_SIMILARITY", c.Retrieval.MinSimilarity)

	c.Indexing.Workers = getEnvInt("INDEX_WORKERS", c.Indexing.Workers)
	c.Indexing.MaxAttempts = getEnvInt("INDEX_MAX_ATTEMPTS", c.Indexing.MaxAttempts)
	c.Indexing.JobTimeoutSeconds = getEnvInt("INDEX_JOB_TIMEOUT_SECONDS", c.Indexing.JobTimeoutSeconds)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ServerMode = getEnv("SERVER_MODE", strconv.FormatBool(c.Server.ServerMode)) == "true"
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case storage.BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required", ErrInvalidConfig)
		}
	case storage.BackendQdrant:
		if c.Store.QdrantHost == "" || c.Store.QdrantPort <= 0 {
			return fmt.Errorf("%w: qdrant host and port are required", ErrInvalidConfig)
		}
	case storage.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if _, err := chunker.New(c.ChunkerOptions()...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be within [-1, 1]", ErrInvalidConfig)
	}
	if c.Indexing.Workers <= 0 || c.Indexing.MaxAttempts <= 0 {
		return fmt.Errorf("%w: indexing workers and max_attempts must be positive", ErrInvalidConfig)
	}
	return nil
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:          c.Store.Backend,
		SQLitePath:       c.Store.SQLitePath,
		QdrantHost:       c.Store.QdrantHost,
		QdrantPort:       c.Store.QdrantPort,
		QdrantCollection: c.Store.QdrantCollection,
		DatabaseURL:      c.Store.DatabaseURL,
	}
}

// ChunkerOptions returns the chunker options for the configured sizes.
func (c *Config) ChunkerOptions() []chunker.Option {
	return []chunker.Option{
		chunker.WithChunkSize(c.Chunking.ChunkSize),
		chunker.WithOverlap(c.Chunking.ChunkOverlap),
	}
}

// EmbedderConfig returns the embedding gateway configuration.
func (c *Config) EmbedderConfig() embedding.Config {
	return embedding.Config{
		Model:             c.Embedding.Model,
		BatchSize:         c.Embedding.BatchSize,
		TaskTypeField:     c.Embedding.TaskTypeField,
		DocumentPrefix:    c.Embedding.DocumentPrefix,
		QueryPrefix:       c.Embedding.QueryPrefix,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
	}
}

// QueueConfig returns the indexing queue configuration.
func (c *Config) QueueConfig() indexer.QueueConfig {
	return indexer.QueueConfig{
		Workers:     c.Indexing.Workers,
		MaxAttempts: c.Indexing.MaxAttempts,
		JobTimeout:  time.Duration(c.Indexing.JobTimeoutSeconds) * time.Second,
	}
}

// RetrieverOptions returns the default search options.
func (c *Config) RetrieverOptions() []retriever.Option {
	return []retriever.Option{
		retriever.WithTopK(c.Retrieval.TopK),
		retriever.WithMinSimilarity(c.Retrieval.MinSimilarity),
	}
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
