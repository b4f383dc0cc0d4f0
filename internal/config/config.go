package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	RAG         RAGConfig         `yaml:"rag"`
	LLM         LLMConfig         `yaml:"llm"`
	Redis       RedisConfig       `yaml:"redis"`
	Queue       QueueConfig       `yaml:"queue"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

// VectorStoreConfig selects the chunk vector backend: memory, chromem or pgvector.
type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Dimension  int    `yaml:"dimension"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

// EmbeddingConfig configures the embedding model. Provider is ollama or openai.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	TopK           int `yaml:"top_k"`
	MaxTopK        int `yaml:"max_top_k"`
	MaxQueryLength int `yaml:"max_query_length"`
	SnippetLength  int `yaml:"snippet_length"`
}

type LLMConfig struct {
	DefaultProvider  string        `yaml:"default_provider"`
	DefaultModel     string        `yaml:"default_model"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float64       `yaml:"temperature"`
	// RatePerSecond <= 0 disables the outbound limiter.
	RatePerSecond float64       `yaml:"rate_per_second"`
	RateBurst     int           `yaml:"rate_burst"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	MinRequests      uint32        `yaml:"min_requests"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type QueueConfig struct {
	Name        string `yaml:"name"`
	Concurrency int    `yaml:"concurrency"`
	MaxRetry    int    `yaml:"max_retry"`
}

// TelemetryConfig enables span export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

const (
	defaultChunkSize      = 512
	defaultChunkOverlap   = 50
	defaultTopK           = 5
	defaultMaxTopK        = 20
	defaultMaxQueryLength = 1000
	defaultSnippetLength  = 200
	defaultDimension      = 384
	defaultProvider       = "openai"
	defaultModel          = "gpt-3.5-turbo"
	defaultLLMTimeout     = 60 * time.Second
	defaultTemperature    = 0.7
)

// LoadConfig reads the YAML file at path, loads .env when present and applies
// environment overrides and defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// newConfig presets the fields for which zero is a valid setting. YAML only
// overwrites keys that are present, so an explicit 0 survives.
func newConfig() *Config {
	return &Config{
		RAG:       RAGConfig{ChunkOverlap: defaultChunkOverlap},
		LLM:       LLMConfig{Temperature: defaultTemperature},
		Telemetry: TelemetryConfig{SampleRatio: 1},
	}
}

func (c *Config) Validate() error {
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.Embedding.Dimension != c.VectorStore.Dimension {
		return fmt.Errorf("embedding.dimension (%d) does not match vector_store.dimension (%d)", c.Embedding.Dimension, c.VectorStore.Dimension)
	}
	switch c.VectorStore.Type {
	case "memory", "chromem":
	case "pgvector":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the pgvector store")
		}
	default:
		return fmt.Errorf("unknown vector_store.type %q", c.VectorStore.Type)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.VectorStore.Type, "VECTOR_STORE")
	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.Key, "EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimension, "EMBEDDING_DIMENSION")
	setString(&cfg.LLM.DefaultProvider, "DEFAULT_LLM_PROVIDER")
	setString(&cfg.LLM.DefaultModel, "DEFAULT_MODEL")
	setString(&cfg.LLM.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = defaultDimension
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.VectorStore.Dimension == 0 {
		cfg.VectorStore.Dimension = cfg.Embedding.Dimension
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./chromemdb"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "document_chunks"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MaxTopK == 0 {
		cfg.RAG.MaxTopK = defaultMaxTopK
	}
	if cfg.RAG.MaxQueryLength == 0 {
		cfg.RAG.MaxQueryLength = defaultMaxQueryLength
	}
	if cfg.RAG.SnippetLength == 0 {
		cfg.RAG.SnippetLength = defaultSnippetLength
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = defaultProvider
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = defaultModel
	}
	if cfg.LLM.OpenAIBaseURL == "" {
		cfg.LLM.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.AnthropicBaseURL == "" {
		cfg.LLM.AnthropicBaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = defaultLLMTimeout
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.RateBurst == 0 {
		cfg.LLM.RateBurst = 1
	}
	b := &cfg.LLM.Breaker
	if b.MaxRequests == 0 {
		b.MaxRequests = 1
	}
	if b.Interval == 0 {
		b.Interval = 60 * time.Second
	}
	if b.Timeout == 0 {
		b.Timeout = 30 * time.Second
	}
	if b.MinRequests == 0 {
		b.MinRequests = 5
	}
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 0.6
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = 24 * time.Hour
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "ingest"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.MaxRetry == 0 {
		cfg.Queue.MaxRetry = 3
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
