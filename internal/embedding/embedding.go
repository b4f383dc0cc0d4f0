package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/models"
)

// Embedder maps text to vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch preserves input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Loader builds the underlying model client. It is called until it succeeds
// once; the result is then reused for the lifetime of the Lazy embedder.
type Loader func(ctx context.Context) (embeddings.Embedder, error)

const probeText = "dimension probe"

// Lazy loads its model on first use and verifies the model produces vectors
// of the configured dimension before any caller gets one.
type Lazy struct {
	model     string
	dimension int
	load      Loader

	mu    sync.Mutex
	inner embeddings.Embedder
}

func NewLazy(model string, dimension int, load Loader) *Lazy {
	return &Lazy{model: model, dimension: dimension, load: load}
}

func (l *Lazy) Dimension() int { return l.dimension }

func (l *Lazy) Model() string { return l.model }

func (l *Lazy) get(ctx context.Context) (embeddings.Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner, nil
	}

	log.Info().Str("model", l.model).Msg("Loading embedding model")
	inner, err := l.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrModelUnavailable, l.model, err)
	}
	probe, err := inner.EmbedQuery(ctx, probeText)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrModelUnavailable, l.model, err)
	}
	if len(probe) != l.dimension {
		return nil, fmt.Errorf("%w: model %s produces %d, configured %d", models.ErrEmbeddingDimensionMismatch, l.model, len(probe), l.dimension)
	}
	l.inner = inner
	return inner, nil
}

func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrModelUnavailable, l.model, err)
	}
	if err := CheckDimension(vec, l.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrModelUnavailable, l.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", models.ErrModelUnavailable, l.model, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := CheckDimension(v, l.dimension); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// CheckDimension fails with ErrEmbeddingDimensionMismatch unless len(vec) == dimension.
func CheckDimension(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return fmt.Errorf("%w: got %d, want %d", models.ErrEmbeddingDimensionMismatch, len(vec), dimension)
	}
	return nil
}

// NewLoader returns a Loader for the configured langchaingo backend.
func NewLoader(cfg *config.EmbeddingConfig) Loader {
	return func(ctx context.Context) (embeddings.Embedder, error) {
		log.Debug().Interface("config", map[string]any{
			"provider":   cfg.Provider,
			"base_url":   cfg.BaseURL,
			"model":      cfg.Model,
			"batch_size": cfg.BatchSize,
		}).Msg("Creating embedder")

		var client embeddings.EmbedderClient
		switch cfg.Provider {
		case "ollama":
			llm, err := ollama.New(
				ollama.WithServerURL(cfg.BaseURL),
				ollama.WithModel(cfg.Model),
			)
			if err != nil {
				return nil, err
			}
			client = llm
		case "openai":
			opts := []openai.Option{
				openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
				openai.WithEmbeddingModel(cfg.Model),
			}
			if cfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			}
			llm, err := openai.New(opts...)
			if err != nil {
				return nil, err
			}
			client = llm
		default:
			return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
		}
		embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(cfg.BatchSize))
		if err != nil {
			return nil, err
		}
		return embedder, nil
	}
}
