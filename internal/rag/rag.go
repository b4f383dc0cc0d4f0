package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/prompt"
	"study-buddy-rag/internal/telemetry"
)

type Retriever interface {
	Retrieve(ctx context.Context, ownerID, query string, topK int, documentIDs []string) ([]models.RetrievedChunk, error)
}

type Generator interface {
	Generate(ctx context.Context, pc models.ProviderConfig, prompt string) (string, error)
}

// Request is one question from one owner. TopK 0 selects the configured default.
type Request struct {
	OwnerID     string
	Query       string
	TopK        int
	DocumentIDs []string
	Preferences models.LLMPreferences
}

type RAG struct {
	retriever Retriever
	generator Generator
	cfg       config.RAGConfig
	provider  models.Provider
	model     string
}

func NewRAG(retriever Retriever, generator Generator, cfg *config.Config) *RAG {
	return &RAG{
		retriever: retriever,
		generator: generator,
		cfg:       cfg.RAG,
		provider:  models.Provider(cfg.LLM.DefaultProvider),
		model:     cfg.LLM.DefaultModel,
	}
}

func (r *RAG) validate(req *Request) error {
	if req.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", models.ErrInvalidRequest)
	}
	req.Query = strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(req.Query); n == 0 || n > r.cfg.MaxQueryLength {
		return fmt.Errorf("%w: query must be 1 to %d characters, got %d", models.ErrInvalidRequest, r.cfg.MaxQueryLength, n)
	}
	if req.TopK == 0 {
		req.TopK = r.cfg.TopK
	}
	if req.TopK < 1 || req.TopK > r.cfg.MaxTopK {
		return fmt.Errorf("%w: top k must be 1 to %d, got %d", models.ErrInvalidRequest, r.cfg.MaxTopK, req.TopK)
	}
	return nil
}

// Query answers req from the owner's documents. Finding nothing is not an
// error: the result carries the fixed fallback answer and no sources.
func (r *RAG) Query(ctx context.Context, req Request) (*models.QueryResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "rag.query")
	defer span.End()

	if err := r.validate(&req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("rag.owner_id", req.OwnerID), attribute.Int("rag.top_k", req.TopK))

	chunks, err := r.retriever.Retrieve(ctx, req.OwnerID, req.Query, req.TopK, req.DocumentIDs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.chunks", len(chunks)))

	if len(chunks) == 0 {
		log.Info().Str("owner_id", req.OwnerID).Msg("No relevant chunks found")
		return &models.QueryResult{
			Answer:  models.NoDocumentsAnswer,
			Sources: []models.Source{},
			Query:   req.Query,
		}, nil
	}

	contextBlock := prompt.BuildContext(chunks)
	fullPrompt := prompt.BuildPrompt(req.Query, contextBlock)

	pc := req.Preferences.Resolve(r.provider, r.model)
	log.Debug().Interface("provider", pc.Redacted()).Int("chunks", len(chunks)).Msg("Generating answer")
	answer, err := r.generator.Generate(ctx, pc, fullPrompt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &models.QueryResult{
		Answer:  answer,
		Sources: r.sources(chunks),
		Query:   req.Query,
	}, nil
}

func (r *RAG) sources(chunks []models.RetrievedChunk) []models.Source {
	out := make([]models.Source, len(chunks))
	for i, rc := range chunks {
		out[i] = models.Source{
			SourceNumber: i + 1,
			DocumentID:   rc.Chunk.DocumentID,
			PageNumber:   rc.Chunk.PageNumber,
			TextSnippet:  Snippet(rc.Chunk.Content, r.cfg.SnippetLength),
			Similarity:   math.Round(rc.Similarity*1e4) / 1e4,
		}
	}
	return out
}

// Snippet cuts text to at most n runes, marking a cut with an ellipsis.
func Snippet(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + models.SnippetEllipsis
}
