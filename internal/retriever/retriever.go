package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"study-buddy-rag/internal/embedding"
	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/vectorstore"
)

// Retriever embeds a query and searches the owner's chunks with it.
type Retriever struct {
	embedder embedding.Embedder
	store    vectorstore.Store
}

func New(embedder embedding.Embedder, store vectorstore.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns at most topK chunks ranked by similarity. No matching
// chunks is an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string, topK int, documentIDs []string) ([]models.RetrievedChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := r.store.Search(ctx, vectorstore.Query{
		OwnerID:     ownerID,
		Vector:      vec,
		TopK:        topK,
		DocumentIDs: documentIDs,
	})
	if err != nil {
		if errors.Is(err, models.ErrVectorStore) || errors.Is(err, models.ErrEmbeddingDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrVectorStore, err)
	}

	log.Debug().Str("owner", ownerID).Int("top_k", topK).Int("found", len(chunks)).Msg("Retrieved chunks")
	if chunks == nil {
		chunks = []models.RetrievedChunk{}
	}
	return chunks, nil
}
