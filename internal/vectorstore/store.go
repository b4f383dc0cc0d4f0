// Package vectorstore defines the chunk vector store contract and the
// helpers every backend shares: input validation, cosine similarity and the
// deterministic result ordering.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"study-buddy-rag/internal/embedding"
	"study-buddy-rag/internal/models"
)

// Store persists embedded chunks and searches them scoped to one owner.
//
// Upsert replaces the whole chunk set of every document present in the batch
// and either writes everything or nothing. Search only ever returns chunks
// whose OwnerID equals the query's OwnerID.
type Store interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, q Query) ([]models.RetrievedChunk, error)
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	Dimension() int
}

// Query is a scoped nearest-neighbour request. An empty DocumentIDs means
// all of the owner's documents.
type Query struct {
	OwnerID     string
	Vector      []float32
	TopK        int
	DocumentIDs []string
}

// ValidateChunks checks a whole batch before any backend writes to storage.
// Chunks without an embedding are allowed; they are stored but never searched.
func ValidateChunks(chunks []models.Chunk, dimension int) error {
	seen := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		if ch.OwnerID == "" || ch.DocumentID == "" {
			return fmt.Errorf("%w: chunk %d has no owner or document", models.ErrVectorStore, ch.ChunkIndex)
		}
		if ch.HasEmbedding() {
			if err := embedding.CheckDimension(ch.Embedding, dimension); err != nil {
				return fmt.Errorf("document %s chunk %d: %w", ch.DocumentID, ch.ChunkIndex, err)
			}
		}
		key := fmt.Sprintf("%s\x00%d", ch.DocumentID, ch.ChunkIndex)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate chunk %d for document %s", models.ErrVectorStore, ch.ChunkIndex, ch.DocumentID)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateQuery rejects unscoped or malformed searches.
func ValidateQuery(q Query, dimension int) error {
	if q.OwnerID == "" {
		return fmt.Errorf("%w: search without owner", models.ErrVectorStore)
	}
	if q.TopK <= 0 {
		return fmt.Errorf("%w: top k must be positive, got %d", models.ErrVectorStore, q.TopK)
	}
	return embedding.CheckDimension(q.Vector, dimension)
}

// DocumentIDs returns the distinct document IDs of chunks in first-seen order.
func DocumentIDs(chunks []models.Chunk) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, ch := range chunks {
		if _, ok := seen[ch.DocumentID]; ok {
			continue
		}
		seen[ch.DocumentID] = struct{}{}
		ids = append(ids, ch.DocumentID)
	}
	return ids
}

// DocumentFilter returns a membership test for ids; nil ids accept everything.
func DocumentFilter(ids []string) func(string) bool {
	if len(ids) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

// SimilarityFromDistance converts a cosine distance into a similarity in [0, 1].
func SimilarityFromDistance(distance float64) float64 {
	return ClampSimilarity(1 - distance)
}

// ClampSimilarity maps s into [0, 1]; NaN becomes 0.
func ClampSimilarity(s float64) float64 {
	switch {
	case !(s > 0):
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// Cosine returns the cosine similarity of a and b, 0 if either is a zero vector.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank orders results by similarity descending, then chunk index, then
// document ID ascending, keeps the first topK and numbers them from 1.
func Rank(results []models.RetrievedChunk, topK int) []models.RetrievedChunk {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Chunk.ChunkIndex != b.Chunk.ChunkIndex {
			return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
		}
		return a.Chunk.DocumentID < b.Chunk.DocumentID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
