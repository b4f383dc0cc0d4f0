package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"study-buddy-rag/internal/models"
)

// Memory is an exact in-process store using brute-force cosine similarity.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	// document ID -> chunks of that document
	docs map[string][]models.Chunk
}

func NewMemory(dimension int) *Memory {
	return &Memory{dimension: dimension, docs: make(map[string][]models.Chunk)}
}

func (m *Memory) Dimension() int { return m.dimension }

func (m *Memory) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if err := ValidateChunks(chunks, m.dimension); err != nil {
		return err
	}

	grouped := make(map[string][]models.Chunk)
	for _, ch := range chunks {
		ch.Embedding = append([]float32(nil), ch.Embedding...)
		grouped[ch.DocumentID] = append(grouped[ch.DocumentID], ch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, group := range grouped {
		if existing := m.docs[id]; len(existing) > 0 && existing[0].OwnerID != group[0].OwnerID {
			return fmt.Errorf("%w: document %s belongs to another owner", models.ErrVectorStore, id)
		}
		for _, ch := range group[1:] {
			if ch.OwnerID != group[0].OwnerID {
				return fmt.Errorf("%w: document %s has chunks from several owners", models.ErrVectorStore, id)
			}
		}
	}
	for id, group := range grouped {
		m.docs[id] = group
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, q Query) ([]models.RetrievedChunk, error) {
	if err := ValidateQuery(q, m.dimension); err != nil {
		return nil, err
	}
	accept := DocumentFilter(q.DocumentIDs)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []models.RetrievedChunk
	for id, chunks := range m.docs {
		if !accept(id) {
			continue
		}
		for _, ch := range chunks {
			if ch.OwnerID != q.OwnerID || !ch.HasEmbedding() {
				continue
			}
			results = append(results, models.RetrievedChunk{
				Chunk:      ch,
				Similarity: ClampSimilarity(Cosine(q.Vector, ch.Embedding)),
			})
		}
	}
	return Rank(results, q.TopK), nil
}

func (m *Memory) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks, ok := m.docs[documentID]
	if !ok {
		return nil
	}
	if len(chunks) > 0 && chunks[0].OwnerID != ownerID {
		return fmt.Errorf("%w: document %s belongs to another owner", models.ErrVectorStore, documentID)
	}
	delete(m.docs, documentID)
	return nil
}
