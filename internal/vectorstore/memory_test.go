package vectorstore

import (
	"context"
	"errors"
	"testing"

	"study-buddy-rag/internal/models"
)

func chunk(owner, doc string, idx int, vec ...float32) models.Chunk {
	return models.Chunk{
		OwnerID:    owner,
		DocumentID: doc,
		ChunkIndex: idx,
		Content:    doc + " content",
		PageNumber: 1,
		Embedding:  vec,
	}
}

func TestMemorySearchIsScopedToOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{
		chunk("alice", "a1", 0, 1, 0),
		chunk("alice", "a1", 1, 0, 1),
		chunk("bob", "b1", 0, 1, 0),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Search(ctx, Query{OwnerID: "alice", Vector: []float32{1, 0}, TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	for _, r := range res {
		if r.Chunk.OwnerID != "alice" {
			t.Fatalf("leaked chunk from %s", r.Chunk.OwnerID)
		}
	}

	res, err = m.Search(ctx, Query{OwnerID: "carol", Vector: []float32{1, 0}, TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("owner without documents got %d results", len(res))
	}
}

func TestMemorySearchOrderingAndBounds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{
		chunk("u", "d2", 0, 1, 0),
		chunk("u", "d1", 0, 1, 0),
		chunk("u", "d1", 1, 1, 1),
		chunk("u", "d1", 2, -1, 0),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		doc string
		idx int
	}{{"d1", 0}, {"d2", 0}, {"d1", 1}, {"d1", 2}}
	if len(res) != len(want) {
		t.Fatalf("got %d results", len(res))
	}
	for i, w := range want {
		r := res[i]
		if r.Chunk.DocumentID != w.doc || r.Chunk.ChunkIndex != w.idx {
			t.Errorf("position %d: got %s/%d, want %s/%d", i, r.Chunk.DocumentID, r.Chunk.ChunkIndex, w.doc, w.idx)
		}
		if r.Rank != i+1 {
			t.Errorf("position %d has rank %d", i, r.Rank)
		}
		if r.Similarity < 0 || r.Similarity > 1 {
			t.Errorf("similarity %f out of bounds", r.Similarity)
		}
		if i > 0 && r.Similarity > res[i-1].Similarity {
			t.Errorf("similarity increases at %d", i)
		}
	}
	if res[3].Similarity != 0 {
		t.Errorf("opposite vector should clamp to 0, got %f", res[3].Similarity)
	}
}

func TestMemorySearchReturnsFewerThanTopK(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{chunk("u", "d", 0, 1, 0), chunk("u", "d", 1, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 1}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("expected exactly 2 results, got %d", len(res))
	}

	res, err = m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 1}, TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("topK 1 returned %d", len(res))
	}
}

func TestMemoryDocumentFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{chunk("u", "d1", 0, 1, 0), chunk("u", "d2", 0, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, TopK: 5, DocumentIDs: []string{"d2"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.DocumentID != "d2" {
		t.Fatalf("filter not applied: %+v", res)
	}
}

func TestMemoryDimensionGuardWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	err := m.Upsert(ctx, []models.Chunk{chunk("u", "d", 0, 1, 0), chunk("u", "d", 1, 1, 0, 0)})
	if !errors.Is(err, models.ErrEmbeddingDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	res, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("partial write left %d chunks", len(res))
	}

	if _, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1}, TopK: 5}); !errors.Is(err, models.ErrEmbeddingDimensionMismatch) {
		t.Fatalf("query with wrong dimension: %v", err)
	}
}

func TestMemoryUpsertReplacesDocument(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{chunk("u", "d", 0, 1, 0), chunk("u", "d", 1, 1, 0), chunk("u", "d", 2, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := m.Upsert(ctx, []models.Chunk{chunk("u", "d", 0, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{0, 1}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("stale chunks survived re-ingest: %d", len(res))
	}
}

func TestMemoryDeleteDocument(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{chunk("u", "d", 0, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteDocument(ctx, "other", "d"); !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("deleting another owner's document: %v", err)
	}
	if err := m.DeleteDocument(ctx, "u", "d"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteDocument(ctx, "u", "d"); err != nil {
		t.Fatalf("delete should be idempotent: %v", err)
	}
	res, _ := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, TopK: 5})
	if len(res) != 0 {
		t.Fatalf("document still searchable")
	}
}

func TestValidateQuery(t *testing.T) {
	if err := ValidateQuery(Query{Vector: []float32{1}, TopK: 1}, 1); !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("unscoped query accepted: %v", err)
	}
	if err := ValidateQuery(Query{OwnerID: "u", Vector: []float32{1}}, 1); !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("zero topK accepted: %v", err)
	}
}

func TestSimilarityFromDistance(t *testing.T) {
	cases := map[float64]float64{0: 1, 0.25: 0.75, 1: 0, 2: 0, -0.5: 1}
	for d, want := range cases {
		if got := SimilarityFromDistance(d); got != want {
			t.Errorf("distance %v: got %v, want %v", d, got, want)
		}
	}
}

func TestMemoryChunksWithoutEmbeddingAreNotSearchable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	if err := m.Upsert(ctx, []models.Chunk{chunk("u", "d", 0, 1, 0), chunk("u", "d", 1)}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Search(ctx, Query{OwnerID: "u", Vector: []float32{1, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.ChunkIndex != 0 {
		t.Fatalf("unembedded chunk returned: %+v", res)
	}
}
