package chromemdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/vectorstore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("", "test_chunks", 3, false)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	chunks := []models.Chunk{
		{OwnerID: "alice", DocumentID: "a1", ChunkIndex: 0, Content: "cells", PageNumber: 2, Embedding: []float32{1, 0, 0}},
		{OwnerID: "alice", DocumentID: "a1", ChunkIndex: 1, Content: "atoms", Embedding: []float32{0, 1, 0}},
		{OwnerID: "alice", DocumentID: "a2", ChunkIndex: 0, Content: "plants", Embedding: []float32{0.9, 0.1, 0}},
		{OwnerID: "bob", DocumentID: "b1", ChunkIndex: 0, Content: "bob cells", Embedding: []float32{1, 0, 0}},
	}
	if err := s.Upsert(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
}

func TestSearchScopedAndOrdered(t *testing.T) {
	s := newStore(t)
	seed(t, s)

	res, err := s.Search(context.Background(), vectorstore.Query{OwnerID: "alice", Vector: []float32{1, 0, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 alice chunks, got %d", len(res))
	}
	for i, r := range res {
		if r.Chunk.OwnerID != "alice" {
			t.Fatalf("leaked %s chunk", r.Chunk.OwnerID)
		}
		if r.Rank != i+1 {
			t.Errorf("rank %d at position %d", r.Rank, i)
		}
		if r.Similarity < 0 || r.Similarity > 1 {
			t.Errorf("similarity %f out of bounds", r.Similarity)
		}
	}
	if res[0].Chunk.DocumentID != "a1" || res[0].Chunk.PageNumber != 2 || res[0].Chunk.Content != "cells" {
		t.Fatalf("unexpected best match %+v", res[0].Chunk)
	}
	if res[1].Chunk.DocumentID != "a2" {
		t.Fatalf("second match should be a2, got %s", res[1].Chunk.DocumentID)
	}
}

func TestSearchTopKAndFilter(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	res, err := s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{1, 0, 0}, TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("topK ignored: %d", len(res))
	}

	res, err = s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{1, 0, 0}, TopK: 5, DocumentIDs: []string{"a1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("document filter returned %d", len(res))
	}

	res, err = s.Search(ctx, vectorstore.Query{OwnerID: "nobody", Vector: []float32{1, 0, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("unknown owner got %d results", len(res))
	}
}

func TestUpsertReplacesAndGuardsOwner(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	if err := s.Upsert(ctx, []models.Chunk{{OwnerID: "alice", DocumentID: "a1", Content: "new", Embedding: []float32{0, 0, 1}}}); err != nil {
		t.Fatal(err)
	}
	res, err := s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{0, 0, 1}, TopK: 5, DocumentIDs: []string{"a1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.Content != "new" {
		t.Fatalf("document not replaced: %+v", res)
	}

	err = s.Upsert(ctx, []models.Chunk{{OwnerID: "bob", DocumentID: "a1", Content: "steal", Embedding: []float32{0, 0, 1}}})
	if !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("cross-owner overwrite accepted: %v", err)
	}
}

func TestUpsertDimensionGuard(t *testing.T) {
	s := newStore(t)
	err := s.Upsert(context.Background(), []models.Chunk{
		{OwnerID: "u", DocumentID: "d", ChunkIndex: 0, Content: "ok", Embedding: []float32{1, 0, 0}},
		{OwnerID: "u", DocumentID: "d", ChunkIndex: 1, Content: "bad", Embedding: []float32{1, 0}},
	})
	if !errors.Is(err, models.ErrEmbeddingDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if n := s.collection.Count(); n != 0 {
		t.Fatalf("partial write left %d documents", n)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()
	if err := s.DeleteDocument(ctx, "alice", "a1"); err != nil {
		t.Fatal(err)
	}
	res, err := s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{1, 0, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.DocumentID != "a2" {
		t.Fatalf("unexpected results after delete: %+v", res)
	}
}

func TestExport(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	path := filepath.Join(t.TempDir(), "chunks.gob")
	if err := s.Export(path, false, ""); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("export file missing: %v", err)
	}
}

func TestOwnerGuardWithoutFirstChunk(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	err := s.Upsert(ctx, []models.Chunk{
		{OwnerID: "alice", DocumentID: "d", ChunkIndex: 0, Content: "no vector yet"},
		{OwnerID: "alice", DocumentID: "d", ChunkIndex: 1, Content: "mitosis", Embedding: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Upsert(ctx, []models.Chunk{{OwnerID: "bob", DocumentID: "d", ChunkIndex: 0, Content: "steal", Embedding: []float32{0, 1, 0}}})
	if !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("cross-owner overwrite accepted: %v", err)
	}
	if err := s.DeleteDocument(ctx, "bob", "d"); !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("cross-owner delete accepted: %v", err)
	}

	res, err := s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{0, 1, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Chunk.Content != "mitosis" {
		t.Fatalf("alice lost her document: %+v", res)
	}
	res, err = s.Search(ctx, vectorstore.Query{OwnerID: "bob", Vector: []float32{0, 1, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("bob sees %d chunks", len(res))
	}
}
