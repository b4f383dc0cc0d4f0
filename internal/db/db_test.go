package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/vectorstore"
)

func TestToRecordLeavesMissingEmbeddingNull(t *testing.T) {
	rec := toRecord(models.Chunk{OwnerID: "u", DocumentID: "d", ChunkIndex: 3, Content: "x"})
	if rec.Embedding != nil {
		t.Fatal("chunk without embedding must be stored as NULL")
	}
	rec = toRecord(models.Chunk{OwnerID: "u", DocumentID: "d", Embedding: []float32{1, 2}})
	if rec.Embedding == nil || len(rec.Embedding.Slice()) != 2 {
		t.Fatalf("embedding not converted: %+v", rec.Embedding)
	}
}

func TestSearchRowSimilarity(t *testing.T) {
	got := searchRow{Distance: 0.2}.toRetrieved().Similarity
	if got < 0.79 || got > 0.81 {
		t.Fatalf("distance 0.2 should give similarity 0.8, got %f", got)
	}
	if got := (searchRow{Distance: 1.7}).toRetrieved().Similarity; got != 0 {
		t.Fatalf("similarity must clamp at 0, got %f", got)
	}
}

func TestStoreRejectsBadDimensionBeforeConnecting(t *testing.T) {
	s := NewStore(nil, 3)
	err := s.Upsert(context.Background(), []models.Chunk{{OwnerID: "u", DocumentID: "d", Embedding: []float32{1}}})
	if !errors.Is(err, models.ErrEmbeddingDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

// Runs against a real pgvector instance when TEST_DATABASE_URL is set.
func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	bdb := NewDB(ConnectDB(dsn), false)
	defer bdb.Close()

	s := NewStore(bdb, 2)
	if err := s.DropChunks(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.InitDB(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.DropChunks(ctx)

	chunks := []models.Chunk{
		{OwnerID: "alice", DocumentID: "a", ChunkIndex: 0, Content: "one", PageNumber: 1, Embedding: []float32{1, 0}},
		{OwnerID: "alice", DocumentID: "a", ChunkIndex: 1, Content: "two", Embedding: []float32{0, 1}},
		{OwnerID: "alice", DocumentID: "a", ChunkIndex: 2, Content: "unsearchable"},
	}
	if err := s.Upsert(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []models.Chunk{{OwnerID: "bob", DocumentID: "b", Content: "bob", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}

	res, err := s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{1, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 searchable chunks, got %d", len(res))
	}
	if res[0].Chunk.ChunkIndex != 0 || res[0].Rank != 1 || res[0].Chunk.PageNumber != 1 {
		t.Fatalf("unexpected top result %+v", res[0])
	}

	if err := s.Upsert(ctx, []models.Chunk{{OwnerID: "bob", DocumentID: "a", Content: "steal", Embedding: []float32{1, 0}}}); !errors.Is(err, models.ErrVectorStore) {
		t.Fatalf("cross-owner overwrite accepted: %v", err)
	}

	if err := s.DeleteDocument(ctx, "alice", "a"); err != nil {
		t.Fatal(err)
	}
	res, err = s.Search(ctx, vectorstore.Query{OwnerID: "alice", Vector: []float32{1, 0}, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("deleted document still searchable")
	}
}
