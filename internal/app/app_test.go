package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/vectorstore"
)

func TestNewWithMemoryStore(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, ok := a.Store.(*vectorstore.Memory); !ok {
		t.Fatalf("unexpected store %T", a.Store)
	}
	if a.Pipeline == nil || a.RAG == nil || a.Embedder.Dimension() != cfg.Embedding.Dimension {
		t.Fatal("object graph incomplete")
	}
}

func TestNewWithChromemStore(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "chromem"
	cfg.VectorStore.Path = filepath.Join(t.TempDir(), "vectors")

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if _, err := os.Stat(cfg.VectorStore.Path); err != nil {
		t.Fatalf("chromem directory not created: %v", err)
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "faiss"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisClientOpt(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Addr = "cache:6379"
	cfg.Redis.DB = 2
	opt := RedisClientOpt(cfg)
	if opt.Addr != "cache:6379" || opt.DB != 2 {
		t.Fatalf("unexpected options %+v", opt)
	}
}
