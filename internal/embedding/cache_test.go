package embedding

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tmc/langchaingo/embeddings"
)

type mapCache struct {
	m       map[string][]float32
	failGet bool
}

func (c *mapCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if c.failGet {
		return nil, false, errors.New("redis down")
	}
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, vec []float32) error {
	c.m[key] = vec
	return nil
}

type countingModel struct {
	fakeModel
	queries int
}

func (c *countingModel) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queries++
	return c.fakeModel.EmbedQuery(ctx, text)
}

func TestCachedEmbedHitsCache(t *testing.T) {
	model := &countingModel{fakeModel: fakeModel{dim: 3}}
	lazy := NewLazy("fake", 3, func(ctx context.Context) (embeddings.Embedder, error) { return model, nil })
	cache := &mapCache{m: map[string][]float32{}}
	c := NewCached(lazy, cache, "fake")

	first, err := c.Embed(context.Background(), "what is rag")
	if err != nil {
		t.Fatal(err)
	}
	// one probe plus one query
	if model.queries != 2 {
		t.Fatalf("expected 2 model calls, got %d", model.queries)
	}
	second, err := c.Embed(context.Background(), "what is rag")
	if err != nil {
		t.Fatal(err)
	}
	if model.queries != 2 {
		t.Fatalf("cache miss on repeated query, model calls %d", model.queries)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached vector differs: %v vs %v", first, second)
	}
}

func TestCachedIgnoresCacheFailuresAndBadEntries(t *testing.T) {
	model := &countingModel{fakeModel: fakeModel{dim: 2}}
	lazy := NewLazy("fake", 2, func(ctx context.Context) (embeddings.Embedder, error) { return model, nil })
	cache := &mapCache{m: map[string][]float32{}}
	c := NewCached(lazy, cache, "fake")

	cache.m[c.key("q")] = []float32{1, 2, 3}
	vec, err := c.Embed(context.Background(), "q")
	if err != nil || len(vec) != 2 {
		t.Fatalf("expected fresh 2-dim vector, got %v %v", vec, err)
	}

	cache.failGet = true
	if _, err := c.Embed(context.Background(), "other"); err != nil {
		t.Fatalf("cache failure must not fail the embed: %v", err)
	}
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil || !reflect.DeepEqual(in, out) {
		t.Fatalf("got %v %v", out, err)
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
