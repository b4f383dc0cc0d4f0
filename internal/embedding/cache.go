package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache stores query vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Cached consults cache for single-text embeddings. Batches always go to
// the model. Cache failures are logged and otherwise ignored.
type Cached struct {
	Embedder
	cache Cache
	model string
}

func NewCached(inner Embedder, cache Cache, model string) *Cached {
	return &Cached{Embedder: inner, cache: cache, model: model}
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%d:%s", c.model, c.Dimension(), hex.EncodeToString(sum[:]))
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Embedding cache read failed")
	case ok && CheckDimension(vec, c.Dimension()) == nil:
		return vec, nil
	case ok:
		log.Warn().Int("len", len(vec)).Msg("Discarding cached embedding with wrong dimension")
	}

	vec, err = c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		log.Warn().Err(err).Msg("Embedding cache write failed")
	}
	return vec, nil
}

// RedisCache keeps vectors as little-endian float32 blobs.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	return r.rdb.Set(ctx, key, encodeVector(vec), r.ttl).Err()
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
