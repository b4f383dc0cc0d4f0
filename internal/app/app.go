// Package app builds the service object graph from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"study-buddy-rag/internal/chromemdb"
	"study-buddy-rag/internal/chunker"
	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/db"
	"study-buddy-rag/internal/embedding"
	"study-buddy-rag/internal/ingest"
	"study-buddy-rag/internal/llmservice"
	"study-buddy-rag/internal/parser"
	"study-buddy-rag/internal/rag"
	"study-buddy-rag/internal/retriever"
	"study-buddy-rag/internal/vectorstore"
)

type App struct {
	Config   *config.Config
	Store    vectorstore.Store
	Embedder embedding.Embedder
	Pipeline *ingest.Pipeline
	RAG      *rag.RAG

	closers []func() error
}

// New wires every component. sink receives document status changes and may
// be nil.
func New(ctx context.Context, cfg *config.Config, sink ingest.StatusSink) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.newStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	var emb embedding.Embedder = embedding.NewLazy(cfg.Embedding.Model, cfg.Embedding.Dimension, embedding.NewLoader(&cfg.Embedding))
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		emb = embedding.NewCached(emb, embedding.NewRedisCache(rdb, cfg.Redis.CacheTTL), cfg.Embedding.Model)
		log.Debug().Str("addr", cfg.Redis.Addr).Msg("Query embedding cache enabled")
	}
	a.Embedder = emb

	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pipeline = ingest.NewPipeline(parser.Extract, ch, emb, store, sink)
	a.RAG = rag.NewRAG(retriever.New(emb, store), llmservice.NewGenerator(cfg.LLM), cfg)
	return a, nil
}

func (a *App) newStore(ctx context.Context) (vectorstore.Store, error) {
	vs := a.Config.VectorStore
	log.Info().Str("type", vs.Type).Int("dimension", vs.Dimension).Msg("Opening vector store")
	switch vs.Type {
	case "memory":
		return vectorstore.NewMemory(vs.Dimension), nil
	case "chromem":
		return chromemdb.NewStore(vs.Path, vs.Collection, vs.Dimension, vs.Compress)
	case "pgvector":
		bdb := db.NewDB(db.ConnectDB(a.Config.Database.DSN), a.Config.Database.Debug)
		a.closers = append(a.closers, bdb.Close)
		store := db.NewStore(bdb, vs.Dimension)
		if err := store.InitDB(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector store type %q", vs.Type)
	}
}

// RedisClientOpt returns the asynq connection settings.
func RedisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error closing resource")
		}
	}
	a.closers = nil
}
