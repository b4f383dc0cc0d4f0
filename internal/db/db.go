// Package db is the Postgres + pgvector chunk store, built on bun.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/vectorstore"
)

// ChunkRecord is one row of document_chunks. A NULL embedding marks a chunk
// that is stored but not searchable.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`

	ID         int64            `bun:"id,pk,autoincrement"`
	OwnerID    string           `bun:"owner_id,notnull"`
	DocumentID string           `bun:"document_id,notnull"`
	ChunkIndex int              `bun:"chunk_index,notnull"`
	PageNumber int              `bun:"page_number,nullzero"`
	Content    string           `bun:"chunk_text,notnull"`
	Embedding  *pgvector.Vector `bun:"embedding,type:vector"`
	CreatedAt  time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type searchRow struct {
	OwnerID    string  `bun:"owner_id"`
	DocumentID string  `bun:"document_id"`
	ChunkIndex int     `bun:"chunk_index"`
	PageNumber int     `bun:"page_number,nullzero"`
	Content    string  `bun:"chunk_text"`
	Distance   float64 `bun:"distance"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// Store implements vectorstore.Store over a document_chunks table whose
// embedding column is vector(dimension).
type Store struct {
	db        *bun.DB
	dimension int
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(db *bun.DB, dimension int) *Store {
	return &Store{db: db, dimension: dimension}
}

func (s *Store) Dimension() int { return s.dimension }

// InitDB creates the extension, table and indexes if missing and checks that
// an existing embedding column has the configured width.
func (s *Store) InitDB(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
	id BIGSERIAL PRIMARY KEY,
	owner_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	page_number INTEGER,
	chunk_text TEXT NOT NULL,
	embedding vector(%d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
	UNIQUE (document_id, chunk_index)
)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS document_chunks_owner_idx ON document_chunks (owner_id, document_id)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx ON document_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", models.ErrVectorStore, err)
		}
	}

	var width int
	err := s.db.NewRaw(`SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'document_chunks'::regclass AND attname = 'embedding'`).Scan(ctx, &width)
	if err != nil {
		return fmt.Errorf("%w: read embedding column: %v", models.ErrVectorStore, err)
	}
	if width != s.dimension {
		return fmt.Errorf("%w: embedding column is vector(%d), configured %d", models.ErrEmbeddingDimensionMismatch, width, s.dimension)
	}
	log.Info().Int("dimension", width).Msg("Vector store schema ready")
	return nil
}

func toRecord(ch models.Chunk) ChunkRecord {
	rec := ChunkRecord{
		OwnerID:    ch.OwnerID,
		DocumentID: ch.DocumentID,
		ChunkIndex: ch.ChunkIndex,
		PageNumber: ch.PageNumber,
		Content:    ch.Content,
	}
	if ch.HasEmbedding() {
		v := pgvector.NewVector(ch.Embedding)
		rec.Embedding = &v
	}
	return rec
}

func (r searchRow) toRetrieved() models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk: models.Chunk{
			OwnerID:    r.OwnerID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			PageNumber: r.PageNumber,
			Content:    r.Content,
		},
		Similarity: vectorstore.SimilarityFromDistance(r.Distance),
	}
}

// Upsert replaces the chunks of every document in the batch inside one
// transaction.
func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if err := vectorstore.ValidateChunks(chunks, s.dimension); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	records := make([]ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = toRecord(ch)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ids := vectorstore.DocumentIDs(chunks)
		foreign, err := tx.NewSelect().
			Model((*ChunkRecord)(nil)).
			Where("document_id IN (?)", bun.In(ids)).
			Where("owner_id <> ?", chunks[0].OwnerID).
			Count(ctx)
		if err != nil {
			return err
		}
		if foreign > 0 {
			return errors.New("document belongs to another owner")
		}
		if _, err := tx.NewDelete().
			Model((*ChunkRecord)(nil)).
			Where("document_id IN (?)", bun.In(ids)).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(&records).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d chunks: %v", models.ErrVectorStore, len(chunks), err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, q vectorstore.Query) ([]models.RetrievedChunk, error) {
	if err := vectorstore.ValidateQuery(q, s.dimension); err != nil {
		return nil, err
	}

	var rows []searchRow
	sel := s.db.NewSelect().
		Model((*ChunkRecord)(nil)).
		Column("owner_id", "document_id", "chunk_index", "page_number", "chunk_text").
		ColumnExpr("embedding <=> ? AS distance", pgvector.NewVector(q.Vector)).
		Where("owner_id = ?", q.OwnerID).
		Where("embedding IS NOT NULL")
	if len(q.DocumentIDs) > 0 {
		sel = sel.Where("document_id IN (?)", bun.In(q.DocumentIDs))
	}
	err := sel.
		OrderExpr("distance ASC").
		OrderExpr("chunk_index ASC").
		OrderExpr("document_id ASC").
		Limit(q.TopK).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", models.ErrVectorStore, err)
	}

	results := make([]models.RetrievedChunk, len(rows))
	for i, r := range rows {
		results[i] = r.toRetrieved()
	}
	// clamping may create ties the SQL order did not see
	return vectorstore.Rank(results, q.TopK), nil
}

func (s *Store) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	_, err := s.db.NewDelete().
		Model((*ChunkRecord)(nil)).
		Where("owner_id = ?", ownerID).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", models.ErrVectorStore, documentID, err)
	}
	return nil
}

// DropChunks removes the table.
func (s *Store) DropChunks(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*ChunkRecord)(nil)).IfExists().Exec(ctx)
	return err
}
