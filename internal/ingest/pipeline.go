// Package ingest turns an uploaded file into searchable chunks: extract,
// chunk, embed, upsert. A document either ends up fully searchable or not
// searchable at all.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"study-buddy-rag/internal/chunker"
	"study-buddy-rag/internal/embedding"
	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/telemetry"
	"study-buddy-rag/internal/vectorstore"
)

// Extractor reads the text of a file. parser.Extract is the production one.
type Extractor func(filePath string, fileType models.FileType) ([]models.TextUnit, error)

// StatusSink receives every status transition of a document, e.g. to update
// the caller's document record.
type StatusSink interface {
	UpdateStatus(ctx context.Context, documentID string, status models.DocumentStatus, chunkCount int) error
}

type Document struct {
	ID       string
	OwnerID  string
	Path     string
	FileType models.FileType
}

// Result is what the caller persists against its document record.
type Result struct {
	DocumentID string
	Status     models.DocumentStatus
	ChunkCount int
	Err        error
}

type Pipeline struct {
	extract  Extractor
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    vectorstore.Store
	sink     StatusSink
}

// NewPipeline wires the stages together. sink may be nil.
func NewPipeline(extract Extractor, ch *chunker.Chunker, embedder embedding.Embedder, store vectorstore.Store, sink StatusSink) *Pipeline {
	return &Pipeline{extract: extract, chunker: ch, embedder: embedder, store: store, sink: sink}
}

type run struct {
	p      *Pipeline
	doc    Document
	status models.DocumentStatus
}

func (r *run) moveTo(ctx context.Context, next models.DocumentStatus, chunkCount int) error {
	status, err := r.status.Transition(next)
	if err != nil {
		return err
	}
	r.status = status
	log.Debug().Str("document_id", r.doc.ID).Stringer("status", status).Msg("Document status changed")
	if r.p.sink == nil {
		return nil
	}
	if err := r.p.sink.UpdateStatus(ctx, r.doc.ID, status, chunkCount); err != nil {
		log.Warn().Err(err).Str("document_id", r.doc.ID).Stringer("status", status).Msg("Failed to record document status")
	}
	return nil
}

// Ingest processes doc. On failure any chunks already written are removed,
// the document is marked failed and the error keeps its kind.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ingest.document")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.document_id", doc.ID),
		attribute.String("ingest.file_type", string(doc.FileType)),
	)

	if doc.ID == "" || doc.OwnerID == "" {
		return Result{DocumentID: doc.ID, Status: models.StatusFailed, Err: models.ErrInvalidRequest},
			fmt.Errorf("%w: document and owner IDs are required", models.ErrInvalidRequest)
	}

	r := &run{p: p, doc: doc, status: models.StatusPending}
	if err := r.moveTo(ctx, models.StatusProcessing, 0); err != nil {
		return Result{DocumentID: doc.ID, Status: r.status, Err: err}, err
	}

	count, err := p.process(ctx, doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.rollback(ctx, doc)
		_ = r.moveTo(ctx, models.StatusFailed, 0)
		log.Error().Err(err).Str("document_id", doc.ID).Str("kind", models.KindOf(err)).Msg("Ingestion failed")
		return Result{DocumentID: doc.ID, Status: r.status, Err: err}, err
	}

	_ = r.moveTo(ctx, models.StatusCompleted, count)
	span.SetAttributes(attribute.Int("ingest.chunks", count))
	log.Info().Str("document_id", doc.ID).Str("owner_id", doc.OwnerID).Int("chunks", count).Msg("Document ingested")
	return Result{DocumentID: doc.ID, Status: r.status, ChunkCount: count}, nil
}

func (p *Pipeline) process(ctx context.Context, doc Document) (int, error) {
	units, err := p.extract(doc.Path, doc.FileType)
	if err != nil {
		return 0, err
	}

	chunks, err := p.chunker.Chunk(units)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		log.Warn().Str("document_id", doc.ID).Msg("Document has no extractable text")
		// a previous version of the document may still be stored
		return 0, p.store.DeleteDocument(ctx, doc.OwnerID, doc.ID)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].OwnerID = doc.OwnerID
		texts[i] = chunks[i].Content
	}

	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("%w: %d vectors for %d chunks", models.ErrModelUnavailable, len(vecs), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}

	if err := p.store.Upsert(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// rollback removes whatever the store may hold for doc. It runs even when
// ctx is already cancelled.
func (p *Pipeline) rollback(ctx context.Context, doc Document) {
	if err := p.store.DeleteDocument(context.WithoutCancel(ctx), doc.OwnerID, doc.ID); err != nil {
		log.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to roll back document chunks")
	}
}

// Delete removes a document's chunks, e.g. when the caller deletes the
// document record.
func (p *Pipeline) Delete(ctx context.Context, ownerID, documentID string) error {
	return p.store.DeleteDocument(ctx, ownerID, documentID)
}

// LogSink reports status transitions to the log. It is used when no caller
// owns a document record.
type LogSink struct{}

func (LogSink) UpdateStatus(ctx context.Context, documentID string, status models.DocumentStatus, chunkCount int) error {
	log.Info().Str("document_id", documentID).Str("status", status.String()).Int("chunk_count", chunkCount).Msg("Document status")
	return nil
}
