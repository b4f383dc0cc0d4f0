package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"study-buddy-rag/internal/ingest"
	"study-buddy-rag/internal/models"
)

const TaskIngestDocument = "document:ingest"

type IngestPayload struct {
	DocumentID string          `json:"document_id"`
	OwnerID    string          `json:"owner_id"`
	FilePath   string          `json:"file_path"`
	FileType   models.FileType `json:"file_type"`
}

// NewIngestTask builds an ingestion task for the given queue.
func NewIngestTask(p IngestPayload, queue string, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(queue),
		asynq.TaskID("ingest:"+p.DocumentID),
	), nil
}

// Ingester is satisfied by *ingest.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, doc ingest.Document) (ingest.Result, error)
}

type TaskProcessor struct {
	ingester Ingester
}

func NewTaskProcessor(ingester Ingester) *TaskProcessor {
	return &TaskProcessor{ingester: ingester}
}

// ProcessIngest runs the pipeline for one task. Failures that cannot succeed
// on a later attempt skip the retry queue.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log.Info().Str("document_id", payload.DocumentID).Str("owner_id", payload.OwnerID).Msg("Processing ingest task")

	_, err := p.ingester.Ingest(ctx, ingest.Document{
		ID:       payload.DocumentID,
		OwnerID:  payload.OwnerID,
		Path:     payload.FilePath,
		FileType: payload.FileType,
	})
	if err == nil {
		return nil
	}
	if permanent(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func permanent(err error) bool {
	for _, target := range []error{
		models.ErrUnsupportedFormat,
		models.ErrExtraction,
		models.ErrEmbeddingDimensionMismatch,
		models.ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NewServeMux registers the task handlers.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestDocument, p.ProcessIngest)
	return mux
}
