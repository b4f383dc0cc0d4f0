package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/vectorstore"
)

// metadata keys stored with every chunk
const (
	metaOwner    = "owner_id"
	metaDocument = "document_id"
	metaIndex    = "chunk_index"
	metaPage     = "page_number"
)

var errNotEmbedded = errors.New("chunks must be embedded before they are added")

// Store is an embedded chromem-go vector store. Chunks live in a single
// collection and carry their owner and document as metadata.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore opens the collection at dbPath, or an in-memory database when
// dbPath is empty.
func NewStore(dbPath, collectionName string, dimension int, compress bool) (*Store, error) {
	var db *chromem.DB
	var err error
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create database: %v", models.ErrVectorStore, err)
		}
	}

	noEmbed := func(ctx context.Context, text string) ([]float32, error) { return nil, errNotEmbedded }
	c, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrVectorStore, err)
	}
	log.Debug().Str("path", dbPath).Str("collection", collectionName).Int("count", c.Count()).Msg("Opened chromem collection")
	return &Store{db: db, collection: c, dimension: dimension}, nil
}

func (s *Store) Dimension() int { return s.dimension }

func chunkID(documentID string, index int) string {
	return documentID + ":" + strconv.Itoa(index)
}

func toDocument(ch models.Chunk) chromem.Document {
	return chromem.Document{
		ID:      chunkID(ch.DocumentID, ch.ChunkIndex),
		Content: ch.Content,
		Metadata: map[string]string{
			metaOwner:    ch.OwnerID,
			metaDocument: ch.DocumentID,
			metaIndex:    strconv.Itoa(ch.ChunkIndex),
			metaPage:     strconv.Itoa(ch.PageNumber),
		},
		Embedding: ch.Embedding,
	}
}

func fromResult(r chromem.Result) models.RetrievedChunk {
	idx, _ := strconv.Atoi(r.Metadata[metaIndex])
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	return models.RetrievedChunk{
		Chunk: models.Chunk{
			OwnerID:    r.Metadata[metaOwner],
			DocumentID: r.Metadata[metaDocument],
			ChunkIndex: idx,
			PageNumber: page,
			Content:    r.Content,
		},
		Similarity: vectorstore.ClampSimilarity(float64(r.Similarity)),
	}
}

// Upsert replaces each document's chunks. If adding fails the documents in
// the batch are removed again so no partial set stays searchable.
func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if err := vectorstore.ValidateChunks(chunks, s.dimension); err != nil {
		return err
	}
	owners := make(map[string]string)
	for _, ch := range chunks {
		if owner, ok := owners[ch.DocumentID]; ok && owner != ch.OwnerID {
			return fmt.Errorf("%w: document %s has chunks from several owners", models.ErrVectorStore, ch.DocumentID)
		}
		owners[ch.DocumentID] = ch.OwnerID
	}
	ids := vectorstore.DocumentIDs(chunks)
	for _, id := range ids {
		if err := s.checkOwner(ctx, id, owners[id]); err != nil {
			return err
		}
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		// never searchable, so there is nothing to keep
		if !ch.HasEmbedding() {
			continue
		}
		docs = append(docs, toDocument(ch))
	}

	if err := s.deleteDocuments(ctx, ids, owners); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if rbErr := s.deleteDocuments(context.WithoutCancel(ctx), ids, owners); rbErr != nil {
			log.Error().Err(rbErr).Strs("documents", ids).Msg("Failed to roll back partial upsert")
		}
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrVectorStore, err)
	}
	return nil
}

// storedOwners returns the owners of every stored chunk of documentID.
// Any chunk may be missing, so the whole document is scanned.
func (s *Store) storedOwners(ctx context.Context, documentID string) (map[string]bool, error) {
	n := s.collection.Count()
	if n == 0 || s.dimension == 0 {
		return nil, nil
	}
	probe := make([]float32, s.dimension)
	probe[0] = 1
	results, err := s.collection.QueryEmbedding(ctx, probe, n, map[string]string{metaDocument: documentID}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up document %s: %v", models.ErrVectorStore, documentID, err)
	}
	owners := make(map[string]bool, 1)
	for _, r := range results {
		owners[r.Metadata[metaOwner]] = true
	}
	return owners, nil
}

func (s *Store) checkOwner(ctx context.Context, documentID, owner string) error {
	owners, err := s.storedOwners(ctx, documentID)
	if err != nil {
		return err
	}
	for o := range owners {
		if o != owner {
			return fmt.Errorf("%w: document %s belongs to another owner", models.ErrVectorStore, documentID)
		}
	}
	return nil
}

func (s *Store) deleteDocuments(ctx context.Context, ids []string, owners map[string]string) error {
	for _, id := range ids {
		where := map[string]string{metaOwner: owners[id], metaDocument: id}
		if err := s.collection.Delete(ctx, where, nil); err != nil {
			return fmt.Errorf("%w: failed to delete document %s: %v", models.ErrVectorStore, id, err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, q vectorstore.Query) ([]models.RetrievedChunk, error) {
	if err := vectorstore.ValidateQuery(q, s.dimension); err != nil {
		return nil, err
	}
	// chromem rejects nResults above the collection size, and the document
	// filter is applied afterwards, so rank every owner chunk.
	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, q.Vector, n, map[string]string{metaOwner: q.OwnerID}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrVectorStore, err)
	}

	accept := vectorstore.DocumentFilter(q.DocumentIDs)
	out := make([]models.RetrievedChunk, 0, len(results))
	for _, r := range results {
		rc := fromResult(r)
		if rc.Chunk.OwnerID != q.OwnerID || !accept(rc.Chunk.DocumentID) {
			continue
		}
		out = append(out, rc)
	}
	return vectorstore.Rank(out, q.TopK), nil
}

func (s *Store) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if err := s.checkOwner(ctx, documentID, ownerID); err != nil {
		return err
	}
	err := s.collection.Delete(ctx, map[string]string{metaOwner: ownerID, metaDocument: documentID}, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to delete document %s: %v", models.ErrVectorStore, documentID, err)
	}
	return nil
}

// Export writes the collection to filePath, encrypted when encryptionKey is set.
func (s *Store) Export(filePath string, compress bool, encryptionKey string) error {
	if err := s.db.ExportToFile(filePath, compress, encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("%w: failed to export database: %v", models.ErrVectorStore, err)
	}
	return nil
}
