package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/answers"
	"github.com/ternarybob/respondeo/internal/services/chunker"
	"github.com/ternarybob/respondeo/internal/services/index"
)

// Ingester accepts document batches, chunks and embeds them, persists the
// results and publishes a fresh index snapshot. Invalid documents are
// rejected individually; one bad document never fails the batch.
type Ingester struct {
	chunker  *chunker.Service
	embedder interfaces.EmbeddingService
	builder  *index.Builder
	idx      *index.Index
	storage  interfaces.StorageManager
	cache    *answers.Cache
	validate *validator.Validate
	logger   arbor.ILogger

	reindexMu sync.Mutex
}

// NewIngester wires the ingestion stages together.
func NewIngester(
	chunkerSvc *chunker.Service,
	embedder interfaces.EmbeddingService,
	builder *index.Builder,
	idx *index.Index,
	storage interfaces.StorageManager,
	cache *answers.Cache,
	logger arbor.ILogger,
) *Ingester {
	return &Ingester{
		chunker:  chunkerSvc,
		embedder: embedder,
		builder:  builder,
		idx:      idx,
		storage:  storage,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
	}
}

// Ingest processes one batch: validate, clean, chunk, embed, persist, then
// rebuild and atomically swap the index. Queries running during the swap
// finish against the previous snapshot.
func (s *Ingester) Ingest(ctx context.Context, docs []models.RawDocument) (*models.IngestReport, error) {
	if len(docs) == 0 {
		return nil, common.NewValidationError("documents", "batch cannot be empty")
	}

	report := &models.IngestReport{
		Rejected: make([]models.RejectedDocument, 0),
	}

	var pending []*models.Document
	for i := range docs {
		doc, reason := s.prepare(&docs[i])
		if reason != "" {
			report.Rejected = append(report.Rejected, models.RejectedDocument{
				Title:  docs[i].Title,
				Reason: reason,
			})
			continue
		}
		pending = append(pending, doc)
	}

	if len(pending) == 0 {
		return nil, common.NewValidationError("documents", "no valid documents in batch")
	}

	for _, doc := range pending {
		chunks, err := s.chunker.Split(doc)
		if err != nil {
			return nil, fmt.Errorf("chunking document %s: %w", doc.ID, err)
		}
		if len(chunks) == 0 {
			report.Rejected = append(report.Rejected, models.RejectedDocument{
				Title:  doc.Title,
				Reason: "document is empty after boilerplate stripping",
			})
			continue
		}

		if err := s.embedChunks(ctx, chunks); err != nil {
			return nil, err
		}

		if err := s.storage.DocumentStorage().SaveDocument(doc); err != nil {
			return nil, fmt.Errorf("saving document %s: %w", doc.ID, err)
		}
		if err := s.storage.ChunkStorage().SaveChunks(chunks); err != nil {
			return nil, fmt.Errorf("saving chunks for document %s: %w", doc.ID, err)
		}

		report.Accepted++
		report.Chunks += len(chunks)
	}

	if report.Accepted == 0 {
		return nil, common.NewValidationError("documents", "no document produced any chunks")
	}

	version, err := s.Reindex(ctx)
	if err != nil {
		return nil, err
	}
	report.IndexVersion = version

	s.logger.Info().
		Int("accepted", report.Accepted).
		Int("rejected", len(report.Rejected)).
		Int("chunks", report.Chunks).
		Int64("index_version", int64(version)).
		Msg("Ingestion batch complete")

	return report, nil
}

// DeleteDocument removes one document and its chunks from the corpus and
// rebuilds the index so the next query cannot retrieve the deleted content.
func (s *Ingester) DeleteDocument(ctx context.Context, id string) (uint64, error) {
	if strings.TrimSpace(id) == "" {
		return 0, common.NewValidationError("id", "document id cannot be empty")
	}

	doc, err := s.storage.DocumentStorage().GetDocument(id)
	if err != nil {
		return 0, err
	}

	if err := s.storage.ChunkStorage().DeleteChunksByDocument(id); err != nil {
		return 0, fmt.Errorf("deleting chunks for document %s: %w", id, err)
	}
	if err := s.storage.DocumentStorage().DeleteDocument(id); err != nil {
		return 0, fmt.Errorf("deleting document %s: %w", id, err)
	}

	version, err := s.Reindex(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("document_id", id).
		Str("title", doc.Title).
		Int64("index_version", int64(version)).
		Msg("Document deleted")

	return version, nil
}

// Reindex rebuilds the snapshot from everything persisted and swaps it in.
// Serialized so overlapping rebuilds cannot publish out of order.
func (s *Ingester) Reindex(ctx context.Context) (uint64, error) {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	docPtrs, err := s.storage.DocumentStorage().ListDocuments(0, 0)
	if err != nil {
		return 0, fmt.Errorf("listing documents for reindex: %w", err)
	}
	chunkPtrs, err := s.storage.ChunkStorage().ListChunks()
	if err != nil {
		return 0, fmt.Errorf("listing chunks for reindex: %w", err)
	}

	documents := make([]models.Document, len(docPtrs))
	for i, d := range docPtrs {
		documents[i] = *d
	}
	chunks := make([]models.Chunk, len(chunkPtrs))
	for i, c := range chunkPtrs {
		chunks[i] = *c
	}

	snap, err := s.builder.Build(documents, chunks)
	if err != nil {
		return 0, err
	}
	s.idx.Swap(snap)

	if err := s.cache.Purge(snap.Version); err != nil {
		s.logger.Warn().Err(err).Msg("Cache purge after reindex failed")
	}

	return snap.Version, nil
}

// prepare validates one raw document and resolves its text, converting and
// cleaning HTML submissions. Returns a rejection reason for invalid input.
func (s *Ingester) prepare(raw *models.RawDocument) (*models.Document, string) {
	if err := s.validate.Struct(raw); err != nil {
		return nil, fmt.Sprintf("invalid document: %v", err)
	}

	text := raw.Text
	if text == "" && raw.HTML != "" {
		cleaned, err := chunker.CleanHTML(raw.HTML)
		if err != nil {
			return nil, fmt.Sprintf("html conversion failed: %v", err)
		}
		text = cleaned
	}
	if strings.TrimSpace(text) == "" {
		return nil, "document has no text content"
	}

	return &models.Document{
		ID:         common.NewDocumentID(),
		Title:      raw.Title,
		Source:     raw.Source,
		Text:       text,
		Metadata:   raw.Metadata,
		IngestedAt: time.Now(),
	}, ""
}

func (s *Ingester) embedChunks(ctx context.Context, chunks []*models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	model := s.embedder.ModelName()
	for i, c := range chunks {
		c.Embedding = vectors[i]
		c.Model = model
	}
	return nil
}
