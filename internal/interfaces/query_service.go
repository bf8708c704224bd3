package interfaces

import (
	"context"

	"github.com/ternarybob/respondeo/internal/models"
)

// QueryRequest carries one query through the pipeline.
type QueryRequest struct {
	Query string
	K     int                  // 0 means the configured default
	Mode  models.RetrievalMode // empty means the configured default
}

// QueryService answers natural-language questions against the ingested
// corpus. The evaluation harness and the HTTP layer both consume this
// contract and nothing below it.
type QueryService interface {
	Ask(ctx context.Context, req *QueryRequest) (*models.AnswerRecord, error)
}

// IngestService accepts raw document batches, removes documents, and
// rebuilds the index.
type IngestService interface {
	Ingest(ctx context.Context, docs []models.RawDocument) (*models.IngestReport, error)

	// DeleteDocument removes one document and its chunks, then rebuilds the
	// index. Returns the new index version.
	DeleteDocument(ctx context.Context, id string) (uint64, error)

	// Reindex rebuilds the full index from persisted chunks and installs the
	// new snapshot atomically.
	Reindex(ctx context.Context) (uint64, error)
}
