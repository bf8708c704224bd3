package interfaces

import (
	"github.com/ternarybob/respondeo/internal/models"
)

// DocumentStorage persists immutable source documents.
type DocumentStorage interface {
	SaveDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	ListDocuments(limit, offset int) ([]*models.Document, error)
	DeleteDocument(id string) error
	CountDocuments() (int, error)
}

// ChunkStorage persists derived chunks and their embeddings.
type ChunkStorage interface {
	SaveChunks(chunks []*models.Chunk) error
	GetChunk(id string) (*models.Chunk, error)
	GetChunksByDocument(documentID string) ([]*models.Chunk, error)
	ListChunks() ([]*models.Chunk, error)
	DeleteChunksByDocument(documentID string) error
	CountChunks() (int, error)
}

// AnswerCacheStorage persists cached answer records keyed by
// (normalized query, k, mode, index version).
type AnswerCacheStorage interface {
	GetCachedAnswer(key string) (*models.CachedAnswer, error)
	PutCachedAnswer(entry *models.CachedAnswer) error
	PurgeCachedAnswersBefore(indexVersion uint64) error
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	DocumentStorage() DocumentStorage
	ChunkStorage() ChunkStorage
	AnswerCacheStorage() AnswerCacheStorage
	Close() error
}
