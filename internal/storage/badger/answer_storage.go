package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AnswerStorage implements the AnswerCacheStorage interface for Badger
type AnswerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnswerStorage creates a new AnswerStorage instance
func NewAnswerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AnswerCacheStorage {
	return &AnswerStorage{
		db:     db,
		logger: logger,
	}
}

// GetCachedAnswer returns the entry for the key, or nil when absent.
func (s *AnswerStorage) GetCachedAnswer(key string) (*models.CachedAnswer, error) {
	var entry models.CachedAnswer
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached answer: %w", err)
	}
	return &entry, nil
}

func (s *AnswerStorage) PutCachedAnswer(entry *models.CachedAnswer) error {
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to save cached answer: %w", err)
	}
	return nil
}

// PurgeCachedAnswersBefore deletes entries cached against index versions
// older than the given one. Their keys can never be looked up again, so this
// only reclaims space.
func (s *AnswerStorage) PurgeCachedAnswersBefore(indexVersion uint64) error {
	query := badgerhold.Where("IndexVersion").Lt(indexVersion).Index("IndexVersion")
	if err := s.db.Store().DeleteMatching(&models.CachedAnswer{}, query); err != nil {
		return fmt.Errorf("failed to purge cached answers: %w", err)
	}
	return nil
}
