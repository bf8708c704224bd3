package answers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// Cache is the answer cache over persistent storage. Keys incorporate the
// index version, so every reindex implicitly invalidates all prior entries;
// Purge exists only to reclaim space from the unreachable ones.
type Cache struct {
	storage interfaces.AnswerCacheStorage
	logger  arbor.ILogger
}

// NewCache creates the answer cache.
func NewCache(storage interfaces.AnswerCacheStorage, logger arbor.ILogger) *Cache {
	return &Cache{storage: storage, logger: logger}
}

// Key derives the cache key for a query. The query is normalized (trimmed,
// lowercased, whitespace collapsed) so trivially different spellings of the
// same question share an entry.
func Key(query string, k int, mode models.RetrievalMode, indexVersion uint64) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%d", normalized, k, mode, indexVersion)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached record for the key, or nil on a miss. Storage
// errors degrade to a miss; the pipeline recomputes rather than failing.
func (c *Cache) Get(query string, k int, mode models.RetrievalMode, indexVersion uint64) *models.AnswerRecord {
	key := Key(query, k, mode, indexVersion)
	entry, err := c.storage.GetCachedAnswer(key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Answer cache read failed")
		return nil
	}
	if entry == nil {
		return nil
	}
	c.logger.Debug().
		Str("key", key[:12]).
		Int64("index_version", int64(indexVersion)).
		Msg("Answer cache hit")
	record := entry.Record
	return &record
}

// Put stores a completed answer record. Only called with fully verified
// records; failed pipelines never reach here, so the cache holds no partial
// results.
func (c *Cache) Put(record *models.AnswerRecord) error {
	entry := &models.CachedAnswer{
		Key:          Key(record.Query, record.K, record.Mode, record.IndexVersion),
		IndexVersion: record.IndexVersion,
		Record:       *record,
		CreatedAt:    time.Now(),
	}
	if err := c.storage.PutCachedAnswer(entry); err != nil {
		return fmt.Errorf("caching answer: %w", err)
	}
	return nil
}

// Purge deletes entries cached against index versions older than the given
// one.
func (c *Cache) Purge(currentVersion uint64) error {
	if err := c.storage.PurgeCachedAnswersBefore(currentVersion); err != nil {
		return fmt.Errorf("purging answer cache: %w", err)
	}
	c.logger.Info().
		Int64("current_version", int64(currentVersion)).
		Msg("Purged stale cached answers")
	return nil
}
