package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/services/index"
)

// StatusHandler reports service health and corpus statistics.
type StatusHandler struct {
	storage interfaces.StorageManager
	idx     *index.Index
	llm     interfaces.LLMService
	started time.Time
	logger  arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler instance
func NewStatusHandler(storage interfaces.StorageManager, idx *index.Index, llm interfaces.LLMService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage: storage,
		idx:     idx,
		llm:     llm,
		started: time.Now(),
		logger:  logger,
	}
}

// GetStatusHandler handles GET /api/status.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	docs, err := h.storage.DocumentStorage().CountDocuments()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count documents")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	chunks, err := h.storage.ChunkStorage().CountChunks()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count chunks")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := map[string]interface{}{
		"version":        common.Version,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"documents":      docs,
		"chunks":         chunks,
		"index_version":  h.idx.Version(),
		"llm_mode":       string(h.llm.GetMode()),
	}
	if snap, err := h.idx.Current(); err == nil {
		status["indexed_chunks"] = snap.Size()
		status["embedding_model"] = snap.Model
	}

	WriteJSON(w, http.StatusOK, status)
}

// HealthHandler handles GET /health.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.llm.HealthCheck(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
