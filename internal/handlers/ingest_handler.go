package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// IngestHandler serves document ingestion.
type IngestHandler struct {
	service interfaces.IngestService
	logger  arbor.ILogger
}

// NewIngestHandler creates a new IngestHandler instance
func NewIngestHandler(service interfaces.IngestService, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		service: service,
		logger:  logger,
	}
}

type ingestRequest struct {
	Documents []models.RawDocument `json:"documents"`
}

// IngestHandler handles POST /api/ingest.
func (h *IngestHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	report, err := h.service.Ingest(r.Context(), req.Documents)
	if err != nil {
		switch {
		case common.IsValidation(err):
			WriteError(w, http.StatusBadRequest, err.Error())
		case common.IsServiceUnavailable(err):
			h.logger.Warn().Err(err).Msg("Ingestion failed on the embedding backend")
			WriteError(w, http.StatusServiceUnavailable, "Embedding is temporarily unavailable")
		default:
			h.logger.Error().Err(err).Msg("Ingestion failed")
			WriteError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// DeleteDocumentHandler handles DELETE /api/documents/{id}. The deleted
// document's chunks leave the index before the response is written.
func (h *IngestHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/documents/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	version, err := h.service.DeleteDocument(r.Context(), id)
	if err != nil {
		switch {
		case common.IsNotFound(err):
			WriteError(w, http.StatusNotFound, "Document not found")
		case common.IsValidation(err):
			WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error().Err(err).Str("document_id", id).Msg("Document deletion failed")
			WriteError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "deleted",
		"document_id":   id,
		"index_version": version,
	})
}

// ReindexHandler handles POST /api/reindex.
func (h *IngestHandler) ReindexHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	version, err := h.service.Reindex(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Reindex failed")
		WriteError(w, http.StatusInternalServerError, "Reindex failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"index_version": version,
	})
}
