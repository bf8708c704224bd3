package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	api "github.com/ternarybob/respondeo/pkg/models"
)

// QueryHandler serves the question answering endpoint.
type QueryHandler struct {
	service  interfaces.QueryService
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewQueryHandler creates a new QueryHandler instance
func NewQueryHandler(service interfaces.QueryService, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// QueryHandler handles POST /api/query. The refusal sentinel is a successful
// 200 response; only caller mistakes and exhausted backends map to errors.
func (h *QueryHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.service.Ask(r.Context(), &interfaces.QueryRequest{
		Query: req.Query,
		K:     req.K,
		Mode:  models.RetrievalMode(req.Mode),
	})
	if err != nil {
		h.writeAskError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *QueryHandler) writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case common.IsValidation(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case common.IsServiceUnavailable(err):
		h.logger.Warn().Err(err).Msg("Query failed on an external dependency")
		WriteError(w, http.StatusServiceUnavailable, "Answer generation is temporarily unavailable")
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		// Client went away; nothing useful to write.
	default:
		h.logger.Error().Err(err).Msg("Query failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func toResponse(record *models.AnswerRecord) *api.QueryResponse {
	sources := make([]api.SourceRef, 0, len(record.Citations))
	for _, c := range record.Citations {
		sources = append(sources, api.SourceRef{
			Title:        c.Title,
			Source:       c.Source,
			Score:        c.Score,
			Offset:       c.Offset,
			ChunkOrdinal: c.Ordinal,
		})
	}
	return &api.QueryResponse{
		Answer:     record.Answer,
		Sources:    sources,
		Prompt:     record.Prompt,
		Confidence: record.Confidence,
	}
}
