package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
)

type stubIngestService struct {
	report    *models.IngestReport
	err       error
	version   uint64
	docs      []models.RawDocument
	deletedID string
}

func (s *stubIngestService) Ingest(ctx context.Context, docs []models.RawDocument) (*models.IngestReport, error) {
	s.docs = docs
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func (s *stubIngestService) DeleteDocument(ctx context.Context, id string) (uint64, error) {
	s.deletedID = id
	if s.err != nil {
		return 0, s.err
	}
	return s.version, nil
}

func (s *stubIngestService) Reindex(ctx context.Context) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.version, nil
}

func TestIngestHandlerSuccess(t *testing.T) {
	service := &stubIngestService{report: &models.IngestReport{
		Accepted:     2,
		Rejected:     []models.RejectedDocument{{Title: "bad", Reason: "text is empty"}},
		Chunks:       7,
		IndexVersion: 3,
	}}
	h := NewIngestHandler(service, arbor.NewLogger())

	body := `{"documents": [
		{"title": "Widget History", "text": "Widgets were invented in 1990."},
		{"title": "Gadget Overview", "text": "Gadgets run on batteries."}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var report models.IngestReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 7, report.Chunks)
	assert.Len(t, service.docs, 2)
}

func TestIngestHandlerBadJSON(t *testing.T) {
	h := NewIngestHandler(&stubIngestService{}, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{broken`))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandlerEmptyBatch(t *testing.T) {
	service := &stubIngestService{err: common.NewValidationError("documents", "batch cannot be empty")}
	h := NewIngestHandler(service, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{"documents": []}`))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandlerEmbeddingDown(t *testing.T) {
	service := &stubIngestService{err: &common.StageError{
		Stage:    "embed",
		Attempts: 3,
		Err:      common.ErrEmbeddingService,
	}}
	h := NewIngestHandler(service, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{"documents": [{"title": "x", "text": "y"}]}`))
	w := httptest.NewRecorder()
	h.IngestHandler(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDeleteDocumentHandler(t *testing.T) {
	service := &stubIngestService{version: 4}
	h := NewIngestHandler(service, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/doc-abc", nil)
	w := httptest.NewRecorder()
	h.DeleteDocumentHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-abc", service.deletedID)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "deleted", resp["status"])
	assert.Equal(t, float64(4), resp["index_version"])
}

func TestDeleteDocumentHandlerUnknownID(t *testing.T) {
	service := &stubIngestService{err: common.ErrDocumentNotFound}
	h := NewIngestHandler(service, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/missing", nil)
	w := httptest.NewRecorder()
	h.DeleteDocumentHandler(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocumentHandlerMissingID(t *testing.T) {
	h := NewIngestHandler(&stubIngestService{}, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodDelete, "/api/documents/", nil)
	w := httptest.NewRecorder()
	h.DeleteDocumentHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteDocumentHandlerMethodNotAllowed(t *testing.T) {
	h := NewIngestHandler(&stubIngestService{}, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-abc", nil)
	w := httptest.NewRecorder()
	h.DeleteDocumentHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestReindexHandler(t *testing.T) {
	service := &stubIngestService{version: 9}
	h := NewIngestHandler(service, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/reindex", nil)
	w := httptest.NewRecorder()
	h.ReindexHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, float64(9), resp["index_version"])
}

func TestReindexHandlerMethodNotAllowed(t *testing.T) {
	h := NewIngestHandler(&stubIngestService{}, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/reindex", nil)
	w := httptest.NewRecorder()
	h.ReindexHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
