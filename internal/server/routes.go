package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Query API
	mux.HandleFunc("/api/query", s.app.QueryHandler.QueryHandler) // POST - answer a question

	// Ingestion API
	mux.HandleFunc("/api/ingest", s.app.IngestHandler.IngestHandler)             // POST - ingest a document batch
	mux.HandleFunc("/api/documents/", s.app.IngestHandler.DeleteDocumentHandler) // DELETE /{id} - remove a document
	mux.HandleFunc("/api/reindex", s.app.IngestHandler.ReindexHandler)           // POST - rebuild the index
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)          // GET - corpus and index stats

	// Health
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)

	return mux
}
