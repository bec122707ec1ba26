package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Sessions
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}", h.GetSession)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Get("/sessions/{id}/updates", h.SessionUpdates)
		r.Post("/sessions/{id}/chat", h.SessionChat)

		// Artifacts
		r.Get("/sessions/{id}/artifacts/{stage}", h.GetArtifact)
		r.Get("/sessions/{id}/epics", h.ListEpics)
		r.Post("/sessions/{id}/plan/patch", h.PatchPlan)

		// RAG
		r.Get("/rag/stores", h.ListRAGStores)
		r.Post("/rag/query", h.RAGQuery)
		r.Post("/rag/ingest", h.StartIngestion)
		r.Get("/rag/ingest/{taskId}/progress", h.IngestionProgress)
		r.Delete("/rag/ingest/{taskId}", h.CancelIngestion)
	})
}
