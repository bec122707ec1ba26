package http

import (
	"net/http"

	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/rag"
	"github.com/planforge/planforge/internal/domain/session"
	"github.com/planforge/planforge/internal/port/ragstore"
	"github.com/planforge/planforge/internal/service"
)

// Handlers bundles the services the API exposes.
type Handlers struct {
	Supervisor *service.Supervisor
	Artifacts  *service.ArtifactService
	Broker     *service.RAGBroker
	Ingestion  *service.IngestionService
	Registry   *ragstore.Registry

	// Health probes. Nil funcs report the backend as not configured.
	DBPing    func() error
	NATSAlive func() bool
}

// --- Sessions ---

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[session.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	sess, err := h.Supervisor.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	page, err := h.Supervisor.List(r.Context(),
		queryInt(r, "page", 1), queryInt(r, "pageSize", 0))
	if err != nil {
		writeDomainError(w, err, "sessions not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Supervisor.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Supervisor.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) SessionUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.Supervisor.Updates(r.Context(), urlParam(r, "id"),
		queryInt(r, "lastMessageCount", 0))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, updates)
}

func (h *Handlers) SessionChat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[session.ChatRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	resp, err := h.Supervisor.SendChat(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Artifacts ---

func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.Artifacts.GetStage(r.Context(), urlParam(r, "id"),
		artifact.Stage(urlParam(r, "stage")))
	if err != nil {
		writeDomainError(w, err, "artifact not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) ListEpics(w http.ResponseWriter, r *http.Request) {
	epics, err := h.Artifacts.ListEpics(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epics": epics})
}

func (h *Handlers) PatchPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Ops []plan.PatchOp `json:"ops"`
	}](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	p, err := h.Artifacts.PatchJiraPlan(r.Context(), urlParam(r, "id"), req.Ops)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- RAG ---

func (h *Handlers) RAGQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[rag.QueryRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	res, err := h.Broker.Query(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "store not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) ListRAGStores(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stores": h.Registry.IDs()})
}

func (h *Handlers) StartIngestion(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[ingest.StartRequest](w, r, 16<<20)
	if !ok {
		return
	}
	task, err := h.Ingestion.Start(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "store not found")
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (h *Handlers) IngestionProgress(w http.ResponseWriter, r *http.Request) {
	task, err := h.Ingestion.Get(urlParam(r, "taskId"))
	if err != nil {
		writeDomainError(w, err, "ingestion task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handlers) CancelIngestion(w http.ResponseWriter, r *http.Request) {
	if err := h.Ingestion.Cancel(urlParam(r, "taskId")); err != nil {
		writeDomainError(w, err, "ingestion task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	db := "not configured"
	if h.DBPing != nil {
		db = "ok"
		if err := h.DBPing(); err != nil {
			db = "unreachable"
		}
	}
	nats := "not configured"
	if h.NATSAlive != nil {
		nats = "ok"
		if !h.NATSAlive() {
			nats = "disconnected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"database": db,
		"nats":     nats,
	})
}
