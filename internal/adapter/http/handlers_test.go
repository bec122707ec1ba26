package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planforge/planforge/internal/adapter/memory"
	"github.com/planforge/planforge/internal/adapter/memrag"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/domain/session"
	"github.com/planforge/planforge/internal/port/inference"
	"github.com/planforge/planforge/internal/port/ragstore"
	"github.com/planforge/planforge/internal/service"
)

// loopExecutor answers every turn with the same scripted run: save a
// refinement document, then finish.
type loopExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *loopExecutor) RunTurn(_ context.Context, _ inference.TurnRequest) (*inference.TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls%2 == 1 {
		return &inference.TurnResult{ToolCall: &inference.ToolCall{
			Name:      service.ToolSetRefinementDoc,
			Arguments: []byte(`{"content": "# Refinement"}`),
		}}, nil
	}
	return &inference.TurnResult{Text: "All artifacts saved. #FINAL_PLAN"}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := slog.Default()
	cfg := config.Defaults()
	cfg.Planner.SessionTimeout = 10 * time.Second

	store := memory.NewStore()
	pub := service.NewPublisher(nil, log)
	eventing := service.NewEventingStore(store, pub)

	registry := ragstore.NewRegistry()
	docs := memrag.New("docs", 400)
	registry.Register(docs)
	if _, err := docs.AddDocument(ctx, ingest.Document{
		ID: "seed", Title: "Payments", Content: "payment gateway retries failed charges twice",
	}); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	artifacts := service.NewArtifactService(eventing, log)
	broker := service.NewRAGBroker(registry, nil, time.Second, log, nil)
	gateway := service.NewToolGateway(eventing, artifacts, broker, log)
	planner := service.NewPlanner(eventing, &loopExecutor{}, gateway, nil, broker, cfg.Planner, log, nil)
	supervisor := service.NewSupervisor(ctx, eventing, planner, pub, cfg.Planner, log, nil)
	ingestion := service.NewIngestionService(ctx, registry, pub, cfg.Ingestion, log, nil)

	h := &Handlers{
		Supervisor: supervisor,
		Artifacts:  artifacts,
		Broker:     broker,
		Ingestion:  ingestion,
		Registry:   registry,
	}

	r := chi.NewRouter()
	MountRoutes(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, nil)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	fields := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&fields)
	return resp, fields
}

func str(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal string from %s: %v", raw, err)
	}
	return s
}

// waitReady polls the session endpoint until the run finishes.
func waitReady(t *testing.T, base, id string) map[string]json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, fields := doJSON(t, http.MethodGet, base+"/api/v1/sessions/"+id, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET session: status %d", resp.StatusCode)
		}
		switch str(t, fields["status"]) {
		case "ready":
			return fields
		case "error":
			t.Fatalf("session failed: %s", fields["errorMessage"])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never became ready")
	return nil
}

func TestAPI_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions",
		`{"issueKey": "PROJ-1", "ragStoreIds": ["docs"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	id := str(t, fields["id"])
	if str(t, fields["status"]) != "pending" {
		t.Errorf("initial status = %s", fields["status"])
	}

	sess := waitReady(t, srv.URL, id)
	if string(sess["refinementContent"]) == "" {
		t.Error("refinement missing after run")
	}

	// Updates from zero return the whole log.
	resp, fields = doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/sessions/"+id+"/updates?lastMessageCount=0", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("updates status = %d", resp.StatusCode)
	}
	var msgs []session.Message
	if err := json.Unmarshal(fields["newMessages"], &msgs); err != nil {
		t.Fatalf("newMessages: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatal("no messages in updates")
	}

	// A caught-up watermark returns an empty delta.
	_, fields = doJSON(t, http.MethodGet,
		srv.URL+fmt.Sprintf("/api/v1/sessions/%s/updates?lastMessageCount=%d", id, len(msgs)), "")
	var hasUpdates bool
	_ = json.Unmarshal(fields["hasUpdates"], &hasUpdates)
	if hasUpdates {
		t.Error("caught-up poll reported updates")
	}

	// Chat follow-up on the ready session.
	resp, fields = doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/chat",
		`{"message": "tighten the acceptance criteria"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d: %s", resp.StatusCode, fields["error"])
	}
	if str(t, fields["agentResponse"]) == "" {
		t.Error("empty agent response")
	}

	// Artifact read.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+id+"/artifacts/refinement", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("artifact status = %d", resp.StatusCode)
	}

	// Delete.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d", resp.StatusCode)
	}
}

func TestAPI_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", `{"issueKey": ""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty issueKey status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sessions/nope/artifacts/bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown stage status = %d", resp.StatusCode)
	}
}

func TestAPI_RAGQueryAndIngest(t *testing.T) {
	srv := newTestServer(t)

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/v1/rag/query",
		`{"ragStoreIds": ["docs"], "query": "payment retries"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d", resp.StatusCode)
	}
	var stores []string
	if err := json.Unmarshal(fields["storesSearched"], &stores); err != nil || len(stores) != 1 {
		t.Errorf("storesSearched = %s", fields["storesSearched"])
	}

	resp, fields = doJSON(t, http.MethodPost, srv.URL+"/api/v1/rag/ingest",
		`{"storeId": "docs", "documents": [{"title": "Runbook", "content": "restart the worker with systemctl"}]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d: %s", resp.StatusCode, fields["error"])
	}
	taskID := str(t, fields["taskId"])

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, fields = doJSON(t, http.MethodGet,
			srv.URL+"/api/v1/rag/ingest/"+taskID+"/progress", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("progress status = %d", resp.StatusCode)
		}
		if s := str(t, fields["status"]); s == string(ingest.StatusCompleted) {
			return
		} else if s == string(ingest.StatusFailed) {
			t.Fatalf("ingestion failed: %s", fields["errorMessage"])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("ingestion never completed")
}

func TestAPI_IngestValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/rag/ingest",
		`{"storeId": "ghost", "documents": [{"content": "x"}]}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown store status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/rag/ingest/nope/progress", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task status = %d", resp.StatusCode)
	}
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, fields := doJSON(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if str(t, fields["status"]) != "ok" {
		t.Errorf("health = %s", fields["status"])
	}
	if str(t, fields["database"]) != "not configured" {
		t.Errorf("database = %s", fields["database"])
	}
}
