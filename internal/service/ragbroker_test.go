package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/planforge/planforge/internal/adapter/otel"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/domain/rag"
	"github.com/planforge/planforge/internal/port/ragstore"
)

// mockRAGStore serves canned results and counts queries.
type mockRAGStore struct {
	id      string
	results []rag.Result
	err     error
	queries atomic.Int64
}

func (m *mockRAGStore) ID() string { return m.id }

func (m *mockRAGStore) Query(_ context.Context, _ string, maxResults int) ([]rag.Result, error) {
	m.queries.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) > maxResults {
		return m.results[:maxResults], nil
	}
	return m.results, nil
}

func (m *mockRAGStore) AddDocument(_ context.Context, _ ingest.Document) (int, error) {
	return 1, nil
}

// mapCache is a trivial cache.Cache for tests.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestRAGBroker_EmptyScope(t *testing.T) {
	b := NewRAGBroker(ragstore.NewRegistry(), nil, time.Second, slog.Default(), nil)

	res, err := b.Query(context.Background(), rag.QueryRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Results) != 0 || len(res.StoresSearched) != 0 {
		t.Errorf("empty scope result = %+v", res)
	}
}

func TestRAGBroker_EmptyQuery(t *testing.T) {
	b := NewRAGBroker(ragstore.NewRegistry(), nil, time.Second, slog.Default(), nil)

	_, err := b.Query(context.Background(), rag.QueryRequest{RAGStoreIDs: []string{"a"}, Query: "  "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRAGBroker_MergeAndRank(t *testing.T) {
	reg := ragstore.NewRegistry()
	reg.Register(&mockRAGStore{id: "a", results: []rag.Result{
		{Content: "low", SourceRef: "a/1", Score: 0.2},
		{Content: "high", SourceRef: "a/2", Score: 0.9},
	}})
	reg.Register(&mockRAGStore{id: "b", results: []rag.Result{
		{Content: "mid", SourceRef: "b/1", Score: 0.5},
	}})
	b := NewRAGBroker(reg, nil, time.Second, slog.Default(), nil)

	res, err := b.Query(context.Background(), rag.QueryRequest{
		RAGStoreIDs: []string{"a", "b", "ghost"},
		Query:       "ranking",
		MaxResults:  2,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.StoresSearched) != 2 {
		t.Errorf("stores searched = %v, want a and b only", res.StoresSearched)
	}
	if res.TotalFound != 3 {
		t.Errorf("total = %d, want 3", res.TotalFound)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d, want capped at 2", len(res.Results))
	}
	if res.Results[0].SourceRef != "a/2" || res.Results[1].SourceRef != "b/1" {
		t.Errorf("ranking wrong: %+v", res.Results)
	}
}

func TestRAGBroker_FailingStoreSkipped(t *testing.T) {
	reg := ragstore.NewRegistry()
	reg.Register(&mockRAGStore{id: "ok", results: []rag.Result{{Content: "x", SourceRef: "ok/1", Score: 0.4}}})
	reg.Register(&mockRAGStore{id: "broken", err: errors.New("index offline")})
	b := NewRAGBroker(reg, nil, time.Second, slog.Default(), nil)

	res, err := b.Query(context.Background(), rag.QueryRequest{
		RAGStoreIDs: []string{"ok", "broken"},
		Query:       "resilience",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.StoresSearched) != 1 || res.StoresSearched[0] != "ok" {
		t.Errorf("stores searched = %v", res.StoresSearched)
	}
	if len(res.Results) != 1 {
		t.Errorf("results = %d, want 1", len(res.Results))
	}
}

func TestRAGBroker_RecordsQueryDuration(t *testing.T) {
	metrics, err := otel.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	reg := ragstore.NewRegistry()
	reg.Register(&mockRAGStore{id: "a", results: []rag.Result{{Content: "x", SourceRef: "a/1", Score: 0.7}}})
	b := NewRAGBroker(reg, nil, time.Second, slog.Default(), metrics)

	// Every exit path records the duration instrument.
	if _, err := b.Query(context.Background(), rag.QueryRequest{RAGStoreIDs: []string{"a"}, Query: "timed"}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, err := b.Query(context.Background(), rag.QueryRequest{Query: "empty scope"}); err != nil {
		t.Fatalf("Query: %v", err)
	}
}

func TestRAGBroker_CacheHit(t *testing.T) {
	store := &mockRAGStore{id: "a", results: []rag.Result{{Content: "x", SourceRef: "a/1", Score: 0.7}}}
	reg := ragstore.NewRegistry()
	reg.Register(store)
	b := NewRAGBroker(reg, newMapCache(), time.Minute, slog.Default(), nil)

	req := rag.QueryRequest{RAGStoreIDs: []string{"a"}, Query: "cached question"}
	if _, err := b.Query(context.Background(), req); err != nil {
		t.Fatalf("Query: %v", err)
	}
	res, err := b.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if store.queries.Load() != 1 {
		t.Errorf("store queried %d times, want 1 (second served from cache)", store.queries.Load())
	}
	if len(res.Results) != 1 {
		t.Errorf("cached results = %d", len(res.Results))
	}
}
