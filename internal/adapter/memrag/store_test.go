package memrag

import (
	"context"
	"testing"

	"github.com/planforge/planforge/internal/domain/ingest"
)

func TestStore_AddAndQuery(t *testing.T) {
	s := New("docs", 200)
	ctx := context.Background()

	n, err := s.AddDocument(ctx, ingest.Document{
		ID:      "d1",
		Title:   "Payments guide",
		Content: "The payment gateway retries failed charges twice.\n\nRefunds settle within three business days.",
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if n < 1 {
		t.Fatalf("chunks = %d, want >= 1", n)
	}

	_, err = s.AddDocument(ctx, ingest.Document{
		ID:      "d2",
		Title:   "Auth guide",
		Content: "Tokens expire after one hour. Sessions are bound to a device.",
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	results, err := s.Query(ctx, "how do payment refunds work", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results for matching query")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].SourceRef == "" {
		t.Error("top result missing source ref")
	}
}

func TestStore_QueryNoMatch(t *testing.T) {
	s := New("docs", 200)
	ctx := context.Background()

	if _, err := s.AddDocument(ctx, ingest.Document{ID: "d1", Title: "t", Content: "alpha beta gamma"}); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	results, err := s.Query(ctx, "zzz qqq", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestStore_MaxResultsCap(t *testing.T) {
	s := New("docs", 40)
	ctx := context.Background()

	content := "release notes for the gateway.\n\nrelease notes for the api.\n\nrelease notes for the worker.\n\nrelease notes for the scheduler."
	if _, err := s.AddDocument(ctx, ingest.Document{ID: "d1", Title: "notes", Content: content}); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	results, err := s.Query(ctx, "release notes", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) > 2 {
		t.Errorf("got %d results, want <= 2", len(results))
	}
}

func TestSplitChunks(t *testing.T) {
	chunks := splitChunks("one\n\ntwo\n\nthree", 8)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want >= 2", len(chunks))
	}
	if splitChunks("", 100) != nil && len(splitChunks("", 100)) != 0 {
		t.Error("empty text should yield no chunks")
	}
}
