// Package memrag provides an in-memory retrieval store with lexical
// term-overlap scoring. It backs development and test deployments where no
// external vector database is available.
package memrag

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/domain/rag"
)

type chunk struct {
	docID    string
	docTitle string
	content  string
	terms    map[string]int
}

// Store is an in-memory ragstore.Store implementation.
type Store struct {
	id        string
	chunkSize int

	mu     sync.RWMutex
	chunks []chunk
}

// New creates an empty store with the given identifier. chunkSize is the
// approximate number of characters per indexed chunk.
func New(id string, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	return &Store{id: id, chunkSize: chunkSize}
}

// ID returns the store identifier used in session scopes and ingest targets.
func (s *Store) ID() string { return s.id }

// AddDocument splits the document into chunks and indexes each one,
// returning the number of chunks created.
func (s *Store) AddDocument(_ context.Context, doc ingest.Document) (int, error) {
	parts := splitChunks(doc.Content, s.chunkSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parts {
		s.chunks = append(s.chunks, chunk{
			docID:    doc.ID,
			docTitle: doc.Title,
			content:  p,
			terms:    termFreq(p),
		})
	}
	return len(parts), nil
}

// Query scores every chunk against the query terms and returns the top
// matches in descending score order.
func (s *Store) Query(_ context.Context, query string, maxResults int) ([]rag.Result, error) {
	qTerms := termFreq(query)
	if len(qTerms) == 0 {
		return []rag.Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []rag.Result{}
	for _, c := range s.chunks {
		score := overlapScore(qTerms, c.terms)
		if score <= 0 {
			continue
		}
		results = append(results, rag.Result{
			Content:   c.content,
			SourceRef: s.id + "/" + c.docID + " (" + c.docTitle + ")",
			Score:     score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// splitChunks breaks text on paragraph boundaries, packing paragraphs into
// chunks of roughly size characters. Oversized paragraphs become chunks of
// their own.
func splitChunks(text string, size int) []string {
	paras := strings.Split(text, "\n\n")
	chunks := []string{}
	var cur strings.Builder
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p) > size {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func termFreq(text string) map[string]int {
	freq := map[string]int{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) < 2 {
			continue
		}
		freq[tok]++
	}
	return freq
}

// overlapScore is the fraction of query terms present in the chunk, weighted
// by how often they recur there. It falls in (0, 1] for chunks sharing at
// least one term with the query.
func overlapScore(query, doc map[string]int) float64 {
	matched := 0.0
	for term := range query {
		if n, ok := doc[term]; ok {
			w := 1.0
			if n > 1 {
				w += 0.1
			}
			matched += w
		}
	}
	if matched == 0 {
		return 0
	}
	score := matched / (float64(len(query)) * 1.1)
	if score > 1 {
		score = 1
	}
	return score
}
