// Package ragstore defines the port for retrieval-augmented-generation
// knowledge stores and the registry that resolves them by id. Embedding and
// search internals are the store's concern; the engine only sees scoped
// queries and document ingestion.
package ragstore

import (
	"context"
	"sync"

	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/domain/rag"
)

// Store is one knowledge store. Scoring is store-defined; results are
// returned in descending score order.
type Store interface {
	// ID returns the unique store identifier.
	ID() string

	// Query returns up to maxResults chunks relevant to the query text.
	Query(ctx context.Context, query string, maxResults int) ([]rag.Result, error)

	// AddDocument chunks, embeds, and indexes one document, returning the
	// number of chunks stored.
	AddDocument(ctx context.Context, doc ingest.Document) (int, error)
}

// Registry resolves stores by id. Registration happens at startup; lookups
// are concurrent.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
}

// NewRegistry creates an empty store registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

// Register adds a store under its own id, replacing any previous entry.
func (r *Registry) Register(s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.ID()] = s
}

// Get returns the store with the given id.
func (r *Registry) Get(id string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	return s, ok
}

// IDs returns the ids of all registered stores.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	return ids
}
