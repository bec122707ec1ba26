package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/planforge/planforge/internal/adapter/otel"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/rag"
	"github.com/planforge/planforge/internal/port/cache"
	"github.com/planforge/planforge/internal/port/ragstore"
)

const defaultMaxResults = 10

// RAGBroker fans a query out over the requested knowledge stores and merges
// the answers into one ranked list. Stores that are not registered are
// skipped; an empty scope short-circuits without touching any store.
type RAGBroker struct {
	registry *ragstore.Registry
	cache    cache.Cache
	ttl      time.Duration
	log      *slog.Logger
	metrics  *otel.Metrics
}

// NewRAGBroker creates a broker. cache may be nil to disable result caching;
// metrics may be nil to disable instrument updates.
func NewRAGBroker(registry *ragstore.Registry, c cache.Cache, ttl time.Duration,
	log *slog.Logger, metrics *otel.Metrics) *RAGBroker {
	return &RAGBroker{registry: registry, cache: c, ttl: ttl, log: log, metrics: metrics}
}

// Query answers a scoped retrieval query.
func (b *RAGBroker) Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrValidation)
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}

	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.RAGQueryDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	if len(req.RAGStoreIDs) == 0 {
		return &rag.QueryResult{
			Results:        []rag.Result{},
			StoresSearched: []string{},
			QueryTimeMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	key := queryKey(req)
	if cached := b.cacheGet(ctx, key); cached != nil {
		cached.QueryTimeMs = time.Since(start).Milliseconds()
		return cached, nil
	}

	type storeAnswer struct {
		id      string
		results []rag.Result
		err     error
	}

	answers := make([]storeAnswer, len(req.RAGStoreIDs))
	var wg sync.WaitGroup
	for i, id := range req.RAGStoreIDs {
		store, ok := b.registry.Get(id)
		if !ok {
			b.log.Warn("rag store not registered, skipping", "store_id", id)
			continue
		}
		wg.Add(1)
		go func(i int, id string, store ragstore.Store) {
			defer wg.Done()
			results, err := store.Query(ctx, req.Query, req.MaxResults)
			answers[i] = storeAnswer{id: id, results: results, err: err}
		}(i, id, store)
	}
	wg.Wait()

	merged := []rag.Result{}
	searched := []string{}
	for _, a := range answers {
		if a.id == "" {
			continue
		}
		if a.err != nil {
			b.log.Warn("rag store query failed, skipping", "store_id", a.id, "error", a.err)
			continue
		}
		searched = append(searched, a.id)
		merged = append(merged, a.results...)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	total := len(merged)
	if len(merged) > req.MaxResults {
		merged = merged[:req.MaxResults]
	}

	out := &rag.QueryResult{
		Results:        merged,
		TotalFound:     total,
		StoresSearched: searched,
		QueryTimeMs:    time.Since(start).Milliseconds(),
	}
	b.cacheSet(ctx, key, out)
	return out, nil
}

func queryKey(req rag.QueryRequest) string {
	ids := append([]string(nil), req.RAGStoreIDs...)
	sort.Strings(ids)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s", strings.Join(ids, ","), req.MaxResults, req.Query)
	return "ragq:" + hex.EncodeToString(h.Sum(nil))
}

func (b *RAGBroker) cacheGet(ctx context.Context, key string) *rag.QueryResult {
	if b.cache == nil {
		return nil
	}
	data, ok, err := b.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var out rag.QueryResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

func (b *RAGBroker) cacheSet(ctx context.Context, key string, res *rag.QueryResult) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, data, b.ttl); err != nil {
		b.log.Warn("rag cache set failed", "error", err)
	}
}
