// Package rag defines retrieval query requests and merged results served by
// the RAG context broker.
package rag

// Result is one retrieved chunk. Score is store-defined; the broker only
// guarantees descending order within a merged result list.
type Result struct {
	Content   string  `json:"content"`
	SourceRef string  `json:"sourceRef"`
	Score     float64 `json:"score"`
}

// QueryRequest is the request body for a scoped retrieval query.
type QueryRequest struct {
	RAGStoreIDs []string `json:"ragStoreIds"`
	Query       string   `json:"query"`
	MaxResults  int      `json:"maxResults,omitempty"`
}

// QueryResult is the merged, ranked answer to a scoped query. StoresSearched
// lists only the requested stores that actually answered; missing stores are
// skipped, not fatal.
type QueryResult struct {
	Results        []Result `json:"results"`
	TotalFound     int      `json:"totalFound"`
	StoresSearched []string `json:"storesSearched"`
	QueryTimeMs    int64    `json:"queryTimeMs"`
}
