// Package ingest defines background document-ingestion tasks. Tasks are
// independent of planning sessions: they load documents into a RAG store and
// expose step-level progress to pollers.
package ingest

import "time"

// Status is the lifecycle state of an ingestion task.
type Status string

// Task statuses. Completed and Failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is one input document for ingestion. Content is used as-is when
// set; otherwise the worker fetches URL.
type Document struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// DocumentOutcome records the per-document result inside a task result.
type DocumentOutcome struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result summarizes a finished task. Failures are enumerated so callers can
// retry only the failed subset.
type Result struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Documents []DocumentOutcome `json:"documents"`
}

// Task is the pollable state of one ingestion job. It is mutated only by the
// worker executing it; pollers receive copies.
type Task struct {
	TaskID         string    `json:"taskId"`
	TargetStoreID  string    `json:"targetStoreId"`
	Status         Status    `json:"status"`
	Progress       float64   `json:"progress"`
	CurrentStep    string    `json:"currentStep,omitempty"`
	ProcessedItems int       `json:"processedItems"`
	TotalItems     int       `json:"totalItems"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	Result         *Result   `json:"result,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// StartRequest is the request body for starting an ingestion task.
type StartRequest struct {
	StoreID   string     `json:"storeId"`
	Documents []Document `json:"documents"`
}
