// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects published by the orchestration engine. External observers (UI
// bridges, audit consumers) subscribe; the engine itself never depends on a
// subscriber being present.
const (
	SubjectSessionStatus  = "sessions.status"   // session status transitions
	SubjectSessionMessage = "sessions.message"  // appended session messages
	SubjectIngestProgress = "ingest.progress"   // ingestion task progress snapshots
)

// SessionStatusEvent is the payload published on SubjectSessionStatus.
type SessionStatusEvent struct {
	SessionID       string `json:"sessionId"`
	IssueKey        string `json:"issueKey"`
	Status          string `json:"status"`
	ProgressMessage string `json:"progressMessage,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

// SessionMessageEvent is the payload published on SubjectSessionMessage.
type SessionMessageEvent struct {
	SessionID string   `json:"sessionId"`
	MessageID string   `json:"messageId"`
	Seq       int      `json:"seq"`
	Role      string   `json:"role"`
	Actions   []string `json:"actions,omitempty"`
}

// IngestProgressEvent is the payload published on SubjectIngestProgress.
type IngestProgressEvent struct {
	TaskID         string  `json:"taskId"`
	TargetStoreID  string  `json:"targetStoreId"`
	Status         string  `json:"status"`
	Progress       float64 `json:"progress"`
	CurrentStep    string  `json:"currentStep,omitempty"`
	ProcessedItems int     `json:"processedItems"`
	TotalItems     int     `json:"totalItems"`
}
