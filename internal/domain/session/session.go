// Package session defines the planning session aggregate: one planning
// attempt for one issue key, with its status, message log, and denormalized
// artifact snapshots.
package session

import "time"

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Session is one planning attempt for one issue key. IssueKey and
// RAGStoreIDs are immutable after creation.
type Session struct {
	ID              string    `json:"id"`
	IssueKey        string    `json:"issueKey"`
	RAGStoreIDs     []string  `json:"ragStoreIds"`
	Status          Status    `json:"status"`
	ProgressMessage string    `json:"progressMessage,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	// Latest artifact snapshots, denormalized for fast read.
	RefinementContent string    `json:"refinementContent,omitempty"`
	JiraStructure     string    `json:"jiraStructure,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// Messages is populated on full reads (GetSession), not on list reads.
	Messages []Message `json:"messages,omitempty"`
}

// Message is one immutable entry in a session's activity log. Seq is a
// 1-based, gap-free index within the session and is the polling watermark.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Actions   []string  `json:"actions,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// CreateRequest is the request body for creating a session.
type CreateRequest struct {
	IssueKey           string   `json:"issueKey"`
	RAGStoreIDs        []string `json:"ragStoreIds"`
	ExistingRefinement string   `json:"existingRefinement,omitempty"`
}

// Updates is the polling delta returned by updatesSince.
type Updates struct {
	Session       *Session  `json:"session"`
	NewMessages   []Message `json:"newMessages"`
	TotalMessages int       `json:"totalMessages"`
	HasUpdates    bool      `json:"hasUpdates"`
}

// ChatRequest is the request body for a chat follow-up on a ready session.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the result of a chat follow-up turn.
type ChatResponse struct {
	MessageID      string   `json:"messageId"`
	AgentMessageID string   `json:"agentMessageId"`
	AgentResponse  string   `json:"agentResponse"`
	ActionsTaken   []string `json:"actionsTaken"`
}

// Page is one page of a session listing.
type Page struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}
