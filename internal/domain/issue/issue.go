// Package issue defines the external tracker ticket a session plans against.
package issue

// Link is a typed relation to another ticket.
type Link struct {
	Type         string `json:"type"`
	InwardIssue  string `json:"inwardIssue,omitempty"`
	OutwardIssue string `json:"outwardIssue,omitempty"`
}

// Issue is the fetched ticket context injected into planning turns.
type Issue struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	IssueType   string `json:"issueType,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Links       []Link `json:"links,omitempty"`
}
