// Package issuetracker defines the port for fetching tickets from the
// external issue tracker.
package issuetracker

import (
	"context"

	"github.com/planforge/planforge/internal/domain/issue"
)

// Tracker fetches issue context for planning sessions.
type Tracker interface {
	GetIssue(ctx context.Context, key string) (*issue.Issue, error)
}
