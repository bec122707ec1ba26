// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/session"
)

// Store is the port interface for durable session, message, and artifact
// persistence. All writes are scoped to one session; serialization of writers
// within a session is the caller's responsibility, but every individual method
// is atomic and readers always observe a consistent snapshot.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *session.Session) error
	// GetSession returns the session without its message log.
	GetSession(ctx context.Context, id string) (*session.Session, error)
	// ListSessions returns one page ordered by creation time descending,
	// plus the total count.
	ListSessions(ctx context.Context, offset, limit int) ([]session.Session, int, error)
	// UpdateSessionStatus sets status, progress and error messages, and
	// advances UpdatedAt.
	UpdateSessionStatus(ctx context.Context, id string, status session.Status, progressMsg, errorMsg string) error
	// DeleteSession removes the session and all owned messages and artifacts.
	DeleteSession(ctx context.Context, id string) error

	// Messages
	// AppendMessage assigns the message id and the next gap-free Seq for its
	// session and persists it. The message log is append-only.
	AppendMessage(ctx context.Context, m *session.Message) (*session.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]session.Message, error)
	// UpdatesSince returns the session, the messages with Seq > afterSeq,
	// and the total message count, all from one consistent snapshot. An
	// afterSeq beyond the total yields an empty delta, not an error.
	UpdatesSince(ctx context.Context, sessionID string, afterSeq int) (*session.Session, []session.Message, int, error)

	// Artifacts
	GetArtifact(ctx context.Context, sessionID string, stage artifact.Stage) (*artifact.Artifact, error)
	// SetArtifact overwrites the raw blob for one stage and refreshes the
	// session's denormalized snapshot of that stage in the same transaction.
	SetArtifact(ctx context.Context, sessionID string, stage artifact.Stage, content string) error
	// ListEpics returns the normalized plan entities with nested stories.
	ListEpics(ctx context.Context, sessionID string) ([]plan.Epic, error)
	// ReplaceJiraPlan replaces the normalized epics/stories, the raw jiras
	// snapshot, and the session's denormalized snapshot in one transaction.
	ReplaceJiraPlan(ctx context.Context, sessionID string, p *plan.Plan, raw string) error
}
