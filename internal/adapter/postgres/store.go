package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planforge/planforge/internal/domain/session"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Sessions ---

const sessionCols = `id, issue_key, rag_store_ids, status, progress_message, error_message,
	refinement_content, jira_structure, created_at, updated_at`

func scanSession(row scannable) (*session.Session, error) {
	var s session.Session
	var status string
	err := row.Scan(&s.ID, &s.IssueKey, &s.RAGStoreIDs, &status, &s.ProgressMessage,
		&s.ErrorMessage, &s.RefinementContent, &s.JiraStructure, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = session.Status(status)
	return &s, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (issue_key, rag_store_ids, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		sess.IssueKey, pgTextArray(sess.RAGStoreIDs), string(sess.Status),
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, offset, limit int) ([]session.Session, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionCols+` FROM sessions ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []session.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, total, rows.Err()
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status session.Status, progressMsg, errorMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, progress_message = $3, error_message = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, string(status), progressMsg, errorMsg)
	return execExpectOne(tag, err, "update session %s", id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete session %s", id)
}

// --- Messages ---

const messageCols = `id, session_id, seq, role, content, actions, created_at`

func scanMessage(row scannable) (session.Message, error) {
	var m session.Message
	var role string
	err := row.Scan(&m.ID, &m.SessionID, &m.Seq, &role, &m.Content, &m.Actions, &m.CreatedAt)
	m.Role = session.Role(role)
	return m, err
}

func (s *Store) AppendMessage(ctx context.Context, m *session.Message) (*session.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("append message: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the session row so the next seq assignment is gap-free under
	// concurrent appends, and fail fast on missing sessions.
	var exists bool
	err = tx.QueryRow(ctx, `SELECT true FROM sessions WHERE id = $1 FOR UPDATE`, m.SessionID).Scan(&exists)
	if err != nil {
		return nil, notFoundWrap(err, "append message: session %s", m.SessionID)
	}

	stored := *m
	err = tx.QueryRow(ctx,
		`INSERT INTO session_messages (session_id, seq, role, content, actions)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4 FROM session_messages WHERE session_id = $1
		 RETURNING id, seq, created_at`,
		m.SessionID, string(m.Role), m.Content, pgTextArray(m.Actions),
	).Scan(&stored.ID, &stored.Seq, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, m.SessionID); err != nil {
		return nil, fmt.Errorf("append message: touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("append message: commit: %w", err)
	}
	return &stored, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM session_messages WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []session.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Store) UpdatesSince(ctx context.Context, sessionID string, afterSeq int) (*session.Session, []session.Message, int, error) {
	// Repeatable read so status, total count, and log tail all come from
	// one snapshot; under read committed each statement would snapshot
	// separately and a concurrent append could tear count against tail.
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("updates: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, nil, 0, notFoundWrap(err, "updates for session %s", sessionID)
	}

	var total int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = $1`, sessionID).Scan(&total); err != nil {
		return nil, nil, 0, fmt.Errorf("updates: count: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+messageCols+` FROM session_messages WHERE session_id = $1 AND seq > $2 ORDER BY seq ASC`,
		sessionID, afterSeq)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("updates: query: %w", err)
	}
	defer rows.Close()

	delta := []session.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("updates: scan: %w", err)
		}
		delta = append(delta, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, 0, fmt.Errorf("updates: commit: %w", err)
	}
	return sess, delta, total, nil
}
