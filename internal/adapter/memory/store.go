// Package memory implements the database store port entirely in memory.
// It backs development mode (no DSN configured) and the service test suite.
// A single store-wide mutex gives every method snapshot consistency; per
// session write serialization is layered on top by the services.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/session"
)

// Store is an in-memory database.Store implementation.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	messages  map[string][]session.Message          // sessionID -> append-only log
	artifacts map[string]map[artifact.Stage]artifact.Artifact // sessionID -> stage -> blob
	plans     map[string]*plan.Plan                 // sessionID -> normalized plan
	now       func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*session.Session),
		messages:  make(map[string][]session.Message),
		artifacts: make(map[string]map[artifact.Stage]artifact.Artifact),
		plans:     make(map[string]*plan.Plan),
		now:       time.Now,
	}
}

func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("create session %s: already exists: %w", sess.ID, domain.ErrValidation)
	}
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	stored := cloneSession(sess)
	s.sessions[sess.ID] = stored
	s.artifacts[sess.ID] = make(map[artifact.Stage]artifact.Artifact)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrNotFound)
	}
	return cloneSession(sess), nil
}

func (s *Store) ListSessions(_ context.Context, offset, limit int) ([]session.Session, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, *cloneSession(sess))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []session.Session{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, id string, status session.Status, progressMsg, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("update session %s: %w", id, domain.ErrNotFound)
	}
	sess.Status = status
	sess.ProgressMessage = progressMsg
	sess.ErrorMessage = errorMsg
	sess.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("delete session %s: %w", id, domain.ErrNotFound)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	delete(s.artifacts, id)
	delete(s.plans, id)
	return nil
}

func (s *Store) AppendMessage(_ context.Context, m *session.Message) (*session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[m.SessionID]
	if !ok {
		return nil, fmt.Errorf("append message: session %s: %w", m.SessionID, domain.ErrNotFound)
	}

	stored := *m
	stored.ID = uuid.NewString()
	stored.Seq = len(s.messages[m.SessionID]) + 1
	stored.CreatedAt = s.now()
	if stored.Actions != nil {
		stored.Actions = append([]string(nil), stored.Actions...)
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], stored)
	sess.UpdatedAt = stored.CreatedAt

	out := stored
	return &out, nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("list messages: session %s: %w", sessionID, domain.ErrNotFound)
	}
	return cloneMessages(s.messages[sessionID]), nil
}

func (s *Store) UpdatesSince(_ context.Context, sessionID string, afterSeq int) (*session.Session, []session.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, 0, fmt.Errorf("updates for session %s: %w", sessionID, domain.ErrNotFound)
	}

	log := s.messages[sessionID]
	total := len(log)
	var delta []session.Message
	if afterSeq < total {
		if afterSeq < 0 {
			afterSeq = 0
		}
		delta = cloneMessages(log[afterSeq:])
	} else {
		delta = []session.Message{}
	}
	return cloneSession(sess), delta, total, nil
}

func (s *Store) GetArtifact(_ context.Context, sessionID string, stage artifact.Stage) (*artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stages, ok := s.artifacts[sessionID]
	if !ok {
		return nil, fmt.Errorf("get artifact: session %s: %w", sessionID, domain.ErrNotFound)
	}
	a, ok := stages[stage]
	if !ok {
		return nil, fmt.Errorf("get artifact %s/%s: %w", sessionID, stage, domain.ErrNotFound)
	}
	out := a
	return &out, nil
}

func (s *Store) SetArtifact(_ context.Context, sessionID string, stage artifact.Stage, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("set artifact: session %s: %w", sessionID, domain.ErrNotFound)
	}
	now := s.now()
	s.artifacts[sessionID][stage] = artifact.Artifact{
		SessionID: sessionID,
		Stage:     stage,
		Content:   content,
		UpdatedAt: now,
	}
	switch stage {
	case artifact.StageRefinement:
		sess.RefinementContent = content
	case artifact.StageJiras:
		sess.JiraStructure = content
	}
	sess.UpdatedAt = now
	return nil
}

func (s *Store) ListEpics(_ context.Context, sessionID string) ([]plan.Epic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("list epics: session %s: %w", sessionID, domain.ErrNotFound)
	}
	p, ok := s.plans[sessionID]
	if !ok {
		return []plan.Epic{}, nil
	}
	return p.Clone().Epics, nil
}

func (s *Store) ReplaceJiraPlan(_ context.Context, sessionID string, p *plan.Plan, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("replace plan: session %s: %w", sessionID, domain.ErrNotFound)
	}
	now := s.now()
	s.plans[sessionID] = p.Clone()
	s.artifacts[sessionID][artifact.StageJiras] = artifact.Artifact{
		SessionID: sessionID,
		Stage:     artifact.StageJiras,
		Content:   raw,
		UpdatedAt: now,
	}
	sess.JiraStructure = raw
	sess.UpdatedAt = now
	return nil
}

// cloneSession copies a session without its message log.
func cloneSession(sess *session.Session) *session.Session {
	out := *sess
	out.RAGStoreIDs = append([]string(nil), sess.RAGStoreIDs...)
	out.Messages = nil
	return &out
}

func cloneMessages(in []session.Message) []session.Message {
	out := make([]session.Message, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Actions != nil {
			out[i].Actions = append([]string(nil), out[i].Actions...)
		}
	}
	return out
}
