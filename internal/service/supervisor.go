package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/planforge/planforge/internal/adapter/otel"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/session"
	"github.com/planforge/planforge/internal/port/database"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Supervisor owns the session lifecycle: creation, background planning runs,
// polling, chat follow-ups, and deletion. One run or chat exchange executes
// per session at a time; the per-session lock serializes them.
type Supervisor struct {
	store   database.Store
	planner *Planner
	pub     *Publisher
	cfg     config.Planner
	log     *slog.Logger
	metrics *otel.Metrics
	locks   *keyedMutex

	// baseCtx outlives request contexts so planning runs survive the
	// request that started them.
	baseCtx context.Context
}

// NewSupervisor creates a Supervisor. baseCtx bounds all background runs and
// is typically the process lifetime context.
func NewSupervisor(baseCtx context.Context, store database.Store, planner *Planner,
	pub *Publisher, cfg config.Planner, log *slog.Logger, metrics *otel.Metrics) *Supervisor {
	return &Supervisor{
		store:   store,
		planner: planner,
		pub:     pub,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		locks:   newKeyedMutex(),
		baseCtx: baseCtx,
	}
}

// Create validates the request, persists a pending session, and launches the
// planning run in the background. The pending session is returned
// immediately for polling.
func (s *Supervisor) Create(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	if strings.TrimSpace(req.IssueKey) == "" {
		return nil, fmt.Errorf("issueKey is required: %w", domain.ErrValidation)
	}

	sess := &session.Session{
		IssueKey:    req.IssueKey,
		RAGStoreIDs: req.RAGStoreIDs,
		Status:      session.StatusPending,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if req.ExistingRefinement != "" {
		if err := s.store.SetArtifact(ctx, sess.ID, artifact.StageRefinement, req.ExistingRefinement); err != nil {
			return nil, err
		}
		sess.RefinementContent = req.ExistingRefinement
	}

	s.log.Info("session created", "session_id", sess.ID, "issue_key", sess.IssueKey,
		"rag_stores", len(sess.RAGStoreIDs))
	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1)
	}
	s.pub.SessionStatus(ctx, sess)

	go s.run(sess.ID)
	return sess, nil
}

// run executes the planning loop for one session in the background.
func (s *Supervisor) run(sessionID string) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.SessionTimeout)
	defer cancel()

	start := time.Now()

	sess, err := s.transition(ctx, sessionID, session.StatusProcessing, "Analyzing issue and gathering context", "")
	if err != nil {
		s.log.Error("session transition failed", "session_id", sessionID, "error", err)
		return
	}

	runErr := s.planner.Run(ctx, sess)
	if runErr != nil {
		s.log.Error("planning run failed", "session_id", sessionID, "error", runErr)
		if s.metrics != nil {
			s.metrics.SessionsFailed.Add(context.WithoutCancel(ctx), 1)
		}
		// Use a fresh context: the run context may already be expired.
		if _, err := s.transition(context.WithoutCancel(ctx), sessionID, session.StatusError, "", runErr.Error()); err != nil {
			s.log.Error("session transition failed", "session_id", sessionID, "error", err)
		}
		return
	}

	// The run context may have expired just as the planner finished; the
	// final transition must still land or the session stays processing.
	doneCtx := context.WithoutCancel(ctx)
	if s.metrics != nil {
		s.metrics.SessionsCompleted.Add(doneCtx, 1)
		s.metrics.SessionDuration.Record(doneCtx, time.Since(start).Seconds())
	}
	if _, err := s.transition(doneCtx, sessionID, session.StatusReady, "", ""); err != nil {
		s.log.Error("session transition failed", "session_id", sessionID, "error", err)
	}
}

// Get returns a session with its full message log.
func (s *Supervisor) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

// Updates returns the polling delta past the client's watermark.
// lastMessageCount is the number of messages the client already has.
func (s *Supervisor) Updates(ctx context.Context, id string, lastMessageCount int) (*session.Updates, error) {
	if lastMessageCount < 0 {
		lastMessageCount = 0
	}
	sess, delta, total, err := s.store.UpdatesSince(ctx, id, lastMessageCount)
	if err != nil {
		return nil, err
	}
	return &session.Updates{
		Session:       sess,
		NewMessages:   delta,
		TotalMessages: total,
		HasUpdates:    len(delta) > 0,
	}, nil
}

// List returns one page of sessions, newest first. page is 1-based.
func (s *Supervisor) List(ctx context.Context, page, pageSize int) (*session.Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sessions, total, err := s.store.ListSessions(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	return &session.Page{
		Sessions: sessions,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Delete removes a session and everything attached to it.
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.log.Info("session deleted", "session_id", id)
	return nil
}

// SendChat runs one follow-up exchange on a ready session. The session is
// processing for the duration of the exchange and returns to ready after.
func (s *Supervisor) SendChat(ctx context.Context, id string, req session.ChatRequest) (*session.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required: %w", domain.ErrValidation)
	}

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusReady {
		return nil, fmt.Errorf("session %s is %s, chat requires ready: %w", id, sess.Status, domain.ErrInvalidState)
	}

	sess, err = s.transition(ctx, id, session.StatusProcessing, "Handling follow-up", "")
	if err != nil {
		return nil, err
	}

	resp, chatErr := s.planner.Chat(ctx, sess, req.Message)
	if chatErr != nil {
		s.log.Error("chat exchange failed", "session_id", id, "error", chatErr)
		// The session stays usable: restore ready so the client can retry.
		if _, err := s.transition(context.WithoutCancel(ctx), id, session.StatusReady, "", ""); err != nil {
			s.log.Error("session transition failed", "session_id", id, "error", err)
		}
		return nil, chatErr
	}

	// Restore ready even if the request context died during the exchange.
	if _, err := s.transition(context.WithoutCancel(ctx), id, session.StatusReady, "", ""); err != nil {
		return nil, err
	}
	return resp, nil
}

// transition updates session status, publishes the event, and returns the
// fresh session.
func (s *Supervisor) transition(ctx context.Context, id string, status session.Status, progressMsg, errorMsg string) (*session.Session, error) {
	if err := s.store.UpdateSessionStatus(ctx, id, status, progressMsg, errorMsg); err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.pub.SessionStatus(ctx, sess)
	return sess, nil
}
