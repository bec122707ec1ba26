package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/domain/session"
	"github.com/planforge/planforge/internal/port/database"
	"github.com/planforge/planforge/internal/port/messagequeue"
)

// Publisher emits engine events onto the message queue for external
// observers. A nil queue disables publishing; publish failures are logged
// and never propagate, since no engine operation depends on delivery.
type Publisher struct {
	queue messagequeue.Queue
	log   *slog.Logger
}

// NewPublisher creates a Publisher. queue may be nil.
func NewPublisher(queue messagequeue.Queue, log *slog.Logger) *Publisher {
	return &Publisher{queue: queue, log: log}
}

// SessionStatus publishes a session status transition.
func (p *Publisher) SessionStatus(ctx context.Context, sess *session.Session) {
	p.publish(ctx, messagequeue.SubjectSessionStatus, messagequeue.SessionStatusEvent{
		SessionID:       sess.ID,
		IssueKey:        sess.IssueKey,
		Status:          string(sess.Status),
		ProgressMessage: sess.ProgressMessage,
		ErrorMessage:    sess.ErrorMessage,
	})
}

// SessionMessage publishes an appended session message.
func (p *Publisher) SessionMessage(ctx context.Context, m *session.Message) {
	p.publish(ctx, messagequeue.SubjectSessionMessage, messagequeue.SessionMessageEvent{
		SessionID: m.SessionID,
		MessageID: m.ID,
		Seq:       m.Seq,
		Role:      string(m.Role),
		Actions:   m.Actions,
	})
}

// IngestProgress publishes an ingestion task progress snapshot.
func (p *Publisher) IngestProgress(ctx context.Context, t *ingest.Task) {
	p.publish(ctx, messagequeue.SubjectIngestProgress, messagequeue.IngestProgressEvent{
		TaskID:         t.TaskID,
		TargetStoreID:  t.TargetStoreID,
		Status:         string(t.Status),
		Progress:       t.Progress,
		CurrentStep:    t.CurrentStep,
		ProcessedItems: t.ProcessedItems,
		TotalItems:     t.TotalItems,
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, payload any) {
	if p.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("event marshal failed", "subject", subject, "error", err)
		return
	}
	if err := messagequeue.Validate(subject, data); err != nil {
		p.log.Error("event schema invalid", "subject", subject, "error", err)
		return
	}
	if err := p.queue.Publish(ctx, subject, data); err != nil {
		p.log.Warn("event publish failed", "subject", subject, "error", err)
	}
}

// EventingStore decorates a database.Store so every appended message is also
// published as an event.
type EventingStore struct {
	database.Store
	pub *Publisher
}

// NewEventingStore wraps store with message event publishing.
func NewEventingStore(store database.Store, pub *Publisher) *EventingStore {
	return &EventingStore{Store: store, pub: pub}
}

// AppendMessage appends the message and publishes it.
func (s *EventingStore) AppendMessage(ctx context.Context, m *session.Message) (*session.Message, error) {
	stored, err := s.Store.AppendMessage(ctx, m)
	if err != nil {
		return nil, err
	}
	s.pub.SessionMessage(ctx, stored)
	return stored, nil
}
