package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/planforge/planforge/internal/adapter/otel"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/ingest"
	"github.com/planforge/planforge/internal/port/ragstore"
)

const maxFetchBytes = 8 << 20

// IngestionService runs background document-ingestion tasks. Tasks live in
// memory only: they are operational state, pollable while running and for a
// retention window after finishing, then garbage collected.
type IngestionService struct {
	registry *ragstore.Registry
	pub      *Publisher
	cfg      config.Ingestion
	log      *slog.Logger
	metrics  *otel.Metrics

	workers *semaphore.Weighted
	fetch   *http.Client

	mu      sync.RWMutex
	tasks   map[string]*ingest.Task
	cancels map[string]context.CancelFunc

	baseCtx context.Context
	now     func() time.Time
}

// NewIngestionService creates the service and starts its retention sweeper.
// baseCtx bounds all workers and the sweeper.
func NewIngestionService(baseCtx context.Context, registry *ragstore.Registry,
	pub *Publisher, cfg config.Ingestion, log *slog.Logger, metrics *otel.Metrics) *IngestionService {
	s := &IngestionService{
		registry: registry,
		pub:      pub,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		workers:  semaphore.NewWeighted(cfg.MaxConcurrent),
		fetch:    &http.Client{Timeout: 60 * time.Second},
		tasks:    make(map[string]*ingest.Task),
		cancels:  make(map[string]context.CancelFunc),
		baseCtx:  baseCtx,
		now:      time.Now,
	}
	go s.sweep()
	return s
}

// Start validates the request, registers a pending task, and launches the
// worker. The task id is returned immediately for progress polling.
func (s *IngestionService) Start(_ context.Context, req ingest.StartRequest) (*ingest.Task, error) {
	if req.StoreID == "" {
		return nil, fmt.Errorf("storeId is required: %w", domain.ErrValidation)
	}
	if len(req.Documents) == 0 {
		return nil, fmt.Errorf("documents are required: %w", domain.ErrValidation)
	}
	store, ok := s.registry.Get(req.StoreID)
	if !ok {
		return nil, fmt.Errorf("rag store %q: %w", req.StoreID, domain.ErrNotFound)
	}
	for i := range req.Documents {
		d := &req.Documents[i]
		if d.Content == "" && d.URL == "" {
			return nil, fmt.Errorf("document %d has neither content nor url: %w", i, domain.ErrValidation)
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
	}

	now := s.now()
	task := &ingest.Task{
		TaskID:        uuid.NewString(),
		TargetStoreID: req.StoreID,
		Status:        ingest.StatusPending,
		CurrentStep:   "queued",
		TotalItems:    len(req.Documents),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	workerCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.tasks[task.TaskID] = task
	s.cancels[task.TaskID] = cancel
	s.mu.Unlock()

	s.log.Info("ingestion task started", "task_id", task.TaskID, "store_id", req.StoreID,
		"documents", len(req.Documents))

	go s.work(workerCtx, task.TaskID, store, req.Documents)
	return snapshot(task), nil
}

// Get returns a copy of the task's current state.
func (s *IngestionService) Get(taskID string) (*ingest.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("ingestion task %s: %w", taskID, domain.ErrNotFound)
	}
	return snapshot(task), nil
}

// Cancel requests cooperative cancellation of a running task. Cancelling a
// terminal task is a no-op.
func (s *IngestionService) Cancel(taskID string) error {
	s.mu.RLock()
	task, ok := s.tasks[taskID]
	var cancel context.CancelFunc
	if ok {
		cancel = s.cancels[taskID]
	}
	terminal := ok && task.Status.Terminal()
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("ingestion task %s: %w", taskID, domain.ErrNotFound)
	}
	if terminal || cancel == nil {
		return nil
	}
	cancel()
	return nil
}

// work executes one ingestion task. Cancellation is checked between
// documents; a document already being indexed finishes.
func (s *IngestionService) work(ctx context.Context, taskID string, store ragstore.Store, docs []ingest.Document) {
	defer s.dropCancel(taskID)

	ctx, span := otel.StartIngestSpan(ctx, taskID, store.ID())
	defer span.End()

	if err := s.workers.Acquire(ctx, 1); err != nil {
		s.finish(ctx, taskID, ingest.StatusFailed, "cancelled while queued", nil)
		return
	}
	defer s.workers.Release(1)

	s.update(ctx, taskID, func(t *ingest.Task) {
		t.Status = ingest.StatusRunning
		t.CurrentStep = fmt.Sprintf("processing %d documents", len(docs))
	})

	result := &ingest.Result{Documents: []ingest.DocumentOutcome{}}
	for i, doc := range docs {
		if ctx.Err() != nil {
			s.finish(ctx, taskID, ingest.StatusFailed, "cancelled", result)
			return
		}

		s.update(ctx, taskID, func(t *ingest.Task) {
			t.CurrentStep = fmt.Sprintf("indexing %s", docLabel(doc))
		})

		outcome := s.ingestOne(ctx, store, doc)
		if outcome.Error != "" {
			result.Failed++
			s.log.Warn("document ingestion failed", "task_id", taskID, "doc_id", doc.ID, "error", outcome.Error)
		} else {
			result.Succeeded++
			if s.metrics != nil {
				s.metrics.DocsIngested.Add(ctx, 1)
			}
		}
		result.Documents = append(result.Documents, outcome)

		processed := i + 1
		s.update(ctx, taskID, func(t *ingest.Task) {
			t.ProcessedItems = processed
			t.Progress = float64(processed) / float64(len(docs))
		})
	}

	if result.Succeeded == 0 {
		s.finish(ctx, taskID, ingest.StatusFailed, "all documents failed", result)
		return
	}
	s.finish(ctx, taskID, ingest.StatusCompleted, "", result)
}

func (s *IngestionService) ingestOne(ctx context.Context, store ragstore.Store, doc ingest.Document) ingest.DocumentOutcome {
	outcome := ingest.DocumentOutcome{ID: doc.ID, Title: doc.Title}

	if doc.Content == "" {
		content, err := s.fetchURL(ctx, doc.URL)
		if err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		doc.Content = content
	}

	chunks, err := store.AddDocument(ctx, doc)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Chunks = chunks
	return outcome
}

func (s *IngestionService) fetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return string(body), nil
}

func (s *IngestionService) update(ctx context.Context, taskID string, mutate func(*ingest.Task)) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if ok {
		mutate(task)
		task.UpdatedAt = s.now()
	}
	var snap *ingest.Task
	if ok {
		snap = snapshot(task)
	}
	s.mu.Unlock()

	if snap != nil {
		s.pub.IngestProgress(ctx, snap)
	}
}

func (s *IngestionService) finish(ctx context.Context, taskID string, status ingest.Status, errMsg string, result *ingest.Result) {
	s.update(ctx, taskID, func(t *ingest.Task) {
		t.Status = status
		t.ErrorMessage = errMsg
		t.CurrentStep = ""
		t.Result = result
		if status == ingest.StatusCompleted {
			t.Progress = 1
		}
	})
	s.log.Info("ingestion task finished", "task_id", taskID, "status", status, "error", errMsg)
}

func (s *IngestionService) dropCancel(taskID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[taskID]; ok {
		cancel()
		delete(s.cancels, taskID)
	}
	s.mu.Unlock()
}

// sweep removes terminal tasks older than the retention window.
func (s *IngestionService) sweep() {
	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			cutoff := s.now().Add(-s.cfg.Retention)
			s.mu.Lock()
			for id, t := range s.tasks {
				if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
					delete(s.tasks, id)
					delete(s.cancels, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func snapshot(t *ingest.Task) *ingest.Task {
	out := *t
	if t.Result != nil {
		r := *t.Result
		r.Documents = append([]ingest.DocumentOutcome(nil), t.Result.Documents...)
		out.Result = &r
	}
	return &out
}

func docLabel(d ingest.Document) string {
	switch {
	case d.Title != "":
		return d.Title
	case d.URL != "":
		return d.URL
	default:
		return strings.TrimSpace(d.ID)
	}
}
