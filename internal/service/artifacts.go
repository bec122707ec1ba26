package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/port/database"
)

// ArtifactService manages stage artifacts and the normalized JIRA plan.
// Plan writes are serialized per session so a patch's read-modify-write
// cycle never interleaves with a concurrent replace.
type ArtifactService struct {
	store database.Store
	log   *slog.Logger
	locks *keyedMutex
}

// NewArtifactService creates an ArtifactService.
func NewArtifactService(store database.Store, log *slog.Logger) *ArtifactService {
	return &ArtifactService{
		store: store,
		log:   log,
		locks: newKeyedMutex(),
	}
}

// GetStage returns the raw artifact content for one stage of a session.
func (s *ArtifactService) GetStage(ctx context.Context, sessionID string, stage artifact.Stage) (*artifact.Artifact, error) {
	if !artifact.Known(stage) {
		return nil, fmt.Errorf("unknown stage %q: %w", stage, domain.ErrValidation)
	}
	return s.store.GetArtifact(ctx, sessionID, stage)
}

// SetRefinement replaces the refinement document for a session.
func (s *ArtifactService) SetRefinement(ctx context.Context, sessionID, content string) error {
	if err := s.store.SetArtifact(ctx, sessionID, artifact.StageRefinement, content); err != nil {
		return err
	}
	s.log.Info("refinement updated", "session_id", sessionID, "bytes", len(content))
	return nil
}

// SetJiraPlan replaces the full plan for a session. The raw JSON is decoded,
// validated, and re-encoded so the stored snapshot is always the canonical
// form of the normalized plan.
func (s *ArtifactService) SetJiraPlan(ctx context.Context, sessionID, rawJSON string) (*plan.Plan, error) {
	p, err := plan.Decode([]byte(rawJSON))
	if err != nil {
		return nil, err
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	if err := s.replacePlan(ctx, sessionID, p); err != nil {
		return nil, err
	}
	s.log.Info("jira plan replaced", "session_id", sessionID, "epics", len(p.Epics))
	return p, nil
}

// PatchJiraPlan applies structural edits to the current plan. The patch is
// all-or-nothing: ops are applied to a copy and the stored plan is swapped
// only when every op succeeds.
func (s *ArtifactService) PatchJiraPlan(ctx context.Context, sessionID string, ops []plan.PatchOp) (*plan.Plan, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty patch: %w", domain.ErrValidation)
	}
	fillPatchIDs(ops)

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	current, err := s.loadPlan(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := next.Apply(ops); err != nil {
		return nil, err
	}

	if err := s.replacePlan(ctx, sessionID, next); err != nil {
		return nil, err
	}
	s.log.Info("jira plan patched", "session_id", sessionID, "ops", len(ops))
	return next, nil
}

// ListEpics returns the normalized epic breakdown for a session.
func (s *ArtifactService) ListEpics(ctx context.Context, sessionID string) ([]plan.Epic, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListEpics(ctx, sessionID)
}

// loadPlan reads the current plan from the raw jiras artifact. A session
// without a plan yet starts from an empty one.
func (s *ArtifactService) loadPlan(ctx context.Context, sessionID string) (*plan.Plan, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	a, err := s.store.GetArtifact(ctx, sessionID, artifact.StageJiras)
	if err != nil {
		if isNotFound(err) {
			return &plan.Plan{Epics: []plan.Epic{}}, nil
		}
		return nil, err
	}
	return plan.Decode([]byte(a.Content))
}

func (s *ArtifactService) replacePlan(ctx context.Context, sessionID string, p *plan.Plan) error {
	raw, err := p.Encode()
	if err != nil {
		return err
	}
	return s.store.ReplaceJiraPlan(ctx, sessionID, p, raw)
}

// fillPatchIDs assigns ids to add ops that omit them, so agent-produced
// patches do not have to invent identifiers.
func fillPatchIDs(ops []plan.PatchOp) {
	for i := range ops {
		switch ops[i].Op {
		case plan.OpAddEpic:
			if ops[i].Epic != nil && ops[i].Epic.ID == "" {
				ops[i].Epic.ID = uuid.NewString()
			}
			if ops[i].Epic != nil {
				for j := range ops[i].Epic.Stories {
					if ops[i].Epic.Stories[j].ID == "" {
						ops[i].Epic.Stories[j].ID = uuid.NewString()
					}
				}
			}
		case plan.OpAddStory:
			if ops[i].Story != nil && ops[i].Story.ID == "" {
				ops[i].Story.ID = uuid.NewString()
			}
		}
	}
}
