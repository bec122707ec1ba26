package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/plan"
)

func (s *Store) GetArtifact(ctx context.Context, sessionID string, stage artifact.Stage) (*artifact.Artifact, error) {
	var a artifact.Artifact
	a.SessionID = sessionID
	a.Stage = stage
	err := s.pool.QueryRow(ctx,
		`SELECT content, updated_at FROM artifacts WHERE session_id = $1 AND stage = $2`,
		sessionID, string(stage)).Scan(&a.Content, &a.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get artifact %s/%s", sessionID, stage)
	}
	return &a, nil
}

func (s *Store) SetArtifact(ctx context.Context, sessionID string, stage artifact.Stage, content string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set artifact: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := upsertArtifact(ctx, tx, sessionID, stage, content); err != nil {
		return err
	}
	if err := syncSessionSnapshot(ctx, tx, sessionID, stage, content); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("set artifact: commit: %w", err)
	}
	return nil
}

func upsertArtifact(ctx context.Context, tx pgx.Tx, sessionID string, stage artifact.Stage, content string) error {
	tag, err := tx.Exec(ctx,
		`INSERT INTO artifacts (session_id, stage, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, stage) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()`,
		sessionID, string(stage), content)
	return execExpectOne(tag, err, "set artifact %s/%s", sessionID, stage)
}

// syncSessionSnapshot keeps the denormalized session columns in step with
// the stage artifacts so session reads never need a join.
func syncSessionSnapshot(ctx context.Context, tx pgx.Tx, sessionID string, stage artifact.Stage, content string) error {
	col := "refinement_content"
	if stage == artifact.StageJiras {
		col = "jira_structure"
	}
	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET `+col+` = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, content)
	return execExpectOne(tag, err, "sync session %s snapshot", sessionID)
}

func (s *Store) ListEpics(ctx context.Context, sessionID string) ([]plan.Epic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, component, status, priority, estimated_hours, actual_hours, due_date
		 FROM epics WHERE session_id = $1 ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	defer rows.Close()

	epics := []plan.Epic{}
	index := map[string]int{}
	for rows.Next() {
		var e plan.Epic
		if err := rows.Scan(&e.ID, &e.Title, &e.Component, &e.Status, &e.Priority,
			&e.EstimatedHours, &e.ActualHours, &e.DueDate); err != nil {
			return nil, fmt.Errorf("scan epic: %w", err)
		}
		e.Stories = []plan.Story{}
		index[e.ID] = len(epics)
		epics = append(epics, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.pool.Query(ctx,
		`SELECT id, epic_id, title, description, acceptance_criteria, story_points, status
		 FROM stories WHERE session_id = $1 ORDER BY epic_id, position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer srows.Close()

	for srows.Next() {
		var st plan.Story
		if err := srows.Scan(&st.ID, &st.EpicID, &st.Title, &st.Description,
			&st.AcceptanceCriteria, &st.StoryPoints, &st.Status); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		if i, ok := index[st.EpicID]; ok {
			epics[i].Stories = append(epics[i].Stories, st)
		}
	}
	return epics, srows.Err()
}

func (s *Store) ReplaceJiraPlan(ctx context.Context, sessionID string, p *plan.Plan, raw string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace plan: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM stories WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("replace plan: clear stories: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM epics WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("replace plan: clear epics: %w", err)
	}

	for pos, e := range p.Epics {
		if _, err := tx.Exec(ctx,
			`INSERT INTO epics (session_id, id, title, component, status, priority, estimated_hours, actual_hours, due_date, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			sessionID, e.ID, e.Title, e.Component, e.Status, e.Priority,
			e.EstimatedHours, e.ActualHours, e.DueDate, pos); err != nil {
			return fmt.Errorf("replace plan: insert epic %s: %w", e.ID, err)
		}
		for spos, st := range e.Stories {
			if _, err := tx.Exec(ctx,
				`INSERT INTO stories (session_id, id, epic_id, title, description, acceptance_criteria, story_points, status, position)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				sessionID, st.ID, st.EpicID, st.Title, st.Description,
				pgTextArray(st.AcceptanceCriteria), st.StoryPoints, st.Status, spos); err != nil {
				return fmt.Errorf("replace plan: insert story %s: %w", st.ID, err)
			}
		}
	}

	if err := upsertArtifact(ctx, tx, sessionID, artifact.StageJiras, raw); err != nil {
		return err
	}
	if err := syncSessionSnapshot(ctx, tx, sessionID, artifact.StageJiras, raw); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace plan: commit: %w", err)
	}
	return nil
}
