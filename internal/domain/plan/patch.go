package plan

import (
	"fmt"

	"github.com/planforge/planforge/internal/domain"
)

// Patch operation names.
const (
	OpAddEpic     = "add_epic"
	OpUpdateEpic  = "update_epic"
	OpRemoveEpic  = "remove_epic"
	OpAddStory    = "add_story"
	OpUpdateStory = "update_story"
	OpRemoveStory = "remove_story"
)

// PatchOp is one structural edit to the normalized plan. Epic/Story carry the
// new entity for add ops and the replacement field values for update ops;
// zero-valued fields are left untouched on update.
type PatchOp struct {
	Op      string `json:"op"`
	EpicID  string `json:"epicId,omitempty"`
	StoryID string `json:"storyId,omitempty"`
	Epic    *Epic  `json:"epic,omitempty"`
	Story   *Story `json:"story,omitempty"`
}

// Apply mutates p with the given ops. It fails on the first op that targets a
// missing epic or story id, returning an error wrapping ErrPatchConflict.
// Callers that need all-or-nothing semantics apply against a Clone and swap
// on success.
func (p *Plan) Apply(ops []PatchOp) error {
	for i, op := range ops {
		if err := p.applyOne(op); err != nil {
			return fmt.Errorf("patch op %d (%s): %w", i, op.Op, err)
		}
	}
	return p.Validate()
}

func (p *Plan) applyOne(op PatchOp) error {
	switch op.Op {
	case OpAddEpic:
		if op.Epic == nil {
			return fmt.Errorf("missing epic payload: %w", domain.ErrValidation)
		}
		if p.epic(op.Epic.ID) != nil {
			return fmt.Errorf("epic %q already exists: %w", op.Epic.ID, domain.ErrPatchConflict)
		}
		e := *op.Epic
		for j := range e.Stories {
			e.Stories[j].EpicID = e.ID
		}
		p.Epics = append(p.Epics, e)

	case OpUpdateEpic:
		e := p.epic(op.EpicID)
		if e == nil {
			return fmt.Errorf("epic %q: %w", op.EpicID, domain.ErrPatchConflict)
		}
		if op.Epic == nil {
			return fmt.Errorf("missing epic payload: %w", domain.ErrValidation)
		}
		mergeEpic(e, op.Epic)

	case OpRemoveEpic:
		for i := range p.Epics {
			if p.Epics[i].ID == op.EpicID {
				p.Epics = append(p.Epics[:i], p.Epics[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("epic %q: %w", op.EpicID, domain.ErrPatchConflict)

	case OpAddStory:
		e := p.epic(op.EpicID)
		if e == nil {
			return fmt.Errorf("epic %q: %w", op.EpicID, domain.ErrPatchConflict)
		}
		if op.Story == nil {
			return fmt.Errorf("missing story payload: %w", domain.ErrValidation)
		}
		st := *op.Story
		st.EpicID = e.ID
		e.Stories = append(e.Stories, st)

	case OpUpdateStory:
		_, st := p.story(op.StoryID)
		if st == nil {
			return fmt.Errorf("story %q: %w", op.StoryID, domain.ErrPatchConflict)
		}
		if op.Story == nil {
			return fmt.Errorf("missing story payload: %w", domain.ErrValidation)
		}
		mergeStory(st, op.Story)

	case OpRemoveStory:
		e, st := p.story(op.StoryID)
		if st == nil {
			return fmt.Errorf("story %q: %w", op.StoryID, domain.ErrPatchConflict)
		}
		for i := range e.Stories {
			if e.Stories[i].ID == op.StoryID {
				e.Stories = append(e.Stories[:i], e.Stories[i+1:]...)
				break
			}
		}

	default:
		return fmt.Errorf("unknown op %q: %w", op.Op, domain.ErrValidation)
	}
	return nil
}

// mergeEpic copies non-zero fields from src onto dst. ID and Stories are
// never changed by an update op.
func mergeEpic(dst, src *Epic) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Component != "" {
		dst.Component = src.Component
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Priority != "" {
		dst.Priority = src.Priority
	}
	if src.EstimatedHours != 0 {
		dst.EstimatedHours = src.EstimatedHours
	}
	if src.ActualHours != 0 {
		dst.ActualHours = src.ActualHours
	}
	if src.DueDate != "" {
		dst.DueDate = src.DueDate
	}
}

// mergeStory copies non-zero fields from src onto dst. ID and EpicID are
// never changed by an update op.
func mergeStory(dst, src *Story) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.AcceptanceCriteria != nil {
		dst.AcceptanceCriteria = append([]string(nil), src.AcceptanceCriteria...)
	}
	if src.StoryPoints != 0 {
		dst.StoryPoints = src.StoryPoints
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
}
