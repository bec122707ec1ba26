// Package plan defines the normalized JIRA plan: the epic/story decomposition
// of the planning result, plus the structural patch operations applied to it.
// The normalized form is authoritative; the raw JSON snapshot stored alongside
// it is always derived by marshalling a Plan.
package plan

import (
	"encoding/json"
	"fmt"

	"github.com/planforge/planforge/internal/domain"
)

// Plan is the normalized epic/story breakdown for one session.
type Plan struct {
	Epics []Epic `json:"epics"`
}

// Epic is one epic in the plan, with its nested stories.
type Epic struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Component      string  `json:"component,omitempty"`
	Status         string  `json:"status,omitempty"`
	Priority       string  `json:"priority,omitempty"`
	EstimatedHours float64 `json:"estimatedHours,omitempty"`
	ActualHours    float64 `json:"actualHours,omitempty"`
	DueDate        string  `json:"dueDate,omitempty"`
	Stories        []Story `json:"stories"`
}

// Story is one story under an epic.
type Story struct {
	ID                 string   `json:"id"`
	EpicID             string   `json:"epicId"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	StoryPoints        int      `json:"storyPoints,omitempty"`
	Status             string   `json:"status,omitempty"`
}

// Decode parses and validates a raw plan JSON document.
func Decode(raw []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w: %v", domain.ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode marshals the plan to its canonical raw JSON form.
func (p *Plan) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	return string(data), nil
}

// Validate checks structural integrity: unique ids, non-empty titles, and
// story EpicID links matching the containing epic. Story EpicID is filled in
// from the containing epic when omitted.
func (p *Plan) Validate() error {
	seen := make(map[string]bool)
	for i := range p.Epics {
		e := &p.Epics[i]
		if e.ID == "" {
			return fmt.Errorf("epic %d: missing id: %w", i, domain.ErrValidation)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate epic id %q: %w", e.ID, domain.ErrValidation)
		}
		seen[e.ID] = true
		if e.Title == "" {
			return fmt.Errorf("epic %q: missing title: %w", e.ID, domain.ErrValidation)
		}
		for j := range e.Stories {
			st := &e.Stories[j]
			if st.ID == "" {
				return fmt.Errorf("epic %q story %d: missing id: %w", e.ID, j, domain.ErrValidation)
			}
			if seen[st.ID] {
				return fmt.Errorf("duplicate story id %q: %w", st.ID, domain.ErrValidation)
			}
			seen[st.ID] = true
			if st.Title == "" {
				return fmt.Errorf("story %q: missing title: %w", st.ID, domain.ErrValidation)
			}
			if st.EpicID != "" && st.EpicID != e.ID {
				return fmt.Errorf("story %q: epicId %q does not match epic %q: %w", st.ID, st.EpicID, e.ID, domain.ErrValidation)
			}
			st.EpicID = e.ID
		}
	}
	return nil
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	out := &Plan{Epics: make([]Epic, len(p.Epics))}
	for i := range p.Epics {
		e := p.Epics[i]
		e.Stories = make([]Story, len(p.Epics[i].Stories))
		copy(e.Stories, p.Epics[i].Stories)
		for j := range e.Stories {
			if ac := e.Stories[j].AcceptanceCriteria; ac != nil {
				e.Stories[j].AcceptanceCriteria = append([]string(nil), ac...)
			}
		}
		out.Epics[i] = e
	}
	return out
}

// epic returns a pointer to the epic with the given id, or nil.
func (p *Plan) epic(id string) *Epic {
	for i := range p.Epics {
		if p.Epics[i].ID == id {
			return &p.Epics[i]
		}
	}
	return nil
}

// story returns the containing epic and story pointer for the given story id.
func (p *Plan) story(id string) (*Epic, *Story) {
	for i := range p.Epics {
		for j := range p.Epics[i].Stories {
			if p.Epics[i].Stories[j].ID == id {
				return &p.Epics[i], &p.Epics[i].Stories[j]
			}
		}
	}
	return nil, nil
}
