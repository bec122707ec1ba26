// Package artifact defines the raw per-stage outputs a session produces.
// Each stage stores one blob that is overwritten, not versioned; the
// normalized breakdown of the jiras stage lives in the plan package.
package artifact

import "time"

// Stage identifies the pipeline stage that produced an artifact.
type Stage string

// Pipeline stages with persisted artifacts.
const (
	StageRefinement Stage = "refinement"
	StageJiras      Stage = "jiras"
)

// Known reports whether s is a recognized stage.
func Known(s Stage) bool {
	return s == StageRefinement || s == StageJiras
}

// Artifact is the raw output of one stage for one session.
type Artifact struct {
	SessionID string    `json:"sessionId"`
	Stage     Stage     `json:"stage"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}
