// Package inference defines the turn executor port: the boundary to the
// language-model backend that drives the planning loop. The loop is written
// entirely against this interface, so the backend's non-determinism stays a
// boundary concern.
package inference

import (
	"context"
	"encoding/json"
)

// Message is one prior entry of turn context.
type Message struct {
	Role    string `json:"role"` // "system", "user", "agent"
	Content string `json:"content"`
}

// ToolCall is a request by the agent to invoke one gateway tool.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// TurnRequest carries everything the backend needs for one turn: the system
// prompt, the accumulated conversation (issue context, retrieval context, and
// prior tool results are injected as messages), and the tools it may call.
type TurnRequest struct {
	System   string
	Messages []Message
	Tools    []string
}

// TurnResult is the backend's answer for one turn: either free text or a
// tool-call request, never both.
type TurnResult struct {
	Text     string
	ToolCall *ToolCall
}

// Executor runs one turn against the inference backend. Implementations must
// honor ctx cancellation; the planning loop enforces its own ceiling on top.
type Executor interface {
	RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
}
