package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/artifact"
	"github.com/planforge/planforge/internal/domain/plan"
	"github.com/planforge/planforge/internal/domain/rag"
	"github.com/planforge/planforge/internal/domain/session"
	"github.com/planforge/planforge/internal/port/database"
	"github.com/planforge/planforge/internal/port/inference"
)

// Tool names exposed to the agent.
const (
	ToolGetRefinementDoc = "getRefinementDoc"
	ToolSetRefinementDoc = "setRefinementDoc"
	ToolGetJiraPlan      = "getJiraPlan"
	ToolSetJiraPlan      = "setJiraPlan"
	ToolPatchJiraPlan    = "patchJiraPlan"
	ToolQueryRag         = "queryRag"
)

// AllTools lists every tool the gateway dispatches.
var AllTools = []string{
	ToolGetRefinementDoc,
	ToolSetRefinementDoc,
	ToolGetJiraPlan,
	ToolSetJiraPlan,
	ToolPatchJiraPlan,
	ToolQueryRag,
}

// ToolGateway dispatches agent tool calls onto the engine's own services.
// Each call executes at most once; a failed call is reported back to the
// agent as a tool error, never silently retried.
type ToolGateway struct {
	store     database.Store
	artifacts *ArtifactService
	broker    *RAGBroker
	log       *slog.Logger
}

// NewToolGateway creates a ToolGateway.
func NewToolGateway(store database.Store, artifacts *ArtifactService, broker *RAGBroker, log *slog.Logger) *ToolGateway {
	return &ToolGateway{store: store, artifacts: artifacts, broker: broker, log: log}
}

// Dispatch executes one tool call for a session and returns the tool output
// to feed back into the conversation. The session must still be processing;
// calls arriving after the session left that state fail with ErrInvalidState.
func (g *ToolGateway) Dispatch(ctx context.Context, sessionID string, call inference.ToolCall) (string, error) {
	sess, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Status != session.StatusProcessing {
		return "", fmt.Errorf("session %s is %s, not processing: %w", sessionID, sess.Status, domain.ErrInvalidState)
	}

	g.log.Debug("tool dispatch", "session_id", sessionID, "tool", call.Name)

	switch call.Name {
	case ToolGetRefinementDoc:
		return g.getArtifact(ctx, sessionID, artifact.StageRefinement)

	case ToolSetRefinementDoc:
		var args struct {
			Content string `json:"content"`
		}
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		if err := g.artifacts.SetRefinement(ctx, sessionID, args.Content); err != nil {
			return "", err
		}
		return "refinement document saved", nil

	case ToolGetJiraPlan:
		return g.getArtifact(ctx, sessionID, artifact.StageJiras)

	case ToolSetJiraPlan:
		var args struct {
			Plan json.RawMessage `json:"plan"`
		}
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		p, err := g.artifacts.SetJiraPlan(ctx, sessionID, string(args.Plan))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("plan saved with %d epics", len(p.Epics)), nil

	case ToolPatchJiraPlan:
		var args struct {
			Ops []plan.PatchOp `json:"ops"`
		}
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		p, err := g.artifacts.PatchJiraPlan(ctx, sessionID, args.Ops)
		if err != nil {
			return "", err
		}
		raw, err := p.Encode()
		if err != nil {
			return "", err
		}
		return raw, nil

	case ToolQueryRag:
		var args struct {
			Query      string `json:"query"`
			MaxResults int    `json:"maxResults"`
		}
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		res, err := g.broker.Query(ctx, rag.QueryRequest{
			RAGStoreIDs: sess.RAGStoreIDs,
			Query:       args.Query,
			MaxResults:  args.MaxResults,
		})
		if err != nil {
			return "", err
		}
		return formatRagResults(res), nil

	default:
		return "", fmt.Errorf("unknown tool %q: %w", call.Name, domain.ErrValidation)
	}
}

func (g *ToolGateway) getArtifact(ctx context.Context, sessionID string, stage artifact.Stage) (string, error) {
	a, err := g.store.GetArtifact(ctx, sessionID, stage)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return a.Content, nil
}

func decodeArgs(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("tool arguments: %w: %v", domain.ErrValidation, err)
	}
	return nil
}

// formatRagResults renders retrieval results as turn context for the agent.
func formatRagResults(res *rag.QueryResult) string {
	if len(res.Results) == 0 {
		return "no relevant context found"
	}
	var b strings.Builder
	for i, r := range res.Results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n%s", i+1, r.SourceRef, r.Score, r.Content)
	}
	return b.String()
}
