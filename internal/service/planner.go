package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planforge/planforge/internal/adapter/otel"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/issue"
	"github.com/planforge/planforge/internal/domain/rag"
	"github.com/planforge/planforge/internal/domain/session"
	"github.com/planforge/planforge/internal/port/database"
	"github.com/planforge/planforge/internal/port/inference"
	"github.com/planforge/planforge/internal/port/issuetracker"
)

// Planner drives the agent loop for a session: it assembles turn context,
// calls the inference backend, dispatches tool calls through the gateway,
// and records every step in the session's message log.
type Planner struct {
	store    database.Store
	executor inference.Executor
	gateway  *ToolGateway
	tracker  issuetracker.Tracker
	broker   *RAGBroker
	cfg      config.Planner
	log      *slog.Logger
	metrics  *otel.Metrics
}

// NewPlanner creates a Planner. tracker may be nil when no issue tracker is
// configured; metrics may be nil to disable instrument updates.
func NewPlanner(store database.Store, executor inference.Executor, gateway *ToolGateway,
	tracker issuetracker.Tracker, broker *RAGBroker, cfg config.Planner,
	log *slog.Logger, metrics *otel.Metrics) *Planner {
	return &Planner{
		store:    store,
		executor: executor,
		gateway:  gateway,
		tracker:  tracker,
		broker:   broker,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
	}
}

// Run executes the full planning loop for a processing session. Budget
// exhaustion is not an error: the loop stops, records a note, and the
// session still becomes ready with whatever artifacts exist. A returned
// error means the run failed and the session should move to error.
func (p *Planner) Run(ctx context.Context, sess *session.Session) error {
	ctx, span := otel.StartSessionSpan(ctx, sess.ID, sess.IssueKey)
	defer span.End()

	conv, err := p.seedConversation(ctx, sess)
	if err != nil {
		return err
	}

	if _, err := p.append(ctx, sess.ID, session.RoleSystem,
		fmt.Sprintf("Planning started for %s.", sess.IssueKey), nil); err != nil {
		return err
	}

	finished, err := p.loop(ctx, sess, conv, p.cfg.TurnBudget)
	if err != nil {
		return err
	}
	if !finished {
		p.log.Warn("turn budget exhausted", "session_id", sess.ID, "budget", p.cfg.TurnBudget)
		if _, err := p.append(ctx, sess.ID, session.RoleSystem,
			"Turn budget exhausted before the plan was marked final. Artifacts produced so far are kept.", nil); err != nil {
			return err
		}
	}
	return nil
}

// Chat runs a bounded follow-up exchange on a ready session that has been
// moved back to processing by the supervisor. It returns the recorded user
// and agent message ids plus any tools the agent used.
func (p *Planner) Chat(ctx context.Context, sess *session.Session, userMessage string) (*session.ChatResponse, error) {
	conv, err := p.replayConversation(ctx, sess)
	if err != nil {
		return nil, err
	}

	userMsg, err := p.append(ctx, sess.ID, session.RoleUser, userMessage, nil)
	if err != nil {
		return nil, err
	}
	conv = append(conv, inference.Message{Role: "user", Content: userMessage})

	resp := &session.ChatResponse{MessageID: userMsg.ID, ActionsTaken: []string{}}
	var lastAgent *session.Message

	for turn := 0; turn < p.cfg.ChatTurnBudget; turn++ {
		result, err := p.runTurn(ctx, conv)
		if err != nil {
			return nil, err
		}

		if result.ToolCall != nil {
			output, toolMsg, err := p.handleToolCall(ctx, sess.ID, *result.ToolCall)
			if err != nil {
				return nil, err
			}
			resp.ActionsTaken = append(resp.ActionsTaken, result.ToolCall.Name)
			conv = append(conv, inference.Message{Role: "system", Content: toolMsg.Content + "\n" + output})
			continue
		}

		agentMsg, err := p.append(ctx, sess.ID, session.RoleAgent, result.Text, nil)
		if err != nil {
			return nil, err
		}
		lastAgent = agentMsg
		break
	}

	if lastAgent == nil {
		// All chat turns went to tools; record a terse summary so the
		// exchange still ends with an agent message.
		agentMsg, err := p.append(ctx, sess.ID, session.RoleAgent,
			"Done. Applied the requested changes: "+strings.Join(resp.ActionsTaken, ", ")+".", nil)
		if err != nil {
			return nil, err
		}
		lastAgent = agentMsg
	}

	resp.AgentMessageID = lastAgent.ID
	resp.AgentResponse = lastAgent.Content
	return resp, nil
}

// loop runs agent turns until the completion marker appears or the budget
// runs out. It reports whether the agent finished explicitly.
func (p *Planner) loop(ctx context.Context, sess *session.Session, conv []inference.Message, budget int) (bool, error) {
	for turn := 0; turn < budget; turn++ {
		result, err := p.runTurn(ctx, conv)
		if err != nil {
			return false, err
		}

		if result.ToolCall != nil {
			output, toolMsg, err := p.handleToolCall(ctx, sess.ID, *result.ToolCall)
			if err != nil {
				return false, err
			}
			conv = append(conv, inference.Message{Role: "system", Content: toolMsg.Content + "\n" + output})
			continue
		}

		if _, err := p.append(ctx, sess.ID, session.RoleAgent, result.Text, nil); err != nil {
			return false, err
		}
		conv = append(conv, inference.Message{Role: "agent", Content: result.Text})

		if strings.Contains(result.Text, p.cfg.CompletionMarker) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Planner) runTurn(ctx context.Context, conv []inference.Message) (*inference.TurnResult, error) {
	turnCtx, cancel := context.WithTimeout(ctx, p.cfg.TurnTimeout)
	defer cancel()

	if p.metrics != nil {
		p.metrics.AgentTurns.Add(ctx, 1)
	}

	result, err := p.executor.RunTurn(turnCtx, inference.TurnRequest{
		System:   p.systemPrompt(),
		Messages: conv,
		Tools:    AllTools,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("agent turn: %w", domain.ErrBackendTimeout)
		}
		return nil, fmt.Errorf("agent turn: %w", err)
	}
	return result, nil
}

// handleToolCall dispatches one tool call and records it in the message log.
// A tool failure is folded into the recorded outcome and fed back to the
// agent rather than aborting the run; the call itself executes at most once.
func (p *Planner) handleToolCall(ctx context.Context, sessionID string, call inference.ToolCall) (string, *session.Message, error) {
	ctx, span := otel.StartToolCallSpan(ctx, sessionID, call.Name)
	defer span.End()

	if p.metrics != nil {
		p.metrics.ToolCalls.Add(ctx, 1)
	}

	output, err := p.gateway.Dispatch(ctx, sessionID, call)
	content := fmt.Sprintf("Tool %s succeeded.", call.Name)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return "", nil, err
		}
		content = fmt.Sprintf("Tool %s failed: %v", call.Name, err)
		output = content
		p.log.Warn("tool call failed", "session_id", sessionID, "tool", call.Name, "error", err)
	}

	msg, appendErr := p.append(ctx, sessionID, session.RoleSystem, content, []string{call.Name})
	if appendErr != nil {
		return "", nil, appendErr
	}
	return output, msg, nil
}

// seedConversation builds the opening turn context: issue details from the
// tracker and an initial retrieval pass over the session's store scope.
func (p *Planner) seedConversation(ctx context.Context, sess *session.Session) ([]inference.Message, error) {
	conv := []inference.Message{}

	iss := &issue.Issue{Key: sess.IssueKey}
	if p.tracker != nil {
		fetched, err := p.tracker.GetIssue(ctx, sess.IssueKey)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("issue %s: %w", sess.IssueKey, err)
			}
			p.log.Warn("issue fetch failed, planning from key only", "issue_key", sess.IssueKey, "error", err)
		} else {
			iss = fetched
		}
	}
	conv = append(conv, inference.Message{Role: "user", Content: formatIssue(iss)})

	if len(sess.RAGStoreIDs) > 0 {
		query := iss.Summary
		if query == "" {
			query = iss.Key
		}
		res, err := p.broker.Query(ctx, rag.QueryRequest{
			RAGStoreIDs: sess.RAGStoreIDs,
			Query:       query,
			MaxResults:  p.cfg.RAGMaxResults,
		})
		if err != nil {
			p.log.Warn("initial retrieval failed, continuing without context", "session_id", sess.ID, "error", err)
		} else if len(res.Results) > 0 {
			conv = append(conv, inference.Message{
				Role:    "system",
				Content: "Background context from the knowledge base:\n\n" + formatRagResults(res),
			})
		}
	}

	if sess.RefinementContent != "" {
		conv = append(conv, inference.Message{
			Role:    "system",
			Content: "An existing refinement document was provided as a starting point:\n\n" + sess.RefinementContent,
		})
	}
	return conv, nil
}

// replayConversation rebuilds turn context from the stored message log for
// chat follow-ups.
func (p *Planner) replayConversation(ctx context.Context, sess *session.Session) ([]inference.Message, error) {
	msgs, err := p.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	conv := make([]inference.Message, 0, len(msgs))
	for _, m := range msgs {
		conv = append(conv, inference.Message{Role: string(m.Role), Content: m.Content})
	}
	return conv, nil
}

func (p *Planner) append(ctx context.Context, sessionID string, role session.Role, content string, actions []string) (*session.Message, error) {
	return p.store.AppendMessage(ctx, &session.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Actions:   actions,
	})
}

func (p *Planner) systemPrompt() string {
	return fmt.Sprintf(`You are a technical planning agent. Given an issue, produce:
1. A refinement document describing the problem, approach, and open risks. Save it with setRefinementDoc.
2. An epic/story breakdown suitable for an issue tracker. Save it with setJiraPlan, or adjust an existing one with patchJiraPlan.

Use queryRag to pull background context before deciding. Call one tool at a time by replying with a fenced block:

`+"```tool_call\n{\"name\": \"<tool>\", \"arguments\": {...}}\n```"+`

Available tools: %s.

When both artifacts are saved and complete, reply with a short summary ending in %s.`,
		strings.Join(AllTools, ", "), p.cfg.CompletionMarker)
}

func formatIssue(iss *issue.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue %s", iss.Key)
	if iss.Summary != "" {
		fmt.Fprintf(&b, ": %s", iss.Summary)
	}
	if iss.IssueType != "" {
		fmt.Fprintf(&b, "\nType: %s", iss.IssueType)
	}
	if iss.Priority != "" {
		fmt.Fprintf(&b, "\nPriority: %s", iss.Priority)
	}
	if iss.DueDate != "" {
		fmt.Fprintf(&b, "\nDue: %s", iss.DueDate)
	}
	if iss.Description != "" {
		fmt.Fprintf(&b, "\n\n%s", iss.Description)
	}
	for _, l := range iss.Links {
		other := l.OutwardIssue
		if other == "" {
			other = l.InwardIssue
		}
		fmt.Fprintf(&b, "\nLink: %s %s", l.Type, other)
	}
	return b.String()
}
