// Package inference implements the agent turn executor on an OpenAI-compatible
// chat completion endpoint via langchaingo.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/port/inference"
	"github.com/planforge/planforge/internal/resilience"
)

// Executor runs single agent turns against a chat model. Tool use is
// requested through the system prompt and returned by the model as a fenced
// tool_call block, which keeps the executor independent of per-provider
// function calling dialects.
type Executor struct {
	llm       llms.Model
	maxTokens int
	breaker   *resilience.Breaker
}

// New creates an Executor from inference configuration.
func New(cfg config.Inference, breaker *resilience.Breaker) (*Executor, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("inference init: %w", err)
	}
	return &Executor{llm: llm, maxTokens: cfg.MaxTokens, breaker: breaker}, nil
}

// RunTurn sends the conversation to the model and interprets the reply as
// either plain text or a single tool call.
func (e *Executor) RunTurn(ctx context.Context, req inference.TurnRequest) (*inference.TurnResult, error) {
	msgs := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, llms.TextParts(chatType(m.Role), m.Content))
	}

	var resp *llms.ContentResponse
	err := e.breaker.Execute(func() error {
		var callErr error
		resp, callErr = e.llm.GenerateContent(ctx, msgs, llms.WithMaxTokens(e.maxTokens))
		return callErr
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("inference turn: %w", domain.ErrBackendTimeout)
		}
		return nil, fmt.Errorf("inference turn: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("inference turn: empty response")
	}

	return parseTurn(resp.Choices[0].Content)
}

func chatType(role string) schema.ChatMessageType {
	switch role {
	case "system":
		return schema.ChatMessageTypeSystem
	case "agent", "assistant":
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

const toolFence = "```tool_call"

// parseTurn extracts a tool_call fence from the model output. A reply with a
// well-formed fence becomes a ToolCall; anything else is plain text.
func parseTurn(text string) (*inference.TurnResult, error) {
	start := strings.Index(text, toolFence)
	if start < 0 {
		return &inference.TurnResult{Text: text}, nil
	}
	rest := text[start+len(toolFence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return &inference.TurnResult{Text: text}, nil
	}

	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &call); err != nil {
		return nil, fmt.Errorf("malformed tool call: %w", err)
	}
	if call.Name == "" {
		return nil, fmt.Errorf("malformed tool call: missing name")
	}
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return &inference.TurnResult{
		ToolCall: &inference.ToolCall{Name: call.Name, Arguments: args},
	}, nil
}
