package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	familiarErrors "github.com/harunnryd/familiar/internal/errors"
	"github.com/harunnryd/familiar/internal/logger"
	"github.com/harunnryd/familiar/internal/model"
	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/orchestrator/memory"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultMaxIterations = 50
	DefaultMaxTokens     = 4096

	skippedText = "Skipped: the turn was interrupted before this tool ran."
)

// NoResponseText stands in for an empty final reply.
const NoResponseText = "(no response)"

// TruncationNotice is appended as an assistant message when a turn hits
// the iteration cap.
func TruncationNotice(maxIterations int) string {
	return fmt.Sprintf("[Stopped after %d steps. The previous task may be incomplete.]", maxIterations)
}

// ToolExecutor runs tool calls. Failures come back as error results.
type ToolExecutor interface {
	Execute(ctx context.Context, call contract.ToolCall) contract.ToolResult
	Definitions() []contract.ToolDef
}

// Recaller fetches memories relevant to the incoming request.
type Recaller interface {
	Retrieve(ctx context.Context, query string, k int) ([]memory.Memory, error)
}

// Observer receives streamed output of a running turn.
type Observer interface {
	OnText(text string)
	OnToolCall(call contract.ToolCall)
}

type TurnRequest struct {
	Text   string
	Images []*contract.Image
	Origin contract.Origin
	// Label names what started a self turn, e.g. the drive that fired.
	Label string
}

type TurnOutcome struct {
	TurnID     string
	Request    TurnRequest
	Text       string
	StopReason contract.StopReason
	Iterations int
	ToolCalls  int
	Truncated  bool
	Origin     contract.Origin
	Duration   time.Duration
}

type EngineOptions struct {
	MaxIterations int
	MaxTokens     int
	RecallK       int
	Prompt        PromptBuilder
	// Planner enables the plan and replan steps when set.
	Planner *Planner
	Memory  Recaller
}

// Engine runs the turn state machine over a session.
type Engine struct {
	session *Session
	backend model.Backend
	tools   ToolExecutor
	opts    EngineOptions
}

func NewEngine(session *Session, backend model.Backend, tools ToolExecutor, opts EngineOptions) *Engine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Prompt.MaxSteps <= 0 {
		opts.Prompt.MaxSteps = opts.MaxIterations
	}
	return &Engine{session: session, backend: backend, tools: tools, opts: opts}
}

func (e *Engine) Session() *Session {
	return e.session
}

// Run executes one turn. History is only touched when a step completes:
// the staged user message goes in together with the first assistant
// message, and every tool round is committed as an assistant/tool_result
// pair. Errors and cancellation during streaming leave history untouched.
func (e *Engine) Run(ctx context.Context, req TurnRequest, obs Observer) (TurnOutcome, error) {
	if req.Origin == "" {
		req.Origin = contract.OriginUser
	}
	turnID := ulid.Make().String()
	outcome := TurnOutcome{TurnID: turnID, Request: req, Origin: req.Origin}
	start := time.Now()
	defer func() { outcome.Duration = time.Since(start) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.session.Begin(cancel); err != nil {
		return outcome, err
	}
	defer e.session.End()

	ctx = logger.WithTurnID(ctx, turnID)
	ctx = logger.WithOrigin(ctx, string(req.Origin))
	slog.Info("Turn started", "turn_id", turnID, "origin", req.Origin, "label", req.Label)

	history := e.session.Snapshot()
	staged := []contract.Message{userMessage(req)}
	defs := e.tools.Definitions()
	plan := ""
	if e.opts.Planner != nil {
		plan = e.opts.Planner.Plan(ctx, req.Text, toolNames(defs))
	}
	system := e.opts.Prompt.Build(e.recall(ctx, req.Text), plan)

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			return e.cancelled(ctx, outcome)
		}
		outcome.Iterations = iteration

		e.session.setState(StateStreaming)
		result := e.backend.StreamTurn(ctx, contract.StreamRequest{
			System:    system,
			History:   append(append([]contract.Message(nil), history...), staged...),
			Tools:     defs,
			MaxTokens: e.opts.MaxTokens,
		}, observerText(obs))

		switch result.StopReason {
		case contract.StopError:
			outcome.StopReason = contract.StopError
			outcome.Text = result.Text
			err := asTransient(result.Err, result.Text)
			slog.Warn("Turn failed", "turn_id", turnID, "iteration", iteration, "error", err)
			return outcome, err

		case contract.StopCancelled:
			return e.cancelled(ctx, outcome)

		case contract.StopToolUse:
			if len(result.ToolCalls) > 0 {
				break
			}
			fallthrough

		default:
			text := result.Text
			if text == "" {
				text = NoResponseText
			}
			e.session.setState(StateAppending)
			e.session.Append(ctx, append(staged, assistantMessage(req.Origin, text, nil, result.Opaque))...)
			e.session.setState(StateDone)

			outcome.Text = text
			outcome.StopReason = contract.StopEndTurn
			slog.Info("Turn completed", "turn_id", turnID, "iterations", iteration, "tool_calls", outcome.ToolCalls)
			return outcome, nil
		}

		// tool_use
		if ctx.Err() != nil {
			return e.cancelled(ctx, outcome)
		}
		e.session.setState(StateExecutingTools)
		results := e.executeTools(ctx, result.ToolCalls, plan, obs)
		outcome.ToolCalls += len(result.ToolCalls)

		e.session.setState(StateAppending)
		pair := append(staged,
			assistantMessage(req.Origin, result.Text, result.ToolCalls, result.Opaque),
			toolResultMessage(req.Origin, results),
		)
		e.session.Append(ctx, pair...)
		history = append(history, pair...)
		staged = nil

		if ctx.Err() != nil {
			return e.cancelled(ctx, outcome)
		}

		if iteration >= e.opts.MaxIterations {
			notice := TruncationNotice(e.opts.MaxIterations)
			e.session.Append(ctx, assistantMessage(req.Origin, notice, nil, nil))
			e.session.setState(StateDone)

			outcome.Text = notice
			outcome.StopReason = contract.StopEndTurn
			outcome.Truncated = true
			slog.Warn("Turn reached iteration cap", "turn_id", turnID, "max_iterations", e.opts.MaxIterations)
			return outcome, nil
		}
	}
}

// executeTools runs calls in model order. A started tool always finishes;
// once the turn is cancelled the remaining calls are recorded as skipped.
func (e *Engine) executeTools(ctx context.Context, calls []contract.ToolCall, plan string, obs Observer) []contract.ToolResult {
	results := make([]contract.ToolResult, 0, len(calls))
	for i, call := range calls {
		if i > 0 && ctx.Err() != nil {
			results = append(results, contract.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Text:       skippedText,
				IsError:    true,
			})
			continue
		}

		if obs != nil {
			obs.OnToolCall(call)
		}
		res := e.tools.Execute(context.WithoutCancel(ctx), call)
		res.ToolCallID = call.ID
		if res.Name == "" {
			res.Name = call.Name
		}

		if plan != "" && !res.IsError && ctx.Err() == nil {
			if step := e.opts.Planner.Adjust(ctx, plan, call, res.Text); step != "" {
				slog.Info("Plan adjusted", "tool", call.Name, "turn_id", logger.GetTurnID(ctx))
				res.Text += "\n\n[Plan blocked. Revised next step: " + step + "]"
			}
		}
		results = append(results, res)
	}
	return results
}

func (e *Engine) recall(ctx context.Context, query string) []memory.Memory {
	if e.opts.Memory == nil || e.opts.RecallK <= 0 || query == "" {
		return nil
	}
	memories, err := e.opts.Memory.Retrieve(ctx, query, e.opts.RecallK)
	if err != nil {
		slog.Warn("Memory recall failed", "error", err, "turn_id", logger.GetTurnID(ctx))
		return nil
	}
	return memories
}

func (e *Engine) cancelled(ctx context.Context, outcome TurnOutcome) (TurnOutcome, error) {
	outcome.StopReason = contract.StopCancelled
	slog.Info("Turn cancelled", "turn_id", logger.GetTurnID(ctx), "iteration", outcome.Iterations)
	return outcome, nil
}

func asTransient(err error, detail string) error {
	if err == nil {
		return familiarErrors.Transient(detail)
	}
	if familiarErrors.Category(err) == "Unknown" {
		return fmt.Errorf("%w: %w", err, familiarErrors.ErrTransient)
	}
	return err
}

func observerText(obs Observer) func(string) {
	if obs == nil {
		return nil
	}
	return obs.OnText
}

func toolNames(defs []contract.ToolDef) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func userMessage(req TurnRequest) contract.Message {
	parts := make([]contract.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, contract.ImagePart(img))
	}
	parts = append(parts, contract.TextPart(req.Text))
	return contract.Message{Role: contract.RoleUser, Parts: parts, Origin: req.Origin}
}

func assistantMessage(origin contract.Origin, text string, calls []contract.ToolCall, opaque *contract.OpaqueState) contract.Message {
	var parts []contract.Part
	if text != "" {
		parts = append(parts, contract.TextPart(text))
	}
	for _, c := range calls {
		parts = append(parts, contract.ToolCallPart(c))
	}
	if opaque != nil {
		parts = append(parts, contract.OpaquePart(opaque))
	}
	return contract.Message{Role: contract.RoleAssistant, Parts: parts, Origin: origin}
}

func toolResultMessage(origin contract.Origin, results []contract.ToolResult) contract.Message {
	parts := make([]contract.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, contract.ToolResultPart(r))
	}
	return contract.Message{Role: contract.RoleToolResult, Parts: parts, Origin: origin}
}
