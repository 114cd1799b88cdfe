package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"
)

const (
	planMaxTokens    = 150
	blockedMaxTokens = 5
	replanMaxTokens  = 80

	planRequestChars = 300
	planChars        = 400
	resultChars      = 300
	summaryArgs      = 3
)

const planPrompt = `You are helping an AI agent plan its actions for ONE turn.
Given the request and available tools, write a numbered list of 2-4 concrete steps.
Each step must name which tool to call and why. One sentence per step.
Write in the same language as the request. No headers or explanations, only the list.

Available tools: %s
Request: %s

Action plan:`

const blockedPrompt = `An AI agent has an action plan and just executed one step.
Decide whether the observation BLOCKS further progress on the plan.

"Blocked" means: the observation contradicts a key assumption in the plan,
or makes the next planned step impossible or pointless.
"NOT blocked" means: the step succeeded or partially succeeded and the plan can continue.

Plan:
%s

Step executed: %s(%s)
Observation received: %s

Reply with exactly one word: "blocked" or "ok".`

const replanPrompt = `An AI agent's plan was blocked by an unexpected observation.
Suggest a revised next step in ONE sentence.
Write in the same language as the goal. Be concrete (name the tool if relevant).

Original plan:
%s

Step that got blocked: %s(%s)
Observation: %s

Revised next step:`

// Completer is the one-shot completion slice of a backend.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Planner drafts a short plan before the loop and proposes a revised step
// when an observation contradicts it. Every failure yields an empty result.
type Planner struct {
	backend Completer
}

func NewPlanner(backend Completer) *Planner {
	return &Planner{backend: backend}
}

func (p *Planner) Plan(ctx context.Context, request string, toolNames []string) string {
	if strings.TrimSpace(request) == "" || len(toolNames) == 0 {
		return ""
	}
	prompt := fmt.Sprintf(planPrompt, strings.Join(toolNames, ", "), truncate(request, planRequestChars))
	plan, err := p.backend.Complete(ctx, prompt, planMaxTokens)
	if err != nil {
		slog.Debug("Plan generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(plan)
}

// Blocked asks whether result contradicts plan. Technical tool failures are
// not plan contradictions and should not be passed here.
func (p *Planner) Blocked(ctx context.Context, plan string, call contract.ToolCall, result string) bool {
	if plan == "" {
		return false
	}
	prompt := fmt.Sprintf(blockedPrompt, truncate(plan, planChars), call.Name, summarizeArgs(call.Arguments), truncate(result, resultChars))
	answer, err := p.backend.Complete(ctx, prompt, blockedMaxTokens)
	if err != nil {
		slog.Debug("Plan blocked check failed", "error", err)
		return false
	}
	answer = strings.Trim(strings.ToLower(strings.TrimSpace(answer)), `."'`)
	return answer == "blocked"
}

func (p *Planner) Replan(ctx context.Context, plan string, call contract.ToolCall, result string) string {
	prompt := fmt.Sprintf(replanPrompt, truncate(plan, planChars), call.Name, summarizeArgs(call.Arguments), truncate(result, resultChars))
	suggestion, err := p.backend.Complete(ctx, prompt, replanMaxTokens)
	if err != nil {
		slog.Debug("Replan generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(suggestion)
}

// Adjust returns a revised next step when result blocks plan, or "".
func (p *Planner) Adjust(ctx context.Context, plan string, call contract.ToolCall, result string) string {
	if !p.Blocked(ctx, plan, call, result) {
		return ""
	}
	return p.Replan(ctx, plan, call, result)
}

func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "no args"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > summaryArgs {
		keys = keys[:summaryArgs]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
