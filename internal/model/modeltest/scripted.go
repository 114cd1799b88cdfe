// Package modeltest provides a scripted backend for driving turns in tests.
package modeltest

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/familiar/internal/model/contract"
)

// Step is one scripted StreamTurn reply. Deltas are forwarded to onText
// before Result is returned. When Block is set the step waits for the
// context to be cancelled and returns StopCancelled.
type Step struct {
	Deltas []string
	Result contract.TurnResult
	Block  bool
	Hook   func(ctx context.Context, req contract.StreamRequest)
}

// Reply is a convenience step that streams text and ends the turn.
func Reply(text string) Step {
	return Step{Deltas: []string{text}, Result: contract.TurnResult{Text: text, StopReason: contract.StopEndTurn}}
}

// CallTools is a step that requests the given tool calls.
func CallTools(text string, calls ...contract.ToolCall) Step {
	var deltas []string
	if text != "" {
		deltas = []string{text}
	}
	return Step{Deltas: deltas, Result: contract.TurnResult{Text: text, ToolCalls: calls, StopReason: contract.StopToolUse}}
}

// Fail is a step that ends the turn with a backend error.
func Fail(err error) Step {
	return Step{Result: contract.Failed(err)}
}

type Backend struct {
	mu        sync.Mutex
	steps     []Step
	requests  []contract.StreamRequest
	completes []string

	// CompleteFunc answers Complete calls. Defaults to an empty reply.
	CompleteFunc func(prompt string, maxTokens int) (string, error)
	// Fallback is used once the script is exhausted.
	Fallback *Step
}

func New(steps ...Step) *Backend {
	return &Backend{steps: steps}
}

func (b *Backend) Name() string {
	return "scripted"
}

func (b *Backend) StreamTurn(ctx context.Context, req contract.StreamRequest, onText func(string)) contract.TurnResult {
	b.mu.Lock()
	b.requests = append(b.requests, cloneRequest(req))
	var step Step
	switch {
	case len(b.steps) > 0:
		step = b.steps[0]
		b.steps = b.steps[1:]
	case b.Fallback != nil:
		step = *b.Fallback
	default:
		b.mu.Unlock()
		return contract.Failed(errors.New("scripted backend exhausted"))
	}
	b.mu.Unlock()

	if step.Hook != nil {
		step.Hook(ctx, req)
	}
	if step.Block {
		<-ctx.Done()
		return contract.Cancelled("")
	}
	for _, d := range step.Deltas {
		if onText != nil {
			onText(d)
		}
	}
	return step.Result
}

func (b *Backend) Complete(_ context.Context, prompt string, maxTokens int) (string, error) {
	b.mu.Lock()
	b.completes = append(b.completes, prompt)
	fn := b.CompleteFunc
	b.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(prompt, maxTokens)
}

// Requests returns a copy of every StreamTurn request received so far.
func (b *Backend) Requests() []contract.StreamRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]contract.StreamRequest(nil), b.requests...)
}

// Prompts returns every prompt passed to Complete.
func (b *Backend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.completes...)
}

func cloneRequest(req contract.StreamRequest) contract.StreamRequest {
	req.History = append([]contract.Message(nil), req.History...)
	return req
}
