package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/orchestrator/memory"
)

type fakeTools struct {
	mu     sync.Mutex
	calls  []contract.ToolCall
	onCall func(call contract.ToolCall)
	fail   map[string]bool
}

func (f *fakeTools) Execute(ctx context.Context, call contract.ToolCall) contract.ToolResult {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if f.fail[call.Name] {
		return contract.ToolResult{ToolCallID: call.ID, Name: call.Name, Text: "Tool " + call.Name + " failed: boom", IsError: true}
	}
	return contract.ToolResult{ToolCallID: call.ID, Name: call.Name, Text: call.Name + " ok"}
}

func (f *fakeTools) Definitions() []contract.ToolDef {
	return []contract.ToolDef{{Name: "look"}, {Name: "time"}}
}

func (f *fakeTools) Calls() []contract.ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contract.ToolCall(nil), f.calls...)
}

type fakeRecaller struct {
	memories []memory.Memory
	err      error
	queries  []string
}

func (f *fakeRecaller) Retrieve(_ context.Context, query string, k int) ([]memory.Memory, error) {
	f.queries = append(f.queries, fmt.Sprintf("%s/%d", query, k))
	return f.memories, f.err
}

type recordingPresenter struct {
	mu       sync.Mutex
	text     strings.Builder
	calls    []string
	starts   []string
	outcomes []TurnOutcome
	errs     []error
}

func (p *recordingPresenter) OnText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text.WriteString(text)
}

func (p *recordingPresenter) OnToolCall(call contract.ToolCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call.Name)
}

func (p *recordingPresenter) OnTurnStart(origin contract.Origin, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = append(p.starts, string(origin)+":"+label)
}

func (p *recordingPresenter) OnTurnDone(outcome TurnOutcome, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
	p.errs = append(p.errs, err)
}

func (p *recordingPresenter) Outcomes() []TurnOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TurnOutcome(nil), p.outcomes...)
}

func (p *recordingPresenter) Starts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.starts...)
}

func (p *recordingPresenter) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text.String()
}

func call(id, name string) contract.ToolCall {
	return contract.ToolCall{ID: id, Name: name, Arguments: map[string]any{}}
}

func roles(msgs []contract.Message) []contract.Role {
	out := make([]contract.Role, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}
