package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/orchestrator"
	"github.com/harunnryd/familiar/internal/orchestrator/command"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []orchestrator.TurnRequest
}

func (f *fakeSubmitter) Submit(req orchestrator.TurnRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
}

func (f *fakeSubmitter) Busy() bool { return false }

func (f *fakeSubmitter) Requests() []orchestrator.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orchestrator.TurnRequest(nil), f.reqs...)
}

func newTestREPL(t *testing.T, input string) (*REPL, *syncBuffer, *desire.State) {
	t.Helper()
	out := &syncBuffer{}
	state := desire.NewState(desire.NewStore(filepath.Join(t.TempDir(), "desires.json")), desire.Options{})
	return NewREPL(strings.NewReader(input), out, "Kuro", state), out, state
}

func TestREPL_RunRequiresAttach(t *testing.T) {
	r, _, _ := newTestREPL(t, "")
	assert.Error(t, r.Run(context.Background()))
}

func TestREPL_SubmitsUserLines(t *testing.T) {
	r, out, _ := newTestREPL(t, "hello\n\n  how are you?  \n")
	sub := &fakeSubmitter{}
	r.Attach(sub, command.NewHandler(command.Options{}, r))

	require.NoError(t, r.Run(context.Background()))

	reqs := sub.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "hello", reqs[0].Text)
	assert.Equal(t, contract.OriginUser, reqs[0].Origin)
	assert.Equal(t, "how are you?", reqs[1].Text)
	assert.Contains(t, out.String(), "Kuro is here.")
}

func TestREPL_QuitStopsReading(t *testing.T) {
	r, out, _ := newTestREPL(t, "/quit\nhello\n")
	sub := &fakeSubmitter{}
	r.Attach(sub, command.NewHandler(command.Options{}, r))

	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, sub.Requests())
	assert.Contains(t, out.String(), "See you later.")
}

type failingHandler struct{}

func (failingHandler) CanHandle(string) bool                 { return true }
func (failingHandler) Execute(context.Context, string) error { return errors.New("output closed") }

func TestREPL_HandlerErrorEndsRun(t *testing.T) {
	r, _, _ := newTestREPL(t, "/help\n")
	r.Attach(&fakeSubmitter{}, failingHandler{})
	assert.EqualError(t, r.Run(context.Background()), "output closed")
}

func TestREPL_RendersSelfTurn(t *testing.T) {
	r, out, state := newTestREPL(t, "")
	require.True(t, state.SetCuriosity("the moon"))

	r.OnTurnStart(contract.OriginSelf, "look_around: the moon")
	r.OnText("Let me look.")
	r.OnToolCall(contract.ToolCall{Name: "web_search", Arguments: map[string]any{"query": strings.Repeat("moon ", 40)}})
	r.OnTurnDone(orchestrator.TurnOutcome{StopReason: contract.StopEndTurn}, nil)

	text := out.String()
	assert.Contains(t, text, "✦ look_around: the moon")
	assert.Contains(t, text, "Kuro:")
	assert.Contains(t, text, "Let me look.")
	assert.Contains(t, text, "→ web_search")
	assert.Contains(t, text, "…")
	assert.Contains(t, text, "(curious about: the moon)")
}

func TestREPL_RendersFailures(t *testing.T) {
	r, out, _ := newTestREPL(t, "")

	r.OnTurnDone(orchestrator.TurnOutcome{}, errors.New("backend unavailable"))
	r.OnTurnDone(orchestrator.TurnOutcome{StopReason: contract.StopCancelled}, nil)
	r.OnTurnDone(orchestrator.TurnOutcome{StopReason: contract.StopEndTurn, Truncated: true, Iterations: 3}, nil)

	text := out.String()
	assert.Contains(t, text, "✗ backend unavailable")
	assert.Contains(t, text, "(interrupted)")
	assert.Contains(t, text, orchestrator.TruncationNotice(3))
	assert.NotContains(t, text, "curious about")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abc", 5))
	assert.Equal(t, "ab…", preview("abcdef", 2))
	assert.Equal(t, "気に…", preview("気になる", 2))
}
