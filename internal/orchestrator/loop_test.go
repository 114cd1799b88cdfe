package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/model/modeltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startLoop(t *testing.T, backend *modeltest.Backend, hooks ...TurnHook) (*Loop, *recordingPresenter) {
	t.Helper()
	engine := NewEngine(NewSession("loop"), backend, &fakeTools{}, EngineOptions{})
	presenter := &recordingPresenter{}
	loop := NewLoop(engine, presenter, hooks...)
	require.NoError(t, loop.Init(context.Background()))
	require.NoError(t, loop.Start(context.Background()))
	return loop, presenter
}

func stopLoop(t *testing.T, loop *Loop) {
	t.Helper()
	require.NoError(t, loop.Stop(context.Background()))
}

func waitOutcomes(t *testing.T, p *recordingPresenter, n int) []TurnOutcome {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.Outcomes()) >= n }, 2*time.Second, 5*time.Millisecond)
	return p.Outcomes()
}

func TestLoop_RunsSubmittedTurn(t *testing.T) {
	defer goleak.VerifyNone(t)

	var hooked atomic.Int32
	hook := TurnHookFunc(func(ctx context.Context, outcome TurnOutcome) {
		assert.NoError(t, ctx.Err())
		assert.Equal(t, "hello", outcome.Text)
		hooked.Add(1)
	})
	loop, presenter := startLoop(t, modeltest.New(modeltest.Reply("hello")), hook)
	defer stopLoop(t, loop)

	loop.Submit(TurnRequest{Text: "hi"})
	outcomes := waitOutcomes(t, presenter, 1)

	assert.Equal(t, contract.StopEndTurn, outcomes[0].StopReason)
	assert.Equal(t, []string{"user:"}, presenter.Starts())
	assert.Equal(t, "hello", presenter.Text())
	require.Eventually(t, func() bool { return hooked.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !loop.Busy() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, loop.Session().Len())

	health, err := loop.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}

func TestLoop_UserSubmitPreemptsRunningTurn(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := modeltest.New(modeltest.Step{Block: true}, modeltest.Reply("second answer"))
	var hooked atomic.Int32
	loop, presenter := startLoop(t, backend, TurnHookFunc(func(context.Context, TurnOutcome) { hooked.Add(1) }))
	defer stopLoop(t, loop)

	loop.Submit(TurnRequest{Text: "first"})
	require.Eventually(t, func() bool { return loop.Session().Active() }, time.Second, 5*time.Millisecond)
	loop.Submit(TurnRequest{Text: "second"})

	outcomes := waitOutcomes(t, presenter, 2)
	assert.Equal(t, contract.StopCancelled, outcomes[0].StopReason)
	assert.Equal(t, contract.StopEndTurn, outcomes[1].StopReason)
	assert.Equal(t, "second answer", outcomes[1].Text)

	require.Eventually(t, func() bool { return hooked.Load() == 1 }, time.Second, 5*time.Millisecond)
	history := loop.Session().Snapshot()
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Text())
}

func TestLoop_SubmitIfIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := modeltest.New(modeltest.Step{Block: true}, modeltest.Reply("looked around"))
	loop, presenter := startLoop(t, backend)
	defer stopLoop(t, loop)

	loop.Submit(TurnRequest{Text: "busy work"})
	require.Eventually(t, func() bool { return loop.Session().Active() }, time.Second, 5*time.Millisecond)

	called := false
	ok := loop.SubmitIfIdle(func() (TurnRequest, bool) {
		called = true
		return TurnRequest{Text: "impulse"}, true
	})
	assert.False(t, ok)
	assert.False(t, called)

	loop.Session().Cancel()
	outcomes := waitOutcomes(t, presenter, 1)
	assert.Equal(t, contract.StopCancelled, outcomes[0].StopReason)
	require.Eventually(t, func() bool { return !loop.Busy() }, time.Second, 5*time.Millisecond)

	assert.False(t, loop.SubmitIfIdle(func() (TurnRequest, bool) { return TurnRequest{}, false }))
	ok = loop.SubmitIfIdle(func() (TurnRequest, bool) {
		return TurnRequest{Text: "(impulse) look around", Label: "look_around"}, true
	})
	assert.True(t, ok)

	outcomes = waitOutcomes(t, presenter, 2)
	assert.Equal(t, contract.OriginSelf, outcomes[1].Origin)
	assert.Equal(t, []string{"user:", "self:look_around"}, presenter.Starts())
}

func TestLoop_HooksSkipFailedTurns(t *testing.T) {
	defer goleak.VerifyNone(t)

	var hooked atomic.Int32
	backend := modeltest.New(modeltest.Fail(errors.New("offline")))
	loop, presenter := startLoop(t, backend, TurnHookFunc(func(context.Context, TurnOutcome) { hooked.Add(1) }))
	defer stopLoop(t, loop)

	loop.Submit(TurnRequest{Text: "hi"})
	waitOutcomes(t, presenter, 1)

	presenter.mu.Lock()
	err := presenter.errs[0]
	presenter.mu.Unlock()
	assert.Error(t, err)
	assert.Zero(t, hooked.Load())
	assert.Zero(t, loop.Session().Len())
}

func TestLoop_HookPanicIsContained(t *testing.T) {
	defer goleak.VerifyNone(t)

	var after atomic.Int32
	loop, presenter := startLoop(t, modeltest.New(modeltest.Reply("a"), modeltest.Reply("b")),
		TurnHookFunc(func(context.Context, TurnOutcome) { panic("boom") }),
		TurnHookFunc(func(context.Context, TurnOutcome) { after.Add(1) }),
	)
	defer stopLoop(t, loop)

	loop.Submit(TurnRequest{Text: "one"})
	waitOutcomes(t, presenter, 1)
	require.Eventually(t, func() bool { return after.Load() == 1 }, time.Second, 5*time.Millisecond)

	loop.Submit(TurnRequest{Text: "two"})
	waitOutcomes(t, presenter, 2)
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := NewEngine(NewSession(""), modeltest.New(), &fakeTools{}, EngineOptions{})
	loop := NewLoop(engine, nil)
	require.NoError(t, loop.Start(context.Background()))
	require.NoError(t, loop.Stop(context.Background()))
	require.NoError(t, loop.Stop(context.Background()))

	health, err := loop.Health(context.Background())
	require.NoError(t, err)
	assert.False(t, health.Healthy)
}
