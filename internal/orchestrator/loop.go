package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/familiar/internal/concurrency"
	"github.com/harunnryd/familiar/internal/model/contract"
)

// Presenter renders turns. Calls for one turn arrive on the loop goroutine
// in order: OnTurnStart, any OnText/OnToolCall, then OnTurnDone.
type Presenter interface {
	Observer
	OnTurnStart(origin contract.Origin, label string)
	OnTurnDone(outcome TurnOutcome, err error)
}

// TurnHook runs after a turn that ended with end_turn.
type TurnHook interface {
	AfterTurn(ctx context.Context, outcome TurnOutcome)
}

type TurnHookFunc func(ctx context.Context, outcome TurnOutcome)

func (f TurnHookFunc) AfterTurn(ctx context.Context, outcome TurnOutcome) {
	f(ctx, outcome)
}

type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// Loop drives the engine from a request queue. User requests preempt the
// running turn; self requests only start when nothing else is pending.
type Loop struct {
	engine    *Engine
	presenter Presenter
	hooks     []TurnHook

	mu         sync.Mutex
	queue      []TurnRequest
	busy       bool
	cancelTurn context.CancelFunc
	wake       chan struct{}

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLoop(engine *Engine, presenter Presenter, hooks ...TurnHook) *Loop {
	return &Loop{
		engine:    engine,
		presenter: presenter,
		hooks:     hooks,
		wake:      make(chan struct{}, 1),
	}
}

// AddHook appends a post-turn hook. Call before Start.
func (l *Loop) AddHook(h TurnHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

func (l *Loop) Session() *Session {
	return l.engine.Session()
}

func (l *Loop) Init(ctx context.Context) error {
	if l.engine == nil {
		return fmt.Errorf("engine not configured")
	}
	slog.Debug("Turn loop initialized")
	return nil
}

func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	l.ctx, l.cancel = context.WithCancel(context.WithoutCancel(ctx))
	l.done = make(chan struct{})
	l.running = true

	done := l.done
	runCtx := l.ctx
	concurrency.SafeGo("turn-loop", func() {
		defer close(done)
		l.run(runCtx)
	}, nil)
	slog.Debug("Turn loop started")
	return nil
}

func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.cancel()
	if l.cancelTurn != nil {
		l.cancelTurn()
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		slog.Debug("Turn loop stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("turn loop stop: %w", ctx.Err())
	}
}

func (l *Loop) Health(ctx context.Context) (*ComponentHealth, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	status := &ComponentHealth{Name: "Orchestrator", Healthy: l.running}
	if !l.running {
		status.Error = fmt.Errorf("turn loop not running")
	}
	return status, nil
}

// Submit queues req. A turn in flight is cancelled so req runs next.
func (l *Loop) Submit(req TurnRequest) {
	if req.Origin == "" {
		req.Origin = contract.OriginUser
	}
	l.mu.Lock()
	l.queue = append(l.queue, req)
	if l.cancelTurn != nil {
		slog.Info("Cancelling active turn for new request")
		l.cancelTurn()
	}
	l.mu.Unlock()
	l.signal()
}

// SubmitIfIdle calls fn under the loop lock when no turn is running or
// queued and enqueues the request it returns. It reports whether a
// request was enqueued; fn is not called when the loop is busy.
func (l *Loop) SubmitIfIdle(fn func() (TurnRequest, bool)) bool {
	l.mu.Lock()
	if l.busy || len(l.queue) > 0 || l.engine.Session().Active() {
		l.mu.Unlock()
		return false
	}
	req, ok := fn()
	if !ok {
		l.mu.Unlock()
		return false
	}
	if req.Origin == "" {
		req.Origin = contract.OriginSelf
	}
	l.queue = append(l.queue, req)
	l.mu.Unlock()
	l.signal()
	return true
}

// Busy reports whether a turn is running or queued.
func (l *Loop) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy || len(l.queue) > 0
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context) {
	for {
		req, turnCtx, ok := l.next(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
				continue
			}
		}
		l.runTurn(ctx, turnCtx, req)
	}
}

func (l *Loop) next(ctx context.Context) (TurnRequest, context.Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ctx.Err() != nil || len(l.queue) == 0 {
		return TurnRequest{}, nil, false
	}
	req := l.queue[0]
	l.queue = l.queue[1:]
	turnCtx, cancel := context.WithCancel(ctx)
	l.cancelTurn = cancel
	l.busy = true
	return req, turnCtx, true
}

func (l *Loop) runTurn(loopCtx, turnCtx context.Context, req TurnRequest) {
	defer func() {
		l.mu.Lock()
		if l.cancelTurn != nil {
			l.cancelTurn()
			l.cancelTurn = nil
		}
		l.busy = false
		l.mu.Unlock()
	}()

	if l.presenter != nil {
		l.presenter.OnTurnStart(req.Origin, req.Label)
	}

	var observer Observer
	if l.presenter != nil {
		observer = l.presenter
	}

	var outcome TurnOutcome
	err := concurrency.CatchPanic("turn", func() error {
		var runErr error
		outcome, runErr = l.engine.Run(turnCtx, req, observer)
		return runErr
	})

	if l.presenter != nil {
		l.presenter.OnTurnDone(outcome, err)
	}

	if err != nil || outcome.StopReason != contract.StopEndTurn {
		return
	}

	// hooks outlive a preempted turn but not the loop
	hookCtx := loopCtx
	l.mu.Lock()
	hooks := append([]TurnHook(nil), l.hooks...)
	l.mu.Unlock()
	for _, h := range hooks {
		hook := h
		if hookErr := concurrency.CatchPanic("turn-hook", func() error {
			hook.AfterTurn(hookCtx, outcome)
			return nil
		}); hookErr != nil {
			slog.Error("Turn hook failed", "turn_id", outcome.TurnID, "error", hookErr)
		}
	}
}
