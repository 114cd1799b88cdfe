package orchestrator

import (
	"context"
	"sync"
	"time"

	familiarErrors "github.com/harunnryd/familiar/internal/errors"
	"github.com/harunnryd/familiar/internal/model/contract"

	"github.com/oklog/ulid/v2"
)

type State string

const (
	StateIdle           State = "idle"
	StateStreaming      State = "streaming"
	StateExecutingTools State = "executing_tools"
	StateAppending      State = "appending"
	StateDone           State = "done"
)

// AppendListener is told about every batch of messages committed to history.
type AppendListener func(ctx context.Context, msgs []contract.Message)

// Session is the single conversation: an append-only history plus the
// state of the turn currently running on it. Only the engine mutates
// history while a turn is active.
type Session struct {
	mu        sync.Mutex
	id        string
	history   []contract.Message
	state     State
	active    bool
	cancel    context.CancelFunc
	listeners []AppendListener
}

func NewSession(id string) *Session {
	if id == "" {
		id = ulid.Make().String()
	}
	return &Session{id: id, state: StateIdle}
}

func (s *Session) ID() string {
	return s.id
}

// OnAppend registers a listener. Listeners run on the appending goroutine
// after the session lock is released.
func (s *Session) OnAppend(fn AppendListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Begin marks a turn active. cancel aborts it and may be nil.
func (s *Session) Begin(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return familiarErrors.ErrBusy
	}
	s.active = true
	s.cancel = cancel
	s.state = StateIdle
	return nil
}

// End returns the session to idle.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.cancel = nil
	s.state = StateIdle
}

// Cancel aborts the active turn. It reports whether one was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Append commits msgs as one unit. Missing ids and timestamps are filled in.
func (s *Session) Append(ctx context.Context, msgs ...contract.Message) {
	if len(msgs) == 0 {
		return
	}
	now := time.Now()
	committed := make([]contract.Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = ulid.Make().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		committed[i] = m
	}

	s.mu.Lock()
	s.history = append(s.history, committed...)
	listeners := append([]AppendListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, committed)
	}
}

// Clear drops the history. It fails with ErrBusy while a turn is active.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return familiarErrors.ErrBusy
	}
	s.history = nil
	return nil
}

// Snapshot returns a copy of the history.
func (s *Session) Snapshot() []contract.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contract.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
