package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/familiar/internal/concurrency"
	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/desire"
	familiarErrors "github.com/harunnryd/familiar/internal/errors"
	"github.com/harunnryd/familiar/internal/model/contract"
	"github.com/harunnryd/familiar/internal/orchestrator"

	"github.com/robfig/cron/v3"
)

// Submitter enqueues a self-originated turn when nothing else is running.
type Submitter interface {
	SubmitIfIdle(fn func() (orchestrator.TurnRequest, bool)) bool
}

// Scheduler ticks the desire state on a cron schedule and turns fired
// drives into self-originated requests.
type Scheduler struct {
	state     *desire.State
	submitter Submitter
	companion string
	schedule  cron.Schedule
	now       func() time.Time

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	done    chan struct{}

	shutdownTimeout time.Duration
}

func NewScheduler(state *desire.State, submitter Submitter, cfg config.SchedulerConfig, companion string) (*Scheduler, error) {
	spec := cfg.Schedule
	if spec == "" {
		spec = config.DefaultSchedulerSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid desire schedule %q: %v: %w", spec, err, familiarErrors.ErrConfig)
	}

	shutdownTimeout, err := config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultSchedulerShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler shutdown timeout: %w", err)
	}

	return &Scheduler{
		state:           state,
		submitter:       submitter,
		companion:       companion,
		schedule:        schedule,
		now:             time.Now,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

func (s *Scheduler) Init(ctx context.Context) error {
	if s.state == nil || s.submitter == nil {
		return familiarErrors.Internal("scheduler requires desire state and submitter")
	}
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	slog.Info("Scheduler initialized")
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.ctx == nil {
		s.mu.Unlock()
		return familiarErrors.Internal("scheduler not initialized")
	}
	s.running = true
	s.done = make(chan struct{})
	runCtx, done := s.ctx, s.done
	s.mu.Unlock()

	concurrency.SafeGo("desire-scheduler", func() {
		defer close(done)
		s.run(runCtx)
	}, nil)

	slog.Info("Scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		slog.Info("Scheduler stopped gracefully")
		return nil
	case <-time.After(s.shutdownTimeout):
		slog.Warn("Scheduler shutdown timeout, force stopping")
		return familiarErrors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Health(ctx context.Context) error {
	s.mu.RLock()
	initialized := s.ctx != nil
	s.mu.RUnlock()
	if !initialized {
		return familiarErrors.Internal("scheduler not initialized")
	}
	if !s.IsRunning() {
		return familiarErrors.Internal("scheduler not running")
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.Tick()
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Scheduler run loop stopped")
			return
		}
	}
}

// Tick advances the drives and, when the loop is idle, submits the drive
// that fired. It reports whether a request was submitted.
func (s *Scheduler) Tick() bool {
	now := s.now()
	evaluated := false
	submitted := s.submitter.SubmitIfIdle(func() (orchestrator.TurnRequest, bool) {
		evaluated = true
		impulse, ok := s.state.Fire(now)
		if !ok {
			return orchestrator.TurnRequest{}, false
		}
		return orchestrator.TurnRequest{
			Text:   impulse.Prompt(s.companion),
			Origin: contract.OriginSelf,
			Label:  impulse.Label(),
		}, true
	})
	if !evaluated {
		// busy: keep levels growing for display, fire on a later tick
		s.state.Tick(now)
	}
	if submitted {
		slog.Debug("Self turn submitted")
	}
	return submitted
}
