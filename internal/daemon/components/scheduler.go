package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/daemon"
	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/scheduler"
)

// SchedulerComponent ticks the desires and submits fired drives to the
// orchestrator's turn loop.
type SchedulerComponent struct {
	cfg       *config.Config
	desires   *desire.State
	orchComp  *OrchestratorComponent
	mu        sync.RWMutex
	scheduler *scheduler.Scheduler
}

func NewSchedulerComponent(cfg *config.Config, desires *desire.State, orchComp *OrchestratorComponent) *SchedulerComponent {
	return &SchedulerComponent{cfg: cfg, desires: desires, orchComp: orchComp}
}

func (s *SchedulerComponent) Name() string {
	return "Scheduler"
}

func (s *SchedulerComponent) Dependencies() []string {
	return []string{"Orchestrator"}
}

func (s *SchedulerComponent) Init(ctx context.Context) error {
	if s.cfg == nil || s.desires == nil || s.orchComp == nil {
		return fmt.Errorf("required component dependencies not provided")
	}
	loop := s.orchComp.GetLoop()
	if loop == nil {
		return fmt.Errorf("orchestrator not initialized")
	}

	sched, err := scheduler.NewScheduler(s.desires, loop, s.cfg.Scheduler, s.cfg.Agent.CompanionName)
	if err != nil {
		return err
	}
	if err := sched.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	s.mu.Lock()
	s.scheduler = sched
	s.mu.Unlock()
	slog.Debug("Scheduler initialized", "component", s.Name(), "schedule", s.cfg.Scheduler.Schedule)
	return nil
}

func (s *SchedulerComponent) Start(ctx context.Context) error {
	sched := s.GetScheduler()
	if sched == nil {
		return fmt.Errorf("Scheduler not initialized")
	}
	return sched.Start(ctx)
}

func (s *SchedulerComponent) Stop(ctx context.Context) error {
	sched := s.GetScheduler()
	if sched == nil {
		return nil
	}
	return sched.Stop(ctx)
}

func (s *SchedulerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	health := &daemon.ComponentHealth{Name: s.Name()}
	sched := s.GetScheduler()
	if sched == nil {
		health.Error = fmt.Errorf("not initialized")
		return health, nil
	}
	if err := sched.Health(ctx); err != nil {
		health.Error = err
		return health, nil
	}
	health.Healthy = true
	health.Details = map[string]string{"schedule": s.cfg.Scheduler.Schedule}
	if target := s.desires.Curiosity(); target != "" {
		health.Details["curiosity"] = target
	}
	return health, nil
}

func (s *SchedulerComponent) GetScheduler() *scheduler.Scheduler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scheduler
}
