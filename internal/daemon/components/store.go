package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/daemon"
	"github.com/harunnryd/familiar/internal/store"
)

type StoreWorkerComponent struct {
	storeCfg    config.StoreConfig
	worker      *store.Worker
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewStoreWorkerComponent(storeCfg config.StoreConfig) *StoreWorkerComponent {
	return &StoreWorkerComponent{storeCfg: storeCfg}
}

func (s *StoreWorkerComponent) Name() string {
	return "StoreWorker"
}

func (s *StoreWorkerComponent) Dependencies() []string {
	return []string{}
}

func (s *StoreWorkerComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("StoreWorker init cancelled: %w", ctx.Err())
	default:
	}

	worker, err := store.NewWorker(s.storeCfg)
	if err != nil {
		return fmt.Errorf("failed to init store worker: %w", err)
	}

	s.worker = worker
	s.initialized = true
	slog.Debug("StoreWorker initialized", "component", s.Name(), "data_dir", worker.DataDir())
	return nil
}

func (s *StoreWorkerComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("StoreWorker not initialized")
	}

	s.worker.Start()
	s.started = true
	slog.Debug("StoreWorker started", "component", s.Name())
	return nil
}

// Stop releases the data dir lock. A worker that was initialized but never
// started still holds the lock, so it is stopped too.
func (s *StoreWorkerComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	s.worker.Stop()
	s.started = false
	s.initialized = false
	slog.Debug("StoreWorker stopped", "component", s.Name())
	return nil
}

func (s *StoreWorkerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := &daemon.ComponentHealth{Name: s.Name()}
	switch {
	case !s.initialized:
		health.Error = fmt.Errorf("not initialized")
	case !s.started:
		health.Error = fmt.Errorf("not started")
	case !s.worker.IsLockHeld():
		health.Error = fmt.Errorf("lock not held")
	case !s.worker.IsRunning():
		health.Error = fmt.Errorf("loop not running")
	default:
		health.Healthy = true
		health.Details = map[string]string{"data_dir": s.worker.DataDir()}
	}
	return health, nil
}

func (s *StoreWorkerComponent) GetWorker() *store.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}
