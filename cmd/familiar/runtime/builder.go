package runtime

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/daemon"
	"github.com/harunnryd/familiar/internal/daemon/components"
	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/model"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithBackend(backend model.Backend) RuntimeBuilder
	WithIO(in io.Reader, out io.Writer) RuntimeBuilder
	Build() (*Runtime, error)
}

type DefaultRuntimeBuilder struct {
	ctx     context.Context
	cfg     *config.Config
	backend model.Backend
	in      io.Reader
	out     io.Writer
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

// WithBackend overrides the backend selected by the model config.
func (b *DefaultRuntimeBuilder) WithBackend(backend model.Backend) RuntimeBuilder {
	b.backend = backend
	return b
}

func (b *DefaultRuntimeBuilder) WithIO(in io.Reader, out io.Writer) RuntimeBuilder {
	b.in = in
	b.out = out
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*Runtime, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if b.in == nil {
		b.in = os.Stdin
	}
	if b.out == nil {
		b.out = os.Stdout
	}

	backend := b.backend
	if backend == nil {
		instrumented, err := model.New(b.ctx, b.cfg.Model)
		if err != nil {
			return nil, err
		}
		backend = instrumented
	}

	r := &Runtime{Config: b.cfg}
	if b.cfg.Desire.Enabled {
		r.Desires = desire.NewState(desire.NewStore(b.cfg.Desire.StatePath), desire.Options{Threshold: b.cfg.Desire.Threshold})
	}
	r.REPL = NewREPL(b.in, b.out, b.cfg.Agent.Name, r.Desires)

	d, err := daemon.NewDaemon(b.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon manager: %w", err)
	}
	r.Daemon = d

	r.Store = components.NewStoreWorkerComponent(b.cfg.Store)
	r.Orchestrator = components.NewOrchestratorComponent(b.cfg, backend, r.REPL, r.Desires, r.Store)
	d.AddComponent(r.Store)
	d.AddComponent(r.Orchestrator)
	if r.Desires != nil {
		r.Scheduler = components.NewSchedulerComponent(b.cfg, r.Desires, r.Orchestrator)
		d.AddComponent(r.Scheduler)
	}
	return r, nil
}
