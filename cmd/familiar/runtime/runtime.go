package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/daemon"
	"github.com/harunnryd/familiar/internal/daemon/components"
	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/orchestrator/command"

	"golang.org/x/sync/errgroup"
)

// Runtime is the assembled familiar: the daemon owning the components and
// the REPL in front of them.
type Runtime struct {
	Config       *config.Config
	Daemon       *daemon.Daemon
	Store        *components.StoreWorkerComponent
	Orchestrator *components.OrchestratorComponent
	// Scheduler and Desires are nil when desires are disabled.
	Scheduler *components.SchedulerComponent
	Desires   *desire.State
	REPL      *REPL
}

// Run starts the daemon, attaches the REPL once every component is up and
// returns when either side finishes. /quit and end of input shut the
// daemon down cleanly.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		if err := r.Daemon.Start(gctx); err != nil {
			return fmt.Errorf("daemon failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		select {
		case <-r.Daemon.Ready():
		case <-gctx.Done():
			return nil
		}
		r.REPL.Attach(r.Orchestrator.GetLoop(), r.commandHandler())
		return r.REPL.Run(gctx)
	})

	err := g.Wait()
	slog.Debug("Runtime stopped", "uptime", r.Daemon.Uptime(), "error", err)
	return err
}

func (r *Runtime) commandHandler() command.Handler {
	opts := command.Options{
		Conversation: r.Orchestrator.GetLoop().Session(),
		Transcript:   r.Orchestrator.GetRecorder(),
		Desires:      r.Desires,
	}
	if mem := r.Orchestrator.GetMemory(); mem != nil {
		opts.Memory = mem
	}
	return command.NewHandler(opts, r.REPL)
}
