package components

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/harunnryd/familiar/internal/config"
	"github.com/harunnryd/familiar/internal/curiosity"
	"github.com/harunnryd/familiar/internal/daemon"
	"github.com/harunnryd/familiar/internal/desire"
	"github.com/harunnryd/familiar/internal/model"
	"github.com/harunnryd/familiar/internal/orchestrator"
	"github.com/harunnryd/familiar/internal/orchestrator/hooks"
	"github.com/harunnryd/familiar/internal/orchestrator/memory"
	"github.com/harunnryd/familiar/internal/orchestrator/session"
	"github.com/harunnryd/familiar/internal/tool"

	_ "github.com/harunnryd/familiar/internal/tool/builtin"
)

const (
	MainSessionID    = "main"
	mainSessionTitle = "Conversation"
)

// OrchestratorComponent owns the turn loop and everything a turn touches:
// tools, long-term memory, the transcript recorder and post-turn hooks.
type OrchestratorComponent struct {
	cfg             *config.Config
	backend         model.Backend
	presenter       orchestrator.Presenter
	desires         *desire.State
	storeWorkerComp *StoreWorkerComponent

	mu       sync.RWMutex
	loop     *orchestrator.Loop
	memory   *memory.Manager
	recorder *session.Recorder
	tools    *tool.Router
	remember *hooks.Remember
}

// NewOrchestratorComponent wires the turn loop. desires may be nil when
// autonomous drives are disabled.
func NewOrchestratorComponent(cfg *config.Config, backend model.Backend, presenter orchestrator.Presenter, desires *desire.State, storeComp *StoreWorkerComponent) *OrchestratorComponent {
	return &OrchestratorComponent{
		cfg:             cfg,
		backend:         backend,
		presenter:       presenter,
		desires:         desires,
		storeWorkerComp: storeComp,
	}
}

func (o *OrchestratorComponent) Name() string {
	return "Orchestrator"
}

func (o *OrchestratorComponent) Dependencies() []string {
	return []string{"StoreWorker"}
}

func (o *OrchestratorComponent) Init(ctx context.Context) error {
	if o.cfg == nil || o.backend == nil || o.storeWorkerComp == nil {
		return fmt.Errorf("required component dependencies not provided")
	}
	storeWorker := o.storeWorkerComp.GetWorker()
	if storeWorker == nil {
		return fmt.Errorf("required dependencies not initialized")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var recaller orchestrator.Recaller
	builtinOpts, err := o.builtinOptions(storeWorker.DataDir())
	if err != nil {
		return err
	}
	if o.cfg.Memory.Enabled {
		o.memory = memory.NewManager(storeWorker, o.embedder(), memory.Options{StoreChars: o.cfg.Memory.StoreChars})
		recaller = o.memory
		builtinOpts.Memory = o.memory
		slog.Debug("Long-term memory enabled", "collection", o.memory.Collection())
	}

	o.tools = tool.NewRouter()
	if err := o.tools.RegisterBuiltins(builtinOpts); err != nil {
		return fmt.Errorf("failed to initialize tools: %w", err)
	}
	slog.Debug("Tools registered", "tools", o.tools.Names())

	sess := orchestrator.NewSession(MainSessionID)
	o.recorder = session.NewRecorder(storeWorker, MainSessionID, mainSessionTitle)
	sess.OnAppend(o.recorder.Record)

	engineOpts := orchestrator.EngineOptions{
		MaxIterations: o.cfg.Agent.MaxIterations,
		MaxTokens:     o.cfg.Agent.MaxTokens,
		RecallK:       o.cfg.Memory.RecallK,
		Prompt: orchestrator.PromptBuilder{
			Name:          o.cfg.Agent.Name,
			Companion:     o.cfg.Agent.CompanionName,
			IdentityPaths: o.cfg.Agent.IdentityPaths,
			Template:      o.cfg.Agent.SystemPrompt,
		},
		Memory: recaller,
	}
	if o.cfg.Agent.Planning {
		engineOpts.Planner = orchestrator.NewPlanner(o.backend)
	}
	engine := orchestrator.NewEngine(sess, o.backend, o.tools, engineOpts)

	o.loop = orchestrator.NewLoop(engine, o.presenter)
	if o.desires != nil {
		o.loop.AddHook(hooks.NewCompanion(o.desires))
		o.loop.AddHook(hooks.NewCuriosity(curiosity.NewExtractor(o.backend), o.desires, o.cfg.Desire.CuriosityBoost))
	}
	if o.memory != nil {
		o.remember = hooks.NewRemember(o.memory)
		o.loop.AddHook(o.remember)
	}

	if err := o.loop.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize turn loop: %w", err)
	}
	slog.Debug("Orchestrator initialized", "component", o.Name(), "planning", o.cfg.Agent.Planning, "desires", o.desires != nil)
	return nil
}

// embedder prefers the backend's own embeddings and falls back to the
// local hashed embedder.
func (o *OrchestratorComponent) embedder() model.Embedder {
	if capable, ok := o.backend.(interface{ CanEmbed() bool }); ok && !capable.CanEmbed() {
		return memory.NewHashEmbedder(0)
	}
	if e, ok := o.backend.(model.Embedder); ok {
		return e
	}
	return memory.NewHashEmbedder(0)
}

func (o *OrchestratorComponent) builtinOptions(dataDir string) (tool.BuiltinOptions, error) {
	webTimeout, err := config.DurationOrDefault(o.cfg.Tools.Web.Timeout, config.DefaultWebToolTimeout)
	if err != nil {
		return tool.BuiltinOptions{}, fmt.Errorf("parse web tool timeout: %w", err)
	}

	workspace := o.cfg.Tools.Files.Workspace
	if workspace == "" {
		workspace = config.DefaultFilesWorkspace
	}
	if !filepath.IsAbs(workspace) {
		workspace = filepath.Join(dataDir, workspace)
	}

	return tool.BuiltinOptions{
		Workspace:           workspace,
		Denylist:            o.cfg.Tools.Files.Denylist,
		WebTimeout:          webTimeout,
		WebSearchURL:        o.cfg.Tools.Web.SearchURL,
		WebMaxContentLength: o.cfg.Tools.Web.MaxContentLength,
		RecallK:             o.cfg.Memory.RecallK,
		CompanionName:       o.cfg.Agent.CompanionName,
	}, nil
}

func (o *OrchestratorComponent) Start(ctx context.Context) error {
	loop := o.GetLoop()
	if loop == nil {
		return fmt.Errorf("Orchestrator not initialized")
	}
	return loop.Start(ctx)
}

// Stop halts the loop, then waits for background memory writes.
func (o *OrchestratorComponent) Stop(ctx context.Context) error {
	o.mu.RLock()
	loop, remember := o.loop, o.remember
	o.mu.RUnlock()

	if loop == nil {
		return nil
	}
	err := loop.Stop(ctx)
	if remember != nil {
		remember.Wait()
	}
	slog.Debug("Orchestrator stopped", "component", o.Name())
	return err
}

func (o *OrchestratorComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	loop := o.GetLoop()
	if loop == nil {
		return &daemon.ComponentHealth{Name: o.Name(), Error: fmt.Errorf("not initialized")}, nil
	}
	status, err := loop.Health(ctx)
	if err != nil {
		return nil, err
	}
	sess := loop.Session()
	return &daemon.ComponentHealth{
		Name:    o.Name(),
		Healthy: status.Healthy,
		Error:   status.Error,
		Details: map[string]string{
			"state":   string(sess.State()),
			"history": strconv.Itoa(sess.Len()),
			"busy":    strconv.FormatBool(loop.Busy()),
		},
	}, nil
}

func (o *OrchestratorComponent) GetLoop() *orchestrator.Loop {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loop
}

// GetMemory returns nil when memory is disabled.
func (o *OrchestratorComponent) GetMemory() *memory.Manager {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.memory
}

func (o *OrchestratorComponent) GetRecorder() *session.Recorder {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.recorder
}

func (o *OrchestratorComponent) GetTools() *tool.Router {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.tools
}
