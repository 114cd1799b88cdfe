package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/familiar/internal/config"
)

// Daemon owns the familiar's long-lived pieces: the store, the
// orchestrator and the tick scheduler. It brings them up in dependency
// order and takes them down newest first.
type Daemon struct {
	cfg *config.Config

	mu            sync.RWMutex
	components    []Component
	shutdownOrder []string
	health        HealthStatus
	born          time.Time

	ready     chan struct{}
	readyOnce sync.Once
}

// lifecycleTimings holds the parsed daemon durations so a bad value fails
// Start before any component is touched.
type lifecycleTimings struct {
	shutdown        time.Duration
	startupShutdown time.Duration
	healthInterval  time.Duration
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Daemon{
		cfg:    cfg,
		health: StatusStarting,
		born:   time.Now(),
		ready:  make(chan struct{}),
	}, nil
}

// AddComponent registers comp. The last one registered is the first one
// stopped.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	d.shutdownOrder = append([]string{comp.Name()}, d.shutdownOrder...)
	slog.Debug("Component registered", "component", comp.Name(), "registered", len(d.components))
}

// Ready is closed once every component has started.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Start initializes and starts every component, then blocks until ctx is
// cancelled or the process receives SIGINT/SIGTERM, and shuts down in
// reverse registration order. A clean shutdown returns nil.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	timings, err := d.timings()
	if err != nil {
		return err
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(context.WithoutCancel(ctx))
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startComponents(ctx); err != nil {
		_ = d.stopWithin(context.WithoutCancel(ctx), timings.startupShutdown)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	d.readyOnce.Do(func() { close(d.ready) })
	slog.Info("Familiar is awake", "components", len(d.components), "data_dir", d.cfg.Store.DataDir)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	var monitor sync.WaitGroup
	monitor.Add(1)
	go func() {
		defer monitor.Done()
		d.monitorHealth(monitorCtx, timings.healthInterval)
	}()

	<-ctx.Done()
	slog.Debug("Shutting down", "reason", context.Cause(ctx))
	d.setHealth(StatusStopping)
	stopMonitor()
	monitor.Wait()

	return d.stopWithin(context.Background(), timings.shutdown)
}

func (d *Daemon) timings() (lifecycleTimings, error) {
	var t lifecycleTimings
	var err error
	daemonCfg := d.cfg.Daemon
	if t.shutdown, err = config.DurationOrDefault(daemonCfg.ShutdownTimeout, config.DefaultDaemonShutdownTimeout); err != nil {
		return t, fmt.Errorf("parse daemon.shutdown_timeout: %w", err)
	}
	if t.startupShutdown, err = config.DurationOrDefault(daemonCfg.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout); err != nil {
		return t, fmt.Errorf("parse daemon.startup_shutdown_timeout: %w", err)
	}
	if t.healthInterval, err = config.DurationOrDefault(daemonCfg.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval); err != nil {
		return t, fmt.Errorf("parse daemon.health_check_interval: %w", err)
	}
	return t, nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// Uptime reports how long the daemon has existed.
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.born)
}

// ComponentHealth asks every component for a report. A component whose
// check errors is reported unhealthy with that error.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := append([]Component(nil), d.components...)
	d.mu.RUnlock()

	reports := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		report, err := comp.Health(context.Background())
		if report == nil {
			report = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			report.Healthy = false
			report.Error = err
		}
		reports[comp.Name()] = report
	}
	return reports
}

// Component returns the registered component called name, or nil.
func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(name)
}

func (d *Daemon) lookup(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) validateConfig() error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.cfg.Store.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.initOrder()
	if err != nil {
		return err
	}
	slog.Debug("Initializing components", "count", len(order))

	for _, comp := range order {
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s init failed: %w", comp.Name(), err)
		}
	}
	return nil
}

// initOrder sorts components so each comes after everything it depends
// on, scanning in registration order.
func (d *Daemon) initOrder() ([]Component, error) {
	waitingOn := make(map[string]int, len(d.components))
	dependents := make(map[string][]string)
	for _, comp := range d.components {
		waitingOn[comp.Name()] = 0
	}
	for _, comp := range d.components {
		for _, dep := range comp.Dependencies() {
			if _, ok := waitingOn[dep]; !ok {
				return nil, fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
			waitingOn[comp.Name()]++
			dependents[dep] = append(dependents[dep], comp.Name())
		}
	}

	order := make([]Component, 0, len(d.components))
	placed := make(map[string]bool, len(d.components))
	for len(order) < len(d.components) {
		progressed := false
		for _, comp := range d.components {
			name := comp.Name()
			if placed[name] || waitingOn[name] > 0 {
				continue
			}
			placed[name] = true
			order = append(order, comp)
			for _, dependent := range dependents[name] {
				waitingOn[dependent]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, comp := range d.components {
				if !placed[comp.Name()] {
					stuck = append(stuck, comp.Name())
				}
			}
			return nil, fmt.Errorf("circular dependency among %s", strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, comp := range d.components {
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Debug("Component started", "component", comp.Name())
	}
	return nil
}

// stopWithin stops every component but gives up waiting after timeout. A
// component still stopping at that point is left behind.
func (d *Daemon) stopWithin(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.shutdownComponents(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		slog.Error("Shutdown timeout exceeded", "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// shutdownComponents stops everything newest first. A failing Stop is
// logged and does not keep the others running.
func (d *Daemon) shutdownComponents(ctx context.Context) error {
	for _, name := range d.shutdownOrder {
		comp := d.lookup(name)
		if comp == nil {
			continue
		}
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
		}
	}
	d.setHealth(StatusStopped)
	return nil
}

// rollback undoes a partial Init. Every component gets a Stop, including
// ones whose Init never ran.
func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back components", "count", len(d.components))
	_ = d.shutdownComponents(ctx)
}

func (d *Daemon) monitorHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logUnhealthy()
		}
	}
}

func (d *Daemon) logUnhealthy() int {
	unhealthy := 0
	for name, report := range d.ComponentHealth() {
		if report.Healthy {
			continue
		}
		unhealthy++
		slog.Warn("Component unhealthy", "component", name, "error", report.Error, "details", report.Details)
	}
	return unhealthy
}
