package daemon

import (
	"context"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's report to the health monitor. Details
// carries what a person debugging a stuck familiar wants to see, such as
// the session state or the tick schedule.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
	Details map[string]string
}

// Component is a unit the daemon owns. Init runs in dependency order
// before any Start; Stop runs in reverse registration order and must be
// safe to call after a failed Init.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
