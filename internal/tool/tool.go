package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/familiar/internal/model/contract"
)

var ErrDuplicateTool = errors.New("tool already registered")

// Observation is what a tool reports back to the model.
type Observation struct {
	Text  string
	Image *contract.Image
}

// Text builds a text-only observation.
func Text(format string, args ...any) Observation {
	if len(args) == 0 {
		return Observation{Text: format}
	}
	return Observation{Text: fmt.Sprintf(format, args...)}
}

// Tool represents an executable capability.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, input json.RawMessage) (Observation, error)
}

// Toolset groups tools that share state, such as the file workspace.
type Toolset interface {
	Tools() []Tool
}

// Router resolves tool names to implementations and executes calls.
// Registration happens at startup; the table is read-only afterwards.
type Router struct {
	tools map[string]Tool
}

func NewRouter() *Router {
	return &Router{
		tools: make(map[string]Tool),
	}
}

func (r *Router) Register(t Tool) error {
	name := NormalizeToolName(t.Name())
	if name == "" {
		return fmt.Errorf("tool: empty tool name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = t
	return nil
}

// RegisterSet registers every tool of a toolset. Nothing is registered
// when any name collides.
func (r *Router) RegisterSet(set Toolset) error {
	tools := set.Tools()
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		name := NormalizeToolName(t.Name())
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		seen[name] = struct{}{}
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Get(name string) (Tool, bool) {
	t, ok := r.tools[NormalizeToolName(name)]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool definitions sent to the backend, sorted by name.
func (r *Router) Definitions() []contract.ToolDef {
	names := r.Names()
	defs := make([]contract.ToolDef, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, contract.ToolDef{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func NormalizeToolName(name string) string {
	return strings.TrimSpace(name)
}
