package tool

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// MemoryAccess is the long-term memory surface used by the memory and
// theory-of-mind tools.
type MemoryAccess interface {
	Recall(ctx context.Context, query string, k int) ([]string, error)
	Remember(ctx context.Context, text, kind string) error
}

// BuiltinOptions carries runtime dependencies needed by built-in tool factories.
type BuiltinOptions struct {
	Workspace           string
	Denylist            []string
	HTTPClient          *http.Client
	WebTimeout          time.Duration
	WebSearchURL        string
	WebMaxContentLength int
	Memory              MemoryAccess
	RecallK             int
	CompanionName       string
}

const (
	DefaultBuiltinWebTimeout          = 15 * time.Second
	DefaultBuiltinWebMaxContentLength = 5000
	DefaultBuiltinRecallK             = 3
)

// HTTP returns the configured client or one with the web timeout applied.
func (o BuiltinOptions) HTTP() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.WebTimeout
	if timeout <= 0 {
		timeout = DefaultBuiltinWebTimeout
	}
	return &http.Client{Timeout: timeout}
}

// BuiltinFactory builds the tools for one catalog entry. Returning no
// tools skips the entry, e.g. memory tools without a memory backend.
type BuiltinFactory func(options BuiltinOptions) ([]Tool, error)

var builtinCatalog = struct {
	mu        sync.RWMutex
	factories map[string]BuiltinFactory
}{
	factories: map[string]BuiltinFactory{},
}

// RegisterBuiltin registers a built-in tool factory under a catalog name.
// Intended to be called in init() from built-in tool files.
func RegisterBuiltin(name string, factory BuiltinFactory) {
	normalized := NormalizeToolName(name)
	if normalized == "" {
		panic("tool: built-in name cannot be empty")
	}
	if factory == nil {
		panic(fmt.Sprintf("tool: built-in factory cannot be nil (%s)", normalized))
	}

	builtinCatalog.mu.Lock()
	defer builtinCatalog.mu.Unlock()

	if _, exists := builtinCatalog.factories[normalized]; exists {
		panic(fmt.Sprintf("tool: built-in already registered: %s", normalized))
	}
	builtinCatalog.factories[normalized] = factory
}

// BuiltinNames returns all registered catalog names in deterministic order.
func BuiltinNames() []string {
	builtinCatalog.mu.RLock()
	defer builtinCatalog.mu.RUnlock()

	names := make([]string, 0, len(builtinCatalog.factories))
	for name := range builtinCatalog.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstantiateBuiltins constructs all built-in tools using their registered factories.
func InstantiateBuiltins(options BuiltinOptions) ([]Tool, error) {
	names := BuiltinNames()

	builtinCatalog.mu.RLock()
	factories := make(map[string]BuiltinFactory, len(builtinCatalog.factories))
	for name, factory := range builtinCatalog.factories {
		factories[name] = factory
	}
	builtinCatalog.mu.RUnlock()

	var tools []Tool
	for _, name := range names {
		built, err := factories[name](options)
		if err != nil {
			return nil, fmt.Errorf("instantiate built-in %q: %w", name, err)
		}
		tools = append(tools, built...)
	}

	return tools, nil
}

// RegisterBuiltins instantiates the catalog into the router.
func (r *Router) RegisterBuiltins(options BuiltinOptions) error {
	tools, err := InstantiateBuiltins(options)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
