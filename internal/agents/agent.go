// Package agents defines the pluggable analyzer contract and the built-in
// analyzers that ship with the audit pipeline.
package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fsaudit/fsaudit/internal/types"
)

// Agent analyzes one file and produces zero or more findings.
//
// Analyze must be a pure function of its inputs (no hidden global state)
// so the retry wrapper can safely re-invoke it after a transient failure.
type Agent interface {
	// Name returns the unique identifier for this agent.
	Name() string

	// Analyze inspects one file's path and content.
	Analyze(ctx context.Context, path, content string) ([]types.Finding, error)
}

// Constructor builds an agent instance. Constructors run at composition
// time; returning an error marks the agent unavailable (e.g. missing
// credentials) as an explicit configuration failure rather than a hidden
// runtime branch.
type Constructor func() (Agent, error)

// Registry maps agent names to constructors. It is assembled once by the
// composition root; the orchestrator only ever sees built agents.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds an agent constructor under name.
func (r *Registry) Register(name string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.constructors[name] = ctor
	return nil
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named agents in the given order. An unknown name
// is a configuration error.
func (r *Registry) Build(names []string) ([]Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	built := make([]Agent, 0, len(names))
	for _, name := range names {
		ctor, exists := r.constructors[name]
		if !exists {
			return nil, fmt.Errorf("agent %q not registered (available: %v)", name, r.names())
		}
		agent, err := ctor()
		if err != nil {
			return nil, fmt.Errorf("building agent %q: %w", name, err)
		}
		built = append(built, agent)
	}
	return built, nil
}

// names returns sorted names without locking; callers hold the lock.
func (r *Registry) names() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
