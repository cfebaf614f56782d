package engine

import (
	"context"
	"sort"
	"sync"
)

// Input carries the merged data for one step execution: the instance's
// static config data, well-known id fields lifted from dependency
// results, and each dependency's full output under "<depId>_result".
type Input struct {
	// WorkflowID identifies the owning instance.
	WorkflowID string
	// Step is the definition being executed.
	Step StepDefinition
	// Data is the merged input map.
	Data map[string]any
}

// Handler executes one capability. A returned error marks the step
// failed; it never fails the workflow.
type Handler interface {
	Execute(ctx context.Context, in Input) (map[string]any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, in Input) (map[string]any, error)

// Execute calls the function.
func (f HandlerFunc) Execute(ctx context.Context, in Input) (map[string]any, error) {
	return f(ctx, in)
}

// Registry maps step types to capability handlers. Dispatch is a map
// lookup; registering a handler is the only change a new step type
// needs.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a step type to a handler, replacing any previous
// binding.
func (r *Registry) Register(stepType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stepType] = h
}

// Handler returns the handler for a step type.
func (r *Registry) Handler(stepType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stepType]
	return h, ok
}

// Types returns the registered step types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
