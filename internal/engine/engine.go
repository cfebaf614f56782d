package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/events"
)

// Well-known id fields lifted from a dependency's output into the next
// step's input, so agents can thread artifact ids without knowing which
// step produced them.
var wellKnownKeys = []string{"projectId", "schemaId", "queryId", "suiteId"}

// Config describes a workflow to start.
type Config struct {
	// Type selects a registered template.
	Type string `json:"type"`
	// ProjectID is the owning project, optional.
	ProjectID string `json:"project_id,omitempty"`
	// Data is static config merged into every step's input.
	Data map[string]any `json:"data,omitempty"`
}

// Engine creates workflow instances from templates and executes their
// steps in order. Capabilities are resolved through the registry at
// execution time, so the set of executable step types is whatever has
// been registered, not anything the engine knows about.
//
// Steps of the same instance never run concurrently; drivers of
// different instances do. Cancel never interrupts an in-flight step,
// it wins when the step tries to record its result.
type Engine struct {
	registry *Registry
	store    Store
	events   *events.PublishHelper
	logger   *slog.Logger

	mu        sync.RWMutex
	templates map[string][]StepDefinition

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore replaces the default in-memory instance store.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithEvents sets the event publisher.
func WithEvents(ep *events.PublishHelper) Option {
	return func(e *Engine) { e.events = ep }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine with the built-in workflow templates
// registered. The registry decides which step types are executable.
func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		store:     NewMemStore(),
		events:    events.NewPublishHelper(nil),
		logger:    slog.Default(),
		templates: builtinTemplates(),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the capability registry the engine dispatches
// through.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// RegisterTemplate binds a workflow type to a step template, replacing
// any previous binding. Running instances keep the steps they were
// created with.
func (e *Engine) RegisterTemplate(workflowType string, steps []StepDefinition) {
	cloned := make([]StepDefinition, len(steps))
	copy(cloned, steps)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[workflowType] = cloned
}

// Templates returns the registered workflow types, sorted.
func (e *Engine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	types := make([]string, 0, len(e.templates))
	for t := range e.templates {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (e *Engine) template(workflowType string) ([]StepDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	steps, ok := e.templates[workflowType]
	return steps, ok
}

// Start creates a new instance of a registered workflow type. The
// instance executes nothing until driven by ExecuteNextStep or
// ExecuteWorkflow.
func (e *Engine) Start(ctx context.Context, cfg Config) (*Instance, error) {
	steps, ok := e.template(cfg.Type)
	if !ok {
		return nil, deckerrors.ErrWorkflowTypeUnknown(cfg.Type)
	}

	inst := newInstance(cfg.Type, cfg.ProjectID, cfg.Data, steps)
	e.store.Put(inst)

	e.logger.Info("workflow started",
		"workflow_id", inst.ID,
		"type", inst.Type,
		"project_id", inst.ProjectID,
		"steps", len(inst.Steps))
	e.events.WorkflowStarted(inst.ID, inst.Type, len(inst.Steps))

	return inst, nil
}

// ExecuteNextStep executes the step at CurrentStep and records its
// result. A handler failure is captured in the StepResult and never
// returned as an error; the instance advances either way. Only
// engine-level problems (unknown instance, missing capability) come
// back as errors, and they leave the instance where it was.
func (e *Engine) ExecuteNextStep(ctx context.Context, id string) (*StepResult, error) {
	lock := e.instanceLock(id)
	lock.Lock()
	defer lock.Unlock()

	inst, ok := e.store.Get(id)
	if !ok {
		return nil, deckerrors.ErrWorkflowNotFound(id)
	}
	if inst.Done() {
		// Zero-step template; nothing to execute.
		e.finish(inst, StatusCompleted)
		return nil, nil
	}

	step := inst.Steps[inst.CurrentStep]
	handler, ok := e.registry.Handler(step.Type)
	if !ok {
		return nil, deckerrors.ErrCapabilityMissing(step.Type)
	}

	input := Input{
		WorkflowID: inst.ID,
		Step:       step,
		Data:       buildStepInput(inst, step),
	}

	e.logger.Debug("executing workflow step",
		"workflow_id", inst.ID,
		"step", step.ID,
		"type", step.Type)

	result := executeHandler(ctx, handler, input)

	inst.Results[step.ID] = result
	inst.CurrentStep++ // failed steps advance too

	if result.Success {
		e.logger.Info("workflow step completed",
			"workflow_id", inst.ID,
			"step", step.ID,
			"type", step.Type)
	} else {
		e.logger.Warn("workflow step failed",
			"workflow_id", inst.ID,
			"step", step.ID,
			"type", step.Type,
			"error", result.Error)
	}

	var stepErr error
	if result.Error != "" {
		stepErr = errors.New(result.Error)
	}
	e.events.WorkflowStep(inst.ID, step.ID, step.Type, result.Success, stepErr)

	// A cancel that landed while the handler ran has already moved the
	// instance to history; its terminal state wins over this write.
	if _, active := e.store.Get(id); !active {
		return &result, nil
	}

	if inst.Done() {
		e.finish(inst, StatusCompleted)
	} else {
		e.store.Put(inst)
	}
	return &result, nil
}

// ExecuteWorkflow drives an instance to a terminal state. Handler
// failures are recorded per step and do not stop execution; an error
// raised outside the per-step wrapper marks the instance failed and is
// returned.
func (e *Engine) ExecuteWorkflow(ctx context.Context, id string) (*Instance, error) {
	for {
		if err := ctx.Err(); err != nil {
			e.markFailed(id, err)
			return nil, err
		}

		inst, err := e.Status(id)
		if err != nil {
			return nil, err
		}
		if inst.Status != StatusStarted {
			return inst, nil
		}

		if _, err := e.ExecuteNextStep(ctx, id); err != nil {
			e.markFailed(id, err)
			return nil, err
		}
	}
}

// Cancel transitions an active instance to cancelled and moves it to
// history. Returns false when the instance is not active, so repeated
// cancels are no-ops.
func (e *Engine) Cancel(id string) bool {
	inst, ok := e.store.Get(id)
	if !ok {
		return false
	}
	e.finish(inst, StatusCancelled)
	return true
}

// Status returns an instance by id, checking active instances before
// history.
func (e *Engine) Status(id string) (*Instance, error) {
	if inst, ok := e.store.Get(id); ok {
		return inst, nil
	}
	if inst, ok := e.store.History(id); ok {
		return inst, nil
	}
	return nil, deckerrors.ErrWorkflowNotFound(id)
}

// Active returns all currently active instances.
func (e *Engine) Active() []*Instance {
	return e.store.ListActive()
}

// finish moves an instance out of the active set with a terminal
// status.
func (e *Engine) finish(inst *Instance, status Status) {
	now := time.Now()
	inst.Status = status
	inst.CompletedAt = &now

	e.store.Delete(inst.ID)
	e.store.AppendHistory(inst)
	e.dropLock(inst.ID)

	e.logger.Info("workflow finished",
		"workflow_id", inst.ID,
		"type", inst.Type,
		"status", status)
	e.events.WorkflowCompleted(inst.ID, string(status))
}

// markFailed transitions an active instance to failed. No-op when the
// instance has already left the active set.
func (e *Engine) markFailed(id string, cause error) {
	inst, ok := e.store.Get(id)
	if !ok {
		return
	}
	e.logger.Error("workflow failed",
		"workflow_id", id,
		"type", inst.Type,
		"error", cause)
	e.finish(inst, StatusFailed)
}

func (e *Engine) instanceLock(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

func (e *Engine) dropLock(id string) {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	delete(e.locks, id)
}

// buildStepInput merges the instance's static config data with the
// well-known id fields and full results of the step's dependencies.
func buildStepInput(inst *Instance, step StepDefinition) map[string]any {
	data := make(map[string]any, len(inst.Data)+2*len(step.DependsOn)+1)
	if inst.ProjectID != "" {
		data["projectId"] = inst.ProjectID
	}
	for k, v := range inst.Data {
		data[k] = v
	}
	for _, depID := range step.DependsOn {
		dep, ok := inst.Results[depID]
		if !ok {
			continue
		}
		for _, key := range wellKnownKeys {
			if v, ok := dep.Output[key]; ok {
				data[key] = v
			}
		}
		data[depID+"_result"] = dep.Output
	}
	return data
}

// executeHandler runs one handler and wraps its outcome. Nothing the
// handler does, error or panic, escapes past this call.
func executeHandler(ctx context.Context, h Handler, in Input) (result StepResult) {
	result.ExecutedAt = time.Now()

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Output = nil
			result.Error = fmt.Sprintf("handler panicked: %v", r)
		}
	}()

	out, err := h.Execute(ctx, in)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Output = out
	return result
}
