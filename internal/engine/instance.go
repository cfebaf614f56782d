// Package engine runs multi-step agent workflows. A workflow instance
// is created from a per-type template of step definitions and executes
// its steps strictly in order; each step's capability is resolved
// through a registry, so new step types are registrations rather than
// engine changes.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the instance will never execute again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepDefinition describes one step of a workflow template. Definitions
// are immutable once an instance is created.
type StepDefinition struct {
	// ID names the step inside its workflow.
	ID string `json:"id" yaml:"id"`
	// Type is the capability key resolved through the registry.
	Type string `json:"type" yaml:"type"`
	// Agent labels which agent persona owns the step.
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`
	// Description is shown in status output.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// DependsOn lists step ids whose results feed this step's input.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// StepResult is the recorded outcome of one step execution.
type StepResult struct {
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// Instance is one running or finished workflow.
type Instance struct {
	// ID is the unique identifier (uuid).
	ID string `json:"id"`

	// Type names the template the instance was created from.
	Type string `json:"type"`

	// ProjectID is the owning project, when the workflow has one.
	ProjectID string `json:"project_id,omitempty"`

	// Data is the static config data merged into every step's input.
	Data map[string]any `json:"data,omitempty"`

	// Steps is the ordered step list cloned from the template.
	Steps []StepDefinition `json:"steps"`

	// CurrentStep indexes the next step to execute.
	CurrentStep int `json:"current_step"`

	// Results maps step id to its recorded outcome.
	Results map[string]StepResult `json:"results,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// newInstance creates a started instance from a template's steps.
func newInstance(wfType, projectID string, data map[string]any, steps []StepDefinition) *Instance {
	cloned := make([]StepDefinition, len(steps))
	copy(cloned, steps)

	return &Instance{
		ID:          uuid.NewString(),
		Type:        wfType,
		ProjectID:   projectID,
		Data:        data,
		Steps:       cloned,
		CurrentStep: 0,
		Results:     make(map[string]StepResult),
		Status:      StatusStarted,
		CreatedAt:   time.Now(),
	}
}

// Done reports whether every step has executed.
func (w *Instance) Done() bool {
	return w.CurrentStep >= len(w.Steps)
}

// Clone returns a deep copy of the instance.
func (w *Instance) Clone() *Instance {
	cp := *w

	cp.Steps = make([]StepDefinition, len(w.Steps))
	copy(cp.Steps, w.Steps)

	if w.Data != nil {
		cp.Data = make(map[string]any, len(w.Data))
		for k, v := range w.Data {
			cp.Data[k] = v
		}
	}
	if w.Results != nil {
		cp.Results = make(map[string]StepResult, len(w.Results))
		for k, v := range w.Results {
			cp.Results[k] = v
		}
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
