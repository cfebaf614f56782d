// Package events provides event types and publishing infrastructure for deckhand.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// Workflow engine events

	// EventWorkflowStarted indicates a workflow instance was created.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowStep indicates a workflow step finished executing.
	EventWorkflowStep EventType = "workflow_step"
	// EventWorkflowCompleted indicates a workflow instance reached a terminal state.
	EventWorkflowCompleted EventType = "workflow_completed"

	// Validation pipeline events

	// EventPipelineAdmitted indicates a validation pipeline was created or reused.
	EventPipelineAdmitted EventType = "pipeline_admitted"
	// EventPipelineStep indicates a validation step started or finished.
	EventPipelineStep EventType = "pipeline_step"
	// EventPipelineStatus indicates a pipeline status/progress change.
	EventPipelineStatus EventType = "pipeline_status"
	// EventPipelineEscalated indicates a failure was escalated to a fixing agent.
	EventPipelineEscalated EventType = "pipeline_escalated"

	// Autonomous workflow events

	// EventPhase indicates an autonomous phase status change.
	EventPhase EventType = "phase"
	// EventIteration indicates a new convergence iteration began.
	EventIteration EventType = "iteration"
	// EventConverged indicates an autonomous workflow finished.
	EventConverged EventType = "converged"

	// EventWebhook indicates an inbound repository event was routed.
	EventWebhook EventType = "webhook"
	// EventError indicates an error occurred.
	EventError EventType = "error"
	// EventWarning indicates a non-fatal warning.
	EventWarning EventType = "warning"
)

// Event represents a published event. Scope identifies the entity the event
// belongs to: a workflow instance ID, pipeline ID, or autonomous workflow ID.
type Event struct {
	Type  EventType `json:"type"`
	Scope string    `json:"scope"`
	Data  any       `json:"data"`
	Time  time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, scope string, data any) Event {
	return Event{
		Type:  eventType,
		Scope: scope,
		Data:  data,
		Time:  time.Now(),
	}
}

// StepUpdate represents a workflow step execution result.
type StepUpdate struct {
	StepID   string `json:"step_id"`
	StepType string `json:"step_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// PipelineUpdate represents a validation pipeline state change.
type PipelineUpdate struct {
	PipelineID  string `json:"pipeline_id"`
	ProjectID   string `json:"project_id"`
	PRNumber    int    `json:"pr_number"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PhaseUpdate represents an autonomous phase status change.
type PhaseUpdate struct {
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
	Status    string `json:"status"` // started, completed, failed, skipped
	Error     string `json:"error,omitempty"`
}

// IterationUpdate represents the start of a convergence iteration.
type IterationUpdate struct {
	Iteration     int    `json:"iteration"`
	MaxIterations int    `json:"max_iterations"`
	LastError     string `json:"last_error,omitempty"`
}

// ConvergedData represents the final outcome of an autonomous workflow.
type ConvergedData struct {
	Status          string `json:"status"` // completed, failed
	Iterations      int    `json:"iterations"`
	RequirementsMet bool   `json:"requirements_met"`
	Duration        string `json:"duration,omitempty"`
}

// WebhookData represents a routed repository event.
type WebhookData struct {
	ProjectID string `json:"project_id"`
	Event     string `json:"event"`
	Action    string `json:"action,omitempty"`
	PRNumber  int    `json:"pr_number,omitempty"`
}

// ErrorData represents error information.
type ErrorData struct {
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// WarningData represents a non-fatal warning.
type WarningData struct {
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message"`
}
