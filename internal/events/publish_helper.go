package events

// PublishHelper wraps event publishing with nil-safety and convenience methods.
// All methods are safe to call even when the underlying publisher is nil.
//
// Thread-safe: All methods can be called concurrently.
type PublishHelper struct {
	publisher Publisher
}

// NewPublishHelper creates a new PublishHelper wrapping the given publisher.
// If p is nil, all publish operations become no-ops.
func NewPublishHelper(p Publisher) *PublishHelper {
	return &PublishHelper{publisher: p}
}

// Publish sends an event to the underlying publisher.
// Safe to call with nil publisher (no-op).
func (ep *PublishHelper) Publish(ev Event) {
	if ep == nil || ep.publisher == nil {
		return
	}
	ep.publisher.Publish(ev)
}

// WorkflowStarted publishes the creation of a workflow instance.
func (ep *PublishHelper) WorkflowStarted(workflowID, workflowType string, stepCount int) {
	ep.Publish(NewEvent(EventWorkflowStarted, workflowID, map[string]any{
		"type":  workflowType,
		"steps": stepCount,
	}))
}

// WorkflowStep publishes a workflow step execution result.
func (ep *PublishHelper) WorkflowStep(workflowID, stepID, stepType string, success bool, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	ep.Publish(NewEvent(EventWorkflowStep, workflowID, StepUpdate{
		StepID:   stepID,
		StepType: stepType,
		Success:  success,
		Error:    errMsg,
	}))
}

// WorkflowCompleted publishes a workflow terminal transition.
func (ep *PublishHelper) WorkflowCompleted(workflowID, status string) {
	ep.Publish(NewEvent(EventWorkflowCompleted, workflowID, map[string]string{
		"status": status,
	}))
}

// PipelineStatus publishes a pipeline status/progress change.
func (ep *PublishHelper) PipelineStatus(update PipelineUpdate) {
	ep.Publish(NewEvent(EventPipelineStatus, update.PipelineID, update))
}

// PipelineStep publishes a validation step transition.
func (ep *PublishHelper) PipelineStep(pipelineID, step, status string) {
	ep.Publish(NewEvent(EventPipelineStep, pipelineID, map[string]string{
		"step":   step,
		"status": status,
	}))
}

// PipelineEscalated publishes an escalation to a fixing agent.
func (ep *PublishHelper) PipelineEscalated(pipelineID, runID string) {
	ep.Publish(NewEvent(EventPipelineEscalated, pipelineID, map[string]string{
		"agent_run_id": runID,
	}))
}

// PhaseStart publishes an autonomous phase start event.
func (ep *PublishHelper) PhaseStart(workflowID, phase string, iteration int) {
	ep.Publish(NewEvent(EventPhase, workflowID, PhaseUpdate{
		Phase:     phase,
		Iteration: iteration,
		Status:    "started",
	}))
}

// PhaseComplete publishes an autonomous phase completion event.
func (ep *PublishHelper) PhaseComplete(workflowID, phase string, iteration int) {
	ep.Publish(NewEvent(EventPhase, workflowID, PhaseUpdate{
		Phase:     phase,
		Iteration: iteration,
		Status:    "completed",
	}))
}

// PhaseSkipped publishes an autonomous phase skip event.
func (ep *PublishHelper) PhaseSkipped(workflowID, phase string, iteration int) {
	ep.Publish(NewEvent(EventPhase, workflowID, PhaseUpdate{
		Phase:     phase,
		Iteration: iteration,
		Status:    "skipped",
	}))
}

// PhaseFailed publishes an autonomous phase failure event.
func (ep *PublishHelper) PhaseFailed(workflowID, phase string, iteration int, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	ep.Publish(NewEvent(EventPhase, workflowID, PhaseUpdate{
		Phase:     phase,
		Iteration: iteration,
		Status:    "failed",
		Error:     errMsg,
	}))
}

// Iteration publishes the start of a convergence iteration.
func (ep *PublishHelper) Iteration(workflowID string, iteration, maxIterations int, lastError string) {
	ep.Publish(NewEvent(EventIteration, workflowID, IterationUpdate{
		Iteration:     iteration,
		MaxIterations: maxIterations,
		LastError:     lastError,
	}))
}

// Converged publishes the final outcome of an autonomous workflow.
func (ep *PublishHelper) Converged(workflowID string, data ConvergedData) {
	ep.Publish(NewEvent(EventConverged, workflowID, data))
}

// Webhook publishes a routed repository event.
func (ep *PublishHelper) Webhook(data WebhookData) {
	ep.Publish(NewEvent(EventWebhook, data.ProjectID, data))
}

// Error publishes an error event.
// Set fatal to true if this error terminates the owning run.
func (ep *PublishHelper) Error(scope, phase, message string, fatal bool) {
	ep.Publish(NewEvent(EventError, scope, ErrorData{
		Phase:   phase,
		Message: message,
		Fatal:   fatal,
	}))
}

// Warning publishes a warning event (non-fatal).
func (ep *PublishHelper) Warning(scope, phase, message string) {
	ep.Publish(NewEvent(EventWarning, scope, WarningData{
		Phase:   phase,
		Message: message,
	}))
}
