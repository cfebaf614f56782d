// Package errors provides structured error types for deckhand.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for deckhand.
const (
	// Initialization errors
	CodeNotInitialized     Code = "DECKHAND_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "DECKHAND_ALREADY_INITIALIZED"

	// Workflow engine errors
	CodeWorkflowTypeUnknown Code = "WORKFLOW_TYPE_UNKNOWN"
	CodeWorkflowNotFound    Code = "WORKFLOW_NOT_FOUND"
	CodeCapabilityMissing   Code = "CAPABILITY_MISSING"
	CodeEngineFault         Code = "ENGINE_FAULT"

	// Validation pipeline errors
	CodePipelineNotFound Code = "PIPELINE_NOT_FOUND"
	CodePipelineTerminal Code = "PIPELINE_TERMINAL"

	// Project errors
	CodeProjectNotFound Code = "PROJECT_NOT_FOUND"

	// Webhook errors
	CodeWebhookSignature Code = "WEBHOOK_SIGNATURE_INVALID"

	// Autonomous workflow errors
	CodeConvergenceExhausted Code = "CONVERGENCE_EXHAUSTED"
	CodeMergeBlocked         Code = "MERGE_BLOCKED"

	// External collaborator errors
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"
	CodeExternalCall     Code = "EXTERNAL_CALL_FAILED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
	CategoryUnauthorized
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNotInitialized:       CategoryBadRequest,
	CodeAlreadyInitialized:   CategoryConflict,
	CodeWorkflowTypeUnknown:  CategoryBadRequest,
	CodeWorkflowNotFound:     CategoryNotFound,
	CodeCapabilityMissing:    CategoryInternal,
	CodeEngineFault:          CategoryInternal,
	CodePipelineNotFound:     CategoryNotFound,
	CodePipelineTerminal:     CategoryConflict,
	CodeProjectNotFound:      CategoryNotFound,
	CodeWebhookSignature:     CategoryUnauthorized,
	CodeConvergenceExhausted: CategoryInternal,
	CodeMergeBlocked:         CategoryConflict,
	CodeAgentUnavailable:     CategoryUnavailable,
	CodeExternalCall:         CategoryUnavailable,
	CodeConfigInvalid:        CategoryBadRequest,
	CodeConfigMissing:        CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	case CategoryUnauthorized:
		return 401
	default:
		return 500
	}
}

// DeckError is the structured error type for deckhand.
type DeckError struct {
	Code    Code   `json:"code"`
	What    string `json:"what"`
	Why     string `json:"why,omitempty"`
	Fix     string `json:"fix,omitempty"`
	DocsURL string `json:"docs_url,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *DeckError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *DeckError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *DeckError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	if e.DocsURL != "" {
		b.WriteString("\n\nDocs: ")
		b.WriteString(e.DocsURL)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *DeckError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *DeckError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *DeckError) MarshalJSON() ([]byte, error) {
	type alias DeckError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a DeckError with the same code.
func (e *DeckError) Is(target error) bool {
	t, ok := target.(*DeckError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *DeckError) WithCause(err error) *DeckError {
	return &DeckError{
		Code:    e.Code,
		What:    e.What,
		Why:     e.Why,
		Fix:     e.Fix,
		DocsURL: e.DocsURL,
		Cause:   err,
	}
}

// --- Error constructors ---

// ErrNotInitialized returns an error for an uninitialized deckhand directory.
func ErrNotInitialized() *DeckError {
	return &DeckError{
		Code:    CodeNotInitialized,
		What:    "deckhand is not initialized in this directory",
		Why:     "No .deckhand/ directory found in the current path or its parents",
		Fix:     "Run 'deckhand init' to initialize deckhand in this directory",
		DocsURL: "https://github.com/deckhandhq/deckhand#quick-start",
	}
}

// ErrAlreadyInitialized returns an error when deckhand is already initialized.
func ErrAlreadyInitialized(path string) *DeckError {
	return &DeckError{
		Code:    CodeAlreadyInitialized,
		What:    "deckhand is already initialized",
		Why:     fmt.Sprintf("Found existing .deckhand/ directory at %s", path),
		Fix:     "Use 'deckhand init --force' to reinitialize, or remove .deckhand/ manually",
		DocsURL: "https://github.com/deckhandhq/deckhand#initialization",
	}
}

// ErrWorkflowTypeUnknown returns an error when no template exists for a workflow type.
func ErrWorkflowTypeUnknown(workflowType string) *DeckError {
	return &DeckError{
		Code:    CodeWorkflowTypeUnknown,
		What:    fmt.Sprintf("unknown workflow type '%s'", workflowType),
		Why:     "No step template is registered for this workflow type",
		Fix:     "Run 'deckhand workflow types' to list available workflow types",
		DocsURL: "https://github.com/deckhandhq/deckhand#workflows",
	}
}

// ErrWorkflowNotFound returns an error when a workflow instance doesn't exist.
func ErrWorkflowNotFound(id string) *DeckError {
	return &DeckError{
		Code:    CodeWorkflowNotFound,
		What:    fmt.Sprintf("workflow %s not found", id),
		Why:     "No active or historical workflow with this ID exists",
		Fix:     "Run 'deckhand workflow list' to see known workflows",
		DocsURL: "https://github.com/deckhandhq/deckhand#workflows",
	}
}

// ErrCapabilityMissing returns an error when a step type has no registered handler.
func ErrCapabilityMissing(stepType string) *DeckError {
	return &DeckError{
		Code:    CodeCapabilityMissing,
		What:    fmt.Sprintf("no capability registered for step type '%s'", stepType),
		Why:     "A workflow template references a step type with no handler",
		Fix:     "Register a capability handler for this step type before starting the workflow",
		DocsURL: "https://github.com/deckhandhq/deckhand#capabilities",
	}
}

// ErrEngineFault returns an error for unexpected workflow engine failures.
func ErrEngineFault(workflowID string, cause error) *DeckError {
	return &DeckError{
		Code:  CodeEngineFault,
		What:  fmt.Sprintf("workflow %s failed with an internal engine error", workflowID),
		Why:   "An error escaped the per-step wrapper and aborted the workflow",
		Fix:   "Check the server logs for the underlying failure, then restart the workflow",
		Cause: cause,
	}
}

// ErrPipelineNotFound returns an error when a validation pipeline doesn't exist.
func ErrPipelineNotFound(id string) *DeckError {
	return &DeckError{
		Code:    CodePipelineNotFound,
		What:    fmt.Sprintf("validation pipeline %s not found", id),
		Why:     "No pipeline with this ID exists",
		Fix:     "Run 'deckhand pipeline list' to see known pipelines",
		DocsURL: "https://github.com/deckhandhq/deckhand#validation-pipelines",
	}
}

// ErrPipelineTerminal returns an error when mutating a pipeline in a terminal state.
func ErrPipelineTerminal(id, status string) *DeckError {
	return &DeckError{
		Code: CodePipelineTerminal,
		What: fmt.Sprintf("pipeline %s is already %s", id, status),
		Why:  "Terminal pipelines cannot be re-run or transitioned",
		Fix:  "Open or synchronize the pull request again to start a fresh pipeline",
	}
}

// ErrProjectNotFound returns an error when a project doesn't exist.
func ErrProjectNotFound(id string) *DeckError {
	return &DeckError{
		Code:    CodeProjectNotFound,
		What:    fmt.Sprintf("project %s not found", id),
		Why:     "No project with this ID is registered",
		Fix:     "Run 'deckhand project list' to see registered projects, or add one with 'deckhand project add'",
		DocsURL: "https://github.com/deckhandhq/deckhand#projects",
	}
}

// ErrWebhookSignature returns an error for a missing or mismatched webhook signature.
func ErrWebhookSignature() *DeckError {
	return &DeckError{
		Code:    CodeWebhookSignature,
		What:    "webhook signature verification failed",
		Why:     "The X-Hub-Signature-256 header is missing or does not match the payload",
		Fix:     "Check that the webhook secret configured on the repository matches the project's secret",
		DocsURL: "https://github.com/deckhandhq/deckhand#webhooks",
	}
}

// ErrConvergenceExhausted returns an error when the iteration budget runs out.
func ErrConvergenceExhausted(workflowID string, iterations int) *DeckError {
	return &DeckError{
		Code:    CodeConvergenceExhausted,
		What:    fmt.Sprintf("workflow %s did not converge after %d iterations", workflowID, iterations),
		Why:     "The requirements were not judged satisfied within the iteration budget",
		Fix:     "Review the phase log for recurring failures, refine the requirements, and start a new run",
		DocsURL: "https://github.com/deckhandhq/deckhand#autonomous-workflows",
	}
}

// ErrMergeBlocked returns an error when merge gating rejects the merge phase.
func ErrMergeBlocked(reason string) *DeckError {
	return &DeckError{
		Code: CodeMergeBlocked,
		What: "merge blocked by validation gating",
		Why:  reason,
		Fix:  "Fix the failing validation phase; the next iteration will retry the merge",
	}
}

// ErrAgentUnavailable returns an error when the agent-run service is unreachable.
func ErrAgentUnavailable() *DeckError {
	return &DeckError{
		Code:    CodeAgentUnavailable,
		What:    "agent-run service is not available",
		Why:     "Could not reach the configured agent API endpoint",
		Fix:     "Check 'agents.base_url' and 'agents.api_key' in .deckhand/config.yaml",
		DocsURL: "https://github.com/deckhandhq/deckhand#agents",
	}
}

// ErrExternalCall returns an error for a failed external collaborator call.
func ErrExternalCall(service string, err error) *DeckError {
	return &DeckError{
		Code:  CodeExternalCall,
		What:  fmt.Sprintf("call to %s failed", service),
		Why:   "An external collaborator returned an error",
		Fix:   "Check connectivity and credentials for the service, then retry",
		Cause: err,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *DeckError {
	return &DeckError{
		Code:    CodeConfigInvalid,
		What:    fmt.Sprintf("invalid configuration: %s", field),
		Why:     reason,
		Fix:     "Check .deckhand/config.yaml and fix the invalid field",
		DocsURL: "https://github.com/deckhandhq/deckhand#configuration",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *DeckError {
	return &DeckError{
		Code:    CodeConfigMissing,
		What:    fmt.Sprintf("missing required configuration: %s", field),
		Why:     "This field is required but not set in configuration",
		Fix:     fmt.Sprintf("Add '%s' to .deckhand/config.yaml", field),
		DocsURL: "https://github.com/deckhandhq/deckhand#configuration",
	}
}

// AsDeckError attempts to convert an error to a DeckError.
// Returns nil if the error is not a DeckError.
func AsDeckError(err error) *DeckError {
	var deckErr *DeckError
	if As(err, &deckErr) {
		return deckErr
	}
	return nil
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if deckErr, ok := err.(*DeckError); ok {
		if t, ok := target.(**DeckError); ok {
			*t = deckErr
			return true
		}
	}
	// Check unwrapped error
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a DeckError with unknown code.
func Wrap(err error, what string) *DeckError {
	return &DeckError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
