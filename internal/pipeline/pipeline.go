// Package pipeline implements the per-PR validation state machine.
//
// A pipeline tracks one validation run for a (project, pull request) pair:
// clone, setup, deploy, deployment check, tests, report. At most one
// pipeline per key is running at any time; admission control returns the
// existing run instead of starting a second one.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a validation pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states with no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Validation step labels, in execution order.
const (
	StepClone    = "Clone Repository"
	StepSetup    = "Setup Environment"
	StepDeploy   = "Run Deployment"
	StepValidate = "Validate Deployment"
	StepTests    = "Run Tests"
	StepReport   = "Generate Report"
)

// StepResult records one validation step's outcome in the ordered log.
type StepResult struct {
	Step        string    `json:"step"`
	Success     bool      `json:"success"`
	Output      string    `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	TestsPassed int       `json:"tests_passed,omitempty"`
	TestsFailed int       `json:"tests_failed,omitempty"`
	At          time.Time `json:"at"`
}

// Pipeline is one validation run for a (project, PR) pair.
type Pipeline struct {
	// ID is the unique identifier (uuid).
	ID string `json:"id"`

	// ProjectID references the owning project.
	ProjectID string `json:"project_id"`

	// PRNumber is the pull request number on the hosting provider.
	PRNumber int `json:"pr_number"`

	// PRURL is the pull request web URL.
	PRURL string `json:"pr_url,omitempty"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Progress is the completion percentage, 0-100.
	Progress int `json:"progress"`

	// CurrentStep is the human-readable label of the step in progress.
	CurrentStep string `json:"current_step,omitempty"`

	// DeploymentURL is where the validated deployment is reachable.
	DeploymentURL string `json:"deployment_url,omitempty"`

	// Results is the ordered log of step outcomes.
	Results []StepResult `json:"results,omitempty"`

	// ErrorMessage holds the failure reason for failed pipelines.
	ErrorMessage string `json:"error_message,omitempty"`

	// EscalationRunID is the agent run dispatched to fix a critical
	// failure. Weak reference, lookup only.
	EscalationRunID string `json:"escalation_run_id,omitempty"`

	// RetryCount is incremented on manual re-runs of the same PR.
	RetryCount int `json:"retry_count,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending pipeline for a (project, PR) pair.
func New(projectID string, prNumber int, prURL string) *Pipeline {
	now := time.Now()
	return &Pipeline{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		PRNumber:  prNumber,
		PRURL:     prURL,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true if the pipeline reached a terminal state.
func (p *Pipeline) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// Succeeded reports whether the pipeline completed with every recorded
// step passing. Completed pipelines can still carry non-critical step
// failures; those do not count as success here.
func (p *Pipeline) Succeeded() bool {
	if p.Status != StatusCompleted || p.ErrorMessage != "" || len(p.Results) == 0 {
		return false
	}
	for i := range p.Results {
		if !p.Results[i].Success {
			return false
		}
	}
	return true
}

// Result returns the logged result for a step label, or nil if the step
// never ran.
func (p *Pipeline) Result(step string) *StepResult {
	for i := range p.Results {
		if p.Results[i].Step == step {
			return &p.Results[i]
		}
	}
	return nil
}

// AddResult appends a step outcome to the ordered log.
func (p *Pipeline) AddResult(r StepResult) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	p.Results = append(p.Results, r)
}

// Clone returns a deep copy of the pipeline.
func (p *Pipeline) Clone() *Pipeline {
	cp := *p
	if p.Results != nil {
		cp.Results = make([]StepResult, len(p.Results))
		copy(cp.Results, p.Results)
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Store persists pipeline rows. The relational implementation lives in
// internal/db; MemStore backs tests.
type Store interface {
	Create(ctx context.Context, p *Pipeline) error
	// FindByID returns (nil, nil) when no row exists.
	FindByID(ctx context.Context, id string) (*Pipeline, error)
	// FindByProjectAndPR returns the most recent pipeline for the key,
	// or (nil, nil) when none exists.
	FindByProjectAndPR(ctx context.Context, projectID string, prNumber int) (*Pipeline, error)
	Update(ctx context.Context, p *Pipeline) error
	Delete(ctx context.Context, id string) error
	// ListActive returns pipelines in pending or running state.
	ListActive(ctx context.Context) ([]*Pipeline, error)
	ListByProject(ctx context.Context, projectID string) ([]*Pipeline, error)
}
