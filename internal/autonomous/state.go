// Package autonomous runs the iterative convergence loop: a bounded number
// of iterations, each executing the fixed six-phase pipeline
// plan_creation -> pr_creation -> build_validation -> ui_validation ->
// merge -> requirements_comparison, feeding evaluator gaps back into the
// next iteration's planning prompt until requirements are judged met or
// the iteration budget runs out.
package autonomous

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an autonomous workflow.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the workflow has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase names for the fixed per-iteration pipeline. PhaseIterationError is
// not a pipeline phase; it marks an iteration aborted by a phase failure.
const (
	PhasePlan           = "plan_creation"
	PhasePR             = "pr_creation"
	PhaseBuild          = "build_validation"
	PhaseUI             = "ui_validation"
	PhaseMerge          = "merge"
	PhaseCompare        = "requirements_comparison"
	PhaseIterationError = "iteration_error"
)

// DefaultMaxIterations bounds the convergence loop when the request does
// not override it.
const DefaultMaxIterations = 5

// PhaseResult is one entry in the workflow's phase log.
type PhaseResult struct {
	Phase     string         `json:"phase"`
	Iteration int            `json:"iteration"`
	Success   bool           `json:"success"`
	Skipped   bool           `json:"skipped,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// State is the live record of an autonomous workflow. Iteration never
// exceeds MaxIterations.
type State struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	Requirements  string         `json:"requirements"`
	Context       map[string]any `json:"context,omitempty"`
	Status        Status         `json:"status"`
	Iteration     int            `json:"iteration"`
	MaxIterations int            `json:"maxIterations"`
	PhaseLog      []PhaseResult  `json:"phaseLog"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

func newState(projectID, requirements string, ctx map[string]any, maxIterations int) *State {
	if ctx == nil {
		ctx = make(map[string]any)
	}
	return &State{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Requirements:  requirements,
		Context:       ctx,
		Status:        StatusRunning,
		Iteration:     0,
		MaxIterations: maxIterations,
		StartedAt:     time.Now().UTC(),
	}
}

// Clone returns a deep copy safe to hand to callers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	out.PhaseLog = make([]PhaseResult, len(s.PhaseLog))
	copy(out.PhaseLog, s.PhaseLog)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Request starts an autonomous workflow.
type Request struct {
	ProjectID     string         `json:"projectId"`
	Requirements  string         `json:"requirements"`
	Context       map[string]any `json:"context,omitempty"`
	MaxIterations int            `json:"maxIterations,omitempty"`
}

// Result is the final report of an autonomous workflow.
type Result struct {
	WorkflowID          string        `json:"workflowId"`
	ProjectID           string        `json:"projectId"`
	Status              Status        `json:"status"`
	RequirementsMet     bool          `json:"requirementsMet"`
	IterationsCompleted int           `json:"iterationsCompleted"`
	PhaseLog            []PhaseResult `json:"phaseLog"`
	Assessment          *Assessment   `json:"assessment,omitempty"`
	PRURL               string        `json:"prUrl,omitempty"`
	Duration            time.Duration `json:"duration"`
}
