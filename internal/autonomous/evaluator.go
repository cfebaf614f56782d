package autonomous

import (
	"context"
	"fmt"
	"math"
)

// Assessment is the evaluator's verdict on how far the completed phases
// satisfy the requirements.
type Assessment struct {
	Met             bool     `json:"met"`
	Percentage      int      `json:"percentage"`
	Gaps            []string `json:"gaps,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Evaluator judges a phase log against the requirements text. The
// controller only depends on this interface, so a model-backed evaluator
// can replace the built-in heuristic without touching the loop.
type Evaluator interface {
	Evaluate(ctx context.Context, requirements string, log []PhaseResult) (*Assessment, error)
}

// HeuristicEvaluator scores the cumulative phase log: the percentage is
// the share of successful entries across all iterations, so a failed
// early iteration keeps weighing on the score after later clean ones.
// Met additionally requires the most recent merge and build records to
// have succeeded.
type HeuristicEvaluator struct{}

func (HeuristicEvaluator) Evaluate(_ context.Context, _ string, log []PhaseResult) (*Assessment, error) {
	if len(log) == 0 {
		return &Assessment{}, nil
	}
	successful := 0
	latest := 0
	for _, r := range log {
		if r.Success {
			successful++
		}
		if r.Iteration > latest {
			latest = r.Iteration
		}
	}
	pct := int(math.Round(float64(successful) / float64(len(log)) * 100))

	a := &Assessment{
		Percentage: pct,
		Met:        pct >= 80 && lastSuccess(log, PhaseMerge) && lastSuccess(log, PhaseBuild),
	}
	// Gaps come from the latest iteration only; stale failures would
	// mislead the next planning prompt.
	for _, r := range log {
		if r.Iteration != latest || r.Success || r.Phase == PhaseIterationError {
			continue
		}
		gap := r.Phase + " did not succeed"
		if r.Error != "" {
			gap = fmt.Sprintf("%s: %s", r.Phase, r.Error)
		}
		a.Gaps = append(a.Gaps, gap)
		a.Recommendations = append(a.Recommendations, recommendationFor(r.Phase))
	}
	return a, nil
}

// lastSuccess reports whether the most recent record for the phase
// succeeded. No record counts as failure.
func lastSuccess(log []PhaseResult, phase string) bool {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Phase == phase {
			return log[i].Success
		}
	}
	return false
}

func recommendationFor(phase string) string {
	switch phase {
	case PhasePlan:
		return "refine the requirements and retry planning"
	case PhasePR:
		return "check the agent service and repository permissions"
	case PhaseBuild:
		return "fix the reported build errors"
	case PhaseUI:
		return "address the reported UI issues"
	case PhaseMerge:
		return "resolve the blocking validation failures before merging"
	default:
		return "review the workflow phase log for details"
	}
}
