package autonomous

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/deckhandhq/deckhand/internal/agents"
	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/events"
	"github.com/deckhandhq/deckhand/internal/hosting"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
	"github.com/deckhandhq/deckhand/internal/validate"
)

// uiKeywords decides whether the requirements call for UI validation.
// Word-bounded: a bare substring match would find "ui" inside "build".
var uiKeywords = regexp.MustCompile(`(?i)\b(ui|frontend|interface|web)\b`)

// Projects is the slice of the project store the controller reads.
type Projects interface {
	GetProject(ctx context.Context, id string) (*project.Project, error)
}

// Agents is the slice of the agent-run client the plan phase uses.
type Agents interface {
	CreateRun(ctx context.Context, req agents.Request) (*agents.Run, error)
	WaitForCompletion(ctx context.Context, id string, pollInterval time.Duration) (*agents.Run, error)
}

// Validators is the slice of the validation client the build and UI
// phases use.
type Validators interface {
	ValidateBuild(ctx context.Context, req validate.BuildRequest) (*validate.BuildResult, error)
	ValidateUI(ctx context.Context, req validate.UIRequest) (*validate.UIResult, error)
}

// ProviderFunc resolves the hosting provider for a project.
type ProviderFunc func(*project.Project) (hosting.Provider, error)

// phaseError marks a failure of a named phase; the loop turns it into an
// iteration_error record and moves on to the next iteration.
type phaseError struct {
	phase string
	err   error
}

func (e *phaseError) Error() string { return fmt.Sprintf("%s: %v", e.phase, e.err) }
func (e *phaseError) Unwrap() error { return e.err }

// Options tunes the convergence loop.
type Options struct {
	// MaxIterations bounds the loop when the request does not override it.
	MaxIterations int
	// PollInterval is the agent-run completion poll interval.
	PollInterval time.Duration
	// GracePeriod is how long a finished workflow stays queryable in the
	// active set.
	GracePeriod time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 5 * time.Minute
	}
}

// Controller runs autonomous workflows: per iteration it plans with an
// agent, resolves the resulting PR, validates the build and optionally
// the UI, merges behind a validation gate, and asks the evaluator whether
// the requirements are met.
type Controller struct {
	projects   Projects
	agents     Agents
	validators Validators
	pipelines  pipeline.Store
	provider   ProviderFunc
	evaluator  Evaluator
	events     *events.PublishHelper
	logger     *slog.Logger
	opts       Options

	mu     sync.Mutex
	active map[string]*State
}

// Option configures a Controller.
type Option func(*Controller)

// WithEvaluator replaces the built-in heuristic evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(c *Controller) { c.evaluator = e }
}

// WithEvents sets the event publish helper.
func WithEvents(h *events.PublishHelper) Option {
	return func(c *Controller) { c.events = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a convergence controller.
func NewController(projects Projects, agentSvc Agents, validators Validators, pipelines pipeline.Store, provider ProviderFunc, opts Options, copts ...Option) *Controller {
	opts.setDefaults()
	c := &Controller{
		projects:   projects,
		agents:     agentSvc,
		validators: validators,
		pipelines:  pipelines,
		provider:   provider,
		opts:       opts,
		active:     make(map[string]*State),
	}
	for _, opt := range copts {
		opt(c)
	}
	if c.evaluator == nil {
		c.evaluator = HeuristicEvaluator{}
	}
	if c.events == nil {
		c.events = events.NewPublishHelper(nil)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Start runs an autonomous workflow to completion and returns its final
// report. The state stays queryable via Status for a grace period after
// the run finishes, then drops out of the active set.
func (c *Controller) Start(ctx context.Context, req Request) (*Result, error) {
	st, proj, err := c.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer c.scheduleCleanup(st.ID)
	return c.runLoop(ctx, st, proj)
}

// StartAsync validates the request, registers the workflow, and runs the
// convergence loop in the background. The loop deliberately outlives the
// caller's context; cancelling an HTTP request must not abort the run.
func (c *Controller) StartAsync(ctx context.Context, req Request) (string, error) {
	st, proj, err := c.begin(ctx, req)
	if err != nil {
		return "", err
	}
	go func() {
		defer c.scheduleCleanup(st.ID)
		if _, err := c.runLoop(context.WithoutCancel(ctx), st, proj); err != nil {
			c.logger.Warn("autonomous workflow failed",
				"workflow_id", st.ID,
				"error", err)
		}
	}()
	return st.ID, nil
}

func (c *Controller) begin(ctx context.Context, req Request) (*State, *project.Project, error) {
	if req.ProjectID == "" {
		return nil, nil, fmt.Errorf("projectId is required")
	}
	if strings.TrimSpace(req.Requirements) == "" {
		return nil, nil, fmt.Errorf("requirements text is required")
	}
	proj, err := c.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if proj == nil {
		return nil, nil, deckerrors.ErrProjectNotFound(req.ProjectID)
	}

	maxIter := c.opts.MaxIterations
	if req.MaxIterations > 0 {
		maxIter = req.MaxIterations
	}
	st := newState(req.ProjectID, req.Requirements, req.Context, maxIter)

	c.mu.Lock()
	c.active[st.ID] = st
	c.mu.Unlock()

	c.logger.Info("autonomous workflow started",
		"workflow_id", st.ID,
		"project_id", proj.ID,
		"max_iterations", st.MaxIterations)
	return st, proj, nil
}

// Status returns a copy of a workflow's state, or false when it is not
// in the active set.
func (c *Controller) Status(id string) (*State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.active[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Active returns copies of all workflows still in the active set.
func (c *Controller) Active() []*State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*State, 0, len(c.active))
	for _, st := range c.active {
		out = append(out, st.Clone())
	}
	return out
}

func (c *Controller) runLoop(ctx context.Context, st *State, proj *project.Project) (*Result, error) {
	var (
		assessment *Assessment
		prURL      string
	)
	for st.Iteration < st.MaxIterations {
		if err := ctx.Err(); err != nil {
			return c.finish(st, StatusFailed, assessment, prURL), err
		}
		c.setIteration(st, st.Iteration+1)
		lastError, _ := st.Context["last_error"].(string)
		c.events.Iteration(st.ID, st.Iteration, st.MaxIterations, lastError)
		c.logger.Info("iteration started",
			"workflow_id", st.ID,
			"iteration", st.Iteration,
			"max_iterations", st.MaxIterations)

		iterAssessment, iterPRURL, err := c.runIteration(ctx, st, proj)
		if iterPRURL != "" {
			prURL = iterPRURL
		}
		if err != nil {
			var pe *phaseError
			if !errors.As(err, &pe) {
				return c.finish(st, StatusFailed, assessment, prURL), err
			}
			c.record(st, PhaseResult{
				Phase:     PhaseIterationError,
				Iteration: st.Iteration,
				Error:     pe.Error(),
			})
			c.setContext(st, "last_error", pe.Error())
			c.logger.Warn("iteration failed",
				"workflow_id", st.ID,
				"iteration", st.Iteration,
				"phase", pe.phase,
				"error", pe.err)
			continue
		}
		assessment = iterAssessment
		// The iteration ran clean; drop any carried error.
		c.clearContext(st, "last_error")
		if assessment.Met {
			return c.finish(st, StatusCompleted, assessment, prURL), nil
		}
		c.setContext(st, "previous_iteration", map[string]any{
			"iteration":       st.Iteration,
			"percentage":      assessment.Percentage,
			"gaps":            assessment.Gaps,
			"recommendations": assessment.Recommendations,
		})
	}
	res := c.finish(st, StatusFailed, assessment, prURL)
	return res, deckerrors.ErrConvergenceExhausted(st.ID, st.MaxIterations)
}

// runIteration executes the six phases in order. A returned *phaseError
// aborts the iteration; build and UI verdict failures do not error here,
// they surface at the merge gate.
func (c *Controller) runIteration(ctx context.Context, st *State, proj *project.Project) (*Assessment, string, error) {
	run, err := c.planPhase(ctx, st, proj)
	if err != nil {
		return nil, "", err
	}
	pr, err := c.prPhase(ctx, st, proj, run)
	if err != nil {
		return nil, "", err
	}
	buildOK, err := c.buildPhase(ctx, st, proj, pr)
	if err != nil {
		return nil, pr.HTMLURL, err
	}
	uiOK, err := c.uiPhase(ctx, st, proj, pr)
	if err != nil {
		return nil, pr.HTMLURL, err
	}
	if err := c.mergePhase(ctx, st, proj, pr, buildOK, uiOK); err != nil {
		return nil, pr.HTMLURL, err
	}
	assessment, err := c.comparePhase(ctx, st)
	if err != nil {
		return nil, pr.HTMLURL, err
	}
	return assessment, pr.HTMLURL, nil
}

func (c *Controller) planPhase(ctx context.Context, st *State, proj *project.Project) (*agents.Run, error) {
	c.events.PhaseStart(st.ID, PhasePlan, st.Iteration)
	run, err := c.agents.CreateRun(ctx, agents.Request{
		Prompt: c.planPrompt(st, proj),
		Context: map[string]any{
			"workflowId": st.ID,
			"projectId":  proj.ID,
			"iteration":  st.Iteration,
		},
	})
	if err != nil {
		return nil, c.phaseFailed(st, PhasePlan, deckerrors.ErrExternalCall("agent-run", err))
	}
	run, err = c.agents.WaitForCompletion(ctx, run.ID, c.opts.PollInterval)
	if err != nil {
		return nil, c.phaseFailed(st, PhasePlan, deckerrors.ErrExternalCall("agent-run", err))
	}
	if run.Status != agents.StatusCompleted {
		reason := run.Error
		if reason == "" {
			reason = string(run.Status)
		}
		return nil, c.phaseFailed(st, PhasePlan, fmt.Errorf("agent run %s did not complete: %s", run.ID, reason))
	}
	c.recordSuccess(st, PhasePlan, map[string]any{"runId": run.ID, "branch": run.Branch})
	return run, nil
}

// planPrompt assembles the agent prompt, folding in the previous
// iteration's gaps and last error so each retry plans around them.
func (c *Controller) planPrompt(st *State, proj *project.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement the following requirements in %s (%s):\n\n%s\n", proj.Name, proj.RepoURL, st.Requirements)
	b.WriteString("\nCreate a branch, implement the changes, and open a pull request.")
	if lastErr, _ := st.Context["last_error"].(string); lastErr != "" {
		fmt.Fprintf(&b, "\n\nThe previous iteration failed with: %s", lastErr)
	}
	if prev, ok := st.Context["previous_iteration"].(map[string]any); ok {
		if gaps, ok := prev["gaps"].([]string); ok && len(gaps) > 0 {
			b.WriteString("\n\nOutstanding gaps from the previous iteration:")
			for _, g := range gaps {
				b.WriteString("\n- " + g)
			}
		}
	}
	return b.String()
}

func (c *Controller) prPhase(ctx context.Context, st *State, proj *project.Project, run *agents.Run) (*hosting.PR, error) {
	c.events.PhaseStart(st.ID, PhasePR, st.Iteration)
	if run.Branch == "" {
		return nil, c.phaseFailed(st, PhasePR, fmt.Errorf("agent run %s reported no branch", run.ID))
	}
	prov, err := c.provider(proj)
	if err != nil {
		return nil, c.phaseFailed(st, PhasePR, err)
	}
	pr, err := prov.FindPRByBranch(ctx, run.Branch)
	if err != nil {
		return nil, c.phaseFailed(st, PhasePR, err)
	}
	// Best-effort notice; a failed comment never fails the phase.
	body := fmt.Sprintf("Validating this pull request (iteration %d of %d).", st.Iteration, st.MaxIterations)
	if _, cerr := prov.CreatePRComment(ctx, pr.Number, body); cerr != nil {
		c.logger.Warn("PR notification failed",
			"workflow_id", st.ID,
			"pr_number", pr.Number,
			"error", cerr)
	}
	c.recordSuccess(st, PhasePR, map[string]any{
		"prUrl":    pr.HTMLURL,
		"prNumber": pr.Number,
		"branch":   run.Branch,
	})
	return pr, nil
}

// buildPhase returns the build verdict. A failed verdict is recorded and
// returned as ok=false rather than an error so the merge gate sees it.
func (c *Controller) buildPhase(ctx context.Context, st *State, proj *project.Project, pr *hosting.PR) (bool, error) {
	c.events.PhaseStart(st.ID, PhaseBuild, st.Iteration)
	res, err := c.validators.ValidateBuild(ctx, validate.BuildRequest{
		ProjectID: proj.ID,
		PRURL:     pr.HTMLURL,
		Branch:    pr.HeadBranch,
	})
	if err != nil {
		return false, c.phaseFailed(st, PhaseBuild, deckerrors.ErrExternalCall("build-validator", err))
	}
	if !res.Passed() {
		failure := fmt.Errorf("build validation failed")
		if steps := res.FailedSteps(); len(steps) > 0 {
			failure = fmt.Errorf("build validation failed: %s", strings.Join(steps, ", "))
		}
		c.recordFailure(st, PhaseBuild, failure)
		return false, nil
	}
	c.recordSuccess(st, PhaseBuild, map[string]any{"overall_status": res.OverallStatus})
	return true, nil
}

// uiPhase is skippable: requirements without UI-related keywords record
// a skipped result, which the merge gate treats as passing.
func (c *Controller) uiPhase(ctx context.Context, st *State, proj *project.Project, pr *hosting.PR) (bool, error) {
	if !uiKeywords.MatchString(st.Requirements) {
		c.recordSkipped(st, PhaseUI, "requirements mention no UI work")
		return true, nil
	}
	c.events.PhaseStart(st.ID, PhaseUI, st.Iteration)
	url, err := c.deploymentURL(ctx, proj.ID, pr.Number)
	if err != nil {
		return false, c.phaseFailed(st, PhaseUI, err)
	}
	if url == "" {
		c.recordFailure(st, PhaseUI, fmt.Errorf("no deployed preview available for UI validation"))
		return false, nil
	}
	res, err := c.validators.ValidateUI(ctx, validate.UIRequest{
		URL:       url,
		Elements:  proj.UISelectors,
		ProjectID: proj.ID,
	})
	if err != nil {
		return false, c.phaseFailed(st, PhaseUI, deckerrors.ErrExternalCall("ui-validator", err))
	}
	if !res.Passed() {
		c.recordFailure(st, PhaseUI, fmt.Errorf("ui validation %s (score %.0f)", res.ValidationStatus, res.OverallScore))
		return false, nil
	}
	c.recordSuccess(st, PhaseUI, map[string]any{
		"validation_status": res.ValidationStatus,
		"overall_score":     res.OverallScore,
	})
	return true, nil
}

// deploymentURL resolves the deployed preview the validation pipeline
// recorded for the PR.
func (c *Controller) deploymentURL(ctx context.Context, projectID string, prNumber int) (string, error) {
	p, err := c.pipelines.FindByProjectAndPR(ctx, projectID, prNumber)
	if err != nil {
		return "", fmt.Errorf("look up pipeline for PR #%d: %w", prNumber, err)
	}
	if p == nil {
		return "", nil
	}
	return p.DeploymentURL, nil
}

// mergePhase requires the current iteration's build validation to have
// passed and the UI validation to have passed or been skipped.
func (c *Controller) mergePhase(ctx context.Context, st *State, proj *project.Project, pr *hosting.PR, buildOK, uiOK bool) error {
	c.events.PhaseStart(st.ID, PhaseMerge, st.Iteration)
	if !buildOK || !uiOK {
		return c.phaseFailed(st, PhaseMerge, deckerrors.ErrMergeBlocked(blockedReason(buildOK, uiOK)))
	}
	prov, err := c.provider(proj)
	if err != nil {
		return c.phaseFailed(st, PhaseMerge, err)
	}
	sha, err := prov.MergePR(ctx, pr.Number, hosting.PRMergeOptions{Method: "squash"})
	if err != nil {
		return c.phaseFailed(st, PhaseMerge, deckerrors.ErrExternalCall(prov.Name(), err))
	}
	c.recordSuccess(st, PhaseMerge, map[string]any{"sha": sha, "prNumber": pr.Number})
	c.logger.Info("PR merged",
		"workflow_id", st.ID,
		"pr_number", pr.Number,
		"sha", sha)
	return nil
}

func blockedReason(buildOK, uiOK bool) string {
	switch {
	case !buildOK && !uiOK:
		return "build validation and UI validation did not pass"
	case !buildOK:
		return "build validation did not pass"
	default:
		return "UI validation did not pass"
	}
}

func (c *Controller) comparePhase(ctx context.Context, st *State) (*Assessment, error) {
	c.events.PhaseStart(st.ID, PhaseCompare, st.Iteration)
	assessment, err := c.evaluator.Evaluate(ctx, st.Requirements, c.logSnapshot(st))
	if err != nil {
		return nil, c.phaseFailed(st, PhaseCompare, err)
	}
	c.recordSuccess(st, PhaseCompare, map[string]any{
		"met":        assessment.Met,
		"percentage": assessment.Percentage,
	})
	return assessment, nil
}

// finish stamps the terminal status and assembles the final report.
func (c *Controller) finish(st *State, status Status, assessment *Assessment, prURL string) *Result {
	c.mu.Lock()
	now := time.Now().UTC()
	st.Status = status
	st.CompletedAt = &now
	snapshot := st.Clone()
	c.mu.Unlock()

	met := assessment != nil && assessment.Met
	res := &Result{
		WorkflowID:          snapshot.ID,
		ProjectID:           snapshot.ProjectID,
		Status:              status,
		RequirementsMet:     met,
		IterationsCompleted: snapshot.Iteration,
		PhaseLog:            snapshot.PhaseLog,
		Assessment:          assessment,
		PRURL:               prURL,
		Duration:            now.Sub(snapshot.StartedAt),
	}
	c.events.Converged(snapshot.ID, events.ConvergedData{
		Status:          string(status),
		Iterations:      snapshot.Iteration,
		RequirementsMet: met,
		Duration:        res.Duration.Round(time.Millisecond).String(),
	})
	c.logger.Info("autonomous workflow finished",
		"workflow_id", snapshot.ID,
		"status", status,
		"iterations", snapshot.Iteration,
		"requirements_met", met)
	return res
}

// scheduleCleanup drops the workflow from the active set after the grace
// period so callers can still query it briefly after completion.
func (c *Controller) scheduleCleanup(id string) {
	time.AfterFunc(c.opts.GracePeriod, func() {
		c.mu.Lock()
		delete(c.active, id)
		c.mu.Unlock()
		c.logger.Debug("autonomous workflow state dropped", "workflow_id", id)
	})
}

// record appends to the phase log under the controller lock; Status and
// Active clone concurrently.
func (c *Controller) record(st *State, r PhaseResult) {
	r.At = time.Now().UTC()
	c.mu.Lock()
	st.PhaseLog = append(st.PhaseLog, r)
	c.mu.Unlock()
}

func (c *Controller) setIteration(st *State, n int) {
	c.mu.Lock()
	st.Iteration = n
	c.mu.Unlock()
}

func (c *Controller) setContext(st *State, key string, value any) {
	c.mu.Lock()
	st.Context[key] = value
	c.mu.Unlock()
}

func (c *Controller) clearContext(st *State, key string) {
	c.mu.Lock()
	delete(st.Context, key)
	c.mu.Unlock()
}

// logSnapshot copies the phase log for the evaluator.
func (c *Controller) logSnapshot(st *State) []PhaseResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PhaseResult, len(st.PhaseLog))
	copy(out, st.PhaseLog)
	return out
}

func (c *Controller) recordSuccess(st *State, phase string, output map[string]any) {
	c.record(st, PhaseResult{Phase: phase, Iteration: st.Iteration, Success: true, Output: output})
	c.events.PhaseComplete(st.ID, phase, st.Iteration)
}

func (c *Controller) recordFailure(st *State, phase string, err error) {
	c.record(st, PhaseResult{Phase: phase, Iteration: st.Iteration, Error: err.Error()})
	c.events.PhaseFailed(st.ID, phase, st.Iteration, err)
	c.logger.Warn("phase failed",
		"workflow_id", st.ID,
		"phase", phase,
		"iteration", st.Iteration,
		"error", err)
}

func (c *Controller) recordSkipped(st *State, phase, reason string) {
	c.record(st, PhaseResult{
		Phase:     phase,
		Iteration: st.Iteration,
		Success:   true,
		Skipped:   true,
		Output:    map[string]any{"reason": reason},
	})
	c.events.PhaseSkipped(st.ID, phase, st.Iteration)
}

// phaseFailed records the failure and wraps it for the iteration loop.
func (c *Controller) phaseFailed(st *State, phase string, err error) error {
	c.recordFailure(st, phase, err)
	return &phaseError{phase: phase, err: err}
}
