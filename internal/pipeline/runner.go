package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deckhandhq/deckhand/internal/agents"
	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/events"
	"github.com/deckhandhq/deckhand/internal/hosting"
	"github.com/deckhandhq/deckhand/internal/project"
	"github.com/deckhandhq/deckhand/internal/workspace"
)

// Step output stored in the results log is capped so pipeline rows stay
// reasonably sized.
const maxStepOutput = 8 << 10

// Progress checkpoints reached as each step finishes.
var stepProgress = map[string]int{
	StepClone:    20,
	StepSetup:    40,
	StepDeploy:   60,
	StepValidate: 80,
	StepTests:    90,
	StepReport:   100,
}

// AgentService is the slice of the agent-run client escalation needs.
type AgentService interface {
	CreateRun(ctx context.Context, req agents.Request) (*agents.Run, error)
}

// Deployment is a supervised deployment process handle.
type Deployment interface {
	HealthCheck(ctx context.Context, url string, interval time.Duration) error
	Stop()
	Output() string
}

// Workspaces is the slice of the workspace manager the runner uses.
type Workspaces interface {
	Create(runID string) (string, error)
	CloneRepository(ctx context.Context, repoURL, branch, dir string) error
	RunShell(ctx context.Context, dir, command string, timeout time.Duration) (workspace.CommandResult, error)
	StartProc(ctx context.Context, dir, command string, port int) (Deployment, error)
	AllocatePort() int
	Remove(runID string) error
}

// WrapManager adapts a workspace.Manager to the Workspaces interface.
func WrapManager(m *workspace.Manager) Workspaces {
	return managerWorkspaces{m}
}

type managerWorkspaces struct {
	*workspace.Manager
}

func (w managerWorkspaces) StartProc(ctx context.Context, dir, command string, port int) (Deployment, error) {
	return w.Manager.StartProc(ctx, dir, command, port)
}

// Options tunes runner timeouts and cleanup behavior.
type Options struct {
	// CommandTimeout bounds setup and test shell commands.
	CommandTimeout time.Duration
	// DeployTimeout bounds the deployment health-check window.
	DeployTimeout time.Duration
	// HealthInterval is the poll interval during deployment checks.
	HealthInterval time.Duration
	// CleanupOnComplete removes the workspace and stops the deployment
	// as soon as a pipeline completes, instead of waiting for the
	// post-merge cleanup.
	CleanupOnComplete bool
}

func (o *Options) setDefaults() {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Minute
	}
	if o.DeployTimeout <= 0 {
		o.DeployTimeout = 2 * time.Minute
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 2 * time.Second
	}
}

// Runner drives validation pipelines through their six steps.
//
// Cancellation is cooperative: Cancel marks the run and the runner
// checks the mark between steps, so an in-flight shell command or clone
// is never interrupted mid-call.
type Runner struct {
	store  Store
	ws     Workspaces
	agents AgentService
	events *events.PublishHelper
	logger *slog.Logger
	opts   Options

	mu     sync.Mutex
	active map[string]*activeRun
	procs  map[string]Deployment
}

type activeRun struct {
	cancelled atomic.Bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEvents sets the event publish helper.
func WithEvents(h *events.PublishHelper) RunnerOption {
	return func(r *Runner) { r.events = h }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a pipeline runner.
func NewRunner(store Store, ws Workspaces, agentSvc AgentService, opts Options, ropts ...RunnerOption) *Runner {
	opts.setDefaults()
	r := &Runner{
		store:  store,
		ws:     ws,
		agents: agentSvc,
		opts:   opts,
		active: make(map[string]*activeRun),
		procs:  make(map[string]Deployment),
	}
	for _, opt := range ropts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// AdmitOrReuse returns the running pipeline for a (project, PR) key if
// one exists, otherwise creates a fresh pending pipeline. The bool
// reports reuse: callers must not start a second run when it is true.
func (r *Runner) AdmitOrReuse(ctx context.Context, projectID string, prNumber int, prURL string) (*Pipeline, bool, error) {
	existing, err := r.store.FindByProjectAndPR(ctx, projectID, prNumber)
	if err != nil {
		return nil, false, fmt.Errorf("look up pipeline for PR #%d: %w", prNumber, err)
	}
	if existing != nil && existing.Status == StatusRunning {
		r.logger.Info("pipeline already running, reusing",
			"pipeline_id", existing.ID, "project_id", projectID, "pr_number", prNumber)
		return existing, true, nil
	}

	p := New(projectID, prNumber, prURL)
	if existing != nil {
		p.RetryCount = existing.RetryCount + 1
	}
	if err := r.store.Create(ctx, p); err != nil {
		return nil, false, fmt.Errorf("create pipeline for PR #%d: %w", prNumber, err)
	}
	r.publishStatus(p)
	r.logger.Info("pipeline admitted",
		"pipeline_id", p.ID, "project_id", projectID, "pr_number", prNumber, "retry", p.RetryCount)
	return p, false, nil
}

// Run executes the validation steps for an admitted pipeline. Clone and
// deployment are critical: their failure fails the pipeline, skips the
// remaining steps, and escalates to the fixing agent. Other step
// failures are recorded and the run continues.
func (r *Runner) Run(ctx context.Context, p *Pipeline, proj *project.Project, pr *hosting.PR) error {
	if p.IsTerminal() {
		return deckerrors.ErrPipelineTerminal(p.ID, string(p.Status))
	}

	run := &activeRun{}
	r.mu.Lock()
	if _, exists := r.active[p.ID]; exists {
		r.mu.Unlock()
		return nil // already being driven
	}
	r.active[p.ID] = run
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, p.ID)
		r.mu.Unlock()
	}()

	p.Status = StatusRunning
	r.persist(ctx, p)
	r.publishStatus(p)

	// Clone Repository (critical)
	dir, err := r.cloneStep(ctx, p, proj, pr)
	if err != nil {
		return r.failCritical(ctx, p, proj, pr, StepClone, err)
	}
	if r.finishIfCancelled(ctx, p, run) {
		return nil
	}

	stack, err := workspace.DetectStack(dir)
	if err != nil {
		r.logger.Warn("stack detection failed", "pipeline_id", p.ID, "error", err)
	}

	// Setup Environment
	r.setupStep(ctx, p, proj, stack, dir)
	if r.finishIfCancelled(ctx, p, run) {
		return nil
	}

	// Run Deployment (critical)
	proc, healthURL, err := r.deployStep(ctx, p, proj, stack, dir)
	if err != nil {
		return r.failCritical(ctx, p, proj, pr, StepDeploy, err)
	}
	if r.finishIfCancelled(ctx, p, run) {
		return nil
	}

	// Validate Deployment
	r.validateStep(ctx, p, proc, healthURL)
	if r.finishIfCancelled(ctx, p, run) {
		return nil
	}

	// Run Tests
	r.testStep(ctx, p, stack, dir)
	if r.finishIfCancelled(ctx, p, run) {
		return nil
	}

	// Generate Report
	r.reportStep(ctx, p)

	now := time.Now()
	p.Status = StatusCompleted
	p.CompletedAt = &now
	r.persist(ctx, p)
	r.publishStatus(p)
	r.logger.Info("pipeline completed", "pipeline_id", p.ID, "pr_number", p.PRNumber)

	if r.opts.CleanupOnComplete {
		if err := r.Cleanup(ctx, p.ID); err != nil {
			r.logger.Warn("post-completion cleanup failed", "pipeline_id", p.ID, "error", err)
		}
	}
	return nil
}

// Escalate forwards a critical validation failure to the fixing agent
// and links the resulting run id onto the pipeline.
func (r *Runner) Escalate(ctx context.Context, p *Pipeline, proj *project.Project, pr *hosting.PR, stepErr error) error {
	run, err := r.agents.CreateRun(ctx, agents.Request{
		Prompt: escalationReport(p, proj, pr, stepErr),
		Context: map[string]any{
			"pipelineId": p.ID,
			"projectId":  p.ProjectID,
			"prNumber":   p.PRNumber,
			"prUrl":      p.PRURL,
		},
	})
	if err != nil {
		return deckerrors.ErrExternalCall("agent-run", err)
	}

	p.EscalationRunID = run.ID
	p.CurrentStep = "Escalated to fixing agent"
	r.persist(ctx, p)
	r.events.PipelineEscalated(p.ID, run.ID)
	r.logger.Info("pipeline escalated", "pipeline_id", p.ID, "agent_run_id", run.ID)
	return nil
}

// Cancel stops a pipeline. A run in progress finishes its current step
// and then stops; a pipeline that is not actively running is marked
// cancelled directly. Terminal pipelines are a no-op.
func (r *Runner) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	run, isActive := r.active[id]
	r.mu.Unlock()

	if isActive {
		run.cancelled.Store(true)
		r.logger.Info("pipeline cancellation requested", "pipeline_id", id)
		return nil
	}

	p, err := r.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load pipeline %s: %w", id, err)
	}
	if p == nil {
		return deckerrors.ErrPipelineNotFound(id)
	}
	if p.IsTerminal() {
		return nil
	}

	now := time.Now()
	p.Status = StatusCancelled
	p.CompletedAt = &now
	r.persist(ctx, p)
	r.publishStatus(p)
	r.logger.Info("pipeline cancelled", "pipeline_id", id)
	return r.releaseRun(id)
}

// Cleanup releases the pipeline's workspace and deployment process,
// typically after the PR merged. The pipeline status is left untouched.
func (r *Runner) Cleanup(ctx context.Context, id string) error {
	return r.releaseRun(id)
}

// releaseRun stops any deployment and removes the workspace. Tracking
// state is always cleared, even when the filesystem cleanup fails.
func (r *Runner) releaseRun(id string) error {
	r.stopProc(id)
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()

	if err := r.ws.Remove(id); err != nil {
		r.logger.Warn("workspace cleanup failed", "pipeline_id", id, "error", err)
		return fmt.Errorf("cleanup workspace for %s: %w", id, err)
	}
	return nil
}

func (r *Runner) stopProc(id string) {
	r.mu.Lock()
	proc := r.procs[id]
	delete(r.procs, id)
	r.mu.Unlock()
	if proc != nil {
		proc.Stop()
	}
}

func (r *Runner) cloneStep(ctx context.Context, p *Pipeline, proj *project.Project, pr *hosting.PR) (string, error) {
	r.beginStep(ctx, p, StepClone)

	dir, err := r.ws.Create(p.ID)
	if err == nil {
		err = r.ws.CloneRepository(ctx, proj.RepoURL, pr.HeadBranch, dir)
	}
	if err != nil {
		r.endStep(ctx, p, StepResult{Step: StepClone, Error: err.Error()}, false)
		return "", err
	}

	r.endStep(ctx, p, StepResult{Step: StepClone, Success: true, Output: "cloned " + pr.HeadBranch}, true)
	return dir, nil
}

func (r *Runner) setupStep(ctx context.Context, p *Pipeline, proj *project.Project, stack *workspace.Stack, dir string) {
	r.beginStep(ctx, p, StepSetup)

	command := proj.SetupCommand
	if command == "" && stack != nil {
		command = stack.SetupCommand
	}
	if command == "" {
		r.endStep(ctx, p, StepResult{Step: StepSetup, Success: true, Output: "no setup command configured"}, true)
		return
	}

	result, err := r.ws.RunShell(ctx, dir, command, r.opts.CommandTimeout)
	res := StepResult{Step: StepSetup, Output: truncate(result.Combined())}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	r.endStep(ctx, p, res, true)
}

func (r *Runner) deployStep(ctx context.Context, p *Pipeline, proj *project.Project, stack *workspace.Stack, dir string) (Deployment, string, error) {
	r.beginStep(ctx, p, StepDeploy)

	command := proj.DeployCommand
	healthPath := proj.HealthPath
	if stack != nil {
		if command == "" {
			command = stack.DeployCommand
		}
		if healthPath == "" {
			healthPath = stack.HealthPath
		}
	}
	if command == "" {
		err := fmt.Errorf("no deploy command configured and no known stack detected")
		r.endStep(ctx, p, StepResult{Step: StepDeploy, Error: err.Error()}, false)
		return nil, "", err
	}

	port := r.ws.AllocatePort()
	proc, err := r.ws.StartProc(ctx, dir, command, port)
	if err != nil {
		r.endStep(ctx, p, StepResult{Step: StepDeploy, Error: err.Error()}, false)
		return nil, "", err
	}
	r.mu.Lock()
	r.procs[p.ID] = proc
	r.mu.Unlock()

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	p.DeploymentURL = url
	r.endStep(ctx, p, StepResult{Step: StepDeploy, Success: true, Output: "deployment listening on " + url}, true)

	if healthPath == "" {
		healthPath = "/"
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	return proc, url + healthPath, nil
}

func (r *Runner) validateStep(ctx context.Context, p *Pipeline, proc Deployment, healthURL string) {
	r.beginStep(ctx, p, StepValidate)

	checkCtx, cancel := context.WithTimeout(ctx, r.opts.DeployTimeout)
	defer cancel()

	if err := proc.HealthCheck(checkCtx, healthURL, r.opts.HealthInterval); err != nil {
		r.endStep(ctx, p, StepResult{
			Step:   StepValidate,
			Error:  err.Error(),
			Output: truncate(proc.Output()),
		}, true)
		return
	}
	r.endStep(ctx, p, StepResult{Step: StepValidate, Success: true, Output: healthURL + " is healthy"}, true)
}

func (r *Runner) testStep(ctx context.Context, p *Pipeline, stack *workspace.Stack, dir string) {
	r.beginStep(ctx, p, StepTests)

	var command string
	if stack != nil {
		command = stack.TestCommand
	}
	if command == "" {
		r.endStep(ctx, p, StepResult{Step: StepTests, Success: true, Output: "no test command for this project"}, true)
		return
	}

	result, err := r.ws.RunShell(ctx, dir, command, r.opts.CommandTimeout)
	counts := ParseTestResults(result.Combined())
	res := StepResult{
		Step:        StepTests,
		Output:      truncate(result.Combined()),
		TestsPassed: counts.Passed,
		TestsFailed: counts.Failed,
	}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	r.endStep(ctx, p, res, true)
}

func (r *Runner) reportStep(ctx context.Context, p *Pipeline) {
	r.beginStep(ctx, p, StepReport)
	r.endStep(ctx, p, StepResult{Step: StepReport, Success: true, Output: buildReport(p)}, true)
}

// buildReport aggregates the step log into a one-line summary.
func buildReport(p *Pipeline) string {
	var passed, total, testsPassed, testsFailed int
	for _, res := range p.Results {
		if res.Step == StepReport {
			continue
		}
		total++
		if res.Success {
			passed++
		}
		testsPassed += res.TestsPassed
		testsFailed += res.TestsFailed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d steps succeeded", passed, total)
	if testsPassed+testsFailed > 0 {
		fmt.Fprintf(&b, "; tests: %d passed, %d failed", testsPassed, testsFailed)
	}
	if p.DeploymentURL != "" {
		fmt.Fprintf(&b, "; deployment: %s", p.DeploymentURL)
	}
	return b.String()
}

// escalationReport renders the failure as a prompt for the fixing agent.
func escalationReport(p *Pipeline, proj *project.Project, pr *hosting.PR, stepErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation failed for pull request #%d", p.PRNumber)
	if pr != nil && pr.Title != "" {
		fmt.Fprintf(&b, " (%q)", pr.Title)
	}
	b.WriteString(".\n\n")
	if p.PRURL != "" {
		fmt.Fprintf(&b, "PR: %s\n", p.PRURL)
	}
	if proj != nil {
		fmt.Fprintf(&b, "Project: %s", proj.Name)
		if proj.Description != "" {
			fmt.Fprintf(&b, " (%s)", proj.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Failed step: %s\n\nError:\n%v\n", p.CurrentStep, stepErr)
	b.WriteString("\nInspect the branch, fix the problem, and push to the pull request.")
	return b.String()
}

func (r *Runner) failCritical(ctx context.Context, p *Pipeline, proj *project.Project, pr *hosting.PR, step string, stepErr error) error {
	ctx = context.WithoutCancel(ctx)

	now := time.Now()
	p.Status = StatusFailed
	p.ErrorMessage = fmt.Sprintf("%s: %v", step, stepErr)
	p.CompletedAt = &now
	r.persist(ctx, p)
	r.publishStatus(p)
	r.stopProc(p.ID)
	r.logger.Error("pipeline failed at critical step", "pipeline_id", p.ID, "step", step, "error", stepErr)

	if err := r.Escalate(ctx, p, proj, pr, stepErr); err != nil {
		r.logger.Warn("escalation failed", "pipeline_id", p.ID, "error", err)
	}
	return deckerrors.Wrap(stepErr, fmt.Sprintf("pipeline failed at %q", step))
}

// finishIfCancelled finalizes the pipeline as cancelled when Cancel was
// called or the surrounding context expired. Returns true when the run
// must not continue.
func (r *Runner) finishIfCancelled(ctx context.Context, p *Pipeline, run *activeRun) bool {
	if !run.cancelled.Load() && ctx.Err() == nil {
		return false
	}

	finalCtx := context.WithoutCancel(ctx)
	now := time.Now()
	p.Status = StatusCancelled
	p.CompletedAt = &now
	r.persist(finalCtx, p)
	r.publishStatus(p)
	r.logger.Info("pipeline cancelled mid-run", "pipeline_id", p.ID, "after_step", p.CurrentStep)

	if err := r.releaseRun(p.ID); err != nil {
		r.logger.Warn("cleanup after cancellation failed", "pipeline_id", p.ID, "error", err)
	}
	return true
}

func (r *Runner) beginStep(ctx context.Context, p *Pipeline, label string) {
	p.CurrentStep = label
	r.persist(ctx, p)
	r.events.PipelineStep(p.ID, label, "started")
	r.logger.Info("pipeline step started", "pipeline_id", p.ID, "step", label)
}

func (r *Runner) endStep(ctx context.Context, p *Pipeline, res StepResult, advance bool) {
	p.AddResult(res)
	if advance {
		p.Progress = stepProgress[res.Step]
	}
	r.persist(ctx, p)

	status := "completed"
	if !res.Success {
		status = "failed"
	}
	r.events.PipelineStep(p.ID, res.Step, status)
	r.logger.Info("pipeline step finished", "pipeline_id", p.ID, "step", res.Step, "success", res.Success)
}

func (r *Runner) persist(ctx context.Context, p *Pipeline) {
	p.UpdatedAt = time.Now()
	if err := r.store.Update(ctx, p); err != nil {
		r.logger.Error("persist pipeline", "pipeline_id", p.ID, "error", err)
	}
}

func (r *Runner) publishStatus(p *Pipeline) {
	r.events.PipelineStatus(events.PipelineUpdate{
		PipelineID:  p.ID,
		ProjectID:   p.ProjectID,
		PRNumber:    p.PRNumber,
		Status:      string(p.Status),
		Progress:    p.Progress,
		CurrentStep: p.CurrentStep,
		Error:       p.ErrorMessage,
	})
}

func truncate(s string) string {
	if len(s) <= maxStepOutput {
		return s
	}
	return s[:maxStepOutput] + "\n... (truncated)"
}
