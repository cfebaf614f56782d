package autonomous

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/agents"
	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/hosting"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
	"github.com/deckhandhq/deckhand/internal/validate"
)

type fakeProjects struct {
	proj *project.Project
}

func (f *fakeProjects) GetProject(ctx context.Context, id string) (*project.Project, error) {
	if f.proj != nil && f.proj.ID == id {
		return f.proj, nil
	}
	return nil, nil
}

// fakeAgents completes every run on the branch feature/auto unless
// waitRuns scripts per-iteration outcomes (the last entry repeats).
type fakeAgents struct {
	waitRuns  []agents.Run
	createErr error

	calls   int
	prompts []string
}

func (f *fakeAgents) CreateRun(ctx context.Context, req agents.Request) (*agents.Run, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	return &agents.Run{ID: fmt.Sprintf("run-%d", f.calls), Status: agents.StatusRunning}, nil
}

func (f *fakeAgents) WaitForCompletion(ctx context.Context, id string, _ time.Duration) (*agents.Run, error) {
	if len(f.waitRuns) == 0 {
		return &agents.Run{ID: id, Status: agents.StatusCompleted, Branch: "feature/auto"}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.waitRuns) {
		idx = len(f.waitRuns) - 1
	}
	run := f.waitRuns[idx]
	run.ID = id
	return &run, nil
}

// fakeValidators passes everything unless scripted; buildResults is
// consumed per call with the last entry repeating.
type fakeValidators struct {
	buildResults []*validate.BuildResult
	buildErr     error
	uiResult     *validate.UIResult
	uiErr        error

	buildCalls int
	buildReqs  []validate.BuildRequest
	uiCalls    int
	uiReqs     []validate.UIRequest
}

func (f *fakeValidators) ValidateBuild(ctx context.Context, req validate.BuildRequest) (*validate.BuildResult, error) {
	f.buildCalls++
	f.buildReqs = append(f.buildReqs, req)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if len(f.buildResults) == 0 {
		return &validate.BuildResult{OverallStatus: validate.BuildStatusSuccess}, nil
	}
	idx := f.buildCalls - 1
	if idx >= len(f.buildResults) {
		idx = len(f.buildResults) - 1
	}
	return f.buildResults[idx], nil
}

func (f *fakeValidators) ValidateUI(ctx context.Context, req validate.UIRequest) (*validate.UIResult, error) {
	f.uiCalls++
	f.uiReqs = append(f.uiReqs, req)
	if f.uiErr != nil {
		return nil, f.uiErr
	}
	if f.uiResult != nil {
		return f.uiResult, nil
	}
	return &validate.UIResult{ValidationStatus: validate.UIStatusPassed, OverallScore: 95}, nil
}

type fakeHost struct {
	hosting.Provider
	pr         *hosting.PR
	findErr    error
	mergeErr   error
	commentErr error

	merged   []int
	comments []string
}

func (f *fakeHost) FindPRByBranch(ctx context.Context, branch string) (*hosting.PR, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.pr, nil
}

func (f *fakeHost) MergePR(ctx context.Context, number int, opts hosting.PRMergeOptions) (string, error) {
	if f.mergeErr != nil {
		return "", f.mergeErr
	}
	f.merged = append(f.merged, number)
	return "abc123", nil
}

func (f *fakeHost) CreatePRComment(ctx context.Context, number int, body string) (*hosting.PRComment, error) {
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	f.comments = append(f.comments, body)
	return &hosting.PRComment{}, nil
}

func (f *fakeHost) Name() string { return "github" }

func testProject() *project.Project {
	return &project.Project{
		ID:          "proj-1",
		Name:        "widgets",
		RepoURL:     "https://github.com/acme/widgets.git",
		Host:        project.HostGitHub,
		Owner:       "acme",
		Repo:        "widgets",
		UISelectors: []string{"#app"},
	}
}

func testPR() *hosting.PR {
	return &hosting.PR{
		Number:     7,
		HeadBranch: "feature/auto",
		HTMLURL:    "https://github.com/acme/widgets/pull/7",
	}
}

func newTestController(t *testing.T, fa *fakeAgents, fv *fakeValidators, fh *fakeHost, opts Options) (*Controller, *pipeline.MemStore) {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	store := pipeline.NewMemStore()
	c := NewController(&fakeProjects{proj: testProject()}, fa, fv, store,
		func(p *project.Project) (hosting.Provider, error) { return fh, nil }, opts)
	return c, store
}

func seedDeployedPipeline(t *testing.T, store *pipeline.MemStore, url string) {
	t.Helper()
	p := pipeline.New("proj-1", 7, "https://github.com/acme/widgets/pull/7")
	p.DeploymentURL = url
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("seed pipeline: %v", err)
	}
}

func phaseAt(log []PhaseResult, phase string, iteration int) *PhaseResult {
	for i := range log {
		if log[i].Phase == phase && log[i].Iteration == iteration {
			return &log[i]
		}
	}
	return nil
}

func countPhase(log []PhaseResult, phase string) int {
	n := 0
	for _, r := range log {
		if r.Phase == phase {
			n++
		}
	}
	return n
}

func TestStart_ConvergesFirstIteration(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", res.Status, StatusCompleted)
	}
	if !res.RequirementsMet {
		t.Error("RequirementsMet = false, want true")
	}
	if res.IterationsCompleted != 1 {
		t.Errorf("IterationsCompleted = %d, want 1", res.IterationsCompleted)
	}
	if res.PRURL != "https://github.com/acme/widgets/pull/7" {
		t.Errorf("PRURL = %q", res.PRURL)
	}
	if res.Duration <= 0 {
		t.Error("Duration not set")
	}
	if res.Assessment == nil || res.Assessment.Percentage != 100 {
		t.Errorf("Assessment = %+v, want 100%%", res.Assessment)
	}
	if len(fh.merged) != 1 || fh.merged[0] != 7 {
		t.Errorf("merged = %v, want [7]", fh.merged)
	}
	if len(fh.comments) != 1 || !strings.Contains(fh.comments[0], "iteration 1 of 5") {
		t.Errorf("comments = %v, want one validation notice", fh.comments)
	}
	if len(fv.buildReqs) != 1 {
		t.Fatalf("buildReqs = %d, want 1", len(fv.buildReqs))
	}
	if br := fv.buildReqs[0]; br.ProjectID != "proj-1" || br.Branch != "feature/auto" || br.PRURL != res.PRURL {
		t.Errorf("build request = %+v", br)
	}

	// No UI keywords in the requirements, so the phase is skipped and
	// still counts as passing.
	ui := phaseAt(res.PhaseLog, PhaseUI, 1)
	if ui == nil || !ui.Skipped || !ui.Success {
		t.Errorf("UI phase = %+v, want skipped success", ui)
	}
	if fv.uiCalls != 0 {
		t.Errorf("uiCalls = %d, want 0", fv.uiCalls)
	}
}

func TestStart_BuildFailureThenConverges(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{buildResults: []*validate.BuildResult{
		{
			OverallStatus: validate.BuildStatusFailed,
			Steps:         []validate.BuildStep{{Name: "compile", Status: validate.BuildStatusFailed, Message: "undefined symbol"}},
		},
		{OverallStatus: validate.BuildStatusSuccess},
	}}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Status != StatusCompleted || !res.RequirementsMet {
		t.Errorf("Status = %q met = %v, want completed and met", res.Status, res.RequirementsMet)
	}
	// Iteration 2 is clean but the cumulative score is still below the
	// bar; iteration 3 crosses it.
	if res.IterationsCompleted != 3 {
		t.Errorf("IterationsCompleted = %d, want 3", res.IterationsCompleted)
	}
	if res.Assessment.Percentage != 82 {
		t.Errorf("Percentage = %d, want 82", res.Assessment.Percentage)
	}

	build1 := phaseAt(res.PhaseLog, PhaseBuild, 1)
	if build1 == nil || build1.Success || !strings.Contains(build1.Error, "compile") {
		t.Errorf("iteration 1 build = %+v, want recorded failure", build1)
	}
	merge1 := phaseAt(res.PhaseLog, PhaseMerge, 1)
	if merge1 == nil || merge1.Success || !strings.Contains(merge1.Error, "merge blocked") {
		t.Errorf("iteration 1 merge = %+v, want merge blocked", merge1)
	}

	// The iteration_error entry precedes the next iteration's plan phase.
	ieIdx, planIdx := -1, -1
	for i, r := range res.PhaseLog {
		if r.Phase == PhaseIterationError && r.Iteration == 1 {
			ieIdx = i
		}
		if r.Phase == PhasePlan && r.Iteration == 2 {
			planIdx = i
		}
	}
	if ieIdx == -1 || planIdx == -1 || planIdx < ieIdx {
		t.Errorf("phase order: iteration_error at %d, iteration 2 plan at %d", ieIdx, planIdx)
	}

	if len(fa.prompts) != 3 {
		t.Fatalf("prompts = %d, want 3", len(fa.prompts))
	}
	if !strings.Contains(fa.prompts[1], "previous iteration failed") || !strings.Contains(fa.prompts[1], "merge blocked") {
		t.Errorf("iteration 2 prompt does not carry the last error:\n%s", fa.prompts[1])
	}
	if strings.Contains(fa.prompts[2], "previous iteration failed") {
		t.Errorf("iteration 3 prompt carries a stale error:\n%s", fa.prompts[2])
	}
	if len(fh.merged) != 2 {
		t.Errorf("merged = %v, want two merges", fh.merged)
	}
}

func TestStart_ExhaustsIterations(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{buildResults: []*validate.BuildResult{
		{OverallStatus: validate.BuildStatusFailed},
	}}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{})

	res, err := c.Start(context.Background(), Request{
		ProjectID:     "proj-1",
		Requirements:  "Add rate limiting to the API",
		MaxIterations: 3,
	})
	var derr *deckerrors.DeckError
	if !errors.As(err, &derr) || derr.Code != deckerrors.CodeConvergenceExhausted {
		t.Fatalf("err = %v, want convergence exhausted", err)
	}
	if res == nil {
		t.Fatal("Result is nil on exhaustion")
	}
	if res.Status != StatusFailed || res.RequirementsMet {
		t.Errorf("Status = %q met = %v, want failed and not met", res.Status, res.RequirementsMet)
	}
	if res.IterationsCompleted != 3 {
		t.Errorf("IterationsCompleted = %d, want 3", res.IterationsCompleted)
	}
	if n := countPhase(res.PhaseLog, PhaseIterationError); n != 3 {
		t.Errorf("iteration_error entries = %d, want 3", n)
	}
	if len(fh.merged) != 0 {
		t.Errorf("merged = %v, want none", fh.merged)
	}
}

func TestStart_AgentFailureRecorded(t *testing.T) {
	fa := &fakeAgents{waitRuns: []agents.Run{
		{Status: agents.StatusFailed, Error: "agent crashed"},
	}}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{MaxIterations: 2})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	var derr *deckerrors.DeckError
	if !errors.As(err, &derr) || derr.Code != deckerrors.CodeConvergenceExhausted {
		t.Fatalf("err = %v, want convergence exhausted", err)
	}
	if res.IterationsCompleted != 2 {
		t.Errorf("IterationsCompleted = %d, want 2", res.IterationsCompleted)
	}
	plan1 := phaseAt(res.PhaseLog, PhasePlan, 1)
	if plan1 == nil || plan1.Success || !strings.Contains(plan1.Error, "agent crashed") {
		t.Errorf("plan phase = %+v, want recorded agent failure", plan1)
	}
	ie := phaseAt(res.PhaseLog, PhaseIterationError, 1)
	if ie == nil || !strings.Contains(ie.Error, PhasePlan) {
		t.Errorf("iteration_error = %+v, want it to name the plan phase", ie)
	}
	if fv.buildCalls != 0 {
		t.Errorf("buildCalls = %d, want 0 after plan failure", fv.buildCalls)
	}
}

func TestStart_UIValidationRuns(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR()}
	c, store := newTestController(t, fa, fv, fh, Options{})
	seedDeployedPipeline(t, store, "http://localhost:4311")

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Polish the web UI for the dashboard",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", res.Status, StatusCompleted)
	}
	if fv.uiCalls != 1 {
		t.Fatalf("uiCalls = %d, want 1", fv.uiCalls)
	}
	req := fv.uiReqs[0]
	if req.URL != "http://localhost:4311" {
		t.Errorf("UI request URL = %q, want the deployed preview", req.URL)
	}
	if len(req.Elements) != 1 || req.Elements[0] != "#app" {
		t.Errorf("UI request elements = %v, want the project selectors", req.Elements)
	}
	ui := phaseAt(res.PhaseLog, PhaseUI, 1)
	if ui == nil || !ui.Success || ui.Skipped {
		t.Errorf("UI phase = %+v, want an executed success", ui)
	}
}

func TestStart_UIWithoutDeploymentBlocksMerge(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{MaxIterations: 1})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Improve the frontend layout",
	})
	var derr *deckerrors.DeckError
	if !errors.As(err, &derr) || derr.Code != deckerrors.CodeConvergenceExhausted {
		t.Fatalf("err = %v, want convergence exhausted", err)
	}
	ui := phaseAt(res.PhaseLog, PhaseUI, 1)
	if ui == nil || ui.Success || !strings.Contains(ui.Error, "no deployed preview") {
		t.Errorf("UI phase = %+v, want a missing-deployment failure", ui)
	}
	merge := phaseAt(res.PhaseLog, PhaseMerge, 1)
	if merge == nil || merge.Success || !strings.Contains(merge.Error, "merge blocked") {
		t.Errorf("merge phase = %+v, want merge blocked", merge)
	}
	if fv.uiCalls != 0 {
		t.Errorf("uiCalls = %d, want 0 without a deployment", fv.uiCalls)
	}
	if len(fh.merged) != 0 {
		t.Errorf("merged = %v, want none", fh.merged)
	}
}

func TestStart_PRLookupFailure(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR(), findErr: hosting.ErrNoPRFound}
	c, _ := newTestController(t, fa, fv, fh, Options{MaxIterations: 1})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	var derr *deckerrors.DeckError
	if !errors.As(err, &derr) || derr.Code != deckerrors.CodeConvergenceExhausted {
		t.Fatalf("err = %v, want convergence exhausted", err)
	}
	pr := phaseAt(res.PhaseLog, PhasePR, 1)
	if pr == nil || pr.Success || !strings.Contains(pr.Error, "no pull request found") {
		t.Errorf("PR phase = %+v, want the lookup failure", pr)
	}
	if fv.buildCalls != 0 {
		t.Errorf("buildCalls = %d, want 0 after PR failure", fv.buildCalls)
	}
}

func TestStart_UIFailedVerdictBlocksMerge(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{uiResult: &validate.UIResult{ValidationStatus: validate.UIStatusFailed, OverallScore: 40}}
	fh := &fakeHost{pr: testPR()}
	c, store := newTestController(t, fa, fv, fh, Options{MaxIterations: 1})
	seedDeployedPipeline(t, store, "http://localhost:4311")

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Polish the web UI for the dashboard",
	})
	var derr *deckerrors.DeckError
	if !errors.As(err, &derr) || derr.Code != deckerrors.CodeConvergenceExhausted {
		t.Fatalf("err = %v, want convergence exhausted", err)
	}
	ui := phaseAt(res.PhaseLog, PhaseUI, 1)
	if ui == nil || ui.Success || !strings.Contains(ui.Error, "failed") {
		t.Errorf("UI phase = %+v, want a failed verdict", ui)
	}
	merge := phaseAt(res.PhaseLog, PhaseMerge, 1)
	if merge == nil || merge.Success || !strings.Contains(merge.Error, "UI validation") {
		t.Errorf("merge phase = %+v, want a UI-blocked merge", merge)
	}
	if len(fh.merged) != 0 {
		t.Errorf("merged = %v, want none", fh.merged)
	}
}

func TestStart_ValidatorOutageRaisesIterationError(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{buildErr: errors.New("connection refused")}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{MaxIterations: 1})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	var derr *deckerrors.DeckError
	if !errors.As(err, &derr) || derr.Code != deckerrors.CodeConvergenceExhausted {
		t.Fatalf("err = %v, want convergence exhausted", err)
	}
	ie := phaseAt(res.PhaseLog, PhaseIterationError, 1)
	if ie == nil || !strings.Contains(ie.Error, PhaseBuild) || !strings.Contains(ie.Error, "connection refused") {
		t.Errorf("iteration_error = %+v, want the validator outage", ie)
	}
	// The outage aborts the iteration before merge gating runs.
	if merge := phaseAt(res.PhaseLog, PhaseMerge, 1); merge != nil {
		t.Errorf("merge phase = %+v, want none", merge)
	}
}

func TestStart_CommentFailureDoesNotFailPhase(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR(), commentErr: errors.New("403 forbidden")}
	c, _ := newTestController(t, fa, fv, fh, Options{})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Status != StatusCompleted || !res.RequirementsMet {
		t.Errorf("Status = %q met = %v, want completed", res.Status, res.RequirementsMet)
	}
}

func TestStart_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantSub string
	}{
		{"missing project id", Request{Requirements: "x"}, "projectId"},
		{"missing requirements", Request{ProjectID: "proj-1", Requirements: "   "}, "requirements"},
		{"unknown project", Request{ProjectID: "ghost", Requirements: "x"}, "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, &fakeAgents{}, &fakeValidators{}, &fakeHost{pr: testPR()}, Options{})
			_, err := c.Start(context.Background(), tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantSub)
			}
		})
	}
}

func TestStart_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := newTestController(t, &fakeAgents{}, &fakeValidators{}, &fakeHost{pr: testPR()}, Options{})

	res, err := c.Start(ctx, Request{ProjectID: "proj-1", Requirements: "Add rate limiting"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil || res.Status != StatusFailed {
		t.Errorf("Result = %+v, want a failed report", res)
	}
	if res.IterationsCompleted != 0 {
		t.Errorf("IterationsCompleted = %d, want 0", res.IterationsCompleted)
	}
}

func TestStatus_ActiveUntilGracePeriod(t *testing.T) {
	fa := &fakeAgents{}
	fv := &fakeValidators{}
	fh := &fakeHost{pr: testPR()}
	c, _ := newTestController(t, fa, fv, fh, Options{GracePeriod: 100 * time.Millisecond})

	res, err := c.Start(context.Background(), Request{
		ProjectID:    "proj-1",
		Requirements: "Add rate limiting to the API",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st, ok := c.Status(res.WorkflowID)
	if !ok {
		t.Fatal("Status: workflow not found right after completion")
	}
	if st.Status != StatusCompleted || st.CompletedAt == nil {
		t.Errorf("state = %q completedAt = %v, want terminal", st.Status, st.CompletedAt)
	}
	if len(st.PhaseLog) != 6 {
		t.Errorf("PhaseLog entries = %d, want 6", len(st.PhaseLog))
	}
	if len(c.Active()) != 1 {
		t.Errorf("Active = %d, want 1 during the grace period", len(c.Active()))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := c.Status(res.WorkflowID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("workflow state never dropped from the active set")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(c.Active()) != 0 {
		t.Errorf("Active = %d, want 0 after cleanup", len(c.Active()))
	}
}
