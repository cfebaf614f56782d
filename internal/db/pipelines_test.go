package db

import (
	"context"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/pipeline"
)

func TestPipelineStore_Roundtrip(t *testing.T) {
	store := NewTestStore(t)
	ps := store.Pipelines()
	ctx := context.Background()

	p := pipeline.New("proj-1", 42, "https://github.com/acme/widgets/pull/42")
	p.Status = pipeline.StatusRunning
	p.Progress = 40
	p.CurrentStep = pipeline.StepDeploy
	p.DeploymentURL = "http://localhost:3000"
	p.AddResult(pipeline.StepResult{Step: pipeline.StepClone, Success: true, Output: "cloned"})
	p.AddResult(pipeline.StepResult{Step: pipeline.StepSetup, Success: true, Output: "deps installed"})

	if err := ps.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := ps.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("FindByID returned nil for existing pipeline")
	}
	if got.ProjectID != "proj-1" || got.PRNumber != 42 {
		t.Errorf("ProjectID/PRNumber = %q/%d, want proj-1/42", got.ProjectID, got.PRNumber)
	}
	if got.Status != pipeline.StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40", got.Progress)
	}
	if got.CurrentStep != pipeline.StepDeploy {
		t.Errorf("CurrentStep = %q, want %q", got.CurrentStep, pipeline.StepDeploy)
	}
	if len(got.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(got.Results))
	}
	if got.Results[0].Step != pipeline.StepClone || !got.Results[0].Success {
		t.Errorf("Results[0] = %+v, want successful clone", got.Results[0])
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt set for non-terminal pipeline")
	}
}

func TestPipelineStore_FindByID_Missing(t *testing.T) {
	store := NewTestStore(t)

	got, err := store.Pipelines().FindByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("FindByID = %+v, want nil", got)
	}
}

func TestPipelineStore_FindByProjectAndPR(t *testing.T) {
	store := NewTestStore(t)
	ps := store.Pipelines()
	ctx := context.Background()

	older := pipeline.New("proj-1", 7, "https://github.com/acme/widgets/pull/7")
	older.CreatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	older.Status = pipeline.StatusFailed
	ps.Create(ctx, older)

	newer := pipeline.New("proj-1", 7, "https://github.com/acme/widgets/pull/7")
	newer.CreatedAt = time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	ps.Create(ctx, newer)

	unrelated := pipeline.New("proj-1", 8, "https://github.com/acme/widgets/pull/8")
	ps.Create(ctx, unrelated)

	got, err := ps.FindByProjectAndPR(ctx, "proj-1", 7)
	if err != nil {
		t.Fatalf("FindByProjectAndPR failed: %v", err)
	}
	if got == nil {
		t.Fatal("FindByProjectAndPR returned nil")
	}
	if got.ID != newer.ID {
		t.Errorf("returned pipeline %s, want most recent %s", got.ID, newer.ID)
	}

	missing, err := ps.FindByProjectAndPR(ctx, "proj-1", 99)
	if err != nil {
		t.Fatalf("FindByProjectAndPR failed: %v", err)
	}
	if missing != nil {
		t.Errorf("FindByProjectAndPR = %+v, want nil", missing)
	}
}

func TestPipelineStore_Update(t *testing.T) {
	store := NewTestStore(t)
	ps := store.Pipelines()
	ctx := context.Background()

	p := pipeline.New("proj-1", 3, "https://github.com/acme/widgets/pull/3")
	ps.Create(ctx, p)

	now := time.Now().UTC().Truncate(time.Second)
	p.Status = pipeline.StatusCompleted
	p.Progress = 100
	p.CurrentStep = ""
	p.AddResult(pipeline.StepResult{Step: pipeline.StepTests, Success: true, TestsPassed: 12})
	p.CompletedAt = &now

	if err := ps.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := ps.FindByID(ctx, p.ID)
	if got.Status != pipeline.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt is nil, want non-nil")
	}
	if !got.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, now)
	}
	if len(got.Results) != 1 || got.Results[0].TestsPassed != 12 {
		t.Errorf("Results = %+v, want one entry with 12 passed tests", got.Results)
	}
}

func TestPipelineStore_ListActive(t *testing.T) {
	store := NewTestStore(t)
	ps := store.Pipelines()
	ctx := context.Background()

	pending := pipeline.New("proj-1", 1, "")
	running := pipeline.New("proj-1", 2, "")
	running.Status = pipeline.StatusRunning
	done := pipeline.New("proj-1", 3, "")
	done.Status = pipeline.StatusCompleted
	failed := pipeline.New("proj-2", 4, "")
	failed.Status = pipeline.StatusFailed

	for _, p := range []*pipeline.Pipeline{pending, running, done, failed} {
		if err := ps.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	active, err := ps.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("len(active) = %d, want 2", len(active))
	}
	for _, p := range active {
		if p.Status.IsTerminal() {
			t.Errorf("ListActive returned terminal pipeline %s (%s)", p.ID, p.Status)
		}
	}
}

func TestPipelineStore_ListByProject(t *testing.T) {
	store := NewTestStore(t)
	ps := store.Pipelines()
	ctx := context.Background()

	first := pipeline.New("proj-1", 1, "")
	first.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	second := pipeline.New("proj-1", 2, "")
	second.CreatedAt = time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	other := pipeline.New("proj-2", 1, "")

	for _, p := range []*pipeline.Pipeline{first, second, other} {
		ps.Create(ctx, p)
	}

	got, err := ps.ListByProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(pipelines) = %d, want 2", len(got))
	}
	if got[0].PRNumber != 2 {
		t.Errorf("first pipeline PR = %d, want 2 (newest first)", got[0].PRNumber)
	}
}

func TestPipelineStore_Delete(t *testing.T) {
	store := NewTestStore(t)
	ps := store.Pipelines()
	ctx := context.Background()

	p := pipeline.New("proj-1", 5, "")
	ps.Create(ctx, p)

	if err := ps.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, _ := ps.FindByID(ctx, p.ID)
	if got != nil {
		t.Error("pipeline still exists after delete")
	}
}
