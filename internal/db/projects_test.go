package db

import (
	"context"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
)

func TestSaveProject_Roundtrip(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	p, err := project.New("", "https://github.com/acme/widgets")
	if err != nil {
		t.Fatalf("project.New failed: %v", err)
	}
	p.Description = "Widget storefront"
	p.AutoMerge = true
	p.SetupCommand = "npm install"
	p.DeployCommand = "npm run start"
	p.HealthPath = "/healthz"
	p.UISelectors = []string{"#login-form", ".checkout-button"}

	if err := store.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}

	got, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetProject returned nil for existing project")
	}
	if got.Name != "widgets" {
		t.Errorf("Name = %q, want widgets", got.Name)
	}
	if got.Host != project.HostGitHub {
		t.Errorf("Host = %q, want %q", got.Host, project.HostGitHub)
	}
	if got.Owner != "acme" || got.Repo != "widgets" {
		t.Errorf("Owner/Repo = %q/%q, want acme/widgets", got.Owner, got.Repo)
	}
	if !got.AutoMerge {
		t.Error("AutoMerge = false, want true")
	}
	if got.SetupCommand != p.SetupCommand {
		t.Errorf("SetupCommand = %q, want %q", got.SetupCommand, p.SetupCommand)
	}
	if len(got.UISelectors) != 2 || got.UISelectors[0] != "#login-form" {
		t.Errorf("UISelectors = %v, want %v", got.UISelectors, p.UISelectors)
	}
	if got.WebhookSecret != p.WebhookSecret {
		t.Error("WebhookSecret not preserved")
	}
}

func TestSaveProject_Update(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	p, _ := project.New("widgets", "https://github.com/acme/widgets")
	if err := store.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}

	p.Description = "updated"
	p.AutoMerge = true
	p.Touch()
	if err := store.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject update failed: %v", err)
	}

	got, _ := store.GetProject(ctx, p.ID)
	if got.Description != "updated" {
		t.Errorf("Description = %q, want updated", got.Description)
	}
	if !got.AutoMerge {
		t.Error("AutoMerge not updated")
	}

	// Still one row
	projects, _ := store.ListProjects(ctx)
	if len(projects) != 1 {
		t.Errorf("len(projects) = %d, want 1", len(projects))
	}
}

func TestGetProject_Missing(t *testing.T) {
	store := NewTestStore(t)

	got, err := store.GetProject(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetProject = %+v, want nil", got)
	}
}

func TestGetProjectByName(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	p, _ := project.New("widgets", "https://github.com/acme/widgets")
	store.SaveProject(ctx, p)

	got, err := store.GetProjectByName(ctx, "widgets")
	if err != nil {
		t.Fatalf("GetProjectByName failed: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Errorf("GetProjectByName returned wrong project: %+v", got)
	}

	missing, err := store.GetProjectByName(ctx, "gadgets")
	if err != nil {
		t.Fatalf("GetProjectByName failed: %v", err)
	}
	if missing != nil {
		t.Errorf("GetProjectByName = %+v, want nil", missing)
	}
}

func TestListProjects_Order(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	older, _ := project.New("older", "https://github.com/acme/older")
	older.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer, _ := project.New("newer", "https://github.com/acme/newer")
	newer.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	store.SaveProject(ctx, older)
	store.SaveProject(ctx, newer)

	projects, err := store.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("len(projects) = %d, want 2", len(projects))
	}
	if projects[0].Name != "newer" {
		t.Errorf("first project = %q, want newer", projects[0].Name)
	}
}

func TestDeleteProjectCascade(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	p, _ := project.New("widgets", "https://github.com/acme/widgets")
	store.SaveProject(ctx, p)

	other, _ := project.New("gadgets", "https://github.com/acme/gadgets")
	store.SaveProject(ctx, other)

	pipelines := store.Pipelines()
	pipelines.Create(ctx, pipeline.New(p.ID, 1, "https://github.com/acme/widgets/pull/1"))
	pipelines.Create(ctx, pipeline.New(p.ID, 2, "https://github.com/acme/widgets/pull/2"))
	keep := pipeline.New(other.ID, 7, "https://github.com/acme/gadgets/pull/7")
	pipelines.Create(ctx, keep)

	if err := store.DeleteProjectCascade(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProjectCascade failed: %v", err)
	}

	got, _ := store.GetProject(ctx, p.ID)
	if got != nil {
		t.Error("project still exists after cascade delete")
	}

	orphans, err := pipelines.ListByProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("len(pipelines) after cascade = %d, want 0", len(orphans))
	}

	// Other project's pipelines untouched
	kept, _ := pipelines.ListByProject(ctx, other.ID)
	if len(kept) != 1 {
		t.Errorf("len(pipelines) for other project = %d, want 1", len(kept))
	}
}
