package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/deckhandhq/deckhand/internal/project"
)

func TestCreateProject(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/projects", map[string]any{
		"repo_url":     "https://github.com/acme/widgets.git",
		"description":  "widget factory",
		"ui_selectors": []string{"#app"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	body := decode[map[string]any](t, rec)
	if body["name"] != "widgets" {
		t.Errorf("name = %v, want %q", body["name"], "widgets")
	}
	secret, _ := body["webhook_secret"].(string)
	if secret == "" {
		t.Error("webhook_secret should be returned at creation")
	}
	id, _ := body["id"].(string)
	if body["webhook_url"] != "/api/webhooks/"+id {
		t.Errorf("webhook_url = %v, want %q", body["webhook_url"], "/api/webhooks/"+id)
	}

	stored, err := ts.store.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if stored == nil {
		t.Fatal("project should be persisted")
	}
	if stored.Description != "widget factory" {
		t.Errorf("Description = %q, want %q", stored.Description, "widget factory")
	}
	if stored.WebhookSecret != secret {
		t.Error("persisted secret should match the one returned")
	}
}

func TestCreateProject_Invalid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing repo_url", map[string]any{"name": "widgets"}},
		{"unparseable repo_url", map[string]any{"repo_url": "not a url"}},
		{"unknown host", map[string]any{"repo_url": "https://bitbucket.org/acme/widgets.git"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/projects", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateProject_DuplicateName(t *testing.T) {
	ts := newTestServer(t)
	seedProject(t, ts.store, "widgets")

	rec := ts.do(t, http.MethodPost, "/api/projects", map[string]any{
		"repo_url": "https://github.com/acme/widgets.git",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestGetProject(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	rec := ts.do(t, http.MethodGet, "/api/projects/"+proj.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[project.Project](t, rec)
	if got.ID != proj.ID {
		t.Errorf("ID = %q, want %q", got.ID, proj.ID)
	}
	if got.WebhookSecret != "" {
		t.Error("webhook secret must not appear in read responses")
	}
}

func TestGetProject_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/projects/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	body := decode[APIError](t, rec)
	if body.Code != "PROJECT_NOT_FOUND" {
		t.Errorf("Code = %q, want %q", body.Code, "PROJECT_NOT_FOUND")
	}
}

func TestUpdateProject(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	rec := ts.do(t, http.MethodPut, "/api/projects/"+proj.ID, map[string]any{
		"description": "now with gadgets",
		"auto_merge":  true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	stored, err := ts.store.GetProject(context.Background(), proj.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if stored.Description != "now with gadgets" {
		t.Errorf("Description = %q, want %q", stored.Description, "now with gadgets")
	}
	if !stored.AutoMerge {
		t.Error("AutoMerge should be enabled")
	}
}

func TestUpdateProject_RepoURLImmutable(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	rec := ts.do(t, http.MethodPut, "/api/projects/"+proj.ID, map[string]any{
		"repo_url": "https://github.com/acme/other.git",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteProject(t *testing.T) {
	ts := newTestServer(t)
	proj := seedProject(t, ts.store, "widgets")

	rec := ts.do(t, http.MethodDelete, "/api/projects/"+proj.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	stored, err := ts.store.GetProject(context.Background(), proj.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if stored != nil {
		t.Error("project should be gone after delete")
	}
}

func TestListProjects(t *testing.T) {
	ts := newTestServer(t)
	seedProject(t, ts.store, "widgets")
	seedProject(t, ts.store, "gadgets")

	rec := ts.do(t, http.MethodGet, "/api/projects", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}
