package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/deckhandhq/deckhand/internal/autonomous"
	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
)

func TestStartAutonomous(t *testing.T) {
	ts := newTestServer(t)
	ts.auto.startID = "wf-42"

	rec := ts.do(t, http.MethodPost, "/api/autonomous", map[string]any{
		"projectId":     "proj-1",
		"requirements":  "Add CSV export",
		"maxIterations": 3,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]string](t, rec)
	if body["workflow_id"] != "wf-42" {
		t.Errorf("workflow_id = %q, want %q", body["workflow_id"], "wf-42")
	}

	ts.auto.mu.Lock()
	defer ts.auto.mu.Unlock()
	if len(ts.auto.started) != 1 {
		t.Fatalf("started = %d requests, want 1", len(ts.auto.started))
	}
	req := ts.auto.started[0]
	if req.ProjectID != "proj-1" || req.Requirements != "Add CSV export" || req.MaxIterations != 3 {
		t.Errorf("forwarded request = %+v", req)
	}
}

func TestStartAutonomous_ValidationError(t *testing.T) {
	ts := newTestServer(t)
	ts.auto.startErr = errors.New("requirements text is required")

	rec := ts.do(t, http.MethodPost, "/api/autonomous", map[string]any{"projectId": "proj-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestStartAutonomous_UnknownProject(t *testing.T) {
	ts := newTestServer(t)
	ts.auto.startErr = deckerrors.ErrProjectNotFound("ghost")

	rec := ts.do(t, http.MethodPost, "/api/autonomous", map[string]any{
		"projectId":    "ghost",
		"requirements": "Add CSV export",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAutonomous(t *testing.T) {
	ts := newTestServer(t)
	ts.auto.states["wf-1"] = &autonomous.State{
		ID:        "wf-1",
		ProjectID: "proj-1",
		Status:    autonomous.StatusRunning,
		Iteration: 2,
	}

	rec := ts.do(t, http.MethodGet, "/api/autonomous/wf-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[autonomous.State](t, rec)
	if got.ID != "wf-1" {
		t.Errorf("ID = %q, want %q", got.ID, "wf-1")
	}
	if got.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", got.Iteration)
	}

	missing := ts.do(t, http.MethodGet, "/api/autonomous/ghost", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", missing.Code)
	}
}

func TestListAutonomous(t *testing.T) {
	ts := newTestServer(t)
	ts.auto.states["wf-1"] = &autonomous.State{ID: "wf-1", Status: autonomous.StatusRunning}

	rec := ts.do(t, http.MethodGet, "/api/autonomous", nil)
	body := decode[map[string]any](t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}
