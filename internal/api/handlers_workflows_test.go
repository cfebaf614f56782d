package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/engine"
)

func TestStartWorkflow_StepMode(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"type":    "echo_once",
		"execute": false,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	inst := decode[engine.Instance](t, rec)
	if inst.ID == "" {
		t.Fatal("instance ID should be set")
	}
	if inst.Status != engine.StatusStarted {
		t.Errorf("Status = %q, want %q", inst.Status, engine.StatusStarted)
	}

	step := ts.do(t, http.MethodPost, "/api/workflows/"+inst.ID+"/step", nil)
	if step.Code != http.StatusOK {
		t.Fatalf("step status = %d, want 200: %s", step.Code, step.Body.String())
	}
	body := decode[map[string]any](t, step)
	result, _ := body["result"].(map[string]any)
	if result["success"] != true {
		t.Errorf("step result = %v, want success", body["result"])
	}

	after := ts.do(t, http.MethodGet, "/api/workflows/"+inst.ID, nil)
	final := decode[engine.Instance](t, after)
	if final.Status != engine.StatusCompleted {
		t.Errorf("Status after single step = %q, want %q", final.Status, engine.StatusCompleted)
	}
}

func TestStartWorkflow_ExecutesInBackground(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{"type": "echo_once"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	inst := decode[engine.Instance](t, rec)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := ts.do(t, http.MethodGet, "/api/workflows/"+inst.ID, nil)
		if got.Code != http.StatusOK {
			t.Fatalf("status lookup = %d: %s", got.Code, got.Body.String())
		}
		current := decode[engine.Instance](t, got)
		if current.Status == engine.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workflow never completed, status %q", current.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartWorkflow_UnknownType(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{"type": "no_such"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	body := decode[APIError](t, rec)
	if body.Code != "WORKFLOW_TYPE_UNKNOWN" {
		t.Errorf("Code = %q, want %q", body.Code, "WORKFLOW_TYPE_UNKNOWN")
	}
}

func TestStartWorkflow_UnknownProject(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"type":       "echo_once",
		"project_id": "ghost",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelWorkflow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"type":    "echo_once",
		"execute": false,
	})
	inst := decode[engine.Instance](t, rec)

	cancel := ts.do(t, http.MethodPost, "/api/workflows/"+inst.ID+"/cancel", nil)
	if cancel.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200: %s", cancel.Code, cancel.Body.String())
	}
	body := decode[map[string]any](t, cancel)
	if body["cancelled"] != true {
		t.Errorf("cancelled = %v, want true", body["cancelled"])
	}

	// A second cancel hits a workflow already in history.
	again := ts.do(t, http.MethodPost, "/api/workflows/"+inst.ID+"/cancel", nil)
	if again.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409: %s", again.Code, again.Body.String())
	}
}

func TestCancelWorkflow_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/workflows/ghost/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestListWorkflows(t *testing.T) {
	ts := newTestServer(t)

	started := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"type":    "echo_once",
		"execute": false,
	})
	if started.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", started.Code, started.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/api/workflows", nil)
	body := decode[map[string]any](t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestWorkflowTypes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/workflow-types", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	types, _ := body["types"].([]any)
	found := false
	for _, v := range types {
		if v == "echo_once" {
			found = true
		}
	}
	if !found {
		t.Errorf("types = %v, want to include echo_once", types)
	}
}

func TestWorkflowTypeYAML(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/workflow-types/echo_once", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/yaml")
	}
	if !strings.Contains(rec.Body.String(), "echo_once") {
		t.Errorf("template body should name the type: %s", rec.Body.String())
	}

	missing := ts.do(t, http.MethodGet, "/api/workflow-types/no_such", nil)
	if missing.Code != http.StatusBadRequest {
		t.Errorf("missing type status = %d, want 400", missing.Code)
	}
}
