package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/deckhandhq/deckhand/internal/pipeline"
)

func seedPipeline(t *testing.T, store pipeline.Store, projectID string, prNumber int, status pipeline.Status) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New(projectID, prNumber, "https://github.com/acme/widgets/pull/7")
	p.Status = status
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create pipeline failed: %v", err)
	}
	return p
}

func TestListPipelines_Active(t *testing.T) {
	ts := newTestServer(t)
	seedPipeline(t, ts.pipes, "proj-1", 7, pipeline.StatusRunning)
	seedPipeline(t, ts.pipes, "proj-1", 8, pipeline.StatusCompleted)

	rec := ts.do(t, http.MethodGet, "/api/pipelines", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1 active pipeline", body["count"])
	}
}

func TestListPipelines_ByProject(t *testing.T) {
	ts := newTestServer(t)
	seedPipeline(t, ts.pipes, "proj-1", 7, pipeline.StatusRunning)
	seedPipeline(t, ts.pipes, "proj-1", 8, pipeline.StatusCompleted)
	seedPipeline(t, ts.pipes, "proj-2", 3, pipeline.StatusRunning)

	rec := ts.do(t, http.MethodGet, "/api/pipelines?project=proj-1", nil)
	body := decode[map[string]any](t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2 pipelines for proj-1", body["count"])
	}
}

func TestGetPipeline(t *testing.T) {
	ts := newTestServer(t)
	p := seedPipeline(t, ts.pipes, "proj-1", 7, pipeline.StatusRunning)

	rec := ts.do(t, http.MethodGet, "/api/pipelines/"+p.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[pipeline.Pipeline](t, rec)
	if got.ID != p.ID {
		t.Errorf("ID = %q, want %q", got.ID, p.ID)
	}
	if got.PRNumber != 7 {
		t.Errorf("PRNumber = %d, want 7", got.PRNumber)
	}
}

func TestGetPipeline_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/pipelines/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	body := decode[APIError](t, rec)
	if body.Code != "PIPELINE_NOT_FOUND" {
		t.Errorf("Code = %q, want %q", body.Code, "PIPELINE_NOT_FOUND")
	}
}

func TestCancelPipeline(t *testing.T) {
	ts := newTestServer(t)
	p := seedPipeline(t, ts.pipes, "proj-1", 7, pipeline.StatusRunning)

	rec := ts.do(t, http.MethodPost, "/api/pipelines/"+p.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	ts.runner.mu.Lock()
	cancelled := append([]string(nil), ts.runner.cancelled...)
	ts.runner.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != p.ID {
		t.Errorf("runner cancels = %v, want [%s]", cancelled, p.ID)
	}
}
