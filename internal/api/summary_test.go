package api

import (
	"net/http"
	"testing"

	"github.com/deckhandhq/deckhand/internal/autonomous"
	"github.com/deckhandhq/deckhand/internal/pipeline"
)

func TestDashboardSummary_Aggregates(t *testing.T) {
	ts := newTestServer(t)
	widgets := seedProject(t, ts.store, "widgets")
	gadgets := seedProject(t, ts.store, "gadgets")

	seedPipeline(t, ts.pipes, widgets.ID, 7, pipeline.StatusRunning)
	seedPipeline(t, ts.pipes, widgets.ID, 8, pipeline.StatusFailed)
	seedPipeline(t, ts.pipes, gadgets.ID, 3, pipeline.StatusCompleted)

	started := ts.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"type":    "echo_once",
		"execute": false,
	})
	if started.Code != http.StatusAccepted {
		t.Fatalf("start workflow status = %d: %s", started.Code, started.Body.String())
	}
	ts.auto.states["wf-1"] = &autonomous.State{ID: "wf-1", Status: autonomous.StatusRunning}

	rec := ts.do(t, http.MethodGet, "/api/dashboard/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	summary := decode[DashboardSummary](t, rec)

	if summary.Projects != 2 {
		t.Errorf("Projects = %d, want 2", summary.Projects)
	}
	if summary.ActiveWorkflows != 1 {
		t.Errorf("ActiveWorkflows = %d, want 1", summary.ActiveWorkflows)
	}
	if summary.ActiveAutonomous != 1 {
		t.Errorf("ActiveAutonomous = %d, want 1", summary.ActiveAutonomous)
	}
	want := PipelineCounts{Running: 1, Failed: 1, Completed: 1}
	if summary.Pipelines != want {
		t.Errorf("Pipelines = %+v, want %+v", summary.Pipelines, want)
	}

	if len(summary.PerProject) != 2 {
		t.Fatalf("PerProject = %d rows, want 2", len(summary.PerProject))
	}
	if summary.PerProject[0].Name != "gadgets" || summary.PerProject[1].Name != "widgets" {
		t.Errorf("PerProject order = [%s, %s], want sorted by name",
			summary.PerProject[0].Name, summary.PerProject[1].Name)
	}
	row := summary.PerProject[1]
	if row.Pipelines != 2 || row.Active != 1 || row.Failed != 1 {
		t.Errorf("widgets row = %+v", row)
	}
	if row.LastActivity.IsZero() {
		t.Error("widgets row should carry a last activity time")
	}
}

func TestDashboardSummary_CachedUntilInvalidated(t *testing.T) {
	ts := newTestServer(t)
	seedProject(t, ts.store, "widgets")

	first := decode[DashboardSummary](t, ts.do(t, http.MethodGet, "/api/dashboard/summary", nil))
	if first.Projects != 1 {
		t.Fatalf("Projects = %d, want 1", first.Projects)
	}

	// A direct store write bypasses the handlers, so the cache keeps
	// serving the old aggregate.
	seedProject(t, ts.store, "gadgets")
	cached := decode[DashboardSummary](t, ts.do(t, http.MethodGet, "/api/dashboard/summary", nil))
	if cached.Projects != 1 {
		t.Errorf("cached Projects = %d, want 1", cached.Projects)
	}

	ts.srv.summary.Invalidate()
	fresh := decode[DashboardSummary](t, ts.do(t, http.MethodGet, "/api/dashboard/summary", nil))
	if fresh.Projects != 2 {
		t.Errorf("fresh Projects = %d, want 2", fresh.Projects)
	}
}
