package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/api"
)

func TestRenderSummary(t *testing.T) {
	s := &api.DashboardSummary{
		Projects:         2,
		ActiveWorkflows:  1,
		ActiveAutonomous: 1,
		Pipelines: api.PipelineCounts{
			Pending:   1,
			Running:   2,
			Completed: 10,
			Failed:    3,
		},
		PerProject: []api.ProjectSummary{
			{
				ProjectID:    "p-1",
				Name:         "myapp",
				Repo:         "acme/myapp",
				Pipelines:    12,
				Active:       2,
				Failed:       3,
				LastActivity: time.Now().Add(-20 * time.Minute),
			},
			{
				ProjectID: "p-2",
				Name:      "shop",
				Repo:      "acme/shop",
				Pipelines: 4,
			},
		},
		GeneratedAt: time.Now(),
	}

	var buf bytes.Buffer
	renderSummary(&buf, s)

	out := buf.String()
	for _, want := range []string{
		"Projects:        2",
		"Workflows:       1 active",
		"Autonomous runs: 1 active",
		"16 total",
		"2 running",
		"3 failed",
		"myapp",
		"acme/myapp",
		"20m ago",
		"shop",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// A project with no activity shows a placeholder, not a zero time.
	if strings.Contains(out, "0001-01-01") {
		t.Errorf("output leaks zero time:\n%s", out)
	}
}

func TestRenderSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, &api.DashboardSummary{GeneratedAt: time.Now()})

	out := buf.String()
	if !strings.Contains(out, "Projects:        0") {
		t.Errorf("output missing zero project count:\n%s", out)
	}
	if strings.Contains(out, "PROJECT\t") {
		t.Errorf("empty summary should not render the per-project table:\n%s", out)
	}
}
