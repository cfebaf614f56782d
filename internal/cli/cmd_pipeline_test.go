package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/pipeline"
)

func TestRenderPipelineTable(t *testing.T) {
	pipelines := []*pipeline.Pipeline{
		{
			ID:          "run-111111111111",
			ProjectID:   "p-1",
			PRNumber:    42,
			Status:      pipeline.StatusRunning,
			Progress:    60,
			CurrentStep: "tests",
			CreatedAt:   time.Now().Add(-2 * time.Minute),
		},
		{
			ID:        "run-222222222222",
			ProjectID: "p-2",
			PRNumber:  7,
			Status:    pipeline.StatusPending,
			CreatedAt: time.Now(),
		},
	}

	var buf bytes.Buffer
	renderPipelineTable(&buf, pipelines)

	out := buf.String()
	for _, want := range []string{"#42", "running", "60%", "tests", "#7", "pending", "p-1", "p-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	// A pipeline that has not started yet shows a placeholder step.
	if !strings.Contains(out, "-") {
		t.Errorf("table missing step placeholder:\n%s", out)
	}
}

func TestRenderPipeline(t *testing.T) {
	completed := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)
	p := &pipeline.Pipeline{
		ID:            "run-abc",
		ProjectID:     "p-1",
		PRNumber:      42,
		PRURL:         "https://github.com/acme/myapp/pull/42",
		Status:        pipeline.StatusCompleted,
		Progress:      100,
		DeploymentURL: "http://localhost:4131",
		CreatedAt:     completed.Add(-10 * time.Minute),
		CompletedAt:   &completed,
		Results: []pipeline.StepResult{
			{Step: "clone", Success: true},
			{Step: "tests", Success: true, TestsPassed: 12, TestsFailed: 0},
			{Step: "merge", Success: true},
		},
	}

	var buf bytes.Buffer
	renderPipeline(&buf, p)

	out := buf.String()
	for _, want := range []string{
		"run-abc",
		"completed (100%)",
		"#42",
		"https://github.com/acme/myapp/pull/42",
		"http://localhost:4131",
		"✓ clone",
		"✓ tests",
		"12 passed, 0 failed",
		"✓ merge",
		"2026-08-20",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPipeline_Failure(t *testing.T) {
	p := &pipeline.Pipeline{
		ID:              "run-bad",
		ProjectID:       "p-1",
		PRNumber:        3,
		Status:          pipeline.StatusFailed,
		Progress:        90,
		ErrorMessage:    "tests failed: 2 failing",
		EscalationRunID: "agent-run-9",
		RetryCount:      1,
		CreatedAt:       time.Now(),
		Results: []pipeline.StepResult{
			{Step: "clone", Success: true},
			{Step: "tests", Success: false, Error: "2 of 14 tests failed", TestsPassed: 12, TestsFailed: 2},
		},
	}

	var buf bytes.Buffer
	renderPipeline(&buf, p)

	out := buf.String()
	for _, want := range []string{
		"✗ run-bad",
		"tests failed: 2 failing",
		"✗ tests",
		"Escalated to agent run agent-run-9 (retry 1)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
