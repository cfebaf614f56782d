package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/deckhandhq/deckhand/internal/engine"
)

func TestRenderWorkflow(t *testing.T) {
	inst := &engine.Instance{
		ID:        "wf-abc",
		Type:      "feature",
		ProjectID: "p-1",
		Status:    engine.StatusStarted,
		CreatedAt: time.Now().Add(-5 * time.Minute),
		Steps: []engine.StepDefinition{
			{ID: "plan"},
			{ID: "implement"},
			{ID: "review"},
		},
		CurrentStep: 1,
		Results: map[string]engine.StepResult{
			"plan": {Success: true},
		},
	}

	var buf bytes.Buffer
	renderWorkflow(&buf, inst)

	out := buf.String()
	for _, want := range []string{
		"wf-abc",
		"started",
		"Type:    feature",
		"Project: p-1",
		"✓ plan",
		"● implement",
		"○ review",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderWorkflow_FailedStep(t *testing.T) {
	inst := &engine.Instance{
		ID:          "wf-bad",
		Type:        "bugfix",
		Status:      engine.StatusFailed,
		CreatedAt:   time.Now(),
		Steps:       []engine.StepDefinition{{ID: "plan"}},
		CurrentStep: 1,
		Results: map[string]engine.StepResult{
			"plan": {Success: false, Error: "agent run rejected"},
		},
	}

	var buf bytes.Buffer
	renderWorkflow(&buf, inst)

	if !strings.Contains(buf.String(), "✗ plan") {
		t.Errorf("output missing failed marker:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "agent run rejected") {
		t.Errorf("output missing step error:\n%s", buf.String())
	}
}

func TestPrintStepResult(t *testing.T) {
	inst := &engine.Instance{
		Steps:       []engine.StepDefinition{{ID: "plan"}, {ID: "implement"}},
		CurrentStep: 1,
	}

	var buf bytes.Buffer
	printStepResult(&buf, inst, engine.StepResult{Success: true})
	if got := buf.String(); got != "  ✓ plan\n" {
		t.Errorf("success output = %q, want %q", got, "  ✓ plan\n")
	}

	buf.Reset()
	inst.CurrentStep = 2
	printStepResult(&buf, inst, engine.StepResult{Success: false, Error: "boom"})
	if got := buf.String(); got != "  ✗ implement: boom\n" {
		t.Errorf("failure output = %q, want %q", got, "  ✗ implement: boom\n")
	}
}
