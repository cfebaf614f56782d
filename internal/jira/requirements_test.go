package jira

import (
	"strings"
	"testing"
)

func TestRenderRequirements_FullIssue(t *testing.T) {
	issue := Issue{
		Key:         "PROJ-42",
		Summary:     "Fix authentication bug",
		Description: "Auth is broken.\n\nSteps:\n- open login page\n- submit",
		IssueType:   "Bug",
		Status:      "In Progress",
		Priority:    "High",
		Labels:      []string{"critical", "auth"},
		Components:  []string{"backend"},
		ParentKey:   "PROJ-10",
		IssueLinks: []IssueLink{
			{Type: "Blocks", Direction: LinkInward, LinkedKey: "PROJ-7"},
			{Type: "Blocks", Direction: LinkOutward, LinkedKey: "PROJ-50"},
			{Type: "Relates", Direction: LinkInward, LinkedKey: "PROJ-99"},
		},
		AcceptanceCriteria: "- login works\n- logout works",
	}

	got := RenderRequirements(issue)

	if !strings.HasPrefix(got, "# PROJ-42: Fix authentication bug\n") {
		t.Errorf("missing title line:\n%s", got)
	}
	if !strings.Contains(got, "Type: Bug | Status: In Progress | Priority: High") {
		t.Errorf("missing metadata line:\n%s", got)
	}
	if !strings.Contains(got, "Labels: critical, auth") {
		t.Errorf("missing labels line:\n%s", got)
	}
	if !strings.Contains(got, "Components: backend") {
		t.Errorf("missing components line:\n%s", got)
	}
	if !strings.Contains(got, "Parent: PROJ-10") {
		t.Errorf("missing parent line:\n%s", got)
	}
	// Only the inward side of a Blocks link is a blocker.
	if !strings.Contains(got, "Blocked by: PROJ-7") {
		t.Errorf("missing blocked-by line:\n%s", got)
	}
	if strings.Contains(got, "PROJ-50") || strings.Contains(got, "PROJ-99") {
		t.Errorf("outward and unrelated links should not appear:\n%s", got)
	}
	if !strings.Contains(got, "## Description\n\nAuth is broken.") {
		t.Errorf("missing description section:\n%s", got)
	}
	if !strings.Contains(got, "## Acceptance Criteria\n\n- login works\n- logout works") {
		t.Errorf("missing acceptance criteria section:\n%s", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("rendered block should end with a newline")
	}
	if strings.HasSuffix(got, "\n\n") {
		t.Error("rendered block should not end with a blank line")
	}
}

func TestRenderRequirements_MinimalIssue(t *testing.T) {
	got := RenderRequirements(Issue{Key: "PROJ-1", Summary: "Do the thing"})

	want := "# PROJ-1: Do the thing\n"
	if got != want {
		t.Errorf("RenderRequirements() = %q, want %q", got, want)
	}
}

func TestRenderRequirements_SkipsEmptySections(t *testing.T) {
	got := RenderRequirements(Issue{
		Key:         "PROJ-2",
		Summary:     "Describe only",
		Status:      "To Do",
		Description: "Just a description.",
	})

	if !strings.Contains(got, "Status: To Do") {
		t.Errorf("missing status:\n%s", got)
	}
	if !strings.Contains(got, "## Description") {
		t.Errorf("missing description section:\n%s", got)
	}
	if strings.Contains(got, "## Acceptance Criteria") {
		t.Errorf("acceptance criteria section should be absent:\n%s", got)
	}
	if strings.Contains(got, "Labels:") || strings.Contains(got, "Parent:") {
		t.Errorf("empty metadata lines should be absent:\n%s", got)
	}
}

func TestBlockingKeys(t *testing.T) {
	issue := Issue{
		IssueLinks: []IssueLink{
			{Type: "blocks", Direction: LinkInward, LinkedKey: "A-1"},
			{Type: "Blocks", Direction: LinkInward, LinkedKey: "A-2"},
			{Type: "Blocks", Direction: LinkOutward, LinkedKey: "A-3"},
			{Type: "Relates", Direction: LinkInward, LinkedKey: "A-4"},
		},
	}

	got := blockingKeys(issue)
	if len(got) != 2 || got[0] != "A-1" || got[1] != "A-2" {
		t.Errorf("blockingKeys() = %v, want [A-1 A-2]", got)
	}
}
