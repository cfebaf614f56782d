package jira

import (
	"context"
	"fmt"
	"strings"
)

// FetchRequirements retrieves an issue and renders it as the requirements
// text for an autonomous run. The block opens with the issue key and summary
// so run transcripts stay traceable back to the ticket.
func (c *Client) FetchRequirements(ctx context.Context, issueKey string) (string, error) {
	issue, err := c.GetIssue(ctx, issueKey)
	if err != nil {
		return "", err
	}
	return RenderRequirements(issue), nil
}

// RenderRequirements formats a fetched issue as a requirements text block:
// a title line, a short metadata header, then the description and acceptance
// criteria as markdown sections.
func RenderRequirements(issue Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s: %s\n", issue.Key, issue.Summary)

	var meta []string
	if issue.IssueType != "" {
		meta = append(meta, "Type: "+issue.IssueType)
	}
	if issue.Status != "" {
		meta = append(meta, "Status: "+issue.Status)
	}
	if issue.Priority != "" {
		meta = append(meta, "Priority: "+issue.Priority)
	}
	if len(meta) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(meta, " | "))
		b.WriteString("\n")
	}
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if len(issue.Components) > 0 {
		fmt.Fprintf(&b, "Components: %s\n", strings.Join(issue.Components, ", "))
	}
	if issue.ParentKey != "" {
		fmt.Fprintf(&b, "Parent: %s\n", issue.ParentKey)
	}
	if blockers := blockingKeys(issue); len(blockers) > 0 {
		fmt.Fprintf(&b, "Blocked by: %s\n", strings.Join(blockers, ", "))
	}

	if desc := strings.TrimSpace(issue.Description); desc != "" {
		b.WriteString("\n## Description\n\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}

	if ac := strings.TrimSpace(issue.AcceptanceCriteria); ac != "" {
		b.WriteString("\n## Acceptance Criteria\n\n")
		b.WriteString(ac)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// blockingKeys returns the keys of issues this one is blocked by. On a
// "Blocks" link the inward side is the blocked issue.
func blockingKeys(issue Issue) []string {
	var keys []string
	for _, link := range issue.IssueLinks {
		if strings.EqualFold(link.Type, "Blocks") && link.Direction == LinkInward {
			keys = append(keys, link.LinkedKey)
		}
	}
	return keys
}
