// Package jira pulls issue requirements out of Jira Cloud via the REST API v3.
// An autonomous run started with --from-jira uses the rendered requirements
// block instead of free-form requirements text.
package jira

import "time"

// Issue is the slice of a Jira issue that feeds a requirements block.
// Mapped from the go-atlassian IssueScheme during fetch.
type Issue struct {
	Key         string
	Summary     string
	Description string // Already converted from ADF to Markdown
	IssueType   string // e.g., "Epic", "Story", "Task", "Bug", "Sub-task"
	IsSubtask   bool
	Status      string // Jira status name (e.g., "To Do", "In Progress", "Done")
	StatusKey   string // Status category key: "new", "indeterminate", "done"
	Priority    string // Jira priority name: "Highest", "High", "Medium", "Low", "Lowest"
	Labels      []string
	Components  []string
	ParentKey   string // Parent issue key (for subtasks and epic children)
	IssueLinks  []IssueLink
	Created     time.Time
	Updated     time.Time

	// AcceptanceCriteria holds the rendered acceptance criteria custom field
	// when the client is configured with its field ID. Empty otherwise.
	AcceptanceCriteria string
}

// IssueLink represents a directional link between two Jira issues.
type IssueLink struct {
	// Type is the link type name (e.g., "Blocks", "Relates")
	Type string
	// Direction indicates whether this issue is the inward or outward side.
	Direction LinkDirection
	// LinkedKey is the key of the other issue in the link.
	LinkedKey string
}

// LinkDirection indicates the direction of an issue link.
type LinkDirection int

const (
	// LinkInward means this issue is the inward side (e.g., "is blocked by").
	LinkInward LinkDirection = iota
	// LinkOutward means this issue is the outward side (e.g., "blocks").
	LinkOutward
)
