// Package hosting provides a unified interface for repository hosting
// providers (GitHub, GitLab).
package hosting

import (
	"context"
)

// Provider is the interface for repository hosting providers.
// Implementations exist for GitHub (go-github) and GitLab (client-go).
type Provider interface {
	// PR / Merge Request operations
	GetPR(ctx context.Context, number int) (*PR, error)
	FindPRByBranch(ctx context.Context, branch string) (*PR, error)
	// MergePR merges the pull request and returns the merge commit SHA.
	MergePR(ctx context.Context, number int, opts PRMergeOptions) (string, error)

	// Comments
	CreatePRComment(ctx context.Context, number int, body string) (*PRComment, error)

	// CI status (GitHub check runs / GitLab pipeline jobs → unified)
	GetCheckRuns(ctx context.Context, ref string) ([]CheckRun, error)

	// Reviews / Approvals
	GetPRReviews(ctx context.Context, number int) ([]PRReview, error)
	ApprovePR(ctx context.Context, number int, body string) error

	// Branch operations
	DeleteBranch(ctx context.Context, branch string) error

	// Auth + metadata
	CheckAuth(ctx context.Context) error
	Name() string
	OwnerRepo() (string, string)
}

// PR represents a pull request / merge request.
type PR struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	State      string `json:"state"` // open, closed, merged
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
	HeadSHA    string `json:"head_sha"`
	HTMLURL    string `json:"html_url"`
	Draft      bool   `json:"draft"`
	Mergeable  bool   `json:"mergeable"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// PRMergeOptions for merging a PR / merge request.
type PRMergeOptions struct {
	Method       string `json:"method"` // merge, squash, rebase
	CommitTitle  string `json:"commit_title,omitempty"`
	DeleteBranch bool   `json:"delete_branch"`
}

// PRComment represents a PR comment / MR note.
type PRComment struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// CheckRun represents a CI check (GitHub check run / GitLab pipeline job).
type CheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`               // queued, in_progress, completed
	Conclusion string `json:"conclusion,omitempty"` // success, failure, neutral, etc.
}

// PRReview represents a pull request review / merge request approval.
type PRReview struct {
	ID        int64  `json:"id"`
	Author    string `json:"author"`
	State     string `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED, DISMISSED
	Body      string `json:"body,omitempty"`
	CreatedAt string `json:"created_at"`
}
