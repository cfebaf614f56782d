// Package github implements hosting.Provider for GitHub using go-github.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/deckhandhq/deckhand/internal/hosting"
	"github.com/deckhandhq/deckhand/internal/project"
)

// Compile-time interface check.
var _ hosting.Provider = (*GitHubProvider)(nil)

func init() {
	hosting.RegisterProvider(project.HostGitHub, newProvider)
}

// GitHubProvider implements hosting.Provider using the go-github library.
type GitHubProvider struct {
	client *gogithub.Client
	owner  string
	repo   string
}

// newProvider creates a new GitHubProvider for the given repository.
func newProvider(owner, repo string, cfg hosting.Config) (hosting.Provider, error) {
	token, err := cfg.ResolveToken("GITHUB_TOKEN")
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &bearerTransport{token: token},
	}
	client := gogithub.NewClient(httpClient)

	// GitHub Enterprise: override base URL.
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
		client.UploadURL, parseErr = client.UploadURL.Parse(baseURL + "/api/uploads/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", cfg.BaseURL, parseErr)
		}
	}

	return &GitHubProvider{
		client: client,
		owner:  owner,
		repo:   repo,
	}, nil
}

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// Name returns the provider name.
func (g *GitHubProvider) Name() string {
	return string(project.HostGitHub)
}

// OwnerRepo returns the owner and repository name.
func (g *GitHubProvider) OwnerRepo() (string, string) {
	return g.owner, g.repo
}

// CheckAuth validates the token by fetching the authenticated user.
func (g *GitHubProvider) CheckAuth(ctx context.Context) error {
	_, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// GetPR gets a pull request by number.
func (g *GitHubProvider) GetPR(ctx context.Context, number int) (*hosting.PR, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		return nil, fmt.Errorf("get PR %d: %w", number, err)
	}
	return mapPR(pr), nil
}

// FindPRByBranch finds an open PR for a given head branch.
func (g *GitHubProvider) FindPRByBranch(ctx context.Context, branch string) (*hosting.PR, error) {
	prs, _, err := g.client.PullRequests.List(ctx, g.owner, g.repo, &gogithub.PullRequestListOptions{
		Head:        g.owner + ":" + branch,
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("find PR by branch %q: %w", branch, err)
	}

	if len(prs) == 0 {
		return nil, hosting.ErrNoPRFound
	}

	return mapPR(prs[0]), nil
}

// MergePR merges a pull request and returns the merge commit SHA.
func (g *GitHubProvider) MergePR(ctx context.Context, number int, opts hosting.PRMergeOptions) (string, error) {
	mergeMethod := "merge"
	switch opts.Method {
	case "squash":
		mergeMethod = "squash"
	case "rebase":
		mergeMethod = "rebase"
	}

	mergeOpts := &gogithub.PullRequestOptions{
		MergeMethod: mergeMethod,
		CommitTitle: opts.CommitTitle,
	}

	result, _, err := g.client.PullRequests.Merge(ctx, g.owner, g.repo, number, "", mergeOpts)
	if err != nil {
		return "", fmt.Errorf("merge PR %d: %w", number, err)
	}

	if opts.DeleteBranch {
		// Get the PR to find the head branch.
		pr, _, getErr := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
		if getErr != nil {
			slog.Warn("merged PR but failed to get head branch for deletion",
				"pr", number, "error", getErr)
			return result.GetSHA(), nil
		}
		if delErr := g.DeleteBranch(ctx, pr.GetHead().GetRef()); delErr != nil {
			slog.Warn("merged PR but failed to delete branch",
				"pr", number, "branch", pr.GetHead().GetRef(), "error", delErr)
		}
	}

	return result.GetSHA(), nil
}

// CreatePRComment creates a general comment on a PR.
func (g *GitHubProvider) CreatePRComment(ctx context.Context, number int, body string) (*hosting.PRComment, error) {
	issueComment := &gogithub.IssueComment{
		Body: gogithub.Ptr(body),
	}

	created, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, issueComment)
	if err != nil {
		return nil, fmt.Errorf("create comment on PR %d: %w", number, err)
	}

	return &hosting.PRComment{
		ID:        created.GetID(),
		Body:      created.GetBody(),
		Author:    created.GetUser().GetLogin(),
		CreatedAt: created.GetCreatedAt().Format(time.RFC3339),
	}, nil
}

// GetCheckRuns gets CI check runs for a ref.
func (g *GitHubProvider) GetCheckRuns(ctx context.Context, ref string) ([]hosting.CheckRun, error) {
	result, _, err := g.client.Checks.ListCheckRunsForRef(ctx, g.owner, g.repo, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("get check runs for %q: %w", ref, err)
	}

	checks := make([]hosting.CheckRun, 0, len(result.CheckRuns))
	for _, cr := range result.CheckRuns {
		checks = append(checks, hosting.CheckRun{
			ID:         cr.GetID(),
			Name:       cr.GetName(),
			Status:     cr.GetStatus(),
			Conclusion: cr.GetConclusion(),
		})
	}
	return checks, nil
}

// GetPRReviews gets reviews for a PR.
func (g *GitHubProvider) GetPRReviews(ctx context.Context, number int) ([]hosting.PRReview, error) {
	var allReviews []*gogithub.PullRequestReview
	opts := &gogithub.ListOptions{PerPage: 100}

	for {
		reviews, resp, err := g.client.PullRequests.ListReviews(ctx, g.owner, g.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list reviews for PR %d: %w", number, err)
		}
		allReviews = append(allReviews, reviews...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	result := make([]hosting.PRReview, 0, len(allReviews))
	for _, r := range allReviews {
		result = append(result, hosting.PRReview{
			ID:        r.GetID(),
			Author:    r.GetUser().GetLogin(),
			State:     r.GetState(),
			Body:      r.GetBody(),
			CreatedAt: r.GetSubmittedAt().Format(time.RFC3339),
		})
	}
	return result, nil
}

// ApprovePR approves a pull request.
func (g *GitHubProvider) ApprovePR(ctx context.Context, number int, body string) error {
	review := &gogithub.PullRequestReviewRequest{
		Event: gogithub.Ptr("APPROVE"),
		Body:  gogithub.Ptr(body),
	}

	_, _, err := g.client.PullRequests.CreateReview(ctx, g.owner, g.repo, number, review)
	if err != nil {
		return fmt.Errorf("approve PR %d: %w", number, err)
	}
	return nil
}

// DeleteBranch deletes a branch ref from the remote.
func (g *GitHubProvider) DeleteBranch(ctx context.Context, branch string) error {
	_, err := g.client.Git.DeleteRef(ctx, g.owner, g.repo, "heads/"+branch)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", branch, err)
	}
	return nil
}

// mapPR converts a go-github PullRequest to a hosting.PR.
func mapPR(pr *gogithub.PullRequest) *hosting.PR {
	state := pr.GetState()
	if pr.GetMerged() {
		state = "merged"
	}

	var createdAt, updatedAt string
	if t := pr.GetCreatedAt(); !t.IsZero() {
		createdAt = t.Format(time.RFC3339)
	}
	if t := pr.GetUpdatedAt(); !t.IsZero() {
		updatedAt = t.Format(time.RFC3339)
	}

	return &hosting.PR{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		State:      state,
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		HTMLURL:    pr.GetHTMLURL(),
		Draft:      pr.GetDraft(),
		Mergeable:  pr.GetMergeable(),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}
