// Package project provides the registered-repository model for deckhand.
package project

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Host identifies the git hosting provider for a project.
type Host string

const (
	HostGitHub Host = "github"
	HostGitLab Host = "gitlab"
)

// ValidHosts returns all valid host values.
func ValidHosts() []Host {
	return []Host{HostGitHub, HostGitLab}
}

// IsValidHost returns true if the host is a valid host value.
func IsValidHost(h Host) bool {
	switch h {
	case HostGitHub, HostGitLab:
		return true
	default:
		return false
	}
}

// Project represents a repository registered with deckhand.
type Project struct {
	// ID is the unique identifier (uuid).
	ID string `yaml:"id" json:"id"`

	// Name is the display name, defaulting to the repo name.
	Name string `yaml:"name" json:"name"`

	// RepoURL is the clone URL of the repository.
	RepoURL string `yaml:"repo_url" json:"repo_url"`

	// Host is the hosting provider the repository lives on.
	Host Host `yaml:"host" json:"host"`

	// Owner is the repository owner or group.
	Owner string `yaml:"owner" json:"owner"`

	// Repo is the repository name without the owner prefix.
	Repo string `yaml:"repo" json:"repo"`

	// DefaultBranch is the branch PRs merge into.
	DefaultBranch string `yaml:"default_branch,omitempty" json:"default_branch,omitempty"`

	// Description is a free-form summary used in agent prompts.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// AutoMerge enables merging approved PRs that passed validation.
	AutoMerge bool `yaml:"auto_merge,omitempty" json:"auto_merge,omitempty"`

	// SetupCommand runs after clone to install dependencies.
	// Empty means the setup step is inferred from the detected stack.
	SetupCommand string `yaml:"setup_command,omitempty" json:"setup_command,omitempty"`

	// DeployCommand starts the application for deployment validation.
	DeployCommand string `yaml:"deploy_command,omitempty" json:"deploy_command,omitempty"`

	// HealthPath is the HTTP path polled to confirm a deployment is up.
	HealthPath string `yaml:"health_path,omitempty" json:"health_path,omitempty"`

	// UISelectors lists CSS selectors the UI validator checks for.
	UISelectors []string `yaml:"ui_selectors,omitempty" json:"ui_selectors,omitempty"`

	// WebhookSecret signs incoming webhook deliveries for this project.
	// Never serialized into API responses.
	WebhookSecret string `yaml:"webhook_secret,omitempty" json:"-"`

	// CreatedAt is when the project was registered.
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`

	// UpdatedAt is when the project was last modified.
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// New creates a project from a repository URL.
// The host, owner, and repo are derived from the URL; the name defaults
// to the repo name when empty.
func New(name, repoURL string) (*Project, error) {
	host, owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = repo
	}

	now := time.Now()
	return &Project{
		ID:            uuid.NewString(),
		Name:          name,
		RepoURL:       repoURL,
		Host:          host,
		Owner:         owner,
		Repo:          repo,
		DefaultBranch: "main",
		WebhookSecret: NewWebhookSecret(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ParseRepoURL extracts the host, owner, and repo from a clone URL.
// Supports https and ssh (git@host:owner/repo.git) forms. Hostnames
// containing "gitlab" map to the GitLab provider, github.com to GitHub.
func ParseRepoURL(repoURL string) (Host, string, string, error) {
	hostname, path, err := splitRepoURL(repoURL)
	if err != nil {
		return "", "", "", err
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[len(parts)-1] == "" {
		return "", "", "", fmt.Errorf("repo url %q: expected owner/repo path", repoURL)
	}

	// GitLab subgroups keep the full group path as the owner.
	owner := strings.Join(parts[:len(parts)-1], "/")
	repo := parts[len(parts)-1]

	var host Host
	switch {
	case hostname == "github.com":
		host = HostGitHub
	case strings.Contains(hostname, "gitlab"):
		host = HostGitLab
	default:
		return "", "", "", fmt.Errorf("repo url %q: unrecognized host %q", repoURL, hostname)
	}

	return host, owner, repo, nil
}

// splitRepoURL returns the hostname and path of a clone URL.
func splitRepoURL(repoURL string) (string, string, error) {
	// ssh form: git@host:owner/repo.git
	if strings.HasPrefix(repoURL, "git@") {
		rest := strings.TrimPrefix(repoURL, "git@")
		hostname, path, ok := strings.Cut(rest, ":")
		if !ok || hostname == "" || path == "" {
			return "", "", fmt.Errorf("repo url %q: malformed ssh url", repoURL)
		}
		return hostname, path, nil
	}

	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("repo url %q: %w", repoURL, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("repo url %q: missing host", repoURL)
	}
	return u.Hostname(), u.Path, nil
}

// NewWebhookSecret generates a random hex secret for webhook signing.
func NewWebhookSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("generate webhook secret: %v", err))
	}
	return hex.EncodeToString(b)
}

// Validate checks that the project has the fields required to run
// validation pipelines against it.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if p.RepoURL == "" {
		return fmt.Errorf("project repo_url is required")
	}
	if !IsValidHost(p.Host) {
		return fmt.Errorf("project host %q is not supported", p.Host)
	}
	if p.Owner == "" || p.Repo == "" {
		return fmt.Errorf("project owner/repo are required")
	}
	return nil
}

// FullName returns the owner/repo form used by hosting APIs.
func (p *Project) FullName() string {
	return p.Owner + "/" + p.Repo
}

// Touch updates the modification timestamp.
func (p *Project) Touch() {
	p.UpdatedAt = time.Now()
}
