// Package validate wraps the two external validation services: the
// build/deployment validator and the UI validator. Both are plain JSON
// POST endpoints; the request/response shapes mirror what the services
// accept.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Build validator verdicts.
const (
	BuildStatusSuccess = "success"
	BuildStatusFailed  = "failed"
)

// UI validator verdicts.
const (
	UIStatusPassed = "passed"
	UIStatusFailed = "failed"
)

// BuildRequest asks the build validator to check a deployed branch.
type BuildRequest struct {
	ProjectID   string         `json:"projectId"`
	PRURL       string         `json:"prUrl"`
	Branch      string         `json:"branch"`
	BuildConfig map[string]any `json:"buildConfig,omitempty"`
}

// BuildStep is one named check inside a build validation.
type BuildStep struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BuildResult is the build validator's verdict.
type BuildResult struct {
	OverallStatus string      `json:"overall_status"`
	Steps         []BuildStep `json:"steps,omitempty"`
}

// Passed reports whether the build validation succeeded overall.
func (r *BuildResult) Passed() bool {
	return r != nil && r.OverallStatus == BuildStatusSuccess
}

// FailedSteps returns the names of steps that did not succeed.
func (r *BuildResult) FailedSteps() []string {
	if r == nil {
		return nil
	}
	var failed []string
	for _, s := range r.Steps {
		if s.Status != BuildStatusSuccess {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// UIRequest asks the UI validator to inspect a deployed page.
type UIRequest struct {
	URL       string   `json:"url"`
	Elements  []string `json:"elements,omitempty"`
	ProjectID string   `json:"projectId"`
}

// UIIssue is a single problem the UI validator found.
type UIIssue struct {
	Element  string `json:"element,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}

// UIResult is the UI validator's verdict.
type UIResult struct {
	ValidationStatus string    `json:"validation_status"`
	OverallScore     float64   `json:"overall_score"`
	Issues           []UIIssue `json:"issues,omitempty"`
	Recommendations  []string  `json:"recommendations,omitempty"`
}

// Passed reports whether the UI validation succeeded.
func (r *UIResult) Passed() bool {
	return r != nil && r.ValidationStatus == UIStatusPassed
}

// Client calls the external validators.
type Client struct {
	buildURL string
	uiURL    string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a validator client. Either URL may be empty when
// that validator is not configured; the corresponding call then fails
// with a clear error.
func NewClient(buildURL, uiURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	c := &Client{
		buildURL: strings.TrimRight(buildURL, "/"),
		uiURL:    strings.TrimRight(uiURL, "/"),
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ValidateBuild runs the build/deployment validator against a branch.
func (c *Client) ValidateBuild(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if c.buildURL == "" {
		return nil, fmt.Errorf("build validator URL not configured")
	}
	var result BuildResult
	if err := c.post(ctx, c.buildURL, req, &result); err != nil {
		return nil, fmt.Errorf("build validation: %w", err)
	}
	c.logger.Debug("build validation finished", "project_id", req.ProjectID, "status", result.OverallStatus, "steps", len(result.Steps))
	return &result, nil
}

// ValidateUI runs the UI validator against a deployed URL.
func (c *Client) ValidateUI(ctx context.Context, req UIRequest) (*UIResult, error) {
	if c.uiURL == "" {
		return nil, fmt.Errorf("UI validator URL not configured")
	}
	var result UIResult
	if err := c.post(ctx, c.uiURL, req, &result); err != nil {
		return nil, fmt.Errorf("UI validation: %w", err)
	}
	c.logger.Debug("UI validation finished", "project_id", req.ProjectID, "status", result.ValidationStatus, "score", result.OverallScore)
	return &result, nil
}

// post executes one JSON round trip against a validator endpoint.
func (c *Client) post(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
