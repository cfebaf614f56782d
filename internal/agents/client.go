// Package agents is a typed JSON client for the external agent-run
// service. The service executes coding-agent sessions against a
// repository; callers create a run with a prompt plus context and poll
// it until it reaches a terminal status.
package agents

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

// Status is the lifecycle state reported by the agent-run service.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request describes a new agent run.
type Request struct {
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
}

// Run is the service's view of an agent session.
type Run struct {
	ID     string `json:"runId"`
	Status Status `json:"status"`
	Branch string `json:"branch,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Client talks to the agent-run service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
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

// NewClient creates a client for the agent-run service at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CreateRun submits a new agent run and returns its initial state.
func (c *Client) CreateRun(ctx context.Context, req Request) (*Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/runs", req, &run); err != nil {
		return nil, fmt.Errorf("create agent run: %w", err)
	}
	c.logger.Debug("agent run created", "run_id", run.ID, "status", run.Status)
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/runs/"+id, nil, &run); err != nil {
		return nil, fmt.Errorf("get agent run %s: %w", id, err)
	}
	return &run, nil
}

// WaitForCompletion polls the run until it reaches a terminal status or
// ctx expires. The terminal run is returned even when its status is
// failed; callers decide what failure means.
func (c *Client) WaitForCompletion(ctx context.Context, id string, pollInterval time.Duration) (*Run, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.IsTerminal() {
			c.logger.Debug("agent run finished", "run_id", id, "status", run.Status)
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for agent run %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// doJSON executes one JSON request/response round trip.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
