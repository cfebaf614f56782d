package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
	"github.com/tidwall/gjson"
)

// ClientConfig holds the configuration for connecting to a Jira Cloud instance.
type ClientConfig struct {
	// BaseURL is the Jira Cloud instance URL (e.g., "https://acme.atlassian.net").
	BaseURL string
	// Email is the user's email address for basic auth.
	Email string
	// APIToken is the API token for basic auth.
	APIToken string
	// AcceptanceField is the ID of the custom field carrying acceptance
	// criteria (e.g., "customfield_10042"). Field IDs vary per site, so there
	// is no usable default. When empty, the requirements block relies on the
	// description alone.
	AcceptanceField string
}

// Client wraps the go-atlassian Jira v3 client for fetching issue requirements.
type Client struct {
	jira *v3.Client
	cfg  ClientConfig
}

// NewClient creates a new Jira Cloud client with basic auth.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("jira email is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("jira API token is required")
	}

	// Ensure URL doesn't have trailing slash
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}

	client.Auth.SetBasicAuth(cfg.Email, cfg.APIToken)
	client.Auth.SetUserAgent("deckhand-jira/1.0")

	return &Client{jira: client, cfg: cfg}, nil
}

// GetIssue fetches a single issue by key. Fields are requested unfiltered so
// the raw payload includes the acceptance criteria custom field when one is
// configured.
func (c *Client) GetIssue(ctx context.Context, issueKey string) (Issue, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return Issue{}, fmt.Errorf("jira issue key is required")
	}

	raw, resp, err := c.jira.Issue.Get(ctx, issueKey, nil, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return Issue{}, fmt.Errorf("jira issue %s not found", issueKey)
		}
		if resp != nil {
			return Issue{}, fmt.Errorf("jira fetch %s (status %d): %w", issueKey, resp.StatusCode, err)
		}
		return Issue{}, fmt.Errorf("jira fetch %s: %w", issueKey, err)
	}

	issue := convertIssue(raw)
	if c.cfg.AcceptanceField != "" && resp != nil {
		issue.AcceptanceCriteria = acceptanceFromPayload(resp.Bytes.Bytes(), c.cfg.AcceptanceField)
	}
	return issue, nil
}

// acceptanceFromPayload extracts the acceptance criteria custom field from a
// raw issue payload. Plain-text fields arrive as JSON strings; text-area
// fields arrive as ADF documents under API v3.
func acceptanceFromPayload(payload []byte, fieldID string) string {
	field := gjson.GetBytes(payload, "fields."+fieldID)
	if !field.Exists() || field.Type == gjson.Null {
		return ""
	}
	if field.Type == gjson.String {
		return strings.TrimSpace(field.String())
	}

	var node models.CommentNodeScheme
	if err := json.Unmarshal([]byte(field.Raw), &node); err != nil {
		return ""
	}
	return ADFToMarkdown(&node)
}

// convertIssue maps a go-atlassian IssueScheme to our simplified Issue type.
func convertIssue(issue *models.IssueScheme) Issue {
	if issue == nil || issue.Fields == nil {
		return Issue{Key: safeKey(issue)}
	}

	f := issue.Fields

	result := Issue{
		Key:       issue.Key,
		Summary:   f.Summary,
		IssueType: safeIssueTypeName(f.IssueType),
		IsSubtask: f.IssueType != nil && f.IssueType.Subtask,
		Status:    safeStatusName(f.Status),
		StatusKey: safeStatusCategoryKey(f.Status),
		Priority:  safePriorityName(f.Priority),
		Labels:    f.Labels,
		ParentKey: safeParentKey(f.Parent),
	}

	// Convert ADF description to markdown
	result.Description = ADFToMarkdown(f.Description)

	// Extract component names
	for _, comp := range f.Components {
		if comp != nil && comp.Name != "" {
			result.Components = append(result.Components, comp.Name)
		}
	}

	// Convert issue links
	for _, link := range f.IssueLinks {
		if link == nil || link.Type == nil {
			continue
		}
		if link.OutwardIssue != nil {
			result.IssueLinks = append(result.IssueLinks, IssueLink{
				Type:      link.Type.Name,
				Direction: LinkOutward,
				LinkedKey: link.OutwardIssue.Key,
			})
		}
		if link.InwardIssue != nil {
			result.IssueLinks = append(result.IssueLinks, IssueLink{
				Type:      link.Type.Name,
				Direction: LinkInward,
				LinkedKey: link.InwardIssue.Key,
			})
		}
	}

	// Parse timestamps
	if f.Created != nil {
		result.Created = time.Time(*f.Created)
	}
	if f.Updated != nil {
		result.Updated = time.Time(*f.Updated)
	}

	return result
}

func safeKey(issue *models.IssueScheme) string {
	if issue == nil {
		return ""
	}
	return issue.Key
}

func safeIssueTypeName(it *models.IssueTypeScheme) string {
	if it == nil {
		return ""
	}
	return it.Name
}

func safeStatusName(s *models.StatusScheme) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func safeStatusCategoryKey(s *models.StatusScheme) string {
	if s == nil || s.StatusCategory == nil {
		return ""
	}
	return s.StatusCategory.Key
}

func safePriorityName(p *models.PriorityScheme) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func safeParentKey(p *models.ParentScheme) string {
	if p == nil {
		return ""
	}
	return p.Key
}
