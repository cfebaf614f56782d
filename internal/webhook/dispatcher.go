package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/events"
	"github.com/deckhandhq/deckhand/internal/hosting"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
)

// PipelineService is the slice of the pipeline runner the dispatcher
// drives.
type PipelineService interface {
	AdmitOrReuse(ctx context.Context, projectID string, prNumber int, prURL string) (*pipeline.Pipeline, bool, error)
	Run(ctx context.Context, p *pipeline.Pipeline, proj *project.Project, pr *hosting.PR) error
	Cancel(ctx context.Context, id string) error
	Cleanup(ctx context.Context, id string) error
}

// ProviderFunc creates a hosting provider for a project. Injected so
// tests can stub the external merge call.
type ProviderFunc func(p *project.Project) (hosting.Provider, error)

// Dispatcher routes verified repository events to pipeline lifecycle
// transitions. Payload fields are read with gjson path queries against
// the raw body; no full payload structs.
type Dispatcher struct {
	pipelines PipelineService
	store     pipeline.Store
	provider  ProviderFunc
	events    *events.PublishHelper
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEvents sets the event publisher.
func WithEvents(ep *events.PublishHelper) Option {
	return func(d *Dispatcher) { d.events = ep }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher creates a dispatcher over the pipeline service and
// store.
func NewDispatcher(svc PipelineService, store pipeline.Store, provider ProviderFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pipelines: svc,
		store:     store,
		provider:  provider,
		events:    events.NewPublishHelper(nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Route applies one verified event to pipeline state. Unrecognized
// event types and actions are ignored, not errors.
func (d *Dispatcher) Route(ctx context.Context, proj *project.Project, eventType string, payload []byte) error {
	body := string(payload)

	d.events.Webhook(events.WebhookData{
		ProjectID: proj.ID,
		Event:     eventType,
		Action:    gjson.Get(body, "action").String(),
		PRNumber:  PRNumberFromPayload(body),
	})

	switch eventType {
	case "pull_request":
		return d.handlePullRequest(ctx, proj, body)
	case "pull_request_review":
		return d.handleReview(ctx, proj, body)
	case "check_run":
		return d.handleCheckRun(ctx, proj, body)
	case "ping":
		d.logger.Debug("webhook ping", "project_id", proj.ID)
		return nil
	default:
		d.logger.Debug("ignoring webhook event",
			"event", eventType,
			"project_id", proj.ID)
		return nil
	}
}

func (d *Dispatcher) handlePullRequest(ctx context.Context, proj *project.Project, body string) error {
	action := gjson.Get(body, "action").String()
	pr := prFromPayload(body)
	if pr.Number == 0 {
		return fmt.Errorf("pull_request payload has no number")
	}

	switch action {
	case "opened", "synchronize", "reopened":
		return d.startValidation(ctx, proj, pr)
	case "closed":
		if gjson.Get(body, "pull_request.merged").Bool() {
			return d.completeAfterMerge(ctx, proj, pr.Number)
		}
		return d.cancelForClosedPR(ctx, proj, pr.Number)
	default:
		d.logger.Debug("ignoring pull_request action",
			"action", action,
			"project_id", proj.ID,
			"pr", pr.Number)
		return nil
	}
}

// startValidation admits a pipeline for the PR and runs it. A pipeline
// already running for the key is reused, never doubled.
func (d *Dispatcher) startValidation(ctx context.Context, proj *project.Project, pr *hosting.PR) error {
	p, reused, err := d.pipelines.AdmitOrReuse(ctx, proj.ID, pr.Number, pr.HTMLURL)
	if err != nil {
		return err
	}
	if reused {
		d.logger.Info("validation already running for pull request",
			"pipeline_id", p.ID,
			"project_id", proj.ID,
			"pr", pr.Number)
		return nil
	}
	return d.pipelines.Run(ctx, p, proj, pr)
}

// completeAfterMerge marks the PR's pipeline completed and releases its
// workspace. The merge already happened upstream; a non-terminal
// pipeline here means validation was still in flight when a human
// merged anyway.
func (d *Dispatcher) completeAfterMerge(ctx context.Context, proj *project.Project, prNumber int) error {
	p, err := d.store.FindByProjectAndPR(ctx, proj.ID, prNumber)
	if err != nil {
		return err
	}
	if p == nil {
		d.logger.Debug("merged pull request has no pipeline",
			"project_id", proj.ID,
			"pr", prNumber)
		return nil
	}

	if !p.IsTerminal() {
		now := time.Now()
		p.Status = pipeline.StatusCompleted
		p.Progress = 100
		p.CurrentStep = "Merged"
		p.CompletedAt = &now
		p.UpdatedAt = now
		if err := d.store.Update(ctx, p); err != nil {
			return err
		}
		d.publishStatus(p)
	}

	d.logger.Info("pull request merged, releasing pipeline resources",
		"pipeline_id", p.ID,
		"pr", prNumber)
	return d.pipelines.Cleanup(ctx, p.ID)
}

func (d *Dispatcher) cancelForClosedPR(ctx context.Context, proj *project.Project, prNumber int) error {
	p, err := d.store.FindByProjectAndPR(ctx, proj.ID, prNumber)
	if err != nil {
		return err
	}
	if p == nil || p.IsTerminal() {
		return nil
	}
	d.logger.Info("cancelling pipeline for closed pull request",
		"pipeline_id", p.ID,
		"project_id", proj.ID,
		"pr", prNumber)
	return d.pipelines.Cancel(ctx, p.ID)
}

// handleReview merges an approved PR when the project opted into
// auto-merge and validation fully passed.
func (d *Dispatcher) handleReview(ctx context.Context, proj *project.Project, body string) error {
	action := gjson.Get(body, "action").String()
	state := gjson.Get(body, "review.state").String()
	if action != "submitted" || !strings.EqualFold(state, "approved") {
		return nil
	}
	if !proj.AutoMerge {
		d.logger.Debug("approval received but auto-merge is disabled",
			"project_id", proj.ID)
		return nil
	}

	prNumber := int(gjson.Get(body, "pull_request.number").Int())
	if prNumber == 0 {
		return fmt.Errorf("pull_request_review payload has no PR number")
	}

	p, err := d.store.FindByProjectAndPR(ctx, proj.ID, prNumber)
	if err != nil {
		return err
	}
	if p == nil || !p.Succeeded() {
		d.logger.Info("auto-merge blocked: validation has not fully passed",
			"project_id", proj.ID,
			"pr", prNumber)
		return nil
	}

	prov, err := d.provider(proj)
	if err != nil {
		return err
	}
	sha, err := prov.MergePR(ctx, prNumber, hosting.PRMergeOptions{Method: "squash"})
	if err != nil {
		return deckerrors.ErrExternalCall(prov.Name(), err)
	}

	d.logger.Info("auto-merged approved pull request",
		"project_id", proj.ID,
		"pr", prNumber,
		"sha", sha)
	return nil
}

// handleCheckRun maps an external CI conclusion onto the pipeline's
// progress and error fields. Status is never touched; CI state is
// informational next to deckhand's own validation.
func (d *Dispatcher) handleCheckRun(ctx context.Context, proj *project.Project, body string) error {
	if gjson.Get(body, "check_run.status").String() != "completed" {
		return nil
	}

	prNumber := int(gjson.Get(body, "check_run.pull_requests.0.number").Int())
	if prNumber == 0 {
		d.logger.Debug("check_run not attached to a pull request",
			"project_id", proj.ID)
		return nil
	}

	p, err := d.store.FindByProjectAndPR(ctx, proj.ID, prNumber)
	if err != nil {
		return err
	}
	if p == nil {
		d.logger.Debug("check_run for pull request without a pipeline",
			"project_id", proj.ID,
			"pr", prNumber)
		return nil
	}

	name := gjson.Get(body, "check_run.name").String()
	conclusion := gjson.Get(body, "check_run.conclusion").String()
	switch conclusion {
	case "success":
		p.Progress = 100
	case "failure":
		p.Progress = 0
		summary := gjson.Get(body, "check_run.output.summary").String()
		if summary == "" {
			summary = "check failed"
		}
		p.ErrorMessage = fmt.Sprintf("%s: %s", name, summary)
	default:
		p.Progress = 50
	}
	p.UpdatedAt = time.Now()

	if err := d.store.Update(ctx, p); err != nil {
		return err
	}
	d.publishStatus(p)

	d.logger.Info("check run applied to pipeline",
		"pipeline_id", p.ID,
		"check", name,
		"conclusion", conclusion,
		"progress", p.Progress)
	return nil
}

func (d *Dispatcher) publishStatus(p *pipeline.Pipeline) {
	d.events.PipelineStatus(events.PipelineUpdate{
		PipelineID:  p.ID,
		ProjectID:   p.ProjectID,
		PRNumber:    p.PRNumber,
		Status:      string(p.Status),
		Progress:    p.Progress,
		CurrentStep: p.CurrentStep,
		Error:       p.ErrorMessage,
	})
}

// prFromPayload builds a PR from the webhook payload so handlers never
// need an API round-trip for data the event already carries.
func prFromPayload(body string) *hosting.PR {
	pr := gjson.Get(body, "pull_request")
	return &hosting.PR{
		Number:     int(pr.Get("number").Int()),
		Title:      pr.Get("title").String(),
		Body:       pr.Get("body").String(),
		State:      pr.Get("state").String(),
		HeadBranch: pr.Get("head.ref").String(),
		BaseBranch: pr.Get("base.ref").String(),
		HeadSHA:    pr.Get("head.sha").String(),
		HTMLURL:    pr.Get("html_url").String(),
		Draft:      pr.Get("draft").Bool(),
	}
}

// PRNumberFromPayload extracts the pull request number from a delivery
// payload, or 0 when the event carries none.
func PRNumberFromPayload(body string) int {
	if n := gjson.Get(body, "pull_request.number").Int(); n != 0 {
		return int(n)
	}
	return int(gjson.Get(body, "check_run.pull_requests.0.number").Int())
}
