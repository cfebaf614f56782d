package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deckhandhq/deckhand/internal/pipeline"
)

// PipelineStore implements pipeline.Store on the relational database.
type PipelineStore struct {
	db *Store
}

// Pipelines returns the relational pipeline store.
func (s *Store) Pipelines() *PipelineStore {
	return &PipelineStore{db: s}
}

var _ pipeline.Store = (*PipelineStore)(nil)

// Create inserts a new pipeline row.
func (ps *PipelineStore) Create(ctx context.Context, p *pipeline.Pipeline) error {
	results, err := marshalResults(p.Results)
	if err != nil {
		return err
	}

	_, err = ps.db.Exec(ctx, ps.db.Rebind(`
		INSERT INTO pipelines (id, project_id, pr_number, pr_url, status, progress, current_step, deployment_url, results, error_message, escalation_run_id, retry_count, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.ProjectID, p.PRNumber, p.PRURL, string(p.Status), p.Progress, p.CurrentStep, p.DeploymentURL,
		results, p.ErrorMessage, p.EscalationRunID, p.RetryCount,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339), formatNullableTime(p.CompletedAt))
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

// FindByID retrieves a pipeline by ID. Returns (nil, nil) when no row exists.
func (ps *PipelineStore) FindByID(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	row := ps.db.QueryRow(ctx, ps.db.Rebind(pipelineSelect+" WHERE id = ?"), id)

	p, err := scanPipeline(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find pipeline %s: %w", id, err)
	}
	return p, nil
}

// FindByProjectAndPR retrieves the most recent pipeline for the
// (project, PR) key. Returns (nil, nil) when none exists.
func (ps *PipelineStore) FindByProjectAndPR(ctx context.Context, projectID string, prNumber int) (*pipeline.Pipeline, error) {
	row := ps.db.QueryRow(ctx, ps.db.Rebind(
		pipelineSelect+" WHERE project_id = ? AND pr_number = ? ORDER BY created_at DESC LIMIT 1"),
		projectID, prNumber)

	p, err := scanPipeline(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find pipeline for project %s pr %d: %w", projectID, prNumber, err)
	}
	return p, nil
}

// Update replaces the mutable fields of a pipeline row.
func (ps *PipelineStore) Update(ctx context.Context, p *pipeline.Pipeline) error {
	results, err := marshalResults(p.Results)
	if err != nil {
		return err
	}

	_, err = ps.db.Exec(ctx, ps.db.Rebind(`
		UPDATE pipelines SET
			pr_url = ?,
			status = ?,
			progress = ?,
			current_step = ?,
			deployment_url = ?,
			results = ?,
			error_message = ?,
			escalation_run_id = ?,
			retry_count = ?,
			updated_at = ?,
			completed_at = ?
		WHERE id = ?
	`), p.PRURL, string(p.Status), p.Progress, p.CurrentStep, p.DeploymentURL, results,
		p.ErrorMessage, p.EscalationRunID, p.RetryCount,
		time.Now().Format(time.RFC3339), formatNullableTime(p.CompletedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	return nil
}

// Delete removes a pipeline row.
func (ps *PipelineStore) Delete(ctx context.Context, id string) error {
	_, err := ps.db.Exec(ctx, ps.db.Rebind("DELETE FROM pipelines WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	return nil
}

// ListActive returns pipelines in pending or running state, newest first.
func (ps *PipelineStore) ListActive(ctx context.Context) ([]*pipeline.Pipeline, error) {
	rows, err := ps.db.Query(ctx, ps.db.Rebind(
		pipelineSelect+" WHERE status IN (?, ?) ORDER BY created_at DESC"),
		string(pipeline.StatusPending), string(pipeline.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("list active pipelines: %w", err)
	}
	defer rows.Close()

	return collectPipelines(rows)
}

// ListByProject returns all pipelines for a project, newest first.
func (ps *PipelineStore) ListByProject(ctx context.Context, projectID string) ([]*pipeline.Pipeline, error) {
	rows, err := ps.db.Query(ctx, ps.db.Rebind(
		pipelineSelect+" WHERE project_id = ? ORDER BY created_at DESC"), projectID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines for project %s: %w", projectID, err)
	}
	defer rows.Close()

	return collectPipelines(rows)
}

const pipelineSelect = `
	SELECT id, project_id, pr_number, pr_url, status, progress, current_step, deployment_url, results, error_message, escalation_run_id, retry_count, created_at, updated_at, completed_at
	FROM pipelines`

func collectPipelines(rows *sql.Rows) ([]*pipeline.Pipeline, error) {
	var pipelines []*pipeline.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	return pipelines, nil
}

// scanPipeline reads one pipeline row.
func scanPipeline(row rowScanner) (*pipeline.Pipeline, error) {
	var p pipeline.Pipeline
	var status string
	var prURL, currentStep, deploymentURL, results, errorMessage, escalationRunID sql.NullString
	var createdAt, updatedAt string
	var completedAt sql.NullString

	if err := row.Scan(&p.ID, &p.ProjectID, &p.PRNumber, &prURL, &status, &p.Progress, &currentStep,
		&deploymentURL, &results, &errorMessage, &escalationRunID, &p.RetryCount,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}

	p.Status = pipeline.Status(status)

	if prURL.Valid {
		p.PRURL = prURL.String
	}
	if currentStep.Valid {
		p.CurrentStep = currentStep.String
	}
	if deploymentURL.Valid {
		p.DeploymentURL = deploymentURL.String
	}
	if results.Valid && results.String != "" && results.String != "null" {
		if err := json.Unmarshal([]byte(results.String), &p.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	if errorMessage.Valid {
		p.ErrorMessage = errorMessage.String
	}
	if escalationRunID.Valid {
		p.EscalationRunID = escalationRunID.String
	}

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = ts
	}
	if completedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			p.CompletedAt = &ts
		}
	}

	return &p, nil
}

func marshalResults(results []pipeline.StepResult) (string, error) {
	if len(results) == 0 {
		return "", nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
