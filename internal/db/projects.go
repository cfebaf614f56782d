package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deckhandhq/deckhand/internal/project"
)

// SaveProject creates or updates a project row.
func (s *Store) SaveProject(ctx context.Context, p *project.Project) error {
	selectors, err := json.Marshal(p.UISelectors)
	if err != nil {
		return fmt.Errorf("marshal ui_selectors: %w", err)
	}

	autoMerge := 0
	if p.AutoMerge {
		autoMerge = 1
	}

	_, err = s.Exec(ctx, s.Rebind(`
		INSERT INTO projects (id, name, repo_url, host, owner, repo, default_branch, description, auto_merge, setup_command, deploy_command, health_path, ui_selectors, webhook_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			repo_url = excluded.repo_url,
			host = excluded.host,
			owner = excluded.owner,
			repo = excluded.repo,
			default_branch = excluded.default_branch,
			description = excluded.description,
			auto_merge = excluded.auto_merge,
			setup_command = excluded.setup_command,
			deploy_command = excluded.deploy_command,
			health_path = excluded.health_path,
			ui_selectors = excluded.ui_selectors,
			webhook_secret = excluded.webhook_secret,
			updated_at = excluded.updated_at
	`), p.ID, p.Name, p.RepoURL, string(p.Host), p.Owner, p.Repo, p.DefaultBranch, p.Description, autoMerge,
		p.SetupCommand, p.DeployCommand, p.HealthPath, string(selectors), p.WebhookSecret,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns (nil, nil) when no row exists.
func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.QueryRow(ctx, s.Rebind(projectSelect+" WHERE id = ?"), id)

	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// GetProjectByName retrieves a project by its unique name.
// Returns (nil, nil) when no row exists.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*project.Project, error) {
	row := s.QueryRow(ctx, s.Rebind(projectSelect+" WHERE name = ?"), name)

	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get project by name %s: %w", name, err)
	}
	return p, nil
}

// ListProjects returns all registered projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*project.Project, error) {
	rows, err := s.Query(ctx, projectSelect+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// DeleteProjectCascade removes a project and all its pipelines in one
// transaction.
func (s *Store) DeleteProjectCascade(ctx context.Context, id string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := tx.Exec(tx.Rebind("DELETE FROM pipelines WHERE project_id = ?"), id); err != nil {
			return fmt.Errorf("delete project pipelines: %w", err)
		}
		if _, err := tx.Exec(tx.Rebind("DELETE FROM projects WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
}

const projectSelect = `
	SELECT id, name, repo_url, host, owner, repo, default_branch, description, auto_merge, setup_command, deploy_command, health_path, ui_selectors, webhook_secret, created_at, updated_at
	FROM projects`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProject reads one project row.
func scanProject(row rowScanner) (*project.Project, error) {
	var p project.Project
	var host string
	var autoMerge int
	var defaultBranch, description, setupCommand, deployCommand, healthPath, selectors, webhookSecret sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &host, &p.Owner, &p.Repo, &defaultBranch, &description,
		&autoMerge, &setupCommand, &deployCommand, &healthPath, &selectors, &webhookSecret,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.Host = project.Host(host)
	p.AutoMerge = autoMerge == 1

	if defaultBranch.Valid {
		p.DefaultBranch = defaultBranch.String
	}
	if description.Valid {
		p.Description = description.String
	}
	if setupCommand.Valid {
		p.SetupCommand = setupCommand.String
	}
	if deployCommand.Valid {
		p.DeployCommand = deployCommand.String
	}
	if healthPath.Valid {
		p.HealthPath = healthPath.String
	}
	if selectors.Valid && selectors.String != "" && selectors.String != "null" {
		if err := json.Unmarshal([]byte(selectors.String), &p.UISelectors); err != nil {
			return nil, fmt.Errorf("unmarshal ui_selectors: %w", err)
		}
	}
	if webhookSecret.Valid {
		p.WebhookSecret = webhookSecret.String
	}

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = ts
	}

	return &p, nil
}
