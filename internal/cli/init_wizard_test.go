package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/wizard"
)

func TestValidatePort(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"8420", false},
		{"1", false},
		{"65535", false},
		{" 443 ", false},
		{"0", true},
		{"65536", true},
		{"http", true},
		{"", true},
	}
	for _, tt := range tests {
		err := validatePort(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("validatePort(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestInitWizard_SkipFuncs(t *testing.T) {
	sqliteState := wizard.State{"database": "sqlite"}
	postgresState := wizard.State{"database": "postgres"}

	if !notPostgres(sqliteState) {
		t.Error("postgres steps should be skipped for sqlite")
	}
	if notPostgres(postgresState) {
		t.Error("postgres steps should run for postgres")
	}

	githubState := wizard.State{"hosting": "github"}
	if hostIsNot("github")(githubState) {
		t.Error("github token step should run when github is chosen")
	}
	if !hostIsNot("gitlab")(githubState) {
		t.Error("gitlab steps should be skipped when github is chosen")
	}

	bothValidators := wizard.State{"validators": []string{"build", "ui"}}
	buildOnly := wizard.State{"validators": []string{"build"}}
	if validatorUnselected("ui")(bothValidators) {
		t.Error("ui URL step should run when ui validator is selected")
	}
	if !validatorUnselected("ui")(buildOnly) {
		t.Error("ui URL step should be skipped when only build is selected")
	}
}

func TestConfigFromWizard(t *testing.T) {
	tests := []struct {
		name  string
		state wizard.State
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "sqlite with github",
			state: wizard.State{
				"server_port":          "9000",
				"database":             "sqlite",
				"hosting":              "github",
				"github_token":         "ghp_secret",
				"agents_url":           "https://agents.example.com",
				"agents_key":           "ak-1",
				"validators":           []string{"build"},
				"validators_build_url": "https://build.example.com",
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "sqlite", cfg.Database.Driver)
				assert.Equal(t, "github", cfg.Hosting.Provider)
				assert.Equal(t, "ghp_secret", cfg.Hosting.GitHubToken)
				assert.Equal(t, "https://agents.example.com", cfg.Agents.BaseURL)
				assert.Equal(t, "ak-1", cfg.Agents.APIKey)
				assert.Equal(t, "https://build.example.com", cfg.Validators.BuildURL)
				assert.Empty(t, cfg.Validators.UIURL)
			},
		},
		{
			name: "postgres with gitlab",
			state: wizard.State{
				"server_port":       "8420",
				"database":          "postgres",
				"postgres_host":     "db.internal",
				"postgres_port":     "5433",
				"postgres_database": "deck",
				"postgres_user":     "deck",
				"postgres_password": "hunter2",
				"hosting":           "gitlab",
				"gitlab_token":      "glpat-x",
				"gitlab_url":        "https://gitlab.acme.dev",
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "postgres", cfg.Database.Driver)
				assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
				assert.Equal(t, 5433, cfg.Database.Postgres.Port)
				assert.Equal(t, "deck", cfg.Database.Postgres.Database)
				assert.Equal(t, "hunter2", cfg.Database.Postgres.Password)
				assert.Equal(t, "gitlab", cfg.Hosting.Provider)
				assert.Equal(t, "glpat-x", cfg.Hosting.GitLabToken)
				assert.Equal(t, "https://gitlab.acme.dev", cfg.Hosting.GitLabURL)
			},
		},
		{
			name:  "empty state keeps defaults",
			state: wizard.State{},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 8420, cfg.Server.Port)
				assert.Equal(t, "sqlite", cfg.Database.Driver)
				assert.Equal(t, 5, cfg.Autonomous.MaxIterations)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := configFromWizard(tt.state)
			require.NotNil(t, cfg)
			require.NoError(t, cfg.Validate())
			tt.check(t, cfg)
		})
	}
}

func TestWizardSummary_MasksSecrets(t *testing.T) {
	state := wizard.State{
		"server_port":       "8420",
		"database":          "postgres",
		"postgres_user":     "deck",
		"postgres_host":     "db",
		"postgres_port":     "5432",
		"postgres_database": "deckhand",
		"postgres_password": "hunter2",
		"hosting":           "github",
		"github_token":      "ghp_secret",
		"agents_url":        "https://agents.example.com",
		"agents_key":        "ak-1",
		"validators":        []string{"build", "ui"},
	}

	out := wizardSummary(state)
	if strings.Contains(out, "hunter2") || strings.Contains(out, "ghp_secret") || strings.Contains(out, "ak-1") {
		t.Errorf("summary leaks a secret:\n%s", out)
	}
	for _, want := range []string{"8420", "postgres", "github", "agents.example.com", "build, ui"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
