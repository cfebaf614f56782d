package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/wizard"
)

// buildInitWizard assembles the interactive setup flow. Steps write
// into shared wizard state; configFromWizard turns the completed state
// into a config.
func buildInitWizard() *wizard.Wizard {
	return wizard.New(
		wizard.NewInputStep("server_port", "Daemon port").
			WithDescription("Port the deckhand daemon listens on").
			WithDefault("8420").
			WithValidate(validatePort),

		wizard.NewSelectStep("database", "Database", []wizard.SelectOption{
			{Value: "sqlite", Label: "SQLite", Description: "Local file, zero setup"},
			{Value: "postgres", Label: "PostgreSQL", Description: "Shared server for team use"},
		}).WithDescription("Where projects and pipeline history are stored"),

		wizard.NewInputStep("postgres_host", "PostgreSQL host").
			WithDefault("localhost").
			WithSkipFunc(notPostgres),
		wizard.NewInputStep("postgres_port", "PostgreSQL port").
			WithDefault("5432").
			WithValidate(validatePort).
			WithSkipFunc(notPostgres),
		wizard.NewInputStep("postgres_database", "PostgreSQL database").
			WithDefault("deckhand").
			WithSkipFunc(notPostgres),
		wizard.NewInputStep("postgres_user", "PostgreSQL user").
			WithDefault("deckhand").
			WithSkipFunc(notPostgres),
		wizard.NewInputStep("postgres_password", "PostgreSQL password").
			WithSecret().
			WithSkipFunc(notPostgres),

		wizard.NewSelectStep("hosting", "Repository host", []wizard.SelectOption{
			{Value: "github", Label: "GitHub", Description: "github.com repositories"},
			{Value: "gitlab", Label: "GitLab", Description: "gitlab.com or self-hosted"},
		}).WithDescription("Default host for new projects"),

		wizard.NewInputStep("github_token", "GitHub token").
			WithDescription("Needs repo scope. Leave empty to use GITHUB_TOKEN at runtime").
			WithSecret().
			WithSkipFunc(hostIsNot("github")),
		wizard.NewInputStep("gitlab_token", "GitLab token").
			WithDescription("Needs api scope. Leave empty to use GITLAB_TOKEN at runtime").
			WithSecret().
			WithSkipFunc(hostIsNot("gitlab")),
		wizard.NewInputStep("gitlab_url", "GitLab URL").
			WithDescription("Self-hosted instance URL. Leave empty for gitlab.com").
			WithPlaceholder("https://gitlab.example.com").
			WithSkipFunc(hostIsNot("gitlab")),

		wizard.NewInputStep("agents_url", "Agent service URL").
			WithDescription("Base URL of the agent-run service that executes coding tasks").
			WithPlaceholder("https://agents.example.com"),
		wizard.NewInputStep("agents_key", "Agent service API key").
			WithSecret(),

		wizard.NewMultiSelectStep("validators", "Validators", []wizard.SelectOption{
			{Value: "build", Label: "Build", Description: "Build and deployment validation"},
			{Value: "ui", Label: "UI", Description: "Browser UI checks"},
		}).
			WithDescription("External validators PRs must pass before merge").
			WithDefaults([]string{"build", "ui"}),
		wizard.NewInputStep("validators_build_url", "Build validator URL").
			WithPlaceholder("https://build-validator.example.com").
			WithSkipFunc(validatorUnselected("build")),
		wizard.NewInputStep("validators_ui_url", "UI validator URL").
			WithPlaceholder("https://ui-validator.example.com").
			WithSkipFunc(validatorUnselected("ui")),

		wizard.NewDisplayStep("summary", "Ready to write config", wizardSummary),
	)
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func notPostgres(state wizard.State) bool {
	return stateString(state, "database") != "postgres"
}

func hostIsNot(host string) func(wizard.State) bool {
	return func(state wizard.State) bool {
		return stateString(state, "hosting") != host
	}
}

func validatorUnselected(value string) func(wizard.State) bool {
	return func(state wizard.State) bool {
		for _, v := range stateStrings(state, "validators") {
			if v == value {
				return false
			}
		}
		return true
	}
}

func stateString(state wizard.State, key string) string {
	if v, ok := state[key].(string); ok {
		return v
	}
	return ""
}

func stateStrings(state wizard.State, key string) []string {
	if v, ok := state[key].([]string); ok {
		return v
	}
	return nil
}

// wizardSummary renders the collected values for the final step.
// Secrets are shown only as present or absent.
func wizardSummary(state wizard.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Port:       %s\n", stateString(state, "server_port"))
	fmt.Fprintf(&b, "Database:   %s\n", stateString(state, "database"))
	if stateString(state, "database") == "postgres" {
		fmt.Fprintf(&b, "  %s@%s:%s/%s\n",
			stateString(state, "postgres_user"),
			stateString(state, "postgres_host"),
			stateString(state, "postgres_port"),
			stateString(state, "postgres_database"))
	}
	fmt.Fprintf(&b, "Host:       %s\n", stateString(state, "hosting"))
	fmt.Fprintf(&b, "Agents:     %s\n", orUnset(stateString(state, "agents_url")))
	fmt.Fprintf(&b, "Validators: %s\n", strings.Join(stateStrings(state, "validators"), ", "))
	b.WriteString("\nConfig will be written to .deckhand/config.yaml")
	return b.String()
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// configFromWizard turns completed wizard state into a config, starting
// from the defaults so untouched settings keep their values.
func configFromWizard(state wizard.State) *config.Config {
	cfg := config.Default()

	if port, err := strconv.Atoi(stateString(state, "server_port")); err == nil {
		cfg.Server.Port = port
	}

	if stateString(state, "database") == "postgres" {
		cfg.Database.Driver = "postgres"
		cfg.Database.Postgres.Host = stateString(state, "postgres_host")
		if port, err := strconv.Atoi(stateString(state, "postgres_port")); err == nil {
			cfg.Database.Postgres.Port = port
		}
		cfg.Database.Postgres.Database = stateString(state, "postgres_database")
		cfg.Database.Postgres.User = stateString(state, "postgres_user")
		cfg.Database.Postgres.Password = stateString(state, "postgres_password")
	}

	if host := stateString(state, "hosting"); host != "" {
		cfg.Hosting.Provider = host
	}
	cfg.Hosting.GitHubToken = stateString(state, "github_token")
	cfg.Hosting.GitLabToken = stateString(state, "gitlab_token")
	cfg.Hosting.GitLabURL = stateString(state, "gitlab_url")

	cfg.Agents.BaseURL = stateString(state, "agents_url")
	cfg.Agents.APIKey = stateString(state, "agents_key")

	cfg.Validators.BuildURL = stateString(state, "validators_build_url")
	cfg.Validators.UIURL = stateString(state, "validators_ui_url")

	return cfg
}
