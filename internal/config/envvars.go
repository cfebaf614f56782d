package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"DECKHAND_HOST": "server.host",
	"DECKHAND_PORT": "server.port",
	// Database settings
	"DECKHAND_DB_DRIVER":   "database.driver",
	"DECKHAND_DB_PATH":     "database.path",
	"DECKHAND_DB_HOST":     "database.postgres.host",
	"DECKHAND_DB_PORT":     "database.postgres.port",
	"DECKHAND_DB_NAME":     "database.postgres.database",
	"DECKHAND_DB_USER":     "database.postgres.user",
	"DECKHAND_DB_PASSWORD": "database.postgres.password",
	"DECKHAND_DB_SSL_MODE": "database.postgres.ssl_mode",
	// Agent-run API settings
	"DECKHAND_AGENTS_BASE_URL":      "agents.base_url",
	"DECKHAND_AGENTS_API_KEY":       "agents.api_key",
	"DECKHAND_AGENTS_POLL_INTERVAL": "agents.poll_interval",
	"DECKHAND_AGENTS_RUN_TIMEOUT":   "agents.run_timeout",
	// Validator settings
	"DECKHAND_BUILD_VALIDATOR_URL": "validators.build_url",
	"DECKHAND_UI_VALIDATOR_URL":    "validators.ui_url",
	"DECKHAND_VALIDATOR_TIMEOUT":   "validators.timeout",
	// Hosting settings
	"DECKHAND_HOSTING_PROVIDER": "hosting.provider",
	"DECKHAND_GITHUB_TOKEN":     "hosting.github_token",
	"DECKHAND_GITLAB_TOKEN":     "hosting.gitlab_token",
	"DECKHAND_GITLAB_URL":       "hosting.gitlab_url",
	// Autonomous loop settings
	"DECKHAND_MAX_ITERATIONS": "autonomous.max_iterations",
	"DECKHAND_GRACE_PERIOD":   "autonomous.grace_period",
	// Pipeline settings
	"DECKHAND_WORKSPACE_ROOT":      "pipeline.workspace_root",
	"DECKHAND_COMMAND_TIMEOUT":     "pipeline.command_timeout",
	"DECKHAND_DEPLOY_TIMEOUT":      "pipeline.deploy_timeout",
	"DECKHAND_STALE_AFTER":         "pipeline.stale_after",
	"DECKHAND_SWEEP_INTERVAL":      "pipeline.sweep_interval",
	"DECKHAND_CLEANUP_ON_COMPLETE": "pipeline.cleanup_on_complete",
	// Jira settings
	"DECKHAND_JIRA_SITE_URL":         "jira.site_url",
	"DECKHAND_JIRA_EMAIL":            "jira.email",
	"DECKHAND_JIRA_API_TOKEN":        "jira.api_token",
	"DECKHAND_JIRA_ACCEPTANCE_FIELD": "jira.acceptance_field",
	// Logging
	"DECKHAND_LOG_LEVEL":  "log.level",
	"DECKHAND_LOG_FORMAT": "log.format",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns a list of paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv)
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = v
		}
	case "database.driver":
		cfg.Database.Driver = value
	case "database.path":
		cfg.Database.Path = value
	case "database.postgres.host":
		cfg.Database.Postgres.Host = value
	case "database.postgres.port":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Database.Postgres.Port = v
		}
	case "database.postgres.database":
		cfg.Database.Postgres.Database = value
	case "database.postgres.user":
		cfg.Database.Postgres.User = value
	case "database.postgres.password":
		cfg.Database.Postgres.Password = value
	case "database.postgres.ssl_mode":
		cfg.Database.Postgres.SSLMode = value
	case "agents.base_url":
		cfg.Agents.BaseURL = value
	case "agents.api_key":
		cfg.Agents.APIKey = value
	case "agents.poll_interval":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Agents.PollInterval = d
		}
	case "agents.run_timeout":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Agents.RunTimeout = d
		}
	case "validators.build_url":
		cfg.Validators.BuildURL = value
	case "validators.ui_url":
		cfg.Validators.UIURL = value
	case "validators.timeout":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Validators.Timeout = d
		}
	case "hosting.provider":
		cfg.Hosting.Provider = value
	case "hosting.github_token":
		cfg.Hosting.GitHubToken = value
	case "hosting.gitlab_token":
		cfg.Hosting.GitLabToken = value
	case "hosting.gitlab_url":
		cfg.Hosting.GitLabURL = value
	case "autonomous.max_iterations":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Autonomous.MaxIterations = v
		}
	case "autonomous.grace_period":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Autonomous.GracePeriod = d
		}
	case "pipeline.workspace_root":
		cfg.Pipeline.WorkspaceRoot = value
	case "pipeline.command_timeout":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Pipeline.CommandTimeout = d
		}
	case "pipeline.deploy_timeout":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Pipeline.DeployTimeout = d
		}
	case "pipeline.stale_after":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Pipeline.StaleAfter = d
		}
	case "pipeline.sweep_interval":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.Pipeline.SweepInterval = d
		}
	case "pipeline.cleanup_on_complete":
		cfg.Pipeline.CleanupOnComplete = parseBool(value)
	case "jira.site_url":
		cfg.Jira.SiteURL = value
	case "jira.email":
		cfg.Jira.Email = value
	case "jira.api_token":
		cfg.Jira.APIToken = value
	case "jira.acceptance_field":
		cfg.Jira.AcceptanceField = value
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return false
	}
	return true
}

// parseBool parses a boolean string (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
