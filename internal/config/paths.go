package config

import (
	"fmt"
	"strconv"
	"time"
)

// configPaths lists every addressable config path in dot notation, in
// file order. markDefaults and the CLI config command both iterate it.
var configPaths = []string{
	"version",
	"server.host", "server.port",
	"database.driver", "database.path",
	"database.postgres.host", "database.postgres.port", "database.postgres.database",
	"database.postgres.user", "database.postgres.password", "database.postgres.ssl_mode",
	"agents.base_url", "agents.api_key", "agents.poll_interval", "agents.run_timeout",
	"validators.build_url", "validators.ui_url", "validators.timeout",
	"hosting.provider", "hosting.github_token", "hosting.gitlab_token", "hosting.gitlab_url",
	"autonomous.max_iterations", "autonomous.grace_period",
	"pipeline.workspace_root", "pipeline.command_timeout", "pipeline.deploy_timeout",
	"pipeline.stale_after", "pipeline.sweep_interval", "pipeline.cleanup_on_complete",
	"jira.site_url", "jira.email", "jira.api_token", "jira.acceptance_field",
	"log.level", "log.format",
}

// AllPaths returns every addressable config path.
func AllPaths() []string {
	paths := make([]string, len(configPaths))
	copy(paths, configPaths)
	return paths
}

// Value returns the string form of the field at path.
func (c *Config) Value(path string) (string, error) {
	switch path {
	case "version":
		return strconv.Itoa(c.Version), nil
	case "server.host":
		return c.Server.Host, nil
	case "server.port":
		return strconv.Itoa(c.Server.Port), nil
	case "database.driver":
		return c.Database.Driver, nil
	case "database.path":
		return c.Database.Path, nil
	case "database.postgres.host":
		return c.Database.Postgres.Host, nil
	case "database.postgres.port":
		return strconv.Itoa(c.Database.Postgres.Port), nil
	case "database.postgres.database":
		return c.Database.Postgres.Database, nil
	case "database.postgres.user":
		return c.Database.Postgres.User, nil
	case "database.postgres.password":
		return c.Database.Postgres.Password, nil
	case "database.postgres.ssl_mode":
		return c.Database.Postgres.SSLMode, nil
	case "agents.base_url":
		return c.Agents.BaseURL, nil
	case "agents.api_key":
		return c.Agents.APIKey, nil
	case "agents.poll_interval":
		return c.Agents.PollInterval.String(), nil
	case "agents.run_timeout":
		return c.Agents.RunTimeout.String(), nil
	case "validators.build_url":
		return c.Validators.BuildURL, nil
	case "validators.ui_url":
		return c.Validators.UIURL, nil
	case "validators.timeout":
		return c.Validators.Timeout.String(), nil
	case "hosting.provider":
		return c.Hosting.Provider, nil
	case "hosting.github_token":
		return c.Hosting.GitHubToken, nil
	case "hosting.gitlab_token":
		return c.Hosting.GitLabToken, nil
	case "hosting.gitlab_url":
		return c.Hosting.GitLabURL, nil
	case "autonomous.max_iterations":
		return strconv.Itoa(c.Autonomous.MaxIterations), nil
	case "autonomous.grace_period":
		return c.Autonomous.GracePeriod.String(), nil
	case "pipeline.workspace_root":
		return c.Pipeline.WorkspaceRoot, nil
	case "pipeline.command_timeout":
		return c.Pipeline.CommandTimeout.String(), nil
	case "pipeline.deploy_timeout":
		return c.Pipeline.DeployTimeout.String(), nil
	case "pipeline.stale_after":
		return c.Pipeline.StaleAfter.String(), nil
	case "pipeline.sweep_interval":
		return c.Pipeline.SweepInterval.String(), nil
	case "pipeline.cleanup_on_complete":
		return strconv.FormatBool(c.Pipeline.CleanupOnComplete), nil
	case "jira.site_url":
		return c.Jira.SiteURL, nil
	case "jira.email":
		return c.Jira.Email, nil
	case "jira.api_token":
		return c.Jira.APIToken, nil
	case "jira.acceptance_field":
		return c.Jira.AcceptanceField, nil
	case "log.level":
		return c.Log.Level, nil
	case "log.format":
		return c.Log.Format, nil
	}
	return "", fmt.Errorf("unknown config key %q (see 'deckhand config show')", path)
}

// SetValue parses value and stores it at path. Unlike the env var
// overrides, a malformed value is an error rather than a silent skip.
func (c *Config) SetValue(path, value string) error {
	switch path {
	case "version":
		return setInt(&c.Version, path, value)
	case "server.host":
		c.Server.Host = value
	case "server.port":
		return setInt(&c.Server.Port, path, value)
	case "database.driver":
		c.Database.Driver = value
	case "database.path":
		c.Database.Path = value
	case "database.postgres.host":
		c.Database.Postgres.Host = value
	case "database.postgres.port":
		return setInt(&c.Database.Postgres.Port, path, value)
	case "database.postgres.database":
		c.Database.Postgres.Database = value
	case "database.postgres.user":
		c.Database.Postgres.User = value
	case "database.postgres.password":
		c.Database.Postgres.Password = value
	case "database.postgres.ssl_mode":
		c.Database.Postgres.SSLMode = value
	case "agents.base_url":
		c.Agents.BaseURL = value
	case "agents.api_key":
		c.Agents.APIKey = value
	case "agents.poll_interval":
		return setDuration(&c.Agents.PollInterval, path, value)
	case "agents.run_timeout":
		return setDuration(&c.Agents.RunTimeout, path, value)
	case "validators.build_url":
		c.Validators.BuildURL = value
	case "validators.ui_url":
		c.Validators.UIURL = value
	case "validators.timeout":
		return setDuration(&c.Validators.Timeout, path, value)
	case "hosting.provider":
		c.Hosting.Provider = value
	case "hosting.github_token":
		c.Hosting.GitHubToken = value
	case "hosting.gitlab_token":
		c.Hosting.GitLabToken = value
	case "hosting.gitlab_url":
		c.Hosting.GitLabURL = value
	case "autonomous.max_iterations":
		return setInt(&c.Autonomous.MaxIterations, path, value)
	case "autonomous.grace_period":
		return setDuration(&c.Autonomous.GracePeriod, path, value)
	case "pipeline.workspace_root":
		c.Pipeline.WorkspaceRoot = value
	case "pipeline.command_timeout":
		return setDuration(&c.Pipeline.CommandTimeout, path, value)
	case "pipeline.deploy_timeout":
		return setDuration(&c.Pipeline.DeployTimeout, path, value)
	case "pipeline.stale_after":
		return setDuration(&c.Pipeline.StaleAfter, path, value)
	case "pipeline.sweep_interval":
		return setDuration(&c.Pipeline.SweepInterval, path, value)
	case "pipeline.cleanup_on_complete":
		return setBool(&c.Pipeline.CleanupOnComplete, path, value)
	case "jira.site_url":
		c.Jira.SiteURL = value
	case "jira.email":
		c.Jira.Email = value
	case "jira.api_token":
		c.Jira.APIToken = value
	case "jira.acceptance_field":
		c.Jira.AcceptanceField = value
	case "log.level":
		c.Log.Level = value
	case "log.format":
		c.Log.Format = value
	default:
		return fmt.Errorf("unknown config key %q (see 'deckhand config show')", path)
	}
	return nil
}

func setInt(dst *int, path, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", path, value)
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, path, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration (use forms like 30s, 5m)", path, value)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, path, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", path, value)
	}
	*dst = v
	return nil
}
