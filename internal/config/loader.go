package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. System config (/etc/deckhand/config.yaml) - optional
//  3. User config (~/.deckhand/config.yaml) - optional
//  4. Project config (.deckhand/config.yaml)
//  5. Environment variables (DECKHAND_*)
func LoadWithSources() (*TrackedConfig, error) {
	return LoadWithSourcesFrom(".")
}

// LoadWithSourcesFrom loads configuration with the project config resolved
// relative to dir instead of the working directory.
func LoadWithSourcesFrom(dir string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	// Mark all defaults with SourceDefault
	markDefaults(tc)

	// 2. System config (/etc/deckhand/config.yaml)
	systemPath := "/etc/deckhand/config.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		if err := mergeFromFile(tc, systemPath, SourceSystem); err != nil {
			slog.Warn("failed to load system config", "path", systemPath, "error", err)
		}
	}

	// 3. User config (~/.deckhand/config.yaml)
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".deckhand", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	// 4. Project config (.deckhand/config.yaml)
	projectPath := filepath.Join(dir, DeckhandDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	// 5. Environment variables
	ApplyEnvVars(tc)

	return tc, nil
}

// mergeFromFile merges configuration from a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse YAML into a map to track which fields are set
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	// Parse into Config
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	// Merge set values and track sources
	mergeConfig(tc, &fileCfg, raw, source)

	return nil
}

// mergeConfig merges fileCfg into tc.Config, tracking sources.
func mergeConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource) {
	cfg := tc.Config

	if _, ok := raw["version"]; ok {
		cfg.Version = fileCfg.Version
		tc.SetSource("version", source)
	}

	if rawServer, ok := raw["server"].(map[string]interface{}); ok {
		if _, ok := rawServer["host"]; ok {
			cfg.Server.Host = fileCfg.Server.Host
			tc.SetSource("server.host", source)
		}
		if _, ok := rawServer["port"]; ok {
			cfg.Server.Port = fileCfg.Server.Port
			tc.SetSource("server.port", source)
		}
	}

	if rawDB, ok := raw["database"].(map[string]interface{}); ok {
		mergeDatabaseConfig(cfg, fileCfg, rawDB, tc, source)
	}
	if rawAgents, ok := raw["agents"].(map[string]interface{}); ok {
		mergeAgentsConfig(cfg, fileCfg, rawAgents, tc, source)
	}
	if rawValidators, ok := raw["validators"].(map[string]interface{}); ok {
		mergeValidatorsConfig(cfg, fileCfg, rawValidators, tc, source)
	}
	if rawHosting, ok := raw["hosting"].(map[string]interface{}); ok {
		mergeHostingConfig(cfg, fileCfg, rawHosting, tc, source)
	}
	if rawAutonomous, ok := raw["autonomous"].(map[string]interface{}); ok {
		mergeAutonomousConfig(cfg, fileCfg, rawAutonomous, tc, source)
	}
	if rawPipeline, ok := raw["pipeline"].(map[string]interface{}); ok {
		mergePipelineConfig(cfg, fileCfg, rawPipeline, tc, source)
	}
	if rawJira, ok := raw["jira"].(map[string]interface{}); ok {
		mergeJiraConfig(cfg, fileCfg, rawJira, tc, source)
	}
	if rawLog, ok := raw["log"].(map[string]interface{}); ok {
		if _, ok := rawLog["level"]; ok {
			cfg.Log.Level = fileCfg.Log.Level
			tc.SetSource("log.level", source)
		}
		if _, ok := rawLog["format"]; ok {
			cfg.Log.Format = fileCfg.Log.Format
			tc.SetSource("log.format", source)
		}
	}
}

func mergeDatabaseConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["driver"]; ok {
		cfg.Database.Driver = fileCfg.Database.Driver
		tc.SetSource("database.driver", source)
	}
	if _, ok := raw["path"]; ok {
		cfg.Database.Path = fileCfg.Database.Path
		tc.SetSource("database.path", source)
	}
	if rawPG, ok := raw["postgres"].(map[string]interface{}); ok {
		if _, ok := rawPG["host"]; ok {
			cfg.Database.Postgres.Host = fileCfg.Database.Postgres.Host
			tc.SetSource("database.postgres.host", source)
		}
		if _, ok := rawPG["port"]; ok {
			cfg.Database.Postgres.Port = fileCfg.Database.Postgres.Port
			tc.SetSource("database.postgres.port", source)
		}
		if _, ok := rawPG["database"]; ok {
			cfg.Database.Postgres.Database = fileCfg.Database.Postgres.Database
			tc.SetSource("database.postgres.database", source)
		}
		if _, ok := rawPG["user"]; ok {
			cfg.Database.Postgres.User = fileCfg.Database.Postgres.User
			tc.SetSource("database.postgres.user", source)
		}
		if _, ok := rawPG["password"]; ok {
			cfg.Database.Postgres.Password = fileCfg.Database.Postgres.Password
			tc.SetSource("database.postgres.password", source)
		}
		if _, ok := rawPG["ssl_mode"]; ok {
			cfg.Database.Postgres.SSLMode = fileCfg.Database.Postgres.SSLMode
			tc.SetSource("database.postgres.ssl_mode", source)
		}
	}
}

func mergeAgentsConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["base_url"]; ok {
		cfg.Agents.BaseURL = fileCfg.Agents.BaseURL
		tc.SetSource("agents.base_url", source)
	}
	if _, ok := raw["api_key"]; ok {
		cfg.Agents.APIKey = fileCfg.Agents.APIKey
		tc.SetSource("agents.api_key", source)
	}
	if _, ok := raw["poll_interval"]; ok {
		cfg.Agents.PollInterval = fileCfg.Agents.PollInterval
		tc.SetSource("agents.poll_interval", source)
	}
	if _, ok := raw["run_timeout"]; ok {
		cfg.Agents.RunTimeout = fileCfg.Agents.RunTimeout
		tc.SetSource("agents.run_timeout", source)
	}
}

func mergeValidatorsConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["build_url"]; ok {
		cfg.Validators.BuildURL = fileCfg.Validators.BuildURL
		tc.SetSource("validators.build_url", source)
	}
	if _, ok := raw["ui_url"]; ok {
		cfg.Validators.UIURL = fileCfg.Validators.UIURL
		tc.SetSource("validators.ui_url", source)
	}
	if _, ok := raw["timeout"]; ok {
		cfg.Validators.Timeout = fileCfg.Validators.Timeout
		tc.SetSource("validators.timeout", source)
	}
}

func mergeHostingConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["provider"]; ok {
		cfg.Hosting.Provider = fileCfg.Hosting.Provider
		tc.SetSource("hosting.provider", source)
	}
	if _, ok := raw["github_token"]; ok {
		cfg.Hosting.GitHubToken = fileCfg.Hosting.GitHubToken
		tc.SetSource("hosting.github_token", source)
	}
	if _, ok := raw["gitlab_token"]; ok {
		cfg.Hosting.GitLabToken = fileCfg.Hosting.GitLabToken
		tc.SetSource("hosting.gitlab_token", source)
	}
	if _, ok := raw["gitlab_url"]; ok {
		cfg.Hosting.GitLabURL = fileCfg.Hosting.GitLabURL
		tc.SetSource("hosting.gitlab_url", source)
	}
}

func mergeAutonomousConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["max_iterations"]; ok {
		cfg.Autonomous.MaxIterations = fileCfg.Autonomous.MaxIterations
		tc.SetSource("autonomous.max_iterations", source)
	}
	if _, ok := raw["grace_period"]; ok {
		cfg.Autonomous.GracePeriod = fileCfg.Autonomous.GracePeriod
		tc.SetSource("autonomous.grace_period", source)
	}
}

func mergePipelineConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["workspace_root"]; ok {
		cfg.Pipeline.WorkspaceRoot = fileCfg.Pipeline.WorkspaceRoot
		tc.SetSource("pipeline.workspace_root", source)
	}
	if _, ok := raw["command_timeout"]; ok {
		cfg.Pipeline.CommandTimeout = fileCfg.Pipeline.CommandTimeout
		tc.SetSource("pipeline.command_timeout", source)
	}
	if _, ok := raw["deploy_timeout"]; ok {
		cfg.Pipeline.DeployTimeout = fileCfg.Pipeline.DeployTimeout
		tc.SetSource("pipeline.deploy_timeout", source)
	}
	if _, ok := raw["stale_after"]; ok {
		cfg.Pipeline.StaleAfter = fileCfg.Pipeline.StaleAfter
		tc.SetSource("pipeline.stale_after", source)
	}
	if _, ok := raw["sweep_interval"]; ok {
		cfg.Pipeline.SweepInterval = fileCfg.Pipeline.SweepInterval
		tc.SetSource("pipeline.sweep_interval", source)
	}
	if _, ok := raw["cleanup_on_complete"]; ok {
		cfg.Pipeline.CleanupOnComplete = fileCfg.Pipeline.CleanupOnComplete
		tc.SetSource("pipeline.cleanup_on_complete", source)
	}
}

func mergeJiraConfig(cfg *Config, fileCfg *Config, raw map[string]interface{}, tc *TrackedConfig, source ConfigSource) {
	if _, ok := raw["site_url"]; ok {
		cfg.Jira.SiteURL = fileCfg.Jira.SiteURL
		tc.SetSource("jira.site_url", source)
	}
	if _, ok := raw["email"]; ok {
		cfg.Jira.Email = fileCfg.Jira.Email
		tc.SetSource("jira.email", source)
	}
	if _, ok := raw["api_token"]; ok {
		cfg.Jira.APIToken = fileCfg.Jira.APIToken
		tc.SetSource("jira.api_token", source)
	}
	if _, ok := raw["acceptance_field"]; ok {
		cfg.Jira.AcceptanceField = fileCfg.Jira.AcceptanceField
		tc.SetSource("jira.acceptance_field", source)
	}
}

// markDefaults marks all config paths as having SourceDefault.
func markDefaults(tc *TrackedConfig) {
	for _, path := range configPaths {
		tc.SetSource(path, SourceDefault)
	}
}
