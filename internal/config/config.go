// Package config provides configuration management for deckhand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// DeckhandDir is the deckhand configuration directory
	DeckhandDir = ".deckhand"
)

// ServerConfig defines the HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig defines postgres connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a pgx-compatible connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// DatabaseConfig defines the persistence settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the sqlite database file (ignored for postgres).
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// AgentsConfig defines the agent-run API client settings.
type AgentsConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
}

// ValidatorsConfig defines the build and UI validator endpoints.
type ValidatorsConfig struct {
	BuildURL string        `yaml:"build_url"`
	UIURL    string        `yaml:"ui_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HostingConfig defines repository hosting credentials.
type HostingConfig struct {
	// Provider is the default host for new projects: "github" or "gitlab".
	Provider    string `yaml:"provider"`
	GitHubToken string `yaml:"github_token,omitempty"`
	GitLabToken string `yaml:"gitlab_token,omitempty"`
	// GitLabURL overrides the GitLab base URL for self-hosted instances.
	GitLabURL string `yaml:"gitlab_url,omitempty"`
}

// AutonomousConfig defines the iterative convergence loop settings.
type AutonomousConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	// GracePeriod is how long a finished workflow stays queryable before
	// removal from the active registry.
	GracePeriod time.Duration `yaml:"grace_period"`
}

// PipelineConfig defines validation pipeline execution settings.
type PipelineConfig struct {
	// WorkspaceRoot is where per-run clone directories are created.
	WorkspaceRoot string `yaml:"workspace_root"`
	// CommandTimeout bounds individual shell commands (setup, tests).
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// DeployTimeout bounds the deployment step.
	DeployTimeout time.Duration `yaml:"deploy_timeout"`
	// StaleAfter marks running pipelines as failed past this age.
	StaleAfter time.Duration `yaml:"stale_after"`
	// SweepInterval is how often the stale-run sweeper wakes up.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// CleanupOnComplete removes the run workspace after a successful run.
	CleanupOnComplete bool `yaml:"cleanup_on_complete"`
}

// JiraConfig defines the optional Jira requirements importer.
type JiraConfig struct {
	SiteURL  string `yaml:"site_url,omitempty"`
	Email    string `yaml:"email,omitempty"`
	APIToken string `yaml:"api_token,omitempty"`
	// AcceptanceField is the custom field ID holding acceptance criteria
	// (e.g. "customfield_10042"). Field IDs vary per Jira site.
	AcceptanceField string `yaml:"acceptance_field,omitempty"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Config represents the deckhand configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Agents     AgentsConfig     `yaml:"agents"`
	Validators ValidatorsConfig `yaml:"validators"`
	Hosting    HostingConfig    `yaml:"hosting"`
	Autonomous AutonomousConfig `yaml:"autonomous"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Jira       JiraConfig       `yaml:"jira"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DeckhandDir, "deckhand.db"),
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Agents: AgentsConfig{
			PollInterval: 5 * time.Second,
			RunTimeout:   10 * time.Minute,
		},
		Validators: ValidatorsConfig{
			Timeout: 2 * time.Minute,
		},
		Hosting: HostingConfig{
			Provider: "github",
		},
		Autonomous: AutonomousConfig{
			MaxIterations: 5,
			GracePeriod:   5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			WorkspaceRoot:     filepath.Join(DeckhandDir, "workspaces"),
			CommandTimeout:    5 * time.Minute,
			DeployTimeout:     10 * time.Minute,
			StaleAfter:        30 * time.Minute,
			SweepInterval:     5 * time.Minute,
			CleanupOnComplete: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q (must be sqlite or postgres)", c.Database.Driver)
	}
	switch c.Hosting.Provider {
	case "github", "gitlab":
	default:
		return fmt.Errorf("invalid hosting.provider %q (must be github or gitlab)", c.Hosting.Provider)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Autonomous.MaxIterations < 1 {
		return fmt.Errorf("autonomous.max_iterations must be at least 1")
	}
	return nil
}

// Load loads the config from the default location.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(DeckhandDir, ConfigFileName))
}

// LoadFrom loads the config from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default() // Start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the config to the default location.
func (c *Config) Save() error {
	return c.SaveTo(filepath.Join(DeckhandDir, ConfigFileName))
}

// SaveTo saves the config to a specific path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := atomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Init initializes the deckhand directory structure.
func Init(force bool) error {
	// Check if already initialized
	if !force {
		if _, err := os.Stat(DeckhandDir); err == nil {
			return fmt.Errorf("deckhand already initialized (use --force to overwrite)")
		}
	}

	// Create directory structure
	dirs := []string{
		DeckhandDir,
		filepath.Join(DeckhandDir, "workspaces"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// Write default config
	cfg := Default()
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// IsInitialized returns true if deckhand is initialized in the current directory.
func IsInitialized() bool {
	_, err := os.Stat(DeckhandDir)
	return err == nil
}

// RequireInit returns an error if deckhand is not initialized.
func RequireInit() error {
	if !IsInitialized() {
		return fmt.Errorf("not a deckhand project (no %s directory). Run 'deckhand init' first", DeckhandDir)
	}
	return nil
}
