package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/agents"
	"github.com/deckhandhq/deckhand/internal/api"
	"github.com/deckhandhq/deckhand/internal/autonomous"
	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/db"
	"github.com/deckhandhq/deckhand/internal/db/driver"
	"github.com/deckhandhq/deckhand/internal/engine"
	"github.com/deckhandhq/deckhand/internal/events"
	"github.com/deckhandhq/deckhand/internal/hosting"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
	"github.com/deckhandhq/deckhand/internal/validate"
	"github.com/deckhandhq/deckhand/internal/webhook"
	"github.com/deckhandhq/deckhand/internal/workspace"

	// Provider packages register themselves with the hosting registry.
	_ "github.com/deckhandhq/deckhand/internal/hosting/github"
	_ "github.com/deckhandhq/deckhand/internal/hosting/gitlab"
)

// newServeCmd creates the serve command for the orchestration daemon
func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the deckhand daemon",
		Long: `Start the deckhand daemon: REST API, webhook receiver, and
WebSocket event stream for the dashboard UI.

The daemon owns all orchestration state. Autonomous runs and workflows
live in memory; projects and validation pipelines are persisted to the
configured database and survive restarts.

Example:
  deckhand serve                # Listen on the configured address
  deckhand serve --port 3000    # Override the port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := newLogger(cfg.Log)
			slog.SetDefault(logger)

			server, cleanup, err := buildServer(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("deckhand daemon listening on %s\n", cfg.Server.Addr())
			fmt.Println("Press Ctrl+C to stop")

			// Handle graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				cancel()
			}()

			return server.StartContext(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "interface to bind (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")

	return cmd
}

// newLogger builds the daemon logger from the log config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// openStore opens the configured database.
func openStore(cfg *config.Config) (*db.Store, error) {
	switch cfg.Database.Driver {
	case "", "sqlite":
		return db.OpenStore(cfg.Database.Path)
	case "postgres":
		return db.OpenStoreWithDialect(cfg.Database.Postgres.DSN(), driver.DialectPostgres)
	default:
		return nil, fmt.Errorf("unknown database driver %q (use sqlite or postgres)", cfg.Database.Driver)
	}
}

// hostingProviderFunc builds the per-project hosting provider resolver
// from the configured credentials.
func hostingProviderFunc(cfg *config.Config) func(p *project.Project) (hosting.Provider, error) {
	return func(p *project.Project) (hosting.Provider, error) {
		var hcfg hosting.Config
		switch p.Host {
		case project.HostGitLab:
			hcfg = hosting.Config{Token: cfg.Hosting.GitLabToken, BaseURL: cfg.Hosting.GitLabURL}
		default:
			hcfg = hosting.Config{Token: cfg.Hosting.GitHubToken}
		}
		return hosting.ForProject(p, hcfg)
	}
}

// buildServer assembles the daemon from its collaborators. The returned
// cleanup closes the event bus and the database.
func buildServer(cfg *config.Config, logger *slog.Logger) (*api.Server, func(), error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	// Progress lines go to stdout while slog diagnostics stay on stderr;
	// the wrapped bus feeds the WebSocket stream.
	publisher := events.NewCLIPublisher(os.Stdout,
		events.WithInnerPublisher(events.NewMemoryPublisher()),
		events.WithQuiet(quiet))
	helper := events.NewPublishHelper(publisher)

	agentClient := agents.NewClient(cfg.Agents.BaseURL, cfg.Agents.APIKey,
		agents.WithLogger(logger))
	valClient := validate.NewClient(cfg.Validators.BuildURL, cfg.Validators.UIURL,
		cfg.Validators.Timeout, validate.WithLogger(logger))
	workspaces := workspace.NewManager(cfg.Pipeline.WorkspaceRoot,
		workspace.WithLogger(logger))

	providerFor := hostingProviderFunc(cfg)

	runner := pipeline.NewRunner(store.Pipelines(), pipeline.WrapManager(workspaces), agentClient,
		pipeline.Options{
			CommandTimeout:    cfg.Pipeline.CommandTimeout,
			DeployTimeout:     cfg.Pipeline.DeployTimeout,
			CleanupOnComplete: cfg.Pipeline.CleanupOnComplete,
		},
		pipeline.WithEvents(helper),
		pipeline.WithRunnerLogger(logger),
	)

	registry := engine.NewRegistry()
	engine.RegisterAgentCapabilities(registry, agentClient, cfg.Agents.PollInterval)
	eng := engine.NewEngine(registry,
		engine.WithEvents(helper),
		engine.WithLogger(logger),
	)

	controller := autonomous.NewController(store, agentClient, valClient,
		store.Pipelines(), providerFor,
		autonomous.Options{
			MaxIterations: cfg.Autonomous.MaxIterations,
			PollInterval:  cfg.Agents.PollInterval,
			GracePeriod:   cfg.Autonomous.GracePeriod,
		},
		autonomous.WithEvents(helper),
		autonomous.WithLogger(logger),
	)

	dispatcher := webhook.NewDispatcher(runner, store.Pipelines(), providerFor,
		webhook.WithEvents(helper),
		webhook.WithLogger(logger),
	)

	server := api.New(api.Config{
		Addr:          cfg.Server.Addr(),
		Projects:      store,
		Pipelines:     store.Pipelines(),
		Runner:        runner,
		Engine:        eng,
		Autonomous:    controller,
		Dispatcher:    dispatcher,
		Publisher:     publisher,
		Logger:        logger,
		SweepInterval: cfg.Pipeline.SweepInterval,
		StaleAfter:    cfg.Pipeline.StaleAfter,
	})

	cleanup := func() {
		publisher.Close()
		if err := store.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}
	return server, cleanup, nil
}
