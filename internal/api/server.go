// Package api provides the HTTP surface of the deckhand daemon: the
// dashboard REST API, the GitHub-style webhook receiver, and the
// WebSocket event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/deckhandhq/deckhand/internal/autonomous"
	"github.com/deckhandhq/deckhand/internal/engine"
	"github.com/deckhandhq/deckhand/internal/events"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
)

// ProjectStore is the slice of the persistence layer the server uses.
type ProjectStore interface {
	SaveProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, id string) (*project.Project, error)
	GetProjectByName(ctx context.Context, name string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]*project.Project, error)
	DeleteProjectCascade(ctx context.Context, id string) error
}

// Workflows is the slice of the workflow engine the server exposes.
type Workflows interface {
	Start(ctx context.Context, cfg engine.Config) (*engine.Instance, error)
	ExecuteWorkflow(ctx context.Context, id string) (*engine.Instance, error)
	ExecuteNextStep(ctx context.Context, id string) (*engine.StepResult, error)
	Cancel(id string) bool
	Status(id string) (*engine.Instance, error)
	Active() []*engine.Instance
	Templates() []string
	TemplateYAML(workflowType string) ([]byte, error)
}

// Autonomous is the slice of the convergence controller the server
// exposes.
type Autonomous interface {
	StartAsync(ctx context.Context, req autonomous.Request) (string, error)
	Status(id string) (*autonomous.State, bool)
	Active() []*autonomous.State
}

// PipelineRunner cancels running validation pipelines.
type PipelineRunner interface {
	Cancel(ctx context.Context, id string) error
}

// Router applies a verified webhook delivery to orchestration state.
type Router interface {
	Route(ctx context.Context, proj *project.Project, eventType string, payload []byte) error
}

// Config wires the server's collaborators.
type Config struct {
	Addr       string
	Projects   ProjectStore
	Pipelines  pipeline.Store
	Runner     PipelineRunner
	Engine     Workflows
	Autonomous Autonomous
	Dispatcher Router
	Publisher  events.Publisher
	Logger     *slog.Logger

	// SummaryTTL bounds how stale the dashboard summary may be.
	SummaryTTL time.Duration
	// SweepInterval is how often the stale-run sweeper wakes up.
	SweepInterval time.Duration
	// StaleAfter marks running pipelines as failed past this age.
	StaleAfter time.Duration
}

// Server is the deckhand HTTP server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger

	projects   ProjectStore
	pipelines  pipeline.Store
	runner     PipelineRunner
	engine     Workflows
	autonomous Autonomous
	dispatcher Router

	wsHandler  *WSHandler
	summary    *summaryCache
	sweeper    *Sweeper
	deliveries *serialQueue
}

// New creates a server from cfg. Zero-value timings fall back to the
// same defaults the config package ships.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8420"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = 5 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}

	s := &Server{
		addr:       cfg.Addr,
		mux:        http.NewServeMux(),
		logger:     cfg.Logger,
		projects:   cfg.Projects,
		pipelines:  cfg.Pipelines,
		runner:     cfg.Runner,
		engine:     cfg.Engine,
		autonomous: cfg.Autonomous,
		dispatcher: cfg.Dispatcher,
		deliveries: newSerialQueue(cfg.Logger),
	}
	s.wsHandler = NewWSHandler(cfg.Publisher, cfg.Logger)
	s.summary = newSummaryCache(s, cfg.SummaryTTL)
	s.sweeper = NewSweeper(SweeperConfig{
		Pipelines:  cfg.Pipelines,
		Publisher:  cfg.Publisher,
		Logger:     cfg.Logger,
		Interval:   cfg.SweepInterval,
		StaleAfter: cfg.StaleAfter,
	})
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", CORS(s.handleHealth))

	// Projects.
	s.mux.HandleFunc("GET /api/projects", CORS(s.handleListProjects))
	s.mux.HandleFunc("POST /api/projects", CORS(s.handleCreateProject))
	s.mux.HandleFunc("GET /api/projects/{id}", CORS(s.handleGetProject))
	s.mux.HandleFunc("PUT /api/projects/{id}", CORS(s.handleUpdateProject))
	s.mux.HandleFunc("DELETE /api/projects/{id}", CORS(s.handleDeleteProject))

	// Workflow engine.
	s.mux.HandleFunc("GET /api/workflows", CORS(s.handleListWorkflows))
	s.mux.HandleFunc("POST /api/workflows", CORS(s.handleStartWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}", CORS(s.handleGetWorkflow))
	s.mux.HandleFunc("POST /api/workflows/{id}/step", CORS(s.handleStepWorkflow))
	s.mux.HandleFunc("POST /api/workflows/{id}/cancel", CORS(s.handleCancelWorkflow))
	s.mux.HandleFunc("GET /api/workflow-types", CORS(s.handleWorkflowTypes))
	s.mux.HandleFunc("GET /api/workflow-types/{type}", CORS(s.handleWorkflowTypeYAML))

	// Validation pipelines.
	s.mux.HandleFunc("GET /api/pipelines", CORS(s.handleListPipelines))
	s.mux.HandleFunc("GET /api/pipelines/{id}", CORS(s.handleGetPipeline))
	s.mux.HandleFunc("POST /api/pipelines/{id}/cancel", CORS(s.handleCancelPipeline))

	// Autonomous workflows.
	s.mux.HandleFunc("GET /api/autonomous", CORS(s.handleListAutonomous))
	s.mux.HandleFunc("POST /api/autonomous", CORS(s.handleStartAutonomous))
	s.mux.HandleFunc("GET /api/autonomous/{id}", CORS(s.handleGetAutonomous))

	// Dashboard.
	s.mux.HandleFunc("GET /api/dashboard/summary", CORS(s.handleDashboardSummary))

	// Webhook receiver. Providers send POST only; no CORS needed.
	s.mux.HandleFunc("POST /api/webhooks/{projectID}", s.handleWebhook)

	// WebSocket event stream.
	s.mux.HandleFunc("/ws", s.wsHandler.ServeHTTP)
}

// Handler returns the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	s.sweeper.Start()
	s.logger.Info("api server listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// StartContext runs the server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) StartContext(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}

	s.sweeper.Start()

	go func() {
		<-ctx.Done()
		s.sweeper.Stop()
		s.wsHandler.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", "error", err)
		}
	}()

	s.logger.Info("api server listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok"})
}
