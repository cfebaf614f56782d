package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deckhandhq/deckhand/internal/events"
	"github.com/deckhandhq/deckhand/internal/pipeline"
)

// sweepTimeout bounds one pass over the store.
const sweepTimeout = 30 * time.Second

// Sweeper fails pipelines stuck in running past a configurable age.
// A crashed deployment or a hung agent leaves the row in running
// forever otherwise, and the dashboard counts it as active.
type Sweeper struct {
	pipelines  pipeline.Store
	events     *events.PublishHelper
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// SweeperConfig configures the stale-run sweeper.
type SweeperConfig struct {
	Pipelines  pipeline.Store
	Publisher  events.Publisher
	Logger     *slog.Logger
	Interval   time.Duration
	StaleAfter time.Duration
}

// NewSweeper creates a sweeper. Zero-value timings get defaults.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		pipelines:  cfg.Pipelines,
		events:     events.NewPublishHelper(cfg.Publisher),
		logger:     cfg.Logger,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
// Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass, failing every running pipeline whose last
// update is older than the stale cutoff. Exported so tests and the
// CLI can trigger a pass directly.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	active, err := s.pipelines.ListActive(ctx)
	if err != nil {
		s.logger.Error("sweep: list active pipelines", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.staleAfter)
	for _, p := range active {
		if p.Status != pipeline.StatusRunning || p.UpdatedAt.After(cutoff) {
			continue
		}

		lastUpdate := p.UpdatedAt
		now := time.Now()
		p.Status = pipeline.StatusFailed
		p.ErrorMessage = fmt.Sprintf("no progress for %s, marked stale", s.staleAfter)
		p.CompletedAt = &now
		p.UpdatedAt = now

		if err := s.pipelines.Update(ctx, p); err != nil {
			s.logger.Error("sweep: fail stale pipeline",
				"pipeline_id", p.ID,
				"error", err)
			continue
		}

		s.events.PipelineStatus(events.PipelineUpdate{
			PipelineID: p.ID,
			ProjectID:  p.ProjectID,
			PRNumber:   p.PRNumber,
			Status:     string(p.Status),
			Progress:   p.Progress,
			Error:      p.ErrorMessage,
		})
		s.logger.Warn("stale pipeline failed by sweeper",
			"pipeline_id", p.ID,
			"project_id", p.ProjectID,
			"pr_number", p.PRNumber,
			"last_update", lastUpdate.Format(time.RFC3339))
	}
}
