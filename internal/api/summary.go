package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/project"
)

// DashboardSummary is the aggregate view the dashboard landing page
// renders in one request.
type DashboardSummary struct {
	Projects         int              `json:"projects"`
	ActiveWorkflows  int              `json:"active_workflows"`
	ActiveAutonomous int              `json:"active_autonomous"`
	Pipelines        PipelineCounts   `json:"pipelines"`
	PerProject       []ProjectSummary `json:"per_project"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// PipelineCounts buckets pipelines by status.
type PipelineCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// ProjectSummary is the per-project row of the dashboard.
type ProjectSummary struct {
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	Repo         string    `json:"repo"`
	Pipelines    int       `json:"pipelines"`
	Active       int       `json:"active"`
	Failed       int       `json:"failed"`
	LastActivity time.Time `json:"last_activity"`
}

// summaryCache is a TTL cache around the dashboard summary, with
// singleflight coalescing so concurrent dashboard loads share one
// store scan.
type summaryCache struct {
	mu       sync.RWMutex
	value    *DashboardSummary
	loadedAt time.Time
	ttl      time.Duration
	group    singleflight.Group
	server   *Server
}

func newSummaryCache(s *Server, ttl time.Duration) *summaryCache {
	return &summaryCache{server: s, ttl: ttl}
}

// Get returns the cached summary or rebuilds it.
func (c *summaryCache) Get(ctx context.Context) (*DashboardSummary, error) {
	// Fast path: cache still fresh.
	c.mu.RLock()
	if c.value != nil && time.Since(c.loadedAt) < c.ttl {
		v := c.value
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("load", func() (any, error) {
		// Double-check after acquiring the singleflight slot.
		c.mu.RLock()
		if c.value != nil && time.Since(c.loadedAt) < c.ttl {
			v := c.value
			c.mu.RUnlock()
			return v, nil
		}
		c.mu.RUnlock()

		value, err := c.server.buildSummary(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.value = value
		c.loadedAt = time.Now()
		c.mu.Unlock()

		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*DashboardSummary), nil
}

// Invalidate clears the cache, forcing the next Get to rebuild.
func (c *summaryCache) Invalidate() {
	c.mu.Lock()
	c.value = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summary.Get(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, summary)
}

// buildSummary aggregates orchestration state across every project.
// Per-project pipeline listings fan out with bounded concurrency.
func (s *Server) buildSummary(ctx context.Context) (*DashboardSummary, error) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		Projects:         len(projects),
		ActiveWorkflows:  len(s.engine.Active()),
		ActiveAutonomous: len(s.autonomous.Active()),
		PerProject:       make([]ProjectSummary, 0, len(projects)),
		GeneratedAt:      time.Now().UTC(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, proj := range projects {
		g.Go(func() error {
			pipelines, err := s.pipelines.ListByProject(gctx, proj.ID)
			if err != nil {
				return err
			}
			row := projectRow(proj, pipelines)

			mu.Lock()
			defer mu.Unlock()
			summary.PerProject = append(summary.PerProject, row)
			for _, p := range pipelines {
				summary.Pipelines.add(p.Status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summary.PerProject, func(i, j int) bool {
		return summary.PerProject[i].Name < summary.PerProject[j].Name
	})
	return summary, nil
}

func projectRow(proj *project.Project, pipelines []*pipeline.Pipeline) ProjectSummary {
	row := ProjectSummary{
		ProjectID: proj.ID,
		Name:      proj.Name,
		Repo:      proj.FullName(),
		Pipelines: len(pipelines),
	}
	for _, p := range pipelines {
		switch p.Status {
		case pipeline.StatusPending, pipeline.StatusRunning:
			row.Active++
		case pipeline.StatusFailed:
			row.Failed++
		}
		if p.UpdatedAt.After(row.LastActivity) {
			row.LastActivity = p.UpdatedAt
		}
	}
	return row
}

func (c *PipelineCounts) add(status pipeline.Status) {
	switch status {
	case pipeline.StatusPending:
		c.Pending++
	case pipeline.StatusRunning:
		c.Running++
	case pipeline.StatusCompleted:
		c.Completed++
	case pipeline.StatusFailed:
		c.Failed++
	case pipeline.StatusCancelled:
		c.Cancelled++
	}
}
