package pipeline

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. It copies rows on write and read so
// callers never share mutable state with the store.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string]*Pipeline
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]*Pipeline)}
}

// Create stores a new pipeline row.
func (s *MemStore) Create(ctx context.Context, p *Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = p.Clone()
	return nil
}

// FindByID returns the pipeline with the given id, or (nil, nil).
func (s *MemStore) FindByID(ctx context.Context, id string) (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// FindByProjectAndPR returns the most recent pipeline for the key, or (nil, nil).
func (s *MemStore) FindByProjectAndPR(ctx context.Context, projectID string, prNumber int) (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Pipeline
	for _, p := range s.rows {
		if p.ProjectID != projectID || p.PRNumber != prNumber {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

// Update replaces the stored row for the pipeline's id.
func (s *MemStore) Update(ctx context.Context, p *Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = p.Clone()
	return nil
}

// Delete removes the row. Missing rows are a no-op.
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

// ListActive returns pending and running pipelines, newest first.
func (s *MemStore) ListActive(ctx context.Context) ([]*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Pipeline
	for _, p := range s.rows {
		if p.Status == StatusPending || p.Status == StatusRunning {
			out = append(out, p.Clone())
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

// ListByProject returns all pipelines for a project, newest first.
func (s *MemStore) ListByProject(ctx context.Context, projectID string) ([]*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Pipeline
	for _, p := range s.rows {
		if p.ProjectID == projectID {
			out = append(out, p.Clone())
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func sortByCreatedDesc(pipelines []*Pipeline) {
	sort.Slice(pipelines, func(i, j int) bool {
		return pipelines[i].CreatedAt.After(pipelines[j].CreatedAt)
	})
}

var _ Store = (*MemStore)(nil)
