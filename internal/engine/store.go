package engine

import "sync"

// Store holds workflow instances. Active instances are the ones still
// executing; finished instances move to history. Orchestration state is
// in-memory only and lost on restart.
type Store interface {
	// Get returns an active instance.
	Get(id string) (*Instance, bool)
	// Put stores or replaces an active instance.
	Put(inst *Instance)
	// Delete removes an active instance.
	Delete(id string)
	// ListActive returns all active instances.
	ListActive() []*Instance
	// History returns a finished instance.
	History(id string) (*Instance, bool)
	// AppendHistory records a finished instance.
	AppendHistory(inst *Instance)
}

// MemStore is the default in-memory Store. Rows are copied on both
// sides so callers never share mutable state with the store.
type MemStore struct {
	mu      sync.RWMutex
	active  map[string]*Instance
	history map[string]*Instance
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		active:  make(map[string]*Instance),
		history: make(map[string]*Instance),
	}
}

func (s *MemStore) Get(id string) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.active[id]
	if !ok {
		return nil, false
	}
	return inst.Clone(), true
}

func (s *MemStore) Put(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[inst.ID] = inst.Clone()
}

func (s *MemStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

func (s *MemStore) ListActive() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Instance, 0, len(s.active))
	for _, inst := range s.active {
		out = append(out, inst.Clone())
	}
	return out
}

func (s *MemStore) History(id string) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.history[id]
	if !ok {
		return nil, false
	}
	return inst.Clone(), true
}

func (s *MemStore) AppendHistory(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[inst.ID] = inst.Clone()
}
