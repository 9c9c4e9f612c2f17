package job

import (
	"sort"
	"sync"
)

// Store persists Job records. The orchestrator is handed a Store rather
// than owning one so tests can substitute the in-memory implementation.
type Store interface {
	// Put writes the record, replacing any previous version.
	Put(job *Job) error

	// Get returns the record or ErrNotFound.
	Get(id string) (*Job, error)

	// List returns all records, newest first.
	List() ([]*Job, error)

	// Delete removes the record. Missing ids are not an error.
	Delete(id string) error
}

// MemoryStore keeps jobs in a map. Used by tests and available as a
// non-durable backend.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Put(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) List() ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}
