package ingestion

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryJobStore is an in-process JobStore, grounded on docstore.MemoryStore's
// mutex-guarded map shape; useful for tests and single-process deployments.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryJobStore) GetByID(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryJobStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryJobStore) List(_ context.Context, status string, limit, offset int) ([]*Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Job
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		cp := *job
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

var _ JobStore = (*MemoryJobStore)(nil)
