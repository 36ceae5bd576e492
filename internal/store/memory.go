package store

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/osint-investigator/internal/model"
)

// MemoryStore keeps jobs in a map. It is the default driver and loses all
// jobs on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.SearchJob
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.SearchJob)}
}

func (s *MemoryStore) Create(_ context.Context, job *model.SearchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrExists
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.SearchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (*model.SearchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	next := cloneJob(job)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	s.jobs[id] = next
	return cloneJob(next), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if at := completedAt(job); at != nil && at.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, status model.JobStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneJob copies the job and its pointer fields. The profile is shared: it
// is immutable once attached to a completed job.
func cloneJob(j *model.SearchJob) *model.SearchJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
