package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure JobStore implements the interface.
var _ driven.JobStore = (*JobStore)(nil)

// JobStore is an in-memory implementation of driven.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]domain.Job)}
}

// Get retrieves a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

// Put creates or replaces a job.
func (s *JobStore) Put(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *job
	if prev, ok := s.jobs[job.ID]; ok {
		stored.Owner, stored.LeaseUntil = prev.Owner, prev.LeaseUntil
	} else {
		stored.Owner, stored.LeaseUntil = "", time.Time{}
	}
	s.jobs[job.ID] = stored
	return nil
}

// Claim takes or renews the lease on a job for owner.
func (s *JobStore) Claim(_ context.Context, id, owner string, now, until time.Time) (bool, error) {
	if owner == "" {
		return false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Owner != "" && job.Owner != owner && now.Before(job.LeaseUntil) {
		return false, nil
	}
	job.Owner, job.LeaseUntil = owner, until
	s.jobs[id] = job
	return true, nil
}

// Release drops owner's lease on a job.
func (s *JobStore) Release(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Owner == owner {
		job.Owner, job.LeaseUntil = "", time.Time{}
		s.jobs[id] = job
	}
	return nil
}

// ListByStage returns jobs in any of stages, oldest first.
func (s *JobStore) ListByStage(_ context.Context, stages ...domain.Stage) ([]domain.Job, error) {
	want := make(map[domain.Stage]bool, len(stages))
	for _, st := range stages {
		want[st] = true
	}
	return s.list(func(j *domain.Job) bool {
		return len(want) == 0 || want[j.Stage]
	}), nil
}

// ListByDocument returns every job of a document, oldest first.
func (s *JobStore) ListByDocument(_ context.Context, documentID string) ([]domain.Job, error) {
	return s.list(func(j *domain.Job) bool { return j.DocumentID == documentID }), nil
}

func (s *JobStore) list(match func(*domain.Job) bool) []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Job
	for id := range s.jobs {
		job := s.jobs[id]
		if match(&job) {
			result = append(result, job)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}
