package data

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
)

// MemoryJobStore keeps job records in process memory. It is used when no
// database is configured and by tests.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.JobRecord
	// seq preserves insertion order for records sharing a created_at.
	seq   map[string]int
	next  int
	clock TimeProvider
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore(tp TimeProvider) *MemoryJobStore {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &MemoryJobStore{
		jobs:  make(map[string]*model.JobRecord),
		seq:   make(map[string]int),
		clock: tp,
	}
}

// SaveJob stores a copy of job. Saving an existing id is a conflict.
func (s *MemoryJobStore) SaveJob(_ context.Context, job *model.JobRecord) error {
	if job == nil {
		return errors.New("job record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return apperrors.Conflictf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.seq[job.ID] = s.next
	s.next++
	return nil
}

// LoadJob returns a copy of the stored record.
func (s *MemoryJobStore) LoadJob(_ context.Context, id string) (*model.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return job.Clone(), nil
}

// UpdateJobStatus applies update when the stored status equals update.From.
func (s *MemoryJobStore) UpdateJobStatus(_ context.Context, update model.JobStatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[update.ID]
	if !ok {
		return false, apperrors.NotFoundf("job %s not found", update.ID)
	}
	if !update.From.CanTransitionTo(update.To) {
		return false, invalidTransition(update)
	}
	if job.Status != update.From {
		return false, nil
	}

	job.Status = update.To
	if update.Result != nil {
		r := *update.Result
		job.Result = &r
	}
	if update.Error != nil {
		e := *update.Error
		job.LastError = &e
	}
	if job.StartedAt == nil && update.StartedAt != nil {
		t := update.StartedAt.UTC()
		job.StartedAt = &t
	}
	if job.CompletedAt == nil && update.CompletedAt != nil {
		t := update.CompletedAt.UTC()
		job.CompletedAt = &t
	}
	job.UpdatedAt = update.UpdatedAt
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = s.clock.Now()
	}
	return true, nil
}

// ListJobs filters, orders and paginates like EvalJobRepo.ListJobs.
func (s *MemoryJobStore) ListJobs(_ context.Context, opts model.JobListOptions) ([]*model.JobRecord, error) {
	s.mu.RLock()
	out := make([]*model.JobRecord, 0, len(s.jobs))
	for _, job := range s.jobs {
		if opts.Kind != nil && job.Kind != *opts.Kind {
			continue
		}
		if opts.Status != nil && job.Status != *opts.Status {
			continue
		}
		out = append(out, job.Clone())
	}
	seq := make(map[string]int, len(out))
	for _, job := range out {
		seq[job.ID] = s.seq[job.ID]
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if opts.OldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if opts.OldestFirst {
			return seq[a.ID] < seq[b.ID]
		}
		return seq[a.ID] > seq[b.ID]
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*model.JobRecord{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

var _ core.JobStore = (*MemoryJobStore)(nil)
