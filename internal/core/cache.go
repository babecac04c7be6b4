// Package core defines the ports of the evaluation scheduling core and the small
// services built directly on them.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

// CacheRepository defines the key/value operations the progress cache needs.
type CacheRepository interface {
	// Set stores value under key. A TTL of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether a key was removed.
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// ProgressCacheConfig holds configuration for the progress snapshot cache.
type ProgressCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultProgressCacheConfig returns the default snapshot retention.
func DefaultProgressCacheConfig() ProgressCacheConfig {
	return ProgressCacheConfig{TTL: time.Hour}
}

// ProgressCacheServiceOptions bundles dependencies for NewProgressCacheService.
type ProgressCacheServiceOptions struct {
	Cache  CacheRepository
	Config ProgressCacheConfig
	Now    func() time.Time
}

// ProgressCacheService keeps the latest progress snapshot of each job so pollers
// can read it without touching the queue.
type ProgressCacheService struct {
	cache CacheRepository
	ttl   time.Duration
	now   func() time.Time
}

// NewProgressCacheService creates a new ProgressCacheService.
func NewProgressCacheService(opts ProgressCacheServiceOptions) *ProgressCacheService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ProgressCacheService{cache: opts.Cache, ttl: opts.Config.TTL, now: now}
}

// Put stores snap as the latest snapshot for its job.
func (s *ProgressCacheService) Put(ctx context.Context, snap model.ProgressSnapshot) error {
	if snap.JobID == "" {
		return errors.New("progress snapshot requires a job id")
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode progress snapshot: %w", err)
	}
	return s.cache.Set(ctx, progressKey(snap.JobID), raw, s.ttl)
}

// Get returns the latest snapshot, or nil when none is cached.
func (s *ProgressCacheService) Get(ctx context.Context, jobID string) (*model.ProgressSnapshot, error) {
	if jobID == "" {
		return nil, nil
	}
	raw, err := s.cache.Get(ctx, progressKey(jobID))
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	var snap model.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode progress snapshot: %w", err)
	}
	return &snap, nil
}

// Invalidate drops the cached snapshot of a job.
func (s *ProgressCacheService) Invalidate(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, progressKey(jobID))
	return err
}

// Handlers returns bus callbacks that mirror job events into the cache.
func (s *ProgressCacheService) Handlers() job.Handlers {
	return job.Handlers{
		OnStart: func(ctx context.Context, ev job.StartEvent) error {
			return s.Put(ctx, model.ProgressSnapshot{
				JobID:      ev.JobID,
				TotalCount: ev.TotalCount,
				Status:     model.JobStatusRunning,
				UpdatedAt:  ev.At,
			})
		},
		OnProgress: func(ctx context.Context, ev job.ProgressEvent) error {
			return s.Put(ctx, model.ProgressSnapshot{
				JobID:          ev.JobID,
				CompletedCount: ev.CompletedCount,
				TotalCount:     ev.TotalCount,
				CurrentModel:   ev.CurrentModel,
				Status:         model.JobStatusRunning,
				UpdatedAt:      ev.At,
			})
		},
		OnComplete: func(ctx context.Context, ev job.CompleteEvent) error {
			return s.finish(ctx, ev.JobID, model.JobStatusCompleted, ev.At)
		},
		OnError: func(ctx context.Context, ev job.ErrorEvent) error {
			return s.finish(ctx, ev.JobID, model.JobStatusFailed, ev.At)
		},
	}
}

func (s *ProgressCacheService) finish(ctx context.Context, jobID string, status model.JobStatus, at time.Time) error {
	snap, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if snap == nil {
		snap = &model.ProgressSnapshot{JobID: jobID}
	}
	snap.Status = status
	snap.CurrentModel = ""
	snap.UpdatedAt = at
	return s.Put(ctx, *snap)
}

func progressKey(jobID string) string {
	return "eval:progress:" + jobID
}
