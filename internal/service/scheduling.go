package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/service/report"
)

const (
	// DefaultHistoryLimit is the page size of GetHistory when none is given.
	DefaultHistoryLimit = 20
	defaultListLimit    = 50
	maxListLimit        = 1000
)

// SchedulingServiceOptions groups dependencies for SchedulingService.
type SchedulingServiceOptions struct {
	Queue    core.JobQueue               // Required
	Progress *core.ProgressCacheService  // Optional: progress snapshots for pollers
	Records  core.EvaluationRecordReader // Optional: stored evaluation records
	Logger   *slog.Logger                // Optional
	// HistoryLimit is the GetHistory page size when none is given (default DefaultHistoryLimit).
	HistoryLimit int
}

// SchedulingService is the public scheduling API used by the HTTP layer.
type SchedulingService struct {
	queue    core.JobQueue
	progress *core.ProgressCacheService
	records  core.EvaluationRecordReader
	logger   *slog.Logger
	history  int
}

// NewSchedulingService constructs a SchedulingService.
func NewSchedulingService(opts SchedulingServiceOptions) (*SchedulingService, error) {
	if opts.Queue == nil {
		return nil, errors.New("job queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := opts.HistoryLimit
	if history <= 0 {
		history = DefaultHistoryLimit
	}
	return &SchedulingService{
		queue:    opts.Queue,
		progress: opts.Progress,
		records:  opts.Records,
		logger:   logger.With("component", "scheduling_service"),
		history:  history,
	}, nil
}

// MustNewSchedulingService constructs a SchedulingService and panics on error.
func MustNewSchedulingService(opts SchedulingServiceOptions) *SchedulingService {
	svc, err := NewSchedulingService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create SchedulingService: %v", err))
	}
	return svc
}

// Submit validates and enqueues a job. A rank_by expression must compile.
func (s *SchedulingService) Submit(ctx context.Context, req model.SubmitRequest) (*model.JobRecord, error) {
	if _, err := report.NewJMESPathRanker(req.Options.RankBy); err != nil {
		return nil, apperrors.ValidationField("options.rank_by", err.Error())
	}
	rec, err := s.queue.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	return rec, nil
}

// GetStatus returns the current record of a job. Polling has no side effects.
func (s *SchedulingService) GetStatus(ctx context.Context, id string) (*model.JobRecord, error) {
	rec, err := s.queue.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// Cancel cancels a job that has not been dequeued yet.
func (s *SchedulingService) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := s.queue.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	if !ok {
		s.logger.DebugContext(ctx, "cancel had no effect", "job_id", id)
	}
	return ok, nil
}

// ExecuteBatchJob runs a queued batch job synchronously and returns its terminal record.
func (s *SchedulingService) ExecuteBatchJob(ctx context.Context, id string) (*model.JobRecord, error) {
	rec, err := s.queue.RunNow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("execute batch job: %w", err)
	}
	return rec, nil
}

// GetHistory lists batch jobs, newest first.
func (s *SchedulingService) GetHistory(ctx context.Context, limit, offset int) ([]*model.JobRecord, error) {
	if limit <= 0 {
		limit = s.history
	}
	batch := model.JobKindBatch
	return s.ListJobs(ctx, model.JobListOptions{Kind: &batch, Limit: limit, Offset: offset})
}

// ListJobs lists jobs with normalized pagination.
func (s *SchedulingService) ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error) {
	opts.Limit, opts.Offset = normalizePage(opts.Limit, opts.Offset)
	jobs, err := s.queue.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*model.JobRecord{}
	}
	return jobs, nil
}

// QueueStatus reports queue depth and the job in flight.
func (s *SchedulingService) QueueStatus() model.QueueStatus {
	return s.queue.Status()
}

// Purge cancels every queued job.
func (s *SchedulingService) Purge(ctx context.Context) (int, error) {
	n, err := s.queue.Purge(ctx)
	if err != nil {
		return n, fmt.Errorf("purge queue: %w", err)
	}
	return n, nil
}

// Progress returns the latest progress snapshot of a job. When no snapshot is cached
// one is derived from the stored record.
func (s *SchedulingService) Progress(ctx context.Context, id string) (*model.ProgressSnapshot, error) {
	if s.progress != nil {
		snap, err := s.progress.Get(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "progress cache read failed", "job_id", id, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}

	rec, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &model.ProgressSnapshot{
		JobID:      rec.ID,
		TotalCount: len(rec.Payload.Models),
		Status:     rec.Status,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.Status == model.JobStatusCompleted && rec.Result != nil && rec.Result.Report != nil {
		snap.CompletedCount = rec.Result.Report.Summary.TotalModels
	} else if rec.Status == model.JobStatusCompleted {
		snap.CompletedCount = snap.TotalCount
	}
	return snap, nil
}

// Records lists the stored evaluation records of a job.
func (s *SchedulingService) Records(ctx context.Context, id string) ([]*model.EvaluationRecord, error) {
	if _, err := s.GetStatus(ctx, id); err != nil {
		return nil, err
	}
	if s.records == nil {
		return []*model.EvaluationRecord{}, nil
	}
	recs, err := s.records.ListByJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list evaluation records: %w", err)
	}
	return recs, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
