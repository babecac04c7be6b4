package core

import (
	"context"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

// This file contains the ports the scheduling core consumes. Adapters in
// internal/data and internal/adapters provide the implementations.

// JobStore is the system of record for job records.
type JobStore interface {
	SaveJob(ctx context.Context, job *model.JobRecord) error
	// LoadJob returns an errors.NotFound AppError for unknown ids.
	LoadJob(ctx context.Context, id string) (*model.JobRecord, error)
	// UpdateJobStatus applies update only if the stored status equals update.From.
	// It returns false when the guard did not match.
	UpdateJobStatus(ctx context.Context, update model.JobStatusUpdate) (bool, error)
	ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error)
}

// Evaluator runs one model against one dataset. Calls may block and are not retried.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (*model.EvalResult, error)
}

// DatasetValidator checks that a dataset reference is usable.
type DatasetValidator interface {
	ValidateDataset(ctx context.Context, datasetRef string) (model.ValidationResult, error)
}

// ModelValidator checks a local model or tests the connection to an API model.
type ModelValidator interface {
	CheckModel(ctx context.Context, ref model.ModelRef) (model.ValidationResult, error)
}

// EvaluationRecorder stores the record of a successful evaluation.
type EvaluationRecorder interface {
	CreateRecord(ctx context.Context, rec *model.EvaluationRecord) error
}

// EvaluationRecordReader lists stored evaluation records.
type EvaluationRecordReader interface {
	ListByJob(ctx context.Context, jobID string) ([]*model.EvaluationRecord, error)
}

// JobQueue is the scheduling surface offered to the service layer.
type JobQueue interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.JobRecord, error)
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error)
	// Cancel reports false when the job is no longer queued.
	Cancel(ctx context.Context, id string) (bool, error)
	// RunNow executes a queued batch job on the caller's goroutine.
	RunNow(ctx context.Context, id string) (*model.JobRecord, error)
	Purge(ctx context.Context) (int, error)
	Status() model.QueueStatus
}
