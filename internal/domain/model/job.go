// Package model defines the core data types shared by the evaluation job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind selects the execution path a job is dispatched to.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

const (
	// JobKindSingle evaluates one model (local or API) against a dataset.
	JobKindSingle JobKind = "single"
	// JobKindBatch fans one job out into one evaluation per model.
	JobKindBatch JobKind = "batch"
	// JobKindAPI evaluates one remote API model.
	JobKindAPI JobKind = "api"

	// JobStatusPending indicates a job is queued and has not been dispatched.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the worker has dequeued the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the dispatched path finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the dispatched path returned an error.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was removed from the queue before dispatch.
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrInvalidTransition is returned when a status change is not allowed by the job state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// UnmarshalText implements encoding.TextUnmarshaler for JobKind to allow env and query parsing.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jk := JobKind(v)
	if jk.Valid() {
		*k = jk
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	return k == JobKindSingle || k == JobKindBatch || k == JobKindAPI
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// IsTerminal reports whether no further transition can leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Pending -> Running | Cancelled, Running -> Completed | Failed. Running -> Cancelled is not allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return false
	default:
		return false
	}
}

// EvalOptions carries per-job execution options.
type EvalOptions struct {
	// Parallel selects the bounded worker pool for batch jobs; sequential otherwise.
	Parallel bool `json:"parallel"`
	// MaxConcurrency overrides the pool width for this job (0 uses the executor default).
	MaxConcurrency int `json:"max_concurrency,omitempty"`
	// RankBy is an optional JMESPath expression evaluated against each sub-result to rank by.
	RankBy string `json:"rank_by,omitempty"`
	// TaskConfig is passed through to the evaluation backend untouched.
	TaskConfig map[string]any `json:"task_config,omitempty"`
}

// JobPayload is the validated, persisted description of what a job evaluates.
type JobPayload struct {
	Name       string      `json:"name,omitempty"`
	Models     []ModelRef  `json:"models"`
	DatasetRef string      `json:"dataset_ref"`
	Options    EvalOptions `json:"options"`
}

// SubmitRequest is the caller-facing shape of a job submission.
type SubmitRequest struct {
	Kind       JobKind     `json:"kind"`
	Name       string      `json:"name,omitempty"`
	ModelRefs  []string    `json:"model_refs"`
	DatasetRef string      `json:"dataset_ref"`
	Options    EvalOptions `json:"options"`
}

// Validate checks the structural shape of the request.
func (r *SubmitRequest) Validate() error {
	if r.Kind == "" {
		r.Kind = JobKindSingle
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid job kind %q", r.Kind)
	}
	if strings.TrimSpace(r.DatasetRef) == "" {
		return errors.New("dataset_ref is required")
	}
	if len(r.ModelRefs) == 0 {
		return errors.New("model_refs must not be empty")
	}
	if r.Kind != JobKindBatch && len(r.ModelRefs) != 1 {
		return fmt.Errorf("%s jobs take exactly one model ref", r.Kind)
	}
	if r.Options.MaxConcurrency < 0 {
		return errors.New("max_concurrency must be >= 0")
	}
	seen := make(map[string]struct{}, len(r.ModelRefs))
	for _, ref := range r.ModelRefs {
		key := strings.TrimSpace(ref)
		if key == "" {
			return errors.New("model_refs must not contain empty entries")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate model ref %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Payload parses the model refs and returns the persisted payload.
// The local/API decision for every model is made here and never re-derived.
func (r *SubmitRequest) Payload() (JobPayload, error) {
	models := make([]ModelRef, 0, len(r.ModelRefs))
	for _, raw := range r.ModelRefs {
		ref, err := ParseModelRef(raw)
		if err != nil {
			return JobPayload{}, err
		}
		if r.Kind == JobKindAPI && !ref.IsAPI() {
			return JobPayload{}, fmt.Errorf("api jobs require an http(s) model ref, got %q", raw)
		}
		models = append(models, ref)
	}
	return JobPayload{
		Name:       strings.TrimSpace(r.Name),
		Models:     models,
		DatasetRef: strings.TrimSpace(r.DatasetRef),
		Options:    r.Options,
	}, nil
}

// JobRecord is the persisted and in-memory representation of one scheduled unit of work.
type JobRecord struct {
	ID          string     `json:"id"                     db:"id"`
	Kind        JobKind    `json:"kind"                   db:"kind"`
	Status      JobStatus  `json:"status"                 db:"status"`
	Payload     JobPayload `json:"payload"                db:"payload"`
	Result      *JobResult `json:"result,omitempty"       db:"result"`
	LastError   *string    `json:"last_error,omitempty"   db:"last_error"`
	CreatedAt   time.Time  `json:"created_at"             db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"             db:"updated_at"`
}

// Clone returns a copy that shares no mutable state with j.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	out := *j
	out.Payload.Models = append([]ModelRef(nil), j.Payload.Models...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.LastError != nil {
		s := *j.LastError
		out.LastError = &s
	}
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	return &out
}

// JobResult is attached to a job exactly once, on transition into Completed or Failed.
type JobResult struct {
	Report        *Report            `json:"report,omitempty"`
	Evaluation    *EvaluationOutcome `json:"evaluation,omitempty"`
	InvalidModels []InvalidModel     `json:"invalid_models,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// JobStatusUpdate describes one guarded status change for the store.
// From is the status the record must currently hold for the update to apply.
type JobStatusUpdate struct {
	ID          string
	From        JobStatus
	To          JobStatus
	Result      *JobResult
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// JobListOptions filters and paginates job listings.
type JobListOptions struct {
	Kind        *JobKind
	Status      *JobStatus
	Limit       int
	Offset      int
	OldestFirst bool
}

// QueueStatus is a point-in-time view of the work queue.
type QueueStatus struct {
	QueueSize    int    `json:"queue_size"`
	Processing   bool   `json:"processing"`
	CurrentJobID string `json:"current_job_id,omitempty"`
	WorkerAlive  bool   `json:"worker_alive"`
}

// ProgressSnapshot is the latest progress observed for a batch job.
type ProgressSnapshot struct {
	JobID          string    `json:"job_id"`
	CompletedCount int       `json:"completed_count"`
	TotalCount     int       `json:"total_count"`
	CurrentModel   string    `json:"current_model,omitempty"`
	Status         JobStatus `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}
