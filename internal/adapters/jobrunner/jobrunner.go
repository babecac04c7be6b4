// Package jobrunner provides the in-process work queue that serializes evaluation jobs.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/metrics"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
)

// HandlerFunc executes a running job. A returned error fails the job; a non-nil
// result is attached in either case.
type HandlerFunc func(ctx context.Context, job *model.JobRecord) (*model.JobResult, error)

var (
	// ErrAlreadyStarted is returned by Start when the worker is running.
	ErrAlreadyStarted = errors.New("work queue already started")
	// ErrNotStarted is returned by Stop when no worker is running.
	ErrNotStarted = errors.New("work queue not started")
)

const (
	defaultStopTimeout = 15 * time.Second
	defaultRetryDelay  = time.Second
	maxRetryDelay      = 30 * time.Second
	restartFailure     = "interrupted by restart"
)

// QueueOptions configures a WorkQueue.
type QueueOptions struct {
	Store  core.JobStore
	Bus    job.Publisher
	Logger *slog.Logger
	// Metrics is optional.
	Metrics statsd.Sink
	// StopTimeout bounds how long Stop waits for the current job (default 15s).
	StopTimeout time.Duration
	// RetryDelay is the first backoff after a failed claim; it doubles up to 30s (default 1s).
	RetryDelay time.Duration
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// queuedJob is the lightweight reference kept in the FIFO.
type queuedJob struct {
	id      string
	kind    model.JobKind
	payload model.JobPayload
}

// WorkQueue is a single-consumer FIFO of evaluation jobs. Every status transition
// performed by the queue is persisted while holding mu, so a Cancel racing with a
// dequeue resolves to exactly one outcome.
type WorkQueue struct {
	store       core.JobStore
	bus         job.Publisher
	logger      *slog.Logger
	metrics     statsd.Sink
	stopTimeout time.Duration
	retryDelay  time.Duration
	now         func() time.Time
	newID       func() string

	mu         sync.Mutex
	pending    []queuedJob
	handlers   map[model.JobKind]HandlerFunc
	current    string
	processing bool
	// idle is closed when the current job finishes.
	idle chan struct{}

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

type noopPublisher struct{}

func (noopPublisher) PublishStart(context.Context, job.StartEvent)       {}
func (noopPublisher) PublishProgress(context.Context, job.ProgressEvent) {}
func (noopPublisher) PublishComplete(context.Context, job.CompleteEvent) {}
func (noopPublisher) PublishError(context.Context, job.ErrorEvent)       {}

// NewWorkQueue constructs a stopped queue.
func NewWorkQueue(opts QueueOptions) (*WorkQueue, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	q := &WorkQueue{
		store:       opts.Store,
		bus:         opts.Bus,
		logger:      resolveLogger(opts.Logger).With("component", "work_queue"),
		metrics:     opts.Metrics,
		stopTimeout: opts.StopTimeout,
		retryDelay:  opts.RetryDelay,
		now:         opts.Now,
		newID:       opts.NewID,
		handlers:    make(map[model.JobKind]HandlerFunc),
		wake:        make(chan struct{}, 1),
	}
	if q.bus == nil {
		q.bus = noopPublisher{}
	}
	if q.stopTimeout <= 0 {
		q.stopTimeout = defaultStopTimeout
	}
	if q.retryDelay <= 0 {
		q.retryDelay = defaultRetryDelay
	}
	if q.now == nil {
		q.now = func() time.Time { return time.Now().UTC() }
	}
	if q.newID == nil {
		q.newID = uuid.NewString
	}
	return q, nil
}

// Handle registers the handler for kind, replacing any previous one.
func (q *WorkQueue) Handle(kind model.JobKind, h HandlerFunc) {
	q.mu.Lock()
	q.handlers[kind] = h
	q.mu.Unlock()
}

// Submit validates req, persists a pending record and enqueues it.
func (q *WorkQueue) Submit(ctx context.Context, req model.SubmitRequest) (*model.JobRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	payload, err := req.Payload()
	if err != nil {
		return nil, apperrors.ValidationField("model_refs", err.Error())
	}

	now := q.now()
	rec := &model.JobRecord{
		ID:        q.newID(),
		Kind:      req.Kind,
		Status:    model.JobStatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.store.SaveJob(ctx, rec); err != nil {
		return nil, apperrors.Persistence(err, "save job")
	}

	q.mu.Lock()
	q.pending = append(q.pending, queuedJob{id: rec.ID, kind: rec.Kind, payload: rec.Payload})
	depth := len(q.pending)
	q.mu.Unlock()
	q.signal()

	metrics.EmitQueueDepth(q.metrics, depth)
	q.logger.InfoContext(ctx, "job submitted",
		"job_id", rec.ID, "kind", rec.Kind, "models", len(payload.Models), "queue_size", depth)
	return rec, nil
}

// Get returns the stored record for id.
func (q *WorkQueue) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	rec, err := q.store.LoadJob(ctx, id)
	if err != nil {
		return nil, storeError(err, "load job")
	}
	return rec, nil
}

// List returns stored records matching opts.
func (q *WorkQueue) List(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error) {
	jobs, err := q.store.ListJobs(ctx, opts)
	if err != nil {
		return nil, storeError(err, "list jobs")
	}
	return jobs, nil
}

// Cancel removes a still-queued job and marks it Cancelled. It returns false when the
// job has already been dequeued or is unknown to the queue.
func (q *WorkQueue) Cancel(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	idx := q.indexOf(id)
	if idx < 0 {
		q.mu.Unlock()
		if _, err := q.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	defer q.mu.Unlock()

	qj := q.pending[idx]
	cancelled, err := q.markCancelled(ctx, id)
	if err != nil {
		return false, err
	}
	q.removeAt(idx)
	if !cancelled {
		return false, nil
	}
	q.finishCancel(ctx, qj)
	return true, nil
}

// Purge cancels every queued job and returns how many were cancelled. On a store
// failure the remaining jobs stay queued.
func (q *WorkQueue) Purge(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancelled := 0
	for len(q.pending) > 0 {
		qj := q.pending[0]
		ok, err := q.markCancelled(ctx, qj.id)
		if err != nil {
			return cancelled, err
		}
		q.removeAt(0)
		if ok {
			q.finishCancel(ctx, qj)
			cancelled++
		}
	}
	if cancelled > 0 {
		q.logger.InfoContext(ctx, "queue purged", "cancelled", cancelled)
	}
	return cancelled, nil
}

// RunNow claims a queued job and executes it on the caller's goroutine, returning the
// terminal record. Only batch jobs may be run this way. If another job is in flight,
// RunNow waits for it first, so at most one job runs at a time. Once claimed, the job
// runs to completion even if ctx is cancelled.
func (q *WorkQueue) RunNow(ctx context.Context, id string) (*model.JobRecord, error) {
	q.mu.Lock()
	for {
		idx := q.indexOf(id)
		if idx < 0 {
			q.mu.Unlock()
			rec, err := q.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return nil, apperrors.Conflictf("job %s is %s, not queued", id, rec.Status)
		}
		qj := q.pending[idx]
		if qj.kind != model.JobKindBatch {
			q.mu.Unlock()
			return nil, apperrors.Validationf("job %s is a %s job; only batch jobs can be executed directly", id, qj.kind)
		}
		if !q.processing {
			rec, err := q.claim(ctx, qj)
			if err == nil {
				q.removeAt(idx)
			}
			q.mu.Unlock()
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, apperrors.Conflictf("job %s is no longer pending", id)
			}

			runCtx := context.WithoutCancel(ctx)
			q.execute(runCtx, rec)
			return q.Get(runCtx, id)
		}

		idle := q.idle
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-idle:
		}
		q.mu.Lock()
	}
}

// Status reports the queue depth and the job in flight.
func (q *WorkQueue) Status() model.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return model.QueueStatus{
		QueueSize:    len(q.pending),
		Processing:   q.processing,
		CurrentJobID: q.current,
		WorkerAlive:  q.done != nil,
	}
}

// Start recovers persisted work and spins the single worker.
func (q *WorkQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.done != nil {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	q.mu.Unlock()

	if err := q.restore(ctx); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done != nil {
		return ErrAlreadyStarted
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.workerLoop(workerCtx, q.done)

	q.logger.InfoContext(ctx, "work queue started", "queue_size", len(q.pending))
	return nil
}

// Stop asks the worker to exit after its current job and waits up to the stop timeout.
func (q *WorkQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}

	cancel()
	timer := time.NewTimer(q.stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return fmt.Errorf("worker did not stop within %s", q.stopTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	if q.done == done {
		q.done = nil
		q.cancel = nil
	}
	q.mu.Unlock()
	q.logger.InfoContext(ctx, "work queue stopped")
	return nil
}

// Run starts the worker and blocks until ctx is cancelled, then stops it.
func (q *WorkQueue) Run(ctx context.Context) error {
	if err := q.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return q.Stop(context.WithoutCancel(ctx))
}

func (q *WorkQueue) workerLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		rec, ok := q.next(ctx)
		if !ok {
			return
		}
		// The current job runs to completion even if Stop is requested.
		q.execute(context.WithoutCancel(ctx), rec)
	}
}

// next blocks until the head job is claimed or ctx is done. The head stays queued
// until its claim is persisted; a failed claim is retried with exponential backoff.
// It also waits while a RunNow job is in flight.
func (q *WorkQueue) next(ctx context.Context) (*model.JobRecord, bool) {
	delay := q.retryDelay
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		q.mu.Lock()
		if len(q.pending) == 0 || q.processing {
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, false
			case <-q.wake:
			}
			continue
		}

		qj := q.pending[0]
		rec, err := q.claim(ctx, qj)
		if err != nil {
			q.mu.Unlock()
			q.logger.ErrorContext(ctx, "claim job failed, retrying",
				"job_id", qj.id, "error", err, "retry_in", delay)
			if !sleepCtx(ctx, delay) {
				return nil, false
			}
			delay = min(delay*2, maxRetryDelay)
			continue
		}
		q.removeAt(0)
		depth := len(q.pending)
		q.mu.Unlock()
		metrics.EmitQueueDepth(q.metrics, depth)
		if rec != nil {
			return rec, true
		}
		delay = q.retryDelay
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// claim persists Pending -> Running and marks the job current. It must be called with mu held.
// A nil record without error means the stored job was no longer pending.
func (q *WorkQueue) claim(ctx context.Context, qj queuedJob) (*model.JobRecord, error) {
	now := q.now()
	ok, err := q.store.UpdateJobStatus(ctx, model.JobStatusUpdate{
		ID:        qj.id,
		From:      model.JobStatusPending,
		To:        model.JobStatusRunning,
		StartedAt: &now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, apperrors.Persistence(err, "mark job running")
	}
	if !ok {
		q.logger.WarnContext(ctx, "dequeued job was no longer pending", "job_id", qj.id)
		return nil, nil
	}
	q.current = qj.id
	q.processing = true
	q.idle = make(chan struct{})
	return &model.JobRecord{
		ID:        qj.id,
		Kind:      qj.kind,
		Status:    model.JobStatusRunning,
		Payload:   qj.payload,
		StartedAt: &now,
		UpdatedAt: now,
	}, nil
}

// execute dispatches a running job and persists its terminal transition. It never panics.
func (q *WorkQueue) execute(ctx context.Context, rec *model.JobRecord) {
	start := time.Now()
	logger := q.logger.With("job_id", rec.ID, "kind", rec.Kind)
	defer q.clearCurrent(rec.ID)

	q.bus.PublishStart(ctx, job.StartEvent{
		JobID: rec.ID, Kind: rec.Kind, TotalCount: len(rec.Payload.Models), At: *rec.StartedAt,
	})
	metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
		JobKind: string(rec.Kind), Transition: "running", Result: metrics.ResultSuccess,
	})
	logger.InfoContext(ctx, "job started")

	result, runErr := q.dispatch(ctx, rec)

	to := model.JobStatusCompleted
	var errMsg *string
	if runErr != nil {
		to = model.JobStatusFailed
		msg := runErr.Error()
		errMsg = &msg
		if result == nil {
			result = &model.JobResult{}
		}
		result.Error = msg
	}
	if result == nil {
		result = &model.JobResult{}
	}

	completedAt := q.now()
	ok, err := q.store.UpdateJobStatus(ctx, model.JobStatusUpdate{
		ID:          rec.ID,
		From:        model.JobStatusRunning,
		To:          to,
		Result:      result,
		Error:       errMsg,
		CompletedAt: &completedAt,
		UpdatedAt:   completedAt,
	})
	if err == nil && !ok {
		err = fmt.Errorf("job %s left running state unexpectedly", rec.ID)
	}
	if err != nil {
		perr := apperrors.Persistence(err, "record job outcome")
		logger.ErrorContext(ctx, "persist job outcome failed", "status", to, "error", perr)
		if runErr == nil {
			runErr = perr
		}
	}

	duration := time.Since(start)
	if runErr != nil {
		logger.ErrorContext(ctx, "job failed", "error", runErr, "duration", duration)
		q.bus.PublishError(ctx, job.ErrorEvent{JobID: rec.ID, Err: runErr, At: completedAt})
		metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
			JobKind: string(rec.Kind), Transition: "failed", Result: metrics.ResultError, Duration: duration, Err: runErr,
		})
		return
	}

	logger.InfoContext(ctx, "job completed", "duration", duration)
	q.bus.PublishComplete(ctx, job.CompleteEvent{JobID: rec.ID, Result: result, At: completedAt})
	metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
		JobKind: string(rec.Kind), Transition: "completed", Result: metrics.ResultSuccess, Duration: duration,
	})
}

// dispatch runs the handler for rec.Kind, converting panics into scheduler errors.
func (q *WorkQueue) dispatch(ctx context.Context, rec *model.JobRecord) (result *model.JobResult, err error) {
	q.mu.Lock()
	h, ok := q.handlers[rec.Kind]
	q.mu.Unlock()
	if !ok {
		return nil, apperrors.SchedulerInternal(nil, fmt.Sprintf("no handler for job kind %s", rec.Kind))
	}

	defer func() {
		if p := recover(); p != nil {
			q.logger.ErrorContext(ctx, "job handler panicked",
				"job_id", rec.ID, "panic", p, "stack", string(debug.Stack()))
			result = nil
			err = apperrors.SchedulerInternal(fmt.Errorf("panic: %v", p), "job handler panicked")
		}
	}()
	return h(ctx, rec)
}

// restore re-enqueues pending jobs from the store and fails jobs stuck in running.
func (q *WorkQueue) restore(ctx context.Context) error {
	running := model.JobStatusRunning
	stuck, err := q.store.ListJobs(ctx, model.JobListOptions{Status: &running, OldestFirst: true})
	if err != nil {
		return apperrors.Persistence(err, "list running jobs")
	}
	for _, rec := range stuck {
		now := q.now()
		msg := restartFailure
		if _, err := q.store.UpdateJobStatus(ctx, model.JobStatusUpdate{
			ID: rec.ID, From: model.JobStatusRunning, To: model.JobStatusFailed,
			Result: &model.JobResult{Error: msg}, Error: &msg, CompletedAt: &now, UpdatedAt: now,
		}); err != nil {
			return apperrors.Persistence(err, "fail interrupted job")
		}
		q.logger.WarnContext(ctx, "failed job interrupted by restart", "job_id", rec.ID)
	}

	status := model.JobStatusPending
	waiting, err := q.store.ListJobs(ctx, model.JobListOptions{Status: &status, OldestFirst: true})
	if err != nil {
		return apperrors.Persistence(err, "list pending jobs")
	}

	q.mu.Lock()
	restored := 0
	for _, rec := range waiting {
		if q.indexOf(rec.ID) >= 0 {
			continue
		}
		q.pending = append(q.pending, queuedJob{id: rec.ID, kind: rec.Kind, payload: rec.Payload})
		restored++
	}
	q.mu.Unlock()

	if restored > 0 {
		q.logger.InfoContext(ctx, "restored pending jobs", "count", restored)
		q.signal()
	}
	return nil
}

// markCancelled persists Pending -> Cancelled. It must be called with mu held.
// It reports false when the stored job was no longer pending.
func (q *WorkQueue) markCancelled(ctx context.Context, id string) (bool, error) {
	now := q.now()
	ok, err := q.store.UpdateJobStatus(ctx, model.JobStatusUpdate{
		ID: id, From: model.JobStatusPending, To: model.JobStatusCancelled, CompletedAt: &now, UpdatedAt: now,
	})
	if err != nil {
		return false, apperrors.Persistence(err, "cancel job")
	}
	if !ok {
		q.logger.WarnContext(ctx, "queued job was not pending in store", "job_id", id)
	}
	return ok, nil
}

func (q *WorkQueue) finishCancel(ctx context.Context, qj queuedJob) {
	if closer, ok := q.bus.(interface{ CloseJob(jobID string) }); ok {
		closer.CloseJob(qj.id)
	}
	metrics.EmitJobLifecycle(q.metrics, metrics.JobMetric{
		JobKind: string(qj.kind), Transition: "cancelled", Result: metrics.ResultSuccess,
	})
	metrics.EmitQueueDepth(q.metrics, len(q.pending))
	q.logger.InfoContext(ctx, "job cancelled", "job_id", qj.id)
}

func (q *WorkQueue) clearCurrent(id string) {
	q.mu.Lock()
	if q.current == id {
		q.current = ""
		q.processing = false
		if q.idle != nil {
			close(q.idle)
			q.idle = nil
		}
	}
	q.mu.Unlock()
	q.signal()
}

func (q *WorkQueue) indexOf(id string) int {
	for i, qj := range q.pending {
		if qj.id == id {
			return i
		}
	}
	return -1
}

func (q *WorkQueue) removeAt(i int) {
	q.pending = append(q.pending[:i], q.pending[i+1:]...)
}

func (q *WorkQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func storeError(err error, msg string) error {
	if apperrors.IsNotFound(err) {
		return err
	}
	return apperrors.Persistence(err, msg)
}
