package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	domainjob "github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/metrics"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/service/report"
)

// DefaultMaxConcurrency is the parallel pool width used when a job does not set one.
const DefaultMaxConcurrency = 4

// BatchValidators groups the collaborators consulted before a batch runs.
type BatchValidators struct {
	Dataset core.DatasetValidator // Required
	Model   core.ModelValidator   // Required
}

// BatchConfig holds tunables for the executor.
type BatchConfig struct {
	Pool *domainjob.PoolPolicy // Optional: defaults to DefaultMaxConcurrency
	Bins int                   // Optional: histogram bins, defaults to report.DefaultBins
}

// BatchExecutorOptions groups dependencies for BatchExecutor.
type BatchExecutorOptions struct {
	Evaluator  core.Evaluator // Required
	Validators BatchValidators
	Config     BatchConfig
	Bus        domainjob.Publisher      // Optional
	Recorder   core.EvaluationRecorder // Optional
	Metrics    statsd.Sink             // Optional
	Logger     *slog.Logger            // Optional
	Now        func() time.Time        // Optional
}

// BatchExecutor turns one batch job into per-model evaluations and an aggregated report.
type BatchExecutor struct {
	eval     core.Evaluator
	datasets core.DatasetValidator
	models   core.ModelValidator
	pool     *domainjob.PoolPolicy
	bins     int
	bus      domainjob.Publisher
	recorder core.EvaluationRecorder
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewBatchExecutor constructs a BatchExecutor.
func NewBatchExecutor(opts BatchExecutorOptions) (*BatchExecutor, error) {
	if opts.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if opts.Validators.Dataset == nil || opts.Validators.Model == nil {
		return nil, errors.New("dataset and model validators are required")
	}
	pool := opts.Config.Pool
	if pool == nil {
		var err error
		pool, err = domainjob.NewPoolPolicy(DefaultMaxConcurrency)
		if err != nil {
			return nil, fmt.Errorf("create pool policy: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &BatchExecutor{
		eval:     opts.Evaluator,
		datasets: opts.Validators.Dataset,
		models:   opts.Validators.Model,
		pool:     pool,
		bins:     opts.Config.Bins,
		bus:      opts.Bus,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "batch_executor"),
		now:      now,
	}, nil
}

// MustNewBatchExecutor constructs a BatchExecutor and panics on error.
func MustNewBatchExecutor(opts BatchExecutorOptions) *BatchExecutor {
	exec, err := NewBatchExecutor(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create BatchExecutor: %v", err))
	}
	return exec
}

// Validate checks the dataset once and every model once. Models whose check fails or
// errors are returned as invalid. It fails with NoValidInputs when the dataset is
// unusable or no model is valid.
func (b *BatchExecutor) Validate(
	ctx context.Context,
	models []model.ModelRef,
	datasetRef string,
) ([]model.ModelRef, []model.InvalidModel, error) {
	ds, err := b.datasets.ValidateDataset(ctx, datasetRef)
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, apperrors.ErrCodeNoValidInputs, "validate dataset %s", datasetRef)
	}
	if !ds.Valid {
		return nil, nil, apperrors.NoValidInputs(
			fmt.Sprintf("dataset %s is not usable: %s", datasetRef, reasonOr(ds.Error, "validation failed")))
	}

	var (
		valid   []model.ModelRef
		invalid []model.InvalidModel
	)
	for _, m := range models {
		res, err := b.models.CheckModel(ctx, m)
		switch {
		case err != nil:
			invalid = append(invalid, model.InvalidModel{ModelRef: m.Ref, Reason: err.Error()})
		case !res.Valid:
			reason := reasonOr(res.Error, "validation failed")
			invalid = append(invalid, model.InvalidModel{ModelRef: m.Ref, Reason: reason})
		default:
			valid = append(valid, m)
		}
	}

	if len(valid) == 0 {
		refs := make([]string, 0, len(invalid))
		for _, inv := range invalid {
			refs = append(refs, inv.ModelRef)
		}
		return nil, invalid, apperrors.NoValidInputs("no valid models: " + strings.Join(refs, ", "))
	}
	return valid, invalid, nil
}

// ExecuteRequest describes one batch run.
type ExecuteRequest struct {
	JobID      string
	Models     []model.ModelRef
	DatasetRef string
	Options    model.EvalOptions
}

// Execute evaluates every model exactly once. Per-model failures become failed
// SubResults. In parallel mode the result order is completion order; in sequential
// mode it is submission order.
func (b *BatchExecutor) Execute(ctx context.Context, req ExecuteRequest) []model.SubResult {
	total := len(req.Models)
	results := make([]model.SubResult, 0, total)
	if total == 0 {
		return results
	}

	var mu sync.Mutex
	collect := func(sr model.SubResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, sr)
		b.publishProgress(ctx, domainjob.ProgressEvent{
			JobID:          req.JobID,
			CompletedCount: len(results),
			TotalCount:     total,
			CurrentModel:   sr.ModelRef,
			Success:        sr.Success,
			At:             b.now(),
		})
	}

	if !req.Options.Parallel {
		for _, m := range req.Models {
			collect(b.evaluateOne(ctx, req, m))
		}
		return results
	}

	decision := b.pool.Resolve(req.Options.MaxConcurrency, total)
	b.logger.DebugContext(ctx, "parallel batch pool",
		"job_id", req.JobID, "width", decision.Width, "source", decision.Source, "models", total)

	var g errgroup.Group
	g.SetLimit(decision.Width)
	for _, m := range req.Models {
		g.Go(func() error {
			collect(b.evaluateOne(ctx, req, m))
			return nil
		})
	}
	_ = g.Wait() // items never return errors
	return results
}

// Run validates, executes and aggregates a batch job. It is registered as the queue
// handler for batch jobs.
func (b *BatchExecutor) Run(ctx context.Context, rec *model.JobRecord) (*model.JobResult, error) {
	p := rec.Payload
	valid, invalid, err := b.Validate(ctx, p.Models, p.DatasetRef)
	if err != nil {
		return &model.JobResult{InvalidModels: invalid}, err
	}
	if len(invalid) > 0 {
		b.logger.WarnContext(ctx, "skipping invalid models", "job_id", rec.ID, "invalid", len(invalid))
	}

	results := b.Execute(ctx, ExecuteRequest{
		JobID:      rec.ID,
		Models:     valid,
		DatasetRef: p.DatasetRef,
		Options:    p.Options,
	})

	ranker, rerr := report.NewJMESPathRanker(p.Options.RankBy)
	if rerr != nil {
		b.logger.WarnContext(ctx, "invalid rank_by expression, ranking by score",
			"job_id", rec.ID, "rank_by", p.Options.RankBy, "error", rerr)
		ranker = report.ScoreRanker{}
	}

	rep := report.AggregateWith(report.Input{
		Results:    results,
		Invalid:    invalid,
		DatasetRef: p.DatasetRef,
		Bins:       b.bins,
		Ranker:     ranker,
	})
	b.logger.InfoContext(ctx, "batch finished",
		"job_id", rec.ID,
		"total", rep.Summary.TotalModels,
		"succeeded", rep.Summary.SuccessCount,
		"failed", rep.Summary.FailureCount)
	return &model.JobResult{Report: &rep, InvalidModels: invalid}, nil
}

func (b *BatchExecutor) evaluateOne(ctx context.Context, req ExecuteRequest, m model.ModelRef) model.SubResult {
	start := time.Now()
	res, err := safeEvaluate(ctx, b.eval, model.EvaluationRequest{
		JobID:      req.JobID,
		Model:      m,
		DatasetRef: req.DatasetRef,
		Options:    req.Options,
	})

	var sr model.SubResult
	if err != nil {
		ferr := apperrors.EvaluationFailure(m.Ref, err)
		b.logger.WarnContext(ctx, "model evaluation failed", "job_id", req.JobID, "model", m.Ref, "error", ferr)
		sr = model.SubResult{ModelRef: m.Ref, ModelType: m.ModelType(), Provider: m.Provider, Error: ferr.Error()}
	} else {
		sr = model.NewSubResult(m, res)
	}

	if sr.Success {
		recordOutcome(ctx, b.recorder, b.logger, &model.EvaluationRecord{
			JobID:         req.JobID,
			ModelRef:      sr.ModelRef,
			ModelType:     sr.ModelType,
			DatasetRef:    req.DatasetRef,
			Score:         sr.Score,
			Metrics:       sr.Metrics,
			ExecutionTime: sr.ExecutionTime,
			MemoryUsage:   sr.MemoryUsage,
		})
	}
	metrics.EmitBatchItem(b.metrics, metrics.BatchItemMetric{
		ModelType: sr.ModelType,
		Success:   sr.Success,
		Duration:  time.Since(start),
	})
	return sr
}

func (b *BatchExecutor) publishProgress(ctx context.Context, ev domainjob.ProgressEvent) {
	if b.bus == nil {
		return
	}
	b.bus.PublishProgress(ctx, ev)
}

// safeEvaluate calls the evaluator, converting a panic into an error.
func safeEvaluate(
	ctx context.Context,
	eval core.Evaluator,
	req model.EvaluationRequest,
) (res *model.EvalResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("evaluator panicked: %v", p)
		}
	}()
	return eval.Evaluate(ctx, req)
}

// recordOutcome stores rec; failures are logged and never change the outcome.
func recordOutcome(ctx context.Context, rec core.EvaluationRecorder, logger *slog.Logger, r *model.EvaluationRecord) {
	if rec == nil {
		return
	}
	if err := rec.CreateRecord(ctx, r); err != nil {
		logger.WarnContext(ctx, "record evaluation failed", "job_id", r.JobID, "model", r.ModelRef, "error", err)
	}
}

func reasonOr(reason, fallback string) string {
	if strings.TrimSpace(reason) == "" {
		return fallback
	}
	return reason
}
