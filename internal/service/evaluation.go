package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
)

// EvaluationServiceOptions groups dependencies for EvaluationService.
type EvaluationServiceOptions struct {
	Evaluator core.Evaluator          // Required
	Recorder  core.EvaluationRecorder // Optional
	Logger    *slog.Logger            // Optional
}

// EvaluationService runs single-model and API jobs.
type EvaluationService struct {
	eval     core.Evaluator
	recorder core.EvaluationRecorder
	logger   *slog.Logger
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(opts EvaluationServiceOptions) (*EvaluationService, error) {
	if opts.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluationService{
		eval:     opts.Evaluator,
		recorder: opts.Recorder,
		logger:   logger.With("component", "evaluation_service"),
	}, nil
}

// Run evaluates the single model of rec. It is registered as the queue handler for
// single and api jobs; an unsuccessful result fails the job.
func (s *EvaluationService) Run(ctx context.Context, rec *model.JobRecord) (*model.JobResult, error) {
	if len(rec.Payload.Models) != 1 {
		return nil, apperrors.Validationf("%s job %s must carry exactly one model", rec.Kind, rec.ID)
	}
	m := rec.Payload.Models[0]
	if rec.Kind == model.JobKindAPI && !m.IsAPI() {
		return nil, apperrors.Validationf("api job %s carries local model %s", rec.ID, m.Ref)
	}

	res, err := safeEvaluate(ctx, s.eval, model.EvaluationRequest{
		JobID:      rec.ID,
		Model:      m,
		DatasetRef: rec.Payload.DatasetRef,
		Options:    rec.Payload.Options,
	})
	if err != nil {
		return nil, apperrors.EvaluationFailure(m.Ref, err)
	}
	if res == nil {
		return nil, apperrors.EvaluationFailure(m.Ref, errors.New("evaluation returned no result"))
	}
	if !res.Success {
		return nil, apperrors.EvaluationFailure(m.Ref, errors.New(reasonOr(res.Error, "evaluation reported failure")))
	}

	outcome := &model.EvaluationOutcome{
		ModelRef:      m.Ref,
		ModelType:     m.ModelType(),
		Provider:      m.Provider,
		DatasetRef:    rec.Payload.DatasetRef,
		Score:         res.Score,
		Metrics:       res.Metrics,
		ExecutionTime: res.ExecutionTime,
		MemoryUsage:   res.MemoryUsage,
	}
	recordOutcome(ctx, s.recorder, s.logger, &model.EvaluationRecord{
		JobID:         rec.ID,
		ModelRef:      outcome.ModelRef,
		ModelType:     outcome.ModelType,
		DatasetRef:    outcome.DatasetRef,
		Score:         outcome.Score,
		Metrics:       outcome.Metrics,
		ExecutionTime: outcome.ExecutionTime,
		MemoryUsage:   outcome.MemoryUsage,
	})
	return &model.JobResult{Evaluation: outcome}, nil
}
