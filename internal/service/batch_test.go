package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainjob "github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/mocks"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
)

func score(v float64) *float64 { return &v }

type batchFixture struct {
	exec     *BatchExecutor
	eval     *mocks.MockEvaluator
	datasets *mocks.MockDatasetValidator
	models   *mocks.MockModelValidator
	recorder *mocks.MockEvaluationRecorder
	bus      *domainjob.ProgressBus
	metrics  *statsd.Recorder
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &batchFixture{
		eval:     mocks.NewMockEvaluator(ctrl),
		datasets: mocks.NewMockDatasetValidator(ctrl),
		models:   mocks.NewMockModelValidator(ctrl),
		recorder: mocks.NewMockEvaluationRecorder(ctrl),
		bus:      domainjob.NewProgressBus(domainjob.ProgressBusOptions{}),
		metrics:  &statsd.Recorder{},
	}
	f.exec = MustNewBatchExecutor(BatchExecutorOptions{
		Evaluator:  f.eval,
		Validators: BatchValidators{Dataset: f.datasets, Model: f.models},
		Bus:        f.bus,
		Recorder:   f.recorder,
		Metrics:    f.metrics,
	})
	return f
}

func (f *batchFixture) allValid() {
	f.datasets.EXPECT().ValidateDataset(gomock.Any(), gomock.Any()).
		Return(model.ValidationResult{Valid: true}, nil).AnyTimes()
	f.models.EXPECT().CheckModel(gomock.Any(), gomock.Any()).
		Return(model.ValidationResult{Valid: true}, nil).AnyTimes()
}

// scripted answers Evaluate from a per-model table; missing entries fail.
func scripted(results map[string]*model.EvalResult, errs map[string]error) func(
	context.Context, model.EvaluationRequest,
) (*model.EvalResult, error) {
	return func(_ context.Context, req model.EvaluationRequest) (*model.EvalResult, error) {
		if err, ok := errs[req.Model.Ref]; ok {
			return nil, err
		}
		if res, ok := results[req.Model.Ref]; ok {
			return res, nil
		}
		return nil, errors.New("unexpected model " + req.Model.Ref)
	}
}

func batchJob(id string, opts model.EvalOptions, refs ...string) *model.JobRecord {
	models := make([]model.ModelRef, 0, len(refs))
	for _, r := range refs {
		models = append(models, model.MustParseModelRef(r))
	}
	return &model.JobRecord{
		ID:     id,
		Kind:   model.JobKindBatch,
		Status: model.JobStatusRunning,
		Payload: model.JobPayload{
			Models:     models,
			DatasetRef: "ds1",
			Options:    opts,
		},
	}
}

func TestNewBatchExecutor_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewBatchExecutor(BatchExecutorOptions{})
	require.Error(t, err)

	_, err = NewBatchExecutor(BatchExecutorOptions{Evaluator: mocks.NewMockEvaluator(ctrl)})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewBatchExecutor(BatchExecutorOptions{}) })
}

func TestBatchExecutor_RunParallelRanksByScore(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()
	f.allValid()

	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(scripted(map[string]*model.EvalResult{
			"m1": {Success: true, Score: score(0.9), ExecutionTime: 1.5, MemoryUsage: 100},
			"m2": {Success: true, Score: score(0.5), ExecutionTime: 2.5, MemoryUsage: 200},
			"m3": {Success: true, Score: score(0.7), ExecutionTime: 3.5, MemoryUsage: 300},
		}, nil)).Times(3)
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	unsub, events := f.bus.Subscribe("job-1")
	defer unsub()

	opts := model.EvalOptions{Parallel: true, MaxConcurrency: 2}
	res, err := f.exec.Run(ctx, batchJob("job-1", opts, "m1", "m2", "m3"))
	require.NoError(t, err)
	require.NotNil(t, res.Report)

	rep := res.Report
	assert.Equal(t, 3, rep.Summary.TotalModels)
	assert.Equal(t, 3, rep.Summary.SuccessCount)
	assert.InDelta(t, 100.0, rep.Summary.SuccessRate, 1e-9)
	assert.InDelta(t, 0.7, rep.Statistics.Score.Mean, 1e-9)
	assert.InDelta(t, 0.9, rep.Statistics.Score.Max, 1e-9)
	assert.InDelta(t, 0.5, rep.Statistics.Score.Min, 1e-9)

	require.Len(t, rep.Rankings, 3)
	var order []string
	for _, e := range rep.Rankings {
		order = append(order, e.ModelRef)
	}
	assert.Equal(t, []string{"m1", "m3", "m2"}, order)
	assert.Equal(t, 1, rep.Rankings[0].Rank)
	assert.Nil(t, rep.Rankings[0].RankValue)

	var counts []int
	for i := 0; i < 3; i++ {
		ev := <-events
		require.Equal(t, domainjob.EventProgress, ev.Kind)
		assert.Equal(t, 3, ev.Progress.TotalCount)
		counts = append(counts, ev.Progress.CompletedCount)
	}
	assert.Equal(t, []int{1, 2, 3}, counts, "progress counts are strictly increasing")

	assert.Len(t, f.metrics.Named("batch.item"), 3)
}

func TestBatchExecutor_FailedModelIsIsolated(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()
	f.allValid()

	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(scripted(map[string]*model.EvalResult{
			"m1": {Success: true, Score: score(0.8)},
			"m2": {Success: true, Score: score(0.6)},
			"m4": {Success: true, Score: score(0.4)},
			"m5": {Success: true, Score: score(0.2)},
		}, map[string]error{
			"m3": errors.New("backend unavailable"),
		})).Times(10)
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil).Times(8)

	for _, parallel := range []bool{false, true} {
		res, err := f.exec.Run(ctx, batchJob("job-2", model.EvalOptions{Parallel: parallel},
			"m1", "m2", "m3", "m4", "m5"))
		require.NoError(t, err)

		rep := res.Report
		assert.Equal(t, 5, rep.Summary.TotalModels)
		assert.Equal(t, 4, rep.Summary.SuccessCount)
		assert.Equal(t, 1, rep.Summary.FailureCount)
		assert.InDelta(t, 80.0, rep.Summary.SuccessRate, 1e-9)
		require.Len(t, rep.Failed, 1)
		assert.Equal(t, "m3", rep.Failed[0].ModelRef)
		assert.Contains(t, rep.Failed[0].Error, "backend unavailable")
		assert.Len(t, rep.Rankings, 4)
	}
}

func TestBatchExecutor_SequentialKeepsSubmissionOrder(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []string
	)
	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req model.EvaluationRequest) (*model.EvalResult, error) {
			mu.Lock()
			seen = append(seen, req.Model.Ref)
			mu.Unlock()
			return &model.EvalResult{Success: true, Score: score(0.5)}, nil
		}).Times(3)
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	models := []model.ModelRef{
		model.MustParseModelRef("zeta"),
		model.MustParseModelRef("alpha"),
		model.MustParseModelRef("https://api.deepseek.com/v1/chat"),
	}
	results := f.exec.Execute(ctx, ExecuteRequest{JobID: "job-3", Models: models, DatasetRef: "ds1"})

	require.Len(t, results, 3)
	assert.Equal(t, "zeta", results[0].ModelRef)
	assert.Equal(t, "alpha", results[1].ModelRef)
	assert.Equal(t, "api", results[2].ModelType)
	assert.Equal(t, model.ProviderDeepSeek, results[2].Provider)
	assert.Equal(t, []string{"zeta", "alpha", "https://api.deepseek.com/v1/chat"}, seen)
}

func TestBatchExecutor_EvaluatorPanicBecomesFailedItem(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, model.EvaluationRequest) (*model.EvalResult, error) {
			panic("backend crashed")
		})

	results := f.exec.Execute(ctx, ExecuteRequest{
		JobID: "job-4", Models: []model.ModelRef{model.MustParseModelRef("m1")}, DatasetRef: "ds1",
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "evaluator panicked")
}

func TestBatchExecutor_Validate(t *testing.T) {
	ctx := context.Background()
	models := []model.ModelRef{model.MustParseModelRef("m1"), model.MustParseModelRef("m2")}

	t.Run("dataset unusable", func(t *testing.T) {
		f := newBatchFixture(t)
		f.datasets.EXPECT().ValidateDataset(gomock.Any(), "ds1").
			Return(model.ValidationResult{Valid: false, Error: "file missing"}, nil)

		_, _, err := f.exec.Validate(ctx, models, "ds1")
		require.Error(t, err)
		assert.True(t, apperrors.IsNoValidInputs(err))
		assert.Contains(t, err.Error(), "file missing")
	})

	t.Run("dataset validator error", func(t *testing.T) {
		f := newBatchFixture(t)
		f.datasets.EXPECT().ValidateDataset(gomock.Any(), "ds1").
			Return(model.ValidationResult{}, errors.New("storage offline"))

		_, _, err := f.exec.Validate(ctx, models, "ds1")
		require.Error(t, err)
		assert.True(t, apperrors.IsNoValidInputs(err))
	})

	t.Run("partial", func(t *testing.T) {
		f := newBatchFixture(t)
		f.datasets.EXPECT().ValidateDataset(gomock.Any(), "ds1").Return(model.ValidationResult{Valid: true}, nil)
		f.models.EXPECT().CheckModel(gomock.Any(), models[0]).Return(model.ValidationResult{Valid: true}, nil)
		f.models.EXPECT().CheckModel(gomock.Any(), models[1]).Return(model.ValidationResult{Valid: false}, nil)

		valid, invalid, err := f.exec.Validate(ctx, models, "ds1")
		require.NoError(t, err)
		assert.Equal(t, models[:1], valid)
		assert.Equal(t, []model.InvalidModel{{ModelRef: "m2", Reason: "validation failed"}}, invalid)
	})

	t.Run("none valid", func(t *testing.T) {
		f := newBatchFixture(t)
		f.datasets.EXPECT().ValidateDataset(gomock.Any(), "ds1").Return(model.ValidationResult{Valid: true}, nil)
		f.models.EXPECT().CheckModel(gomock.Any(), models[0]).
			Return(model.ValidationResult{Valid: false, Error: "weights not found"}, nil)
		f.models.EXPECT().CheckModel(gomock.Any(), models[1]).
			Return(model.ValidationResult{}, errors.New("connection refused"))

		valid, invalid, err := f.exec.Validate(ctx, models, "ds1")
		require.Error(t, err)
		assert.True(t, apperrors.IsNoValidInputs(err))
		assert.Empty(t, valid)
		require.Len(t, invalid, 2)
		assert.Equal(t, "weights not found", invalid[0].Reason)
		assert.Equal(t, "connection refused", invalid[1].Reason)
	})
}

func TestBatchExecutor_RunWithoutValidModelsNeverEvaluates(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	f.datasets.EXPECT().ValidateDataset(gomock.Any(), gomock.Any()).Return(model.ValidationResult{Valid: true}, nil)
	f.models.EXPECT().CheckModel(gomock.Any(), gomock.Any()).
		Return(model.ValidationResult{Valid: false, Error: "unknown model"}, nil).Times(2)
	// No Evaluate expectation: any call fails the test.

	res, err := f.exec.Run(ctx, batchJob("job-5", model.EvalOptions{Parallel: true}, "m1", "m2"))
	require.Error(t, err)
	assert.True(t, apperrors.IsNoValidInputs(err))
	require.NotNil(t, res)
	assert.Nil(t, res.Report)
	assert.Len(t, res.InvalidModels, 2)
}

func TestBatchExecutor_RunSkipsInvalidModels(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	f.datasets.EXPECT().ValidateDataset(gomock.Any(), gomock.Any()).Return(model.ValidationResult{Valid: true}, nil)
	f.models.EXPECT().CheckModel(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ref model.ModelRef) (model.ValidationResult, error) {
			return model.ValidationResult{Valid: ref.Ref != "broken"}, nil
		}).Times(2)
	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(scripted(map[string]*model.EvalResult{"m1": {Success: true, Score: score(0.4)}}, nil))
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	res, err := f.exec.Run(ctx, batchJob("job-6", model.EvalOptions{}, "m1", "broken"))
	require.NoError(t, err, "recorder failures never fail the batch")
	assert.Equal(t, 1, res.Report.Summary.TotalModels)
	assert.Equal(t, 1, res.Report.Summary.InvalidCount)
	assert.Equal(t, []model.InvalidModel{{ModelRef: "broken", Reason: "validation failed"}}, res.InvalidModels)
}

func TestBatchExecutor_RunRanksByExpression(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()
	f.allValid()

	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(scripted(map[string]*model.EvalResult{
			"m1": {Success: true, Score: score(0.9), Metrics: map[string]float64{"f1": 0.2}},
			"m2": {Success: true, Score: score(0.5), Metrics: map[string]float64{"f1": 0.8}},
		}, nil)).Times(2)
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	res, err := f.exec.Run(ctx, batchJob("job-7", model.EvalOptions{RankBy: "metrics.f1"}, "m1", "m2"))
	require.NoError(t, err)
	require.Len(t, res.Report.Rankings, 2)
	assert.Equal(t, "m2", res.Report.Rankings[0].ModelRef)
	require.NotNil(t, res.Report.Rankings[0].RankValue)
	assert.InDelta(t, 0.8, *res.Report.Rankings[0].RankValue, 1e-9)
}

func TestBatchExecutor_RecordsCarryJobAndDataset(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(&model.EvalResult{Success: true, Score: score(0.75), ExecutionTime: 1.25, MemoryUsage: 64}, nil)
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *model.EvaluationRecord) error {
			assert.Equal(t, "job-8", rec.JobID)
			assert.Equal(t, "m1", rec.ModelRef)
			assert.Equal(t, "ds9", rec.DatasetRef)
			assert.Equal(t, "local", rec.ModelType)
			require.NotNil(t, rec.Score)
			assert.InDelta(t, 0.75, *rec.Score, 1e-9)
			return nil
		})

	f.exec.Execute(ctx, ExecuteRequest{
		JobID: "job-8", Models: []model.ModelRef{model.MustParseModelRef("m1")}, DatasetRef: "ds9",
	})
}

func TestBatchExecutor_ParallelRespectsPoolWidth(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		running int
		peak    int
		calls   = map[string]int{}
	)
	started := make(chan string, 6)
	release := make(chan struct{})
	f.eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req model.EvaluationRequest) (*model.EvalResult, error) {
			mu.Lock()
			running++
			peak = max(peak, running)
			calls[req.Model.Ref]++
			mu.Unlock()

			started <- req.Model.Ref
			<-release

			mu.Lock()
			running--
			mu.Unlock()
			return &model.EvalResult{Success: true, Score: score(0.5)}, nil
		}).Times(6)
	f.recorder.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil).Times(6)

	refs := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
	models := make([]model.ModelRef, 0, len(refs))
	for _, r := range refs {
		models = append(models, model.MustParseModelRef(r))
	}

	done := make(chan []model.SubResult, 1)
	go func() {
		done <- f.exec.Execute(ctx, ExecuteRequest{
			JobID:      "job-width",
			Models:     models,
			DatasetRef: "ds1",
			Options:    model.EvalOptions{Parallel: true, MaxConcurrency: 2},
		})
	}()

	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("pool never filled")
		}
	}
	select {
	case ref := <-started:
		t.Fatalf("%s started while the pool was full", ref)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	var results []model.SubResult
	select {
	case results = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish")
	}

	require.Len(t, results, 6)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, peak)
	for _, r := range refs {
		assert.Equal(t, 1, calls[r], "model %s evaluated once", r)
	}
}
