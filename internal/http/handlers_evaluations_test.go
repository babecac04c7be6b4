package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/mocks"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/service"
)

type routerFixture struct {
	handler http.Handler
	queue   *mocks.MockJobQueue
	bus     *job.ProgressBus
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	bus := job.NewProgressBus(job.ProgressBusOptions{})
	svc := service.MustNewSchedulingService(service.SchedulingServiceOptions{Queue: queue})
	return routerFixture{
		handler: NewRouter(RouterServices{Scheduling: svc, Events: bus}),
		queue:   queue,
		bus:     bus,
	}
}

func (f routerFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmitEvaluation(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newRouterFixture(t)
		f.queue.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req model.SubmitRequest) (*model.JobRecord, error) {
				assert.Equal(t, model.JobKindBatch, req.Kind)
				assert.Equal(t, []string{"llama-7b", "https://api.openai.com/v1"}, req.ModelRefs)
				assert.True(t, req.Options.Parallel)
				return &model.JobRecord{ID: "job-1", Kind: req.Kind, Status: model.JobStatusPending}, nil
			})

		rec := f.do(t, http.MethodPost, "/api/evaluations",
			`{"kind":"batch","model_refs":["llama-7b","https://api.openai.com/v1"],"dataset_ref":"mmlu","options":{"parallel":true}}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		var got model.JobRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, model.JobStatusPending, got.Status)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newRouterFixture(t)
		rec := f.do(t, http.MethodPost, "/api/evaluations", `{"kind":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_json", decodeError(t, rec).Error)
	})

	t.Run("unknown field", func(t *testing.T) {
		f := newRouterFixture(t)
		rec := f.do(t, http.MethodPost, "/api/evaluations", `{"kind":"single","gpu":true}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad rank expression names the field", func(t *testing.T) {
		f := newRouterFixture(t)
		rec := f.do(t, http.MethodPost, "/api/evaluations",
			`{"kind":"batch","model_refs":["m1"],"dataset_ref":"ds","options":{"rank_by":"metrics.["}}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "validation", body.Error)
		assert.Equal(t, "options.rank_by", body.Field)
	})
}

func TestEvaluationErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: apperrors.NotFoundf("job x not found"), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "conflict", err: apperrors.Conflictf("job x is running, not queued"), wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "no valid inputs", err: apperrors.NoValidInputs("no valid models"), wantStatus: http.StatusUnprocessableEntity, wantCode: "no_valid_inputs"},
		{name: "persistence", err: apperrors.Persistence(errors.New("conn refused"), "load job"), wantStatus: http.StatusServiceUnavailable, wantCode: "persistence"},
		{name: "unclassified", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			f.queue.EXPECT().RunNow(gomock.Any(), "x").Return(nil, tt.err)

			rec := f.do(t, http.MethodPost, "/api/evaluations/x/execute", "")

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Error)
			if tt.wantStatus >= http.StatusInternalServerError {
				assert.NotContains(t, body.Message, "conn refused")
				assert.NotContains(t, body.Message, "boom")
			}
		})
	}
}

func TestGetAndCancelEvaluation(t *testing.T) {
	f := newRouterFixture(t)
	f.queue.EXPECT().Get(gomock.Any(), "job-1").Return(&model.JobRecord{ID: "job-1", Status: model.JobStatusRunning}, nil)
	f.queue.EXPECT().Cancel(gomock.Any(), "job-1").Return(false, nil)
	f.queue.EXPECT().Cancel(gomock.Any(), "job-2").Return(true, nil)

	rec := f.do(t, http.MethodGet, "/api/evaluations/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	rec = f.do(t, http.MethodPost, "/api/evaluations/job-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/evaluations/job-2/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())
}

func TestListEvaluations(t *testing.T) {
	t.Run("passes filters", func(t *testing.T) {
		f := newRouterFixture(t)
		batch := model.JobKindBatch
		running := model.JobStatusRunning
		f.queue.EXPECT().List(gomock.Any(), model.JobListOptions{
			Kind: &batch, Status: &running, Limit: 5, Offset: 10, OldestFirst: true,
		}).Return([]*model.JobRecord{{ID: "job-1"}}, nil)

		rec := f.do(t, http.MethodGet, "/api/evaluations?kind=batch&status=RUNNING&limit=5&offset=10&order=asc", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var jobs []*model.JobRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-1", jobs[0].ID)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		f := newRouterFixture(t)
		rec := f.do(t, http.MethodGet, "/api/evaluations?status=paused", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "status", decodeError(t, rec).Field)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		f := newRouterFixture(t)
		f.queue.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil)
		rec := f.do(t, http.MethodGet, "/api/evaluations", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})
}

func TestBatchHistory(t *testing.T) {
	f := newRouterFixture(t)
	batch := model.JobKindBatch
	f.queue.EXPECT().List(gomock.Any(), model.JobListOptions{Kind: &batch, Limit: service.DefaultHistoryLimit}).
		Return([]*model.JobRecord{{ID: "b2"}, {ID: "b1"}}, nil)

	rec := f.do(t, http.MethodGet, "/api/batches/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []*model.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "b2", jobs[0].ID)
}

func TestQueueEndpoints(t *testing.T) {
	f := newRouterFixture(t)
	f.queue.EXPECT().Status().Return(model.QueueStatus{QueueSize: 3, Processing: true, CurrentJobID: "job-1", WorkerAlive: true})
	f.queue.EXPECT().Purge(gomock.Any()).Return(3, nil)

	rec := f.do(t, http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue_size":3,"processing":true,"current_job_id":"job-1","worker_alive":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/queue/purge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":3}`, rec.Body.String())
}

func TestEvaluationRecords(t *testing.T) {
	f := newRouterFixture(t)
	f.queue.EXPECT().Get(gomock.Any(), "job-1").Return(&model.JobRecord{ID: "job-1"}, nil)

	rec := f.do(t, http.MethodGet, "/api/evaluations/job-1/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestEvaluationProgress(t *testing.T) {
	models := []model.ModelRef{model.MustParseModelRef("m1"), model.MustParseModelRef("m2")}

	t.Run("snapshot from record", func(t *testing.T) {
		f := newRouterFixture(t)
		f.queue.EXPECT().Get(gomock.Any(), "job-1").Return(&model.JobRecord{
			ID: "job-1", Status: model.JobStatusCompleted, Payload: model.JobPayload{Models: models},
		}, nil)

		rec := f.do(t, http.MethodGet, "/api/evaluations/job-1/progress", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var snap model.ProgressSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, 2, snap.TotalCount)
		assert.Equal(t, 2, snap.CompletedCount)
	})

	t.Run("wait returns after the next event", func(t *testing.T) {
		f := newRouterFixture(t)
		gomock.InOrder(
			f.queue.EXPECT().Get(gomock.Any(), "job-2").Return(&model.JobRecord{
				ID: "job-2", Status: model.JobStatusRunning, Payload: model.JobPayload{Models: models},
			}, nil),
			f.queue.EXPECT().Get(gomock.Any(), "job-2").Return(&model.JobRecord{
				ID: "job-2", Status: model.JobStatusCompleted, Payload: model.JobPayload{Models: models},
			}, nil),
		)

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					f.bus.PublishComplete(context.Background(), job.CompleteEvent{JobID: "job-2"})
				}
			}
		}()

		start := time.Now()
		rec := f.do(t, http.MethodGet, "/api/evaluations/job-2/progress?wait=2", "")
		close(done)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	})

	t.Run("wait on a finished job answers at once", func(t *testing.T) {
		f := newRouterFixture(t)
		f.queue.EXPECT().Get(gomock.Any(), "job-3").Return(&model.JobRecord{
			ID: "job-3", Status: model.JobStatusFailed, Payload: model.JobPayload{Models: models},
		}, nil)

		rec := f.do(t, http.MethodGet, "/api/evaluations/job-3/progress?wait=30", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"failed"`)
	})
}
