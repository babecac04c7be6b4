package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/mocks"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newProgressService(cache CacheRepository) *ProgressCacheService {
	return NewProgressCacheService(ProgressCacheServiceOptions{
		Cache:  cache,
		Config: ProgressCacheConfig{TTL: 10 * time.Minute},
		Now:    func() time.Time { return fixedNow },
	})
}

func encode(t *testing.T, snap model.ProgressSnapshot) []byte {
	t.Helper()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	return raw
}

func TestProgressCacheService_Put(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		snap    model.ProgressSnapshot
		setup   func(*testing.T, *mocks.MockCacheRepository)
		wantErr bool
	}{
		{
			name:    "missing job id",
			snap:    model.ProgressSnapshot{},
			setup:   func(*testing.T, *mocks.MockCacheRepository) {},
			wantErr: true,
		},
		{
			name: "stamps update time and stores with ttl",
			snap: model.ProgressSnapshot{JobID: "j1", CompletedCount: 1, TotalCount: 3},
			setup: func(t *testing.T, cache *mocks.MockCacheRepository) {
				want := encode(t, model.ProgressSnapshot{JobID: "j1", CompletedCount: 1, TotalCount: 3, UpdatedAt: fixedNow})
				cache.EXPECT().Set(gomock.Any(), "eval:progress:j1", want, 10*time.Minute).Return(nil)
			},
		},
		{
			name: "cache error surfaces",
			snap: model.ProgressSnapshot{JobID: "j1"},
			setup: func(_ *testing.T, cache *mocks.MockCacheRepository) {
				cache.EXPECT().Set(gomock.Any(), "eval:progress:j1", gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			cache := mocks.NewMockCacheRepository(ctrl)
			tt.setup(t, cache)

			err := newProgressService(cache).Put(context.Background(), tt.snap)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProgressCacheService_Get(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	svc := newProgressService(cache)
	ctx := context.Background()

	snap := model.ProgressSnapshot{JobID: "j1", CompletedCount: 2, TotalCount: 4, CurrentModel: "m2", UpdatedAt: fixedNow}
	cache.EXPECT().Get(gomock.Any(), "eval:progress:j1").Return(encode(t, snap), nil)
	cache.EXPECT().Get(gomock.Any(), "eval:progress:missing").Return(nil, nil)
	cache.EXPECT().Get(gomock.Any(), "eval:progress:bad").Return([]byte("{"), nil)

	got, err := svc.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, &snap, got)

	got, err = svc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = svc.Get(ctx, "bad")
	require.Error(t, err)

	got, err = svc.Get(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProgressCacheService_Invalidate(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	cache.EXPECT().Delete(gomock.Any(), "eval:progress:j1").Return(true, nil)

	svc := newProgressService(cache)
	require.NoError(t, svc.Invalidate(context.Background(), "j1"))
	require.NoError(t, svc.Invalidate(context.Background(), ""))
}

func TestProgressCacheService_HandlersFollowJobLifecycle(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	svc := newProgressService(cache)
	ctx := context.Background()
	h := svc.Handlers()

	progress := model.ProgressSnapshot{
		JobID: "j1", CompletedCount: 3, TotalCount: 3, CurrentModel: "m3",
		Status: model.JobStatusRunning, UpdatedAt: fixedNow,
	}
	done := progress
	done.Status = model.JobStatusCompleted
	done.CurrentModel = ""
	done.UpdatedAt = fixedNow.Add(time.Second)

	gomock.InOrder(
		cache.EXPECT().Set(gomock.Any(), "eval:progress:j1", encode(t, progress), gomock.Any()).Return(nil),
		cache.EXPECT().Get(gomock.Any(), "eval:progress:j1").Return(encode(t, progress), nil),
		cache.EXPECT().Set(gomock.Any(), "eval:progress:j1", encode(t, done), gomock.Any()).Return(nil),
	)

	require.NoError(t, h.OnProgress(ctx, job.ProgressEvent{
		JobID: "j1", CompletedCount: 3, TotalCount: 3, CurrentModel: "m3", At: fixedNow,
	}))
	require.NoError(t, h.OnComplete(ctx, job.CompleteEvent{JobID: "j1", At: fixedNow.Add(time.Second)}))
}

func TestProgressCacheService_ErrorWithoutPriorSnapshot(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	svc := newProgressService(cache)

	want := model.ProgressSnapshot{JobID: "j9", Status: model.JobStatusFailed, UpdatedAt: fixedNow}
	cache.EXPECT().Get(gomock.Any(), "eval:progress:j9").Return(nil, nil)
	cache.EXPECT().Set(gomock.Any(), "eval:progress:j9", encode(t, want), gomock.Any()).Return(nil)

	err := svc.Handlers().OnError(context.Background(), job.ErrorEvent{JobID: "j9", Err: errors.New("x"), At: fixedNow})
	require.NoError(t, err)
}
