package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlashBlank7/ModelsEvalSystem/config"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "queue worker only",
			modes: []config.ServiceMode{config.ServiceModeQueueWorker},
			want:  1,
		},
		{
			name:  "all services enabled",
			modes: config.ValidServiceModes(),
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}
			assert.Equal(t, tt.want, errorChannelCapacity(enabled))
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	assert.Equal(t, 1, errorChannelBufferSize(nil))
	assert.Equal(t, 2, errorChannelBufferSize(map[config.ServiceMode]bool{config.ServiceModeHTTP: true}))
	assert.Equal(t, 3, errorChannelBufferSize(map[config.ServiceMode]bool{
		config.ServiceModeHTTP:        true,
		config.ServiceModeQueueWorker: true,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig(services string) *config.AppConfig {
	cfg := &config.AppConfig{
		Store:    config.StoreConfig{Driver: config.StoreDriverMemory},
		Services: services,
		Queue: config.QueueConfig{
			MaxConcurrency:      2,
			StopTimeout:         time.Second,
			HistoryDefaultLimit: 20,
		},
		Progress:  config.ProgressConfig{CacheTTL: time.Minute, SubscriberBuffer: 8},
		Evaluator: config.EvaluatorConfig{HistogramBins: 5},
	}
	cfg.Sanitize()
	return cfg
}

func TestNewServices_RequiresConfig(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{})
	require.Error(t, err)
}

func TestNewServices_PostgresWithoutDatabase(t *testing.T) {
	cfg := memoryConfig("http")
	cfg.Store.Driver = config.StoreDriverPostgres

	_, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database connection")
}

func TestNewServices_MemoryStoreRunsBatch(t *testing.T) {
	cfg := memoryConfig("http,queue-worker")
	svc, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	require.NotNil(t, svc.Queue)
	require.NotNil(t, svc.Scheduling)
	assert.Contains(t, svc.Readiness, "cache")
	assert.NotContains(t, svc.Readiness, "database")
	assert.False(t, svc.Metrics.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Queue.Start(ctx))
	defer func() { _ = svc.Queue.Stop(context.Background()) }()

	rec, err := svc.Scheduling.Submit(ctx, model.SubmitRequest{
		Kind:       model.JobKindBatch,
		Name:       "smoke",
		ModelRefs:  []string{"bert-base", "https://api.openai.com/v1/chat"},
		DatasetRef: "squad",
		Options:    model.EvalOptions{Parallel: true},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, getErr := svc.Scheduling.GetStatus(ctx, rec.ID)
		return getErr == nil && got.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	got, err := svc.Scheduling.GetStatus(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.Report)
	assert.Equal(t, 2, got.Result.Report.Summary.TotalModels)
	assert.Equal(t, 2, got.Result.Report.Summary.SuccessCount)

	records, err := svc.Scheduling.Records(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	snap, err := svc.Scheduling.Progress(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, snap.Status)
}

func TestRunServicesWithShutdown_QueueWorkerStopsOnSignal(t *testing.T) {
	cfg := memoryConfig("queue-worker")
	svc, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)

	signals := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- RunServicesWithShutdown(&ServiceOrchestrationConfig{
			Config:   cfg,
			Services: svc,
			Logger:   discardLogger(),
			Signals:  signals,
		})
	}()

	require.Eventually(t, func() bool {
		return svc.Queue.Status().WorkerAlive
	}, 2*time.Second, 10*time.Millisecond)

	signals <- os.Interrupt

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("services did not stop")
	}
	assert.False(t, svc.Queue.Status().WorkerAlive)
}

func TestRunServicesWithShutdown_InvalidServices(t *testing.T) {
	cfg := memoryConfig("rules-engine")
	err := RunServicesWithShutdown(&ServiceOrchestrationConfig{Config: cfg, Logger: discardLogger()})
	require.Error(t, err)
}

func TestRouterServices_NilBus(t *testing.T) {
	rs := routerServices(ServiceContainer{}, discardLogger())
	assert.Nil(t, rs.Events)
}

func TestGetEnabledServices_Sorted(t *testing.T) {
	cfg := memoryConfig("queue-worker,http")
	assert.Equal(t, []string{"http", "queue-worker"}, GetEnabledServices(cfg))
	require.NoError(t, ValidateServiceConfig(cfg))
}
