package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FlashBlank7/ModelsEvalSystem/config"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/adapters/jobrunner"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	domainjob "github.com/FlashBlank7/ModelsEvalSystem/internal/domain/job"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	httpx "github.com/FlashBlank7/ModelsEvalSystem/internal/http"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Queue      *jobrunner.WorkQueue
	Scheduling *service.SchedulingService
	Batch      *service.BatchExecutor
	Evaluation *service.EvaluationService
	Bus        *domainjob.ProgressBus
	Progress   *core.ProgressCacheService
	Cache      core.CacheRepository
	Metrics    *statsd.Client
	// Readiness lists the dependencies reported by /readyz.
	Readiness map[string]httpx.HealthChecker
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Required for the postgres store
	RedisClient redis.UniversalClient // Optional: in-memory progress cache when nil
	Logger      *slog.Logger
}

// NewServices wires the scheduling core: stores, progress bus, evaluation backend,
// executors and the work queue with its handlers registered.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stores, err := buildStores(cfg, deps.DB, deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	metrics := buildMetrics(cfg.Observability.Metrics, logger)

	bus := domainjob.NewProgressBus(domainjob.ProgressBusOptions{
		Logger:           logger,
		SubscriberBuffer: cfg.Progress.SubscriberBuffer,
	})
	progress := core.NewProgressCacheService(core.ProgressCacheServiceOptions{
		Cache:  stores.Cache,
		Config: core.ProgressCacheConfig{TTL: cfg.Progress.CacheTTL},
	})
	bus.Register("progress_cache", progress.Handlers())

	backend, err := buildEvaluator(cfg.Evaluator, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	pool, err := domainjob.NewPoolPolicy(cfg.Queue.MaxConcurrency)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create pool policy: %w", err)
	}

	batch := service.MustNewBatchExecutor(service.BatchExecutorOptions{
		Evaluator:  backend,
		Validators: service.BatchValidators{Dataset: backend, Model: backend},
		Config:     service.BatchConfig{Pool: pool, Bins: cfg.Evaluator.HistogramBins},
		Bus:        bus,
		Recorder:   stores.Records,
		Metrics:    metrics,
		Logger:     logger,
	})

	evaluation, err := service.NewEvaluationService(service.EvaluationServiceOptions{
		Evaluator: backend,
		Recorder:  stores.Records,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create evaluation service: %w", err)
	}

	queue, err := jobrunner.NewWorkQueue(jobrunner.QueueOptions{
		Store:       stores.Jobs,
		Bus:         bus,
		Logger:      logger,
		Metrics:     metrics,
		StopTimeout: cfg.Queue.StopTimeout,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create work queue: %w", err)
	}
	queue.Handle(model.JobKindBatch, batch.Run)
	queue.Handle(model.JobKindSingle, evaluation.Run)
	queue.Handle(model.JobKindAPI, evaluation.Run)

	scheduling := service.MustNewSchedulingService(service.SchedulingServiceOptions{
		Queue:        queue,
		Progress:     progress,
		Records:      stores.Records,
		Logger:       logger,
		HistoryLimit: cfg.Queue.HistoryDefaultLimit,
	})

	readiness := map[string]httpx.HealthChecker{"cache": stores.Cache}
	if deps.DB != nil {
		readiness["database"] = dbHealth{db: deps.DB}
	}

	return ServiceContainer{
		Queue:      queue,
		Scheduling: scheduling,
		Batch:      batch,
		Evaluation: evaluation,
		Bus:        bus,
		Progress:   progress,
		Cache:      stores.Cache,
		Metrics:    metrics,
		Readiness:  readiness,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// Signals overrides the OS shutdown signals; tests close it to stop.
	Signals <-chan os.Signal
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newQueueWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeQueueWorker,
		name: "queue worker",
		start: func(ctx context.Context) error {
			queue := deps.cfg.Services.Queue
			if queue == nil {
				return errors.New("work queue not configured")
			}
			return queue.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newQueueWorkerBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	if enabledServices[config.ServiceModeHTTP] && !enabledServices[config.ServiceModeQueueWorker] {
		logger.Warn("queue worker disabled; submitted jobs stay pending until a worker starts")
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		signals:     cfg.Signals,
		httpServer:  result.HTTPServer,
		httpTimeout: cfg.Config.HTTP.ShutdownTimeout,
		bus:         cfg.Services.Bus,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	signals     <-chan os.Signal
	httpServer  *http.Server
	httpTimeout time.Duration
	bus         *domainjob.ProgressBus
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := cfg.signals
	if quit == nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		quit = sigCh
	}

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(cfg.ctx),
			Server:  cfg.httpServer,
			Timeout: cfg.httpTimeout,
			Bus:     cfg.bus,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
