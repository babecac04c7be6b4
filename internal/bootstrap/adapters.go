package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/FlashBlank7/ModelsEvalSystem/config"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/adapters/evaluator"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/data"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
)

// recordStore is the write and read side of evaluation record persistence.
type recordStore interface {
	core.EvaluationRecorder
	core.EvaluationRecordReader
}

// storeAdapters groups the persistence adapters backing the scheduling core.
type storeAdapters struct {
	Jobs    core.JobStore
	Records recordStore
	Cache   core.CacheRepository
}

// buildStores picks Postgres or in-memory stores for jobs and records, and Redis or
// in-memory storage for progress snapshots.
func buildStores(cfg *config.AppConfig, db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) (storeAdapters, error) {
	var out storeAdapters

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		out.Jobs = data.NewMemoryJobStore(data.RealTimeProvider{})
		out.Records = data.NewMemoryEvaluationRecordRepo(data.RealTimeProvider{})
	default:
		if db == nil {
			return out, errors.New("postgres store selected but no database connection")
		}
		repoCfg := data.RepoConfig{Logger: logger}
		out.Jobs = data.NewEvalJobRepo(db, repoCfg)
		out.Records = data.NewEvaluationRecordRepo(db, repoCfg)
	}

	if redisClient != nil {
		out.Cache = data.NewRedisCacheRepo(redisClient)
	} else {
		out.Cache = data.NewMemoryCacheRepo(data.RealTimeProvider{})
	}

	return out, nil
}

// buildEvaluator loads the catalog and returns the simulated backend.
func buildEvaluator(cfg config.EvaluatorConfig, logger *slog.Logger) (*evaluator.Simulated, error) {
	catalog, err := evaluator.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load evaluation catalog: %w", err)
	}
	if cfg.CatalogFile != "" {
		logger.Info("evaluation catalog loaded",
			"path", cfg.CatalogFile,
			"datasets", len(catalog.Datasets),
			"models", len(catalog.Models),
		)
	}
	return evaluator.NewSimulated(evaluator.SimulatedOptions{
		Catalog: catalog,
		Latency: cfg.SimulatedLatency,
		Logger:  logger,
	}), nil
}

// buildMetrics creates the StatsD sink. A dial failure disables metrics rather than
// failing startup.
func buildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("statsd disabled", "address", cfg.StatsdAddress, "error", err)
		client, _ = statsd.NewClient(statsd.Config{Prefix: cfg.Prefix, Logger: logger})
	}
	if client.Enabled() {
		logger.Info("statsd metrics enabled", "address", cfg.StatsdAddress, "prefix", cfg.Prefix)
	}
	return client
}

type dbHealth struct{ db *sql.DB }

func (h dbHealth) Health(ctx context.Context) error { return h.db.PingContext(ctx) }
