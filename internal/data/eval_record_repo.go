package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/data/pgxutil"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
)

// ErrRecordRequired is returned when a nil record is passed to CreateRecord.
var ErrRecordRequired = errors.New("evaluation record is required")

// EvaluationRecordRepo stores successful evaluation outcomes in evaluation_records.
type EvaluationRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewEvaluationRecordRepo creates a new EvaluationRecordRepo.
func NewEvaluationRecordRepo(db *sql.DB, cfg RepoConfig) *EvaluationRecordRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluationRecordRepo{DB: db, timeProvider: tp, logger: logger.With("component", "evaluation_record_repo")}
}

const evaluationRecordColumns = `id, job_id, model_ref, model_type, dataset_ref, score, metrics, execution_time, memory_usage, created_at`

// CreateRecord inserts rec, assigning an id and creation time when absent.
func (r *EvaluationRecordRepo) CreateRecord(ctx context.Context, rec *model.EvaluationRecord) error {
	if rec == nil {
		return ErrRecordRequired
	}
	prepareRecord(rec, r.timeProvider)
	metrics, err := json.Marshal(nonNilMetrics(rec.Metrics))
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	err = pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO evaluation_records (`+evaluationRecordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, rec.JobID, rec.ModelRef, rec.ModelType, rec.DatasetRef, rec.Score,
			metrics, rec.ExecutionTime, rec.MemoryUsage, rec.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// ListByJob returns the records of one job ordered by model reference.
func (r *EvaluationRecordRepo) ListByJob(ctx context.Context, jobID string) ([]*model.EvaluationRecord, error) {
	out := []*model.EvaluationRecord{}
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT `+evaluationRecordColumns+` FROM evaluation_records WHERE job_id = $1 ORDER BY model_ref`, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				rec     model.EvaluationRecord
				score   sql.NullFloat64
				metrics []byte
			)
			if scanErr := rows.Scan(
				&rec.ID, &rec.JobID, &rec.ModelRef, &rec.ModelType, &rec.DatasetRef, &score,
				&metrics, &rec.ExecutionTime, &rec.MemoryUsage, &rec.CreatedAt,
			); scanErr != nil {
				return scanErr
			}
			if score.Valid {
				v := score.Float64
				rec.Score = &v
			}
			if len(metrics) > 0 {
				if jsonErr := json.Unmarshal(metrics, &rec.Metrics); jsonErr != nil {
					return fmt.Errorf("decode metrics of record %s: %w", rec.ID, jsonErr)
				}
			}
			rec.CreatedAt = rec.CreatedAt.UTC()
			out = append(out, &rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// MemoryEvaluationRecordRepo is the in-process counterpart of EvaluationRecordRepo.
type MemoryEvaluationRecordRepo struct {
	mu      sync.RWMutex
	records map[string][]*model.EvaluationRecord
	clock   TimeProvider
}

// NewMemoryEvaluationRecordRepo creates an empty record store.
func NewMemoryEvaluationRecordRepo(tp TimeProvider) *MemoryEvaluationRecordRepo {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &MemoryEvaluationRecordRepo{records: make(map[string][]*model.EvaluationRecord), clock: tp}
}

// CreateRecord stores a copy of rec. A second record for the same job and model is a conflict.
func (m *MemoryEvaluationRecordRepo) CreateRecord(_ context.Context, rec *model.EvaluationRecord) error {
	if rec == nil {
		return ErrRecordRequired
	}
	prepareRecord(rec, m.clock)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records[rec.JobID] {
		if existing.ModelRef == rec.ModelRef {
			return apperrors.ConflictField("model_ref",
				fmt.Sprintf("record for %s in job %s already exists", rec.ModelRef, rec.JobID))
		}
	}
	cp := *rec
	m.records[rec.JobID] = append(m.records[rec.JobID], &cp)
	return nil
}

// ListByJob returns copies of the records of one job ordered by model reference.
func (m *MemoryEvaluationRecordRepo) ListByJob(_ context.Context, jobID string) ([]*model.EvaluationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.EvaluationRecord, 0, len(m.records[jobID]))
	for _, rec := range m.records[jobID] {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelRef < out[j].ModelRef })
	return out, nil
}

func prepareRecord(rec *model.EvaluationRecord, tp TimeProvider) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = tp.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
}

func nonNilMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

var (
	_ core.EvaluationRecorder     = (*EvaluationRecordRepo)(nil)
	_ core.EvaluationRecordReader = (*EvaluationRecordRepo)(nil)
	_ core.EvaluationRecorder     = (*MemoryEvaluationRecordRepo)(nil)
	_ core.EvaluationRecordReader = (*MemoryEvaluationRecordRepo)(nil)
)
