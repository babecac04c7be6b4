package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/core"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/data/pgxutil"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
)

// RepoConfig holds configuration options for the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// EvalJobRepo persists job records in the eval_jobs table.
type EvalJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewEvalJobRepo creates a new EvalJobRepo.
func NewEvalJobRepo(db *sql.DB, cfg RepoConfig) *EvalJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EvalJobRepo{DB: db, timeProvider: tp, logger: logger.With("component", "eval_job_repo")}
}

const evalJobColumns = `id, kind, status, payload, result, last_error, created_at, started_at, completed_at, updated_at`

// SaveJob inserts a new job record.
func (r *EvalJobRepo) SaveJob(ctx context.Context, job *model.JobRecord) error {
	if job == nil {
		return errors.New("job record is required")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}

	err = pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO eval_jobs (`+evalJobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			job.ID, string(job.Kind), string(job.Status), payload, result, job.LastError,
			job.CreatedAt.UTC(), utcPtr(job.StartedAt), utcPtr(job.CompletedAt), job.UpdatedAt.UTC(),
		)
		return execErr
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// LoadJob reads a job record by id.
func (r *EvalJobRepo) LoadJob(ctx context.Context, id string) (*model.JobRecord, error) {
	var job *model.JobRecord
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+evalJobColumns+` FROM eval_jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			if rowsErr := rows.Err(); rowsErr != nil {
				return rowsErr
			}
			return pgx.ErrNoRows
		}
		job, err = scanEvalJob(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// invalidTransition wraps model.ErrInvalidTransition with the offending statuses.
func invalidTransition(update model.JobStatusUpdate) error {
	return fmt.Errorf("%w: job %s %s -> %s", model.ErrInvalidTransition, update.ID, update.From, update.To)
}

// UpdateJobStatus applies a guarded transition. Transitions the job state machine
// forbids are rejected with model.ErrInvalidTransition. The row is only touched when its
// current status equals update.From; timestamps already set are never overwritten.
func (r *EvalJobRepo) UpdateJobStatus(ctx context.Context, update model.JobStatusUpdate) (bool, error) {
	if !update.From.CanTransitionTo(update.To) {
		return false, invalidTransition(update)
	}
	result, err := encodeResult(update.Result)
	if err != nil {
		return false, err
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.timeProvider.Now()
	}

	var applied bool
	err = pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE eval_jobs
			SET status       = $3,
			    result       = COALESCE($4, result),
			    last_error   = COALESCE($5, last_error),
			    started_at   = COALESCE(started_at, $6),
			    completed_at = COALESCE(completed_at, $7),
			    updated_at   = $8
			WHERE id = $1 AND status = $2`,
			update.ID, string(update.From), string(update.To), result, update.Error,
			utcPtr(update.StartedAt), utcPtr(update.CompletedAt), updatedAt.UTC(),
		)
		if execErr != nil {
			return execErr
		}
		applied = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	if !applied {
		r.logger.DebugContext(ctx, "status guard did not match",
			"job_id", update.ID, "from", update.From, "to", update.To)
	}
	return applied, nil
}

// ListJobs returns jobs filtered by kind and status, newest first unless OldestFirst is set.
func (r *EvalJobRepo) ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error) {
	query, args := buildEvalJobListQuery(opts)

	var out []*model.JobRecord
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, scanErr := scanEvalJob(rows)
			if scanErr != nil {
				return scanErr
			}
			out = append(out, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(condition string, value any) {
	b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
	b.args = append(b.args, value)
	b.argIdx++
}

func buildEvalJobListQuery(opts model.JobListOptions) (string, []any) {
	b := &jobFilterQueryBuilder{
		query:  `SELECT ` + evalJobColumns + ` FROM eval_jobs WHERE 1=1`,
		argIdx: 1,
	}
	if opts.Kind != nil {
		b.addFilter("kind", string(*opts.Kind))
	}
	if opts.Status != nil {
		b.addFilter("status", string(*opts.Status))
	}
	if opts.OldestFirst {
		b.query += " ORDER BY created_at ASC, id ASC"
	} else {
		b.query += " ORDER BY created_at DESC, id DESC"
	}
	if opts.Limit > 0 {
		b.query += fmt.Sprintf(" LIMIT $%d", b.argIdx)
		b.args = append(b.args, opts.Limit)
		b.argIdx++
	}
	if opts.Offset > 0 {
		b.query += fmt.Sprintf(" OFFSET $%d", b.argIdx)
		b.args = append(b.args, opts.Offset)
		b.argIdx++
	}
	return b.query, b.args
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanEvalJob(scanner jobRowScanner) (*model.JobRecord, error) {
	var (
		job                    model.JobRecord
		kind, status           string
		payload, result        []byte
		lastError              sql.NullString
		startedAt, completedAt sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID, &kind, &status, &payload, &result, &lastError,
		&job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = model.JobKind(kind)
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	if len(result) > 0 {
		var res model.JobResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", job.ID, err)
		}
		job.Result = &res
	}
	job.LastError = cloneNullableString(lastError)
	job.StartedAt = cloneNullableTime(startedAt)
	job.CompletedAt = cloneNullableTime(completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func encodeResult(res *model.JobResult) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ core.JobStore = (*EvalJobRepo)(nil)
