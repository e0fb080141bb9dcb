package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `
id, owner_id, tool, provider, status, input_snapshot, provider_handle,
outputs, error_detail, cost, created_at, updated_at, completed_at, deleted_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	snapshot, err := json.Marshal(job.InputSnapshot)
	if err != nil {
		return err
	}
	var errDetail []byte
	if job.Error != nil {
		errDetail, err = json.Marshal(job.Error)
		if err != nil {
			return err
		}
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO generation_jobs (id, owner_id, tool, provider, status, input_snapshot, provider_handle,
                             outputs, error_detail, cost, created_at, updated_at, completed_at, deleted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  provider_handle = EXCLUDED.provider_handle,
  outputs = EXCLUDED.outputs,
  error_detail = EXCLUDED.error_detail,
  updated_at = EXCLUDED.updated_at,
  completed_at = EXCLUDED.completed_at,
  deleted_at = EXCLUDED.deleted_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.OwnerID, job.Tool, job.Provider, job.Status, snapshot, nullStr(job.ProviderHandle),
		job.Outputs, errDetail, job.Cost, job.CreatedAt, job.UpdatedAt, job.CompletedAt, job.DeletedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, tool model.ToolKind, limit int) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM generation_jobs
 WHERE owner_id = $1
   AND ($2 = '' OR tool = $2)
   AND deleted_at IS NULL
 ORDER BY created_at DESC
 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, ownerID, string(tool), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) FindStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM generation_jobs
 WHERE status = 'processing' AND updated_at < $1
 ORDER BY updated_at
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, repository.NoTX, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) SoftDelete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE generation_jobs SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job       model.Job
		statusStr string
		toolStr   string
		snapshot  []byte
		errDetail []byte
		handle    *string
	)
	err := row.Scan(
		&job.ID, &job.OwnerID, &toolStr, &job.Provider, &statusStr, &snapshot, &handle,
		&job.Outputs, &errDetail, &job.Cost, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt, &job.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.JobStatus(statusStr)
	job.Tool = model.ToolKind(toolStr)
	if handle != nil {
		job.ProviderHandle = *handle
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &job.InputSnapshot); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(errDetail) > 0 {
		var detail model.ErrorDetail
		if err := json.Unmarshal(errDetail, &detail); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		job.Error = &detail
	}
	return &job, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
