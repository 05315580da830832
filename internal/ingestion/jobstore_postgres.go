package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJobStore implements JobStore against a single `ingest_jobs`
// table. Report is stored as a JSON blob rather than as separate counter
// columns, since it already carries every per-document outcome a caller
// needs.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

func (s *PostgresJobStore) Create(ctx context.Context, job *Job) error {
	reportJSON, err := json.Marshal(job.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	query := `
		INSERT INTO ingest_jobs (id, source_type, repository, status, report, error_message, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.SourceType, job.Repository, job.Status, reportJSON,
		job.ErrorMessage, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("create ingest job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, source_type, repository, status, report, error_message, created_at, started_at, completed_at
		FROM ingest_jobs
		WHERE id = $1
	`
	var job Job
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.SourceType, &job.Repository, &job.Status, &reportJSON,
		&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get ingest job: %w", err)
	}
	if err := json.Unmarshal(reportJSON, &job.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &job, nil
}

func (s *PostgresJobStore) Update(ctx context.Context, job *Job) error {
	reportJSON, err := json.Marshal(job.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	query := `
		UPDATE ingest_jobs
		SET status = $2, report = $3, error_message = $4, started_at = $5, completed_at = $6
		WHERE id = $1
	`
	result, err := s.pool.Exec(ctx, query, job.ID, job.Status, reportJSON, job.ErrorMessage, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("update ingest job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) List(ctx context.Context, status string, limit, offset int) ([]*Job, int, error) {
	countQuery := `SELECT COUNT(*) FROM ingest_jobs`
	listQuery := `
		SELECT id, source_type, repository, status, report, error_message, created_at, started_at, completed_at
		FROM ingest_jobs
	`
	var args []any
	if status != "" {
		countQuery += ` WHERE status = $1`
		listQuery += ` WHERE status = $1`
		args = append(args, status)
	}
	listQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ingest jobs: %w", err)
	}

	rows, err := s.pool.Query(ctx, listQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ingest jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		var reportJSON []byte
		if err := rows.Scan(&job.ID, &job.SourceType, &job.Repository, &job.Status, &reportJSON,
			&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
			return nil, 0, fmt.Errorf("scan ingest job: %w", err)
		}
		if err := json.Unmarshal(reportJSON, &job.Report); err != nil {
			return nil, 0, fmt.Errorf("unmarshal report: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, total, nil
}

var _ JobStore = (*PostgresJobStore)(nil)
