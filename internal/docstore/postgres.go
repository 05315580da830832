package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a single `documents` table, keyed
// by source_id; this module has no tenant dimension.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, sourceID string) (*Record, error) {
	query := `
		SELECT source_id, repository, owner, path, sha, chunk_count, status, error_message, created_at, updated_at
		FROM documents
		WHERE source_id = $1
	`
	var rec Record
	err := s.pool.QueryRow(ctx, query, sourceID).Scan(
		&rec.SourceID, &rec.Repository, &rec.Owner, &rec.Path, &rec.SHA,
		&rec.ChunkCount, &rec.Status, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO documents (source_id, repository, owner, path, sha, chunk_count, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (source_id) DO UPDATE SET
			repository = EXCLUDED.repository,
			owner = EXCLUDED.owner,
			path = EXCLUDED.path,
			sha = EXCLUDED.sha,
			chunk_count = EXCLUDED.chunk_count,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query,
		rec.SourceID, rec.Repository, rec.Owner, rec.Path, rec.SHA,
		rec.ChunkCount, rec.Status, rec.Error)
	if err != nil {
		return fmt.Errorf("upsert document record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sourceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
