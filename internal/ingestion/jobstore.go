package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ragcore-dev/docrag/internal/sourcefetcher"
)

// ErrJobNotFound is returned when a requested job record does not exist.
var ErrJobNotFound = errors.New("ingestion: job not found")

// Job status values.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is the bookkeeping record for one Ingest call. The HTTP server has no
// job-status route; JobStore.GetByID and List read the records back.
type Job struct {
	ID           uuid.UUID
	SourceType   string
	Repository   string
	Status       string
	Report       Report
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// JobStore persists Job records as a single table with no tenant scoping
// and no per-page rows: Report already aggregates per-document outcomes, so
// a separate child table of crawled pages would only duplicate it.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	Update(ctx context.Context, job *Job) error
	List(ctx context.Context, status string, limit, offset int) ([]*Job, int, error)
}

// RunTracked runs fetcher through Ingest while maintaining a Job record in
// store: created in JobStatusRunning before the run starts, updated to
// JobStatusCompleted or JobStatusFailed with the final Report once it
// returns. It blocks until Ingest returns.
func RunTracked(ctx context.Context, o *Orchestrator, store JobStore, sourceType, repository string, fetcher sourcefetcher.Fetcher) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New(),
		SourceType: sourceType,
		Repository: repository,
		Status:     JobStatusRunning,
		CreatedAt:  now,
		StartedAt:  &now,
	}
	if err := store.Create(ctx, job); err != nil {
		return nil, err
	}

	report, err := o.Ingest(ctx, fetcher)
	completed := time.Now()
	job.Report = report
	job.CompletedAt = &completed
	if err != nil {
		job.Status = JobStatusFailed
		job.ErrorMessage = err.Error()
	} else {
		job.Status = JobStatusCompleted
	}

	if updateErr := store.Update(ctx, job); updateErr != nil {
		return job, updateErr
	}
	return job, err
}
