package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

func TestRunTracked_RecordsCompletedJobWithReport(t *testing.T) {
	store := &stubVectorStore{}
	o, _ := newOrchestrator(t, store, lowMemProbe{util: 0.1})
	jobs := NewMemoryJobStore()

	fetcher := stubFetcher{
		refs: []docmodel.DocumentRef{{SourceID: "doc-1", Path: "README.md", SourceType: docmodel.SourceGitMarkdown}},
		docs: map[string]docmodel.Document{
			"doc-1": {SourceID: "doc-1", SourceType: docmodel.SourceGitMarkdown, Path: "README.md", RawBytes: []byte("hello world, this is some content.")},
		},
	}

	job, err := RunTracked(context.Background(), o, jobs, "git", "acme/docs", fetcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("expected status %q, got %q", JobStatusCompleted, job.Status)
	}
	if job.Report.FilesFetched != 1 {
		t.Errorf("expected report to reflect 1 file fetched, got %+v", job.Report)
	}

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("expected job to be retrievable: %v", err)
	}
	if got.SourceType != "git" || got.Repository != "acme/docs" {
		t.Errorf("unexpected job fields: %+v", got)
	}
}

func TestRunTracked_RecordsFailedJobOnListError(t *testing.T) {
	store := &stubVectorStore{}
	o, _ := newOrchestrator(t, store, lowMemProbe{util: 0.1})
	jobs := NewMemoryJobStore()

	job, err := RunTracked(context.Background(), o, jobs, "git", "acme/docs", stubFetcher{err: errors.New("listing boom")})
	if err == nil {
		t.Fatal("expected an error to propagate")
	}
	if job.Status != JobStatusFailed {
		t.Errorf("expected status %q, got %q", JobStatusFailed, job.Status)
	}
	if job.ErrorMessage == "" {
		t.Error("expected error message to be recorded")
	}
}

func TestMemoryJobStore_ListFiltersByStatus(t *testing.T) {
	store := NewMemoryJobStore()
	if err := store.Create(context.Background(), &Job{ID: uuid.New(), Status: JobStatusCompleted}); err != nil {
		t.Fatalf("creating job: %v", err)
	}
	if err := store.Create(context.Background(), &Job{ID: uuid.New(), Status: JobStatusFailed}); err != nil {
		t.Fatalf("creating job: %v", err)
	}

	completed, total, err := store.List(context.Background(), JobStatusCompleted, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(completed) != 1 {
		t.Errorf("expected 1 completed job, got total=%d len=%d", total, len(completed))
	}
}
