// Package ingestion implements the IngestionOrchestrator: one document at
// a time, fetch → dedup → extract → chunk → embed → upsert, with a
// memory-pressure guard and bounded retry on transient errors.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ragcore-dev/docrag/internal/chunker"
	"github.com/ragcore-dev/docrag/internal/docmodel"
	"github.com/ragcore-dev/docrag/internal/docstore"
	"github.com/ragcore-dev/docrag/internal/embedder"
	"github.com/ragcore-dev/docrag/internal/extractor"
	"github.com/ragcore-dev/docrag/internal/sourcefetcher"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

// errDimensionMismatch reports whether err is the embedder's or the vector
// store's dimension-mismatch sentinel. Unlike other per-document failures,
// this one is never recoverable by moving on to the next document: every
// chunk in the request is produced against the same configured dimension,
// so Ingest aborts the whole call rather than limping through the rest of
// refs with vectors that can never be written.
func errDimensionMismatch(err error) bool {
	return errors.Is(err, embedder.ErrDimensionMismatch) || errors.Is(err, vectorstore.ErrDimensionMismatch)
}

// Config holds the orchestrator's tunables.
type Config struct {
	MaxFileBytes       int64
	MaxContentChars    int
	EmbedBatchSize     int
	MemWarnThreshold   float64
	MemCriticalThresh  float64
	MemWarnWaitSeconds int
	MemDropWaitSeconds int
	FetchRetryBase     time.Duration
	FetchRetryCap      time.Duration
	FetchRetryMaxTries int
}

func (c Config) withDefaults() Config {
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = sourcefetcher.MaxFileBytes
	}
	if c.MaxContentChars <= 0 {
		c.MaxContentChars = 100_000
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 8
	}
	if c.MemWarnThreshold <= 0 {
		c.MemWarnThreshold = 0.85
	}
	if c.MemCriticalThresh <= 0 {
		c.MemCriticalThresh = 0.90
	}
	if c.MemWarnWaitSeconds <= 0 {
		c.MemWarnWaitSeconds = 60
	}
	if c.MemDropWaitSeconds <= 0 {
		c.MemDropWaitSeconds = 30
	}
	if c.FetchRetryBase <= 0 {
		c.FetchRetryBase = time.Second
	}
	if c.FetchRetryCap <= 0 {
		c.FetchRetryCap = 30 * time.Second
	}
	if c.FetchRetryMaxTries <= 0 {
		c.FetchRetryMaxTries = 3
	}
	return c
}

// FailedDoc records one document's unrecoverable ingestion failure.
type FailedDoc struct {
	SourceID string `json:"source_id"`
	Path     string `json:"path"`
	Reason   string `json:"reason"`
}

// Overall report status values: per-document failures are recorded in
// Failed, not propagated, and the report's overall status reflects whether
// any occurred.
const (
	ReportStatusCompleted           = "completed"
	ReportStatusCompletedWithErrors = "completed_with_errors"
)

// Report is the aggregate outcome of one Ingest call.
type Report struct {
	Status             string      `json:"status"`
	FilesConsidered    int         `json:"files_considered"`
	FilesFetched       int         `json:"files_fetched"`
	FilesSkipped       int         `json:"files_skipped"`
	FilesDroppedMemory int         `json:"files_dropped_memory"`
	ChunksCreated      int         `json:"chunks_created"`
	VectorsUpserted    int         `json:"vectors_upserted"`
	Failed             []FailedDoc `json:"failed"`
}

// Orchestrator runs the per-document ingestion pipeline sequentially.
type Orchestrator struct {
	docs     docstore.Store
	store    vectorstore.VectorStore
	emb      embedder.Embedder
	chunker  *chunker.Chunker
	memProbe MemoryProbe
	cfg      Config
}

func New(docs docstore.Store, store vectorstore.VectorStore, emb embedder.Embedder, chunk *chunker.Chunker, memProbe MemoryProbe, cfg Config) *Orchestrator {
	if memProbe == nil {
		memProbe = SystemMemoryProbe{}
	}
	return &Orchestrator{docs: docs, store: store, emb: emb, chunker: chunk, memProbe: memProbe, cfg: cfg.withDefaults()}
}

// Ingest fetches every reference fetcher.List returns and processes each
// sequentially through the pipeline.
func (o *Orchestrator) Ingest(ctx context.Context, fetcher sourcefetcher.Fetcher) (Report, error) {
	refs, err := fetcher.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing source: %w", err)
	}

	report := Report{FilesConsidered: len(refs)}
	for _, ref := range refs {
		if err := o.ingestOne(ctx, fetcher, ref, &report); err != nil {
			slog.Error("ingest aborted: embedding dimension mismatch", "source_id", ref.SourceID, "error", err)
			return report, fmt.Errorf("ingesting %s: %w", ref.SourceID, err)
		}
		forceGC()
	}
	report.Status = ReportStatusCompleted
	if len(report.Failed) > 0 {
		report.Status = ReportStatusCompletedWithErrors
	}
	return report, nil
}

// ingestOne runs the pipeline for a single reference. It returns a non-nil
// error only for failures that abort the whole Ingest call (a dimension
// mismatch between the configured embedder/vector store and the data being
// written); every other failure is recorded into report.Failed and
// swallowed so the remaining refs still get a chance to ingest.
func (o *Orchestrator) ingestOne(ctx context.Context, fetcher sourcefetcher.Fetcher, ref docmodel.DocumentRef, report *Report) error {
	// Step 1: memory guard.
	if dropped := o.guardMemoryBeforeDocument(ctx); dropped {
		report.FilesDroppedMemory++
		return nil
	}

	doc, err := o.fetchWithRetry(ctx, fetcher, ref)
	if err != nil {
		report.Failed = append(report.Failed, FailedDoc{SourceID: ref.SourceID, Path: ref.Path, Reason: err.Error()})
		return nil
	}
	report.FilesFetched++

	// Step 2: size guard.
	if int64(len(doc.RawBytes)) > o.cfg.MaxFileBytes {
		report.FilesSkipped++
		return nil
	}

	// Step 3: SHA dedup.
	sha := contentSHA(doc.RawBytes)
	skip, err := o.dedupCheck(ctx, ref.SourceID, sha)
	if err != nil {
		report.Failed = append(report.Failed, FailedDoc{SourceID: ref.SourceID, Path: ref.Path, Reason: err.Error()})
		return nil
	}
	if skip {
		report.FilesSkipped++
		return nil
	}

	// Step 4: extract, chunk.
	text, err := extractor.Extract(doc)
	if err != nil {
		report.Failed = append(report.Failed, FailedDoc{SourceID: ref.SourceID, Path: ref.Path, Reason: err.Error()})
		return nil
	}
	if len(text) > o.cfg.MaxContentChars {
		text = text[:o.cfg.MaxContentChars]
	}

	chunks, err := o.chunker.Chunk(ctx, text, chunker.Meta{
		SourceID:   doc.SourceID,
		SourceType: doc.SourceType,
		Repository: doc.Repository,
		Owner:      doc.Owner,
		Path:       doc.Path,
		FileType:   string(doc.SourceType),
		URL:        doc.URL,
		FileSHA:    sha,
		WikiName:   doc.WikiName,
		IssueNum:   doc.IssueNumber,
		IssueState: doc.IssueState,
	})
	if err != nil {
		report.Failed = append(report.Failed, FailedDoc{SourceID: ref.SourceID, Path: ref.Path, Reason: err.Error()})
		return nil
	}
	if len(chunks) == 0 {
		report.FilesSkipped++
		return nil
	}
	report.ChunksCreated += len(chunks)

	// Step 5 & 6: embed and upsert in batches.
	upserted, err := o.embedAndUpsert(ctx, chunks)
	report.VectorsUpserted += upserted
	if err != nil {
		if errDimensionMismatch(err) {
			return fmt.Errorf("dimension mismatch: %w", err)
		}
		report.Failed = append(report.Failed, FailedDoc{SourceID: ref.SourceID, Path: ref.Path, Reason: err.Error()})
		return nil
	}

	if err := o.docs.Upsert(ctx, &docstore.Record{
		SourceID:   ref.SourceID,
		Repository: doc.Repository,
		Owner:      doc.Owner,
		Path:       doc.Path,
		SHA:        sha,
		ChunkCount: len(chunks),
		Status:     docstore.StatusIngested,
		UpdatedAt:  time.Now(),
	}); err != nil {
		report.Failed = append(report.Failed, FailedDoc{SourceID: ref.SourceID, Path: ref.Path, Reason: fmt.Sprintf("recording bookkeeping: %v", err)})
	}
	return nil
}

// dedupCheck reports whether sourceID's content is unchanged: if an
// existing record for this source_id has the same sha, skip; otherwise
// delete its existing vectors before the new ones are upserted.
func (o *Orchestrator) dedupCheck(ctx context.Context, sourceID, sha string) (bool, error) {
	rec, err := o.docs.Get(ctx, sourceID)
	if err == docstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.SHA == sha {
		return true, nil
	}
	if err := o.store.Delete(ctx, vectorstore.Filter{"source_id": sourceID}); err != nil {
		return false, fmt.Errorf("deleting stale vectors: %w", err)
	}
	return false, nil
}

// embedAndUpsert batches chunks through the embedder and vector store,
// forcing a GC cycle after each batch and honoring the memory guard
// before each one.
func (o *Orchestrator) embedAndUpsert(ctx context.Context, chunks []docmodel.Chunk) (int, error) {
	upserted := 0
	for start := 0; start < len(chunks); start += o.cfg.EmbedBatchSize {
		end := start + o.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if aborted := o.guardMemoryBeforeBatch(ctx); aborted {
			return upserted, fmt.Errorf("aborted remaining batches: memory critical")
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := o.emb.EmbedBatch(ctx, texts)
		if err != nil {
			return upserted, fmt.Errorf("embedding batch: %w", err)
		}

		records := make([]vectorstore.Record, len(batch))
		for i, c := range batch {
			records[i] = vectorstore.Record{
				ID:       c.ChunkID,
				Vector:   vectors[i],
				Content:  c.Text,
				Metadata: c.Metadata(),
			}
		}
		if err := o.store.Upsert(ctx, records); err != nil {
			return upserted, fmt.Errorf("upserting batch: %w", err)
		}
		upserted += len(records)

		texts = nil
		vectors = nil
		records = nil
		forceGC()
	}
	return upserted, nil
}

// guardMemoryBeforeDocument forces a GC, then waits up to 30s for
// utilization to drop below the critical threshold; if it does not, the
// document is dropped.
func (o *Orchestrator) guardMemoryBeforeDocument(ctx context.Context) bool {
	util, err := o.memProbe.UtilizationFraction()
	if err != nil || util <= o.cfg.MemCriticalThresh {
		return false
	}

	forceGC()
	deadline := time.Now().Add(time.Duration(o.cfg.MemDropWaitSeconds) * time.Second)
	for time.Now().Before(deadline) {
		util, err = o.memProbe.UtilizationFraction()
		if err != nil || util <= o.cfg.MemCriticalThresh {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(time.Second):
		}
	}
	return true
}

// guardMemoryBeforeBatch aborts the remaining batches above the critical
// threshold; it waits up to 60s for utilization to drop when in the warn
// band (85-90%).
func (o *Orchestrator) guardMemoryBeforeBatch(ctx context.Context) bool {
	util, err := o.memProbe.UtilizationFraction()
	if err != nil {
		return false
	}
	if util > o.cfg.MemCriticalThresh {
		return true
	}
	if util <= o.cfg.MemWarnThreshold {
		return false
	}

	deadline := time.Now().Add(time.Duration(o.cfg.MemWarnWaitSeconds) * time.Second)
	for time.Now().Before(deadline) {
		util, err = o.memProbe.UtilizationFraction()
		if err != nil || util <= o.cfg.MemWarnThreshold {
			return false
		}
		if util > o.cfg.MemCriticalThresh {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(time.Second):
		}
	}
	return false
}

// fetchWithRetry retries transient fetch errors with exponential backoff,
// making at most FetchRetryMaxTries attempts in all.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, fetcher sourcefetcher.Fetcher, ref docmodel.DocumentRef) (docmodel.Document, error) {
	var doc docmodel.Document
	op := func() error {
		var err error
		doc, err = fetcher.Fetch(ctx, ref)
		if err != nil && isTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.FetchRetryBase
	bo.MaxInterval = o.cfg.FetchRetryCap

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(o.cfg.FetchRetryMaxTries-1)), ctx))
	return doc, err
}

func isTransient(err error) bool {
	return errors.Is(err, sourcefetcher.ErrTransient) || errors.Is(err, sourcefetcher.ErrRateLimited)
}

func contentSHA(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
