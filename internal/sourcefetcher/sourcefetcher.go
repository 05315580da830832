// Package sourcefetcher enumerates and retrieves raw documents from a
// repository's Git tree, its public or private wiki, its issue tracker, or
// a diagram-summarization pipeline. One file per source
// type, one shared interface; the HTTP server picks the implementation from
// the /ingest request's source_type, and the IngestionOrchestrator works
// only through the Fetcher interface.
package sourcefetcher

import (
	"context"
	"errors"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

var (
	ErrNotFound     = errors.New("sourcefetcher: not found")
	ErrTooLarge     = errors.New("sourcefetcher: file too large")
	ErrAuthRequired = errors.New("sourcefetcher: authentication required")
	ErrRateLimited  = errors.New("sourcefetcher: rate limited")
	ErrTransient    = errors.New("sourcefetcher: transient failure")
	ErrMalformed    = errors.New("sourcefetcher: malformed source reference")
)

// MaxFileBytes is the per-file size ceiling; files larger than this are
// skipped with ErrTooLarge rather than fetched.
const MaxFileBytes = 5 * 1024 * 1024

// Fetcher lists document references for a source and fetches their bytes.
// list is lazy: it returns references (path, sha) without paying for the
// bytes, so an orchestrator can dedup against file_sha before fetching.
type Fetcher interface {
	List(ctx context.Context) ([]docmodel.DocumentRef, error)
	Fetch(ctx context.Context, ref docmodel.DocumentRef) (docmodel.Document, error)
}

// apiDefKeywords are the path substrings that mark a .yaml/.yml/.json file
// as an API definition rather than incidental config.
var apiDefKeywords = []string{
	"openapi", "swagger", "api", "spec", "specification", "rest", "graphql", "grpc",
}
