// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
	"errors"
)

// SparseVector represents a sparse vector with indices and values, used by
// the optional hybrid dense+sparse search path.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Record is a single vector plus its chunk ID, embedding, content, and flat
// metadata — what IngestionOrchestrator upserts.
type Record struct {
	ID           string
	Vector       []float32
	SparseVector *SparseVector
	Content      string
	Metadata     map[string]string
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// Filter is a conjunction of metadata-equality clauses.
type Filter map[string]string

// Error kinds per the taxonomy: DimensionMismatch, NotFound, Transient,
// InvalidFilter.
var (
	ErrDimensionMismatch = errors.New("vectorstore: dimension mismatch")
	ErrNotFound          = errors.New("vectorstore: not found")
	ErrTransient         = errors.New("vectorstore: transient failure")
	ErrInvalidFilter     = errors.New("vectorstore: invalid filter")
)

// VectorStore defines the interface for vector storage operations against a
// single, process-wide collection with no tenant dimension.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not already exist.
	EnsureCollection(ctx context.Context, dimension int) error

	// EnsureHybridCollection creates a collection with both dense and sparse
	// vector support, for callers that upsert records carrying a SparseVector.
	EnsureHybridCollection(ctx context.Context, dimension int) error

	// Upsert inserts or updates records in the vector store.
	Upsert(ctx context.Context, records []Record) error

	// Search performs similarity search using dense vectors only.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error)

	// HybridSearch performs hybrid search combining dense and sparse vectors
	// with RRF fusion.
	HybridSearch(ctx context.Context, dense []float32, sparse *SparseVector, topK int, filter Filter) ([]SearchResult, error)

	// Delete removes records matching filter (e.g. {"source_id": id} to drop
	// every chunk belonging to one document, for re-ingest dedup).
	Delete(ctx context.Context, filter Filter) error

	// DeleteByIDs removes specific records by their IDs.
	DeleteByIDs(ctx context.Context, ids []string) error
}
