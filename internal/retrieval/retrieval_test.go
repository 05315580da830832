package retrieval

import (
	"context"
	"testing"

	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

type stubEmbedder struct{ vector []float32 }

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s stubEmbedder) Dimension() int    { return len(s.vector) }
func (s stubEmbedder) ModelName() string { return "stub" }

type stubStore struct {
	results []vectorstore.SearchResult
}

func (s stubStore) EnsureCollection(ctx context.Context, dimension int) error       { return nil }
func (s stubStore) EnsureHybridCollection(ctx context.Context, dimension int) error { return nil }
func (s stubStore) Upsert(ctx context.Context, records []vectorstore.Record) error  { return nil }
func (s stubStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return s.results, nil
}
func (s stubStore) HybridSearch(ctx context.Context, dense []float32, sparse *vectorstore.SparseVector, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return s.results, nil
}
func (s stubStore) Delete(ctx context.Context, filter vectorstore.Filter) error    { return nil }
func (s stubStore) DeleteByIDs(ctx context.Context, ids []string) error           { return nil }

func TestRetrieve_BlocklistDropsMatchingRepository(t *testing.T) {
	store := stubStore{results: []vectorstore.SearchResult{
		{ID: "1", Content: "alpha service handles requests", Score: 0.9, Metadata: map[string]string{"repository": "internal-secrets"}},
		{ID: "2", Content: "beta service handles billing", Score: 0.8, Metadata: map[string]string{"repository": "docs-site"}},
	}}
	svc := New(stubEmbedder{vector: []float32{0.1}}, store, nil, Config{Blocklist: []string{"secrets"}})

	got, err := svc.Retrieve(context.Background(), "how does billing work", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Citations) != 1 || got.Citations[0].Repository != "docs-site" {
		t.Fatalf("expected only docs-site citation, got %+v", got.Citations)
	}
}

func TestRetrieve_FallbackWhenNoneAboveThreshold(t *testing.T) {
	store := stubStore{results: []vectorstore.SearchResult{
		{ID: "1", Content: "one two three", Score: 0.3, Metadata: map[string]string{"repository": "docs"}},
		{ID: "2", Content: "four five six", Score: 0.2, Metadata: map[string]string{"repository": "docs"}},
	}}
	svc := New(stubEmbedder{vector: []float32{0.1}}, store, nil, Config{RelevanceThreshold: 0.7, TopK: 3})

	got, err := svc.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Citations) != 2 {
		t.Fatalf("expected fallback to return all candidates, got %d", len(got.Citations))
	}
}

func TestRetrieve_EmptyWhenNoCandidates(t *testing.T) {
	store := stubStore{results: nil}
	svc := New(stubEmbedder{vector: []float32{0.1}}, store, nil, Config{})

	got, err := svc.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Citations) != 0 || got.ContextText != "" {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestDeduplicateResults_DropsNearDuplicates(t *testing.T) {
	results := []vectorstore.SearchResult{
		{ID: "1", Content: "the quick brown fox jumps over the lazy dog", Score: 0.9},
		{ID: "2", Content: "the quick brown fox jumps over the lazy cat", Score: 0.8},
		{ID: "3", Content: "completely unrelated content about databases", Score: 0.7},
	}
	got := deduplicateResults(results, 0.7)
	if len(got) != 2 {
		t.Fatalf("expected near-duplicate dropped, got %d results: %+v", len(got), got)
	}
}
