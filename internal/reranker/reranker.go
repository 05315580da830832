// Package reranker re-scores a retrieval candidate set by having an LLM
// judge query/document relevance directly, rather than relying solely on
// vector-similarity distance.
//
// This is strictly an accuracy/latency trade: every call costs one extra
// LLM round trip and roughly doubles token spend, so it is wired behind
// retrieval's RerankerEnabled flag rather than always-on.
package reranker

import (
	"context"

	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

// ScoredResult is a vectorstore.SearchResult carrying the reranker's
// independent relevance judgment alongside the original vector score.
type ScoredResult struct {
	vectorstore.SearchResult
	RerankerScore float32
}

// Reranker re-orders a candidate set by relevance, returning at most topK
// of them.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []vectorstore.SearchResult, topK int) ([]ScoredResult, error)
}
