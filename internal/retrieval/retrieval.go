// Package retrieval implements context retrieval for a question: embed the
// query, search the vector store, apply content-policy and relevance
// filtering, and assemble citations.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ragcore-dev/docrag/internal/docmodel"
	"github.com/ragcore-dev/docrag/internal/embedder"
	"github.com/ragcore-dev/docrag/internal/reranker"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

// Config tunes a Service's retrieval parameters.
type Config struct {
	TopK               int
	TopKRaw            int
	RelevanceThreshold float32
	Blocklist          []string
	DedupThreshold     float64
	RerankerEnabled    bool
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.TopKRaw <= 0 {
		c.TopKRaw = 10
	}
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.70
	}
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = 0.7
	}
	return c
}

// Service retrieves context text and citations for a query.
type Service struct {
	embedder embedder.Embedder
	store    vectorstore.VectorStore
	reranker reranker.Reranker
	cfg      Config
}

func New(emb embedder.Embedder, store vectorstore.VectorStore, rr reranker.Reranker, cfg Config) *Service {
	return &Service{embedder: emb, store: store, reranker: rr, cfg: cfg.withDefaults()}
}

// Result is one retrieved chunk's context text and citation metadata.
type Result struct {
	ContextText string
	Citations   []docmodel.Citation
}

// Retrieve embeds the query, searches for top_k_raw candidates, applies
// the content-policy blocklist and relevance-threshold tiering with
// fallback, then trims to top_k.
func (s *Service) Retrieve(ctx context.Context, query string, filter vectorstore.Filter) (Result, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := s.store.Search(ctx, vector, s.cfg.TopKRaw, filter)
	if err != nil {
		return Result{}, fmt.Errorf("searching vector store: %w", err)
	}

	candidates = filterBlocklist(candidates, s.cfg.Blocklist)
	candidates = deduplicateResults(candidates, s.cfg.DedupThreshold)

	if s.reranker != nil && s.cfg.RerankerEnabled && len(candidates) > 0 {
		reranked, err := s.reranker.Rerank(ctx, query, candidates, len(candidates))
		if err == nil && len(reranked) > 0 {
			candidates = make([]vectorstore.SearchResult, len(reranked))
			for i, r := range reranked {
				candidates[i] = r.SearchResult
				candidates[i].Score = r.RerankerScore
			}
		}
	}

	selected := tierByRelevance(candidates, s.cfg.RelevanceThreshold, s.cfg.TopK)

	return Result{
		ContextText: buildContextText(selected),
		Citations:   buildCitations(selected),
	}, nil
}

// filterBlocklist drops candidates whose repository metadata matches any
// configured blocklist pattern via case-insensitive substring match.
func filterBlocklist(results []vectorstore.SearchResult, blocklist []string) []vectorstore.SearchResult {
	if len(blocklist) == 0 {
		return results
	}
	var kept []vectorstore.SearchResult
	for _, r := range results {
		repo := strings.ToLower(r.Metadata["repository"])
		blocked := false
		for _, pattern := range blocklist {
			if strings.Contains(repo, strings.ToLower(pattern)) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, r)
		}
	}
	return kept
}

// tierByRelevance applies the primary/fallback relevance tiering and trims
// to topK.
func tierByRelevance(candidates []vectorstore.SearchResult, threshold float32, topK int) []vectorstore.SearchResult {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	var primary []vectorstore.SearchResult
	for _, c := range candidates {
		if c.Score >= threshold {
			primary = append(primary, c)
		}
	}

	selected := primary
	if len(selected) == 0 && len(candidates) > 0 {
		selected = candidates
	}
	if len(selected) > topK {
		selected = selected[:topK]
	}
	return selected
}

func buildContextText(results []vectorstore.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n")
}

func buildCitations(results []vectorstore.SearchResult) []docmodel.Citation {
	citations := make([]docmodel.Citation, len(results))
	for i, r := range results {
		citations[i] = docmodel.Citation{
			Repository: r.Metadata["repository"],
			Path:       r.Metadata["path"],
			URL:        r.Metadata["url"],
			Score:      r.Score,
			Snippet:    snippet(r.Content, 200),
		}
	}
	return citations
}

func snippet(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
