package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ragcore-dev/docrag/internal/llm"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

const (
	defaultModel         = "llama3.2"
	defaultPreviewChars  = 500
	defaultFallbackScore = 0.5
)

// LLMReranker scores every candidate against the query in a single LLM
// call: the model sees query and documents together, which catches
// relevance signal a cosine-distance-only ranking misses.
type LLMReranker struct {
	llmClient    llm.LLM
	model        string
	previewChars int
}

type LLMRerankerOption func(*LLMReranker)

func WithModel(model string) LLMRerankerOption {
	return func(r *LLMReranker) { r.model = model }
}

// WithPreviewChars bounds how much of each candidate's content is shown to
// the model, to keep the scoring prompt within the model's context budget.
func WithPreviewChars(n int) LLMRerankerOption {
	return func(r *LLMReranker) {
		if n > 0 {
			r.previewChars = n
		}
	}
}

func NewLLMReranker(llmClient llm.LLM, opts ...LLMRerankerOption) *LLMReranker {
	r := &LLMReranker{llmClient: llmClient, model: defaultModel, previewChars: defaultPreviewChars}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type docScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float32 `json:"score"`
	Reason   string  `json:"reason,omitempty"`
}

type scoreBatch struct {
	Scores []docScore `json:"scores"`
}

// Rerank asks the LLM to score every candidate against query in one call,
// sorts by the returned score descending, and truncates to topK. If the
// LLM's response can't be parsed, candidates keep their original vector
// score instead of failing the whole request.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []vectorstore.SearchResult, topK int) ([]ScoredResult, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if topK > len(results) {
		topK = len(results)
	}

	opts := llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0,
		MaxTokens:   1024,
	}
	response, err := r.llmClient.Generate(ctx, r.buildPrompt(query, results), opts)
	if err != nil {
		return nil, fmt.Errorf("reranking call: %w", err)
	}

	scores, err := r.parseScores(response, len(results))
	if err != nil {
		return truncate(withVectorScores(results), topK), nil
	}

	scored := make([]ScoredResult, len(results))
	for i, result := range results {
		scored[i] = ScoredResult{SearchResult: result, RerankerScore: scores[i]}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].RerankerScore > scored[j].RerankerScore })

	return truncate(scored, topK), nil
}

func (r *LLMReranker) buildPrompt(query string, results []vectorstore.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("You are a relevance scoring system. Score each document's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments to score:\n")

	for i, result := range results {
		content := result.Content
		if len(content) > r.previewChars {
			content = content[:r.previewChars] + "..."
		}
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, content)
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant documents should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

var jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseScores extracts a score per document index from the model's
// response, defaulting any index the model didn't mention to
// defaultFallbackScore and clamping every score to [0, 1].
func (r *LLMReranker) parseScores(response string, numResults int) ([]float32, error) {
	response = strings.TrimSpace(response)
	if m := jsonBlockPattern.FindStringSubmatch(response); m != nil {
		response = m[1]
	}

	var batch scoreBatch
	if err := json.Unmarshal([]byte(response), &batch); err != nil {
		return nil, fmt.Errorf("parsing rerank response: %w", err)
	}

	scores := make([]float32, numResults)
	for i := range scores {
		scores[i] = defaultFallbackScore
	}
	for _, s := range batch.Scores {
		if s.DocIndex < 0 || s.DocIndex >= numResults {
			continue
		}
		scores[s.DocIndex] = clamp01(s.Score)
	}
	return scores, nil
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func withVectorScores(results []vectorstore.SearchResult) []ScoredResult {
	scored := make([]ScoredResult, len(results))
	for i, result := range results {
		scored[i] = ScoredResult{SearchResult: result, RerankerScore: result.Score}
	}
	return scored
}

func truncate(scored []ScoredResult, topK int) []ScoredResult {
	if len(scored) > topK {
		return scored[:topK]
	}
	return scored
}

var _ Reranker = (*LLMReranker)(nil)
