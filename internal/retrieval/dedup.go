package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

// tokenPattern pulls out word-like runs of three or more letters/digits,
// lowercased, as the unit deduplication compares on.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]{3,}`)

// deduplicateResults drops near-duplicate candidates by Jaccard similarity
// over word sets: candidates are considered highest-score-first, and a
// candidate is dropped once it overlaps threshold or more with a
// higher-scored candidate already accepted. The returned slice preserves
// results' original relative order.
func deduplicateResults(results []vectorstore.SearchResult, threshold float64) []vectorstore.SearchResult {
	if len(results) <= 1 {
		return results
	}

	tokens := make([]map[string]struct{}, len(results))
	for i, result := range results {
		tokens[i] = contentTokens(result.Content)
	}

	byScore := make([]int, len(results))
	for i := range byScore {
		byScore[i] = i
	}
	sort.SliceStable(byScore, func(a, b int) bool {
		return results[byScore[a]].Score > results[byScore[b]].Score
	})

	keep := make([]bool, len(results))
	var accepted []int
	for _, idx := range byScore {
		isDuplicate := false
		for _, other := range accepted {
			if jaccardOverlap(tokens[idx], tokens[other]) >= threshold {
				isDuplicate = true
				break
			}
		}
		if !isDuplicate {
			keep[idx] = true
			accepted = append(accepted, idx)
		}
	}

	deduplicated := make([]vectorstore.SearchResult, 0, len(accepted))
	for i, result := range results {
		if keep[i] {
			deduplicated = append(deduplicated, result)
		}
	}
	return deduplicated
}

func contentTokens(content string) map[string]struct{} {
	matches := tokenPattern.FindAllString(strings.ToLower(content), -1)
	tokens := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tokens[m] = struct{}{}
	}
	return tokens
}

func jaccardOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	smaller, larger := a, b
	if len(larger) < len(smaller) {
		smaller, larger = larger, smaller
	}
	intersection := 0
	for tok := range smaller {
		if _, ok := larger[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
