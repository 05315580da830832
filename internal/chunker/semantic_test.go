package chunker

import (
	"strings"
	"testing"
)

// buildFencedDoc returns paraLen 'a's, an opening ```go fence, fenceLen
// 'x's of fence body, a closing fence, and paraLen 'b's, with no other
// whitespace breaks — so a boundary search landing inside the fence body
// has nothing to fall back on except the fence's own line breaks.
func buildFencedDoc(paraLen, fenceLen int) string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("a", paraLen))
	sb.WriteString("```go\n")
	sb.WriteString(strings.Repeat("x", fenceLen))
	sb.WriteString("\n```")
	sb.WriteString(strings.Repeat("b", paraLen))
	return sb.String()
}

// TestFindSectionBoundary_PrefersFenceClose checks that a boundary search
// landing inside a fenced code block is pushed out to just past the
// block's closing marker instead of cutting the block in half.
func TestFindSectionBoundary_PrefersFenceClose(t *testing.T) {
	doc := buildFencedDoc(900, 400)
	text := []rune(doc)

	cut := findSectionBoundary(text, 1000) // lands inside the x filler
	if insideFence(text, cut) {
		t.Fatalf("boundary at %d still falls inside the fence", cut)
	}

	wantMin := strings.LastIndex(doc, "```") + len("```")
	if cut < wantMin {
		t.Errorf("expected boundary >= %d (past the closing fence), got %d", wantMin, cut)
	}
}

// TestFindSectionBoundary_NoFenceUnaffected checks that text with no fence
// markers is boundary-adjusted identically to the plain paragraph search.
func TestFindSectionBoundary_NoFenceUnaffected(t *testing.T) {
	text := []rune(strings.Repeat("a", 900) + "\n\n" + strings.Repeat("b", 900))
	got := findSectionBoundary(text, 950)
	want := 902 // just past the "\n\n" at offset 900
	if got != want {
		t.Errorf("findSectionBoundary() = %d, want %d", got, want)
	}
}

func TestInsideFence(t *testing.T) {
	text := []rune("before```\ncode\n```after")
	openEnd := strings.Index(string(text), "```") + 3
	if !insideFence(text, openEnd+2) {
		t.Error("expected position inside the fence to report true")
	}
	afterClose := strings.LastIndex(string(text), "```") + 3
	if insideFence(text, afterClose) {
		t.Error("expected position after the closing fence to report false")
	}
}
