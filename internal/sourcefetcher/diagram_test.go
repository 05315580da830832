package sourcefetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

type stubSummarizer struct {
	summaries map[string]string
	err       error
}

func (s stubSummarizer) Summarize(ctx context.Context, imagePath string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.summaries[imagePath], nil
}

func TestDiagramFetcher_ListAndFetch(t *testing.T) {
	f := NewDiagramFetcher(stubSummarizer{summaries: map[string]string{"arch.png": "three services behind a load balancer"}}, "docs", "acme", []string{"arch.png"})

	refs, err := f.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].SourceType != docmodel.SourceDiagramSummary {
		t.Fatalf("unexpected refs: %+v", refs)
	}

	doc, err := f.Fetch(context.Background(), refs[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc.RawBytes) != "three services behind a load balancer" {
		t.Errorf("unexpected summary: %q", doc.RawBytes)
	}
}

func TestDiagramFetcher_FetchPropagatesSummarizerError(t *testing.T) {
	f := NewDiagramFetcher(stubSummarizer{err: errors.New("ocr down")}, "docs", "acme", []string{"arch.png"})
	refs, _ := f.List(context.Background())
	if _, err := f.Fetch(context.Background(), refs[0]); err == nil {
		t.Error("expected error to propagate from summarizer")
	}
}
