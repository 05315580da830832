package extractor

import (
	"strings"
	"testing"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

func TestExtract_MarkdownStripsImages(t *testing.T) {
	doc := docmodel.Document{
		SourceType: docmodel.SourceGitMarkdown,
		RawBytes:   []byte("Alpha deploys to region X.\n\n![diagram](diagram.png)\n\nMore text."),
	}
	got, err := Extract(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "![diagram]") {
		t.Errorf("expected image markup stripped, got %q", got)
	}
	if !strings.Contains(got, "Alpha deploys to region X.") {
		t.Errorf("expected body text preserved, got %q", got)
	}
}

func TestExtract_APIDefPassesThrough(t *testing.T) {
	raw := `{"openapi": "3.0.0"}`
	doc := docmodel.Document{SourceType: docmodel.SourceGitAPIDef, RawBytes: []byte(raw)}
	got, err := Extract(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != raw {
		t.Errorf("expected API def passed through unchanged, got %q", got)
	}
}

func TestExtract_IssuePassesThrough(t *testing.T) {
	raw := "Title: bug\n---\nBody text\n---\nComment: fixed in v2"
	doc := docmodel.Document{SourceType: docmodel.SourceIssue, RawBytes: []byte(raw)}
	got, err := Extract(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != raw {
		t.Errorf("expected issue text passed through unchanged, got %q", got)
	}
}

func TestStripImages_HTMLImgTag(t *testing.T) {
	text := `Before <img src="x.png" alt="x"> After`
	got := stripImages(text)
	if strings.Contains(got, "<img") {
		t.Errorf("expected <img> tag stripped, got %q", got)
	}
}

func TestStripImages_ReferenceStyle(t *testing.T) {
	text := "See [diagram][1] for details.\n\n[1]: diagram.png \"Diagram\"\n"
	got := stripImages(text)
	if strings.Contains(got, "[1]: diagram.png") {
		t.Errorf("expected reference-style image definition stripped, got %q", got)
	}
}
