package sourcefetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func testSignature() *object.Signature {
	return &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)}
}

// newLocalBareWiki builds a temporary working repo with one commit
// containing a Markdown file, returning its filesystem path for use as a
// WikiPrivateFetcher clone URL (go-git supports local filesystem clones).
func newLocalBareWiki(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Home.md"), []byte("# Home\n\nwelcome"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add("Home.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := wt.Commit("seed wiki", &git.CommitOptions{
		Author: testSignature(),
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return dir
}

func TestWikiPrivateFetcher_ListAndFetch(t *testing.T) {
	dir := newLocalBareWiki(t)

	f := NewWikiPrivateFetcher(dir, "TestWiki")
	defer f.Close()

	refs, err := f.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].Path != "Home.md" {
		t.Fatalf("unexpected refs: %+v", refs)
	}

	doc, err := f.Fetch(context.Background(), refs[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc.RawBytes) != "# Home\n\nwelcome" {
		t.Errorf("unexpected content: %q", doc.RawBytes)
	}
	if doc.WikiName != "TestWiki" {
		t.Errorf("expected WikiName propagated, got %q", doc.WikiName)
	}
}
