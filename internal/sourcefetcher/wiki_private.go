package sourcefetcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// WikiPrivateFetcher clones a repository's `.wiki.git` companion as a
// temporary directory and lists its Markdown files. The clone is kept for
// Fetch and deleted by Close. Each DocumentRef's SHA (and SourceID) is the
// git blob SHA of the entry.
type WikiPrivateFetcher struct {
	cloneURL string // token-bearing .wiki.git URL
	wikiName string

	mu      sync.Mutex
	dir     string
	repo    *git.Repository
	head    *object.Commit
}

func NewWikiPrivateFetcher(cloneURL, wikiName string) *WikiPrivateFetcher {
	return &WikiPrivateFetcher{cloneURL: cloneURL, wikiName: wikiName}
}

// List clones the wiki repository into a temp directory (if not already
// cloned) and enumerates its Markdown files with their git blob SHA.
func (f *WikiPrivateFetcher) List(ctx context.Context) ([]docmodel.DocumentRef, error) {
	if err := f.ensureClone(ctx); err != nil {
		return nil, err
	}

	tree, err := f.head.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var refs []docmodel.DocumentRef
	err = tree.Files().ForEach(func(file *object.File) error {
		if !strings.EqualFold(filepath.Ext(file.Name), ".md") {
			return nil
		}
		refs = append(refs, docmodel.DocumentRef{
			SourceID:   file.Hash.String(),
			SourceType: docmodel.SourceWikiPage,
			Path:       file.Name,
			SHA:        file.Hash.String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return refs, nil
}

// Fetch reads a single Markdown file's content by blob SHA from the clone.
func (f *WikiPrivateFetcher) Fetch(ctx context.Context, ref docmodel.DocumentRef) (docmodel.Document, error) {
	if err := f.ensureClone(ctx); err != nil {
		return docmodel.Document{}, err
	}

	blob, err := object.GetBlob(f.repo.Storer, plumbing.NewHash(ref.SHA))
	if err != nil {
		return docmodel.Document{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if blob.Size > MaxFileBytes {
		return docmodel.Document{}, ErrTooLarge
	}

	reader, err := blob.Reader()
	if err != nil {
		return docmodel.Document{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer reader.Close()

	raw := make([]byte, blob.Size)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return docmodel.Document{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	return docmodel.Document{
		SourceID:   ref.SourceID,
		SourceType: docmodel.SourceWikiPage,
		Path:       ref.Path,
		RawBytes:   raw,
		SHA:        ref.SHA,
		FetchedAt:  time.Now(),
		WikiName:   f.wikiName,
	}, nil
}

func (f *WikiPrivateFetcher) ensureClone(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repo != nil {
		return nil
	}

	dir, err := os.MkdirTemp("", "docrag-wiki-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   f.cloneURL,
		Depth: 1,
	})
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	headRef, err := repo.Head()
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	commit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	f.dir = dir
	f.repo = repo
	f.head = commit
	return nil
}

// Close deletes the local clone, if one was made.
func (f *WikiPrivateFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dir == "" {
		return nil
	}
	err := os.RemoveAll(f.dir)
	f.dir = ""
	f.repo = nil
	f.head = nil
	return err
}
