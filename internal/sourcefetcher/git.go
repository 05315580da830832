package sourcefetcher

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// GitConfig tunes the tree fetcher's fallback directory walk (default
// max depth 10, max 500 files, 100ms inter-call delay).
type GitConfig struct {
	MaxDepth  int
	MaxFiles  int
	WalkDelay time.Duration
}

func (c GitConfig) withDefaults() GitConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 10
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 500
	}
	if c.WalkDelay <= 0 {
		c.WalkDelay = 100 * time.Millisecond
	}
	return c
}

// GitFetcher lists and fetches Markdown and API-definition files from a
// repository's default branch, preferring a single recursive tree call and
// falling back to a bounded directory walk.
type GitFetcher struct {
	client     *github.Client
	owner      string
	repo       string
	ref        string
	cfg        GitConfig
	walkLimiter *rate.Limiter
}

// NewGitFetcher constructs a GitFetcher for owner/repo at ref (empty ref
// means the repository's default branch).
func NewGitFetcher(client *github.Client, owner, repo, ref string, cfg GitConfig) *GitFetcher {
	cfg = cfg.withDefaults()
	return &GitFetcher{
		client:      client,
		owner:       owner,
		repo:        repo,
		ref:         ref,
		cfg:         cfg,
		walkLimiter: rate.NewLimiter(rate.Every(cfg.WalkDelay), 1),
	}
}

func (f *GitFetcher) resolveRef(ctx context.Context) (string, error) {
	if f.ref != "" {
		return f.ref, nil
	}
	repo, resp, err := f.client.Repositories.Get(ctx, f.owner, f.repo)
	if err != nil {
		return "", classifyGitHubError(resp, err)
	}
	return repo.GetDefaultBranch(), nil
}

// List enumerates Markdown and API-definition file references via the
// repository's recursive tree, falling back to a depth/file-bounded
// directory walk if the tree call fails or is truncated.
func (f *GitFetcher) List(ctx context.Context) ([]docmodel.DocumentRef, error) {
	ref, err := f.resolveRef(ctx)
	if err != nil {
		return nil, err
	}

	tree, resp, err := f.client.Git.GetTree(ctx, f.owner, f.repo, ref, true)
	if err == nil && !tree.GetTruncated() {
		refs := make([]docmodel.DocumentRef, 0, len(tree.Entries))
		for _, entry := range tree.Entries {
			if entry.GetType() != "blob" {
				continue
			}
			if !isRelevantPath(entry.GetPath()) {
				continue
			}
			refs = append(refs, docmodel.DocumentRef{
				SourceID:   entry.GetSHA(),
				SourceType: sourceTypeForPath(entry.GetPath()),
				Path:       entry.GetPath(),
				SHA:        entry.GetSHA(),
				Repository: f.repo,
				Owner:      f.owner,
				URL:        entry.GetURL(),
			})
		}
		return refs, nil
	}
	if err != nil && resp != nil && resp.StatusCode != 0 {
		// Tree unavailable (e.g. too large); fall back to the walk below.
	} else if err != nil {
		return nil, classifyGitHubError(resp, err)
	}

	return f.walk(ctx, ref, "", 0)
}

// walk performs the depth-limited, file-count-bounded directory walk used
// when the repository tree is unavailable or truncated.
func (f *GitFetcher) walk(ctx context.Context, ref, dir string, depth int) ([]docmodel.DocumentRef, error) {
	if depth > f.cfg.MaxDepth {
		return nil, nil
	}
	if err := f.walkLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	_, contents, resp, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, dir, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, classifyGitHubError(resp, err)
	}

	var refs []docmodel.DocumentRef
	for _, entry := range contents {
		if len(refs) >= f.cfg.MaxFiles {
			break
		}
		switch entry.GetType() {
		case "dir":
			sub, err := f.walk(ctx, ref, entry.GetPath(), depth+1)
			if err != nil {
				return nil, err
			}
			refs = append(refs, sub...)
		case "file":
			if !isRelevantPath(entry.GetPath()) {
				continue
			}
			if entry.GetSize() > MaxFileBytes {
				continue
			}
			refs = append(refs, docmodel.DocumentRef{
				SourceID:   entry.GetSHA(),
				SourceType: sourceTypeForPath(entry.GetPath()),
				Path:       entry.GetPath(),
				SHA:        entry.GetSHA(),
				Repository: f.repo,
				Owner:      f.owner,
				URL:        entry.GetHTMLURL(),
			})
		}
		if len(refs) >= f.cfg.MaxFiles {
			break
		}
	}
	return refs, nil
}

// Fetch retrieves a single blob's bytes by its ref.SHA, rejecting files
// over MaxFileBytes.
func (f *GitFetcher) Fetch(ctx context.Context, ref docmodel.DocumentRef) (docmodel.Document, error) {
	blob, resp, err := f.client.Git.GetBlob(ctx, f.owner, f.repo, ref.SHA)
	if err != nil {
		return docmodel.Document{}, classifyGitHubError(resp, err)
	}
	if blob.GetSize() > MaxFileBytes {
		return docmodel.Document{}, ErrTooLarge
	}

	raw, err := decodeBlobContent(blob)
	if err != nil {
		return docmodel.Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return docmodel.Document{
		SourceID:   ref.SourceID,
		SourceType: ref.SourceType,
		Path:       ref.Path,
		RawBytes:   raw,
		SHA:        ref.SHA,
		FetchedAt:  time.Now(),
		Repository: f.repo,
		Owner:      f.owner,
		URL:        ref.URL,
	}, nil
}

func isRelevantPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".md":
		return true
	case ".yaml", ".yml", ".json":
		return isAPIDefPath(p)
	default:
		return false
	}
}

func isAPIDefPath(p string) bool {
	lower := strings.ToLower(p)
	for _, kw := range apiDefKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sourceTypeForPath(p string) docmodel.SourceType {
	if strings.ToLower(path.Ext(p)) == ".md" {
		return docmodel.SourceGitMarkdown
	}
	return docmodel.SourceGitAPIDef
}
