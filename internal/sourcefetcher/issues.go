package sourcefetcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// IssuesConfig filters which issues List enumerates.
type IssuesConfig struct {
	State  string // "open", "closed", or "all"; default "all"
	Since  time.Time
	Labels []string
}

// IssuesFetcher paginates a repository's issues and concatenates each
// issue's title, body, and comments into one document, separated by
// explicit delimiters.
type IssuesFetcher struct {
	client *github.Client
	owner  string
	repo   string
	cfg    IssuesConfig
}

func NewIssuesFetcher(client *github.Client, owner, repo string, cfg IssuesConfig) *IssuesFetcher {
	if cfg.State == "" {
		cfg.State = "all"
	}
	return &IssuesFetcher{client: client, owner: owner, repo: repo, cfg: cfg}
}

// List paginates every issue in the repository matching the configured
// state/labels/since filter. Pull requests (which the GitHub API reports
// as issues) are excluded.
func (f *IssuesFetcher) List(ctx context.Context) ([]docmodel.DocumentRef, error) {
	opts := &github.IssueListByRepoOptions{
		State:       f.cfg.State,
		Labels:      f.cfg.Labels,
		Sort:        "updated",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if !f.cfg.Since.IsZero() {
		opts.Since = f.cfg.Since
	}

	var refs []docmodel.DocumentRef
	for {
		issues, resp, err := f.client.Issues.ListByRepo(ctx, f.owner, f.repo, opts)
		if err != nil {
			return nil, classifyGitHubError(resp, err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			refs = append(refs, docmodel.DocumentRef{
				SourceID:   strconv.Itoa(issue.GetNumber()),
				SourceType: docmodel.SourceIssue,
				Path:       strconv.Itoa(issue.GetNumber()),
				SHA:        strconv.Itoa(issue.GetNumber()) + ":" + issue.GetUpdatedAt().Format(time.RFC3339),
				Repository: f.repo,
				Owner:      f.owner,
				URL:        issue.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return refs, nil
}

// Fetch retrieves one issue's title, body, and comments, concatenated with
// explicit delimiters.
func (f *IssuesFetcher) Fetch(ctx context.Context, ref docmodel.DocumentRef) (docmodel.Document, error) {
	number, err := strconv.Atoi(ref.SourceID)
	if err != nil {
		return docmodel.Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	issue, resp, err := f.client.Issues.Get(ctx, f.owner, f.repo, number)
	if err != nil {
		return docmodel.Document{}, classifyGitHubError(resp, err)
	}

	var comments []*github.IssueComment
	page := 1
	for {
		pageComments, resp, err := f.client.Issues.ListComments(ctx, f.owner, f.repo, number, &github.IssueListCommentsOptions{
			ListOptions: github.ListOptions{PerPage: 100, Page: page},
		})
		if err != nil {
			return docmodel.Document{}, classifyGitHubError(resp, err)
		}
		comments = append(comments, pageComments...)
		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n---\n", issue.GetTitle())
	if body := strings.TrimSpace(issue.GetBody()); body != "" {
		fmt.Fprintf(&sb, "Body: %s\n", body)
	}
	for _, c := range comments {
		fmt.Fprintf(&sb, "---\nComment: %s\n", strings.TrimSpace(c.GetBody()))
	}

	return docmodel.Document{
		SourceID:    ref.SourceID,
		SourceType:  docmodel.SourceIssue,
		Path:        ref.Path,
		RawBytes:    []byte(sb.String()),
		SHA:         ref.SHA,
		FetchedAt:   time.Now(),
		Repository:  f.repo,
		Owner:       f.owner,
		URL:         ref.URL,
		IssueNumber: number,
		IssueState:  issue.GetState(),
	}, nil
}
