package sourcefetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/ragcore-dev/docrag/internal/docmodel"
)

func newTestGitHubClient(mux *http.ServeMux) (*github.Client, *httptest.Server) {
	srv := httptest.NewServer(mux)
	client := github.NewClient(srv.Client())
	baseURL, _ := url.Parse(srv.URL + "/")
	client.BaseURL = baseURL
	return client, srv
}

func TestIssuesFetcher_List_SkipsPullRequestsAndPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/docs/issues", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "", "1":
			w.Header().Set("Link", `<https://x/?page=2>; rel="next"`)
			fmt.Fprint(w, `[{"number":1,"title":"bug"},{"number":2,"title":"pr","pull_request":{"url":"x"}}]`)
		default:
			fmt.Fprint(w, `[{"number":3,"title":"another bug"}]`)
		}
	})
	client, srv := newTestGitHubClient(mux)
	defer srv.Close()

	f := NewIssuesFetcher(client, "acme", "docs", IssuesConfig{})
	refs, err := f.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 non-PR issues across pages, got %d: %+v", len(refs), refs)
	}
}

func TestIssuesFetcher_Fetch_ConcatenatesTitleBodyComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/docs/issues/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":1,"title":"bug report","body":"it crashes","state":"open"}`)
	})
	mux.HandleFunc("/repos/acme/docs/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"body":"confirmed"},{"body":"fixed in v2"}]`)
	})
	client, srv := newTestGitHubClient(mux)
	defer srv.Close()

	f := NewIssuesFetcher(client, "acme", "docs", IssuesConfig{})
	doc, err := f.Fetch(context.Background(), docmodel.DocumentRef{SourceID: "1", Path: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(doc.RawBytes)
	for _, want := range []string{"Title: bug report", "Body: it crashes", "Comment: confirmed", "Comment: fixed in v2"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected text to contain %q, got %q", want, text)
		}
	}
	if doc.IssueState != "open" || doc.IssueNumber != 1 {
		t.Errorf("unexpected issue metadata: %+v", doc)
	}
}
