package sourcefetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractLinks_ResolvesRelativeAndAbsolute(t *testing.T) {
	html := `<html><body>
		<a href="/wiki/Page-Two">relative</a>
		<a href="https://other.example/doc">absolute</a>
		<a href="#section">fragment only</a>
	</body></html>`

	links, err := extractLinks(strings.NewReader(html), "https://host.example/wiki/Home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{
		"https://host.example/wiki/Page-Two": true,
		"https://other.example/doc":          true,
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d: %v", len(links), len(want), links)
	}
	for _, l := range links {
		if !want[l] {
			t.Errorf("unexpected link %q", l)
		}
	}
}

func TestIsWikiLink(t *testing.T) {
	root := "https://host.example/wiki/Home"
	if !isWikiLink("https://host.example/wiki/Page-Two", root) {
		t.Error("expected same-host wiki path to be a wiki link")
	}
	if isWikiLink("https://other.example/wiki/Page-Two", root) {
		t.Error("expected different host to not be a wiki link")
	}
}

func TestWikiPublicFetcher_List_StaysWithinMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/Home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/wiki/A">a</a>`))
	})
	mux.HandleFunc("/wiki/A", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/wiki/B">b</a>`))
	})
	mux.HandleFunc("/wiki/B", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/wiki/Home">home</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewWikiPublicFetcher(srv.Client(), srv.URL+"/wiki/Home", "TestWiki", WikiPublicConfig{MaxPages: 2})
	refs, err := f.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) > 2 {
		t.Errorf("expected at most 2 refs, got %d", len(refs))
	}
}
