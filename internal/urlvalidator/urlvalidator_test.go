package urlvalidator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragcore-dev/docrag/internal/registry"
)

// TestCanonicalize_RewritesWrongOwner checks that, with a registry entry
// mapping component alpha to canonical owner ORG, a URL referencing the
// wrong owner is rewritten.
func TestCanonicalize_RewritesWrongOwner(t *testing.T) {
	reg, err := registry.New("host", []string{"alpha=ORG/alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := New(reg, Config{})

	got := v.Canonicalize("https://host/WRONG/alpha")
	want := "https://host/ORG/alpha"
	if got != want {
		t.Errorf("Canonicalize() = %q, want %q", got, want)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	reg, err := registry.New("host", []string{"alpha=ORG/alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := New(reg, Config{})

	once := v.Canonicalize("https://host/WRONG/alpha")
	twice := v.Canonicalize(once)
	if once != twice {
		t.Errorf("Canonicalize not idempotent: %q != %q", once, twice)
	}
}

func TestCanonicalize_MonorepoTreePath(t *testing.T) {
	reg, err := registry.New("host", []string{"alpha=ORG/alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := New(reg, Config{})

	got := v.Canonicalize("https://host/ORG/alpha/tree/main/alpha")
	want := "https://host/ORG/alpha"
	if got != want {
		t.Errorf("Canonicalize() = %q, want %q", got, want)
	}
}

func TestReachable_TrustedDomainShortCircuits(t *testing.T) {
	v := New(nil, Config{TrustedDomains: []string{"trusted.example"}})
	if !v.Reachable(context.Background(), "https://trusted.example/whatever") {
		t.Error("expected trusted domain to be reachable without a network call")
	}
}

func TestReachable_CachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := New(nil, Config{})
	ctx := context.Background()
	if !v.Reachable(ctx, srv.URL) {
		t.Fatal("expected reachable")
	}
	if !v.Reachable(ctx, srv.URL) {
		t.Fatal("expected reachable on second call")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 HTTP call due to caching, got %d", calls)
	}
}

func TestRewriteText_DropsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v := New(nil, Config{})
	text := "See " + srv.URL + "/doc for details."
	got := v.RewriteText(context.Background(), text)
	if got != "See  for details." {
		t.Errorf("expected unreachable URL dropped, got %q", got)
	}
}
