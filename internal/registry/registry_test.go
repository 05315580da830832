package registry

import "testing"

func TestNew_ParsesEntries(t *testing.T) {
	reg, err := New("github.com", []string{"alpha=ORG/alpha", " beta = other/beta-repo "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo, ok := reg.Lookup("alpha")
	if !ok {
		t.Fatal("expected alpha to be registered")
	}
	if repo.Owner != "ORG" || repo.Name != "alpha" {
		t.Errorf("unexpected repo: %+v", repo)
	}

	url, ok := reg.CanonicalURL("alpha")
	if !ok || url != "https://github.com/ORG/alpha" {
		t.Errorf("unexpected canonical URL: %q", url)
	}
}

func TestNew_MalformedEntry(t *testing.T) {
	if _, err := New("github.com", []string{"alpha"}); err == nil {
		t.Error("expected error for entry missing '='")
	}
	if _, err := New("github.com", []string{"alpha=onlyowner"}); err == nil {
		t.Error("expected error for entry missing owner/repo split")
	}
}

func TestComponentForOwnerRepo(t *testing.T) {
	reg, err := New("github.com", []string{"alpha=ORG/alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	component, repo, ok := reg.ComponentForOwnerRepo("alpha")
	if !ok || component != "alpha" || repo.Owner != "ORG" {
		t.Errorf("unexpected lookup result: component=%q repo=%+v ok=%v", component, repo, ok)
	}

	if _, _, ok := reg.ComponentForOwnerRepo("unknown"); ok {
		t.Error("expected no match for unregistered repo")
	}
}
