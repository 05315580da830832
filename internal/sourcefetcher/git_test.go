package sourcefetcher

import (
	"testing"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

func TestIsRelevantPath(t *testing.T) {
	cases := map[string]bool{
		"README.md":               true,
		"docs/openapi.yaml":       true,
		"docs/swagger.json":       true,
		"pkg/spec/api-spec.yml":   true,
		"config/app.yaml":         false,
		"main.go":                 false,
		"notes.txt":               false,
	}
	for path, want := range cases {
		if got := isRelevantPath(path); got != want {
			t.Errorf("isRelevantPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestSourceTypeForPath(t *testing.T) {
	if got := sourceTypeForPath("README.md"); got != docmodel.SourceGitMarkdown {
		t.Errorf("expected SourceGitMarkdown, got %v", got)
	}
	if got := sourceTypeForPath("openapi.yaml"); got != docmodel.SourceGitAPIDef {
		t.Errorf("expected SourceGitAPIDef, got %v", got)
	}
}
