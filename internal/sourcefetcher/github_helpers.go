package sourcefetcher

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
)

// classifyGitHubError maps a go-github error into the SourceFetcher error
// taxonomy.
func classifyGitHubError(resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*github.RateLimitError); ok {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if _, ok := err.(*github.AbuseRateLimitError); ok {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuthRequired, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// decodeBlobContent decodes a go-github Blob's content, honoring its
// reported encoding (GitHub returns "base64" for binary-safe transport).
func decodeBlobContent(blob *github.Blob) ([]byte, error) {
	if blob.GetEncoding() == "base64" {
		return base64.StdEncoding.DecodeString(blob.GetContent())
	}
	return []byte(blob.GetContent()), nil
}
