// Package registry maps a known catalogue of component names to canonical
// repository locations, loaded once at startup from configuration.
package registry

import (
	"fmt"
	"strings"
)

// Repo identifies a canonical (owner, repo) pair for a catalogued
// component.
type Repo struct {
	Owner string
	Name  string
}

// Registry maps component name -> canonical Repo. It is process-wide and
// read-only after construction.
type Registry struct {
	host  string
	repos map[string]Repo
}

// New builds a Registry from "component=owner/repo" entries and the host
// used to build canonical URLs (e.g. "github.com").
func New(host string, entries []string) (*Registry, error) {
	if host == "" {
		host = "github.com"
	}
	repos := make(map[string]Repo, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("registry: malformed entry %q, want component=owner/repo", entry)
		}
		component := strings.TrimSpace(parts[0])
		ownerRepo := strings.SplitN(strings.TrimSpace(parts[1]), "/", 2)
		if len(ownerRepo) != 2 || ownerRepo[0] == "" || ownerRepo[1] == "" {
			return nil, fmt.Errorf("registry: malformed owner/repo in entry %q", entry)
		}
		repos[component] = Repo{Owner: ownerRepo[0], Name: ownerRepo[1]}
	}
	return &Registry{host: host, repos: repos}, nil
}

// Lookup returns the canonical Repo for a component name.
func (r *Registry) Lookup(component string) (Repo, bool) {
	repo, ok := r.repos[component]
	return repo, ok
}

// CanonicalURL returns the fixed-pattern URL for a catalogued component:
// https://{host}/{owner}/{repo}.
func (r *Registry) CanonicalURL(component string) (string, bool) {
	repo, ok := r.repos[component]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("https://%s/%s/%s", r.host, repo.Owner, repo.Name), true
}

// ComponentForOwnerRepo finds the catalogued component whose canonical repo
// name equals repoName case-insensitively, whatever the owner; URLValidator
// uses it to detect a wrong-owner reference.
func (r *Registry) ComponentForOwnerRepo(repoName string) (string, Repo, bool) {
	for component, repo := range r.repos {
		if strings.EqualFold(repo.Name, repoName) {
			return component, repo, true
		}
	}
	return "", Repo{}, false
}

// Host returns the configured registry host.
func (r *Registry) Host() string {
	return r.host
}
