// Package urlvalidator canonicalizes and validates the reachability of
// repository URLs, and rewrites LLM-generated answer text to only reference
// canonical, reachable URLs. The reachability cache is a sync.RWMutex-
// guarded in-memory TTL cache keyed by URL.
package urlvalidator

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ragcore-dev/docrag/internal/registry"
)

// Config holds URLValidator's tunables.
type Config struct {
	ReachableTimeout time.Duration // default 5s
	CacheTTL         time.Duration // default 10m
	TrustedDomains   []string
}

func (c Config) withDefaults() Config {
	if c.ReachableTimeout <= 0 {
		c.ReachableTimeout = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
	return c
}

type cacheEntry struct {
	reachable bool
	expiresAt time.Time
}

// Validator canonicalizes and checks the reachability of repository URLs.
type Validator struct {
	registry *registry.Registry
	client   *http.Client
	cfg      Config

	mu    sync.RWMutex
	cache map[string]cacheEntry

	trusted map[string]struct{}
}

// New creates a Validator. reg may be nil if no registry is configured.
func New(reg *registry.Registry, cfg Config) *Validator {
	cfg = cfg.withDefaults()
	trusted := make(map[string]struct{}, len(cfg.TrustedDomains))
	for _, d := range cfg.TrustedDomains {
		trusted[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Validator{
		registry: reg,
		client:   &http.Client{Timeout: cfg.ReachableTimeout},
		cfg:      cfg,
		cache:    make(map[string]cacheEntry),
		trusted:  trusted,
	}
}

// Canonicalize rewrites a URL to its canonical form per the registry: wrong
// owner for a known component is corrected, and a disallowed mono-repo tree
// path is rewritten to the project's canonical bare-repo shape. Idempotent:
// Canonicalize(Canonicalize(u)) == Canonicalize(u).
func (v *Validator) Canonicalize(raw string) string {
	if v.registry == nil {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return raw
	}
	repoName := segments[1]

	component, canonical, ok := v.registry.ComponentForOwnerRepo(repoName)
	if !ok {
		return raw
	}
	_ = component

	if len(segments) > 2 && segments[2] == "tree" {
		canonicalURL, _ := v.registry.CanonicalURL(component)
		return canonicalURL
	}

	if !strings.EqualFold(segments[0], canonical.Owner) {
		parsed.Path = "/" + canonical.Owner + "/" + canonical.Name
		if len(segments) > 2 {
			parsed.Path += "/" + strings.Join(segments[2:], "/")
		}
		return parsed.String()
	}

	return raw
}

// Reachable issues a HEAD (falling back to GET) against url, caching the
// result for CacheTTL. Trusted domains short-circuit to true.
func (v *Validator) Reachable(ctx context.Context, raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if _, ok := v.trusted[strings.ToLower(parsed.Hostname())]; ok {
		return true
	}

	if cached, ok := v.cacheLookup(raw); ok {
		return cached
	}

	reachable := v.probe(ctx, raw)
	v.cacheStore(raw, reachable)
	return reachable
}

func (v *Validator) cacheLookup(raw string) (bool, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.cache[raw]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, false
	}
	return entry.reachable, true
}

func (v *Validator) cacheStore(raw string, reachable bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[raw] = cacheEntry{reachable: reachable, expiresAt: time.Now().Add(v.cfg.CacheTTL)}
}

func (v *Validator) probe(ctx context.Context, raw string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode < 400 {
			return true
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return false
	}
	resp, err = v.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

var urlTokenPattern = regexp.MustCompile(`https?://[^\s)\]}"'<>]+`)

// RewriteText scans text for URL-like tokens, canonicalizes each, and drops
// tokens whose canonical form is unreachable — unreachable URLs are
// silently removed from the assistant's answer text, never surfaced as an
// error.
func (v *Validator) RewriteText(ctx context.Context, text string) string {
	return urlTokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		canonical := v.Canonicalize(token)
		if !v.Reachable(ctx, canonical) {
			return ""
		}
		return canonical
	})
}
