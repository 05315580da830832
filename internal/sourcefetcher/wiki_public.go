package sourcefetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// WikiPublicConfig tunes the BFS crawl (depth bound,
// page-count bound, optional linked-page fetch).
type WikiPublicConfig struct {
	MaxDepth       int
	MaxPages       int
	MaxLinkedPages int // 0 = unlimited

	// RenderJS routes page fetches through a headless Chrome instance
	// instead of a plain HTTP GET, for wikis whose content is populated by
	// client-side JavaScript after load (static HTML would otherwise yield
	// an empty shell with no links to crawl and no text to extract).
	RenderJS      bool
	RenderTimeout time.Duration // default 10s, only used when RenderJS is set
}

func (c WikiPublicConfig) withDefaults() WikiPublicConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 5
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 200
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 10 * time.Second
	}
	return c
}

// WikiPublicFetcher crawls a public wiki's HTML pages via breadth-first
// search from the wiki root, sharing one visited-page set across the walk.
type WikiPublicFetcher struct {
	client   *http.Client
	rootURL  string
	wikiName string
	cfg      WikiPublicConfig
}

func NewWikiPublicFetcher(client *http.Client, rootURL, wikiName string, cfg WikiPublicConfig) *WikiPublicFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WikiPublicFetcher{client: client, rootURL: rootURL, wikiName: wikiName, cfg: cfg.withDefaults()}
}

type wikiPageRef struct {
	url   string
	depth int
}

// List performs the BFS crawl and returns a DocumentRef per visited page
// plus, once the wiki pages are exhausted, one DocumentRef per distinct
// outbound link discovered (as linked_page, subject to MaxLinkedPages).
func (f *WikiPublicFetcher) List(ctx context.Context) ([]docmodel.DocumentRef, error) {
	visited := map[string]bool{f.rootURL: true}
	queue := []wikiPageRef{{url: f.rootURL, depth: 0}}

	var refs []docmodel.DocumentRef
	linked := map[string]bool{}

	for len(queue) > 0 && len(refs) < f.cfg.MaxPages {
		page := queue[0]
		queue = queue[1:]

		refs = append(refs, docmodel.DocumentRef{
			SourceID:   page.url,
			SourceType: docmodel.SourceWikiPage,
			Path:       page.url,
			SHA:        page.url,
			URL:        page.url,
		})

		if page.depth >= f.cfg.MaxDepth {
			continue
		}

		links, err := f.fetchLinks(ctx, page.url)
		if err != nil {
			continue
		}
		for _, link := range links {
			if isWikiLink(link, f.rootURL) {
				if !visited[link] {
					visited[link] = true
					queue = append(queue, wikiPageRef{url: link, depth: page.depth + 1})
				}
			} else {
				linked[link] = true
			}
		}
	}

	if f.cfg.MaxLinkedPages != 0 && len(linked) > f.cfg.MaxLinkedPages {
		i := 0
		for l := range linked {
			if i >= f.cfg.MaxLinkedPages {
				delete(linked, l)
			}
			i++
		}
	}
	for l := range linked {
		refs = append(refs, docmodel.DocumentRef{
			SourceID:   l,
			SourceType: docmodel.SourceLinkedPage,
			Path:       l,
			SHA:        l,
			URL:        l,
		})
	}

	return refs, nil
}

// Fetch retrieves the raw HTML bytes for a wiki or linked page reference.
// When cfg.RenderJS is set, the page is fetched through a headless browser
// so client-rendered content is captured instead of the pre-hydration
// shell.
func (f *WikiPublicFetcher) Fetch(ctx context.Context, ref docmodel.DocumentRef) (docmodel.Document, error) {
	var body []byte

	if f.cfg.RenderJS {
		rendered, err := f.renderPage(ctx, ref.URL)
		if err != nil {
			return docmodel.Document{}, err
		}
		if len(rendered) > MaxFileBytes {
			return docmodel.Document{}, ErrTooLarge
		}
		body = rendered
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
		if err != nil {
			return docmodel.Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return docmodel.Document{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return docmodel.Document{}, ErrNotFound
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return docmodel.Document{}, ErrRateLimited
		}
		if resp.StatusCode >= 400 {
			return docmodel.Document{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileBytes+1))
		if err != nil {
			return docmodel.Document{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if len(b) > MaxFileBytes {
			return docmodel.Document{}, ErrTooLarge
		}
		body = b
	}

	return docmodel.Document{
		SourceID:   ref.SourceID,
		SourceType: ref.SourceType,
		Path:       ref.Path,
		RawBytes:   body,
		SHA:        ref.SHA,
		FetchedAt:  time.Now(),
		URL:        ref.URL,
		WikiName:   f.wikiName,
	}, nil
}

func (f *WikiPublicFetcher) fetchLinks(ctx context.Context, pageURL string) ([]string, error) {
	if f.cfg.RenderJS {
		rendered, err := f.renderPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		return extractLinks(strings.NewReader(string(rendered)), pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return extractLinks(resp.Body, pageURL)
}

// renderPage navigates a headless Chrome instance to pageURL, waits for the
// body to be ready, and returns the post-render outer HTML. Each call gets
// its own browser allocator and context so crawl concurrency never shares
// browser state across pages.
func (f *WikiPublicFetcher) renderPage(ctx context.Context, pageURL string) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	renderCtx, cancelTimeout := context.WithTimeout(browserCtx, f.cfg.RenderTimeout)
	defer cancelTimeout()

	var rendered string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &rendered),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering %s: %v", ErrTransient, pageURL, err)
	}
	return []byte(rendered), nil
}

// extractLinks walks the parsed HTML tree collecting absolute href values
// from anchor tags, skipping same-page fragment links ("#section").
func extractLinks(body io.Reader, pageURL string) ([]string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" || strings.HasPrefix(attr.Val, "#") {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				if abs.Scheme == "http" || abs.Scheme == "https" {
					abs.Fragment = ""
					links = append(links, abs.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func isWikiLink(link, rootURL string) bool {
	root, err := url.Parse(rootURL)
	if err != nil {
		return false
	}
	l, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(l.Host, root.Host) && strings.HasPrefix(l.Path, pathPrefix(root.Path))
}

func pathPrefix(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i+1]
	}
	return p
}
