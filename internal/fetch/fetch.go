// Package fetch extracts cover image candidates from article pages.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
)

const maxPageBytes = 4 << 20

// PageCache stores images previously extracted from a page.
type PageCache interface {
	PageImages(ctx context.Context, url string, maxAge time.Duration) ([]string, bool, error)
	CachePageImages(ctx context.Context, url string, images []string) error
}

// PageOptions configures a PageFetcher.
type PageOptions struct {
	Timeout   time.Duration
	UserAgent string
	Cache     PageCache     // Optional
	CacheTTL  time.Duration // Zero keeps entries forever
}

// PageFetcher downloads a single article page and returns its images. It is
// the last resort when neither the feed nor stored HTML yields an image.
type PageFetcher struct {
	client *http.Client
	opts   PageOptions
	log    *slog.Logger
}

// NewPageFetcher creates a new page fetcher
func NewPageFetcher(opts PageOptions) *PageFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "LankaNewsRoom/1.0"
	}
	return &PageFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		log:    logger.Get(),
	}
}

// Images returns image candidates for pageURL: the readability lead image,
// images inside the extracted article body, then page-level meta and inline
// images.
func (f *PageFetcher) Images(ctx context.Context, pageURL string) ([]string, error) {
	if f.opts.Cache != nil {
		images, ok, err := f.opts.Cache.PageImages(ctx, pageURL, f.opts.CacheTTL)
		if err != nil {
			f.log.Warn("Page image cache read failed", "url", pageURL, "error", err)
		} else if ok {
			return images, nil
		}
	}

	raw, err := f.download(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	images := pageImages(raw, pageURL)

	if f.opts.Cache != nil {
		if err := f.opts.Cache.CachePageImages(ctx, pageURL, images); err != nil {
			f.log.Warn("Page image cache write failed", "url", pageURL, "error", err)
		}
	}
	f.log.Debug("Fetched page images", "url", pageURL, "count", len(images))
	return images, nil
}

func (f *PageFetcher) download(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", pageURL, err)
	}
	return body, nil
}

// pageImages merges readability's view of the page with a plain scan of the
// document.
func pageImages(raw []byte, pageURL string) []string {
	var candidates []string
	if parsed, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(bytes.NewReader(raw), parsed); err == nil {
			if article.Image != "" {
				candidates = append(candidates, article.Image)
			}
			candidates = append(candidates, ExtractImages(article.Content, pageURL)...)
		}
	}
	candidates = append(candidates, ExtractImages(string(raw), pageURL)...)

	base, _ := url.Parse(pageURL)
	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		u := absolute(base, c)
		if u == "" || seen[u] || skipImage(u) {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
