// Package feeds fetches and normalises RSS/Atom feeds.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
)

const maxExcerptRunes = 600

// NormalizedItem is one feed entry in a source-independent shape.
type NormalizedItem struct {
	Title       string
	URL         string
	GUID        string
	PublishedAt time.Time
	Content     string // Raw HTML or text as published
	Excerpt     string // Plain text
	ImageURLs   []string
}

// StatusError is returned for non-success HTTP responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s returned status %d", e.URL, e.Code)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Options configures a Fetcher.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	RetryAttempts int // Extra attempts after the first
	RetryBackoff  time.Duration
}

// Fetcher fetches feeds over HTTP and parses them with gofeed.
type Fetcher struct {
	client  *http.Client
	opts    Options
	log     *slog.Logger
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a new feed fetcher
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "LankaNewsRoom/1.0"
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		log:     logger.Get(),
		sleepFn: sleep,
	}
}

// Fetch downloads and parses a feed, retrying transient failures with
// exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]NormalizedItem, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := f.opts.RetryBackoff << (attempt - 1)
			f.log.Debug("Retrying feed", "url", feedURL, "attempt", attempt+1, "delay", delay, "error", lastErr.Error())
			if err := f.sleepFn(ctx, delay); err != nil {
				return nil, err
			}
		}

		items, err := f.fetchOnce(ctx, feedURL)
		if err == nil {
			return items, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) ([]NormalizedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: feedURL, Code: resp.StatusCode}
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return Normalize(feed, feedURL), nil
}

// Normalize converts a parsed feed into items, resolving relative links
// against the feed URL and skipping entries without a title or link.
func Normalize(feed *gofeed.Feed, feedURL string) []NormalizedItem {
	base, _ := url.Parse(feedURL)
	items := make([]NormalizedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		title := strings.TrimSpace(it.Title)
		link := resolve(base, strings.TrimSpace(it.Link))
		if title == "" || link == "" {
			continue
		}

		content := it.Content
		if strings.TrimSpace(content) == "" {
			content = it.Description
		}
		excerpt := plainText(it.Description)
		if excerpt == "" {
			excerpt = plainText(content)
		}

		item := NormalizedItem{
			Title:     title,
			URL:       link,
			GUID:      strings.TrimSpace(it.GUID),
			Content:   strings.TrimSpace(content),
			Excerpt:   truncateRunes(excerpt, maxExcerptRunes),
			ImageURLs: imageURLs(it, base),
		}
		switch {
		case it.PublishedParsed != nil:
			item.PublishedAt = it.PublishedParsed.UTC()
		case it.UpdatedParsed != nil:
			item.PublishedAt = it.UpdatedParsed.UTC()
		}
		items = append(items, item)
	}
	return items
}

// imageURLs collects the item image, image enclosures and media thumbnails.
func imageURLs(it *gofeed.Item, base *url.URL) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		u := resolve(base, strings.TrimSpace(raw))
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	if it.Image != nil {
		add(it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			add(enc.URL)
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, e := range media[name] {
				if name == "content" && !isImageMedia(e) {
					continue
				}
				add(e.Attrs["url"])
			}
		}
	}
	return out
}

func isImageMedia(e ext.Extension) bool {
	if medium := e.Attrs["medium"]; medium != "" {
		return medium == "image"
	}
	return strings.HasPrefix(e.Attrs["type"], "image/")
}

func resolve(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// plainText strips markup from an HTML fragment.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
