// Package sources aggregates articles from the configured feed sources.
package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/feeds"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
)

// FeedFetcher fetches and normalises one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]feeds.NormalizedItem, error)
}

// LanguageDetector guesses the language of a short text. An empty result
// means undetermined.
type LanguageDetector interface {
	DetectText(text string) core.Language
}

// Options configures a Manager.
type Options struct {
	Workers         int
	InsertBatchSize int
	Detector        LanguageDetector // Optional
}

// Manager handles feed source management and article discovery
type Manager struct {
	articles  persistence.ArticleRepository
	fetcher   FeedFetcher
	sources   []config.Source
	workers   int
	batchSize int
	detector  LanguageDetector
	log       *slog.Logger
	now       func() time.Time
}

// NewManager creates a new source manager
func NewManager(articles persistence.ArticleRepository, fetcher FeedFetcher, sources []config.Source, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = 50
	}
	return &Manager{
		articles:  articles,
		fetcher:   fetcher,
		sources:   sources,
		workers:   opts.Workers,
		batchSize: opts.InsertBatchSize,
		detector:  opts.Detector,
		log:       logger.Get(),
		now:       time.Now,
	}
}

// Sources returns the configured sources sorted by id.
func (m *Manager) Sources() []config.Source {
	out := append([]config.Source(nil), m.sources...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AggregateResult contains aggregation statistics
type AggregateResult struct {
	SourcesFetched int
	SourcesFailed  int
	Fetched        int // Items returned by all feeds
	Inserted       int
	Duplicates     int
	Errors         []error
	Articles       []core.Article // Newly inserted, in feed order
}

// sourceResult is the outcome of fetching one source.
type sourceResult struct {
	items []feeds.NormalizedItem
	err   error
}

// Aggregate fetches every configured source with a bounded pool of workers
// and inserts the new articles in batches. A failing source or batch is
// logged and recorded without affecting the others; only cancellation of
// ctx aborts the run.
func (m *Manager) Aggregate(ctx context.Context) (*AggregateResult, error) {
	result := &AggregateResult{}
	if len(m.sources) == 0 {
		m.log.Warn("No feed sources configured")
		return result, nil
	}

	m.log.Info("Starting aggregation", "source_count", len(m.sources), "workers", m.workers)

	fetched := make([]sourceResult, len(m.sources))
	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, src := range m.sources {
		g.Go(func() error {
			start := time.Now()
			items, err := m.fetcher.Fetch(ctx, src.URL)
			if err != nil {
				m.log.Error("Failed to fetch feed", "source", src.ID, "url", src.URL, "error", err)
			} else {
				m.log.Debug("Fetched feed", "source", src.ID, "items", len(items), "duration", time.Since(start))
			}
			fetched[i] = sourceResult{items: items, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	var pending []core.Article
	seen := make(map[string]bool)
	for i, src := range m.sources {
		r := fetched[i]
		if r.err != nil {
			result.SourcesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("source %s: %w", src.ID, r.err))
			continue
		}
		result.SourcesFetched++
		result.Fetched += len(r.items)
		for _, item := range r.items {
			article := m.toArticle(src, item)
			if seen[article.Hash] {
				result.Duplicates++
				continue
			}
			seen[article.Hash] = true
			pending = append(pending, article)
		}
	}

	for start := 0; start < len(pending); start += m.batchSize {
		end := min(start+m.batchSize, len(pending))
		batch := pending[start:end]
		inserted, err := m.articles.UpsertBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			m.log.Error("Failed to insert article batch", "offset", start, "size", len(batch), "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("insert batch at %d: %w", start, err))
			continue
		}
		result.Inserted += len(inserted)
		result.Duplicates += len(batch) - len(inserted)
		result.Articles = append(result.Articles, inserted...)
	}

	m.log.Info("Aggregation completed",
		"fetched", result.SourcesFetched,
		"failed", result.SourcesFailed,
		"items", result.Fetched,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

func (m *Manager) toArticle(src config.Source, item feeds.NormalizedItem) core.Article {
	now := m.now().UTC()
	published := item.PublishedAt
	if published.IsZero() || published.After(now) {
		published = now
	}
	a := core.Article{
		ID:          uuid.NewString(),
		SourceID:    src.ID,
		Title:       item.Title,
		URL:         item.URL,
		GUID:        item.GUID,
		Content:     item.Content,
		Excerpt:     item.Excerpt,
		PublishedAt: published,
		Hash:        Hash(src.ID, item),
		ImageURLs:   item.ImageURLs,
		CreatedAt:   now,
	}
	if m.detector != nil {
		a.Language = m.detector.DetectText(a.Title + "\n" + a.Excerpt)
	}
	return a
}

// Hash returns the dedup key for a feed item: the canonical URL when there
// is one, then the GUID, then the source and title.
func Hash(sourceID string, item feeds.NormalizedItem) string {
	key := CanonicalURL(item.URL)
	switch {
	case key != "":
		key = "url:" + key
	case strings.TrimSpace(item.GUID) != "":
		key = "guid:" + strings.TrimSpace(item.GUID)
	default:
		key = "title:" + sourceID + ":" + strings.ToLower(strings.Join(strings.Fields(item.Title), " "))
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL lowercases the scheme and host, drops the fragment, tracking
// parameters and a trailing slash, and sorts the remaining query. It returns
// "" for anything that is not an absolute http(s) URL.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Scheme = "https"
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" || lk == "ref" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}
	return u.String()
}
