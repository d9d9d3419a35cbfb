package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// MemoryDB is an in-process Database used for dry runs and tests.
type MemoryDB struct {
	mu        sync.RWMutex
	articles  map[string]*core.Article
	byHash    map[string]string
	clusters  map[string]*core.Cluster
	members   map[string][]string // cluster id -> article ids
	summaries map[string]*core.Summary
	now       func() time.Time
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		articles:  make(map[string]*core.Article),
		byHash:    make(map[string]string),
		clusters:  make(map[string]*core.Cluster),
		members:   make(map[string][]string),
		summaries: make(map[string]*core.Summary),
		now:       time.Now,
	}
}

func (m *MemoryDB) Articles() ArticleRepository  { return memoryArticles{m} }
func (m *MemoryDB) Clusters() ClusterRepository  { return memoryClusters{m} }
func (m *MemoryDB) Summaries() SummaryRepository { return memorySummaries{m} }

func (m *MemoryDB) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MemoryDB) Close() error                   { return nil }

func copyArticle(a *core.Article) core.Article {
	out := *a
	out.ImageURLs = append([]string(nil), a.ImageURLs...)
	return out
}

func copyCluster(c *core.Cluster) core.Cluster {
	out := *c
	out.Headlines = c.Headlines.Clone()
	out.MetaTitles = c.MetaTitles.Clone()
	out.MetaDescriptions = c.MetaDescriptions.Clone()
	out.Topics = append([]string(nil), c.Topics...)
	out.Entities = append([]string(nil), c.Entities...)
	if c.HeadlineScores != nil {
		out.HeadlineScores = make(map[core.Language]float64, len(c.HeadlineScores))
		for k, v := range c.HeadlineScores {
			out.HeadlineScores[k] = v
		}
	}
	if c.PublishedAt != nil {
		t := *c.PublishedAt
		out.PublishedAt = &t
	}
	return out
}

func copySummary(s *core.Summary) core.Summary {
	out := *s
	out.Texts = s.Texts.Clone()
	out.KeyFacts = append([]string(nil), s.KeyFacts...)
	out.Scores = make(map[core.Language]float64, len(s.Scores))
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	out.TranslationStatus = make(map[core.Language]core.TranslationStatus, len(s.TranslationStatus))
	for k, v := range s.TranslationStatus {
		out.TranslationStatus[k] = v
	}
	return out
}

type memoryArticles struct{ db *MemoryDB }

func (r memoryArticles) Upsert(ctx context.Context, article *core.Article) (bool, error) {
	if article.Hash == "" {
		return false, fmt.Errorf("article %q has no hash", article.URL)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if id, ok := r.db.byHash[article.Hash]; ok {
		article.ID = id
		return false, nil
	}
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = r.db.now().UTC()
	}
	stored := copyArticle(article)
	r.db.articles[article.ID] = &stored
	r.db.byHash[article.Hash] = article.ID
	return true, nil
}

func (r memoryArticles) UpsertBatch(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	var inserted []core.Article
	for i := range articles {
		ok, err := r.Upsert(ctx, &articles[i])
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted = append(inserted, articles[i])
		}
	}
	return inserted, nil
}

func (r memoryArticles) Get(ctx context.Context, id string) (*core.Article, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	a, ok := r.db.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyArticle(a)
	return &out, nil
}

func (r memoryArticles) ListUnclustered(ctx context.Context, limit int) ([]core.Article, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []core.Article
	for _, a := range r.db.articles {
		if a.ClusterID == "" {
			out = append(out, copyArticle(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryArticles) ListByCluster(ctx context.Context, clusterID string) ([]core.Article, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []core.Article
	for _, id := range r.db.members[clusterID] {
		out = append(out, copyArticle(r.db.articles[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, nil
}

type memoryClusters struct{ db *MemoryDB }

func (r memoryClusters) Get(ctx context.Context, id string) (*core.Cluster, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.clusters[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyCluster(c)
	return &out, nil
}

func (r memoryClusters) ActiveSince(ctx context.Context, cutoff, now time.Time) ([]core.Cluster, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []core.Cluster
	for _, c := range r.db.clusters {
		if c.Active(now, cutoff) {
			out = append(out, copyCluster(c))
		}
	}
	return out, nil
}

func (r memoryClusters) Create(ctx context.Context, cluster *core.Cluster) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	if _, ok := r.db.clusters[cluster.ID]; ok {
		return fmt.Errorf("cluster %s already exists", cluster.ID)
	}
	stored := copyCluster(cluster)
	r.db.clusters[cluster.ID] = &stored
	return nil
}

func (r memoryClusters) AddMember(ctx context.Context, clusterID, articleID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.articles[articleID]
	if !ok {
		return fmt.Errorf("article %s: %w", articleID, ErrNotFound)
	}
	if _, ok := r.db.clusters[clusterID]; !ok {
		return fmt.Errorf("cluster %s: %w", clusterID, ErrNotFound)
	}
	switch a.ClusterID {
	case clusterID:
		return nil
	case "":
	default:
		return fmt.Errorf("article %s in %s: %w", articleID, a.ClusterID, ErrAlreadyClustered)
	}
	a.ClusterID = clusterID
	r.db.members[clusterID] = append(r.db.members[clusterID], articleID)
	return nil
}

func (r memoryClusters) RecountMembers(ctx context.Context, clusterID string) (int, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clusters[clusterID]
	if !ok {
		return 0, 0, ErrNotFound
	}
	ids := r.db.members[clusterID]
	sources := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		sources[r.db.articles[id].SourceID] = struct{}{}
	}
	c.ArticleCount = len(ids)
	c.SourceCount = len(sources)
	c.UpdatedAt = r.db.now().UTC()
	return c.ArticleCount, c.SourceCount, nil
}

func (r memoryClusters) Touch(ctx context.Context, clusterID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clusters[clusterID]
	if !ok {
		return ErrNotFound
	}
	if at.After(c.LastSeenAt) {
		c.LastSeenAt = at
	}
	return nil
}

func (r memoryClusters) ListForEnrichment(ctx context.Context, q EnrichmentQuery) ([]core.Cluster, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var want map[string]bool
	if len(q.IDs) > 0 {
		want = make(map[string]bool, len(q.IDs))
		for _, id := range q.IDs {
			want[id] = true
		}
	}

	var out []core.Cluster
	for _, c := range r.db.clusters {
		if want != nil && !want[c.ID] {
			continue
		}
		if c.ArticleCount < q.MinArticles || c.SourceCount < q.MinSources {
			continue
		}
		out = append(out, copyCluster(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r memoryClusters) SaveEnrichment(ctx context.Context, cluster *core.Cluster) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clusters[cluster.ID]
	if !ok {
		return ErrNotFound
	}
	if cluster.Slug != "" {
		for id, other := range r.db.clusters {
			if id != cluster.ID && other.Slug == cluster.Slug {
				return fmt.Errorf("%w: %s", ErrSlugTaken, cluster.Slug)
			}
		}
	}

	in := copyCluster(cluster)
	c.Headlines = in.Headlines
	c.HeadlineScores = in.HeadlineScores
	c.MetaTitles = in.MetaTitles
	c.MetaDescriptions = in.MetaDescriptions
	c.Topics = in.Topics
	c.Entities = in.Entities
	c.SourceLanguage = in.SourceLanguage
	c.ImageURL = in.ImageURL
	c.ImageSource = in.ImageSource
	c.ImageRelevance = in.ImageRelevance
	c.Status = in.Status
	c.Slug = in.Slug
	c.PublishedAt = in.PublishedAt
	c.UpdatedAt = r.db.now().UTC()
	return nil
}

func (r memoryClusters) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for id, c := range r.db.clusters {
		if id != excludeID && c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

type memorySummaries struct{ db *MemoryDB }

func (r memorySummaries) Get(ctx context.Context, clusterID string) (*core.Summary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.summaries[clusterID]
	if !ok {
		return nil, ErrNotFound
	}
	out := copySummary(s)
	return &out, nil
}

func (r memorySummaries) Upsert(ctx context.Context, summary *core.Summary) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.clusters[summary.ClusterID]; !ok {
		return fmt.Errorf("cluster %s: %w", summary.ClusterID, ErrNotFound)
	}
	stored := copySummary(summary)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.db.now().UTC()
	}
	r.db.summaries[summary.ClusterID] = &stored
	return nil
}
