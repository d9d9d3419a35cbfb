// Package clustering assigns incoming articles to story clusters.
package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/normalize"
)

// Store is the cluster persistence the engine needs.
type Store interface {
	// ActiveSince returns clusters with last_seen_at >= cutoff and expires_at > now.
	ActiveSince(ctx context.Context, cutoff, now time.Time) ([]core.Cluster, error)
	Create(ctx context.Context, cluster *core.Cluster) error
	// AddMember links an article to a cluster and sets the article's cluster id.
	AddMember(ctx context.Context, clusterID, articleID string) error
	// RecountMembers recomputes and stores article_count and source_count.
	RecountMembers(ctx context.Context, clusterID string) (articles, sources int, err error)
	// Touch raises last_seen_at to at, never lowering it.
	Touch(ctx context.Context, clusterID string, at time.Time) error
}

// Config holds clustering parameters.
type Config struct {
	SimilarityThreshold float64
	Window              time.Duration
	Expiry              time.Duration
}

// DefaultConfig returns the standard clustering parameters.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.4,
		Window:              72 * time.Hour,
		Expiry:              30 * 24 * time.Hour,
	}
}

// ClusterStats is the post-assignment view of a touched cluster.
type ClusterStats struct {
	ID           string
	Headline     string
	ArticleCount int
	SourceCount  int
	LastSeenAt   time.Time
	Created      bool
}

// AssignError records an article that could not be clustered.
type AssignError struct {
	ArticleID string
	Err       error
}

func (e AssignError) Error() string {
	return fmt.Sprintf("article %s: %v", e.ArticleID, e.Err)
}

func (e AssignError) Unwrap() error { return e.Err }

// Result is the outcome of assigning one batch.
type Result struct {
	Touched  map[string]ClusterStats // cluster id -> stats
	Assigned map[string]string       // article id -> cluster id
	Created  int
	Errors   []AssignError
}

// Engine incrementally partitions articles into clusters.
type Engine struct {
	store Store
	norm  *normalize.Normalizer
	cfg   Config
	now   func() time.Time
	log   *slog.Logger
}

// NewEngine creates an engine using the embedded lexicon and the wall clock.
func NewEngine(store Store, cfg Config) *Engine {
	return &Engine{
		store: store,
		norm:  normalize.Default(),
		cfg:   cfg,
		now:   time.Now,
		log:   logger.Get(),
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithNormalizer replaces the title normalizer.
func (e *Engine) WithNormalizer(n *normalize.Normalizer) *Engine {
	e.norm = n
	return e
}

// LoadWindow builds the active-window cache for one run.
func (e *Engine) LoadWindow(ctx context.Context) (*Window, error) {
	return LoadWindow(ctx, e.store, e.norm, e.now(), e.cfg.Window)
}

// Assign clusters articles in slice order against w, creating clusters as
// needed. Articles that already belong to a cluster are left alone. Per-article
// failures are collected in Result.Errors and do not stop the batch; only
// context cancellation returns an error.
func (e *Engine) Assign(ctx context.Context, w *Window, articles []core.Article) (*Result, error) {
	res := &Result{
		Touched:  make(map[string]ClusterStats),
		Assigned: make(map[string]string),
	}

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if article.ClusterID != "" {
			continue
		}

		stats, err := e.assignOne(ctx, w, article)
		if err != nil {
			e.log.Warn("Article left unclustered", "article_id", article.ID, "error", err.Error())
			res.Errors = append(res.Errors, AssignError{ArticleID: article.ID, Err: err})
			continue
		}

		if stats.Created {
			res.Created++
		}
		if prev, ok := res.Touched[stats.ID]; ok && prev.Created {
			stats.Created = true
		}
		res.Touched[stats.ID] = stats
		res.Assigned[article.ID] = stats.ID
	}

	e.log.Info("Clustering complete",
		"articles", len(articles),
		"assigned", len(res.Assigned),
		"clusters_touched", len(res.Touched),
		"clusters_created", res.Created,
		"errors", len(res.Errors))

	return res, nil
}

func (e *Engine) assignOne(ctx context.Context, w *Window, article core.Article) (ClusterStats, error) {
	now := e.now()
	features := e.norm.Features(article.Title)

	cluster, score, found := w.Best(features, e.cfg.SimilarityThreshold)
	created := false
	if !found {
		cluster = core.Cluster{
			ID:          uuid.NewString(),
			Headline:    article.Title,
			Status:      core.StatusDraft,
			FirstSeenAt: now,
			LastSeenAt:  now,
			ExpiresAt:   now.Add(e.cfg.Expiry),
			UpdatedAt:   now,
		}
		if article.Language.Valid() {
			cluster.SourceLanguage = article.Language
		}
		if err := e.store.Create(ctx, &cluster); err != nil {
			return ClusterStats{}, fmt.Errorf("failed to create cluster: %w", err)
		}
		w.add(cluster, features)
		created = true
		e.log.Debug("Created cluster", "cluster_id", cluster.ID, "article_id", article.ID)
	} else {
		e.log.Debug("Matched cluster", "cluster_id", cluster.ID, "article_id", article.ID, "score", score)
	}

	if err := e.store.AddMember(ctx, cluster.ID, article.ID); err != nil {
		return ClusterStats{}, fmt.Errorf("failed to add member to cluster %s: %w", cluster.ID, err)
	}
	articles, sources, err := e.store.RecountMembers(ctx, cluster.ID)
	if err != nil {
		return ClusterStats{}, fmt.Errorf("failed to recount cluster %s: %w", cluster.ID, err)
	}
	if err := e.store.Touch(ctx, cluster.ID, now); err != nil {
		return ClusterStats{}, fmt.Errorf("failed to touch cluster %s: %w", cluster.ID, err)
	}

	lastSeen := cluster.LastSeenAt
	if now.After(lastSeen) {
		lastSeen = now
	}
	w.update(cluster.ID, func(c *core.Cluster) {
		c.ArticleCount = articles
		c.SourceCount = sources
		c.LastSeenAt = lastSeen
	})

	return ClusterStats{
		ID:           cluster.ID,
		Headline:     cluster.Headline,
		ArticleCount: articles,
		SourceCount:  sources,
		LastSeenAt:   lastSeen,
		Created:      created,
	}, nil
}
