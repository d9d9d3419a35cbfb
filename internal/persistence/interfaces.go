// Package persistence stores articles, clusters and summaries.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrSlugTaken is returned when a slug is already used by another cluster.
	ErrSlugTaken = errors.New("persistence: slug taken")
	// ErrAlreadyClustered is returned when an article already belongs to another cluster.
	ErrAlreadyClustered = errors.New("persistence: article already clustered")
)

// ArticleRepository handles article persistence operations
type ArticleRepository interface {
	// Upsert inserts the article unless its hash is already stored. It
	// reports whether a row was inserted and fills in article.ID.
	Upsert(ctx context.Context, article *core.Article) (bool, error)

	// UpsertBatch inserts articles in one round trip and returns the
	// articles that were new. Existing hashes are skipped.
	UpsertBatch(ctx context.Context, articles []core.Article) ([]core.Article, error)

	// Get retrieves an article by ID
	Get(ctx context.Context, id string) (*core.Article, error)

	// ListUnclustered returns articles without a cluster, oldest first.
	ListUnclustered(ctx context.Context, limit int) ([]core.Article, error)

	// ListByCluster returns the members of a cluster, newest first.
	ListByCluster(ctx context.Context, clusterID string) ([]core.Article, error)
}

// EnrichmentQuery selects clusters for the orchestrator.
type EnrichmentQuery struct {
	IDs         []string // Restrict to these clusters when set
	MinArticles int
	MinSources  int
	Limit       int
}

// ClusterRepository handles cluster persistence operations. Membership
// methods are used only by the clustering engine.
type ClusterRepository interface {
	Get(ctx context.Context, id string) (*core.Cluster, error)

	// ActiveSince returns clusters with last_seen_at >= cutoff and expires_at > now.
	ActiveSince(ctx context.Context, cutoff, now time.Time) ([]core.Cluster, error)

	Create(ctx context.Context, cluster *core.Cluster) error
	AddMember(ctx context.Context, clusterID, articleID string) error
	RecountMembers(ctx context.Context, clusterID string) (articles, sources int, err error)
	Touch(ctx context.Context, clusterID string, at time.Time) error

	// ListForEnrichment returns clusters meeting the membership policy,
	// most recently seen first.
	ListForEnrichment(ctx context.Context, q EnrichmentQuery) ([]core.Cluster, error)

	// SaveEnrichment writes the orchestrator-owned fields: headlines,
	// SEO fields, topics, entities, image, status, slug and published_at.
	SaveEnrichment(ctx context.Context, cluster *core.Cluster) error

	// SlugTaken reports whether slug is used by a cluster other than excludeID.
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)
}

// SummaryRepository handles summary persistence operations
type SummaryRepository interface {
	// Get returns ErrNotFound when the cluster has no summary yet.
	Get(ctx context.Context, clusterID string) (*core.Summary, error)
	Upsert(ctx context.Context, summary *core.Summary) error
}

// Database provides access to all repositories
type Database interface {
	Articles() ArticleRepository
	Clusters() ClusterRepository
	Summaries() SummaryRepository

	Ping(ctx context.Context) error
	Close() error
}
