package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// postgresClusterRepo implements ClusterRepository for PostgreSQL
type postgresClusterRepo struct {
	db *sql.DB
}

var clusterColumns = []string{
	"id", "headline", "headlines", "headline_scores", "meta_titles", "meta_descriptions",
	"topics", "entities", "status", "slug", "source_language",
	"image_url", "image_source", "image_relevance",
	"first_seen_at", "last_seen_at", "expires_at",
	"source_count", "article_count", "published_at", "updated_at",
}

func (r *postgresClusterRepo) Get(ctx context.Context, id string) (*core.Cluster, error) {
	query, args, err := psql.Select(clusterColumns...).From("clusters").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	c, err := scanCluster(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *postgresClusterRepo) ActiveSince(ctx context.Context, cutoff, now time.Time) ([]core.Cluster, error) {
	return r.list(ctx, psql.Select(clusterColumns...).From("clusters").
		Where(sq.GtOrEq{"last_seen_at": cutoff}).
		Where(sq.Gt{"expires_at": now}).
		OrderBy("first_seen_at ASC", "id ASC"))
}

func (r *postgresClusterRepo) Create(ctx context.Context, c *core.Cluster) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	headlines, err := marshalJSON(c.Headlines)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("clusters").
		Columns("id", "headline", "headlines", "status", "source_language",
			"first_seen_at", "last_seen_at", "expires_at", "source_count", "article_count", "updated_at").
		Values(c.ID, c.Headline, headlines, string(c.Status), string(c.SourceLanguage),
			c.FirstSeenAt, c.LastSeenAt, c.ExpiresAt, c.SourceCount, c.ArticleCount, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}
	return nil
}

// AddMember sets the article's cluster id and records the link in one
// transaction. The article row is only claimed while unclustered.
func (r *postgresClusterRepo) AddMember(ctx context.Context, clusterID, articleID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Update("articles").
		Set("cluster_id", clusterID).
		Where(sq.Eq{"id": articleID}).
		Where(sq.Or{sq.Eq{"cluster_id": nil}, sq.Eq{"cluster_id": clusterID}}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to assign article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT cluster_id FROM articles WHERE id = $1`, articleID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("article %s: %w", articleID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("article %s in %s: %w", articleID, current.String, ErrAlreadyClustered)
	}

	query, args, err = psql.Insert("cluster_articles").
		Columns("cluster_id", "article_id", "added_at").
		Values(clusterID, articleID, time.Now().UTC()).
		Suffix("ON CONFLICT (article_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to link article: %w", err)
	}
	return tx.Commit()
}

func (r *postgresClusterRepo) RecountMembers(ctx context.Context, clusterID string) (int, int, error) {
	const query = `
		UPDATE clusters c
		SET article_count = s.articles, source_count = s.sources, updated_at = NOW()
		FROM (
			SELECT COUNT(*) AS articles, COUNT(DISTINCT a.source_id) AS sources
			FROM cluster_articles ca
			JOIN articles a ON a.id = ca.article_id
			WHERE ca.cluster_id = $1
		) s
		WHERE c.id = $1
		RETURNING c.article_count, c.source_count
	`
	var articles, sources int
	err := r.db.QueryRowContext(ctx, query, clusterID).Scan(&articles, &sources)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to recount cluster: %w", err)
	}
	return articles, sources, nil
}

func (r *postgresClusterRepo) Touch(ctx context.Context, clusterID string, at time.Time) error {
	query, args, err := psql.Update("clusters").
		Set("last_seen_at", sq.Expr("GREATEST(last_seen_at, ?)", at)).
		Where(sq.Eq{"id": clusterID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresClusterRepo) ListForEnrichment(ctx context.Context, q EnrichmentQuery) ([]core.Cluster, error) {
	b := psql.Select(clusterColumns...).From("clusters").
		Where(sq.GtOrEq{"article_count": q.MinArticles}).
		Where(sq.GtOrEq{"source_count": q.MinSources}).
		OrderBy("last_seen_at DESC", "id ASC")
	if len(q.IDs) > 0 {
		b = b.Where(sq.Eq{"id": q.IDs})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return r.list(ctx, b)
}

func (r *postgresClusterRepo) SaveEnrichment(ctx context.Context, c *core.Cluster) error {
	headlines, err := marshalJSON(c.Headlines)
	if err != nil {
		return err
	}
	scores, err := marshalJSON(c.HeadlineScores)
	if err != nil {
		return err
	}
	titles, err := marshalJSON(c.MetaTitles)
	if err != nil {
		return err
	}
	descriptions, err := marshalJSON(c.MetaDescriptions)
	if err != nil {
		return err
	}

	query, args, err := psql.Update("clusters").
		Set("headlines", headlines).
		Set("headline_scores", scores).
		Set("meta_titles", titles).
		Set("meta_descriptions", descriptions).
		Set("topics", pq.Array(c.Topics)).
		Set("entities", pq.Array(c.Entities)).
		Set("source_language", string(c.SourceLanguage)).
		Set("image_url", nullString(c.ImageURL)).
		Set("image_source", nullString(string(c.ImageSource))).
		Set("image_relevance", c.ImageRelevance).
		Set("status", string(c.Status)).
		Set("slug", nullString(c.Slug)).
		Set("published_at", c.PublishedAt).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "clusters_slug_key" {
			return fmt.Errorf("%w: %s", ErrSlugTaken, c.Slug)
		}
		return fmt.Errorf("failed to save cluster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresClusterRepo) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	query, args, err := psql.Select("1").From("clusters").
		Where(sq.Eq{"slug": slug}).
		Where(sq.NotEq{"id": excludeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *postgresClusterRepo) list(ctx context.Context, b sq.SelectBuilder) ([]core.Cluster, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []core.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, *c)
	}
	return clusters, rows.Err()
}

func scanCluster(row scanner) (*core.Cluster, error) {
	var (
		c                                       core.Cluster
		headlines, scores, titles, descriptions []byte
		topics, entities                        pq.StringArray
		status, sourceLanguage                  string
		slug, imageURL, imageSource             sql.NullString
		imageRelevance                          sql.NullFloat64
		publishedAt                             sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Headline, &headlines, &scores, &titles, &descriptions,
		&topics, &entities, &status, &slug, &sourceLanguage,
		&imageURL, &imageSource, &imageRelevance,
		&c.FirstSeenAt, &c.LastSeenAt, &c.ExpiresAt,
		&c.SourceCount, &c.ArticleCount, &publishedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(headlines, &c.Headlines); err != nil {
		return nil, fmt.Errorf("cluster %s headlines: %w", c.ID, err)
	}
	if err := unmarshalJSON(scores, &c.HeadlineScores); err != nil {
		return nil, fmt.Errorf("cluster %s headline scores: %w", c.ID, err)
	}
	if err := unmarshalJSON(titles, &c.MetaTitles); err != nil {
		return nil, fmt.Errorf("cluster %s meta titles: %w", c.ID, err)
	}
	if err := unmarshalJSON(descriptions, &c.MetaDescriptions); err != nil {
		return nil, fmt.Errorf("cluster %s meta descriptions: %w", c.ID, err)
	}

	c.Topics = []string(topics)
	c.Entities = []string(entities)
	c.Status = core.ClusterStatus(status)
	c.SourceLanguage = core.Language(sourceLanguage)
	c.Slug = slug.String
	c.ImageURL = imageURL.String
	c.ImageSource = core.ImageSource(imageSource.String)
	c.ImageRelevance = imageRelevance.Float64
	if publishedAt.Valid {
		t := publishedAt.Time
		c.PublishedAt = &t
	}
	return &c, nil
}

// postgresSummaryRepo implements SummaryRepository for PostgreSQL
type postgresSummaryRepo struct {
	db *sql.DB
}

func (r *postgresSummaryRepo) Get(ctx context.Context, clusterID string) (*core.Summary, error) {
	query, args, err := psql.Select(
		"cluster_id", "texts", "scores", "key_facts", "length", "source_language",
		"translation_status", "source_count", "version", "updated_at",
	).From("summaries").Where(sq.Eq{"cluster_id": clusterID}).ToSql()
	if err != nil {
		return nil, err
	}

	var (
		s                          core.Summary
		texts, scores, translation []byte
		keyFacts                   pq.StringArray
		sourceLanguage             string
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ClusterID, &texts, &scores, &keyFacts, &s.Length, &sourceLanguage,
		&translation, &s.SourceCount, &s.Version, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(texts, &s.Texts); err != nil {
		return nil, fmt.Errorf("summary %s texts: %w", clusterID, err)
	}
	if err := unmarshalJSON(scores, &s.Scores); err != nil {
		return nil, fmt.Errorf("summary %s scores: %w", clusterID, err)
	}
	if err := unmarshalJSON(translation, &s.TranslationStatus); err != nil {
		return nil, fmt.Errorf("summary %s translation status: %w", clusterID, err)
	}
	s.KeyFacts = []string(keyFacts)
	s.SourceLanguage = core.Language(sourceLanguage)
	return &s, nil
}

func (r *postgresSummaryRepo) Upsert(ctx context.Context, s *core.Summary) error {
	texts, err := marshalJSON(s.Texts)
	if err != nil {
		return err
	}
	scores, err := marshalJSON(s.Scores)
	if err != nil {
		return err
	}
	translation, err := marshalJSON(s.TranslationStatus)
	if err != nil {
		return err
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("summaries").
		Columns("cluster_id", "texts", "scores", "key_facts", "length", "source_language",
			"translation_status", "source_count", "version", "updated_at").
		Values(s.ClusterID, texts, scores, pq.Array(s.KeyFacts), s.Length, string(s.SourceLanguage),
			translation, s.SourceCount, s.Version, updatedAt).
		Suffix(`ON CONFLICT (cluster_id) DO UPDATE SET
			texts = EXCLUDED.texts,
			scores = EXCLUDED.scores,
			key_facts = EXCLUDED.key_facts,
			length = EXCLUDED.length,
			source_language = EXCLUDED.source_language,
			translation_status = EXCLUDED.translation_status,
			source_count = EXCLUDED.source_count,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// marshalJSON encodes v for a JSONB column, storing NULL for empty maps.
func marshalJSON[T any](v map[core.Language]T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
