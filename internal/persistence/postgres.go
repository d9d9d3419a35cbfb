package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// psql builds statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db        *sql.DB
	articles  ArticleRepository
	clusters  ClusterRepository
	summaries SummaryRepository
}

// NewPostgresDB opens and pings a PostgreSQL connection.
func NewPostgresDB(ctx context.Context, connectionString string, opts PoolOptions) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:        db,
		articles:  &postgresArticleRepo{db: db},
		clusters:  &postgresClusterRepo{db: db},
		summaries: &postgresSummaryRepo{db: db},
	}, nil
}

func (p *PostgresDB) Articles() ArticleRepository  { return p.articles }
func (p *PostgresDB) Clusters() ClusterRepository  { return p.clusters }
func (p *PostgresDB) Summaries() SummaryRepository { return p.summaries }

func (p *PostgresDB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresDB) Close() error                   { return p.db.Close() }

// runner is satisfied by *sql.DB and *sql.Tx.
type runner interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// postgresArticleRepo implements ArticleRepository for PostgreSQL
type postgresArticleRepo struct {
	db *sql.DB
}

var articleColumns = []string{
	"id", "source_id", "title", "url", "guid", "content", "excerpt",
	"published_at", "language", "hash", "image_urls", "cluster_id", "created_at",
}

func (r *postgresArticleRepo) Upsert(ctx context.Context, article *core.Article) (bool, error) {
	inserted, err := r.insert(ctx, r.db, []*core.Article{article})
	if err != nil {
		return false, err
	}
	if len(inserted) == 1 {
		return true, nil
	}

	// Existing row: report its id.
	query, args, err := psql.Select("id").From("articles").Where(sq.Eq{"hash": article.Hash}).ToSql()
	if err != nil {
		return false, err
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&article.ID); err != nil {
		return false, fmt.Errorf("failed to look up article by hash: %w", err)
	}
	return false, nil
}

func (r *postgresArticleRepo) UpsertBatch(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	ptrs := make([]*core.Article, len(articles))
	for i := range articles {
		ptrs[i] = &articles[i]
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := r.insert(ctx, tx, ptrs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit article batch: %w", err)
	}

	var out []core.Article
	for _, a := range articles {
		if ids[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// insert writes articles with ON CONFLICT (hash) DO NOTHING and returns the
// ids of rows that were actually inserted.
func (r *postgresArticleRepo) insert(ctx context.Context, q runner, articles []*core.Article) (map[string]bool, error) {
	now := time.Now().UTC()
	b := psql.Insert("articles").Columns(articleColumns...)
	for _, a := range articles {
		if a.Hash == "" {
			return nil, fmt.Errorf("article %q has no hash", a.URL)
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		b = b.Values(
			a.ID, a.SourceID, a.Title, a.URL, nullString(a.GUID), a.Content, a.Excerpt,
			nullTime(a.PublishedAt), string(a.Language), a.Hash, pq.Array(a.ImageURLs),
			nullString(a.ClusterID), a.CreatedAt,
		)
	}
	query, args, err := b.Suffix("ON CONFLICT (hash) DO NOTHING RETURNING id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert articles: %w", err)
	}
	defer rows.Close()

	inserted := make(map[string]bool, len(articles))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		inserted[id] = true
	}
	return inserted, rows.Err()
}

func (r *postgresArticleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	query, args, err := psql.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *postgresArticleRepo) ListUnclustered(ctx context.Context, limit int) ([]core.Article, error) {
	b := psql.Select(articleColumns...).From("articles").
		Where(sq.Eq{"cluster_id": nil}).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.list(ctx, b)
}

func (r *postgresArticleRepo) ListByCluster(ctx context.Context, clusterID string) ([]core.Article, error) {
	b := psql.Select(articleColumns...).From("articles").
		Where(sq.Eq{"cluster_id": clusterID}).
		OrderBy("published_at DESC NULLS LAST")
	return r.list(ctx, b)
}

func (r *postgresArticleRepo) list(ctx context.Context, b sq.SelectBuilder) ([]core.Article, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row scanner) (*core.Article, error) {
	var (
		a           core.Article
		guid        sql.NullString
		clusterID   sql.NullString
		publishedAt sql.NullTime
		language    string
		imageURLs   pq.StringArray
	)
	err := row.Scan(
		&a.ID, &a.SourceID, &a.Title, &a.URL, &guid, &a.Content, &a.Excerpt,
		&publishedAt, &language, &a.Hash, &imageURLs, &clusterID, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.GUID = guid.String
	a.ClusterID = clusterID.String
	a.Language = core.Language(language)
	a.ImageURLs = []string(imageURLs)
	if publishedAt.Valid {
		a.PublishedAt = publishedAt.Time
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
