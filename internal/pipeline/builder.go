package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/clustering"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/feeds"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/fetch"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/langdetect"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/llm"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/sources"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/store"
)

// pageCacheTTL bounds how long extracted page images are reused.
const pageCacheTTL = 7 * 24 * time.Hour

// Builder helps construct a fully configured Pipeline
type Builder struct {
	cfg       *config.Config
	db        persistence.Database
	gen       Generator
	dryRun    bool
	noEnrich  bool
	noLedger  bool
	pageCache bool
}

// NewBuilder creates a new pipeline builder from configuration
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg, pageCache: true}
}

// WithDatabase uses db instead of connecting to Postgres.
func (b *Builder) WithDatabase(db persistence.Database) *Builder {
	b.db = db
	return b
}

// WithGenerator uses gen instead of creating a Gemini client.
func (b *Builder) WithGenerator(gen Generator) *Builder {
	b.gen = gen
	return b
}

// DryRun runs against an in-memory store with no run ledger. Enrichment
// still runs when a Gemini key is configured.
func (b *Builder) DryRun() *Builder {
	b.dryRun = true
	b.noLedger = true
	b.pageCache = false
	return b
}

// WithoutEnrichment builds a pipeline that only ingests and clusters.
func (b *Builder) WithoutEnrichment() *Builder {
	b.noEnrich = true
	return b
}

// WithoutLedger disables the run ledger and with it the interval check.
func (b *Builder) WithoutLedger() *Builder {
	b.noLedger = true
	return b
}

// Pipeline is the set of wired components behind the CLI commands.
type Pipeline struct {
	DB           persistence.Database
	Sources      *sources.Manager
	Engine       *clustering.Engine
	Orchestrator *Orchestrator // nil when enrichment is disabled
	Ledger       *store.Store  // nil when the ledger is disabled
	Runner       *Runner

	closers []func() error
}

// Close releases every component in reverse order of creation.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PruneCache drops page image cache entries older than the cache TTL.
func (p *Pipeline) PruneCache(ctx context.Context) (int64, error) {
	if p.Ledger == nil {
		return 0, nil
	}
	return p.Ledger.CleanupPageImages(ctx, pageCacheTTL)
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build(ctx context.Context) (_ *Pipeline, err error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	cfg := b.cfg
	log := logger.Get()

	p := &Pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	// Store
	switch {
	case b.db != nil:
		p.DB = b.db
	case b.dryRun:
		p.DB = persistence.NewMemoryDB()
		log.Info("Dry run: using in-memory store")
	default:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("database URL is required. Set DATABASE_URL environment variable or database.url in config file")
		}
		db, err := persistence.NewPostgresDB(ctx, cfg.Database.URL, persistence.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 0),
		})
		if err != nil {
			return nil, err
		}
		p.DB = db
		p.closers = append(p.closers, db.Close)
	}

	if !b.noLedger && cfg.Pipeline.LedgerPath != "" {
		ledger, err := store.Open(cfg.Pipeline.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run ledger: %w", err)
		}
		p.Ledger = ledger
		p.closers = append(p.closers, ledger.Close)
	}

	detector := langdetect.New(langdetect.Options{
		OfficialDomains: cfg.Enrichment.OfficialDomains,
		OfficialWeight:  cfg.Enrichment.OfficialWeight,
		HalfLife:        config.Duration(cfg.Enrichment.RecencyHalfLife, 0),
	})

	// Ingestion
	fetcher := feeds.NewFetcher(feeds.Options{
		Timeout:       config.Duration(cfg.Feeds.Timeout, 0),
		UserAgent:     cfg.Feeds.UserAgent,
		RetryAttempts: cfg.Feeds.RetryAttempts,
		RetryBackoff:  config.Duration(cfg.Feeds.RetryBackoff, 0),
	})
	p.Sources = sources.NewManager(p.DB.Articles(), fetcher, cfg.Feeds.Sources, sources.Options{
		Workers:         cfg.Feeds.Workers,
		InsertBatchSize: cfg.Feeds.InsertBatchSize,
		Detector:        detector,
	})

	// Clustering
	clusterCfg := clustering.DefaultConfig()
	if cfg.Clustering.SimilarityThreshold > 0 {
		clusterCfg.SimilarityThreshold = cfg.Clustering.SimilarityThreshold
	}
	if w := cfg.Clustering.Window(); w > 0 {
		clusterCfg.Window = w
	}
	if e := cfg.Clustering.Expiry(); e > 0 {
		clusterCfg.Expiry = e
	}
	p.Engine = clustering.NewEngine(p.DB.Clusters(), clusterCfg)

	// Enrichment
	if !b.noEnrich {
		gen, err := b.generator(ctx, p)
		if err != nil {
			return nil, err
		}
		if gen != nil {
			pages := fetch.PageOptions{
				Timeout:   config.Duration(cfg.Feeds.Timeout, 0),
				UserAgent: cfg.Feeds.UserAgent,
			}
			if b.pageCache && p.Ledger != nil {
				pages.Cache = p.Ledger
				pages.CacheTTL = pageCacheTTL
			}
			p.Orchestrator = NewOrchestrator(p.DB, gen, detector, PolicyFromConfig(cfg.Enrichment)).
				WithPageFetcher(fetch.NewPageFetcher(pages))
		}
	}

	var ledger Ledger
	if p.Ledger != nil {
		ledger = p.Ledger
	}
	p.Runner = NewRunner(p.Sources, p.DB, p.Engine, p.Orchestrator, ledger,
		config.Duration(cfg.Pipeline.MinRunInterval, 0))
	return p, nil
}

// generator returns the configured generator. In a dry run without an API
// key it returns nil and enrichment is skipped.
func (b *Builder) generator(ctx context.Context, p *Pipeline) (Generator, error) {
	if b.gen != nil {
		return b.gen, nil
	}
	g := b.cfg.AI.Gemini
	if b.dryRun && g.APIKey == "" {
		logger.Get().Info("Dry run: no Gemini API key, enrichment disabled")
		return nil, nil
	}
	client, err := llm.NewClient(ctx, llm.Options{
		APIKey:            g.APIKey,
		Model:             g.Model,
		Temperature:       g.Temperature,
		Timeout:           config.Duration(g.Timeout, 0),
		RequestsPerMinute: g.RequestsPerMinute,
		RetryAttempts:     g.RetryAttempts,
	})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, client.Close)
	logger.Get().Info("Gemini generator ready", "model", client.ModelName())
	return client, nil
}
