package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/clustering"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/store"
)

// ErrRunTooSoon is returned when the previous successful run is more recent
// than the minimum run interval.
var ErrRunTooSoon = errors.New("pipeline: previous run too recent")

const defaultClusterBatch = 500

// Runner executes full pipeline runs: ingest, cluster, enrich.
type Runner struct {
	ingester     Ingester
	db           persistence.Database
	clusterer    Clusterer
	orchestrator *Orchestrator // nil disables enrichment
	ledger       Ledger        // nil disables the interval check and run records
	minInterval  time.Duration
	clusterBatch int
	log          *slog.Logger
	now          func() time.Time
}

// NewRunner creates a runner. orchestrator and ledger may be nil.
func NewRunner(ingester Ingester, db persistence.Database, clusterer Clusterer, orchestrator *Orchestrator, ledger Ledger, minInterval time.Duration) *Runner {
	return &Runner{
		ingester:     ingester,
		db:           db,
		clusterer:    clusterer,
		orchestrator: orchestrator,
		ledger:       ledger,
		minInterval:  minInterval,
		clusterBatch: defaultClusterBatch,
		log:          logger.Get(),
		now:          time.Now,
	}
}

// WithClock replaces the time source.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// RunOptions controls a single run.
type RunOptions struct {
	Force     bool // Ignore the minimum run interval
	SkipFetch bool // Cluster and enrich without fetching feeds
}

// Stats is the aggregate outcome of a run.
type Stats struct {
	Fetched         int           `json:"fetched"`
	Inserted        int           `json:"inserted"`
	ClustersTouched int           `json:"clusters_touched"`
	ClustersCreated int           `json:"clusters_created"`
	Categorized     int           `json:"categorized"`
	Summaries       int           `json:"summaries"`
	Published       int           `json:"published"`
	Errors          []string      `json:"errors"`
	Skipped         bool          `json:"skipped,omitempty"`
	Duration        time.Duration `json:"duration"`
}

func (s *Stats) addErr(err error) {
	s.Errors = append(s.Errors, err.Error())
}

// RunFullPipeline fetches feeds, clusters new articles and enriches eligible
// clusters. Per-source, per-article and per-stage failures are collected in
// Stats.Errors. Only store failures and cancellation abort the run; they are
// recorded in the ledger and returned.
func (r *Runner) RunFullPipeline(ctx context.Context, opts RunOptions) (*Stats, error) {
	start := r.now()
	stats := &Stats{Errors: []string{}}

	if !opts.Force && r.ledger != nil && r.minInterval > 0 {
		last, ok, err := r.ledger.LastSuccess(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to read run ledger: %w", err)
		}
		if ok && start.Sub(last) < r.minInterval {
			stats.Skipped = true
			r.log.Info("Skipping run, previous run too recent", "last_success", last, "min_interval", r.minInterval)
			id, err := r.ledger.StartRun(ctx)
			if err == nil {
				err = r.ledger.FinishRun(ctx, id, store.RunSkipped, stats, nil)
			}
			if err != nil {
				r.log.Warn("Failed to record skipped run", "run_id", id, "error", err.Error())
			}
			return stats, ErrRunTooSoon
		}
	}

	runID := ""
	if r.ledger != nil {
		id, err := r.ledger.StartRun(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to record run start: %w", err)
		}
		runID = id
	}
	r.log.Info("Pipeline run started", "run_id", runID, "skip_fetch", opts.SkipFetch)

	err := r.run(ctx, opts, stats)
	stats.Duration = r.now().Sub(start)

	if r.ledger != nil {
		status := store.RunSucceeded
		if err != nil {
			status = store.RunFailed
		}
		// The run context may already be cancelled.
		if ferr := r.ledger.FinishRun(context.WithoutCancel(ctx), runID, status, stats, err); ferr != nil {
			r.log.Warn("Failed to record run result", "run_id", runID, "error", ferr.Error())
		}
	}
	if err != nil {
		logger.Error("Pipeline run failed", err, "run_id", runID, "duration", stats.Duration)
		return stats, err
	}

	r.log.Info("Pipeline run complete",
		"run_id", runID,
		"fetched", stats.Fetched,
		"inserted", stats.Inserted,
		"clusters_touched", stats.ClustersTouched,
		"categorized", stats.Categorized,
		"summaries", stats.Summaries,
		"errors", len(stats.Errors),
		"duration", stats.Duration)
	return stats, nil
}

func (r *Runner) run(ctx context.Context, opts RunOptions, stats *Stats) error {
	if !opts.SkipFetch && r.ingester != nil {
		agg, err := r.ingester.Aggregate(ctx)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		stats.Fetched = agg.Fetched
		stats.Inserted = agg.Inserted
		for _, e := range agg.Errors {
			stats.addErr(e)
		}
	}

	touched, err := r.Cluster(ctx, stats)
	if err != nil {
		return err
	}

	if r.orchestrator == nil {
		r.log.Info("Enrichment disabled")
		return nil
	}
	res, err := r.orchestrator.EnrichAll(ctx, EnrichOptions{Touched: touched})
	if err != nil {
		return fmt.Errorf("enrichment failed: %w", err)
	}
	stats.Categorized = res.Categorized
	stats.Summaries = res.Summaries
	stats.Published = res.Published
	for _, e := range res.Errors {
		stats.addErr(e)
	}
	return nil
}

// Cluster assigns every unclustered article, one batch at a time, against a
// window loaded once for the run. It returns the touched clusters with their
// latest counts.
func (r *Runner) Cluster(ctx context.Context, stats *Stats) (map[string]clustering.ClusterStats, error) {
	window, err := r.clusterer.LoadWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster window: %w", err)
	}

	touched := make(map[string]clustering.ClusterStats)
	for {
		articles, err := r.db.Articles().ListUnclustered(ctx, r.clusterBatch)
		if err != nil {
			return touched, fmt.Errorf("failed to list unclustered articles: %w", err)
		}
		if len(articles) == 0 {
			break
		}

		res, err := r.clusterer.Assign(ctx, window, articles)
		if err != nil {
			return touched, fmt.Errorf("clustering failed: %w", err)
		}
		for id, st := range res.Touched {
			if prev, ok := touched[id]; ok && prev.Created {
				st.Created = true
			}
			touched[id] = st
		}
		stats.ClustersCreated += res.Created
		for _, e := range res.Errors {
			stats.addErr(e)
		}

		// Failed articles stay unclustered and would be listed again.
		if len(articles) < r.clusterBatch || len(res.Assigned) == 0 {
			break
		}
	}
	stats.ClustersTouched = len(touched)
	return touched, nil
}
