package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/clustering"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/langdetect"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/queue"
)

// Orchestrator decides which enrichment stages each cluster needs and runs
// them in dependency order, publishing the result.
type Orchestrator struct {
	db       persistence.Database
	gen      Generator
	detector LanguageDetector
	pages    PageImageFetcher
	policy   Policy
	log      *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. gen and detector are required.
func NewOrchestrator(db persistence.Database, gen Generator, detector LanguageDetector, policy Policy) *Orchestrator {
	return &Orchestrator{
		db:       db,
		gen:      gen,
		detector: detector,
		policy:   policy.normalized(),
		log:      logger.Get(),
		now:      time.Now,
	}
}

// WithPageFetcher enables the live page image tier.
func (o *Orchestrator) WithPageFetcher(p PageImageFetcher) *Orchestrator {
	o.pages = p
	return o
}

// WithClock replaces the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Report describes what happened to one cluster.
type Report struct {
	ClusterID   string
	Needs       Needs
	Skipped     bool
	Reason      string // Why the cluster was skipped
	Summarized  bool   // Summary (re)generated
	Categorized bool   // Topics (re)computed
	Published   bool
	Slug        string
	Tasks       queue.Stats
	Errors      []error // Non-fatal stage errors
}

// EnrichOptions selects clusters for EnrichAll.
type EnrichOptions struct {
	IDs   []string // Restrict to these clusters
	Limit int      // Policy BatchLimit when <= 0

	// Touched holds the clusters the current run assigned articles to.
	// Eligible ones are enriched ahead of the rest. Ignored when IDs is set.
	Touched map[string]clustering.ClusterStats
}

// selectClusters lists the clusters for one EnrichAll call, at most limit of
// them. Touched clusters that pass the count thresholds come first.
func (o *Orchestrator) selectClusters(ctx context.Context, opts EnrichOptions) ([]core.Cluster, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = o.policy.BatchLimit
	}
	q := persistence.EnrichmentQuery{
		IDs:         opts.IDs,
		MinArticles: o.policy.MinArticles,
		MinSources:  o.policy.MinSources,
		Limit:       limit,
	}
	if len(opts.IDs) > 0 || len(opts.Touched) == 0 {
		return o.db.Clusters().ListForEnrichment(ctx, q)
	}

	var ids []string
	for id, st := range opts.Touched {
		if o.policy.Eligible(core.Cluster{ArticleCount: st.ArticleCount, SourceCount: st.SourceCount}) {
			ids = append(ids, id)
		}
	}

	var out []core.Cluster
	if len(ids) > 0 {
		q.IDs = ids
		touched, err := o.db.Clusters().ListForEnrichment(ctx, q)
		if err != nil {
			return nil, err
		}
		out = touched
	}
	if limit > 0 && len(out) >= limit {
		return out[:limit], nil
	}

	q.IDs = nil
	if limit > 0 {
		q.Limit = limit + len(out)
	}
	rest, err := o.db.Clusters().ListForEnrichment(ctx, q)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c.ID] = true
	}
	for _, c := range rest {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !seen[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// EnrichResult aggregates the reports of one EnrichAll call.
type EnrichResult struct {
	Considered  int
	Skipped     int
	Published   int
	Summaries   int
	Categorized int
	Reports     []Report
	Errors      []error // Stage errors and per-cluster failures
}

// EnrichAll enriches every eligible cluster, most recently active first.
// Clusters in opts.Touched take precedence over older candidates.
// Clusters run on a pool of ClusterWorkers workers. A cluster that fails to
// persist is recorded in Errors and the others continue; only a failure to
// list clusters or cancellation of ctx returns an error.
func (o *Orchestrator) EnrichAll(ctx context.Context, opts EnrichOptions) (*EnrichResult, error) {
	clusters, err := o.selectClusters(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters for enrichment: %w", err)
	}

	result := &EnrichResult{Considered: len(clusters)}
	if len(clusters) == 0 {
		return result, nil
	}

	var (
		mu      sync.Mutex
		reports = make([]Report, len(clusters))
		failed  = make([]error, len(clusters))
	)
	tasks := make([]*queue.Task, 0, len(clusters))
	for i, c := range clusters {
		tasks = append(tasks, &queue.Task{
			ID:        "enrich:" + c.ID,
			Type:      "enrich_cluster",
			ClusterID: c.ID,
			Priority:  i,
			Run: func(ctx context.Context) error {
				report, err := o.EnrichCluster(ctx, c)
				mu.Lock()
				reports[i], failed[i] = report, err
				mu.Unlock()
				return err
			},
		})
	}

	if _, _, err := queue.Run(ctx, queue.PoolConfig{Workers: o.policy.ClusterWorkers}, tasks); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	mu.Lock()
	defer mu.Unlock()
	for i, r := range reports {
		if r.ClusterID == "" {
			r.ClusterID = clusters[i].ID
		}
		result.Reports = append(result.Reports, r)
		result.Errors = append(result.Errors, r.Errors...)
		if failed[i] != nil {
			result.Errors = append(result.Errors, fmt.Errorf("cluster %s: %w", r.ClusterID, failed[i]))
		}
		switch {
		case r.Skipped:
			result.Skipped++
		case r.Published:
			result.Published++
		}
		if r.Summarized {
			result.Summaries++
		}
		if r.Categorized {
			result.Categorized++
		}
	}

	o.log.Info("Enrichment complete",
		"considered", result.Considered,
		"skipped", result.Skipped,
		"published", result.Published,
		"summaries", result.Summaries,
		"categorized", result.Categorized,
		"errors", len(result.Errors))
	return result, nil
}

// EnrichCluster runs the stages c needs and publishes it. Clusters whose
// flags are all clear are skipped without any generator call. Stage failures
// degrade to fallbacks and are reported in Report.Errors; the returned error
// is reserved for store failures and cancellation.
func (o *Orchestrator) EnrichCluster(ctx context.Context, c core.Cluster) (Report, error) {
	report := Report{ClusterID: c.ID}
	if !o.policy.Eligible(c) {
		report.Skipped, report.Reason = true, "ineligible"
		return report, nil
	}

	summary, err := o.db.Summaries().Get(ctx, c.ID)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		summary = nil
	case err != nil:
		return report, fmt.Errorf("failed to load summary: %w", err)
	}

	headlineLang := o.headlineLanguage(c)
	needs := evaluateNeeds(o.policy, c, summary, headlineLang)
	report.Needs = needs
	if !needs.Any() {
		report.Skipped, report.Reason = true, "up to date"
		o.log.Debug("Cluster up to date", "cluster_id", c.ID)
		return report, nil
	}

	articles, err := o.db.Articles().ListByCluster(ctx, c.ID)
	if err != nil {
		return report, fmt.Errorf("failed to load articles: %w", err)
	}
	if len(articles) == 0 {
		report.Skipped, report.Reason = true, "no articles"
		return report, nil
	}

	j := newJob(c, summary, articles, needs)
	j.headlineLang = headlineLang
	j.sourceLang = o.sourceLanguage(j)

	o.log.Info("Enriching cluster",
		"cluster_id", c.ID,
		"needs", needs.String(),
		"source_language", j.sourceLang,
		"articles", len(articles))

	tasks := o.plan(j)
	if len(tasks) > 0 {
		_, stats, err := queue.Run(ctx, queue.PoolConfig{
			Workers:      len(tasks),
			TaskTimeout:  o.policy.TaskTimeout,
			PollInterval: 5 * time.Millisecond,
		}, tasks)
		report.Tasks = stats
		if err != nil {
			j.seal()
			return report, err
		}
		if stats.Failed > 0 {
			o.log.Warn("Stage tasks failed", "cluster_id", c.ID, "failed", stats.Failed)
		}
	}
	out := j.seal()

	err = o.publish(ctx, out)
	report.Errors = out.errs
	if err != nil {
		return report, err
	}
	report.Summarized = out.regenerated
	report.Categorized = out.categorized
	report.Published = true
	report.Slug = out.cluster.Slug
	return report, nil
}

// plan builds the stage tasks for a job. Summary and headline translations
// run first; SEO waits for both, and image selection waits for the summary
// and the headlines. A failed dependency still releases its dependents,
// which then work from whatever the job holds.
func (o *Orchestrator) plan(j *job) []*queue.Task {
	var tasks []*queue.Task
	add := func(stage string, lang core.Language, priority int, deps []string, run func(ctx context.Context) error) string {
		id := j.cluster.ID + ":" + stage
		if lang != "" {
			id += ":" + string(lang)
		}
		tasks = append(tasks, &queue.Task{
			ID:         id,
			Type:       stage,
			ClusterID:  j.cluster.ID,
			Priority:   priority,
			DependsOn:  deps,
			MaxRetries: o.policy.TaskMaxRetries,
			Run:        run,
		})
		return id
	}

	var summaryID []string
	if j.needs.Summary {
		summaryID = []string{add(stageSummary, "", 0, nil, func(ctx context.Context) error {
			return o.runSummary(ctx, j)
		})}
	}

	textDeps := append([]string(nil), summaryID...)
	if j.needs.Summary || j.needs.Translations {
		for _, lang := range o.policy.Languages {
			id := add(stageTranslateSummary, lang, 1, summaryID, func(ctx context.Context) error {
				return o.runSummaryTranslation(ctx, j, lang)
			})
			textDeps = append(textDeps, id)
		}
	}

	var headlineIDs []string
	for _, lang := range j.needs.HeadlineLanguages {
		headlineIDs = append(headlineIDs, add(stageTranslateHeadline, lang, 1, nil, func(ctx context.Context) error {
			return o.runHeadlineTranslation(ctx, j, lang)
		}))
	}

	if j.needs.SEO {
		add(stageSEO, "", 2, append(textDeps, headlineIDs...), func(ctx context.Context) error {
			return o.runSEO(ctx, j)
		})
	}
	if j.needs.Image {
		add(stageImage, "", 3, append(append([]string(nil), summaryID...), headlineIDs...), func(ctx context.Context) error {
			return o.runImage(ctx, j)
		})
	}
	return tasks
}

// headlineLanguage detects the language of the canonical headline.
func (o *Orchestrator) headlineLanguage(c core.Cluster) core.Language {
	if lang := o.detector.DetectText(c.Headline); o.supported(lang) {
		return lang
	}
	if o.supported(c.SourceLanguage) {
		return c.SourceLanguage
	}
	return o.defaultLanguage()
}

// sourceLanguage picks the summary language: the existing summary's when it
// is kept, otherwise a weighted vote over the cluster's articles.
func (o *Orchestrator) sourceLanguage(j *job) core.Language {
	if !j.needs.Summary && o.supported(j.summary.SourceLanguage) {
		return j.summary.SourceLanguage
	}
	samples := make([]langdetect.Sample, 0, len(j.articles))
	for _, a := range j.articles {
		samples = append(samples, langdetect.Sample{
			Text:        a.Title + ". " + a.Text(),
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}
	res := o.detector.Detect(samples)
	if o.supported(res.Language) {
		return res.Language
	}
	return o.defaultLanguage()
}

func (o *Orchestrator) supported(lang core.Language) bool {
	for _, l := range o.policy.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func (o *Orchestrator) defaultLanguage() core.Language {
	if o.supported(core.LangEnglish) {
		return core.LangEnglish
	}
	return o.policy.Languages[0]
}
