package pipeline

import (
	"context"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/clustering"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/langdetect"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/sources"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/store"
)

// Generator produces enrichment content. Each call either returns a result
// or an error; quality is judged by the orchestrator.
type Generator interface {
	// Summarize writes a summary of the articles in lang
	Summarize(ctx context.Context, articles []core.Article, lang core.Language) (core.SummaryResult, error)

	// Translate translates text between two publishing languages
	Translate(ctx context.Context, text string, from, to core.Language) (core.TranslationResult, error)

	// ExtractSEO produces per-language titles and descriptions, topics and entities
	ExtractSEO(ctx context.Context, summary, headline string, articles []core.Article) (core.SEOResult, error)

	// SelectImage picks the most relevant of several candidates
	SelectImage(ctx context.Context, candidates []core.ImageCandidate, headline, summary string) (core.ImageResult, error)
}

// LanguageDetector identifies the source language of a cluster.
type LanguageDetector interface {
	// Detect pools weighted votes across samples
	Detect(samples []langdetect.Sample) langdetect.Result

	// DetectText detects a single text, returning "" when undetermined
	DetectText(text string) core.Language
}

// PageImageFetcher fetches an article page and returns its images. It is
// the last image tier.
type PageImageFetcher interface {
	Images(ctx context.Context, pageURL string) ([]string, error)
}

// Ingester fetches feeds and inserts new articles.
type Ingester interface {
	Aggregate(ctx context.Context) (*sources.AggregateResult, error)
}

// Clusterer assigns articles to story clusters.
type Clusterer interface {
	LoadWindow(ctx context.Context) (*clustering.Window, error)
	Assign(ctx context.Context, w *clustering.Window, articles []core.Article) (*clustering.Result, error)
}

// Ledger records pipeline runs.
type Ledger interface {
	StartRun(ctx context.Context) (string, error)
	FinishRun(ctx context.Context, id string, status store.RunStatus, stats any, runErr error) error
	LastSuccess(ctx context.Context) (time.Time, bool, error)
}
