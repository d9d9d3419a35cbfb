package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/quality"
)

// Gate names double as stage names in logs.
const (
	stageSummary           = "summary"
	stageTranslateSummary  = "translate_summary"
	stageTranslateHeadline = "translate_headline"
	stageSEO               = "seo"
	stageImage             = "image"
)

// gateSummary summarises the cluster's articles in lang.
func (o *Orchestrator) gateSummary(ctx context.Context, articles []core.Article, lang core.Language) quality.Outcome[core.SummaryResult] {
	return quality.Gate(ctx,
		quality.GateOptions{Name: stageSummary, Threshold: o.policy.SummaryThreshold, MaxRetries: o.policy.MaxQualityRetries},
		func(ctx context.Context) (core.SummaryResult, error) {
			return o.gen.Summarize(ctx, articles, lang)
		},
		func(r core.SummaryResult) float64 {
			return quality.ScoreSummary(r.Text, r.Language)
		},
		nil)
}

// gateTranslation translates text, copying the source unchanged when every
// attempt fails.
func (o *Orchestrator) gateTranslation(ctx context.Context, stage, text string, from, to core.Language) quality.Outcome[core.TranslationResult] {
	return quality.Gate(ctx,
		quality.GateOptions{Name: stage, Threshold: o.policy.TranslationThreshold, MaxRetries: o.policy.MaxQualityRetries},
		func(ctx context.Context) (core.TranslationResult, error) {
			return o.gen.Translate(ctx, text, from, to)
		},
		func(r core.TranslationResult) float64 {
			return quality.ScoreTranslation(text, r.Text, from, to)
		},
		func() core.TranslationResult {
			return core.TranslationResult{Text: text, From: from, To: from}
		})
}

// gateSEO extracts search metadata, accepting only complete results.
func (o *Orchestrator) gateSEO(ctx context.Context, summary, headline string, articles []core.Article, fallback func() core.SEOResult) quality.Outcome[core.SEOResult] {
	return quality.Gate(ctx,
		quality.GateOptions{Name: stageSEO, Threshold: 100, MaxRetries: o.policy.MaxQualityRetries},
		func(ctx context.Context) (core.SEOResult, error) {
			return o.gen.ExtractSEO(ctx, summary, headline, articles)
		},
		func(r core.SEOResult) float64 {
			return seoCompleteness(r, o.policy.Languages)
		},
		fallback)
}

// gateImage asks the generator to choose among candidates of one tier.
func (o *Orchestrator) gateImage(ctx context.Context, candidates []core.ImageCandidate, headline, summary string) quality.Outcome[core.ImageResult] {
	first := candidates[0]
	return quality.Gate(ctx,
		quality.GateOptions{Name: stageImage, Threshold: o.policy.ImageThreshold, MaxRetries: o.policy.MaxQualityRetries},
		func(ctx context.Context) (core.ImageResult, error) {
			return o.gen.SelectImage(ctx, candidates, headline, summary)
		},
		func(r core.ImageResult) float64 {
			return quality.Denormalize(r.Relevance)
		},
		func() core.ImageResult {
			return core.ImageResult{URL: first.URL, Source: first.Source, Relevance: quality.Normalize(quality.ScoreImage(first))}
		})
}

// seoCompleteness scores the share of required SEO fields present.
func seoCompleteness(r core.SEOResult, langs []core.Language) float64 {
	total := 2*len(langs) + 1
	have := len(langs) - len(r.Titles.Missing(langs, 1))
	have += len(langs) - len(r.Descriptions.Missing(langs, 1))
	if len(r.Topics) > 0 {
		have++
	}
	return 100 * float64(have) / float64(total)
}

// logOutcome records the final score of a gated call.
func logOutcome[T any](log *slog.Logger, clusterID, stage string, out quality.Outcome[T], args ...any) {
	attrs := append([]any{
		"cluster_id", clusterID,
		"stage", stage,
		"score", fmt.Sprintf("%.1f", out.Score),
		"attempts", out.Attempts,
	}, args...)
	switch {
	case out.Accepted:
		log.Debug("Stage accepted", attrs...)
	case out.FellBack:
		log.Warn("Stage fell back", append(attrs, "error", out.Err.Error())...)
	case out.Err != nil:
		log.Warn("Stage failed", append(attrs, "error", out.Err.Error())...)
	default:
		log.Info("Stage below threshold, keeping best result", attrs...)
	}
}
