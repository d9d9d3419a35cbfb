package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/quality"
)

// finalize fills every field a published cluster must carry, copying from
// the best available language where a stage produced nothing. A source
// summary shorter than MinFieldLength is replaced by the lead article text
// when that is longer.
func (o *Orchestrator) finalize(out *outcome) {
	c, s := &out.cluster, &out.summary
	langs := o.policy.Languages

	if c.Headlines.Get(out.headlineLang) == "" && c.Headline != "" {
		c.Headlines.Set(out.headlineLang, c.Headline)
		c.HeadlineScores[out.headlineLang] = 1
	}
	for _, lang := range c.Headlines.Missing(langs, 1) {
		_, best := c.Headlines.Best(out.headlineLang)
		if best == "" {
			best = c.Headline
		}
		c.Headlines.Set(lang, best)
		c.HeadlineScores[lang] = 0
	}

	_, text := s.Texts.Best(s.SourceLanguage)
	srcLen := len([]rune(s.Texts.Get(s.SourceLanguage)))
	if text == "" || srcLen < o.policy.MinFieldLength {
		lead := o.leadSummary(out.articles, out.sourceLang)
		if text == "" || (srcLen > 0 && len([]rune(lead.Text)) > srcLen) {
			s.SourceLanguage = lead.Language
			s.Texts = core.Localized{lead.Language: lead.Text}
			s.Scores = map[core.Language]float64{lead.Language: quality.Normalize(quality.ScoreSummary(lead.Text, lead.Language))}
			s.TranslationStatus = map[core.Language]core.TranslationStatus{lead.Language: core.TranslationCopied}
			s.KeyFacts = nil
			s.Length = len([]rune(lead.Text))
			s.SourceCount = c.SourceCount
			if !out.regenerated {
				s.Version++
			}
			out.regenerated = true
			out.summaryChanged = true
		}
	}
	if s.SourceLanguage == "" || s.Texts.Get(s.SourceLanguage) == "" {
		s.SourceLanguage, _ = s.Texts.Best(out.sourceLang)
	}
	for _, lang := range s.Texts.Missing(langs, o.policy.MinFieldLength) {
		if lang == s.SourceLanguage {
			continue
		}
		text := replacementText(s.Texts, s.SourceLanguage, o.policy.MinFieldLength)
		if text == "" || text == s.Texts.Get(lang) {
			continue
		}
		s.Texts.Set(lang, text)
		s.Scores[lang] = 0
		s.TranslationStatus[lang] = core.TranslationCopied
		out.summaryChanged = true
	}

	for _, lang := range c.MetaTitles.Missing(langs, 1) {
		c.MetaTitles.Set(lang, clip(headlineText(*c, lang), maxMetaTitleRunes))
	}
	for _, lang := range c.MetaDescriptions.Missing(langs, 1) {
		c.MetaDescriptions.Set(lang, clip(summaryText(*s, lang), maxMetaDescription))
	}

	if !hasRequiredTopics(c.Topics) {
		c.Topics = repairTopics(c.Topics)
	}
	c.SourceLanguage = s.SourceLanguage
}

// replacementText returns the source-language text when it is long enough,
// else the first long enough text in display order, else the longest.
func replacementText(texts core.Localized, source core.Language, minLen int) string {
	order := append([]core.Language{source}, core.Languages...)
	longest := ""
	for _, lang := range order {
		v := texts.Get(lang)
		if len([]rune(v)) >= minLen {
			return v
		}
		if len([]rune(v)) > len([]rune(longest)) {
			longest = v
		}
	}
	return longest
}

// publish writes the summary, assigns a slug on first publication and marks
// the cluster published. The summary is written first so that a published
// cluster always has one.
func (o *Orchestrator) publish(ctx context.Context, out *outcome) error {
	o.finalize(out)
	now := o.now().UTC()
	c := &out.cluster

	if out.summaryChanged {
		out.summary.ClusterID = c.ID
		out.summary.UpdatedAt = now
		if err := o.db.Summaries().Upsert(ctx, &out.summary); err != nil {
			return fmt.Errorf("failed to save summary: %w", err)
		}
	}

	base := ""
	if c.Slug == "" {
		base = Slugify(firstNonEmpty(c.MetaTitles.Get(core.LangEnglish), c.Headlines.Get(core.LangEnglish), c.Headline))
		slug, err := uniqueSlug(ctx, o.db.Clusters(), base, c.ID)
		if err != nil {
			return err
		}
		c.Slug = slug
	}

	c.Status = core.StatusPublished
	if c.PublishedAt == nil {
		c.PublishedAt = &now
	}

	err := o.db.Clusters().SaveEnrichment(ctx, c)
	if errors.Is(err, persistence.ErrSlugTaken) && base != "" {
		o.log.Warn("Slug taken concurrently, retrying with cluster id", "cluster_id", c.ID, "slug", c.Slug)
		c.Slug = base + "-" + c.ID
		err = o.db.Clusters().SaveEnrichment(ctx, c)
	}
	if err != nil {
		return fmt.Errorf("failed to save cluster: %w", err)
	}

	o.log.Info("Cluster published",
		"cluster_id", c.ID,
		"slug", c.Slug,
		"source_language", c.SourceLanguage,
		"topics", c.Topics,
		"image_source", c.ImageSource)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
