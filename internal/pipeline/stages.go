package pipeline

import (
	"context"
	"strings"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/fetch"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/quality"
)

const (
	leadSummaryRunes   = 600
	maxTierCandidates  = 8
	minCandidateScore  = 40
	maxMetaTitleRunes  = 60
	maxMetaDescription = 155
)

// runSummary generates the summary in the source language. When every
// attempt fails it retries in English, and failing that uses the lead
// article's text unchanged.
func (o *Orchestrator) runSummary(ctx context.Context, j *job) error {
	var (
		articles []core.Article
		lang     core.Language
		id       string
	)
	j.read(func() { articles, lang, id = j.articles, j.sourceLang, j.cluster.ID })
	srcLang := lang

	out := o.gateSummary(ctx, articles, lang)
	logOutcome(o.log, id, stageSummary, out, "language", lang)
	if out.Err != nil && ctx.Err() == nil && lang != core.LangEnglish && o.supported(core.LangEnglish) {
		j.addErr(out.Err)
		out = o.gateSummary(ctx, articles, core.LangEnglish)
		logOutcome(o.log, id, stageSummary, out, "language", core.LangEnglish, "fallback", true)
		lang = core.LangEnglish
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result, score, status := out.Value, out.Score, core.TranslationGenerated
	if out.Err != nil {
		j.addErr(out.Err)
		result = o.leadSummary(articles, srcLang)
		score = quality.ScoreSummary(result.Text, result.Language)
		status = core.TranslationCopied
	}
	if result.Language == "" {
		result.Language = lang
	}

	j.commit(ctx, func() {
		s := &j.summary
		s.ClusterID = j.cluster.ID
		s.SourceLanguage = result.Language
		s.Texts = core.Localized{result.Language: result.Text}
		s.Scores = map[core.Language]float64{result.Language: quality.Normalize(score)}
		s.TranslationStatus = map[core.Language]core.TranslationStatus{result.Language: status}
		s.KeyFacts = result.KeyFacts
		s.Length = len([]rune(result.Text))
		s.SourceCount = j.cluster.SourceCount
		s.Version++
		j.regenerated = true
		j.summaryChanged = true
	})
	return nil
}

// leadSummary is the degraded summary: the lead article's text unchanged.
func (o *Orchestrator) leadSummary(articles []core.Article, lang core.Language) core.SummaryResult {
	text := ""
	for _, a := range articles {
		if t := strings.TrimSpace(a.Text()); len(t) > len(text) {
			text = t
		}
		if len([]rune(text)) >= leadSummaryRunes {
			break
		}
	}
	text = clip(strings.Join(strings.Fields(text), " "), leadSummaryRunes)
	if detected := o.detector.DetectText(text); o.supported(detected) {
		lang = detected
	}
	return core.SummaryResult{Text: text, Language: lang, FellBack: true}
}

// runSummaryTranslation translates the summary into lang unless it is the
// source language or already present.
func (o *Orchestrator) runSummaryTranslation(ctx context.Context, j *job, lang core.Language) error {
	var (
		src, id string
		from    core.Language
		skip    bool
	)
	j.read(func() {
		id = j.cluster.ID
		from = j.summary.SourceLanguage
		src = j.summary.Texts.Get(from)
		skip = lang == from || src == "" || j.summary.Texts.Get(lang) != ""
	})
	if skip {
		return nil
	}

	out := o.gateTranslation(ctx, stageTranslateSummary, src, from, lang)
	logOutcome(o.log, id, stageTranslateSummary, out, "from", from, "to", lang)
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Err != nil {
		j.addErr(out.Err)
	}

	j.commit(ctx, func() {
		s := &j.summary
		if s.SourceLanguage != from {
			return
		}
		if out.FellBack {
			s.Texts.Set(lang, src)
			s.Scores[lang] = 0
			s.TranslationStatus[lang] = core.TranslationCopied
		} else {
			s.Texts.Set(lang, strings.TrimSpace(out.Value.Text))
			s.Scores[lang] = out.Normalized()
			s.TranslationStatus[lang] = core.TranslationTranslated
		}
		j.summaryChanged = true
	})
	return nil
}

// runHeadlineTranslation translates the canonical headline into lang,
// copying it when translation fails.
func (o *Orchestrator) runHeadlineTranslation(ctx context.Context, j *job, lang core.Language) error {
	var (
		headline, id string
		from         core.Language
	)
	j.read(func() { headline, from, id = j.cluster.Headline, j.headlineLang, j.cluster.ID })

	if lang == from {
		j.commit(ctx, func() {
			j.cluster.Headlines.Set(lang, headline)
			j.cluster.HeadlineScores[lang] = 1
		})
		return nil
	}

	out := o.gateTranslation(ctx, stageTranslateHeadline, headline, from, lang)
	logOutcome(o.log, id, stageTranslateHeadline, out, "from", from, "to", lang)
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Err != nil {
		j.addErr(out.Err)
	}

	j.commit(ctx, func() {
		if out.FellBack {
			j.cluster.Headlines.Set(lang, headline)
			j.cluster.HeadlineScores[lang] = 0
			return
		}
		j.cluster.Headlines.Set(lang, strings.TrimSpace(out.Value.Text))
		j.cluster.HeadlineScores[lang] = out.Normalized()
	})
	return nil
}

// runSEO extracts search metadata and the story taxonomy. Fields the
// generator leaves empty are filled from headlines and summaries when the
// job is published.
func (o *Orchestrator) runSEO(ctx context.Context, j *job) error {
	var (
		summary, headline, id string
		articles              []core.Article
	)
	j.read(func() {
		id = j.cluster.ID
		articles = j.articles
		summary = summaryText(j.summary, core.LangEnglish)
		headline = headlineText(j.cluster, core.LangEnglish)
	})
	if summary == "" {
		summary = o.leadSummary(articles, core.LangEnglish).Text
	}

	out := o.gateSEO(ctx, summary, headline, articles, func() core.SEOResult { return core.SEOResult{} })
	logOutcome(o.log, id, stageSEO, out)
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Err != nil {
		j.addErr(out.Err)
	}

	r := out.Value
	j.commit(ctx, func() {
		c := &j.cluster
		for _, lang := range o.policy.Languages {
			if v := r.Titles.Get(lang); v != "" {
				c.MetaTitles.Set(lang, v)
			}
			if v := r.Descriptions.Get(lang); v != "" {
				c.MetaDescriptions.Set(lang, v)
			}
		}
		c.Topics = repairTopics(r.Topics)
		c.Entities = core.SortStrings(r.Entities)
		j.categorized = true
	})
	return nil
}

// runImage picks a cover image from the highest priority tier that has
// candidates. The generator chooses only when that tier holds several.
func (o *Orchestrator) runImage(ctx context.Context, j *job) error {
	var (
		c        core.Cluster
		articles []core.Article
		summary  string
	)
	j.read(func() {
		c = cloneCluster(j.cluster)
		articles = j.articles
		summary = summaryText(j.summary, core.LangEnglish)
	})

	candidates := o.imageCandidates(ctx, j, c, articles)
	if len(candidates) == 0 {
		o.log.Debug("No image candidates", "cluster_id", c.ID)
		return ctx.Err()
	}
	tier := bestTier(candidates)

	var result core.ImageResult
	if len(tier) >= 2 {
		out := o.gateImage(ctx, tier, headlineText(c, core.LangEnglish), summary)
		logOutcome(o.log, c.ID, stageImage, out, "candidates", len(tier), "tier", tier[0].Source)
		if out.Err != nil {
			j.addErr(out.Err)
		}
		result = out.Value
	} else {
		result = core.ImageResult{
			URL:       tier[0].URL,
			Source:    tier[0].Source,
			Relevance: quality.Normalize(quality.ScoreImage(tier[0])),
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j.commit(ctx, func() {
		j.cluster.ImageURL = result.URL
		j.cluster.ImageSource = result.Source
		j.cluster.ImageRelevance = result.Relevance
	})
	return nil
}

// imageCandidates collects candidates in tier order: the existing image when
// relevant enough, images declared by articles, images in article HTML, and
// as a last resort the images of one live article page.
func (o *Orchestrator) imageCandidates(ctx context.Context, j *job, c core.Cluster, articles []core.Article) []core.ImageCandidate {
	var out []core.ImageCandidate
	seen := make(map[string]bool)
	add := func(url string, source core.ImageSource, articleID string) {
		cand := core.ImageCandidate{URL: strings.TrimSpace(url), Source: source, ArticleID: articleID}
		if cand.URL == "" || seen[cand.URL] || quality.ScoreImage(cand) < minCandidateScore {
			return
		}
		seen[cand.URL] = true
		out = append(out, cand)
	}

	if c.ImageURL != "" && quality.Denormalize(c.ImageRelevance) >= o.policy.ImageThreshold {
		add(c.ImageURL, core.ImageExisting, "")
	}
	for _, a := range articles {
		for _, u := range a.ImageURLs {
			add(u, core.ImageArticle, a.ID)
		}
	}
	for _, a := range articles {
		for _, u := range fetch.ExtractImages(a.Content, a.URL) {
			add(u, core.ImageHTML, a.ID)
		}
	}
	if len(out) > 0 || o.pages == nil {
		return out
	}

	for _, a := range articles {
		if a.URL == "" {
			continue
		}
		images, err := o.pages.Images(ctx, a.URL)
		if err != nil {
			o.log.Warn("Live page image fetch failed", "cluster_id", c.ID, "article_id", a.ID, "url", a.URL, "error", err)
			j.addErr(err)
		}
		for _, u := range images {
			add(u, core.ImageLive, a.ID)
		}
		break
	}
	return out
}

// bestTier returns the candidates of the highest priority tier present,
// capped at maxTierCandidates.
func bestTier(candidates []core.ImageCandidate) []core.ImageCandidate {
	best := candidates[0].Source.Priority()
	for _, c := range candidates[1:] {
		best = min(best, c.Source.Priority())
	}
	var tier []core.ImageCandidate
	for _, c := range candidates {
		if c.Source.Priority() == best && len(tier) < maxTierCandidates {
			tier = append(tier, c)
		}
	}
	return tier
}

// clip shortens s to at most n runes, cutting at a word boundary when one
// falls in the second half.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
