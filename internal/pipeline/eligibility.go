package pipeline

import (
	"strings"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/quality"
)

// Needs lists the stages a cluster must (re)run. It is derived from
// persisted state on every run.
type Needs struct {
	Summary   bool // No summary, source count changed, or quality below threshold
	Headlines bool // A headline translation is missing or below threshold
	SEO       bool // A meta title or description is missing
	Image     bool // No image stored

	// Translations is set when a summary exists but lacks a language. It
	// only arises when the language set grows.
	Translations bool

	HeadlineLanguages []core.Language // Languages whose headline must be translated
}

// Any reports whether any stage must run.
func (n Needs) Any() bool {
	return n.Summary || n.Headlines || n.SEO || n.Image || n.Translations
}

func (n Needs) String() string {
	var parts []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{n.Summary, "summary"},
		{n.Headlines, "headlines"},
		{n.SEO, "seo"},
		{n.Image, "image"},
		{n.Translations, "translations"},
	} {
		if f.set {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// evaluateNeeds derives the eligibility flags for a cluster. summary is nil
// when none exists. headlineLang is the language of the canonical headline,
// which never needs translating.
func evaluateNeeds(p Policy, c core.Cluster, summary *core.Summary, headlineLang core.Language) Needs {
	var n Needs

	switch {
	case summary == nil || summary.Texts.Get(summary.SourceLanguage) == "":
		n.Summary = true
	case summary.SourceCount != c.SourceCount:
		n.Summary = true
	case quality.Denormalize(summary.Scores[summary.SourceLanguage]) < p.SummaryThreshold:
		n.Summary = true
	}
	if !n.Summary && len(summary.Texts.Missing(p.Languages, 1)) > 0 {
		n.Translations = true
	}

	for _, lang := range p.Languages {
		if lang == headlineLang {
			if c.Headlines.Get(lang) == "" {
				n.HeadlineLanguages = append(n.HeadlineLanguages, lang)
			}
			continue
		}
		if c.Headlines.Get(lang) == "" || quality.Denormalize(c.HeadlineScores[lang]) < p.TranslationThreshold {
			n.HeadlineLanguages = append(n.HeadlineLanguages, lang)
		}
	}
	n.Headlines = len(n.HeadlineLanguages) > 0

	n.SEO = len(c.MetaTitles.Missing(p.Languages, 1)) > 0 || len(c.MetaDescriptions.Missing(p.Languages, 1)) > 0
	n.Image = strings.TrimSpace(c.ImageURL) == ""
	return n
}
