package pipeline

import (
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// Policy holds the orchestrator's eligibility, quality and concurrency rules.
// Thresholds are on the 0..100 scale.
type Policy struct {
	Languages []core.Language

	// A cluster is enrichable once it has MinArticles members from at least
	// MinSources distinct sources. MinArticles is never below 1.
	MinArticles int
	MinSources  int

	SummaryThreshold     float64
	TranslationThreshold float64
	ImageThreshold       float64
	MaxQualityRetries    int

	// MinFieldLength is the shortest acceptable summary in runes. Shorter
	// fields are replaced with the best available language.
	MinFieldLength int

	ClusterWorkers int
	TaskTimeout    time.Duration
	TaskMaxRetries int
	BatchLimit     int
}

// DefaultPolicy returns the standard enrichment policy.
func DefaultPolicy() Policy {
	return Policy{
		Languages:            append([]core.Language(nil), core.Languages...),
		MinArticles:          1,
		MinSources:           1,
		SummaryThreshold:     70,
		TranslationThreshold: 70,
		ImageThreshold:       60,
		MaxQualityRetries:    2,
		MinFieldLength:       20,
		ClusterWorkers:       1,
		TaskTimeout:          60 * time.Second,
		TaskMaxRetries:       1,
		BatchLimit:           50,
	}
}

// PolicyFromConfig builds a policy from the enrichment config section,
// keeping defaults for unset values.
func PolicyFromConfig(cfg config.Enrichment) Policy {
	p := DefaultPolicy()
	if langs := parseLanguages(cfg.Languages); len(langs) > 0 {
		p.Languages = langs
	}
	if cfg.MinArticles > 0 {
		p.MinArticles = cfg.MinArticles
	}
	if cfg.MinSources > 0 {
		p.MinSources = cfg.MinSources
	}
	if cfg.SummaryThreshold > 0 {
		p.SummaryThreshold = cfg.SummaryThreshold
	}
	if cfg.TranslationThreshold > 0 {
		p.TranslationThreshold = cfg.TranslationThreshold
	}
	if cfg.ImageRelevanceThreshold > 0 {
		p.ImageThreshold = cfg.ImageRelevanceThreshold
	}
	if cfg.MaxQualityRetries >= 0 {
		p.MaxQualityRetries = cfg.MaxQualityRetries
	}
	if cfg.MinFieldLength > 0 {
		p.MinFieldLength = cfg.MinFieldLength
	}
	if cfg.ClusterWorkers > 0 {
		p.ClusterWorkers = cfg.ClusterWorkers
	}
	p.TaskTimeout = config.Duration(cfg.TaskTimeout, p.TaskTimeout)
	if cfg.TaskMaxRetries >= 0 {
		p.TaskMaxRetries = cfg.TaskMaxRetries
	}
	if cfg.BatchLimit > 0 {
		p.BatchLimit = cfg.BatchLimit
	}
	return p.normalized()
}

func (p Policy) normalized() Policy {
	if len(p.Languages) == 0 {
		p.Languages = append([]core.Language(nil), core.Languages...)
	}
	p.MinArticles = max(1, p.MinArticles)
	p.MinSources = max(0, p.MinSources)
	p.MaxQualityRetries = max(0, p.MaxQualityRetries)
	p.ClusterWorkers = max(1, p.ClusterWorkers)
	p.TaskMaxRetries = max(0, p.TaskMaxRetries)
	return p
}

// Eligible reports whether a cluster's counts allow enrichment.
func (p Policy) Eligible(c core.Cluster) bool {
	return c.ArticleCount >= max(1, p.MinArticles) && c.SourceCount >= p.MinSources
}

func parseLanguages(codes []string) []core.Language {
	var out []core.Language
	seen := make(map[core.Language]bool)
	for _, code := range codes {
		if lang, ok := core.ParseLanguage(code); ok && !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	return out
}
