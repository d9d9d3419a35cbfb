// Package langdetect decides the source language of a story from its
// member articles.
package langdetect

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/quality"
)

// scriptMajority is the share of letters in a script that settles the
// language without asking the statistical detector.
const scriptMajority = 0.5

// Options configures a Detector.
type Options struct {
	OfficialDomains []string
	OfficialWeight  float64       // Multiplier for official domains, 1 when <= 0
	HalfLife        time.Duration // Recency half life, no decay when <= 0
}

// Sample is one weighted piece of source text.
type Sample struct {
	Text        string
	URL         string
	PublishedAt time.Time
}

// Result is a weighted detection.
type Result struct {
	Language   core.Language
	Confidence float64 // Winning share of the total weight
	Votes      map[core.Language]float64
}

// Detector combines script analysis with lingua for Latin and Tamil text.
type Detector struct {
	opts   Options
	lingua lingua.LanguageDetector
	now    func() time.Time
}

// New builds a detector. lingua has no Sinhala model, so Sinhala is
// recognised by script alone.
func New(opts Options) *Detector {
	return &Detector{
		opts: opts,
		lingua: lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.English, lingua.Tamil).
			Build(),
		now: time.Now,
	}
}

// DetectText returns the language of a single text, or "" when it holds no
// letters.
func (d *Detector) DetectText(text string) core.Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	si := quality.ScriptShare(text, core.LangSinhala)
	ta := quality.ScriptShare(text, core.LangTamil)
	en := quality.ScriptShare(text, core.LangEnglish)
	switch {
	case si == 0 && ta == 0 && en == 0:
		return ""
	case si >= scriptMajority:
		return core.LangSinhala
	case ta >= scriptMajority:
		return core.LangTamil
	}

	if lang, ok := d.lingua.DetectLanguageOf(text); ok {
		switch lang {
		case lingua.Tamil:
			return core.LangTamil
		case lingua.English:
			return core.LangEnglish
		}
	}

	// Mixed text below every majority: take the largest script.
	best, share := core.LangEnglish, en
	if si > share {
		best, share = core.LangSinhala, si
	}
	if ta > share {
		best = core.LangTamil
	}
	return best
}

// Weight returns the vote weight of a sample: 0.5^(age/half_life), times the
// official multiplier for official domains.
func (d *Detector) Weight(s Sample) float64 {
	w := 1.0
	if d.opts.HalfLife > 0 && !s.PublishedAt.IsZero() {
		age := d.now().Sub(s.PublishedAt)
		if age < 0 {
			age = 0
		}
		w = math.Pow(0.5, float64(age)/float64(d.opts.HalfLife))
	}
	if d.opts.OfficialWeight > 0 && d.IsOfficial(s.URL) {
		w *= d.opts.OfficialWeight
	}
	return w
}

// IsOfficial reports whether rawURL's host is, or is under, an official domain.
func (d *Detector) IsOfficial(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range d.opts.OfficialDomains {
		domain = strings.ToLower(strings.TrimPrefix(domain, "."))
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Detect pools weighted votes across samples. Ties and an empty pool
// resolve to English.
func (d *Detector) Detect(samples []Sample) Result {
	votes := make(map[core.Language]float64)
	total := 0.0
	for _, s := range samples {
		lang := d.DetectText(s.Text)
		if lang == "" {
			continue
		}
		w := d.Weight(s)
		votes[lang] += w
		total += w
	}
	if total == 0 {
		return Result{Language: core.LangEnglish, Votes: votes}
	}

	langs := make([]core.Language, 0, len(votes))
	for lang := range votes {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if votes[langs[i]] != votes[langs[j]] {
			return votes[langs[i]] > votes[langs[j]]
		}
		return rank(langs[i]) < rank(langs[j])
	})
	return Result{
		Language:   langs[0],
		Confidence: votes[langs[0]] / total,
		Votes:      votes,
	}
}

func rank(l core.Language) int {
	for i, lang := range core.Languages {
		if lang == l {
			return i
		}
	}
	return len(core.Languages)
}
