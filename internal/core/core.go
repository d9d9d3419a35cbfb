package core

import (
	"sort"
	"strings"
	"time"
)

// Language is an ISO 639-1 code for one of the newsroom's publishing languages.
type Language string

const (
	LangEnglish Language = "en"
	LangSinhala Language = "si"
	LangTamil   Language = "ta"
)

// Languages lists every publishing language in display order.
var Languages = []Language{LangEnglish, LangSinhala, LangTamil}

// Valid reports whether l is a publishing language.
func (l Language) Valid() bool {
	for _, lang := range Languages {
		if lang == l {
			return true
		}
	}
	return false
}

// ParseLanguage normalises a language code, returning false for unknown codes.
func ParseLanguage(s string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// Localized holds one text value per language.
type Localized map[Language]string

// Get returns the trimmed value for lang.
func (l Localized) Get(lang Language) string {
	if l == nil {
		return ""
	}
	return strings.TrimSpace(l[lang])
}

// Set stores value for lang, allocating the map if needed.
func (l *Localized) Set(lang Language, value string) {
	if *l == nil {
		*l = Localized{}
	}
	(*l)[lang] = value
}

// Missing returns the languages in langs whose value is shorter than minLen runes.
func (l Localized) Missing(langs []Language, minLen int) []Language {
	var missing []Language
	for _, lang := range langs {
		v := l.Get(lang)
		if v == "" || len([]rune(v)) < minLen {
			missing = append(missing, lang)
		}
	}
	return missing
}

// Best returns the first non-empty value following prefer, then any remaining
// language in Languages order.
func (l Localized) Best(prefer ...Language) (Language, string) {
	order := append(append([]Language{}, prefer...), Languages...)
	for _, lang := range order {
		if v := l.Get(lang); v != "" {
			return lang, v
		}
	}
	return "", ""
}

// Clone returns a copy of l.
func (l Localized) Clone() Localized {
	out := make(Localized, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// ClusterStatus is the publication state of a cluster.
type ClusterStatus string

const (
	StatusDraft     ClusterStatus = "draft"
	StatusPublished ClusterStatus = "published"
)

// Article is an immutable ingestion record.
type Article struct {
	ID          string    `json:"id"`                   // Unique identifier
	SourceID    string    `json:"source_id"`            // Configured feed source that produced the item
	Title       string    `json:"title"`                // Title as published
	URL         string    `json:"url"`                  // Canonical article URL
	GUID        string    `json:"guid,omitempty"`       // Feed GUID when present
	Content     string    `json:"content,omitempty"`    // Raw content or HTML from the feed
	Excerpt     string    `json:"excerpt,omitempty"`    // Plain text excerpt
	PublishedAt time.Time `json:"published_at"`         // Publication time reported by the feed
	Language    Language  `json:"language,omitempty"`   // Detected language
	Hash        string    `json:"hash"`                 // Dedup key, unique
	ImageURLs   []string  `json:"image_urls,omitempty"` // Images declared by the feed item
	ClusterID   string    `json:"cluster_id,omitempty"` // Empty until assigned
	CreatedAt   time.Time `json:"created_at"`           // Insertion time
}

// Text returns the best plain text available for the article.
func (a Article) Text() string {
	if strings.TrimSpace(a.Excerpt) != "" {
		return a.Excerpt
	}
	if strings.TrimSpace(a.Content) != "" {
		return a.Content
	}
	return a.Title
}

// Cluster is a set of articles describing the same story.
type Cluster struct {
	ID               string               `json:"id"`
	Headline         string               `json:"headline"`                  // Canonical headline from the first article
	Headlines        Localized            `json:"headlines,omitempty"`       // Per-language headlines
	HeadlineScores   map[Language]float64 `json:"headline_scores,omitempty"` // 0..1 translation quality per language
	MetaTitles       Localized            `json:"meta_titles,omitempty"`
	MetaDescriptions Localized            `json:"meta_descriptions,omitempty"`
	Topics           []string             `json:"topics,omitempty"`
	Entities         []string             `json:"entities,omitempty"`
	Status           ClusterStatus        `json:"status"`
	Slug             string               `json:"slug,omitempty"`
	SourceLanguage   Language             `json:"source_language,omitempty"`
	ImageURL         string               `json:"image_url,omitempty"`
	ImageSource      ImageSource          `json:"image_source,omitempty"`
	ImageRelevance   float64              `json:"image_relevance,omitempty"` // 0..1
	FirstSeenAt      time.Time            `json:"first_seen_at"`
	LastSeenAt       time.Time            `json:"last_seen_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
	SourceCount      int                  `json:"source_count"`
	ArticleCount     int                  `json:"article_count"`
	PublishedAt      *time.Time           `json:"published_at,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Active reports whether the cluster may still receive new members at now.
func (c Cluster) Active(now time.Time, windowStart time.Time) bool {
	return !c.LastSeenAt.Before(windowStart) && c.ExpiresAt.After(now)
}

// Summary holds the per-language summary of a cluster.
type Summary struct {
	ClusterID         string                         `json:"cluster_id"`
	Texts             Localized                      `json:"texts"`
	Scores            map[Language]float64           `json:"scores"` // 0..1 per language
	KeyFacts          []string                       `json:"key_facts,omitempty"`
	Length            int                            `json:"length"` // Runes in the source-language text
	SourceLanguage    Language                       `json:"source_language"`
	TranslationStatus map[Language]TranslationStatus `json:"translation_status"`
	SourceCount       int                            `json:"source_count"` // Cluster source count at generation time
	Version           int                            `json:"version"`
	UpdatedAt         time.Time                      `json:"updated_at"`
}

// TranslationStatus records how a language field was produced.
type TranslationStatus string

const (
	TranslationGenerated  TranslationStatus = "generated"
	TranslationTranslated TranslationStatus = "translated"
	TranslationCopied     TranslationStatus = "copied"
)

// SortStrings returns a sorted, de-duplicated copy of in without empty values.
func SortStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
