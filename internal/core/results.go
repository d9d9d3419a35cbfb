package core

// Generation results. Each generation kind has its own shape so that fallback
// code can switch on concrete fields instead of probing optional ones.

// SummaryResult is the output of summarising a cluster's sources.
type SummaryResult struct {
	Text     string   `json:"summary"`
	KeyFacts []string `json:"key_facts"`
	Language Language `json:"language"`
	FellBack bool     `json:"-"` // Produced by a fallback rather than the generator
}

// TranslationResult is a single text translated between two languages.
type TranslationResult struct {
	Text string   `json:"text"`
	From Language `json:"from"`
	To   Language `json:"to"`
}

// SEOResult carries per-language search metadata and the story taxonomy.
type SEOResult struct {
	Titles       Localized `json:"titles"`
	Descriptions Localized `json:"descriptions"`
	Topics       []string  `json:"topics"`
	Entities     []string  `json:"entities"`
}

// ImageSource identifies where an image candidate came from.
type ImageSource string

const (
	ImageExisting ImageSource = "existing"
	ImageArticle  ImageSource = "article"
	ImageHTML     ImageSource = "html"
	ImageLive     ImageSource = "live"
)

// Priority orders candidate tiers; lower is preferred.
func (s ImageSource) Priority() int {
	switch s {
	case ImageExisting:
		return 0
	case ImageArticle:
		return 1
	case ImageHTML:
		return 2
	case ImageLive:
		return 3
	default:
		return 4
	}
}

// Relevance is the fixed 0..100 score assigned to a tier when no external
// relevance scoring is performed.
func (s ImageSource) Relevance() float64 {
	switch s {
	case ImageExisting:
		return 100
	case ImageArticle:
		return 80
	case ImageHTML:
		return 65
	case ImageLive:
		return 50
	default:
		return 0
	}
}

// ImageCandidate is a possible cover image for a cluster.
type ImageCandidate struct {
	URL       string      `json:"url"`
	Source    ImageSource `json:"source"`
	ArticleID string      `json:"article_id,omitempty"`
}

// ImageResult is the chosen cover image.
type ImageResult struct {
	URL       string      `json:"url"`
	Source    ImageSource `json:"source"`
	Relevance float64     `json:"relevance"` // 0..1
}
