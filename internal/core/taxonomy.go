package core

import "strings"

// Geographic tags. Every published story carries at least one.
const (
	TopicLocal = "local"
	TopicWorld = "world"
)

// GeoTopics lists the geographic tags.
var GeoTopics = []string{TopicLocal, TopicWorld}

// ContentTopics is the content taxonomy, in display order. TopicGeneral is
// the fallback when nothing else applies.
var ContentTopics = []string{
	"politics", "economy", "business", "crime", "courts", "education",
	"health", "environment", "weather", "sports", "cricket", "technology",
	"entertainment", "culture", "tourism", "transport", "energy", "general",
}

// TopicGeneral is the default content tag.
const TopicGeneral = "general"

// IsGeoTopic reports whether t is a geographic tag.
func IsGeoTopic(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	return t == TopicLocal || t == TopicWorld
}

// IsContentTopic reports whether t belongs to the content taxonomy.
func IsContentTopic(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, c := range ContentTopics {
		if c == t {
			return true
		}
	}
	return false
}

// Name returns the English name of the language.
func (l Language) Name() string {
	switch l {
	case LangEnglish:
		return "English"
	case LangSinhala:
		return "Sinhala"
	case LangTamil:
		return "Tamil"
	default:
		return string(l)
	}
}
