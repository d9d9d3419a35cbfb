package quality

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// VaguePhrases returns the list of generic phrases to detect
var VaguePhrases = []string{
	"several",
	"various",
	"multiple",
	"a number of",
	"numerous",
	"various sources",
	"a few",
	"a couple of",
	"reportedly",
	"it is said",
}

var (
	numberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d+%`),                        // 40%
		regexp.MustCompile(`(?i)(rs\.?|lkr|\$)\s?[\d,]+`), // Rs. 1,500
		regexp.MustCompile(`\d+(?:[.,]\d+)*`),             // 1,000 or 42
	}
	digitRun        = regexp.MustCompile(`\d+`)
	properPairRe    = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
	properSingleRe  = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	sentenceSplitRe = regexp.MustCompile(`[.!?।]+\s*`)
)

// DetectVaguePhrases counts and lists vague phrases in text
func DetectVaguePhrases(text string) (count int, found []string) {
	textLower := strings.ToLower(text)
	foundMap := make(map[string]bool)

	for _, phrase := range VaguePhrases {
		if strings.Contains(textLower, phrase) {
			if !foundMap[phrase] {
				foundMap[phrase] = true
				found = append(found, phrase)
			}
			count += strings.Count(textLower, phrase)
		}
	}

	return count, found
}

// DetectNumbers finds figures, amounts and percentages in text
func DetectNumbers(text string) (count int, hasNumbers bool) {
	seen := make(map[string]bool)
	for _, pattern := range numberPatterns {
		for _, m := range pattern.FindAllString(text, -1) {
			seen[m] = true
		}
	}
	count = len(seen)
	return count, count > 0
}

// DetectProperNouns finds capitalized names (rough heuristic)
func DetectProperNouns(text string) (count int, hasNames bool) {
	nameMap := make(map[string]bool)
	for _, match := range properPairRe.FindAllString(text, -1) {
		nameMap[match] = true
	}
	for _, match := range properSingleRe.FindAllString(text, -1) {
		if !isCommonWord(match) {
			nameMap[match] = true
		}
	}

	count = len(nameMap)
	return count, count > 0
}

// isCommonWord checks if a capitalized word is likely a common word (not a name)
func isCommonWord(word string) bool {
	commonWords := map[string]bool{
		"The": true, "This": true, "That": true, "These": true, "Those": true,
		"While": true, "When": true, "Where": true, "What": true, "Which": true,
		"However": true, "Although": true, "Despite": true, "Through": true,
		"After": true, "Before": true, "During": true, "Since": true,
		"Meanwhile": true, "According": true,
	}
	return commonWords[word]
}

// CalculateSpecificityScore computes an overall specificity score (0-100)
func CalculateSpecificityScore(numberCount, properNounCount, vaguePhrases int) int {
	score := 0

	// Numbers contribute up to 40 points, names up to 40
	score += min(numberCount*10, 40)
	score += min(properNounCount*8, 40)
	score -= vaguePhrases * 10

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score
}

// ScriptShare returns the fraction of letters in text written in the script
// of lang. Text without letters scores 0.
func ScriptShare(text string, lang core.Language) float64 {
	table := scriptTable(lang)
	if table == nil {
		return 0
	}
	letters, inScript := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(table, r) {
			inScript++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(inScript) / float64(letters)
}

func scriptTable(lang core.Language) *unicode.RangeTable {
	switch lang {
	case core.LangEnglish:
		return unicode.Latin
	case core.LangSinhala:
		return unicode.Sinhala
	case core.LangTamil:
		return unicode.Tamil
	default:
		return nil
	}
}

// DigitRuns returns the distinct ASCII digit sequences in text.
func DigitRuns(text string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range digitRun.FindAllString(text, -1) {
		out[m] = true
	}
	return out
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
