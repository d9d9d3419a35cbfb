package quality

import (
	"net/url"
	"path"
	"strings"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// Summary length bounds in words.
const (
	MinSummaryWords = 40
	MaxSummaryWords = 250
)

// ScoreSummary rates a generated summary on a 0..100 scale.
//
//	length       40  full credit between MinSummaryWords and MaxSummaryWords
//	script       20  share of letters in the expected script (>= 0.6 is full)
//	specificity  25  figures and names, less vague phrasing
//	structure    15  ends on a sentence boundary, no repeated sentences
func ScoreSummary(text string, lang core.Language) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	words := len(strings.Fields(text))
	var length float64
	switch {
	case words < MinSummaryWords:
		length = 40 * float64(words) / MinSummaryWords
	case words > MaxSummaryWords:
		length = max(0, 40-float64(words-MaxSummaryWords)/5)
	default:
		length = 40
	}

	script := 20 * min(1, ScriptShare(text, lang)/0.6)

	numbers, _ := DetectNumbers(text)
	vague, _ := DetectVaguePhrases(text)
	names := 5
	if lang == core.LangEnglish {
		// Scripts without letter case get full name credit.
		names, _ = DetectProperNouns(text)
	}
	specificity := 25 * float64(CalculateSpecificityScore(numbers, names, vague)) / 80

	var structure float64
	if endsSentence(text) {
		structure += 10
	}
	if !hasRepeatedSentence(text) {
		structure += 5
	}

	return clamp(length + script + min(25, specificity) + structure)
}

// ScoreTranslation rates a translation of src on a 0..100 scale.
//
//	script   40  share of letters in the target script
//	length   30  full credit when len(tgt)/len(src) is within [0.5, 2.5]
//	digits   20  digit sequences from src preserved
//	clean    10  no untranslated template residue
//
// An output identical to a non-trivial source in a different language scores 10.
func ScoreTranslation(src, tgt string, from, to core.Language) float64 {
	src, tgt = strings.TrimSpace(src), strings.TrimSpace(tgt)
	if tgt == "" {
		return 0
	}
	if from != to && src != "" && src == tgt {
		return 10
	}

	score := 40 * ScriptShare(tgt, to)

	srcLen, tgtLen := len([]rune(src)), len([]rune(tgt))
	if srcLen == 0 {
		score += 30
	} else {
		ratio := float64(tgtLen) / float64(srcLen)
		switch {
		case ratio < 0.5:
			score += 30 * ratio / 0.5
		case ratio > 2.5:
			score += max(0, 30-10*(ratio-2.5))
		default:
			score += 30
		}
	}

	want := DigitRuns(src)
	if len(want) == 0 {
		score += 20
	} else {
		got := DigitRuns(tgt)
		kept := 0
		for d := range want {
			if got[d] {
				kept++
			}
		}
		score += 20 * float64(kept) / float64(len(want))
	}

	if !hasTemplateResidue(tgt) {
		score += 10
	}

	return clamp(score)
}

// ScoreImage rates an image candidate on a 0..100 scale from its tier and
// URL shape. Non-http URLs score 0.
func ScoreImage(c core.ImageCandidate) float64 {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0
	}

	score := c.Source.Relevance()
	lower := strings.ToLower(u.Path)
	for _, marker := range []string{"logo", "icon", "avatar", "placeholder", "sprite", "pixel", "blank"} {
		if strings.Contains(lower, marker) {
			score -= 50
			break
		}
	}
	switch path.Ext(lower) {
	case ".svg", ".gif", ".ico":
		score -= 30
	}
	return clamp(score)
}

// Normalize converts a 0..100 score to the 0..1 range used for storage.
func Normalize(score float64) float64 {
	return clamp(score) / 100
}

// Denormalize converts a stored 0..1 score back to 0..100.
func Denormalize(stored float64) float64 {
	return clamp(stored * 100)
}

func endsSentence(text string) bool {
	r := []rune(text)
	switch r[len(r)-1] {
	case '.', '!', '?', '।', '"', '”':
		return true
	}
	return false
}

func hasRepeatedSentence(text string) bool {
	seen := make(map[string]bool)
	for _, s := range sentences(text) {
		key := strings.ToLower(s)
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

func hasTemplateResidue(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"{{", "}}", "[translation]", "translated text:", "as an ai"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
