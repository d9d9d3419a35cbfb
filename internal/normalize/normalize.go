// Package normalize turns article titles into comparable token and entity sets.
package normalize

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// maxEntityWords bounds the length of a gazetteer alias.
const maxEntityWords = 3

// Set is an unordered collection of normalized strings.
type Set map[string]struct{}

// NewSet builds a set from values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Features are the comparable parts of a title.
type Features struct {
	Tokens   Set
	Entities Set
}

// Lexicon is the word list data behind a Normalizer.
type Lexicon struct {
	Stopwords []string            `yaml:"stopwords"`
	Synonyms  map[string]string   `yaml:"synonyms"`
	Gazetteer map[string][]string `yaml:"gazetteer"`
}

// Normalizer tokenizes titles and recognises gazetteer entities. It is
// immutable after construction and safe for concurrent use.
type Normalizer struct {
	stopwords map[string]struct{}
	synonyms  map[string]string
	aliases   map[string]string
}

// New builds a Normalizer from a lexicon.
func New(lex Lexicon) *Normalizer {
	n := &Normalizer{
		stopwords: make(map[string]struct{}, len(lex.Stopwords)),
		synonyms:  make(map[string]string, len(lex.Synonyms)),
		aliases:   make(map[string]string),
	}
	for _, w := range lex.Stopwords {
		n.stopwords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	for k, v := range lex.Synonyms {
		n.synonyms[joinWords(k)] = strings.ToLower(strings.TrimSpace(v))
	}
	for canonical, aliases := range lex.Gazetteer {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		n.aliases[joinWords(canonical)] = canonical
		for _, a := range aliases {
			n.aliases[joinWords(a)] = canonical
		}
	}
	return n
}

// Parse decodes a YAML lexicon.
func Parse(data []byte) (Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	return lex, nil
}

var (
	defaultOnce       sync.Once
	defaultNormalizer *Normalizer
)

// Default returns the Normalizer built from the embedded lexicon.
func Default() *Normalizer {
	defaultOnce.Do(func() {
		lex, err := Parse(defaultLexicon)
		if err != nil {
			panic(err)
		}
		defaultNormalizer = New(lex)
	})
	return defaultNormalizer
}

// Features returns tokens and entities for title.
func (n *Normalizer) Features(title string) Features {
	return Features{Tokens: n.Tokens(title), Entities: n.Entities(title)}
}

// Tokens lowercases title, strips punctuation, drops stop-words, maps
// synonyms and collapses duplicates.
func (n *Normalizer) Tokens(title string) Set {
	words := splitWords(strings.ToLower(title))
	out := make(Set, len(words))
	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			if canon, ok := n.synonyms[words[i]+" "+words[i+1]]; ok {
				out[canon] = struct{}{}
				i++
				continue
			}
		}
		w := words[i]
		if _, stop := n.stopwords[w]; stop {
			continue
		}
		if canon, ok := n.synonyms[w]; ok {
			w = canon
		}
		if !keepToken(w) {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Entities returns gazetteer entries found in capitalised word spans of
// title. Words in scripts without letter case count as capitalised.
func (n *Normalizer) Entities(title string) Set {
	out := make(Set)
	for _, span := range capitalisedSpans(splitWords(title)) {
		for i := 0; i < len(span); {
			matched := 0
			for size := min(maxEntityWords, len(span)-i); size > 0; size-- {
				key := strings.ToLower(strings.Join(span[i:i+size], " "))
				if canon, ok := n.aliases[key]; ok {
					out[canon] = struct{}{}
					matched = size
					break
				}
			}
			if matched == 0 {
				matched = 1
			}
			i += matched
		}
	}
	return out
}

func capitalisedSpans(words []string) [][]string {
	var spans [][]string
	var cur []string
	for _, w := range words {
		if isCapitalised(w) {
			cur = append(cur, w)
			continue
		}
		if len(cur) > 0 {
			spans = append(spans, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		spans = append(spans, cur)
	}
	return spans
}

func isCapitalised(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
		return !unicode.IsLower(r)
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	// Zero-width joiners are part of Sinhala conjuncts.
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '\u200d' || r == '\u200c'
}

func keepToken(w string) bool {
	runes := []rune(w)
	if len(runes) >= 2 {
		return true
	}
	return len(runes) == 1 && unicode.IsDigit(runes[0])
}

func joinWords(s string) string {
	return strings.Join(splitWords(strings.ToLower(s)), " ")
}
