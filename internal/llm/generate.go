package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

const (
	maxSources       = 8
	maxSourceRunes   = 1200
	maxSummaryRunes  = 2000
	maxHeadlineRunes = 200
)

const (
	// SummarizePromptTemplate asks for a news summary with key facts.
	SummarizePromptTemplate = `You are a news editor for a Sri Lankan newsroom. Write a factual summary in %s of the story covered by the reports below.

Requirements:
- 80 to 180 words, plain prose, no headings or bullet points
- Keep every number, date, amount and name exactly as reported
- Do not speculate or add facts that are not in the reports
- Also list 3 to 5 short key facts

Reports:
%s`

	// TranslatePromptTemplate asks for a faithful translation.
	TranslatePromptTemplate = `Translate the following %s news text into %s. Keep numbers, dates, amounts and proper names unchanged. Reply with the translation only.

Text:
%s`

	// SEOPromptTemplate asks for search metadata and topic tags.
	SEOPromptTemplate = `Produce search metadata for this Sri Lankan news story.

Headline: %s

Summary:
%s

Source titles:
%s

Return:
- titles: an SEO title of at most 60 characters in each of en, si and ta
- descriptions: a meta description of at most 155 characters in each of en, si and ta
- topics: one geographic tag from [%s] and one to three content tags from [%s]
- entities: up to 8 people, organisations or places named in the story`

	// SelectImagePromptTemplate asks which image best illustrates the story.
	SelectImagePromptTemplate = `Choose the image that best illustrates this news story. Avoid logos, icons, advertisements and author photos.

Headline: %s

Summary:
%s

Candidate image URLs:
%s

Return the zero-based index of the best candidate and its relevance from 0 to 100.`
)

var (
	localizedSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"en": {Type: genai.TypeString},
			"si": {Type: genai.TypeString},
			"ta": {Type: genai.TypeString},
		},
		Required: []string{"en", "si", "ta"},
	}

	summarySchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":   {Type: genai.TypeString},
			"key_facts": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"summary", "key_facts"},
	}

	seoSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"titles":       localizedSchema,
			"descriptions": localizedSchema,
			"topics":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"entities":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"titles", "descriptions", "topics", "entities"},
	}

	imageSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"index":     {Type: genai.TypeInteger},
			"relevance": {Type: genai.TypeNumber},
		},
		Required: []string{"index", "relevance"},
	}
)

// Summarize summarises the articles in lang.
func (c *Client) Summarize(ctx context.Context, articles []core.Article, lang core.Language) (core.SummaryResult, error) {
	if len(articles) == 0 {
		return core.SummaryResult{}, fmt.Errorf("no sources to summarize")
	}

	var sources strings.Builder
	for i, a := range articles {
		if i == maxSources {
			break
		}
		fmt.Fprintf(&sources, "[%d] %s (%s)\n%s\n\n", i+1, a.Title, a.SourceID, truncate(a.Text(), maxSourceRunes))
	}

	prompt := fmt.Sprintf(SummarizePromptTemplate, lang.Name(), sources.String())
	text, err := c.call(ctx, "summarize", prompt, summarySchema)
	if err != nil {
		return core.SummaryResult{}, err
	}

	var out core.SummaryResult
	if err := decodeJSON(text, &out); err != nil {
		return core.SummaryResult{}, fmt.Errorf("summarize: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" {
		return core.SummaryResult{}, ErrEmptyResponse
	}
	out.Language = lang
	out.KeyFacts = trimAll(out.KeyFacts)
	return out, nil
}

// Translate translates text between two languages.
func (c *Client) Translate(ctx context.Context, text string, from, to core.Language) (core.TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return core.TranslationResult{}, fmt.Errorf("nothing to translate")
	}
	prompt := fmt.Sprintf(TranslatePromptTemplate, from.Name(), to.Name(), truncate(text, maxSummaryRunes))
	out, err := c.call(ctx, "translate", prompt, nil)
	if err != nil {
		return core.TranslationResult{}, err
	}
	return core.TranslationResult{Text: stripFences(out), From: from, To: to}, nil
}

// ExtractSEO produces per-language titles and descriptions plus topics and
// entities.
func (c *Client) ExtractSEO(ctx context.Context, summary, headline string, articles []core.Article) (core.SEOResult, error) {
	var titles strings.Builder
	for i, a := range articles {
		if i == maxSources {
			break
		}
		fmt.Fprintf(&titles, "- %s\n", truncate(a.Title, maxHeadlineRunes))
	}

	prompt := fmt.Sprintf(SEOPromptTemplate,
		truncate(headline, maxHeadlineRunes),
		truncate(summary, maxSummaryRunes),
		titles.String(),
		strings.Join(core.GeoTopics, ", "),
		strings.Join(core.ContentTopics, ", "))

	text, err := c.call(ctx, "extract_seo", prompt, seoSchema)
	if err != nil {
		return core.SEOResult{}, err
	}

	var out core.SEOResult
	if err := decodeJSON(text, &out); err != nil {
		return core.SEOResult{}, fmt.Errorf("extract_seo: %w", err)
	}
	for i, t := range out.Topics {
		out.Topics[i] = strings.ToLower(strings.TrimSpace(t))
	}
	out.Topics = core.SortStrings(out.Topics)
	out.Entities = core.SortStrings(out.Entities)
	return out, nil
}

// SelectImage picks the most relevant candidate.
func (c *Client) SelectImage(ctx context.Context, candidates []core.ImageCandidate, headline, summary string) (core.ImageResult, error) {
	if len(candidates) == 0 {
		return core.ImageResult{}, fmt.Errorf("no image candidates")
	}

	var list strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&list, "%d. %s\n", i, cand.URL)
	}
	prompt := fmt.Sprintf(SelectImagePromptTemplate, truncate(headline, maxHeadlineRunes), truncate(summary, maxSummaryRunes), list.String())

	text, err := c.call(ctx, "select_image", prompt, imageSchema)
	if err != nil {
		return core.ImageResult{}, err
	}

	var choice struct {
		Index     int     `json:"index"`
		Relevance float64 `json:"relevance"`
	}
	if err := decodeJSON(text, &choice); err != nil {
		return core.ImageResult{}, fmt.Errorf("select_image: %w", err)
	}
	if choice.Index < 0 || choice.Index >= len(candidates) {
		return core.ImageResult{}, fmt.Errorf("select_image: index %d out of range", choice.Index)
	}
	picked := candidates[choice.Index]
	return core.ImageResult{
		URL:       picked.URL,
		Source:    picked.Source,
		Relevance: min(max(choice.Relevance, 0), 100) / 100,
	}, nil
}

// decodeJSON parses a model reply, tolerating markdown code fences.
func decodeJSON(text string, v any) error {
	text = stripFences(text)
	if i := strings.IndexAny(text, "{["); i > 0 {
		text = text[i:]
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
