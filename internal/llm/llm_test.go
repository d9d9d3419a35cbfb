package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

// mockModel replays canned replies in order and records prompts.
type mockModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
	schemas []*genai.Schema
}

func (m *mockModel) generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.schemas = append(m.schemas, schema)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "", ErrEmptyResponse
}

func newTestClient(m *mockModel, retries int) *Client {
	return newClient(m, Options{Model: "test-model", RetryAttempts: retries, RetryBackoff: time.Millisecond})
}

var testArticles = []core.Article{
	{ID: "a1", SourceID: "adaderana", Title: "President presents budget", Excerpt: "The President presented the 2025 budget."},
	{ID: "a2", SourceID: "newsfirst", Title: "Budget 2025 unveiled", Content: "Rs. 4,200 billion in spending."},
}

func TestNewClient_NoAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "gemini API key is required") {
		t.Errorf("Expected API key error, got: %v", err)
	}
}

func TestClient_ModelName(t *testing.T) {
	if got := newTestClient(&mockModel{}, 0).ModelName(); got != "test-model" {
		t.Errorf("ModelName() = %q, want test-model", got)
	}
}

func TestSummarize(t *testing.T) {
	m := &mockModel{replies: []string{"```json\n{\"summary\": \" The budget was presented. \", \"key_facts\": [\"Rs. 4,200 billion\", \" \"]}\n```"}}
	c := newTestClient(m, 0)

	got, err := c.Summarize(context.Background(), testArticles, core.LangSinhala)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.Text != "The budget was presented." || got.Language != core.LangSinhala {
		t.Errorf("Unexpected result %+v", got)
	}
	if len(got.KeyFacts) != 1 {
		t.Errorf("Expected blank key facts dropped, got %v", got.KeyFacts)
	}
	if !strings.Contains(m.prompts[0], "Sinhala") || !strings.Contains(m.prompts[0], "Rs. 4,200 billion") {
		t.Errorf("Prompt missing language or source text:\n%s", m.prompts[0])
	}
	if m.schemas[0] != summarySchema {
		t.Error("Expected structured summary schema")
	}

	if _, err := c.Summarize(context.Background(), nil, core.LangEnglish); err == nil {
		t.Error("Expected error without sources")
	}
}

func TestCall_RetriesThenSucceeds(t *testing.T) {
	m := &mockModel{
		errs:    []error{errors.New("503 unavailable"), errors.New("503 unavailable")},
		replies: []string{"", "", "சமர்ப்பிக்கப்பட்டது"},
	}
	c := newTestClient(m, 2)

	got, err := c.Translate(context.Background(), "Presented", core.LangEnglish, core.LangTamil)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got.Text != "சமர்ப்பிக்கப்பட்டது" || got.From != core.LangEnglish || got.To != core.LangTamil {
		t.Errorf("Unexpected translation %+v", got)
	}
	if len(m.prompts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(m.prompts))
	}
}

func TestCall_ExhaustsRetries(t *testing.T) {
	boom := errors.New("quota exceeded")
	m := &mockModel{errs: []error{boom, boom}}
	c := newTestClient(m, 1)

	_, err := c.Translate(context.Background(), "text", core.LangEnglish, core.LangSinhala)
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped error, got %v", err)
	}
	if len(m.prompts) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(m.prompts))
	}
}

func TestCall_StopsOnCancelledContext(t *testing.T) {
	m := &mockModel{errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
	c := newClient(m, Options{RetryAttempts: 2, RetryBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := c.Translate(ctx, "text", core.LangEnglish, core.LangSinhala); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestExtractSEO(t *testing.T) {
	reply := `{"titles": {"en": "Budget 2025 presented", "si": "අයවැය 2025", "ta": "வரவு செலவு 2025"},
		"descriptions": {"en": "The budget", "si": "අයවැය", "ta": "வரவு"},
		"topics": ["Economy", "local", "economy"], "entities": ["Parliament", "President", "Parliament"]}`
	m := &mockModel{replies: []string{reply}}
	c := newTestClient(m, 0)

	got, err := c.ExtractSEO(context.Background(), "summary", "headline", testArticles)
	if err != nil {
		t.Fatalf("ExtractSEO() error = %v", err)
	}
	if got.Titles.Get(core.LangTamil) != "வரவு செலவு 2025" {
		t.Errorf("Unexpected titles %v", got.Titles)
	}
	if len(got.Topics) != 2 || got.Topics[0] != "economy" || got.Topics[1] != "local" {
		t.Errorf("Expected normalised topics, got %v", got.Topics)
	}
	if len(got.Entities) != 2 {
		t.Errorf("Expected de-duplicated entities, got %v", got.Entities)
	}
	if !strings.Contains(m.prompts[0], "local, world") {
		t.Error("Expected taxonomy in prompt")
	}
}

func TestExtractSEO_InvalidJSON(t *testing.T) {
	c := newTestClient(&mockModel{replies: []string{"not json"}}, 0)
	if _, err := c.ExtractSEO(context.Background(), "s", "h", nil); err == nil {
		t.Error("Expected decode error")
	}
}

func TestSelectImage(t *testing.T) {
	candidates := []core.ImageCandidate{
		{URL: "https://cdn.lk/a.jpg", Source: core.ImageArticle},
		{URL: "https://cdn.lk/b.jpg", Source: core.ImageArticle},
	}

	c := newTestClient(&mockModel{replies: []string{`{"index": 1, "relevance": 85}`}}, 0)
	got, err := c.SelectImage(context.Background(), candidates, "h", "s")
	if err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	if got.URL != "https://cdn.lk/b.jpg" || got.Relevance != 0.85 || got.Source != core.ImageArticle {
		t.Errorf("Unexpected image %+v", got)
	}

	c = newTestClient(&mockModel{replies: []string{`{"index": 5, "relevance": 90}`}}, 0)
	if _, err := c.SelectImage(context.Background(), candidates, "h", "s"); err == nil {
		t.Error("Expected out of range error")
	}
}

func TestStripFencesAndTruncate(t *testing.T) {
	if got := stripFences("```\nhello\n```"); got != "hello" {
		t.Errorf("stripFences() = %q", got)
	}
	if got := truncate("අයවැය", 2); got != "අය…" {
		t.Errorf("truncate() = %q", got)
	}
}
