package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsroom.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "DATABASE_URL", "POSTGRES_URL", "DEBUG", "NEWSROOM_DEBUG", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	Reset()
	defer Reset()

	cfg, err := Load(writeConfig(t, "app:\n  debug: false\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Clustering.SimilarityThreshold != 0.4 {
		t.Errorf("Expected similarity threshold 0.4, got %v", cfg.Clustering.SimilarityThreshold)
	}
	if cfg.Clustering.Window() != 72*time.Hour {
		t.Errorf("Expected 72h window, got %v", cfg.Clustering.Window())
	}
	if cfg.Clustering.Expiry() != 30*24*time.Hour {
		t.Errorf("Expected 30 day expiry, got %v", cfg.Clustering.Expiry())
	}
	if cfg.Enrichment.MinArticles != 1 || cfg.Enrichment.MaxQualityRetries != 2 {
		t.Errorf("Unexpected enrichment defaults: %+v", cfg.Enrichment)
	}
	if len(cfg.Enrichment.Languages) != 3 {
		t.Errorf("Expected three languages, got %v", cfg.Enrichment.Languages)
	}
	if cfg.Feeds.Workers != 5 {
		t.Errorf("Expected 5 feed workers, got %d", cfg.Feeds.Workers)
	}
}

func TestLoad_FileOverridesAndSources(t *testing.T) {
	clearEnv(t)
	Reset()
	defer Reset()

	path := writeConfig(t, `
clustering:
  similarity_threshold: 0.55
enrichment:
  min_sources: 2
feeds:
  sources:
    - name: dailymirror
      url: https://www.dailymirror.lk/rss
      domain: dailymirror.lk
    - id: gov
      name: Government News
      url: https://www.news.lk/rss
      official: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Clustering.SimilarityThreshold != 0.55 {
		t.Errorf("Expected 0.55, got %v", cfg.Clustering.SimilarityThreshold)
	}
	if cfg.Enrichment.MinSources != 2 {
		t.Errorf("Expected min_sources 2, got %d", cfg.Enrichment.MinSources)
	}
	if len(cfg.Feeds.Sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(cfg.Feeds.Sources))
	}
	if cfg.Feeds.Sources[0].ID != "dailymirror" {
		t.Errorf("Expected ID to default to name, got %q", cfg.Feeds.Sources[0].ID)
	}
	if !cfg.Feeds.Sources[1].Official {
		t.Error("Expected second source to be official")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	Reset()
	defer Reset()

	_, err := Load(writeConfig(t, "feeds:\n  timeout: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "feeds.timeout") {
		t.Fatalf("Expected invalid duration error, got %v", err)
	}
}

func TestLoad_EnvAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_AI_API_KEY", "abc123")
	Reset()
	defer Reset()

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Gemini.APIKey != "abc123" {
		t.Errorf("Expected API key from env, got %q", cfg.AI.Gemini.APIKey)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		AI:         AI{Gemini: GeminiConfig{APIKey: "PLACEHOLDER"}},
		Clustering: Clustering{SimilarityThreshold: 1.5},
		Enrichment: Enrichment{Languages: []string{"en", "fr"}},
		Feeds:      Feeds{Sources: []Source{{ID: "broken"}}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{"Gemini API key", "Database URL", "similarity_threshold", "fr", "broken"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got %v", want, err)
		}
	}

	cfg = &Config{
		AI:         AI{Gemini: GeminiConfig{APIKey: "real-key"}},
		Database:   Database{URL: "postgres://localhost/news"},
		Clustering: Clustering{SimilarityThreshold: 0.4},
		Enrichment: Enrichment{Languages: []string{"en", "si", "ta"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	if Duration("", time.Second) != time.Second {
		t.Error("Expected default for empty value")
	}
	if Duration("bogus", time.Second) != time.Second {
		t.Error("Expected default for invalid value")
	}
	if Duration("3m", time.Second) != 3*time.Minute {
		t.Error("Expected parsed value")
	}
}
