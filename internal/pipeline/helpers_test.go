package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/config"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/quality"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Budget 2025 presented", "budget-2025-presented"},
		{"  President's  speech: what's next?! ", "presidents-speech-whats-next"},
		{"ශ්‍රී ලංකා අයවැය", "story"},
		{"", "story"},
		{"Colombo — ශ්‍රී ලංකා port city", "colombo-port-city"},
		{strings.Repeat("a", 100), strings.Repeat("a", 80)},
	}
	for _, tt := range tests {
		if got := Slugify(tt.title); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}

	long := Slugify(strings.Repeat("budget policy ", 20))
	if len(long) > maxSlugLen || strings.HasSuffix(long, "-") {
		t.Errorf("Slugify() long title = %q", long)
	}
}

func TestUniqueSlug(t *testing.T) {
	db := persistence.NewMemoryDB()
	ctx := context.Background()
	for _, c := range []core.Cluster{
		{ID: "11111111-aaaa", Slug: "budget"},
		{ID: "22222222-bbbb", Slug: "budget-33333333"},
	} {
		c := c
		if err := db.Clusters().Create(ctx, &c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if got, _ := uniqueSlug(ctx, db.Clusters(), "cricket", "33333333-cccc"); got != "cricket" {
		t.Errorf("Expected free slug kept, got %q", got)
	}
	if got, _ := uniqueSlug(ctx, db.Clusters(), "budget", "33333333-cccc"); got != "budget-33333333-cccc" {
		t.Errorf("Expected full id suffix, got %q", got)
	}
	if got, _ := uniqueSlug(ctx, db.Clusters(), "budget", "11111111-aaaa"); got != "budget" {
		t.Errorf("Expected own slug reusable, got %q", got)
	}
}

func TestRepairTopics(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, "general,local"},
		{[]string{"Economy", "World"}, "economy,world"},
		{[]string{"economy", "astrology"}, "economy,local"},
		{[]string{"local", "local"}, "general,local"},
		{[]string{" Cricket ", "sports", "world"}, "cricket,sports,world"},
	}
	for _, tt := range tests {
		got := repairTopics(tt.in)
		if strings.Join(got, ",") != tt.want {
			t.Errorf("repairTopics(%v) = %v, want %s", tt.in, got, tt.want)
		}
		if !hasRequiredTopics(got) {
			t.Errorf("repairTopics(%v) = %v lacks required tags", tt.in, got)
		}
	}
}

func TestEvaluateNeeds(t *testing.T) {
	p := DefaultPolicy()
	full := core.Localized{core.LangEnglish: "x", core.LangSinhala: "x", core.LangTamil: "x"}
	good := map[core.Language]float64{core.LangEnglish: 1, core.LangSinhala: 0.9, core.LangTamil: 0.9}
	cluster := func() core.Cluster {
		return core.Cluster{
			Headline:         "x",
			Headlines:        full.Clone(),
			HeadlineScores:   cloneScores(good),
			MetaTitles:       full.Clone(),
			MetaDescriptions: full.Clone(),
			ImageURL:         "https://cdn.lk/a.jpg",
			SourceCount:      2,
			ArticleCount:     3,
		}
	}
	summary := func() *core.Summary {
		return &core.Summary{Texts: full.Clone(), Scores: cloneScores(good), SourceLanguage: core.LangEnglish, SourceCount: 2}
	}

	tests := []struct {
		name   string
		mutate func(c *core.Cluster, s **core.Summary)
		want   string
	}{
		{"up to date", func(c *core.Cluster, s **core.Summary) {}, "none"},
		{"no summary", func(c *core.Cluster, s **core.Summary) { *s = nil }, "summary"},
		{"source count changed", func(c *core.Cluster, s **core.Summary) { c.SourceCount = 3 }, "summary"},
		{"low summary score", func(c *core.Cluster, s **core.Summary) { (*s).Scores[core.LangEnglish] = 0.5 }, "summary"},
		{"summary score at threshold", func(c *core.Cluster, s **core.Summary) {
			(*s).Scores[core.LangEnglish] = quality.Normalize(p.SummaryThreshold)
		}, "none"},
		{"headline score at threshold", func(c *core.Cluster, s **core.Summary) {
			c.HeadlineScores[core.LangTamil] = quality.Normalize(p.TranslationThreshold)
		}, "none"},
		{"copied translation kept", func(c *core.Cluster, s **core.Summary) { (*s).Scores[core.LangTamil] = 0 }, "none"},
		{"language added", func(c *core.Cluster, s **core.Summary) { delete((*s).Texts, core.LangTamil) }, "translations"},
		{"low headline score", func(c *core.Cluster, s **core.Summary) { c.HeadlineScores[core.LangSinhala] = 0.2 }, "headlines"},
		{"canonical headline score ignored", func(c *core.Cluster, s **core.Summary) { c.HeadlineScores[core.LangEnglish] = 0 }, "none"},
		{"missing meta description", func(c *core.Cluster, s **core.Summary) { c.MetaDescriptions[core.LangTamil] = " " }, "seo"},
		{"no image", func(c *core.Cluster, s **core.Summary) { c.ImageURL = "" }, "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := cluster(), summary()
			tt.mutate(&c, &s)
			if got := evaluateNeeds(p, c, s, core.LangEnglish).String(); got != tt.want {
				t.Errorf("evaluateNeeds() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	p := PolicyFromConfig(config.Enrichment{
		MinArticles:       0,
		MinSources:        2,
		Languages:         []string{"EN", "ta", "xx", "ta"},
		MaxQualityRetries: -1,
		TaskTimeout:       "5s",
	})
	if len(p.Languages) != 2 || p.Languages[0] != core.LangEnglish || p.Languages[1] != core.LangTamil {
		t.Errorf("Languages = %v", p.Languages)
	}
	if p.MinArticles != 1 || p.MinSources != 2 || p.MaxQualityRetries != DefaultPolicy().MaxQualityRetries {
		t.Errorf("Unexpected policy %+v", p)
	}
	if p.TaskTimeout.Seconds() != 5 {
		t.Errorf("TaskTimeout = %v", p.TaskTimeout)
	}

	for _, tt := range []struct {
		articles, sources int
		want              bool
	}{
		{0, 0, false},
		{0, 5, false},
		{1, 1, false},
		{1, 2, true},
	} {
		if got := p.Eligible(core.Cluster{ArticleCount: tt.articles, SourceCount: tt.sources}); got != tt.want {
			t.Errorf("Eligible(%d articles, %d sources) = %v", tt.articles, tt.sources, got)
		}
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 60); got != "short" {
		t.Errorf("clip() = %q", got)
	}
	if got := clip("President presents the budget to parliament", 20); got != "President presents" {
		t.Errorf("clip() = %q", got)
	}
	if got := clip("අයවැයඉදිරිපත්කරයි", 5); got != "අයවැය" {
		t.Errorf("clip() = %q", got)
	}
}

func TestJob_CommitDroppedAfterSeal(t *testing.T) {
	j := newJob(core.Cluster{ID: "c1", Headline: "h"}, nil, nil, Needs{})
	ctx, cancel := context.WithCancel(context.Background())

	if !j.commit(ctx, func() { j.cluster.ImageURL = "a" }) {
		t.Fatal("Expected commit to apply")
	}
	cancel()
	if j.commit(ctx, func() { j.cluster.ImageURL = "late" }) {
		t.Error("Expected commit dropped for ended context")
	}

	out := j.seal()
	j.addErr(errors.New("late"))
	if j.commit(context.Background(), func() { j.cluster.ImageURL = "sealed" }) {
		t.Error("Expected commit dropped after seal")
	}
	if out.cluster.ImageURL != "a" || len(out.errs) != 0 {
		t.Errorf("Unexpected outcome %+v", out)
	}
}
