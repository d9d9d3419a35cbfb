package core

import (
	"reflect"
	"testing"
	"time"
)

func TestLocalized_Missing(t *testing.T) {
	l := Localized{LangEnglish: "A full English headline", LangSinhala: "  ", LangTamil: "short"}

	got := l.Missing(Languages, 10)
	want := []Language{LangSinhala, LangTamil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
}

func TestLocalized_Best(t *testing.T) {
	tests := []struct {
		name     string
		l        Localized
		prefer   []Language
		wantLang Language
		wantText string
	}{
		{"preferred present", Localized{LangTamil: "த", LangEnglish: "e"}, []Language{LangTamil}, LangTamil, "த"},
		{"preferred empty falls to order", Localized{LangSinhala: "සි", LangEnglish: ""}, []Language{LangEnglish}, LangSinhala, "සි"},
		{"nil map", nil, nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, text := tt.l.Best(tt.prefer...)
			if lang != tt.wantLang || text != tt.wantText {
				t.Errorf("Best() = (%q, %q), want (%q, %q)", lang, text, tt.wantLang, tt.wantText)
			}
		})
	}
}

func TestLocalized_SetOnNil(t *testing.T) {
	var l Localized
	l.Set(LangEnglish, "hello")
	if l.Get(LangEnglish) != "hello" {
		t.Errorf("Expected value to be stored, got %q", l.Get(LangEnglish))
	}
}

func TestParseLanguage(t *testing.T) {
	if lang, ok := ParseLanguage(" SI "); !ok || lang != LangSinhala {
		t.Errorf("Expected si, got %q (%v)", lang, ok)
	}
	if _, ok := ParseLanguage("fr"); ok {
		t.Error("Expected fr to be rejected")
	}
}

func TestCluster_Active(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-72 * time.Hour)

	c := Cluster{LastSeenAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}
	if !c.Active(now, windowStart) {
		t.Error("Expected recent cluster to be active")
	}

	c.LastSeenAt = now.Add(-80 * time.Hour)
	if c.Active(now, windowStart) {
		t.Error("Expected cluster outside window to be inactive")
	}

	c.LastSeenAt = now
	c.ExpiresAt = now
	if c.Active(now, windowStart) {
		t.Error("Expected expired cluster to be inactive")
	}
}

func TestArticle_Text(t *testing.T) {
	a := Article{Title: "Title only"}
	if a.Text() != "Title only" {
		t.Errorf("Expected title fallback, got %q", a.Text())
	}
	a.Content = "Body"
	if a.Text() != "Body" {
		t.Errorf("Expected content, got %q", a.Text())
	}
	a.Excerpt = "Excerpt"
	if a.Text() != "Excerpt" {
		t.Errorf("Expected excerpt, got %q", a.Text())
	}
}

func TestImageSource_Priority(t *testing.T) {
	order := []ImageSource{ImageExisting, ImageArticle, ImageHTML, ImageLive}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("Expected %s to outrank %s", order[i-1], order[i])
		}
	}
}

func TestSortStrings(t *testing.T) {
	got := SortStrings([]string{"world", "", "politics", "world", " local "})
	want := []string{"local", "politics", "world"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortStrings() = %v, want %v", got, want)
	}
}

func TestTopicTaxonomy(t *testing.T) {
	if !IsGeoTopic(" Local ") || !IsGeoTopic("world") || IsGeoTopic("politics") {
		t.Error("Unexpected geographic classification")
	}
	if !IsContentTopic("Economy") || IsContentTopic("local") || !IsContentTopic(TopicGeneral) {
		t.Error("Unexpected content classification")
	}
	if LangTamil.Name() != "Tamil" || Language("fr").Name() != "fr" {
		t.Error("Unexpected language names")
	}
}
