package langdetect

import (
	"math"
	"testing"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/core"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	d := New(Options{
		OfficialDomains: []string{"gov.lk", "news.lk"},
		OfficialWeight:  2,
		HalfLife:        24 * time.Hour,
	})
	d.now = func() time.Time { return testNow }
	return d
}

func TestDetectText(t *testing.T) {
	d := newTestDetector()
	tests := []struct {
		name string
		text string
		want core.Language
	}{
		{"sinhala", "ජනාධිපතිවරයා අයවැය ඉදිරිපත් කරයි", core.LangSinhala},
		{"tamil", "ஜனாதிபதி வரவு செலவுத் திட்டத்தை சமர்ப்பித்தார்", core.LangTamil},
		{"english", "The President presented the budget to Parliament today", core.LangEnglish},
		{"sinhala with latin acronym", "IMF එකඟතාවය පිළිබඳ සාකච්ඡා", core.LangSinhala},
		{"no letters", "2025 - 10%", ""},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.DetectText(tt.text); got != tt.want {
				t.Errorf("DetectText(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestWeight(t *testing.T) {
	d := newTestDetector()

	fresh := d.Weight(Sample{URL: "https://www.adaderana.lk/x", PublishedAt: testNow})
	if fresh != 1 {
		t.Errorf("Expected weight 1 for a fresh private source, got %v", fresh)
	}

	dayOld := d.Weight(Sample{URL: "https://www.adaderana.lk/x", PublishedAt: testNow.Add(-24 * time.Hour)})
	if math.Abs(dayOld-0.5) > 1e-9 {
		t.Errorf("Expected half weight after one half life, got %v", dayOld)
	}

	official := d.Weight(Sample{URL: "https://www.pmd.gov.lk/news", PublishedAt: testNow})
	if official != 2 {
		t.Errorf("Expected official multiplier, got %v", official)
	}

	future := d.Weight(Sample{URL: "https://a.lk", PublishedAt: testNow.Add(time.Hour)})
	if future != 1 {
		t.Errorf("Future timestamps must not gain weight, got %v", future)
	}
}

func TestIsOfficial(t *testing.T) {
	d := newTestDetector()
	cases := map[string]bool{
		"https://gov.lk/a":            true,
		"https://www.treasury.gov.lk": true,
		"https://news.lk/item":        true,
		"https://fakegov.lk/":         false,
		"not a url":                   false,
	}
	for u, want := range cases {
		if got := d.IsOfficial(u); got != want {
			t.Errorf("IsOfficial(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestDetect_WeightedVote(t *testing.T) {
	d := newTestDetector()

	// Two older Sinhala reports are outvoted by one fresh official English one.
	samples := []Sample{
		{Text: "ජනාධිපතිවරයා අයවැය ඉදිරිපත් කරයි", URL: "https://a.lk/1", PublishedAt: testNow.Add(-48 * time.Hour)},
		{Text: "අයවැය පිළිබඳ විවාදය අද", URL: "https://b.lk/1", PublishedAt: testNow.Add(-48 * time.Hour)},
		{Text: "President presents budget to Parliament", URL: "https://www.pmd.gov.lk/1", PublishedAt: testNow},
	}
	got := d.Detect(samples)
	if got.Language != core.LangEnglish {
		t.Fatalf("Expected English, got %s (votes %v)", got.Language, got.Votes)
	}
	if math.Abs(got.Confidence-2.0/2.5) > 1e-9 {
		t.Errorf("Expected confidence 0.8, got %v", got.Confidence)
	}
}

func TestDetect_TiesAndEmpty(t *testing.T) {
	d := newTestDetector()

	tie := d.Detect([]Sample{
		{Text: "அரசாங்கம் புதிய வரவு செலவுத் திட்டம்", URL: "https://a.lk", PublishedAt: testNow},
		{Text: "Government announces new budget plan", URL: "https://b.lk", PublishedAt: testNow},
	})
	if tie.Language != core.LangEnglish {
		t.Errorf("Expected tie to favour English, got %s", tie.Language)
	}

	if got := d.Detect(nil); got.Language != core.LangEnglish || got.Confidence != 0 {
		t.Errorf("Expected English with zero confidence for no samples, got %+v", got)
	}
}
