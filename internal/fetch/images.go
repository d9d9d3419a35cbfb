package fetch

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minImageSide is the smallest declared width or height accepted for an
// inline image.
const minImageSide = 120

// Image URL fragments that usually mark chrome rather than story images.
var skipFragments = []string{"logo", "icon", "avatar", "sprite", "pixel", "spacer", "banner", "/ads/", "gravatar"}

// metaSelectors are checked in order before inline images.
var metaSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:image"]`, "content"},
	{`meta[property="og:image:url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[property="twitter:image"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

// ExtractImages returns candidate story images from an HTML document, meta
// images first and then inline images in document order. Relative URLs are
// resolved against pageURL.
func ExtractImages(html, pageURL string) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(pageURL)

	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		u := absolute(base, raw)
		if u == "" || seen[u] || skipImage(u) {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, m := range metaSelectors {
		doc.Find(m.selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(m.attr); ok {
				add(v)
			}
		})
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if tooSmall(s) {
			return
		}
		src := s.AttrOr("src", "")
		if src == "" || strings.HasPrefix(src, "data:") {
			src = s.AttrOr("data-src", "")
		}
		if src == "" {
			src = firstSrcset(s.AttrOr("srcset", ""))
		}
		add(src)
	})
	return out
}

func tooSmall(s *goquery.Selection) bool {
	for _, attr := range []string{"width", "height"} {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
		if err == nil && n > 0 && n < minImageSide {
			return true
		}
	}
	return false
}

func firstSrcset(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func skipImage(u string) bool {
	lower := strings.ToLower(u)
	if strings.HasSuffix(lower, ".svg") || strings.HasSuffix(lower, ".gif") {
		return true
	}
	for _, frag := range skipFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func absolute(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
