package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/persistence"
)

const (
	maxSlugLen   = 80
	fallbackSlug = "story"
)

// Slugify builds a lowercase ASCII slug from a title. Words are joined with
// hyphens and the result never exceeds maxSlugLen. Titles with no ASCII
// letters or digits produce "story".
func Slugify(title string) string {
	var (
		words []string
		b     strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			continue
		}
		flush()
	}
	flush()

	slug := ""
	for _, w := range words {
		next := w
		if slug != "" {
			next = slug + "-" + w
		}
		if len(next) > maxSlugLen {
			break
		}
		slug = next
	}
	if slug == "" && len(words) > 0 {
		slug = words[0][:maxSlugLen]
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// shortID is the cluster id fragment used to disambiguate slugs.
func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// uniqueSlug returns base when free, then base suffixed with a short and
// finally the full cluster id.
func uniqueSlug(ctx context.Context, clusters persistence.ClusterRepository, base, clusterID string) (string, error) {
	candidates := []string{base, base + "-" + shortID(clusterID), base + "-" + clusterID}
	for _, slug := range candidates {
		taken, err := clusters.SlugTaken(ctx, slug, clusterID)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", slug, err)
		}
		if !taken {
			return slug, nil
		}
	}
	return "", fmt.Errorf("%w: %s", persistence.ErrSlugTaken, base)
}
